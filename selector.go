/*
Copyright 2025 Ringflow Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ringflow

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ringflow/ringflow/config"
	"github.com/ringflow/ringflow/model"
)

// SelectLeads builds the dispatch pool for one window. Four tiers are
// queried in fixed priority order, each bounded by query_limit on its own:
//
//  1. CALLBACK leads whose callback falls inside the window.
//  2. CALLBACK leads whose callback was missed before the window.
//  3. RETRY leads due today.
//  4. NEW leads, oldest first.
//
// Tier membership is exclusive by status and predicate, so tiers never
// overlap and no dedupe pass is needed. The window deadline inside the
// dispatcher trims whatever the batch cannot reach. Any tier query error
// aborts the whole selection; a partial pool would silently starve lower
// tiers.
func (r *Ringflow) SelectLeads(ctx context.Context, windowStart, windowEnd time.Time) ([]*model.Lead, error) {
	ctx, span := tracer.Start(ctx, "Selecting leads for dispatch")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	limit := cfg.Campaign.QueryLimit
	if limit <= 0 {
		limit = 50
	}

	selected := make([]*model.Lead, 0, limit)
	annotate := func(leads []*model.Lead, priority int, reason string) {
		for _, lead := range leads {
			lead.Priority = priority
			lead.PriorityReason = reason
			selected = append(selected, lead)
		}
	}

	callbacks, err := r.datasource.GetCurrentWindowCallbacks(ctx, windowStart, windowEnd, limit)
	if err != nil {
		return nil, logAndRecordError(span, "loading current window callbacks failed: ", err)
	}
	annotate(callbacks, 1, model.ReasonCurrentWindowCallback)

	missed, err := r.datasource.GetMissedCallbacks(ctx, windowStart, limit)
	if err != nil {
		return nil, logAndRecordError(span, "loading missed callbacks failed: ", err)
	}
	annotate(missed, 2, model.ReasonMissedCallback)

	dayStart, dayEnd := dayBounds(windowStart)
	retries, err := r.datasource.GetRetriesDueToday(ctx, dayStart, dayEnd, limit)
	if err != nil {
		return nil, logAndRecordError(span, "loading retries due today failed: ", err)
	}
	annotate(retries, 3, model.ReasonRetryToday)

	fresh, err := r.datasource.GetNewLeads(ctx, limit)
	if err != nil {
		return nil, logAndRecordError(span, "loading new leads failed: ", err)
	}
	annotate(fresh, 4, model.ReasonNewLead)

	logrus.Infof("Selected %d leads for window %s - %s (callbacks %d, missed %d, retries %d, new %d)",
		len(selected), windowStart.Format("15:04"), windowEnd.Format("15:04"),
		len(callbacks), len(missed), len(retries), len(fresh))
	return selected, nil
}
