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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ringflow/ringflow/config"
	"github.com/ringflow/ringflow/model"
)

// RecoverStaleCalls fails leads stuck in CALLING longer than the configured
// staleness threshold. A lead is orphaned there when the process dies between
// the CALLING write and the call, or when the provider never delivers an
// outcome. Runs from the daily scheduler task and on demand.
//
// Returns:
// - int: The number of leads moved to FAILED.
// - error: An error if the stale leads cannot be loaded.
func (r *Ringflow) RecoverStaleCalls(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "Recovering stale calls")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return 0, err
	}
	staleMinutes := cfg.Campaign.StaleCallingMinutes
	if staleMinutes <= 0 {
		staleMinutes = 120
	}
	olderThan := time.Now().Add(-time.Duration(staleMinutes) * time.Minute)

	stale, err := r.datasource.GetStaleCallingLeads(ctx, olderThan)
	if err != nil {
		return 0, logAndRecordError(span, "loading stale calling leads failed: ", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	recovered := 0
	for _, lead := range stale {
		postCall := lead.PostCallData
		if postCall == nil {
			postCall = &model.PostCallData{}
		}
		postCall.Note = fmt.Sprintf("Marked FAILED by stale call recovery after more than %d minutes in CALLING", staleMinutes)

		lastCallTime := time.Now()
		if lead.LastCallTime != nil {
			lastCallTime = *lead.LastCallTime
		}
		if err := r.datasource.SaveCallOutcome(ctx, lead.LeadID, postCall, lastCallTime); err != nil {
			logrus.Errorf("Error writing recovery note for lead %s: %v", lead.LeadID, err)
			continue
		}
		if err := r.datasource.UpdateLeadStatus(ctx, lead.LeadID, model.StatusFailed); err != nil {
			logrus.Errorf("Error failing stale lead %s: %v", lead.LeadID, err)
			continue
		}
		r.notifyLeadStatus(lead, model.StatusFailed)
		recovered++
	}

	logrus.Infof("Recovered %d of %d stale calling leads", recovered, len(stale))
	if recovered > 0 {
		if err := SendWebhook(NewWebhook{Event: "leads.recovered", Payload: map[string]interface{}{
			"count":             recovered,
			"threshold_minutes": staleMinutes,
		}}); err != nil {
			logrus.Error(err)
		}
	}
	return recovered, nil
}
