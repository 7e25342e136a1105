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
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ringflow/ringflow/config"
	"github.com/ringflow/ringflow/model"
)

// Reschedule formats accepted from the call agent, tried in order. A bare
// time of day and the literal phrases "tomorrow"/"next day" are handled
// separately after these.
var rescheduleLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
}

// ProcessCallEvent applies a provider call notification to its lead. Only
// call_analyzed events carry an outcome; anything else is acknowledged
// without action. The raw outcome payload is persisted before the status
// transition so a crash mid-resolution never loses the call record.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - event *model.CallEvent: The notification received from the provider.
//
// Returns:
// - bool: Whether the event was accepted (false means the caller should surface a failure).
// - error: An error if the lead cannot be found or a transition fails.
func (r *Ringflow) ProcessCallEvent(ctx context.Context, event *model.CallEvent) (bool, error) {
	ctx, span := tracer.Start(ctx, "Processing call event")
	defer span.End()

	if event.EventType != model.EventCallAnalyzed {
		logrus.Infof("Acknowledging %s event for %s without action", event.EventType, event.ToNumber)
		return true, nil
	}

	cfg, err := config.Fetch()
	if err != nil {
		return false, err
	}
	now := time.Now().In(cfg.Campaign.Location())

	lead, err := r.datasource.GetLeadByPhone(ctx, model.NormalizePhone(event.ToNumber))
	if err != nil {
		return false, logAndRecordError(span, fmt.Sprintf("no lead matches call event for %s: ", event.ToNumber), err)
	}

	lastCallTime := now
	if event.EndTimestamp > 0 {
		lastCallTime = time.UnixMilli(event.EndTimestamp).In(cfg.Campaign.Location())
	}
	if err := r.datasource.SaveCallOutcome(ctx, lead.LeadID, event.PostCallRecord(), lastCallTime); err != nil {
		return false, logAndRecordError(span, fmt.Sprintf("persisting call outcome for lead %s failed: ", lead.LeadID), err)
	}

	if lead.CallStatus != model.StatusCalling {
		logrus.Warnf("Lead %s received %s while %s, likely a duplicate or out-of-order notification; processing anyway",
			lead.LeadID, event.EventType, lead.CallStatus)
	}

	newStatus, err := r.applyOutcome(ctx, lead, event, now, cfg)
	if err != nil {
		// Never leave the lead parked in CALLING behind a failed transition.
		if failErr := r.datasource.UpdateLeadStatus(ctx, lead.LeadID, model.StatusFailed); failErr != nil {
			logrus.Errorf("Error failing lead %s after outcome error: %v", lead.LeadID, failErr)
		} else {
			r.notifyLeadStatus(lead, model.StatusFailed)
		}
		return false, logAndRecordError(span, fmt.Sprintf("applying call outcome for lead %s failed: ", lead.LeadID), err)
	}

	r.notifyLeadStatus(lead, newStatus)
	logrus.WithFields(logrus.Fields{
		"lead_id":    lead.LeadID,
		"call_id":    event.CallID,
		"new_status": newStatus,
	}).Info("Call outcome applied")
	return true, nil
}

// applyOutcome picks and writes the post-call transition. Decision order:
// opt-out wins over everything, then an answered call either books the
// captured callback or completes, and an unanswered call retries until the
// retry budget is spent.
func (r *Ringflow) applyOutcome(ctx context.Context, lead *model.Lead, event *model.CallEvent, now time.Time, cfg *config.Configuration) (string, error) {
	if event.OptOutRequested() {
		return model.StatusOptedOut, r.datasource.UpdateLeadStatus(ctx, lead.LeadID, model.StatusOptedOut)
	}

	if event.Answered() {
		if raw := event.RescheduleTime(); raw != "" {
			if callbackTime, ok := parseCallbackTime(raw, now); ok {
				lead.CallbackTime = &callbackTime
				return model.StatusCallback, r.datasource.MoveLeadToCallback(ctx, lead.LeadID, callbackTime)
			}
			logrus.Warnf("Lead %s: cannot parse reschedule time %q, treating the call as completed", lead.LeadID, raw)
		}
		return model.StatusCompleted, r.datasource.UpdateLeadStatus(ctx, lead.LeadID, model.StatusCompleted)
	}

	if lead.NumberOfRetries < cfg.Campaign.MaxRetries {
		retryDate := now.AddDate(0, 0, 1)
		lead.RetryDate = &retryDate
		lead.NumberOfRetries++
		return model.StatusRetry, r.datasource.MoveLeadToRetry(ctx, lead.LeadID, retryDate)
	}

	logrus.Infof("Lead %s spent its %d retries, failing", lead.LeadID, lead.NumberOfRetries)
	return model.StatusFailed, r.datasource.UpdateLeadStatus(ctx, lead.LeadID, model.StatusFailed)
}

// parseCallbackTime turns the agent's captured reschedule phrase into a
// concrete callback instant in now's location. The bool reports whether the
// phrase was understood.
func parseCallbackTime(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range rescheduleLayouts {
		if t, err := time.ParseInLocation(layout, raw, now.Location()); err == nil {
			return t, true
		}
	}

	// A bare time of day means today at that time.
	if t, err := time.ParseInLocation("15:04", raw, now.Location()); err == nil {
		return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location()), true
	}

	switch strings.ToLower(raw) {
	case "tomorrow", "next day":
		next := now.AddDate(0, 0, 1)
		return time.Date(next.Year(), next.Month(), next.Day(), 10, 0, 0, 0, now.Location()), true
	}

	return time.Time{}, false
}
