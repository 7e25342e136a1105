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

package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Lead call statuses. A lead holds exactly one status at any time.
const (
	StatusNew       = "NEW"
	StatusCalling   = "CALLING"
	StatusRetry     = "RETRY"
	StatusCallback  = "CALLBACK"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusOptedOut  = "OPTED_OUT"
)

// Priority reasons attached to leads during selection. The priority value is
// the tier position, not a sort key.
const (
	ReasonCurrentWindowCallback = "current_window_callback"
	ReasonMissedCallback        = "missed_callback"
	ReasonRetryToday            = "retry_today"
	ReasonNewLead               = "new_lead"
)

// Lead represents a prospect in the outbound calling pool.
type Lead struct {
	ID          int64  `json:"-"`
	LeadID      string `json:"lead_id"`
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Company     string `json:"company,omitempty"`

	// CustomData is passed through to the call agent untouched.
	CustomData map[string]interface{} `json:"custom_data,omitempty"`

	CallStatus      string     `json:"call_status"`
	NumberOfRetries int        `json:"number_of_retries"`
	LastCallTime    *time.Time `json:"last_call_time,omitempty"`
	CallbackTime    *time.Time `json:"callback_time,omitempty"`
	RetryDate       *time.Time `json:"retry_date,omitempty"`
	CallReference   string     `json:"call_reference,omitempty"`

	PostCallData *PostCallData `json:"post_call_data,omitempty"`

	// Priority and PriorityReason are computed per selection cycle and never
	// persisted.
	Priority       int    `json:"priority,omitempty"`
	PriorityReason string `json:"priority_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostCallData is the historical record of the last call outcome, persisted
// on the lead before the outcome transition is computed.
type PostCallData struct {
	CallID              string                 `json:"call_id,omitempty"`
	DisconnectionReason string                 `json:"disconnection_reason,omitempty"`
	RecordingUrl        string                 `json:"recording_url,omitempty"`
	PublicLogUrl        string                 `json:"public_log_url,omitempty"`
	StartTimestamp      int64                  `json:"start_timestamp,omitempty"`
	EndTimestamp        int64                  `json:"end_timestamp,omitempty"`
	CallCost            decimal.Decimal        `json:"call_cost,omitempty"`
	DynamicVariables    map[string]interface{} `json:"llm_dynamic_variables,omitempty"`
	Note                string                 `json:"note,omitempty"`
}

func (lead *Lead) ToJSON() ([]byte, error) {
	return json.Marshal(lead)
}

// IsCallable reports whether a lead in the given status may be admitted into
// a dispatch batch.
func IsCallable(status string) bool {
	switch status {
	case StatusNew, StatusRetry, StatusCallback:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the automatic lifecycle.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusOptedOut:
		return true
	}
	return false
}

// ValidStatus reports whether s is one of the known call statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusNew, StatusCalling, StatusRetry, StatusCallback, StatusCompleted, StatusFailed, StatusOptedOut:
		return true
	}
	return false
}

// legalTransitions maps each status to the statuses it may move to. FAILED is
// reachable from anywhere because any unexpected processing error converts
// the lead to FAILED.
var legalTransitions = map[string][]string{
	StatusNew:      {StatusCalling, StatusFailed},
	StatusRetry:    {StatusCalling, StatusFailed},
	StatusCallback: {StatusCalling, StatusFailed},
	StatusCalling:  {StatusOptedOut, StatusCallback, StatusCompleted, StatusRetry, StatusFailed},
}

// CanTransition reports whether moving a lead from one status to another is a
// legal state-machine step.
func CanTransition(from, to string) bool {
	if to == StatusFailed {
		return true
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
