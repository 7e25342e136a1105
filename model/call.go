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
	"strings"

	"github.com/shopspring/decimal"
)

// Webhook event types from the voice provider. Only call_analyzed carries an
// outcome; everything else is acknowledged and ignored.
const (
	EventCallStarted  = "call_started"
	EventCallEnded    = "call_ended"
	EventCallAnalyzed = "call_analyzed"
)

// Disconnection reasons reported by the voice provider.
const (
	DisconnectUserHangup   = "user_hangup"
	DisconnectAgentHangup  = "agent_hangup"
	DisconnectCallTransfer = "call_transfer"
	DisconnectVoicemail    = "voicemail"
	DisconnectBusy         = "busy"
	DisconnectNoAnswer     = "no_answer"
	DisconnectFailed       = "failed"
)

// CallEvent is a call-completion notification received from the voice
// provider's webhook. It is ephemeral: correlated to exactly one lead by
// to_number and consumed on arrival.
type CallEvent struct {
	EventType           string                 `json:"event_type"`
	CallID              string                 `json:"call_id"`
	AgentID             string                 `json:"agent_id,omitempty"`
	CallType            string                 `json:"call_type,omitempty"`
	FromNumber          string                 `json:"from_number,omitempty"`
	ToNumber            string                 `json:"to_number"`
	Direction           string                 `json:"direction,omitempty"`
	CallStatus          string                 `json:"call_status,omitempty"`
	StartTimestamp      int64                  `json:"start_timestamp,omitempty"`
	EndTimestamp        int64                  `json:"end_timestamp,omitempty"`
	DisconnectionReason string                 `json:"disconnection_reason,omitempty"`
	RecordingUrl        string                 `json:"recording_url,omitempty"`
	PublicLogUrl        string                 `json:"public_log_url,omitempty"`
	CallCost            decimal.Decimal        `json:"call_cost,omitempty"`
	DynamicVariables    map[string]interface{} `json:"llm_dynamic_variables,omitempty"`
}

// Answered reports whether the call connected to a human. The provider marks
// connected calls with a hangup reason on either side.
func (e *CallEvent) Answered() bool {
	switch e.DisconnectionReason {
	case DisconnectUserHangup, DisconnectAgentHangup:
		return true
	}
	return false
}

// OptOutRequested reads the opt_out flag the call agent sets in its dynamic
// variables. Providers deliver it as a bool or a string depending on the
// agent template, so both are accepted.
func (e *CallEvent) OptOutRequested() bool {
	raw, ok := e.DynamicVariables["opt_out"]
	if !ok {
		return false
	}
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}

// RescheduleTime returns the callback time the agent captured, if any.
func (e *CallEvent) RescheduleTime() string {
	raw, ok := e.DynamicVariables["reschedule_time"]
	if !ok {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// PostCallRecord converts the event into the historical payload persisted on
// the lead.
func (e *CallEvent) PostCallRecord() *PostCallData {
	return &PostCallData{
		CallID:              e.CallID,
		DisconnectionReason: e.DisconnectionReason,
		RecordingUrl:        e.RecordingUrl,
		PublicLogUrl:        e.PublicLogUrl,
		StartTimestamp:      e.StartTimestamp,
		EndTimestamp:        e.EndTimestamp,
		CallCost:            e.CallCost,
		DynamicVariables:    e.DynamicVariables,
	}
}
