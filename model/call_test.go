package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCallEvent_Answered(t *testing.T) {
	tests := []struct {
		reason   string
		answered bool
	}{
		{DisconnectUserHangup, true},
		{DisconnectAgentHangup, true},
		{DisconnectCallTransfer, false},
		{DisconnectVoicemail, false},
		{DisconnectBusy, false},
		{DisconnectNoAnswer, false},
		{DisconnectFailed, false},
		{"", false},
	}

	for _, tt := range tests {
		event := &CallEvent{DisconnectionReason: tt.reason}
		assert.Equal(t, tt.answered, event.Answered(), tt.reason)
	}
}

func TestCallEvent_OptOutRequested(t *testing.T) {
	t.Run("bool flag", func(t *testing.T) {
		event := &CallEvent{DynamicVariables: map[string]interface{}{"opt_out": true}}
		assert.True(t, event.OptOutRequested())

		event.DynamicVariables["opt_out"] = false
		assert.False(t, event.OptOutRequested())
	})

	t.Run("string flag", func(t *testing.T) {
		for _, v := range []string{"true", "True", "TRUE", "yes", " yes ", "1"} {
			event := &CallEvent{DynamicVariables: map[string]interface{}{"opt_out": v}}
			assert.True(t, event.OptOutRequested(), v)
		}
		for _, v := range []string{"false", "no", "0", "", "maybe"} {
			event := &CallEvent{DynamicVariables: map[string]interface{}{"opt_out": v}}
			assert.False(t, event.OptOutRequested(), v)
		}
	})

	t.Run("missing variables", func(t *testing.T) {
		event := &CallEvent{}
		assert.False(t, event.OptOutRequested())

		event = &CallEvent{DynamicVariables: map[string]interface{}{}}
		assert.False(t, event.OptOutRequested())
	})

	t.Run("unexpected type", func(t *testing.T) {
		event := &CallEvent{DynamicVariables: map[string]interface{}{"opt_out": 1}}
		assert.False(t, event.OptOutRequested())
	})
}

func TestCallEvent_RescheduleTime(t *testing.T) {
	event := &CallEvent{DynamicVariables: map[string]interface{}{"reschedule_time": " 2025-03-15 14:30 "}}
	assert.Equal(t, "2025-03-15 14:30", event.RescheduleTime())

	event = &CallEvent{DynamicVariables: map[string]interface{}{"reschedule_time": 1430}}
	assert.Equal(t, "", event.RescheduleTime())

	event = &CallEvent{}
	assert.Equal(t, "", event.RescheduleTime())
}

func TestCallEvent_PostCallRecord(t *testing.T) {
	event := &CallEvent{
		EventType:           EventCallAnalyzed,
		CallID:              "call_71b2c9",
		ToNumber:            "+919876543210",
		DisconnectionReason: DisconnectUserHangup,
		RecordingUrl:        "https://recordings.example.com/call_71b2c9.wav",
		PublicLogUrl:        "https://logs.example.com/call_71b2c9",
		StartTimestamp:      1741946400000,
		EndTimestamp:        1741946520000,
		CallCost:            decimal.NewFromFloat(0.42),
		DynamicVariables:    map[string]interface{}{"opt_out": false},
	}

	record := event.PostCallRecord()
	assert.Equal(t, event.CallID, record.CallID)
	assert.Equal(t, event.DisconnectionReason, record.DisconnectionReason)
	assert.Equal(t, event.RecordingUrl, record.RecordingUrl)
	assert.Equal(t, event.PublicLogUrl, record.PublicLogUrl)
	assert.Equal(t, event.StartTimestamp, record.StartTimestamp)
	assert.Equal(t, event.EndTimestamp, record.EndTimestamp)
	assert.True(t, event.CallCost.Equal(record.CallCost))
	assert.Equal(t, event.DynamicVariables, record.DynamicVariables)
}

func TestCallEvent_UnmarshalProviderPayload(t *testing.T) {
	payload := `{
		"event_type": "call_analyzed",
		"call_id": "call_4f2a",
		"to_number": "+919876543210",
		"direction": "outbound",
		"disconnection_reason": "user_hangup",
		"call_cost": "1.25",
		"llm_dynamic_variables": {"opt_out": "no", "reschedule_time": "tomorrow"}
	}`

	var event CallEvent
	err := json.Unmarshal([]byte(payload), &event)
	assert.NoError(t, err)
	assert.Equal(t, EventCallAnalyzed, event.EventType)
	assert.True(t, event.Answered())
	assert.False(t, event.OptOutRequested())
	assert.Equal(t, "tomorrow", event.RescheduleTime())
	assert.True(t, event.CallCost.Equal(decimal.RequireFromString("1.25")))
}
