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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ringflow/ringflow/config"
	"github.com/ringflow/ringflow/model"
)

func TestRecoverStaleCalls(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	threeHoursAgo := time.Now().Add(-3 * time.Hour)
	withHistory := &model.Lead{
		LeadID:       "lead_one",
		PhoneNumber:  "+15550100001",
		CallStatus:   model.StatusCalling,
		LastCallTime: &threeHoursAgo,
		PostCallData: &model.PostCallData{CallID: "call_old"},
	}
	bare := &model.Lead{LeadID: "lead_two", PhoneNumber: "+15550100002", CallStatus: model.StatusCalling}

	// The staleness cutoff defaults to 120 minutes before now.
	mockDS.On("GetStaleCallingLeads", mock.Anything, mock.MatchedBy(func(ts time.Time) bool {
		age := time.Since(ts)
		return age > 119*time.Minute && age < 121*time.Minute
	})).Return([]*model.Lead{withHistory, bare}, nil)

	mockDS.On("SaveCallOutcome", mock.Anything, "lead_one",
		mock.MatchedBy(func(p *model.PostCallData) bool {
			return p.CallID == "call_old" && strings.Contains(p.Note, "stale call recovery")
		}),
		mock.MatchedBy(func(ts time.Time) bool { return ts.Equal(threeHoursAgo) })).
		Return(nil)
	mockDS.On("SaveCallOutcome", mock.Anything, "lead_two",
		mock.MatchedBy(func(p *model.PostCallData) bool {
			return strings.Contains(p.Note, "stale call recovery")
		}),
		mock.Anything).
		Return(nil)
	mockDS.On("UpdateLeadStatus", mock.Anything, "lead_one", model.StatusFailed).Return(nil)
	mockDS.On("UpdateLeadStatus", mock.Anything, "lead_two", model.StatusFailed).Return(nil)

	recovered, err := service.RecoverStaleCalls(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, recovered)
	assert.Equal(t, model.StatusFailed, withHistory.CallStatus)
	assert.Equal(t, model.StatusFailed, bare.CallStatus)
	mockDS.AssertExpectations(t)
}

func TestRecoverStaleCalls_NothingStale(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	mockDS.On("GetStaleCallingLeads", mock.Anything, mock.Anything).Return([]*model.Lead{}, nil)

	recovered, err := service.RecoverStaleCalls(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
	mockDS.AssertNotCalled(t, "SaveCallOutcome", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockDS.AssertNotCalled(t, "UpdateLeadStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestRecoverStaleCalls_ContinuesPastPerLeadFailures(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	leads := []*model.Lead{
		{LeadID: "lead_one", PhoneNumber: "+15550100001", CallStatus: model.StatusCalling},
		{LeadID: "lead_two", PhoneNumber: "+15550100002", CallStatus: model.StatusCalling},
	}
	mockDS.On("GetStaleCallingLeads", mock.Anything, mock.Anything).Return(leads, nil)
	mockDS.On("SaveCallOutcome", mock.Anything, "lead_one", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	mockDS.On("SaveCallOutcome", mock.Anything, "lead_two", mock.Anything, mock.Anything).Return(nil)
	mockDS.On("UpdateLeadStatus", mock.Anything, "lead_two", model.StatusFailed).Return(nil)

	recovered, err := service.RecoverStaleCalls(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	mockDS.AssertNotCalled(t, "UpdateLeadStatus", mock.Anything, "lead_one", mock.Anything)
}

func TestRecoverStaleCalls_HonorsConfiguredThreshold(t *testing.T) {
	cnf := &config.Configuration{
		Campaign: config.CampaignConfig{Timezone: "UTC", StaleCallingMinutes: 30},
	}
	service, mockDS, _ := newTestService(t, cnf)

	mockDS.On("GetStaleCallingLeads", mock.Anything, mock.MatchedBy(func(ts time.Time) bool {
		age := time.Since(ts)
		return age > 29*time.Minute && age < 31*time.Minute
	})).Return([]*model.Lead{}, nil)

	recovered, err := service.RecoverStaleCalls(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
	mockDS.AssertExpectations(t)
}
