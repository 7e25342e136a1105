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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ringflow/ringflow/config"
	"github.com/ringflow/ringflow/database/mocks"
	"github.com/ringflow/ringflow/model"
)

// Selection never touches Redis or the queue, so these tests skip the full
// service helper and wire only the datasource.
func newSelectorService(t *testing.T, queryLimit int) (*Ringflow, *mocks.MockDataSource) {
	t.Helper()
	config.MockConfig(&config.Configuration{
		Campaign: config.CampaignConfig{Timezone: "UTC", QueryLimit: queryLimit},
	})
	mockDS := new(mocks.MockDataSource)
	return &Ringflow{datasource: mockDS}, mockDS
}

func statusLead(id, status string) *model.Lead {
	return &model.Lead{LeadID: id, PhoneNumber: "+1555010" + id, CallStatus: status}
}

func TestSelectLeads_OrdersTiersByPriority(t *testing.T) {
	service, mockDS := newSelectorService(t, 50)

	windowStart := at(10, 0, 0, 0)
	windowEnd := at(10, 10, 0, 0)

	mockDS.On("GetCurrentWindowCallbacks", mock.Anything, windowStart, windowEnd, 50).
		Return([]*model.Lead{statusLead("cb", model.StatusCallback)}, nil)
	mockDS.On("GetMissedCallbacks", mock.Anything, windowStart, 50).
		Return([]*model.Lead{statusLead("missed", model.StatusCallback)}, nil)
	mockDS.On("GetRetriesDueToday", mock.Anything, mock.Anything, mock.Anything, 50).
		Return([]*model.Lead{statusLead("retry", model.StatusRetry)}, nil)
	mockDS.On("GetNewLeads", mock.Anything, 50).
		Return([]*model.Lead{statusLead("new", model.StatusNew)}, nil)

	pool, err := service.SelectLeads(context.Background(), windowStart, windowEnd)

	require.NoError(t, err)
	require.Len(t, pool, 4)
	assert.Equal(t, "cb", pool[0].LeadID)
	assert.Equal(t, 1, pool[0].Priority)
	assert.Equal(t, model.ReasonCurrentWindowCallback, pool[0].PriorityReason)
	assert.Equal(t, "missed", pool[1].LeadID)
	assert.Equal(t, 2, pool[1].Priority)
	assert.Equal(t, model.ReasonMissedCallback, pool[1].PriorityReason)
	assert.Equal(t, "retry", pool[2].LeadID)
	assert.Equal(t, 3, pool[2].Priority)
	assert.Equal(t, model.ReasonRetryToday, pool[2].PriorityReason)
	assert.Equal(t, "new", pool[3].LeadID)
	assert.Equal(t, 4, pool[3].Priority)
	assert.Equal(t, model.ReasonNewLead, pool[3].PriorityReason)
	mockDS.AssertExpectations(t)
}

// Each tier is bounded on its own, so a full first tier never starves the
// ones below it.
func TestSelectLeads_TiersBoundedIndependently(t *testing.T) {
	service, mockDS := newSelectorService(t, 2)

	mockDS.On("GetCurrentWindowCallbacks", mock.Anything, mock.Anything, mock.Anything, 2).
		Return([]*model.Lead{
			statusLead("cb1", model.StatusCallback),
			statusLead("cb2", model.StatusCallback),
		}, nil)
	mockDS.On("GetMissedCallbacks", mock.Anything, mock.Anything, 2).
		Return([]*model.Lead{
			statusLead("m1", model.StatusCallback),
			statusLead("m2", model.StatusCallback),
		}, nil)
	mockDS.On("GetRetriesDueToday", mock.Anything, mock.Anything, mock.Anything, 2).
		Return([]*model.Lead{statusLead("r1", model.StatusRetry)}, nil)
	mockDS.On("GetNewLeads", mock.Anything, 2).
		Return([]*model.Lead{statusLead("n1", model.StatusNew)}, nil)

	pool, err := service.SelectLeads(context.Background(), at(10, 0, 0, 0), at(10, 10, 0, 0))

	require.NoError(t, err)
	require.Len(t, pool, 6)
	assert.Equal(t, "cb1", pool[0].LeadID)
	assert.Equal(t, "m1", pool[2].LeadID)
	assert.Equal(t, "r1", pool[4].LeadID)
	assert.Equal(t, "n1", pool[5].LeadID)
	mockDS.AssertExpectations(t)
}

func TestSelectLeads_PassesDayBoundsForRetries(t *testing.T) {
	service, mockDS := newSelectorService(t, 50)

	windowStart := at(14, 20, 0, 0)
	windowEnd := at(14, 30, 0, 0)
	dayStart := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	dayEnd := time.Date(2024, time.March, 16, 0, 0, 0, 0, time.UTC)

	mockDS.On("GetCurrentWindowCallbacks", mock.Anything, windowStart, windowEnd, 50).Return([]*model.Lead{}, nil)
	mockDS.On("GetMissedCallbacks", mock.Anything, windowStart, 50).Return([]*model.Lead{}, nil)
	mockDS.On("GetRetriesDueToday", mock.Anything, dayStart, dayEnd, 50).Return([]*model.Lead{}, nil)
	mockDS.On("GetNewLeads", mock.Anything, 50).Return([]*model.Lead{}, nil)

	_, err := service.SelectLeads(context.Background(), windowStart, windowEnd)

	require.NoError(t, err)
	mockDS.AssertExpectations(t)
}

func TestSelectLeads_TierFailureAborts(t *testing.T) {
	service, mockDS := newSelectorService(t, 50)

	mockDS.On("GetCurrentWindowCallbacks", mock.Anything, mock.Anything, mock.Anything, 50).Return([]*model.Lead{}, nil)
	mockDS.On("GetMissedCallbacks", mock.Anything, mock.Anything, 50).Return([]*model.Lead{}, nil)
	mockDS.On("GetRetriesDueToday", mock.Anything, mock.Anything, mock.Anything, 50).Return(nil, errors.New("connection reset"))

	pool, err := service.SelectLeads(context.Background(), at(10, 0, 0, 0), at(10, 10, 0, 0))

	require.Error(t, err)
	assert.Nil(t, pool)
	mockDS.AssertNotCalled(t, "GetNewLeads", mock.Anything, mock.Anything)
}
