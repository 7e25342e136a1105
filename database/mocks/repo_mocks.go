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
package mocks

import (
	"context"
	"time"

	"github.com/ringflow/ringflow/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Lead record methods

func (m *MockDataSource) CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	args := m.Called(ctx, lead)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

func (m *MockDataSource) CreateLeads(ctx context.Context, leads []*model.Lead) ([]*model.Lead, []string, error) {
	args := m.Called(ctx, leads)
	var created []*model.Lead
	var skipped []string
	if args.Get(0) != nil {
		created = args.Get(0).([]*model.Lead)
	}
	if args.Get(1) != nil {
		skipped = args.Get(1).([]string)
	}
	return created, skipped, args.Error(2)
}

func (m *MockDataSource) GetLeadByID(ctx context.Context, id string) (*model.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

func (m *MockDataSource) GetLeadByPhone(ctx context.Context, phoneNumber string) (*model.Lead, error) {
	args := m.Called(ctx, phoneNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

func (m *MockDataSource) ListLeads(ctx context.Context, status string, limit, offset int) ([]*model.Lead, error) {
	args := m.Called(ctx, status, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Lead), args.Error(1)
}

func (m *MockDataSource) GetAllLeadsPaginated(ctx context.Context, limit, offset int) ([]*model.Lead, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Lead), args.Error(1)
}

func (m *MockDataSource) CountLeadsByStatus(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

// Dispatch and outcome methods

func (m *MockDataSource) UpdateLeadStatus(ctx context.Context, leadID, status string) error {
	args := m.Called(ctx, leadID, status)
	return args.Error(0)
}

func (m *MockDataSource) RecordCallDispatch(ctx context.Context, leadID, callReference string) error {
	args := m.Called(ctx, leadID, callReference)
	return args.Error(0)
}

func (m *MockDataSource) MoveLeadToRetry(ctx context.Context, leadID string, retryDate time.Time) error {
	args := m.Called(ctx, leadID, retryDate)
	return args.Error(0)
}

func (m *MockDataSource) MoveLeadToCallback(ctx context.Context, leadID string, callbackTime time.Time) error {
	args := m.Called(ctx, leadID, callbackTime)
	return args.Error(0)
}

func (m *MockDataSource) SaveCallOutcome(ctx context.Context, leadID string, postCallData *model.PostCallData, lastCallTime time.Time) error {
	args := m.Called(ctx, leadID, postCallData, lastCallTime)
	return args.Error(0)
}

func (m *MockDataSource) GetCurrentWindowCallbacks(ctx context.Context, windowStart, windowEnd time.Time, limit int) ([]*model.Lead, error) {
	args := m.Called(ctx, windowStart, windowEnd, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Lead), args.Error(1)
}

func (m *MockDataSource) GetMissedCallbacks(ctx context.Context, windowStart time.Time, limit int) ([]*model.Lead, error) {
	args := m.Called(ctx, windowStart, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Lead), args.Error(1)
}

func (m *MockDataSource) GetRetriesDueToday(ctx context.Context, dayStart, dayEnd time.Time, limit int) ([]*model.Lead, error) {
	args := m.Called(ctx, dayStart, dayEnd, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Lead), args.Error(1)
}

func (m *MockDataSource) GetNewLeads(ctx context.Context, limit int) ([]*model.Lead, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Lead), args.Error(1)
}

func (m *MockDataSource) GetStaleCallingLeads(ctx context.Context, olderThan time.Time) ([]*model.Lead, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Lead), args.Error(1)
}
