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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ringflow/ringflow/internal/apierror"
	"github.com/ringflow/ringflow/internal/voice"
	"github.com/ringflow/ringflow/model"
)

func TestCreateLead_NormalizesPhoneAndStartsNew(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	mockDS.On("CreateLead", mock.Anything, mock.MatchedBy(func(lead *model.Lead) bool {
		return lead.PhoneNumber == "+15550100001" && lead.CallStatus == model.StatusNew
	})).Return(&model.Lead{LeadID: "lead_one", PhoneNumber: "+15550100001", CallStatus: model.StatusNew}, nil)

	created, err := service.CreateLead(context.Background(), &model.Lead{PhoneNumber: "+1 555-010-0001", Name: "Ada"})

	require.NoError(t, err)
	assert.Equal(t, "lead_one", created.LeadID)
	mockDS.AssertExpectations(t)
}

func TestCreateLead_RequiresPhoneNumber(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	_, err := service.CreateLead(context.Background(), &model.Lead{PhoneNumber: "   ", Name: "Nobody"})

	require.Error(t, err)
	var apiErr apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
	mockDS.AssertNotCalled(t, "CreateLead", mock.Anything, mock.Anything)
}

func TestCreateLeads_SkipsUnusableAndDuplicateRows(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	batch := []*model.Lead{
		{PhoneNumber: "+1 555-010-0001", Name: "Ada"},
		{PhoneNumber: "+15550100001", Name: "Ada again"},
		{PhoneNumber: "   ", Name: "No phone"},
		{PhoneNumber: "+15550100002", Name: "Grace"},
	}

	mockDS.On("CreateLeads", mock.Anything, mock.MatchedBy(func(leads []*model.Lead) bool {
		return len(leads) == 2 && leads[0].PhoneNumber == "+15550100001" && leads[1].PhoneNumber == "+15550100002"
	})).Return([]*model.Lead{
		{LeadID: "lead_one", PhoneNumber: "+15550100001"},
		{LeadID: "lead_two", PhoneNumber: "+15550100002"},
	}, []string{}, nil)

	created, skipped, err := service.CreateLeads(context.Background(), batch)

	require.NoError(t, err)
	assert.Len(t, created, 2)
	assert.Len(t, skipped, 2)
	assert.Contains(t, skipped, "+15550100001")
	assert.Contains(t, skipped, "   ")
	mockDS.AssertExpectations(t)
}

func TestCreateLeads_ReportsStoreConflicts(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	batch := []*model.Lead{
		{PhoneNumber: "+15550100001"},
		{PhoneNumber: "+15550100002"},
	}
	mockDS.On("CreateLeads", mock.Anything, mock.Anything).Return(
		[]*model.Lead{{LeadID: "lead_one", PhoneNumber: "+15550100001"}},
		[]string{"+15550100002"},
		nil,
	)

	created, skipped, err := service.CreateLeads(context.Background(), batch)

	require.NoError(t, err)
	assert.Len(t, created, 1)
	assert.Equal(t, []string{"+15550100002"}, skipped)
}

func TestCreateLeads_NothingUsableSkipsStore(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	created, skipped, err := service.CreateLeads(context.Background(), []*model.Lead{
		{PhoneNumber: ""},
		{PhoneNumber: " - "},
	})

	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Len(t, skipped, 2)
	mockDS.AssertNotCalled(t, "CreateLeads", mock.Anything, mock.Anything)
}

func TestIngestLeadsCSV(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	csvContent := "Phone Number,Full Name,Email Address,Company,Deal Size\n" +
		"+1 555-010-0001,Ada Lovelace,ada@example.com,Analytical Engines,12000\n" +
		",No Phone,nobody@example.com,Ghost Co,0\n" +
		"+1 555-010-0002,Grace Hopper,grace@example.com,COBOL Inc,8000\n"

	mockDS.On("CreateLeads", mock.Anything, mock.MatchedBy(func(leads []*model.Lead) bool {
		if len(leads) != 2 {
			return false
		}
		first := leads[0]
		return first.PhoneNumber == "+15550100001" &&
			first.Name == "Ada Lovelace" &&
			first.Email == "ada@example.com" &&
			first.Company == "Analytical Engines" &&
			first.CustomData["deal_size"] == "12000"
	})).Return([]*model.Lead{
		{LeadID: "lead_one", PhoneNumber: "+15550100001"},
		{LeadID: "lead_two", PhoneNumber: "+15550100002"},
	}, []string{}, nil)

	uploadID, created, skipped, err := service.IngestLeadsCSV(context.Background(), strings.NewReader(csvContent), "leads.csv")

	require.NoError(t, err)
	assert.Contains(t, uploadID, "upload_")
	assert.Equal(t, 2, created)
	assert.Equal(t, 1, skipped)
	mockDS.AssertExpectations(t)
}

func TestIngestLeadsCSV_FuzzyHeaderMatch(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	// Misspelled headers still resolve by edit distance.
	csvContent := "phone_numbr,nmae\n+15550100001,Ada\n"

	mockDS.On("CreateLeads", mock.Anything, mock.MatchedBy(func(leads []*model.Lead) bool {
		return len(leads) == 1 && leads[0].PhoneNumber == "+15550100001" && leads[0].Name == "Ada"
	})).Return([]*model.Lead{{LeadID: "lead_one", PhoneNumber: "+15550100001"}}, []string{}, nil)

	_, created, skipped, err := service.IngestLeadsCSV(context.Background(), strings.NewReader(csvContent), "leads.csv")

	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 0, skipped)
}

func TestIngestLeadsCSV_MissingPhoneColumn(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	csvContent := "name,email\nAda,ada@example.com\n"

	_, _, _, err := service.IngestLeadsCSV(context.Background(), strings.NewReader(csvContent), "contacts.csv")

	require.Error(t, err)
	var apiErr apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
	assert.Contains(t, apiErr.Message, "phone_number")
	mockDS.AssertNotCalled(t, "CreateLeads", mock.Anything, mock.Anything)
}

func TestIngestLeadsCSV_RejectsNonCSVUpload(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	_, _, _, err := service.IngestLeadsCSV(context.Background(), strings.NewReader(`{"leads": []}`), "leads.json")

	require.Error(t, err)
	var apiErr apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
	assert.Contains(t, apiErr.Message, "unsupported upload type")
	mockDS.AssertNotCalled(t, "CreateLeads", mock.Anything, mock.Anything)
}

func TestListLeads_NormalizesFilterAndPaging(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	mockDS.On("ListLeads", mock.Anything, "RETRY", 50, 0).Return([]*model.Lead{}, nil)

	_, err := service.ListLeads(context.Background(), " retry ", 0, -3)

	require.NoError(t, err)
	mockDS.AssertExpectations(t)
}

func TestListLeads_RejectsUnknownStatus(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	_, err := service.ListLeads(context.Background(), "SLEEPING", 10, 0)

	require.Error(t, err)
	var apiErr apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
	mockDS.AssertNotCalled(t, "ListLeads", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLeadStats(t *testing.T) {
	service, mockDS, _ := newTestService(t, nil)

	counts := map[string]int64{
		model.StatusNew:       12,
		model.StatusCompleted: 4,
	}
	mockDS.On("CountLeadsByStatus", mock.Anything).Return(counts, nil)

	stats, err := service.LeadStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, counts, stats)
}

func TestConcurrencyStats(t *testing.T) {
	service, _, dispatcher := newTestService(t, nil)

	dispatcher.mockActiveCallCount = func(context.Context) (*voice.Concurrency, error) {
		return &voice.Concurrency{CurrentConcurrency: 3, ConcurrencyLimit: 20}, nil
	}

	stats, err := service.ConcurrencyStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, stats["current_concurrency"])
	assert.Equal(t, 20, stats["provider_limit"])
	// MaxConcurrentCalls falls back to its default when unset.
	assert.Equal(t, 15, stats["max_concurrent_calls"])
}

func TestConcurrencyStats_ProviderUnreachable(t *testing.T) {
	service, _, dispatcher := newTestService(t, nil)

	dispatcher.mockActiveCallCount = func(context.Context) (*voice.Concurrency, error) {
		return nil, errors.New("connection refused")
	}

	_, err := service.ConcurrencyStats(context.Background())

	require.Error(t, err)
	var apiErr apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.ErrServiceUnavailable, apiErr.Code)
}
