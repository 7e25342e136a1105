package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCreateLead(t *testing.T) {
	tests := []struct {
		name    string
		lead    CreateLead
		wantErr bool
	}{
		{
			name:    "Valid lead",
			lead:    CreateLead{PhoneNumber: "+1 (555) 010-0001", Name: "Ada Park", Email: "ada@example.com"},
			wantErr: false,
		},
		{
			name:    "Phone only",
			lead:    CreateLead{PhoneNumber: "5550100002"},
			wantErr: false,
		},
		{
			name:    "Missing phone",
			lead:    CreateLead{Name: "No Phone"},
			wantErr: true,
		},
		{
			name:    "Phone without digits",
			lead:    CreateLead{PhoneNumber: "call me maybe"},
			wantErr: true,
		},
		{
			name:    "Bad email",
			lead:    CreateLead{PhoneNumber: "+15550100003", Email: "not-an-email"},
			wantErr: true,
		},
		{
			name:    "Empty email is fine",
			lead:    CreateLead{PhoneNumber: "+15550100004", Email: ""},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lead.ValidateCreateLead()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCreateLeadsBatch(t *testing.T) {
	tests := []struct {
		name    string
		batch   CreateLeadsBatch
		wantErr bool
	}{
		{
			name:    "Valid batch",
			batch:   CreateLeadsBatch{Leads: []CreateLead{{PhoneNumber: "+15550100001"}}},
			wantErr: false,
		},
		{
			name:    "Empty batch",
			batch:   CreateLeadsBatch{},
			wantErr: true,
		},
		{
			// Row-level problems are skipped by the store, not rejected here.
			name:    "Unusable row passes the envelope check",
			batch:   CreateLeadsBatch{Leads: []CreateLead{{Name: "no phone"}}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.batch.ValidateCreateLeadsBatch()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestToLead(t *testing.T) {
	req := CreateLead{
		PhoneNumber: "+15550100001",
		Name:        "Ada Park",
		Email:       "ada@example.com",
		Company:     "Acme",
		CustomData:  map[string]interface{}{"deal_size": "12000"},
	}

	lead := req.ToLead()

	assert.Equal(t, req.PhoneNumber, lead.PhoneNumber)
	assert.Equal(t, req.Name, lead.Name)
	assert.Equal(t, req.Email, lead.Email)
	assert.Equal(t, req.Company, lead.Company)
	assert.Equal(t, req.CustomData, lead.CustomData)
	assert.Empty(t, lead.LeadID, "ids are assigned by the store")
	assert.Empty(t, lead.CallStatus, "status is assigned by the service")
}

func TestToLeads(t *testing.T) {
	batch := CreateLeadsBatch{Leads: []CreateLead{
		{PhoneNumber: "+15550100001"},
		{PhoneNumber: "+15550100002"},
	}}

	leads := batch.ToLeads()

	assert.Len(t, leads, 2)
	assert.Equal(t, "+15550100001", leads[0].PhoneNumber)
	assert.Equal(t, "+15550100002", leads[1].PhoneNumber)
}
