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

package database

import (
	"context"
	"time"

	"github.com/ringflow/ringflow/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	lead     // Interface for lead record operations
	callFlow // Interface for dispatch and outcome operations
}

// lead defines methods for creating and reading lead records.
type lead interface {
	CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error)                  // Creates a new lead
	CreateLeads(ctx context.Context, leads []*model.Lead) ([]*model.Lead, []string, error)  // Creates leads in bulk, returning skipped phone numbers
	GetLeadByID(ctx context.Context, id string) (*model.Lead, error)                        // Retrieves a lead by ID
	GetLeadByPhone(ctx context.Context, phoneNumber string) (*model.Lead, error)            // Retrieves a lead by phone number
	ListLeads(ctx context.Context, status string, limit, offset int) ([]*model.Lead, error) // Retrieves leads, optionally filtered by status
	GetAllLeadsPaginated(ctx context.Context, limit, offset int) ([]*model.Lead, error)     // Retrieves leads in a paginated manner for reindexing
	CountLeadsByStatus(ctx context.Context) (map[string]int64, error)                       // Counts leads grouped by call status
}

// callFlow defines methods the dispatcher and outcome resolver drive.
type callFlow interface {
	UpdateLeadStatus(ctx context.Context, leadID, status string) error                                                  // Updates the call status of a lead
	RecordCallDispatch(ctx context.Context, leadID, callReference string) error                                         // Records the provider call reference after a call is issued
	MoveLeadToRetry(ctx context.Context, leadID string, retryDate time.Time) error                                      // Moves a lead to RETRY and increments its retry counter
	MoveLeadToCallback(ctx context.Context, leadID string, callbackTime time.Time) error                                // Moves a lead to CALLBACK with the requested time
	SaveCallOutcome(ctx context.Context, leadID string, postCallData *model.PostCallData, lastCallTime time.Time) error // Persists the raw outcome payload before any transition
	GetCurrentWindowCallbacks(ctx context.Context, windowStart, windowEnd time.Time, limit int) ([]*model.Lead, error)  // Callbacks scheduled inside the current window
	GetMissedCallbacks(ctx context.Context, windowStart time.Time, limit int) ([]*model.Lead, error)                    // Callbacks scheduled before the current window
	GetRetriesDueToday(ctx context.Context, dayStart, dayEnd time.Time, limit int) ([]*model.Lead, error)               // Retries whose retry date falls on the current calendar day
	GetNewLeads(ctx context.Context, limit int) ([]*model.Lead, error)                                                  // Leads never called, oldest first
	GetStaleCallingLeads(ctx context.Context, olderThan time.Time) ([]*model.Lead, error)                               // Leads stuck in CALLING past the staleness cutoff
}
