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
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/ringflow/ringflow/internal/apierror"
	"github.com/ringflow/ringflow/model"
)

const leadCacheTTL = 5 * time.Minute

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanLeadRow scans one lead row in the canonical column order: lead_id,
// phone_number, name, email, company, custom_data, call_status,
// number_of_retries, last_call_time, callback_time, retry_date,
// call_reference, post_call_data, created_at, updated_at.
func scanLeadRow(sc scanner) (*model.Lead, error) {
	lead := model.Lead{}
	var name, email, company, callReference sql.NullString
	var lastCallTime, callbackTime, retryDate sql.NullTime
	var customDataJSON, postCallJSON []byte

	err := sc.Scan(
		&lead.LeadID,
		&lead.PhoneNumber,
		&name,
		&email,
		&company,
		&customDataJSON,
		&lead.CallStatus,
		&lead.NumberOfRetries,
		&lastCallTime,
		&callbackTime,
		&retryDate,
		&callReference,
		&postCallJSON,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	lead.Name = name.String
	lead.Email = email.String
	lead.Company = company.String
	lead.CallReference = callReference.String
	if lastCallTime.Valid {
		lead.LastCallTime = &lastCallTime.Time
	}
	if callbackTime.Valid {
		lead.CallbackTime = &callbackTime.Time
	}
	if retryDate.Valid {
		lead.RetryDate = &retryDate.Time
	}
	if len(customDataJSON) > 0 {
		if err := json.Unmarshal(customDataJSON, &lead.CustomData); err != nil {
			return nil, err
		}
	}
	if len(postCallJSON) > 0 {
		if err := json.Unmarshal(postCallJSON, &lead.PostCallData); err != nil {
			return nil, err
		}
	}

	return &lead, nil
}

// collectLeads drains rows into a slice. Rows that fail to scan or decode are
// logged and skipped so a single malformed record cannot empty a selection
// tier.
func collectLeads(rows *sql.Rows) ([]*model.Lead, error) {
	defer rows.Close()

	leads := []*model.Lead{}
	for rows.Next() {
		lead, err := scanLeadRow(rows)
		if err != nil {
			logrus.Warnf("skipping malformed lead row: %v", err)
			continue
		}
		leads = append(leads, lead)
	}

	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over leads", err)
	}

	return leads, nil
}

func (d Datasource) invalidateLeadCache(ctx context.Context, leadID string) {
	if err := d.Cache.Delete(ctx, fmt.Sprintf("leads:%s", leadID)); err != nil {
		log.Printf("Failed to invalidate lead cache: %v", err)
	}
}

func (d Datasource) CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	customDataJSON, err := json.Marshal(lead.CustomData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal custom data", err)
	}

	lead.LeadID = model.GenerateUUIDWithSuffix("lead")
	lead.CreatedAt = time.Now()

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO ringflow.leads (lead_id, phone_number, name, email, company, custom_data, call_status, number_of_retries, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, lead.LeadID, lead.PhoneNumber, lead.Name, lead.Email, lead.Company, customDataJSON, lead.CallStatus, lead.NumberOfRetries, lead.CreatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return nil, apierror.NewAPIError(apierror.ErrConflict, "Lead with this phone number already exists", err)
			default:
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create lead", err)
	}

	return lead, nil
}

// CreateLeads inserts leads in a single transaction. Phone numbers already
// present (in the table or earlier in the batch) are skipped, not errors, and
// reported back to the caller.
func (d Datasource) CreateLeads(ctx context.Context, leads []*model.Lead) ([]*model.Lead, []string, error) {
	ctx, span := otel.Tracer("Lead").Start(ctx, "Saving lead batch to db")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	created := []*model.Lead{}
	skipped := []string{}

	for _, lead := range leads {
		customDataJSON, err := json.Marshal(lead.CustomData)
		if err != nil {
			return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal custom data", err)
		}

		lead.LeadID = model.GenerateUUIDWithSuffix("lead")
		lead.CreatedAt = time.Now()

		result, err := tx.ExecContext(ctx, `
			INSERT INTO ringflow.leads (lead_id, phone_number, name, email, company, custom_data, call_status, number_of_retries, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (phone_number) DO NOTHING
		`, lead.LeadID, lead.PhoneNumber, lead.Name, lead.Email, lead.Company, customDataJSON, lead.CallStatus, lead.NumberOfRetries, lead.CreatedAt)
		if err != nil {
			return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create lead", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
		}
		if rowsAffected == 0 {
			skipped = append(skipped, lead.PhoneNumber)
			continue
		}

		created = append(created, lead)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}

	return created, skipped, nil
}

func (d Datasource) GetLeadByID(ctx context.Context, id string) (*model.Lead, error) {
	cacheKey := fmt.Sprintf("leads:%s", id)

	var cached model.Lead
	if err := d.Cache.Get(ctx, cacheKey, &cached); err == nil && cached.LeadID != "" {
		return &cached, nil
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT lead_id, phone_number, name, email, company, custom_data, call_status, number_of_retries, last_call_time, callback_time, retry_date, call_reference, post_call_data, created_at, updated_at
		FROM ringflow.leads
		WHERE lead_id = $1
	`, id)

	lead, err := scanLeadRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Lead with ID '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve lead", err)
	}

	if err := d.Cache.Set(ctx, cacheKey, lead, leadCacheTTL); err != nil {
		log.Printf("Failed to cache lead: %v", err)
	}

	return lead, nil
}

func (d Datasource) GetLeadByPhone(ctx context.Context, phoneNumber string) (*model.Lead, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT lead_id, phone_number, name, email, company, custom_data, call_status, number_of_retries, last_call_time, callback_time, retry_date, call_reference, post_call_data, created_at, updated_at
		FROM ringflow.leads
		WHERE phone_number = $1
	`, phoneNumber)

	lead, err := scanLeadRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Lead with phone number '%s' not found", phoneNumber), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve lead", err)
	}

	return lead, nil
}

func (d Datasource) ListLeads(ctx context.Context, status string, limit, offset int) ([]*model.Lead, error) {
	var rows *sql.Rows
	var err error

	if status != "" {
		rows, err = d.Conn.QueryContext(ctx, `
			SELECT lead_id, phone_number, name, email, company, custom_data, call_status, number_of_retries, last_call_time, callback_time, retry_date, call_reference, post_call_data, created_at, updated_at
			FROM ringflow.leads
			WHERE call_status = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`, status, limit, offset)
	} else {
		rows, err = d.Conn.QueryContext(ctx, `
			SELECT lead_id, phone_number, name, email, company, custom_data, call_status, number_of_retries, last_call_time, callback_time, retry_date, call_reference, post_call_data, created_at, updated_at
			FROM ringflow.leads
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`, limit, offset)
	}
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve leads", err)
	}

	return collectLeads(rows)
}

// GetAllLeadsPaginated feeds reindexing. Pages are cached briefly because a
// reindex walks the whole table while normal traffic continues.
func (d Datasource) GetAllLeadsPaginated(ctx context.Context, limit, offset int) ([]*model.Lead, error) {
	cacheKey := fmt.Sprintf("leads:paginated:%d:%d", limit, offset)

	var leads []*model.Lead
	err := d.Cache.Get(ctx, cacheKey, &leads)
	if err == nil && len(leads) > 0 {
		return leads, nil
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT lead_id, phone_number, name, email, company, custom_data, call_status, number_of_retries, last_call_time, callback_time, retry_date, call_reference, post_call_data, created_at, updated_at
		FROM ringflow.leads
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve paginated leads", err)
	}

	leads, err = collectLeads(rows)
	if err != nil {
		return nil, err
	}

	if len(leads) > 0 {
		if err := d.Cache.Set(ctx, cacheKey, leads, leadCacheTTL); err != nil {
			log.Printf("Failed to cache leads: %v", err)
		}
	}

	return leads, nil
}

func (d Datasource) CountLeadsByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT call_status, COUNT(*)
		FROM ringflow.leads
		GROUP BY call_status
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count leads", err)
	}
	defer rows.Close()

	counts := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan lead counts", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over lead counts", err)
	}

	return counts, nil
}

func (d Datasource) UpdateLeadStatus(ctx context.Context, leadID, status string) error {
	ctx, span := otel.Tracer("Lead").Start(ctx, "Updating lead status")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ringflow.leads
		SET call_status = $2, updated_at = NOW()
		WHERE lead_id = $1
	`, leadID, status)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update lead status", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Lead with ID '%s' not found", leadID), sql.ErrNoRows)
	}

	d.invalidateLeadCache(ctx, leadID)
	return nil
}

// RecordCallDispatch stores the provider call reference and stamps
// last_call_time once a call has been issued for the lead.
func (d Datasource) RecordCallDispatch(ctx context.Context, leadID, callReference string) error {
	ctx, span := otel.Tracer("Lead").Start(ctx, "Recording call dispatch")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ringflow.leads
		SET call_reference = $2, last_call_time = NOW(), updated_at = NOW()
		WHERE lead_id = $1
	`, leadID, callReference)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record call dispatch", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Lead with ID '%s' not found", leadID), sql.ErrNoRows)
	}

	d.invalidateLeadCache(ctx, leadID)
	return nil
}

// MoveLeadToRetry is the only place the retry counter moves.
func (d Datasource) MoveLeadToRetry(ctx context.Context, leadID string, retryDate time.Time) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ringflow.leads
		SET call_status = 'RETRY', number_of_retries = number_of_retries + 1, retry_date = $2, callback_time = NULL, updated_at = NOW()
		WHERE lead_id = $1
	`, leadID, retryDate)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to move lead to retry", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Lead with ID '%s' not found", leadID), sql.ErrNoRows)
	}

	d.invalidateLeadCache(ctx, leadID)
	return nil
}

func (d Datasource) MoveLeadToCallback(ctx context.Context, leadID string, callbackTime time.Time) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ringflow.leads
		SET call_status = 'CALLBACK', callback_time = $2, retry_date = NULL, updated_at = NOW()
		WHERE lead_id = $1
	`, leadID, callbackTime)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to move lead to callback", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Lead with ID '%s' not found", leadID), sql.ErrNoRows)
	}

	d.invalidateLeadCache(ctx, leadID)
	return nil
}

// SaveCallOutcome persists the raw outcome payload and last call time. It
// runs before the outcome transition so the record survives even if the
// transition itself fails.
func (d Datasource) SaveCallOutcome(ctx context.Context, leadID string, postCallData *model.PostCallData, lastCallTime time.Time) error {
	ctx, span := otel.Tracer("Lead").Start(ctx, "Saving call outcome to db")
	defer span.End()

	postCallJSON, err := json.Marshal(postCallData)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal post call data", err)
	}

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE ringflow.leads
		SET post_call_data = $2, last_call_time = $3, updated_at = NOW()
		WHERE lead_id = $1
	`, leadID, postCallJSON, lastCallTime)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to save call outcome", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Lead with ID '%s' not found", leadID), sql.ErrNoRows)
	}

	d.invalidateLeadCache(ctx, leadID)
	return nil
}

// GetCurrentWindowCallbacks returns CALLBACK leads whose callback time falls
// inside [windowStart, windowEnd), earliest callback first.
func (d Datasource) GetCurrentWindowCallbacks(ctx context.Context, windowStart, windowEnd time.Time, limit int) ([]*model.Lead, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT lead_id, phone_number, name, email, company, custom_data, call_status, number_of_retries, last_call_time, callback_time, retry_date, call_reference, post_call_data, created_at, updated_at
		FROM ringflow.leads
		WHERE call_status = 'CALLBACK'
		AND callback_time >= $1 AND callback_time < $2
		ORDER BY callback_time ASC
		LIMIT $3
	`, windowStart, windowEnd, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve current window callbacks", err)
	}

	return collectLeads(rows)
}

// GetMissedCallbacks returns CALLBACK leads whose callback time passed before
// the current window opened.
func (d Datasource) GetMissedCallbacks(ctx context.Context, windowStart time.Time, limit int) ([]*model.Lead, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT lead_id, phone_number, name, email, company, custom_data, call_status, number_of_retries, last_call_time, callback_time, retry_date, call_reference, post_call_data, created_at, updated_at
		FROM ringflow.leads
		WHERE call_status = 'CALLBACK'
		AND callback_time < $1
		ORDER BY callback_time ASC
		LIMIT $2
	`, windowStart, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve missed callbacks", err)
	}

	return collectLeads(rows)
}

// GetRetriesDueToday returns RETRY leads whose retry date falls inside the
// caller-computed local calendar day [dayStart, dayEnd).
func (d Datasource) GetRetriesDueToday(ctx context.Context, dayStart, dayEnd time.Time, limit int) ([]*model.Lead, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT lead_id, phone_number, name, email, company, custom_data, call_status, number_of_retries, last_call_time, callback_time, retry_date, call_reference, post_call_data, created_at, updated_at
		FROM ringflow.leads
		WHERE call_status = 'RETRY'
		AND retry_date >= $1 AND retry_date < $2
		ORDER BY retry_date ASC
		LIMIT $3
	`, dayStart, dayEnd, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve retries due today", err)
	}

	return collectLeads(rows)
}

func (d Datasource) GetNewLeads(ctx context.Context, limit int) ([]*model.Lead, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT lead_id, phone_number, name, email, company, custom_data, call_status, number_of_retries, last_call_time, callback_time, retry_date, call_reference, post_call_data, created_at, updated_at
		FROM ringflow.leads
		WHERE call_status = 'NEW'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve new leads", err)
	}

	return collectLeads(rows)
}

// GetStaleCallingLeads returns leads stuck in CALLING since before olderThan.
// A lead that crashed between the CALLING write and the dispatch record has
// no last_call_time, so updated_at covers that gap.
func (d Datasource) GetStaleCallingLeads(ctx context.Context, olderThan time.Time) ([]*model.Lead, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT lead_id, phone_number, name, email, company, custom_data, call_status, number_of_retries, last_call_time, callback_time, retry_date, call_reference, post_call_data, created_at, updated_at
		FROM ringflow.leads
		WHERE call_status = 'CALLING'
		AND (last_call_time < $1 OR (last_call_time IS NULL AND updated_at < $1))
		ORDER BY updated_at ASC
	`, olderThan)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve stale calling leads", err)
	}

	return collectLeads(rows)
}
