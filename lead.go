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
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/ringflow/ringflow/config"
	"github.com/ringflow/ringflow/internal/apierror"
	"github.com/ringflow/ringflow/model"
)

// leadColumnAliases maps normalized CSV headers to the canonical lead
// columns. Headers not listed here get a fuzzy pass before landing in
// custom_data.
var leadColumnAliases = map[string]string{
	"phone_number":   "phone_number",
	"phone":          "phone_number",
	"phone_no":       "phone_number",
	"mobile":         "phone_number",
	"mobile_number":  "phone_number",
	"contact_number": "phone_number",
	"number":         "phone_number",
	"name":           "name",
	"full_name":      "name",
	"customer_name":  "name",
	"contact_name":   "name",
	"lead_name":      "name",
	"email":          "email",
	"email_address":  "email",
	"email_id":       "email",
	"mail":           "email",
	"company":        "company",
	"company_name":   "company",
	"organization":   "company",
	"organisation":   "company",
	"employer":       "company",
}

var canonicalLeadColumns = []string{"phone_number", "name", "email", "company"}

// CreateLead validates and stores a single lead. The phone number is
// normalized before insert and must be unique across the pool.
func (r *Ringflow) CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	ctx, span := tracer.Start(ctx, "Creating lead")
	defer span.End()

	lead.PhoneNumber = model.NormalizePhone(lead.PhoneNumber)
	if lead.PhoneNumber == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "phone_number is required", nil)
	}
	lead.CallStatus = model.StatusNew

	created, err := r.datasource.CreateLead(ctx, lead)
	if err != nil {
		return nil, logAndRecordError(span, "creating lead failed: ", err)
	}

	if err := r.queue.queueIndexData(created.LeadID, "leads", created); err != nil {
		logrus.Error(err)
	}
	return created, nil
}

// CreateLeads stores a batch of leads in one transaction. Rows without a
// usable phone number, in-batch duplicates and phone numbers already in the
// pool are reported back as skipped rather than failing the batch.
//
// Returns:
// - []*model.Lead: The leads that were created.
// - []string: The phone numbers (raw for unusable rows) that were skipped.
// - error: An error if the batch insert fails.
func (r *Ringflow) CreateLeads(ctx context.Context, leads []*model.Lead) ([]*model.Lead, []string, error) {
	ctx, span := tracer.Start(ctx, "Creating leads in bulk")
	defer span.End()

	unique := make([]*model.Lead, 0, len(leads))
	seen := make(map[string]struct{}, len(leads))
	var skipped []string
	for _, lead := range leads {
		raw := lead.PhoneNumber
		lead.PhoneNumber = model.NormalizePhone(raw)
		if lead.PhoneNumber == "" {
			skipped = append(skipped, raw)
			continue
		}
		if _, dup := seen[lead.PhoneNumber]; dup {
			skipped = append(skipped, lead.PhoneNumber)
			continue
		}
		seen[lead.PhoneNumber] = struct{}{}
		lead.CallStatus = model.StatusNew
		unique = append(unique, lead)
	}
	if len(unique) == 0 {
		return nil, skipped, nil
	}

	created, conflicted, err := r.datasource.CreateLeads(ctx, unique)
	if err != nil {
		return nil, nil, logAndRecordError(span, "bulk lead insert failed: ", err)
	}
	skipped = append(skipped, conflicted...)

	for _, lead := range created {
		if err := r.queue.queueIndexData(lead.LeadID, "leads", lead); err != nil {
			logrus.Error(err)
		}
	}
	return created, skipped, nil
}

// GetLead retrieves a single lead by its ID.
func (r *Ringflow) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	return r.datasource.GetLeadByID(ctx, id)
}

// GetLeadByPhone retrieves a single lead by its normalized phone number.
func (r *Ringflow) GetLeadByPhone(ctx context.Context, phoneNumber string) (*model.Lead, error) {
	return r.datasource.GetLeadByPhone(ctx, model.NormalizePhone(phoneNumber))
}

// ListLeads pages through the pool, optionally filtered by call status.
func (r *Ringflow) ListLeads(ctx context.Context, status string, limit, offset int) ([]*model.Lead, error) {
	if status != "" {
		status = strings.ToUpper(strings.TrimSpace(status))
		if !model.ValidStatus(status) {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown call status '%s'", status), nil)
		}
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return r.datasource.ListLeads(ctx, status, limit, offset)
}

// LeadStats returns lead counts grouped by call status.
func (r *Ringflow) LeadStats(ctx context.Context) (map[string]int64, error) {
	return r.datasource.CountLeadsByStatus(ctx)
}

// ConcurrencyStats reports the provider's in-flight call count next to the
// configured admission ceiling. Diagnostics only; the dispatcher never
// consults the provider for admission control.
func (r *Ringflow) ConcurrencyStats(ctx context.Context) (map[string]interface{}, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	concurrency, err := r.voice.ActiveCallCount(ctx)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrServiceUnavailable, "voice provider unreachable", err)
	}
	return map[string]interface{}{
		"current_concurrency":  concurrency.CurrentConcurrency,
		"provider_limit":       concurrency.ConcurrencyLimit,
		"max_concurrent_calls": cfg.Campaign.MaxConcurrentCalls,
	}, nil
}

// notifyLeadStatus fans a status change out to the lifecycle webhook and the
// search index. Both are best effort: delivery problems are logged, never
// propagated into the call flow.
func (r *Ringflow) notifyLeadStatus(lead *model.Lead, status string) {
	lead.CallStatus = status
	if err := SendWebhook(NewWebhook{Event: getEventFromStatus(status), Payload: lead}); err != nil {
		logrus.Error(err)
	}
	if err := r.queue.queueIndexData(lead.LeadID, "leads", lead); err != nil {
		logrus.Error(err)
	}
}

// IngestLeadsCSV ingests an uploaded file of leads. The upload is staged to a
// temporary file, sniffed to confirm it is CSV, then parsed with fuzzy header
// mapping and bulk-inserted.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - reader io.Reader: The uploaded file contents.
// - filename string: The original filename, used for type detection.
//
// Returns:
// - string: The ID assigned to this upload.
// - int: The number of leads created.
// - int: The number of rows skipped.
// - error: An error if staging, detection or parsing fails.
func (r *Ringflow) IngestLeadsCSV(ctx context.Context, reader io.Reader, filename string) (string, int, int, error) {
	ctx, span := tracer.Start(ctx, "Ingesting leads CSV")
	defer span.End()

	uploadID := model.GenerateUUIDWithSuffix("upload")

	tempFile, err := r.createAndPopulateTempFile(filename, reader)
	if err != nil {
		return "", 0, 0, err
	}
	defer r.cleanupTempFile(tempFile)

	fileType, err := r.detectFileTypeFromTempFile(tempFile, filename)
	if err != nil {
		return "", 0, 0, err
	}
	if fileType != "text/csv" && fileType != "text/csv; charset=utf-8" {
		return "", 0, 0, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unsupported upload type %s, expected CSV", fileType), nil)
	}

	created, skipped, err := r.parseAndStoreLeadsCSV(ctx, uploadID, tempFile)
	if err != nil {
		return "", 0, 0, logAndRecordError(span, fmt.Sprintf("upload %s failed: ", uploadID), err)
	}

	logrus.Infof("Upload %s ingested %d leads, skipped %d rows", uploadID, created, skipped)
	return uploadID, created, skipped, nil
}

// parseAndStoreLeadsCSV reads the staged CSV, maps its header row onto the
// canonical lead columns and bulk-inserts the parsed rows.
func (r *Ringflow) parseAndStoreLeadsCSV(ctx context.Context, uploadID string, reader io.Reader) (int, int, error) {
	csvReader := csv.NewReader(bufio.NewReader(reader))

	headers, err := csvReader.Read()
	if err != nil {
		return 0, 0, fmt.Errorf("error reading CSV headers: %w", err)
	}
	columnMap, err := createLeadColumnMap(headers)
	if err != nil {
		return 0, 0, err
	}

	var leads []*model.Lead
	skipped := 0
	rowNum := 1 // Row number starts at 1 to account for the header row.

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			logrus.Warnf("Upload %s: skipping malformed row %d: %v", uploadID, rowNum, err)
			skipped++
			continue
		}

		lead, ok := leadFromRecord(record, columnMap)
		if !ok {
			skipped++
			continue
		}
		leads = append(leads, lead)

		// Check for context cancellation every 1000 rows.
		if rowNum%1000 == 0 {
			select {
			case <-ctx.Done():
				return 0, 0, ctx.Err()
			default:
			}
		}
	}

	created, conflicted, err := r.CreateLeads(ctx, leads)
	if err != nil {
		return 0, 0, err
	}
	return len(created), skipped + len(conflicted), nil
}

// leadColumnMap associates canonical lead columns and passthrough custom
// columns with their field indices in the CSV.
type leadColumnMap struct {
	canonical map[string]int
	custom    map[string]int
}

// createLeadColumnMap resolves the header row. Each header is normalized,
// matched against the alias table, then fuzzily against the canonical
// columns; anything left over is carried into custom_data under its
// normalized name. A phone number column must resolve or the upload is
// rejected.
func createLeadColumnMap(headers []string) (*leadColumnMap, error) {
	columnMap := &leadColumnMap{
		canonical: make(map[string]int),
		custom:    make(map[string]int),
	}

	for i, header := range headers {
		normalized := normalizeHeader(header)
		if normalized == "" {
			continue
		}
		canonical, ok := resolveLeadColumn(normalized)
		if ok {
			// First matching column wins; a second one stays custom.
			if _, exists := columnMap.canonical[canonical]; !exists {
				columnMap.canonical[canonical] = i
				continue
			}
		}
		columnMap.custom[normalized] = i
	}

	if _, ok := columnMap.canonical["phone_number"]; !ok {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "required column 'phone_number' not found in CSV", nil)
	}
	return columnMap, nil
}

func normalizeHeader(header string) string {
	normalized := strings.ToLower(strings.TrimSpace(header))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return normalized
}

// resolveLeadColumn maps a normalized header to a canonical column, first by
// the alias table, then by edit distance for near-miss spellings such as
// "phone_numbr".
func resolveLeadColumn(normalized string) (string, bool) {
	if canonical, ok := leadColumnAliases[normalized]; ok {
		return canonical, true
	}
	for _, canonical := range canonicalLeadColumns {
		distance := levenshtein.DistanceForStrings([]rune(normalized), []rune(canonical), levenshtein.DefaultOptions)
		if distance <= 2 {
			return canonical, true
		}
	}
	return "", false
}

// leadFromRecord builds a lead from one CSV row. Rows without a usable phone
// number are rejected; every non-canonical column with a value rides along in
// custom_data.
func leadFromRecord(record []string, columnMap *leadColumnMap) (*model.Lead, bool) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	phone := model.NormalizePhone(field(columnMap.canonical["phone_number"]))
	if phone == "" {
		return nil, false
	}

	lead := &model.Lead{PhoneNumber: phone}
	if idx, ok := columnMap.canonical["name"]; ok {
		lead.Name = field(idx)
	}
	if idx, ok := columnMap.canonical["email"]; ok {
		lead.Email = field(idx)
	}
	if idx, ok := columnMap.canonical["company"]; ok {
		lead.Company = field(idx)
	}

	customData := make(map[string]interface{})
	for header, idx := range columnMap.custom {
		if value := field(idx); value != "" {
			customData[header] = value
		}
	}
	if len(customData) > 0 {
		lead.CustomData = customData
	}
	return lead, true
}
