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
	"sync"
	"time"

	redlock "github.com/ringflow/ringflow/internal/lock"
	"go.opentelemetry.io/otel/trace"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/ringflow/ringflow/config"
	"github.com/ringflow/ringflow/model"
)

var (
	tracer = otel.Tracer("Campaign batch")
)

// batchLockKey guards against overlapping dispatch cycles across processes.
const batchLockKey = "batch:run:lock"

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

// RunBatch executes one dispatch cycle anchored at now. The cycle takes the
// batch lock, checks calling hours, computes the dispatch window, selects the
// lead pool and issues calls with bounded concurrency until the pool is
// drained or the window deadline passes. Policy stops (lock held, outside
// hours, empty pool) are structured results, not errors.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - now time.Time: The instant the cycle is anchored at, normally time.Now().
//
// Returns:
// - *model.BatchRun: The structured result of the cycle.
// - error: An error if selection or an infrastructure step fails.
func (r *Ringflow) RunBatch(ctx context.Context, now time.Time) (*model.BatchRun, error) {
	ctx, span := tracer.Start(ctx, "Running dispatch batch")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	batchID := model.GenerateUUIDWithSuffix("batch")
	now = now.In(cfg.Campaign.Location())

	lockTTL := time.Duration(cfg.Campaign.IntervalMinutes) * time.Minute
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	locker := redlock.NewLocker(r.redis, batchLockKey, batchID)
	acquired, err := locker.TryLock(ctx, lockTTL)
	if err != nil {
		return nil, logAndRecordError(span, "acquiring batch lock failed: ", err)
	}
	if !acquired {
		logrus.Infof("Batch %s skipped: another batch holds the lock", batchID)
		return &model.BatchRun{BatchID: batchID, Status: model.BatchSkipped, Reason: model.ReasonBatchAlreadyRunning}, nil
	}
	defer func() {
		// Best effort; the TTL covers a crashed process.
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.Errorf("Error releasing batch lock: %v", err)
		}
	}()

	if !InCallingHours(now, cfg.Campaign.CallingHours) {
		logrus.Infof("Batch %s skipped: %s is outside calling hours", batchID, now.Format("15:04 MST"))
		return &model.BatchRun{BatchID: batchID, Status: model.BatchSkipped, Reason: model.ReasonOutsideCallingHours}, nil
	}

	windowStart, windowEnd := CallWindow(now, cfg.Campaign.IntervalMinutes)

	pool, err := r.SelectLeads(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, logAndRecordError(span, "selecting leads failed: ", err)
	}
	if len(pool) == 0 {
		logrus.Infof("Batch %s completed: no leads due in window starting %s", batchID, windowStart.Format("15:04"))
		return &model.BatchRun{
			BatchID:     batchID,
			Status:      model.BatchCompleted,
			Reason:      model.ReasonNoLeads,
			WindowStart: windowStart,
			WindowEnd:   windowEnd,
		}, nil
	}

	initiated := r.dispatchCalls(ctx, batchID, pool, windowEnd, cfg)

	run := &model.BatchRun{
		BatchID:        batchID,
		Status:         model.BatchCompleted,
		CallsInitiated: initiated,
		PoolSize:       len(pool),
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
	}
	logrus.Infof("Batch %s completed: %d of %d leads dispatched", batchID, initiated, len(pool))
	if err := SendWebhook(NewWebhook{Event: "batch.completed", Payload: run}); err != nil {
		logrus.Error(err)
	}
	return run, nil
}

// dispatchCalls admits leads from the pool one at a time, holding at most
// maxConcurrent issuance requests in flight. The deadline gates admissions
// only: calls already issued run to completion. Returns the number of leads
// admitted, counted at the CALLING write.
func (r *Ringflow) dispatchCalls(ctx context.Context, batchID string, pool []*model.Lead, deadline time.Time, cfg *config.Configuration) int {
	maxConcurrent := cfg.Campaign.MaxConcurrentCalls
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	pacing := time.Duration(cfg.Campaign.PacingDelayMs) * time.Millisecond

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	initiated := 0

admission:
	for _, lead := range pool {
		if !time.Now().Before(deadline) {
			logrus.Infof("Batch %s reached the window deadline after %d admissions", batchID, initiated)
			break
		}

		// At capacity this blocks until an in-flight call completes. The wait
		// can eat the rest of the window, so the deadline is checked again on
		// the other side.
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			logrus.Infof("Batch %s cancelled after %d admissions", batchID, initiated)
			break admission
		}
		if !time.Now().Before(deadline) {
			<-sem
			logrus.Infof("Batch %s reached the window deadline after %d admissions", batchID, initiated)
			break
		}

		// The pool is a snapshot; an outcome webhook may have moved the lead
		// since selection.
		fresh, err := r.datasource.GetLeadByID(ctx, lead.LeadID)
		if err != nil {
			<-sem
			logrus.Errorf("Error refreshing lead %s before dispatch: %v", lead.LeadID, err)
			continue
		}
		if !model.IsCallable(fresh.CallStatus) {
			<-sem
			logrus.Warnf("Skipping lead %s: status moved to %s after selection", lead.LeadID, fresh.CallStatus)
			continue
		}

		if err := r.datasource.UpdateLeadStatus(ctx, lead.LeadID, model.StatusCalling); err != nil {
			<-sem
			logrus.Errorf("Error marking lead %s CALLING: %v", lead.LeadID, err)
			continue
		}
		r.notifyLeadStatus(lead, model.StatusCalling)
		initiated++

		wg.Add(1)
		go func(lead *model.Lead) {
			defer wg.Done()
			defer func() { <-sem }()
			r.issueCall(ctx, lead)
		}(lead)

		if pacing > 0 {
			time.Sleep(pacing)
		}
	}

	wg.Wait()
	return initiated
}

// issueCall places the provider call for an admitted lead. A failed issuance
// converts to that lead's FAILED transition and never aborts the batch.
func (r *Ringflow) issueCall(ctx context.Context, lead *model.Lead) {
	resp, err := r.voice.IssueCall(ctx, lead)
	if err != nil {
		logrus.Errorf("Error issuing call for lead %s: %v", lead.LeadID, err)
		if err := r.datasource.UpdateLeadStatus(ctx, lead.LeadID, model.StatusFailed); err != nil {
			logrus.Errorf("Error marking lead %s FAILED after issuance failure: %v", lead.LeadID, err)
			return
		}
		r.notifyLeadStatus(lead, model.StatusFailed)
		return
	}
	if err := r.datasource.RecordCallDispatch(ctx, lead.LeadID, resp.CallID); err != nil {
		logrus.Errorf("Error recording call reference %s for lead %s: %v", resp.CallID, lead.LeadID, err)
	}
}
