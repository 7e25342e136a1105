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

package model

import "time"

// Batch run statuses and skip reasons.
const (
	BatchCompleted = "completed"
	BatchSkipped   = "skipped"

	ReasonOutsideCallingHours = "outside_calling_hours"
	ReasonNoLeads             = "no_leads"
	ReasonBatchAlreadyRunning = "batch_already_running"
)

// BatchRun is the structured result of one dispatch cycle. Batches always
// return a BatchRun rather than raising past their own boundary.
type BatchRun struct {
	BatchID        string    `json:"batch_id"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	CallsInitiated int       `json:"calls_initiated"`
	PoolSize       int       `json:"pool_size"`
	WindowStart    time.Time `json:"window_start,omitempty"`
	WindowEnd      time.Time `json:"window_end,omitempty"`
}
