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

	"github.com/ringflow/ringflow/internal/voice"
	"github.com/ringflow/ringflow/model"
)

// MockCallDispatcher substitutes the voice provider in tests. Overrides that
// are not set fall back to a canned success so tests only stub what they
// assert on.
type MockCallDispatcher struct {
	mockIssueCall       func(context.Context, *model.Lead) (*voice.CallResponse, error)
	mockActiveCallCount func(context.Context) (*voice.Concurrency, error)
	mockGetCall         func(context.Context, string) (*voice.CallResponse, error)
}

func (m *MockCallDispatcher) IssueCall(ctx context.Context, lead *model.Lead) (*voice.CallResponse, error) {
	if m.mockIssueCall != nil {
		return m.mockIssueCall(ctx, lead)
	}
	return &voice.CallResponse{CallID: "call_" + lead.LeadID, CallStatus: "registered"}, nil
}

func (m *MockCallDispatcher) ActiveCallCount(ctx context.Context) (*voice.Concurrency, error) {
	if m.mockActiveCallCount != nil {
		return m.mockActiveCallCount(ctx)
	}
	return &voice.Concurrency{CurrentConcurrency: 0, ConcurrencyLimit: 20}, nil
}

func (m *MockCallDispatcher) GetCall(ctx context.Context, callID string) (*voice.CallResponse, error) {
	if m.mockGetCall != nil {
		return m.mockGetCall(ctx, callID)
	}
	return &voice.CallResponse{CallID: callID, CallStatus: "ended"}, nil
}
