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

package voice

import (
	"context"
	"fmt"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/ringflow/ringflow/config"
	"github.com/ringflow/ringflow/internal/request"
	"github.com/ringflow/ringflow/model"
)

// CallDispatcher is the surface the campaign engine depends on for placing
// calls. The production implementation talks to the voice provider's HTTP
// API; tests substitute their own.
type CallDispatcher interface {
	IssueCall(ctx context.Context, lead *model.Lead) (*CallResponse, error)
	ActiveCallCount(ctx context.Context) (*Concurrency, error)
	GetCall(ctx context.Context, callID string) (*CallResponse, error)
}

// CallResponse is the provider's view of a single call.
type CallResponse struct {
	CallID     string `json:"call_id"`
	AgentID    string `json:"agent_id,omitempty"`
	CallStatus string `json:"call_status,omitempty"`
}

// Concurrency reports how many calls the provider currently has in flight
// against the account limit. Used for diagnostics, never for admission
// control.
type Concurrency struct {
	CurrentConcurrency int `json:"current_concurrency"`
	ConcurrencyLimit   int `json:"concurrency_limit"`
}

type createCallRequest struct {
	FromNumber                string            `json:"from_number"`
	ToNumber                  string            `json:"to_number"`
	OverrideAgentID           string            `json:"override_agent_id,omitempty"`
	DynamicVariables          map[string]string `json:"llm_dynamic_variables,omitempty"`
	DropCallIfMachineDetected bool              `json:"drop_call_if_machine_detected"`
}

// Client is the HTTP implementation of CallDispatcher.
type Client struct {
	baseURL    string
	apiKey     string
	agentID    string
	fromNumber string
}

// NewClient builds a voice client from the loaded configuration.
func NewClient(cfg config.VoiceProviderConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseUrl,
		apiKey:     cfg.ApiKey,
		agentID:    cfg.AgentId,
		fromNumber: cfg.FromNumber,
	}
}

// IssueCall asks the provider to place an outbound call to the lead. The
// lead's identity fields and custom data are passed to the call agent as
// dynamic variables. Transient transport failures are retried briefly; a
// non-2xx response is returned as an error without retry.
func (c *Client) IssueCall(ctx context.Context, lead *model.Lead) (*CallResponse, error) {
	body := createCallRequest{
		FromNumber:                c.fromNumber,
		ToNumber:                  lead.PhoneNumber,
		OverrideAgentID:           c.agentID,
		DynamicVariables:          dynamicVariables(lead),
		DropCallIfMachineDetected: true,
	}

	logrus.WithFields(logrus.Fields{
		"lead_id":   lead.LeadID,
		"to_number": lead.PhoneNumber,
	}).Info("Issuing outbound call")

	var callResp CallResponse
	operation := func() error {
		payload, err := request.ToJsonReq(&body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/v2/create-phone-call", c.baseURL), payload)
		if err != nil {
			return backoff.Permanent(err)
		}
		request.BearerAuth(req, c.apiKey)

		resp, err := request.Call(req, &callResp)
		if err != nil {
			if resp == nil {
				// Transport failure, worth another attempt.
				return err
			}
			return backoff.Permanent(err)
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("create call returned status %d for %s", resp.StatusCode, lead.PhoneNumber))
		}
		return nil
	}

	if err := backoff.Retry(operation, retryPolicy(ctx)); err != nil {
		return nil, err
	}
	if callResp.CallID == "" {
		return nil, fmt.Errorf("provider returned no call id for %s", lead.PhoneNumber)
	}
	return &callResp, nil
}

// ActiveCallCount fetches the provider's current concurrency usage.
func (c *Client) ActiveCallCount(ctx context.Context) (*Concurrency, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/get-concurrency", c.baseURL), nil)
	if err != nil {
		return nil, err
	}
	request.BearerAuth(req, c.apiKey)

	var concurrency Concurrency
	resp, err := request.Call(req, &concurrency)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get concurrency returned status %d", resp.StatusCode)
	}
	return &concurrency, nil
}

// GetCall fetches the provider's record of a single call.
func (c *Client) GetCall(ctx context.Context, callID string) (*CallResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/v2/get-call/%s", c.baseURL, callID), nil)
	if err != nil {
		return nil, err
	}
	request.BearerAuth(req, c.apiKey)

	var callResp CallResponse
	resp, err := request.Call(req, &callResp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get call returned status %d for %s", resp.StatusCode, callID)
	}
	return &callResp, nil
}

// dynamicVariables flattens the lead into the string map the call agent
// receives. Custom data values are stringified; identity fields win on key
// collision.
func dynamicVariables(lead *model.Lead) map[string]string {
	vars := make(map[string]string)
	for k, v := range lead.CustomData {
		vars[k] = fmt.Sprintf("%v", v)
	}
	if lead.Name != "" {
		vars["name"] = lead.Name
	}
	if lead.Email != "" {
		vars["email"] = lead.Email
	}
	if lead.Company != "" {
		vars["company"] = lead.Company
	}
	return vars
}

func retryPolicy(ctx context.Context) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(policy, 3), ctx)
}
