// Package disburse moves money out: it reserves merchant balance, initiates
// the payout with the outbound provider, and reconciles stuck payouts by
// re-querying the provider with the derived idempotency key.
package disburse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PayoutStatus is the outbound provider's answer for a payout call or query.
type PayoutStatus string

const (
	PayoutAccepted PayoutStatus = "accepted"
	PayoutRejected PayoutStatus = "rejected"
	// PayoutUnknown means the provider-side result could not be determined
	// (timeout, transport failure, or the provider has never seen the key).
	PayoutUnknown PayoutStatus = "unknown"
)

// PayoutClient is the outbound payout provider collaborator. Send must be
// idempotent on the provider side keyed by idempotencyKey; Status re-queries
// an earlier Send by the same key.
type PayoutClient interface {
	Send(ctx context.Context, idempotencyKey, destination string, amount int64) (PayoutStatus, error)
	Status(ctx context.Context, idempotencyKey string) (PayoutStatus, error)
}

// HTTPPayoutClient talks to the payout provider's REST API.
type HTTPPayoutClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPPayoutClient creates a client with a bounded per-call timeout.
func NewHTTPPayoutClient(baseURL, apiKey string, timeout time.Duration) *HTTPPayoutClient {
	return &HTTPPayoutClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type payoutRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Destination    string `json:"destination"`
	Amount         int64  `json:"amount"`
}

type payoutResponse struct {
	Status string `json:"status"`
}

// Send initiates the payout. A transport failure or timeout yields
// PayoutUnknown: the provider may or may not have acted, and only a Status
// re-query by the same key can tell.
func (c *HTTPPayoutClient) Send(ctx context.Context, idempotencyKey, destination string, amount int64) (PayoutStatus, error) {
	body, err := json.Marshal(payoutRequest{
		IdempotencyKey: idempotencyKey,
		Destination:    destination,
		Amount:         amount,
	})
	if err != nil {
		return PayoutUnknown, fmt.Errorf("encode payout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payouts", bytes.NewReader(body))
	if err != nil {
		return PayoutUnknown, fmt.Errorf("build payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return PayoutUnknown, fmt.Errorf("payout call: %w", err)
	}
	defer resp.Body.Close()

	return c.decodeStatus(resp)
}

// Status re-queries a payout by idempotency key. A 404 means the provider
// never received the original call.
func (c *HTTPPayoutClient) Status(ctx context.Context, idempotencyKey string) (PayoutStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payouts/"+idempotencyKey, nil)
	if err != nil {
		return PayoutUnknown, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return PayoutUnknown, fmt.Errorf("status call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return PayoutRejected, nil
	}
	return c.decodeStatus(resp)
}

func (c *HTTPPayoutClient) decodeStatus(resp *http.Response) (PayoutStatus, error) {
	if resp.StatusCode >= 500 {
		return PayoutUnknown, fmt.Errorf("provider returned %d", resp.StatusCode)
	}
	var pr payoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return PayoutUnknown, fmt.Errorf("decode provider response: %w", err)
	}
	switch pr.Status {
	case "accepted", "processing", "completed":
		return PayoutAccepted, nil
	case "rejected", "declined":
		return PayoutRejected, nil
	default:
		return PayoutUnknown, nil
	}
}
