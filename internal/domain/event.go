package domain

import (
	"encoding/json"
	"time"
)

// ReportedStatus is the canonical vocabulary a provider adapter maps its own
// status words into.
type ReportedStatus string

const (
	ReportedSuccess  ReportedStatus = "success"
	ReportedFailed   ReportedStatus = "failed"
	ReportedPending  ReportedStatus = "pending"
	ReportedReversed ReportedStatus = "reversed"
)

// NormalizedEvent is a provider-agnostic description of one inbound IPN.
// It is ephemeral: consumed immediately by the state machine and not persisted
// beyond the idempotency ledger's record of having been seen.
type NormalizedEvent struct {
	ProviderName string `json:"provider_name"`

	// ProviderEventID is the provider's delivery identifier, used for dedup.
	ProviderEventID string `json:"provider_event_id"`

	// ProviderReference ties the event to a Transaction.
	ProviderReference string `json:"provider_reference"`

	ReportedStatus ReportedStatus `json:"reported_status"`

	// Amount in minor units, normalized from the provider's decimal convention.
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`

	OccurredAt time.Time `json:"occurred_at"`

	// SignatureValid records the outcome of the adapter's authenticity check.
	// The state machine never acts on an event with SignatureValid=false.
	SignatureValid bool `json:"signature_valid"`

	// Raw is the original payload, carried for the transaction audit trail.
	Raw json.RawMessage `json:"-"`
}
