package domain

import (
	"encoding/json"
	"time"
)

// Direction indicates which way money moves relative to the merchant.
type Direction string

const (
	// DirectionPayin is money arriving from an external payer into a merchant balance.
	DirectionPayin Direction = "payin"
	// DirectionPayout is money leaving a merchant balance toward an external destination.
	DirectionPayout Direction = "payout"
)

// TransactionStatus is the canonical lifecycle state of a Transaction.
type TransactionStatus string

const (
	// StatusInitiated is the entry state: a payin awaiting its first callback,
	// or a payout awaiting the provider's acknowledgment.
	StatusInitiated TransactionStatus = "INITIATED"
	// StatusPending means the provider acknowledged receipt but not finality.
	StatusPending TransactionStatus = "PENDING"
	// StatusCompleted is terminal for the base flow; the money moved.
	StatusCompleted TransactionStatus = "COMPLETED"
	// StatusFailed is terminal; the money did not move.
	StatusFailed TransactionStatus = "FAILED"
	// StatusSettled is reached from COMPLETED once a settlement batch including
	// the transaction closes.
	StatusSettled TransactionStatus = "SETTLED"
	// StatusReversed is reached from COMPLETED (or SETTLED, via an approved
	// dispute) when the movement is undone.
	StatusReversed TransactionStatus = "REVERSED"
)

// Transaction is the canonical record of one money-movement attempt.
// Transactions are never deleted, only status-terminated.
type Transaction struct {
	// ID is the internal, immutable identifier.
	ID string `json:"id"`

	// ProviderName identifies the external provider handling the movement.
	ProviderName string `json:"provider_name"`

	// ProviderReference is the provider's external identifier. It may be empty
	// until the first callback arrives; once non-empty it is unique per provider.
	ProviderReference string `json:"provider_reference"`

	MerchantID string `json:"merchant_id"`

	// Amount is fixed-point, in minor units (e.g. paisa, cents). Integer
	// arithmetic avoids floating-point rounding in financial records.
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`

	Direction Direction         `json:"direction"`
	Status    TransactionStatus `json:"status"`

	// ReservationID links a payout transaction to the balance reservation that
	// funds it. Empty for payins.
	ReservationID string `json:"reservation_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Settled mirrors membership in a closed settlement batch.
	Settled bool `json:"settled"`

	// RawLastEvent is the opaque audit payload of the last applied event.
	RawLastEvent json.RawMessage `json:"raw_last_event,omitempty"`
}

// Terminal reports whether no further base-flow transition can apply.
func (s TransactionStatus) Terminal() bool {
	return s == StatusFailed || s == StatusSettled || s == StatusReversed
}
