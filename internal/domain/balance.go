package domain

import "time"

// MerchantBalance tracks one merchant's funds. Available is spendable;
// Pending is reserved for in-flight disbursements. Both are minor units.
//
// Invariant: Pending >= 0 always, and Available >= 0 except that an approved
// reversal may drive Available negative when the reversal policy permits.
type MerchantBalance struct {
	MerchantID string    `json:"merchant_id"`
	Available  int64     `json:"available"`
	Pending    int64     `json:"pending"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ReservationState is the lifecycle of a balance reservation.
type ReservationState string

const (
	// ReservationHeld means the amount sits in Pending.
	ReservationHeld ReservationState = "held"
	// ReservationCommitted means the amount left Pending permanently (spent).
	ReservationCommitted ReservationState = "committed"
	// ReservationReleased means the amount returned to Available.
	ReservationReleased ReservationState = "released"
)

// BalanceReservation is a hold placed on a merchant's available balance for an
// in-flight disbursement. It is resolved exactly once, to committed or released.
type BalanceReservation struct {
	ID         string           `json:"id"`
	MerchantID string           `json:"merchant_id"`
	Amount     int64            `json:"amount"`
	State      ReservationState `json:"state"`
	CreatedAt  time.Time        `json:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}
