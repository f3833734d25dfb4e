package domain

import "time"

// DisputeKind distinguishes merchant-initiated refunds from network-forced
// chargebacks. Both drive the same compensating balance mutation on approval.
type DisputeKind string

const (
	DisputeRefund     DisputeKind = "refund"
	DisputeChargeback DisputeKind = "chargeback"
)

// DisputeStatus is the dispute's own lifecycle, independent of the disputed
// transaction's.
type DisputeStatus string

const (
	DisputePending   DisputeStatus = "pending"
	DisputeApproved  DisputeStatus = "approved"
	DisputeRejected  DisputeStatus = "rejected"
	DisputeCompleted DisputeStatus = "completed"
)

// Dispute references a COMPLETED or SETTLED transaction and, on completion,
// drives the compensating reversal. It never mutates the transaction directly.
type Dispute struct {
	ID              string        `json:"id"`
	TransactionID   string        `json:"transaction_id"`
	Kind            DisputeKind   `json:"kind"`
	RequestedAmount int64         `json:"requested_amount"`
	Status          DisputeStatus `json:"status"`
	Reason          string        `json:"reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
}
