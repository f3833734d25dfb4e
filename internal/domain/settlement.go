package domain

import "time"

// BatchStatus is the lifecycle of a settlement batch.
type BatchStatus string

const (
	// BatchClosed means the member transactions were transitioned to SETTLED
	// atomically with the batch's creation.
	BatchClosed BatchStatus = "closed"
	// BatchPaid marks a batch whose net amount has been paid out to the
	// merchant through an external accounting cycle.
	BatchPaid BatchStatus = "paid"
)

// SettlementBatch groups completed transactions for one merchant's payout cycle.
// TotalAmount is the net of the batch in minor units: payins add, payouts subtract.
type SettlementBatch struct {
	BatchID        string      `json:"batch_id"`
	MerchantID     string      `json:"merchant_id"`
	TransactionIDs []string    `json:"transaction_ids"`
	TotalAmount    int64       `json:"total_amount"`
	CreatedAt      time.Time   `json:"created_at"`
	Status         BatchStatus `json:"status"`
}
