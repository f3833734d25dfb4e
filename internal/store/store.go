// Package store defines the narrow repository interface the reconciliation
// core consumes. The core never talks to a database directly; it expresses
// every unit of work as a function over a Tx, and the concrete store decides
// how to make that function atomic.
package store

import (
	"context"
	"errors"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
)

// ErrNotFound is returned by Tx getters when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// ErrReferenceTaken is returned by PutTransaction when another transaction for
// the same provider already owns the provider reference.
var ErrReferenceTaken = errors.New("provider reference already bound to another transaction")

// Tx is one atomic view of (or mutation over) the persisted records. All reads
// and writes performed through a single Tx either all apply or none do.
type Tx interface {
	Transaction(id string) (*domain.Transaction, error)
	TransactionByReference(provider, reference string) (*domain.Transaction, error)
	PutTransaction(t *domain.Transaction) error
	ForEachTransaction(fn func(*domain.Transaction) error) error

	Balance(merchantID string) (*domain.MerchantBalance, error)
	PutBalance(b *domain.MerchantBalance) error

	Reservation(id string) (*domain.BalanceReservation, error)
	PutReservation(r *domain.BalanceReservation) error

	IdempotencyRecord(provider, eventID string) (*domain.IdempotencyRecord, error)
	PutIdempotencyRecord(rec *domain.IdempotencyRecord) error
	DeleteIdempotencyRecord(provider, eventID string) error
	ForEachIdempotencyRecord(fn func(*domain.IdempotencyRecord) error) error

	Dispute(id string) (*domain.Dispute, error)
	PutDispute(d *domain.Dispute) error
	ForEachDispute(fn func(*domain.Dispute) error) error

	SettlementBatch(id string) (*domain.SettlementBatch, error)
	PutSettlementBatch(b *domain.SettlementBatch) error
	ForEachSettlementBatch(fn func(*domain.SettlementBatch) error) error
}

// Store is the storage collaborator. Update serializes mutating units of work:
// two concurrent Update calls never interleave partial effects, which is what
// gives per-transaction and per-merchant operations their single-writer
// discipline.
type Store interface {
	// View runs fn over a read-only snapshot.
	View(ctx context.Context, fn func(Tx) error) error

	// Update runs fn atomically; if fn returns an error nothing is persisted
	// and that error is returned unchanged.
	Update(ctx context.Context, fn func(Tx) error) error

	Close() error
}
