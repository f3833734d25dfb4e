// Package ledger holds the two bookkeeping components of the reconciliation
// core: the idempotency ledger, which guarantees at-most-once side effects per
// provider event, and the balance ledger, which owns merchant funds.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store"
)

// ReserveEvent claims (provider, eventID) inside the given transaction.
// The first caller wins and gets a fresh record in the reserved state; any
// later caller is told it is a duplicate and receives the recorded outcome.
// The key's uniqueness is the mutual exclusion: no broader locking is needed.
func ReserveEvent(tx store.Tx, provider, eventID string, now time.Time) (*domain.IdempotencyRecord, bool, error) {
	existing, err := tx.IdempotencyRecord(provider, eventID)
	if err == nil {
		return existing, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	rec := &domain.IdempotencyRecord{
		ProviderName:    provider,
		ProviderEventID: eventID,
		FirstSeenAt:     now,
		Outcome:         domain.OutcomeReserved,
	}
	if err := tx.PutIdempotencyRecord(rec); err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

// CommitEvent finalizes a reservation with the processing outcome. Records are
// never mutated again after this.
func CommitEvent(tx store.Tx, rec *domain.IdempotencyRecord, transactionID string, outcome domain.EventOutcome) error {
	rec.TransactionID = transactionID
	rec.Outcome = outcome
	return tx.PutIdempotencyRecord(rec)
}

// Idempotency is the standalone form of the ledger for callers that do not run
// inside a larger atomic unit. The webhook processor prefers the in-transaction
// functions above, which fold reservation and commit into one storage
// transaction and so can never strand a reservation.
type Idempotency struct {
	store store.Store
}

// NewIdempotency creates an idempotency ledger over the given store.
func NewIdempotency(s store.Store) *Idempotency {
	return &Idempotency{store: s}
}

// CheckAndReserve claims the event key. Exactly one concurrent caller wins;
// losers get isDuplicate=true together with whatever outcome is on record and
// must skip all side effects.
func (l *Idempotency) CheckAndReserve(ctx context.Context, provider, eventID string) (rec *domain.IdempotencyRecord, isDuplicate bool, err error) {
	err = l.store.Update(ctx, func(tx store.Tx) error {
		var txErr error
		rec, isDuplicate, txErr = ReserveEvent(tx, provider, eventID, time.Now().UTC())
		return txErr
	})
	if err != nil {
		return nil, false, fmt.Errorf("check and reserve %s/%s: %w", provider, eventID, err)
	}
	return rec, isDuplicate, nil
}

// Commit records the winner's outcome so retried duplicates are answered from
// the record rather than reprocessed.
func (l *Idempotency) Commit(ctx context.Context, provider, eventID, transactionID string, outcome domain.EventOutcome) error {
	return l.store.Update(ctx, func(tx store.Tx) error {
		rec, err := tx.IdempotencyRecord(provider, eventID)
		if err != nil {
			return err
		}
		return CommitEvent(tx, rec, transactionID, outcome)
	})
}

// Release abandons a reservation whose side effects never ran, allowing a
// later retry of the same event to be processed fresh.
func (l *Idempotency) Release(ctx context.Context, provider, eventID string) error {
	return l.store.Update(ctx, func(tx store.Tx) error {
		rec, err := tx.IdempotencyRecord(provider, eventID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.Outcome != domain.OutcomeReserved {
			return fmt.Errorf("release %s/%s: record already committed as %s", provider, eventID, rec.Outcome)
		}
		return tx.DeleteIdempotencyRecord(provider, eventID)
	})
}

// ReleaseStale drops reservations older than ttl that were never committed,
// e.g. because the reserving process crashed mid-flight. Returns the number
// released.
func (l *Idempotency) ReleaseStale(ctx context.Context, ttl time.Duration, now time.Time) (int, error) {
	released := 0
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var stale []*domain.IdempotencyRecord
		if err := tx.ForEachIdempotencyRecord(func(rec *domain.IdempotencyRecord) error {
			if rec.Outcome == domain.OutcomeReserved && now.Sub(rec.FirstSeenAt) > ttl {
				stale = append(stale, rec)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, rec := range stale {
			if err := tx.DeleteIdempotencyRecord(rec.ProviderName, rec.ProviderEventID); err != nil {
				return err
			}
			released++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("release stale reservations: %w", err)
	}
	return released, nil
}
