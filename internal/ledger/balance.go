package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store"
)

// ErrReservationResolved is returned when committing or releasing a
// reservation that has already been resolved.
var ErrReservationResolved = errors.New("reservation already resolved")

var errNonPositiveAmount = errors.New("amount must be positive")

// loadBalance returns the merchant's balance row, zero-valued if none exists yet.
func loadBalance(tx store.Tx, merchantID string) (*domain.MerchantBalance, error) {
	b, err := tx.Balance(merchantID)
	if errors.Is(err, store.ErrNotFound) {
		return &domain.MerchantBalance{MerchantID: merchantID}, nil
	}
	return b, err
}

// CreditTx adds amount to the merchant's available balance inside tx.
func CreditTx(tx store.Tx, merchantID string, amount int64, now time.Time) error {
	if amount <= 0 {
		return errNonPositiveAmount
	}
	b, err := loadBalance(tx, merchantID)
	if err != nil {
		return err
	}
	b.Available += amount
	b.UpdatedAt = now
	return tx.PutBalance(b)
}

// DebitAvailableTx removes amount from the merchant's available balance inside
// tx. Unless allowNegative is set (the reversal policy), the debit fails with
// InsufficientFundsError rather than drive the balance below zero.
func DebitAvailableTx(tx store.Tx, merchantID string, amount int64, allowNegative bool, now time.Time) error {
	if amount <= 0 {
		return errNonPositiveAmount
	}
	b, err := loadBalance(tx, merchantID)
	if err != nil {
		return err
	}
	if b.Available < amount && !allowNegative {
		return &domain.InsufficientFundsError{MerchantID: merchantID, Available: b.Available, Requested: amount}
	}
	b.Available -= amount
	b.UpdatedAt = now
	return tx.PutBalance(b)
}

// ReserveTx moves amount from available to pending and records the hold.
// Fails with InsufficientFundsError when available < amount.
func ReserveTx(tx store.Tx, merchantID string, amount int64, now time.Time) (*domain.BalanceReservation, error) {
	if amount <= 0 {
		return nil, errNonPositiveAmount
	}
	b, err := loadBalance(tx, merchantID)
	if err != nil {
		return nil, err
	}
	if b.Available < amount {
		return nil, &domain.InsufficientFundsError{MerchantID: merchantID, Available: b.Available, Requested: amount}
	}
	b.Available -= amount
	b.Pending += amount
	b.UpdatedAt = now
	if err := tx.PutBalance(b); err != nil {
		return nil, err
	}

	r := &domain.BalanceReservation{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		Amount:     amount,
		State:      domain.ReservationHeld,
		CreatedAt:  now,
	}
	if err := tx.PutReservation(r); err != nil {
		return nil, err
	}
	return r, nil
}

// CommitReservationTx removes the held amount from pending permanently.
func CommitReservationTx(tx store.Tx, reservationID string, now time.Time) error {
	return resolveReservation(tx, reservationID, domain.ReservationCommitted, now)
}

// ReleaseReservationTx returns the held amount to available.
func ReleaseReservationTx(tx store.Tx, reservationID string, now time.Time) error {
	return resolveReservation(tx, reservationID, domain.ReservationReleased, now)
}

func resolveReservation(tx store.Tx, reservationID string, to domain.ReservationState, now time.Time) error {
	r, err := tx.Reservation(reservationID)
	if err != nil {
		return err
	}
	if r.State != domain.ReservationHeld {
		return fmt.Errorf("reservation %s in state %s: %w", r.ID, r.State, ErrReservationResolved)
	}

	b, err := loadBalance(tx, r.MerchantID)
	if err != nil {
		return err
	}
	b.Pending -= r.Amount
	if to == domain.ReservationReleased {
		b.Available += r.Amount
	}
	b.UpdatedAt = now
	if err := tx.PutBalance(b); err != nil {
		return err
	}

	r.State = to
	r.ResolvedAt = &now
	return tx.PutReservation(r)
}

// Balance is the merchant balance ledger. Every mutation runs as one storage
// Update, which serializes it against all other balance mutations; a
// disbursement reservation and a payin credit for the same merchant never race
// destructively.
type Balance struct {
	store store.Store
	now   func() time.Time
}

// NewBalance creates a balance ledger over the given store.
func NewBalance(s store.Store) *Balance {
	return &Balance{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// Reserve holds amount of the merchant's available balance and returns the
// reservation id.
func (l *Balance) Reserve(ctx context.Context, merchantID string, amount int64) (string, error) {
	var id string
	err := l.store.Update(ctx, func(tx store.Tx) error {
		r, err := ReserveTx(tx, merchantID, amount, l.now())
		if err != nil {
			return err
		}
		id = r.ID
		return nil
	})
	return id, err
}

// Credit adds amount to the merchant's available balance.
func (l *Balance) Credit(ctx context.Context, merchantID string, amount int64) error {
	return l.store.Update(ctx, func(tx store.Tx) error {
		return CreditTx(tx, merchantID, amount, l.now())
	})
}

// CommitReservation spends the held amount.
func (l *Balance) CommitReservation(ctx context.Context, reservationID string) error {
	return l.store.Update(ctx, func(tx store.Tx) error {
		return CommitReservationTx(tx, reservationID, l.now())
	})
}

// ReleaseReservation abandons the hold and restores available balance.
func (l *Balance) ReleaseReservation(ctx context.Context, reservationID string) error {
	return l.store.Update(ctx, func(tx store.Tx) error {
		return ReleaseReservationTx(tx, reservationID, l.now())
	})
}

// Get returns the merchant's current balance, zero-valued if untouched.
func (l *Balance) Get(ctx context.Context, merchantID string) (*domain.MerchantBalance, error) {
	var out *domain.MerchantBalance
	err := l.store.View(ctx, func(tx store.Tx) error {
		b, err := loadBalance(tx, merchantID)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}
