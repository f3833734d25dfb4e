package disburse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/ledger"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store"
)

// Result describes an initiated disbursement.
type Result struct {
	TransactionID string                   `json:"transaction_id"`
	Status        domain.TransactionStatus `json:"status"`
	Amount        int64                    `json:"amount"`
	MerchantID    string                   `json:"merchant_id"`
}

// Orchestrator drives a disbursement end to end: balance reservation,
// transaction creation, the single outbound payout call, and the recovery
// sweep that resolves payouts left in limbo by crashes or timeouts.
type Orchestrator struct {
	store        store.Store
	client       PayoutClient
	providerName string
	currency     string
	callTimeout  time.Duration
	staleAfter   time.Duration
	log          zerolog.Logger
	now          func() time.Time
}

// Config holds the orchestrator's policy knobs.
type Config struct {
	// ProviderName is the payout rail's adapter slug; its IPNs confirm payouts.
	ProviderName string
	// Currency for created payout transactions.
	Currency string
	// CallTimeout bounds the outbound payout call.
	CallTimeout time.Duration
	// StaleAfter is how long a payout may sit unresolved before the recovery
	// sweep re-queries the provider for it.
	StaleAfter time.Duration
}

// NewOrchestrator wires the disbursement path.
func NewOrchestrator(s store.Store, client PayoutClient, cfg Config, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:        s,
		client:       client,
		providerName: cfg.ProviderName,
		currency:     cfg.Currency,
		callTimeout:  cfg.CallTimeout,
		staleAfter:   cfg.StaleAfter,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Disburse debits the merchant's available balance and initiates the payout.
//
// The reservation and the INITIATED transaction are created in one atomic
// unit, so there is no window where money is held without a record explaining
// why. The outbound call is made exactly once per transaction id: its
// idempotency key is the transaction id itself, and a crash after the call is
// resolved by the recovery sweep re-querying that key — never by a fresh call
// under a new key.
//
// Fails with InsufficientFundsError before any record is created when the
// merchant's available balance cannot cover the amount.
func (o *Orchestrator) Disburse(ctx context.Context, merchantID string, amount int64, destination string) (*Result, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("disburse: amount must be positive, got %d", amount)
	}
	if destination == "" {
		return nil, fmt.Errorf("disburse: destination required")
	}

	txn := &domain.Transaction{
		ID:           uuid.NewString(),
		ProviderName: o.providerName,
		MerchantID:   merchantID,
		Amount:       amount,
		Currency:     o.currency,
		Direction:    domain.DirectionPayout,
		Status:       domain.StatusInitiated,
	}
	// The provider echoes our idempotency key back as its reference, so the
	// confirmation IPN resolves to this transaction.
	txn.ProviderReference = txn.ID

	err := o.store.Update(ctx, func(tx store.Tx) error {
		now := o.now()
		r, err := ledger.ReserveTx(tx, merchantID, amount, now)
		if err != nil {
			return err
		}
		txn.ReservationID = r.ID
		txn.CreatedAt = now
		txn.UpdatedAt = now
		return tx.PutTransaction(txn)
	})
	if err != nil {
		var insufficient *domain.InsufficientFundsError
		if errors.As(err, &insufficient) {
			return nil, insufficient
		}
		return nil, &domain.StorageUnavailableError{Op: "reserve disbursement", Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	status, err := o.client.Send(callCtx, txn.ID, destination, amount)
	if err != nil {
		o.log.Warn().
			Err(err).
			Str("transaction_id", txn.ID).
			Msg("Payout call did not return a definite result, leaving for recovery sweep")
		status = PayoutUnknown
	}

	return o.applySendResult(ctx, txn, status)
}

// applySendResult records the synchronous acknowledgment. Accepted and unknown
// both land in PENDING with the reservation held: accepted awaits the
// provider's own IPN for finality, unknown awaits the recovery sweep. Only a
// definite rejection fails the transaction and returns the funds.
func (o *Orchestrator) applySendResult(ctx context.Context, txn *domain.Transaction, status PayoutStatus) (*Result, error) {
	target := domain.StatusPending
	if status == PayoutRejected {
		target = domain.StatusFailed
	}

	err := o.store.Update(ctx, func(tx store.Tx) error {
		current, err := tx.Transaction(txn.ID)
		if err != nil {
			return err
		}
		// The provider's IPN may have already advanced the transaction past
		// us; the synchronous acknowledgment is then old news.
		if current.Status != domain.StatusInitiated {
			txn = current
			return nil
		}
		current.Status = target
		current.UpdatedAt = o.now()
		if target == domain.StatusFailed {
			if err := ledger.ReleaseReservationTx(tx, current.ReservationID, o.now()); err != nil {
				return err
			}
		}
		txn = current
		return tx.PutTransaction(current)
	})
	if err != nil {
		return nil, &domain.StorageUnavailableError{Op: "record payout acknowledgment", Err: err}
	}

	o.log.Info().
		Str("transaction_id", txn.ID).
		Str("merchant_id", txn.MerchantID).
		Int64("amount", txn.Amount).
		Str("status", string(txn.Status)).
		Msg("Disbursement initiated")

	return &Result{
		TransactionID: txn.ID,
		Status:        txn.Status,
		Amount:        txn.Amount,
		MerchantID:    txn.MerchantID,
	}, nil
}

// Sweep is the crash-recovery pass. It finds payout transactions stuck in
// INITIATED or PENDING beyond the stale age and re-queries the provider by
// idempotency key: a definite rejection fails the transaction and releases the
// reservation; a definite acceptance confirms PENDING (final confirmation
// still comes by IPN); unknown leaves the hold in place for the next pass.
// Returns the number of transactions examined.
func (o *Orchestrator) Sweep(ctx context.Context) (int, error) {
	var stuck []*domain.Transaction
	cutoff := o.now().Add(-o.staleAfter)
	err := o.store.View(ctx, func(tx store.Tx) error {
		return tx.ForEachTransaction(func(txn *domain.Transaction) error {
			if txn.Direction != domain.DirectionPayout {
				return nil
			}
			if txn.Status != domain.StatusInitiated && txn.Status != domain.StatusPending {
				return nil
			}
			if txn.UpdatedAt.After(cutoff) {
				return nil
			}
			stuck = append(stuck, txn)
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("scan stuck payouts: %w", err)
	}

	for _, txn := range stuck {
		if err := o.resolveStuck(ctx, txn); err != nil {
			o.log.Error().Err(err).Str("transaction_id", txn.ID).Msg("Recovery sweep could not resolve payout")
		}
	}
	return len(stuck), nil
}

func (o *Orchestrator) resolveStuck(ctx context.Context, txn *domain.Transaction) error {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	status, err := o.client.Status(callCtx, txn.ID)
	if err != nil || status == PayoutUnknown {
		o.log.Info().
			Str("transaction_id", txn.ID).
			AnErr("query_error", err).
			Msg("Payout still unresolved, holding reservation for next sweep")
		return nil
	}

	return o.store.Update(ctx, func(tx store.Tx) error {
		current, err := tx.Transaction(txn.ID)
		if err != nil {
			return err
		}
		if current.Status != domain.StatusInitiated && current.Status != domain.StatusPending {
			return nil
		}
		now := o.now()
		switch status {
		case PayoutAccepted:
			if current.Status == domain.StatusInitiated {
				current.Status = domain.StatusPending
				current.UpdatedAt = now
				return tx.PutTransaction(current)
			}
			// Already PENDING; refresh the clock so we do not re-query every pass.
			current.UpdatedAt = now
			return tx.PutTransaction(current)
		case PayoutRejected:
			current.Status = domain.StatusFailed
			current.UpdatedAt = now
			if err := ledger.ReleaseReservationTx(tx, current.ReservationID, now); err != nil {
				return err
			}
			o.log.Info().
				Str("transaction_id", current.ID).
				Msg("Stuck payout resolved as rejected, reservation released")
			return tx.PutTransaction(current)
		}
		return nil
	})
}
