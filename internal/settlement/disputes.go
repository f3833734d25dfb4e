package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/recon"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store"
)

// ErrDisputeResolved is returned when approving or rejecting a dispute that is
// no longer pending.
var ErrDisputeResolved = errors.New("dispute already resolved")

// Disputes processes refunds and chargebacks. A dispute references its
// transaction but never mutates it directly; the compensating mutation runs
// through the state machine on approval.
type Disputes struct {
	store   store.Store
	machine *recon.Machine
	log     zerolog.Logger
	now     func() time.Time
}

// NewDisputes creates the dispute processor.
func NewDisputes(s store.Store, machine *recon.Machine, log zerolog.Logger) *Disputes {
	return &Disputes{store: s, machine: machine, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Create opens a pending dispute against a COMPLETED or SETTLED transaction.
// Any other target state fails with InvalidDisputeTargetError. A zero amount
// disputes the full transaction amount; a partial amount may not exceed it.
func (d *Disputes) Create(ctx context.Context, transactionID string, kind domain.DisputeKind, amount int64, reason string) (*domain.Dispute, error) {
	if kind != domain.DisputeRefund && kind != domain.DisputeChargeback {
		return nil, fmt.Errorf("unknown dispute kind %q", kind)
	}

	var dispute *domain.Dispute
	err := d.store.Update(ctx, func(tx store.Tx) error {
		txn, err := tx.Transaction(transactionID)
		if err != nil {
			return err
		}
		if txn.Status != domain.StatusCompleted && txn.Status != domain.StatusSettled {
			return &domain.InvalidDisputeTargetError{TransactionID: txn.ID, Status: txn.Status}
		}
		if amount == 0 {
			amount = txn.Amount
		}
		if amount < 0 || amount > txn.Amount {
			return fmt.Errorf("dispute amount %d out of range for transaction amount %d", amount, txn.Amount)
		}

		dispute = &domain.Dispute{
			ID:              uuid.NewString(),
			TransactionID:   txn.ID,
			Kind:            kind,
			RequestedAmount: amount,
			Status:          domain.DisputePending,
			Reason:          reason,
			CreatedAt:       d.now(),
		}
		return tx.PutDispute(dispute)
	})
	if err != nil {
		return nil, err
	}

	d.log.Info().
		Str("dispute_id", dispute.ID).
		Str("transaction_id", dispute.TransactionID).
		Str("kind", string(dispute.Kind)).
		Int64("requested_amount", dispute.RequestedAmount).
		Msg("Dispute opened")
	return dispute, nil
}

// Approve reverses the disputed transaction and marks the dispute completed,
// in one atomic unit.
func (d *Disputes) Approve(ctx context.Context, disputeID string) (*domain.Dispute, error) {
	var dispute *domain.Dispute
	err := d.store.Update(ctx, func(tx store.Tx) error {
		var err error
		dispute, err = tx.Dispute(disputeID)
		if err != nil {
			return err
		}
		if dispute.Status != domain.DisputePending {
			return fmt.Errorf("dispute %s is %s: %w", dispute.ID, dispute.Status, ErrDisputeResolved)
		}

		txn, err := tx.Transaction(dispute.TransactionID)
		if err != nil {
			return err
		}
		if err := d.machine.Reverse(tx, txn, dispute.RequestedAmount, d.now()); err != nil {
			return err
		}

		now := d.now()
		dispute.Status = domain.DisputeCompleted
		dispute.ResolvedAt = &now
		return tx.PutDispute(dispute)
	})
	if err != nil {
		return nil, err
	}

	d.log.Info().
		Str("dispute_id", dispute.ID).
		Str("transaction_id", dispute.TransactionID).
		Msg("Dispute approved, transaction reversed")
	return dispute, nil
}

// Reject closes the dispute with no balance effect.
func (d *Disputes) Reject(ctx context.Context, disputeID string) (*domain.Dispute, error) {
	var dispute *domain.Dispute
	err := d.store.Update(ctx, func(tx store.Tx) error {
		var err error
		dispute, err = tx.Dispute(disputeID)
		if err != nil {
			return err
		}
		if dispute.Status != domain.DisputePending {
			return fmt.Errorf("dispute %s is %s: %w", dispute.ID, dispute.Status, ErrDisputeResolved)
		}
		now := d.now()
		dispute.Status = domain.DisputeRejected
		dispute.ResolvedAt = &now
		return tx.PutDispute(dispute)
	})
	if err != nil {
		return nil, err
	}

	d.log.Info().Str("dispute_id", dispute.ID).Msg("Dispute rejected")
	return dispute, nil
}
