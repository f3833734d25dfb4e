// Package recon is the reconciliation core: the transaction state machine and
// the processor that applies normalized provider events to financial records
// with at-most-once semantics.
package recon

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/ledger"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store"
)

// transitions lists, per reported status, the states it may be applied from
// and the state it lands in.
var transitions = map[domain.ReportedStatus]struct {
	from []domain.TransactionStatus
	to   domain.TransactionStatus
}{
	domain.ReportedSuccess: {
		from: []domain.TransactionStatus{domain.StatusInitiated, domain.StatusPending},
		to:   domain.StatusCompleted,
	},
	domain.ReportedPending: {
		from: []domain.TransactionStatus{domain.StatusInitiated},
		to:   domain.StatusPending,
	},
	domain.ReportedFailed: {
		from: []domain.TransactionStatus{domain.StatusInitiated, domain.StatusPending},
		to:   domain.StatusFailed,
	},
	domain.ReportedReversed: {
		from: []domain.TransactionStatus{domain.StatusCompleted},
		to:   domain.StatusReversed,
	},
}

// Allowed reports whether reported may be applied from the current state.
func Allowed(current domain.TransactionStatus, reported domain.ReportedStatus) bool {
	rule, ok := transitions[reported]
	if !ok {
		return false
	}
	for _, s := range rule.from {
		if s == current {
			return true
		}
	}
	return false
}

// Machine owns the canonical transaction lifecycle. Apply mutates the
// transaction and its merchant's balance inside the caller's storage
// transaction, so the transition and its side effects commit as one unit.
type Machine struct {
	allowNegativeOnReversal bool
	log                     zerolog.Logger
}

// NewMachine creates a state machine. allowNegativeOnReversal is the policy
// deciding whether a reversal may drive a merchant's available balance below
// zero.
func NewMachine(allowNegativeOnReversal bool, log zerolog.Logger) *Machine {
	return &Machine{allowNegativeOnReversal: allowNegativeOnReversal, log: log}
}

// Apply evaluates one normalized event against txn and, when the transition is
// permitted, applies the status change plus balance side effects inside tx.
//
// The returned outcome distinguishes an applied transition from a rejected
// one. A rejected event is not an error for the caller: it is recorded in the
// idempotency ledger so a provider retry is answered without re-evaluation. A
// stale success duplicate (success reported for an already-final transaction)
// is logged and rejected the same way.
func (m *Machine) Apply(tx store.Tx, txn *domain.Transaction, ev *domain.NormalizedEvent, now time.Time) (domain.EventOutcome, error) {
	if !Allowed(txn.Status, ev.ReportedStatus) {
		evt := m.log.Warn()
		if ev.ReportedStatus == domain.ReportedSuccess {
			// Providers re-announce finality freely; a stale success is
			// routine, not suspicious.
			evt = m.log.Info()
		}
		evt.
			Str("transaction_id", txn.ID).
			Str("provider", ev.ProviderName).
			Str("current_status", string(txn.Status)).
			Str("reported_status", string(ev.ReportedStatus)).
			Msg("Transition not permitted, event recorded as rejected")
		return domain.OutcomeRejected, nil
	}

	target := transitions[ev.ReportedStatus].to
	if err := m.applySideEffects(tx, txn, target, now); err != nil {
		// A reversal the policy refuses to overdraw for is this event's
		// problem, not the system's: record it rejected so retries are
		// answered from the ledger, and leave it for manual review.
		var insufficient *domain.InsufficientFundsError
		if errors.As(err, &insufficient) {
			m.log.Warn().
				Str("transaction_id", txn.ID).
				Str("provider", ev.ProviderName).
				Str("reported_status", string(ev.ReportedStatus)).
				Int64("available", insufficient.Available).
				Int64("requested", insufficient.Requested).
				Msg("Balance policy refused side effect, event recorded as rejected")
			return domain.OutcomeRejected, nil
		}
		return "", err
	}

	prior := txn.Status
	txn.Status = target
	txn.UpdatedAt = now
	if txn.ProviderReference == "" {
		txn.ProviderReference = ev.ProviderReference
	}
	if len(ev.Raw) > 0 {
		txn.RawLastEvent = ev.Raw
	}
	if err := tx.PutTransaction(txn); err != nil {
		return "", err
	}

	m.log.Info().
		Str("transaction_id", txn.ID).
		Str("provider", ev.ProviderName).
		Str("from", string(prior)).
		Str("to", string(target)).
		Int64("amount", txn.Amount).
		Msg("Transaction transitioned")
	return domain.OutcomeApplied, nil
}

func (m *Machine) applySideEffects(tx store.Tx, txn *domain.Transaction, target domain.TransactionStatus, now time.Time) error {
	switch target {
	case domain.StatusCompleted:
		if txn.Direction == domain.DirectionPayin {
			return ledger.CreditTx(tx, txn.MerchantID, txn.Amount, now)
		}
		// Payout confirmed: the reserved funds are spent for good.
		return ledger.CommitReservationTx(tx, txn.ReservationID, now)

	case domain.StatusFailed:
		if txn.Direction == domain.DirectionPayout && txn.ReservationID != "" {
			return ledger.ReleaseReservationTx(tx, txn.ReservationID, now)
		}
		return nil

	case domain.StatusReversed:
		if txn.Direction == domain.DirectionPayin {
			return ledger.DebitAvailableTx(tx, txn.MerchantID, txn.Amount, m.allowNegativeOnReversal, now)
		}
		// A reversed payout means the money came back.
		return ledger.CreditTx(tx, txn.MerchantID, txn.Amount, now)

	default:
		return nil
	}
}

// Reverse applies the dispute-driven reversal: unlike the IPN path it may act
// on a SETTLED transaction and may reverse a partial amount.
func (m *Machine) Reverse(tx store.Tx, txn *domain.Transaction, amount int64, now time.Time) error {
	if txn.Status != domain.StatusCompleted && txn.Status != domain.StatusSettled {
		return &domain.InvalidTransitionError{
			TransactionID: txn.ID,
			From:          txn.Status,
			Reported:      domain.ReportedReversed,
		}
	}

	if txn.Direction == domain.DirectionPayin {
		if err := ledger.DebitAvailableTx(tx, txn.MerchantID, amount, m.allowNegativeOnReversal, now); err != nil {
			return err
		}
	} else {
		if err := ledger.CreditTx(tx, txn.MerchantID, amount, now); err != nil {
			return err
		}
	}

	prior := txn.Status
	txn.Status = domain.StatusReversed
	txn.UpdatedAt = now
	if err := tx.PutTransaction(txn); err != nil {
		return err
	}

	m.log.Info().
		Str("transaction_id", txn.ID).
		Str("from", string(prior)).
		Int64("reversed_amount", amount).
		Msg("Transaction reversed by dispute")
	return nil
}
