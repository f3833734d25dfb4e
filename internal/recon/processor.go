package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/ledger"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/provider"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store"
)

// ErrUnknownProvider is returned when no adapter is registered for the slug.
var ErrUnknownProvider = errors.New("unknown provider slug")

// Disposition says what happened to a delivery, for logging and the HTTP ack.
type Disposition string

const (
	// DispositionApplied means the event caused a state transition.
	DispositionApplied Disposition = "applied"
	// DispositionDuplicate means the event was answered from the idempotency
	// record with no side effect.
	DispositionDuplicate Disposition = "duplicate"
	// DispositionRejected means the transition was not permitted; the
	// rejection is on record so retries stay no-ops.
	DispositionRejected Disposition = "rejected"
	// DispositionDiscarded means the delivery failed authentication or could
	// not be parsed; it was logged and dropped without touching any record.
	DispositionDiscarded Disposition = "discarded"
)

// Result is the processor's answer for one delivery. The webhook handler
// acknowledges with AckBody whenever Result is non-nil; a nil Result with an
// error means the system could not durably record the event.
type Result struct {
	Disposition   Disposition
	TransactionID string
	AckBody       string
}

// Processor runs the full ingestion unit of work for one inbound delivery:
// adapter normalization, idempotency reservation, state transition and balance
// mutation. Everything after normalization executes inside a single storage
// Update, so concurrent deliveries for the same transaction or merchant never
// observe partial effects.
type Processor struct {
	registry *provider.Registry
	store    store.Store
	machine  *Machine
	log      zerolog.Logger
	now      func() time.Time
}

// NewProcessor wires the ingestion path.
func NewProcessor(registry *provider.Registry, s store.Store, machine *Machine, log zerolog.Logger) *Processor {
	return &Processor{
		registry: registry,
		store:    s,
		machine:  machine,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Process ingests one raw delivery for the provider at slug.
//
// Unprocessable events (bad signature, unparseable payload, impermissible
// transition) are absorbed: logged, recorded where applicable, and
// acknowledged, so a permanently broken delivery can never cause a provider
// retry storm. Only a storage failure propagates as an error.
func (p *Processor) Process(ctx context.Context, slug string, payload []byte, meta provider.RequestMeta) (*Result, error) {
	adapter, ok := p.registry.Get(slug)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, slug)
	}

	ev, err := adapter.Normalize(payload, meta)
	if err != nil {
		var authErr *domain.AuthenticationError
		if errors.As(err, &authErr) {
			p.log.Warn().
				Str("provider", slug).
				Str("reason", authErr.Reason).
				Msg("Webhook authentication failed, delivery discarded; flagged for security review")
			return &Result{Disposition: DispositionDiscarded, AckBody: adapter.Ack()}, nil
		}
		var malformed *domain.MalformedPayloadError
		if errors.As(err, &malformed) {
			p.log.Error().
				Str("provider", slug).
				Str("reason", malformed.Reason).
				Msg("Webhook payload malformed, delivery discarded")
			return &Result{Disposition: DispositionDiscarded, AckBody: adapter.Ack()}, nil
		}
		return nil, fmt.Errorf("normalize %s delivery: %w", slug, err)
	}

	if !ev.SignatureValid {
		// Adapters fail with AuthenticationError instead of producing an
		// unverified event; treat the combination as a discard regardless.
		p.log.Warn().Str("provider", slug).Msg("Adapter produced unverified event, delivery discarded")
		return &Result{Disposition: DispositionDiscarded, AckBody: adapter.Ack()}, nil
	}

	res := &Result{AckBody: adapter.Ack()}
	err = p.store.Update(ctx, func(tx store.Tx) error {
		rec, duplicate, err := ledger.ReserveEvent(tx, ev.ProviderName, ev.ProviderEventID, p.now())
		if err != nil {
			return err
		}
		if duplicate {
			res.Disposition = DispositionDuplicate
			res.TransactionID = rec.TransactionID
			return nil
		}

		txn, err := p.loadOrCreate(tx, ev)
		if err != nil {
			return err
		}

		outcome, err := p.machine.Apply(tx, txn, ev, p.now())
		if err != nil {
			return err
		}

		res.TransactionID = txn.ID
		if outcome == domain.OutcomeApplied {
			res.Disposition = DispositionApplied
		} else {
			res.Disposition = DispositionRejected
		}
		return ledger.CommitEvent(tx, rec, txn.ID, outcome)
	})
	if err != nil {
		return nil, &domain.StorageUnavailableError{Op: "process " + slug + " event", Err: err}
	}

	if res.Disposition == DispositionDuplicate {
		p.log.Info().
			Str("provider", ev.ProviderName).
			Str("provider_event_id", ev.ProviderEventID).
			Str("transaction_id", res.TransactionID).
			Msg("Duplicate delivery answered from idempotency record")
	}
	return res, nil
}

// loadOrCreate resolves the event's transaction by provider reference. A miss
// is a first-touch payin: providers announce payins we have not initiated
// ourselves (QR-originated payments), so the transaction row is created on the
// spot in INITIATED.
func (p *Processor) loadOrCreate(tx store.Tx, ev *domain.NormalizedEvent) (*domain.Transaction, error) {
	txn, err := tx.TransactionByReference(ev.ProviderName, ev.ProviderReference)
	if err == nil {
		return txn, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := p.now()
	txn = &domain.Transaction{
		ID:                uuid.NewString(),
		ProviderName:      ev.ProviderName,
		ProviderReference: ev.ProviderReference,
		MerchantID:        merchantFromReference(ev.ProviderReference),
		Amount:            ev.Amount,
		Currency:          ev.Currency,
		Direction:         domain.DirectionPayin,
		Status:            domain.StatusInitiated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := tx.PutTransaction(txn); err != nil {
		return nil, err
	}
	p.log.Info().
		Str("transaction_id", txn.ID).
		Str("provider", ev.ProviderName).
		Str("provider_reference", ev.ProviderReference).
		Msg("First-touch payin, transaction created")
	return txn, nil
}

// merchantFromReference extracts the merchant id embedded in the order
// reference we hand to providers at checkout ("<merchant>-<order>"). A
// reference without the separator maps to the unattributed merchant account
// and is resolved by back-office reconciliation.
func merchantFromReference(reference string) string {
	for i := 0; i < len(reference); i++ {
		if reference[i] == '-' {
			return reference[:i]
		}
	}
	return "unattributed"
}
