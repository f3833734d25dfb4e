package recon_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/provider"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/recon"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store"
)

// fakeAdapter returns a preconfigured event or error, so processor behavior
// can be driven without real provider payloads.
type fakeAdapter struct {
	slug  string
	event *domain.NormalizedEvent
	err   error
}

func (f *fakeAdapter) Slug() string { return f.slug }

func (f *fakeAdapter) Normalize(payload []byte, meta provider.RequestMeta) (*domain.NormalizedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	ev := *f.event
	return &ev, nil
}

func (f *fakeAdapter) Ack() string { return "OK" }

func newTestProcessor(t *testing.T, adapter provider.Adapter) (*recon.Processor, store.Store) {
	t.Helper()
	s := newTestStore(t)
	registry := provider.NewRegistry()
	registry.Register(adapter)
	machine := recon.NewMachine(true, zerolog.Nop())
	return recon.NewProcessor(registry, s, machine, zerolog.Nop()), s
}

func TestProcessAppliesPayinAndCreditsBalance(t *testing.T) {
	adapter := &fakeAdapter{
		slug: "fakepay",
		event: &domain.NormalizedEvent{
			ProviderName:      "fakepay",
			ProviderEventID:   "evt-1",
			ProviderReference: "M1-ORD1",
			ReportedStatus:    domain.ReportedSuccess,
			Amount:            500,
			Currency:          "PKR",
			SignatureValid:    true,
		},
	}
	p, s := newTestProcessor(t, adapter)

	res, err := p.Process(context.Background(), "fakepay", []byte(`{}`), provider.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, recon.DispositionApplied, res.Disposition)
	assert.Equal(t, "OK", res.AckBody)
	require.NotEmpty(t, res.TransactionID)

	var txn *domain.Transaction
	var balance *domain.MerchantBalance
	require.NoError(t, s.View(context.Background(), func(tx store.Tx) error {
		var err error
		if txn, err = tx.Transaction(res.TransactionID); err != nil {
			return err
		}
		balance, err = tx.Balance("M1")
		return err
	}))
	assert.Equal(t, domain.StatusCompleted, txn.Status)
	assert.Equal(t, "M1", txn.MerchantID)
	assert.Equal(t, domain.DirectionPayin, txn.Direction)
	assert.Equal(t, int64(500), balance.Available)
}

func TestProcessDuplicateDeliveryIsNoOp(t *testing.T) {
	adapter := &fakeAdapter{
		slug: "fakepay",
		event: &domain.NormalizedEvent{
			ProviderName:      "fakepay",
			ProviderEventID:   "evt-1",
			ProviderReference: "M1-ORD1",
			ReportedStatus:    domain.ReportedSuccess,
			Amount:            500,
			SignatureValid:    true,
		},
	}
	p, s := newTestProcessor(t, adapter)
	ctx := context.Background()

	first, err := p.Process(ctx, "fakepay", []byte(`{}`), provider.RequestMeta{})
	require.NoError(t, err)
	require.Equal(t, recon.DispositionApplied, first.Disposition)

	second, err := p.Process(ctx, "fakepay", []byte(`{}`), provider.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, recon.DispositionDuplicate, second.Disposition)
	assert.Equal(t, first.TransactionID, second.TransactionID)

	var balance *domain.MerchantBalance
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		var err error
		balance, err = tx.Balance("M1")
		return err
	}))
	assert.Equal(t, int64(500), balance.Available, "retry must not credit twice")
}

func TestProcessRejectedTransitionIsRecorded(t *testing.T) {
	adapter := &fakeAdapter{
		slug: "fakepay",
		event: &domain.NormalizedEvent{
			ProviderName:      "fakepay",
			ProviderEventID:   "evt-rev",
			ProviderReference: "M1-ORD1",
			ReportedStatus:    domain.ReportedReversed,
			Amount:            500,
			SignatureValid:    true,
		},
	}
	p, s := newTestProcessor(t, adapter)
	ctx := context.Background()

	// Reversal against a freshly created INITIATED transaction is not
	// permitted; the rejection must still be recorded so retries short-circuit.
	res, err := p.Process(ctx, "fakepay", []byte(`{}`), provider.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, recon.DispositionRejected, res.Disposition)

	var rec *domain.IdempotencyRecord
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		var err error
		rec, err = tx.IdempotencyRecord("fakepay", "evt-rev")
		return err
	}))
	assert.Equal(t, domain.OutcomeRejected, rec.Outcome)

	retry, err := p.Process(ctx, "fakepay", []byte(`{}`), provider.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, recon.DispositionDuplicate, retry.Disposition)
}

func TestProcessAuthFailureDiscardsWithAck(t *testing.T) {
	adapter := &fakeAdapter{
		slug: "fakepay",
		err:  &domain.AuthenticationError{Provider: "fakepay", Reason: "bad signature"},
	}
	p, s := newTestProcessor(t, adapter)
	ctx := context.Background()

	res, err := p.Process(ctx, "fakepay", []byte(`{}`), provider.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, recon.DispositionDiscarded, res.Disposition)
	assert.Equal(t, "OK", res.AckBody)

	count := 0
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		return tx.ForEachTransaction(func(*domain.Transaction) error {
			count++
			return nil
		})
	}))
	assert.Zero(t, count, "discarded delivery must not create records")
}

func TestProcessNegativeAmountDeliveryAbsorbed(t *testing.T) {
	s := newTestStore(t)
	registry := provider.NewRegistry()
	registry.Register(provider.NewEasypaisa("shh"))
	machine := recon.NewMachine(true, zerolog.Nop())
	p := recon.NewProcessor(registry, s, machine, zerolog.Nop())

	payload := []byte(`{
		"orderId": "M1-ORD1",
		"transactionId": "EP-NEG",
		"transactionStatus": "PAID",
		"transactionAmount": "-500",
		"storeSecret": "shh"
	}`)

	res, err := p.Process(context.Background(), "easypaisa", payload, provider.RequestMeta{})
	require.NoError(t, err, "a broken delivery must be absorbed, never look like a storage failure")
	assert.Equal(t, recon.DispositionDiscarded, res.Disposition)
	assert.NotEmpty(t, res.AckBody)
}

func TestProcessReversalBeyondBalanceRejectedWhenPolicyOff(t *testing.T) {
	adapter := &fakeAdapter{
		slug: "fakepay",
		event: &domain.NormalizedEvent{
			ProviderName:      "fakepay",
			ProviderEventID:   "evt-rev-2",
			ProviderReference: "M1-ORD1",
			ReportedStatus:    domain.ReportedReversed,
			Amount:            500,
			SignatureValid:    true,
		},
	}
	s := newTestStore(t)
	registry := provider.NewRegistry()
	registry.Register(adapter)
	machine := recon.NewMachine(false, zerolog.Nop())
	p := recon.NewProcessor(registry, s, machine, zerolog.Nop())
	ctx := context.Background()

	// COMPLETED transaction whose credit has already been spent down.
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return tx.PutTransaction(&domain.Transaction{
			ID: "t1", ProviderName: "fakepay", ProviderReference: "M1-ORD1",
			MerchantID: "M1", Amount: 500, Direction: domain.DirectionPayin,
			Status: domain.StatusCompleted,
		})
	}))

	res, err := p.Process(ctx, "fakepay", []byte(`{}`), provider.RequestMeta{})
	require.NoError(t, err, "policy refusal must not surface as storage unavailability")
	assert.Equal(t, recon.DispositionRejected, res.Disposition)

	var txn *domain.Transaction
	var rec *domain.IdempotencyRecord
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		var err error
		if txn, err = tx.Transaction("t1"); err != nil {
			return err
		}
		rec, err = tx.IdempotencyRecord("fakepay", "evt-rev-2")
		return err
	}))
	assert.Equal(t, domain.StatusCompleted, txn.Status, "refused reversal leaves the transaction alone")
	assert.Equal(t, domain.OutcomeRejected, rec.Outcome)

	retry, err := p.Process(ctx, "fakepay", []byte(`{}`), provider.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, recon.DispositionDuplicate, retry.Disposition)
}

func TestProcessMalformedPayloadDiscardsWithAck(t *testing.T) {
	adapter := &fakeAdapter{
		slug: "fakepay",
		err:  &domain.MalformedPayloadError{Provider: "fakepay", Reason: "not json"},
	}
	p, _ := newTestProcessor(t, adapter)

	res, err := p.Process(context.Background(), "fakepay", []byte(`garbage`), provider.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, recon.DispositionDiscarded, res.Disposition)
}

func TestProcessUnknownSlug(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeAdapter{slug: "fakepay"})

	_, err := p.Process(context.Background(), "nosuch", nil, provider.RequestMeta{})
	assert.ErrorIs(t, err, recon.ErrUnknownProvider)
}

func TestProcessUnattributedReference(t *testing.T) {
	adapter := &fakeAdapter{
		slug: "fakepay",
		event: &domain.NormalizedEvent{
			ProviderName:      "fakepay",
			ProviderEventID:   "evt-x",
			ProviderReference: "NOSEPARATOR",
			ReportedStatus:    domain.ReportedPending,
			Amount:            100,
			SignatureValid:    true,
		},
	}
	p, s := newTestProcessor(t, adapter)
	ctx := context.Background()

	res, err := p.Process(ctx, "fakepay", []byte(`{}`), provider.RequestMeta{})
	require.NoError(t, err)

	var txn *domain.Transaction
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		var err error
		txn, err = tx.Transaction(res.TransactionID)
		return err
	}))
	assert.Equal(t, "unattributed", txn.MerchantID)
	assert.Equal(t, domain.StatusPending, txn.Status)
}
