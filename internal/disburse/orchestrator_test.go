package disburse_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/disburse"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/ledger"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store/boltstore"
)

// fakeClient records Send calls and answers with configured results.
type fakeClient struct {
	mu         sync.Mutex
	sendStatus disburse.PayoutStatus
	sendErr    error
	sendCalls  []string
	statusBy   map[string]disburse.PayoutStatus
}

func (f *fakeClient) Send(ctx context.Context, key, destination string, amount int64) (disburse.PayoutStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls = append(f.sendCalls, key)
	return f.sendStatus, f.sendErr
}

func (f *fakeClient) Status(ctx context.Context, key string) (disburse.PayoutStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statusBy[key]; ok {
		return s, nil
	}
	return disburse.PayoutUnknown, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newOrchestrator(s store.Store, client disburse.PayoutClient) *disburse.Orchestrator {
	return disburse.NewOrchestrator(s, client, disburse.Config{
		ProviderName: "cardnet",
		Currency:     "PKR",
		CallTimeout:  time.Second,
		StaleAfter:   time.Minute,
	}, zerolog.Nop())
}

func balanceOf(t *testing.T, s store.Store, merchantID string) *domain.MerchantBalance {
	t.Helper()
	b, err := ledger.NewBalance(s).Get(context.Background(), merchantID)
	require.NoError(t, err)
	return b
}

func TestDisburseInsufficientFunds(t *testing.T) {
	s := newTestStore(t)
	client := &fakeClient{sendStatus: disburse.PayoutAccepted}
	o := newOrchestrator(s, client)
	ctx := context.Background()

	require.NoError(t, ledger.NewBalance(s).Credit(ctx, "M2", 800))

	_, err := o.Disburse(ctx, "M2", 1000, "acct-123")
	var insufficient *domain.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(800), insufficient.Available)
	assert.Equal(t, int64(1000), insufficient.Requested)

	assert.Empty(t, client.sendCalls, "no payout call without funds")
	b := balanceOf(t, s, "M2")
	assert.Equal(t, int64(800), b.Available)
	assert.Equal(t, int64(0), b.Pending)
}

func TestDisburseReservesAndInitiates(t *testing.T) {
	s := newTestStore(t)
	client := &fakeClient{sendStatus: disburse.PayoutAccepted}
	o := newOrchestrator(s, client)
	ctx := context.Background()

	require.NoError(t, ledger.NewBalance(s).Credit(ctx, "M3", 1000))

	res, err := o.Disburse(ctx, "M3", 300, "acct-123")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, res.Status)
	assert.Equal(t, int64(300), res.Amount)

	b := balanceOf(t, s, "M3")
	assert.Equal(t, int64(700), b.Available)
	assert.Equal(t, int64(300), b.Pending)

	require.Len(t, client.sendCalls, 1)
	assert.Equal(t, res.TransactionID, client.sendCalls[0], "idempotency key is the transaction id")

	var txn *domain.Transaction
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		var err error
		txn, err = tx.Transaction(res.TransactionID)
		return err
	}))
	assert.Equal(t, txn.ID, txn.ProviderReference)
	assert.Equal(t, domain.DirectionPayout, txn.Direction)
	assert.NotEmpty(t, txn.ReservationID)
}

func TestDisburseRejectedReleasesReservation(t *testing.T) {
	s := newTestStore(t)
	client := &fakeClient{sendStatus: disburse.PayoutRejected}
	o := newOrchestrator(s, client)
	ctx := context.Background()

	require.NoError(t, ledger.NewBalance(s).Credit(ctx, "M3", 1000))

	res, err := o.Disburse(ctx, "M3", 300, "acct-123")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, res.Status)

	b := balanceOf(t, s, "M3")
	assert.Equal(t, int64(1000), b.Available)
	assert.Equal(t, int64(0), b.Pending)
}

func TestDisburseSendErrorLeavesHold(t *testing.T) {
	s := newTestStore(t)
	client := &fakeClient{sendErr: errors.New("connection reset")}
	o := newOrchestrator(s, client)
	ctx := context.Background()

	require.NoError(t, ledger.NewBalance(s).Credit(ctx, "M3", 1000))

	res, err := o.Disburse(ctx, "M3", 300, "acct-123")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, res.Status, "indefinite result stays PENDING for the sweep")

	b := balanceOf(t, s, "M3")
	assert.Equal(t, int64(700), b.Available)
	assert.Equal(t, int64(300), b.Pending, "hold stays until the payout resolves")
}

// seedStuckPayout writes a payout transaction with a held reservation whose
// clock is old enough for the recovery sweep to pick up.
func seedStuckPayout(t *testing.T, s store.Store, id, merchantID string, amount int64, status domain.TransactionStatus) {
	t.Helper()
	ctx := context.Background()
	balances := ledger.NewBalance(s)
	require.NoError(t, balances.Credit(ctx, merchantID, amount))
	resID, err := balances.Reserve(ctx, merchantID, amount)
	require.NoError(t, err)

	stale := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return tx.PutTransaction(&domain.Transaction{
			ID: id, ProviderName: "cardnet", ProviderReference: id,
			MerchantID: merchantID, Amount: amount, Currency: "PKR",
			Direction: domain.DirectionPayout, Status: status,
			ReservationID: resID, CreatedAt: stale, UpdatedAt: stale,
		})
	}))
}

func TestSweepResolvesRejectedPayout(t *testing.T) {
	s := newTestStore(t)
	client := &fakeClient{statusBy: map[string]disburse.PayoutStatus{
		"stuck-1": disburse.PayoutRejected,
	}}
	o := newOrchestrator(s, client)
	ctx := context.Background()

	seedStuckPayout(t, s, "stuck-1", "M4", 500, domain.StatusPending)

	examined, err := o.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, examined)

	var txn *domain.Transaction
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		var err error
		txn, err = tx.Transaction("stuck-1")
		return err
	}))
	assert.Equal(t, domain.StatusFailed, txn.Status)

	b := balanceOf(t, s, "M4")
	assert.Equal(t, int64(500), b.Available, "funds returned on definite rejection")
	assert.Equal(t, int64(0), b.Pending)
}

func TestSweepPromotesAcceptedPayout(t *testing.T) {
	s := newTestStore(t)
	client := &fakeClient{statusBy: map[string]disburse.PayoutStatus{
		"stuck-2": disburse.PayoutAccepted,
	}}
	o := newOrchestrator(s, client)
	ctx := context.Background()

	seedStuckPayout(t, s, "stuck-2", "M4", 500, domain.StatusInitiated)

	_, err := o.Sweep(ctx)
	require.NoError(t, err)

	var txn *domain.Transaction
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		var err error
		txn, err = tx.Transaction("stuck-2")
		return err
	}))
	assert.Equal(t, domain.StatusPending, txn.Status)

	b := balanceOf(t, s, "M4")
	assert.Equal(t, int64(500), b.Pending, "hold kept until the confirming callback")
}

func TestSweepHoldsUnknownPayout(t *testing.T) {
	s := newTestStore(t)
	client := &fakeClient{}
	o := newOrchestrator(s, client)
	ctx := context.Background()

	seedStuckPayout(t, s, "stuck-3", "M4", 500, domain.StatusPending)

	examined, err := o.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, examined)

	var txn *domain.Transaction
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		var err error
		txn, err = tx.Transaction("stuck-3")
		return err
	}))
	assert.Equal(t, domain.StatusPending, txn.Status, "no definite answer, nothing changes")
	assert.Equal(t, int64(500), balanceOf(t, s, "M4").Pending)
}

func TestSweepIgnoresFreshAndFinalPayouts(t *testing.T) {
	s := newTestStore(t)
	o := newOrchestrator(s, &fakeClient{})
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		fresh := &domain.Transaction{
			ID: "fresh", ProviderName: "cardnet", ProviderReference: "fresh",
			MerchantID: "M4", Amount: 100, Direction: domain.DirectionPayout,
			Status: domain.StatusPending, CreatedAt: now, UpdatedAt: now,
		}
		done := &domain.Transaction{
			ID: "done", ProviderName: "cardnet", ProviderReference: "done",
			MerchantID: "M4", Amount: 100, Direction: domain.DirectionPayout,
			Status: domain.StatusCompleted, CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now.Add(-2 * time.Hour),
		}
		if err := tx.PutTransaction(fresh); err != nil {
			return err
		}
		return tx.PutTransaction(done)
	}))

	examined, err := o.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, examined)
}
