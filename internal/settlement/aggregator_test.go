package settlement_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/settlement"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store/boltstore"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := boltstore.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTxn(t *testing.T, s store.Store, txn *domain.Transaction) {
	t.Helper()
	now := time.Now().UTC()
	txn.CreatedAt = now
	txn.UpdatedAt = now
	require.NoError(t, s.Update(context.Background(), func(tx store.Tx) error {
		return tx.PutTransaction(txn)
	}))
}

func TestRunOnceBatchesPerMerchant(t *testing.T) {
	s := newTestStore(t)
	a := settlement.NewAggregator(s, zerolog.Nop())
	ctx := context.Background()

	seedTxn(t, s, &domain.Transaction{
		ID: "t1", ProviderName: "jazzcash", ProviderReference: "M1-1",
		MerchantID: "M1", Amount: 500, Direction: domain.DirectionPayin,
		Status: domain.StatusCompleted,
	})
	seedTxn(t, s, &domain.Transaction{
		ID: "t2", ProviderName: "easypaisa", ProviderReference: "M1-2",
		MerchantID: "M1", Amount: 300, Direction: domain.DirectionPayin,
		Status: domain.StatusCompleted,
	})
	seedTxn(t, s, &domain.Transaction{
		ID: "t3", ProviderName: "cardnet", ProviderReference: "t3",
		MerchantID: "M1", Amount: 200, Direction: domain.DirectionPayout,
		Status: domain.StatusCompleted,
	})
	seedTxn(t, s, &domain.Transaction{
		ID: "t4", ProviderName: "jazzcash", ProviderReference: "M2-1",
		MerchantID: "M2", Amount: 100, Direction: domain.DirectionPayin,
		Status: domain.StatusCompleted,
	})
	// Not eligible: still pending.
	seedTxn(t, s, &domain.Transaction{
		ID: "t5", ProviderName: "jazzcash", ProviderReference: "M2-2",
		MerchantID: "M2", Amount: 900, Direction: domain.DirectionPayin,
		Status: domain.StatusPending,
	})

	batches, err := a.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 2)

	// Merchants come out in sorted order.
	m1, m2 := batches[0], batches[1]
	assert.Equal(t, "M1", m1.MerchantID)
	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, m1.TransactionIDs)
	assert.Equal(t, int64(600), m1.TotalAmount, "500+300 payins minus 200 payout")
	assert.Equal(t, domain.BatchClosed, m1.Status)

	assert.Equal(t, "M2", m2.MerchantID)
	assert.Equal(t, []string{"t4"}, m2.TransactionIDs)
	assert.Equal(t, int64(100), m2.TotalAmount)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		for _, id := range []string{"t1", "t2", "t3", "t4"} {
			txn, err := tx.Transaction(id)
			if err != nil {
				return err
			}
			assert.Equal(t, domain.StatusSettled, txn.Status, id)
			assert.True(t, txn.Settled, id)
		}
		pending, err := tx.Transaction("t5")
		if err != nil {
			return err
		}
		assert.Equal(t, domain.StatusPending, pending.Status)
		return nil
	}))
}

func TestRunOnceIsIdempotentAcrossRuns(t *testing.T) {
	s := newTestStore(t)
	a := settlement.NewAggregator(s, zerolog.Nop())
	ctx := context.Background()

	seedTxn(t, s, &domain.Transaction{
		ID: "t1", ProviderName: "jazzcash", ProviderReference: "M1-1",
		MerchantID: "M1", Amount: 500, Direction: domain.DirectionPayin,
		Status: domain.StatusCompleted,
	})

	first, err := a.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := a.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, second, "settled transactions are not picked up again")
}

func TestRunOnceEmptyLedger(t *testing.T) {
	s := newTestStore(t)
	a := settlement.NewAggregator(s, zerolog.Nop())

	batches, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batches)
}
