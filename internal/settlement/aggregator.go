// Package settlement rolls completed transactions into per-merchant batches
// and processes refunds and chargebacks against them.
package settlement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store"
)

// Aggregator closes completed, unsettled transactions into settlement batches,
// one per merchant per run. Batch creation and the SETTLED transitions of its
// members happen in one atomic unit.
type Aggregator struct {
	store store.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewAggregator creates a settlement aggregator.
func NewAggregator(s store.Store, log zerolog.Logger) *Aggregator {
	return &Aggregator{store: s, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// RunOnce executes one settlement pass and returns the batches it created.
// Safe to trigger at any time: a transaction already SETTLED is simply not
// picked up again.
func (a *Aggregator) RunOnce(ctx context.Context) ([]*domain.SettlementBatch, error) {
	var batches []*domain.SettlementBatch

	err := a.store.Update(ctx, func(tx store.Tx) error {
		perMerchant := make(map[string][]*domain.Transaction)
		if err := tx.ForEachTransaction(func(txn *domain.Transaction) error {
			if txn.Status == domain.StatusCompleted && !txn.Settled {
				perMerchant[txn.MerchantID] = append(perMerchant[txn.MerchantID], txn)
			}
			return nil
		}); err != nil {
			return err
		}

		merchants := make([]string, 0, len(perMerchant))
		for m := range perMerchant {
			merchants = append(merchants, m)
		}
		sort.Strings(merchants)

		now := a.now()
		for _, merchantID := range merchants {
			txns := perMerchant[merchantID]
			batch := &domain.SettlementBatch{
				BatchID:    uuid.NewString(),
				MerchantID: merchantID,
				CreatedAt:  now,
				Status:     domain.BatchClosed,
			}
			for _, txn := range txns {
				batch.TransactionIDs = append(batch.TransactionIDs, txn.ID)
				// Net of the cycle: payins add, payouts subtract.
				if txn.Direction == domain.DirectionPayin {
					batch.TotalAmount += txn.Amount
				} else {
					batch.TotalAmount -= txn.Amount
				}

				txn.Status = domain.StatusSettled
				txn.Settled = true
				txn.UpdatedAt = now
				if err := tx.PutTransaction(txn); err != nil {
					return err
				}
			}
			if err := tx.PutSettlementBatch(batch); err != nil {
				return err
			}
			batches = append(batches, batch)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("settlement run: %w", err)
	}

	for _, b := range batches {
		a.log.Info().
			Str("batch_id", b.BatchID).
			Str("merchant_id", b.MerchantID).
			Int("transactions", len(b.TransactionIDs)).
			Int64("total_amount", b.TotalAmount).
			Msg("Settlement batch closed")
	}
	return batches, nil
}
