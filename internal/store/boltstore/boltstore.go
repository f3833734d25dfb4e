// Package boltstore implements the repository interface on BoltDB, an embedded
// key/value store holding all data in a single file. Records are JSON-encoded,
// one bucket per record type, plus an index bucket mapping
// (provider, provider_reference) to the owning transaction id.
//
// BoltDB runs mutating transactions through a single writer, so one
// db.Update covers the whole webhook unit of work — idempotency insertion,
// state transition and balance mutation commit or roll back together.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store"
)

var buckets = []string{
	bucketTransactions,
	bucketTxRefs,
	bucketBalances,
	bucketReservations,
	bucketIdempotency,
	bucketDisputes,
	bucketSettlements,
}

const (
	bucketTransactions = "transactions"
	bucketTxRefs       = "transaction_refs"
	bucketBalances     = "balances"
	bucketReservations = "reservations"
	bucketIdempotency  = "idempotency"
	bucketDisputes     = "disputes"
	bucketSettlements  = "settlement_batches"
)

// Store is the BoltDB-backed implementation of store.Store.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, &domain.StorageUnavailableError{Op: "open", Err: err}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, &domain.StorageUnavailableError{Op: "init buckets", Err: err}
	}

	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// View implements store.Store.
func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

// Update implements store.Store. Errors returned by fn pass through unchanged;
// Bolt-level failures surface as StorageUnavailableError.
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&boltTx{tx: btx})
	})
}

// boltTx adapts one bolt transaction to the store.Tx interface.
type boltTx struct {
	tx *bolt.Tx
}

// compositeKey joins a provider-scoped key. Provider slugs never contain '|'.
func compositeKey(provider, id string) []byte {
	return []byte(provider + "|" + id)
}

func (t *boltTx) get(bucket string, key []byte, out interface{}) error {
	v := t.tx.Bucket([]byte(bucket)).Get(key)
	if v == nil {
		return store.ErrNotFound
	}
	if err := json.Unmarshal(v, out); err != nil {
		return &domain.StorageUnavailableError{Op: "decode " + bucket, Err: err}
	}
	return nil
}

func (t *boltTx) put(bucket string, key []byte, in interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return &domain.StorageUnavailableError{Op: "encode " + bucket, Err: err}
	}
	if err := t.tx.Bucket([]byte(bucket)).Put(key, data); err != nil {
		return &domain.StorageUnavailableError{Op: "put " + bucket, Err: err}
	}
	return nil
}

func (t *boltTx) Transaction(id string) (*domain.Transaction, error) {
	var txn domain.Transaction
	if err := t.get(bucketTransactions, []byte(id), &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func (t *boltTx) TransactionByReference(provider, reference string) (*domain.Transaction, error) {
	id := t.tx.Bucket([]byte(bucketTxRefs)).Get(compositeKey(provider, reference))
	if id == nil {
		return nil, store.ErrNotFound
	}
	return t.Transaction(string(id))
}

func (t *boltTx) PutTransaction(txn *domain.Transaction) error {
	if txn.ProviderReference != "" {
		key := compositeKey(txn.ProviderName, txn.ProviderReference)
		refs := t.tx.Bucket([]byte(bucketTxRefs))
		if existing := refs.Get(key); existing != nil && string(existing) != txn.ID {
			return fmt.Errorf("%s %s/%s: %w",
				txn.ID, txn.ProviderName, txn.ProviderReference, store.ErrReferenceTaken)
		}
		if err := refs.Put(key, []byte(txn.ID)); err != nil {
			return &domain.StorageUnavailableError{Op: "put " + bucketTxRefs, Err: err}
		}
	}
	return t.put(bucketTransactions, []byte(txn.ID), txn)
}

func (t *boltTx) ForEachTransaction(fn func(*domain.Transaction) error) error {
	return t.forEach(bucketTransactions, func(v []byte) error {
		var txn domain.Transaction
		if err := json.Unmarshal(v, &txn); err != nil {
			return &domain.StorageUnavailableError{Op: "decode " + bucketTransactions, Err: err}
		}
		return fn(&txn)
	})
}

func (t *boltTx) Balance(merchantID string) (*domain.MerchantBalance, error) {
	var b domain.MerchantBalance
	if err := t.get(bucketBalances, []byte(merchantID), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *boltTx) PutBalance(b *domain.MerchantBalance) error {
	return t.put(bucketBalances, []byte(b.MerchantID), b)
}

func (t *boltTx) Reservation(id string) (*domain.BalanceReservation, error) {
	var r domain.BalanceReservation
	if err := t.get(bucketReservations, []byte(id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *boltTx) PutReservation(r *domain.BalanceReservation) error {
	return t.put(bucketReservations, []byte(r.ID), r)
}

func (t *boltTx) IdempotencyRecord(provider, eventID string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	if err := t.get(bucketIdempotency, compositeKey(provider, eventID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (t *boltTx) PutIdempotencyRecord(rec *domain.IdempotencyRecord) error {
	return t.put(bucketIdempotency, compositeKey(rec.ProviderName, rec.ProviderEventID), rec)
}

func (t *boltTx) DeleteIdempotencyRecord(provider, eventID string) error {
	if err := t.tx.Bucket([]byte(bucketIdempotency)).Delete(compositeKey(provider, eventID)); err != nil {
		return &domain.StorageUnavailableError{Op: "delete " + bucketIdempotency, Err: err}
	}
	return nil
}

func (t *boltTx) ForEachIdempotencyRecord(fn func(*domain.IdempotencyRecord) error) error {
	return t.forEach(bucketIdempotency, func(v []byte) error {
		var rec domain.IdempotencyRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return &domain.StorageUnavailableError{Op: "decode " + bucketIdempotency, Err: err}
		}
		return fn(&rec)
	})
}

func (t *boltTx) Dispute(id string) (*domain.Dispute, error) {
	var d domain.Dispute
	if err := t.get(bucketDisputes, []byte(id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (t *boltTx) PutDispute(d *domain.Dispute) error {
	return t.put(bucketDisputes, []byte(d.ID), d)
}

func (t *boltTx) ForEachDispute(fn func(*domain.Dispute) error) error {
	return t.forEach(bucketDisputes, func(v []byte) error {
		var d domain.Dispute
		if err := json.Unmarshal(v, &d); err != nil {
			return &domain.StorageUnavailableError{Op: "decode " + bucketDisputes, Err: err}
		}
		return fn(&d)
	})
}

func (t *boltTx) SettlementBatch(id string) (*domain.SettlementBatch, error) {
	var b domain.SettlementBatch
	if err := t.get(bucketSettlements, []byte(id), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *boltTx) PutSettlementBatch(b *domain.SettlementBatch) error {
	return t.put(bucketSettlements, []byte(b.BatchID), b)
}

func (t *boltTx) ForEachSettlementBatch(fn func(*domain.SettlementBatch) error) error {
	return t.forEach(bucketSettlements, func(v []byte) error {
		var b domain.SettlementBatch
		if err := json.Unmarshal(v, &b); err != nil {
			return &domain.StorageUnavailableError{Op: "decode " + bucketSettlements, Err: err}
		}
		return fn(&b)
	})
}

func (t *boltTx) forEach(bucket string, fn func(v []byte) error) error {
	return t.tx.Bucket([]byte(bucket)).ForEach(func(_, v []byte) error {
		return fn(v)
	})
}
