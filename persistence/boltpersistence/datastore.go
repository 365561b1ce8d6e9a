package boltpersistence

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rite-engine/rite/internal/x/bboltx"
	"github.com/rite-engine/rite/persistence"
	"go.etcd.io/bbolt"
)

// dataStore is an implementation of persistence.DataStore for one owner's
// records within a BoltDB database.
type dataStore struct {
	db       *bbolt.DB
	ownerKey []byte
	release  func() error

	m      sync.Mutex
	closed bool
}

// Persist commits a batch of operations atomically.
//
// The batch is applied within a single BoltDB transaction; if any operation
// fails the transaction rolls back and the database is left unchanged.
func (ds *dataStore) Persist(ctx context.Context, b persistence.Batch) error {
	if err := ds.checkOpen(); err != nil {
		return err
	}

	return ds.update(func(tx *bbolt.Tx) error {
		c := &committer{
			root: bboltx.CreateBucketIfNotExists(tx, ds.ownerKey),
		}

		for _, op := range b {
			if err := op.AcceptVisitor(ctx, c); err != nil {
				return err
			}
		}

		return nil
	})
}

// Close closes the data store, releasing the owner's exclusive lock.
func (ds *dataStore) Close() error {
	ds.m.Lock()
	defer ds.m.Unlock()

	if ds.closed {
		return persistence.ErrDataStoreClosed
	}

	ds.closed = true

	return ds.release()
}

func (ds *dataStore) checkOpen() error {
	ds.m.Lock()
	defer ds.m.Unlock()

	if ds.closed {
		return persistence.ErrDataStoreClosed
	}

	return nil
}

// view executes a read-only transaction scoped to the owner's root bucket,
// which may be nil if nothing has been persisted yet.
func (ds *dataStore) view(fn func(root *bbolt.Bucket)) error {
	return bboltx.View(ds.db, func(tx *bbolt.Tx) {
		fn(tx.Bucket(ds.ownerKey))
	})
}

// update executes a read-write transaction, converting bboltx panics back
// into errors and rolling back on failure.
func (ds *dataStore) update(fn func(tx *bbolt.Tx) error) (err error) {
	defer bboltx.Recover(&err)

	return ds.db.Update(func(tx *bbolt.Tx) (err error) {
		defer bboltx.Recover(&err)
		return fn(tx)
	})
}

// committer validates and applies operations within one transaction. Any
// error rolls the whole transaction back.
type committer struct {
	root *bbolt.Bucket
}

// marshalRecord marshals a stored record to JSON.
func marshalRecord(v interface{}) []byte {
	data, err := json.Marshal(v)
	bboltx.Must(err)
	return data
}

// unmarshalRecord unmarshals a stored record from JSON.
func unmarshalRecord(data []byte, v interface{}) {
	bboltx.Must(json.Unmarshal(data, v))
}
