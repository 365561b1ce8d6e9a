package memorypersistence

import (
	"context"
	"sync"

	"github.com/rite-engine/rite/persistence"
)

// dataStore is an implementation of persistence.DataStore backed by a
// database.
type dataStore struct {
	db *database

	m      sync.Mutex
	closed bool
}

// Persist commits a batch of operations atomically.
//
// The batch is validated in full before anything is applied: if any
// operation would conflict, the database is left unchanged.
func (ds *dataStore) Persist(ctx context.Context, b persistence.Batch) error {
	if err := ds.checkOpen(); err != nil {
		return err
	}

	ds.db.mutex.Lock()
	defer ds.db.mutex.Unlock()

	v := &validator{db: ds.db}
	for _, op := range b {
		if err := op.AcceptVisitor(ctx, v); err != nil {
			return err
		}
	}

	c := &committer{ds.db}
	for _, op := range b {
		if err := op.AcceptVisitor(ctx, c); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the data store, releasing the owner's exclusive lock.
func (ds *dataStore) Close() error {
	ds.m.Lock()
	defer ds.m.Unlock()

	if ds.closed {
		return persistence.ErrDataStoreClosed
	}

	ds.closed = true
	ds.db.close()

	return nil
}

func (ds *dataStore) checkOpen() error {
	ds.m.Lock()
	defer ds.m.Unlock()

	if ds.closed {
		return persistence.ErrDataStoreClosed
	}

	return nil
}

// validator rejects operations that can not be applied to the database. It
// never mutates the database, but it does track what earlier operations in
// the same batch will create, so that later operations can depend on them.
type validator struct {
	db *database

	// versions is the set of process versions saved by earlier operations
	// in the batch being validated.
	versions map[instanceKey]struct{}
}

// committer applies previously validated operations to the database.
type committer struct {
	db *database
}
