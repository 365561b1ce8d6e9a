package persistence

import (
	"context"
	"errors"
)

// ErrDataStoreClosed is returned when performing any operation on a closed
// data store.
var ErrDataStoreClosed = errors.New("data store is closed")

// ErrDataStoreLocked is returned by Provider.Open() if another engine
// already has the owner's data store open for exclusive use.
var ErrDataStoreLocked = errors.New("data store is locked")

// Provider is an interface used by the engine to open the data stores that
// hold application state.
type Provider interface {
	// Open returns the data store for a specific owner (tenant).
	//
	// All records within a data store belong to that owner; the owner is the
	// outermost partition of the persisted-state layout.
	Open(ctx context.Context, owner string) (DataStore, error)
}

// DataStore is the interface to the durable state of one owner.
//
// Reads are performed through the repository interfaces. Writes are
// expressed as operations and committed through the Persister; each batch is
// atomic within the data store, but projections that span partitions (such
// as the active-instance index) are only eventually consistent with the
// per-aggregate logs, which remain the source of truth.
type DataStore interface {
	AggregateRepository
	UniqueKeyRepository
	ProcessRepository
	SubscriptionRepository
	TimerRepository
	ArchiveRepository
	Persister

	// Close closes the data store, releasing any resources it holds.
	Close() error
}

// Persister is an interface for committing batches of operations to a data
// store.
type Persister interface {
	// Persist commits a batch of operations atomically.
	//
	// If any operation fails the entire batch is rejected and the data store
	// is left unchanged.
	Persist(ctx context.Context, b Batch) error
}

// WithDataStore opens the data store for the given owner, calls fn, then
// closes the data store regardless of the outcome.
func WithDataStore(
	ctx context.Context,
	p Provider,
	owner string,
	fn func(DataStore) error,
) (err error) {
	ds, err := p.Open(ctx, owner)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ds.Close(); err == nil {
			err = cerr
		}
	}()

	return fn(ds)
}
