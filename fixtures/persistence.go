package fixtures

import (
	"context"

	"github.com/rite-engine/rite/persistence"
	"github.com/rite-engine/rite/persistence/memorypersistence"
)

// ProviderStub is a test implementation of the persistence.Provider
// interface.
type ProviderStub struct {
	persistence.Provider

	OpenFunc func(context.Context, string) (persistence.DataStore, error)
}

// Open returns the data store for a specific owner.
func (p *ProviderStub) Open(ctx context.Context, owner string) (persistence.DataStore, error) {
	if p.OpenFunc != nil {
		return p.OpenFunc(ctx, owner)
	}

	if p.Provider != nil {
		ds, err := p.Provider.Open(ctx, owner)
		if ds != nil {
			ds = &DataStoreStub{DataStore: ds}
		}
		return ds, err
	}

	return nil, nil
}

// DataStoreStub is a test implementation of the persistence.DataStore
// interface.
type DataStoreStub struct {
	persistence.DataStore

	PersistFunc func(context.Context, persistence.Batch) error
	CloseFunc   func() error
}

// NewDataStoreStub returns a data-store stub backed by an in-memory
// provider.
func NewDataStoreStub() *DataStoreStub {
	p := &memorypersistence.Provider{}

	ds, err := p.Open(context.Background(), "<fixture-owner>")
	if err != nil {
		panic(err)
	}

	return &DataStoreStub{
		DataStore: ds,
	}
}

// Persist commits a batch of operations atomically.
func (ds *DataStoreStub) Persist(ctx context.Context, b persistence.Batch) error {
	if ds.PersistFunc != nil {
		return ds.PersistFunc(ctx, b)
	}

	if ds.DataStore != nil {
		return ds.DataStore.Persist(ctx, b)
	}

	return nil
}

// Close closes the data store.
func (ds *DataStoreStub) Close() error {
	if ds.CloseFunc != nil {
		return ds.CloseFunc()
	}

	if ds.DataStore != nil {
		return ds.DataStore.Close()
	}

	return nil
}
