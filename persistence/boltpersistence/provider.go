// Package boltpersistence implements the persistence contract using BoltDB.
//
// Each owner's records live under a top-level bucket named after the owner's
// identity key. Records are stored as JSON.
package boltpersistence

import (
	"context"
	"os"
	"sync"

	"github.com/rite-engine/rite/internal/x/bboltx"
	"github.com/rite-engine/rite/persistence"
	"go.etcd.io/bbolt"
)

// Provider is an implementation of persistence.Provider that uses an
// existing open BoltDB database.
type Provider struct {
	provider

	// DB is the BoltDB database to use.
	DB *bbolt.DB
}

// Open returns the data store for a specific owner.
//
// Data stores are opened for exclusive use. If another engine instance has
// already opened this owner's data store, ErrDataStoreLocked is returned.
func (p *Provider) Open(ctx context.Context, owner string) (persistence.DataStore, error) {
	return p.open(
		owner,
		func() (*bbolt.DB, error) {
			return p.DB, nil
		},
		func(*bbolt.DB) error {
			// The database was opened by the caller; it is theirs to close.
			return nil
		},
	)
}

// FileProvider is an implementation of persistence.Provider that opens a
// BoltDB database file.
type FileProvider struct {
	provider

	// Path is the path to the BoltDB database to open or create.
	Path string

	// Mode is the file mode for the created file. If it is zero, 0600 is
	// used.
	Mode os.FileMode

	// Options is the BoltDB options for the database. If it is nil,
	// bbolt.DefaultOptions is used.
	Options *bbolt.Options
}

// Open returns the data store for a specific owner.
//
// The database file is opened on first use and closed when the last data
// store is closed. If another engine instance has already opened this
// owner's data store, ErrDataStoreLocked is returned.
func (p *FileProvider) Open(ctx context.Context, owner string) (persistence.DataStore, error) {
	return p.open(
		owner,
		func() (*bbolt.DB, error) {
			return bboltx.Open(ctx, p.Path, p.Mode, p.Options)
		},
		func(db *bbolt.DB) error {
			return db.Close()
		},
	)
}

// provider is the common implementation of Provider and FileProvider.
type provider struct {
	m      sync.Mutex
	db     *bbolt.DB
	close  func(db *bbolt.DB) error
	owners map[string]struct{}
}

func (p *provider) open(
	owner string,
	open func() (*bbolt.DB, error),
	close func(db *bbolt.DB) error,
) (persistence.DataStore, error) {
	p.m.Lock()
	defer p.m.Unlock()

	if _, ok := p.owners[owner]; ok {
		return nil, persistence.ErrDataStoreLocked
	}

	if p.db == nil {
		db, err := open()
		if err != nil {
			return nil, err
		}

		p.db = db
		p.close = close
	}

	if p.owners == nil {
		p.owners = map[string]struct{}{}
	}
	p.owners[owner] = struct{}{}

	return &dataStore{
		db:       p.db,
		ownerKey: []byte(owner),
		release: func() error {
			return p.release(owner)
		},
	}, nil
}

// release is called when an owner's data store is closed. The database
// itself is closed when the last data store releases it.
func (p *provider) release(owner string) error {
	p.m.Lock()
	defer p.m.Unlock()

	delete(p.owners, owner)

	if len(p.owners) == 0 {
		db := p.db
		p.db = nil

		return p.close(db)
	}

	return nil
}
