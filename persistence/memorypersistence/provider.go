// Package memorypersistence implements the persistence contract with plain
// in-memory data structures. State does not survive the process; it is
// intended for tests and local development.
package memorypersistence

import (
	"context"
	"sync"

	"github.com/rite-engine/rite/persistence"
)

// Provider is an implementation of persistence.Provider that stores owner
// data in memory.
type Provider struct {
	m         sync.Mutex
	databases map[string]*database
}

// Open returns the data store for a specific owner.
//
// Data stores are opened for exclusive use. If the owner's data store is
// already open, ErrDataStoreLocked is returned.
func (p *Provider) Open(_ context.Context, owner string) (persistence.DataStore, error) {
	p.m.Lock()
	defer p.m.Unlock()

	if p.databases == nil {
		p.databases = map[string]*database{}
	}

	db, ok := p.databases[owner]
	if !ok {
		db = &database{}
		p.databases[owner] = db
	}

	if !db.tryOpen() {
		return nil, persistence.ErrDataStoreLocked
	}

	return &dataStore{db: db}, nil
}

// instanceKey identifies an aggregate within a database.
type instanceKey struct {
	hk, id string
}

// bucketKey identifies one (day, time-of-day, shard) timer bucket.
type bucketKey struct {
	day, timeOfDay string
	shard          uint32
}

// archiveKey identifies an archived instance within its day partition.
type archiveKey struct {
	day, id string
}

// database is the in-memory state of one owner.
type database struct {
	mutex sync.RWMutex
	open  bool

	aggregates    aggregateDatabase
	processes     processDatabase
	subscriptions subscriptionDatabase
	timers        timerDatabase
	archive       archiveDatabase
	uniqueKeys    map[string]string
}

func (db *database) tryOpen() bool {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.open {
		return false
	}

	db.open = true
	return true
}

func (db *database) close() {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.open = false
}
