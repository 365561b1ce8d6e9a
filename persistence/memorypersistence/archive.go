package memorypersistence

import (
	"context"
	"time"

	"github.com/rite-engine/rite/persistence"
)

// LoadArchivedInstance loads a finished instance from an archive partition.
func (ds *dataStore) LoadArchivedInstance(
	_ context.Context,
	day, id string,
) (persistence.ArchivedInstance, error) {
	if err := ds.checkOpen(); err != nil {
		return persistence.ArchivedInstance{}, err
	}

	ds.db.mutex.RLock()
	defer ds.db.mutex.RUnlock()

	if inst, ok := ds.db.archive.entries[archiveKey{day, id}]; ok {
		return inst, nil
	}

	return persistence.ArchivedInstance{}, persistence.UnknownInstanceError{
		InstanceID: id,
	}
}

// DeleteExpiredArchives removes archived instances whose retention window
// ended at or before the given time.
func (ds *dataStore) DeleteExpiredArchives(
	_ context.Context,
	cutoff time.Time,
) (int, error) {
	if err := ds.checkOpen(); err != nil {
		return 0, err
	}

	ds.db.mutex.Lock()
	defer ds.db.mutex.Unlock()

	n := 0
	for key, inst := range ds.db.archive.entries {
		if !inst.ExpiresAt.After(cutoff) {
			delete(ds.db.archive.entries, key)
			n++
		}
	}

	return n, nil
}

// archiveDatabase contains finished instances, partitioned by day.
type archiveDatabase struct {
	entries map[archiveKey]persistence.ArchivedInstance
}

func (db *archiveDatabase) save(inst persistence.ArchivedInstance) {
	if db.entries == nil {
		db.entries = map[archiveKey]persistence.ArchivedInstance{}
	}

	db.entries[archiveKey{inst.Day, inst.InstanceID}] = inst
}
