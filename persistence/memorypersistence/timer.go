package memorypersistence

import (
	"context"
	"sort"

	"github.com/rite-engine/rite/persistence"
)

// LoadDueTimers returns the timers in one (day, time-of-day, shard) bucket.
func (ds *dataStore) LoadDueTimers(
	_ context.Context,
	day, timeOfDay string,
	shard uint32,
) ([]persistence.Timer, error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	ds.db.mutex.RLock()
	defer ds.db.mutex.RUnlock()

	key := bucketKey{day, timeOfDay, shard}

	var timers []persistence.Timer
	for _, tm := range ds.db.timers.buckets[key] {
		timers = append(timers, tm)
	}

	sortTimers(timers)

	return timers, nil
}

// LoadTimers returns all pending timers of the data store's owner.
func (ds *dataStore) LoadTimers(
	_ context.Context,
) ([]persistence.Timer, error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	ds.db.mutex.RLock()
	defer ds.db.mutex.RUnlock()

	var timers []persistence.Timer
	for _, tm := range ds.db.timers.byID {
		timers = append(timers, tm)
	}

	sortTimers(timers)

	return timers, nil
}

// VisitSaveTimer returns an error if a "SaveTimer" operation can not be
// applied to the database.
func (v *validator) VisitSaveTimer(
	_ context.Context,
	op persistence.SaveTimer,
) error {
	return nil
}

// VisitSaveTimer applies the changes in a "SaveTimer" operation to the
// database, writing the shard-bucketed and owner-indexed views together.
func (c *committer) VisitSaveTimer(
	_ context.Context,
	op persistence.SaveTimer,
) error {
	c.db.timers.save(op.Timer)
	return nil
}

// VisitRemoveTimer returns an error if a "RemoveTimer" operation can not be
// applied to the database.
//
// Removing a timer that has already fired is a NotFoundError, which is how
// concurrent tickers avoid firing the same occurrence twice.
func (v *validator) VisitRemoveTimer(
	_ context.Context,
	op persistence.RemoveTimer,
) error {
	if _, ok := v.db.timers.byID[op.Timer.TimerID]; ok {
		return nil
	}

	return persistence.NotFoundError{
		Cause: op,
	}
}

// VisitRemoveTimer applies the changes in a "RemoveTimer" operation to the
// database.
func (c *committer) VisitRemoveTimer(
	_ context.Context,
	op persistence.RemoveTimer,
) error {
	c.db.timers.remove(op.Timer.TimerID)
	return nil
}

// timerDatabase contains scheduled timers, in both the shard-bucketed and
// owner-indexed views.
type timerDatabase struct {
	buckets map[bucketKey]map[string]persistence.Timer
	byID    map[string]persistence.Timer
}

func (db *timerDatabase) save(tm persistence.Timer) {
	if db.byID == nil {
		db.byID = map[string]persistence.Timer{}
		db.buckets = map[bucketKey]map[string]persistence.Timer{}
	}

	// Re-saving an existing timer ID must not leave it in two buckets.
	db.remove(tm.TimerID)

	key := bucketKey{tm.Day, tm.TimeOfDay, tm.Shard}
	if db.buckets[key] == nil {
		db.buckets[key] = map[string]persistence.Timer{}
	}

	db.buckets[key][tm.TimerID] = tm
	db.byID[tm.TimerID] = tm
}

func (db *timerDatabase) remove(timerID string) {
	tm, ok := db.byID[timerID]
	if !ok {
		return
	}

	key := bucketKey{tm.Day, tm.TimeOfDay, tm.Shard}

	delete(db.buckets[key], timerID)
	if len(db.buckets[key]) == 0 {
		delete(db.buckets, key)
	}

	delete(db.byID, timerID)
}

func sortTimers(timers []persistence.Timer) {
	sort.Slice(timers, func(i, j int) bool {
		return timers[i].TimerID < timers[j].TimerID
	})
}
