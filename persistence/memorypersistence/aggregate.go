package memorypersistence

import (
	"context"

	"github.com/rite-engine/rite/persistence"
)

// LoadAggregate loads the aggregate with the given uid.
func (ds *dataStore) LoadAggregate(
	_ context.Context,
	hk, id string,
	fromBeginning bool,
) (persistence.AggregateHistory, error) {
	if err := ds.checkOpen(); err != nil {
		return persistence.AggregateHistory{}, err
	}

	ds.db.mutex.RLock()
	defer ds.db.mutex.RUnlock()

	key := instanceKey{hk, id}

	h := persistence.AggregateHistory{
		MetaData: persistence.AggregateMetaData{
			HandlerKey: hk,
			InstanceID: id,
		},
	}

	if md, ok := ds.db.aggregates.metadata[key]; ok {
		h.MetaData = md
	}

	var since uint64
	if !fromBeginning {
		if ss, ok := ds.db.aggregates.snapshots[key]; ok {
			h.Snapshot = &ss
			since = ss.Revision
		}
	}

	for _, ev := range ds.db.aggregates.events[key] {
		if ev.Revision >= since {
			h.Events = append(h.Events, ev)
		}
	}

	return h, nil
}

// ReserveUniqueKey reserves the mapping of a natural-key hash to the
// proposed uid, first-writer-wins.
func (ds *dataStore) ReserveUniqueKey(
	_ context.Context,
	key, uid string,
) (string, error) {
	if err := ds.checkOpen(); err != nil {
		return "", err
	}

	ds.db.mutex.Lock()
	defer ds.db.mutex.Unlock()

	if existing, ok := ds.db.uniqueKeys[key]; ok {
		return existing, nil
	}

	if ds.db.uniqueKeys == nil {
		ds.db.uniqueKeys = map[string]string{}
	}

	ds.db.uniqueKeys[key] = uid

	return uid, nil
}

// VisitSaveAggregateEvent returns an error if a "SaveAggregateEvent"
// operation can not be applied to the database.
func (v *validator) VisitSaveAggregateEvent(
	_ context.Context,
	op persistence.SaveAggregateEvent,
) error {
	if !op.Guarded {
		return nil
	}

	key := instanceKey{op.Event.HandlerKey, op.Event.InstanceID}
	md := v.db.aggregates.metadata[key]

	if op.Event.Revision == md.Revision {
		return nil
	}

	return persistence.ConflictError{
		Cause: op,
	}
}

// VisitSaveAggregateEvent applies the changes in a "SaveAggregateEvent"
// operation to the database.
func (c *committer) VisitSaveAggregateEvent(
	_ context.Context,
	op persistence.SaveAggregateEvent,
) error {
	c.db.aggregates.appendEvent(op.Event)
	return nil
}

// VisitSaveAggregateSnapshot returns an error if a "SaveAggregateSnapshot"
// operation can not be applied to the database.
func (v *validator) VisitSaveAggregateSnapshot(
	_ context.Context,
	op persistence.SaveAggregateSnapshot,
) error {
	ss := op.Snapshot

	if ss.HandlerKey != "" && ss.InstanceID != "" {
		return nil
	}

	return persistence.NotFoundError{
		Cause: op,
	}
}

// VisitSaveAggregateSnapshot applies the changes in a "SaveAggregateSnapshot"
// operation to the database.
func (c *committer) VisitSaveAggregateSnapshot(
	_ context.Context,
	op persistence.SaveAggregateSnapshot,
) error {
	c.db.aggregates.saveSnapshot(op.Snapshot)
	return nil
}

// VisitArchiveAggregate returns an error if an "ArchiveAggregate" operation
// can not be applied to the database.
func (v *validator) VisitArchiveAggregate(
	_ context.Context,
	op persistence.ArchiveAggregate,
) error {
	key := instanceKey{op.HandlerKey, op.Instance.InstanceID}
	md, ok := v.db.aggregates.metadata[key]

	if ok && op.Revision == md.Revision {
		return nil
	}

	return persistence.ConflictError{
		Cause: op,
	}
}

// VisitArchiveAggregate applies the changes in an "ArchiveAggregate"
// operation to the database.
//
// The aggregate's log and snapshot are deleted and its archive record
// written. The sentinel meta-data is retained with InstanceExists set to
// false so that stale writers still conflict.
func (c *committer) VisitArchiveAggregate(
	_ context.Context,
	op persistence.ArchiveAggregate,
) error {
	key := instanceKey{op.HandlerKey, op.Instance.InstanceID}

	md := c.db.aggregates.metadata[key]
	md.InstanceExists = false
	c.db.aggregates.metadata[key] = md

	delete(c.db.aggregates.events, key)
	delete(c.db.aggregates.snapshots, key)

	c.db.processes.removeActiveInstance(
		op.Instance.ProcessID,
		op.Instance.InstanceID,
	)

	c.db.archive.save(op.Instance)

	return nil
}

// aggregateDatabase contains aggregate log data.
type aggregateDatabase struct {
	metadata  map[instanceKey]persistence.AggregateMetaData
	snapshots map[instanceKey]persistence.AggregateSnapshot
	events    map[instanceKey][]persistence.AggregateEvent
}

// appendEvent appends ev to the aggregate's log and advances its sentinel
// revision.
func (db *aggregateDatabase) appendEvent(ev persistence.AggregateEvent) {
	key := instanceKey{ev.HandlerKey, ev.InstanceID}

	if db.metadata == nil {
		db.metadata = map[instanceKey]persistence.AggregateMetaData{}
		db.events = map[instanceKey][]persistence.AggregateEvent{}
	}

	md, ok := db.metadata[key]
	if !ok {
		md = persistence.AggregateMetaData{
			HandlerKey: ev.HandlerKey,
			InstanceID: ev.InstanceID,
		}
	}

	// Unguarded writers append at whatever the stored revision is.
	ev.Revision = md.Revision

	md.Revision++
	md.InstanceExists = true

	db.metadata[key] = md
	db.events[key] = append(db.events[key], ev)
}

func (db *aggregateDatabase) saveSnapshot(ss persistence.AggregateSnapshot) {
	key := instanceKey{ss.HandlerKey, ss.InstanceID}

	if db.snapshots == nil {
		db.snapshots = map[instanceKey]persistence.AggregateSnapshot{}
	}

	db.snapshots[key] = ss
}
