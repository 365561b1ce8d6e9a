package boltpersistence

import (
	"context"
	"encoding/binary"

	"github.com/rite-engine/rite/internal/x/bboltx"
	"github.com/rite-engine/rite/persistence"
	"go.etcd.io/bbolt"
)

var (
	// aggregateBucketKey is the key for the root bucket for aggregate data.
	//
	// The keys are machine handler keys. The values are buckets further
	// split into metadata, snapshot and event-log buckets.
	aggregateBucketKey = []byte("aggregate")

	// aggregateMetaDataBucketKey is the key for a child bucket containing
	// the sentinel record of each aggregate of a specific machine.
	//
	// The keys are aggregate uids. The values are JSON-marshaled
	// persistence.AggregateMetaData records.
	aggregateMetaDataBucketKey = []byte("metadata")

	// aggregateSnapshotBucketKey is the key for a child bucket containing
	// the latest snapshot of each aggregate of a specific machine.
	aggregateSnapshotBucketKey = []byte("snapshot")

	// aggregateEventsBucketKey is the key for a child bucket containing one
	// event-log bucket per aggregate. Within an aggregate's log bucket the
	// keys are big-endian revisions, so a cursor walks the log in order.
	aggregateEventsBucketKey = []byte("events")

	// uniqueKeyBucketKey is the key for the root bucket of the natural-key
	// to uid map.
	uniqueKeyBucketKey = []byte("uniquekey")
)

// LoadAggregate loads the aggregate with the given uid.
func (ds *dataStore) LoadAggregate(
	_ context.Context,
	hk, id string,
	fromBeginning bool,
) (h persistence.AggregateHistory, err error) {
	if err := ds.checkOpen(); err != nil {
		return h, err
	}

	h.MetaData = persistence.AggregateMetaData{
		HandlerKey: hk,
		InstanceID: id,
	}

	err = ds.view(func(root *bbolt.Bucket) {
		if root == nil {
			return
		}

		if b := bboltx.Bucket(root, aggregateBucketKey, []byte(hk), aggregateMetaDataBucketKey); b != nil {
			if data := b.Get([]byte(id)); data != nil {
				unmarshalRecord(data, &h.MetaData)
			}
		}

		var since uint64
		if !fromBeginning {
			if b := bboltx.Bucket(root, aggregateBucketKey, []byte(hk), aggregateSnapshotBucketKey); b != nil {
				if data := b.Get([]byte(id)); data != nil {
					var ss persistence.AggregateSnapshot
					unmarshalRecord(data, &ss)
					h.Snapshot = &ss
					since = ss.Revision
				}
			}
		}

		log := bboltx.Bucket(root, aggregateBucketKey, []byte(hk), aggregateEventsBucketKey, []byte(id))
		if log == nil {
			return
		}

		c := log.Cursor()
		for k, v := c.Seek(marshalRevision(since)); k != nil; k, v = c.Next() {
			var ev persistence.AggregateEvent
			unmarshalRecord(v, &ev)
			h.Events = append(h.Events, ev)
		}
	})

	return h, err
}

// ReserveUniqueKey reserves the mapping of a natural-key hash to the
// proposed uid, first-writer-wins.
func (ds *dataStore) ReserveUniqueKey(
	_ context.Context,
	key, uid string,
) (reserved string, err error) {
	if err := ds.checkOpen(); err != nil {
		return "", err
	}

	err = ds.update(func(tx *bbolt.Tx) error {
		b := bboltx.CreateBucketIfNotExists(tx, ds.ownerKey, uniqueKeyBucketKey)

		if existing := b.Get([]byte(key)); existing != nil {
			reserved = string(existing)
			return nil
		}

		bboltx.Put(b, []byte(key), []byte(uid))
		reserved = uid

		return nil
	})

	return reserved, err
}

// VisitSaveAggregateEvent validates and applies a "SaveAggregateEvent"
// operation.
func (c *committer) VisitSaveAggregateEvent(
	_ context.Context,
	op persistence.SaveAggregateEvent,
) error {
	ev := op.Event
	hk := []byte(ev.HandlerKey)
	id := []byte(ev.InstanceID)

	md := persistence.AggregateMetaData{
		HandlerKey: ev.HandlerKey,
		InstanceID: ev.InstanceID,
	}

	mdb := bboltx.CreateBucketIfNotExists(c.root, aggregateBucketKey, hk, aggregateMetaDataBucketKey)
	if data := mdb.Get(id); data != nil {
		unmarshalRecord(data, &md)
	}

	if op.Guarded && ev.Revision != md.Revision {
		return persistence.ConflictError{
			Cause: op,
		}
	}

	// Unguarded writers append at whatever the stored revision is.
	ev.Revision = md.Revision

	md.Revision++
	md.InstanceExists = true

	bboltx.Put(mdb, id, marshalRecord(md))

	log := bboltx.CreateBucketIfNotExists(c.root, aggregateBucketKey, hk, aggregateEventsBucketKey, id)
	bboltx.Put(log, marshalRevision(ev.Revision), marshalRecord(ev))

	return nil
}

// VisitSaveAggregateSnapshot validates and applies a "SaveAggregateSnapshot"
// operation.
func (c *committer) VisitSaveAggregateSnapshot(
	_ context.Context,
	op persistence.SaveAggregateSnapshot,
) error {
	ss := op.Snapshot

	if ss.HandlerKey == "" || ss.InstanceID == "" {
		return persistence.NotFoundError{
			Cause: op,
		}
	}

	b := bboltx.CreateBucketIfNotExists(
		c.root,
		aggregateBucketKey,
		[]byte(ss.HandlerKey),
		aggregateSnapshotBucketKey,
	)
	bboltx.Put(b, []byte(ss.InstanceID), marshalRecord(ss))

	return nil
}

// VisitArchiveAggregate validates and applies an "ArchiveAggregate"
// operation.
//
// The aggregate's log and snapshot are deleted, its archive record written,
// and its active-instance index entry removed. The sentinel meta-data is
// retained with InstanceExists set to false so that stale writers still
// conflict.
func (c *committer) VisitArchiveAggregate(
	_ context.Context,
	op persistence.ArchiveAggregate,
) error {
	hk := []byte(op.HandlerKey)
	id := []byte(op.Instance.InstanceID)

	mdb := bboltx.CreateBucketIfNotExists(c.root, aggregateBucketKey, hk, aggregateMetaDataBucketKey)

	var md persistence.AggregateMetaData
	data := mdb.Get(id)
	if data == nil {
		return persistence.ConflictError{
			Cause: op,
		}
	}
	unmarshalRecord(data, &md)

	if op.Revision != md.Revision {
		return persistence.ConflictError{
			Cause: op,
		}
	}

	md.InstanceExists = false
	bboltx.Put(mdb, id, marshalRecord(md))

	if b := bboltx.Bucket(c.root, aggregateBucketKey, hk, aggregateEventsBucketKey); b != nil {
		if b.Bucket(id) != nil {
			bboltx.Must(b.DeleteBucket(id))
		}
	}

	if b := bboltx.Bucket(c.root, aggregateBucketKey, hk, aggregateSnapshotBucketKey); b != nil {
		bboltx.Delete(b, id)
	}

	c.removeActiveInstance(op.Instance.ProcessID, op.Instance.InstanceID)
	c.saveArchivedInstance(op.Instance)

	return nil
}

// marshalRevision encodes a revision as a big-endian key, so that a cursor
// visits log entries in the order they were recorded.
func marshalRevision(rev uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, rev)
	return k
}
