package boltpersistence

import (
	"context"
	"encoding/binary"

	"github.com/rite-engine/rite/internal/x/bboltx"
	"github.com/rite-engine/rite/persistence"
	"go.etcd.io/bbolt"
)

var (
	// timerBucketKey is the key for the root bucket for scheduled timers.
	timerBucketKey = []byte("timer")

	// timerBucketsBucketKey is the key for the shard-bucketed view: nested
	// by day, then time-of-day, then big-endian shard. The innermost keys
	// are timer IDs and the values JSON-marshaled persistence.Timer
	// records.
	timerBucketsBucketKey = []byte("buckets")

	// timerByIDBucketKey is the key for the owner-indexed view, keyed by
	// timer ID. The two views are written in the same transaction and
	// always agree.
	timerByIDBucketKey = []byte("byid")
)

// LoadDueTimers returns the timers in one (day, time-of-day, shard) bucket.
func (ds *dataStore) LoadDueTimers(
	_ context.Context,
	day, timeOfDay string,
	shard uint32,
) (timers []persistence.Timer, err error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	err = ds.view(func(root *bbolt.Bucket) {
		if root == nil {
			return
		}

		b := bboltx.Bucket(
			root,
			timerBucketKey,
			timerBucketsBucketKey,
			[]byte(day),
			[]byte(timeOfDay),
			marshalShard(shard),
		)
		if b == nil {
			return
		}

		bboltx.Must(b.ForEach(func(_, v []byte) error {
			var tm persistence.Timer
			unmarshalRecord(v, &tm)
			timers = append(timers, tm)
			return nil
		}))
	})

	return timers, err
}

// LoadTimers returns all pending timers of the data store's owner.
func (ds *dataStore) LoadTimers(
	_ context.Context,
) (timers []persistence.Timer, err error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	err = ds.view(func(root *bbolt.Bucket) {
		if root == nil {
			return
		}

		b := bboltx.Bucket(root, timerBucketKey, timerByIDBucketKey)
		if b == nil {
			return
		}

		bboltx.Must(b.ForEach(func(_, v []byte) error {
			var tm persistence.Timer
			unmarshalRecord(v, &tm)
			timers = append(timers, tm)
			return nil
		}))
	})

	return timers, err
}

// VisitSaveTimer validates and applies a "SaveTimer" operation, writing the
// shard-bucketed and owner-indexed views in the same transaction.
func (c *committer) VisitSaveTimer(
	_ context.Context,
	op persistence.SaveTimer,
) error {
	tm := op.Timer

	// Re-saving an existing timer ID must not leave it in two buckets.
	c.removeTimer(tm.TimerID)

	b := bboltx.CreateBucketIfNotExists(
		c.root,
		timerBucketKey,
		timerBucketsBucketKey,
		[]byte(tm.Day),
		[]byte(tm.TimeOfDay),
		marshalShard(tm.Shard),
	)
	bboltx.Put(b, []byte(tm.TimerID), marshalRecord(tm))

	byID := bboltx.CreateBucketIfNotExists(c.root, timerBucketKey, timerByIDBucketKey)
	bboltx.Put(byID, []byte(tm.TimerID), marshalRecord(tm))

	return nil
}

// VisitRemoveTimer validates and applies a "RemoveTimer" operation.
//
// Removing a timer that has already fired is a NotFoundError, which is how
// concurrent tickers avoid firing the same occurrence twice.
func (c *committer) VisitRemoveTimer(
	_ context.Context,
	op persistence.RemoveTimer,
) error {
	byID := bboltx.Bucket(c.root, timerBucketKey, timerByIDBucketKey)
	if byID == nil || byID.Get([]byte(op.Timer.TimerID)) == nil {
		return persistence.NotFoundError{
			Cause: op,
		}
	}

	c.removeTimer(op.Timer.TimerID)

	return nil
}

// removeTimer removes a timer from both views, resolving its bucket from
// the owner-indexed record.
func (c *committer) removeTimer(timerID string) {
	byID := bboltx.Bucket(c.root, timerBucketKey, timerByIDBucketKey)
	if byID == nil {
		return
	}

	data := byID.Get([]byte(timerID))
	if data == nil {
		return
	}

	var tm persistence.Timer
	unmarshalRecord(data, &tm)

	b := bboltx.Bucket(
		c.root,
		timerBucketKey,
		timerBucketsBucketKey,
		[]byte(tm.Day),
		[]byte(tm.TimeOfDay),
		marshalShard(tm.Shard),
	)
	if b != nil {
		bboltx.Delete(b, []byte(timerID))
	}

	bboltx.Delete(byID, []byte(timerID))
}

func marshalShard(shard uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, shard)
	return k
}
