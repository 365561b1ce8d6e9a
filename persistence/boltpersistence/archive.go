package boltpersistence

import (
	"context"
	"time"

	"github.com/rite-engine/rite/internal/x/bboltx"
	"github.com/rite-engine/rite/persistence"
	"go.etcd.io/bbolt"
)

var (
	// archiveBucketKey is the key for the root bucket of archived process
	// instances, nested by archival day then instance ID. Partitioning by
	// day keeps the retention sweep to a prefix scan.
	archiveBucketKey = []byte("archive")
)

// LoadArchivedInstance loads the archived record of a completed process
// instance.
func (ds *dataStore) LoadArchivedInstance(
	_ context.Context,
	day, id string,
) (_ persistence.ArchivedInstance, err error) {
	if err := ds.checkOpen(); err != nil {
		return persistence.ArchivedInstance{}, err
	}

	var (
		inst  persistence.ArchivedInstance
		found bool
	)

	err = ds.view(func(root *bbolt.Bucket) {
		if root == nil {
			return
		}

		b := bboltx.Bucket(root, archiveBucketKey, []byte(day))
		if b == nil {
			return
		}

		data := b.Get([]byte(id))
		if data == nil {
			return
		}

		unmarshalRecord(data, &inst)
		found = true
	})
	if err != nil {
		return persistence.ArchivedInstance{}, err
	}

	if !found {
		return persistence.ArchivedInstance{}, persistence.UnknownInstanceError{
			InstanceID: id,
		}
	}

	return inst, nil
}

// DeleteExpiredArchives deletes archived instances that expired at or before
// the given cutoff time. It returns the number of records deleted.
func (ds *dataStore) DeleteExpiredArchives(
	_ context.Context,
	cutoff time.Time,
) (n int, err error) {
	if err := ds.checkOpen(); err != nil {
		return 0, err
	}

	err = ds.update(func(tx *bbolt.Tx) error {
		archive := bboltx.Bucket(tx, ds.ownerKey, archiveBucketKey)
		if archive == nil {
			return nil
		}

		var emptyDays [][]byte

		bboltx.Must(archive.ForEach(func(day, v []byte) error {
			if v != nil {
				return nil
			}

			b := archive.Bucket(day)

			var expired [][]byte
			bboltx.Must(b.ForEach(func(id, data []byte) error {
				var inst persistence.ArchivedInstance
				unmarshalRecord(data, &inst)

				if !inst.ExpiresAt.After(cutoff) {
					expired = append(expired, id)
				}

				return nil
			}))

			for _, id := range expired {
				bboltx.Delete(b, id)
				n++
			}

			if k, _ := b.Cursor().First(); k == nil {
				emptyDays = append(emptyDays, day)
			}

			return nil
		}))

		for _, day := range emptyDays {
			bboltx.Must(archive.DeleteBucket(day))
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return n, nil
}

// saveArchivedInstance stores an archived instance record in its day
// partition.
func (c *committer) saveArchivedInstance(inst persistence.ArchivedInstance) {
	b := bboltx.CreateBucketIfNotExists(
		c.root,
		archiveBucketKey,
		[]byte(inst.Day),
	)
	bboltx.Put(b, []byte(inst.InstanceID), marshalRecord(inst))
}
