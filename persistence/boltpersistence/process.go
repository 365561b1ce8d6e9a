package boltpersistence

import (
	"context"

	"github.com/rite-engine/rite/internal/x/bboltx"
	"github.com/rite-engine/rite/persistence"
	"go.etcd.io/bbolt"
)

var (
	// processBucketKey is the key for the root bucket for deployed
	// processes and the active-instance index.
	processBucketKey = []byte("process")

	// processVersionBucketKey is the key for a child bucket containing one
	// bucket per process, keyed by version uid. The values are
	// JSON-marshaled persistence.ProcessVersion records.
	processVersionBucketKey = []byte("versions")

	// processActiveBucketKey is the key for a child bucket mapping each
	// process uid to its active version uid.
	processActiveBucketKey = []byte("active")

	// processInstancesBucketKey is the key for a child bucket containing
	// one bucket per process, whose keys are the uids of its running
	// instances.
	processInstancesBucketKey = []byte("instances")
)

// LoadProcessVersion loads a specific deployment of a process.
func (ds *dataStore) LoadProcessVersion(
	_ context.Context,
	processID, versionID string,
) (pv persistence.ProcessVersion, err error) {
	if err := ds.checkOpen(); err != nil {
		return pv, err
	}

	found := false

	err = ds.view(func(root *bbolt.Bucket) {
		if root == nil {
			return
		}

		b := bboltx.Bucket(root, processBucketKey, processVersionBucketKey, []byte(processID))
		if b == nil {
			return
		}

		if data := b.Get([]byte(versionID)); data != nil {
			unmarshalRecord(data, &pv)
			found = true
		}
	})
	if err != nil {
		return pv, err
	}

	if !found {
		return pv, persistence.UnknownProcessError{
			ProcessID: processID,
			VersionID: versionID,
		}
	}

	return pv, nil
}

// LoadActiveVersionID returns the uid of the process's active version.
func (ds *dataStore) LoadActiveVersionID(
	_ context.Context,
	processID string,
) (versionID string, err error) {
	if err := ds.checkOpen(); err != nil {
		return "", err
	}

	err = ds.view(func(root *bbolt.Bucket) {
		if root == nil {
			return
		}

		if b := bboltx.Bucket(root, processBucketKey, processActiveBucketKey); b != nil {
			versionID = string(b.Get([]byte(processID)))
		}
	})
	if err != nil {
		return "", err
	}

	if versionID == "" {
		return "", persistence.UnknownProcessError{
			ProcessID: processID,
		}
	}

	return versionID, nil
}

// LoadActiveInstances returns the uids of the process's running instances.
func (ds *dataStore) LoadActiveInstances(
	_ context.Context,
	processID string,
) (ids []string, err error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	err = ds.view(func(root *bbolt.Bucket) {
		if root == nil {
			return
		}

		b := bboltx.Bucket(root, processBucketKey, processInstancesBucketKey, []byte(processID))
		if b == nil {
			return
		}

		bboltx.Must(b.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		}))
	})

	return ids, err
}

// VisitSaveProcessVersion validates and applies a "SaveProcessVersion"
// operation.
func (c *committer) VisitSaveProcessVersion(
	_ context.Context,
	op persistence.SaveProcessVersion,
) error {
	pv := op.Version

	b := bboltx.CreateBucketIfNotExists(
		c.root,
		processBucketKey,
		processVersionBucketKey,
		[]byte(pv.ProcessID),
	)
	bboltx.Put(b, []byte(pv.VersionID), marshalRecord(pv))

	return nil
}

// VisitActivateProcessVersion validates and applies an
// "ActivateProcessVersion" operation.
func (c *committer) VisitActivateProcessVersion(
	_ context.Context,
	op persistence.ActivateProcessVersion,
) error {
	versions := bboltx.Bucket(
		c.root,
		processBucketKey,
		processVersionBucketKey,
		[]byte(op.ProcessID),
	)
	if versions == nil || versions.Get([]byte(op.VersionID)) == nil {
		return persistence.NotFoundError{
			Cause: op,
		}
	}

	b := bboltx.CreateBucketIfNotExists(c.root, processBucketKey, processActiveBucketKey)
	bboltx.Put(b, []byte(op.ProcessID), []byte(op.VersionID))

	return nil
}

// VisitSaveActiveInstance validates and applies a "SaveActiveInstance"
// operation.
func (c *committer) VisitSaveActiveInstance(
	_ context.Context,
	op persistence.SaveActiveInstance,
) error {
	b := bboltx.CreateBucketIfNotExists(
		c.root,
		processBucketKey,
		processInstancesBucketKey,
		[]byte(op.ProcessID),
	)
	bboltx.Put(b, []byte(op.InstanceID), nil)

	return nil
}

// VisitRemoveActiveInstance validates and applies a "RemoveActiveInstance"
// operation.
//
// The index is an eventually-consistent projection, so removing an absent
// entry is not an error.
func (c *committer) VisitRemoveActiveInstance(
	_ context.Context,
	op persistence.RemoveActiveInstance,
) error {
	c.removeActiveInstance(op.ProcessID, op.InstanceID)
	return nil
}

func (c *committer) removeActiveInstance(processID, instanceID string) {
	b := bboltx.Bucket(
		c.root,
		processBucketKey,
		processInstancesBucketKey,
		[]byte(processID),
	)
	if b != nil {
		bboltx.Delete(b, []byte(instanceID))
	}
}
