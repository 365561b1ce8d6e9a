package memorypersistence

import (
	"context"
	"sort"

	"github.com/rite-engine/rite/persistence"
)

// LoadProcessVersion loads a specific deployment of a process.
func (ds *dataStore) LoadProcessVersion(
	_ context.Context,
	processID, versionID string,
) (persistence.ProcessVersion, error) {
	if err := ds.checkOpen(); err != nil {
		return persistence.ProcessVersion{}, err
	}

	ds.db.mutex.RLock()
	defer ds.db.mutex.RUnlock()

	key := instanceKey{processID, versionID}
	if pv, ok := ds.db.processes.versions[key]; ok {
		return pv, nil
	}

	return persistence.ProcessVersion{}, persistence.UnknownProcessError{
		ProcessID: processID,
		VersionID: versionID,
	}
}

// LoadActiveVersionID returns the uid of the process's active version.
func (ds *dataStore) LoadActiveVersionID(
	_ context.Context,
	processID string,
) (string, error) {
	if err := ds.checkOpen(); err != nil {
		return "", err
	}

	ds.db.mutex.RLock()
	defer ds.db.mutex.RUnlock()

	if id, ok := ds.db.processes.active[processID]; ok {
		return id, nil
	}

	return "", persistence.UnknownProcessError{
		ProcessID: processID,
	}
}

// LoadActiveInstances returns the uids of the process's running instances.
func (ds *dataStore) LoadActiveInstances(
	_ context.Context,
	processID string,
) ([]string, error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	ds.db.mutex.RLock()
	defer ds.db.mutex.RUnlock()

	var ids []string
	for id := range ds.db.processes.instances[processID] {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids, nil
}

// VisitSaveProcessVersion returns an error if a "SaveProcessVersion"
// operation can not be applied to the database.
func (v *validator) VisitSaveProcessVersion(
	_ context.Context,
	op persistence.SaveProcessVersion,
) error {
	if v.versions == nil {
		v.versions = map[instanceKey]struct{}{}
	}

	v.versions[instanceKey{op.Version.ProcessID, op.Version.VersionID}] = struct{}{}

	return nil
}

// VisitSaveProcessVersion applies the changes in a "SaveProcessVersion"
// operation to the database.
func (c *committer) VisitSaveProcessVersion(
	_ context.Context,
	op persistence.SaveProcessVersion,
) error {
	c.db.processes.saveVersion(op.Version)
	return nil
}

// VisitActivateProcessVersion returns an error if an
// "ActivateProcessVersion" operation can not be applied to the database.
func (v *validator) VisitActivateProcessVersion(
	_ context.Context,
	op persistence.ActivateProcessVersion,
) error {
	key := instanceKey{op.ProcessID, op.VersionID}

	if _, ok := v.db.processes.versions[key]; ok {
		return nil
	}

	// The version may be saved by an earlier operation in the same batch,
	// as when a deployment saves and activates in one persist.
	if _, ok := v.versions[key]; ok {
		return nil
	}

	return persistence.NotFoundError{
		Cause: op,
	}
}

// VisitActivateProcessVersion applies the changes in an
// "ActivateProcessVersion" operation to the database.
func (c *committer) VisitActivateProcessVersion(
	_ context.Context,
	op persistence.ActivateProcessVersion,
) error {
	if c.db.processes.active == nil {
		c.db.processes.active = map[string]string{}
	}

	c.db.processes.active[op.ProcessID] = op.VersionID

	return nil
}

// VisitSaveActiveInstance returns an error if a "SaveActiveInstance"
// operation can not be applied to the database.
func (v *validator) VisitSaveActiveInstance(
	_ context.Context,
	op persistence.SaveActiveInstance,
) error {
	return nil
}

// VisitSaveActiveInstance applies the changes in a "SaveActiveInstance"
// operation to the database.
func (c *committer) VisitSaveActiveInstance(
	_ context.Context,
	op persistence.SaveActiveInstance,
) error {
	c.db.processes.saveActiveInstance(op.ProcessID, op.InstanceID)
	return nil
}

// VisitRemoveActiveInstance returns an error if a "RemoveActiveInstance"
// operation can not be applied to the database.
//
// The active-instance index is an eventually-consistent projection, so
// removing an entry that is already absent is not an error.
func (v *validator) VisitRemoveActiveInstance(
	_ context.Context,
	op persistence.RemoveActiveInstance,
) error {
	return nil
}

// VisitRemoveActiveInstance applies the changes in a "RemoveActiveInstance"
// operation to the database.
func (c *committer) VisitRemoveActiveInstance(
	_ context.Context,
	op persistence.RemoveActiveInstance,
) error {
	c.db.processes.removeActiveInstance(op.ProcessID, op.InstanceID)
	return nil
}

// processDatabase contains deployed processes and the active-instance index.
type processDatabase struct {
	versions  map[instanceKey]persistence.ProcessVersion
	active    map[string]string
	instances map[string]map[string]struct{}
}

func (db *processDatabase) saveVersion(pv persistence.ProcessVersion) {
	key := instanceKey{pv.ProcessID, pv.VersionID}

	if db.versions == nil {
		db.versions = map[instanceKey]persistence.ProcessVersion{}
	}

	db.versions[key] = pv
}

func (db *processDatabase) saveActiveInstance(processID, instanceID string) {
	if db.instances == nil {
		db.instances = map[string]map[string]struct{}{}
	}

	if db.instances[processID] == nil {
		db.instances[processID] = map[string]struct{}{}
	}

	db.instances[processID][instanceID] = struct{}{}
}

func (db *processDatabase) removeActiveInstance(processID, instanceID string) {
	delete(db.instances[processID], instanceID)

	if len(db.instances[processID]) == 0 {
		delete(db.instances, processID)
	}
}
