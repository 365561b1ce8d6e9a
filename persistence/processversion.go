package persistence

import (
	"context"

	"github.com/dogmatiq/marshalkit"
)

// ProcessVersion is a persisted deployment of a process definition.
type ProcessVersion struct {
	// ProcessID is the uid shared by all versions of the process.
	ProcessID string

	// VersionID is the uid of this deployment.
	VersionID string

	// NaturalID is the process ID declared in the diagram.
	NaturalID string

	// Definition is the marshaled process graph.
	Definition marshalkit.Packet
}

// ProcessRepository is an interface for reading deployed processes and the
// active-instance index.
type ProcessRepository interface {
	// LoadProcessVersion loads a specific deployment of a process.
	//
	// It returns UnknownProcessError if the version does not exist.
	LoadProcessVersion(ctx context.Context, processID, versionID string) (ProcessVersion, error)

	// LoadActiveVersionID returns the uid of the process's active version.
	//
	// It returns UnknownProcessError if the process has no active version.
	LoadActiveVersionID(ctx context.Context, processID string) (string, error)

	// LoadActiveInstances returns the uids of the process's running
	// instances.
	//
	// The index is an eventually-consistent projection of the instance
	// logs; see DataStore.
	LoadActiveInstances(ctx context.Context, processID string) ([]string, error)
}

// SaveProcessVersion is a persistence operation that records a deployment of
// a process definition.
type SaveProcessVersion struct {
	// Version is the deployment to persist. Versions are immutable; saving
	// an existing version is idempotent.
	Version ProcessVersion
}

// AcceptVisitor calls v.VisitSaveProcessVersion().
func (op SaveProcessVersion) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitSaveProcessVersion(ctx, op)
}

func (op SaveProcessVersion) entityKey() entityKey {
	return entityKey{"process-version", op.Version.ProcessID, op.Version.VersionID}
}

// ActivateProcessVersion is a persistence operation that marks one version
// of a process as active, replacing any previously active version.
type ActivateProcessVersion struct {
	// ProcessID is the uid of the process.
	ProcessID string

	// VersionID is the uid of the version to activate.
	VersionID string
}

// AcceptVisitor calls v.VisitActivateProcessVersion().
func (op ActivateProcessVersion) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitActivateProcessVersion(ctx, op)
}

func (op ActivateProcessVersion) entityKey() entityKey {
	return entityKey{"process-active", op.ProcessID, ""}
}

// SaveActiveInstance is a persistence operation that adds an instance to its
// process's active-instance index.
type SaveActiveInstance struct {
	// ProcessID is the uid of the process.
	ProcessID string

	// InstanceID is the uid of the running instance.
	InstanceID string
}

// AcceptVisitor calls v.VisitSaveActiveInstance().
func (op SaveActiveInstance) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitSaveActiveInstance(ctx, op)
}

func (op SaveActiveInstance) entityKey() entityKey {
	return entityKey{"active-instance", op.ProcessID, op.InstanceID}
}

// RemoveActiveInstance is a persistence operation that removes an instance
// from its process's active-instance index.
type RemoveActiveInstance struct {
	// ProcessID is the uid of the process.
	ProcessID string

	// InstanceID is the uid of the instance to remove.
	InstanceID string
}

// AcceptVisitor calls v.VisitRemoveActiveInstance().
func (op RemoveActiveInstance) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitRemoveActiveInstance(ctx, op)
}

func (op RemoveActiveInstance) entityKey() entityKey {
	return entityKey{"active-instance", op.ProcessID, op.InstanceID}
}
