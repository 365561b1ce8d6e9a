package persistence

import (
	"context"
	"time"

	"github.com/dogmatiq/marshalkit"
	"github.com/rite-engine/rite/parcel"
)

// ArchivedInstance is a finished aggregate as stored in the time-partitioned
// archive.
type ArchivedInstance struct {
	// InstanceID is the archived aggregate's uid.
	InstanceID string

	// ProcessID is the uid of the process the instance belonged to.
	ProcessID string

	// Day is the archive partition, in "2006-01-02" form.
	Day string

	// Snapshot is the aggregate's final state.
	Snapshot marshalkit.Packet

	// History is the aggregate's full event history.
	History []*parcel.Envelope

	// ExpiresAt is the time after which the archive sweep may delete the
	// record.
	ExpiresAt time.Time
}

// ArchiveRepository is an interface for reading and pruning the
// finished-instance archive.
type ArchiveRepository interface {
	// LoadArchivedInstance loads a finished instance from an archive
	// partition.
	//
	// It returns UnknownInstanceError if the instance is not archived under
	// that partition.
	LoadArchivedInstance(ctx context.Context, day, id string) (ArchivedInstance, error)

	// DeleteExpiredArchives removes archived instances whose retention
	// window ended at or before the given time. It returns the number of
	// records removed.
	DeleteExpiredArchives(ctx context.Context, cutoff time.Time) (int, error)
}

// ArchiveAggregate is a persistence operation that retires a finished
// aggregate.
//
// It writes the archive record, removes the instance from its process's
// active-instance index, and deletes the aggregate's log and snapshot. The
// sentinel meta-data is retained with InstanceExists set to false, so that
// stale writers still observe a conflict rather than resurrecting the
// aggregate.
type ArchiveAggregate struct {
	// HandlerKey is the key of the machine definition that executed the
	// aggregate.
	HandlerKey string

	// Instance is the archive record to write.
	Instance ArchivedInstance

	// Revision is the aggregate's revision as known to the writer. The
	// operation conflicts if it does not match the stored revision.
	Revision uint64
}

// AcceptVisitor calls v.VisitArchiveAggregate().
func (op ArchiveAggregate) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitArchiveAggregate(ctx, op)
}

func (op ArchiveAggregate) entityKey() entityKey {
	return entityKey{"aggregate", op.HandlerKey, op.Instance.InstanceID}
}
