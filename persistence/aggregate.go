package persistence

import (
	"context"

	"github.com/dogmatiq/marshalkit"
	"github.com/rite-engine/rite/parcel"
)

// AggregateMetaData is the sentinel record of an aggregate's event log.
//
// It holds the monotonically increasing revision that guards writes to the
// log. The revision only advances via a successful SaveAggregateEvent
// operation.
type AggregateMetaData struct {
	// HandlerKey is the key of the machine definition that executes the
	// aggregate.
	HandlerKey string

	// InstanceID is the aggregate's uid.
	InstanceID string

	// Revision is the number of events recorded against the aggregate. A
	// guarded write at any other revision causes an optimistic concurrency
	// conflict.
	Revision uint64

	// InstanceExists is true if the aggregate currently exists. It becomes
	// false when the aggregate is archived; the meta-data itself is
	// retained so that stale writes still conflict.
	InstanceExists bool
}

// AggregateSnapshot is the compacted representation of an aggregate's state
// up to a specific revision.
type AggregateSnapshot struct {
	// HandlerKey is the key of the machine definition that executes the
	// aggregate.
	HandlerKey string

	// InstanceID is the aggregate's uid.
	InstanceID string

	// Revision is the revision as of which the snapshot was taken. Events
	// recorded at or before it need not be replayed.
	Revision uint64

	// Packet is the marshaled aggregate state.
	Packet marshalkit.Packet
}

// AggregateEvent is one entry of an aggregate's event log.
type AggregateEvent struct {
	// HandlerKey is the key of the machine definition that executes the
	// aggregate.
	HandlerKey string

	// InstanceID is the aggregate's uid.
	InstanceID string

	// Revision is the revision at which the event was recorded, which is
	// also its zero-based position within the log.
	Revision uint64

	// Envelope is the envelope containing the event.
	Envelope *parcel.Envelope
}

// AggregateHistory is the result of loading an aggregate from its log.
type AggregateHistory struct {
	// MetaData is the aggregate's sentinel record.
	MetaData AggregateMetaData

	// Snapshot is the latest compacted snapshot, if one was loaded.
	Snapshot *AggregateSnapshot

	// Events are the log entries to replay on top of the snapshot, in the
	// order they were recorded.
	Events []AggregateEvent
}

// AggregateRepository is an interface for reading aggregate logs.
type AggregateRepository interface {
	// LoadAggregate loads the aggregate with the given uid.
	//
	// By default it returns the latest snapshot (if any) plus the events
	// recorded after it. If fromBeginning is true the snapshot is skipped
	// and the full event history is returned instead.
	LoadAggregate(
		ctx context.Context,
		hk, id string,
		fromBeginning bool,
	) (AggregateHistory, error)
}

// SaveAggregateEvent is a persistence operation that appends an event to an
// aggregate's log.
type SaveAggregateEvent struct {
	// Event is the log entry to append. Event.Revision is the position at
	// which the writer expects to append.
	Event AggregateEvent

	// Guarded controls whether the append is protected by a compare-and-swap
	// on the sentinel revision.
	//
	// When true, the operation conflicts unless Event.Revision equals the
	// stored revision. When false the event is appended at the stored
	// revision unconditionally; this fast path is only safe when the
	// deployment routes all traffic for the aggregate through a single
	// writer.
	Guarded bool
}

// AcceptVisitor calls v.VisitSaveAggregateEvent().
func (op SaveAggregateEvent) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitSaveAggregateEvent(ctx, op)
}

func (op SaveAggregateEvent) entityKey() entityKey {
	return entityKey{"aggregate-event", op.Event.Envelope.MessageID, ""}
}

// SaveAggregateSnapshot is a persistence operation that records a compacted
// snapshot of an aggregate's state.
//
// Snapshots are advisory. Failure to record one never invalidates the log.
type SaveAggregateSnapshot struct {
	// Snapshot is the snapshot to persist. It replaces any snapshot taken
	// at an earlier revision.
	Snapshot AggregateSnapshot
}

// AcceptVisitor calls v.VisitSaveAggregateSnapshot().
func (op SaveAggregateSnapshot) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitSaveAggregateSnapshot(ctx, op)
}

func (op SaveAggregateSnapshot) entityKey() entityKey {
	return entityKey{"aggregate-snapshot", op.Snapshot.HandlerKey, op.Snapshot.InstanceID}
}
