package persistence

import (
	"context"
)

// Timer is a scheduled wake-up for a process version or running instance.
//
// Timers are stored twice: once bucketed by (day, time-of-day, shard) for
// efficient due-timer scans, and once in a flat owner-indexed view for
// tenant queries. The two views are written atomically and must always
// agree.
type Timer struct {
	// TimerID uniquely identifies the timer. For recurring timers the ID
	// incorporates the occurrence number, so that re-inserting the next
	// occurrence is idempotent under duplicate ticks.
	TimerID string

	// Day is the due date, in "2006-01-02" form.
	Day string

	// TimeOfDay is the due time within the day, in "15:04" form.
	TimeOfDay string

	// Shard bounds the scan size of a due-timer lookup. It is derived from
	// the timer ID.
	Shard uint32

	// ProcessID and VersionID identify the target deployment.
	ProcessID string
	VersionID string

	// InstanceID is the uid of the instance awaiting the timer, or empty
	// for a start-timer that creates a new instance when it fires.
	InstanceID string

	// ElementID is the timer event element the timer belongs to.
	ElementID string

	// Descriptor is the schedule descriptor the timer was computed from. A
	// cycle descriptor causes the next occurrence to be inserted when the
	// timer fires.
	Descriptor string

	// Occurrence is the ordinal of this firing within a recurring cycle.
	Occurrence uint64
}

// TimerRepository is an interface for reading scheduled timers.
type TimerRepository interface {
	// LoadDueTimers returns the timers in one (day, time-of-day, shard)
	// bucket.
	LoadDueTimers(ctx context.Context, day, timeOfDay string, shard uint32) ([]Timer, error)

	// LoadTimers returns all pending timers of the data store's owner, from
	// the owner-indexed view.
	LoadTimers(ctx context.Context) ([]Timer, error)
}

// SaveTimer is a persistence operation that schedules a timer.
//
// The shard-bucketed and owner-indexed views are written together; saving an
// existing timer ID is idempotent.
type SaveTimer struct {
	// Timer is the timer to persist.
	Timer Timer
}

// AcceptVisitor calls v.VisitSaveTimer().
func (op SaveTimer) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitSaveTimer(ctx, op)
}

func (op SaveTimer) entityKey() entityKey {
	return entityKey{"timer", op.Timer.TimerID, ""}
}

// RemoveTimer is a persistence operation that removes a timer from both
// views, after it has fired or been cancelled.
type RemoveTimer struct {
	// Timer is the timer to remove.
	Timer Timer
}

// AcceptVisitor calls v.VisitRemoveTimer().
func (op RemoveTimer) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitRemoveTimer(ctx, op)
}

func (op RemoveTimer) entityKey() entityKey {
	return entityKey{"timer", op.Timer.TimerID, ""}
}
