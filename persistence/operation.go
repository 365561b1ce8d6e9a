package persistence

import (
	"context"
)

// Operation is a persistence operation that can be performed as part of an
// atomic batch.
type Operation interface {
	// AcceptVisitor calls the appropriate visit method on the given visitor.
	AcceptVisitor(context.Context, OperationVisitor) error

	// entityKey identifies the entity the operation manipulates, so that
	// batches can be validated for intra-batch conflicts.
	entityKey() entityKey
}

// OperationVisitor visits each kind of operation.
type OperationVisitor interface {
	VisitSaveAggregateEvent(context.Context, SaveAggregateEvent) error
	VisitSaveAggregateSnapshot(context.Context, SaveAggregateSnapshot) error
	VisitSaveProcessVersion(context.Context, SaveProcessVersion) error
	VisitActivateProcessVersion(context.Context, ActivateProcessVersion) error
	VisitSaveActiveInstance(context.Context, SaveActiveInstance) error
	VisitRemoveActiveInstance(context.Context, RemoveActiveInstance) error
	VisitSaveSubscription(context.Context, SaveSubscription) error
	VisitRemoveSubscription(context.Context, RemoveSubscription) error
	VisitSaveTimer(context.Context, SaveTimer) error
	VisitRemoveTimer(context.Context, RemoveTimer) error
	VisitArchiveAggregate(context.Context, ArchiveAggregate) error
}

// entityKey uniquely identifies the entity that an operation manipulates.
type entityKey [3]string

func (k entityKey) String() string {
	s := k[0]
	for _, p := range k[1:] {
		if p != "" {
			s += " " + p
		}
	}

	return s
}
