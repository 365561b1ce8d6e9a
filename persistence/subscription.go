package persistence

import (
	"context"
)

// Subscription is a correlation registration: it routes inbound events,
// messages, signals and timers to the process version or running instance
// awaiting them.
//
// Subscriptions are stored under (correlation type, correlation hash) within
// their owner's data store.
type Subscription struct {
	// SubscriptionID uniquely identifies the subscription.
	SubscriptionID string

	// CorrelationType classifies the trigger: event, message, signal or
	// timer.
	CorrelationType string

	// CorrelationHash is the hash of the business key or message code the
	// subscription correlates on.
	CorrelationHash string

	// ProcessID and VersionID identify the target deployment.
	ProcessID string
	VersionID string

	// InstanceID is the uid of the running instance awaiting the trigger.
	// It is empty for start-event subscriptions, which create a new
	// instance when matched.
	InstanceID string

	// ElementID is the event element that registered the subscription.
	ElementID string

	// Condition is an optional guard expression evaluated against the
	// trigger's payload before the subscription is considered a match.
	Condition string
}

// SubscriptionRepository is an interface for reading correlation
// subscriptions.
type SubscriptionRepository interface {
	// LoadSubscriptions returns all subscriptions stored under the given
	// correlation type and hash.
	LoadSubscriptions(ctx context.Context, correlationType, hash string) ([]Subscription, error)
}

// SaveSubscription is a persistence operation that records a correlation
// subscription.
type SaveSubscription struct {
	// Subscription is the subscription to persist. Saving an existing
	// subscription ID is idempotent.
	Subscription Subscription
}

// AcceptVisitor calls v.VisitSaveSubscription().
func (op SaveSubscription) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitSaveSubscription(ctx, op)
}

func (op SaveSubscription) entityKey() entityKey {
	return entityKey{"subscription", op.Subscription.CorrelationHash, op.Subscription.SubscriptionID}
}

// RemoveSubscription is a persistence operation that removes a correlation
// subscription after it has been consumed or cancelled.
//
// Removing a subscription that does not exist is a NotFoundError, so that a
// subscription can only be consumed once.
type RemoveSubscription struct {
	// Subscription is the subscription to remove.
	Subscription Subscription
}

// AcceptVisitor calls v.VisitRemoveSubscription().
func (op RemoveSubscription) AcceptVisitor(ctx context.Context, v OperationVisitor) error {
	return v.VisitRemoveSubscription(ctx, op)
}

func (op RemoveSubscription) entityKey() entityKey {
	return entityKey{"subscription", op.Subscription.CorrelationHash, op.Subscription.SubscriptionID}
}
