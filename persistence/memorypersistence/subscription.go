package memorypersistence

import (
	"context"
	"sort"

	"github.com/rite-engine/rite/persistence"
)

// LoadSubscriptions returns all subscriptions stored under the given
// correlation type and hash.
func (ds *dataStore) LoadSubscriptions(
	_ context.Context,
	correlationType, hash string,
) ([]persistence.Subscription, error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	ds.db.mutex.RLock()
	defer ds.db.mutex.RUnlock()

	key := instanceKey{correlationType, hash}

	var subs []persistence.Subscription
	for _, sub := range ds.db.subscriptions.entries[key] {
		subs = append(subs, sub)
	}

	sort.Slice(subs, func(i, j int) bool {
		return subs[i].SubscriptionID < subs[j].SubscriptionID
	})

	return subs, nil
}

// VisitSaveSubscription returns an error if a "SaveSubscription" operation
// can not be applied to the database.
func (v *validator) VisitSaveSubscription(
	_ context.Context,
	op persistence.SaveSubscription,
) error {
	return nil
}

// VisitSaveSubscription applies the changes in a "SaveSubscription"
// operation to the database.
func (c *committer) VisitSaveSubscription(
	_ context.Context,
	op persistence.SaveSubscription,
) error {
	c.db.subscriptions.save(op.Subscription)
	return nil
}

// VisitRemoveSubscription returns an error if a "RemoveSubscription"
// operation can not be applied to the database.
//
// A subscription can only be consumed once; removing one that does not
// exist is a NotFoundError.
func (v *validator) VisitRemoveSubscription(
	_ context.Context,
	op persistence.RemoveSubscription,
) error {
	sub := op.Subscription
	key := instanceKey{sub.CorrelationType, sub.CorrelationHash}

	if _, ok := v.db.subscriptions.entries[key][sub.SubscriptionID]; ok {
		return nil
	}

	return persistence.NotFoundError{
		Cause: op,
	}
}

// VisitRemoveSubscription applies the changes in a "RemoveSubscription"
// operation to the database.
func (c *committer) VisitRemoveSubscription(
	_ context.Context,
	op persistence.RemoveSubscription,
) error {
	sub := op.Subscription
	key := instanceKey{sub.CorrelationType, sub.CorrelationHash}

	delete(c.db.subscriptions.entries[key], sub.SubscriptionID)

	if len(c.db.subscriptions.entries[key]) == 0 {
		delete(c.db.subscriptions.entries, key)
	}

	return nil
}

// subscriptionDatabase contains correlation subscriptions, keyed by
// (correlation type, correlation hash).
type subscriptionDatabase struct {
	entries map[instanceKey]map[string]persistence.Subscription
}

func (db *subscriptionDatabase) save(sub persistence.Subscription) {
	key := instanceKey{sub.CorrelationType, sub.CorrelationHash}

	if db.entries == nil {
		db.entries = map[instanceKey]map[string]persistence.Subscription{}
	}

	if db.entries[key] == nil {
		db.entries[key] = map[string]persistence.Subscription{}
	}

	db.entries[key][sub.SubscriptionID] = sub
}
