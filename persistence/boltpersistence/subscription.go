package boltpersistence

import (
	"context"

	"github.com/rite-engine/rite/internal/x/bboltx"
	"github.com/rite-engine/rite/persistence"
	"go.etcd.io/bbolt"
)

// subscriptionBucketKey is the key for the root bucket for correlation
// subscriptions.
//
// Subscriptions are nested by correlation type, then correlation hash; the
// keys of the innermost bucket are subscription IDs and the values are
// JSON-marshaled persistence.Subscription records.
var subscriptionBucketKey = []byte("subscription")

// LoadSubscriptions returns all subscriptions stored under the given
// correlation type and hash.
func (ds *dataStore) LoadSubscriptions(
	_ context.Context,
	correlationType, hash string,
) (subs []persistence.Subscription, err error) {
	if err := ds.checkOpen(); err != nil {
		return nil, err
	}

	err = ds.view(func(root *bbolt.Bucket) {
		if root == nil {
			return
		}

		b := bboltx.Bucket(
			root,
			subscriptionBucketKey,
			[]byte(correlationType),
			[]byte(hash),
		)
		if b == nil {
			return
		}

		bboltx.Must(b.ForEach(func(_, v []byte) error {
			var sub persistence.Subscription
			unmarshalRecord(v, &sub)
			subs = append(subs, sub)
			return nil
		}))
	})

	return subs, err
}

// VisitSaveSubscription validates and applies a "SaveSubscription"
// operation.
func (c *committer) VisitSaveSubscription(
	_ context.Context,
	op persistence.SaveSubscription,
) error {
	sub := op.Subscription

	b := bboltx.CreateBucketIfNotExists(
		c.root,
		subscriptionBucketKey,
		[]byte(sub.CorrelationType),
		[]byte(sub.CorrelationHash),
	)
	bboltx.Put(b, []byte(sub.SubscriptionID), marshalRecord(sub))

	return nil
}

// VisitRemoveSubscription validates and applies a "RemoveSubscription"
// operation.
//
// A subscription can only be consumed once; removing one that does not
// exist is a NotFoundError.
func (c *committer) VisitRemoveSubscription(
	_ context.Context,
	op persistence.RemoveSubscription,
) error {
	sub := op.Subscription

	b := bboltx.Bucket(
		c.root,
		subscriptionBucketKey,
		[]byte(sub.CorrelationType),
		[]byte(sub.CorrelationHash),
	)
	if b == nil || b.Get([]byte(sub.SubscriptionID)) == nil {
		return persistence.NotFoundError{
			Cause: op,
		}
	}

	bboltx.Delete(b, []byte(sub.SubscriptionID))

	return nil
}
