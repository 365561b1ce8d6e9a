// Package correlation matches inbound events, messages, signals and timers
// to the process versions and running instances awaiting them.
package correlation

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/rite-engine/rite/expression"
	"github.com/rite-engine/rite/persistence"
)

// Correlation types classify what kind of trigger a subscription awaits.
const (
	TypeEvent   = "event"
	TypeMessage = "message"
	TypeSignal  = "signal"
	TypeTimer   = "timer"
)

// Hash returns the correlation hash of a business key or message code.
//
// The hash bounds the size of the subscription partition that must be
// scanned for any one trigger.
func Hash(key string) string {
	h := fnv.New64a()
	h.Write([]byte(key))
	return fmt.Sprintf("%016x", h.Sum64())
}

// Registry routes triggers to subscriptions.
type Registry struct {
	// Subscriptions is the repository the registry reads from.
	Subscriptions persistence.SubscriptionRepository

	// Evaluator evaluates subscription guard conditions against the
	// trigger's payload. If it is nil, conditions are ignored and every
	// subscription under the key matches.
	Evaluator expression.Evaluator
}

// Match returns the subscriptions awaiting the given trigger.
//
// A subscription with a guard condition only matches if the condition
// evaluates truthy against the trigger's payload; a missing or failed
// evaluation is falsy.
func (r *Registry) Match(
	ctx context.Context,
	correlationType string,
	key string,
	payload map[string]any,
) ([]persistence.Subscription, error) {
	subs, err := r.Subscriptions.LoadSubscriptions(ctx, correlationType, Hash(key))
	if err != nil {
		return nil, err
	}

	if r.Evaluator == nil {
		return subs, nil
	}

	matched := subs[:0]
	for _, sub := range subs {
		if sub.Condition != "" {
			v, err := r.Evaluator.Evaluate(ctx, sub.Condition, payload)
			if err != nil || !expression.Truthy(v) {
				continue
			}
		}

		matched = append(matched, sub)
	}

	return matched, nil
}
