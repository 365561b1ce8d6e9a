package correlation_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/rite-engine/rite/correlation"
	"github.com/rite-engine/rite/fixtures"
	"github.com/rite-engine/rite/persistence"
)

var _ = Describe("func Hash()", func() {
	It("returns a fixed-width hexadecimal hash", func() {
		Expect(Hash("")).To(Equal("cbf29ce484222325"))
	})

	It("is deterministic", func() {
		Expect(Hash("order-123")).To(Equal(Hash("order-123")))
	})

	It("differs for different keys", func() {
		Expect(Hash("order-123")).NotTo(Equal(Hash("order-456")))
	})
})

var _ = Describe("type Registry", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		ds       *fixtures.DataStoreStub
		registry *Registry
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 3*time.Second)

		ds = fixtures.NewDataStoreStub()
		registry = &Registry{
			Subscriptions: ds,
			Evaluator:     &fixtures.EvaluatorStub{},
		}
	})

	AfterEach(func() {
		ds.Close()
		cancel()
	})

	subscribe := func(id, correlationType, key, condition string) persistence.Subscription {
		sub := persistence.Subscription{
			SubscriptionID:  id,
			CorrelationType: correlationType,
			CorrelationHash: Hash(key),
			ProcessID:       "<process>",
			VersionID:       "<version>",
			InstanceID:      "<instance>",
			ElementID:       "<element>",
			Condition:       condition,
		}

		err := ds.Persist(
			ctx,
			persistence.Batch{
				persistence.SaveSubscription{Subscription: sub},
			},
		)
		Expect(err).ShouldNot(HaveOccurred())

		return sub
	}

	Describe("func Match()", func() {
		It("returns the subscriptions awaiting the trigger", func() {
			sub := subscribe("<sub-1>", TypeMessage, "order.paid", "")

			subs, err := registry.Match(ctx, TypeMessage, "order.paid", nil)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(subs).To(ConsistOf(sub))
		})

		It("ignores subscriptions under other keys", func() {
			subscribe("<sub-1>", TypeMessage, "order.refunded", "")

			subs, err := registry.Match(ctx, TypeMessage, "order.paid", nil)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(subs).To(BeEmpty())
		})

		It("ignores subscriptions of other correlation types", func() {
			subscribe("<sub-1>", TypeSignal, "order.paid", "")

			subs, err := registry.Match(ctx, TypeMessage, "order.paid", nil)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(subs).To(BeEmpty())
		})

		It("filters out subscriptions whose condition is falsy", func() {
			subscribe("<sub-1>", TypeMessage, "order.paid", "false")
			match := subscribe("<sub-2>", TypeMessage, "order.paid", "true")

			subs, err := registry.Match(ctx, TypeMessage, "order.paid", nil)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(subs).To(ConsistOf(match))
		})

		It("evaluates conditions against the trigger's payload", func() {
			match := subscribe("<sub-1>", TypeMessage, "order.paid", "express")

			subs, err := registry.Match(
				ctx,
				TypeMessage,
				"order.paid",
				map[string]any{"express": true},
			)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(subs).To(ConsistOf(match))
		})

		It("treats a failed evaluation as falsy", func() {
			subscribe("<sub-1>", TypeMessage, "order.paid", "express")

			registry.Evaluator = &fixtures.EvaluatorStub{
				EvaluateFunc: func(context.Context, string, map[string]any) (any, error) {
					return nil, errors.New("<error>")
				},
			}

			subs, err := registry.Match(ctx, TypeMessage, "order.paid", nil)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(subs).To(BeEmpty())
		})

		It("matches unconditionally when there is no evaluator", func() {
			guarded := subscribe("<sub-1>", TypeMessage, "order.paid", "false")

			registry.Evaluator = nil

			subs, err := registry.Match(ctx, TypeMessage, "order.paid", nil)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(subs).To(ConsistOf(guarded))
		})
	})
})
