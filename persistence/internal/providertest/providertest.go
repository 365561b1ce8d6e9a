// Package providertest declares behavioral tests that every implementation
// of the persistence contract must pass.
package providertest

import (
	"context"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/rite-engine/rite/fixtures"
	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/persistence"
)

// Out is a container for the values provided by the provider-specific
// "before" function.
type Out struct {
	// Provider is the provider under test.
	Provider persistence.Provider
}

// DefaultTestTimeout is the maximum duration allowed for each test.
const DefaultTestTimeout = 3 * time.Second

// Declare declares generic behavioral tests for a specific provider
// implementation.
func Declare(
	before func(context.Context) Out,
	after func(),
) {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		provider persistence.Provider
		ds       persistence.DataStore
	)

	ginkgo.BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), DefaultTestTimeout)

		out := before(ctx)
		provider = out.Provider

		var err error
		ds, err = provider.Open(ctx, "<owner>")
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	})

	ginkgo.AfterEach(func() {
		if ds != nil {
			ds.Close()
		}

		if after != nil {
			after()
		}

		cancel()
	})

	event := func(id string, rev uint64) persistence.SaveAggregateEvent {
		return persistence.SaveAggregateEvent{
			Event: persistence.AggregateEvent{
				HandlerKey: "instance",
				InstanceID: "<instance>",
				Revision:   rev,
				Envelope: fixtures.NewParcel(id, message.InstanceCreated{
					Owner:      "<owner>",
					InstanceID: "<instance>",
				}).Envelope,
			},
			Guarded: true,
		}
	}

	ginkgo.Describe("aggregate log", func() {
		ginkgo.It("appends guarded events at the expected revision", func() {
			err := ds.Persist(ctx, persistence.Batch{event("<event-0>", 0)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Persist(ctx, persistence.Batch{event("<event-1>", 1)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			h, err := ds.LoadAggregate(ctx, "instance", "<instance>", false)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(h.MetaData.Revision).To(gomega.BeEquivalentTo(2))
			gomega.Expect(h.MetaData.InstanceExists).To(gomega.BeTrue())
			gomega.Expect(h.Events).To(gomega.HaveLen(2))
			gomega.Expect(h.Events[0].Envelope.MessageID).To(gomega.Equal("<event-0>"))
			gomega.Expect(h.Events[1].Revision).To(gomega.BeEquivalentTo(1))
		})

		ginkgo.It("rejects a guarded write at a stale revision", func() {
			err := ds.Persist(ctx, persistence.Batch{event("<event-0>", 0)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Persist(ctx, persistence.Batch{event("<event-stale>", 0)})
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.ConflictError{}))

			h, err := ds.LoadAggregate(ctx, "instance", "<instance>", false)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(h.Events).To(gomega.HaveLen(1))
		})

		ginkgo.It("allows exactly one of two writers racing at the same revision to win", func() {
			err := ds.Persist(ctx, persistence.Batch{event("<writer-a>", 0)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Persist(ctx, persistence.Batch{event("<writer-b>", 0)})
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.ConflictError{}))
		})

		ginkgo.It("appends unguarded events at the stored revision", func() {
			op := event("<event-0>", 99)
			op.Guarded = false

			err := ds.Persist(ctx, persistence.Batch{op})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			h, err := ds.LoadAggregate(ctx, "instance", "<instance>", false)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(h.Events[0].Revision).To(gomega.BeEquivalentTo(0))
			gomega.Expect(h.MetaData.Revision).To(gomega.BeEquivalentTo(1))
		})

		ginkgo.It("returns zero-revision meta-data for an unknown aggregate", func() {
			h, err := ds.LoadAggregate(ctx, "instance", "<unknown>", false)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(h.MetaData.Revision).To(gomega.BeZero())
			gomega.Expect(h.MetaData.InstanceExists).To(gomega.BeFalse())
			gomega.Expect(h.Events).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("snapshots", func() {
		snapshot := func(rev uint64) persistence.SaveAggregateSnapshot {
			return persistence.SaveAggregateSnapshot{
				Snapshot: persistence.AggregateSnapshot{
					HandlerKey: "instance",
					InstanceID: "<instance>",
					Revision:   rev,
				},
			}
		}

		ginkgo.It("returns the snapshot and only the events after it", func() {
			err := ds.Persist(ctx, persistence.Batch{event("<event-0>", 0)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			err = ds.Persist(ctx, persistence.Batch{event("<event-1>", 1)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Persist(ctx, persistence.Batch{snapshot(2)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Persist(ctx, persistence.Batch{event("<event-2>", 2)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			h, err := ds.LoadAggregate(ctx, "instance", "<instance>", false)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(h.Snapshot).NotTo(gomega.BeNil())
			gomega.Expect(h.Snapshot.Revision).To(gomega.BeEquivalentTo(2))
			gomega.Expect(h.Events).To(gomega.HaveLen(1))
			gomega.Expect(h.Events[0].Envelope.MessageID).To(gomega.Equal("<event-2>"))
		})

		ginkgo.It("ignores the snapshot when loading from the beginning", func() {
			err := ds.Persist(ctx, persistence.Batch{event("<event-0>", 0)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			err = ds.Persist(ctx, persistence.Batch{snapshot(1)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			h, err := ds.LoadAggregate(ctx, "instance", "<instance>", true)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(h.Snapshot).To(gomega.BeNil())
			gomega.Expect(h.Events).To(gomega.HaveLen(1))
		})

		ginkgo.It("rejects a snapshot of an aggregate with no identity", func() {
			err := ds.Persist(ctx, persistence.Batch{
				persistence.SaveAggregateSnapshot{},
			})
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.NotFoundError{}))
		})
	})

	ginkgo.Describe("unique keys", func() {
		ginkgo.It("reserves the proposed uid on first use", func() {
			uid, err := ds.ReserveUniqueKey(ctx, "<key>", "<uid-a>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(uid).To(gomega.Equal("<uid-a>"))
		})

		ginkgo.It("returns the previously reserved uid on subsequent use", func() {
			_, err := ds.ReserveUniqueKey(ctx, "<key>", "<uid-a>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			uid, err := ds.ReserveUniqueKey(ctx, "<key>", "<uid-b>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(uid).To(gomega.Equal("<uid-a>"))
		})
	})

	ginkgo.Describe("process versions", func() {
		version := func(id string) persistence.SaveProcessVersion {
			return persistence.SaveProcessVersion{
				Version: persistence.ProcessVersion{
					ProcessID: "<process>",
					VersionID: id,
					NaturalID: "ordering",
				},
			}
		}

		ginkgo.It("persists and activates versions", func() {
			err := ds.Persist(ctx, persistence.Batch{
				version("<version-1>"),
				persistence.ActivateProcessVersion{
					ProcessID: "<process>",
					VersionID: "<version-1>",
				},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			pv, err := ds.LoadProcessVersion(ctx, "<process>", "<version-1>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(pv.NaturalID).To(gomega.Equal("ordering"))

			id, err := ds.LoadActiveVersionID(ctx, "<process>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(id).To(gomega.Equal("<version-1>"))
		})

		ginkgo.It("replaces the active version", func() {
			err := ds.Persist(ctx, persistence.Batch{
				version("<version-1>"),
				persistence.ActivateProcessVersion{
					ProcessID: "<process>",
					VersionID: "<version-1>",
				},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Persist(ctx, persistence.Batch{
				version("<version-2>"),
				persistence.ActivateProcessVersion{
					ProcessID: "<process>",
					VersionID: "<version-2>",
				},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			id, err := ds.LoadActiveVersionID(ctx, "<process>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(id).To(gomega.Equal("<version-2>"))
		})

		ginkgo.It("rejects activation of an unknown version", func() {
			err := ds.Persist(ctx, persistence.Batch{
				persistence.ActivateProcessVersion{
					ProcessID: "<process>",
					VersionID: "<unknown>",
				},
			})
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.NotFoundError{}))
		})

		ginkgo.It("returns an error for an unknown process", func() {
			_, err := ds.LoadProcessVersion(ctx, "<unknown>", "<version-1>")
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.UnknownProcessError{}))

			_, err = ds.LoadActiveVersionID(ctx, "<unknown>")
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.UnknownProcessError{}))
		})

		ginkgo.It("tracks the active-instance index", func() {
			err := ds.Persist(ctx, persistence.Batch{
				persistence.SaveActiveInstance{
					ProcessID:  "<process>",
					InstanceID: "<instance-b>",
				},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Persist(ctx, persistence.Batch{
				persistence.SaveActiveInstance{
					ProcessID:  "<process>",
					InstanceID: "<instance-a>",
				},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			ids, err := ds.LoadActiveInstances(ctx, "<process>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ids).To(gomega.Equal([]string{"<instance-a>", "<instance-b>"}))

			err = ds.Persist(ctx, persistence.Batch{
				persistence.RemoveActiveInstance{
					ProcessID:  "<process>",
					InstanceID: "<instance-a>",
				},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			ids, err = ds.LoadActiveInstances(ctx, "<process>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ids).To(gomega.Equal([]string{"<instance-b>"}))
		})
	})

	ginkgo.Describe("subscriptions", func() {
		sub := func(id string) persistence.Subscription {
			return persistence.Subscription{
				SubscriptionID:  id,
				CorrelationType: "message",
				CorrelationHash: "<hash>",
				ProcessID:       "<process>",
				VersionID:       "<version>",
				InstanceID:      "<instance>",
				ElementID:       "<element>",
			}
		}

		ginkgo.It("persists and loads subscriptions under their correlation key", func() {
			err := ds.Persist(ctx, persistence.Batch{
				persistence.SaveSubscription{Subscription: sub("<sub-b>")},
				persistence.SaveSubscription{Subscription: sub("<sub-a>")},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			subs, err := ds.LoadSubscriptions(ctx, "message", "<hash>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(subs).To(gomega.HaveLen(2))
			gomega.Expect(subs[0].SubscriptionID).To(gomega.Equal("<sub-a>"))

			subs, err = ds.LoadSubscriptions(ctx, "timer", "<hash>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(subs).To(gomega.BeEmpty())
		})

		ginkgo.It("removes a subscription exactly once", func() {
			err := ds.Persist(ctx, persistence.Batch{
				persistence.SaveSubscription{Subscription: sub("<sub-a>")},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Persist(ctx, persistence.Batch{
				persistence.RemoveSubscription{Subscription: sub("<sub-a>")},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Persist(ctx, persistence.Batch{
				persistence.RemoveSubscription{Subscription: sub("<sub-a>")},
			})
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.NotFoundError{}))
		})
	})

	ginkgo.Describe("timers", func() {
		tm := func(id string) persistence.Timer {
			return persistence.Timer{
				TimerID:    id,
				Day:        "2024-03-01",
				TimeOfDay:  "12:00",
				Shard:      1,
				ProcessID:  "<process>",
				VersionID:  "<version>",
				InstanceID: "<instance>",
				ElementID:  "<element>",
				Descriptor: "10s",
				Occurrence: 1,
			}
		}

		ginkgo.It("persists timers into their due bucket and the owner index", func() {
			err := ds.Persist(ctx, persistence.Batch{
				persistence.SaveTimer{Timer: tm("<timer-a>")},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			due, err := ds.LoadDueTimers(ctx, "2024-03-01", "12:00", 1)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(due).To(gomega.HaveLen(1))
			gomega.Expect(due[0].TimerID).To(gomega.Equal("<timer-a>"))

			all, err := ds.LoadTimers(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(all).To(gomega.HaveLen(1))
		})

		ginkgo.It("does not return timers from other buckets", func() {
			err := ds.Persist(ctx, persistence.Batch{
				persistence.SaveTimer{Timer: tm("<timer-a>")},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			due, err := ds.LoadDueTimers(ctx, "2024-03-01", "12:01", 1)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(due).To(gomega.BeEmpty())

			due, err = ds.LoadDueTimers(ctx, "2024-03-01", "12:00", 2)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(due).To(gomega.BeEmpty())
		})

		ginkgo.It("moves a re-saved timer to its new bucket", func() {
			err := ds.Persist(ctx, persistence.Batch{
				persistence.SaveTimer{Timer: tm("<timer-a>")},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			moved := tm("<timer-a>")
			moved.TimeOfDay = "12:30"

			err = ds.Persist(ctx, persistence.Batch{
				persistence.SaveTimer{Timer: moved},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			due, err := ds.LoadDueTimers(ctx, "2024-03-01", "12:00", 1)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(due).To(gomega.BeEmpty())

			due, err = ds.LoadDueTimers(ctx, "2024-03-01", "12:30", 1)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(due).To(gomega.HaveLen(1))

			all, err := ds.LoadTimers(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(all).To(gomega.HaveLen(1))
		})

		ginkgo.It("removes a timer exactly once", func() {
			err := ds.Persist(ctx, persistence.Batch{
				persistence.SaveTimer{Timer: tm("<timer-a>")},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Persist(ctx, persistence.Batch{
				persistence.RemoveTimer{Timer: tm("<timer-a>")},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Persist(ctx, persistence.Batch{
				persistence.RemoveTimer{Timer: tm("<timer-a>")},
			})
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.NotFoundError{}))
		})
	})

	ginkgo.Describe("archival", func() {
		archive := func(rev uint64, expiresAt time.Time) persistence.ArchiveAggregate {
			return persistence.ArchiveAggregate{
				HandlerKey: "instance",
				Instance: persistence.ArchivedInstance{
					InstanceID: "<instance>",
					ProcessID:  "<process>",
					Day:        "2024-03-01",
					ExpiresAt:  expiresAt,
				},
				Revision: rev,
			}
		}

		expiry := time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)

		ginkgo.BeforeEach(func() {
			err := ds.Persist(ctx, persistence.Batch{event("<event-0>", 0)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Persist(ctx, persistence.Batch{
				persistence.SaveActiveInstance{
					ProcessID:  "<process>",
					InstanceID: "<instance>",
				},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		})

		ginkgo.It("retires the aggregate but keeps its sentinel", func() {
			err := ds.Persist(ctx, persistence.Batch{archive(1, expiry)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			h, err := ds.LoadAggregate(ctx, "instance", "<instance>", true)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(h.MetaData.Revision).To(gomega.BeEquivalentTo(1))
			gomega.Expect(h.MetaData.InstanceExists).To(gomega.BeFalse())
			gomega.Expect(h.Events).To(gomega.BeEmpty())
			gomega.Expect(h.Snapshot).To(gomega.BeNil())

			// A stale writer must still conflict rather than resurrect the
			// aggregate.
			err = ds.Persist(ctx, persistence.Batch{event("<event-stale>", 0)})
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.ConflictError{}))
		})

		ginkgo.It("removes the instance from the active index", func() {
			err := ds.Persist(ctx, persistence.Batch{archive(1, expiry)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			ids, err := ds.LoadActiveInstances(ctx, "<process>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ids).To(gomega.BeEmpty())
		})

		ginkgo.It("rejects archival at a stale revision", func() {
			err := ds.Persist(ctx, persistence.Batch{archive(99, expiry)})
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.ConflictError{}))
		})

		ginkgo.It("loads the archived record from its day partition", func() {
			err := ds.Persist(ctx, persistence.Batch{archive(1, expiry)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			inst, err := ds.LoadArchivedInstance(ctx, "2024-03-01", "<instance>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(inst.ProcessID).To(gomega.Equal("<process>"))

			_, err = ds.LoadArchivedInstance(ctx, "2024-03-02", "<instance>")
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.UnknownInstanceError{}))
		})

		ginkgo.It("deletes expired archives", func() {
			err := ds.Persist(ctx, persistence.Batch{archive(1, expiry)})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			n, err := ds.DeleteExpiredArchives(ctx, expiry.Add(-time.Hour))
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(n).To(gomega.BeZero())

			n, err = ds.DeleteExpiredArchives(ctx, expiry)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(n).To(gomega.Equal(1))

			_, err = ds.LoadArchivedInstance(ctx, "2024-03-01", "<instance>")
			gomega.Expect(err).To(gomega.BeAssignableToTypeOf(persistence.UnknownInstanceError{}))
		})
	})

	ginkgo.Describe("data store lifecycle", func() {
		ginkgo.It("locks the owner's data store for exclusive use", func() {
			_, err := provider.Open(ctx, "<owner>")
			gomega.Expect(err).To(gomega.Equal(persistence.ErrDataStoreLocked))
		})

		ginkgo.It("rejects operations after the data store is closed", func() {
			err := ds.Close()
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.Persist(ctx, persistence.Batch{event("<event-0>", 0)})
			gomega.Expect(err).To(gomega.Equal(persistence.ErrDataStoreClosed))

			ds = nil
		})
	})
}
