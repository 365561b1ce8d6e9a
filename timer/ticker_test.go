package timer_test

import (
	"context"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rite-engine/rite/fixtures"
	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/parcel"
	"github.com/rite-engine/rite/persistence"
	. "github.com/rite-engine/rite/timer"
)

var _ = Describe("type Ticker", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		ds     *fixtures.DataStoreStub
		queue  *fixtures.QueueRecorder
		now    time.Time
		ticker *Ticker
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 3*time.Second)

		ds = fixtures.NewDataStoreStub()
		queue = &fixtures.QueueRecorder{}
		now = time.Date(2024, 3, 1, 12, 0, 30, 0, time.UTC)

		ticker = &Ticker{
			Owner:     "<owner>",
			Timers:    ds,
			Persister: ds,
			Queue:     queue,
			Packer:    fixtures.NewPacker(),
			Logger:    logging.DiscardLogger{},
			Now: func() time.Time {
				return now
			},
		}
	})

	AfterEach(func() {
		ds.Close()
		cancel()
	})

	// schedule persists one occurrence of a timer element, registered at
	// start.
	schedule := func(desc, instanceID string, start time.Time, occurrence uint64) persistence.Timer {
		d, err := ParseDescriptor(desc)
		Expect(err).ShouldNot(HaveOccurred())

		tm := New(
			d,
			desc,
			start,
			0,
			"<process>", "<version>", instanceID, "<element>",
			occurrence,
		)

		err = ds.Persist(
			ctx,
			persistence.Batch{
				persistence.SaveTimer{Timer: tm},
			},
		)
		Expect(err).ShouldNot(HaveOccurred())

		return tm
	}

	Describe("func Tick()", func() {
		It("publishes nothing when no timers are due", func() {
			err := ticker.Tick(ctx, now)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(queue.Parcels()).To(BeEmpty())
		})

		It("triggers the waiting event when an instance timer fires", func() {
			schedule("30s", "<instance>", now.Add(-time.Minute), 1)

			err := ticker.Tick(ctx, now)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(queue.Messages()).To(ConsistOf(
				message.TriggerEvent{
					Owner:      "<owner>",
					InstanceID: "<instance>",
					ElementID:  "<element>",
				},
			))
		})

		It("removes a fired timer", func() {
			schedule("30s", "<instance>", now.Add(-time.Minute), 1)

			err := ticker.Tick(ctx, now)
			Expect(err).ShouldNot(HaveOccurred())

			timers, err := ds.LoadTimers(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(timers).To(BeEmpty())
		})

		It("creates a new instance when a start-timer fires", func() {
			tm := schedule("30s", "", now.Add(-time.Minute), 1)

			err := ticker.Tick(ctx, now)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(queue.Messages()).To(ConsistOf(
				message.CreateInstance{
					Owner:          "<owner>",
					ProcessID:      "<process>",
					VersionID:      "<version>",
					InstanceID:     tm.TimerID,
					StartElementID: "<element>",
				},
			))
		})

		It("schedules the next occurrence of a cycle timer", func() {
			schedule("R/5m", "<instance>", now.Add(-5*time.Minute), 1)

			err := ticker.Tick(ctx, now)
			Expect(err).ShouldNot(HaveOccurred())

			timers, err := ds.LoadTimers(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(timers).To(HaveLen(1))

			next := timers[0]
			Expect(next.TimerID).To(Equal("<instance>/<element>#2"))
			Expect(next.Occurrence).To(BeEquivalentTo(2))
			Expect(next.Day).To(Equal("2024-03-01"))
			Expect(next.TimeOfDay).To(Equal("12:05"))
		})

		It("does not publish a command for a timer claimed by another ticker", func() {
			tm := schedule("30s", "<instance>", now.Add(-time.Minute), 1)

			ds.PersistFunc = func(ctx context.Context, b persistence.Batch) error {
				// Claim the timer as a competing ticker would, before
				// the batch under test is applied.
				ds.PersistFunc = nil

				err := ds.Persist(
					ctx,
					persistence.Batch{
						persistence.RemoveTimer{Timer: tm},
					},
				)
				Expect(err).ShouldNot(HaveOccurred())

				return ds.Persist(ctx, b)
			}

			err := ticker.Tick(ctx, now)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(queue.Parcels()).To(BeEmpty())
		})

		It("scans every bucket since the previous tick", func() {
			err := ticker.Tick(ctx, now)
			Expect(err).ShouldNot(HaveOccurred())

			schedule("30s", "<instance>", now, 1) // due at 12:01

			now = now.Add(3 * time.Minute)
			err = ticker.Tick(ctx, now)

			Expect(err).ShouldNot(HaveOccurred())
			Expect(queue.Messages()).To(ConsistOf(
				message.TriggerEvent{
					Owner:      "<owner>",
					InstanceID: "<instance>",
					ElementID:  "<element>",
				},
			))
		})

		It("does not fire the same bucket twice", func() {
			schedule("30s", "<instance>", now.Add(-time.Minute), 1)

			err := ticker.Tick(ctx, now)
			Expect(err).ShouldNot(HaveOccurred())

			err = ticker.Tick(ctx, now)
			Expect(err).ShouldNot(HaveOccurred())

			Expect(queue.Parcels()).To(HaveLen(1))
		})
	})

	Describe("func Run()", func() {
		It("fires due timers until the context is canceled", func() {
			schedule("30s", "<instance>", now.Add(-time.Minute), 1)

			runCtx, cancelRun := context.WithCancel(ctx)
			defer cancelRun()

			queue.PublishFunc = func(context.Context, parcel.Parcel) error {
				cancelRun()
				return nil
			}

			err := ticker.Run(runCtx)

			Expect(err).To(MatchError(context.Canceled))
			Expect(queue.Parcels()).To(HaveLen(1))
		})
	})
})
