package engine_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rite-engine/rite/correlation"
	"github.com/rite-engine/rite/engine"
	"github.com/rite-engine/rite/fixtures"
	"github.com/rite-engine/rite/machine"
	"github.com/rite-engine/rite/persistence"
	"github.com/rite-engine/rite/process"
)

var _ = Describe("type Engine", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		ds     *fixtures.DataStoreStub
		eng    *engine.Engine

		idm sync.Mutex
		ids []string
	)

	generateID := func() string {
		idm.Lock()
		defer idm.Unlock()

		id := fmt.Sprintf("%08d", len(ids)+1)
		ids = append(ids, id)
		return id
	}

	issuedIDs := func() []string {
		idm.Lock()
		defer idm.Unlock()
		return append([]string(nil), ids...)
	}

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		DeferCleanup(cancel)

		idm.Lock()
		ids = nil
		idm.Unlock()

		ds = fixtures.NewDataStoreStub()

		provider := &fixtures.ProviderStub{
			OpenFunc: func(context.Context, string) (persistence.DataStore, error) {
				return ds, nil
			},
		}

		eng = engine.New(
			fixtures.DefaultOwner,
			engine.WithPersistence(provider),
			engine.WithEvaluator(&fixtures.EvaluatorStub{}),
			engine.WithLogger(logging.DiscardLogger{}),
			engine.WithIDGenerator(generateID),
		)
		DeferCleanup(eng.Close)
	})

	today := func() string {
		return time.Now().Format("2006-01-02")
	}

	Describe("func Deploy()", func() {
		It("saves the version and activates it", func() {
			v, err := eng.Deploy(ctx, fixtures.NewLinearDefinition())
			Expect(err).ShouldNot(HaveOccurred())

			active, err := ds.LoadActiveVersionID(ctx, v.ProcessID)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(active).To(Equal(v.VersionID))

			pv, err := ds.LoadProcessVersion(ctx, v.ProcessID, v.VersionID)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(pv.NaturalID).To(Equal("linear"))
		})

		It("keeps a stable process uid across deployments", func() {
			v1, err := eng.Deploy(ctx, fixtures.NewLinearDefinition())
			Expect(err).ShouldNot(HaveOccurred())

			v2, err := eng.Deploy(ctx, fixtures.NewLinearDefinition())
			Expect(err).ShouldNot(HaveOccurred())

			Expect(v2.ProcessID).To(Equal(v1.ProcessID))
			Expect(v2.VersionID).ToNot(Equal(v1.VersionID))

			active, err := ds.LoadActiveVersionID(ctx, v1.ProcessID)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(active).To(Equal(v2.VersionID))
		})

		It("registers the message start triggers of the new version", func() {
			v, err := eng.Deploy(ctx, fixtures.NewStartTriggerDefinition())
			Expect(err).ShouldNot(HaveOccurred())

			subs, err := ds.LoadSubscriptions(
				ctx,
				correlation.TypeMessage,
				correlation.Hash("order.placed"),
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(subs).To(HaveLen(1))
			Expect(subs[0].VersionID).To(Equal(v.VersionID))
			Expect(subs[0].ElementID).To(Equal("start"))
			Expect(subs[0].InstanceID).To(BeEmpty())
		})

		It("withdraws the start triggers of the version it replaces", func() {
			_, err := eng.Deploy(ctx, fixtures.NewStartTriggerDefinition())
			Expect(err).ShouldNot(HaveOccurred())

			v2, err := eng.Deploy(ctx, fixtures.NewStartTriggerDefinition())
			Expect(err).ShouldNot(HaveOccurred())

			subs, err := ds.LoadSubscriptions(
				ctx,
				correlation.TypeMessage,
				correlation.Hash("order.placed"),
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(subs).To(HaveLen(1))
			Expect(subs[0].VersionID).To(Equal(v2.VersionID))
		})

		It("registers the start timers of the new version", func() {
			def := fixtures.NewStartTriggerDefinition()
			for _, e := range def.Elements() {
				if e.ID == "start" {
					e.MessageRef = ""
					e.TimerDescriptor = "R/1h"
				}
			}

			v, err := eng.Deploy(ctx, def)
			Expect(err).ShouldNot(HaveOccurred())

			timers, err := ds.LoadTimers(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(timers).To(HaveLen(1))
			Expect(timers[0].VersionID).To(Equal(v.VersionID))
			Expect(timers[0].ElementID).To(Equal("start"))
			Expect(timers[0].InstanceID).To(BeEmpty())
		})

		It("removes the start timers of the version it replaces", func() {
			def := fixtures.NewStartTriggerDefinition()
			for _, e := range def.Elements() {
				if e.ID == "start" {
					e.MessageRef = ""
					e.TimerDescriptor = "R/1h"
				}
			}

			_, err := eng.Deploy(ctx, def)
			Expect(err).ShouldNot(HaveOccurred())

			v2, err := eng.Deploy(ctx, def)
			Expect(err).ShouldNot(HaveOccurred())

			timers, err := ds.LoadTimers(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(timers).To(HaveLen(1))
			Expect(timers[0].VersionID).To(Equal(v2.VersionID))
		})

		It("rejects a malformed definition", func() {
			_, err := eng.Deploy(ctx, &process.Definition{})
			Expect(err).Should(HaveOccurred())
		})
	})

	Describe("func CreateInstance()", func() {
		It("assigns the instance a uid before the command is queued", func() {
			v, err := eng.Deploy(ctx, fixtures.NewLinearDefinition())
			Expect(err).ShouldNot(HaveOccurred())

			id, err := eng.CreateInstance(ctx, v.ProcessID, nil)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(id).ToNot(BeEmpty())
		})

		It("returns an error if the process is unknown", func() {
			_, err := eng.CreateInstance(ctx, "<unknown>", nil)
			Expect(err).Should(HaveOccurred())
		})
	})

	Describe("func Raise()", func() {
		It("returns the number of matched subscriptions", func() {
			_, err := eng.Deploy(ctx, fixtures.NewStartTriggerDefinition())
			Expect(err).ShouldNot(HaveOccurred())

			n, err := eng.Raise(ctx, "order.placed", nil)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("returns zero when nothing is awaiting the message", func() {
			n, err := eng.Raise(ctx, "order.cancelled", nil)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})

	Describe("func Signal()", func() {
		It("correlates on the signal namespace", func() {
			_, err := eng.Deploy(ctx, fixtures.NewStartTriggerDefinition())
			Expect(err).ShouldNot(HaveOccurred())

			// The start trigger awaits a message, not a signal.
			n, err := eng.Signal(ctx, "order.placed", nil)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})

	Describe("func Run()", func() {
		var (
			runCtx    context.Context
			cancelRun context.CancelFunc
			result    chan error
		)

		BeforeEach(func() {
			runCtx, cancelRun = context.WithCancel(ctx)
			DeferCleanup(cancelRun)

			result = make(chan error, 1)
		})

		run := func() {
			go func() {
				result <- eng.Run(runCtx)
			}()
		}

		archiveExists := func(id string) func() error {
			return func() error {
				_, err := ds.LoadArchivedInstance(ctx, today(), id)
				return err
			}
		}

		It("executes a created instance to completion", func() {
			v, err := eng.Deploy(ctx, fixtures.NewLinearDefinition())
			Expect(err).ShouldNot(HaveOccurred())

			run()

			id, err := eng.CreateInstance(ctx, v.ProcessID, nil)
			Expect(err).ShouldNot(HaveOccurred())

			Eventually(archiveExists(id)).Should(Succeed())
		})

		It("starts an instance from a raised message", func() {
			_, err := eng.Deploy(ctx, fixtures.NewStartTriggerDefinition())
			Expect(err).ShouldNot(HaveOccurred())

			run()

			n, err := eng.Raise(ctx, "order.placed", map[string]any{"order": "O-1001"})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(n).To(Equal(1))

			Eventually(func() bool {
				for _, id := range issuedIDs() {
					if _, err := ds.LoadArchivedInstance(ctx, today(), id); err == nil {
						return true
					}
				}
				return false
			}).Should(BeTrue())
		})

		It("delivers worker job results", func() {
			v, err := eng.Deploy(ctx, fixtures.NewJobDefinition())
			Expect(err).ShouldNot(HaveOccurred())

			run()

			id, err := eng.CreateInstance(ctx, v.ProcessID, nil)
			Expect(err).ShouldNot(HaveOccurred())

			jobID := machine.JobUID(id, "ship")

			Eventually(func() (bool, error) {
				h, err := ds.LoadAggregate(ctx, machine.JobHandlerKey, jobID, false)
				if err != nil {
					return false, err
				}
				return h.MetaData.InstanceExists, nil
			}).Should(BeTrue())

			err = eng.CommitJob(ctx, id, jobID, map[string]any{"tracking": "T-1"})
			Expect(err).ShouldNot(HaveOccurred())

			Eventually(archiveExists(id)).Should(Succeed())
		})

		It("returns when its context is canceled", func() {
			run()

			cancelRun()

			Eventually(result).Should(Receive(MatchError(context.Canceled)))
		})
	})
})
