package machine_test

import (
	"context"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rite-engine/rite/correlation"
	"github.com/rite-engine/rite/engine"
	"github.com/rite-engine/rite/fixtures"
	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/machine"
	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/parcel"
	"github.com/rite-engine/rite/persistence"
	"github.com/rite-engine/rite/process"
	"github.com/rite-engine/rite/router"
)

// The machine tests drive complete processes through the real runtime,
// dispatching each command the machines execute until the queue drains.
var _ = Describe("type Machines", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		ds        *fixtures.DataStoreStub
		queue     *fixtures.QueueRecorder
		packer    *parcel.Packer
		lookup    *fixtures.ProcessLookupStub
		machines  *machine.Machines
		runtime   *fsm.Runtime
		routes    router.Table
		delivered int
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		DeferCleanup(cancel)

		ds = fixtures.NewDataStoreStub()
		DeferCleanup(ds.Close)

		queue = &fixtures.QueueRecorder{}
		packer = fixtures.NewPacker()
		lookup = &fixtures.ProcessLookupStub{}
		delivered = 0

		machines = &machine.Machines{
			Processes: lookup,
			Evaluator: &fixtures.EvaluatorStub{},
		}
	})

	// start builds the runtime and routing table after the It has had a
	// chance to configure the machines.
	start := func() {
		runtime = fsm.NewRuntime(
			machines.Definitions(),
			queue,
			packer,
			engine.NewDefaultMarshaler(),
			logging.DiscardLogger{},
		)
		routes = machines.Routes()
	}

	// pump delivers queued commands in publication order until the machines
	// stop executing new ones.
	pump := func() {
		for {
			parcels := queue.Parcels()
			if delivered == len(parcels) {
				return
			}

			p := parcels[delivered]
			delivered++

			ExpectWithOffset(1, routes.Deliver(ctx, runtime, ds, p)).To(Succeed())
		}
	}

	send := func(m message.Message) {
		err := queue.Publish(ctx, packer.Pack(m))
		ExpectWithOffset(1, err).ShouldNot(HaveOccurred())
		pump()
	}

	deploy := func(def *process.Definition) {
		lookup.Add(fixtures.NewVersion(def))
		start()
	}

	create := func(data map[string]any) {
		send(message.CreateInstance{
			Owner:      fixtures.DefaultOwner,
			ProcessID:  fixtures.DefaultProcessID,
			VersionID:  fixtures.DefaultVersionID,
			InstanceID: "<instance>",
			Data:       data,
		})
	}

	today := func() string {
		return time.Now().Format("2006-01-02")
	}

	archived := func(uid string) persistence.ArchivedInstance {
		inst, err := ds.LoadArchivedInstance(ctx, today(), uid)
		ExpectWithOffset(1, err).ShouldNot(HaveOccurred())
		return inst
	}

	historyTypes := func(inst persistence.ArchivedInstance) []message.Type {
		var types []message.Type
		for _, env := range inst.History {
			types = append(types, env.MessageType)
		}
		return types
	}

	// finalState unmarshals the archive snapshot of the root instance.
	finalState := func() *machine.InstanceRoot {
		inst := archived("<instance>")

		v, err := engine.NewDefaultMarshaler().Unmarshal(inst.Snapshot)
		ExpectWithOffset(1, err).ShouldNot(HaveOccurred())

		return v.(*machine.InstanceRoot)
	}

	retired := func(handlerKey, uid string) {
		h, err := ds.LoadAggregate(ctx, handlerKey, uid, false)
		ExpectWithOffset(1, err).ShouldNot(HaveOccurred())
		ExpectWithOffset(1, h.MetaData.Revision).ShouldNot(BeZero())
		ExpectWithOffset(1, h.MetaData.InstanceExists).To(BeFalse())
	}

	untouched := func(handlerKey, uid string) {
		h, err := ds.LoadAggregate(ctx, handlerKey, uid, false)
		ExpectWithOffset(1, err).ShouldNot(HaveOccurred())
		ExpectWithOffset(1, h.MetaData.Revision).To(BeZero())
	}

	Describe("a linear process", func() {
		BeforeEach(func() {
			deploy(fixtures.NewLinearDefinition())
		})

		It("runs from start event to completion", func() {
			create(nil)

			Expect(historyTypes(archived("<instance>"))).To(Equal(
				[]message.Type{
					message.InstanceCreated{}.MessageType(),
					message.InstanceCompleted{}.MessageType(),
				},
			))
		})

		It("retires every element it activated", func() {
			create(nil)

			retired(machine.InstanceHandlerKey, "<instance>")
			retired(machine.EventHandlerKey, "<instance>/start")
			retired(machine.SequenceHandlerKey, "<instance>/s1")
			retired(machine.TaskHandlerKey, "<instance>/work")
			retired(machine.SequenceHandlerKey, "<instance>/s2")
			retired(machine.EventHandlerKey, "<instance>/end")
		})

		It("removes the instance from the active index", func() {
			create(nil)

			active, err := ds.LoadActiveInstances(ctx, fixtures.DefaultProcessID)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(active).To(BeEmpty())
		})

		It("indexes the archive record by process", func() {
			create(nil)

			Expect(archived("<instance>").ProcessID).To(
				Equal(fixtures.DefaultProcessID),
			)
		})

		It("carries the creation data through to the final state", func() {
			create(map[string]any{"order": "O-1001"})

			Expect(finalState().Data).To(
				HaveKeyWithValue("order", "O-1001"),
			)
		})
	})

	Describe("an exclusive gateway", func() {
		BeforeEach(func() {
			deploy(fixtures.NewGatewayDefinition())
		})

		It("activates the first sequence whose guard is truthy", func() {
			create(map[string]any{"route_b": true})

			retired(machine.TaskHandlerKey, "<instance>/b")
			untouched(machine.TaskHandlerKey, "<instance>/a")
			untouched(machine.TaskHandlerKey, "<instance>/c")
		})

		It("falls back to the default sequence", func() {
			create(nil)

			retired(machine.TaskHandlerKey, "<instance>/c")
			untouched(machine.TaskHandlerKey, "<instance>/a")
			untouched(machine.TaskHandlerKey, "<instance>/b")
		})

		It("completes the instance on either path", func() {
			create(map[string]any{"route_a": true})

			retired(machine.InstanceHandlerKey, "<instance>")
		})
	})

	Describe("a service task", func() {
		BeforeEach(func() {
			deploy(fixtures.NewJobDefinition())
		})

		It("parks the flow on an activated worker job", func() {
			create(nil)

			h, err := ds.LoadAggregate(
				ctx,
				machine.JobHandlerKey,
				machine.JobUID("<instance>", "ship"),
				false,
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(h.MetaData.InstanceExists).To(BeTrue())

			active, err := ds.LoadActiveInstances(ctx, fixtures.DefaultProcessID)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(active).To(ConsistOf("<instance>"))
		})

		It("resumes when the job is committed", func() {
			create(nil)

			send(message.CommitJob{
				Owner:      fixtures.DefaultOwner,
				InstanceID: "<instance>",
				JobID:      machine.JobUID("<instance>", "ship"),
				Output:     map[string]any{"tracking": "T-1"},
			})

			retired(machine.InstanceHandlerKey, "<instance>")
			retired(machine.JobHandlerKey, machine.JobUID("<instance>", "ship"))
		})

		It("indexes the element archive records by process", func() {
			create(nil)

			send(message.CommitJob{
				Owner:      fixtures.DefaultOwner,
				InstanceID: "<instance>",
				JobID:      machine.JobUID("<instance>", "ship"),
				Output:     map[string]any{"tracking": "T-1"},
			})

			Expect(archived("<instance>/ship").ProcessID).To(
				Equal(fixtures.DefaultProcessID),
			)
			Expect(archived(machine.JobUID("<instance>", "ship")).ProcessID).To(
				Equal(fixtures.DefaultProcessID),
			)
		})

		It("folds the job's output into the instance context", func() {
			create(map[string]any{"order": "O-1001"})

			send(message.CommitJob{
				Owner:      fixtures.DefaultOwner,
				InstanceID: "<instance>",
				JobID:      machine.JobUID("<instance>", "ship"),
				Output:     map[string]any{"tracking": "T-1"},
			})

			data := finalState().Data
			Expect(data).To(HaveKeyWithValue("order", "O-1001"))
			Expect(data).To(HaveKeyWithValue("tracking", "T-1"))
		})

		It("tolerates repeated failures below the retry limit", func() {
			create(nil)

			send(message.FailJob{
				Owner:      fixtures.DefaultOwner,
				InstanceID: "<instance>",
				JobID:      machine.JobUID("<instance>", "ship"),
				Reason:     "carrier timeout",
			})

			h, err := ds.LoadAggregate(
				ctx,
				machine.JobHandlerKey,
				machine.JobUID("<instance>", "ship"),
				false,
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(h.MetaData.InstanceExists).To(BeTrue())
		})
	})

	Describe("an error boundary", func() {
		BeforeEach(func() {
			machines.JobRetryLimit = 2
			deploy(fixtures.NewBoundaryDefinition())
		})

		fail := func(reason string) {
			send(message.FailJob{
				Owner:      fixtures.DefaultOwner,
				InstanceID: "<instance>",
				JobID:      machine.JobUID("<instance>", "ship"),
				Reason:     reason,
			})
		}

		It("activates the recovery path when the job exhausts its retries", func() {
			create(nil)

			fail("out of stock")
			fail("out of stock")

			retired(machine.JobHandlerKey, machine.JobUID("<instance>", "ship"))
			retired(machine.TaskHandlerKey, "<instance>/recover")
			retired(machine.InstanceHandlerKey, "<instance>")
		})

		It("records the failure reason in the instance context", func() {
			create(nil)

			fail("out of stock")
			fail("out of stock")

			Expect(finalState().Data).To(
				HaveKeyWithValue("error", "out of stock"),
			)
		})

		It("does not trip the boundary on the first failure", func() {
			create(nil)

			fail("out of stock")

			untouched(machine.EventHandlerKey, "<instance>/on-error")

			active, err := ds.LoadActiveInstances(ctx, fixtures.DefaultProcessID)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(active).To(ConsistOf("<instance>"))
		})
	})

	Describe("an intermediate catch event", func() {
		BeforeEach(func() {
			deploy(fixtures.NewCatchDefinition())
		})

		It("registers a message subscription and waits", func() {
			create(nil)

			subs, err := ds.LoadSubscriptions(
				ctx,
				correlation.TypeMessage,
				correlation.Hash("order.paid"),
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(subs).To(HaveLen(1))
			Expect(subs[0].SubscriptionID).To(Equal("<instance>/wait"))
			Expect(subs[0].InstanceID).To(Equal("<instance>"))

			active, err := ds.LoadActiveInstances(ctx, fixtures.DefaultProcessID)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(active).To(ConsistOf("<instance>"))
		})

		It("resumes and consumes the subscription when triggered", func() {
			create(nil)

			send(message.TriggerEvent{
				Owner:      fixtures.DefaultOwner,
				InstanceID: "<instance>",
				ElementID:  "wait",
				Data:       map[string]any{"amount": 99.0},
			})

			retired(machine.InstanceHandlerKey, "<instance>")

			subs, err := ds.LoadSubscriptions(
				ctx,
				correlation.TypeMessage,
				correlation.Hash("order.paid"),
			)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(subs).To(BeEmpty())
		})

		It("folds the trigger payload into the instance context", func() {
			create(nil)

			send(message.TriggerEvent{
				Owner:      fixtures.DefaultOwner,
				InstanceID: "<instance>",
				ElementID:  "wait",
				Data:       map[string]any{"amount": 99.0},
			})

			Expect(finalState().Data).To(
				HaveKeyWithValue("amount", 99.0),
			)
		})
	})

	Describe("an intermediate timer event", func() {
		BeforeEach(func() {
			deploy(fixtures.NewTimerDefinition())
		})

		It("schedules a timer and waits", func() {
			create(nil)

			timers, err := ds.LoadTimers(ctx)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(timers).To(HaveLen(1))
			Expect(timers[0].TimerID).To(Equal("<instance>/delay#1"))
			Expect(timers[0].InstanceID).To(Equal("<instance>"))
			Expect(timers[0].ElementID).To(Equal("delay"))
			Expect(timers[0].Descriptor).To(Equal("10s"))
		})

		It("resumes when the timer's trigger arrives", func() {
			create(nil)

			send(message.TriggerEvent{
				Owner:      fixtures.DefaultOwner,
				InstanceID: "<instance>",
				ElementID:  "delay",
			})

			retired(machine.InstanceHandlerKey, "<instance>")
			retired(machine.EventHandlerKey, "<instance>/delay")
		})
	})

	Describe("data mappings", func() {
		It("scopes an element's input by its declared mappings", func() {
			def := fixtures.NewLinearDefinition()
			for _, e := range def.Elements() {
				if e.ID == "work" {
					e.Inputs = []process.Mapping{
						{Target: "flag", Expression: "true"},
					}
				}
			}
			deploy(def)

			create(map[string]any{"total": 42.0})

			task := archived("<instance>/work")
			Expect(task.History).ToNot(BeEmpty())

			p, err := parcel.FromEnvelope(task.History[0])
			Expect(err).ShouldNot(HaveOccurred())

			activated := p.Message.(message.TaskActivated)
			Expect(activated.Input).To(HaveKeyWithValue("flag", true))
			Expect(activated.Input).To(HaveKeyWithValue("total", 42.0))
		})
	})

	Describe("func Routes()", func() {
		It("routes every registered command type", func() {
			start()

			Expect(func() {
				routes.MustValidate()
			}).ToNot(Panic())
		})
	})
})
