package router_test

import (
	"context"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rite-engine/rite/fixtures"
	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/parcel"
	. "github.com/rite-engine/rite/router"
)

// newNullDefinition returns a machine that accepts a create command and
// records nothing else, just enough to observe that a dispatch occurred.
func newNullDefinition() *fsm.Definition {
	return &fsm.Definition{
		HandlerKey:   "<machine>",
		InitialState: "pending",
		NewRoot: func() fsm.Root {
			return &nullRoot{State: "pending"}
		},
		States: map[string]fsm.State{
			"pending": {
				Commands: map[message.Type]fsm.CommandHandler{
					"command.instance.create": func(
						ctx context.Context,
						s fsm.Scope,
						r fsm.Root,
						m message.Message,
					) error {
						c := m.(message.CreateInstance)

						return s.Emit(ctx, message.InstanceCreated{
							Owner:      c.Owner,
							InstanceID: c.InstanceID,
						})
					},
				},
				Events: map[message.Type]fsm.EventHandler{
					"event.instance.created": func(r fsm.Root, m message.Message) {
						r.(*nullRoot).State = "active"
					},
				},
			},
			"active": {},
		},
	}
}

type nullRoot struct {
	State string `json:"state"`
}

func (r *nullRoot) CurrentState() string {
	return r.State
}

var _ = Describe("type Table", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		ds      *fixtures.DataStoreStub
		packer  *parcel.Packer
		def     *fsm.Definition
		runtime *fsm.Runtime
		table   Table
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 3*time.Second)

		ds = fixtures.NewDataStoreStub()
		packer = fixtures.NewPacker()
		def = newNullDefinition()

		runtime = fsm.NewRuntime(
			[]*fsm.Definition{def},
			&fixtures.QueueRecorder{},
			packer,
			nil,
			logging.DiscardLogger{},
		)

		table = Table{
			"command.instance.create": To(
				def,
				func(m message.Message) (string, fsm.Meta) {
					c := m.(message.CreateInstance)
					return c.InstanceID, fsm.Meta{
						Owner:      c.Owner,
						InstanceID: c.InstanceID,
					}
				},
			),
		}
	})

	AfterEach(func() {
		ds.Close()
		cancel()
	})

	Describe("func Deliver()", func() {
		It("dispatches the command to its target aggregate", func() {
			p := packer.Pack(message.CreateInstance{
				Owner:      "<owner>",
				InstanceID: "<instance>",
			})

			err := table.Deliver(ctx, runtime, ds, p)
			Expect(err).ShouldNot(HaveOccurred())

			h, err := ds.LoadAggregate(ctx, "<machine>", "<instance>", false)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(h.MetaData.Revision).To(BeEquivalentTo(1))
		})

		It("returns an error for an unrouted message type", func() {
			p := packer.Pack(message.TriggerEvent{
				Owner:      "<owner>",
				InstanceID: "<instance>",
				ElementID:  "<element>",
			})

			err := table.Deliver(ctx, runtime, ds, p)
			Expect(err).To(MatchError("no route for command.event.trigger commands"))
		})

		It("returns an error if the message does not identify a target", func() {
			p := packer.Pack(message.CreateInstance{
				Owner: "<owner>",
			})

			err := table.Deliver(ctx, runtime, ds, p)
			Expect(err).Should(HaveOccurred())
		})
	})

	Describe("func MustValidate()", func() {
		It("panics if a command type has no route", func() {
			Expect(table.MustValidate).To(Panic())
		})
	})
})
