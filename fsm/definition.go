package fsm

import (
	"context"
	"fmt"

	"github.com/rite-engine/rite/message"
)

// Root is the mutable state of one aggregate.
//
// The concrete type is specific to each machine definition. Event handlers
// mutate the root, including its current state name; command handlers never
// mutate it directly.
type Root interface {
	// CurrentState returns the name of the state the aggregate is in.
	CurrentState() string
}

// Meta is the initialization meta-data carried to an aggregate that is being
// created for the first time. It links an element occurrence back to its
// owning instance and deployment.
type Meta struct {
	// Owner is the identity key of the tenant.
	Owner string

	// ProcessID and VersionID identify the deployment the aggregate
	// executes under.
	ProcessID string
	VersionID string

	// InstanceID is the uid of the owning process instance. For the
	// instance machine itself it equals the aggregate's uid.
	InstanceID string

	// ElementID is the process element the aggregate executes, if any.
	ElementID string
}

// CommandHandler handles a command dispatched to an aggregate in a specific
// state.
//
// It runs the state's business logic and reports its effects through the
// scope; it must not mutate the root directly.
type CommandHandler func(ctx context.Context, s Scope, r Root, m message.Message) error

// EventHandler applies an event to an aggregate's state.
//
// Event handlers are pure state mutations. They must be deterministic so
// that replaying a log reproduces identical state, and must never emit or
// execute anything.
type EventHandler func(r Root, m message.Message)

// State is one named state of a machine definition: a table of the commands
// the state accepts and the events that transition out of it.
//
// A command arriving while the aggregate is in a state with no handler for
// it is silently dropped; delivery is at-least-once, so stale and duplicate
// commands are expected.
type State struct {
	Commands map[message.Type]CommandHandler
	Events   map[message.Type]EventHandler
}

// Definition is a declarative finite-state-machine definition, shared by
// every aggregate the machine executes.
type Definition struct {
	// HandlerKey is the unique key of the machine, used to partition
	// persisted aggregate state.
	HandlerKey string

	// InitialState is the name of the state a fresh aggregate starts in.
	InitialState string

	// NewRoot returns a new zero-value root for the machine.
	NewRoot func() Root

	// Init seeds a freshly constructed root from its initialization
	// meta-data. It is not called when an aggregate is rehydrated from its
	// log.
	Init func(r Root, meta Meta)

	// States is the machine's state table.
	States map[string]State
}

// MustValidate panics if the definition is structurally invalid. It is
// called when the definition is registered, so that a malformed machine is a
// startup failure rather than a runtime one.
func (d *Definition) MustValidate() {
	if d.HandlerKey == "" {
		panic("machine definition has no handler key")
	}

	if d.NewRoot == nil {
		panic(fmt.Sprintf("machine %q has no root constructor", d.HandlerKey))
	}

	if _, ok := d.States[d.InitialState]; !ok {
		panic(fmt.Sprintf(
			"machine %q's initial state %q is not in its state table",
			d.HandlerKey,
			d.InitialState,
		))
	}
}

// commandHandler returns the handler for the given command type in the given
// state, if the state defines one.
func (d *Definition) commandHandler(state string, t message.Type) (CommandHandler, bool) {
	h, ok := d.States[state].Commands[t]
	return h, ok
}

// eventHandler returns the handler for the given event type in the given
// state, if the state defines one.
func (d *Definition) eventHandler(state string, t message.Type) (EventHandler, bool) {
	h, ok := d.States[state].Events[t]
	return h, ok
}
