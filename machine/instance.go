package machine

import (
	"context"
	"fmt"

	"github.com/rite-engine/rite/expression"
	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/persistence"
	"github.com/rite-engine/rite/process"
)

// Instance machine states.
const (
	instanceNew      = "new"
	instanceActive   = "active"
	instanceFinished = "finished"
)

// InstanceRoot is the state of one running process instance. It is the
// single owner of the instance's business-data context; element machines
// change the context only by reporting outcomes back to the instance.
type InstanceRoot struct {
	State      string         `json:"state"`
	Owner      string         `json:"owner"`
	ProcessID  string         `json:"processId"`
	VersionID  string         `json:"versionId"`
	InstanceID string         `json:"instanceId"`
	Data       map[string]any `json:"data,omitempty"`
}

// CurrentState returns the name of the state the instance is in.
func (r *InstanceRoot) CurrentState() string { return r.State }

// ProcessUID returns the uid of the process the instance executes, so that
// the runtime can index its archive record.
func (r *InstanceRoot) ProcessUID() string { return r.ProcessID }

// Instance returns the machine that executes process instances.
func (m *Machines) Instance() *fsm.Definition {
	return &fsm.Definition{
		HandlerKey:   InstanceHandlerKey,
		InitialState: instanceNew,
		NewRoot: func() fsm.Root {
			return &InstanceRoot{State: instanceNew}
		},
		States: map[string]fsm.State{
			instanceNew: {
				Commands: map[message.Type]fsm.CommandHandler{
					message.CreateInstance{}.MessageType(): m.createInstance,
				},
				Events: map[message.Type]fsm.EventHandler{
					message.InstanceCreated{}.MessageType(): applyInstanceCreated,
				},
			},
			instanceActive: {
				Commands: map[message.Type]fsm.CommandHandler{
					message.RaiseEvent{}.MessageType():       m.raiseEvent,
					message.AddContext{}.MessageType():       m.addContext,
					message.ActivateNext{}.MessageType():     m.activateNext,
					message.ActivateBoundary{}.MessageType(): m.activateBoundary,
					message.ConditionalNext{}.MessageType():  m.conditionalNext,
				},
				Events: map[message.Type]fsm.EventHandler{
					message.ContextAdded{}.MessageType():      applyContextAdded,
					message.InstanceCompleted{}.MessageType(): applyInstanceCompleted,
				},
			},
			instanceFinished: {},
		},
	}
}

func (m *Machines) createInstance(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.CreateInstance)

	v, err := m.Processes.Version(ctx, cmd.Owner, cmd.ProcessID, cmd.VersionID)
	if err != nil {
		return err
	}

	var start *process.Element
	if cmd.StartElementID != "" {
		e, ok := v.ElementByID(cmd.StartElementID)
		if !ok {
			return fmt.Errorf(
				"process %s has no element with ID %q",
				v.NaturalID(),
				cmd.StartElementID,
			)
		}
		start = e
	} else {
		events := v.StartEvents()
		if len(events) == 0 {
			return fmt.Errorf("process %s has no start event", v.NaturalID())
		}
		start = events[0]
	}

	s.Do(persistence.SaveActiveInstance{
		ProcessID:  cmd.ProcessID,
		InstanceID: cmd.InstanceID,
	})

	if err := s.Emit(ctx, message.InstanceCreated{
		Owner:          cmd.Owner,
		ProcessID:      cmd.ProcessID,
		VersionID:      cmd.VersionID,
		InstanceID:     cmd.InstanceID,
		StartElementID: start.ID,
		Data:           cmd.Data,
	}); err != nil {
		return err
	}

	return m.activateElement(ctx, s, r.(*InstanceRoot), start, false)
}

func (m *Machines) raiseEvent(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.RaiseEvent)
	root := r.(*InstanceRoot)

	v, err := m.version(ctx, root)
	if err != nil {
		return err
	}

	e, ok := v.EventByTrigger(cmd.Trigger)
	if !ok {
		s.Log("no event element matches trigger %q", cmd.Trigger)
		return nil
	}

	return s.Execute(ctx, message.TriggerEvent{
		Owner:      root.Owner,
		InstanceID: root.InstanceID,
		ElementID:  e.ID,
		Data:       cmd.Data,
	})
}

func (m *Machines) addContext(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.AddContext)
	root := r.(*InstanceRoot)

	if cmd.Expression == "" {
		return s.Emit(ctx, message.ContextAdded{
			InstanceID: root.InstanceID,
			Key:        cmd.Key,
			Data:       cmd.Data,
		})
	}

	v, err := m.Evaluator.Evaluate(ctx, cmd.Expression, root.Data)
	if err != nil {
		return fmt.Errorf("cannot evaluate mapping %q: %w", cmd.Expression, err)
	}

	return s.Emit(ctx, message.ContextAdded{
		InstanceID: root.InstanceID,
		Key:        cmd.Key,
		Value:      v,
	})
}

// activateNext folds a completed element's output into the context and
// activates the elements downstream of it. An element with nothing
// downstream completes the instance.
func (m *Machines) activateNext(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.ActivateNext)
	root := r.(*InstanceRoot)

	v, err := m.version(ctx, root)
	if err != nil {
		return err
	}

	e, ok := v.ElementByID(cmd.ElementID)
	if !ok {
		return fmt.Errorf(
			"process %s has no element with ID %q",
			v.NaturalID(),
			cmd.ElementID,
		)
	}

	if len(cmd.Output) > 0 {
		if err := s.Emit(ctx, message.ContextAdded{
			InstanceID: root.InstanceID,
			Data:       cmd.Output,
		}); err != nil {
			return err
		}
	}

	var targets []*process.Element
	if e.Kind() == process.KindSequence {
		t, ok := v.ElementByID(e.To)
		if !ok {
			return fmt.Errorf(
				"sequence %s targets unknown element %q",
				e.ID,
				e.To,
			)
		}
		targets = []*process.Element{t}
	} else {
		targets = v.Outgoing(e.ID)
	}

	if len(targets) == 0 {
		return m.complete(ctx, s, root)
	}

	for _, t := range targets {
		if err := m.activateElement(ctx, s, root, t, false); err != nil {
			return err
		}
	}

	return nil
}

func (m *Machines) activateBoundary(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.ActivateBoundary)
	root := r.(*InstanceRoot)

	v, err := m.version(ctx, root)
	if err != nil {
		return err
	}

	var matched []*process.Element
	for _, b := range v.BoundaryEvents(cmd.ElementID) {
		if boundaryMatches(b, cmd.EventType) {
			matched = append(matched, b)
		}
	}

	if len(matched) == 0 {
		s.Log("no %q boundary events attached to %s", cmd.EventType, cmd.ElementID)
		return nil
	}

	if len(cmd.Data) > 0 {
		if err := s.Emit(ctx, message.ContextAdded{
			InstanceID: root.InstanceID,
			Data:       cmd.Data,
		}); err != nil {
			return err
		}
	}

	for _, b := range matched {
		if err := m.activateElement(ctx, s, root, b, b.Interrupting); err != nil {
			return err
		}
	}

	return nil
}

// conditionalNext activates exactly one of a gateway's outgoing sequences:
// the first whose guard evaluates truthy, else the declared default, else
// the first unconditional sequence. A failed or missing evaluation is
// treated as falsy.
func (m *Machines) conditionalNext(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.ConditionalNext)
	root := r.(*InstanceRoot)

	v, err := m.version(ctx, root)
	if err != nil {
		return err
	}

	var fallback, def *process.Element
	for _, f := range v.Outgoing(cmd.ElementID) {
		if f.IsConditional() {
			val, err := m.Evaluator.Evaluate(ctx, f.Condition, root.Data)
			if err == nil && expression.Truthy(val) {
				return m.activateElement(ctx, s, root, f, false)
			}
			continue
		}

		if f.IsDefault && def == nil {
			def = f
		}
		if fallback == nil {
			fallback = f
		}
	}

	if def != nil {
		return m.activateElement(ctx, s, root, def, false)
	}
	if fallback != nil {
		return m.activateElement(ctx, s, root, fallback, false)
	}

	return fmt.Errorf("gateway %s has no activatable outgoing sequence", cmd.ElementID)
}

// activateElement builds the scoped input context for an element and
// delegates to its machine.
func (m *Machines) activateElement(
	ctx context.Context,
	s fsm.Scope,
	root *InstanceRoot,
	e *process.Element,
	interrupting bool,
) error {
	input, err := m.scopeInput(ctx, e, root.Data)
	if err != nil {
		return err
	}

	return s.Execute(ctx, message.ActivateElement{
		Owner:        root.Owner,
		ProcessID:    root.ProcessID,
		VersionID:    root.VersionID,
		InstanceID:   root.InstanceID,
		ElementID:    e.ID,
		Kind:         e.Kind(),
		Interrupting: interrupting,
		Input:        input,
	})
}

// complete finishes the instance and retires its aggregate into the archive.
// The active-instance index entry is removed in the same batch as the
// completion event.
func (m *Machines) complete(ctx context.Context, s fsm.Scope, root *InstanceRoot) error {
	s.Do(persistence.RemoveActiveInstance{
		ProcessID:  root.ProcessID,
		InstanceID: root.InstanceID,
	})

	if err := s.Emit(ctx, message.InstanceCompleted{
		Owner:      root.Owner,
		ProcessID:  root.ProcessID,
		InstanceID: root.InstanceID,
	}); err != nil {
		return err
	}

	s.Retire()

	return nil
}

func (m *Machines) version(ctx context.Context, root *InstanceRoot) (*process.Version, error) {
	return m.Processes.Version(ctx, root.Owner, root.ProcessID, root.VersionID)
}

// boundaryMatches reports whether a boundary event catches triggers of the
// given type. Timer boundaries are matched by their schedule descriptor, all
// others by message code.
func boundaryMatches(b *process.Element, eventType string) bool {
	if eventType == "" {
		return true
	}

	if eventType == "timer" {
		return b.TimerDescriptor != ""
	}

	return b.MessageRef == eventType
}

func applyInstanceCreated(r fsm.Root, msg message.Message) {
	m := msg.(message.InstanceCreated)
	root := r.(*InstanceRoot)

	root.State = instanceActive
	root.Owner = m.Owner
	root.ProcessID = m.ProcessID
	root.VersionID = m.VersionID
	root.InstanceID = m.InstanceID
	root.Data = cloneContext(m.Data)
}

func applyContextAdded(r fsm.Root, msg message.Message) {
	m := msg.(message.ContextAdded)
	root := r.(*InstanceRoot)

	if root.Data == nil {
		root.Data = map[string]any{}
	}

	switch {
	case m.Key != "" && m.Value != nil:
		root.Data[m.Key] = m.Value
	case m.Key != "":
		root.Data[m.Key] = m.Data
	default:
		for k, v := range m.Data {
			root.Data[k] = v
		}
	}
}

func applyInstanceCompleted(r fsm.Root, msg message.Message) {
	r.(*InstanceRoot).State = instanceFinished
}
