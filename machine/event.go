package machine

import (
	"context"
	"fmt"

	"github.com/rite-engine/rite/correlation"
	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/persistence"
	"github.com/rite-engine/rite/process"
	"github.com/rite-engine/rite/timer"
)

// Event machine states.
const (
	eventIdle      = "idle"
	eventActivated = "activated"
	eventWaiting   = "waiting"
	eventOccurred  = "occurred"
	eventCompleted = "completed"
)

// EventRoot is the state of one event-element occurrence.
type EventRoot struct {
	State        string `json:"state"`
	ProcessID    string `json:"processId"`
	InstanceID   string `json:"instanceId"`
	ElementID    string `json:"elementId"`
	Interrupting bool   `json:"interrupting,omitempty"`

	// The subscription or timer the event registered while waiting, kept so
	// that it can be consumed exactly once when the trigger arrives.
	SubscriptionID  string `json:"subscriptionId,omitempty"`
	CorrelationType string `json:"correlationType,omitempty"`
	CorrelationHash string `json:"correlationHash,omitempty"`
}

// CurrentState returns the name of the state the event is in.
func (r *EventRoot) CurrentState() string { return r.State }

// ProcessUID returns the uid of the process the event executes under, so that
// the runtime can index its archive record.
func (r *EventRoot) ProcessUID() string { return r.ProcessID }

// Event returns the machine that executes event elements.
//
// Start, end and boundary events pass straight through to completion.
// Intermediate catch events register a correlation subscription or a timer
// and wait for their trigger.
func (m *Machines) Event() *fsm.Definition {
	return &fsm.Definition{
		HandlerKey:   EventHandlerKey,
		InitialState: eventIdle,
		NewRoot: func() fsm.Root {
			return &EventRoot{State: eventIdle}
		},
		States: map[string]fsm.State{
			eventIdle: {
				Commands: map[message.Type]fsm.CommandHandler{
					message.ActivateElement{}.MessageType(): m.activateEvent,
				},
				Events: map[message.Type]fsm.EventHandler{
					message.EventActivated{}.MessageType(): applyEventActivated,
				},
			},
			eventActivated: {
				Events: map[message.Type]fsm.EventHandler{
					message.EventSubscriptionAdded{}.MessageType(): applyEventSubscriptionAdded,
					message.EventOccurred{}.MessageType():          applyEventOccurred,
				},
			},
			eventWaiting: {
				Commands: map[message.Type]fsm.CommandHandler{
					message.TriggerEvent{}.MessageType(): m.triggerEvent,
					message.CommitEvent{}.MessageType():  m.commitEvent,
				},
				Events: map[message.Type]fsm.EventHandler{
					message.EventOccurred{}.MessageType(): applyEventOccurred,
				},
			},
			eventOccurred: {
				Events: map[message.Type]fsm.EventHandler{
					message.EventCompleted{}.MessageType(): applyEventCompleted,
				},
			},
			eventCompleted: {},
		},
	}
}

func (m *Machines) activateEvent(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.ActivateElement)

	v, err := m.Processes.Version(ctx, cmd.Owner, cmd.ProcessID, cmd.VersionID)
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

	if err := s.Emit(ctx, message.EventActivated{
		ProcessID:    cmd.ProcessID,
		InstanceID:   cmd.InstanceID,
		ElementID:    cmd.ElementID,
		Interrupting: cmd.Interrupting,
		Input:        cmd.Input,
	}); err != nil {
		return err
	}

	if !waits(e) {
		return m.occur(ctx, s, r.(*EventRoot), cmd.Owner, nil)
	}

	if e.TimerDescriptor != "" {
		return m.subscribeTimer(ctx, s, cmd, e)
	}

	return m.subscribeMessage(ctx, s, cmd, e)
}

// subscribeTimer schedules the event's wake-up. The timer record carries the
// target instance and element, so firing it needs no correlation lookup.
func (m *Machines) subscribeTimer(
	ctx context.Context,
	s fsm.Scope,
	cmd message.ActivateElement,
	e *process.Element,
) error {
	desc, err := timer.ParseDescriptor(e.TimerDescriptor)
	if err != nil {
		return err
	}

	tm := timer.New(
		desc,
		e.TimerDescriptor,
		s.Now(),
		m.TimerShards,
		cmd.ProcessID,
		cmd.VersionID,
		cmd.InstanceID,
		cmd.ElementID,
		1,
	)

	s.Do(persistence.SaveTimer{Timer: tm})

	return s.Emit(ctx, message.EventSubscriptionAdded{
		InstanceID:      cmd.InstanceID,
		ElementID:       cmd.ElementID,
		SubscriptionID:  tm.TimerID,
		CorrelationType: correlation.TypeTimer,
		CorrelationHash: correlation.Hash(tm.TimerID),
	})
}

func (m *Machines) subscribeMessage(
	ctx context.Context,
	s fsm.Scope,
	cmd message.ActivateElement,
	e *process.Element,
) error {
	key := e.MessageRef
	if key == "" {
		key = e.ID
	}

	sub := persistence.Subscription{
		SubscriptionID:  ElementUID(cmd.InstanceID, cmd.ElementID),
		CorrelationType: correlation.TypeMessage,
		CorrelationHash: correlation.Hash(key),
		ProcessID:       cmd.ProcessID,
		VersionID:       cmd.VersionID,
		InstanceID:      cmd.InstanceID,
		ElementID:       cmd.ElementID,
	}

	s.Do(persistence.SaveSubscription{Subscription: sub})

	return s.Emit(ctx, message.EventSubscriptionAdded{
		InstanceID:      cmd.InstanceID,
		ElementID:       cmd.ElementID,
		SubscriptionID:  sub.SubscriptionID,
		CorrelationType: sub.CorrelationType,
		CorrelationHash: sub.CorrelationHash,
	})
}

func (m *Machines) triggerEvent(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.TriggerEvent)
	return m.occur(ctx, s, r.(*EventRoot), cmd.Owner, cmd.Data)
}

func (m *Machines) commitEvent(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.CommitEvent)
	return m.occur(ctx, s, r.(*EventRoot), cmd.Owner, cmd.Data)
}

// occur records the event's occurrence and completion, consumes its
// subscription, and reports back to the owning instance.
func (m *Machines) occur(
	ctx context.Context,
	s fsm.Scope,
	root *EventRoot,
	owner string,
	data map[string]any,
) error {
	// Timers are consumed by the ticker when they fire; everything else is
	// consumed here, in the same batch as the occurrence event.
	if root.CorrelationType != "" && root.CorrelationType != correlation.TypeTimer {
		s.Do(persistence.RemoveSubscription{
			Subscription: persistence.Subscription{
				SubscriptionID:  root.SubscriptionID,
				CorrelationType: root.CorrelationType,
				CorrelationHash: root.CorrelationHash,
			},
		})
	}

	if err := s.Emit(ctx, message.EventOccurred{
		InstanceID: root.InstanceID,
		ElementID:  root.ElementID,
		Data:       data,
	}); err != nil {
		return err
	}

	if err := s.Emit(ctx, message.EventCompleted{
		InstanceID: root.InstanceID,
		ElementID:  root.ElementID,
	}); err != nil {
		return err
	}

	if err := s.Execute(ctx, message.ActivateNext{
		Owner:      owner,
		InstanceID: root.InstanceID,
		ElementID:  root.ElementID,
		Output:     data,
	}); err != nil {
		return err
	}

	s.Retire()

	return nil
}

// waits reports whether an event element waits for an external trigger
// after activation.
//
// Boundary events do not wait: they are only ever activated via
// ActivateBoundary, after their trigger has already occurred.
func waits(e *process.Element) bool {
	return e.Type == process.IntermediateCatchEvent
}

func applyEventActivated(r fsm.Root, msg message.Message) {
	m := msg.(message.EventActivated)
	root := r.(*EventRoot)

	root.State = eventActivated
	root.ProcessID = m.ProcessID
	root.InstanceID = m.InstanceID
	root.ElementID = m.ElementID
	root.Interrupting = m.Interrupting
}

func applyEventSubscriptionAdded(r fsm.Root, msg message.Message) {
	m := msg.(message.EventSubscriptionAdded)
	root := r.(*EventRoot)

	root.State = eventWaiting
	root.SubscriptionID = m.SubscriptionID
	root.CorrelationType = m.CorrelationType
	root.CorrelationHash = m.CorrelationHash
}

func applyEventOccurred(r fsm.Root, msg message.Message) {
	r.(*EventRoot).State = eventOccurred
}

func applyEventCompleted(r fsm.Root, msg message.Message) {
	r.(*EventRoot).State = eventCompleted
}
