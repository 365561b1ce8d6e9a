package machine

import (
	"context"

	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/message"
)

// Sequence machine states.
const (
	sequenceIdle   = "idle"
	sequenceActive = "active"
)

// SequenceRoot is the state of one sequence-flow occurrence.
type SequenceRoot struct {
	State      string `json:"state"`
	InstanceID string `json:"instanceId"`
	ElementID  string `json:"elementId"`
}

// CurrentState returns the name of the state the sequence is in.
func (r *SequenceRoot) CurrentState() string { return r.State }

// Sequence returns the machine that executes sequence flows. A sequence has
// no intrinsic duration: it activates, completes immediately, and asks its
// instance to activate the element it targets.
func (m *Machines) Sequence() *fsm.Definition {
	return &fsm.Definition{
		HandlerKey:   SequenceHandlerKey,
		InitialState: sequenceIdle,
		NewRoot: func() fsm.Root {
			return &SequenceRoot{State: sequenceIdle}
		},
		States: map[string]fsm.State{
			sequenceIdle: {
				Commands: map[message.Type]fsm.CommandHandler{
					message.ActivateElement{}.MessageType(): m.activateSequence,
				},
				Events: map[message.Type]fsm.EventHandler{
					message.SequenceActivated{}.MessageType(): applySequenceActivated,
				},
			},
			sequenceActive: {
				Events: map[message.Type]fsm.EventHandler{
					message.SequenceCompleted{}.MessageType(): applySequenceCompleted,
				},
			},
		},
	}
}

func (m *Machines) activateSequence(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
	cmd := msg.(message.ActivateElement)

	if err := s.Emit(ctx, message.SequenceActivated{
		InstanceID: cmd.InstanceID,
		ElementID:  cmd.ElementID,
		Input:      cmd.Input,
	}); err != nil {
		return err
	}

	if err := s.Emit(ctx, message.SequenceCompleted{
		InstanceID: cmd.InstanceID,
		ElementID:  cmd.ElementID,
	}); err != nil {
		return err
	}

	if err := s.Execute(ctx, message.ActivateNext{
		Owner:      cmd.Owner,
		InstanceID: cmd.InstanceID,
		ElementID:  cmd.ElementID,
	}); err != nil {
		return err
	}

	s.Retire()

	return nil
}

func applySequenceActivated(r fsm.Root, msg message.Message) {
	m := msg.(message.SequenceActivated)
	root := r.(*SequenceRoot)

	root.State = sequenceActive
	root.InstanceID = m.InstanceID
	root.ElementID = m.ElementID
}

func applySequenceCompleted(r fsm.Root, msg message.Message) {
	r.(*SequenceRoot).State = sequenceIdle
}
