package machine

import (
	"context"
	"fmt"

	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/process"
)

// Gateway machine states.
const (
	gatewayIdle      = "idle"
	gatewayActivated = "activated"
	gatewayCompleted = "completed"
)

// GatewayRoot is the state of one gateway occurrence.
type GatewayRoot struct {
	State      string `json:"state"`
	InstanceID string `json:"instanceId"`
	ElementID  string `json:"elementId"`
}

// CurrentState returns the name of the state the gateway is in.
func (r *GatewayRoot) CurrentState() string { return r.State }

// Gateway returns the machine that executes gateways. A gateway completes as
// soon as it is activated; its routing decision is delegated back to the
// owning instance, which holds the context the guards are evaluated
// against.
func (m *Machines) Gateway() *fsm.Definition {
	return &fsm.Definition{
		HandlerKey:   GatewayHandlerKey,
		InitialState: gatewayIdle,
		NewRoot: func() fsm.Root {
			return &GatewayRoot{State: gatewayIdle}
		},
		States: map[string]fsm.State{
			gatewayIdle: {
				Commands: map[message.Type]fsm.CommandHandler{
					message.ActivateElement{}.MessageType(): m.activateGateway,
				},
				Events: map[message.Type]fsm.EventHandler{
					message.GatewayActivated{}.MessageType(): applyGatewayActivated,
				},
			},
			gatewayActivated: {
				Events: map[message.Type]fsm.EventHandler{
					message.GatewayCompleted{}.MessageType(): applyGatewayCompleted,
				},
			},
			gatewayCompleted: {},
		},
	}
}

func (m *Machines) activateGateway(ctx context.Context, s fsm.Scope, r fsm.Root, msg message.Message) error {
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

	if err := s.Emit(ctx, message.GatewayActivated{
		InstanceID: cmd.InstanceID,
		ElementID:  cmd.ElementID,
		Input:      cmd.Input,
	}); err != nil {
		return err
	}

	if err := s.Emit(ctx, message.GatewayCompleted{
		InstanceID: cmd.InstanceID,
		ElementID:  cmd.ElementID,
	}); err != nil {
		return err
	}

	var next message.Message
	switch e.Type {
	case process.ExclusiveGateway:
		next = message.ConditionalNext{
			Owner:      cmd.Owner,
			InstanceID: cmd.InstanceID,
			ElementID:  cmd.ElementID,
		}
	default:
		// Parallel gateways activate every outgoing sequence.
		next = message.ActivateNext{
			Owner:      cmd.Owner,
			InstanceID: cmd.InstanceID,
			ElementID:  cmd.ElementID,
		}
	}

	if err := s.Execute(ctx, next); err != nil {
		return err
	}

	s.Retire()

	return nil
}

func applyGatewayActivated(r fsm.Root, msg message.Message) {
	m := msg.(message.GatewayActivated)
	root := r.(*GatewayRoot)

	root.State = gatewayActivated
	root.InstanceID = m.InstanceID
	root.ElementID = m.ElementID
}

func applyGatewayCompleted(r fsm.Root, msg message.Message) {
	r.(*GatewayRoot).State = gatewayCompleted
}
