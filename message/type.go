package message

import (
	"fmt"
	"reflect"
)

// Type uniquely identifies a kind of command or event message.
//
// Types are explicit tags, declared alongside each message struct. The routing
// and dispatch tables are keyed by Type, never by reflection over the Go type
// system.
type Type string

// Message is a command or event exchanged between element machines.
type Message interface {
	// MessageType returns the explicit tag for this kind of message.
	MessageType() Type

	// MessageDescription returns a human-readable description of the message.
	MessageDescription() string

	// PartitionKey returns the key used to order delivery of this message.
	//
	// Messages with the same partition key are delivered in FIFO order.
	// It is usually the uid of the owning process instance.
	PartitionKey() string
}

// Role describes whether a message type is a command or an event.
type Role int

const (
	// CommandRole is the role of messages that request a state change.
	CommandRole Role = iota + 1

	// EventRole is the role of messages that describe a state change that has
	// already occurred.
	EventRole
)

// registry is the set of all known message types, built at package
// initialization. It is used to validate routing tables for completeness and
// to construct marshalers that can name every message portably.
var registry = map[Type]registration{}

type registration struct {
	role Role
	rt   reflect.Type
}

func register(m Message, r Role) {
	t := m.MessageType()

	if _, ok := registry[t]; ok {
		panic(fmt.Sprintf("message type %q is registered twice", t))
	}

	registry[t] = registration{
		role: r,
		rt:   reflect.TypeOf(m),
	}
}

// Types returns the tags of all registered message types.
func Types() []Type {
	types := make([]Type, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}

	return types
}

// TypesWithRole returns the tags of all registered message types with the
// given role.
func TypesWithRole(r Role) []Type {
	var types []Type
	for t, reg := range registry {
		if reg.role == r {
			types = append(types, t)
		}
	}

	return types
}

// ReflectTypes returns the Go types of all registered messages, for use when
// constructing a marshaler.
func ReflectTypes() []reflect.Type {
	types := make([]reflect.Type, 0, len(registry))
	for _, reg := range registry {
		types = append(types, reg.rt)
	}

	return types
}

// RoleOf returns the role of the message type with the given tag.
func RoleOf(t Type) (Role, bool) {
	reg, ok := registry[t]
	return reg.role, ok
}
