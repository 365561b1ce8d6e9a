// Package router maps inbound commands to the aggregate responsible for
// handling them.
//
// The router performs no business logic. Given a command it resolves the
// machine definition and aggregate uid the command targets, then asks the
// runtime to dispatch. The routing table is built explicitly at startup and
// validated for completeness; an unroutable message type is a configuration
// error, never a per-message failure.
package router

import (
	"context"
	"fmt"

	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/parcel"
	"github.com/rite-engine/rite/persistence"
)

// Route resolves the target of one message type.
type Route struct {
	// Resolve returns the machine definition, aggregate uid and
	// initialization meta-data for the given message.
	Resolve func(m message.Message) (*fsm.Definition, string, fsm.Meta, error)
}

// To returns a route that always targets the given machine definition,
// using key to extract the aggregate uid and meta-data from the message.
func To(
	def *fsm.Definition,
	key func(m message.Message) (string, fsm.Meta),
) Route {
	return Route{
		Resolve: func(m message.Message) (*fsm.Definition, string, fsm.Meta, error) {
			uid, meta := key(m)
			return def, uid, meta, nil
		},
	}
}

// Table is the routing table: one route per command type.
type Table map[message.Type]Route

// MustValidate panics unless the table contains a route for every registered
// command type, making missing routes fail at startup.
func (t Table) MustValidate() {
	for _, mt := range message.TypesWithRole(message.CommandRole) {
		if _, ok := t[mt]; !ok {
			panic(fmt.Sprintf("no route for %s commands", mt))
		}
	}
}

// Deliver routes the command in p to its target aggregate and dispatches it.
func (t Table) Deliver(
	ctx context.Context,
	r *fsm.Runtime,
	ds persistence.DataStore,
	p parcel.Parcel,
) error {
	route, ok := t[p.Type()]
	if !ok {
		return fmt.Errorf("no route for %s commands", p.Type())
	}

	def, uid, meta, err := route.Resolve(p.Message)
	if err != nil {
		return err
	}

	if uid == "" {
		return fmt.Errorf(
			"cannot route %s command: message does not identify a target aggregate",
			p.Type(),
		)
	}

	return r.Dispatch(ctx, ds, def, uid, meta, p)
}
