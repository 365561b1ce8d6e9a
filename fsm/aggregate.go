package fsm

import (
	"fmt"

	"github.com/rite-engine/rite/parcel"
	"github.com/rite-engine/rite/persistence"
)

// Aggregate is a live, in-memory aggregate: one event-sourced instance of a
// machine definition.
//
// Aggregates are always reachable from a cache record and are protected by
// the record's lock; they are never shared between concurrent dispatches.
type Aggregate struct {
	def  *Definition
	id   string
	meta Meta
	root Root

	// md is the sentinel record as last read from, or written to, the log.
	md persistence.AggregateMetaData

	// snapshotRevision is the revision covered by the most recent snapshot.
	snapshotRevision uint64

	// retired is true once the aggregate has been archived and removed from
	// the active index. A retired aggregate accepts no further commands.
	retired bool
}

// ID returns the aggregate's uid.
func (a *Aggregate) ID() string {
	return a.id
}

// Meta returns the aggregate's initialization meta-data.
func (a *Aggregate) Meta() Meta {
	return a.meta
}

// Root returns the aggregate's state.
func (a *Aggregate) Root() Root {
	return a.root
}

// Revision returns the aggregate's sentinel revision.
func (a *Aggregate) Revision() uint64 {
	return a.md.Revision
}

// apply transitions the aggregate's state by applying an event.
//
// It is used both when an event is first emitted and when the aggregate is
// rehydrated from its log; in both cases the same handler table produces the
// same mutation, which is what makes replay idempotent.
func (a *Aggregate) apply(p parcel.Parcel) error {
	h, ok := a.def.eventHandler(a.root.CurrentState(), p.Type())
	if !ok {
		return fmt.Errorf(
			"aggregate %s/%s cannot apply %s event in state %q",
			a.def.HandlerKey,
			a.id,
			p.Type(),
			a.root.CurrentState(),
		)
	}

	h(a.root, p.Message)

	return nil
}
