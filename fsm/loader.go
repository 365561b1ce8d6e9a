package fsm

import (
	"context"
	"fmt"

	"github.com/dogmatiq/marshalkit"
	"github.com/rite-engine/rite/parcel"
	"github.com/rite-engine/rite/persistence"
)

// Loader rehydrates aggregates from their historical events.
type Loader struct {
	// Marshaler is used to unmarshal aggregate snapshots.
	Marshaler marshalkit.ValueMarshaler
}

// Load loads the aggregate with the given uid.
//
// If the aggregate has no persisted history, a fresh aggregate is
// constructed in the machine's initial state and the definition's Init hook
// is run with the given meta-data.
//
// An aggregate whose sentinel revision is non-zero but whose instance no
// longer exists has been archived; it is returned as retired, never as a
// fresh aggregate, so that redelivered commands cannot re-create it.
func (l *Loader) Load(
	ctx context.Context,
	ds persistence.DataStore,
	def *Definition,
	uid string,
	meta Meta,
) (*Aggregate, error) {
	h, err := ds.LoadAggregate(ctx, def.HandlerKey, uid, false)
	if err != nil {
		return nil, err
	}

	a := &Aggregate{
		def:  def,
		id:   uid,
		meta: meta,
		root: def.NewRoot(),
		md:   h.MetaData,
	}

	if h.MetaData.Revision > 0 && !h.MetaData.InstanceExists {
		a.retired = true
		return a, nil
	}

	if h.MetaData.Revision == 0 {
		if def.Init != nil {
			def.Init(a.root, meta)
		}

		return a, nil
	}

	if h.Snapshot != nil {
		v, err := l.Marshaler.Unmarshal(h.Snapshot.Packet)
		if err != nil {
			return nil, fmt.Errorf(
				"unable to unmarshal snapshot of aggregate %s/%s: %w",
				def.HandlerKey,
				uid,
				err,
			)
		}

		root, ok := v.(Root)
		if !ok {
			return nil, fmt.Errorf(
				"snapshot of aggregate %s/%s is not a machine root",
				def.HandlerKey,
				uid,
			)
		}

		a.root = root
		a.snapshotRevision = h.Snapshot.Revision
	}

	if err := l.replay(a, h.Events); err != nil {
		return nil, err
	}

	return a, nil
}

// Replay rebuilds an aggregate's state by applying its full event history
// from the beginning, ignoring any snapshot.
func (l *Loader) Replay(
	ctx context.Context,
	ds persistence.DataStore,
	def *Definition,
	uid string,
	meta Meta,
) (*Aggregate, error) {
	h, err := ds.LoadAggregate(ctx, def.HandlerKey, uid, true)
	if err != nil {
		return nil, err
	}

	a := &Aggregate{
		def:  def,
		id:   uid,
		meta: meta,
		root: def.NewRoot(),
		md:   h.MetaData,
	}

	if err := l.replay(a, h.Events); err != nil {
		return nil, err
	}

	return a, nil
}

func (l *Loader) replay(a *Aggregate, events []persistence.AggregateEvent) error {
	for _, ev := range events {
		p, err := parcel.FromEnvelope(ev.Envelope)
		if err != nil {
			return err
		}

		if err := a.apply(p); err != nil {
			return err
		}
	}

	return nil
}
