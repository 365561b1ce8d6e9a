package fsm

import (
	"context"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/rite-engine/rite/internal/mlog"
	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/parcel"
	"github.com/rite-engine/rite/persistence"
)

// CommandQueue is the transport that carries commands between aggregates.
//
// Delivery is at-least-once, FIFO per partition key, with no ordering across
// partitions.
type CommandQueue interface {
	// Publish hands a parcel to the queue for asynchronous delivery.
	Publish(ctx context.Context, p parcel.Parcel) error
}

// Scope exposes the operations a command handler can perform against the
// aggregate it is executing on.
type Scope interface {
	// InstanceID returns the uid of the aggregate being dispatched to.
	InstanceID() string

	// Meta returns the aggregate's initialization meta-data.
	Meta() Meta

	// Emit persists an event to the aggregate's log and immediately applies
	// it, so that the new state is visible for the remainder of the current
	// dispatch.
	//
	// Under guarded writes a concurrent writer racing ahead surfaces as a
	// persistence.ConflictError; the caller should re-read and re-dispatch.
	Emit(ctx context.Context, m message.Message) error

	// Execute hands a command to the queue for asynchronous delivery,
	// usually to a different aggregate. There is no ordering guarantee
	// versus other executed commands beyond the queue's FIFO per partition
	// key.
	Execute(ctx context.Context, m message.Message) error

	// ExecuteAt schedules a command for delivery at a later time.
	ExecuteAt(ctx context.Context, t time.Time, m message.Message) error

	// Do stages a projection operation to be persisted in the same batch as
	// the next emitted event (or at the end of the dispatch if no further
	// event is emitted). Projections are eventually consistent with the
	// log; they must tolerate redelivery.
	Do(op persistence.Operation)

	// Retire marks the aggregate to be archived and removed from the
	// active-instance index once the current dispatch completes.
	Retire()

	// Log records an informational message within the context of the
	// message that is being handled.
	Log(f string, v ...interface{})

	// Now returns the current engine time.
	Now() time.Time
}

// scope is the engine-side implementation of Scope for a single dispatch.
type scope struct {
	aggregate *Aggregate
	cause     parcel.Parcel
	packer    *parcel.Packer
	ds        persistence.DataStore
	queue     CommandQueue
	guarded   bool
	logger    logging.Logger

	pending persistence.Batch
	emitted bool
	retired bool
}

func (s *scope) InstanceID() string {
	return s.aggregate.id
}

func (s *scope) Meta() Meta {
	return s.aggregate.meta
}

func (s *scope) Emit(ctx context.Context, m message.Message) error {
	p := s.packer.PackChild(
		s.cause,
		m,
		s.aggregate.def.HandlerKey,
		s.aggregate.id,
	)

	batch := append(
		s.pending,
		persistence.SaveAggregateEvent{
			Event: persistence.AggregateEvent{
				HandlerKey: s.aggregate.def.HandlerKey,
				InstanceID: s.aggregate.id,
				Revision:   s.aggregate.md.Revision,
				Envelope:   p.Envelope,
			},
			Guarded: s.guarded,
		},
	)
	batch.MustValidate()

	if err := s.ds.Persist(ctx, batch); err != nil {
		return err
	}

	s.pending = nil
	s.emitted = true
	s.aggregate.md.Revision++
	s.aggregate.md.InstanceExists = true

	mlog.LogProduce(s.logger, p.Envelope)

	return s.aggregate.apply(p)
}

func (s *scope) Execute(ctx context.Context, m message.Message) error {
	p := s.packer.PackChild(
		s.cause,
		m,
		s.aggregate.def.HandlerKey,
		s.aggregate.id,
	)

	mlog.LogProduce(s.logger, p.Envelope)

	return s.queue.Publish(ctx, p)
}

func (s *scope) ExecuteAt(ctx context.Context, t time.Time, m message.Message) error {
	p := s.packer.PackScheduled(
		s.cause,
		m,
		t,
		s.aggregate.def.HandlerKey,
		s.aggregate.id,
	)

	mlog.LogProduce(s.logger, p.Envelope)

	return s.queue.Publish(ctx, p)
}

func (s *scope) Do(op persistence.Operation) {
	s.pending = append(s.pending, op)
}

func (s *scope) Retire() {
	s.retired = true
}

func (s *scope) Log(f string, v ...interface{}) {
	mlog.LogFromScope(
		s.logger,
		s.cause.Envelope,
		f,
		v,
	)
}

func (s *scope) Now() time.Time {
	return time.Now()
}

// flush persists any operations staged after the last emitted event.
func (s *scope) flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	batch := s.pending
	batch.MustValidate()

	if err := s.ds.Persist(ctx, batch); err != nil {
		return err
	}

	s.pending = nil

	return nil
}
