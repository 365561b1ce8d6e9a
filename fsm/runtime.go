package fsm

import (
	"context"
	"fmt"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/marshalkit"
	"github.com/rite-engine/rite/fsm/cache"
	"github.com/rite-engine/rite/internal/mlog"
	"github.com/rite-engine/rite/parcel"
	"github.com/rite-engine/rite/persistence"
	"golang.org/x/sync/errgroup"
)

// WriteMode selects how aggregate log writes are protected against
// concurrent writers.
type WriteMode int

const (
	// GuardedWrites protects every append with a compare-and-swap on the
	// aggregate's sentinel revision. It is safe under any deployment
	// topology; a losing writer observes a persistence.ConflictError and
	// retries after re-reading.
	GuardedWrites WriteMode = iota

	// FastWrites appends without the compare-and-swap. It is only safe when
	// the deployment routes all traffic for one aggregate through a single
	// worker, such as a queue partitioned by instance uid with one consumer
	// per partition. This is a deliberate, documented deployment decision;
	// it must never be enabled otherwise.
	FastWrites
)

// DefaultSnapshotInterval is the number of events recorded against an
// aggregate between snapshots.
const DefaultSnapshotInterval = 25

// DefaultArchiveRetention is the default retention window for archived
// aggregates.
const DefaultArchiveRetention = 30 * 24 * time.Hour

// Runtime loads, creates and dispatches to aggregates.
//
// It is the generic engine that executes every machine definition; all the
// element-specific behavior lives in the definitions themselves.
type Runtime struct {
	// Queue is the transport used to deliver commands produced during a
	// dispatch.
	Queue CommandQueue

	// Packer is used to pack produced messages into parcels.
	Packer *parcel.Packer

	// Marshaler is used to marshal and unmarshal aggregate snapshots.
	Marshaler marshalkit.ValueMarshaler

	// WriteMode selects guarded or fast log writes.
	WriteMode WriteMode

	// SnapshotInterval is the number of events between snapshots. If it is
	// zero, DefaultSnapshotInterval is used.
	SnapshotInterval uint64

	// ArchiveRetention is the retention window applied when an aggregate is
	// retired. If it is zero, DefaultArchiveRetention is used.
	ArchiveRetention time.Duration

	// CacheTTL is the minimum time to keep idle aggregates in memory.
	CacheTTL time.Duration

	// Logger is the target for log messages about dispatched messages.
	Logger logging.Logger

	// Now is the function used to get the current time when an aggregate is
	// archived. If it is nil, time.Now() is used.
	Now func() time.Time

	loader Loader
	caches map[string]*cache.Cache
}

// NewRuntime returns a runtime that executes the given machine definitions.
//
// Every definition is validated; a malformed definition is a configuration
// error and panics at startup.
func NewRuntime(
	defs []*Definition,
	queue CommandQueue,
	packer *parcel.Packer,
	marshaler marshalkit.ValueMarshaler,
	logger logging.Logger,
) *Runtime {
	r := &Runtime{
		Queue:     queue,
		Packer:    packer,
		Marshaler: marshaler,
		Logger:    logger,
		loader:    Loader{Marshaler: marshaler},
		caches:    map[string]*cache.Cache{},
	}

	for _, d := range defs {
		d.MustValidate()

		if _, ok := r.caches[d.HandlerKey]; ok {
			panic(fmt.Sprintf("machine %q is registered twice", d.HandlerKey))
		}

		r.caches[d.HandlerKey] = &cache.Cache{
			Logger: logger,
		}
	}

	return r
}

// Run manages evicting idle aggregates from the runtime's caches until ctx
// is canceled.
func (r *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, c := range r.caches {
		c := c
		c.TTL = r.CacheTTL

		g.Go(func() error {
			return c.Run(ctx)
		})
	}

	return g.Wait()
}

// Dispatch delivers the command in p to the aggregate with the given uid,
// loading or creating the aggregate as necessary.
//
// If the aggregate's current state defines no handler for the command, the
// command is stale: it is logged and dropped without error, since delivery
// is at-least-once and the aggregate has already moved on.
func (r *Runtime) Dispatch(
	ctx context.Context,
	ds persistence.DataStore,
	def *Definition,
	uid string,
	meta Meta,
	p parcel.Parcel,
) error {
	c, ok := r.caches[def.HandlerKey]
	if !ok {
		return fmt.Errorf("machine %q is not registered with this runtime", def.HandlerKey)
	}

	rec, err := c.Acquire(ctx, uid)
	if err != nil {
		return err
	}
	defer rec.Release()

	a, ok := rec.Instance.(*Aggregate)
	if !ok {
		a, err = r.loader.Load(ctx, ds, def, uid, meta)
		if err != nil {
			return err
		}

		rec.Instance = a
	}

	if a.retired {
		// The aggregate was archived; anything addressed to it now is a
		// stale redelivery and must not resurrect it.
		mlog.LogDiscard(r.Logger, p.Envelope, "retired")
		rec.KeepAlive()
		return nil
	}

	h, ok := def.commandHandler(a.root.CurrentState(), p.Type())
	if !ok {
		mlog.LogDiscard(r.Logger, p.Envelope, a.root.CurrentState())
		rec.KeepAlive()
		return nil
	}

	sc := &scope{
		aggregate: a,
		cause:     p,
		packer:    r.Packer,
		ds:        ds,
		queue:     r.Queue,
		guarded:   r.WriteMode == GuardedWrites,
		logger:    r.Logger,
	}

	if err := h(ctx, sc, a.root, p.Message); err != nil {
		// The aggregate may have applied some of the handler's events
		// before the failure. Not calling KeepAlive() evicts it, so the
		// next dispatch reloads pristine state from the log.
		return err
	}

	if err := sc.flush(ctx); err != nil {
		return err
	}

	if sc.retired {
		return r.retire(ctx, ds, a)
	}

	if err := r.takeSnapshot(ctx, ds, a); err != nil {
		// Snapshots are advisory; the log remains authoritative.
		mlog.LogError(r.Logger, fmt.Errorf(
			"unable to snapshot aggregate %s/%s: %w",
			def.HandlerKey,
			uid,
			err,
		))
	}

	rec.KeepAlive()

	return nil
}

// takeSnapshot compacts the aggregate's history if enough events have been
// recorded since the last snapshot.
func (r *Runtime) takeSnapshot(
	ctx context.Context,
	ds persistence.DataStore,
	a *Aggregate,
) error {
	interval := r.SnapshotInterval
	if interval == 0 {
		interval = DefaultSnapshotInterval
	}

	if a.md.Revision-a.snapshotRevision < interval {
		return nil
	}

	pk, err := r.Marshaler.Marshal(a.root)
	if err != nil {
		return err
	}

	if err := ds.Persist(
		ctx,
		persistence.Batch{
			persistence.SaveAggregateSnapshot{
				Snapshot: persistence.AggregateSnapshot{
					HandlerKey: a.def.HandlerKey,
					InstanceID: a.id,
					Revision:   a.md.Revision,
					Packet:     pk,
				},
			},
		},
	); err != nil {
		return err
	}

	a.snapshotRevision = a.md.Revision

	return nil
}

// retire archives a finished aggregate: its final state and full history
// move to the time-partitioned archive, and it is removed from the
// active-instance index of its process.
func (r *Runtime) retire(
	ctx context.Context,
	ds persistence.DataStore,
	a *Aggregate,
) error {
	h, err := ds.LoadAggregate(ctx, a.def.HandlerKey, a.id, true)
	if err != nil {
		return err
	}

	history := make([]*parcel.Envelope, 0, len(h.Events))
	for _, ev := range h.Events {
		history = append(history, ev.Envelope)
	}

	pk, err := r.Marshaler.Marshal(a.root)
	if err != nil {
		return err
	}

	retention := r.ArchiveRetention
	if retention == 0 {
		retention = DefaultArchiveRetention
	}

	processID := a.meta.ProcessID
	if p, ok := a.root.(ProcessIdentifier); ok {
		if id := p.ProcessUID(); id != "" {
			processID = id
		}
	}

	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}

	if err := ds.Persist(
		ctx,
		persistence.Batch{
			persistence.ArchiveAggregate{
				HandlerKey: a.def.HandlerKey,
				Instance: persistence.ArchivedInstance{
					InstanceID: a.id,
					ProcessID:  processID,
					Day:        now.Format("2006-01-02"),
					Snapshot:   pk,
					History:    history,
					ExpiresAt:  now.Add(retention),
				},
				Revision: a.md.Revision,
			},
		},
	); err != nil {
		return err
	}

	a.retired = true

	return nil
}

// ProcessIdentifier is implemented by roots that know the uid of the process
// they execute under, which is needed to maintain the active-instance index
// when the aggregate is retired.
type ProcessIdentifier interface {
	ProcessUID() string
}
