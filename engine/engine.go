// Package engine composes the process engine: persistence, the command
// queue, the element machines, the timer ticker and the archive sweep.
package engine

import (
	"context"
	"time"

	"github.com/dogmatiq/cosyne"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/machine"
	"github.com/rite-engine/rite/parcel"
	"github.com/rite-engine/rite/persistence"
	"github.com/rite-engine/rite/queue"
	"github.com/rite-engine/rite/router"
	"github.com/rite-engine/rite/semaphore"
	"github.com/rite-engine/rite/timer"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Engine executes the deployed processes of a single owner.
type Engine struct {
	owner string
	opts  *engineOptions

	queue    *queue.Queue
	packer   *parcel.Packer
	machines *machine.Machines
	routes   router.Table
	runtime  *fsm.Runtime
	versions *versionCache

	m      cosyne.Mutex
	ds     persistence.DataStore
	closed bool
}

// New returns an engine that executes the processes owned by the given
// tenant.
func New(owner string, options ...EngineOption) *Engine {
	opts := resolveEngineOptions(options...)

	e := &Engine{
		owner: owner,
		opts:  opts,
		queue: queue.New(),
		packer: &parcel.Packer{
			GenerateID: opts.GenerateID,
			Now:        opts.Now,
		},
	}

	e.versions = &versionCache{engine: e}

	e.machines = &machine.Machines{
		Processes:     e.versions,
		Evaluator:     opts.Evaluator,
		TimerShards:   opts.TimerShards,
		JobRetryLimit: opts.JobRetryLimit,
	}

	e.routes = e.machines.Routes()

	e.runtime = fsm.NewRuntime(
		e.machines.Definitions(),
		e.queue,
		e.packer,
		opts.Marshaler,
		opts.Logger,
	)
	e.runtime.WriteMode = opts.WriteMode
	e.runtime.Now = opts.Now
	e.runtime.SnapshotInterval = opts.SnapshotInterval
	e.runtime.ArchiveRetention = opts.ArchiveRetention
	e.runtime.CacheTTL = opts.CacheTTL

	return e
}

// Run executes deployed processes until ctx is canceled or an error occurs.
func (e *Engine) Run(ctx context.Context) (err error) {
	defer func() {
		err = multierr.Append(err, e.Close())
	}()

	ds, err := e.dataStore(ctx)
	if err != nil {
		return err
	}

	parent := ctx
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.runtime.Run(ctx)
	})

	consumer := &queue.Consumer{
		Queue: e.queue,
		Handler: queue.HandlerFunc(
			func(ctx context.Context, p parcel.Parcel) error {
				return e.deliver(ctx, ds, p)
			},
		),
		Semaphore:       semaphore.New(e.opts.ConcurrencyLimit),
		BackoffStrategy: e.opts.BackoffStrategy,
		Logger:          e.opts.Logger,
	}

	g.Go(func() error {
		return consumer.Run(ctx)
	})

	ticker := &timer.Ticker{
		Owner:     e.owner,
		Timers:    ds,
		Persister: ds,
		Queue:     e.queue,
		Packer:    e.packer,
		Shards:    e.opts.TimerShards,
		Logger:    e.opts.Logger,
		Now:       e.opts.Now,
	}

	g.Go(func() error {
		return ticker.Run(ctx)
	})

	g.Go(func() error {
		return e.sweepArchive(ctx, ds)
	})

	err = g.Wait()

	if parent.Err() != nil {
		err = parent.Err()
	}

	return err
}

// Close closes the engine's data store, if it has been opened.
func (e *Engine) Close() error {
	if err := e.m.Lock(context.Background()); err != nil {
		return err
	}
	defer e.m.Unlock()

	e.closed = true

	if e.ds == nil {
		return nil
	}

	ds := e.ds
	e.ds = nil

	return ds.Close()
}

// deliver routes one queued command to the aggregate that handles it.
func (e *Engine) deliver(
	ctx context.Context,
	ds persistence.DataStore,
	p parcel.Parcel,
) error {
	ctx, cancel := linger.ContextWithTimeout(
		ctx,
		e.opts.MessageTimeout,
		DefaultMessageTimeout,
	)
	defer cancel()

	return e.routes.Deliver(ctx, e.runtime, ds, p)
}

// sweepArchive periodically deletes archived instances whose retention
// window has ended.
func (e *Engine) sweepArchive(
	ctx context.Context,
	ds persistence.DataStore,
) error {
	for {
		n, err := ds.DeleteExpiredArchives(ctx, e.now())
		if err != nil {
			return err
		}

		if n > 0 {
			logging.Log(
				e.opts.Logger,
				"deleted %d expired archived instance(s)",
				n,
			)
		}

		if err := linger.Sleep(ctx, e.opts.ArchiveSweepInterval); err != nil {
			return err
		}
	}
}

// dataStore returns the engine's data store, opening it on first use.
func (e *Engine) dataStore(ctx context.Context) (persistence.DataStore, error) {
	if err := e.m.Lock(ctx); err != nil {
		return nil, err
	}
	defer e.m.Unlock()

	if e.closed {
		return nil, persistence.ErrDataStoreClosed
	}

	if e.ds == nil {
		ds, err := e.opts.PersistenceProvider.Open(ctx, e.owner)
		if err != nil {
			return nil, err
		}

		e.ds = ds
	}

	return e.ds, nil
}

func (e *Engine) now() time.Time {
	if e.opts.Now != nil {
		return e.opts.Now()
	}

	return time.Now()
}
