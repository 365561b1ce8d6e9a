package engine

import (
	"reflect"
	"runtime"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
	"github.com/dogmatiq/marshalkit"
	"github.com/dogmatiq/marshalkit/codec"
	"github.com/dogmatiq/marshalkit/codec/json"
	"github.com/rite-engine/rite/expression"
	"github.com/rite-engine/rite/expression/golua"
	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/machine"
	"github.com/rite-engine/rite/persistence"
	"github.com/rite-engine/rite/persistence/memorypersistence"
	"github.com/rite-engine/rite/process"
)

// EngineOption configures the behavior of an engine.
type EngineOption func(*engineOptions)

// WithPersistence returns an option that sets the provider used to open the
// engine's data store.
//
// If this option is omitted or p is nil an in-memory provider is used, and
// all state is lost when the engine stops.
func WithPersistence(p persistence.Provider) EngineOption {
	return func(opts *engineOptions) {
		opts.PersistenceProvider = p
	}
}

// WithEvaluator returns an option that sets the evaluator used for gateway
// conditions and data-mapping expressions.
//
// If this option is omitted or e is nil expressions are evaluated as Lua.
func WithEvaluator(e expression.Evaluator) EngineOption {
	return func(opts *engineOptions) {
		opts.Evaluator = e
	}
}

// WithWriteMode returns an option that selects guarded or fast aggregate log
// writes.
//
// Fast writes are only safe when all traffic for any one aggregate is routed
// through a single worker; see fsm.FastWrites.
func WithWriteMode(m fsm.WriteMode) EngineOption {
	return func(opts *engineOptions) {
		opts.WriteMode = m
	}
}

// DefaultBackoffStrategy is the default message retry policy.
var DefaultBackoffStrategy backoff.Strategy = backoff.WithTransforms(
	backoff.Exponential(100*time.Millisecond),
	linger.FullJitter,
	linger.Limiter(0, 1*time.Hour),
)

// WithBackoffStrategy returns an option that sets the strategy used to
// determine when the engine should retry a message after a failure.
//
// If this option is omitted or s is nil DefaultBackoffStrategy is used.
func WithBackoffStrategy(s backoff.Strategy) EngineOption {
	return func(opts *engineOptions) {
		opts.BackoffStrategy = s
	}
}

// DefaultMessageTimeout is the default timeout to apply when handling a
// message.
const DefaultMessageTimeout = 5 * time.Second

// WithMessageTimeout returns an option that sets the timeout applied when
// handling a message.
//
// If this option is omitted or d is zero DefaultMessageTimeout is used.
func WithMessageTimeout(d time.Duration) EngineOption {
	if d < 0 {
		panic("duration must not be negative")
	}

	return func(opts *engineOptions) {
		opts.MessageTimeout = d
	}
}

// WithConcurrencyLimit returns an option that sets the number of messages
// the engine handles concurrently.
//
// If this option is omitted or n is zero runtime.NumCPU() * 2 is used.
func WithConcurrencyLimit(n int) EngineOption {
	return func(opts *engineOptions) {
		opts.ConcurrencyLimit = n
	}
}

// WithSnapshotInterval returns an option that sets the number of events
// recorded against an aggregate between snapshots.
//
// If this option is omitted or n is zero fsm.DefaultSnapshotInterval is
// used.
func WithSnapshotInterval(n uint64) EngineOption {
	return func(opts *engineOptions) {
		opts.SnapshotInterval = n
	}
}

// WithArchiveRetention returns an option that sets the retention window for
// archived instances.
//
// If this option is omitted or d is zero fsm.DefaultArchiveRetention is
// used.
func WithArchiveRetention(d time.Duration) EngineOption {
	if d < 0 {
		panic("duration must not be negative")
	}

	return func(opts *engineOptions) {
		opts.ArchiveRetention = d
	}
}

// DefaultArchiveSweepInterval is the default interval between sweeps of the
// expired-archive partitions.
const DefaultArchiveSweepInterval = 1 * time.Hour

// WithArchiveSweepInterval returns an option that sets the interval between
// sweeps of the expired-archive partitions.
//
// If this option is omitted or d is zero DefaultArchiveSweepInterval is
// used.
func WithArchiveSweepInterval(d time.Duration) EngineOption {
	if d < 0 {
		panic("duration must not be negative")
	}

	return func(opts *engineOptions) {
		opts.ArchiveSweepInterval = d
	}
}

// DefaultCacheTTL is the default minimum time to keep idle aggregates in
// memory.
const DefaultCacheTTL = 1 * time.Hour

// WithCacheTTL returns an option that sets the minimum time idle aggregates
// are kept in memory.
//
// If this option is omitted or d is zero DefaultCacheTTL is used.
func WithCacheTTL(d time.Duration) EngineOption {
	if d < 0 {
		panic("duration must not be negative")
	}

	return func(opts *engineOptions) {
		opts.CacheTTL = d
	}
}

// WithTimerShards returns an option that sets the number of shards in each
// due-timer bucket.
//
// The shard count is baked into persisted timer records, so it must not be
// changed once an engine has persisted state.
//
// If this option is omitted or n is zero timer.DefaultShards is used.
func WithTimerShards(n uint32) EngineOption {
	return func(opts *engineOptions) {
		opts.TimerShards = n
	}
}

// WithJobRetryLimit returns an option that sets the number of attempts a
// worker job is allowed before its task's error boundary is activated.
//
// If this option is omitted or n is zero machine.DefaultJobRetryLimit is
// used.
func WithJobRetryLimit(n int) EngineOption {
	return func(opts *engineOptions) {
		opts.JobRetryLimit = n
	}
}

// NewDefaultMarshaler returns the marshaler used for aggregate snapshots,
// archived state and stored process definitions.
func NewDefaultMarshaler() marshalkit.Marshaler {
	m, err := codec.NewMarshaler(
		[]reflect.Type{
			reflect.TypeOf(&process.Definition{}),
			reflect.TypeOf(&machine.InstanceRoot{}),
			reflect.TypeOf(&machine.SequenceRoot{}),
			reflect.TypeOf(&machine.GatewayRoot{}),
			reflect.TypeOf(&machine.TaskRoot{}),
			reflect.TypeOf(&machine.EventRoot{}),
			reflect.TypeOf(&machine.JobRoot{}),
		},
		[]codec.Codec{
			&json.Codec{},
		},
	)
	if err != nil {
		panic(err)
	}

	return m
}

// WithMarshaler returns an option that sets the marshaler used to marshal
// and unmarshal snapshots and process definitions.
//
// If this option is omitted or m is nil NewDefaultMarshaler() is used.
func WithMarshaler(m marshalkit.Marshaler) EngineOption {
	return func(opts *engineOptions) {
		opts.Marshaler = m
	}
}

// WithLogger returns an option that sets the target for log messages
// produced by the engine.
//
// If this option is omitted or l is nil logging.DefaultLogger is used.
func WithLogger(l logging.Logger) EngineOption {
	return func(opts *engineOptions) {
		opts.Logger = l
	}
}

// WithIDGenerator returns an option that sets the function used to generate
// message and aggregate uids. It is intended for tests that need
// deterministic uids.
//
// If this option is omitted or fn is nil a UUID is generated.
func WithIDGenerator(fn func() string) EngineOption {
	return func(opts *engineOptions) {
		opts.GenerateID = fn
	}
}

// WithClock returns an option that sets the function used to get the current
// time. It is intended for tests that need a controlled clock.
//
// If this option is omitted or now is nil, time.Now() is used.
func WithClock(now func() time.Time) EngineOption {
	return func(opts *engineOptions) {
		opts.Now = now
	}
}

// engineOptions is a container for a fully-resolved set of engine options.
type engineOptions struct {
	PersistenceProvider  persistence.Provider
	Evaluator            expression.Evaluator
	WriteMode            fsm.WriteMode
	BackoffStrategy      backoff.Strategy
	MessageTimeout       time.Duration
	ConcurrencyLimit     int
	SnapshotInterval     uint64
	ArchiveRetention     time.Duration
	ArchiveSweepInterval time.Duration
	CacheTTL             time.Duration
	TimerShards          uint32
	JobRetryLimit        int
	Marshaler            marshalkit.Marshaler
	Logger               logging.Logger
	GenerateID           func() string
	Now                  func() time.Time
}

// resolveEngineOptions returns a fully-populated set of engine options built
// from the given set of option functions.
func resolveEngineOptions(options ...EngineOption) *engineOptions {
	opts := &engineOptions{}

	for _, o := range options {
		o(opts)
	}

	if opts.PersistenceProvider == nil {
		opts.PersistenceProvider = &memorypersistence.Provider{}
	}

	if opts.Evaluator == nil {
		opts.Evaluator = golua.Evaluator{}
	}

	if opts.BackoffStrategy == nil {
		opts.BackoffStrategy = DefaultBackoffStrategy
	}

	if opts.MessageTimeout == 0 {
		opts.MessageTimeout = DefaultMessageTimeout
	}

	if opts.ConcurrencyLimit == 0 {
		opts.ConcurrencyLimit = runtime.NumCPU() * 2
	}

	if opts.ArchiveSweepInterval == 0 {
		opts.ArchiveSweepInterval = DefaultArchiveSweepInterval
	}

	if opts.CacheTTL == 0 {
		opts.CacheTTL = DefaultCacheTTL
	}

	if opts.Marshaler == nil {
		opts.Marshaler = NewDefaultMarshaler()
	}

	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger
	}

	return opts
}
