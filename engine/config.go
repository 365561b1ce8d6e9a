package engine

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/rite-engine/rite/fsm"
	"github.com/rite-engine/rite/persistence/boltpersistence"
)

// Config holds the deployment-level engine switches, as read from the
// environment.
//
// The environment only carries settings that vary per deployment; everything
// else is configured in code via EngineOptions, which also take precedence
// when both are given.
type Config struct {
	// WriteMode selects "guarded" or "fast" aggregate log writes.
	WriteMode string `env:"RITE_WRITE_MODE" envDefault:"guarded"`

	// BoltPath is the path of the BoltDB database file. If it is empty the
	// engine runs on the in-memory provider.
	BoltPath string `env:"RITE_BOLT_PATH"`

	// CacheTTL is the minimum time idle aggregates are kept in memory.
	CacheTTL time.Duration `env:"RITE_CACHE_TTL"`

	// TimerShards is the number of shards in each due-timer bucket. It must
	// not be changed once the engine has persisted state.
	TimerShards uint32 `env:"RITE_TIMER_SHARDS"`

	// SnapshotInterval is the number of events recorded against an
	// aggregate between snapshots.
	SnapshotInterval uint64 `env:"RITE_SNAPSHOT_INTERVAL"`

	// ArchiveRetention is the retention window for finished instances.
	ArchiveRetention time.Duration `env:"RITE_ARCHIVE_RETENTION"`

	// ConcurrencyLimit is the number of messages handled concurrently.
	ConcurrencyLimit int `env:"RITE_CONCURRENCY_LIMIT"`
}

// LoadConfig reads the engine configuration from the environment.
func LoadConfig() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("unable to load engine configuration: %w", err)
	}

	return c, nil
}

// Options converts the configuration into the equivalent engine options.
func (c Config) Options() ([]EngineOption, error) {
	var options []EngineOption

	switch c.WriteMode {
	case "", "guarded":
		options = append(options, WithWriteMode(fsm.GuardedWrites))
	case "fast":
		options = append(options, WithWriteMode(fsm.FastWrites))
	default:
		return nil, fmt.Errorf("unrecognized write mode %q", c.WriteMode)
	}

	if c.BoltPath != "" {
		options = append(options, WithPersistence(
			&boltpersistence.FileProvider{
				Path: c.BoltPath,
			},
		))
	}

	if c.CacheTTL != 0 {
		options = append(options, WithCacheTTL(c.CacheTTL))
	}

	if c.TimerShards != 0 {
		options = append(options, WithTimerShards(c.TimerShards))
	}

	if c.SnapshotInterval != 0 {
		options = append(options, WithSnapshotInterval(c.SnapshotInterval))
	}

	if c.ArchiveRetention != 0 {
		options = append(options, WithArchiveRetention(c.ArchiveRetention))
	}

	if c.ConcurrencyLimit != 0 {
		options = append(options, WithConcurrencyLimit(c.ConcurrencyLimit))
	}

	return options, nil
}
