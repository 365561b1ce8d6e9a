package timer

import (
	"context"
	"errors"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/rite-engine/rite/internal/mlog"
	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/parcel"
	"github.com/rite-engine/rite/persistence"
)

// Publisher is the subset of the command queue used to deliver fired timers.
type Publisher interface {
	Publish(ctx context.Context, p parcel.Parcel) error
}

// Ticker scans the timer store once per minute and fires the due timers of a
// single owner.
//
// A timer is claimed by removing it before its command is published. Removal
// of a timer that has already been claimed fails, so concurrent tickers never
// fire the same occurrence twice.
type Ticker struct {
	// Owner is the tenant whose timers are scanned.
	Owner string

	// Timers is the repository the due-timer buckets are read from.
	Timers persistence.TimerRepository

	// Persister is used to claim fired timers and insert follow-up
	// occurrences.
	Persister persistence.Persister

	// Queue is the target for the commands produced by fired timers.
	Queue Publisher

	// Packer is used to wrap commands in parcels.
	Packer *parcel.Packer

	// Shards is the number of shards per bucket. If it is zero,
	// DefaultShards is used.
	Shards uint32

	// Logger is the target for messages about fired timers.
	Logger logging.Logger

	// Now is a function used to get the current time. If it is nil,
	// time.Now() is used.
	Now func() time.Time

	last time.Time
}

// Run scans for due timers until ctx is canceled.
func (t *Ticker) Run(ctx context.Context) error {
	for {
		now := t.now()

		if err := t.Tick(ctx, now); err != nil {
			return err
		}

		next := now.Truncate(time.Minute).Add(time.Minute)
		if err := linger.SleepUntil(ctx, next); err != nil {
			return err
		}
	}
}

// Tick fires the timers that became due at or before now.
//
// Every minute bucket since the previous tick is scanned, so that no bucket
// is skipped if the ticker falls behind.
func (t *Ticker) Tick(ctx context.Context, now time.Time) error {
	now = now.UTC().Truncate(time.Minute)

	from := t.last.Add(time.Minute)
	if t.last.IsZero() || from.After(now) {
		from = now
	}

	for m := from; !m.After(now); m = m.Add(time.Minute) {
		if err := t.scan(ctx, m); err != nil {
			return err
		}
	}

	t.last = now

	return nil
}

func (t *Ticker) scan(ctx context.Context, m time.Time) error {
	day, timeOfDay := Bucket(m)

	shards := t.Shards
	if shards == 0 {
		shards = DefaultShards
	}

	for shard := uint32(0); shard < shards; shard++ {
		timers, err := t.Timers.LoadDueTimers(ctx, day, timeOfDay, shard)
		if err != nil {
			return err
		}

		for _, tm := range timers {
			if err := t.fire(ctx, tm, m); err != nil {
				return err
			}
		}
	}

	return nil
}

// fire claims tm, schedules its next occurrence if it recurs, and publishes
// the command it wakes.
func (t *Ticker) fire(ctx context.Context, tm persistence.Timer, now time.Time) error {
	batch := persistence.Batch{
		persistence.RemoveTimer{Timer: tm},
	}

	desc, err := ParseDescriptor(tm.Descriptor)
	if err != nil {
		return err
	}

	if desc.Cycle {
		next := New(
			desc,
			tm.Descriptor,
			now,
			t.Shards,
			tm.ProcessID,
			tm.VersionID,
			tm.InstanceID,
			tm.ElementID,
			tm.Occurrence+1,
		)

		batch = append(batch, persistence.SaveTimer{Timer: next})
	}

	if err := t.Persister.Persist(ctx, batch); err != nil {
		if errors.As(err, &persistence.NotFoundError{}) {
			// Another ticker fired this occurrence first.
			return nil
		}

		return err
	}

	p := t.Packer.Pack(t.command(tm))

	mlog.LogProduce(t.Logger, p.Envelope)

	return t.Queue.Publish(ctx, p)
}

// command returns the command a fired timer wakes: start-timers create a new
// instance, instance timers trigger the waiting event element.
func (t *Ticker) command(tm persistence.Timer) message.Message {
	if tm.InstanceID == "" {
		return message.CreateInstance{
			Owner:          t.Owner,
			ProcessID:      tm.ProcessID,
			VersionID:      tm.VersionID,
			InstanceID:     tm.TimerID,
			StartElementID: tm.ElementID,
		}
	}

	return message.TriggerEvent{
		Owner:      t.Owner,
		InstanceID: tm.InstanceID,
		ElementID:  tm.ElementID,
	}
}

func (t *Ticker) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}

	return time.Now()
}
