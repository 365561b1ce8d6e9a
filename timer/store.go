// Package timer schedules and fires the time-bucketed wake-ups that drive
// timer events.
package timer

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/rite-engine/rite/persistence"
)

// DefaultShards is the default number of shards each (day, time-of-day)
// bucket is split into.
const DefaultShards = 4

// dayFormat and timeOfDayFormat define the bucket granularity: one bucket
// per minute, partitioned by day.
const (
	dayFormat       = "2006-01-02"
	timeOfDayFormat = "15:04"
)

// Bucket returns the (day, time-of-day) bucket that covers t.
func Bucket(t time.Time) (day, timeOfDay string) {
	t = t.UTC()
	return t.Format(dayFormat), t.Format(timeOfDayFormat)
}

// ShardOf returns the shard a timer ID belongs to.
func ShardOf(timerID string, shards uint32) uint32 {
	if shards == 0 {
		shards = DefaultShards
	}

	h := fnv.New32a()
	h.Write([]byte(timerID))
	return h.Sum32() % shards
}

// ID returns the deterministic timer ID for the given occurrence of a timer
// element. Re-inserting the same occurrence is therefore idempotent.
func ID(scope, elementID string, occurrence uint64) string {
	return fmt.Sprintf("%s/%s#%d", scope, elementID, occurrence)
}

// Descriptor is a parsed timer schedule descriptor.
//
// Three forms are supported: an RFC 3339 time fires once at that time; a
// duration fires once after that duration; a duration prefixed with "R/"
// fires repeatedly with that period.
type Descriptor struct {
	// At is the absolute due time, if the descriptor is absolute.
	At time.Time

	// Every is the relative period, if the descriptor is relative or
	// cyclic.
	Every time.Duration

	// Cycle reports whether the descriptor recurs.
	Cycle bool
}

// ParseDescriptor parses a timer schedule descriptor.
func ParseDescriptor(s string) (Descriptor, error) {
	if cycle, ok := strings.CutPrefix(s, "R/"); ok {
		d, err := time.ParseDuration(cycle)
		if err != nil {
			return Descriptor{}, fmt.Errorf("invalid timer cycle %q: %w", s, err)
		}

		return Descriptor{Every: d, Cycle: true}, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return Descriptor{Every: d}, nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Descriptor{At: t}, nil
	}

	return Descriptor{}, fmt.Errorf("invalid timer descriptor %q", s)
}

// Due returns the due time of an occurrence scheduled at start.
//
// Cycles are fixed-delay, each occurrence is due one period after the
// point at which it was scheduled, which for occurrences after the first
// is the firing of its predecessor.
func (d Descriptor) Due(start time.Time) time.Time {
	if !d.At.IsZero() {
		return d.At
	}

	return start.Add(d.Every)
}

// New returns the timer record for one occurrence of a timer element.
//
// scope distinguishes timers registered by a running instance from
// start-timers registered by a version activation; instanceID is empty for
// the latter.
func New(
	desc Descriptor,
	descriptor string,
	now time.Time,
	shards uint32,
	processID, versionID, instanceID, elementID string,
	occurrence uint64,
) persistence.Timer {
	scope := instanceID
	if scope == "" {
		scope = versionID
	}

	id := ID(scope, elementID, occurrence)
	day, timeOfDay := Bucket(desc.Due(now))

	return persistence.Timer{
		TimerID:    id,
		Day:        day,
		TimeOfDay:  timeOfDay,
		Shard:      ShardOf(id, shards),
		ProcessID:  processID,
		VersionID:  versionID,
		InstanceID: instanceID,
		ElementID:  elementID,
		Descriptor: descriptor,
		Occurrence: occurrence,
	}
}
