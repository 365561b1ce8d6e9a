package cache

import "github.com/dogmatiq/cosyne"

// Record is an entry in the cache.
type Record struct {
	id    string
	cache *Cache

	m        cosyne.Mutex
	state    state
	keep     bool
	Instance interface{} // note: exposed, but still protected by m
}

// KeepAlive resets the TTL for this record, and instructs the cache to keep
// this record when it is released.
//
// It must be called each time the record is acquired, otherwise the record
// is removed when it is released. Evict-on-failure means an aggregate whose
// state changes were not persisted successfully is simply reloaded from its
// log by the next acquirer, rather than rolled back in memory.
func (r *Record) KeepAlive() {
	r.keep = true
	r.state = active
}

// Release unlocks this record, allowing the key to be acquired by other
// callers.
//
// If KeepAlive() has not been called since the record was acquired, the
// record is removed from the cache.
func (r *Record) Release() {
	if r.keep {
		r.keep = false // for the next acquirer
	} else {
		r.remove()
	}

	r.m.Unlock()
}

// remove removes r from the cache.
func (r *Record) remove() {
	r.state = removed
	r.cache.records.Delete(r.id)
}

// evict marks the record for eviction (idle), or actually evicts it if it's
// already marked.
func (r *Record) evict() {
	if !r.m.TryLock() {
		return
	}
	defer r.m.Unlock()

	switch r.state {
	case active:
		// Mark the record as idle. If it's still idle on the next tick
		// we'll remove it.
		r.state = idle
	case idle:
		// It's still idle, meaning it hasn't been acquired since the last
		// tick.
		r.remove()
	}
}

// state is an enumeration that describes the record's state in the cache.
type state int

const (
	active  state = iota // in the cache, may be locked or unlocked
	idle                 // marked for eviction on the next cycle
	removed              // removed from the cache, invalid
)
