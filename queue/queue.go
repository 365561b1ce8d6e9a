// Package queue provides the in-process command queue that carries messages
// between aggregates.
//
// Delivery is at-least-once and FIFO within a partition key; there is no
// ordering across partitions. A partition delivers one message at a time:
// the head stays in place until it is acknowledged, so a failed message is
// redelivered before anything queued behind it.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rite-engine/rite/parcel"
)

// A Queue is a partitioned collection of undelivered messages.
//
// It exposes the messages to multiple consumers, ensuring each consumer
// receives a different partition's head.
type Queue struct {
	m          sync.Mutex
	partitions map[string]*partition
	ready      []*partition
	wake       chan struct{}
}

// partition is the FIFO of undelivered messages sharing one partition key.
type partition struct {
	key      string
	parcels  []parcel.Parcel
	inflight bool
	failures uint
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{
		partitions: map[string]*partition{},
		wake:       make(chan struct{}, 1),
	}
}

// Publish adds a parcel to the queue.
//
// A parcel scheduled for future delivery is withheld until its due time;
// withheld parcels do not block other messages on the same partition.
func (q *Queue) Publish(ctx context.Context, p parcel.Parcel) error {
	if t := p.Envelope.ScheduledFor; !t.IsZero() {
		if d := time.Until(t); d > 0 {
			time.AfterFunc(d, func() {
				q.enqueue(p)
			})
			return nil
		}
	}

	q.enqueue(p)

	return nil
}

// Pop removes the head of a ready partition, blocking until one is available
// or ctx is canceled.
//
// The partition delivers nothing further until the returned session is
// acknowledged or negatively acknowledged.
func (q *Queue) Pop(ctx context.Context) (*Session, error) {
	for {
		q.m.Lock()

		if len(q.ready) > 0 {
			pt := q.ready[0]
			q.ready = q.ready[1:]
			pt.inflight = true

			sess := &Session{
				queue:        q,
				partition:    pt,
				parcel:       pt.parcels[0],
				failureCount: pt.failures,
			}

			// Other poppers may still be asleep with more partitions ready.
			if len(q.ready) > 0 {
				q.signal()
			}

			q.m.Unlock()

			return sess, nil
		}

		q.m.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

func (q *Queue) enqueue(p parcel.Parcel) {
	q.m.Lock()
	defer q.m.Unlock()

	key := p.PartitionKey()
	if key == "" {
		key = p.ID()
	}

	pt, ok := q.partitions[key]
	if !ok {
		pt = &partition{key: key}
		q.partitions[key] = pt
	}

	pt.parcels = append(pt.parcels, p)

	if !pt.inflight && len(pt.parcels) == 1 {
		q.markReady(pt)
	}
}

// markReady appends pt to the ready list. The caller must hold q.m.
func (q *Queue) markReady(pt *partition) {
	q.ready = append(q.ready, pt)
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// ack removes the head of pt and reopens the partition.
func (q *Queue) ack(pt *partition) {
	q.m.Lock()
	defer q.m.Unlock()

	pt.parcels = pt.parcels[1:]
	pt.inflight = false
	pt.failures = 0

	if len(pt.parcels) == 0 {
		delete(q.partitions, pt.key)
		return
	}

	q.markReady(pt)
}

// nack leaves the head of pt in place for redelivery after the given delay.
// The partition stays blocked for the duration, preserving FIFO order.
func (q *Queue) nack(pt *partition, delay time.Duration) {
	q.m.Lock()
	pt.failures++
	q.m.Unlock()

	reopen := func() {
		q.m.Lock()
		defer q.m.Unlock()

		pt.inflight = false
		if len(pt.parcels) > 0 {
			q.markReady(pt)
		}
	}

	if delay <= 0 {
		reopen()
		return
	}

	time.AfterFunc(delay, reopen)
}

// Session is one attempt to deliver the message at the head of a partition.
type Session struct {
	queue        *Queue
	partition    *partition
	parcel       parcel.Parcel
	failureCount uint
	done         bool
}

// Parcel returns the parcel being delivered.
func (s *Session) Parcel() parcel.Parcel {
	return s.parcel
}

// MessageID returns the ID of the message being delivered.
func (s *Session) MessageID() string {
	return s.parcel.ID()
}

// FailureCount returns the number of times delivery of this message has
// already failed.
func (s *Session) FailureCount() uint {
	return s.failureCount
}

// Ack acknowledges successful delivery, removing the message from the queue.
func (s *Session) Ack() {
	if s.done {
		return
	}
	s.done = true

	s.queue.ack(s.partition)
}

// Nack reports failed delivery. The message stays at the head of its
// partition and is redelivered after the given delay.
func (s *Session) Nack(delay time.Duration) {
	if s.done {
		return
	}
	s.done = true

	s.queue.nack(s.partition, delay)
}
