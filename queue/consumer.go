package queue

import (
	"context"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger/backoff"
	"github.com/rite-engine/rite/internal/mlog"
	"github.com/rite-engine/rite/parcel"
	"github.com/rite-engine/rite/semaphore"
	"golang.org/x/sync/errgroup"
)

// Handler handles messages consumed from a queue.
type Handler interface {
	// HandleMessage handles one message popped from the queue.
	HandleMessage(ctx context.Context, p parcel.Parcel) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, p parcel.Parcel) error

// HandleMessage calls f(ctx, p).
func (f HandlerFunc) HandleMessage(ctx context.Context, p parcel.Parcel) error {
	return f(ctx, p)
}

// Consumer reads messages from a queue in order to handle them.
type Consumer struct {
	// Queue is the message queue to consume.
	Queue *Queue

	// Handler is the target for the messages from the queue.
	Handler Handler

	// Semaphore is used to limit the number of messages being handled
	// concurrently.
	Semaphore semaphore.Semaphore

	// BackoffStrategy is the strategy used to delay individual messages
	// after a failure. If it is nil, backoff.DefaultStrategy is used.
	BackoffStrategy backoff.Strategy

	// Logger is the target for log messages from the consumer. If it is
	// nil, logging.DefaultLogger is used.
	Logger logging.Logger

	group *errgroup.Group
}

// Run handles messages from the queue until an error occurs or ctx is
// canceled.
func (c *Consumer) Run(ctx context.Context) error {
	c.group, ctx = errgroup.WithContext(ctx)

	c.group.Go(func() error {
		return c.consume(ctx)
	})

	<-ctx.Done()
	return c.group.Wait()
}

// consume pops messages from the queue and starts a goroutine to handle each
// one. It waits for c.Semaphore before starting each goroutine.
func (c *Consumer) consume(ctx context.Context) error {
	logging.LogString(
		c.Logger,
		"consuming messages from queue",
	)

	for {
		sess, err := c.Queue.Pop(ctx)
		if err != nil {
			return err
		}

		if err := c.Semaphore.Acquire(ctx); err != nil {
			sess.Nack(0)
			return err
		}

		c.group.Go(func() error {
			defer c.Semaphore.Release()
			c.process(ctx, sess)
			return nil
		})
	}
}

// process handles the message in sess and acknowledges it as appropriate.
// Failures are not propagated; the message is redelivered with backoff.
func (c *Consumer) process(ctx context.Context, sess *Session) {
	p := sess.Parcel()

	mlog.LogConsume(c.Logger, p.Envelope, sess.FailureCount())

	if err := c.Handler.HandleMessage(ctx, p); err != nil {
		s := c.BackoffStrategy
		if s == nil {
			s = backoff.DefaultStrategy
		}

		delay := s(err, sess.FailureCount())

		mlog.LogNack(c.Logger, p.Envelope, err, delay)

		sess.Nack(delay)
		return
	}

	sess.Ack()
}
