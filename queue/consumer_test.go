package queue_test

import (
	"context"
	"errors"
	"time"

	"github.com/dogmatiq/linger/backoff"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rite-engine/rite/fixtures"
	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/parcel"
	. "github.com/rite-engine/rite/queue"
	"github.com/rite-engine/rite/semaphore"
)

var _ = Describe("type Consumer", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		packer   *parcel.Packer
		queue    *Queue
		handled  chan parcel.Parcel
		handler  HandlerFunc
		consumer *Consumer
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 3*time.Second)

		packer = fixtures.NewPacker()
		queue = New()
		handled = make(chan parcel.Parcel, 10)
		handler = func(ctx context.Context, p parcel.Parcel) error {
			handled <- p
			return nil
		}

		consumer = &Consumer{
			Queue: queue,
			Handler: HandlerFunc(func(ctx context.Context, p parcel.Parcel) error {
				return handler(ctx, p)
			}),
			Semaphore:       semaphore.New(1),
			BackoffStrategy: backoff.Constant(0),
		}
	})

	AfterEach(func() {
		cancel()
	})

	command := func(instanceID string) parcel.Parcel {
		return packer.Pack(message.TriggerEvent{
			Owner:      "<owner>",
			InstanceID: instanceID,
			ElementID:  "<element>",
		})
	}

	run := func() {
		go func() {
			defer GinkgoRecover()
			consumer.Run(ctx)
		}()
	}

	Describe("func Run()", func() {
		It("handles messages from the queue in order", func() {
			p1 := command("<instance>")
			p2 := command("<instance>")
			queue.Publish(ctx, p1)
			queue.Publish(ctx, p2)

			run()

			Expect((<-handled).ID()).To(Equal(p1.ID()))
			Expect((<-handled).ID()).To(Equal(p2.ID()))
		})

		It("redelivers a message when the handler fails", func() {
			fail := true
			handler = func(ctx context.Context, p parcel.Parcel) error {
				if fail {
					fail = false
					return errors.New("<error>")
				}

				handled <- p
				return nil
			}

			p := command("<instance>")
			queue.Publish(ctx, p)

			run()

			Expect((<-handled).ID()).To(Equal(p.ID()))
		})

		It("does not stop consuming when the handler fails", func() {
			handler = func(ctx context.Context, p parcel.Parcel) error {
				if p.Message.(message.TriggerEvent).InstanceID == "<instance-a>" {
					return errors.New("<error>")
				}

				handled <- p
				return nil
			}

			queue.Publish(ctx, command("<instance-a>"))
			p := command("<instance-b>")
			queue.Publish(ctx, p)

			run()

			Expect((<-handled).ID()).To(Equal(p.ID()))
		})

		It("returns when the context is canceled", func() {
			canceled, cancelNow := context.WithCancel(ctx)
			cancelNow()

			err := consumer.Run(canceled)
			Expect(err).To(Equal(context.Canceled))
		})
	})
})
