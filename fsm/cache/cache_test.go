package cache_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/rite-engine/rite/fsm/cache"
)

var _ = Describe("type Cache", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		cache  *Cache
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 3*time.Second)
		cache = &Cache{}
	})

	AfterEach(func() {
		cancel()
	})

	Describe("func Acquire()", func() {
		It("retains the instance of a kept record", func() {
			rec, err := cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			rec.Instance = "<instance>"
			rec.KeepAlive()
			rec.Release()

			rec, err = cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			defer rec.Release()

			Expect(rec.Instance).To(Equal("<instance>"))
		})

		It("discards a record that is released without a keep-alive", func() {
			rec, err := cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			rec.Instance = "<instance>"
			rec.Release()

			rec, err = cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			defer rec.Release()

			Expect(rec.Instance).To(BeNil())
		})

		It("keeps separate IDs separate", func() {
			rec, err := cache.Acquire(ctx, "<id-1>")
			Expect(err).ShouldNot(HaveOccurred())
			rec.Instance = "<instance>"
			rec.KeepAlive()
			rec.Release()

			rec, err = cache.Acquire(ctx, "<id-2>")
			Expect(err).ShouldNot(HaveOccurred())
			defer rec.Release()

			Expect(rec.Instance).To(BeNil())
		})

		It("blocks while the record is locked by another acquirer", func() {
			rec, err := cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			defer rec.Release()

			short, cancelShort := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancelShort()

			_, err = cache.Acquire(short, "<id>")
			Expect(err).To(Equal(context.DeadlineExceeded))
		})

		It("unblocks a waiting acquirer when the record is released", func() {
			rec, err := cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			rec.Instance = "<instance>"
			rec.KeepAlive()

			acquired := make(chan *Record, 1)
			go func() {
				defer GinkgoRecover()

				rec, err := cache.Acquire(ctx, "<id>")
				Expect(err).ShouldNot(HaveOccurred())
				acquired <- rec
			}()

			time.Sleep(20 * time.Millisecond)
			rec.Release()

			rec = <-acquired
			defer rec.Release()

			Expect(rec.Instance).To(Equal("<instance>"))
		})
	})

	Describe("func Run()", func() {
		It("evicts a record that stays idle for two cycles", func() {
			cache.TTL = 10 * time.Millisecond

			rec, err := cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			rec.Instance = "<instance>"
			rec.KeepAlive()
			rec.Release()

			runCtx, cancelRun := context.WithCancel(ctx)
			defer cancelRun()

			go func() {
				defer GinkgoRecover()
				cache.Run(runCtx)
			}()

			// One cycle marks the record idle, the next removes it.
			time.Sleep(100 * time.Millisecond)

			rec, err = cache.Acquire(ctx, "<id>")
			Expect(err).ShouldNot(HaveOccurred())
			defer rec.Release()

			Expect(rec.Instance).To(BeNil())
		})
	})
})
