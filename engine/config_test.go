package engine_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rite-engine/rite/engine"
)

var _ = Describe("type Config", func() {
	Describe("func LoadConfig()", func() {
		It("reads the engine switches from the environment", func() {
			GinkgoT().Setenv("RITE_WRITE_MODE", "fast")
			GinkgoT().Setenv("RITE_BOLT_PATH", "/var/lib/rite/rite.db")
			GinkgoT().Setenv("RITE_CACHE_TTL", "15m")
			GinkgoT().Setenv("RITE_TIMER_SHARDS", "8")

			c, err := engine.LoadConfig()
			Expect(err).ShouldNot(HaveOccurred())

			Expect(c.WriteMode).To(Equal("fast"))
			Expect(c.BoltPath).To(Equal("/var/lib/rite/rite.db"))
			Expect(c.CacheTTL).To(Equal(15 * time.Minute))
			Expect(c.TimerShards).To(Equal(uint32(8)))
		})

		It("defaults to guarded writes", func() {
			c, err := engine.LoadConfig()
			Expect(err).ShouldNot(HaveOccurred())
			Expect(c.WriteMode).To(Equal("guarded"))
		})

		It("returns an error if a duration is malformed", func() {
			GinkgoT().Setenv("RITE_CACHE_TTL", "<not-a-duration>")

			_, err := engine.LoadConfig()
			Expect(err).Should(HaveOccurred())
		})
	})

	Describe("func Options()", func() {
		It("accepts both write modes", func() {
			for _, mode := range []string{"", "guarded", "fast"} {
				c := engine.Config{WriteMode: mode}

				options, err := c.Options()
				Expect(err).ShouldNot(HaveOccurred())
				Expect(options).ToNot(BeEmpty())
			}
		})

		It("rejects an unrecognized write mode", func() {
			c := engine.Config{WriteMode: "<unknown>"}

			_, err := c.Options()
			Expect(err).To(MatchError(`unrecognized write mode "<unknown>"`))
		})
	})
})
