package timer_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/rite-engine/rite/timer"
)

var _ = Describe("func Bucket()", func() {
	It("returns the UTC day and minute that cover the given time", func() {
		day, timeOfDay := Bucket(time.Date(2024, 3, 1, 12, 34, 56, 0, time.UTC))

		Expect(day).To(Equal("2024-03-01"))
		Expect(timeOfDay).To(Equal("12:34"))
	})

	It("converts to UTC before bucketing", func() {
		loc := time.FixedZone("UTC+2", 2*60*60)
		day, timeOfDay := Bucket(time.Date(2024, 3, 1, 1, 30, 0, 0, loc))

		Expect(day).To(Equal("2024-02-29"))
		Expect(timeOfDay).To(Equal("23:30"))
	})
})

var _ = Describe("func ShardOf()", func() {
	It("is deterministic", func() {
		Expect(ShardOf("<timer>", 16)).To(Equal(ShardOf("<timer>", 16)))
	})

	It("returns a shard within range", func() {
		Expect(ShardOf("<timer>", 3)).To(BeNumerically("<", 3))
	})

	It("uses the default shard count when shards is zero", func() {
		Expect(
			ShardOf("<timer>", 0),
		).To(Equal(
			ShardOf("<timer>", DefaultShards),
		))
	})
})

var _ = Describe("func ID()", func() {
	It("includes the scope, element and occurrence", func() {
		Expect(ID("<instance>", "<element>", 3)).To(Equal("<instance>/<element>#3"))
	})
})

var _ = Describe("func ParseDescriptor()", func() {
	It("parses a cycle descriptor", func() {
		d, err := ParseDescriptor("R/5m")

		Expect(err).ShouldNot(HaveOccurred())
		Expect(d).To(Equal(Descriptor{
			Every: 5 * time.Minute,
			Cycle: true,
		}))
	})

	It("parses a relative descriptor", func() {
		d, err := ParseDescriptor("90s")

		Expect(err).ShouldNot(HaveOccurred())
		Expect(d).To(Equal(Descriptor{
			Every: 90 * time.Second,
		}))
	})

	It("parses an absolute descriptor", func() {
		d, err := ParseDescriptor("2024-03-01T12:00:00Z")

		Expect(err).ShouldNot(HaveOccurred())
		Expect(d).To(Equal(Descriptor{
			At: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		}))
	})

	It("returns an error if the descriptor is malformed", func() {
		_, err := ParseDescriptor("<not-a-descriptor>")

		Expect(err).To(MatchError(`invalid timer descriptor "<not-a-descriptor>"`))
	})

	It("returns an error if a cycle period is malformed", func() {
		_, err := ParseDescriptor("R/<not-a-duration>")

		Expect(err).Should(HaveOccurred())
	})
})

var _ = Describe("type Descriptor", func() {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	Describe("func Due()", func() {
		It("returns the absolute time for an absolute descriptor", func() {
			d := Descriptor{
				At:    time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
				Every: time.Minute, // ignored
			}

			Expect(d.Due(start)).To(Equal(d.At))
		})

		It("returns one period after the start time for a relative descriptor", func() {
			d := Descriptor{Every: 90 * time.Second}

			Expect(d.Due(start)).To(Equal(start.Add(90 * time.Second)))
		})

		It("returns one period after the start time for a cycle descriptor", func() {
			d := Descriptor{Every: 5 * time.Minute, Cycle: true}

			Expect(d.Due(start)).To(Equal(start.Add(5 * time.Minute)))
		})
	})
})

var _ = Describe("func New()", func() {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	It("scopes the timer ID to the instance", func() {
		tm := New(
			Descriptor{Every: 10 * time.Second},
			"10s",
			now,
			0,
			"<process>", "<version>", "<instance>", "<element>",
			1,
		)

		Expect(tm.TimerID).To(Equal("<instance>/<element>#1"))
		Expect(tm.InstanceID).To(Equal("<instance>"))
		Expect(tm.Occurrence).To(BeEquivalentTo(1))
	})

	It("scopes a start-timer ID to the version", func() {
		tm := New(
			Descriptor{Every: 10 * time.Second},
			"10s",
			now,
			0,
			"<process>", "<version>", "", "<element>",
			1,
		)

		Expect(tm.TimerID).To(Equal("<version>/<element>#1"))
		Expect(tm.InstanceID).To(BeEmpty())
	})

	It("buckets the timer at its due time", func() {
		tm := New(
			Descriptor{Every: 90 * time.Minute},
			"90m",
			now,
			0,
			"<process>", "<version>", "<instance>", "<element>",
			1,
		)

		Expect(tm.Day).To(Equal("2024-03-01"))
		Expect(tm.TimeOfDay).To(Equal("13:30"))
		Expect(tm.Shard).To(Equal(ShardOf(tm.TimerID, DefaultShards)))
	})

	It("retains the descriptor text for rescheduling", func() {
		tm := New(
			Descriptor{Every: 5 * time.Minute, Cycle: true},
			"R/5m",
			now,
			0,
			"<process>", "<version>", "<instance>", "<element>",
			2,
		)

		Expect(tm.Descriptor).To(Equal("R/5m"))
		Expect(tm.TimerID).To(Equal("<instance>/<element>#2"))
	})
})
