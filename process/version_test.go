package process_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/rite-engine/rite/process"
)

var _ = Describe("type Definition", func() {
	Describe("func Validate()", func() {
		It("accepts a well-formed graph", func() {
			def := &Definition{
				ProcessID: "ordering",
				Events: []*Element{
					{ID: "start", Type: StartEvent},
					{ID: "end", Type: EndEvent},
				},
				Sequences: []*Element{
					{ID: "s1", Type: SequenceFlow, From: "start", To: "end"},
				},
			}

			Expect(def.Validate()).ShouldNot(HaveOccurred())
		})

		It("rejects a definition with no process ID", func() {
			def := &Definition{}
			Expect(def.Validate()).To(MatchError(ContainSubstring("no process ID")))
		})

		It("rejects duplicate element IDs", func() {
			def := &Definition{
				ProcessID: "ordering",
				Events: []*Element{
					{ID: "start", Type: StartEvent},
				},
				Tasks: []*Element{
					{ID: "start", Type: Task},
				},
			}

			Expect(def.Validate()).To(MatchError(ContainSubstring("duplicate element ID")))
		})

		It("rejects a sequence referencing an unknown element", func() {
			def := &Definition{
				ProcessID: "ordering",
				Events: []*Element{
					{ID: "start", Type: StartEvent},
				},
				Sequences: []*Element{
					{ID: "s1", Type: SequenceFlow, From: "start", To: "missing"},
				},
			}

			Expect(def.Validate()).To(MatchError(ContainSubstring("unknown element")))
		})

		It("rejects a boundary event attached to an unknown element", func() {
			def := &Definition{
				ProcessID: "ordering",
				Events: []*Element{
					{ID: "guard", Type: BoundaryEvent, AttachedToRef: "missing"},
				},
			}

			Expect(def.Validate()).To(MatchError(ContainSubstring("attached to unknown element")))
		})
	})
})

var _ = Describe("type Version", func() {
	var version *Version

	BeforeEach(func() {
		def := &Definition{
			ProcessID: "ordering",
			Events: []*Element{
				{ID: "start", Type: StartEvent},
				{ID: "late", Type: StartEvent},
				{ID: "paid", Type: IntermediateCatchEvent, MessageRef: "order.paid"},
				{ID: "guard", Type: BoundaryEvent, AttachedToRef: "work"},
				{ID: "end", Type: EndEvent},
			},
			Tasks: []*Element{
				{ID: "work", Type: Task},
			},
			Sequences: []*Element{
				{ID: "s1", Type: SequenceFlow, From: "start", To: "work"},
				{ID: "s2", Type: SequenceFlow, From: "work", To: "paid", Condition: "fast"},
				{ID: "s3", Type: SequenceFlow, From: "work", To: "end"},
				{ID: "s4", Type: SequenceFlow, From: "paid", To: "end"},
				{ID: "s5", Type: SequenceFlow, From: "guard", To: "end"},
			},
		}

		var err error
		version, err = NewVersion("<owner>", "<process>", "<version>", def)
		Expect(err).ShouldNot(HaveOccurred())
	})

	Describe("func NewVersion()", func() {
		It("rejects a malformed definition", func() {
			_, err := NewVersion("<owner>", "<process>", "<version>", &Definition{})
			Expect(err).Should(HaveOccurred())
		})
	})

	Describe("func ElementByID()", func() {
		It("resolves elements of any collection", func() {
			e, ok := version.ElementByID("work")
			Expect(ok).To(BeTrue())
			Expect(e.Kind()).To(Equal(KindTask))

			_, ok = version.ElementByID("missing")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("func Outgoing()", func() {
		It("returns the outgoing sequences in declaration order", func() {
			out := version.Outgoing("work")
			Expect(out).To(HaveLen(2))
			Expect(out[0].ID).To(Equal("s2"))
			Expect(out[1].ID).To(Equal("s3"))
		})

		It("returns nothing for a terminal element", func() {
			Expect(version.Outgoing("end")).To(BeEmpty())
		})
	})

	Describe("func BoundaryEvents()", func() {
		It("returns the boundary events attached to an element", func() {
			boundary := version.BoundaryEvents("work")
			Expect(boundary).To(HaveLen(1))
			Expect(boundary[0].ID).To(Equal("guard"))

			Expect(version.BoundaryEvents("start")).To(BeEmpty())
		})
	})

	Describe("func StartEvents()", func() {
		It("returns the start events in declaration order", func() {
			starts := version.StartEvents()
			Expect(starts).To(HaveLen(2))
			Expect(starts[0].ID).To(Equal("start"))
			Expect(starts[1].ID).To(Equal("late"))
		})
	})

	Describe("func EventByTrigger()", func() {
		It("resolves an event by its local ID", func() {
			e, ok := version.EventByTrigger("paid")
			Expect(ok).To(BeTrue())
			Expect(e.ID).To(Equal("paid"))
		})

		It("resolves an event by its message code", func() {
			e, ok := version.EventByTrigger("order.paid")
			Expect(ok).To(BeTrue())
			Expect(e.ID).To(Equal("paid"))
		})

		It("does not resolve non-event elements", func() {
			_, ok := version.EventByTrigger("work")
			Expect(ok).To(BeFalse())
		})
	})
})
