package parcel_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rite-engine/rite/message"
	. "github.com/rite-engine/rite/parcel"
)

var _ = Describe("type Packer", func() {
	var (
		now    time.Time
		nextID int
		packer *Packer
	)

	BeforeEach(func() {
		now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		nextID = 0

		packer = &Packer{
			GenerateID: func() string {
				nextID++
				return string(rune('0' + nextID))
			},
			Now: func() time.Time {
				return now
			},
		}
	})

	command := message.TriggerEvent{
		Owner:      "<owner>",
		InstanceID: "<instance>",
		ElementID:  "<element>",
	}

	event := message.EventOccurred{
		InstanceID: "<instance>",
		ElementID:  "<element>",
	}

	Describe("func Pack()", func() {
		It("returns a parcel that is its own cause", func() {
			p := packer.Pack(command)

			Expect(p.Message).To(Equal(command))
			Expect(p.Envelope.MessageID).To(Equal("1"))
			Expect(p.Envelope.CausationID).To(Equal("1"))
			Expect(p.Envelope.CorrelationID).To(Equal("1"))
			Expect(p.Envelope.MessageType).To(Equal(command.MessageType()))
			Expect(p.Envelope.CreatedAt).To(BeTemporally("==", now))
		})

		It("panics if the message is not marshalable", func() {
			Expect(func() {
				packer.Pack(message.AddContext{
					Data: map[string]any{
						"bad": func() {},
					},
				})
			}).To(Panic())
		})
	})

	Describe("func PackChild()", func() {
		It("configures the parcel as a child of its cause", func() {
			cause := packer.Pack(command)
			p := packer.PackChild(cause, event, "<handler>", "<instance>")

			Expect(p.Envelope.MessageID).To(Equal("2"))
			Expect(p.Envelope.CausationID).To(Equal("1"))
			Expect(p.Envelope.CorrelationID).To(Equal("1"))
			Expect(p.Envelope.SourceHandler).To(Equal("<handler>"))
			Expect(p.Envelope.SourceInstanceID).To(Equal("<instance>"))
		})

		It("preserves the correlation ID across generations", func() {
			cause := packer.Pack(command)
			child := packer.PackChild(cause, event, "<handler>", "<instance>")
			grandchild := packer.PackChild(child, event, "<handler>", "<instance>")

			Expect(grandchild.Envelope.CausationID).To(Equal(child.ID()))
			Expect(grandchild.Envelope.CorrelationID).To(Equal(cause.ID()))
		})
	})

	Describe("func PackScheduled()", func() {
		It("carries the due time", func() {
			due := now.Add(time.Hour)
			cause := packer.Pack(command)
			p := packer.PackScheduled(cause, command, due, "<handler>", "<instance>")

			Expect(p.Envelope.ScheduledFor).To(BeTemporally("==", due))
			Expect(p.Envelope.CausationID).To(Equal(cause.ID()))
		})
	})
})

var _ = Describe("func FromEnvelope()", func() {
	It("unpacks the enclosed message", func() {
		packer := &Packer{}
		original := packer.Pack(message.TriggerEvent{
			Owner:      "<owner>",
			InstanceID: "<instance>",
			ElementID:  "<element>",
		})

		p, err := FromEnvelope(original.Envelope)

		Expect(err).ShouldNot(HaveOccurred())
		Expect(p.Message).To(Equal(original.Message))
		Expect(p.PartitionKey()).To(Equal("<instance>"))
	})

	It("returns an error if the message type is unknown", func() {
		packer := &Packer{}
		p := packer.Pack(message.TriggerEvent{InstanceID: "<instance>"})
		p.Envelope.MessageType = "<unknown>"

		_, err := FromEnvelope(p.Envelope)
		Expect(err).Should(HaveOccurred())
	})
})
