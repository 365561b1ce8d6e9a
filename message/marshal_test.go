package message_test

import (
	"github.com/dogmatiq/marshalkit"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/rite-engine/rite/message"
)

var _ = Describe("the message registry", func() {
	It("classifies commands and events", func() {
		role, ok := RoleOf("command.instance.create")
		Expect(ok).To(BeTrue())
		Expect(role).To(Equal(CommandRole))

		role, ok = RoleOf("event.instance.created")
		Expect(ok).To(BeTrue())
		Expect(role).To(Equal(EventRole))
	})

	It("does not recognize unregistered tags", func() {
		_, ok := RoleOf("<unknown>")
		Expect(ok).To(BeFalse())
	})

	It("partitions the registry by role", func() {
		commands := TypesWithRole(CommandRole)
		events := TypesWithRole(EventRole)

		Expect(commands).NotTo(BeEmpty())
		Expect(events).NotTo(BeEmpty())
		Expect(len(commands)+len(events)).To(Equal(len(Types())))
	})
})

var _ = Describe("func Marshal()", func() {
	It("tags the packet with the message type", func() {
		pk, err := Marshal(TriggerEvent{
			Owner:      "<owner>",
			InstanceID: "<instance>",
			ElementID:  "<element>",
		})

		Expect(err).ShouldNot(HaveOccurred())
		Expect(pk.MediaType).To(Equal("application/json; type=command.event.trigger"))
	})
})

var _ = Describe("func Unmarshal()", func() {
	It("reconstructs the marshaled message", func() {
		m := CreateInstance{
			Owner:      "<owner>",
			ProcessID:  "<process>",
			VersionID:  "<version>",
			InstanceID: "<instance>",
			Data:       map[string]any{"total": 42.0},
		}

		pk, err := Marshal(m)
		Expect(err).ShouldNot(HaveOccurred())

		u, err := Unmarshal(m.MessageType(), pk)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(u).To(Equal(m))
	})

	It("returns an error for an unrecognized tag", func() {
		_, err := Unmarshal("<unknown>", marshalPacketOf(TriggerEvent{}))
		Expect(err).To(MatchError(`unrecognized message type "<unknown>"`))
	})
})

func marshalPacketOf(m Message) marshalkit.Packet {
	pk, err := Marshal(m)
	if err != nil {
		panic(err)
	}
	return pk
}
