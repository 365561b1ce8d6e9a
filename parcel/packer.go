package parcel

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rite-engine/rite/message"
)

// Packer puts messages into parcels.
type Packer struct {
	// GenerateID is a function used to generate new message IDs. If it is
	// nil, a UUID is generated.
	GenerateID func() string

	// Now is a function used to get the current time. If it is nil,
	// time.Now() is used.
	Now func() time.Time
}

// Pack returns a parcel containing the given message, which enters the
// system from outside and is therefore its own cause.
func (p *Packer) Pack(m message.Message) Parcel {
	pk, err := message.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("%s message is not marshalable: %s", m.MessageType(), err))
	}

	id := p.generateID()

	return Parcel{
		Envelope: &Envelope{
			MessageID:     id,
			CausationID:   id,
			CorrelationID: id,
			MessageType:   m.MessageType(),
			Description:   m.MessageDescription(),
			CreatedAt:     p.now(),
			Packet:        pk,
		},
		Message: m,
	}
}

// PackChild returns a parcel containing the given message, configured as a
// child of c, the cause.
//
// handler and instanceID identify the aggregate that produced the message.
func (p *Packer) PackChild(
	c Parcel,
	m message.Message,
	handler string,
	instanceID string,
) Parcel {
	pk, err := message.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("%s message is not marshalable: %s", m.MessageType(), err))
	}

	return Parcel{
		Envelope: &Envelope{
			MessageID:        p.generateID(),
			CausationID:      c.Envelope.MessageID,
			CorrelationID:    c.Envelope.CorrelationID,
			MessageType:      m.MessageType(),
			Description:      m.MessageDescription(),
			SourceHandler:    handler,
			SourceInstanceID: instanceID,
			CreatedAt:        p.now(),
			Packet:           pk,
		},
		Message: m,
	}
}

// PackScheduled returns a parcel containing the given message, configured as
// a child of c that only becomes due at t.
func (p *Packer) PackScheduled(
	c Parcel,
	m message.Message,
	t time.Time,
	handler string,
	instanceID string,
) Parcel {
	parcel := p.PackChild(c, m, handler, instanceID)
	parcel.Envelope.ScheduledFor = t

	return parcel
}

func (p *Packer) generateID() string {
	if p.GenerateID != nil {
		return p.GenerateID()
	}

	return uuid.NewString()
}

func (p *Packer) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}

	return time.Now()
}
