package parcel

import (
	"time"

	"github.com/dogmatiq/marshalkit"
	"github.com/rite-engine/rite/message"
)

// Envelope is the persisted representation of a message, together with the
// meta-data needed to route, correlate and replay it.
type Envelope struct {
	// MessageID uniquely identifies the message.
	MessageID string `json:"messageId"`

	// CausationID is the ID of the message that directly caused this one. It
	// equals MessageID for messages that enter the system from outside.
	CausationID string `json:"causationId"`

	// CorrelationID is the ID of the first message in this causation chain.
	CorrelationID string `json:"correlationId"`

	// MessageType is the explicit tag of the enclosed message.
	MessageType message.Type `json:"messageType"`

	// Description is a human-readable description of the message.
	Description string `json:"description,omitempty"`

	// SourceHandler is the key of the machine definition that produced the
	// message, if any.
	SourceHandler string `json:"sourceHandler,omitempty"`

	// SourceInstanceID is the uid of the aggregate that produced the
	// message, if any.
	SourceInstanceID string `json:"sourceInstanceId,omitempty"`

	// CreatedAt is the time at which the message was created.
	CreatedAt time.Time `json:"createdAt"`

	// ScheduledFor is the time at which a scheduled message becomes due. It
	// is the zero-value for immediate messages.
	ScheduledFor time.Time `json:"scheduledFor,omitempty"`

	// Packet is the marshaled representation of the message.
	Packet marshalkit.Packet `json:"packet"`
}

// A Parcel is a container for an envelope and the in-memory message it
// carries.
type Parcel struct {
	// Envelope is the message envelope.
	Envelope *Envelope

	// Message is the in-memory representation of the message.
	Message message.Message
}

// ID returns the ID of the message.
func (p Parcel) ID() string {
	return p.Envelope.MessageID
}

// Type returns the explicit tag of the message.
func (p Parcel) Type() message.Type {
	return p.Envelope.MessageType
}

// PartitionKey returns the key used to order delivery of the message.
func (p Parcel) PartitionKey() string {
	return p.Message.PartitionKey()
}

// FromEnvelope unpacks the message enclosed in env and returns a parcel
// containing both representations.
func FromEnvelope(env *Envelope) (Parcel, error) {
	m, err := message.Unmarshal(env.MessageType, env.Packet)
	if err != nil {
		return Parcel{}, err
	}

	return Parcel{
		Envelope: env,
		Message:  m,
	}, nil
}
