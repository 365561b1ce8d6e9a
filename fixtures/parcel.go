package fixtures

import (
	"fmt"
	"sync"
	"time"

	"github.com/rite-engine/rite/message"
	"github.com/rite-engine/rite/parcel"
)

// CreatedAt is the fixed creation time of fixture parcels.
var CreatedAt = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// NewPacker returns a packer that produces deterministic parcels: sequential
// message IDs and a fixed clock.
func NewPacker() *parcel.Packer {
	var (
		m sync.Mutex
		n int
	)

	return &parcel.Packer{
		GenerateID: func() string {
			m.Lock()
			defer m.Unlock()

			n++
			return fmt.Sprintf("%08d", n)
		},
		Now: func() time.Time {
			return CreatedAt
		},
	}
}

// NewParcel returns a parcel containing the given message, with the given
// message ID and the fixture creation time.
func NewParcel(id string, m message.Message) parcel.Parcel {
	pk, err := message.Marshal(m)
	if err != nil {
		panic(err)
	}

	return parcel.Parcel{
		Envelope: &parcel.Envelope{
			MessageID:     id,
			CausationID:   id,
			CorrelationID: id,
			MessageType:   m.MessageType(),
			Description:   m.MessageDescription(),
			CreatedAt:     CreatedAt,
			Packet:        pk,
		},
		Message: m,
	}
}
