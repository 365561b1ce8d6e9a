package message

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/dogmatiq/marshalkit"
)

// mediaType is the media type of marshaled message packets. The message's
// explicit tag travels in the "type" parameter.
const mediaType = "application/json"

// Marshal returns a packet containing the JSON representation of m.
func Marshal(m Message) (marshalkit.Packet, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return marshalkit.Packet{}, fmt.Errorf(
			"unable to marshal %s message: %w",
			m.MessageType(),
			err,
		)
	}

	return marshalkit.Packet{
		MediaType: fmt.Sprintf("%s; type=%s", mediaType, m.MessageType()),
		Data:      data,
	}, nil
}

// Unmarshal reconstructs the message with the given tag from a packet.
func Unmarshal(t Type, pk marshalkit.Packet) (Message, error) {
	reg, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("unrecognized message type %q", t)
	}

	v := reflect.New(reg.rt)

	if err := json.Unmarshal(pk.Data, v.Interface()); err != nil {
		return nil, fmt.Errorf(
			"unable to unmarshal %s message: %w",
			t,
			err,
		)
	}

	return v.Elem().Interface().(Message), nil
}
