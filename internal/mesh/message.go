package mesh

import (
	"errors"
	"fmt"
)

// MessageType tags the payload format of a frame.
type MessageType byte

const (
	TypeBroadcast MessageType = 0x01
)

func (t MessageType) String() string {
	switch t {
	case TypeBroadcast:
		return "broadcast"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

var (
	ErrUnknownType = errors.New("no decoder for message type")
	ErrBadPayload  = errors.New("malformed message payload")
)

// Message is one typed mesh message. Implementations pair a payload decoder
// registered in the dispatch table with EncodeFrame, which wraps the message
// in a frame carrying the given addressing fields.
type Message interface {
	EncodeFrame(id, sender byte, route []byte) *Frame
}

// decoders dispatches on the frame's type tag. New message types register
// here; the frame codec itself never changes.
var decoders = map[MessageType]func(*Frame) (Message, error){
	TypeBroadcast: decodeBroadcast,
}

// DecodeMessage decodes a frame's payload according to its type tag.
func DecodeMessage(f *Frame) (Message, error) {
	decode, ok := decoders[f.Type]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownType, byte(f.Type))
	}
	return decode(f)
}
