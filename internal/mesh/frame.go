// Package mesh defines the on-air frame format for the packet-radio mesh and
// the per-type message payload codecs. The byte layout is stable and must be
// bit-exact across implementations: a fixed five byte header, the routing
// bytes, then a payload whose shape is owned by the message type.
package mesh

import (
	"errors"
	"fmt"
)

// HeaderSize is the fixed portion of every frame: version/flags, frame id,
// message type, sender id, route length.
const HeaderSize = 5

var ErrShortFrame = errors.New("frame shorter than header and declared route")

// Frame is one on-air record.
//
// Layout: [version/flags][id][type][sender][routelen][route...][payload...]
// There is no payload length prefix; the payload runs to the end of the
// record, whose total length the transport supplies.
type Frame struct {
	Version byte
	ID      byte
	Type    MessageType
	Sender  byte
	Route   []byte
	Payload []byte
}

// Header is the read-only addressing subset of a frame, handed to message
// codecs so they can reason about routing without touching payload bytes.
type Header struct {
	ID     byte
	Type   MessageType
	Sender byte
	Route  []byte
}

// Header returns the frame's addressing fields. The route slice is copied so
// holders cannot mutate the frame.
func (f *Frame) Header() Header {
	route := make([]byte, len(f.Route))
	copy(route, f.Route)
	return Header{
		ID:     f.ID,
		Type:   f.Type,
		Sender: f.Sender,
		Route:  route,
	}
}

// Encode lays the frame out as transmitted: header, route bytes in order,
// payload bytes in order, no padding.
func (f *Frame) Encode() []byte {
	buf := make([]byte, 0, HeaderSize+len(f.Route)+len(f.Payload))
	buf = append(buf, f.Version, f.ID, byte(f.Type), f.Sender, byte(len(f.Route)))
	buf = append(buf, f.Route...)
	buf = append(buf, f.Payload...)
	return buf
}

// DecodeFrame parses raw received bytes into a frame. It fails with
// ErrShortFrame when the record cannot hold the fixed header plus the route
// length the header declares.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
	}

	routeLen := int(data[4])
	if len(data) < HeaderSize+routeLen {
		return nil, fmt.Errorf("%w: %d bytes with route length %d", ErrShortFrame, len(data), routeLen)
	}

	route := make([]byte, routeLen)
	copy(route, data[HeaderSize:HeaderSize+routeLen])

	payload := make([]byte, len(data)-HeaderSize-routeLen)
	copy(payload, data[HeaderSize+routeLen:])

	return &Frame{
		Version: data[0],
		ID:      data[1],
		Type:    MessageType(data[2]),
		Sender:  data[3],
		Route:   route,
		Payload: payload,
	}, nil
}
