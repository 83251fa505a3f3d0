package mesh

import (
	"fmt"
	"net/netip"
)

// Broadcast announces a node to nearby devices: whether it is a gateway, and
// optionally the IPv4 address it can be reached at.
//
// Payload layout: byte 0 is the gateway flag (0/1), byte 1 is the address
// offset (0 when no address follows, 4 when the next four bytes are the IPv4
// octets).
type Broadcast struct {
	Header    Header
	IsGateway bool
	Addr      netip.Addr // IPv4; the zero Addr means no address was announced
}

func decodeBroadcast(f *Frame) (Message, error) {
	data := f.Payload
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: broadcast payload of %d bytes", ErrBadPayload, len(data))
	}

	var gateway bool
	switch data[0] {
	case 0:
		gateway = false
	case 1:
		gateway = true
	default:
		return nil, fmt.Errorf("%w: gateway flag 0x%02x", ErrBadPayload, data[0])
	}

	msg := &Broadcast{
		Header:    f.Header(),
		IsGateway: gateway,
	}

	offset := int(data[1])
	if offset > 0 {
		if offset != 4 {
			return nil, fmt.Errorf("%w: address offset %d", ErrBadPayload, offset)
		}
		if len(data) < 2+offset {
			return nil, fmt.Errorf("%w: declared address missing", ErrBadPayload)
		}
		msg.Addr = netip.AddrFrom4([4]byte(data[2:6]))
	}

	return msg, nil
}

// EncodeFrame wraps the broadcast in a frame with the given addressing fields.
func (b *Broadcast) EncodeFrame(id, sender byte, route []byte) *Frame {
	payload := make([]byte, 0, 6)
	if b.IsGateway {
		payload = append(payload, 1)
	} else {
		payload = append(payload, 0)
	}

	if b.Addr.IsValid() {
		octets := b.Addr.As4()
		payload = append(payload, 4)
		payload = append(payload, octets[:]...)
	} else {
		payload = append(payload, 0)
	}

	r := make([]byte, len(route))
	copy(r, route)

	return &Frame{
		Version: 0,
		ID:      id,
		Type:    TypeBroadcast,
		Sender:  sender,
		Route:   r,
		Payload: payload,
	}
}
