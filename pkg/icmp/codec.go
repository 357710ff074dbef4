package icmp

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/net/ipv4"
)

// Checksum byte orders accepted by ParseChecksumOrder
const (
	ChecksumOrderNetwork = "network"
	ChecksumOrderSwapped = "swapped"
)

// Codec encodes Echo Requests and decodes inbound IPv4+ICMP datagrams
type Codec struct {
	// ChecksumOrder controls how the checksum is written into the header.
	// binary.BigEndian is correct for standard kernels; binary.LittleEndian
	// swaps the two bytes for hosts that expect the field pre-corrected.
	ChecksumOrder binary.ByteOrder
}

// DefaultCodec writes the checksum in network byte order
func DefaultCodec() Codec {
	return Codec{ChecksumOrder: binary.BigEndian}
}

// ParseChecksumOrder resolves a configured order name
func ParseChecksumOrder(name string) (binary.ByteOrder, error) {
	switch name {
	case "", ChecksumOrderNetwork:
		return binary.BigEndian, nil
	case ChecksumOrderSwapped:
		return binary.LittleEndian, nil
	default:
		return nil, fmt.Errorf("unknown checksum order %q (want %s or %s)", name, ChecksumOrderNetwork, ChecksumOrderSwapped)
	}
}

// Encode builds an Echo Request carrying ts as an 8-byte IEEE-754 payload
func (c Codec) Encode(id, seq uint16, ts float64) []byte {
	b := make([]byte, headerLen+payloadLen)
	b[0] = TypeEchoRequest
	b[1] = 0
	binary.BigEndian.PutUint16(b[4:6], id)
	binary.BigEndian.PutUint16(b[6:8], seq)
	binary.BigEndian.PutUint64(b[8:16], math.Float64bits(ts))

	order := c.ChecksumOrder
	if order == nil {
		order = binary.BigEndian
	}
	order.PutUint16(b[2:4], Checksum(b))
	return b
}

// Decode parses a full IPv4 datagram as delivered by a raw ICMP socket.
// Only 20-byte IPv4 headers are supported. The checksum of the inbound
// message is not verified.
func Decode(b []byte) (Message, error) {
	if len(b) < ipv4Len {
		return nil, ErrTruncated
	}
	h, err := ipv4.ParseHeader(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if h.Len != ipv4Len {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedHeaderLength, h.Len)
	}

	m := b[ipv4Len:]
	if len(m) < headerLen {
		return nil, ErrTruncated
	}

	typ, code := int(m[0]), int(m[1])
	if typ == TypeEchoReply {
		reply := &EchoReply{
			Type:     typ,
			Code:     code,
			Checksum: binary.BigEndian.Uint16(m[2:4]),
			ID:       binary.BigEndian.Uint16(m[4:6]),
			Seq:      binary.BigEndian.Uint16(m[6:8]),
			Payload:  m[headerLen:],
			TTL:      h.TTL,
			Source:   h.Src,
			Size:     len(m),
		}
		if len(reply.Payload) >= payloadLen {
			reply.Timestamp = math.Float64frombits(binary.BigEndian.Uint64(reply.Payload[:payloadLen]))
		}
		return reply, nil
	}

	msg := &ErrorMessage{
		Type:   typ,
		Code:   code,
		Reason: Classify(typ, code),
		Source: h.Src,
	}
	if typ == TypeDestinationUnreachable || typ == TypeTimeExceeded {
		msg.Origin = parseOrigin(m[headerLen:])
	}
	return msg, nil
}
