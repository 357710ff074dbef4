package icmp

import (
	"fmt"
	"net"
)

// ICMP message types used by the codec
const (
	TypeEchoReply              = 0
	TypeDestinationUnreachable = 3
	TypeEchoRequest            = 8
	TypeTimeExceeded           = 11
)

const (
	headerLen  = 8
	payloadLen = 8
	ipv4Len    = 20
)

// Message is a decoded inbound ICMP datagram: *EchoReply or *ErrorMessage
type Message interface {
	message()
}

// EchoReply is a decoded Echo Reply (type 0)
type EchoReply struct {
	Type      int
	Code      int
	Checksum  uint16
	ID        uint16
	Seq       uint16
	Timestamp float64 // echoed send timestamp, zero if the payload is short
	Payload   []byte
	TTL       int
	Source    net.IP
	Size      int // ICMP bytes, header included
}

func (*EchoReply) message() {}

// Reason classifies an ICMP error message
type Reason int

const (
	ReasonNetworkUnreachable Reason = iota
	ReasonHostUnreachable
	ReasonPortUnreachable
	ReasonOtherUnreachable
	ReasonOtherType
)

func (r Reason) String() string {
	switch r {
	case ReasonNetworkUnreachable:
		return "network_unreachable"
	case ReasonHostUnreachable:
		return "host_unreachable"
	case ReasonPortUnreachable:
		return "port_unreachable"
	case ReasonOtherUnreachable:
		return "other_unreachable"
	default:
		return "other_type"
	}
}

// Classify maps an ICMP type/code pair to a Reason
func Classify(typ, code int) Reason {
	if typ != TypeDestinationUnreachable {
		return ReasonOtherType
	}
	switch code {
	case 0:
		return ReasonNetworkUnreachable
	case 1:
		return ReasonHostUnreachable
	case 3:
		return ReasonPortUnreachable
	default:
		return ReasonOtherUnreachable
	}
}

// ErrorMessage is any ICMP message that is not an Echo Reply. Destination
// Unreachable messages end an echo session; other types are ignored by it.
type ErrorMessage struct {
	Type   int
	Code   int
	Reason Reason
	Source net.IP
	Origin *Origin // best-effort decode of the quoted datagram
}

func (*ErrorMessage) message() {}

// Unreachable reports whether m is a Destination Unreachable message
func (m *ErrorMessage) Unreachable() bool {
	return m.Type == TypeDestinationUnreachable
}

func (m *ErrorMessage) Error() string {
	var text string
	switch m.Reason {
	case ReasonNetworkUnreachable:
		text = "Destination Network Unreachable"
	case ReasonHostUnreachable:
		text = "Destination Host Unreachable"
	case ReasonPortUnreachable:
		text = "Destination Port Unreachable"
	case ReasonOtherUnreachable:
		text = fmt.Sprintf("Destination Unreachable (code %d)", m.Code)
	default:
		text = fmt.Sprintf("ICMP type %d code %d", m.Type, m.Code)
	}
	if m.Source != nil {
		return fmt.Sprintf("%s from %s", text, m.Source)
	}
	return text
}
