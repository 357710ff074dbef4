package icmp

import "errors"

var (
	// ErrResolve is returned when the target host cannot be resolved. It
	// aborts the run before any attempt is made.
	ErrResolve = errors.New("icmp: host resolution failed")

	// ErrSocket is returned when the raw socket cannot be created or read.
	// Creating a raw socket usually requires root or CAP_NET_RAW.
	ErrSocket = errors.New("icmp: raw socket failure")

	// ErrReadTimeout is returned by Conn.ReadDatagram when the wait expires
	// without a datagram. It is a normal outcome, not a socket failure.
	ErrReadTimeout = errors.New("icmp: read timeout")

	ErrTruncated               = errors.New("icmp: truncated datagram")
	ErrUnsupportedHeaderLength = errors.New("icmp: unsupported IPv4 header length")
	ErrNotIPv4                 = errors.New("icmp: not an IPv4 address")
)
