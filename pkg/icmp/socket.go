package icmp

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

const (
	protocolICMP  = 1
	maxDatagram   = 1500
	defaultTTL    = 64
	receiveBuffer = 256 * 1024
)

// SocketOptions configures a raw ICMP socket
type SocketOptions struct {
	TTL          int  // TTL of outgoing requests, 0 means 64
	DontFragment bool // set DF on outgoing requests
}

// Socket is a raw IPv4 ICMP socket. Reads return the full IPv4 datagram
// and writes carry a header built here.
type Socket struct {
	pc  net.PacketConn
	raw *ipv4.RawConn
	ttl int
	df  bool
	buf []byte
}

// Listen opens a raw ICMP socket. Failure wraps ErrSocket and usually
// means the process lacks CAP_NET_RAW.
func Listen(opts SocketOptions) (*Socket, error) {
	pc, err := net.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSocket, err)
	}

	raw, err := ipv4.NewRawConn(pc)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("%w: %w", ErrSocket, err)
	}

	s := &Socket{
		pc:  pc,
		raw: raw,
		ttl: opts.TTL,
		df:  opts.DontFragment,
		buf: make([]byte, maxDatagram),
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}

	// Kernel-side filtering only exists on Linux
	var f ipv4.ICMPFilter
	f.SetAll(true)
	f.Accept(ipv4.ICMPTypeEchoReply)
	f.Accept(ipv4.ICMPTypeDestinationUnreachable)
	if err := raw.SetICMPFilter(&f); err != nil {
		slog.Debug("ICMP filter not applied", "error", err)
	}

	if err := setReceiveBuffer(pc, receiveBuffer); err != nil {
		slog.Debug("receive buffer not resized", "error", err)
	}
	if s.df {
		if err := setDontFragment(pc); err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: %w", ErrSocket, err)
		}
	}

	return s, nil
}

// WriteTo sends an ICMP message to dst
func (s *Socket) WriteTo(b []byte, dst net.IP) error {
	ip4 := dst.To4()
	if ip4 == nil {
		return fmt.Errorf("%w: %s", ErrNotIPv4, dst)
	}

	h := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(b),
		TTL:      s.ttl,
		Protocol: protocolICMP,
		Dst:      ip4,
	}
	if s.df {
		h.Flags = ipv4.DontFragment
	}
	return s.raw.WriteTo(h, b, nil)
}

// ReadDatagram waits up to timeout for the next datagram
func (s *Socket) ReadDatagram(timeout time.Duration) ([]byte, error) {
	if err := s.raw.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	h, p, _, err := s.raw.ReadFrom(s.buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, ErrReadTimeout
		}
		return nil, err
	}

	d := make([]byte, h.Len+len(p))
	copy(d, s.buf[:len(d)])
	return d, nil
}

// Close releases the socket
func (s *Socket) Close() error {
	return s.raw.Close()
}
