package icmp

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/ipv4"
)

var (
	testSrc = net.IPv4(192, 0, 2, 10).To4()
	testDst = net.IPv4(10, 0, 0, 1).To4()
)

// datagram wraps an ICMP message in a 20-byte IPv4 header
func datagram(t *testing.T, src net.IP, ttl int, msg []byte) []byte {
	t.Helper()
	h := &ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(msg),
		TTL:      ttl,
		Protocol: protocolICMP,
		Src:      src,
		Dst:      testDst,
	}
	hb, err := h.Marshal()
	require.NoError(t, err)
	return append(hb, msg...)
}

// replyTo turns an encoded request into the matching Echo Reply datagram
func replyTo(t *testing.T, req []byte, mutate func(m []byte)) []byte {
	t.Helper()
	m := append([]byte(nil), req...)
	m[0] = TypeEchoReply
	if mutate != nil {
		mutate(m)
	}
	return datagram(t, testSrc, 57, m)
}

// errorMessage builds an ICMP error datagram quoting origin
func errorMessage(t *testing.T, typ, code int, origin []byte) []byte {
	t.Helper()
	m := make([]byte, headerLen, headerLen+len(origin))
	m[0] = byte(typ)
	m[1] = byte(code)
	m = append(m, origin...)
	return datagram(t, net.IPv4(203, 0, 113, 1).To4(), 250, m)
}

// quoted serializes an IPv4 datagram and cuts it to the header plus 8
// bytes, the way routers quote it
func quoted(t *testing.T, proto layers.IPProtocol, transport ...gopacket.SerializableLayer) []byte {
	t.Helper()
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      1,
		Protocol: proto,
		SrcIP:    testDst,
		DstIP:    testSrc,
	}
	buf := gopacket.NewSerializeBuffer()
	layersToWrite := append([]gopacket.SerializableLayer{ip}, transport...)
	layersToWrite = append(layersToWrite, gopacket.Payload(make([]byte, 32)))
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, layersToWrite...)
	require.NoError(t, err)
	return buf.Bytes()[:ipv4Len+8]
}

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// responder returns the delay before the n-th inbound datagram and the
// datagram itself. A nil datagram with a nil error means silence.
type responder func(n int, req []byte) (time.Duration, []byte, error)

type fakeConn struct {
	clock   *fakeClock
	respond responder
	sendErr error

	sent   [][]byte
	dsts   []net.IP
	reads  int
	closed int
}

func (c *fakeConn) WriteTo(b []byte, dst net.IP) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), b...))
	c.dsts = append(c.dsts, dst)
	return nil
}

func (c *fakeConn) ReadDatagram(timeout time.Duration) ([]byte, error) {
	c.reads++
	var (
		delay time.Duration
		b     []byte
		err   error
	)
	if c.respond != nil {
		delay, b, err = c.respond(c.reads, c.sent[len(c.sent)-1])
	}
	if (b == nil && err == nil) || delay >= timeout {
		c.clock.Advance(timeout)
		return nil, ErrReadTimeout
	}
	c.clock.Advance(delay)
	return b, err
}

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}
