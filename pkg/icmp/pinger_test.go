package icmp

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velemoonkon/echoping/pkg/stats"
)

type fakeResolver struct {
	ip    net.IP
	err   error
	calls int
}

func (r *fakeResolver) LookupIPv4(ctx context.Context, host string) (net.IP, error) {
	r.calls++
	return r.ip, r.err
}

// echoing answers every request whose sequence is not in drop
func echoing(t *testing.T, drop ...uint16) responder {
	return func(n int, req []byte) (time.Duration, []byte, error) {
		if n > 1 {
			return 0, nil, nil
		}
		seq := binary.BigEndian.Uint16(req[6:8])
		for _, d := range drop {
			if d == seq {
				return 0, nil, nil
			}
		}
		return time.Duration(seq) * 10 * time.Millisecond, replyTo(t, req, nil), nil
	}
}

type testRig struct {
	pinger   *Pinger
	resolver *fakeResolver
	conns    []*fakeConn
	clock    *fakeClock
}

func newTestRig(t *testing.T, cfg Config, respond responder) *testRig {
	t.Helper()
	p, err := NewPinger(cfg)
	require.NoError(t, err)

	rig := &testRig{
		pinger:   p,
		resolver: &fakeResolver{ip: testSrc},
		clock:    newFakeClock(),
	}
	p.Resolver = rig.resolver
	p.Clock = rig.clock
	p.Listen = func(SocketOptions) (PacketConn, error) {
		// each socket counts its own reads
		c := &fakeConn{clock: rig.clock, respond: respond}
		rig.conns = append(rig.conns, c)
		return c, nil
	}
	return rig
}

func TestNewPingerDefaults(t *testing.T) {
	p, err := NewPinger(Config{})
	require.NoError(t, err)

	cfg := p.Config()
	assert.Equal(t, 10, cfg.Count)
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.Equal(t, ScopeAttempt, cfg.SocketScope)
}

func TestNewPingerRejectsBadConfig(t *testing.T) {
	_, err := NewPinger(Config{SocketScope: "forever"})
	assert.Error(t, err)

	_, err = NewPinger(Config{ChecksumOrder: "upside-down"})
	assert.Error(t, err)

	_, err = NewPinger(Config{Count: -1})
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.Count)
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, ScopeAttempt, cfg.SocketScope)
}

func TestPingerRun(t *testing.T) {
	rig := newTestRig(t, Config{Count: 3, Timeout: time.Second}, echoing(t, 2))

	var seen []stats.Attempt
	report, err := rig.pinger.Run(context.Background(), "target.example", func(a stats.Attempt) {
		seen = append(seen, a)
	})
	require.NoError(t, err)

	require.Len(t, seen, 3)
	assert.Equal(t, seen, report.Attempts)
	assert.Equal(t, stats.StatusSuccess, seen[0].Status)
	assert.Equal(t, stats.StatusTimeout, seen[1].Status)
	assert.Equal(t, stats.StatusSuccess, seen[2].Status)
	for i, a := range seen {
		assert.Equal(t, i+1, a.Seq)
	}

	assert.Equal(t, "icmp", report.Probe)
	assert.Equal(t, "target.example", report.Target)
	assert.Equal(t, testSrc.String(), report.Addr)
	assert.Equal(t, 3, report.Summary.Sent)
	assert.Equal(t, 2, report.Summary.Received)
	assert.Equal(t, 10*time.Millisecond, report.Summary.MinRTT)
	assert.Equal(t, 30*time.Millisecond, report.Summary.MaxRTT)
	assert.Equal(t, 20*time.Millisecond, report.Summary.AvgRTT)

	assert.Equal(t, 1, rig.resolver.calls)
}

func TestPingerSocketPerAttempt(t *testing.T) {
	rig := newTestRig(t, Config{Count: 4, SocketScope: ScopeAttempt}, echoing(t))

	_, err := rig.pinger.Run(context.Background(), "h", nil)
	require.NoError(t, err)

	require.Len(t, rig.conns, 4)
	for _, c := range rig.conns {
		assert.Len(t, c.sent, 1)
		assert.Equal(t, 1, c.closed)
	}
}

func TestPingerSocketPerRun(t *testing.T) {
	rig := newTestRig(t, Config{Count: 4, SocketScope: ScopeRun}, func(n int, req []byte) (time.Duration, []byte, error) {
		return time.Millisecond, replyTo(t, req, nil), nil
	})

	report, err := rig.pinger.Run(context.Background(), "h", nil)
	require.NoError(t, err)

	require.Len(t, rig.conns, 1)
	assert.Len(t, rig.conns[0].sent, 4)
	assert.Equal(t, 1, rig.conns[0].closed)
	assert.Equal(t, 4, report.Summary.Received)
}

func TestPingerUsesOneIdentifierPerRun(t *testing.T) {
	rig := newTestRig(t, Config{Count: 3, SocketScope: ScopeRun}, func(n int, req []byte) (time.Duration, []byte, error) {
		return time.Millisecond, replyTo(t, req, nil), nil
	})

	_, err := rig.pinger.Run(context.Background(), "h", nil)
	require.NoError(t, err)

	sent := rig.conns[0].sent
	id := binary.BigEndian.Uint16(sent[0][4:6])
	for _, pkt := range sent {
		assert.Equal(t, id, binary.BigEndian.Uint16(pkt[4:6]))
	}
}

func TestPingerResolveFailureIsFatal(t *testing.T) {
	rig := newTestRig(t, Config{Count: 2}, echoing(t))
	rig.resolver.err = errors.New("no such host")

	report, err := rig.pinger.Run(context.Background(), "nowhere.invalid", nil)

	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrResolve)
	assert.Empty(t, rig.conns)
}

func TestPingerSocketFailureIsFatal(t *testing.T) {
	for _, scope := range []SocketScope{ScopeAttempt, ScopeRun} {
		t.Run(string(scope), func(t *testing.T) {
			rig := newTestRig(t, Config{Count: 2, SocketScope: scope}, echoing(t))
			rig.pinger.Listen = func(SocketOptions) (PacketConn, error) {
				return nil, errors.New("operation not permitted")
			}

			report, err := rig.pinger.Run(context.Background(), "h", nil)

			assert.Nil(t, report)
			assert.ErrorIs(t, err, ErrSocket)
		})
	}
}

func TestPingerZeroReplies(t *testing.T) {
	rig := newTestRig(t, Config{Count: 5}, func(int, []byte) (time.Duration, []byte, error) {
		return 0, nil, nil
	})

	report, err := rig.pinger.Run(context.Background(), "h", nil)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Summary.Sent)
	assert.Equal(t, 0, report.Summary.Received)
	assert.Equal(t, 100.0, report.Summary.LossPercent)
	assert.Zero(t, report.Summary.AvgRTT)
}

func TestPingerCancelBetweenAttempts(t *testing.T) {
	rig := newTestRig(t, Config{Count: 5, Interval: time.Hour}, echoing(t))
	ctx, cancel := context.WithCancel(context.Background())

	report, err := rig.pinger.Run(ctx, "h", func(stats.Attempt) {
		cancel()
	})
	require.NoError(t, err)

	require.Len(t, report.Attempts, 1)
	assert.Equal(t, 1, report.Summary.Sent)
}

func TestNextIdentifierDistinct(t *testing.T) {
	a := nextIdentifier()
	b := nextIdentifier()
	assert.NotEqual(t, a, b)
}
