package echo

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/velemoonkon/echoping/pkg/icmp"
	"github.com/velemoonkon/echoping/pkg/metrics"
	"github.com/velemoonkon/echoping/pkg/stats"
)

const ipProtoUDP = 17

// DiagnosticConn is the raw ICMP side channel read after a UDP timeout
type DiagnosticConn interface {
	ReadDatagram(timeout time.Duration) ([]byte, error)
	Close() error
}

// UDPClient pings a UDP echo server from one unconnected socket.
//
// After a timeout it reads the raw ICMP socket once and attaches any ICMP
// error found as the attempt's diagnostic. The error may belong to an
// earlier request; it never changes the Timeout status.
type UDPClient struct {
	Logger  *slog.Logger
	Metrics *metrics.Store

	// OpenDiagnostics opens the raw ICMP side socket
	OpenDiagnostics func() (DiagnosticConn, error)

	config Config
}

// NewUDPClient creates a UDP echo client
func NewUDPClient(cfg Config) *UDPClient {
	return &UDPClient{
		Logger:          slog.Default(),
		OpenDiagnostics: openRawICMP,
		config:          cfg.withDefaults(),
	}
}

func openRawICMP() (DiagnosticConn, error) {
	s, err := icmp.Listen(icmp.SocketOptions{})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Run sends Count datagrams to addr
func (c *UDPClient) Run(ctx context.Context, addr string, onAttempt func(stats.Attempt)) (*stats.Report, error) {
	defer c.Metrics.RunStarted()()

	report := stats.NewReport(probeUDP, addr)
	raddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		c.Metrics.RecordRunFailed(probeUDP)
		return nil, fmt.Errorf("%w: %s: %w", ErrResolve, addr, err)
	}
	report.Addr = raddr.String()

	logger := c.Logger.With("component", "udp", "addr", report.Addr, "run_id", report.RunID)

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		c.Metrics.RecordRunFailed(probeUDP)
		return nil, fmt.Errorf("%w: %w", ErrSocket, err)
	}
	defer conn.Close()

	var diag DiagnosticConn
	if c.config.Diagnostics && c.OpenDiagnostics != nil {
		diag, err = c.OpenDiagnostics()
		if err != nil {
			logger.Warn("ICMP diagnostics disabled", "error", err)
			diag = nil
		} else {
			defer diag.Close()
		}
	}

	buf := make([]byte, c.config.BufferSize)
	for i := 1; i <= c.config.Count; i++ {
		if i > 1 {
			pause(ctx, c.config.Interval)
		}
		if ctx.Err() != nil {
			break
		}

		a := c.attempt(conn, diag, raddr, i, buf, logger)
		report.Add(a)
		c.Metrics.RecordAttempt(probeUDP, a)
		if onAttempt != nil {
			onAttempt(a)
		}
	}

	report.Finish()
	return report, nil
}

func (c *UDPClient) attempt(conn *net.UDPConn, diag DiagnosticConn, raddr *net.UDPAddr, seq int, buf []byte, logger *slog.Logger) stats.Attempt {
	msg := FormatPing(seq, time.Now())
	want := ExpectedReply(msg)

	start := time.Now()
	if _, err := conn.WriteToUDP([]byte(msg), raddr); err != nil {
		return stats.Failed(seq, err)
	}
	c.Metrics.RecordSent(probeUDP, len(msg))

	if err := conn.SetReadDeadline(start.Add(c.config.Timeout)); err != nil {
		return stats.Failed(seq, err)
	}

	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				return stats.Timeout(seq).WithDiagnostic(c.diagnose(diag, raddr))
			}
			return stats.Failed(seq, err)
		}
		if !from.IP.Equal(raddr.IP) || from.Port != raddr.Port {
			logger.Debug("ignoring datagram from stranger", "from", from.String())
			continue
		}

		c.Metrics.RecordReceived(probeUDP, n)
		got := string(buf[:n])
		if got != want {
			// Late echo of a request that already timed out
			if s, _, err := ParsePing(got); err == nil && s < seq {
				logger.Debug("ignoring late reply", "seq", s, "current", seq)
				continue
			}
			return stats.Mismatch(seq, from.String())
		}

		return stats.Success(seq, stats.Reply{
			RTT:      time.Since(start),
			Peer:     from.String(),
			Bytes:    n,
			Response: got,
		})
	}
}

// diagnose reads one datagram from the side socket and returns it if it is
// an ICMP error that could concern raddr
func (c *UDPClient) diagnose(diag DiagnosticConn, raddr *net.UDPAddr) error {
	if diag == nil {
		return nil
	}

	b, err := diag.ReadDatagram(c.config.DiagnosticWait)
	if err != nil {
		return nil
	}
	msg, err := icmp.Decode(b)
	if err != nil {
		return nil
	}
	em, ok := msg.(*icmp.ErrorMessage)
	if !ok {
		return nil
	}
	if o := em.Origin; o != nil && o.IPProto == ipProtoUDP && o.DstPort != raddr.Port {
		return nil
	}
	return em
}
