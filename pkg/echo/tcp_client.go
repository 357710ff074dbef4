package echo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/velemoonkon/echoping/pkg/metrics"
	"github.com/velemoonkon/echoping/pkg/stats"
)

// TCPClient pings a TCP echo server over a fresh connection per attempt.
// The measured RTT includes the connection handshake.
type TCPClient struct {
	Logger  *slog.Logger
	Metrics *metrics.Store

	config Config
}

// NewTCPClient creates a TCP echo client
func NewTCPClient(cfg Config) *TCPClient {
	return &TCPClient{
		Logger: slog.Default(),
		config: cfg.withDefaults(),
	}
}

// Run sends Count requests to addr, one connection each
func (c *TCPClient) Run(ctx context.Context, addr string, onAttempt func(stats.Attempt)) (*stats.Report, error) {
	defer c.Metrics.RunStarted()()

	report := stats.NewReport(probeTCP, addr)
	raddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		c.Metrics.RecordRunFailed(probeTCP)
		return nil, fmt.Errorf("%w: %s: %w", ErrResolve, addr, err)
	}
	report.Addr = raddr.String()

	logger := c.Logger.With("component", "tcp", "addr", report.Addr, "run_id", report.RunID)
	logger.Debug("starting run", "count", c.config.Count)

	for i := 1; i <= c.config.Count; i++ {
		if i > 1 {
			pause(ctx, c.config.Interval)
		}
		if ctx.Err() != nil {
			break
		}

		a := c.attempt(ctx, raddr, i)
		if a.Status == stats.StatusError {
			logger.Debug("attempt failed", "seq", i, "error", a.Error)
		}
		report.Add(a)
		c.Metrics.RecordAttempt(probeTCP, a)
		if onAttempt != nil {
			onAttempt(a)
		}
	}

	report.Finish()
	return report, nil
}

func (c *TCPClient) attempt(ctx context.Context, raddr *net.TCPAddr, seq int) stats.Attempt {
	start := time.Now()

	d := net.Dialer{Timeout: c.config.Timeout}
	conn, err := d.DialContext(ctx, "tcp4", raddr.String())
	if err != nil {
		if isTimeout(err) {
			return stats.Timeout(seq)
		}
		return stats.Failed(seq, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.config.Timeout)); err != nil {
		return stats.Failed(seq, err)
	}

	msg := FormatPing(seq, time.Now())
	if _, err := io.WriteString(conn, msg); err != nil {
		if isTimeout(err) {
			return stats.Timeout(seq)
		}
		return stats.Failed(seq, err)
	}
	c.Metrics.RecordSent(probeTCP, len(msg))

	want := ExpectedReply(msg)
	buf := make([]byte, max(len(want), c.config.BufferSize))
	n, err := io.ReadFull(conn, buf[:len(want)])
	rtt := time.Since(start)
	peer := conn.RemoteAddr().String()

	if n > 0 {
		c.Metrics.RecordReceived(probeTCP, n)
	}
	switch {
	case err != nil && n == 0 && isTimeout(err):
		return stats.Timeout(seq)
	case err != nil && n == 0:
		return stats.Failed(seq, err)
	case string(buf[:n]) != want:
		return stats.Mismatch(seq, peer)
	}

	return stats.Success(seq, stats.Reply{
		RTT:      rtt,
		Peer:     peer,
		Bytes:    n,
		Response: want,
	})
}
