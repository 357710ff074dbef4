package icmp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/velemoonkon/echoping/pkg/metrics"
	"github.com/velemoonkon/echoping/pkg/resolve"
	"github.com/velemoonkon/echoping/pkg/stats"
)

// Resolver maps a host name or literal to an IPv4 address
type Resolver interface {
	LookupIPv4(ctx context.Context, host string) (net.IP, error)
}

// PacketConn is a Conn that owns a socket
type PacketConn interface {
	Conn
	io.Closer
}

// ListenFunc opens the raw datagram path for a run or an attempt
type ListenFunc func(SocketOptions) (PacketConn, error)

// Pinger runs sequential echo sessions against one host. The exported
// fields may be replaced after NewPinger, before the first Run.
type Pinger struct {
	Resolver Resolver
	Listen   ListenFunc
	Clock    Clock
	Logger   *slog.Logger
	Metrics  *metrics.Store

	config Config
	codec  Codec
}

var idOffset atomic.Uint32

// nextIdentifier returns the process identifier for the first run and a
// distinct one for every concurrent run after it
func nextIdentifier() uint16 {
	return uint16((uint32(os.Getpid()) + idOffset.Add(1) - 1) & 0xffff)
}

// NewPinger validates cfg and creates a Pinger using raw sockets and the
// system resolver
func NewPinger(cfg Config) (*Pinger, error) {
	if cfg.Count == 0 {
		cfg.Count = 10
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.Count < 0 {
		return nil, fmt.Errorf("count must be positive, got %d", cfg.Count)
	}

	scope, err := ParseSocketScope(string(cfg.SocketScope))
	if err != nil {
		return nil, err
	}
	cfg.SocketScope = scope

	order, err := ParseChecksumOrder(cfg.ChecksumOrder)
	if err != nil {
		return nil, err
	}

	return &Pinger{
		Resolver: resolve.System{},
		Listen:   listenRaw,
		Clock:    systemClock{},
		Logger:   slog.Default(),
		config:   cfg,
		codec:    Codec{ChecksumOrder: order},
	}, nil
}

func listenRaw(opts SocketOptions) (PacketConn, error) {
	s, err := Listen(opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Config returns the effective configuration
func (p *Pinger) Config() Config {
	return p.config
}

// Run resolves host once and sends Count echo requests to it, one at a
// time. Each attempt is passed to onAttempt as soon as it completes.
//
// Resolution and socket failures abort the run. Cancelling ctx stops the
// run between attempts and returns the attempts made so far.
func (p *Pinger) Run(ctx context.Context, host string, onAttempt func(stats.Attempt)) (*stats.Report, error) {
	defer p.Metrics.RunStarted()()

	report := stats.NewReport(probeName, host)
	logger := p.Logger.With("component", "icmp", "host", host, "run_id", report.RunID)

	dst, err := p.Resolver.LookupIPv4(ctx, host)
	if err != nil {
		p.Metrics.RecordRunFailed(probeName)
		return nil, fmt.Errorf("%w: %s: %w", ErrResolve, host, err)
	}
	report.Addr = dst.String()

	id := nextIdentifier()
	logger.Debug("starting run", "addr", report.Addr, "id", id, "count", p.config.Count, "scope", p.config.SocketScope)

	var shared PacketConn
	if p.config.SocketScope == ScopeRun {
		shared, err = p.listen()
		if err != nil {
			p.Metrics.RecordRunFailed(probeName)
			return nil, err
		}
		defer shared.Close()
	}

	for i := 1; i <= p.config.Count; i++ {
		if i > 1 && p.config.Interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(p.config.Interval):
			}
		}
		if ctx.Err() != nil {
			logger.Debug("run cancelled", "attempts", len(report.Attempts))
			break
		}

		attempt, err := p.attempt(shared, dst, id, uint16(i), logger)
		if err != nil {
			p.Metrics.RecordRunFailed(probeName)
			return nil, err
		}

		report.Add(attempt)
		p.Metrics.RecordAttempt(probeName, attempt)
		if onAttempt != nil {
			onAttempt(attempt)
		}
	}

	report.Finish()
	return report, nil
}

func (p *Pinger) attempt(shared PacketConn, dst net.IP, id, seq uint16, logger *slog.Logger) (stats.Attempt, error) {
	conn := shared
	if conn == nil {
		c, err := p.listen()
		if err != nil {
			return stats.Attempt{}, err
		}
		defer c.Close()
		conn = c
	}

	sess := NewSession(conn, p.codec, WithClock(p.Clock), WithLogger(logger), WithMetrics(p.Metrics))
	return sess.Run(dst, id, seq, p.config.Timeout)
}

func (p *Pinger) listen() (PacketConn, error) {
	conn, err := p.Listen(SocketOptions{TTL: p.config.TTL, DontFragment: p.config.DontFragment})
	if err != nil {
		if errors.Is(err, ErrSocket) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSocket, err)
	}
	return conn, nil
}
