package icmp

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/velemoonkon/echoping/pkg/metrics"
	"github.com/velemoonkon/echoping/pkg/stats"
)

const probeName = "icmp"

// Conn is the raw datagram path used by a Session. ReadDatagram returns
// the full IPv4 datagram, or ErrReadTimeout when nothing arrives in time.
type Conn interface {
	WriteTo(b []byte, dst net.IP) error
	ReadDatagram(timeout time.Duration) ([]byte, error)
}

// Clock supplies the monotonic time used for RTT and budget accounting
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// State of an echo session
type State int

const (
	StateIdle State = iota
	StateAwaitingReply
	StateMatched
	StateTimedOut
	StateErrorReceived
	StateMismatched
	StateSendFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateMatched:
		return "matched"
	case StateTimedOut:
		return "timed_out"
	case StateErrorReceived:
		return "error_received"
	case StateMismatched:
		return "mismatched"
	case StateSendFailed:
		return "send_failed"
	default:
		return "unknown"
	}
}

// Session performs one echo round trip over a Conn it does not own
type Session struct {
	conn    Conn
	codec   Codec
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Store

	state State
	// waits records the budget passed to each ReadDatagram call
	waits []time.Duration
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithClock overrides the session clock
func WithClock(c Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

// WithLogger sets the session logger
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithMetrics sets the metrics store
func WithMetrics(m *metrics.Store) SessionOption {
	return func(s *Session) { s.metrics = m }
}

// NewSession creates a session writing requests with codec over conn
func NewSession(conn Conn, codec Codec, opts ...SessionOption) *Session {
	s := &Session{
		conn:   conn,
		codec:  codec,
		clock:  systemClock{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the state reached by the last Run
func (s *Session) State() State {
	return s.state
}

// Waits returns the read budgets used by the last Run, in order
func (s *Session) Waits() []time.Duration {
	return s.waits
}

// Run sends one Echo Request to dst and waits up to budget for its reply.
//
// Timeouts, ICMP errors, mismatched payloads and send failures are reported
// in the returned Attempt. A non-nil error means the socket itself failed
// and wraps ErrSocket.
func (s *Session) Run(dst net.IP, id, seq uint16, budget time.Duration) (stats.Attempt, error) {
	s.state = StateIdle
	s.waits = s.waits[:0]
	n := int(seq)

	sentAt := s.clock.Now()
	req := s.codec.Encode(id, seq, float64(sentAt.UnixNano())/1e9)
	if err := s.conn.WriteTo(req, dst); err != nil {
		s.state = StateSendFailed
		return stats.Failed(n, fmt.Errorf("send to %s: %w", dst, err)), nil
	}
	s.metrics.RecordSent(probeName, len(req))

	want := req[headerLen:]
	remaining := budget
	s.state = StateAwaitingReply

	for remaining > 0 {
		start := s.clock.Now()
		s.waits = append(s.waits, remaining)
		b, err := s.conn.ReadDatagram(remaining)
		now := s.clock.Now()
		if err != nil {
			if errors.Is(err, ErrReadTimeout) {
				break
			}
			return stats.Attempt{}, fmt.Errorf("%w: %w", ErrSocket, err)
		}
		remaining -= now.Sub(start)

		msg, err := Decode(b)
		if err != nil {
			s.discard("undecodable", slog.String("error", err.Error()))
			continue
		}

		switch m := msg.(type) {
		case *EchoReply:
			if m.ID != id || m.Seq != seq {
				s.discard("foreign_reply", slog.Int("id", int(m.ID)), slog.Int("seq", int(m.Seq)))
				continue
			}
			s.metrics.RecordReceived(probeName, m.Size)
			if !bytes.Equal(m.Payload, want) {
				s.state = StateMismatched
				return stats.Mismatch(n, m.Source.String()), nil
			}
			s.state = StateMatched
			return stats.Success(n, stats.Reply{
				RTT:   now.Sub(sentAt),
				TTL:   m.TTL,
				Peer:  m.Source.String(),
				Bytes: m.Size,
			}), nil

		case *ErrorMessage:
			if !m.Unreachable() {
				s.discard("other_type", slog.Int("type", m.Type), slog.Int("code", m.Code))
				continue
			}
			if m.Origin.quotesOtherEcho(id, seq) {
				s.discard("foreign_error", slog.Int("id", m.Origin.EchoID), slog.Int("seq", m.Origin.EchoSeq))
				continue
			}
			s.state = StateErrorReceived
			return stats.Failed(n, m), nil
		}
	}

	s.state = StateTimedOut
	return stats.Timeout(n), nil
}

func (s *Session) discard(reason string, attrs ...any) {
	s.metrics.RecordDiscarded(reason)
	s.logger.Debug("discarded datagram", append([]any{"reason", reason}, attrs...)...)
}
