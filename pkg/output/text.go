package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/velemoonkon/echoping/pkg/runner"
	"github.com/velemoonkon/echoping/pkg/stats"
)

const mismatchText = "Data mismatch between request and reply"

// TextWriter prints one line per attempt and a statistics block per
// target, in the classic ping wording. ICMP and the echo peers use
// different wording.
type TextWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	icmp   bool
	prefix bool
	count  int
	err    error
}

// NewTextWriter creates a text sink for probe ("icmp", "tcp" or "udp")
func NewTextWriter(w io.Writer, probe string, prefix bool) *TextWriter {
	return &TextWriter{
		writer: bufio.NewWriter(w),
		icmp:   probe == "icmp",
		prefix: prefix,
	}
}

// Attempt prints a single attempt outcome
func (t *TextWriter) Attempt(target string, a stats.Attempt) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.icmp {
		t.line(target, icmpLine(a))
	} else {
		t.peerLines(target, a)
	}
	t.flush()
}

func icmpLine(a stats.Attempt) string {
	switch a.Status {
	case stats.StatusSuccess:
		return fmt.Sprintf("Reply from %s: bytes=%d rtt=%.3fms TTL=%d Sequence Number=%d",
			a.Peer, a.Bytes, a.RTTMs, a.TTL, a.Seq)
	case stats.StatusTimeout:
		return "Request timed out."
	case stats.StatusMismatch:
		return mismatchText
	default:
		return a.Error
	}
}

func (t *TextWriter) peerLines(target string, a stats.Attempt) {
	switch a.Status {
	case stats.StatusSuccess:
		t.line(target, "Received: "+a.Response)
		t.line(target, fmt.Sprintf("RTT for packet %d: %.3f ms", a.Seq, a.RTTMs))
	case stats.StatusTimeout:
		t.line(target, fmt.Sprintf("Request timed out for packet %d", a.Seq))
		if a.Diagnostic != "" {
			t.line(target, fmt.Sprintf("Received ICMP error for packet %d: %s", a.Seq, a.Diagnostic))
		}
	case stats.StatusMismatch:
		t.line(target, fmt.Sprintf("%s for packet %d", mismatchText, a.Seq))
	default:
		t.line(target, fmt.Sprintf("Error for packet %d: %s", a.Seq, a.Error))
	}
}

// Write prints the statistics block for a finished target
func (t *TextWriter) Write(res *runner.Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count++
	switch {
	case res.Error != "":
		// A lone target's failure is reported by the caller instead
		if t.prefix {
			t.line(res.Target, "Error: "+res.Error)
		}
	case res.Report == nil:
	case t.icmp:
		t.icmpSummary(res.Target, res.Report.Summary)
	default:
		t.peerSummary(res.Target, res.Report.Summary)
	}
	return t.flush()
}

func (t *TextWriter) icmpSummary(target string, s stats.Summary) {
	t.printf("\n")
	if t.prefix {
		t.printf("--- %s ping statistics ---\n", target)
	} else {
		t.printf("--- Ping statistics ---\n")
	}
	t.printf("%d packets transmitted, %d received, %.1f%% packet loss\n", s.Sent, s.Received, s.LossPercent)
	t.printf("rtt min = %.3f ms, rtt avg = %.3f ms, rtt max = %.3f ms\n", s.MinRTTMs, s.AvgRTTMs, s.MaxRTTMs)
}

func (t *TextWriter) peerSummary(target string, s stats.Summary) {
	t.printf("\n")
	if s.Received == 0 {
		t.line(target, "No packets were received. All requests timed out.")
		return
	}
	if t.prefix {
		t.printf("--- %s Ping Statistics ---\n", target)
	} else {
		t.printf("--- Ping Statistics ---\n")
	}
	t.printf("Packets: Sent = %d, Received = %d, Lost = %d (%.1f%% loss)\n", s.Sent, s.Received, s.Lost, s.LossPercent)
	t.printf("Min RTT = %.3f ms, Max RTT = %.3f ms, Avg RTT = %.3f ms\n", s.MinRTTMs, s.MaxRTTMs, s.AvgRTTMs)
}

func (t *TextWriter) line(target, s string) {
	if t.prefix {
		t.printf("[%s] %s\n", target, s)
		return
	}
	t.printf("%s\n", s)
}

// printf keeps the first write error; later writes become no-ops
func (t *TextWriter) printf(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.writer, format, args...)
}

func (t *TextWriter) flush() error {
	if t.err == nil {
		t.err = t.writer.Flush()
	}
	return t.err
}

// Close flushes and closes the underlying file, if one was opened
func (t *TextWriter) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.flush()
	if t.file != nil {
		if cerr := t.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Count returns the number of targets written
func (t *TextWriter) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
