package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velemoonkon/echoping/pkg/config"
	"github.com/velemoonkon/echoping/pkg/runner"
	"github.com/velemoonkon/echoping/pkg/stats"
)

const testPeer = "93.184.216.34"

func icmpReport() *stats.Report {
	r := stats.NewReport("icmp", "example.com")
	r.Addr = testPeer
	r.Add(stats.Success(1, stats.Reply{RTT: 10 * time.Millisecond, TTL: 57, Peer: testPeer, Bytes: 36}))
	r.Add(stats.Timeout(2))
	r.Add(stats.Success(3, stats.Reply{RTT: 30 * time.Millisecond, TTL: 57, Peer: testPeer, Bytes: 36}))
	r.Finish()
	return r
}

func replay(s Sink, r *stats.Report) error {
	for _, a := range r.Attempts {
		s.Attempt(r.Target, a)
	}
	return s.Write(&runner.Result{Target: r.Target, Report: r})
}

// =============================================================================
// Text
// =============================================================================

func TestTextWriterICMP(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTextWriter(&buf, "icmp", false)

	require.NoError(t, replay(tw, icmpReport()))
	require.NoError(t, tw.Close())

	want := "Reply from 93.184.216.34: bytes=36 rtt=10.000ms TTL=57 Sequence Number=1\n" +
		"Request timed out.\n" +
		"Reply from 93.184.216.34: bytes=36 rtt=30.000ms TTL=57 Sequence Number=3\n" +
		"\n" +
		"--- Ping statistics ---\n" +
		"3 packets transmitted, 2 received, 33.3% packet loss\n" +
		"rtt min = 10.000 ms, rtt avg = 20.000 ms, rtt max = 30.000 ms\n"
	assert.Equal(t, want, buf.String())
	assert.Equal(t, 1, tw.Count())
}

func TestTextWriterICMPFailures(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTextWriter(&buf, "icmp", false)

	tw.Attempt("h", stats.Failed(1, errors.New("Destination Host Unreachable from 10.0.0.1")))
	tw.Attempt("h", stats.Mismatch(2, testPeer))

	assert.Equal(t, "Destination Host Unreachable from 10.0.0.1\n"+
		"Data mismatch between request and reply\n", buf.String())
}

func TestTextWriterICMPNoReplies(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTextWriter(&buf, "icmp", false)

	r := stats.NewReport("icmp", "h")
	r.Add(stats.Timeout(1))
	r.Add(stats.Timeout(2))
	r.Finish()
	require.NoError(t, tw.Write(&runner.Result{Target: "h", Report: r}))

	assert.Contains(t, buf.String(), "2 packets transmitted, 0 received, 100.0% packet loss\n")
	assert.Contains(t, buf.String(), "rtt min = 0.000 ms, rtt avg = 0.000 ms, rtt max = 0.000 ms\n")
}

func TestTextWriterPeer(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTextWriter(&buf, "udp", false)

	r := stats.NewReport("udp", "127.0.0.1:11001")
	r.Add(stats.Success(1, stats.Reply{RTT: 1500 * time.Microsecond, Response: "PING 1 1700000000.000000"}))
	r.Add(stats.Timeout(2).WithDiagnostic(errors.New("Destination Port Unreachable from 127.0.0.1")))
	r.Add(stats.Timeout(3))
	r.Add(stats.Mismatch(4, "127.0.0.1:11001"))
	r.Add(stats.Failed(5, errors.New("connection refused")))
	r.Finish()

	require.NoError(t, replay(tw, r))

	want := "Received: PING 1 1700000000.000000\n" +
		"RTT for packet 1: 1.500 ms\n" +
		"Request timed out for packet 2\n" +
		"Received ICMP error for packet 2: Destination Port Unreachable from 127.0.0.1\n" +
		"Request timed out for packet 3\n" +
		"Data mismatch between request and reply for packet 4\n" +
		"Error for packet 5: connection refused\n" +
		"\n" +
		"--- Ping Statistics ---\n" +
		"Packets: Sent = 5, Received = 1, Lost = 4 (80.0% loss)\n" +
		"Min RTT = 1.500 ms, Max RTT = 1.500 ms, Avg RTT = 1.500 ms\n"
	assert.Equal(t, want, buf.String())
}

func TestTextWriterPeerNoReplies(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTextWriter(&buf, "tcp", false)

	r := stats.NewReport("tcp", "127.0.0.1:11000")
	r.Add(stats.Timeout(1))
	r.Finish()
	require.NoError(t, tw.Write(&runner.Result{Target: r.Target, Report: r}))

	assert.Equal(t, "\nNo packets were received. All requests timed out.\n", buf.String())
}

func TestTextWriterPrefixAndFailure(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTextWriter(&buf, "icmp", true)

	tw.Attempt("a.example", stats.Timeout(1))
	require.NoError(t, tw.Write(&runner.Result{Target: "b.example", Error: "resolve b.example: no such host"}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"[a.example] Request timed out.",
		"[b.example] Error: resolve b.example: no such host",
	}, lines)

	buf.Reset()
	require.NoError(t, replay(tw, icmpReport()))
	assert.Contains(t, buf.String(), "--- example.com ping statistics ---\n")
	assert.Contains(t, buf.String(), "[example.com] Request timed out.\n")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestTextWriterKeepsFirstError(t *testing.T) {
	tw := NewTextWriter(failingWriter{}, "icmp", false)
	tw.Attempt("h", stats.Timeout(1))

	err := tw.Write(&runner.Result{Target: "h", Report: icmpReport()})
	assert.EqualError(t, err, "disk full")
	assert.EqualError(t, tw.Close(), "disk full")
}

// =============================================================================
// JSONL
// =============================================================================

func TestNewWriter(t *testing.T) {
	for _, name := range []string{"-", ""} {
		w, err := NewWriter(name, 0)
		require.NoError(t, err)
		assert.Same(t, os.Stdout, w.file)
		// Close must not close stdout
		require.NoError(t, w.Close())
	}
}

func TestNewWriterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jsonl")

	w, err := NewWriter(path, 1024)
	require.NoError(t, err)
	require.NoError(t, replay(w, icmpReport()))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("\n")))
}

func TestWriterWrite(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriterFromWriter(&buf)

	require.NoError(t, replay(w, icmpReport()))
	require.NoError(t, w.Write(&runner.Result{Target: "gone.example", Error: "resolve failed"}))
	assert.Equal(t, 2, w.Count())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first struct {
		Target string `json:"target"`
		Report struct {
			RunID    string `json:"run_id"`
			Probe    string `json:"probe"`
			Addr     string `json:"addr"`
			Attempts []struct {
				Seq    int     `json:"seq"`
				Status string  `json:"status"`
				RTTMs  float64 `json:"rtt_ms"`
			} `json:"attempts"`
			Summary struct {
				Sent        int     `json:"packets_sent"`
				Received    int     `json:"packets_recv"`
				LossPercent float64 `json:"packet_loss_percent"`
				AvgRTTMs    float64 `json:"avg_rtt_ms"`
			} `json:"summary"`
		} `json:"report"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "example.com", first.Target)
	assert.NotEmpty(t, first.Report.RunID)
	assert.Equal(t, "icmp", first.Report.Probe)
	assert.Equal(t, testPeer, first.Report.Addr)
	require.Len(t, first.Report.Attempts, 3)
	assert.Equal(t, "timeout", first.Report.Attempts[1].Status)
	assert.InDelta(t, 10.0, first.Report.Attempts[0].RTTMs, 1e-9)
	assert.Equal(t, 2, first.Report.Summary.Received)
	assert.InDelta(t, 20.0, first.Report.Summary.AvgRTTMs, 1e-9)
	assert.Empty(t, first.Error)

	// failed runs carry no report at all
	assert.JSONEq(t, `{"target":"gone.example","error":"resolve failed"}`, lines[1])
}

// =============================================================================
// Parquet
// =============================================================================

func TestParquetWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.parquet")

	pw, err := NewParquetWriter(path, 2)
	require.NoError(t, err)

	require.NoError(t, replay(pw, icmpReport()))
	require.NoError(t, pw.Write(&runner.Result{Target: "gone.example", Error: "resolve failed"}))
	assert.Equal(t, 4, pw.Count())
	require.NoError(t, pw.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), 4)
	assert.Equal(t, "PAR1", string(data[:4]))

	rows, err := parquet.ReadFile[AttemptRow](path)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, "example.com", rows[0].Target)
	assert.Equal(t, "icmp", rows[0].Probe)
	assert.Equal(t, int32(1), rows[0].Seq)
	assert.Equal(t, "success", rows[0].Status)
	assert.InDelta(t, 10.0, rows[0].RTTMs, 1e-9)
	assert.Equal(t, int32(57), rows[0].TTL)
	assert.Equal(t, "timeout", rows[1].Status)
	assert.Equal(t, rows[0].RunID, rows[2].RunID)

	assert.Equal(t, "gone.example", rows[3].Target)
	assert.Equal(t, "resolve failed", rows[3].RunError)
	assert.Zero(t, rows[3].Seq)
}

func TestResultToRows(t *testing.T) {
	r := stats.NewReport("udp", "127.0.0.1:11001")
	r.Add(stats.Timeout(1).WithDiagnostic(errors.New("Destination Port Unreachable")))
	r.Finish()

	rows := resultToRows(&runner.Result{Target: r.Target, Report: r})
	require.Len(t, rows, 1)
	assert.Equal(t, "udp", rows[0].Probe)
	assert.Equal(t, "timeout", rows[0].Status)
	assert.Equal(t, "request timed out", rows[0].Error)
	assert.Equal(t, "Destination Port Unreachable", rows[0].Diagnostic)
	assert.Equal(t, r.StartedAt.UnixMilli(), rows[0].StartedAtMs)
}

func TestResultToRowsEmptyReport(t *testing.T) {
	r := stats.NewReport("tcp", "h:1")
	r.Finish()

	rows := resultToRows(&runner.Result{Target: "h:1", Report: r})
	require.Len(t, rows, 1)
	assert.Equal(t, r.RunID, rows[0].RunID)
	assert.Empty(t, rows[0].Status)
}

// =============================================================================
// Sink selection
// =============================================================================

func TestNew(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.OutputConfig
		want    any
		wantErr bool
	}{
		{name: "text stdout", cfg: config.OutputConfig{Format: "text"}, want: &TextWriter{}},
		{name: "default is text", cfg: config.OutputConfig{}, want: &TextWriter{}},
		{name: "text file", cfg: config.OutputConfig{Format: "text", File: filepath.Join(dir, "out.txt")}, want: &TextWriter{}},
		{name: "jsonl", cfg: config.OutputConfig{Format: "jsonl", File: filepath.Join(dir, "out.jsonl")}, want: &Writer{}},
		{name: "parquet", cfg: config.OutputConfig{Format: "parquet", File: filepath.Join(dir, "out.parquet")}, want: &ParquetWriter{}},
		{name: "parquet needs a file", cfg: config.OutputConfig{Format: "parquet"}, wantErr: true},
		{name: "unknown", cfg: config.OutputConfig{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg, "icmp", false)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
			assert.NoError(t, s.Close())
		})
	}

	_, err := New(config.OutputConfig{Format: "xml"}, "icmp", false)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestHandlersRouteToSink(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTextWriter(&buf, "icmp", true)
	h := Handlers(tw)

	h.OnAttempt("h", stats.Timeout(1))
	require.NoError(t, h.OnResult(&runner.Result{Target: "h", Error: "boom"}))

	assert.Equal(t, "[h] Request timed out.\n[h] Error: boom\n", buf.String())
}

func TestTextWriterSingleTargetFailureIsSilent(t *testing.T) {
	var buf bytes.Buffer
	tw := NewTextWriter(&buf, "tcp", false)

	require.NoError(t, tw.Write(&runner.Result{Target: "h:1", Error: "boom"}))
	assert.Empty(t, buf.String())
	assert.Equal(t, 1, tw.Count())
}
