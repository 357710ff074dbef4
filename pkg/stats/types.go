package stats

import (
	"time"

	"github.com/google/uuid"
)

// Status is the terminal outcome of a single ping attempt
type Status string

const (
	StatusSuccess  Status = "success"
	StatusTimeout  Status = "timeout"
	StatusError    Status = "error"
	StatusMismatch Status = "mismatch"
)

// Attempt is the immutable record of one request/response exchange.
// Build it with the Success, Timeout, Failed and Mismatch constructors.
type Attempt struct {
	Seq      int           `json:"seq"`
	Status   Status        `json:"status"`
	RTT      time.Duration `json:"-"`
	RTTMs    float64       `json:"rtt_ms,omitzero"`
	TTL      int           `json:"ttl,omitzero"`
	Peer     string        `json:"peer,omitzero"`
	Bytes    int           `json:"bytes,omitzero"`
	Response string        `json:"response,omitzero"`
	Error    string        `json:"error,omitzero"`

	// Diagnostic is a best-effort observation made after the outcome was
	// decided (e.g. an ICMP error sniffed after a UDP timeout). It never
	// changes Status.
	Diagnostic string `json:"diagnostic,omitzero"`

	err           error
	diagnosticErr error
}

// Reply carries the details of a successful exchange
type Reply struct {
	RTT      time.Duration
	TTL      int
	Peer     string
	Bytes    int
	Response string
}

// Success records a matched reply
func Success(seq int, r Reply) Attempt {
	return Attempt{
		Seq:      seq,
		Status:   StatusSuccess,
		RTT:      r.RTT,
		RTTMs:    durationMs(r.RTT),
		TTL:      r.TTL,
		Peer:     r.Peer,
		Bytes:    r.Bytes,
		Response: r.Response,
	}
}

// Timeout records an attempt whose wait budget ran out
func Timeout(seq int) Attempt {
	return Attempt{Seq: seq, Status: StatusTimeout, Error: "request timed out"}
}

// Failed records an attempt that ended with an error (ICMP error message,
// refused connection, send failure)
func Failed(seq int, err error) Attempt {
	a := Attempt{Seq: seq, Status: StatusError, err: err}
	if err != nil {
		a.Error = err.Error()
	}
	return a
}

// Mismatch records a reply that correlated with the request but carried
// different data
func Mismatch(seq int, peer string) Attempt {
	return Attempt{
		Seq:    seq,
		Status: StatusMismatch,
		Peer:   peer,
		Error:  "data mismatch between request and reply",
	}
}

// WithDiagnostic returns a copy of a with a diagnostic attached
func (a Attempt) WithDiagnostic(err error) Attempt {
	if err == nil {
		return a
	}
	a.diagnosticErr = err
	a.Diagnostic = err.Error()
	return a
}

// Err returns the error that ended the attempt, if any. Use errors.As to
// recover typed ICMP errors.
func (a Attempt) Err() error {
	return a.err
}

// DiagnosticErr returns the diagnostic error attached to the attempt
func (a Attempt) DiagnosticErr() error {
	return a.diagnosticErr
}

// OK reports whether the attempt received a valid reply
func (a Attempt) OK() bool {
	return a.Status == StatusSuccess
}

// Summary aggregates a run. It is always derived fresh from the attempts.
type Summary struct {
	Sent        int           `json:"packets_sent"`
	Received    int           `json:"packets_recv"`
	Lost        int           `json:"packets_lost"`
	LossPercent float64       `json:"packet_loss_percent"`
	MinRTT      time.Duration `json:"-"`
	MinRTTMs    float64       `json:"min_rtt_ms"`
	AvgRTT      time.Duration `json:"-"`
	AvgRTTMs    float64       `json:"avg_rtt_ms"`
	MaxRTT      time.Duration `json:"-"`
	MaxRTTMs    float64       `json:"max_rtt_ms"`
}

// Report is the complete result of one run against one target
type Report struct {
	RunID     string        `json:"run_id"`
	Probe     string        `json:"probe"`
	Target    string        `json:"target"`
	Addr      string        `json:"addr,omitzero"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"-"`
	ElapsedMs int64         `json:"elapsed_ms"`
	Attempts  []Attempt     `json:"attempts"`
	Summary   Summary       `json:"summary"`
}

// NewReport starts a report for probe against target
func NewReport(probe, target string) *Report {
	return &Report{
		RunID:     uuid.New().String(),
		Probe:     probe,
		Target:    target,
		StartedAt: time.Now(),
		Attempts:  make([]Attempt, 0),
	}
}

// Add appends an attempt
func (r *Report) Add(a Attempt) {
	r.Attempts = append(r.Attempts, a)
}

// Finish computes the summary and elapsed time
func (r *Report) Finish() {
	r.Summary = Summarize(r.Attempts)
	r.Duration = time.Since(r.StartedAt)
	r.ElapsedMs = r.Duration.Milliseconds()
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
