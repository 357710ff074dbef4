package runner

import "github.com/velemoonkon/echoping/pkg/stats"

// Result is the outcome of one target's run
type Result struct {
	Target string        `json:"target"`
	Report *stats.Report `json:"report,omitzero"`
	Error  string        `json:"error,omitzero"` // Fatal error that aborted the run

	err error
}

// Err returns the error that aborted the run, if any
func (r *Result) Err() error {
	return r.err
}

// Handlers receive runner output. OnAttempt is called from worker
// goroutines and must be safe for concurrent use; OnResult is called
// from a single collector goroutine.
type Handlers struct {
	OnAttempt func(target string, a stats.Attempt)
	OnResult  func(*Result) error
}

// Config contains runner configuration
type Config struct {
	Workers   int // Targets measured concurrently (0 or negative = auto: max(4, 4*GOMAXPROCS))
	RateLimit int // Max targets started per second (0 or negative = no limit, uses rate.Inf)
	Quiet     bool
}

// DefaultConfig returns default runner configuration
func DefaultConfig() Config {
	return Config{
		Workers:   4,
		RateLimit: 0,
		Quiet:     false,
	}
}
