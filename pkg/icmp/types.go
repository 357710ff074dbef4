package icmp

import (
	"fmt"
	"time"
)

// SocketScope controls how long a raw socket lives
type SocketScope string

const (
	// ScopeAttempt opens a fresh socket for every attempt
	ScopeAttempt SocketScope = "attempt"
	// ScopeRun shares one socket across all attempts of a run
	ScopeRun SocketScope = "run"
)

// ParseSocketScope validates a configured scope name
func ParseSocketScope(s string) (SocketScope, error) {
	switch SocketScope(s) {
	case "", ScopeAttempt:
		return ScopeAttempt, nil
	case ScopeRun:
		return ScopeRun, nil
	default:
		return "", fmt.Errorf("unknown socket scope %q (want %s or %s)", s, ScopeAttempt, ScopeRun)
	}
}

// Config contains ICMP ping configuration
type Config struct {
	Count         int           // Number of echo requests per host
	Timeout       time.Duration // Wait budget per attempt
	Interval      time.Duration // Delay between attempts
	TTL           int           // TTL of outgoing requests
	DontFragment  bool          // Set DF on outgoing requests
	SocketScope   SocketScope   // attempt or run
	ChecksumOrder string        // network or swapped
}

// DefaultConfig returns the classic ping behaviour: ten requests, one
// second apart, one second to answer each
func DefaultConfig() Config {
	return Config{
		Count:         10,
		Timeout:       time.Second,
		Interval:      time.Second,
		TTL:           defaultTTL,
		SocketScope:   ScopeAttempt,
		ChecksumOrder: ChecksumOrderNetwork,
	}
}
