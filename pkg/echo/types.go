// Package echo implements the TCP and UDP echo peers: clients that time
// "ping <seq> <ts>" exchanges and servers that return them upper-cased.
package echo

import "time"

const (
	probeTCP = "tcp"
	probeUDP = "udp"
)

// Config contains echo client configuration
type Config struct {
	Count      int           // Number of requests
	Timeout    time.Duration // Wait per request, connect included for TCP
	Interval   time.Duration // Delay between requests
	BufferSize int           // Read buffer size

	// DiagnosticWait bounds the raw ICMP read after a UDP timeout
	DiagnosticWait time.Duration
	// Diagnostics enables the raw ICMP side socket for UDP
	Diagnostics bool
}

// DefaultConfig returns the defaults of the reference clients
func DefaultConfig() Config {
	return Config{
		Count:          10,
		Timeout:        time.Second,
		Interval:       0,
		BufferSize:     1024,
		DiagnosticWait: 50 * time.Millisecond,
		Diagnostics:    true,
	}
}

func (c Config) withDefaults() Config {
	if c.Count == 0 {
		c.Count = 10
	}
	if c.Timeout == 0 {
		c.Timeout = time.Second
	}
	if c.BufferSize == 0 {
		c.BufferSize = 1024
	}
	if c.DiagnosticWait == 0 {
		c.DiagnosticWait = 50 * time.Millisecond
	}
	return c
}
