package runner

import (
	"context"

	"github.com/velemoonkon/echoping/pkg/echo"
	"github.com/velemoonkon/echoping/pkg/icmp"
	"github.com/velemoonkon/echoping/pkg/stats"
)

// Probe measures one target from start to finish (icmp, tcp, udp).
// Attempts against a single target are strictly sequential; a Probe may
// be called concurrently for different targets.
type Probe interface {
	// Name returns the probe identifier
	Name() string

	// Run sends the configured requests to target and reports each
	// attempt as it completes. An error means the run was aborted.
	Run(ctx context.Context, target string, onAttempt func(stats.Attempt)) (*stats.Report, error)
}

// RunFunc is the signature shared by Pinger.Run and the echo clients
type RunFunc func(ctx context.Context, target string, onAttempt func(stats.Attempt)) (*stats.Report, error)

// ProbeFunc is a function adapter for Probe interface
type ProbeFunc struct {
	name  string
	runFn RunFunc
}

// NewProbeFunc creates a Probe from a function
func NewProbeFunc(name string, fn RunFunc) Probe {
	return &ProbeFunc{name: name, runFn: fn}
}

func (p *ProbeFunc) Name() string {
	return p.name
}

func (p *ProbeFunc) Run(ctx context.Context, target string, onAttempt func(stats.Attempt)) (*stats.Report, error) {
	return p.runFn(ctx, target, onAttempt)
}

// ICMPProbe wraps a raw socket pinger
func ICMPProbe(p *icmp.Pinger) Probe {
	return NewProbeFunc("icmp", p.Run)
}

// TCPProbe wraps a TCP echo client
func TCPProbe(c *echo.TCPClient) Probe {
	return NewProbeFunc("tcp", c.Run)
}

// UDPProbe wraps a UDP echo client
func UDPProbe(c *echo.UDPClient) Probe {
	return NewProbeFunc("udp", c.Run)
}
