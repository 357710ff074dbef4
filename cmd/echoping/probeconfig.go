package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/velemoonkon/echoping/pkg/echo"
	"github.com/velemoonkon/echoping/pkg/icmp"
	"github.com/velemoonkon/echoping/pkg/input"
)

// PingFlags represents the CLI flags shared by the ping subcommands
type PingFlags struct {
	Count    int
	Timeout  time.Duration
	Interval time.Duration

	// ICMP options
	TTL           int
	DontFragment  bool
	SocketScope   string // "attempt" or "run"
	ChecksumOrder string // "network" or "swapped"

	// Echo peer options
	BufferSize     int
	NoDiagnostics  bool
	DiagnosticWait time.Duration
}

func (f PingFlags) validate() error {
	if f.Count < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", f.Count)
	}
	if f.Timeout <= 0 {
		return fmt.Errorf("--timeout must be positive, got %s", f.Timeout)
	}
	if f.Interval < 0 {
		return fmt.Errorf("--interval must not be negative, got %s", f.Interval)
	}
	return nil
}

// ResolveICMPConfig resolves CLI flags to pinger configuration
func ResolveICMPConfig(f PingFlags) (icmp.Config, error) {
	if err := f.validate(); err != nil {
		return icmp.Config{}, err
	}
	if f.TTL < 1 || f.TTL > 255 {
		return icmp.Config{}, fmt.Errorf("--ttl must be between 1 and 255, got %d", f.TTL)
	}

	scope, err := icmp.ParseSocketScope(f.SocketScope)
	if err != nil {
		return icmp.Config{}, err
	}
	if _, err := icmp.ParseChecksumOrder(f.ChecksumOrder); err != nil {
		return icmp.Config{}, err
	}

	return icmp.Config{
		Count:         f.Count,
		Timeout:       f.Timeout,
		Interval:      f.Interval,
		TTL:           f.TTL,
		DontFragment:  f.DontFragment,
		SocketScope:   scope,
		ChecksumOrder: f.ChecksumOrder,
	}, nil
}

// ResolvePeerConfig resolves CLI flags to TCP/UDP client configuration
func ResolvePeerConfig(f PingFlags) (echo.Config, error) {
	if err := f.validate(); err != nil {
		return echo.Config{}, err
	}
	if f.BufferSize < 1 {
		return echo.Config{}, fmt.Errorf("--buffer-size must be positive, got %d", f.BufferSize)
	}
	if f.DiagnosticWait <= 0 {
		return echo.Config{}, fmt.Errorf("--diagnostic-wait must be positive, got %s", f.DiagnosticWait)
	}

	return echo.Config{
		Count:          f.Count,
		Timeout:        f.Timeout,
		Interval:       f.Interval,
		BufferSize:     f.BufferSize,
		DiagnosticWait: f.DiagnosticWait,
		Diagnostics:    !f.NoDiagnostics,
	}, nil
}

// ResolveTargets expands positional targets or a target file. Echo peer
// targets take the port of defaultAddr when none is given, and fall back
// to defaultAddr itself when no target is given at all. ICMP targets pass
// an empty defaultAddr and must not carry ports.
func ResolveTargets(args []string, file, defaultAddr string) ([]string, error) {
	var opts input.Options
	if defaultAddr != "" {
		_, port, err := net.SplitHostPort(defaultAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid default address %q: %w", defaultAddr, err)
		}
		opts.DefaultPort = port
	}

	var (
		targets []string
		err     error
	)
	switch {
	case file != "":
		slog.Debug("reading targets", "file", file)
		targets, err = input.ParseFile(file, opts)
	case len(args) > 0:
		targets, err = input.ParseTargets(args, opts)
	case defaultAddr != "":
		targets = []string{defaultAddr}
	default:
		return nil, errors.New("requires target(s) or -f/--file")
	}
	if err != nil {
		return nil, err
	}

	if len(targets) == 0 {
		return nil, errors.New("no valid targets found")
	}
	return targets, nil
}
