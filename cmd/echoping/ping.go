package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/velemoonkon/echoping/pkg/config"
	"github.com/velemoonkon/echoping/pkg/echo"
	"github.com/velemoonkon/echoping/pkg/icmp"
	"github.com/velemoonkon/echoping/pkg/output"
	"github.com/velemoonkon/echoping/pkg/resolve"
	"github.com/velemoonkon/echoping/pkg/runner"
)

func newICMPCmd(g *globalFlags) *cobra.Command {
	var pf PingFlags

	cmd := &cobra.Command{
		Use:   "icmp [flags] <target>...",
		Short: "Ping hosts with raw ICMP Echo requests",
		Example: `  # Ten pings, one second apart
  sudo echoping icmp example.com

  # A /24 sweep, 3 pings each, 64 hosts at a time
  sudo echoping icmp 192.0.2.0/24 -c 3 -i 0 -w 64 --format jsonl -o sweep.jsonl

  # Resolve through a specific DNS server
  sudo echoping icmp example.com --dns-server 1.1.1.1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ResolveICMPConfig(pf)
			if err != nil {
				return err
			}
			targets, err := ResolveTargets(args, g.file, "")
			if err != nil {
				return err
			}

			pinger, err := icmp.NewPinger(cfg)
			if err != nil {
				return err
			}
			pinger.Metrics = metricsStore(g)
			if g.dnsServer != "" {
				pinger.Resolver = resolve.NewDNS(g.dnsServer, g.dnsTimeout)
			}
			if !icmp.Privileged() {
				slog.Warn("raw ICMP sockets usually need root or CAP_NET_RAW")
			}

			return runProbe(cmd, g, runner.ICMPProbe(pinger), targets)
		},
	}

	addRunFlags(cmd, g)
	f := cmd.Flags()
	f.IntVarP(&pf.Count, "count", "c", config.ICMP.Count, "Echo requests per target")
	f.DurationVarP(&pf.Timeout, "timeout", "t", config.ICMP.Timeout, "Wait for each reply")
	f.DurationVarP(&pf.Interval, "interval", "i", config.ICMP.Interval, "Delay between requests")
	f.IntVar(&pf.TTL, "ttl", config.ICMP.TTL, "TTL of outgoing requests")
	f.BoolVar(&pf.DontFragment, "dont-fragment", config.ICMP.DontFragment, "Set the DF bit")
	f.StringVar(&pf.SocketScope, "socket-scope", config.ICMP.SocketScope, "Raw socket lifetime: attempt, run")
	f.StringVar(&pf.ChecksumOrder, "checksum-order", config.ICMP.ChecksumOrder, "Checksum byte order: network, swapped")
	f.StringVar(&g.dnsServer, "dns-server", config.Runner.DNSServer, "Resolve targets through this DNS server instead of the system resolver")
	f.DurationVar(&g.dnsTimeout, "dns-timeout", config.Runner.DNSTimeout, "DNS query timeout")
	return cmd
}

func newTCPCmd(g *globalFlags) *cobra.Command {
	var pf PingFlags

	cmd := &cobra.Command{
		Use:   "tcp [flags] [target[:port]]...",
		Short: "Ping echoping TCP servers",
		Example: `  # Against a local "echoping serve tcp"
  echoping tcp

  # Two servers, bare hosts use the default port
  echoping tcp 10.0.0.5 10.0.0.6:7000 -c 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ResolvePeerConfig(pf)
			if err != nil {
				return err
			}
			targets, err := ResolveTargets(args, g.file, config.Peer.TCPAddr)
			if err != nil {
				return err
			}

			client := echo.NewTCPClient(cfg)
			client.Metrics = metricsStore(g)
			return runProbe(cmd, g, runner.TCPProbe(client), targets)
		},
	}

	addRunFlags(cmd, g)
	addPeerFlags(cmd, &pf)
	return cmd
}

func newUDPCmd(g *globalFlags) *cobra.Command {
	var pf PingFlags

	cmd := &cobra.Command{
		Use:   "udp [flags] [target[:port]]...",
		Short: "Ping echoping UDP servers",
		Example: `  # Against a local "echoping serve udp"
  echoping udp

  # Without the raw ICMP side socket (no root needed)
  echoping udp 10.0.0.5 --no-diagnostics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ResolvePeerConfig(pf)
			if err != nil {
				return err
			}
			targets, err := ResolveTargets(args, g.file, config.Peer.UDPAddr)
			if err != nil {
				return err
			}

			client := echo.NewUDPClient(cfg)
			client.Metrics = metricsStore(g)
			return runProbe(cmd, g, runner.UDPProbe(client), targets)
		},
	}

	addRunFlags(cmd, g)
	addPeerFlags(cmd, &pf)
	f := cmd.Flags()
	f.BoolVar(&pf.NoDiagnostics, "no-diagnostics", !config.Peer.Diagnostics, "Skip the raw ICMP read after a timeout")
	f.DurationVar(&pf.DiagnosticWait, "diagnostic-wait", config.Peer.DiagnosticWait, "How long the ICMP read after a timeout waits")
	return cmd
}

func addPeerFlags(cmd *cobra.Command, pf *PingFlags) {
	f := cmd.Flags()
	f.IntVarP(&pf.Count, "count", "c", config.Peer.Count, "Requests per target")
	f.DurationVarP(&pf.Timeout, "timeout", "t", config.Peer.Timeout, "Wait for each reply, connect included")
	f.DurationVarP(&pf.Interval, "interval", "i", config.Peer.Interval, "Delay between requests")
	f.IntVar(&pf.BufferSize, "buffer-size", config.Peer.BufferSize, "Receive buffer size")
	// TCP has no --diagnostic-wait flag
	pf.DiagnosticWait = config.Peer.DiagnosticWait
}

// runProbe measures targets with probe and writes the configured output.
// Interrupts stop the run early; partial summaries are still written.
func runProbe(cmd *cobra.Command, g *globalFlags, probe runner.Probe, targets []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, egCtx := errgroup.WithContext(ctx)
	metricsCtx, stopMetrics := context.WithCancel(egCtx)
	defer stopMetrics()
	if g.metricsAddr != "" {
		ln, err := net.Listen("tcp", g.metricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		eg.Go(func() error { return serveMetrics(metricsCtx, ln) })
	}

	sink, err := output.New(config.OutputConfig{
		Format:     g.format,
		File:       g.output,
		BufferSize: config.Output.BufferSize,
		RowGroup:   config.Output.RowGroup,
	}, probe.Name(), len(targets) > 1)
	if err != nil {
		stopMetrics()
		eg.Wait()
		return err
	}

	r := runner.New(runner.Config{
		Workers:   g.workers,
		RateLimit: g.rate,
		Quiet:     g.quiet || len(targets) == 1,
	}, probe)

	var failed []*runner.Result
	h := output.Handlers(sink)
	write := h.OnResult
	h.OnResult = func(res *runner.Result) error {
		if res.Err() != nil {
			failed = append(failed, res)
		}
		return write(res)
	}

	slog.Debug("starting run", "probe", probe.Name(), "targets", len(targets), "workers", r.Config().Workers)
	start := time.Now()

	var count int
	eg.Go(func() error {
		defer stopMetrics()
		var runErr error
		count, runErr = r.Stream(egCtx, slices.Values(targets), h)
		if closeErr := sink.Close(); closeErr != nil && runErr == nil {
			runErr = closeErr
		}
		if runErr != nil && ctx.Err() == nil {
			return fmt.Errorf("run failed: %w", runErr)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	slog.Debug("run completed", "targets", count, "failed", len(failed), "duration", time.Since(start).Round(time.Millisecond))

	switch {
	case len(failed) == 0:
		return nil
	case len(targets) == 1:
		return failed[0].Err()
	default:
		return fmt.Errorf("%d of %d targets failed", len(failed), len(targets))
	}
}
