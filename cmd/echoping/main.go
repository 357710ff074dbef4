package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/velemoonkon/echoping/pkg/config"
	"github.com/velemoonkon/echoping/pkg/metrics"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	// Input
	file string

	// Output
	output string
	format string

	// Performance
	workers int
	rate    int

	// Resolution
	dnsServer  string
	dnsTimeout time.Duration

	// Observability
	metricsAddr string
	quiet       bool
	verbose     bool
}

// newRootCmd builds the command tree. Flag defaults come from the
// environment, so config.Init must run first.
func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "echoping",
		Short: "Round-trip latency over ICMP, TCP and UDP",
		Long: `echoping - measure reachability and round-trip time

Probes:
  • icmp - raw ICMP Echo (requires root or CAP_NET_RAW)
  • tcp  - connect and echo against an echoping TCP server
  • udp  - datagram echo, with ICMP error sniffing on timeout

Each target gets a sequential run of requests and a loss/RTT summary.
Several targets run concurrently.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initLogger(g.verbose, g.quiet)
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("echoping %s (commit: %s, built: %s)\n", version, commit, date))

	pf := root.PersistentFlags()
	pf.StringVar(&g.metricsAddr, "metrics-addr", config.Runner.MetricsAddr, "Serve Prometheus metrics on this address (e.g. :9090)")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "Suppress progress output")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "Verbose logging")

	root.AddCommand(
		newICMPCmd(g),
		newTCPCmd(g),
		newUDPCmd(g),
		newServeCmd(g),
	)
	return root
}

// addRunFlags registers the multi-target flags of a ping subcommand
func addRunFlags(cmd *cobra.Command, g *globalFlags) {
	f := cmd.Flags()

	f.StringVarP(&g.file, "file", "f", "", "Read targets from file (one per line)")

	f.StringVarP(&g.output, "output", "o", config.Output.File, "Output file (- or empty for stdout)")
	f.StringVar(&g.format, "format", config.Output.Format, "Output format: text, jsonl, parquet")

	f.IntVarP(&g.workers, "workers", "w", config.Runner.Workers, "Targets measured concurrently (0 = auto)")
	f.IntVarP(&g.rate, "rate", "r", config.Runner.RateLimit, "Max targets started per second (0 = unlimited)")
}

func initLogger(verbose, quiet bool) {
	var level slog.Level
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// metricsStore returns the shared store, or nil when metrics are off
func metricsStore(g *globalFlags) *metrics.Store {
	if g.metricsAddr == "" {
		return nil
	}
	return metrics.Default()
}

// serveMetrics serves /metrics on ln until ctx is done
func serveMetrics(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	slog.Info("serving metrics", "addr", ln.Addr().String())
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func main() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
