package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/velemoonkon/echoping/pkg/config"
	"github.com/velemoonkon/echoping/pkg/echo"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		tcpAddr    string
		udpAddr    string
		bufferSize int
	)

	cmd := &cobra.Command{
		Use:   "serve [tcp|udp]",
		Short: "Run the upper-casing echo servers (both by default)",
		Example: `  # TCP on 127.0.0.1:11000 and UDP on 127.0.0.1:11001
  echoping serve

  # UDP only, on all interfaces, with metrics
  echoping serve udp --udp-addr :11001 --metrics-addr :9090`,
		ValidArgs: []string{"tcp", "udp"},
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if bufferSize < 1 {
				return fmt.Errorf("--buffer-size must be positive, got %d", bufferSize)
			}
			wantTCP := len(args) == 0 || args[0] == "tcp"
			wantUDP := len(args) == 0 || args[0] == "udp"

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, g, serveOptions{
				tcpAddr:    pick(wantTCP, tcpAddr),
				udpAddr:    pick(wantUDP, udpAddr),
				bufferSize: bufferSize,
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&tcpAddr, "tcp-addr", config.Peer.TCPAddr, "TCP listen address")
	f.StringVar(&udpAddr, "udp-addr", config.Peer.UDPAddr, "UDP listen address")
	f.IntVar(&bufferSize, "buffer-size", config.Peer.BufferSize, "Read buffer size")
	return cmd
}

func pick(want bool, addr string) string {
	if !want {
		return ""
	}
	return addr
}

// serveOptions selects the servers to run; an empty address disables one
type serveOptions struct {
	tcpAddr    string
	udpAddr    string
	bufferSize int
}

// serve runs the selected servers until ctx is done. Every listener is
// bound before any server starts, so a bad address fails fast. A server
// error stops the others.
func serve(ctx context.Context, g *globalFlags, opts serveOptions) error {
	var closers []func() error
	fail := func(err error) error {
		for _, c := range closers {
			c()
		}
		return err
	}

	var (
		ln  net.Listener
		pc  net.PacketConn
		mln net.Listener
		err error
	)
	if opts.tcpAddr != "" {
		if ln, err = net.Listen("tcp4", opts.tcpAddr); err != nil {
			return fail(fmt.Errorf("listen tcp %s: %w", opts.tcpAddr, err))
		}
		closers = append(closers, ln.Close)
	}
	if opts.udpAddr != "" {
		if pc, err = net.ListenPacket("udp4", opts.udpAddr); err != nil {
			return fail(fmt.Errorf("listen udp %s: %w", opts.udpAddr, err))
		}
		closers = append(closers, pc.Close)
	}
	if g.metricsAddr != "" {
		if mln, err = net.Listen("tcp", g.metricsAddr); err != nil {
			return fail(fmt.Errorf("metrics listener: %w", err))
		}
	}

	store := metricsStore(g)
	eg, ctx := errgroup.WithContext(ctx)

	if ln != nil {
		srv := echo.NewTCPServer()
		srv.Metrics = store
		srv.BufferSize = opts.bufferSize
		eg.Go(func() error { return srv.Serve(ctx, ln) })
	}
	if pc != nil {
		srv := echo.NewUDPServer()
		srv.Metrics = store
		srv.BufferSize = opts.bufferSize
		eg.Go(func() error { return srv.Serve(ctx, pc) })
	}
	if mln != nil {
		eg.Go(func() error { return serveMetrics(ctx, mln) })
	}

	return eg.Wait()
}
