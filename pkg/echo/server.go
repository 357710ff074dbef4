package echo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"syscall"

	"github.com/velemoonkon/echoping/pkg/metrics"
)

// TCPServer echoes upper-cased payloads back to each connection
type TCPServer struct {
	Logger     *slog.Logger
	Metrics    *metrics.Store
	BufferSize int
}

// NewTCPServer creates a TCP echo server
func NewTCPServer() *TCPServer {
	return &TCPServer{Logger: slog.Default(), BufferSize: 1024}
}

// Serve accepts connections on ln until ctx is cancelled. Each connection
// is handled by its own goroutine; a client reset or close ends only that
// handler. Serve closes ln and waits for handlers before returning.
func (s *TCPServer) Serve(ctx context.Context, ln net.Listener) error {
	logger := s.Logger.With("component", "tcp-server", "addr", ln.Addr().String())

	var wg sync.WaitGroup
	defer wg.Wait()

	// Listener and handlers close when Serve returns, whatever the reason
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	context.AfterFunc(ctx, func() { ln.Close() })

	logger.Info("server is running")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		s.Metrics.RecordServerConnection(probeTCP)
		logger.Info("ping received", "from", conn.RemoteAddr().String())
		wg.Go(func() {
			s.handle(ctx, conn, logger)
		})
	}
}

func (s *TCPServer) handle(ctx context.Context, conn net.Conn, logger *slog.Logger) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	size := s.BufferSize
	if size <= 0 {
		size = 1024
	}
	buf := make([]byte, size)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(bytes.ToUpper(buf[:n])); werr != nil {
				logger.Debug("connection closed", "from", conn.RemoteAddr().String(), "error", werr)
				return
			}
			s.Metrics.RecordServerEcho(probeTCP)
		}
		if err != nil {
			if !peerGone(err) {
				logger.Debug("read failed", "from", conn.RemoteAddr().String(), "error", err)
			}
			return
		}
	}
}

func peerGone(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// UDPServer echoes upper-cased datagrams back to their sender
type UDPServer struct {
	Logger     *slog.Logger
	Metrics    *metrics.Store
	BufferSize int
}

// NewUDPServer creates a UDP echo server
func NewUDPServer() *UDPServer {
	return &UDPServer{Logger: slog.Default(), BufferSize: 1024}
}

// Serve reads datagrams from pc until ctx is cancelled
func (s *UDPServer) Serve(ctx context.Context, pc net.PacketConn) error {
	logger := s.Logger.With("component", "udp-server", "addr", pc.LocalAddr().String())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	context.AfterFunc(ctx, func() { pc.Close() })

	size := s.BufferSize
	if size <= 0 {
		size = 1024
	}
	buf := make([]byte, size)

	logger.Info("server is running")
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		logger.Debug("ping received", "from", addr.String())
		if _, err := pc.WriteTo(bytes.ToUpper(buf[:n]), addr); err != nil {
			logger.Debug("reply failed", "to", addr.String(), "error", err)
			continue
		}
		s.Metrics.RecordServerEcho(probeUDP)
	}
}
