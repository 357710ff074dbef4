package echo

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

var (
	// ErrResolve aborts a run whose target address cannot be resolved
	ErrResolve = errors.New("echo: address resolution failed")
	// ErrSocket aborts a run whose client socket cannot be opened
	ErrSocket = errors.New("echo: socket failure")
)

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// pause waits d or until ctx is done
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
