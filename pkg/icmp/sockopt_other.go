//go:build !linux

package icmp

import (
	"errors"
	"net"
	"os"
)

var errUnsupported = errors.New("socket option not supported on this platform")

// Privileged reports whether raw sockets are likely available
func Privileged() bool {
	return os.Geteuid() == 0
}

func setDontFragment(net.PacketConn) error {
	return errUnsupported
}

func setReceiveBuffer(net.PacketConn, int) error {
	return errUnsupported
}
