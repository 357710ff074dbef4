//go:build linux

package icmp

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// Privileged reports whether raw sockets are likely available
func Privileged() bool {
	return unix.Geteuid() == 0
}

// setDontFragment makes the kernel refuse to fragment outgoing requests
func setDontFragment(pc net.PacketConn) error {
	return control(pc, func(fd int) error {
		return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DO)
	})
}

func setReceiveBuffer(pc net.PacketConn, size int) error {
	return control(pc, func(fd int) error {
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, size)
	})
}

func control(pc net.PacketConn, fn func(fd int) error) error {
	sc, ok := pc.(syscall.Conn)
	if !ok {
		return fmt.Errorf("connection %T has no file descriptor", pc)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("failed to get raw connection: %w", err)
	}

	var setErr error
	if err := rc.Control(func(fd uintptr) {
		setErr = fn(int(fd))
	}); err != nil {
		return fmt.Errorf("failed to control raw connection: %w", err)
	}
	return setErr
}
