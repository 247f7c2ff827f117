//go:build !windows

package httpapi

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// clearIPv6Only disables IPV6_V6ONLY on an IPv6 TCP listener so it
// also accepts IPv4-mapped connections, per spec.md §6 ("IPv6 is
// opt-in; when enabled and available, IPV6_V6ONLY is disabled").
func clearIPv6Only(network string, c syscall.RawConn) error {
	if network != "tcp6" && network != "tcp" {
		return nil
	}
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
	})
	if err != nil {
		return err
	}
	// Best-effort: a pure IPv4 socket has no IPV6_V6ONLY option.
	_ = sockErr
	return nil
}
