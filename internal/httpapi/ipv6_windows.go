//go:build windows

package httpapi

import "syscall"

// clearIPv6Only is a no-op stand-in on Windows; IPV6_V6ONLY is left
// at its default (enabled).
func clearIPv6Only(network string, c syscall.RawConn) error {
	return nil
}
