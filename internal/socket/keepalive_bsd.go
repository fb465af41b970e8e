//go:build freebsd || dragonfly || darwin || netbsd || openbsd

package socket

import "golang.org/x/sys/unix"

func setKeepAliveInterval(fd, secs int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPALIVE, secs)
}
