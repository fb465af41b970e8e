// Copyright (c) 2019 Andy Pan
// Copyright (c) 2024 The raktr Authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

//go:build linux || freebsd || dragonfly || darwin || netbsd || openbsd

// Package socket creates and configures the non-blocking AF_INET/AF_UNIX
// stream sockets the reactor registers with its poller. Every socket it
// hands back is already set O_NONBLOCK; the reactor never touches a
// blocking fd.
package socket

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	rerrors "github.com/qadron/raktr/errors"
)

// Option applies one setsockopt call during connect/listen.
type Option struct {
	SetSockopt func(fd, opt int) error
	Opt        int
}

// SetNoDelay disables Nagle's algorithm.
func SetNoDelay(fd, opt int) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, opt)
}

// SetKeepAlive enables SO_KEEPALIVE with the given idle interval in seconds.
func SetKeepAlive(fd, secs int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return err
	}
	return setKeepAliveInterval(fd, secs)
}

// SetRecvBuffer sets SO_RCVBUF.
func SetRecvBuffer(fd, bytes int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
}

// SetSendBuffer sets SO_SNDBUF.
func SetSendBuffer(fd, bytes int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, bytes)
}

func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

func applyOptions(fd int, opts []Option) error {
	for _, o := range opts {
		if o.SetSockopt == nil {
			continue
		}
		if err := o.SetSockopt(fd, o.Opt); err != nil {
			return err
		}
	}
	return nil
}

// TCPConnect starts a non-blocking connect(2) to addr ("host:port"). The fd
// is returned immediately; completion (or failure) is detected later by the
// poller reporting the socket writable. A transient EINPROGRESS is treated
// as success here and swallowed, matching spec §4.3 ("the transient 'would
// block' signal is swallowed").
func TCPConnect(addr string, opts ...Option) (fd int, sa unix.Sockaddr, resolved net.Addr, err error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, nil, nil, rerrors.Translate("resolve", err)
	}
	resolved = tcpAddr

	family := unix.AF_INET
	sa4 := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		family = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(sa6.Addr[:], tcpAddr.IP.To16())
		sa = sa6
	}

	fd, err = unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, nil, resolved, rerrors.Translate("socket", err)
	}
	if err = setNonblock(fd); err != nil {
		_ = unix.Close(fd)
		return -1, nil, resolved, rerrors.Translate("nonblock", err)
	}
	if err = applyOptions(fd, opts); err != nil {
		_ = unix.Close(fd)
		return -1, nil, resolved, rerrors.Translate("setsockopt", err)
	}

	if err = unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return -1, nil, resolved, rerrors.Translate("connect", err)
	}

	return fd, sa, resolved, nil
}

// TCPListen binds and listens on addr ("host:port").
func TCPListen(addr string, backlog int, opts ...Option) (fd int, resolved net.Addr, err error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, nil, rerrors.Translate("resolve", err)
	}

	family := unix.AF_INET
	var sa unix.Sockaddr
	sa4 := &unix.SockaddrInet4{Port: tcpAddr.Port}
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		family = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		if len(tcpAddr.IP) > 0 {
			copy(sa6.Addr[:], tcpAddr.IP.To16())
		}
		sa = sa6
	}

	fd, err = unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, nil, rerrors.Translate("socket", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err = setNonblock(fd); err != nil {
		_ = unix.Close(fd)
		return -1, nil, rerrors.Translate("nonblock", err)
	}
	if err = applyOptions(fd, opts); err != nil {
		_ = unix.Close(fd)
		return -1, nil, rerrors.Translate("setsockopt", err)
	}
	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, nil, rerrors.Translate("bind", err)
	}
	if err = unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, nil, rerrors.Translate("listen", err)
	}

	if bound, gerr := unix.Getsockname(fd); gerr == nil {
		if addr := SockaddrToAddr("tcp", bound); addr != nil {
			return fd, addr, nil
		}
	}
	return fd, tcpAddr, nil
}

// UnixConnect opens a non-blocking stream UNIX-domain connect to path.
func UnixConnect(path string) (fd int, resolved net.Addr, err error) {
	resolved = &net.UnixAddr{Name: path, Net: "unix"}

	fd, err = unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, resolved, rerrors.Translate("socket", err)
	}
	if err = setNonblock(fd); err != nil {
		_ = unix.Close(fd)
		return -1, resolved, rerrors.Translate("nonblock", err)
	}

	sa := &unix.SockaddrUnix{Name: path}
	if err = unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return -1, resolved, rerrors.Translate("connect", err)
	}

	return fd, resolved, nil
}

// UnixListen binds and listens on a UNIX-domain stream socket at path,
// removing any stale socket file first.
func UnixListen(path string, backlog int) (fd int, resolved net.Addr, err error) {
	resolved = &net.UnixAddr{Name: path, Net: "unix"}
	_ = os.Remove(path)

	fd, err = unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, resolved, rerrors.Translate("socket", err)
	}
	if err = setNonblock(fd); err != nil {
		_ = unix.Close(fd)
		return -1, resolved, rerrors.Translate("nonblock", err)
	}

	sa := &unix.SockaddrUnix{Name: path}
	if err = unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, resolved, rerrors.Translate("bind", err)
	}
	if err = unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return -1, resolved, rerrors.Translate("listen", err)
	}

	return fd, resolved, nil
}

// Accept accepts one pending connection off a non-blocking listening fd.
func Accept(fd int) (nfd int, sa unix.Sockaddr, err error) {
	nfd, sa, err = unix.Accept(fd)
	if err != nil {
		if rerrors.IsWouldBlock(err) {
			return -1, nil, err
		}
		return -1, nil, rerrors.Translate("accept", err)
	}
	if err = setNonblock(nfd); err != nil {
		_ = unix.Close(nfd)
		return -1, nil, rerrors.Translate("nonblock", err)
	}
	return nfd, sa, nil
}

// Read reads from a non-blocking fd, returning the raw syscall error
// (including EAGAIN) unmodified so callers can distinguish "no data right
// now" from a real failure via rerrors.IsWouldBlock.
func Read(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// Write writes to a non-blocking fd, same error-transparency contract as
// Read.
func Write(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// Close closes fd exactly once; the connection that owns fd is the only
// caller.
func Close(fd int) error {
	return unix.Close(fd)
}

// SocketError reads and clears SO_ERROR on fd, the pending errno a poller's
// error/hangup readiness flag (EPOLLERR/EPOLLHUP, EV_EOF/EV_ERROR) reports
// without itself saying what went wrong — most commonly a failed
// non-blocking connect(2), e.g. ECONNREFUSED. Returns nil if the socket has
// no pending error.
func SocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

// SockaddrToAddr converts a raw unix.Sockaddr into a net.Addr for peer
// introspection (Connection.RemoteAddr).
func SockaddrToAddr(network string, sa unix.Sockaddr) net.Addr {
	switch network {
	case "unix":
		if v, ok := sa.(*unix.SockaddrUnix); ok {
			return &net.UnixAddr{Name: v.Name, Net: "unix"}
		}
	default:
		switch v := sa.(type) {
		case *unix.SockaddrInet4:
			return &net.TCPAddr{IP: v.Addr[:], Port: v.Port}
		case *unix.SockaddrInet6:
			return &net.TCPAddr{IP: v.Addr[:], Port: v.Port}
		}
	}
	return nil
}
