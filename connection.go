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

package raktr

import (
	"net"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/atomic"

	rerrors "github.com/qadron/raktr/errors"
	"github.com/qadron/raktr/internal/logging"
	"github.com/qadron/raktr/internal/socket"
)

// Role distinguishes the three ways a Connection comes to exist.
type Role int

const (
	// RoleClient was created via Reactor.ConnectTCP or Reactor.ConnectUnix.
	RoleClient Role = iota
	// RoleServerListener was created via Reactor.ListenTCP or
	// Reactor.ListenUnix; it never carries
	// application bytes, only accepts.
	RoleServerListener
	// RoleServerAccepted was produced when a RoleServerListener accepted a
	// peer.
	RoleServerAccepted
)

var errClosedConnection = rerrors.ErrClosed

// Connection wraps one non-blocking socket and the Handler attached to it.
// A Connection belongs to at most one Reactor, and once closed is never
// reused.
type Connection struct {
	fd      int
	network string // "tcp" or "unix"
	role    Role
	reactor *Reactor
	handler Handler

	in  *bytebufferpool.ByteBuffer
	out *bytebufferpool.ByteBuffer

	closed          atomic.Bool
	closeAfterWrite atomic.Bool
	connectPending  bool // client role: non-blocking connect not yet confirmed

	transport Transport

	acceptFactory HandlerFactory      // server-listener only
	acceptArgs    []interface{}       // server-listener only
	initArgs      []interface{}       // captured constructor args, for introspection

	local  net.Addr
	remote net.Addr
}

func newConnection(r *Reactor, fd int, network string, role Role, handler Handler, initArgs []interface{}) *Connection {
	return &Connection{
		fd:       fd,
		network:  network,
		role:     role,
		reactor:  r,
		handler:  handler,
		in:       bytebufferpool.Get(),
		out:      bytebufferpool.Get(),
		initArgs: initArgs,
	}
}

// InitArgs returns the positional arguments this connection's handler was
// constructed with.
func (c *Connection) InitArgs() []interface{} { return c.initArgs }

// LocalAddr is the connection's local socket address, if known.
func (c *Connection) LocalAddr() net.Addr { return c.local }

// RemoteAddr is the connection's remote peer address, if known.
func (c *Connection) RemoteAddr() net.Addr { return c.remote }

// Role reports which of the three connection roles this is.
func (c *Connection) Role() Role { return c.role }

// Reactor returns the reactor this connection is attached to.
func (c *Connection) Reactor() *Reactor { return c.reactor }

// ReceivedData returns the bytes accumulated so far by OnRead without
// clearing them, for simple echo-style handlers that want the whole
// history at close time.
func (c *Connection) ReceivedData() []byte {
	return c.in.B
}

// SendData appends data to the outgoing buffer. The reactor marks the
// socket write-ready as soon as that buffer is non-empty, per the
// invariant in spec §3.
func (c *Connection) SendData(data []byte) error {
	if c.closed.Load() {
		return errClosedConnection
	}
	_, err := c.out.Write(data)
	if err != nil {
		return err
	}
	return c.reactor.markWritable(c)
}

// CloseAfterWrite requests the connection close once its outgoing buffer
// fully drains, instead of closing immediately.
func (c *Connection) CloseAfterWrite() {
	c.closeAfterWrite.Store(true)
}

// Close closes the connection now, detaching it from the reactor and
// invoking OnClose(reason) exactly once. reason is nil for a clean,
// user-initiated close.
func (c *Connection) Close(reason error) error {
	return c.close(reason, true)
}

// closeWithoutCallback is used by reactor shutdown: the connection is torn
// down but OnClose is never invoked, matching spec §3's "without invoking
// user close callbacks" teardown semantics.
func (c *Connection) closeWithoutCallback() error {
	return c.close(nil, false)
}

func (c *Connection) close(reason error, invokeCallback bool) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.reactor.detach(c)

	var closeErr error
	if c.transport != nil {
		closeErr = c.transport.Close()
	}
	if cerr := socket.Close(c.fd); closeErr == nil {
		closeErr = cerr
	}

	if invokeCallback && c.handler != nil {
		c.handler.OnClose(c, reason)
	}

	bytebufferpool.Put(c.in)
	bytebufferpool.Put(c.out)

	return closeErr
}

// handleErrorReady is invoked by the loop when the poller flags this
// socket's fd with an error condition. SO_ERROR holds the real errno (a
// failed non-blocking connect surfaces here as ECONNREFUSED, ETIMEDOUT,
// etc.) behind the bare error readiness flag, so it's read and translated
// before closing instead of closing with the catch-all kind.
func (c *Connection) handleErrorReady() {
	reason := rerrors.Translate("error", socket.SocketError(c.fd))
	if reason == nil {
		reason = rerrors.ErrUnknown
	}
	_ = c.Close(reason)
}

// handleWriteReady completes a pending non-blocking connect (OnConnect) on
// the first write readiness, then flushes as much of the outgoing buffer as
// the socket will currently accept. A full flush fires OnWrite and honors a
// pending CloseAfterWrite.
func (c *Connection) handleWriteReady() {
	if c.connectPending {
		c.connectPending = false
		if c.handler != nil {
			c.handler.OnConnect(c)
		}
	}

	if c.out.Len() == 0 {
		_ = c.reactor.markWritable(c) // no-op toggle to clear write interest
		return
	}

	n, err := c.write(c.out.B)
	if err != nil {
		if rerrors.IsWouldBlock(err) {
			return
		}
		_ = c.Close(rerrors.Translate("write", err))
		return
	}

	remaining := c.out.B[n:]
	c.out.Reset()
	_, _ = c.out.Write(remaining)

	if c.out.Len() == 0 {
		_ = c.reactor.markWritable(c)
		if c.handler != nil {
			c.handler.OnWrite(c)
		}
		if c.closeAfterWrite.Load() {
			_ = c.Close(nil)
		}
	}
}

// handleReadReady reads one buffer's worth of bytes and delivers them to
// OnRead, or (for a listener) accepts every pending peer until accept
// would block.
func (c *Connection) handleReadReady() {
	if c.role == RoleServerListener {
		c.handleAccept()
		return
	}

	if c.closed.Load() {
		return
	}

	buf := make([]byte, c.reactor.opts.ReadBufferCap)
	n, err := c.read(buf)
	if err != nil {
		if rerrors.IsWouldBlock(err) {
			return
		}
		_ = c.Close(rerrors.Translate("read", err))
		return
	}
	if n == 0 {
		_ = c.Close(rerrors.ErrClosed)
		return
	}

	data := buf[:n]
	_, _ = c.in.Write(data)
	if c.handler != nil {
		c.handler.OnRead(c, data)
	}
}

func (c *Connection) handleAccept() {
	for {
		nfd, sa, err := socket.Accept(c.fd)
		if err != nil {
			if rerrors.IsWouldBlock(err) {
				return
			}
			logging.Errorf("raktr: accept on fd %d: %v", c.fd, err)
			return
		}

		accepted := newConnection(c.reactor, nfd, c.network, RoleServerAccepted, nil, c.acceptArgs)
		accepted.remote = socket.SockaddrToAddr(c.network, sa)
		accepted.local = c.local

		var handler Handler
		if c.acceptFactory != nil {
			handler = c.acceptFactory(c.acceptArgs...)
		}
		accepted.handler = handler

		if err := c.reactor.attach(accepted, false); err != nil {
			_ = socket.Close(nfd)
			continue
		}
		if handler != nil {
			handler.OnConnect(accepted)
		}
	}
}

func (c *Connection) read(buf []byte) (int, error) {
	if c.transport != nil {
		return c.transport.Read(buf)
	}
	return socket.Read(c.fd, buf)
}

func (c *Connection) write(buf []byte) (int, error) {
	if c.transport != nil {
		return c.transport.Write(buf)
	}
	return socket.Write(c.fd, buf)
}

