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
	"github.com/qadron/raktr/internal/socket"
)

// Transport substitutes the raw socket for byte-level read/write once
// installed over a Connection. It is the core's only requirement of a
// cryptographic transport wrapper such as TLS: preserve non-blocking
// semantics (surface partial progress on either side as a "would block"
// error, checkable with errors.IsWouldBlock) and otherwise behave like a
// plain byte stream. raktr does not implement record framing itself; a TLS
// (or any other) transport is supplied by the caller through
// TransportUpgrader.
type Transport interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
}

// RawIO is the minimal non-blocking byte source/sink a TransportUpgrader
// receives: it reads and writes directly against the connection's
// underlying socket. A "would block" condition on either call is returned
// as the raw syscall error, unmodified, for errors.IsWouldBlock to
// recognise.
type RawIO interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
}

type rawConnIO struct {
	fd int
}

func (r *rawConnIO) Read(p []byte) (int, error)  { return socket.Read(r.fd, p) }
func (r *rawConnIO) Write(p []byte) (int, error) { return socket.Write(r.fd, p) }

// TransportUpgrader builds a Transport over a connection's raw byte stream.
// Used by Connection.StartTLS to install (for example) a crypto/tls-backed
// Transport without raktr depending on crypto/tls itself.
type TransportUpgrader func(raw RawIO) (Transport, error)

// StartTLS installs a transport produced by upgrade over this connection.
// Subsequent reads/writes are routed through the transport instead of the
// raw socket. Per spec §4.2 the details of the handshake are deferred to
// the upgrader; the only contract raktr enforces is the Transport
// interface above.
func (c *Connection) StartTLS(upgrade TransportUpgrader) error {
	if c.closed.Load() {
		return errClosedConnection
	}
	t, err := upgrade(&rawConnIO{fd: c.fd})
	if err != nil {
		return err
	}
	c.transport = t
	return nil
}
