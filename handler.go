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

// Handler is the contract a connection's owner implements. Every method
// runs on the reactor's loop goroutine, synchronously within a tick, never
// concurrently with any other task or I/O dispatch on that reactor.
type Handler interface {
	// OnConnect fires once: for a client connection, the first time the
	// socket is writable after a non-blocking connect with no error flag;
	// for a server-accepted connection, immediately after accept.
	OnConnect(c *Connection)

	// OnRead fires every time bytes arrive.
	OnRead(c *Connection, data []byte)

	// OnWrite fires after each successful flush of the outgoing buffer.
	OnWrite(c *Connection)

	// OnClose fires at most once, when the connection terminates. reason is
	// nil for a clean close; a close driven by the reactor (connect failure,
	// error readiness, I/O failure, peer hang-up) passes a
	// *ConnectionError from this module's errors package.
	OnClose(c *Connection, reason error)
}

// BaseHandler is a no-op Handler; embed it to implement only the callbacks
// you care about.
type BaseHandler struct{}

func (BaseHandler) OnConnect(*Connection)      {}
func (BaseHandler) OnRead(*Connection, []byte) {}
func (BaseHandler) OnWrite(*Connection)        {}
func (BaseHandler) OnClose(*Connection, error) {}

// Funcs is a Handler built from plain function fields, the builder design
// note §9 calls for in place of runtime callback patching: construct one
// per connection with just the hooks you need instead of declaring a named
// type.
type Funcs struct {
	ConnectFunc func(c *Connection)
	ReadFunc    func(c *Connection, data []byte)
	WriteFunc   func(c *Connection)
	CloseFunc   func(c *Connection, reason error)
}

func (f *Funcs) OnConnect(c *Connection) {
	if f.ConnectFunc != nil {
		f.ConnectFunc(c)
	}
}

func (f *Funcs) OnRead(c *Connection, data []byte) {
	if f.ReadFunc != nil {
		f.ReadFunc(c, data)
	}
}

func (f *Funcs) OnWrite(c *Connection) {
	if f.WriteFunc != nil {
		f.WriteFunc(c)
	}
}

func (f *Funcs) OnClose(c *Connection, reason error) {
	if f.CloseFunc != nil {
		f.CloseFunc(c, reason)
	}
}

// HandlerFactory constructs a fresh Handler for one connection, capturing
// args for later introspection via Connection.InitArgs. listen's
// accept-factory is exactly this: the handler constructor partially applied
// to handler_args, invoked once per accepted socket so every accepted
// connection gets its own handler instance.
type HandlerFactory func(args ...interface{}) Handler
