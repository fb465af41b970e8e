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

package raktr

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	rerrors "github.com/qadron/raktr/errors"
	"github.com/qadron/raktr/internal/gid"
	"github.com/qadron/raktr/internal/logging"
	"github.com/qadron/raktr/internal/netpoll"
	"github.com/qadron/raktr/internal/resolver"
	"github.com/qadron/raktr/internal/socket"
)

const defaultBacklog = 256

// Reactor is the event-loop instance: it owns a registry of connections, a
// task queue, and the single goroutine that runs the select/dispatch/tasks
// cycle. The zero value is not usable; construct with New.
type Reactor struct {
	opts *Options

	mu       sync.Mutex
	registry map[int]*Connection

	tasks *taskQueue

	ticks   atomic.Uint64
	running atomic.Bool
	loopGID atomic.Uint64

	poller   *netpoll.Poller
	resolver *resolver.Pool

	doneCh chan struct{}
}

// New constructs an idle Reactor. It does not start the loop.
func New(opts ...Option) *Reactor {
	o := loadOptions(opts...)
	if o.LogPath != "" {
		rot := o.LogRotation
		if rot == (logging.Rotation{}) {
			rot = logging.DefaultRotation
		}
		if err := logging.SetLogPath(o.LogPath, rot); err != nil {
			logging.Errorf("raktr: log path %q: %v", o.LogPath, err)
		}
	}
	return &Reactor{
		opts:     o,
		registry: make(map[int]*Connection),
		tasks:    &taskQueue{},
		resolver: resolver.Default,
	}
}

// Running reports whether the loop thread is currently set.
func (r *Reactor) Running() bool { return r.running.Load() }

// Ticks returns the current tick count; zero whenever the reactor is not
// running.
func (r *Reactor) Ticks() uint64 {
	if !r.Running() {
		return 0
	}
	return r.ticks.Load()
}

// Thread returns the loop goroutine's identity and true, or (0, false) if
// no loop is active. Go exposes no first-class thread/goroutine handle, so
// the identity is the same runtime-assigned goroutine ID InSameThread
// compares against.
func (r *Reactor) Thread() (uint64, bool) {
	if !r.Running() {
		return 0, false
	}
	return r.loopGID.Load(), true
}

// InSameThread reports whether the caller is executing on the loop
// goroutine. It fails with errors.ErrNotRunning if no loop is active.
func (r *Reactor) InSameThread() (bool, error) {
	if !r.Running() {
		return false, rerrors.ErrNotRunning
	}
	return gid.Current() == r.loopGID.Load(), nil
}

func (r *Reactor) onLoopGoroutine() bool {
	return r.Running() && gid.Current() == r.loopGID.Load()
}

// Connections returns a snapshot of every attached connection, keyed by
// socket handle.
func (r *Reactor) Connections() map[int]*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[int]*Connection, len(r.registry))
	for fd, c := range r.registry {
		snap[fd] = c
	}
	return snap
}

// ConnectionCount is a cheap derivative of Connections for tests and
// observability that don't need the full snapshot.
func (r *Reactor) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.registry)
}

// ServerConnections returns every attached connection whose role is
// RoleServerListener or RoleServerAccepted.
func (r *Reactor) ServerConnections() []*Connection {
	return r.connectionsWhere(func(c *Connection) bool {
		return c.role == RoleServerListener || c.role == RoleServerAccepted
	})
}

// ClientConnections returns every attached connection whose role is
// RoleClient.
func (r *Reactor) ClientConnections() []*Connection {
	return r.connectionsWhere(func(c *Connection) bool {
		return c.role == RoleClient
	})
}

func (r *Reactor) connectionsWhere(pred func(*Connection) bool) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Connection
	for _, c := range r.registry {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// Run starts the loop on the calling goroutine. If body is non-nil, it
// executes as the first tick's bootstrap work, on the loop goroutine. Run
// returns only when Stop is observed.
func (r *Reactor) Run(body func(*Reactor)) error {
	if !r.running.CompareAndSwap(false, true) {
		return rerrors.ErrAlreadyRunning
	}
	return r.loop(body, nil, false)
}

// RunInThread spawns a fresh goroutine, starts the loop on it, and returns
// immediately with a channel that's closed when that loop exits.
func (r *Reactor) RunInThread(body func(*Reactor)) (<-chan struct{}, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, rerrors.ErrAlreadyRunning
	}
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = r.loop(body, started, false)
		close(done)
	}()
	<-started
	return done, nil
}

// RunBlock runs a short-lived loop: body executes on the loop goroutine as
// the first tick, then the reactor keeps ticking until either Stop is
// called or the connection registry and task queue both drain. body is
// required; RunBlock fails with errors.ErrMissingArgument if it is nil.
func (r *Reactor) RunBlock(body func(*Reactor)) error {
	if body == nil {
		return rerrors.ErrMissingArgument
	}
	if !r.running.CompareAndSwap(false, true) {
		return rerrors.ErrAlreadyRunning
	}
	return r.loop(body, nil, true)
}

// loop is the shared bottom half of Run/RunInThread/RunBlock. drainOnEmpty,
// true only for RunBlock, additionally makes the loop stop itself once the
// connection registry and task queue are both empty — the termination
// condition spec §4.1 leaves ambiguous ("block-return vs explicit stop");
// this implementation treats "the block's own work has nothing left
// pending" as the signal to return, on top of an explicit Stop.
func (r *Reactor) loop(body func(*Reactor), started chan struct{}, drainOnEmpty bool) error {
	poller, err := netpoll.OpenPoller()
	if err != nil {
		r.running.Store(false)
		return err
	}
	r.poller = poller
	r.loopGID.Store(gid.Current())
	r.ticks.Store(0)
	r.doneCh = make(chan struct{})

	if started != nil {
		close(started)
	}

	if body != nil {
		body(r)
	}

	for {
		r.tick()
		if !r.running.Load() {
			break
		}
		if drainOnEmpty && r.ConnectionCount() == 0 && r.tasks.len() == 0 {
			r.running.Store(false)
			break
		}
	}

	r.teardown()
	close(r.doneCh)
	return nil
}

// tick runs exactly one iteration of the select/dispatch/tasks cycle
// described in spec §4.1.
func (r *Reactor) tick() {
	timeout := r.opts.MaxTickInterval
	if timeout == 0 {
		timeout = -1 // zero means wait without a timeout
	}
	ready, err := r.poller.Polling(timeout)
	if err != nil {
		logging.Errorf("raktr: poller wait: %v", err)
	}

	errored := make(map[int]bool, len(ready))

	// Phase 1: errors.
	for _, ev := range ready {
		if ev.Events&netpoll.EventError == 0 {
			continue
		}
		r.mu.Lock()
		c, ok := r.registry[ev.Fd]
		r.mu.Unlock()
		if ok {
			errored[ev.Fd] = true
			c.handleErrorReady()
		}
	}

	// Phase 2: writes.
	for _, ev := range ready {
		if ev.Events&netpoll.EventWrite == 0 || errored[ev.Fd] {
			continue
		}
		r.mu.Lock()
		c, ok := r.registry[ev.Fd]
		r.mu.Unlock()
		if ok {
			c.handleWriteReady()
		}
	}

	// Phase 3: reads.
	for _, ev := range ready {
		if ev.Events&netpoll.EventRead == 0 || errored[ev.Fd] {
			continue
		}
		r.mu.Lock()
		c, ok := r.registry[ev.Fd]
		r.mu.Unlock()
		if ok {
			c.handleReadReady()
		}
	}

	// Phase 4: tasks, once, in insertion order.
	r.tasks.run(time.Now())

	r.ticks.Add(1)
}

func (r *Reactor) teardown() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.registry))
	for _, c := range r.registry {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	var combined error
	for _, c := range conns {
		combined = multierr.Append(combined, c.closeWithoutCallback())
	}
	logging.LogErr(combined)

	r.tasks.clear()
	_ = r.poller.Close()
	r.poller = nil
	r.ticks.Store(0)
	r.loopGID.Store(0)
	r.running.Store(false)
}

// Stop requests termination. It is idempotent and safe from any goroutine:
// it clears the running flag through runOnLoop (inline when called on the
// loop goroutine, otherwise as a poller wakeup job), so the flag always
// changes on the loop goroutine and the loop exits once the current tick
// finishes.
func (r *Reactor) Stop() {
	if !r.Running() {
		return
	}
	r.runOnLoop(func() {
		r.running.Store(false)
	})
}

// StopAndWait requests termination and blocks until the loop has actually
// exited; it returns at once if the reactor is not running. Used by the
// global reactor's teardown (spec §4.5: "stops the global reactor, blocks
// until its loop exits").
func (r *Reactor) StopAndWait() {
	if !r.Running() {
		return
	}
	done := r.doneCh
	r.Stop()
	if done != nil {
		<-done
	}
}

// runOnLoop invokes fn inline if the caller is already on the loop
// goroutine, otherwise marshals it onto the loop via the poller's wakeup
// mechanism. Stop, Queue delivery, and the attach calls made by
// ConnectTCP/ConnectUnix/ListenTCP/ListenUnix go through it, so those
// registry mutations only happen on the loop goroutine.
func (r *Reactor) runOnLoop(fn func()) {
	if r.onLoopGoroutine() {
		fn()
		return
	}
	if err := r.poller.Trigger(func() error {
		fn()
		return nil
	}); err != nil {
		logging.Errorf("raktr: trigger: %v", err)
	}
}

// Schedule invokes body inline immediately if the caller is on the loop
// goroutine; otherwise it is enqueued as a NextTick task. Fails with
// errors.ErrNotRunning if no loop is active.
func (r *Reactor) Schedule(body func(*Reactor)) error {
	if !r.Running() {
		return rerrors.ErrNotRunning
	}
	if r.onLoopGoroutine() {
		body(r)
		return nil
	}
	return r.NextTick(body)
}

// OnTick schedules body to run every tick until the reactor stops.
func (r *Reactor) OnTick(body func(*Reactor)) error {
	if !r.Running() {
		return rerrors.ErrNotRunning
	}
	r.tasks.append(&persistentTask{body: func() { body(r) }})
	return nil
}

// NextTick schedules body to run once, at the next tick.
func (r *Reactor) NextTick(body func(*Reactor)) error {
	if !r.Running() {
		return rerrors.ErrNotRunning
	}
	r.tasks.append(&oneOffTask{body: func() { body(r) }})
	return nil
}

// AtInterval schedules body to run every interval, measured from the
// previous firing.
func (r *Reactor) AtInterval(interval time.Duration, body func(*Reactor)) error {
	if !r.Running() {
		return rerrors.ErrNotRunning
	}
	r.tasks.append(newPeriodicTask(interval, func() { body(r) }, time.Now()))
	return nil
}

// Delay schedules body to run once, no earlier than delay from now.
func (r *Reactor) Delay(delay time.Duration, body func(*Reactor)) error {
	if !r.Running() {
		return rerrors.ErrNotRunning
	}
	r.tasks.append(newDelayedTask(delay, func() { body(r) }, time.Now()))
	return nil
}

// markWritable recomputes this connection's write-interest with the
// poller. SendData (the only caller that can change the outgoing buffer
// from empty to non-empty) runs on the loop goroutine, so this never needs
// to marshal across threads. handleWriteReady is the only other caller,
// also always on the loop goroutine.
func (r *Reactor) markWritable(c *Connection) error {
	if c.closed.Load() {
		return nil
	}
	want := c.connectPending || c.out.Len() > 0
	return r.poller.ModReadWrite(c.fd, want)
}

// attach inserts a connection into the registry and registers its fd with
// the poller. Must only be called from the loop goroutine; the poller it
// registers with exists only while the loop is running.
func (r *Reactor) attach(c *Connection, wantWrite bool) error {
	r.mu.Lock()
	r.registry[c.fd] = c
	r.mu.Unlock()

	if wantWrite || c.connectPending {
		return r.poller.AddReadWrite(c.fd)
	}
	return r.poller.AddRead(c.fd)
}

// detach removes a connection from the registry. Called by Connection.close
// before the fd is released, so a concurrent tick never looks up a fd that
// has already been handed back to the OS.
func (r *Reactor) detach(c *Connection) {
	r.mu.Lock()
	delete(r.registry, c.fd)
	r.mu.Unlock()

	if r.poller != nil {
		_ = r.poller.Delete(c.fd)
	}
}

// ConnectTCP opens a non-blocking TCP connection to host:port. factory may
// be nil, in which case the connection gets a BaseHandler. Per spec §4.3,
// ConnectTCP never fails once the reactor is running: any connect-time
// failure (unresolvable host, refused port, timeout, ...) is delivered
// asynchronously through the handler's OnClose, never returned here. The
// one synchronous failure mode is calling it while the reactor has no loop
// thread.
func (r *Reactor) ConnectTCP(host string, port int, factory HandlerFactory, args ...interface{}) (*Connection, error) {
	if !r.Running() {
		return nil, rerrors.ErrNotRunning
	}

	var handler Handler = BaseHandler{}
	if factory != nil {
		handler = factory(args...)
	}
	conn := newConnection(r, -1, "tcp", RoleClient, handler, args)
	conn.connectPending = true

	err := r.resolver.Lookup(host, func(addrs []string, lookupErr error) {
		if lookupErr != nil {
			r.runOnLoop(func() { conn.deliverConnectFailure(lookupErr) })
			return
		}

		// addrs[0] is already a resolved IP literal, so TCPConnect's own
		// net.ResolveTCPAddr call is a no-op parse, not a second DNS round
		// trip against the hostname.
		addr := net.JoinHostPort(addrs[0], strconv.Itoa(port))
		fd, _, resolved, connErr := socket.TCPConnect(addr)
		r.runOnLoop(func() {
			if connErr != nil {
				conn.deliverConnectFailure(connErr)
				return
			}
			conn.fd = fd
			conn.remote = resolved
			conn.local = nil
			if err := r.attach(conn, true); err != nil {
				_ = socket.Close(fd)
				conn.deliverConnectFailure(err)
			}
		})
	})
	if err != nil {
		conn.deliverConnectFailure(err)
	}

	return conn, nil
}

// ConnectUnix opens a non-blocking stream UNIX-domain connection to path.
// Same asynchronous-failure contract as ConnectTCP.
func (r *Reactor) ConnectUnix(path string, factory HandlerFactory, args ...interface{}) (*Connection, error) {
	if !r.Running() {
		return nil, rerrors.ErrNotRunning
	}

	var handler Handler
	if factory != nil {
		handler = factory(args...)
	}
	conn := newConnection(r, -1, "unix", RoleClient, handler, args)
	conn.connectPending = true

	fd, resolved, err := socket.UnixConnect(path)
	if err != nil {
		conn.deliverConnectFailure(err)
		return conn, nil
	}
	conn.fd = fd
	conn.remote = resolved

	r.runOnLoop(func() {
		if err := r.attach(conn, true); err != nil {
			_ = socket.Close(fd)
			conn.deliverConnectFailure(err)
		}
	})

	return conn, nil
}

// ListenTCP binds and listens on host:port. Unlike connect, a bind/listen
// failure is raised synchronously to the caller (spec §4.3: "listen is more
// prepared to signal configuration errors than connect").
func (r *Reactor) ListenTCP(host string, port int, factory HandlerFactory, args ...interface{}) (*Connection, error) {
	if !r.Running() {
		return nil, rerrors.ErrNotRunning
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	fd, resolved, err := socket.TCPListen(addr, defaultBacklog)
	if err != nil {
		return nil, err
	}

	conn := newConnection(r, fd, "tcp", RoleServerListener, nil, args)
	conn.local = resolved
	conn.acceptFactory = factory
	conn.acceptArgs = args

	r.runOnLoop(func() {
		if err := r.attach(conn, false); err != nil {
			logging.Errorf("raktr: attach listener: %v", err)
		}
	})

	return conn, nil
}

// ListenUnix binds and listens on a UNIX-domain stream socket at path.
func (r *Reactor) ListenUnix(path string, factory HandlerFactory, args ...interface{}) (*Connection, error) {
	if !r.Running() {
		return nil, rerrors.ErrNotRunning
	}

	fd, resolved, err := socket.UnixListen(path, defaultBacklog)
	if err != nil {
		return nil, err
	}

	conn := newConnection(r, fd, "unix", RoleServerListener, nil, args)
	conn.local = resolved
	conn.acceptFactory = factory
	conn.acceptArgs = args

	r.runOnLoop(func() {
		if err := r.attach(conn, false); err != nil {
			logging.Errorf("raktr: attach listener: %v", err)
		}
	})

	return conn, nil
}

// deliverConnectFailure marks a never-attached connection closed and
// invokes its handler's OnClose with the translated reason, the
// asynchronous-failure path ConnectTCP/ConnectUnix use once arguments parse
// but the socket never came up.
func (c *Connection) deliverConnectFailure(err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.fd >= 0 {
		_ = socket.Close(c.fd)
	}
	if _, ok := err.(*rerrors.ConnectionError); !ok {
		err = rerrors.Translate("connect", err)
	}
	if c.handler != nil {
		c.handler.OnClose(c, err)
	}
}
