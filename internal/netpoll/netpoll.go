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

// Package netpoll wraps the OS readiness multiplexer (epoll on Linux, kqueue
// on the BSDs and Darwin) behind one small interface: register a socket,
// wait with a timeout, get back a batch of (fd, readiness) pairs. It also
// owns the self-pipe/eventfd wakeup that lets Trigger jobs scheduled from
// another goroutine interrupt an in-progress wait instead of sitting behind
// it for up to max_tick_interval.
//
// Polling deliberately returns the whole ready batch rather than invoking a
// callback per fd as it's discovered: the reactor needs every error
// processed before any write, and every write before any read, across all
// sockets in the tick — an ordering a purely per-fd dispatch loop can't
// express once a single epoll_wait/kevent call reports more than one ready
// fd.
package netpoll

// Event is a bitmask of readiness flags reported for one fd in one Polling
// pass.
type Event uint8

const (
	EventRead Event = 1 << iota
	EventWrite
	EventError
)

// ReadyEvent is one fd's readiness result from a single Polling pass.
type ReadyEvent struct {
	Fd     int
	Events Event
}
