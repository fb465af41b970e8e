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

// Package raktr is a single-threaded network event reactor: one goroutine
// multiplexes many non-blocking TCP and UNIX-domain stream sockets,
// dispatches I/O readiness to user-supplied Handlers, and interleaves
// deferred tasks with I/O on every tick.
//
// A Reactor is created idle, started with Run (or RunInThread, or
// RunBlock), and stopped with Stop. Handlers are attached via ConnectTCP,
// ConnectUnix, ListenTCP and ListenUnix; all fail with errors.ErrNotRunning
// unless a loop is active.
package raktr
