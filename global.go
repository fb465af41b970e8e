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

import "sync"

var (
	globalMu sync.Mutex
	globalR  *Reactor
)

// Global returns the process-wide default Reactor, constructing it (but not
// starting its loop) on first call. Repeated calls return the same instance
// until GlobalStop discards it, at which point the next Global call
// produces a fresh one with a different identity.
func Global() *Reactor {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalR == nil {
		globalR = New()
	}
	return globalR
}

// GlobalStop stops the global reactor, if one exists, blocks until its loop
// has fully exited, and discards the instance: the next Global call builds
// a new one instead of reusing this object's identity.
func GlobalStop() {
	globalMu.Lock()
	r := globalR
	globalR = nil
	globalMu.Unlock()

	if r != nil {
		r.StopAndWait()
	}
}
