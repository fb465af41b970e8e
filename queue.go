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
	"sync"

	rerrors "github.com/qadron/raktr/errors"
)

// Queue is a FIFO delivery channel between arbitrary producer goroutines and
// a Reactor's loop goroutine. Enqueue is safe to call from any goroutine;
// the consumer callback registered with OnItem always runs on the loop
// goroutine, marshalled there by runOnLoop (inline if already there, via
// the poller's wakeup otherwise). A Reactor
// method can't carry its own type parameter, so construction is the package
// function CreateQueue instead of a Reactor method.
type Queue[T any] struct {
	reactor *Reactor

	mu     sync.Mutex
	items  []T
	onItem func(T)
}

// CreateQueue returns a FIFO queue scheduled on r. The returned queue is
// usable even before r starts running; Enqueue fails with
// errors.ErrNotRunning until then.
func CreateQueue[T any](r *Reactor) *Queue[T] {
	return &Queue[T]{reactor: r}
}

// OnItem registers the callback invoked once per queued value, on the loop
// goroutine, in enqueue order. Replacing it affects every value not yet
// delivered, including values enqueued before the replacement.
func (q *Queue[T]) OnItem(fn func(T)) {
	q.mu.Lock()
	q.onItem = fn
	q.mu.Unlock()
}

// Enqueue appends v and wakes the loop to deliver it. Safe from any
// goroutine.
func (q *Queue[T]) Enqueue(v T) error {
	if !q.reactor.Running() {
		return rerrors.ErrNotRunning
	}
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.reactor.runOnLoop(q.drain)
	return nil
}

// Len reports how many values are currently buffered, awaiting delivery.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) drain() {
	q.mu.Lock()
	items := q.items
	q.items = nil
	fn := q.onItem
	q.mu.Unlock()

	if fn == nil {
		return
	}
	for _, v := range items {
		fn(v)
	}
}
