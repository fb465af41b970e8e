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
	"time"
)

// taskQueue is the reactor's linear, append-only collection of pending
// tasks. Append is safe from any goroutine; run is only ever called from
// the loop goroutine, once per tick.
//
// Tasks appended mid-run (by a task's own body, or concurrently from
// another goroutine) are observed on the next tick, not the current one:
// run snapshots the queue length up front and only iterates that many
// entries.
type taskQueue struct {
	mu    sync.Mutex
	tasks []task
}

func (q *taskQueue) append(t task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()
}

// run executes every task that's due, in insertion order, and compacts away
// whatever has expired. New entries appended during this pass (by a task
// body scheduling more work) are left for next time.
func (q *taskQueue) run(now time.Time) {
	q.mu.Lock()
	n := len(q.tasks)
	q.mu.Unlock()

	for i := 0; i < n; i++ {
		q.mu.Lock()
		t := q.tasks[i]
		q.mu.Unlock()

		if t.due(now) {
			t.run()
		}
	}

	q.mu.Lock()
	kept := q.tasks[:0]
	for i, t := range q.tasks {
		if i < n && t.expired() {
			continue
		}
		kept = append(kept, t)
	}
	q.tasks = kept
	q.mu.Unlock()
}

// clear drops every pending task, used on reactor stop.
func (q *taskQueue) clear() {
	q.mu.Lock()
	q.tasks = nil
	q.mu.Unlock()
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
