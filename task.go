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

import "time"

// task is the uniform "due? / run" contract every scheduled unit of work
// satisfies. due is asked once per tick, in insertion order; if it returns
// true, run fires, then expired is asked to decide whether the task is
// removed from the queue.
type task interface {
	due(now time.Time) bool
	run()
	expired() bool
}

// oneOffTask fires at the next tick and is then removed.
type oneOffTask struct {
	body func()
}

func (t *oneOffTask) due(time.Time) bool { return true }
func (t *oneOffTask) run()               { t.body() }
func (t *oneOffTask) expired() bool      { return true }

// persistentTask fires every tick and is never removed by expiry; it only
// leaves the queue when the reactor stops and clears it.
type persistentTask struct {
	body func()
}

func (t *persistentTask) due(time.Time) bool { return true }
func (t *persistentTask) run()               { t.body() }
func (t *persistentTask) expired() bool      { return false }

// periodicTask fires every interval seconds, measured from the previous
// firing (wall clock), not from actual firing time, so a slow tick doesn't
// compound drift across firings.
type periodicTask struct {
	body     func()
	interval time.Duration
	nextFire time.Time
}

func newPeriodicTask(interval time.Duration, body func(), now time.Time) *periodicTask {
	return &periodicTask{body: body, interval: interval, nextFire: now.Add(interval)}
}

func (t *periodicTask) due(now time.Time) bool { return !now.Before(t.nextFire) }

func (t *periodicTask) run() {
	t.body()
	t.nextFire = t.nextFire.Add(t.interval)
}

func (t *periodicTask) expired() bool { return false }

// delayedTask fires once, no earlier than its absolute fire time, then is
// removed.
type delayedTask struct {
	body  func()
	fire  time.Time
	fired bool
}

func newDelayedTask(delay time.Duration, body func(), now time.Time) *delayedTask {
	return &delayedTask{body: body, fire: now.Add(delay)}
}

func (t *delayedTask) due(now time.Time) bool { return !t.fired && !now.Before(t.fire) }

func (t *delayedTask) run() {
	t.body()
	t.fired = true
}

func (t *delayedTask) expired() bool { return t.fired }
