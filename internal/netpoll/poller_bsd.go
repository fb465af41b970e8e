//go:build freebsd || dragonfly || darwin || netbsd || openbsd

package netpoll

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/qadron/raktr/internal/logging"
)

// Poller wraps a kqueue instance plus a self-pipe used to wake a blocked
// Kevent call when a job is scheduled from another goroutine. A pipe is
// used instead of EVFILT_USER so the same code path works across every BSD
// flavor this package targets (OpenBSD's kqueue has no EVFILT_USER).
type Poller struct {
	fd        int
	wakeRead  int
	wakeWrite int

	mu   sync.Mutex
	jobs []func() error
}

// OpenPoller creates a new kqueue instance with its wakeup pipe already
// registered for read interest.
func OpenPoller() (*Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}

	var fds [2]int
	if err = unix.Pipe(fds[:]); err != nil {
		_ = unix.Close(kq)
		return nil, err
	}
	if err = unix.SetNonblock(fds[0], true); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		_ = unix.Close(kq)
		return nil, err
	}

	p := &Poller{fd: kq, wakeRead: fds[0], wakeWrite: fds[1]}

	changes := []unix.Kevent_t{{
		Ident:  uint64(p.wakeRead),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD,
	}}
	if _, err = unix.Kevent(kq, changes, nil, nil); err != nil {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
		_ = unix.Close(kq)
		return nil, err
	}

	return p, nil
}

// AddRead registers fd for read (and error) readiness only.
func (p *Poller) AddRead(fd int) error {
	changes := []unix.Kevent_t{{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD}}
	_, err := unix.Kevent(p.fd, changes, nil, nil)
	return err
}

// AddReadWrite registers fd for both read and write readiness.
func (p *Poller) AddReadWrite(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD},
	}
	_, err := unix.Kevent(p.fd, changes, nil, nil)
	return err
}

// ModReadWrite toggles write-readiness interest for an already-registered
// fd.
func (p *Poller) ModReadWrite(fd int, writable bool) error {
	flag := uint16(unix.EV_DELETE)
	if writable {
		flag = unix.EV_ADD
	}
	changes := []unix.Kevent_t{{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flag}}
	_, err := unix.Kevent(p.fd, changes, nil, nil)
	if err != nil && writable == false {
		// Deleting a filter that was never added is not an error we care about.
		return nil
	}
	return err
}

// Delete removes fd from the poller's interest set (both filters; deleting
// one that was never added is harmless).
func (p *Poller) Delete(fd int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, _ = unix.Kevent(p.fd, changes, nil, nil)
	return nil
}

// Trigger queues job to run on the next Polling pass and wakes a blocked
// wait immediately, regardless of which goroutine calls it.
func (p *Poller) Trigger(job func() error) error {
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()

	_, err := unix.Write(p.wakeWrite, []byte{0})
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

// Polling blocks for up to timeout (or indefinitely if timeout < 0) waiting
// for readiness, runs any jobs queued via Trigger, and returns the batch of
// ready (fd, Event) pairs for the caller to dispatch in its own order.
func (p *Poller) Polling(timeout time.Duration) ([]ReadyEvent, error) {
	var events [128]unix.Kevent_t

	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}

	n, err := unix.Kevent(p.fd, nil, events[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	ready := make([]ReadyEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := events[i]
		fd := int(ev.Ident)

		if fd == p.wakeRead {
			p.drainWake()
			p.runJobs()
			continue
		}

		var e Event
		if ev.Flags&unix.EV_EOF != 0 || ev.Flags&unix.EV_ERROR != 0 {
			e |= EventError
		}
		switch ev.Filter {
		case unix.EVFILT_READ:
			e |= EventRead
		case unix.EVFILT_WRITE:
			e |= EventWrite
		}
		ready = append(ready, ReadyEvent{Fd: fd, Events: e})
	}

	return ready, nil
}

func (p *Poller) drainWake() {
	var b [64]byte
	for {
		_, err := unix.Read(p.wakeRead, b[:])
		if err != nil {
			return
		}
	}
}

func (p *Poller) runJobs() {
	p.mu.Lock()
	jobs := p.jobs
	p.jobs = nil
	p.mu.Unlock()

	for _, job := range jobs {
		if err := job(); err != nil {
			logging.LogErr(err)
		}
	}
}

// Close releases the kqueue fd and the wakeup pipe.
func (p *Poller) Close() error {
	_ = unix.Close(p.wakeRead)
	_ = unix.Close(p.wakeWrite)
	return unix.Close(p.fd)
}
