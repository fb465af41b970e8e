//go:build linux

package netpoll

import (
	"encoding/binary"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/qadron/raktr/internal/logging"
)

// Poller wraps a Linux epoll instance plus an eventfd used to wake a
// blocked EpollWait when a job is scheduled from another goroutine.
type Poller struct {
	fd     int
	wakeFD int

	mu   sync.Mutex
	jobs []func() error
}

// OpenPoller creates a new epoll instance with its wakeup eventfd already
// registered for read interest.
func OpenPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}

	p := &Poller{fd: epfd, wakeFD: wfd}
	if err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wfd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)}); err != nil {
		_ = unix.Close(wfd)
		_ = unix.Close(epfd)
		return nil, err
	}

	return p, nil
}

// AddRead registers fd for read (and error) readiness only.
func (p *Poller) AddRead(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)})
}

// AddReadWrite registers fd for both read and write readiness, used for a
// freshly connect(2)-ed socket whose completion is signalled by writability.
func (p *Poller) AddReadWrite(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(fd)})
}

// ModReadWrite toggles write-readiness interest for an already-registered
// fd, following the invariant that outgoing-buffer-non-empty implies the
// socket is selected for write readiness.
func (p *Poller) ModReadWrite(fd int, writable bool) error {
	events := uint32(unix.EPOLLIN)
	if writable {
		events |= unix.EPOLLOUT
	}
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
}

// Delete removes fd from the poller's interest set.
func (p *Poller) Delete(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Trigger queues job to run on the next Polling pass and wakes a blocked
// wait immediately, regardless of which goroutine calls it.
func (p *Poller) Trigger(job func() error) error {
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()

	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], 1)
	_, err := unix.Write(p.wakeFD, b[:])
	if err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

// Polling blocks for up to timeout (or indefinitely if timeout < 0) waiting
// for readiness, runs any jobs queued via Trigger, and returns the batch of
// ready (fd, Event) pairs for the caller to dispatch in its own order.
func (p *Poller) Polling(timeout time.Duration) ([]ReadyEvent, error) {
	var events [128]unix.EpollEvent

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	n, err := unix.EpollWait(p.fd, events[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	ready := make([]ReadyEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := events[i]
		fd := int(ev.Fd)

		if fd == p.wakeFD {
			p.drainWake()
			p.runJobs()
			continue
		}

		var e Event
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			e |= EventError
		}
		if ev.Events&unix.EPOLLIN != 0 {
			e |= EventRead
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			e |= EventWrite
		}
		ready = append(ready, ReadyEvent{Fd: fd, Events: e})
	}

	return ready, nil
}

func (p *Poller) drainWake() {
	var b [8]byte
	for {
		_, err := unix.Read(p.wakeFD, b[:])
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

// Close releases the epoll fd and its wakeup eventfd.
func (p *Poller) Close() error {
	_ = unix.Close(p.wakeFD)
	return unix.Close(p.fd)
}
