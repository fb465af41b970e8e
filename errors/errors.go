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

// Package errors defines the closed set of reactor- and connection-level
// error kinds and the translation from raw OS errors into that taxonomy.
package errors

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// Reactor-level errors. These are returned synchronously from the methods
// that can detect the violation without needing the loop thread.
var (
	// ErrAlreadyRunning is returned by Run/RunInThread/RunBlock when the
	// reactor already has a loop thread.
	ErrAlreadyRunning = errors.New("raktr: reactor already running")

	// ErrNotRunning is returned by any scheduling or connect/listen call
	// made while the reactor has no loop thread.
	ErrNotRunning = errors.New("raktr: reactor not running")

	// ErrMissingArgument is returned when a required argument is absent
	// (RunBlock with a nil body).
	ErrMissingArgument = errors.New("raktr: missing required argument")

	// ErrServerShutdown reports that the reactor is shutting down. No code
	// in this module currently returns it.
	ErrServerShutdown = errors.New("raktr: server is shutting down")
)

// Kind identifies one member of the closed connection-error taxonomy.
type Kind int

const (
	// KindUnknown is the catch-all for any OS error this package doesn't
	// recognise.
	KindUnknown Kind = iota
	KindHostNotFound
	KindRefused
	KindPermission
	KindTimeout
	KindClosed
	KindReset
	KindBrokenPipe
)

func (k Kind) String() string {
	switch k {
	case KindHostNotFound:
		return "host not found"
	case KindRefused:
		return "connection refused"
	case KindPermission:
		return "permission denied"
	case KindTimeout:
		return "timed out"
	case KindClosed:
		return "closed"
	case KindReset:
		return "connection reset"
	case KindBrokenPipe:
		return "broken pipe"
	default:
		return "connection error"
	}
}

// ConnectionError is the catch-all (and base) type for every member of the
// connection-error taxonomy in spec §7. Every exported sentinel below wraps
// one with a fixed Kind; Translate produces these from raw OS signals.
type ConnectionError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "raktr: " + e.Kind.String()
	}
	if e.Op != "" {
		return "raktr: " + e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
	}
	return "raktr: " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrHostNotFound) etc. match any ConnectionError of
// the same Kind, regardless of the wrapped OS error.
func (e *ConnectionError) Is(target error) bool {
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newKind(kind Kind) *ConnectionError { return &ConnectionError{Kind: kind} }

// Sentinels usable with errors.Is. They carry no wrapped OS error; they
// exist purely as comparison targets.
var (
	ErrHostNotFound = newKind(KindHostNotFound)
	ErrRefused      = newKind(KindRefused)
	ErrPermission   = newKind(KindPermission)
	ErrTimeout      = newKind(KindTimeout)
	ErrClosed       = newKind(KindClosed)
	ErrReset        = newKind(KindReset)
	ErrBrokenPipe   = newKind(KindBrokenPipe)
	ErrUnknown      = newKind(KindUnknown)
)

// Translate maps a raw OS-level error (syscall.Errno, *net.OpError,
// *net.DNSError, *os.SyscallError, io.EOF-shaped hang-ups) into the closed
// connection-error taxonomy. Any error not recognised here surfaces as the
// catch-all KindUnknown, wrapping the original error so callers can still
// unwrap to it.
func Translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return &ConnectionError{Kind: KindHostNotFound, Op: op, Err: err}
		}
		return &ConnectionError{Kind: KindHostNotFound, Op: op, Err: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return &ConnectionError{Kind: KindTimeout, Op: op, Err: err}
		}
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED:
			return &ConnectionError{Kind: KindRefused, Op: op, Err: err}
		case syscall.EACCES, syscall.EPERM:
			return &ConnectionError{Kind: KindPermission, Op: op, Err: err}
		case syscall.ETIMEDOUT:
			return &ConnectionError{Kind: KindTimeout, Op: op, Err: err}
		case syscall.ECONNRESET:
			return &ConnectionError{Kind: KindReset, Op: op, Err: err}
		case syscall.EPIPE:
			return &ConnectionError{Kind: KindBrokenPipe, Op: op, Err: err}
		case syscall.ENOENT, syscall.EHOSTUNREACH, syscall.ENETUNREACH:
			return &ConnectionError{Kind: KindHostNotFound, Op: op, Err: err}
		}
	}

	if errors.Is(err, os.ErrPermission) {
		return &ConnectionError{Kind: KindPermission, Op: op, Err: err}
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return &ConnectionError{Kind: KindTimeout, Op: op, Err: err}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ConnectionError{Kind: KindClosed, Op: op, Err: err}
	}

	return &ConnectionError{Kind: KindUnknown, Op: op, Err: err}
}

// IsWouldBlock reports whether err is the transient EAGAIN/EWOULDBLOCK (or
// connect's EINPROGRESS) signal that non-blocking socket operations use to
// mean "no progress right now, try again once the poller says ready" — it is swallowed, never
// translated into the taxonomy.
func IsWouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EINPROGRESS)
}
