// Package gid identifies the calling goroutine. The reactor's thread-affinity
// checks (InSameThread, the inline fast path of Schedule) need to answer "is
// the caller the loop goroutine?" from arbitrary call sites, a question Go's
// concurrency model doesn't expose directly — there is no goroutine-local
// storage and no portable "current goroutine ID" API. This package uses the
// same technique as the small goroutine-local-storage shims in the wider Go
// ecosystem: parse the numeric ID out of the header line of runtime.Stack.
// It is deliberately isolated here so the rest of the reactor never touches
// runtime internals directly.
package gid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Current returns the calling goroutine's runtime-assigned ID.
func Current() uint64 {
	buf := make([]byte, 64)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}

	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	idx := bytes.IndexByte(buf, ' ')
	if idx < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(buf[:idx]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
