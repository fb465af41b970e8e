// Package resolver runs blocking hostname lookups off the reactor's loop
// goroutine. connect(host, port, ...) must not block the single tick loop
// while the OS resolver does its own (possibly slow) network round trip, but
// the reactor otherwise promises every task body runs synchronously on the
// loop thread — this package is the one place that promise is relaxed:
// the lookup (and, in Reactor.ConnectTCP, the socket creation and
// connect(2) call that follow it) run on a pool worker, never the
// connection state transitions that follow them.
package resolver

import (
	"net"
	"sync"

	"github.com/panjf2000/ants/v2"

	rerrors "github.com/qadron/raktr/errors"
)

// Pool bounds the number of concurrent blocking lookups in flight so a
// burst of connect() calls against unresponsive DNS can't spawn unbounded
// goroutines.
type Pool struct {
	once sync.Once
	pool *ants.Pool
}

// Default is shared by every Reactor.
var Default = &Pool{}

const defaultPoolSize = 64

func (p *Pool) ensure() *ants.Pool {
	p.once.Do(func() {
		pool, err := ants.NewPool(defaultPoolSize, ants.WithNonblocking(false))
		if err != nil {
			panic(err) // only fails on an invalid size, which defaultPoolSize never is
		}
		p.pool = pool
	})
	return p.pool
}

// Lookup resolves host asynchronously and invokes done with the result.
// done is called from a pool worker goroutine, never the caller's
// goroutine and never the reactor's loop goroutine — the caller is
// responsible for hopping back onto the loop thread before touching any
// Connection state (Reactor.ConnectTCP does so with runOnLoop).
func (p *Pool) Lookup(host string, done func(addrs []string, err error)) error {
	return p.ensure().Submit(func() {
		addrs, err := net.LookupHost(host)
		if err != nil {
			done(nil, rerrors.Translate("resolve", err))
			return
		}
		done(addrs, nil)
	})
}

// Release shuts down the pool's workers. Primarily for tests.
func (p *Pool) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
