package client

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// errNotQueried is the result of keys no worker could take, because every
// worker failed to get a client
var errNotQueried = errors.New("no connection available for the query")

// Result is the outcome of one query of a pool operation
type Result[T any] struct {
	Value T
	Err   error
}

// Pool runs large query sets over several clients in parallel. Every worker
// owns one client and pulls queries from a shared key list until it is
// exhausted, so fast connections take more of the work.
type Pool struct {
	size    int
	factory func() (*Client, error)

	mu     sync.Mutex
	idle   []*Client
	closed bool
}

// NewPool creates a pool of at most size clients created by factory
func NewPool(size int, factory func() (*Client, error)) *Pool {
	return &Pool{
		size:    max(1, size),
		factory: factory,
	}
}

// NewPoolFromConfig creates a pool of config.PoolSize clients for config
func NewPoolFromConfig(config common.ClientConfig) *Pool {
	return NewPool(config.PoolSize, func() (*Client, error) {
		return NewClientFromConfig(config)
	})
}

// Close closes all idle clients
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	var errs []error
	for _, c := range p.idle {
		errs = append(errs, c.Close())
	}
	p.idle = nil
	return errors.Join(errs...)
}

func (p *Pool) get() (*Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	return p.factory()
}

func (p *Pool) put(c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.idle) >= p.size {
		c.Close()
		return
	}
	p.idle = append(p.idle, c)
}

// GetUnihashes looks up the unihashes of all queries in parallel. The result
// has an entry for every key, Value is "" for unknown tasks.
func GetUnihashes[K comparable](p *Pool, queries map[K]UnihashQuery) map[K]Result[string] {
	return runKeyTasks(p, queries, func(c *Client, next func() (UnihashQuery, bool)) ([]string, error) {
		return c.GetUnihashesFrom(next)
	})
}

// UnihashesExist checks all unihashes in parallel. The result has an entry for every key.
func UnihashesExist[K comparable](p *Pool, queries map[K]string) map[K]Result[bool] {
	return runKeyTasks(p, queries, func(c *Client, next func() (string, bool)) ([]bool, error) {
		return c.UnihashesExistFrom(next)
	})
}

// runKeyTasks distributes the queries over the workers of the pool. Workers
// claim keys one at a time through an atomic index while their batch pulls
// queries, and map the answers back to the claimed keys by position.
func runKeyTasks[K comparable, Q, R any](
	p *Pool,
	queries map[K]Q,
	call func(c *Client, next func() (Q, bool)) ([]R, error),
) map[K]Result[R] {
	keys := make([]K, 0, len(queries))
	for k := range queries {
		keys = append(keys, k)
	}

	results := xsync.NewMapOf[K, Result[R]]()
	var claim atomic.Int64
	var lastErr atomic.Pointer[error]

	var wg sync.WaitGroup
	for w := 0; w < min(p.size, len(keys)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			c, err := p.get()
			if err != nil {
				Logger.Warningf("Pool worker failed to get a client: %v", err)
				lastErr.Store(&err)
				return
			}

			var claimed []K
			next := func() (Q, bool) {
				i := claim.Add(1) - 1
				if i >= int64(len(keys)) {
					var zero Q
					return zero, false
				}
				k := keys[i]
				claimed = append(claimed, k)
				return queries[k], true
			}

			values, err := call(c, next)
			if err == nil && len(values) != len(claimed) {
				err = common.NewProtocolError("expected %d results, got %d", len(claimed), len(values))
			}
			if err != nil {
				Logger.Warningf("Pool worker failed after claiming %d queries: %v", len(claimed), err)
				for _, k := range claimed {
					results.Store(k, Result[R]{Err: err})
				}
				lastErr.Store(&err)
				c.Close()
				return
			}

			for i, k := range claimed {
				results.Store(k, Result[R]{Value: values[i]})
			}
			p.put(c)
		}()
	}
	wg.Wait()

	out := make(map[K]Result[R], len(keys))
	results.Range(func(k K, r Result[R]) bool {
		out[k] = r
		return true
	})

	for _, k := range keys {
		if _, ok := out[k]; ok {
			continue
		}
		err := errNotQueried
		if e := lastErr.Load(); e != nil {
			err = errors.Join(errNotQueried, *e)
		}
		out[k] = Result[R]{Err: err}
	}

	return out
}
