// Package vanilla runs the pipeline on the host. It implements the pu device
// interfaces with goroutines: commands execute asynchronously once their wait
// lists complete and kernels are dispatched one goroutine per batch of work
// groups.
package vanilla

import (
	"runtime"
	"sync"

	"golang.org/x/xerrors"

	"github.com/moratsam/opencl-vector-flow/pu"
)

var ErrAllocation = xerrors.New("memory object allocation failure")

// Stats counts buffer allocations made through a Context.
type Stats struct {
	Live      int
	Allocated int
	Released  int
	LiveBytes int
}

type Context struct {
	workers     int
	alloc_limit int

	mu      sync.Mutex
	stats   Stats
	next_id int
}

type Option func(*Context)

// WithWorkers bounds the number of goroutines a kernel dispatch uses.
func WithWorkers(n int) Option {
	return func(c *Context) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithAllocLimit makes CreateBuffer fail once live allocations would exceed
// limit bytes.
func WithAllocLimit(limit int) Option {
	return func(c *Context) { c.alloc_limit = limit }
}

func NewContext(opts ...Option) *Context {
	c := &Context{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Context) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Context) CreateBuffer(size int) (pu.Buffer, error) {
	if size <= 0 {
		return nil, xerrors.Errorf("invalid buffer size %d", size)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.alloc_limit > 0 && c.stats.LiveBytes+size > c.alloc_limit {
		return nil, xerrors.Errorf("allocate %d bytes (%d live): %w", size, c.stats.LiveBytes, ErrAllocation)
	}
	c.next_id++
	c.stats.Live++
	c.stats.Allocated++
	c.stats.LiveBytes += size
	return newBuffer(c, c.next_id, size), nil
}

func (c *Context) releaseBuffer(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Live--
	c.stats.Released++
	c.stats.LiveBytes -= size
}

func (c *Context) CreateUserEvent() (pu.Event, error) {
	return newEvent(true), nil
}

// CreateQueue returns an in-order queue.
func (c *Context) CreateQueue() (pu.Queue, error) {
	return &Queue{ctx: c}, nil
}

// CreateOutOfOrderQueue returns a queue whose commands only wait on their
// explicit wait lists.
func (c *Context) CreateOutOfOrderQueue() (pu.Queue, error) {
	return &Queue{ctx: c, out_of_order: true}, nil
}
