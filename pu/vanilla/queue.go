package vanilla

import (
	"sync"
	"sync/atomic"

	"golang.org/x/xerrors"

	"github.com/moratsam/opencl-vector-flow/pu"
)

type Queue struct {
	ctx          *Context
	out_of_order bool

	mu       sync.Mutex
	last     *event
	pending  sync.WaitGroup
	released atomic.Bool
}

func (q *Queue) EnqueueKernel(k pu.Kernel, global, local int, wait []pu.Event) (pu.Event, error) {
	kernel, ok := k.(*Kernel)
	if !ok {
		return nil, xerrors.Errorf("foreign kernel %T", k)
	}
	if local <= 0 {
		return nil, xerrors.Errorf("kernel %s: invalid work group size %d", kernel.name, local)
	}
	if global%local != 0 {
		return nil, xerrors.Errorf("kernel %s: global size %d is not a multiple of local size %d", kernel.name, global, local)
	}
	// Arguments are captured now, later SetArg calls don't affect this launch.
	args, err := kernel.snapshot()
	if err != nil {
		return nil, err
	}
	return q.enqueue(wait, func() error {
		return q.ctx.dispatch(kernel, args, global, local)
	})
}

func (q *Queue) EnqueueWriteBuffer(b pu.Buffer, blocking bool, data []byte, wait []pu.Event) (pu.Event, error) {
	buf, err := q.checkTransfer(b, len(data))
	if err != nil {
		return nil, err
	}
	src := data
	if !blocking {
		src = append([]byte(nil), data...)
	}
	ev, err := q.enqueue(wait, func() error {
		copy(buf.bytes(), src)
		return nil
	})
	if err != nil || !blocking {
		return ev, err
	}
	return ev, ev.Wait()
}

func (q *Queue) EnqueueReadBuffer(b pu.Buffer, blocking bool, data []byte, wait []pu.Event) (pu.Event, error) {
	buf, err := q.checkTransfer(b, len(data))
	if err != nil {
		return nil, err
	}
	ev, err := q.enqueue(wait, func() error {
		copy(data, buf.bytes())
		return nil
	})
	if err != nil || !blocking {
		return ev, err
	}
	return ev, ev.Wait()
}

func (q *Queue) checkTransfer(b pu.Buffer, n int) (*buffer, error) {
	buf, ok := b.(*buffer)
	if !ok {
		return nil, xerrors.Errorf("foreign buffer %T", b)
	}
	if buf.released.Load() {
		return nil, xerrors.Errorf("buffer %d: %w", buf.id, pu.ErrReleased)
	}
	if n > buf.size {
		return nil, xerrors.Errorf("transfer of %d bytes exceeds buffer %d of %d bytes", n, buf.id, buf.size)
	}
	return buf, nil
}

func (q *Queue) enqueue(wait []pu.Event, run func() error) (*event, error) {
	if q.released.Load() {
		return nil, xerrors.Errorf("queue: %w", pu.ErrReleased)
	}
	deps, err := toEvents(wait)
	if err != nil {
		return nil, err
	}

	q.mu.Lock()
	if !q.out_of_order && q.last != nil {
		deps = append(deps, q.last)
	}
	ev := newEvent(false)
	q.last = ev
	q.pending.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.pending.Done()
		for _, dep := range deps {
			if err := dep.Wait(); err != nil {
				ev.complete(xerrors.Errorf("wait list: %w", err))
				return
			}
		}
		ev.complete(safeRun(run))
	}()
	return ev, nil
}

// Finish blocks until every enqueued command completed.
func (q *Queue) Finish() error {
	q.pending.Wait()
	return nil
}

func (q *Queue) Release() error {
	if q.released.Swap(true) {
		return pu.ErrReleased
	}
	q.pending.Wait()
	return nil
}

// safeRun turns an out of bounds access inside a command into a command error.
func safeRun(run func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.Errorf("command fault: %v", r)
		}
	}()
	return run()
}
