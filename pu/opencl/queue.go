package opencl

import (
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
	"golang.org/x/xerrors"

	"github.com/moratsam/opencl-vector-flow/pu"
	u "github.com/moratsam/opencl-vector-flow/util"
)

type Queue struct {
	queue *cl.CommandQueue
}

// WrapQueue adopts a command queue owned by the host.
func WrapQueue(queue *cl.CommandQueue) *Queue {
	return &Queue{queue: queue}
}

func (q *Queue) EnqueueKernel(k pu.Kernel, global, local int, wait []pu.Event) (pu.Event, error) {
	kernel, ok := k.(*Kernel)
	if !ok {
		return nil, xerrors.Errorf("foreign kernel %T", k)
	}
	wait_list, err := toEvents(wait)
	if err != nil {
		return nil, err
	}
	ev, err := q.queue.EnqueueNDRangeKernel(kernel.kernel, nil, []int{global}, []int{local}, wait_list)
	if err != nil {
		return nil, u.WrapErr("enqueue kernel "+kernel.name, err)
	}
	return &Event{event: ev}, nil
}

func (q *Queue) EnqueueWriteBuffer(b pu.Buffer, blocking bool, data []byte, wait []pu.Event) (pu.Event, error) {
	buf, wait_list, err := q.transfer(b, len(data), wait)
	if err != nil {
		return nil, err
	}
	ev, err := q.queue.EnqueueWriteBuffer(buf.mem, blocking, 0, len(data), unsafe.Pointer(&data[0]), wait_list)
	if err != nil {
		return nil, u.WrapErr("enqueue write buffer", err)
	}
	return &Event{event: ev}, nil
}

func (q *Queue) EnqueueReadBuffer(b pu.Buffer, blocking bool, data []byte, wait []pu.Event) (pu.Event, error) {
	buf, wait_list, err := q.transfer(b, len(data), wait)
	if err != nil {
		return nil, err
	}
	ev, err := q.queue.EnqueueReadBuffer(buf.mem, blocking, 0, len(data), unsafe.Pointer(&data[0]), wait_list)
	if err != nil {
		return nil, u.WrapErr("enqueue read buffer", err)
	}
	return &Event{event: ev}, nil
}

func (q *Queue) transfer(b pu.Buffer, n int, wait []pu.Event) (*Buffer, []*cl.Event, error) {
	buf, ok := b.(*Buffer)
	if !ok {
		return nil, nil, xerrors.Errorf("foreign buffer %T", b)
	}
	if buf.mem == nil {
		return nil, nil, pu.ErrReleased
	}
	if n == 0 || n > buf.size {
		return nil, nil, xerrors.Errorf("invalid transfer of %d bytes on a %d byte buffer", n, buf.size)
	}
	wait_list, err := toEvents(wait)
	if err != nil {
		return nil, nil, err
	}
	return buf, wait_list, nil
}

func (q *Queue) Finish() error {
	if err := q.queue.Finish(); err != nil {
		return u.WrapErr("finish", err)
	}
	return nil
}

func (q *Queue) Release() error {
	if q.queue == nil {
		return pu.ErrReleased
	}
	q.queue.Release()
	q.queue = nil
	return nil
}

func toEvents(wait []pu.Event) ([]*cl.Event, error) {
	if len(wait) == 0 {
		return nil, nil
	}
	events := make([]*cl.Event, 0, len(wait))
	for _, w := range wait {
		if w == nil {
			continue
		}
		ev, ok := w.(*Event)
		if !ok {
			return nil, xerrors.Errorf("foreign event %T in wait list", w)
		}
		if ev.event == nil {
			return nil, pu.ErrReleased
		}
		events = append(events, ev.event)
	}
	return events, nil
}
