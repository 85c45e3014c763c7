package stream

import (
	"context"

	"github.com/moratsam/etherscan/pipeline"

	"github.com/moratsam/opencl-vector-flow/pu"
	u "github.com/moratsam/opencl-vector-flow/util"
)

type writer struct {
	dev_context pu.Context
	queue       pu.Queue
	inflight    *inflight
}

func newWriter(dev_context pu.Context, queue pu.Queue, tracked *inflight) *writer {
	return &writer{dev_context, queue, tracked}
}

// This step in the processing pipeline copies the frame from host onto the device.
func (w *writer) Process(_ context.Context, payload pipeline.Payload) (pipeline.Payload, error) {
	p := payload.(*framePayload)
	w.inflight.add(p)

	// Create output buffers.
	for i := range p.buf_out {
		buf, err := w.dev_context.CreateBuffer(len(p.host_out[i]))
		if err != nil {
			return nil, u.WrapErr("create buf_out", err)
		}
		p.buf_out[i] = buf
	}

	// Create input buffer.
	buf_in, err := w.dev_context.CreateBuffer(len(p.host_in))
	if err != nil {
		return nil, u.WrapErr("create buf_in", err)
	}
	p.buf_in = buf_in

	// Write input data to device, the kernels wait on the event.
	written, err := w.queue.EnqueueWriteBuffer(buf_in, false, p.host_in, nil)
	if err != nil {
		return nil, u.WrapErr("enqueue buf_in", err)
	}
	p.written = written

	return p, nil
}
