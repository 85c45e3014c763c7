package stream

import (
	"context"

	"github.com/moratsam/etherscan/pipeline"

	"github.com/moratsam/opencl-vector-flow/pu"
	u "github.com/moratsam/opencl-vector-flow/util"
)

type reader struct {
	queue pu.Queue
}

func newReader(queue pu.Queue) *reader {
	return &reader{queue}
}

// This step in the processing pipeline copies the result buffers from the device to the host.
func (r *reader) Process(_ context.Context, payload pipeline.Payload) (pipeline.Payload, error) {
	p := payload.(*framePayload)

	// Read output from device onto the host.
	for i := range p.buf_out {
		ev, err := r.queue.EnqueueReadBuffer(p.buf_out[i], true, p.host_out[i], []pu.Event{p.done})
		if err != nil {
			return nil, u.WrapErr("enqueue buf_out", err)
		}
		ev.Release()
	}

	return p, nil
}
