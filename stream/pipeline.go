package stream

import (
	"context"
	"io"

	"github.com/moratsam/etherscan/pipeline"

	vio "github.com/moratsam/opencl-vector-flow/io"
	"github.com/moratsam/opencl-vector-flow/plugin"
	"github.com/moratsam/opencl-vector-flow/pu"
)

type pipelineConfig struct {
	dev_context  pu.Context
	plugin       *plugin.Plugin
	queue_kernel pu.Queue
	queue_read   pu.Queue
	queue_write  pu.Queue
	inflight     *inflight
}

func assemblePipeline(cfg pipelineConfig) *pipeline.Pipeline {
	return pipeline.New(
		pipeline.DynamicWorkerPool(newWriter(cfg.dev_context, cfg.queue_write, cfg.inflight), 1),
		pipeline.FIFO(newKernelRunner(cfg.plugin, cfg.queue_kernel)),
		pipeline.DynamicWorkerPool(newReader(cfg.queue_read), 1),
	)
}

// Source of the pipeline, reads raw frames until the end of the stream.
type frameSource struct {
	r        io.Reader
	in_size  int
	out_size int
	limit    int // Stop after limit frames, 0 reads everything.

	next *framePayload
	read int
	err  error
}

func (s *frameSource) Error() error { return s.err }

func (s *frameSource) Next(ctx context.Context) bool {
	if s.limit > 0 && s.read >= s.limit {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	default:
	}

	p := payloadPool.Get().(*framePayload)
	// Allocate go-side storage on first use of a pooled payload.
	if len(p.host_in) != s.in_size {
		p.host_in = make([]byte, s.in_size)
	}
	for i := range p.host_out {
		if len(p.host_out[i]) != s.out_size {
			p.host_out[i] = make([]byte, s.out_size)
		}
	}

	ok, err := vio.ReadFrame(s.r, p.host_in)
	if !ok {
		s.err = err
		payloadPool.Put(p)
		return false
	}
	p.index = s.read
	s.read++
	s.next = p
	return true
}

func (s *frameSource) Payload() pipeline.Payload {
	return s.next
}

// Sink of the pipeline, hands a copy of each frame's outputs to the consumer.
type frameSink struct {
	consume func(Result) error
}

func (s *frameSink) Consume(_ context.Context, payload pipeline.Payload) error {
	p := payload.(*framePayload)

	res := Result{Index: p.index}
	for i := range res.Out {
		res.Out[i] = append([]byte(nil), p.host_out[i]...)
	}
	return s.consume(res)
}
