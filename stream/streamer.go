// Package stream pushes a sequence of frames through a prepared plugin.
// Uploading frame k+1, processing frame k and downloading frame k-1 overlap,
// each on its own queue.
package stream

import (
	"context"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/moratsam/etherscan/pipeline"
	"golang.org/x/xerrors"

	"github.com/moratsam/opencl-vector-flow/geometry"
	"github.com/moratsam/opencl-vector-flow/plugin"
	"github.com/moratsam/opencl-vector-flow/pu"
	u "github.com/moratsam/opencl-vector-flow/util"
)

// Result holds the two quantised images of one frame.
type Result struct {
	Index int
	Out   [2][]byte
}

type Streamer struct {
	plugin       *plugin.Plugin
	queue_kernel pu.Queue // Queue over which kernel commands are sent.
	queue_read   pu.Queue // Queue over which read commands are sent.
	queue_write  pu.Queue // Queue over which write commands are sent.

	in_size  int
	out_size int
	limit    int

	pip      *pipeline.Pipeline
	inflight *inflight
}

type Option func(*Streamer)

// WithLimit stops the stream after n frames.
func WithLimit(n int) Option {
	return func(s *Streamer) { s.limit = n }
}

// NewStreamer wires a plugin that is ready to process onto three new queues
// of dev_context.
func NewStreamer(dev_context pu.Context, p *plugin.Plugin, opts ...Option) (*Streamer, error) {
	if p.State() != plugin.Ready {
		return nil, u.WrapErr("streamer needs a prepared plugin", plugin.ErrState)
	}
	s := &Streamer{
		plugin:   p,
		inflight: newInflight(),
		in_size:  geometry.InputSize(p.Params()).Bytes(),
		out_size: geometry.OutputSize(p.Params()).Bytes(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Create queues.
	queues := []*pu.Queue{&s.queue_kernel, &s.queue_read, &s.queue_write}
	for _, q := range queues {
		queue, err := dev_context.CreateQueue()
		if err != nil {
			s.Close()
			return nil, u.WrapErr("create command queue", err)
		}
		*q = queue
	}

	// Assemble pipeline.
	pipeline_cfg := pipelineConfig{
		dev_context:  dev_context,
		plugin:       p,
		queue_kernel: s.queue_kernel,
		queue_read:   s.queue_read,
		queue_write:  s.queue_write,
		inflight:     s.inflight,
	}
	s.pip = assemblePipeline(pipeline_cfg)
	return s, nil
}

// Run reads frames from r until it is exhausted and calls consume with the
// results in frame order. It returns the number of frames processed.
func (s *Streamer) Run(ctx context.Context, r io.Reader, consume func(Result) error) (int, error) {
	count := 0
	source := &frameSource{r: r, in_size: s.in_size, out_size: s.out_size, limit: s.limit}
	sink := &frameSink{consume: func(res Result) error {
		count++
		return consume(res)
	}}
	err := s.pip.Process(ctx, source, sink)
	// Payloads dropped by a failing stage or sink still hold device objects.
	s.inflight.drain()
	if err != nil {
		return count, u.WrapErr("stream process", err)
	}
	if count != source.read {
		return count, xerrors.Errorf("read %d frames, delivered %d", source.read, count)
	}
	return count, nil
}

func (s *Streamer) Close() error {
	var result *multierror.Error
	for _, q := range []*pu.Queue{&s.queue_kernel, &s.queue_read, &s.queue_write} {
		if *q == nil {
			continue
		}
		if err := (*q).Release(); err != nil {
			result = multierror.Append(result, err)
		}
		*q = nil
	}
	return result.ErrorOrNil()
}
