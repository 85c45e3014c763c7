package stream

import (
	"context"

	"github.com/moratsam/etherscan/pipeline"

	"github.com/moratsam/opencl-vector-flow/plugin"
	"github.com/moratsam/opencl-vector-flow/pu"
	u "github.com/moratsam/opencl-vector-flow/util"
)

type kernelRunner struct {
	plugin *plugin.Plugin
	queue  pu.Queue
}

func newKernelRunner(plugin *plugin.Plugin, queue pu.Queue) *kernelRunner {
	return &kernelRunner{plugin, queue}
}

func (k *kernelRunner) Process(_ context.Context, payload pipeline.Payload) (pipeline.Payload, error) {
	p := payload.(*framePayload)

	// Enqueue pipeline.
	done, err := k.plugin.ProcessCLIO([]pu.Buffer{p.buf_in}, p.buf_out[:], k.queue, p.written)
	if err != nil {
		return nil, u.WrapErr("process frame", err)
	}
	p.done = done

	// ProcessCLIO is not reentrant, block until this frame is through.
	if err := done.Wait(); err != nil {
		return nil, u.WrapErr("kernel finish", err)
	}

	return p, nil
}
