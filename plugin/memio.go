package plugin

import (
	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"

	"github.com/moratsam/opencl-vector-flow/pu"
	u "github.com/moratsam/opencl-vector-flow/util"
)

// ProcessMemIO runs one frame held in host memory: in[0] is uploaded, the
// pipeline runs and both outputs are copied into out[0] and out[1]. It blocks
// until the outputs are filled.
func (p *Plugin) ProcessMemIO(in, out [][]byte) (err error) {
	if p.state != Ready {
		return u.WrapErr("process in state "+p.state.String(), ErrState)
	}
	if len(in) != GetInfo().NIn || len(out) != GetInfo().NOut {
		return xerrors.Errorf("got %d inputs and %d outputs: %w", len(in), len(out), ErrBufferCount)
	}
	if err := p.checkSizes(len(in[0]), len(out[0]), len(out[1])); err != nil {
		return err
	}
	if p.mem_queue == nil {
		queue, err := p.ctx.CreateQueue()
		if err != nil {
			return u.WrapErr("create queue", err)
		}
		p.mem_queue = queue
	}
	queue := p.mem_queue

	// Create device buffers, released when the frame is done.
	var bufs []pu.Buffer
	defer func() {
		var result *multierror.Error
		for _, b := range bufs {
			if rerr := b.Release(); rerr != nil {
				result = multierror.Append(result, rerr)
			}
		}
		if err == nil {
			err = result.ErrorOrNil()
		}
	}()
	for _, data := range [][]byte{in[0], out[0], out[1]} {
		buf, err := p.ctx.CreateBuffer(len(data))
		if err != nil {
			return u.WrapErr("create frame buffer", err)
		}
		bufs = append(bufs, buf)
	}

	// Write input data to device. The upload completes before the call
	// returns, so a failing ProcessCLIO leaves no command on bufs[0].
	written, err := queue.EnqueueWriteBuffer(bufs[0], true, in[0], nil)
	if err != nil {
		return u.WrapErr("write input", err)
	}
	defer written.Release()

	done, err := p.ProcessCLIO(bufs[:1], bufs[1:], queue, written)
	if err != nil {
		// Stages enqueued before the failure still reference bufs.
		queue.Finish()
		return err
	}
	defer done.Release()

	// Read outputs from device onto the host.
	for i := range out {
		read, err := queue.EnqueueReadBuffer(bufs[1+i], true, out[i], []pu.Event{done})
		if err != nil {
			return u.WrapErr("read output", err)
		}
		read.Release()
	}
	return nil
}
