package stream

import (
	"sync"

	"github.com/moratsam/etherscan/pipeline"

	"github.com/moratsam/opencl-vector-flow/pu"
)

var payloadPool = sync.Pool{New: func() interface{} { return new(framePayload) }}

type framePayload struct {
	index    int       // Position of the frame in the input stream.
	host_in  []byte    // Raw frame (is copied to the device).
	host_out [2][]byte // Axial and transverse images (device output is copied here).

	buf_in  pu.Buffer    // Device copy of host_in.
	buf_out [2]pu.Buffer // Device outputs.
	written pu.Event     // Completes once buf_in holds the frame.
	done    pu.Event     // Completes once both outputs are written.

	owner *inflight // Set while the payload holds device objects.
}

// Doesn't really clone, cloning isn't needed.
func (p *framePayload) Clone() pipeline.Payload {
	return payloadPool.Get().(*framePayload)
}

func (p *framePayload) MarkAsProcessed() {
	if p.owner != nil {
		p.owner.remove(p)
	}
	p.release()
	payloadPool.Put(p)
}

// release frees the device objects of the payload. Pending commands are
// waited on first, a dropped payload may still have its upload in flight.
func (p *framePayload) release() {
	for _, ev := range []pu.Event{p.written, p.done} {
		if ev != nil {
			ev.Wait()
			ev.Release()
		}
	}
	for _, b := range []pu.Buffer{p.buf_in, p.buf_out[0], p.buf_out[1]} {
		if b != nil {
			b.Release()
		}
	}
	p.written, p.done = nil, nil
	p.buf_in, p.buf_out = nil, [2]pu.Buffer{}
	p.index = 0
	p.owner = nil
}

// inflight tracks the payloads that hold device objects. A payload leaves the
// set when the sink marks it as processed, whatever remains after the pipeline
// returned was dropped by a failing stage.
type inflight struct {
	mu       sync.Mutex
	payloads map[*framePayload]struct{}
}

func newInflight() *inflight {
	return &inflight{payloads: make(map[*framePayload]struct{})}
}

func (f *inflight) add(p *framePayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.owner = f
	f.payloads[p] = struct{}{}
}

func (f *inflight) remove(p *framePayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.payloads, p)
}

// drain releases every tracked payload and returns how many there were.
func (f *inflight) drain() int {
	f.mu.Lock()
	dropped := make([]*framePayload, 0, len(f.payloads))
	for p := range f.payloads {
		dropped = append(dropped, p)
	}
	f.payloads = make(map[*framePayload]struct{})
	f.mu.Unlock()

	for _, p := range dropped {
		p.release()
		payloadPool.Put(p)
	}
	return len(dropped)
}
