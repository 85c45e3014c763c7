package opencl

import (
	"github.com/jgillich/go-opencl/cl"
	"golang.org/x/xerrors"

	"github.com/moratsam/opencl-vector-flow/pu"
	u "github.com/moratsam/opencl-vector-flow/util"
)

type Program struct {
	program *cl.Program
}

func (p *Program) CreateKernel(name string) (pu.Kernel, error) {
	if p.program == nil {
		return nil, pu.ErrReleased
	}
	kernel, err := p.program.CreateKernel(name)
	if err != nil {
		return nil, u.WrapErr("create kernel "+name, err)
	}
	return &Kernel{kernel: kernel, name: name}, nil
}

func (p *Program) Release() error {
	if p.program == nil {
		return pu.ErrReleased
	}
	p.program.Release()
	p.program = nil
	return nil
}

type Kernel struct {
	kernel *cl.Kernel
	name   string
}

func (k *Kernel) Name() string {
	return k.name
}

func (k *Kernel) SetArg(index int, value interface{}) error {
	var err error
	switch v := value.(type) {
	case *Buffer:
		err = k.kernel.SetArgBuffer(index, v.mem)
	case int32:
		err = k.kernel.SetArgInt32(index, v)
	case float32:
		err = k.kernel.SetArgFloat32(index, v)
	case pu.Local:
		err = k.kernel.SetArgLocal(index, int(v))
	default:
		return xerrors.Errorf("kernel %s: unsupported arg type %T", k.name, value)
	}
	if err != nil {
		return u.WrapErr("set arg", err)
	}
	return nil
}

func (k *Kernel) Release() error {
	if k.kernel == nil {
		return pu.ErrReleased
	}
	k.kernel.Release()
	k.kernel = nil
	return nil
}

type Buffer struct {
	mem  *cl.MemObject
	size int
}

func (b *Buffer) Size() int {
	return b.size
}

// Mem exposes the underlying memory object to hosts that share it.
func (b *Buffer) Mem() *cl.MemObject {
	return b.mem
}

func (b *Buffer) Release() error {
	if b.mem == nil {
		return pu.ErrReleased
	}
	b.mem.Release()
	b.mem = nil
	return nil
}

// WrapBuffer adopts a memory object allocated by the host.
func WrapBuffer(mem *cl.MemObject, size int) *Buffer {
	return &Buffer{mem: mem, size: size}
}

type Event struct {
	event *cl.Event
	user  bool
}

func (e *Event) Wait() error {
	if e.event == nil {
		return pu.ErrReleased
	}
	return cl.WaitForEvents([]*cl.Event{e.event})
}

func (e *Event) SetComplete() error {
	if !e.user {
		return xerrors.New("set status of a command event")
	}
	if e.event == nil {
		return pu.ErrReleased
	}
	return e.event.SetUserEventStatus(0)
}

func (e *Event) Release() error {
	if e.event == nil {
		return pu.ErrReleased
	}
	e.event.Release()
	e.event = nil
	return nil
}

// WrapEvent adopts an event created by the host, e.g. the input ready token.
func WrapEvent(ev *cl.Event) *Event {
	return &Event{event: ev}
}
