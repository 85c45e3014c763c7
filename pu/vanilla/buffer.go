package vanilla

import (
	"sync/atomic"
	"unsafe"

	"github.com/moratsam/opencl-vector-flow/pu"
)

type buffer struct {
	ctx      *Context
	id       int
	size     int
	words    []uint64 // Backing store, keeps every typed view aligned.
	released atomic.Bool
}

func newBuffer(ctx *Context, id, size int) *buffer {
	return &buffer{
		ctx:   ctx,
		id:    id,
		size:  size,
		words: make([]uint64, (size+7)/8),
	}
}

func (b *buffer) Size() int {
	return b.size
}

func (b *buffer) Release() error {
	if b.released.Swap(true) {
		return pu.ErrReleased
	}
	b.ctx.releaseBuffer(b.size)
	return nil
}

func (b *buffer) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&b.words[0])), b.size)
}

func (b *buffer) float32s() []float32 {
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.words[0])), b.size/4)
}

func (b *buffer) int16s() []int16 {
	return unsafe.Slice((*int16)(unsafe.Pointer(&b.words[0])), b.size/2)
}

func (b *buffer) int8s() []int8 {
	return unsafe.Slice((*int8)(unsafe.Pointer(&b.words[0])), b.size)
}

// complex64s views a buffer of float2 elements.
func (b *buffer) complex64s() []complex64 {
	return unsafe.Slice((*complex64)(unsafe.Pointer(&b.words[0])), b.size/8)
}
