package vanilla

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/moratsam/opencl-vector-flow/pu"
)

const maxSource = `
__kernel void maxabsval(__global const float *in, __local float *scratch, const int n, __global float *result) {}
__kernel void maxabsval2(__global const float *r1, __global const float *r2, const int groups, __global float *maximum) {}
`

func floatBytes(values ...float32) []byte {
	b := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return b
}

func bytesFloat(b []byte) []float32 {
	values := make([]float32, len(b)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return values
}

func TestBuildErrors(t *testing.T) {
	ctx := NewContext()

	_, err := ctx.CreateProgram("")
	var build_err pu.BuildError
	require.True(t, xerrors.As(err, &build_err))

	_, err = ctx.CreateProgram(`__kernel void mystery(__global float *x) {}`)
	require.True(t, xerrors.As(err, &build_err))
	assert.Contains(t, build_err.Log, "mystery")

	_, err = ctx.CreateProgram(`__kernel void maxabsval(__global const float *in, const int n) {}`)
	require.True(t, xerrors.As(err, &build_err))
	assert.Contains(t, build_err.Log, "2 arguments")

	program, err := ctx.CreateProgram(maxSource)
	require.NoError(t, err)
	_, err = program.CreateKernel("combine")
	assert.Error(t, err)
	k, err := program.CreateKernel("maxabsval")
	require.NoError(t, err)
	assert.Equal(t, "maxabsval", k.Name())
}

func TestSetArgTypes(t *testing.T) {
	ctx := NewContext()
	program, err := ctx.CreateProgram(maxSource)
	require.NoError(t, err)
	k, err := program.CreateKernel("maxabsval")
	require.NoError(t, err)
	buf, err := ctx.CreateBuffer(16)
	require.NoError(t, err)

	assert.NoError(t, k.SetArg(0, buf))
	assert.NoError(t, k.SetArg(1, pu.Local(256)))
	assert.NoError(t, k.SetArg(2, int32(4)))
	assert.Error(t, k.SetArg(2, 4), "untyped int")
	assert.Error(t, k.SetArg(2, float32(4)))
	assert.Error(t, k.SetArg(0, int32(1)))
	assert.Error(t, k.SetArg(4, buf))

	// Arg 3 is missing.
	q, err := ctx.CreateQueue()
	require.NoError(t, err)
	_, err = q.EnqueueKernel(k, 64, 64, nil)
	assert.Error(t, err)
}

func TestMaxAbsReduction(t *testing.T) {
	ctx := NewContext(WithWorkers(3))
	program, err := ctx.CreateProgram(maxSource)
	require.NoError(t, err)
	k1, err := program.CreateKernel("maxabsval")
	require.NoError(t, err)
	k2, err := program.CreateKernel("maxabsval2")
	require.NoError(t, err)
	q, err := ctx.CreateQueue()
	require.NoError(t, err)

	n := 200
	values := make([]float32, n)
	for i := range values {
		values[i] = float32(i%17) - 8
	}
	values[150] = -42.5
	in, _ := ctx.CreateBuffer(4 * n)
	r1, _ := ctx.CreateBuffer(4 * 4)
	r2, _ := ctx.CreateBuffer(4 * 4)
	maximum, _ := ctx.CreateBuffer(4)
	_, err = q.EnqueueWriteBuffer(in, true, floatBytes(values...), nil)
	require.NoError(t, err)
	_, err = q.EnqueueWriteBuffer(r2, true, floatBytes(1, 2, 3, 50), nil)
	require.NoError(t, err)

	require.NoError(t, k1.SetArg(0, in))
	require.NoError(t, k1.SetArg(1, pu.Local(256)))
	require.NoError(t, k1.SetArg(2, int32(n)))
	require.NoError(t, k1.SetArg(3, r1))
	ev1, err := q.EnqueueKernel(k1, 256, 64, nil)
	require.NoError(t, err)

	require.NoError(t, k2.SetArg(0, r1))
	require.NoError(t, k2.SetArg(1, r2))
	require.NoError(t, k2.SetArg(2, int32(3)))
	require.NoError(t, k2.SetArg(3, maximum))
	ev2, err := q.EnqueueKernel(k2, 1, 1, []pu.Event{ev1})
	require.NoError(t, err)
	require.NoError(t, ev2.Wait())

	out := make([]byte, 16)
	_, err = q.EnqueueReadBuffer(r1, true, out, nil)
	require.NoError(t, err)
	assert.Equal(t, []float32{8, 8, 42.5, 4}, bytesFloat(out))

	// Only the first three groups of r2 count.
	out = make([]byte, 4)
	_, err = q.EnqueueReadBuffer(maximum, true, out, nil)
	require.NoError(t, err)
	assert.Equal(t, float32(42.5), bytesFloat(out)[0])
}

func TestArgSnapshot(t *testing.T) {
	ctx := NewContext()
	program, err := ctx.CreateProgram(maxSource)
	require.NoError(t, err)
	k, err := program.CreateKernel("maxabsval")
	require.NoError(t, err)
	q, err := ctx.CreateQueue()
	require.NoError(t, err)

	a, _ := ctx.CreateBuffer(4 * 64)
	b, _ := ctx.CreateBuffer(4 * 64)
	ra, _ := ctx.CreateBuffer(4)
	rb, _ := ctx.CreateBuffer(4)
	_, err = q.EnqueueWriteBuffer(a, true, floatBytes(3), nil)
	require.NoError(t, err)
	_, err = q.EnqueueWriteBuffer(b, true, floatBytes(-7), nil)
	require.NoError(t, err)

	gate, err := ctx.CreateUserEvent()
	require.NoError(t, err)
	require.NoError(t, k.SetArg(1, pu.Local(256)))
	require.NoError(t, k.SetArg(2, int32(64)))

	// Both launches are held back by gate, the second SetArg must not leak
	// into the first launch.
	require.NoError(t, k.SetArg(0, a))
	require.NoError(t, k.SetArg(3, ra))
	_, err = q.EnqueueKernel(k, 64, 64, []pu.Event{gate})
	require.NoError(t, err)
	require.NoError(t, k.SetArg(0, b))
	require.NoError(t, k.SetArg(3, rb))
	_, err = q.EnqueueKernel(k, 64, 64, nil)
	require.NoError(t, err)
	require.NoError(t, gate.SetComplete())
	require.NoError(t, q.Finish())

	out := make([]byte, 4)
	_, err = q.EnqueueReadBuffer(ra, true, out, nil)
	require.NoError(t, err)
	assert.Equal(t, float32(3), bytesFloat(out)[0])
	_, err = q.EnqueueReadBuffer(rb, true, out, nil)
	require.NoError(t, err)
	assert.Equal(t, float32(7), bytesFloat(out)[0])
}

func TestQueueOrdering(t *testing.T) {
	ctx := NewContext()
	buf, err := ctx.CreateBuffer(4)
	require.NoError(t, err)
	gate, err := ctx.CreateUserEvent()
	require.NoError(t, err)

	// In order: the read waits for the gated write.
	q, err := ctx.CreateQueue()
	require.NoError(t, err)
	_, err = q.EnqueueWriteBuffer(buf, false, []byte{1, 2, 3, 4}, []pu.Event{gate})
	require.NoError(t, err)
	out := make([]byte, 4)
	read, err := q.EnqueueReadBuffer(buf, false, out, nil)
	require.NoError(t, err)
	require.NoError(t, gate.SetComplete())
	require.NoError(t, read.Wait())
	assert.Equal(t, []byte{1, 2, 3, 4}, out)

	// Out of order: the read only waits on its own wait list.
	gate2, _ := ctx.CreateUserEvent()
	ooo, err := ctx.CreateOutOfOrderQueue()
	require.NoError(t, err)
	_, err = ooo.EnqueueWriteBuffer(buf, false, []byte{9, 9, 9, 9}, []pu.Event{gate2})
	require.NoError(t, err)
	out = make([]byte, 4)
	read, err = ooo.EnqueueReadBuffer(buf, true, out, nil)
	require.NoError(t, err)
	require.NoError(t, read.Wait())
	assert.Equal(t, []byte{1, 2, 3, 4}, out)
	require.NoError(t, gate2.SetComplete())
	require.NoError(t, ooo.Finish())
}

func TestUserEvent(t *testing.T) {
	ctx := NewContext()
	ev, err := ctx.CreateUserEvent()
	require.NoError(t, err)
	require.NoError(t, ev.SetComplete())
	require.NoError(t, ev.Wait())
	require.NoError(t, ev.Release())
	assert.ErrorIs(t, ev.Release(), pu.ErrReleased)

	q, _ := ctx.CreateQueue()
	buf, _ := ctx.CreateBuffer(4)
	cmd, err := q.EnqueueWriteBuffer(buf, true, []byte{1}, nil)
	require.NoError(t, err)
	assert.Error(t, cmd.SetComplete())
}

func TestFailedDependency(t *testing.T) {
	ctx := NewContext()
	program, err := ctx.CreateProgram(maxSource)
	require.NoError(t, err)
	k, err := program.CreateKernel("maxabsval")
	require.NoError(t, err)
	q, _ := ctx.CreateOutOfOrderQueue()

	// n larger than the input: the kernel faults.
	in, _ := ctx.CreateBuffer(4)
	res, _ := ctx.CreateBuffer(4)
	require.NoError(t, k.SetArg(0, in))
	require.NoError(t, k.SetArg(1, pu.Local(256)))
	require.NoError(t, k.SetArg(2, int32(64)))
	require.NoError(t, k.SetArg(3, res))
	bad, err := q.EnqueueKernel(k, 64, 64, nil)
	require.NoError(t, err)
	assert.Error(t, bad.Wait())

	out := make([]byte, 4)
	after, err := q.EnqueueReadBuffer(res, false, out, []pu.Event{bad})
	require.NoError(t, err)
	assert.Error(t, after.Wait())
}

func TestTransferChecks(t *testing.T) {
	ctx := NewContext()
	q, _ := ctx.CreateQueue()
	buf, _ := ctx.CreateBuffer(4)
	_, err := q.EnqueueWriteBuffer(buf, true, make([]byte, 5), nil)
	assert.Error(t, err)
	_, err = q.EnqueueKernel(nil, 64, 64, nil)
	assert.Error(t, err)

	require.NoError(t, buf.Release())
	_, err = q.EnqueueReadBuffer(buf, true, make([]byte, 4), nil)
	assert.ErrorIs(t, err, pu.ErrReleased)
	assert.ErrorIs(t, buf.Release(), pu.ErrReleased)
}

func TestStats(t *testing.T) {
	ctx := NewContext(WithAllocLimit(100))
	a, err := ctx.CreateBuffer(60)
	require.NoError(t, err)
	_, err = ctx.CreateBuffer(50)
	assert.ErrorIs(t, err, ErrAllocation)
	b, err := ctx.CreateBuffer(40)
	require.NoError(t, err)
	assert.Equal(t, Stats{Live: 2, Allocated: 2, LiveBytes: 100}, ctx.Stats())

	require.NoError(t, a.Release())
	require.NoError(t, b.Release())
	assert.Equal(t, Stats{Live: 0, Allocated: 2, Released: 2}, ctx.Stats())

	_, err = ctx.CreateBuffer(0)
	assert.Error(t, err)
}
