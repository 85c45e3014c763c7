package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/moratsam/opencl-vector-flow/geometry"
	vio "github.com/moratsam/opencl-vector-flow/io"
	"github.com/moratsam/opencl-vector-flow/params"
	"github.com/moratsam/opencl-vector-flow/plugin"
	"github.com/moratsam/opencl-vector-flow/pu/vanilla"
)

func testParams() params.Params {
	prm := params.Default()
	prm.Emissions = 8
	prm.NLines = 3
	prm.NLineSamples = 48
	prm.NumbAvg = 4
	prm.LagTO = 1
	return prm
}

func newPlugin(t *testing.T, ctx *vanilla.Context, prm params.Params) *plugin.Plugin {
	t.Helper()
	p := plugin.New()
	require.NoError(t, p.InitializeCL(ctx, ""))
	require.NoError(t, p.Configure(prm))
	require.NoError(t, p.Prepare())
	t.Cleanup(func() { p.Cleanup() })
	return p
}

func randomFrames(prm params.Params, n int) [][]byte {
	rng := rand.New(rand.NewSource(7))
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = make([]byte, geometry.InputSize(prm).Bytes())
		for j := 0; j < len(frames[i]); j += 2 {
			binary.LittleEndian.PutUint16(frames[i][j:], uint16(int16(rng.Intn(2001)-1000)))
		}
	}
	return frames
}

func TestStreamMatchesMemIO(t *testing.T) {
	prm := testParams()
	ctx := vanilla.NewContext()
	p := newPlugin(t, ctx, prm)
	frames := randomFrames(prm, 4)

	n := geometry.OutputSize(prm).Bytes()
	want := make([][2][]byte, len(frames))
	for i, frame := range frames {
		want[i] = [2][]byte{make([]byte, n), make([]byte, n)}
		require.NoError(t, p.ProcessMemIO([][]byte{frame}, want[i][:]))
	}

	s, err := NewStreamer(ctx, p)
	require.NoError(t, err)
	defer s.Close()

	var got []Result
	count, err := s.Run(context.Background(), bytes.NewReader(bytes.Join(frames, nil)), func(res Result) error {
		got = append(got, res)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, len(frames), count)
	require.Len(t, got, len(frames))
	for i, res := range got {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, want[i], res.Out, "frame %d", i)
	}

	// Frame buffers are returned, only the session's set stays.
	assert.Equal(t, 17, ctx.Stats().Live)
}

func TestStreamLimit(t *testing.T) {
	prm := testParams()
	ctx := vanilla.NewContext()
	p := newPlugin(t, ctx, prm)

	s, err := NewStreamer(ctx, p, WithLimit(2))
	require.NoError(t, err)
	defer s.Close()

	frames := randomFrames(prm, 3)
	count, err := s.Run(context.Background(), bytes.NewReader(bytes.Join(frames, nil)), func(Result) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStreamShortFrame(t *testing.T) {
	prm := testParams()
	ctx := vanilla.NewContext()
	p := newPlugin(t, ctx, prm)

	s, err := NewStreamer(ctx, p)
	require.NoError(t, err)
	defer s.Close()

	frames := randomFrames(prm, 2)
	data := bytes.Join(frames, nil)
	_, err = s.Run(context.Background(), bytes.NewReader(data[:len(data)-10]), func(Result) error { return nil })
	assert.ErrorIs(t, err, vio.ErrShortFrame)
	assert.Equal(t, 17, ctx.Stats().Live)
}

func TestStreamConsumerError(t *testing.T) {
	prm := testParams()
	ctx := vanilla.NewContext()
	p := newPlugin(t, ctx, prm)

	s, err := NewStreamer(ctx, p)
	require.NoError(t, err)
	defer s.Close()

	errConsume := xerrors.New("consumer gone")
	frames := randomFrames(prm, 6)
	for round := 0; round < 2; round++ {
		_, err = s.Run(context.Background(), bytes.NewReader(bytes.Join(frames, nil)), func(res Result) error {
			if res.Index == 1 {
				return errConsume
			}
			return nil
		})
		assert.ErrorIs(t, err, errConsume)
		// Frames dropped by the failing sink give back their buffers and events.
		assert.Equal(t, 17, ctx.Stats().Live, "round %d", round)
	}
	assert.Zero(t, s.inflight.drain())
}

func TestStreamerNeedsPreparedPlugin(t *testing.T) {
	ctx := vanilla.NewContext()
	p := plugin.New()
	require.NoError(t, p.InitializeCL(ctx, ""))
	_, err := NewStreamer(ctx, p)
	assert.ErrorIs(t, err, plugin.ErrState)
}
