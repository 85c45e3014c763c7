package geometry

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moratsam/opencl-vector-flow/params"
	"github.com/moratsam/opencl-vector-flow/sample"
)

func TestWorkGroup(t *testing.T) {
	for _, local := range []int{1, 8, 64} {
		for problem := 0; problem < 300; problem++ {
			wg := NewWorkGroup(problem, local)
			require.GreaterOrEqual(t, wg.Global, problem)
			require.Zero(t, wg.Global%local)
			require.Less(t, wg.Global-problem, local)
		}
	}
	assert.Equal(t, WorkGroup{Global: 0, Local: 64}, NewWorkGroup(0, 64))
	assert.Equal(t, 0, NewWorkGroup(0, 64).Groups())
	assert.Equal(t, 2, NewWorkGroup(65, 64).Groups())
}

func TestPlanDefault(t *testing.T) {
	plan := NewPlan(params.Default())
	want := Plan{
		Split:         WorkGroup{2432, 64},
		StdDev:        WorkGroup{10688, 64},
		VelocityEst:   WorkGroup{85248, 64},
		Arctan:        WorkGroup{85248, 64},
		ToVelocityEst: WorkGroup{85248, 64},
		ToArctan:      WorkGroup{85248, 64},
		MaxAbsVal:     WorkGroup{85248, 64},
		MaxAbsVal2:    WorkGroup{1, 1},
		Combine:       WorkGroup{85248, 64},
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, plan.All(), 9)
	assert.Equal(t, "maxabsval2", plan.All()[7].Kernel)
}

func TestPlanInvariants(t *testing.T) {
	for _, dims := range [][3]int{{1, 1, 1}, {2, 3, 5}, {32, 75, 1136}, {7, 13, 9}} {
		p := params.Default()
		p.Emissions, p.NLines, p.NLineSamples = dims[0], dims[1], dims[2]
		for _, d := range NewPlan(p).All() {
			assert.Zero(t, d.Global%d.Local, d.Kernel)
			assert.Positive(t, d.Global, d.Kernel)
		}
	}
}

func TestLengths(t *testing.T) {
	p := params.Default()
	plan := NewPlan(p)
	l := NewLengths(p, plan)
	assert.Equal(t, 1136*75*32*8, l.IQ)
	assert.Equal(t, 85200*4, l.Sum)
	assert.Equal(t, 10688*4, l.StdDev)
	assert.Equal(t, 85248*4, l.Temp)
	assert.Equal(t, 85248*16, l.Sum12)
	assert.Equal(t, 85200*4, l.Image)
	assert.Equal(t, 1332*4, l.Partial)
	assert.Equal(t, 4, l.Maximum)
}

func TestBufferDescriptors(t *testing.T) {
	p := params.Default()

	in := InputSize(p)
	assert.Equal(t, sample.INT16X2, in.SampleType)
	assert.Equal(t, 1136*4*75*32, in.Width)
	assert.Equal(t, 1136*4*75*32*4, in.Bytes())
	require.NoError(t, in.Validate())

	out := OutputSize(p)
	want := sample.BuffSize{
		SampleType: sample.INT8,
		Width:      1136,
		Height:     75,
		Depth:      1,
		WidthLen:   1136,
		HeightLen:  85200,
		DepthLen:   85200,
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("output size mismatch (-want +got):\n%s", diff)
	}

	p.NLines, p.NLineSamples = 10, 100
	out = OutputSize(p)
	assert.Equal(t, 100, out.Width)
	assert.Equal(t, 10, out.Height)
	assert.Equal(t, 1000, out.Bytes())
}
