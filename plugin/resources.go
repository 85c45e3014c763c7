package plugin

import (
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/moratsam/opencl-vector-flow/geometry"
	"github.com/moratsam/opencl-vector-flow/params"
	"github.com/moratsam/opencl-vector-flow/pu"
	u "github.com/moratsam/opencl-vector-flow/util"
)

type kernelID int

const (
	kSplit kernelID = iota
	kStdDev
	kVelocityEst
	kArctan
	kToVelocityEst
	kToArctan
	kMaxAbsVal
	kMaxAbsVal2
	kCombine

	numKernels
)

var kernelNames = [numKernels]string{
	"split",
	"std_dev",
	"velocity_est",
	"arctan",
	"to_velocity_est",
	"to_arctan",
	"maxabsval",
	"maxabsval2",
	"combine",
}

// KernelNames lists the entry points scale.cl must export.
func KernelNames() []string {
	return append([]string(nil), kernelNames[:]...)
}

// numTokens session owned tokens, one per stage except combine whose token
// goes to the caller.
const numTokens = 9

// bufferSet holds the intermediate device buffers of one configuration.
type bufferSet struct {
	z, z2, l, r                     pu.Buffer
	sum1_re, sum1_im, sum2, std_dev pu.Buffer
	temp_re, temp_im, sum12         pu.Buffer
	out_z, out_zx, out_x            pu.Buffer
	result1, result2, maximum       pu.Buffer
}

type slot struct {
	name string
	buf  *pu.Buffer
	size int
}

func (b *bufferSet) layout(l geometry.Lengths) []slot {
	return []slot{
		{"Z", &b.z, l.IQ},
		{"Z2", &b.z2, l.IQ},
		{"L", &b.l, l.IQ},
		{"R", &b.r, l.IQ},
		{"sum1_re", &b.sum1_re, l.Sum},
		{"sum1_im", &b.sum1_im, l.Sum},
		{"sum2", &b.sum2, l.Sum},
		{"std_dev", &b.std_dev, l.StdDev},
		{"temp_re", &b.temp_re, l.Temp},
		{"temp_im", &b.temp_im, l.Temp},
		{"sum12", &b.sum12, l.Sum12},
		{"outbufZ", &b.out_z, l.Image},
		{"outbufZX", &b.out_zx, l.Image},
		{"outbufX", &b.out_x, l.Image},
		{"result1", &b.result1, l.Partial},
		{"result2", &b.result2, l.Partial},
		{"maximum", &b.maximum, l.Maximum},
	}
}

// allocate fills every slot. A partially allocated set is released before
// the error is returned.
func (b *bufferSet) allocate(ctx pu.Context, l geometry.Lengths) error {
	for _, s := range b.layout(l) {
		buf, err := ctx.CreateBuffer(s.size)
		if err != nil {
			b.release()
			return u.WrapErr(fmt.Sprintf("create %s buffer of %d bytes", s.name, s.size), err)
		}
		*s.buf = buf
	}
	return nil
}

// release skips empty slots, so it is safe to call on a set in any state.
func (b *bufferSet) release() error {
	var result *multierror.Error
	for _, s := range b.layout(geometry.Lengths{}) {
		if *s.buf == nil {
			continue
		}
		if err := (*s.buf).Release(); err != nil {
			result = multierror.Append(result, u.WrapErr("release "+s.name, err))
		}
		*s.buf = nil
	}
	return result.ErrorOrNil()
}

// resources owns every device object of one plugin session.
type resources struct {
	ctx     pu.Context
	program pu.Program
	kernels [numKernels]pu.Kernel
	tokens  [numTokens]pu.Event
	bufs    bufferSet

	plan     geometry.Plan
	lengths  geometry.Lengths
	prepared params.Params // Configuration the buffers are sized for.

	logger *slog.Logger
}

func newResources(ctx pu.Context, source string, logger *slog.Logger) (*resources, error) {
	r := &resources{ctx: ctx, logger: logger}

	// Build program.
	program, err := ctx.CreateProgram(source)
	if err != nil {
		return nil, err
	}
	r.program = program

	// Create kernels.
	for i, name := range kernelNames {
		kernel, err := program.CreateKernel(name)
		if err != nil {
			r.cleanup()
			return nil, u.WrapErr("create kernel", err)
		}
		r.kernels[i] = kernel
	}

	// Create tokens, complete so the first run can wait on them.
	for i := range r.tokens {
		ev, err := ctx.CreateUserEvent()
		if err != nil {
			r.cleanup()
			return nil, u.WrapErr("create token", err)
		}
		r.tokens[i] = ev
		if err := ev.SetComplete(); err != nil {
			r.cleanup()
			return nil, u.WrapErr("complete token", err)
		}
	}
	return r, nil
}

// prepare sizes and allocates the buffer set for p and binds the kernel
// arguments that stay fixed across runs.
func (r *resources) prepare(p params.Params) error {
	plan := geometry.NewPlan(p)
	lengths := geometry.NewLengths(p, plan)

	// Release old buffers before allocating new ones.
	if err := r.bufs.release(); err != nil {
		return u.WrapErr("release buffers", err)
	}
	if err := r.bufs.allocate(r.ctx, lengths); err != nil {
		return u.WrapErr("allocate buffers", err)
	}
	r.plan = plan
	r.lengths = lengths

	if err := r.bindInvariant(p); err != nil {
		return u.WrapErr("bind invariant args", err)
	}
	r.prepared = p
	return nil
}

type arg struct {
	ix    int
	value interface{}
}

func setArgs(k pu.Kernel, args ...arg) error {
	for _, a := range args {
		if err := k.SetArg(a.ix, a.value); err != nil {
			return u.WrapErr(fmt.Sprintf("set %s arg %d", k.Name(), a.ix), err)
		}
	}
	return nil
}

func (r *resources) bindInvariant(p params.Params) error {
	n := int32(p.NSamples())
	nls := int32(p.NLineSamples)
	emissions := int32(p.Emissions)

	bindings := [numKernels][]arg{
		kSplit:         {{1, nls}, {6, int32(p.NEnsembles())}, {7, emissions}},
		kStdDev:        {{4, n}, {5, emissions}},
		kVelocityEst:   {{3, emissions}, {4, n}, {6, int32(p.LagAxial)}},
		kArctan:        {{2, p.Scale()}, {3, int32(p.NumbAvg)}, {4, int32(p.AvgOffset)}, {6, n}, {7, nls}},
		kToVelocityEst: {{2, int32(p.LagTO)}, {3, emissions}, {4, n}},
		kToArctan:      {{1, p.KAxial()}, {2, p.KTrans()}, {3, int32(p.NumbAvg)}, {4, int32(p.AvgOffset)}, {5, nls}, {8, n}},
		kMaxAbsVal:     {{1, pu.Local(r.plan.MaxAbsVal.Local * 4)}, {2, n}},
		kMaxAbsVal2:    {{2, int32(r.plan.MaxAbsVal.Groups())}},
		kCombine:       {{3, n}},
	}
	for k, args := range bindings {
		if err := setArgs(r.kernels[k], args...); err != nil {
			return err
		}
	}
	return nil
}

// cleanup releases everything and keeps going past individual failures.
func (r *resources) cleanup() error {
	var result *multierror.Error
	if err := r.bufs.release(); err != nil {
		result = multierror.Append(result, err)
	}
	for i, k := range r.kernels {
		if k == nil {
			continue
		}
		if err := k.Release(); err != nil {
			result = multierror.Append(result, u.WrapErr("release kernel "+kernelNames[i], err))
		}
		r.kernels[i] = nil
	}
	for i, ev := range r.tokens {
		if ev == nil {
			continue
		}
		if err := ev.Release(); err != nil {
			result = multierror.Append(result, u.WrapErr(fmt.Sprintf("release token %d", i), err))
		}
		r.tokens[i] = nil
	}
	if r.program != nil {
		if err := r.program.Release(); err != nil {
			result = multierror.Append(result, u.WrapErr("release program", err))
		}
		r.program = nil
	}
	return result.ErrorOrNil()
}
