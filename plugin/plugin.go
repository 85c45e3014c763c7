// Package plugin implements the "scale" vector flow plugin: a session object
// that builds the nine kernels of scale.cl, sizes the intermediate device
// buffers for a scanner configuration and runs the estimation pipeline on a
// frame of beamformed I/Q data.
package plugin

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/moratsam/opencl-vector-flow/geometry"
	"github.com/moratsam/opencl-vector-flow/params"
	"github.com/moratsam/opencl-vector-flow/pu"
	"github.com/moratsam/opencl-vector-flow/sample"
	u "github.com/moratsam/opencl-vector-flow/util"
)

type State int

const (
	Uninitialized State = iota
	Initialized
	Prepared
	Ready
	Cleaned
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Prepared:
		return "prepared"
	case Ready:
		return "ready"
	case Cleaned:
		return "cleaned"
	}
	return "unknown"
}

type MemKind int

const (
	HostMem MemKind = iota
	DeviceMem
)

type Info struct {
	NIn     int
	NOut    int
	Compute string
	InMem   MemKind
	OutMem  MemKind
}

// GetInfo reports what the plugin needs from its host.
func GetInfo() Info {
	return Info{NIn: 1, NOut: 2, Compute: "OpenCL", InMem: DeviceMem, OutMem: DeviceMem}
}

type Option func(*Plugin)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Plugin) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithFs sets the filesystem scale.cl is loaded from.
func WithFs(fs afero.Fs) Option {
	return func(p *Plugin) { p.fs = fs }
}

// WithStrictChain makes every stage wait on its predecessor instead of only
// on the stages producing its inputs.
func WithStrictChain() Option {
	return func(p *Plugin) { p.strict = true }
}

// Plugin is one session. Its methods are not safe for concurrent use.
type Plugin struct {
	id     string
	logger *slog.Logger
	fs     afero.Fs
	strict bool

	state      State
	ctx        pu.Context
	res        *resources
	params     params.Params
	params_set bool
	in_size    *sample.BuffSize
	mem_queue  pu.Queue // Queue of ProcessMemIO, created on first use.
}

func New(opts ...Option) *Plugin {
	p := &Plugin{
		id:     uuid.New().String(),
		logger: newNopLogger(),
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("session", p.id)
	return p
}

func (p *Plugin) ID() string {
	return p.id
}

func (p *Plugin) State() State {
	return p.state
}

func (p *Plugin) GetPluginInfo() Info {
	return GetInfo()
}

// InitializeCL loads scale.cl from pathToModule, builds it on ctx and creates
// the kernels and stage tokens. An empty path uses the embedded source.
func (p *Plugin) InitializeCL(ctx pu.Context, pathToModule string) error {
	if p.state != Uninitialized {
		return u.WrapErr("initialize in state "+p.state.String(), ErrState)
	}
	source, err := loadSource(p.fs, pathToModule)
	if err != nil {
		return err
	}

	res, err := newResources(ctx, source, p.logger)
	if err != nil {
		var build_err pu.BuildError
		if xerrors.As(err, &build_err) {
			p.logger.Error("kernel build failed", "log", build_err.Log)
			return xerrors.Errorf("%w: %s", ErrBuild, build_err.Log)
		}
		return u.WrapErr("initialize", err)
	}
	p.ctx = ctx
	p.res = res
	p.state = Initialized
	p.logger.Info("initialized", "path", pathToModule, "kernels", len(kernelNames))
	return nil
}

// Initialize is the host memory entry point. This plugin only runs on a
// compute device.
func (p *Plugin) Initialize(pathToModule string) error {
	return ErrComputeRequired
}

// SetParams takes the positional parameter arrays of the plugin ABI.
func (p *Plugin) SetParams(floats []float32, ints []int32) error {
	prm, err := params.FromArrays(floats, ints)
	if err != nil {
		return err
	}
	return p.Configure(prm)
}

func (p *Plugin) Configure(prm params.Params) error {
	if p.state == Cleaned {
		return u.WrapErr("configure", ErrState)
	}
	if err := prm.Validate(); err != nil {
		return err
	}
	p.params = prm
	p.params_set = true
	return nil
}

func (p *Plugin) Params() params.Params {
	return p.params
}

// SetInBufSize declares the input buffer. Only INT16X2 frames are accepted.
func (p *Plugin) SetInBufSize(size sample.BuffSize, bufnum int) error {
	if p.state == Cleaned {
		return u.WrapErr("set input size", ErrState)
	}
	if size.SampleType != sample.INT16X2 {
		return u.WrapErr("input sample type "+size.SampleType.String(), ErrSampleFormat)
	}
	if bufnum != 0 {
		return u.WrapErr("input", ErrBufferIndex)
	}
	if err := size.Validate(); err != nil {
		return u.WrapErr(err.Error(), ErrBufferSize)
	}
	p.in_size = &size
	return nil
}

// Prepare sizes and allocates the device buffers for the current parameters.
// It may be called again after the parameters changed.
func (p *Plugin) Prepare() error {
	if p.state != Initialized && p.state != Ready {
		return u.WrapErr("prepare in state "+p.state.String(), ErrState)
	}
	if !p.params_set {
		return ErrParamsMissing
	}
	if p.in_size != nil {
		want := geometry.InputSize(p.params)
		if p.in_size.Elements() != want.Elements() {
			return xerrors.Errorf("input holds %d samples, configuration needs %d: %w", p.in_size.Elements(), want.Elements(), ErrBufferSize)
		}
	}

	p.state = Prepared
	if err := p.res.prepare(p.params); err != nil {
		// Buffers are gone or partial, a new Prepare is needed.
		p.state = Initialized
		return u.WrapErr("prepare", err)
	}
	for _, d := range p.res.plan.All() {
		p.logger.Debug("work size", "kernel", d.Kernel, "global", d.Global, "local", d.Local)
	}
	p.logger.Info("prepared", "nsamples", p.params.NSamples(), "device_bytes", p.res.lengths.Total())
	p.state = Ready
	return nil
}

// GetOutBufSize describes output buffer bufnum, 0 axial and 1 transverse.
func (p *Plugin) GetOutBufSize(bufnum int) (sample.BuffSize, error) {
	if p.state != Ready {
		return sample.BuffSize{}, u.WrapErr("output size before prepare", ErrState)
	}
	if bufnum < 0 || bufnum >= GetInfo().NOut {
		return sample.BuffSize{}, u.WrapErr("output", ErrBufferIndex)
	}
	return geometry.OutputSize(p.res.prepared), nil
}

// Plan returns the dispatch sizes of the prepared configuration.
func (p *Plugin) Plan() (geometry.Plan, error) {
	if p.state != Ready {
		return geometry.Plan{}, u.WrapErr("plan before prepare", ErrState)
	}
	return p.res.plan, nil
}

// ProcessCLIO enqueues the pipeline on queue. Split waits on inputReady, the
// returned event completes once both outputs are written and is owned by the
// caller. A call must not be issued before the previous call's event
// completed.
func (p *Plugin) ProcessCLIO(in, out []pu.Buffer, queue pu.Queue, inputReady pu.Event) (pu.Event, error) {
	if p.state != Ready {
		return nil, u.WrapErr("process in state "+p.state.String(), ErrState)
	}
	if len(in) != GetInfo().NIn || len(out) != GetInfo().NOut {
		return nil, xerrors.Errorf("got %d inputs and %d outputs: %w", len(in), len(out), ErrBufferCount)
	}
	for i, b := range append(append([]pu.Buffer(nil), in...), out...) {
		if b == nil {
			return nil, xerrors.Errorf("buffer %d is nil: %w", i, ErrBufferCount)
		}
	}
	if err := p.checkSizes(in[0].Size(), out[0].Size(), out[1].Size()); err != nil {
		return nil, err
	}
	if err := p.sync(); err != nil {
		return nil, err
	}

	f := &frame{in: in[0], out0: out[0], out1: out[1], scale: p.params.Scale()}
	done, err := p.res.execute(queue, f, inputReady, p.strict)
	if err != nil {
		return nil, u.WrapErr("process", err)
	}
	return done, nil
}

func (p *Plugin) checkSizes(in int, out ...int) error {
	if want := geometry.InputSize(p.res.prepared).Bytes(); in < want {
		return xerrors.Errorf("input of %d bytes, need %d: %w", in, want, ErrBufferSize)
	}
	want := geometry.OutputSize(p.res.prepared).Bytes()
	for i, n := range out {
		if n < want {
			return xerrors.Errorf("output %d of %d bytes, need %d: %w", i, n, want, ErrBufferSize)
		}
	}
	return nil
}

// sync rebinds the fixed kernel arguments when the parameters changed since
// Prepare without changing the buffer geometry.
func (p *Plugin) sync() error {
	if p.params == p.res.prepared {
		return nil
	}
	old, cur := p.res.prepared, p.params
	if old.Emissions != cur.Emissions || old.NLines != cur.NLines || old.NLineSamples != cur.NLineSamples {
		return u.WrapErr("geometry changed, prepare again", ErrState)
	}
	if err := p.res.bindInvariant(cur); err != nil {
		return u.WrapErr("rebind args", err)
	}
	p.res.prepared = cur
	return nil
}

// Cleanup releases every device object. The session is unusable afterwards.
func (p *Plugin) Cleanup() error {
	if p.state == Cleaned {
		return u.WrapErr("cleanup", ErrState)
	}
	var result *multierror.Error
	if p.mem_queue != nil {
		if err := p.mem_queue.Release(); err != nil {
			result = multierror.Append(result, u.WrapErr("release queue", err))
		}
		p.mem_queue = nil
	}
	if p.res != nil {
		if err := p.res.cleanup(); err != nil {
			result = multierror.Append(result, err)
		}
		p.res = nil
	}
	p.state = Cleaned
	if err := result.ErrorOrNil(); err != nil {
		p.logger.Warn("cleanup", "err", err)
		return u.WrapErr("cleanup", err)
	}
	p.logger.Info("cleaned up")
	return nil
}
