// Package geometry computes the dispatch sizes of every pipeline stage and the
// byte length of every intermediate device buffer from the scanner parameters.
// Everything here is a pure function of params.Params.
package geometry

import (
	"github.com/moratsam/opencl-vector-flow/params"
	"github.com/moratsam/opencl-vector-flow/sample"
	u "github.com/moratsam/opencl-vector-flow/util"
)

const (
	LocalSize       = 64
	ReductionLocal  = 1
	SamplesPerBlock = 8 // std_dev work item granularity.
	Channels        = 4 // Z, Z2, L, R per ensemble line.
)

type WorkGroup struct {
	Global int `yaml:"global"`
	Local  int `yaml:"local"`
}

func NewWorkGroup(problem, local int) WorkGroup {
	if problem < 0 {
		problem = 0
	}
	return WorkGroup{Global: u.RoundUp(problem, local), Local: local}
}

// Groups is the number of work groups the dispatch launches.
func (w WorkGroup) Groups() int {
	if w.Local == 0 {
		return 0
	}
	return w.Global / w.Local
}

// Plan holds one dispatch per kernel. maxabsval is dispatched twice with the
// same plan.
type Plan struct {
	Split         WorkGroup `yaml:"split"`
	StdDev        WorkGroup `yaml:"std_dev"`
	VelocityEst   WorkGroup `yaml:"velocity_est"`
	Arctan        WorkGroup `yaml:"arctan"`
	ToVelocityEst WorkGroup `yaml:"to_velocity_est"`
	ToArctan      WorkGroup `yaml:"to_arctan"`
	MaxAbsVal     WorkGroup `yaml:"maxabsval"`
	MaxAbsVal2    WorkGroup `yaml:"maxabsval2"`
	Combine       WorkGroup `yaml:"combine"`
}

func NewPlan(p params.Params) Plan {
	n := p.NSamples()
	return Plan{
		Split:         NewWorkGroup(p.NEnsembles(), LocalSize),
		StdDev:        NewWorkGroup(u.CeilDiv(n, SamplesPerBlock), LocalSize),
		VelocityEst:   NewWorkGroup(n, LocalSize),
		Arctan:        NewWorkGroup(n, LocalSize),
		ToVelocityEst: NewWorkGroup(n, LocalSize),
		ToArctan:      NewWorkGroup(n, LocalSize),
		MaxAbsVal:     NewWorkGroup(n, LocalSize),
		MaxAbsVal2:    NewWorkGroup(1, ReductionLocal),
		Combine:       NewWorkGroup(n, LocalSize),
	}
}

type Dispatch struct {
	Kernel string
	WorkGroup
}

// All returns the dispatches in pipeline order.
func (p Plan) All() []Dispatch {
	return []Dispatch{
		{"split", p.Split},
		{"std_dev", p.StdDev},
		{"velocity_est", p.VelocityEst},
		{"arctan", p.Arctan},
		{"to_velocity_est", p.ToVelocityEst},
		{"to_arctan", p.ToArctan},
		{"maxabsval", p.MaxAbsVal},
		{"maxabsval2", p.MaxAbsVal2},
		{"combine", p.Combine},
	}
}

// Lengths are byte lengths of the intermediate buffers.
type Lengths struct {
	IQ      int `yaml:"iq"`      // Z, Z2, L, R: complex float per (line, sample, emission).
	Sum     int `yaml:"sum"`     // sum1_re, sum1_im, sum2.
	StdDev  int `yaml:"std_dev"` // One float per 8 sample block.
	Temp    int `yaml:"temp"`    // temp_re, temp_im.
	Sum12   int `yaml:"sum12"`   // float4 per sample.
	Image   int `yaml:"image"`   // outbufZ, outbufZX, outbufX.
	Partial int `yaml:"partial"` // result1, result2.
	Maximum int `yaml:"maximum"`
}

const (
	floatSize   = 4
	complexSize = 8
	float4Size  = 16
)

func NewLengths(p params.Params, plan Plan) Lengths {
	n := p.NSamples()
	return Lengths{
		IQ:      p.NLineSamples * p.NLines * p.Emissions * complexSize,
		Sum:     n * floatSize,
		StdDev:  plan.StdDev.Global * floatSize,
		Temp:    plan.VelocityEst.Global * floatSize,
		Sum12:   plan.VelocityEst.Global * float4Size,
		Image:   n * floatSize,
		Partial: plan.MaxAbsVal.Groups() * floatSize,
		Maximum: floatSize,
	}
}

// Total is the device memory the intermediate buffer set occupies.
func (l Lengths) Total() int {
	return 4*l.IQ + 3*l.Sum + l.StdDev + 2*l.Temp + l.Sum12 + 3*l.Image + 2*l.Partial + l.Maximum
}

// InputSize describes the raw frame: four channels of nlinesamples I/Q pairs
// per (line, emission).
func InputSize(p params.Params) sample.BuffSize {
	return sample.NewBuffSize(sample.INT16X2, p.NLineSamples*Channels*p.NLines*p.Emissions, 1, 1)
}

// OutputSize describes either of the two quantised images.
func OutputSize(p params.Params) sample.BuffSize {
	return sample.NewBuffSize(sample.INT8, p.NLineSamples, p.NLines, 1)
}
