// Package params holds the scanner and processing parameters of the vector
// flow pipeline, and the scalars derived from them.
package params

import (
	"fmt"
	"math"

	"golang.org/x/xerrors"

	u "github.com/moratsam/opencl-vector-flow/util"
)

// Positions of the integer parameters in the positional int array.
const (
	IndEmissions = iota
	IndNLines
	IndNLineSamples
	IndNumbAvg
	IndAvgOffset
	IndLagAxial
	IndLagTO
	IndLagAcq

	IntParamCount
)

// Positions of the float parameters in the positional float array.
const (
	IndFs = iota
	IndF0
	IndC
	IndFprf
	IndDepth
	IndLambdaX

	FloatParamCount
)

// pi is the single precision literal widened to double.
var pi = float64(float32(3.1415927))

var ErrInvalid = xerrors.New("invalid parameters")

type Params struct {
	Emissions    int `mapstructure:"emissions" yaml:"emissions"`
	NLines       int `mapstructure:"nlines" yaml:"nlines"`
	NLineSamples int `mapstructure:"nlinesamples" yaml:"nlinesamples"`
	NumbAvg      int `mapstructure:"numb_avg" yaml:"numb_avg"`
	AvgOffset    int `mapstructure:"avg_offset" yaml:"avg_offset"`
	LagAxial     int `mapstructure:"lag_axial" yaml:"lag_axial"`
	LagTO        int `mapstructure:"lag_to" yaml:"lag_to"`
	LagAcq       int `mapstructure:"lag_acq" yaml:"lag_acq"`

	Fs      float32 `mapstructure:"fs" yaml:"fs"`           // Sampling frequency [Hz].
	F0      float32 `mapstructure:"f0" yaml:"f0"`           // Center frequency [Hz].
	C       float32 `mapstructure:"c" yaml:"c"`             // Speed of sound [m/s].
	Fprf    float32 `mapstructure:"fprf" yaml:"fprf"`       // Pulse repetition frequency [Hz].
	Depth   float32 `mapstructure:"depth" yaml:"depth"`     // Depth of the TO beams [m].
	LambdaX float32 `mapstructure:"lambda_x" yaml:"lambda_x"` // Transverse wavelength [m].
}

// Default is a 75 line, 32 emission scan of 1136 samples per line.
func Default() Params {
	return Params{
		Emissions:    32,
		NLines:       75,
		NLineSamples: 1136,
		NumbAvg:      40,
		AvgOffset:    1,
		LagAxial:     1,
		LagTO:        2,
		LagAcq:       1,
		Fs:           17.5e6,
		F0:           3.5e6,
		C:            1540,
		Fprf:         2400,
		Depth:        0.03,
		LambdaX:      0.0033,
	}
}

// FromArrays maps the positional host arrays onto named fields.
func FromArrays(floats []float32, ints []int32) (Params, error) {
	if len(ints) < IntParamCount {
		return Params{}, u.WrapErr(fmt.Sprintf("need %d int params, got %d", IntParamCount, len(ints)), ErrInvalid)
	}
	if len(floats) < FloatParamCount {
		return Params{}, u.WrapErr(fmt.Sprintf("need %d float params, got %d", FloatParamCount, len(floats)), ErrInvalid)
	}
	return Params{
		Emissions:    int(ints[IndEmissions]),
		NLines:       int(ints[IndNLines]),
		NLineSamples: int(ints[IndNLineSamples]),
		NumbAvg:      int(ints[IndNumbAvg]),
		AvgOffset:    int(ints[IndAvgOffset]),
		LagAxial:     int(ints[IndLagAxial]),
		LagTO:        int(ints[IndLagTO]),
		LagAcq:       int(ints[IndLagAcq]),
		Fs:           floats[IndFs],
		F0:           floats[IndF0],
		C:            floats[IndC],
		Fprf:         floats[IndFprf],
		Depth:        floats[IndDepth],
		LambdaX:      floats[IndLambdaX],
	}, nil
}

func (p Params) Arrays() ([]float32, []int32) {
	floats := make([]float32, FloatParamCount)
	floats[IndFs] = p.Fs
	floats[IndF0] = p.F0
	floats[IndC] = p.C
	floats[IndFprf] = p.Fprf
	floats[IndDepth] = p.Depth
	floats[IndLambdaX] = p.LambdaX

	ints := make([]int32, IntParamCount)
	ints[IndEmissions] = int32(p.Emissions)
	ints[IndNLines] = int32(p.NLines)
	ints[IndNLineSamples] = int32(p.NLineSamples)
	ints[IndNumbAvg] = int32(p.NumbAvg)
	ints[IndAvgOffset] = int32(p.AvgOffset)
	ints[IndLagAxial] = int32(p.LagAxial)
	ints[IndLagTO] = int32(p.LagTO)
	ints[IndLagAcq] = int32(p.LagAcq)
	return floats, ints
}

func (p Params) Validate() error {
	ints := []struct {
		name  string
		value int
	}{
		{"emissions", p.Emissions},
		{"nlines", p.NLines},
		{"nlinesamples", p.NLineSamples},
		{"numb_avg", p.NumbAvg},
		{"avg_offset", p.AvgOffset},
		{"lag_axial", p.LagAxial},
		{"lag_TO", p.LagTO},
		{"lag_acq", p.LagAcq},
	}
	for _, i := range ints {
		if i.value < 1 {
			return u.WrapErr(fmt.Sprintf("%s must be >= 1, got %d", i.name, i.value), ErrInvalid)
		}
	}
	if p.LagAxial >= p.Emissions {
		return u.WrapErr(fmt.Sprintf("lag_axial %d must be < emissions %d", p.LagAxial, p.Emissions), ErrInvalid)
	}
	if p.LagTO >= p.Emissions {
		return u.WrapErr(fmt.Sprintf("lag_TO %d must be < emissions %d", p.LagTO, p.Emissions), ErrInvalid)
	}

	floats := []struct {
		name  string
		value float32
	}{
		{"fs", p.Fs},
		{"f0", p.F0},
		{"c", p.C},
		{"fprf", p.Fprf},
		{"depth", p.Depth},
		{"lambda_X", p.LambdaX},
	}
	for _, f := range floats {
		v := float64(f.value)
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return u.WrapErr(fmt.Sprintf("%s must be a positive finite number, got %v", f.name, f.value), ErrInvalid)
		}
	}
	return nil
}

// NSamples is the number of output pixels: nlines*nlinesamples.
func (p Params) NSamples() int {
	return p.NLines * p.NLineSamples
}

// NEnsembles is the number of (line, emission) pairs.
func (p Params) NEnsembles() int {
	return p.NLines * p.Emissions
}

// Scale converts the axial autocorrelation phase into velocity.
func (p Params) Scale() float32 {
	c, fprf, f0 := float64(p.C), float64(p.Fprf), float64(p.F0)
	return float32(c * fprf / (4 * pi * f0 * float64(p.LagAxial)) / float64(p.LagAcq))
}

func (p Params) KAxial() float32 {
	c, fprf, f0 := float64(p.C), float64(p.Fprf), float64(p.F0)
	return float32(c * fprf / (2 * pi * 4 * f0) / float64(p.LagAcq))
}

func (p Params) KTrans() float32 {
	c, fprf, fs := float64(p.C), float64(p.Fprf), float64(p.Fs)
	depth, lambda_x := float64(p.Depth), float64(p.LambdaX)
	return float32(fprf * c * lambda_x / (2 * fs * depth * 2 * pi * 2 * float64(p.LagTO) * float64(p.LagAcq)))
}
