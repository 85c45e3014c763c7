// Package report summarises processed frames and renders them for inspection.
package report

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes one quantised image.
type Summary struct {
	Count   int     `yaml:"count"`
	NonZero int     `yaml:"non_zero"`
	Mean    float64 `yaml:"mean"`
	StdDev  float64 `yaml:"std_dev"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
}

// Summarize reads img as signed bytes.
func Summarize(img []byte) Summary {
	if len(img) == 0 {
		return Summary{}
	}
	values := Float64s(img)
	mean, std := stat.MeanStdDev(values, nil)
	s := Summary{
		Count:  len(values),
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(values),
		Max:    floats.Max(values),
	}
	for _, v := range values {
		if v != 0 {
			s.NonZero++
		}
	}
	return s
}

// Float64s widens an image of signed bytes.
func Float64s(img []byte) []float64 {
	values := make([]float64, len(img))
	for i, b := range img {
		values[i] = float64(int8(b))
	}
	return values
}
