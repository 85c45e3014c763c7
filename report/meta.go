package report

import (
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/moratsam/opencl-vector-flow/geometry"
	"github.com/moratsam/opencl-vector-flow/params"
	"github.com/moratsam/opencl-vector-flow/sample"
	u "github.com/moratsam/opencl-vector-flow/util"
)

type FrameMeta struct {
	Index      int     `yaml:"index"`
	Axial      Summary `yaml:"axial"`
	Transverse Summary `yaml:"transverse"`
}

// Meta is written next to a results file.
type Meta struct {
	Session string           `yaml:"session"`
	Backend string           `yaml:"backend"`
	Params  params.Params    `yaml:"params"`
	Input   sample.BuffSize  `yaml:"input"`
	Output  sample.BuffSize  `yaml:"output"`
	Plan    geometry.Plan    `yaml:"plan"`
	Lengths geometry.Lengths `yaml:"lengths"`
	Frames  []FrameMeta      `yaml:"frames"`
}

func WriteMeta(fs afero.Fs, path string, m Meta) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return u.WrapErr("marshal meta", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return u.WrapErr("write "+path, err)
	}
	return nil
}

func ReadMeta(fs afero.Fs, path string) (Meta, error) {
	var m Meta
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return m, u.WrapErr("read "+path, err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, u.WrapErr("unmarshal meta", err)
	}
	return m, nil
}
