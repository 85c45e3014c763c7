package cmd

import (
	"context"
	"math/rand"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moratsam/opencl-vector-flow/geometry"
	"github.com/moratsam/opencl-vector-flow/params"
	"github.com/moratsam/opencl-vector-flow/report"
)

// useMemFs points viper and the commands at an in memory filesystem and
// restores the globals when the test ends.
func useMemFs(t *testing.T) afero.Fs {
	mem := afero.NewMemMapFs()
	old_fs := fs
	viper.Reset()
	viper.SetFs(mem)
	fs = mem
	t.Cleanup(func() {
		fs = old_fs
		cfg_file, file_in, file_out = "", "", ""
		viper.Reset()
	})
	return mem
}

func TestLoadParamsPrecedence(t *testing.T) {
	mem := useMemFs(t)
	require.NoError(t, afero.WriteFile(mem, "/vflow.yaml", []byte("params:\n  nlines: 12\n  numb_avg: 8\n  c: 1500\n"), 0o644))
	cfg_file = "/vflow.yaml"
	t.Setenv("VFLOW_PARAMS_NUMB_AVG", "16")

	require.NoError(t, initConfig())
	prm, err := loadParams()
	require.NoError(t, err)

	want := params.Default()
	want.NLines = 12
	want.NumbAvg = 16
	want.C = 1500
	assert.Equal(t, want, prm)

	viper.Set("override.nlines", 5)
	prm, err = loadParams()
	require.NoError(t, err)
	assert.Equal(t, 5, prm.NLines)
}

func TestLoadParamsInvalid(t *testing.T) {
	useMemFs(t)
	t.Setenv("VFLOW_PARAMS_LAG_AXIAL", "40")
	require.NoError(t, initConfig())
	_, err := loadParams()
	assert.ErrorIs(t, err, params.ErrInvalid)
}

func TestInitConfigErrors(t *testing.T) {
	useMemFs(t)
	cfg_file = "/missing.yaml"
	assert.Error(t, initConfig())

	cfg_file = ""
	t.Setenv("VFLOW_LOG_LEVEL", "loud")
	assert.Error(t, initConfig())
}

func TestGetContext(t *testing.T) {
	useMemFs(t)
	require.NoError(t, initConfig())
	ctx, release, err := getContext()
	require.NoError(t, err)
	assert.NotNil(t, ctx)
	release()

	viper.Set("backend", "abacus")
	_, _, err = getContext()
	assert.ErrorIs(t, err, ErrBackend)
	assert.Contains(t, err.Error(), "abacus")
}

func TestProcess(t *testing.T) {
	mem := useMemFs(t)
	require.NoError(t, initConfig())
	viper.Set("params.emissions", 8)
	viper.Set("params.nlines", 3)
	viper.Set("params.nlinesamples", 48)
	viper.Set("params.numb_avg", 4)
	viper.Set("params.lag_to", 1)
	prm, err := loadParams()
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(11))
	frames := make([]byte, 2*geometry.InputSize(prm).Bytes())
	rng.Read(frames)
	require.NoError(t, afero.WriteFile(mem, "/in.bin", frames, 0o644))
	file_in, file_out = "/in.bin", "/out.bin"
	viper.Set("meta", "/run.yaml")
	viper.Set("plot", "/frame")

	require.NoError(t, process(context.Background()))

	data, err := afero.ReadFile(mem, "/out.bin")
	require.NoError(t, err)
	assert.Len(t, data, 2*2*prm.NSamples())

	meta, err := report.ReadMeta(mem, "/run.yaml")
	require.NoError(t, err)
	assert.Equal(t, prm, meta.Params)
	assert.Equal(t, "vanilla", meta.Backend)
	assert.Equal(t, geometry.OutputSize(prm), meta.Output)
	require.Len(t, meta.Frames, 2)
	assert.Equal(t, 1, meta.Frames[1].Index)
	assert.Equal(t, prm.NSamples(), meta.Frames[0].Axial.Count)

	for _, name := range []string{"/frame_axial.png", "/frame_transverse.png"} {
		ok, err := afero.Exists(mem, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestProcessRejectsPartialFile(t *testing.T) {
	mem := useMemFs(t)
	require.NoError(t, initConfig())
	viper.Set("params.emissions", 8)
	viper.Set("params.nlines", 3)
	viper.Set("params.nlinesamples", 48)
	viper.Set("params.lag_to", 1)
	require.NoError(t, afero.WriteFile(mem, "/in.bin", make([]byte, 1000), 0o644))
	file_in, file_out = "/in.bin", "/out.bin"

	assert.Error(t, process(context.Background()))
}
