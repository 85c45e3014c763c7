package plugin

import (
	_ "embed"
	"path/filepath"

	"github.com/spf13/afero"

	u "github.com/moratsam/opencl-vector-flow/util"
)

// SourceName is the kernel source file looked up in the module path.
const SourceName = "scale.cl"

//go:embed scale.cl
var scaleSource string

// KernelSource returns the kernel source compiled into the plugin.
func KernelSource() string {
	return scaleSource
}

// loadSource reads scale.cl from path. An empty path selects the embedded
// copy.
func loadSource(fs afero.Fs, path string) (string, error) {
	if path == "" {
		return scaleSource, nil
	}
	fi, err := fs.Stat(path)
	if err != nil {
		return "", u.WrapErr(path, ErrPath)
	}
	if !fi.IsDir() {
		return "", u.WrapErr(path+" is not a directory", ErrPath)
	}
	src, err := afero.ReadFile(fs, filepath.Join(path, SourceName))
	if err != nil {
		return "", u.WrapErr(err.Error(), ErrLoadSource)
	}
	return string(src), nil
}
