package plugin

import (
	"golang.org/x/xerrors"

	"github.com/moratsam/opencl-vector-flow/params"
	"github.com/moratsam/opencl-vector-flow/pu"
)

var (
	ErrSampleFormat    = xerrors.New("wrong sample format")
	ErrBufferIndex     = xerrors.New("invalid buffer index")
	ErrBufferCount     = xerrors.New("wrong number of buffers")
	ErrBufferSize      = xerrors.New("buffer size mismatch")
	ErrPath            = xerrors.New("invalid module path")
	ErrLoadSource      = xerrors.New("load kernel source")
	ErrBuild           = xerrors.New("build kernel source")
	ErrState           = xerrors.New("invalid plugin state")
	ErrComputeRequired = xerrors.New("plugin requires a compute context")
	ErrParamsMissing   = xerrors.New("parameters not set")
)

// Return codes of the plugin ABI.
const (
	CodeOK     = 0
	CodeConfig = -1
	CodeLoad   = -2
	CodeBuild  = -3
	CodeState  = -4
	CodeDevice = -5
)

// ErrorCode maps an error returned by a Plugin method onto the integer the
// plugin ABI reports.
func ErrorCode(err error) int {
	var build_err pu.BuildError
	switch {
	case err == nil:
		return CodeOK
	case xerrors.Is(err, ErrSampleFormat),
		xerrors.Is(err, ErrBufferIndex),
		xerrors.Is(err, ErrBufferCount),
		xerrors.Is(err, ErrBufferSize),
		xerrors.Is(err, ErrPath),
		xerrors.Is(err, ErrComputeRequired),
		xerrors.Is(err, ErrParamsMissing),
		xerrors.Is(err, params.ErrInvalid):
		return CodeConfig
	case xerrors.Is(err, ErrLoadSource):
		return CodeLoad
	case xerrors.Is(err, ErrBuild), xerrors.As(err, &build_err):
		return CodeBuild
	case xerrors.Is(err, ErrState):
		return CodeState
	default:
		return CodeDevice
	}
}
