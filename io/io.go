package io

import (
	"io"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	u "github.com/moratsam/opencl-vector-flow/util"
)

var ErrShortFrame = xerrors.New("short frame")

func CreateFile(fs afero.Fs, filepath string) (afero.File, error) {
	return fs.Create(filepath)
}

func OpenFile(fs afero.Fs, filepath string) (afero.File, error) {
	return fs.Open(filepath)
}

func FileSize(fs afero.Fs, filepath string) (int64, error) {
	fi, err := fs.Stat(filepath)
	if err != nil {
		return 0, u.WrapErr("get stat", err)
	}
	return fi.Size(), nil
}

// FrameCount returns how many whole frames of frame_size bytes the file holds.
func FrameCount(fs afero.Fs, filepath string, frame_size int) (int, error) {
	size, err := FileSize(fs, filepath)
	if err != nil {
		return 0, err
	}
	if frame_size <= 0 || size%int64(frame_size) != 0 {
		return 0, xerrors.Errorf("file of %d bytes is not a whole number of %d byte frames: %w", size, frame_size, ErrShortFrame)
	}
	return int(size / int64(frame_size)), nil
}

// ReadFrame fills frame from f. At the end of the file it returns false.
func ReadFrame(f io.Reader, frame []byte) (bool, error) {
	_, err := io.ReadFull(f, frame)
	switch {
	case err == io.EOF:
		return false, nil
	case err == io.ErrUnexpectedEOF:
		return false, ErrShortFrame
	case err != nil:
		return false, u.WrapErr("read", err)
	}
	return true, nil
}

func WriteTo(f io.Writer, chunk []byte) error {
	_, err := f.Write(chunk)
	return err
}

// WriteResults appends one processed frame: the axial image followed by the
// transverse image.
func WriteResults(f io.Writer, out0, out1 []byte) error {
	if err := WriteTo(f, out0); err != nil {
		return u.WrapErr("write out0", err)
	}
	if err := WriteTo(f, out1); err != nil {
		return u.WrapErr("write out1", err)
	}
	return nil
}
