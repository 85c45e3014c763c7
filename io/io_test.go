package io

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameCount(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/frames.bin", make([]byte, 48), 0o644))

	n, err := FrameCount(fs, "/frames.bin", 16)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = FrameCount(fs, "/frames.bin", 20)
	assert.ErrorIs(t, err, ErrShortFrame)
	_, err = FrameCount(fs, "/frames.bin", 0)
	assert.Error(t, err)
	_, err = FrameCount(fs, "/missing.bin", 16)
	assert.Error(t, err)
}

func TestReadFrame(t *testing.T) {
	r := bytes.NewReader([]byte{1, 2, 3, 4, 5, 6})
	frame := make([]byte, 4)

	ok, err := ReadFrame(r, frame)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, frame)

	ok, err = ReadFrame(r, frame)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrShortFrame)

	ok, err = ReadFrame(r, frame)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestWriteResults(t *testing.T) {
	fs := afero.NewMemMapFs()
	f, err := CreateFile(fs, "/results.bin")
	require.NoError(t, err)
	require.NoError(t, WriteResults(f, []byte{1, 2}, []byte{0xff, 0xfe}))
	require.NoError(t, WriteResults(f, []byte{3, 4}, []byte{5, 6}))
	require.NoError(t, f.Close())

	size, err := FileSize(fs, "/results.bin")
	require.NoError(t, err)
	assert.EqualValues(t, 8, size)

	data, err := afero.ReadFile(fs, "/results.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 0xff, 0xfe, 3, 4, 5, 6}, data)

	f, err = OpenFile(fs, "/results.bin")
	require.NoError(t, err)
	defer f.Close()
	frame := make([]byte, 4)
	ok, err := ReadFrame(f, frame)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 0xff, 0xfe}, frame)
}
