package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesPerSample(t *testing.T) {
	want := map[Type]int{
		UINT8: 1, UINT16: 2, UINT16X2: 4, INT8: 1, INT16: 2, INT16X2: 4,
		FLOAT32: 4, FLOAT32X2: 8, INT32: 4, INT32X2: 8, UINT15: 2,
	}
	require.Len(t, want, NumFormats)
	for typ, n := range want {
		assert.Equal(t, n, BytesPerSample(typ), typ.String())
	}
}

func TestUnknownType(t *testing.T) {
	_, ok := Lookup(Type(NumFormats))
	assert.False(t, ok)
	_, ok = Lookup(Type(-1))
	assert.False(t, ok)
	assert.Panics(t, func() { BytesPerSample(Type(42)) })
}

func TestParseType(t *testing.T) {
	for i := 0; i < NumFormats; i++ {
		typ, err := ParseType(Type(i).String())
		require.NoError(t, err)
		assert.Equal(t, Type(i), typ)
	}
	typ, err := ParseType("int16x2")
	require.NoError(t, err)
	assert.Equal(t, INT16X2, typ)

	_, err = ParseType("complex128")
	assert.Error(t, err)
}

func TestBuffSize(t *testing.T) {
	b := NewBuffSize(INT16X2, 10, 3, 2)
	assert.Equal(t, 40, b.WidthLen)
	assert.Equal(t, 120, b.HeightLen)
	assert.Equal(t, 240, b.DepthLen)
	assert.Equal(t, 240, b.Bytes())
	assert.Equal(t, 60, b.Elements())
	require.NoError(t, b.Validate())

	padded := b
	padded.WidthLen = 48
	assert.Error(t, padded.Validate())

	bad := b
	bad.SampleType = Type(99)
	assert.Error(t, bad.Validate())

	short := b
	short.DepthLen--
	assert.Error(t, short.Validate())
}
