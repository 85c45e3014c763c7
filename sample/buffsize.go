package sample

import "fmt"

// BuffSize describes a three dimensional buffer. The *Len fields are byte
// lengths per dimension.
type BuffSize struct {
	SampleType Type `yaml:"sample_type"`
	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Depth      int  `yaml:"depth"`
	WidthLen   int  `yaml:"width_len"`
	HeightLen  int  `yaml:"height_len"`
	DepthLen   int  `yaml:"depth_len"`
}

func NewBuffSize(t Type, width, height, depth int) BuffSize {
	width_len := width * BytesPerSample(t)
	return BuffSize{
		SampleType: t,
		Width:      width,
		Height:     height,
		Depth:      depth,
		WidthLen:   width_len,
		HeightLen:  width_len * height,
		DepthLen:   width_len * height * depth,
	}
}

// Bytes is the allocation size the descriptor asks for.
func (b BuffSize) Bytes() int {
	return b.DepthLen
}

func (b BuffSize) Elements() int {
	return b.Width * b.Height * b.Depth
}

// Validate checks that the byte lengths follow from the shape:
// width_len = width*bps, height_len = height*width_len, depth_len = depth*height_len.
func (b BuffSize) Validate() error {
	bps, ok := Lookup(b.SampleType)
	if !ok {
		return fmt.Errorf("unknown sample type %d", int(b.SampleType))
	}
	if b.Width < 0 || b.Height < 0 || b.Depth < 0 {
		return fmt.Errorf("negative dimension %dx%dx%d", b.Width, b.Height, b.Depth)
	}
	if b.WidthLen != b.Width*bps {
		return fmt.Errorf("width_len %d != width %d * %d", b.WidthLen, b.Width, bps)
	}
	if b.HeightLen != b.Height*b.WidthLen {
		return fmt.Errorf("height_len %d != height %d * width_len %d", b.HeightLen, b.Height, b.WidthLen)
	}
	if b.DepthLen != b.Depth*b.HeightLen {
		return fmt.Errorf("depth_len %d != depth %d * height_len %d", b.DepthLen, b.Depth, b.HeightLen)
	}
	return nil
}

func (b BuffSize) String() string {
	return fmt.Sprintf("%s[%dx%dx%d] %dB", b.SampleType, b.Width, b.Height, b.Depth, b.DepthLen)
}
