// Package opencl implements the pu device interfaces on an OpenCL device.
package opencl

import (
	"log/slog"

	"github.com/jgillich/go-opencl/cl"
	"golang.org/x/xerrors"

	"github.com/moratsam/opencl-vector-flow/pu"
	u "github.com/moratsam/opencl-vector-flow/util"
)

var ErrNoDevice = xerrors.New("no OpenCL device found")

type Context struct {
	device  *cl.Device
	context *cl.Context
	owned   bool // Release the cl context together with this one.
}

// NewContext picks the first GPU of the first platform that has one and falls
// back to any device of the first platform.
func NewContext(logger *slog.Logger) (*Context, error) {
	device, err := selectDevice()
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("using device", "name", device.Name(), "type", device.Type().String(), "version", device.OpenCLCVersion())
	}

	// Create device context.
	context, err := cl.CreateContext([]*cl.Device{device})
	if err != nil {
		return nil, u.WrapErr("create context", err)
	}
	return &Context{device: device, context: context, owned: true}, nil
}

// Wrap adopts a context and device owned by the host. Releasing the returned
// Context leaves the cl context alive.
func Wrap(context *cl.Context, device *cl.Device) *Context {
	return &Context{device: device, context: context}
}

func selectDevice() (*cl.Device, error) {
	// Get platforms.
	platforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, u.WrapErr("get platforms", err)
	}
	if len(platforms) == 0 {
		return nil, ErrNoDevice
	}

	// Get devices, GPUs first.
	for _, p := range platforms {
		devices, err := p.GetDevices(cl.DeviceTypeGPU)
		if err != nil && err != cl.ErrDeviceNotFound {
			return nil, u.WrapErr("get devices", err)
		}
		if len(devices) > 0 {
			return devices[0], nil
		}
	}
	devices, err := platforms[0].GetDevices(cl.DeviceTypeAll)
	if err != nil {
		return nil, u.WrapErr("get devices", err)
	}
	if len(devices) == 0 {
		return nil, ErrNoDevice
	}
	return devices[0], nil
}

func (c *Context) Device() *cl.Device {
	return c.device
}

func (c *Context) CreateProgram(source string) (pu.Program, error) {
	program, err := c.context.CreateProgramWithSource([]string{source})
	if err != nil {
		return nil, u.WrapErr("create program", err)
	}
	if err := program.BuildProgram([]*cl.Device{c.device}, ""); err != nil {
		program.Release()
		if build_err, ok := err.(cl.BuildError); ok {
			return nil, pu.BuildError{Log: string(build_err)}
		}
		return nil, u.WrapErr("build program", err)
	}
	return &Program{program: program}, nil
}

func (c *Context) CreateBuffer(size int) (pu.Buffer, error) {
	mem, err := c.context.CreateEmptyBuffer(cl.MemReadWrite, size)
	if err != nil {
		return nil, u.WrapErr("create buffer", err)
	}
	return &Buffer{mem: mem, size: size}, nil
}

func (c *Context) CreateUserEvent() (pu.Event, error) {
	ev, err := c.context.CreateUserEvent()
	if err != nil {
		return nil, u.WrapErr("create user event", err)
	}
	return &Event{event: ev, user: true}, nil
}

func (c *Context) CreateQueue() (pu.Queue, error) {
	queue, err := c.context.CreateCommandQueue(c.device, 0)
	if err != nil {
		return nil, u.WrapErr("create command queue", err)
	}
	return &Queue{queue: queue}, nil
}

func (c *Context) Release() {
	if c.owned && c.context != nil {
		c.context.Release()
	}
	c.context = nil
}

type InfoField struct {
	Name  string
	Value interface{}
}

// DeviceInfo lists the properties of the device the context runs on.
func (c *Context) DeviceInfo() []InfoField {
	device := c.device
	return []InfoField{
		{"name", device.Name()},
		{"type", device.Type()},
		{"profile", device.Profile()},
		{"vendor", device.Vendor()},
		{"version", device.Version()},
		{"driver version", device.DriverVersion()},
		{"openCL C version", device.OpenCLCVersion()},
		{"address bits", device.AddressBits()},
		{"little endian", device.EndianLittle()},
		{"extensions", device.Extensions()},
		{"global mem cache size", device.GlobalMemCacheSize()},
		{"global mem size", device.GlobalMemSize()},
		{"local mem size", device.LocalMemSize()},
		{"max clock frequency", device.MaxClockFrequency()},
		{"max compute units", device.MaxComputeUnits()},
		{"max constant buffer size", device.MaxConstantBufferSize()},
		{"max mem alloc size", device.MaxMemAllocSize()},
		{"max parameter size", device.MaxParameterSize()},
		{"max work group size", device.MaxWorkGroupSize()},
		{"max workitem dimensions", device.MaxWorkItemDimensions()},
		{"max workitem sizes", device.MaxWorkItemSizes()},
		{"native vector width float", device.NativeVectorWidthFloat()},
		{"native vector width int", device.NativeVectorWidthInt()},
	}
}
