// Package pu abstracts the compute device the vector flow pipeline runs on.
// The opencl sub-package drives a real OpenCL device, the vanilla sub-package
// emulates one on the host with goroutines.
package pu

import (
	"fmt"

	"golang.org/x/xerrors"
)

type Context interface {
	CreateProgram(source string) (Program, error)
	CreateBuffer(size int) (Buffer, error)
	CreateUserEvent() (Event, error)
	CreateQueue() (Queue, error)
}

// Queue is an in-order command queue unless the backend says otherwise.
// Every enqueue returns the event signalling its completion.
type Queue interface {
	EnqueueKernel(k Kernel, global, local int, wait []Event) (Event, error)
	EnqueueWriteBuffer(b Buffer, blocking bool, data []byte, wait []Event) (Event, error)
	EnqueueReadBuffer(b Buffer, blocking bool, data []byte, wait []Event) (Event, error)
	Finish() error
	Release() error
}

type Program interface {
	CreateKernel(name string) (Kernel, error)
	Release() error
}

// Kernel argument values are Buffer, int32, float32 or Local.
type Kernel interface {
	Name() string
	SetArg(index int, value interface{}) error
	Release() error
}

type Buffer interface {
	Size() int
	Release() error
}

type Event interface {
	Wait() error
	// SetComplete marks a user event as complete. Only valid on events
	// created with Context.CreateUserEvent.
	SetComplete() error
	Release() error
}

// Local reserves work-group local memory of the given byte size.
type Local int

// BuildError carries the compiler log of a failed program build.
type BuildError struct {
	Log string
}

func (e BuildError) Error() string {
	return fmt.Sprintf("build program: %s", e.Log)
}

var ErrReleased = xerrors.New("object already released")

// WaitAll blocks on every non-nil event and returns the first error.
func WaitAll(events ...Event) error {
	var first error
	for _, ev := range events {
		if ev == nil {
			continue
		}
		if err := ev.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
