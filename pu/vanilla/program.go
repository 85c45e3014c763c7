package vanilla

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/moratsam/opencl-vector-flow/pu"
)

var kernelDecl = regexp.MustCompile(`(?s)__kernel\s+void\s+(\w+)\s*\(([^)]*)\)`)

type Program struct {
	kernels  map[string]int // Declared kernels and their argument counts.
	released atomic.Bool
}

// CreateProgram "builds" source by matching every declared kernel against its
// host implementation.
func (c *Context) CreateProgram(source string) (pu.Program, error) {
	decls := kernelDecl.FindAllStringSubmatch(source, -1)
	if len(decls) == 0 {
		return nil, pu.BuildError{Log: "no kernels declared in source"}
	}

	var log []string
	kernels := make(map[string]int, len(decls))
	for _, d := range decls {
		name, nargs := d[1], countArgs(d[2])
		impl, ok := hostKernels[name]
		switch {
		case !ok:
			log = append(log, fmt.Sprintf("%s: no host implementation", name))
		case len(impl.sig) != nargs:
			log = append(log, fmt.Sprintf("%s: declared with %d arguments, host implementation takes %d", name, nargs, len(impl.sig)))
		default:
			kernels[name] = nargs
		}
	}
	if len(log) > 0 {
		return nil, pu.BuildError{Log: strings.Join(log, "\n")}
	}
	return &Program{kernels: kernels}, nil
}

func countArgs(list string) int {
	n := 0
	for _, a := range strings.Split(list, ",") {
		if strings.TrimSpace(a) != "" {
			n++
		}
	}
	return n
}

func (p *Program) CreateKernel(name string) (pu.Kernel, error) {
	if p.released.Load() {
		return nil, xerrors.Errorf("program: %w", pu.ErrReleased)
	}
	if _, ok := p.kernels[name]; !ok {
		return nil, xerrors.Errorf("invalid kernel name %q", name)
	}
	impl := hostKernels[name]
	return &Kernel{name: name, impl: impl, args: make([]interface{}, len(impl.sig))}, nil
}

func (p *Program) Release() error {
	if p.released.Swap(true) {
		return pu.ErrReleased
	}
	return nil
}

type Kernel struct {
	name     string
	impl     hostKernel
	released atomic.Bool

	mu   sync.Mutex
	args []interface{}
}

func (k *Kernel) Name() string {
	return k.name
}

func (k *Kernel) SetArg(index int, value interface{}) error {
	if index < 0 || index >= len(k.args) {
		return xerrors.Errorf("kernel %s: invalid arg index %d", k.name, index)
	}
	want := k.impl.sig[index]
	ok := false
	switch v := value.(type) {
	case *buffer:
		ok = want == 'b' && !v.released.Load()
	case int32:
		ok = want == 'i'
	case float32:
		ok = want == 'f'
	case pu.Local:
		ok = want == 'l' && v > 0
	}
	if !ok {
		return xerrors.Errorf("kernel %s: invalid arg value %T for index %d", k.name, value, index)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.args[index] = value
	return nil
}

func (k *Kernel) snapshot() (argv, error) {
	if k.released.Load() {
		return nil, xerrors.Errorf("kernel %s: %w", k.name, pu.ErrReleased)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, a := range k.args {
		if a == nil {
			return nil, xerrors.Errorf("kernel %s: arg %d not set", k.name, i)
		}
	}
	return append(argv(nil), k.args...), nil
}

func (k *Kernel) Release() error {
	if k.released.Swap(true) {
		return pu.ErrReleased
	}
	return nil
}

// dispatch splits the work groups into one contiguous batch per worker.
func (c *Context) dispatch(k *Kernel, args argv, global, local int) error {
	groups := global / local
	if groups == 0 {
		return nil
	}
	batch := (groups + c.workers - 1) / c.workers

	var eg errgroup.Group
	for first := 0; first < groups; first += batch {
		first, last := first, min(first+batch, groups)
		eg.Go(func() error {
			return safeRun(func() error {
				for g := first; g < last; g++ {
					k.impl.run(args, g, local)
				}
				return nil
			})
		})
	}
	return eg.Wait()
}

type argv []interface{}

func (a argv) buf(i int) *buffer { return a[i].(*buffer) }
func (a argv) i32(i int) int     { return int(a[i].(int32)) }
func (a argv) f32(i int) float32 { return a[i].(float32) }
