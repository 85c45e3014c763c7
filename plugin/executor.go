package plugin

import (
	"github.com/moratsam/opencl-vector-flow/geometry"
	"github.com/moratsam/opencl-vector-flow/pu"
	u "github.com/moratsam/opencl-vector-flow/util"
)

type StageID int

const (
	StageSplit StageID = iota
	StageStdDev
	StageVelocityEst
	StageArctan
	StageToVelocityEst
	StageToArctan
	StageMaxAbsZ
	StageMaxAbsX
	StageMaxAbs2
	StageCombine

	NumStages
)

// frame holds the per call buffers of one run.
type frame struct {
	in         pu.Buffer
	out0, out1 pu.Buffer
	scale      float32
}

type stage struct {
	name   string
	kernel kernelID
	deps   []StageID // Data producers.
	work   func(geometry.Plan) geometry.WorkGroup
	args   func(b *bufferSet, f *frame) []arg
}

var stages = [NumStages]stage{
	StageSplit: {
		name:   "split",
		kernel: kSplit,
		work:   func(p geometry.Plan) geometry.WorkGroup { return p.Split },
		args: func(b *bufferSet, f *frame) []arg {
			return []arg{{0, f.in}, {2, b.z}, {3, b.z2}, {4, b.l}, {5, b.r}}
		},
	},
	StageStdDev: {
		name:   "std_dev",
		kernel: kStdDev,
		deps:   []StageID{StageSplit},
		work:   func(p geometry.Plan) geometry.WorkGroup { return p.StdDev },
		args: func(b *bufferSet, f *frame) []arg {
			return []arg{{0, b.z}, {1, b.sum1_re}, {2, b.sum1_im}, {3, b.sum2}, {6, b.std_dev}}
		},
	},
	StageVelocityEst: {
		name:   "velocity_est",
		kernel: kVelocityEst,
		deps:   []StageID{StageSplit, StageStdDev},
		work:   func(p geometry.Plan) geometry.WorkGroup { return p.VelocityEst },
		args: func(b *bufferSet, f *frame) []arg {
			return []arg{{0, b.z}, {1, b.temp_re}, {2, b.temp_im}, {5, b.std_dev}}
		},
	},
	StageArctan: {
		name:   "arctan",
		kernel: kArctan,
		deps:   []StageID{StageVelocityEst},
		work:   func(p geometry.Plan) geometry.WorkGroup { return p.Arctan },
		args: func(b *bufferSet, f *frame) []arg {
			return []arg{{0, b.temp_re}, {1, b.temp_im}, {2, f.scale}, {5, b.out_z}}
		},
	},
	StageToVelocityEst: {
		name:   "to_velocity_est",
		kernel: kToVelocityEst,
		deps:   []StageID{StageSplit},
		work:   func(p geometry.Plan) geometry.WorkGroup { return p.ToVelocityEst },
		args: func(b *bufferSet, f *frame) []arg {
			return []arg{{0, b.l}, {1, b.r}, {5, b.sum12}}
		},
	},
	StageToArctan: {
		name:   "to_arctan",
		kernel: kToArctan,
		deps:   []StageID{StageToVelocityEst},
		work:   func(p geometry.Plan) geometry.WorkGroup { return p.ToArctan },
		args: func(b *bufferSet, f *frame) []arg {
			return []arg{{0, b.sum12}, {6, b.out_zx}, {7, b.out_x}}
		},
	},
	StageMaxAbsZ: {
		name:   "maxabsval(outbufZ)",
		kernel: kMaxAbsVal,
		deps:   []StageID{StageArctan},
		work:   func(p geometry.Plan) geometry.WorkGroup { return p.MaxAbsVal },
		args: func(b *bufferSet, f *frame) []arg {
			return []arg{{0, b.out_z}, {3, b.result1}}
		},
	},
	StageMaxAbsX: {
		name:   "maxabsval(outbufX)",
		kernel: kMaxAbsVal,
		deps:   []StageID{StageToArctan},
		work:   func(p geometry.Plan) geometry.WorkGroup { return p.MaxAbsVal },
		args: func(b *bufferSet, f *frame) []arg {
			return []arg{{0, b.out_x}, {3, b.result2}}
		},
	},
	StageMaxAbs2: {
		name:   "maxabsval2",
		kernel: kMaxAbsVal2,
		deps:   []StageID{StageMaxAbsZ, StageMaxAbsX},
		work:   func(p geometry.Plan) geometry.WorkGroup { return p.MaxAbsVal2 },
		args: func(b *bufferSet, f *frame) []arg {
			return []arg{{0, b.result1}, {1, b.result2}, {3, b.maximum}}
		},
	},
	StageCombine: {
		name:   "combine",
		kernel: kCombine,
		deps:   []StageID{StageArctan, StageToArctan, StageMaxAbs2},
		work:   func(p geometry.Plan) geometry.WorkGroup { return p.Combine },
		args: func(b *bufferSet, f *frame) []arg {
			return []arg{{0, b.out_z}, {1, b.out_x}, {2, b.maximum}, {4, f.out0}, {5, f.out1}}
		},
	},
}

func (s StageID) String() string {
	if s < 0 || s >= NumStages {
		return "stage(?)"
	}
	return stages[s].name
}

// Deps returns the stages whose tokens s waits on. strict selects the
// linear chain where every stage waits on its predecessor.
func (s StageID) Deps(strict bool) []StageID {
	if strict {
		if s == StageSplit {
			return nil
		}
		return []StageID{s - 1}
	}
	return append([]StageID(nil), stages[s].deps...)
}

// execute enqueues all stages of one run on q. Stage tokens are rebound to
// the new events, the event of combine is returned to the caller who owns it.
// The first failure aborts the run without waiting on anything enqueued.
func (r *resources) execute(q pu.Queue, f *frame, input_ready pu.Event, strict bool) (pu.Event, error) {
	for id := StageSplit; id < NumStages; id++ {
		st := stages[id]

		// Collect wait list.
		var wait []pu.Event
		deps := id.Deps(strict)
		if len(deps) == 0 && input_ready != nil {
			wait = append(wait, input_ready)
		}
		for _, d := range deps {
			wait = append(wait, r.tokens[d])
		}

		// Set per run args.
		kernel := r.kernels[st.kernel]
		if err := setArgs(kernel, st.args(&r.bufs, f)...); err != nil {
			return nil, u.WrapErr("bind "+st.name, err)
		}

		// Enqueue kernel.
		wg := st.work(r.plan)
		ev, err := q.EnqueueKernel(kernel, wg.Global, wg.Local, wait)
		if err != nil {
			return nil, u.WrapErr("enqueue "+st.name, err)
		}
		if id == StageCombine {
			return ev, nil
		}

		// Rebind token.
		if old := r.tokens[id]; old != nil {
			if err := old.Release(); err != nil {
				r.logger.Warn("release token", "stage", st.name, "err", err)
			}
		}
		r.tokens[id] = ev
	}
	return nil, nil
}
