package vanilla

import "github.com/chewxy/math32"

// hostKernel is the Go rendition of one scale.cl entry point. sig has one
// letter per argument: b buffer, i int, f float, l local memory.
type hostKernel struct {
	sig   string
	item  func(a argv, gid int)
	group func(a argv, group, local int)
}

func (h hostKernel) run(a argv, group, local int) {
	if h.group != nil {
		h.group(a, group, local)
		return
	}
	for lid := 0; lid < local; lid++ {
		h.item(a, group*local+lid)
	}
}

var hostKernels = map[string]hostKernel{
	"split":           {sig: "bibbbbii", item: split},
	"std_dev":         {sig: "bbbbiib", item: stdDev},
	"velocity_est":    {sig: "bbbiibi", item: velocityEst},
	"arctan":          {sig: "bbfiibii", item: arctan},
	"to_velocity_est": {sig: "bbiiib", item: toVelocityEst},
	"to_arctan":       {sig: "bffiiibbi", item: toArctan},
	"maxabsval":       {sig: "blib", group: maxAbsVal},
	"maxabsval2":      {sig: "bbib", item: maxAbsVal2},
	"combine":         {sig: "bbbibb", item: combine},
}

// split(in, nlinesamples, Z, Z2, L, R, n_ensembles, emissions)
func split(a argv, gid int) {
	n_ens, emissions := a.i32(6), a.i32(7)
	if gid >= n_ens {
		return
	}
	nls := a.i32(1)
	in := a.buf(0).int16s()
	outs := [4][]complex64{
		a.buf(2).complex64s(),
		a.buf(3).complex64s(),
		a.buf(4).complex64s(),
		a.buf(5).complex64s(),
	}

	line, e := gid/emissions, gid%emissions
	base := gid * 4 * nls
	for ch, out := range outs {
		src := base + ch*nls
		for s := 0; s < nls; s++ {
			x, y := in[2*(src+s)], in[2*(src+s)+1]
			out[(line*nls+s)*emissions+e] = complex(float32(x), float32(y))
		}
	}
}

// std_dev(Z, sum1_re, sum1_im, sum2, nsamples, emissions, std_dev)
func stdDev(a argv, gid int) {
	n, emissions := a.i32(4), a.i32(5)
	first := gid * 8
	if first >= n {
		return
	}
	z := a.buf(0).complex64s()
	sum1_re, sum1_im, sum2 := a.buf(1).float32s(), a.buf(2).float32s(), a.buf(3).float32s()
	std_dev := a.buf(6).float32s()

	inv_e := 1 / float32(emissions)
	var acc float32
	last := min(first+8, n)
	for s := first; s < last; s++ {
		var sr, si, sp float32
		for e := 0; e < emissions; e++ {
			v := z[s*emissions+e]
			re, im := real(v), imag(v)
			sr += re
			si += im
			sp += re*re + im*im
		}
		sum1_re[s], sum1_im[s], sum2[s] = sr, si, sp
		mr, mi := sr*inv_e, si*inv_e
		acc += sp*inv_e - (mr*mr + mi*mi)
	}
	std_dev[gid] = math32.Sqrt(math32.Max(acc/float32(last-first), 0))
}

// velocity_est(Z, temp_re, temp_im, emissions, nsamples, std_dev, lag_axial)
func velocityEst(a argv, gid int) {
	emissions, n, lag := a.i32(3), a.i32(4), a.i32(6)
	if gid >= n {
		return
	}
	z := a.buf(0).complex64s()
	temp_re, temp_im := a.buf(1).float32s(), a.buf(2).float32s()
	sd := a.buf(5).float32s()[gid/8]
	if sd <= 0 {
		temp_re[gid], temp_im[gid] = 0, 0
		return
	}

	re, im := autocorr(z[gid*emissions:(gid+1)*emissions], lag)
	norm := 1 / (sd * sd * float32(emissions-lag))
	temp_re[gid], temp_im[gid] = re*norm, im*norm
}

// autocorr sums x[e+lag]*conj(x[e]) over the ensemble.
func autocorr(x []complex64, lag int) (float32, float32) {
	var re, im float32
	for e := 0; e+lag < len(x); e++ {
		ar, ai := real(x[e+lag]), imag(x[e+lag])
		br, bi := real(x[e]), imag(x[e])
		re += ar*br + ai*bi
		im += ai*br - ar*bi
	}
	return re, im
}

// window visits the numb_avg samples averaged around sample s of a line.
func window(s, nls, numb_avg, avg_offset int, visit func(ss int)) {
	for k := 0; k < numb_avg; k++ {
		ss := s + (k-numb_avg/2)*avg_offset
		if ss >= 0 && ss < nls {
			visit(ss)
		}
	}
}

// arctan(temp_re, temp_im, scale, numb_avg, avg_offset, outbufZ, nsamples, nlinesamples)
func arctan(a argv, gid int) {
	n := a.i32(6)
	if gid >= n {
		return
	}
	temp_re, temp_im := a.buf(0).float32s(), a.buf(1).float32s()
	scale, numb_avg, avg_offset := a.f32(2), a.i32(3), a.i32(4)
	out := a.buf(5).float32s()
	nls := a.i32(7)

	line, s := gid/nls, gid%nls
	var re, im float32
	window(s, nls, numb_avg, avg_offset, func(ss int) {
		re += temp_re[line*nls+ss]
		im += temp_im[line*nls+ss]
	})
	out[gid] = scale * math32.Atan2(im, re)
}

// to_velocity_est(L, R, lag_TO, emissions, nsamples, sum12)
func toVelocityEst(a argv, gid int) {
	lag, emissions, n := a.i32(2), a.i32(3), a.i32(4)
	if gid >= n {
		return
	}
	l := a.buf(0).complex64s()[gid*emissions : (gid+1)*emissions]
	r := a.buf(1).complex64s()[gid*emissions : (gid+1)*emissions]
	sum12 := a.buf(5).float32s()

	// Spatial quadrature pair r1 = L + iR, r2 = L - iR.
	r1 := make([]complex64, emissions)
	r2 := make([]complex64, emissions)
	for e := range l {
		lr, li := real(l[e]), imag(l[e])
		rr, ri := real(r[e]), imag(r[e])
		r1[e] = complex(lr-ri, li+rr)
		r2[e] = complex(lr+ri, li-rr)
	}
	re1, im1 := autocorr(r1, lag)
	re2, im2 := autocorr(r2, lag)
	sum12[4*gid], sum12[4*gid+1], sum12[4*gid+2], sum12[4*gid+3] = re1, im1, re2, im2
}

// to_arctan(sum12, k_axial, k_trans, numb_avg, avg_offset, nlinesamples, outbufZX, outbufX, nsamples)
func toArctan(a argv, gid int) {
	n := a.i32(8)
	if gid >= n {
		return
	}
	sum12 := a.buf(0).float32s()
	k_axial, k_trans := a.f32(1), a.f32(2)
	numb_avg, avg_offset, nls := a.i32(3), a.i32(4), a.i32(5)
	out_zx, out_x := a.buf(6).float32s(), a.buf(7).float32s()

	line, s := gid/nls, gid%nls
	var re1, im1, re2, im2 float32
	window(s, nls, numb_avg, avg_offset, func(ss int) {
		i := 4 * (line*nls + ss)
		re1 += sum12[i]
		im1 += sum12[i+1]
		re2 += sum12[i+2]
		im2 += sum12[i+3]
	})
	out_x[gid] = k_trans * math32.Atan2(im1*re2+im2*re1, re1*re2-im1*im2)
	out_zx[gid] = k_axial * math32.Atan2(im1*re2-im2*re1, re1*re2+im1*im2)
}

// maxabsval(in, scratch, n, result) reduces one work group.
func maxAbsVal(a argv, group, local int) {
	in, n, result := a.buf(0).float32s(), a.i32(2), a.buf(3).float32s()
	var m float32
	for i := group * local; i < (group+1)*local && i < n; i++ {
		m = math32.Max(m, math32.Abs(in[i]))
	}
	result[group] = m
}

// maxabsval2(result1, result2, groups, maximum)
func maxAbsVal2(a argv, gid int) {
	if gid != 0 {
		return
	}
	r1, r2, groups := a.buf(0).float32s(), a.buf(1).float32s(), a.i32(2)
	var m float32
	for i := 0; i < groups; i++ {
		m = math32.Max(m, math32.Max(r1[i], r2[i]))
	}
	a.buf(3).float32s()[0] = m
}

// combine(outbufZ, outbufX, maximum, nsamples, out0, out1)
func combine(a argv, gid int) {
	n := a.i32(3)
	if gid >= n {
		return
	}
	z, x := a.buf(0).float32s(), a.buf(1).float32s()
	m := a.buf(2).float32s()[0]
	out0, out1 := a.buf(4).int8s(), a.buf(5).int8s()
	if !(m > 0) {
		out0[gid], out1[gid] = 0, 0
		return
	}
	out0[gid] = quantize(z[gid] / m)
	out1[gid] = quantize(x[gid] / m)
}

// quantize maps v in [-1, 1] onto a signed byte, rounding half away from zero.
func quantize(v float32) int8 {
	q := math32.Floor(math32.Abs(v)*127 + 0.5)
	if q > 127 {
		q = 127
	}
	if v < 0 {
		return int8(-q)
	}
	return int8(q)
}
