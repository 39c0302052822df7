package autograd

import (
	"fmt"
	"math"
)

// BesselRadial evaluates the spherical Bessel basis
//
//	b_n(r) = sqrt(2/rMax) * sin(f_n * r / rMax) / r
//
// for edge lengths r [e,1] and learnable frequencies f [nb]. Gradients flow
// to both the lengths (for forces) and the frequencies.
func (t *Tape) BesselRadial(r, freq *Value, rMax float64) *Value {
	e, c := dims2(r.Data, "bessel lengths")
	if c != 1 {
		panic(fmt.Sprintf("autograd: bessel lengths must be [e,1], got %d columns", c))
	}
	fs := freq.Data.Shape()
	if len(fs) != 1 {
		panic(fmt.Sprintf("autograd: bessel frequencies must be rank 1, got shape %v", fs))
	}
	nb := fs[0]

	rv, fv := floats(r.Data), floats(freq.Data)
	pref := math.Sqrt(2 / rMax)
	out := make([]float64, e*nb)
	for i := 0; i < e; i++ {
		for n := 0; n < nb; n++ {
			u := fv[n] * rv[i] / rMax
			out[i*nb+n] = pref * math.Sin(u) / rv[i]
		}
	}

	result := t.record(New([]int{e, nb}, out), r.requiresGrad || freq.requiresGrad, nil)
	result.back = func() {
		g := floats(result.grad)
		if r.requiresGrad {
			gr := r.ensureGrad()
			for i := 0; i < e; i++ {
				ri := rv[i]
				sum := 0.0
				for n := 0; n < nb; n++ {
					u := fv[n] * ri / rMax
					// d/dr [sin(u)/r] = (cos(u)*f/rMax*r - sin(u)) / r^2
					sum += g[i*nb+n] * pref * (math.Cos(u)*fv[n]/rMax*ri - math.Sin(u)) / (ri * ri)
				}
				gr[i] += sum
			}
		}
		if freq.requiresGrad {
			gf := freq.ensureGrad()
			for i := 0; i < e; i++ {
				ri := rv[i]
				for n := 0; n < nb; n++ {
					u := fv[n] * ri / rMax
					gf[n] += g[i*nb+n] * pref * math.Cos(u) / rMax
				}
			}
		}
	}
	return result
}

// PolyCutoff evaluates the smooth polynomial envelope of degree p used to
// taper edge interactions to zero at rMax:
//
//	f(x) = 1 - (p+1)(p+2)/2 x^p + p(p+2) x^(p+1) - p(p+1)/2 x^(p+2)
//
// with x = r/rMax, and f = 0 for x >= 1. Input and output are [e,1].
func (t *Tape) PolyCutoff(r *Value, rMax float64, p int) *Value {
	e, c := dims2(r.Data, "cutoff lengths")
	if c != 1 {
		panic(fmt.Sprintf("autograd: cutoff lengths must be [e,1], got %d columns", c))
	}
	if p < 2 {
		panic(fmt.Sprintf("autograd: cutoff degree must be >= 2, got %d", p))
	}

	fp := float64(p)
	c1 := (fp + 1) * (fp + 2) / 2
	c2 := fp * (fp + 2)
	c3 := fp * (fp + 1) / 2

	rv := floats(r.Data)
	out := make([]float64, e)
	for i := 0; i < e; i++ {
		x := rv[i] / rMax
		if x >= 1 {
			continue
		}
		xp := intPow(x, p)
		out[i] = 1 - c1*xp + c2*xp*x - c3*xp*x*x
	}

	result := t.record(New([]int{e, 1}, out), r.requiresGrad, nil)
	result.back = func() {
		if !r.requiresGrad {
			return
		}
		g := floats(result.grad)
		gr := r.ensureGrad()
		dcoef := -fp * (fp + 1) * (fp + 2) / 2
		for i := 0; i < e; i++ {
			x := rv[i] / rMax
			if x >= 1 {
				continue
			}
			// df/dx = -p(p+1)(p+2)/2 * x^(p-1) * (1-x)^2
			dfdx := dcoef * intPow(x, p-1) * (1 - x) * (1 - x)
			gr[i] += g[i] * dfdx / rMax
		}
	}
	return result
}
