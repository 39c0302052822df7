package autograd

import "fmt"

// Reciprocal computes 1/x elementwise. The caller guarantees nonzero inputs.
func (t *Tape) Reciprocal(a *Value) *Value {
	av := floats(a.Data)
	out := make([]float64, len(av))
	for i, x := range av {
		out[i] = 1 / x
	}

	result := t.record(New(shapeOf(a.Data), out), a.requiresGrad, nil)
	result.back = func() {
		if !a.requiresGrad {
			return
		}
		g := floats(result.grad)
		ga := a.ensureGrad()
		for i, x := range av {
			ga[i] -= g[i] / (x * x)
		}
	}
	return result
}

// MulRowVec scales column j of a [r,c] value by v[j], v rank 1 of length c.
func (t *Tape) MulRowVec(a, v *Value) *Value {
	r, c := dims2(a.Data, "mulrowvec input")
	vs := v.Data.Shape()
	if len(vs) != 1 || vs[0] != c {
		panic(fmt.Sprintf("autograd: mulrowvec vector shape %v does not match %d columns", vs, c))
	}

	av, vv := floats(a.Data), floats(v.Data)
	out := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[i*c+j] = av[i*c+j] * vv[j]
		}
	}

	result := t.record(New([]int{r, c}, out), a.requiresGrad || v.requiresGrad, nil)
	result.back = func() {
		g := floats(result.grad)
		if a.requiresGrad {
			ga := a.ensureGrad()
			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					ga[i*c+j] += g[i*c+j] * vv[j]
				}
			}
		}
		if v.requiresGrad {
			gv := v.ensureGrad()
			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					gv[j] += g[i*c+j] * av[i*c+j]
				}
			}
		}
	}
	return result
}

// ColumnGather picks one column per row: out[i] = a[i, idx[i]], [r,1].
func (t *Tape) ColumnGather(a *Value, idx []int) *Value {
	r, c := dims2(a.Data, "columngather input")
	if len(idx) != r {
		panic(fmt.Sprintf("autograd: columngather index count %d != rows %d", len(idx), r))
	}

	av := floats(a.Data)
	out := make([]float64, r)
	for i, j := range idx {
		if j < 0 || j >= c {
			panic(fmt.Sprintf("autograd: columngather index %d out of range [0,%d)", j, c))
		}
		out[i] = av[i*c+j]
	}

	result := t.record(New([]int{r, 1}, out), a.requiresGrad, nil)
	result.back = func() {
		if !a.requiresGrad {
			return
		}
		g := floats(result.grad)
		ga := a.ensureGrad()
		for i, j := range idx {
			ga[i*c+j] += g[i]
		}
	}
	return result
}

// ProductBasis is the fused-backend contraction kernel: given features
// x [n,k] and channel-major packed weights w [k,corr], it evaluates
//
//	out[i,c] = sum_o w[c,o] * x[i,c]^(o+1)
//
// in one pass, summing over orders in ascending sequence so the result is
// bit-identical to the unpacked per-order accumulation.
func (t *Tape) ProductBasis(x, w *Value) *Value {
	n, k := dims2(x.Data, "product basis features")
	k2, corr := dims2(w.Data, "product basis weights")
	if k != k2 {
		panic(fmt.Sprintf("autograd: product basis widths %d != %d", k, k2))
	}

	xv, wv := floats(x.Data), floats(w.Data)
	out := make([]float64, n*k)
	for i := 0; i < n; i++ {
		for c := 0; c < k; c++ {
			v := xv[i*k+c]
			pow := 1.0
			sum := 0.0
			for o := 0; o < corr; o++ {
				pow *= v
				sum += wv[c*corr+o] * pow
			}
			out[i*k+c] = sum
		}
	}

	result := t.record(New([]int{n, k}, out), x.requiresGrad || w.requiresGrad, nil)
	result.back = func() {
		g := floats(result.grad)
		if x.requiresGrad {
			gx := x.ensureGrad()
			for i := 0; i < n; i++ {
				for c := 0; c < k; c++ {
					v := xv[i*k+c]
					deriv := 0.0
					pow := 1.0
					for o := 0; o < corr; o++ {
						deriv += wv[c*corr+o] * float64(o+1) * pow
						pow *= v
					}
					gx[i*k+c] += g[i*k+c] * deriv
				}
			}
		}
		if w.requiresGrad {
			gw := w.ensureGrad()
			for i := 0; i < n; i++ {
				for c := 0; c < k; c++ {
					v := xv[i*k+c]
					pow := 1.0
					for o := 0; o < corr; o++ {
						pow *= v
						gw[c*corr+o] += g[i*k+c] * pow
					}
				}
			}
		}
	}
	return result
}
