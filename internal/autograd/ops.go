package autograd

import (
	"fmt"
	"math"
)

// MatMul multiplies a [m,p] by b [p,n].
func (t *Tape) MatMul(a, b *Value) *Value {
	m, p := dims2(a.Data, "matmul lhs")
	p2, n := dims2(b.Data, "matmul rhs")
	if p != p2 {
		panic(fmt.Sprintf("autograd: matmul inner dims %d != %d", p, p2))
	}

	av, bv := floats(a.Data), floats(b.Data)
	out := make([]float64, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			sum := 0.0
			for k := 0; k < p; k++ {
				sum += av[i*p+k] * bv[k*n+j]
			}
			out[i*n+j] = sum
		}
	}

	result := t.record(New([]int{m, n}, out), a.requiresGrad || b.requiresGrad, nil)
	result.back = func() {
		g := floats(result.grad)
		if a.requiresGrad {
			ga := a.ensureGrad()
			for i := 0; i < m; i++ {
				for k := 0; k < p; k++ {
					sum := 0.0
					for j := 0; j < n; j++ {
						sum += g[i*n+j] * bv[k*n+j]
					}
					ga[i*p+k] += sum
				}
			}
		}
		if b.requiresGrad {
			gb := b.ensureGrad()
			for k := 0; k < p; k++ {
				for j := 0; j < n; j++ {
					sum := 0.0
					for i := 0; i < m; i++ {
						sum += av[i*p+k] * g[i*n+j]
					}
					gb[k*n+j] += sum
				}
			}
		}
	}
	return result
}

// Add is elementwise addition of equally shaped values.
func (t *Tape) Add(a, b *Value) *Value {
	av, bv := floats(a.Data), floats(b.Data)
	if len(av) != len(bv) {
		panic(fmt.Sprintf("autograd: add size mismatch %d != %d", len(av), len(bv)))
	}
	out := make([]float64, len(av))
	for i := range av {
		out[i] = av[i] + bv[i]
	}

	result := t.record(New(shapeOf(a.Data), out), a.requiresGrad || b.requiresGrad, nil)
	result.back = func() {
		g := floats(result.grad)
		if a.requiresGrad {
			ga := a.ensureGrad()
			for i := range g {
				ga[i] += g[i]
			}
		}
		if b.requiresGrad {
			gb := b.ensureGrad()
			for i := range g {
				gb[i] += g[i]
			}
		}
	}
	return result
}

// Hadamard is elementwise multiplication of equally shaped values.
func (t *Tape) Hadamard(a, b *Value) *Value {
	av, bv := floats(a.Data), floats(b.Data)
	if len(av) != len(bv) {
		panic(fmt.Sprintf("autograd: hadamard size mismatch %d != %d", len(av), len(bv)))
	}
	out := make([]float64, len(av))
	for i := range av {
		out[i] = av[i] * bv[i]
	}

	result := t.record(New(shapeOf(a.Data), out), a.requiresGrad || b.requiresGrad, nil)
	result.back = func() {
		g := floats(result.grad)
		if a.requiresGrad {
			ga := a.ensureGrad()
			for i := range g {
				ga[i] += g[i] * bv[i]
			}
		}
		if b.requiresGrad {
			gb := b.ensureGrad()
			for i := range g {
				gb[i] += g[i] * av[i]
			}
		}
	}
	return result
}

// Scale multiplies every element by a constant.
func (t *Tape) Scale(a *Value, s float64) *Value {
	av := floats(a.Data)
	out := make([]float64, len(av))
	for i := range av {
		out[i] = av[i] * s
	}

	result := t.record(New(shapeOf(a.Data), out), a.requiresGrad, nil)
	result.back = func() {
		if !a.requiresGrad {
			return
		}
		g := floats(result.grad)
		ga := a.ensureGrad()
		for i := range g {
			ga[i] += g[i] * s
		}
	}
	return result
}

// SiLU applies x*sigmoid(x) elementwise.
func (t *Tape) SiLU(a *Value) *Value {
	av := floats(a.Data)
	out := make([]float64, len(av))
	for i, x := range av {
		out[i] = x * sigmoid(x)
	}

	result := t.record(New(shapeOf(a.Data), out), a.requiresGrad, nil)
	result.back = func() {
		if !a.requiresGrad {
			return
		}
		g := floats(result.grad)
		ga := a.ensureGrad()
		for i, x := range av {
			s := sigmoid(x)
			ga[i] += g[i] * (s + x*s*(1-s))
		}
	}
	return result
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// PowInt raises every element to a positive integer power.
func (t *Tape) PowInt(a *Value, n int) *Value {
	if n < 1 {
		panic(fmt.Sprintf("autograd: pow exponent must be >= 1, got %d", n))
	}
	av := floats(a.Data)
	out := make([]float64, len(av))
	for i, x := range av {
		out[i] = intPow(x, n)
	}

	result := t.record(New(shapeOf(a.Data), out), a.requiresGrad, nil)
	result.back = func() {
		if !a.requiresGrad {
			return
		}
		g := floats(result.grad)
		ga := a.ensureGrad()
		for i, x := range av {
			ga[i] += g[i] * float64(n) * intPow(x, n-1)
		}
	}
	return result
}

func intPow(x float64, n int) float64 {
	y := 1.0
	for i := 0; i < n; i++ {
		y *= x
	}
	return y
}

// RowSum reduces a [r,c] value to [r,1].
func (t *Tape) RowSum(a *Value) *Value {
	r, c := dims2(a.Data, "rowsum input")
	av := floats(a.Data)
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			sum += av[i*c+j]
		}
		out[i] = sum
	}

	result := t.record(New([]int{r, 1}, out), a.requiresGrad, nil)
	result.back = func() {
		if !a.requiresGrad {
			return
		}
		g := floats(result.grad)
		ga := a.ensureGrad()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				ga[i*c+j] += g[i]
			}
		}
	}
	return result
}

// MulColVec scales row i of a [r,c] value by v[i], v shaped [r,1].
func (t *Tape) MulColVec(a, v *Value) *Value {
	r, c := dims2(a.Data, "mulcolvec input")
	vr, vc := dims2(v.Data, "mulcolvec vector")
	if vr != r || vc != 1 {
		panic(fmt.Sprintf("autograd: mulcolvec vector shape [%d,%d] does not match %d rows", vr, vc, r))
	}

	av, vv := floats(a.Data), floats(v.Data)
	out := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[i*c+j] = av[i*c+j] * vv[i]
		}
	}

	result := t.record(New([]int{r, c}, out), a.requiresGrad || v.requiresGrad, nil)
	result.back = func() {
		g := floats(result.grad)
		if a.requiresGrad {
			ga := a.ensureGrad()
			for i := 0; i < r; i++ {
				for j := 0; j < c; j++ {
					ga[i*c+j] += g[i*c+j] * vv[i]
				}
			}
		}
		if v.requiresGrad {
			gv := v.ensureGrad()
			for i := 0; i < r; i++ {
				sum := 0.0
				for j := 0; j < c; j++ {
					sum += g[i*c+j] * av[i*c+j]
				}
				gv[i] += sum
			}
		}
	}
	return result
}

// SumAll reduces a value to a single scalar.
func (t *Tape) SumAll(a *Value) *Value {
	av := floats(a.Data)
	sum := 0.0
	for _, x := range av {
		sum += x
	}

	result := t.record(New([]int{1}, []float64{sum}), a.requiresGrad, nil)
	result.back = func() {
		if !a.requiresGrad {
			return
		}
		g := floats(result.grad)[0]
		ga := a.ensureGrad()
		for i := range ga {
			ga[i] += g
		}
	}
	return result
}
