package autograd

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// Gather selects rows of a [r,c] value by index, producing [len(idx),c].
func (t *Tape) Gather(a *Value, idx []int) *Value {
	r, c := dims2(a.Data, "gather input")
	av := floats(a.Data)
	out := make([]float64, len(idx)*c)
	for e, i := range idx {
		if i < 0 || i >= r {
			panic(fmt.Sprintf("autograd: gather index %d out of range [0,%d)", i, r))
		}
		copy(out[e*c:(e+1)*c], av[i*c:(i+1)*c])
	}

	result := t.record(New([]int{len(idx), c}, out), a.requiresGrad, nil)
	result.back = func() {
		if !a.requiresGrad {
			return
		}
		g := floats(result.grad)
		ga := a.ensureGrad()
		for e, i := range idx {
			for j := 0; j < c; j++ {
				ga[i*c+j] += g[e*c+j]
			}
		}
	}
	return result
}

// ScatterAdd accumulates rows of a [e,c] value into a [rows,c] result at the
// given indices. Rows are accumulated in input order, so the summation order
// is deterministic.
func (t *Tape) ScatterAdd(a *Value, idx []int, rows int) *Value {
	e, c := dims2(a.Data, "scatteradd input")
	if len(idx) != e {
		panic(fmt.Sprintf("autograd: scatteradd index count %d != rows %d", len(idx), e))
	}
	av := floats(a.Data)
	out := make([]float64, rows*c)
	for k, i := range idx {
		if i < 0 || i >= rows {
			panic(fmt.Sprintf("autograd: scatteradd index %d out of range [0,%d)", i, rows))
		}
		for j := 0; j < c; j++ {
			out[i*c+j] += av[k*c+j]
		}
	}

	result := t.record(New([]int{rows, c}, out), a.requiresGrad, nil)
	result.back = func() {
		if !a.requiresGrad {
			return
		}
		g := floats(result.grad)
		ga := a.ensureGrad()
		for k, i := range idx {
			for j := 0; j < c; j++ {
				ga[k*c+j] += g[i*c+j]
			}
		}
	}
	return result
}

// EdgeVectors computes per-edge displacement vectors
// pos[sender] - pos[receiver] + shift, with shifts already in Cartesian
// coordinates. Positions are [n,3], shifts [e,3].
func (t *Tape) EdgeVectors(pos *Value, senders, receivers []int, shifts *tensor.Dense) *Value {
	n, c := dims2(pos.Data, "positions")
	if c != 3 {
		panic(fmt.Sprintf("autograd: positions must be [n,3], got %d columns", c))
	}
	e := len(senders)
	if len(receivers) != e {
		panic(fmt.Sprintf("autograd: %d senders vs %d receivers", e, len(receivers)))
	}

	pv := floats(pos.Data)
	sv := floats(shifts)
	out := make([]float64, e*3)
	for k := 0; k < e; k++ {
		s, r := senders[k], receivers[k]
		if s < 0 || s >= n || r < 0 || r >= n {
			panic(fmt.Sprintf("autograd: edge (%d,%d) out of range [0,%d)", s, r, n))
		}
		for j := 0; j < 3; j++ {
			out[k*3+j] = pv[s*3+j] - pv[r*3+j] + sv[k*3+j]
		}
	}

	result := t.record(New([]int{e, 3}, out), pos.requiresGrad, nil)
	result.back = func() {
		if !pos.requiresGrad {
			return
		}
		g := floats(result.grad)
		gp := pos.ensureGrad()
		for k := 0; k < e; k++ {
			s, r := senders[k], receivers[k]
			for j := 0; j < 3; j++ {
				gp[s*3+j] += g[k*3+j]
				gp[r*3+j] -= g[k*3+j]
			}
		}
	}
	return result
}

// RowNorm computes the Euclidean norm of each row of a [e,3] value.
func (t *Tape) RowNorm(a *Value) *Value {
	e, c := dims2(a.Data, "rownorm input")
	av := floats(a.Data)
	out := make([]float64, e)
	for i := 0; i < e; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			x := av[i*c+j]
			sum += x * x
		}
		out[i] = math.Sqrt(sum)
	}

	result := t.record(New([]int{e, 1}, out), a.requiresGrad, nil)
	result.back = func() {
		if !a.requiresGrad {
			return
		}
		g := floats(result.grad)
		ga := a.ensureGrad()
		for i := 0; i < e; i++ {
			norm := out[i]
			if norm == 0 {
				continue
			}
			for j := 0; j < c; j++ {
				ga[i*c+j] += g[i] * av[i*c+j] / norm
			}
		}
	}
	return result
}

// PackedElementMatMul is the fused-backend kernel for per-element linear
// maps: weights for all elements are packed row-wise into a single
// [numElements*k, kout] tensor and each node is multiplied by the block of
// its own species. Equivalent to gather+matmul+scatter over per-element
// weight tensors, evaluated in one pass.
func (t *Tape) PackedElementMatMul(x, w *Value, species []int) *Value {
	n, k := dims2(x.Data, "packed matmul input")
	wr, kout := dims2(w.Data, "packed matmul weights")
	if len(species) != n {
		panic(fmt.Sprintf("autograd: %d species for %d nodes", len(species), n))
	}
	if wr%k != 0 {
		panic(fmt.Sprintf("autograd: packed weight rows %d not a multiple of %d", wr, k))
	}
	numElements := wr / k

	xv, wv := floats(x.Data), floats(w.Data)
	out := make([]float64, n*kout)
	for i := 0; i < n; i++ {
		z := species[i]
		if z < 0 || z >= numElements {
			panic(fmt.Sprintf("autograd: species %d out of range [0,%d)", z, numElements))
		}
		base := z * k
		for j := 0; j < kout; j++ {
			sum := 0.0
			for q := 0; q < k; q++ {
				sum += xv[i*k+q] * wv[(base+q)*kout+j]
			}
			out[i*kout+j] = sum
		}
	}

	result := t.record(New([]int{n, kout}, out), x.requiresGrad || w.requiresGrad, nil)
	result.back = func() {
		g := floats(result.grad)
		if x.requiresGrad {
			gx := x.ensureGrad()
			for i := 0; i < n; i++ {
				base := species[i] * k
				for q := 0; q < k; q++ {
					sum := 0.0
					for j := 0; j < kout; j++ {
						sum += g[i*kout+j] * wv[(base+q)*kout+j]
					}
					gx[i*k+q] += sum
				}
			}
		}
		if w.requiresGrad {
			gw := w.ensureGrad()
			for i := 0; i < n; i++ {
				base := species[i] * k
				for q := 0; q < k; q++ {
					for j := 0; j < kout; j++ {
						gw[(base+q)*kout+j] += xv[i*k+q] * g[i*kout+j]
					}
				}
			}
		}
	}
	return result
}

// FusedMessage is the fused-backend message-passing kernel: for every edge,
// the sender's lifted features are weighted by the edge's radial weights and
// accumulated at the receiver, in one pass over the edge list. Equivalent to
// Hadamard(Gather(up, senders), rw) followed by ScatterAdd on receivers.
func (t *Tape) FusedMessage(up, rw *Value, senders, receivers []int, nodes int) *Value {
	n, k := dims2(up.Data, "fused message features")
	e, k2 := dims2(rw.Data, "fused message weights")
	if k != k2 {
		panic(fmt.Sprintf("autograd: fused message widths %d != %d", k, k2))
	}
	if len(senders) != e || len(receivers) != e {
		panic(fmt.Sprintf("autograd: fused message expects %d edges, got %d/%d indices", e, len(senders), len(receivers)))
	}

	uv, wv := floats(up.Data), floats(rw.Data)
	out := make([]float64, nodes*k)
	for edge := 0; edge < e; edge++ {
		s, r := senders[edge], receivers[edge]
		if s < 0 || s >= n || r < 0 || r >= nodes {
			panic(fmt.Sprintf("autograd: fused message edge (%d,%d) out of range", s, r))
		}
		for j := 0; j < k; j++ {
			out[r*k+j] += wv[edge*k+j] * uv[s*k+j]
		}
	}

	result := t.record(New([]int{nodes, k}, out), up.requiresGrad || rw.requiresGrad, nil)
	result.back = func() {
		g := floats(result.grad)
		if up.requiresGrad {
			gu := up.ensureGrad()
			for edge := 0; edge < e; edge++ {
				s, r := senders[edge], receivers[edge]
				for j := 0; j < k; j++ {
					gu[s*k+j] += wv[edge*k+j] * g[r*k+j]
				}
			}
		}
		if rw.requiresGrad {
			gw := rw.ensureGrad()
			for edge := 0; edge < e; edge++ {
				s, r := senders[edge], receivers[edge]
				for j := 0; j < k; j++ {
					gw[edge*k+j] += uv[s*k+j] * g[r*k+j]
				}
			}
		}
	}
	return result
}
