// Package convert transforms a model between the generic and fused backends:
// it derives a conversion plan from the model's static structure, maps every
// learnable tensor through an exactly invertible layout transform, and
// returns a freshly allocated model of the other backend. Buffers and
// configuration are copied verbatim; the source model is never mutated.
package convert

import (
	"errors"
	"fmt"

	"gorgonia.org/tensor"

	"github.com/bluehope/mace/internal/autograd"
)

var (
	ErrLayoutMismatch     = errors.New("parameter layout mismatch")
	ErrDirection          = errors.New("model backend does not match conversion direction")
	ErrBackendUnavailable = errors.New("target backend unavailable")
)

// PackTransform converts between the generic side's tensors (one or more)
// and the fused side's single packed tensor. Unpack must exactly invert
// Pack: the transforms only regroup and reorder values, never change them.
type PackTransform interface {
	Name() string
	Pack(src []*tensor.Dense) (*tensor.Dense, error)
	Unpack(dst *tensor.Dense) ([]*tensor.Dense, error)
}

// identity clones a single tensor unchanged.
type identity struct{}

func (identity) Name() string { return "identity" }

func (identity) Pack(src []*tensor.Dense) (*tensor.Dense, error) {
	if len(src) != 1 {
		return nil, fmt.Errorf("%w: identity expects one tensor, got %d", ErrLayoutMismatch, len(src))
	}
	return autograd.CloneDense(src[0]), nil
}

func (identity) Unpack(dst *tensor.Dense) ([]*tensor.Dense, error) {
	return []*tensor.Dense{autograd.CloneDense(dst)}, nil
}

// rowPack stacks per-element [rows, cols] tensors along the row axis into
// one [blocks*rows, cols] tensor, in element order.
type rowPack struct {
	blocks int
	rows   int
	cols   int
}

func (p rowPack) Name() string { return "row_pack" }

func (p rowPack) Pack(src []*tensor.Dense) (*tensor.Dense, error) {
	if len(src) != p.blocks {
		return nil, fmt.Errorf("%w: row_pack expects %d tensors, got %d", ErrLayoutMismatch, p.blocks, len(src))
	}
	backing := make([]float64, p.blocks*p.rows*p.cols)
	for b, t := range src {
		tv := t.Data().([]float64)
		if len(tv) != p.rows*p.cols {
			return nil, fmt.Errorf("%w: row_pack block %d has %d elements, want %d", ErrLayoutMismatch, b, len(tv), p.rows*p.cols)
		}
		copy(backing[b*p.rows*p.cols:], tv)
	}
	return autograd.New([]int{p.blocks * p.rows, p.cols}, backing), nil
}

func (p rowPack) Unpack(dst *tensor.Dense) ([]*tensor.Dense, error) {
	dv := dst.Data().([]float64)
	if len(dv) != p.blocks*p.rows*p.cols {
		return nil, fmt.Errorf("%w: row_pack has %d elements, want %d", ErrLayoutMismatch, len(dv), p.blocks*p.rows*p.cols)
	}
	out := make([]*tensor.Dense, p.blocks)
	for b := 0; b < p.blocks; b++ {
		backing := make([]float64, p.rows*p.cols)
		copy(backing, dv[b*p.rows*p.cols:(b+1)*p.rows*p.cols])
		out[b] = autograd.New([]int{p.rows, p.cols}, backing)
	}
	return out, nil
}

// interleavePack turns per-order weight vectors of length channels into the
// fused channel-major [channels, orders] tensor, so the fused kernel reads
// all orders of one channel contiguously.
type interleavePack struct {
	channels int
	orders   int
}

func (p interleavePack) Name() string { return "interleave_pack" }

func (p interleavePack) Pack(src []*tensor.Dense) (*tensor.Dense, error) {
	if len(src) != p.orders {
		return nil, fmt.Errorf("%w: interleave_pack expects %d tensors, got %d", ErrLayoutMismatch, p.orders, len(src))
	}
	backing := make([]float64, p.channels*p.orders)
	for o, t := range src {
		tv := t.Data().([]float64)
		if len(tv) != p.channels {
			return nil, fmt.Errorf("%w: interleave_pack order %d has %d elements, want %d", ErrLayoutMismatch, o, len(tv), p.channels)
		}
		for c := 0; c < p.channels; c++ {
			backing[c*p.orders+o] = tv[c]
		}
	}
	return autograd.New([]int{p.channels, p.orders}, backing), nil
}

func (p interleavePack) Unpack(dst *tensor.Dense) ([]*tensor.Dense, error) {
	dv := dst.Data().([]float64)
	if len(dv) != p.channels*p.orders {
		return nil, fmt.Errorf("%w: interleave_pack has %d elements, want %d", ErrLayoutMismatch, len(dv), p.channels*p.orders)
	}
	out := make([]*tensor.Dense, p.orders)
	for o := 0; o < p.orders; o++ {
		backing := make([]float64, p.channels)
		for c := 0; c < p.channels; c++ {
			backing[c] = dv[c*p.orders+o]
		}
		out[o] = autograd.New([]int{p.channels}, backing)
	}
	return out, nil
}

// transposePack flips a single [rows, cols] tensor to [cols, rows].
type transposePack struct {
	rows int
	cols int
}

func (p transposePack) Name() string { return "transpose" }

func (p transposePack) Pack(src []*tensor.Dense) (*tensor.Dense, error) {
	if len(src) != 1 {
		return nil, fmt.Errorf("%w: transpose expects one tensor, got %d", ErrLayoutMismatch, len(src))
	}
	tv := src[0].Data().([]float64)
	if len(tv) != p.rows*p.cols {
		return nil, fmt.Errorf("%w: transpose has %d elements, want %d", ErrLayoutMismatch, len(tv), p.rows*p.cols)
	}
	backing := make([]float64, p.rows*p.cols)
	for r := 0; r < p.rows; r++ {
		for c := 0; c < p.cols; c++ {
			backing[c*p.rows+r] = tv[r*p.cols+c]
		}
	}
	return autograd.New([]int{p.cols, p.rows}, backing), nil
}

func (p transposePack) Unpack(dst *tensor.Dense) ([]*tensor.Dense, error) {
	dv := dst.Data().([]float64)
	if len(dv) != p.rows*p.cols {
		return nil, fmt.Errorf("%w: transpose has %d elements, want %d", ErrLayoutMismatch, len(dv), p.rows*p.cols)
	}
	backing := make([]float64, p.rows*p.cols)
	for c := 0; c < p.cols; c++ {
		for r := 0; r < p.rows; r++ {
			backing[r*p.cols+c] = dv[c*p.rows+r]
		}
	}
	return []*tensor.Dense{autograd.New([]int{p.rows, p.cols}, backing)}, nil
}
