// Package autograd implements tape-based reverse-mode differentiation over
// dense float64 tensors. Operations are recorded on a Tape in construction
// order; Backward walks the tape in reverse and accumulates gradients into
// every value that requires them.
//
// The op set is the minimum needed by the interaction-network blocks:
// dense algebra, elementwise nonlinearities, row gather/scatter for edge
// message passing, and analytic radial-basis kernels.
package autograd

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Value is one node of the recorded computation.
type Value struct {
	Data *tensor.Dense

	grad         *tensor.Dense
	requiresGrad bool
	back         func()
}

// Grad returns the accumulated gradient, or nil if none was propagated.
func (v *Value) Grad() *tensor.Dense {
	return v.grad
}

// RequiresGrad reports whether backward will accumulate into this value.
func (v *Value) RequiresGrad() bool {
	return v.requiresGrad
}

func (v *Value) ensureGrad() []float64 {
	if v.grad == nil {
		v.grad = zerosLike(v.Data)
	}
	return floats(v.grad)
}

// Tape records operations for a single forward pass. A tape is not safe for
// concurrent use; each evaluation owns its own tape.
type Tape struct {
	nodes []*Value
}

func NewTape() *Tape {
	return &Tape{}
}

// Leaf registers an input tensor. Gradients are accumulated into leaves with
// requiresGrad set.
func (t *Tape) Leaf(data *tensor.Dense, requiresGrad bool) *Value {
	v := &Value{Data: data, requiresGrad: requiresGrad}
	t.nodes = append(t.nodes, v)
	return v
}

// Constant registers a tensor that never receives gradients.
func (t *Tape) Constant(data *tensor.Dense) *Value {
	return t.Leaf(data, false)
}

func (t *Tape) record(data *tensor.Dense, requiresGrad bool, back func()) *Value {
	v := &Value{Data: data, requiresGrad: requiresGrad, back: back}
	t.nodes = append(t.nodes, v)
	return v
}

// Backward seeds the scalar root with gradient one and propagates through
// the tape in reverse construction order.
func (t *Tape) Backward(root *Value) {
	if root.Data.Shape().TotalSize() != 1 {
		panic(fmt.Sprintf("autograd: backward root must be scalar, got shape %v", root.Data.Shape()))
	}
	root.ensureGrad()[0] = 1

	for i := len(t.nodes) - 1; i >= 0; i-- {
		node := t.nodes[i]
		if node.back == nil || node.grad == nil || !node.requiresGrad {
			continue
		}
		node.back()
	}
}

// New builds a dense float64 tensor owning the given backing slice.
func New(shape []int, backing []float64) *tensor.Dense {
	if len(backing) != sizeOf(shape) {
		panic(fmt.Sprintf("autograd: backing length %d does not match shape %v", len(backing), shape))
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(backing))
}

// Zeros builds a zero-filled dense float64 tensor.
func Zeros(shape []int) *tensor.Dense {
	return New(shape, make([]float64, sizeOf(shape)))
}

// CloneDense deep-copies a dense tensor.
func CloneDense(t *tensor.Dense) *tensor.Dense {
	return t.Clone().(*tensor.Dense)
}

func zerosLike(t *tensor.Dense) *tensor.Dense {
	return Zeros(shapeOf(t))
}

func floats(t *tensor.Dense) []float64 {
	return t.Data().([]float64)
}

func shapeOf(t *tensor.Dense) []int {
	return append([]int(nil), []int(t.Shape())...)
}

func sizeOf(shape []int) int {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return size
}

func dims2(t *tensor.Dense, what string) (int, int) {
	s := t.Shape()
	if len(s) != 2 {
		panic(fmt.Sprintf("autograd: %s must be rank 2, got shape %v", what, s))
	}
	return s[0], s[1]
}
