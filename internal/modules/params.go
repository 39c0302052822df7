package modules

import (
	"errors"
	"fmt"

	"gorgonia.org/tensor"
)

var (
	ErrUnknownParameter = errors.New("unknown parameter")
	ErrParameterShape   = errors.New("parameter shape mismatch")
)

// NamedParam is one learnable tensor of the module graph. Name is the
// backend-specific display path; Key is the backend-neutral structural key
// emitted by construction, used to align corresponding parameters across
// backends. Packed parameters carry keys of their own so that alignment
// never pairs tensors of different layouts.
type NamedParam struct {
	Name  string
	Key   string
	Value *tensor.Dense
}

type paramSlot struct {
	name string
	key  string
	get  func() *tensor.Dense
	set  func(*tensor.Dense)
}

// paramSlots enumerates every learnable tensor in the fixed traversal order:
// embedding, radial embedding, then per interaction the lift, radial MLP,
// down projection, skip and density weights, then the product block, then
// the readouts.
func (m *Model) paramSlots() []paramSlot {
	var slots []paramSlot

	slots = append(slots, paramSlot{
		name: "node_embedding.linear.weight",
		key:  "node_embedding.weight",
		get:  func() *tensor.Dense { return m.Embedding.Weight },
		set:  func(t *tensor.Dense) { m.Embedding.Weight = t },
	})
	slots = append(slots, paramSlot{
		name: "radial_embedding.bessel.frequencies",
		key:  "radial_embedding.frequencies",
		get:  func() *tensor.Dense { return m.Radial.Frequencies },
		set:  func(t *tensor.Dense) { m.Radial.Frequencies = t },
	})

	for i, block := range m.Interactions {
		i, block := i, block
		slots = append(slots, paramSlot{
			name: fmt.Sprintf("interactions.%d.linear_up.weight", i),
			key:  fmt.Sprintf("interactions.%d.linear_up", i),
			get:  func() *tensor.Dense { return block.LinearUp },
			set:  func(t *tensor.Dense) { block.LinearUp = t },
		})
		for j := range block.RadialMLP {
			j := j
			name := fmt.Sprintf("interactions.%d.conv_tp_weights.%d.weight", i, j)
			if m.Backend == BackendFused {
				name = fmt.Sprintf("interactions.%d.radial_mlp.%d.weight", i, j)
			}
			slots = append(slots, paramSlot{
				name: name,
				key:  fmt.Sprintf("interactions.%d.radial.%d", i, j),
				get:  func() *tensor.Dense { return block.RadialMLP[j] },
				set:  func(t *tensor.Dense) { block.RadialMLP[j] = t },
			})
		}
		downName := fmt.Sprintf("interactions.%d.linear.weight", i)
		if m.Backend == BackendFused {
			downName = fmt.Sprintf("interactions.%d.linear_down.weight", i)
		}
		slots = append(slots, paramSlot{
			name: downName,
			key:  fmt.Sprintf("interactions.%d.linear_down", i),
			get:  func() *tensor.Dense { return block.LinearDown },
			set:  func(t *tensor.Dense) { block.LinearDown = t },
		})

		switch m.Backend {
		case BackendGeneric:
			for e := range block.SkipWeights {
				e := e
				slots = append(slots, paramSlot{
					name: fmt.Sprintf("interactions.%d.skip_tp.weights.%d", i, e),
					key:  fmt.Sprintf("interactions.%d.skip.%d", i, e),
					get:  func() *tensor.Dense { return block.SkipWeights[e] },
					set:  func(t *tensor.Dense) { block.SkipWeights[e] = t },
				})
			}
			if block.DensityWeights != nil {
				slots = append(slots, paramSlot{
					name: fmt.Sprintf("interactions.%d.density_fn.weight", i),
					key:  fmt.Sprintf("interactions.%d.density", i),
					get:  func() *tensor.Dense { return block.DensityWeights },
					set:  func(t *tensor.Dense) { block.DensityWeights = t },
				})
			}
		case BackendFused:
			slots = append(slots, paramSlot{
				name: fmt.Sprintf("interactions.%d.skip_tp.packed_weight", i),
				key:  fmt.Sprintf("interactions.%d.skip_packed", i),
				get:  func() *tensor.Dense { return block.SkipPacked },
				set:  func(t *tensor.Dense) { block.SkipPacked = t },
			})
			if block.DensityPacked != nil {
				slots = append(slots, paramSlot{
					name: fmt.Sprintf("interactions.%d.density.packed_weight", i),
					key:  fmt.Sprintf("interactions.%d.density_packed", i),
					get:  func() *tensor.Dense { return block.DensityPacked },
					set:  func(t *tensor.Dense) { block.DensityPacked = t },
				})
			}
		}
	}

	for i, product := range m.Products {
		i, product := i, product
		switch m.Backend {
		case BackendGeneric:
			for o := range product.Weights {
				o := o
				slots = append(slots, paramSlot{
					name: fmt.Sprintf("products.%d.weights.%d", i, o),
					key:  fmt.Sprintf("products.%d.weight.%d", i, o),
					get:  func() *tensor.Dense { return product.Weights[o] },
					set:  func(t *tensor.Dense) { product.Weights[o] = t },
				})
			}
		case BackendFused:
			slots = append(slots, paramSlot{
				name: fmt.Sprintf("products.%d.packed_weight", i),
				key:  fmt.Sprintf("products.%d.weight_packed", i),
				get:  func() *tensor.Dense { return product.Packed },
				set:  func(t *tensor.Dense) { product.Packed = t },
			})
		}
		slots = append(slots, paramSlot{
			name: fmt.Sprintf("products.%d.linear.weight", i),
			key:  fmt.Sprintf("products.%d.linear", i),
			get:  func() *tensor.Dense { return product.Linear },
			set:  func(t *tensor.Dense) { product.Linear = t },
		})
	}

	for i, readout := range m.Readouts {
		i, readout := i, readout
		if readout.NonLinear {
			slots = append(slots, paramSlot{
				name: fmt.Sprintf("readouts.%d.linear_mlp.weight", i),
				key:  fmt.Sprintf("readouts.%d.hidden", i),
				get:  func() *tensor.Dense { return readout.Hidden },
				set:  func(t *tensor.Dense) { readout.Hidden = t },
			})
			slots = append(slots, paramSlot{
				name: fmt.Sprintf("readouts.%d.linear_out.weight", i),
				key:  fmt.Sprintf("readouts.%d.out", i),
				get:  func() *tensor.Dense { return readout.Out },
				set:  func(t *tensor.Dense) { readout.Out = t },
			})
			continue
		}
		slots = append(slots, paramSlot{
			name: fmt.Sprintf("readouts.%d.linear.weight", i),
			key:  fmt.Sprintf("readouts.%d.weight", i),
			get:  func() *tensor.Dense { return readout.Weight },
			set:  func(t *tensor.Dense) { readout.Weight = t },
		})
	}

	return slots
}

// NamedParameters returns every learnable tensor in deterministic traversal
// order. The returned tensors are the live parameters, not copies.
func (m *Model) NamedParameters() []NamedParam {
	slots := m.paramSlots()
	out := make([]NamedParam, 0, len(slots))
	for _, slot := range slots {
		out = append(out, NamedParam{Name: slot.name, Key: slot.key, Value: slot.get()})
	}
	return out
}

// SetParameter replaces the learnable tensor with the given structural key.
// The replacement must match the existing shape exactly.
func (m *Model) SetParameter(key string, value *tensor.Dense) error {
	for _, slot := range m.paramSlots() {
		if slot.key != key {
			continue
		}
		current := slot.get()
		if !current.Shape().Eq(value.Shape()) {
			return fmt.Errorf("%w: %s expects %v, got %v", ErrParameterShape, key, current.Shape(), value.Shape())
		}
		slot.set(value)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownParameter, key)
}

// Parameter returns the learnable tensor with the given structural key.
func (m *Model) Parameter(key string) (*tensor.Dense, error) {
	for _, slot := range m.paramSlots() {
		if slot.key == key {
			return slot.get(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, key)
}
