package modules

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/bluehope/mace/internal/autograd"
	"github.com/bluehope/mace/internal/data"
)

// NamedGradient is the gradient of the summed energy with respect to one
// learnable tensor. Grad is nil when no gradient reached the parameter.
type NamedGradient struct {
	Name string
	Key  string
	Grad *tensor.Dense
}

// EvalResult is one forward+backward pass: total energy, per-node forces
// (negative gradient of energy with respect to positions) and the gradient
// of the energy with respect to every learnable tensor.
type EvalResult struct {
	Energy    float64
	Forces    *tensor.Dense
	Gradients []NamedGradient
}

// Evaluate runs the model on one batch. The batch and the model are left
// untouched; the evaluation owns its tape and gradients.
func (m *Model) Evaluate(batch data.Batch) (EvalResult, error) {
	for i, z := range batch.Species {
		if z < 0 || z >= m.Config.NumElements {
			return EvalResult{}, fmt.Errorf("%w: node %d has species %d of %d", ErrConfig, i, z, m.Config.NumElements)
		}
	}

	tp := autograd.NewTape()

	slots := m.paramSlots()
	leaves := make(map[string]*autograd.Value, len(slots))
	for _, slot := range slots {
		leaves[slot.key] = tp.Leaf(slot.get(), true)
	}
	pos := tp.Leaf(batch.Positions, true)

	vectors := tp.EdgeVectors(pos, batch.Senders, batch.Receivers, batch.Shifts)
	lengths := tp.RowNorm(vectors)
	bessel := tp.BesselRadial(lengths, leaves["radial_embedding.frequencies"], m.Config.RMax)
	envelope := tp.PolyCutoff(lengths, m.Config.RMax, m.Config.NumPolynomialCutoff)
	edgeFeats := tp.MulColVec(bessel, envelope)

	senderSpecies := make([]int, len(batch.Senders))
	for e, s := range batch.Senders {
		senderSpecies[e] = batch.Species[s]
	}
	nodesByElement := make([][]int, m.Config.NumElements)
	for i, z := range batch.Species {
		nodesByElement[z] = append(nodesByElement[z], i)
	}

	feats := tp.Gather(leaves["node_embedding.weight"], batch.Species)

	var site *autograd.Value
	for i, block := range m.Interactions {
		up := tp.MatMul(feats, leaves[key("interactions", i, "linear_up")])

		h := edgeFeats
		h = tp.SiLU(tp.MatMul(h, leaves[key("interactions", i, "radial.0")]))
		h = tp.SiLU(tp.MatMul(h, leaves[key("interactions", i, "radial.1")]))
		rw := tp.MatMul(h, leaves[key("interactions", i, "radial.2")])

		var agg *autograd.Value
		if m.Backend == BackendFused {
			agg = tp.FusedMessage(up, rw, batch.Senders, batch.Receivers, batch.NumNodes)
		} else {
			msg := tp.Hadamard(tp.Gather(up, batch.Senders), rw)
			agg = tp.ScatterAdd(msg, batch.Receivers, batch.NumNodes)
		}
		agg = tp.Scale(agg, 1/m.Config.AvgNumNeighbors)

		if block.Variant == VariantDensity {
			var perEdge *autograd.Value
			if m.Backend == BackendFused {
				perEdge = tp.ColumnGather(tp.MatMul(edgeFeats, leaves[key("interactions", i, "density_packed")]), senderSpecies)
			} else {
				sel := tp.Gather(leaves[key("interactions", i, "density")], senderSpecies)
				perEdge = tp.RowSum(tp.Hadamard(sel, edgeFeats))
			}
			density := tp.ScatterAdd(perEdge, batch.Receivers, batch.NumNodes)
			ones := tp.Constant(onesDense(batch.NumNodes))
			norm := tp.Reciprocal(tp.Add(ones, tp.PowInt(density, 2)))
			agg = tp.MulColVec(agg, norm)
		}

		message := tp.MatMul(agg, leaves[key("interactions", i, "linear_down")])

		skipInput := message
		if block.Variant == VariantResidual {
			skipInput = feats
		}
		var skip *autograd.Value
		if m.Backend == BackendFused {
			skip = tp.PackedElementMatMul(skipInput, leaves[key("interactions", i, "skip_packed")], batch.Species)
		} else {
			for e := 0; e < m.Config.NumElements; e++ {
				idx := nodesByElement[e]
				if len(idx) == 0 {
					continue
				}
				sub := tp.MatMul(tp.Gather(skipInput, idx), leaves[key("interactions", i, fmt.Sprintf("skip.%d", e))])
				part := tp.ScatterAdd(sub, idx, batch.NumNodes)
				if skip == nil {
					skip = part
				} else {
					skip = tp.Add(skip, part)
				}
			}
		}

		var contracted *autograd.Value
		if m.Backend == BackendFused {
			contracted = tp.ProductBasis(message, leaves[key("products", i, "weight_packed")])
		} else {
			for o := 0; o < m.Config.Correlation; o++ {
				term := tp.MulRowVec(tp.PowInt(message, o+1), leaves[key("products", i, fmt.Sprintf("weight.%d", o))])
				if contracted == nil {
					contracted = term
				} else {
					contracted = tp.Add(contracted, term)
				}
			}
		}
		feats = tp.MatMul(contracted, leaves[key("products", i, "linear")])
		if skip != nil {
			feats = tp.Add(feats, skip)
		}

		readout := m.Readouts[i]
		var contribution *autograd.Value
		if readout.NonLinear {
			gated := tp.SiLU(tp.MatMul(feats, leaves[key("readouts", i, "hidden")]))
			contribution = tp.MatMul(gated, leaves[key("readouts", i, "out")])
		} else {
			contribution = tp.MatMul(feats, leaves[key("readouts", i, "weight")])
		}
		if site == nil {
			site = contribution
		} else {
			site = tp.Add(site, contribution)
		}
	}

	reference := tp.Gather(tp.Constant(m.AtomicEnergies), batch.Species)
	shift := tp.Constant(fillDense(batch.NumNodes, m.Shift))
	total := tp.Add(reference, tp.Add(shift, tp.Scale(site, m.Scale)))
	energy := tp.SumAll(total)

	tp.Backward(energy)

	forces := autograd.Zeros([]int{batch.NumNodes, 3})
	if pg := pos.Grad(); pg != nil {
		fv := forces.Data().([]float64)
		for i, g := range pg.Data().([]float64) {
			fv[i] = -g
		}
	}

	gradients := make([]NamedGradient, 0, len(slots))
	for _, slot := range slots {
		gradients = append(gradients, NamedGradient{
			Name: slot.name,
			Key:  slot.key,
			Grad: leaves[slot.key].Grad(),
		})
	}

	return EvalResult{
		Energy:    energy.Data.Data().([]float64)[0],
		Forces:    forces,
		Gradients: gradients,
	}, nil
}

func key(group string, i int, rest string) string {
	return fmt.Sprintf("%s.%d.%s", group, i, rest)
}

func onesDense(n int) *tensor.Dense {
	backing := make([]float64, n)
	for i := range backing {
		backing[i] = 1
	}
	return autograd.New([]int{n, 1}, backing)
}

func fillDense(n int, v float64) *tensor.Dense {
	backing := make([]float64, n)
	for i := range backing {
		backing[i] = v
	}
	return autograd.New([]int{n, 1}, backing)
}
