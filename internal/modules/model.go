package modules

import (
	"fmt"
	"math"
	"math/rand"

	"gorgonia.org/tensor"

	"github.com/bluehope/mace/internal/autograd"
	"github.com/bluehope/mace/internal/irreps"
)

// Hidden width of the radial MLP lifting Bessel features to channel weights.
const radialMLPHidden = 64

// EmbeddingBlock maps species indices to the initial channel features.
type EmbeddingBlock struct {
	Weight *tensor.Dense // [numElements, channels]
}

// RadialBlock evaluates the learnable Bessel basis under the polynomial
// cutoff envelope.
type RadialBlock struct {
	Frequencies *tensor.Dense // [numBessel]
}

// InteractionBlock lifts node features, weights messages by the radial MLP
// and aggregates them at the receivers. Parameter layout depends on the
// backend: the generic backend keeps per-element skip weights as separate
// tensors, the fused backend packs them row-wise into one tensor. The
// density variant carries additional density weights, stored element-major
// by the generic backend and transposed by the fused one.
type InteractionBlock struct {
	Variant InteractionVariant
	First   bool

	LinearUp   *tensor.Dense   // [in, channels]
	RadialMLP  []*tensor.Dense // [numBessel,64], [64,64], [64,channels]
	LinearDown *tensor.Dense   // [channels, channels]

	SkipWeights []*tensor.Dense // generic: numElements x [in, channels]
	SkipPacked  *tensor.Dense   // fused: [numElements*in, channels]

	DensityWeights *tensor.Dense // generic: [numElements, numBessel]
	DensityPacked  *tensor.Dense // fused: [numBessel, numElements]
}

// ProductBlock contracts symmetric powers of the aggregated message up to
// the correlation order. The generic backend keeps one weight vector per
// order; the fused backend packs them channel-major into [channels, corr].
type ProductBlock struct {
	Weights []*tensor.Dense // generic: corr x [channels]
	Packed  *tensor.Dense   // fused: [channels, corr]
	Linear  *tensor.Dense   // [channels, channels]
}

// ReadoutBlock maps node features to per-node energies. The final readout
// is gated through the MLP channels; earlier readouts are plain linear.
type ReadoutBlock struct {
	NonLinear bool
	Weight    *tensor.Dense // linear readout: [channels, 1]
	Hidden    *tensor.Dense // nonlinear: [channels, mlpChannels]
	Out       *tensor.Dense // nonlinear: [mlpChannels, 1]
}

// Model is a directed module graph tagged with one backend.
type Model struct {
	Config  Config
	Backend Backend

	Hidden      irreps.Irreps
	MLP         irreps.Irreps
	channels    int
	mlpChannels int

	Embedding    *EmbeddingBlock
	Radial       *RadialBlock
	Interactions []*InteractionBlock
	Products     []*ProductBlock
	Readouts     []*ReadoutBlock

	// Non-learnable buffers, copied verbatim by conversion.
	AtomicEnergies *tensor.Dense // [numElements, 1]
	Scale          float64
	Shift          float64
}

// New builds a model for the given backend. A nil rng yields zero-valued
// learnable tensors (conversion overwrites every one of them); otherwise
// weights are drawn scaled by fan-in and Bessel frequencies start at n*pi.
func New(cfg Config, backend Backend, rng *rand.Rand) (*Model, error) {
	if backend != BackendGeneric && backend != BackendFused {
		return nil, fmt.Errorf("%w: unknown backend %q", ErrConfig, backend)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.clone()

	hidden := irreps.MustParse(cfg.HiddenIrreps)
	mlp := irreps.MustParse(cfg.MLPIrreps)
	k := hidden.ScalarChannels()
	mk := mlp.ScalarChannels()

	m := &Model{
		Config:      cfg,
		Backend:     backend,
		Hidden:      hidden,
		MLP:         mlp,
		channels:    k,
		mlpChannels: mk,
		Scale:       cfg.AtomicInterScale,
		Shift:       cfg.AtomicInterShift,
	}

	m.Embedding = &EmbeddingBlock{Weight: initDense(rng, cfg.NumElements, k)}

	freqs := make([]float64, cfg.NumBessel)
	for n := range freqs {
		freqs[n] = float64(n+1) * math.Pi
	}
	m.Radial = &RadialBlock{Frequencies: autograd.New([]int{cfg.NumBessel}, freqs)}

	for i := 0; i < cfg.NumInteractions; i++ {
		variant := cfg.Interaction
		if i == 0 {
			variant = cfg.InteractionFirst
		}
		// The first block consumes the embedding layout; later blocks the
		// hidden layout. Both are k wide for scalar-only hidden irreps, but
		// the roles stay distinct in the correspondence table.
		in := k
		block := &InteractionBlock{
			Variant:    variant,
			First:      i == 0,
			LinearUp:   initDense(rng, in, k),
			LinearDown: initDense(rng, k, k),
			RadialMLP: []*tensor.Dense{
				initDense(rng, cfg.NumBessel, radialMLPHidden),
				initDense(rng, radialMLPHidden, radialMLPHidden),
				initDense(rng, radialMLPHidden, k),
			},
		}
		switch backend {
		case BackendGeneric:
			for e := 0; e < cfg.NumElements; e++ {
				block.SkipWeights = append(block.SkipWeights, initDense(rng, in, k))
			}
			if variant == VariantDensity {
				block.DensityWeights = initDense(rng, cfg.NumElements, cfg.NumBessel)
			}
		case BackendFused:
			block.SkipPacked = initDense(rng, cfg.NumElements*in, k)
			if variant == VariantDensity {
				block.DensityPacked = initDense(rng, cfg.NumBessel, cfg.NumElements)
			}
		}
		m.Interactions = append(m.Interactions, block)

		product := &ProductBlock{Linear: initDense(rng, k, k)}
		switch backend {
		case BackendGeneric:
			for o := 0; o < cfg.Correlation; o++ {
				product.Weights = append(product.Weights, initVector(rng, k))
			}
		case BackendFused:
			product.Packed = initDense(rng, k, cfg.Correlation)
		}
		m.Products = append(m.Products, product)

		readout := &ReadoutBlock{}
		if i == cfg.NumInteractions-1 {
			readout.NonLinear = true
			readout.Hidden = initDense(rng, k, mk)
			readout.Out = initDense(rng, mk, 1)
		} else {
			readout.Weight = initDense(rng, k, 1)
		}
		m.Readouts = append(m.Readouts, readout)
	}

	energies := make([]float64, cfg.NumElements)
	copy(energies, cfg.AtomicEnergies)
	m.AtomicEnergies = autograd.New([]int{cfg.NumElements, 1}, energies)

	return m, nil
}

// Channels is the scalar channel width of the hidden layout.
func (m *Model) Channels() int {
	return m.channels
}

func initDense(rng *rand.Rand, rows, cols int) *tensor.Dense {
	backing := make([]float64, rows*cols)
	if rng != nil {
		scale := 1 / math.Sqrt(float64(rows))
		for i := range backing {
			backing[i] = rng.NormFloat64() * scale
		}
	}
	return autograd.New([]int{rows, cols}, backing)
}

func initVector(rng *rand.Rand, n int) *tensor.Dense {
	backing := make([]float64, n)
	if rng != nil {
		for i := range backing {
			backing[i] = rng.NormFloat64() / math.Sqrt(float64(n))
		}
	}
	return autograd.New([]int{n}, backing)
}
