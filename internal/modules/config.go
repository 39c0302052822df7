// Package modules implements the interatomic model as a module graph over
// the autograd tape: species embedding, Bessel radial embedding, interaction
// blocks, product-basis contractions, readouts and the scale-shift output.
// Every model instance is tagged with exactly one backend: the generic
// composition of elementary ops, or the fused backend whose kernels pack
// per-element and per-order parameters into single tensors.
package modules

import (
	"errors"
	"fmt"

	"github.com/bluehope/mace/internal/irreps"
)

// Backend tags the tensor-operation implementation of a model.
type Backend string

const (
	BackendGeneric Backend = "generic"
	BackendFused   Backend = "fused"
)

// InteractionVariant selects the interaction-block flavor.
type InteractionVariant string

const (
	VariantStandard InteractionVariant = "real_agnostic"
	VariantResidual InteractionVariant = "real_agnostic_residual"
	VariantDensity  InteractionVariant = "real_agnostic_density"
)

var (
	ErrConfig           = errors.New("invalid model config")
	ErrUnknownVariant   = errors.New("unknown interaction variant")
	ErrUnsupportedIrrep = errors.New("unsupported hidden irreps for evaluation")
)

// Variants lists the supported interaction-block flavors.
func Variants() []InteractionVariant {
	return []InteractionVariant{VariantStandard, VariantResidual, VariantDensity}
}

func validVariant(v InteractionVariant) bool {
	switch v {
	case VariantStandard, VariantResidual, VariantDensity:
		return true
	}
	return false
}

// Config carries every model hyperparameter. Conversion copies it verbatim
// into the target model.
type Config struct {
	RMax                float64
	NumBessel           int
	NumPolynomialCutoff int
	MaxEll              int
	Interaction         InteractionVariant
	InteractionFirst    InteractionVariant
	NumInteractions     int
	NumElements         int
	HiddenIrreps        string
	MLPIrreps           string
	Gate                string
	AtomicEnergies      []float64
	AvgNumNeighbors     float64
	AtomicNumbers       []int
	Correlation         int
	RadialType          string
	AtomicInterScale    float64
	AtomicInterShift    float64
}

func (c Config) validate() error {
	if c.RMax <= 0 {
		return fmt.Errorf("%w: r_max must be positive", ErrConfig)
	}
	if c.NumBessel <= 0 {
		return fmt.Errorf("%w: num_bessel must be positive", ErrConfig)
	}
	if c.NumPolynomialCutoff < 2 {
		return fmt.Errorf("%w: num_polynomial_cutoff must be >= 2", ErrConfig)
	}
	if c.MaxEll < 0 {
		return fmt.Errorf("%w: max_ell must be >= 0", ErrConfig)
	}
	if !validVariant(c.Interaction) {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, c.Interaction)
	}
	if !validVariant(c.InteractionFirst) {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, c.InteractionFirst)
	}
	if c.NumInteractions < 1 {
		return fmt.Errorf("%w: num_interactions must be >= 1", ErrConfig)
	}
	if c.NumElements < 1 {
		return fmt.Errorf("%w: num_elements must be >= 1", ErrConfig)
	}
	if len(c.AtomicEnergies) != c.NumElements {
		return fmt.Errorf("%w: %d atomic energies for %d elements", ErrConfig, len(c.AtomicEnergies), c.NumElements)
	}
	if len(c.AtomicNumbers) != c.NumElements {
		return fmt.Errorf("%w: %d atomic numbers for %d elements", ErrConfig, len(c.AtomicNumbers), c.NumElements)
	}
	if c.AvgNumNeighbors <= 0 {
		return fmt.Errorf("%w: avg_num_neighbors must be positive", ErrConfig)
	}
	if c.Correlation < 1 {
		return fmt.Errorf("%w: correlation must be >= 1", ErrConfig)
	}
	if c.Gate != "silu" {
		return fmt.Errorf("%w: unsupported gate %q", ErrConfig, c.Gate)
	}
	if c.RadialType != "bessel" {
		return fmt.Errorf("%w: unsupported radial type %q", ErrConfig, c.RadialType)
	}

	hidden, err := irreps.Parse(c.HiddenIrreps)
	if err != nil {
		return err
	}
	if !hidden.ScalarOnly() {
		return fmt.Errorf("%w: %s", ErrUnsupportedIrrep, c.HiddenIrreps)
	}
	mlp, err := irreps.Parse(c.MLPIrreps)
	if err != nil {
		return err
	}
	if !mlp.ScalarOnly() {
		return fmt.Errorf("%w: %s", ErrUnsupportedIrrep, c.MLPIrreps)
	}
	return nil
}

func (c Config) clone() Config {
	out := c
	out.AtomicEnergies = append([]float64(nil), c.AtomicEnergies...)
	out.AtomicNumbers = append([]int(nil), c.AtomicNumbers...)
	return out
}
