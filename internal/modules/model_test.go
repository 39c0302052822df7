package modules

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/bluehope/mace/internal/autograd"
	"github.com/bluehope/mace/internal/data"
)

func testConfig(variant, first InteractionVariant) Config {
	return Config{
		RMax:                5.0,
		NumBessel:           8,
		NumPolynomialCutoff: 6,
		MaxEll:              3,
		Interaction:         variant,
		InteractionFirst:    first,
		NumInteractions:     2,
		NumElements:         1,
		HiddenIrreps:        "32x0e",
		MLPIrreps:           "16x0e",
		Gate:                "silu",
		AtomicEnergies:      []float64{-1.5},
		AvgNumNeighbors:     8,
		AtomicNumbers:       []int{6},
		Correlation:         3,
		RadialType:          "bessel",
		AtomicInterScale:    1.0,
		AtomicInterShift:    0.0,
	}
}

func testBatch(t *testing.T) data.Batch {
	t.Helper()
	table := data.NewAtomicNumberTable([]int{6})
	s := data.Displace(data.Diamond(6, 3.567), 0.05, rand.New(rand.NewSource(11)))
	batch, err := data.NewBatch(s, table, 5.0)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	return batch
}

func TestNewAllVariantsBothBackends(t *testing.T) {
	for _, variant := range Variants() {
		for _, backend := range []Backend{BackendGeneric, BackendFused} {
			m, err := New(testConfig(variant, variant), backend, rand.New(rand.NewSource(1)))
			if err != nil {
				t.Fatalf("New(%s, %s): %v", variant, backend, err)
			}
			if got := len(m.Interactions); got != 2 {
				t.Fatalf("interactions: got=%d want=2", got)
			}
			if !m.Interactions[0].First || m.Interactions[1].First {
				t.Fatalf("first flags wrong: %v %v", m.Interactions[0].First, m.Interactions[1].First)
			}
			if !m.Readouts[1].NonLinear || m.Readouts[0].NonLinear {
				t.Fatalf("readout nonlinearity wrong")
			}
			hasDensity := variant == VariantDensity
			if backend == BackendGeneric {
				if (m.Interactions[0].DensityWeights != nil) != hasDensity {
					t.Fatalf("density weights presence: variant=%s", variant)
				}
			} else {
				if (m.Interactions[0].DensityPacked != nil) != hasDensity {
					t.Fatalf("density packed presence: variant=%s", variant)
				}
			}
		}
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"negative r_max", func(c *Config) { c.RMax = -1 }, ErrConfig},
		{"zero bessel", func(c *Config) { c.NumBessel = 0 }, ErrConfig},
		{"bad variant", func(c *Config) { c.Interaction = "agnostic" }, ErrUnknownVariant},
		{"bad first variant", func(c *Config) { c.InteractionFirst = "" }, ErrUnknownVariant},
		{"energies mismatch", func(c *Config) { c.AtomicEnergies = nil }, ErrConfig},
		{"numbers mismatch", func(c *Config) { c.AtomicNumbers = []int{6, 8} }, ErrConfig},
		{"bad gate", func(c *Config) { c.Gate = "tanh" }, ErrConfig},
		{"bad radial", func(c *Config) { c.RadialType = "gaussian" }, ErrConfig},
		{"vector irreps", func(c *Config) { c.HiddenIrreps = "32x0e + 32x1o" }, ErrUnsupportedIrrep},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(VariantResidual, VariantResidual)
			tc.mutate(&cfg)
			if _, err := New(cfg, BackendGeneric, nil); !errors.Is(err, tc.wantErr) {
				t.Fatalf("err: got=%v want=%v", err, tc.wantErr)
			}
		})
	}
}

func TestNamedParametersDeterministic(t *testing.T) {
	cfg := testConfig(VariantDensity, VariantResidual)
	a, err := New(cfg, BackendGeneric, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(cfg, BackendGeneric, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pa, pb := a.NamedParameters(), b.NamedParameters()
	if len(pa) != len(pb) {
		t.Fatalf("param counts differ: %d vs %d", len(pa), len(pb))
	}
	for i := range pa {
		if pa[i].Name != pb[i].Name || pa[i].Key != pb[i].Key {
			t.Fatalf("slot %d: got=(%s,%s) want=(%s,%s)", i, pb[i].Name, pb[i].Key, pa[i].Name, pa[i].Key)
		}
	}
	// The residual first block has no density weights, the later density
	// block does.
	keys := make(map[string]bool, len(pa))
	for _, p := range pa {
		keys[p.Key] = true
	}
	if keys["interactions.0.density"] {
		t.Fatalf("residual first block should carry no density weights")
	}
	if !keys["interactions.1.density"] {
		t.Fatalf("density block missing density weights")
	}
}

func TestPackedParametersKeyedApart(t *testing.T) {
	cfg := testConfig(VariantDensity, VariantDensity)
	generic, err := New(cfg, BackendGeneric, nil)
	if err != nil {
		t.Fatalf("New generic: %v", err)
	}
	fused, err := New(cfg, BackendFused, nil)
	if err != nil {
		t.Fatalf("New fused: %v", err)
	}
	genericKeys := make(map[string]bool)
	for _, p := range generic.NamedParameters() {
		genericKeys[p.Key] = true
	}
	for _, p := range fused.NamedParameters() {
		packed := p.Key == "interactions.0.skip_packed" ||
			p.Key == "interactions.0.density_packed" ||
			p.Key == "interactions.1.skip_packed" ||
			p.Key == "interactions.1.density_packed" ||
			p.Key == "products.0.weight_packed" ||
			p.Key == "products.1.weight_packed"
		if packed && genericKeys[p.Key] {
			t.Fatalf("packed key %s collides with a generic key", p.Key)
		}
		if !packed && !genericKeys[p.Key] {
			t.Fatalf("shared key %s missing on the generic side", p.Key)
		}
	}
}

func TestSetParameterErrors(t *testing.T) {
	m, err := New(testConfig(VariantStandard, VariantStandard), BackendGeneric, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := m.SetParameter("no.such.key", autograd.Zeros([]int{1})); !errors.Is(err, ErrUnknownParameter) {
		t.Fatalf("unknown key err: got=%v want=%v", err, ErrUnknownParameter)
	}
	if err := m.SetParameter("interactions.0.linear_up", autograd.Zeros([]int{3, 3})); !errors.Is(err, ErrParameterShape) {
		t.Fatalf("shape err: got=%v want=%v", err, ErrParameterShape)
	}
	k := m.Channels()
	repl := autograd.Zeros([]int{k, k})
	if err := m.SetParameter("interactions.0.linear_up", repl); err != nil {
		t.Fatalf("SetParameter: %v", err)
	}
	got, err := m.Parameter("interactions.0.linear_up")
	if err != nil {
		t.Fatalf("Parameter: %v", err)
	}
	if got != repl {
		t.Fatalf("parameter not replaced")
	}
}

func TestEvaluateFiniteAndDeterministic(t *testing.T) {
	batch := testBatch(t)
	for _, variant := range Variants() {
		for _, backend := range []Backend{BackendGeneric, BackendFused} {
			m, err := New(testConfig(variant, variant), backend, rand.New(rand.NewSource(7)))
			if err != nil {
				t.Fatalf("New(%s, %s): %v", variant, backend, err)
			}
			r1, err := m.Evaluate(batch)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if math.IsNaN(r1.Energy) || math.IsInf(r1.Energy, 0) {
				t.Fatalf("energy not finite: %v", r1.Energy)
			}
			for _, f := range r1.Forces.Data().([]float64) {
				if math.IsNaN(f) || math.IsInf(f, 0) {
					t.Fatalf("force not finite: %v", f)
				}
			}
			r2, err := m.Evaluate(batch)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if r1.Energy != r2.Energy {
				t.Fatalf("energy not deterministic: %v vs %v", r1.Energy, r2.Energy)
			}
			if len(r1.Gradients) != len(m.NamedParameters()) {
				t.Fatalf("gradient count: got=%d want=%d", len(r1.Gradients), len(m.NamedParameters()))
			}
		}
	}
}

func TestEvaluateRejectsUnknownSpecies(t *testing.T) {
	m, err := New(testConfig(VariantResidual, VariantResidual), BackendGeneric, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	batch := testBatch(t)
	batch.Species = append([]int(nil), batch.Species...)
	batch.Species[0] = 3
	if _, err := m.Evaluate(batch); !errors.Is(err, ErrConfig) {
		t.Fatalf("err: got=%v want=%v", err, ErrConfig)
	}
}

func TestEnergyIncludesReferenceAndShift(t *testing.T) {
	// With zero weights the site energies vanish and only the atomic
	// reference energies and the shift remain.
	cfg := testConfig(VariantStandard, VariantStandard)
	cfg.AtomicInterShift = 0.25
	m, err := New(cfg, BackendGeneric, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	batch := testBatch(t)
	res, err := m.Evaluate(batch)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := float64(batch.NumNodes) * (cfg.AtomicEnergies[0] + cfg.AtomicInterShift)
	if math.Abs(res.Energy-want) > 1e-12 {
		t.Fatalf("energy: got=%v want=%v", res.Energy, want)
	}
}
