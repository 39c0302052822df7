package verify

import (
	"math/rand"
	"testing"

	"github.com/bluehope/mace/internal/autograd"
	"github.com/bluehope/mace/internal/convert"
	"github.com/bluehope/mace/internal/data"
	"github.com/bluehope/mace/internal/modules"
)

func scenarioConfig(variant modules.InteractionVariant) modules.Config {
	return modules.Config{
		RMax:                5.0,
		NumBessel:           8,
		NumPolynomialCutoff: 6,
		MaxEll:              3,
		Interaction:         variant,
		InteractionFirst:    variant,
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

func scenarioBatch(t *testing.T) data.Batch {
	t.Helper()
	s := data.Repeat(data.Diamond(6, 3.567), 2, 2, 2)
	s = data.Displace(s, 0.05, rand.New(rand.NewSource(51)))
	batch, err := data.NewBatch(s, data.NewAtomicNumberTable([]int{6}), 5.0)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	return batch
}

func TestToleranceWithin(t *testing.T) {
	tol := Tolerance{Abs: 1e-6, Rel: 1e-3}
	cases := []struct {
		a, b float64
		want bool
	}{
		{1.0, 1.0, true},
		{1.0, 1.0005, true},
		{1.0, 1.01, false},
		{0, 5e-7, true},
		{0, 5e-6, false},
	}
	for _, tc := range cases {
		if got := tol.Within(tc.a, tc.b); got != tc.want {
			t.Fatalf("Within(%v, %v): got=%v want=%v", tc.a, tc.b, got, tc.want)
		}
	}
}

// The full verification scenario: a seeded generic model A, its fused
// conversion B, and the round trip A'. Forward and backward outputs of all
// three pairings must agree.
func TestBackendEquivalenceScenario(t *testing.T) {
	batch := scenarioBatch(t)
	for _, variant := range modules.Variants() {
		t.Run(string(variant), func(t *testing.T) {
			a, err := modules.New(scenarioConfig(variant), modules.BackendGeneric, rand.New(rand.NewSource(52)))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			b, err := convert.Convert(a, convert.GenericToFused)
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			back, err := convert.Convert(b, convert.FusedToGeneric)
			if err != nil {
				t.Fatalf("Convert back: %v", err)
			}

			ra, err := a.Evaluate(batch)
			if err != nil {
				t.Fatalf("Evaluate A: %v", err)
			}
			rb, err := b.Evaluate(batch)
			if err != nil {
				t.Fatalf("Evaluate B: %v", err)
			}
			rback, err := back.Evaluate(batch)
			if err != nil {
				t.Fatalf("Evaluate A': %v", err)
			}

			pairs := []struct {
				name string
				x, y modules.EvalResult
			}{
				{"generic-vs-fused", ra, rb},
				{"fused-vs-roundtrip", rb, rback},
				{"generic-vs-roundtrip", ra, rback},
			}
			for _, pair := range pairs {
				report, err := Compare(pair.x, pair.y, ForwardTolerance(), GradientTolerance())
				if err != nil {
					t.Fatalf("%s: %v", pair.name, err)
				}
				if !report.Pass {
					t.Fatalf("%s: energy diff %v, max force diff %v",
						pair.name, report.Forward.EnergyDiff, report.Forward.MaxForceDiff)
				}
			}

			// Cross-backend pairings compare all layout-shared parameters
			// and skip the packed ones on both sides.
			cross := CompareGradients(ra.Gradients, rb.Gradients, GradientTolerance())
			if cross.Compared != 17 {
				t.Fatalf("cross-backend compared: got=%d want=17", cross.Compared)
			}
			if cross.Skipped == 0 {
				t.Fatalf("cross-backend comparison should skip packed parameters")
			}
			for _, e := range cross.Entries {
				if e.Skipped && e.Reason != SkipKeyUnmatched {
					t.Fatalf("unexpected skip reason for %s: %s", e.Key, e.Reason)
				}
			}

			// Same-backend round trip pairs every key with no skips.
			same := CompareGradients(ra.Gradients, rback.Gradients, GradientTolerance())
			if same.Skipped != 0 {
				t.Fatalf("round-trip comparison skipped %d entries", same.Skipped)
			}
			if !same.Pass {
				t.Fatalf("round-trip gradients diverge")
			}
		})
	}
}

func TestCompareDetectsPerturbation(t *testing.T) {
	batch := scenarioBatch(t)
	a, err := modules.New(scenarioConfig(modules.VariantResidual), modules.BackendGeneric, rand.New(rand.NewSource(53)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := convert.Convert(a, convert.GenericToFused)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	w, err := b.Parameter("interactions.0.linear_down")
	if err != nil {
		t.Fatalf("Parameter: %v", err)
	}
	w.Data().([]float64)[0] += 1e-3

	ra, err := a.Evaluate(batch)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	rb, err := b.Evaluate(batch)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	report, err := Compare(ra, rb, ForwardTolerance(), GradientTolerance())
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if report.Pass {
		t.Fatalf("perturbed model passed equivalence")
	}
}

func TestCompareGradientsSkipReasons(t *testing.T) {
	g := func(name, key string, shape ...int) modules.NamedGradient {
		return modules.NamedGradient{Name: name, Key: key, Grad: autograd.Zeros(shape)}
	}
	a := []modules.NamedGradient{
		g("interactions.0.linear.weight", "interactions.0.linear_down", 2, 2),
		g("interactions.0.skip_tp.weights.0", "interactions.0.skip.0", 2, 2),
		g("products.0.linear.weight", "products.0.linear", 2, 3),
		{Name: "node_embedding.linear.weight", Key: "node_embedding.weight"},
		g("readouts.0.linear.weight", "readouts.0.weight", 2, 1),
	}
	b := []modules.NamedGradient{
		g("interactions.0.linear_down.weight", "interactions.0.linear_down", 2, 2),
		g("interactions.0.skip_tp.packed_weight", "interactions.0.skip_packed", 4, 2),
		g("products.0.linear.weight", "products.0.linear", 3, 2),
		g("node_embedding.linear.weight", "node_embedding.weight", 1, 2),
		g("readouts.9.linear.weight", "readouts.0.weight", 2, 1),
	}

	report := CompareGradients(a, b, GradientTolerance())
	reasons := make(map[string]string)
	for _, e := range report.Entries {
		if e.Skipped {
			reasons[e.Key] = e.Reason
		}
	}
	if report.Compared != 1 {
		t.Fatalf("compared: got=%d want=1", report.Compared)
	}
	if reasons["interactions.0.skip.0"] != SkipKeyUnmatched {
		t.Fatalf("skip.0 reason: got=%s", reasons["interactions.0.skip.0"])
	}
	if reasons["interactions.0.skip_packed"] != SkipKeyUnmatched {
		t.Fatalf("skip_packed reason: got=%s", reasons["interactions.0.skip_packed"])
	}
	if reasons["products.0.linear"] != SkipShapeMismatch {
		t.Fatalf("linear reason: got=%s", reasons["products.0.linear"])
	}
	if reasons["node_embedding.weight"] != SkipMissingGrad {
		t.Fatalf("embedding reason: got=%s", reasons["node_embedding.weight"])
	}
	if reasons["readouts.0.weight"] != SkipNameGuard {
		t.Fatalf("readout reason: got=%s", reasons["readouts.0.weight"])
	}
	if !report.Pass {
		t.Fatalf("skips must not fail the report")
	}
}

func TestCapability(t *testing.T) {
	caps := Capability()
	if !caps.Generic || !caps.Fused {
		t.Fatalf("capabilities: got=%+v want both available", caps)
	}
}
