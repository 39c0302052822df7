package mace

import (
	"context"
	"testing"

	"github.com/bluehope/mace/internal/modules"
	"github.com/bluehope/mace/internal/verify"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{StoreKind: "memory"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRunVerificationDefaults(t *testing.T) {
	client := newTestClient(t)
	summary, err := client.RunVerification(context.Background(), RunRequest{Seed: 7, Supercell: 1})
	if err != nil {
		t.Fatalf("RunVerification: %v", err)
	}
	if summary.RunID == "" {
		t.Fatalf("missing run id")
	}
	if !summary.Pass || !summary.ForwardPass || !summary.GradientPass || !summary.RoundTripExact {
		t.Fatalf("equivalent backends failed: %+v", summary)
	}
	if summary.NumAtoms != 8 {
		t.Fatalf("atoms: got=%d want=8", summary.NumAtoms)
	}
	if summary.GradientsCompared == 0 || summary.GradientsSkipped == 0 {
		t.Fatalf("gradient counts: %+v", summary)
	}
}

func TestRunVerificationAllVariantsBothDirections(t *testing.T) {
	client := newTestClient(t)
	for _, variant := range modules.Variants() {
		for _, direction := range []string{"generic_to_fused", "fused_to_generic"} {
			summary, err := client.RunVerification(context.Background(), RunRequest{
				Variant:   string(variant),
				Direction: direction,
				Seed:      11,
				Supercell: 1,
			})
			if err != nil {
				t.Fatalf("RunVerification(%s, %s): %v", variant, direction, err)
			}
			if !summary.Pass {
				t.Fatalf("%s %s failed: %+v", variant, direction, summary)
			}
		}
	}
}

func TestRunVerificationMixedFirstVariant(t *testing.T) {
	client := newTestClient(t)
	for _, first := range modules.Variants() {
		summary, err := client.RunVerification(context.Background(), RunRequest{
			Variant:      string(modules.VariantResidual),
			FirstVariant: string(first),
			Seed:         17,
			Supercell:    1,
		})
		if err != nil {
			t.Fatalf("RunVerification(first=%s): %v", first, err)
		}
		if !summary.Pass || !summary.RoundTripExact {
			t.Fatalf("first=%s failed: %+v", first, summary)
		}
	}
}

func TestRunVerificationRejectsBadVariant(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.RunVerification(context.Background(), RunRequest{Variant: "cubic", Supercell: 1}); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
}

func TestRunVerificationStrictForwardTolerance(t *testing.T) {
	// Conversion is exact and the fused kernels reproduce the generic
	// summation order, so the forward comparison holds with zero slack.
	client := newTestClient(t)
	summary, err := client.RunVerification(context.Background(), RunRequest{
		Seed:       13,
		Supercell:  1,
		ForwardTol: &verify.Tolerance{Abs: 0, Rel: 0},
	})
	if err != nil {
		t.Fatalf("RunVerification: %v", err)
	}
	if !summary.Pass {
		t.Fatalf("exact conversion failed zero-tolerance check: %+v", summary)
	}
}

func TestRunsAndGetRun(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	first, err := client.RunVerification(ctx, RunRequest{Seed: 1, Supercell: 1})
	if err != nil {
		t.Fatalf("RunVerification: %v", err)
	}
	second, err := client.RunVerification(ctx, RunRequest{Seed: 2, Supercell: 1, Variant: string(modules.VariantDensity)})
	if err != nil {
		t.Fatalf("RunVerification: %v", err)
	}

	runs, err := client.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs: got=%d want=2", len(runs))
	}
	if runs[0].RunID != first.RunID || runs[1].RunID != second.RunID {
		t.Fatalf("runs out of order: %+v", runs)
	}

	record, ok, err := client.GetRun(ctx, second.RunID)
	if err != nil || !ok {
		t.Fatalf("GetRun: ok=%v err=%v", ok, err)
	}
	if record.Variant != string(modules.VariantDensity) {
		t.Fatalf("variant: got=%s", record.Variant)
	}
	if len(record.Gradients) == 0 {
		t.Fatalf("persisted record lost gradient entries")
	}
	if _, ok, err := client.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing run: ok=%v err=%v", ok, err)
	}
}

func TestCapabilities(t *testing.T) {
	client := newTestClient(t)
	caps := client.Capabilities()
	if !caps.Generic || !caps.Fused {
		t.Fatalf("capabilities: %+v", caps)
	}
}
