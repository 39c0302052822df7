// Package verify compares two model evaluations for functional equivalence:
// forward outputs (total energy and per-node forces) and backward outputs
// (parameter gradients paired by structural key). Comparisons report the
// worst observed deviation so a failing run pinpoints where the backends
// diverge.
package verify

import (
	"fmt"
	"math"
	"strings"

	"github.com/bluehope/mace/internal/modules"
)

// Tolerance is an absolute plus relative bound: a and b agree when
// |a-b| <= Abs + Rel*|b|.
type Tolerance struct {
	Abs float64
	Rel float64
}

// ForwardTolerance is the default bound for energies and forces.
func ForwardTolerance() Tolerance {
	return Tolerance{Abs: 1e-7, Rel: 1e-7}
}

// GradientTolerance is the default bound for parameter gradients. Gradients
// accumulate more rounding than the forward pass, so the absolute bound is
// looser and the relative one tighter.
func GradientTolerance() Tolerance {
	return Tolerance{Abs: 1e-5, Rel: 1e-10}
}

// Within reports whether a agrees with b under the tolerance.
func (t Tolerance) Within(a, b float64) bool {
	return math.Abs(a-b) <= t.Abs+t.Rel*math.Abs(b)
}

// ForwardReport is the outcome of comparing two forward passes.
type ForwardReport struct {
	EnergyA       float64
	EnergyB       float64
	EnergyDiff    float64
	MaxForceDiff  float64
	MaxForceIndex int
	Pass          bool
}

// CompareForward checks total energy and every force component of two
// evaluations against the tolerance.
func CompareForward(a, b modules.EvalResult, tol Tolerance) (ForwardReport, error) {
	if !a.Forces.Shape().Eq(b.Forces.Shape()) {
		return ForwardReport{}, fmt.Errorf("force shapes differ: %v vs %v", a.Forces.Shape(), b.Forces.Shape())
	}
	report := ForwardReport{
		EnergyA:       a.Energy,
		EnergyB:       b.Energy,
		EnergyDiff:    math.Abs(a.Energy - b.Energy),
		MaxForceIndex: -1,
		Pass:          tol.Within(a.Energy, b.Energy),
	}
	fa, fb := a.Forces.Data().([]float64), b.Forces.Data().([]float64)
	for i := range fa {
		d := math.Abs(fa[i] - fb[i])
		if d > report.MaxForceDiff {
			report.MaxForceDiff = d
			report.MaxForceIndex = i / 3
		}
		if !tol.Within(fa[i], fb[i]) {
			report.Pass = false
		}
	}
	return report, nil
}

// Skip reasons recorded by gradient comparison.
const (
	SkipKeyUnmatched  = "key-unmatched"
	SkipShapeMismatch = "shape-mismatch"
	SkipMissingGrad   = "missing-grad"
	SkipNameGuard     = "name-guard"
)

// GradientEntry is the comparison outcome for one structural key. Skipped
// entries carry the reason and no deviation.
type GradientEntry struct {
	Key     string
	NameA   string
	NameB   string
	MaxDiff float64
	Pass    bool
	Skipped bool
	Reason  string
}

// GradientReport is the outcome of a pairwise gradient comparison. Pass is
// true when every compared pair is within tolerance; skipped pairs never
// fail a run, they are reported so the caller can judge coverage.
type GradientReport struct {
	Entries  []GradientEntry
	Compared int
	Skipped  int
	Pass     bool
}

// CompareGradients pairs the two gradient lists by structural key and
// checks each paired tensor elementwise. Keys present on only one side are
// skipped as unmatched (packed parameters carry backend-specific keys, so
// this is the expected outcome for them). Pairs whose display-name prefixes
// disagree are skipped by the name guard rather than compared, since a
// prefix disagreement means the traversal orders no longer describe the
// same block.
func CompareGradients(a, b []modules.NamedGradient, tol Tolerance) GradientReport {
	byKey := make(map[string]modules.NamedGradient, len(b))
	for _, g := range b {
		byKey[g.Key] = g
	}
	seen := make(map[string]bool, len(a))

	report := GradientReport{Pass: true}
	for _, ga := range a {
		seen[ga.Key] = true
		entry := GradientEntry{Key: ga.Key, NameA: ga.Name}
		gb, ok := byKey[ga.Key]
		switch {
		case !ok:
			entry.Skipped, entry.Reason = true, SkipKeyUnmatched
		case !namePrefixAgrees(ga.Name, gb.Name):
			entry.NameB = gb.Name
			entry.Skipped, entry.Reason = true, SkipNameGuard
		case ga.Grad == nil || gb.Grad == nil:
			entry.NameB = gb.Name
			entry.Skipped, entry.Reason = true, SkipMissingGrad
		case !ga.Grad.Shape().Eq(gb.Grad.Shape()):
			entry.NameB = gb.Name
			entry.Skipped, entry.Reason = true, SkipShapeMismatch
		default:
			entry.NameB = gb.Name
			entry.Pass = true
			av, bv := ga.Grad.Data().([]float64), gb.Grad.Data().([]float64)
			for i := range av {
				d := math.Abs(av[i] - bv[i])
				if d > entry.MaxDiff {
					entry.MaxDiff = d
				}
				if !tol.Within(av[i], bv[i]) {
					entry.Pass = false
				}
			}
		}
		if entry.Skipped {
			report.Skipped++
		} else {
			report.Compared++
			if !entry.Pass {
				report.Pass = false
			}
		}
		report.Entries = append(report.Entries, entry)
	}

	for _, gb := range b {
		if seen[gb.Key] {
			continue
		}
		report.Skipped++
		report.Entries = append(report.Entries, GradientEntry{
			Key:     gb.Key,
			NameB:   gb.Name,
			Skipped: true,
			Reason:  SkipKeyUnmatched,
		})
	}
	return report
}

// namePrefixAgrees compares the first two dotted segments of the two
// display names.
func namePrefixAgrees(a, b string) bool {
	return namePrefix(a) == namePrefix(b)
}

func namePrefix(name string) string {
	parts := strings.SplitN(name, ".", 3)
	if len(parts) < 2 {
		return name
	}
	return parts[0] + "." + parts[1]
}

// Report is one full equivalence check between two evaluations.
type Report struct {
	Forward  ForwardReport
	Backward GradientReport
	Pass     bool
}

// Compare runs the forward and backward comparisons with the given
// tolerances.
func Compare(a, b modules.EvalResult, forward, gradient Tolerance) (Report, error) {
	fr, err := CompareForward(a, b, forward)
	if err != nil {
		return Report{}, err
	}
	gr := CompareGradients(a.Gradients, b.Gradients, gradient)
	return Report{Forward: fr, Backward: gr, Pass: fr.Pass && gr.Pass}, nil
}
