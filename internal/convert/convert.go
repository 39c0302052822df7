package convert

import (
	"fmt"

	"gorgonia.org/tensor"

	"github.com/bluehope/mace/internal/modules"
)

// Direction selects which backend a conversion reads and which it writes.
type Direction string

const (
	GenericToFused Direction = "generic_to_fused"
	FusedToGeneric Direction = "fused_to_generic"
)

// Source is the backend a conversion in this direction reads.
func (d Direction) Source() modules.Backend {
	if d == FusedToGeneric {
		return modules.BackendFused
	}
	return modules.BackendGeneric
}

// Target is the backend a conversion in this direction writes.
func (d Direction) Target() modules.Backend {
	if d == FusedToGeneric {
		return modules.BackendGeneric
	}
	return modules.BackendFused
}

func (d Direction) valid() bool {
	return d == GenericToFused || d == FusedToGeneric
}

// Convert builds a fresh model of the opposite backend carrying the same
// function. The plan is derived from the source config, every learnable
// tensor is mapped through its layout transform, and buffers travel with
// the config. The source model is read but never mutated; converting the
// result back yields bit-identical tensors.
func Convert(src *modules.Model, dir Direction) (*modules.Model, error) {
	if !dir.valid() {
		return nil, fmt.Errorf("%w: %q", ErrDirection, dir)
	}
	if src.Backend != dir.Source() {
		return nil, fmt.Errorf("%w: model is %q, direction reads %q", ErrDirection, src.Backend, dir.Source())
	}
	if !Available(dir.Target()) {
		return nil, fmt.Errorf("%w: %q", ErrBackendUnavailable, dir.Target())
	}

	plan, err := buildPlan(src.Config)
	if err != nil {
		return nil, err
	}

	dst, err := modules.New(src.Config, dir.Target(), nil)
	if err != nil {
		return nil, err
	}

	for _, r := range plan {
		if err := applyRule(src, dst, r, dir); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func applyRule(src, dst *modules.Model, r rule, dir Direction) error {
	switch dir {
	case GenericToFused:
		parts := make([]*tensor.Dense, len(r.genericKeys))
		for i, key := range r.genericKeys {
			t, err := src.Parameter(key)
			if err != nil {
				return err
			}
			parts[i] = t
		}
		packed, err := r.transform.Pack(parts)
		if err != nil {
			return fmt.Errorf("%s: %w", r.fusedKey, err)
		}
		return dst.SetParameter(r.fusedKey, packed)
	case FusedToGeneric:
		t, err := src.Parameter(r.fusedKey)
		if err != nil {
			return err
		}
		parts, err := r.transform.Unpack(t)
		if err != nil {
			return fmt.Errorf("%s: %w", r.fusedKey, err)
		}
		if len(parts) != len(r.genericKeys) {
			return fmt.Errorf("%w: %s unpacked into %d tensors for %d keys", ErrLayoutMismatch, r.fusedKey, len(parts), len(r.genericKeys))
		}
		for i, key := range r.genericKeys {
			if err := dst.SetParameter(key, parts[i]); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrDirection, dir)
}
