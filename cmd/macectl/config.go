package main

import (
	"encoding/json"
	"os"

	"github.com/bluehope/mace/internal/verify"
	maceapi "github.com/bluehope/mace/pkg/mace"
)

func loadRunRequestFromConfig(path string) (maceapi.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return maceapi.RunRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return maceapi.RunRequest{}, err
	}

	var req maceapi.RunRequest
	if v, ok := asString(raw["variant"]); ok {
		req.Variant = v
	}
	if v, ok := asString(raw["first_variant"]); ok {
		req.FirstVariant = v
	}
	if v, ok := asString(raw["direction"]); ok {
		req.Direction = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["supercell"]); ok {
		req.Supercell = v
	}
	if v, ok := asFloat64(raw["displacement"]); ok {
		req.Displacement = v
	}
	if v, ok := asFloat64(raw["lattice_constant"]); ok {
		req.LatticeConstant = v
	}
	if tol, ok := asTolerance(raw["forward_tolerance"]); ok {
		req.ForwardTol = tol
	}
	if tol, ok := asTolerance(raw["gradient_tolerance"]); ok {
		req.GradientTol = tol
	}
	return req, nil
}

func asTolerance(v any) (*verify.Tolerance, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	var tol verify.Tolerance
	if x, ok := asFloat64(m["abs"]); ok {
		tol.Abs = x
	}
	if x, ok := asFloat64(m["rel"]); ok {
		tol.Rel = x
	}
	return &tol, true
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
