package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// VerificationRecord is the persisted outcome of one backend-equivalence
// run: the structure it was evaluated on, the forward deviations and the
// per-parameter gradient comparison.
type VerificationRecord struct {
	VersionedRecord
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Variant      string    `json:"variant"`
	FirstVariant string    `json:"first_variant"`
	Direction    string    `json:"direction"`
	NumAtoms     int       `json:"num_atoms"`
	NumEdges     int       `json:"num_edges"`

	EnergyA      float64 `json:"energy_a"`
	EnergyB      float64 `json:"energy_b"`
	EnergyDiff   float64 `json:"energy_diff"`
	MaxForceDiff float64 `json:"max_force_diff"`
	ForwardPass  bool    `json:"forward_pass"`

	GradientsCompared int                        `json:"gradients_compared"`
	GradientsSkipped  int                        `json:"gradients_skipped"`
	GradientPass      bool                       `json:"gradient_pass"`
	Gradients         []GradientComparisonRecord `json:"gradients"`

	RoundTripExact bool `json:"round_trip_exact"`
	Pass           bool `json:"pass"`
}

// GradientComparisonRecord is one structural key's comparison outcome.
type GradientComparisonRecord struct {
	Key     string  `json:"key"`
	NameA   string  `json:"name_a,omitempty"`
	NameB   string  `json:"name_b,omitempty"`
	MaxDiff float64 `json:"max_diff"`
	Pass    bool    `json:"pass"`
	Skipped bool    `json:"skipped"`
	Reason  string  `json:"reason,omitempty"`
}
