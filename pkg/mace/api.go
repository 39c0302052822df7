// Package mace is the embedding API: it builds a model, converts it to the
// other backend, verifies the two are functionally equivalent on a periodic
// test structure and persists the outcome.
package mace

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/bluehope/mace/internal/convert"
	"github.com/bluehope/mace/internal/data"
	"github.com/bluehope/mace/internal/model"
	"github.com/bluehope/mace/internal/modules"
	"github.com/bluehope/mace/internal/storage"
	"github.com/bluehope/mace/internal/verify"
)

const defaultDBPath = "mace.db"

type Options struct {
	StoreKind string
	DBPath    string
}

type Client struct {
	store storage.Store
}

// RunRequest configures one verification run. Zero values select the
// diamond-carbon defaults.
type RunRequest struct {
	Variant      string
	FirstVariant string
	Direction    string
	Seed         int64

	Supercell       int
	Displacement    float64
	LatticeConstant float64

	ForwardTol  *verify.Tolerance
	GradientTol *verify.Tolerance
}

// RunSummary is the condensed outcome of one verification run.
type RunSummary struct {
	RunID             string
	Pass              bool
	ForwardPass       bool
	GradientPass      bool
	RoundTripExact    bool
	EnergyDiff        float64
	MaxForceDiff      float64
	GradientsCompared int
	GradientsSkipped  int
	NumAtoms          int
	NumEdges          int
}

// RunItem is one row of a run listing.
type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Variant      string
	Direction    string
	NumAtoms     int
	Pass         bool
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{store: store}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

// Capabilities reports which backends this build can target.
func (c *Client) Capabilities() verify.Capabilities {
	return verify.Capability()
}

// RunVerification builds a seeded model, converts it across backends,
// compares forward and backward outputs on a displaced diamond supercell
// and persists the outcome.
func (c *Client) RunVerification(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Variant == "" {
		req.Variant = string(modules.VariantResidual)
	}
	if req.FirstVariant == "" {
		req.FirstVariant = req.Variant
	}
	if req.Direction == "" {
		req.Direction = string(convert.GenericToFused)
	}
	if req.Supercell <= 0 {
		req.Supercell = 2
	}
	if req.Displacement == 0 {
		req.Displacement = 0.05
	}
	if req.LatticeConstant == 0 {
		req.LatticeConstant = 3.567
	}
	forwardTol := verify.ForwardTolerance()
	if req.ForwardTol != nil {
		forwardTol = *req.ForwardTol
	}
	gradientTol := verify.GradientTolerance()
	if req.GradientTol != nil {
		gradientTol = *req.GradientTol
	}

	direction := convert.Direction(req.Direction)
	cfg := defaultConfig(modules.InteractionVariant(req.Variant), modules.InteractionVariant(req.FirstVariant))

	src, err := modules.New(cfg, direction.Source(), rand.New(rand.NewSource(req.Seed)))
	if err != nil {
		return RunSummary{}, err
	}
	dst, err := convert.Convert(src, direction)
	if err != nil {
		return RunSummary{}, err
	}
	back, err := convert.Convert(dst, oppositeDirection(direction))
	if err != nil {
		return RunSummary{}, err
	}
	roundTripExact := parametersEqual(src, back)

	s := data.Repeat(data.Diamond(6, req.LatticeConstant), req.Supercell, req.Supercell, req.Supercell)
	s = data.Displace(s, req.Displacement, rand.New(rand.NewSource(req.Seed+1)))
	batch, err := data.NewBatch(s, data.NewAtomicNumberTable(cfg.AtomicNumbers), cfg.RMax)
	if err != nil {
		return RunSummary{}, err
	}

	ra, err := src.Evaluate(batch)
	if err != nil {
		return RunSummary{}, fmt.Errorf("evaluate %s: %w", src.Backend, err)
	}
	rb, err := dst.Evaluate(batch)
	if err != nil {
		return RunSummary{}, fmt.Errorf("evaluate %s: %w", dst.Backend, err)
	}

	report, err := verify.Compare(ra, rb, forwardTol, gradientTol)
	if err != nil {
		return RunSummary{}, err
	}

	record := buildRecord(req, batch, report, roundTripExact)
	if err := c.store.SaveVerification(ctx, record); err != nil {
		return RunSummary{}, err
	}

	return RunSummary{
		RunID:             record.ID,
		Pass:              record.Pass,
		ForwardPass:       record.ForwardPass,
		GradientPass:      record.GradientPass,
		RoundTripExact:    record.RoundTripExact,
		EnergyDiff:        record.EnergyDiff,
		MaxForceDiff:      record.MaxForceDiff,
		GradientsCompared: record.GradientsCompared,
		GradientsSkipped:  record.GradientsSkipped,
		NumAtoms:          record.NumAtoms,
		NumEdges:          record.NumEdges,
	}, nil
}

// Runs lists persisted verification runs oldest first.
func (c *Client) Runs(ctx context.Context) ([]RunItem, error) {
	records, err := c.store.ListVerifications(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]RunItem, 0, len(records))
	for _, r := range records {
		items = append(items, RunItem{
			RunID:        r.ID,
			CreatedAtUTC: r.CreatedAt.UTC().Format(time.RFC3339),
			Variant:      r.Variant,
			Direction:    r.Direction,
			NumAtoms:     r.NumAtoms,
			Pass:         r.Pass,
		})
	}
	return items, nil
}

// GetRun fetches one persisted verification record.
func (c *Client) GetRun(ctx context.Context, id string) (model.VerificationRecord, bool, error) {
	return c.store.GetVerification(ctx, id)
}

func defaultConfig(variant, first modules.InteractionVariant) modules.Config {
	return modules.Config{
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

func oppositeDirection(d convert.Direction) convert.Direction {
	if d == convert.GenericToFused {
		return convert.FusedToGeneric
	}
	return convert.GenericToFused
}

// parametersEqual reports bitwise equality of every learnable tensor of two
// same-backend models.
func parametersEqual(a, b *modules.Model) bool {
	pa, pb := a.NamedParameters(), b.NamedParameters()
	if len(pa) != len(pb) {
		return false
	}
	for i := range pa {
		if pa[i].Key != pb[i].Key {
			return false
		}
		if !pa[i].Value.Shape().Eq(pb[i].Value.Shape()) {
			return false
		}
		av, bv := pa[i].Value.Data().([]float64), pb[i].Value.Data().([]float64)
		for j := range av {
			if av[j] != bv[j] {
				return false
			}
		}
	}
	return true
}

func buildRecord(req RunRequest, batch data.Batch, report verify.Report, roundTripExact bool) model.VerificationRecord {
	gradients := make([]model.GradientComparisonRecord, 0, len(report.Backward.Entries))
	for _, e := range report.Backward.Entries {
		gradients = append(gradients, model.GradientComparisonRecord{
			Key:     e.Key,
			NameA:   e.NameA,
			NameB:   e.NameB,
			MaxDiff: e.MaxDiff,
			Pass:    e.Pass,
			Skipped: e.Skipped,
			Reason:  e.Reason,
		})
	}
	return model.VerificationRecord{
		VersionedRecord: model.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:                uuid.NewString(),
		CreatedAt:         time.Now().UTC(),
		Variant:           req.Variant,
		FirstVariant:      req.FirstVariant,
		Direction:         req.Direction,
		NumAtoms:          batch.NumNodes,
		NumEdges:          batch.NumEdges(),
		EnergyA:           report.Forward.EnergyA,
		EnergyB:           report.Forward.EnergyB,
		EnergyDiff:        report.Forward.EnergyDiff,
		MaxForceDiff:      report.Forward.MaxForceDiff,
		ForwardPass:       report.Forward.Pass,
		GradientsCompared: report.Backward.Compared,
		GradientsSkipped:  report.Backward.Skipped,
		GradientPass:      report.Backward.Pass,
		Gradients:         gradients,
		RoundTripExact:    roundTripExact,
		Pass:              report.Pass && roundTripExact,
	}
}
