package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/bluehope/mace/internal/storage"
	maceapi "github.com/bluehope/mace/pkg/mace"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "verify":
		return runVerify(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "capabilities":
		return runCapabilities(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: macectl <verify|runs|show|capabilities> [flags]", msg)
}

func newClient(storeKind, dbPath string) (*maceapi.Client, error) {
	return maceapi.New(maceapi.Options{StoreKind: storeKind, DBPath: dbPath})
}

func runVerify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "mace.db", "sqlite database path")
	configPath := fs.String("config", "", "JSON run config")
	variant := fs.String("variant", "", "interaction variant")
	firstVariant := fs.String("first-variant", "", "first interaction variant")
	direction := fs.String("direction", "", "generic_to_fused|fused_to_generic")
	seed := fs.Int64("seed", 0, "weight and displacement seed")
	supercell := fs.Int("supercell", 0, "diamond cell replication factor")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var req maceapi.RunRequest
	if *configPath != "" {
		loaded, err := loadRunRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		req = loaded
	}
	if *variant != "" {
		req.Variant = *variant
	}
	if *firstVariant != "" {
		req.FirstVariant = *firstVariant
	}
	if *direction != "" {
		req.Direction = *direction
	}
	if *seed != 0 {
		req.Seed = *seed
	}
	if *supercell != 0 {
		req.Supercell = *supercell
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	if err := client.Init(ctx); err != nil {
		return err
	}

	summary, err := client.RunVerification(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("run=%s pass=%v atoms=%d edges=%d\n", summary.RunID, summary.Pass, summary.NumAtoms, summary.NumEdges)
	fmt.Printf("forward: pass=%v energy_diff=%.3e max_force_diff=%.3e\n", summary.ForwardPass, summary.EnergyDiff, summary.MaxForceDiff)
	fmt.Printf("backward: pass=%v compared=%d skipped=%d\n", summary.GradientPass, summary.GradientsCompared, summary.GradientsSkipped)
	fmt.Printf("round trip: exact=%v\n", summary.RoundTripExact)
	if !summary.Pass {
		return fmt.Errorf("verification failed: run %s", summary.RunID)
	}
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "mace.db", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	if err := client.Init(ctx); err != nil {
		return err
	}

	runs, err := client.Runs(ctx)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  variant=%s direction=%s atoms=%d pass=%v\n",
			r.RunID, r.CreatedAtUTC, r.Variant, r.Direction, r.NumAtoms, r.Pass)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	storeKind := fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "mace.db", "sqlite database path")
	runID := fs.String("run-id", "", "verification run id")
	asJSON := fs.Bool("json", false, "print the full record as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return usageError("show requires -run-id")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()
	if err := client.Init(ctx); err != nil {
		return err
	}

	record, ok, err := client.GetRun(ctx, *runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("run not found: %s", *runID)
	}

	if *asJSON {
		payload, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(payload))
		return nil
	}

	fmt.Printf("run=%s created=%s pass=%v\n", record.ID, record.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), record.Pass)
	fmt.Printf("variant=%s first=%s direction=%s atoms=%d edges=%d\n",
		record.Variant, record.FirstVariant, record.Direction, record.NumAtoms, record.NumEdges)
	fmt.Printf("energy: a=%.8f b=%.8f diff=%.3e\n", record.EnergyA, record.EnergyB, record.EnergyDiff)
	fmt.Printf("forces: max_diff=%.3e\n", record.MaxForceDiff)
	fmt.Printf("gradients: compared=%d skipped=%d pass=%v\n", record.GradientsCompared, record.GradientsSkipped, record.GradientPass)
	fmt.Printf("round trip: exact=%v\n", record.RoundTripExact)
	for _, g := range record.Gradients {
		if g.Skipped {
			fmt.Printf("  %-40s skipped (%s)\n", g.Key, g.Reason)
			continue
		}
		fmt.Printf("  %-40s max_diff=%.3e pass=%v\n", g.Key, g.MaxDiff, g.Pass)
	}
	return nil
}

func runCapabilities(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("capabilities", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := newClient("memory", "")
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	caps := client.Capabilities()
	payload, err := json.Marshal(caps)
	if err != nil {
		return err
	}
	fmt.Println(string(payload))
	return nil
}
