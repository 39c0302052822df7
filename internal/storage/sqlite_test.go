//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer store.Close()

	want := sampleRecord("run-1")
	if err := store.SaveVerification(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.GetVerification(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.ID != want.ID || got.Pass != want.Pass || got.NumEdges != want.NumEdges {
		t.Fatalf("record changed: got=%+v", got)
	}
	if len(got.Gradients) != len(want.Gradients) {
		t.Fatalf("gradients: got=%d want=%d", len(got.Gradients), len(want.Gradients))
	}
}

func TestSQLiteStoreUpsert(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer store.Close()

	record := sampleRecord("run-1")
	if err := store.SaveVerification(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}
	record.Pass = false
	if err := store.SaveVerification(ctx, record); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, ok, err := store.GetVerification(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Pass {
		t.Fatalf("upsert did not replace the record")
	}
}

func TestSQLiteStoreListOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-b", "run-a"} {
		record := sampleRecord(id)
		record.CreatedAt = base.Add(time.Duration(2-i) * time.Minute)
		if err := store.SaveVerification(ctx, record); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	list, err := store.ListVerifications(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "run-a" || list[1].ID != "run-b" {
		t.Fatalf("order wrong: %+v", list)
	}
}

func TestSQLiteStoreMissing(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer store.Close()

	_, ok, err := store.GetVerification(ctx, "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok {
		t.Fatalf("missing record reported present")
	}
}
