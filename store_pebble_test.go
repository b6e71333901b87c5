package ssaflow

import (
	"path/filepath"
	"testing"
)

func testSummary(key, fn, file string) *UnitSummary {
	return &UnitSummary{
		Key:      key,
		Function: fn,
		Filename: file,
		Line:     10,
		Blocks:   4,
		Vars:     2,
		Updates:  3,
		Phis:     1,
		DefUseEdges: []DefUseEdge{
			{Var: "x", Def: "x@b1.0", DefLine: 11, UseLine: 14},
		},
	}
}

func openTestPebble(t *testing.T) *PebbleStore {
	t.Helper()
	store, err := OpenPebbleStore(filepath.Join(t.TempDir(), "flow.db"), DefaultPebbleStoreOptions())
	if err != nil {
		t.Fatalf("OpenPebbleStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPebbleStoreRoundtrip(t *testing.T) {
	store := openTestPebble(t)

	sum := testSummary("k1", "main.f", "main.go")
	if err := store.Put(sum); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get("k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Function != "main.f" || got.Phis != 1 || len(got.DefUseEdges) != 1 {
		t.Errorf("roundtrip mismatch: %+v", got)
	}

	count, err := store.Count()
	if err != nil || count != 1 {
		t.Errorf("Count = %d, %v; want 1", count, err)
	}
}

func TestPebbleStoreIndexes(t *testing.T) {
	store := openTestPebble(t)

	sums := []*UnitSummary{
		testSummary("k1", "main.f", "a.go"),
		testSummary("k2", "main.g", "a.go"),
		testSummary("k3", "main.f", "b.go"),
	}
	if err := store.PutAll(sums); err != nil {
		t.Fatalf("PutAll: %v", err)
	}

	byFile, err := store.ByFile("a.go")
	if err != nil {
		t.Fatalf("ByFile: %v", err)
	}
	if len(byFile) != 2 {
		t.Errorf("ByFile(a.go) = %d summaries, want 2", len(byFile))
	}

	byFunc, err := store.ByFunction("main.f")
	if err != nil {
		t.Fatalf("ByFunction: %v", err)
	}
	if len(byFunc) != 2 {
		t.Errorf("ByFunction(main.f) = %d summaries, want 2", len(byFunc))
	}
}

func TestPebbleStoreUpsertReplacesStale(t *testing.T) {
	store := openTestPebble(t)

	if err := store.Put(testSummary("old", "main.f", "a.go")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Same function+file under a new content key: the old record goes away.
	if err := store.Put(testSummary("new", "main.f", "a.go")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if _, err := store.Get("old"); err == nil {
		t.Error("stale record survived re-indexing")
	}
	if _, err := store.Get("new"); err != nil {
		t.Errorf("fresh record missing: %v", err)
	}
	count, _ := store.Count()
	if count != 1 {
		t.Errorf("Count = %d, want 1 after upsert", count)
	}
}

func TestPebbleStoreDelete(t *testing.T) {
	store := openTestPebble(t)

	if err := store.Put(testSummary("k1", "main.f", "a.go")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete("k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get("k1"); err == nil {
		t.Error("deleted record still readable")
	}
	byFile, err := store.ByFile("a.go")
	if err != nil {
		t.Fatalf("ByFile: %v", err)
	}
	if len(byFile) != 0 {
		t.Errorf("index entries leaked after delete: %v", byFile)
	}
}

func TestPebbleStoreMetadataAndStats(t *testing.T) {
	store := openTestPebble(t)

	if err := store.SetMetadata("last_indexed", "2026-08-25T00:00:00Z"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	v, err := store.GetMetadata("last_indexed")
	if err != nil || v != "2026-08-25T00:00:00Z" {
		t.Errorf("GetMetadata = %q, %v", v, err)
	}
	if v, err := store.GetMetadata("missing"); err != nil || v != "" {
		t.Errorf("missing metadata = %q, %v; want empty", v, err)
	}

	if err := store.Put(testSummary("k1", "main.f", "a.go")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.SummaryCount != 1 || stats.FileIndexCount != 1 || stats.FuncIndexCount != 1 {
		t.Errorf("Stats = %+v, want one entry per bucket", stats)
	}
}
