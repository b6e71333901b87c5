package ssaflow

import (
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"
)

func openTestBolt(t *testing.T) *BoltStore {
	t.Helper()
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "flow.bolt"), DefaultBoltStoreOptions())
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBoltStoreRoundtrip(t *testing.T) {
	store := openTestBolt(t)

	if err := store.Put(testSummary("k1", "main.f", "main.go")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get("k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Function != "main.f" || got.Blocks != 4 {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
	if _, err := store.Get("absent"); err == nil {
		t.Error("Get(absent) should fail")
	}
}

func TestBoltStoreIndexesAndUpsert(t *testing.T) {
	store := openTestBolt(t)

	if err := store.PutAll([]*UnitSummary{
		testSummary("k1", "main.f", "a.go"),
		testSummary("k2", "main.g", "a.go"),
	}); err != nil {
		t.Fatalf("PutAll: %v", err)
	}

	byFile, err := store.ByFile("a.go")
	if err != nil || len(byFile) != 2 {
		t.Errorf("ByFile = %v, %v; want 2 summaries", byFile, err)
	}
	byFunc, err := store.ByFunction("main.g")
	if err != nil || len(byFunc) != 1 {
		t.Errorf("ByFunction = %v, %v; want 1 summary", byFunc, err)
	}

	// Re-index main.f in the same file under a new key.
	if err := store.Put(testSummary("k9", "main.f", "a.go")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.Get("k1"); err == nil {
		t.Error("stale record survived re-indexing")
	}
	count, err := store.Count()
	if err != nil || count != 2 {
		t.Errorf("Count = %d, %v; want 2", count, err)
	}

	keys, err := store.ListKeys()
	if err != nil || len(keys) != 2 {
		t.Errorf("ListKeys = %v, %v; want 2 keys", keys, err)
	}
}

func TestBoltStoreDeleteAndMetadata(t *testing.T) {
	store := openTestBolt(t)

	if err := store.Put(testSummary("k1", "main.f", "a.go")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete("k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if byFile, _ := store.ByFile("a.go"); len(byFile) != 0 {
		t.Errorf("index entries leaked after delete: %v", byFile)
	}

	if err := store.SetMetadata("version", "1"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if v, err := store.GetMetadata("version"); err != nil || v != "1" {
		t.Errorf("GetMetadata = %q, %v", v, err)
	}
}

func TestBoltStoreReadOnlyWithoutBuckets(t *testing.T) {
	// A database file written without our buckets, then opened read-only:
	// every query must degrade to "nothing stored" instead of panicking.
	path := filepath.Join(t.TempDir(), "bare.bolt")
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		t.Fatalf("bbolt.Open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	opts := DefaultBoltStoreOptions()
	opts.ReadOnly = true
	store, err := OpenBoltStore(path, opts)
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if _, err := store.Get("k1"); err == nil {
		t.Error("Get on an empty database should fail, not panic")
	}
	if sums, err := store.ByFile("a.go"); err != nil || len(sums) != 0 {
		t.Errorf("ByFile = %v, %v; want no summaries", sums, err)
	}
	if sums, err := store.ByFunction("main.f"); err != nil || len(sums) != 0 {
		t.Errorf("ByFunction = %v, %v; want no summaries", sums, err)
	}
	if count, err := store.Count(); err != nil || count != 0 {
		t.Errorf("Count = %d, %v; want 0", count, err)
	}
	if v, err := store.GetMetadata("last_indexed"); err != nil || v != "" {
		t.Errorf("GetMetadata = %q, %v; want empty", v, err)
	}
}
