package ssaflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Key prefixes simulate logical buckets in Pebble's flat key space.
// Format: prefix:key -> value
var (
	prefixSummaries = []byte("sum:")  // Master storage: sum:KEY -> JSON blob
	prefixIdxFile   = []byte("file:") // Index: file:FILENAME:KEY -> KEY
	prefixIdxFunc   = []byte("func:") // Index: func:NAME:KEY -> KEY
	prefixStoreMeta = []byte("meta:") // Metadata: meta:key -> value
)

// PebbleStore persists unit summaries in CockroachDB's Pebble. An LSM tree
// suits the workload: summaries are written in bulk after an analysis run
// and read back by prefix scans over file or function indexes.
type PebbleStore struct {
	db *pebble.DB
	mu sync.RWMutex // guards multi-key write sequences
}

// PebbleStoreOptions configures PebbleStore initialization.
type PebbleStoreOptions struct {
	ReadOnly  bool  // Open DB in read-only mode for querying only
	CacheSize int64 // Block cache size in bytes (default: 8MB)
}

// DefaultPebbleStoreOptions returns the defaults used by the CLI.
func DefaultPebbleStoreOptions() PebbleStoreOptions {
	return PebbleStoreOptions{
		ReadOnly:  false,
		CacheSize: 8 << 20,
	}
}

// OpenPebbleStore opens or creates a Pebble backed summary database. The
// database directory will be created if it doesn't exist.
func OpenPebbleStore(dbPath string, opts PebbleStoreOptions) (*PebbleStore, error) {
	if opts.CacheSize == 0 {
		opts.CacheSize = 8 << 20
	}

	if opts.ReadOnly {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database does not exist: %s", dbPath)
		}
	}

	pebbleOpts := &pebble.Options{
		Cache: pebble.NewCache(opts.CacheSize),
	}
	if opts.ReadOnly {
		pebbleOpts.ReadOnly = true
	}

	db, err := pebble.Open(dbPath, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open summary db %q: %w", dbPath, err)
	}
	return &PebbleStore{db: db}, nil
}

// Close flushes pending writes and closes the database.
func (s *PebbleStore) Close() error {
	if err := s.db.Flush(); err != nil {
		s.db.Close()
		return fmt.Errorf("failed to flush database: %w", err)
	}
	return s.db.Close()
}

func (s *PebbleStore) newIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	iter, err := s.db.NewIter(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	return iter, nil
}

func summaryKey(key string) []byte {
	k := make([]byte, 0, len(prefixSummaries)+len(key))
	k = append(k, prefixSummaries...)
	return append(k, key...)
}

func fileIndexKey(filename, key string) []byte {
	k := make([]byte, 0, len(prefixIdxFile)+len(filename)+1+len(key))
	k = append(k, prefixIdxFile...)
	k = append(k, filename...)
	k = append(k, ':')
	return append(k, key...)
}

func funcIndexKey(fn, key string) []byte {
	k := make([]byte, 0, len(prefixIdxFunc)+len(fn)+1+len(key))
	k = append(k, prefixIdxFunc...)
	k = append(k, fn...)
	k = append(k, ':')
	return append(k, key...)
}

// incrementLastByte returns the smallest key strictly greater than every key
// with the given prefix, for use as an iterator upper bound.
func incrementLastByte(prefix []byte) []byte {
	out := make([]byte, len(prefix))
	copy(out, prefix)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] < 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}

// Put upserts one summary and its file/function index entries. A re-run over
// changed source produces a new key; the old record for the same function is
// removed through the function index before the new one is written.
func (s *PebbleStore) Put(sum *UnitSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.putLocked(batch, sum); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// PutAll upserts a batch of summaries in one atomic commit.
func (s *PebbleStore) PutAll(sums []*UnitSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, sum := range sums {
		if err := s.putLocked(batch, sum); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) putLocked(batch *pebble.Batch, sum *UnitSummary) error {
	if sum.Key == "" {
		return errors.New("summary has no key")
	}

	// Drop stale records for the same function+file before writing.
	stale, err := s.keysForIndex(funcIndexKey(sum.Function, ""))
	if err != nil {
		return err
	}
	for _, old := range stale {
		if old == sum.Key {
			continue
		}
		prev, perr := s.getLocked(old)
		if perr != nil || prev.Filename != sum.Filename {
			continue
		}
		if err := s.deleteInBatch(batch, prev); err != nil {
			return err
		}
	}

	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("failed to marshal summary %s: %w", sum.Key, err)
	}
	if err := batch.Set(summaryKey(sum.Key), data, pebble.Sync); err != nil {
		return err
	}
	if err := batch.Set(fileIndexKey(sum.Filename, sum.Key), []byte(sum.Key), pebble.Sync); err != nil {
		return err
	}
	return batch.Set(funcIndexKey(sum.Function, sum.Key), []byte(sum.Key), pebble.Sync)
}

// Get loads one summary by key.
func (s *PebbleStore) Get(key string) (*UnitSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(key)
}

func (s *PebbleStore) getLocked(key string) (*UnitSummary, error) {
	data, closer, err := s.db.Get(summaryKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("summary not found: %s", key)
		}
		return nil, err
	}
	defer closer.Close()

	var sum UnitSummary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary %s: %w", key, err)
	}
	return &sum, nil
}

// Delete removes a summary and its index entries.
func (s *PebbleStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, err := s.getLocked(key)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	if err := s.deleteInBatch(batch, sum); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) deleteInBatch(batch *pebble.Batch, sum *UnitSummary) error {
	if err := batch.Delete(summaryKey(sum.Key), pebble.Sync); err != nil {
		return err
	}
	if err := batch.Delete(fileIndexKey(sum.Filename, sum.Key), pebble.Sync); err != nil {
		return err
	}
	return batch.Delete(funcIndexKey(sum.Function, sum.Key), pebble.Sync)
}

// ByFile returns every stored summary for a source file, ordered by key.
func (s *PebbleStore) ByFile(filename string) ([]*UnitSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys, err := s.keysForIndex(fileIndexKey(filename, ""))
	if err != nil {
		return nil, err
	}
	return s.loadAll(keys)
}

// ByFunction returns every stored summary for a function name. Multiple
// results mean the same name in different files.
func (s *PebbleStore) ByFunction(fn string) ([]*UnitSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys, err := s.keysForIndex(funcIndexKey(fn, ""))
	if err != nil {
		return nil, err
	}
	return s.loadAll(keys)
}

func (s *PebbleStore) keysForIndex(prefix []byte) ([]string, error) {
	iter, err := s.newIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: incrementLastByte(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Value()))
	}
	return keys, nil
}

func (s *PebbleStore) loadAll(keys []string) ([]*UnitSummary, error) {
	sort.Strings(keys)
	out := make([]*UnitSummary, 0, len(keys))
	for _, k := range keys {
		sum, err := s.getLocked(k)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// Count returns the number of stored summaries.
func (s *PebbleStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iter, err := s.newIter(&pebble.IterOptions{
		LowerBound: prefixSummaries,
		UpperBound: incrementLastByte(prefixSummaries),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}
	return count, nil
}

// ListKeys returns all summary keys in lexical order.
func (s *PebbleStore) ListKeys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iter, err := s.newIter(&pebble.IterOptions{
		LowerBound: prefixSummaries,
		UpperBound: incrementLastByte(prefixSummaries),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) > len(prefixSummaries) {
			keys = append(keys, string(key[len(prefixSummaries):]))
		}
	}
	return keys, nil
}

// PebbleStoreStats contains database statistics.
type PebbleStoreStats struct {
	SummaryCount   int
	FileIndexCount int
	FuncIndexCount int
	DiskSpaceUsed  int64
}

// Stats returns database statistics.
func (s *PebbleStore) Stats() (*PebbleStoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &PebbleStoreStats{}

	for _, c := range []struct {
		prefix []byte
		out    *int
	}{
		{prefixSummaries, &stats.SummaryCount},
		{prefixIdxFile, &stats.FileIndexCount},
		{prefixIdxFunc, &stats.FuncIndexCount},
	} {
		iter, err := s.newIter(&pebble.IterOptions{
			LowerBound: c.prefix,
			UpperBound: incrementLastByte(c.prefix),
		})
		if err != nil {
			return nil, err
		}
		for iter.First(); iter.Valid(); iter.Next() {
			*c.out++
		}
		iter.Close()
	}

	metrics := s.db.Metrics()
	stats.DiskSpaceUsed = int64(metrics.DiskSpaceUsage())
	return stats, nil
}

// Compact forces a full manual compaction.
func (s *PebbleStore) Compact() error {
	return s.db.Compact(nil, []byte{0xff}, true)
}

// SetMetadata stores an arbitrary metadata string under meta:key.
func (s *PebbleStore) SetMetadata(key, value string) error {
	k := append(append([]byte{}, prefixStoreMeta...), key...)
	return s.db.Set(k, []byte(value), pebble.Sync)
}

// GetMetadata loads a metadata string; missing keys return "".
func (s *PebbleStore) GetMetadata(key string) (string, error) {
	k := append(append([]byte{}, prefixStoreMeta...), key...)
	data, closer, err := s.db.Get(k)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	defer closer.Close()
	return string(data), nil
}
