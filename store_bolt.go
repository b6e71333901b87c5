package ssaflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

// Bucket names for the BoltDB summary store.
var (
	bucketSummaries = []byte("summaries") // Master storage: KEY -> JSON blob
	bucketIdxFile   = []byte("idx_file")  // Index: FILENAME:KEY -> KEY
	bucketIdxFunc   = []byte("idx_func")  // Index: NAME:KEY -> KEY
	bucketMeta      = []byte("meta")      // Metadata: version, stats, etc.
)

// BoltStore persists unit summaries in a single BoltDB file. It offers the
// same surface as PebbleStore for environments where a one-file database is
// preferable to a directory tree.
type BoltStore struct {
	db *bbolt.DB
}

// BoltStoreOptions configures BoltStore initialization.
type BoltStoreOptions struct {
	Timeout  time.Duration // DB open timeout (default: 5s)
	ReadOnly bool          // Open DB in read-only mode for querying only
}

// DefaultBoltStoreOptions returns the defaults used by the CLI.
func DefaultBoltStoreOptions() BoltStoreOptions {
	return BoltStoreOptions{
		Timeout:  5 * time.Second,
		ReadOnly: false,
	}
}

// OpenBoltStore opens or creates a BoltDB backed summary database. The
// database file will be created if it doesn't exist.
func OpenBoltStore(dbPath string, opts BoltStoreOptions) (*BoltStore, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout:  opts.Timeout,
		ReadOnly: opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open summary db %q: %w", dbPath, err)
	}

	if !opts.ReadOnly {
		if err := initSummaryBuckets(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize buckets: %w", err)
		}
	}
	return &BoltStore{db: db}, nil
}

// initSummaryBuckets creates all required buckets in a single transaction.
func initSummaryBuckets(db *bbolt.DB) error {
	return db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketSummaries, bucketIdxFile, bucketIdxFunc, bucketMeta}
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
}

// Close flushes pending writes and closes the database.
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func indexEntry(first, key string) []byte {
	return []byte(first + ":" + key)
}

// Put atomically upserts a summary and its index entries. Stale records for
// the same function in the same file are removed first.
func (s *BoltStore) Put(sum *UnitSummary) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putSummary(tx, sum)
	})
}

// PutAll upserts multiple summaries in a single transaction. Much faster
// than calling Put in a loop for bulk imports.
func (s *BoltStore) PutAll(sums []*UnitSummary) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, sum := range sums {
			if err := putSummary(tx, sum); err != nil {
				return err
			}
		}
		return nil
	})
}

func putSummary(tx *bbolt.Tx, sum *UnitSummary) error {
	if sum.Key == "" {
		return fmt.Errorf("summary for %q has no key", sum.Function)
	}
	bSums := tx.Bucket(bucketSummaries)
	bFile := tx.Bucket(bucketIdxFile)
	bFunc := tx.Bucket(bucketIdxFunc)

	// Drop stale records for the same function+file.
	prefix := []byte(sum.Function + ":")
	c := bFunc.Cursor()
	for k, v := c.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = c.Next() {
		old := string(v)
		if old == sum.Key {
			continue
		}
		var prev UnitSummary
		data := bSums.Get([]byte(old))
		if data == nil || json.Unmarshal(data, &prev) != nil || prev.Filename != sum.Filename {
			continue
		}
		if err := deleteSummary(tx, &prev); err != nil {
			return err
		}
	}

	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary %q: %w", sum.Key, err)
	}
	if err := bSums.Put([]byte(sum.Key), data); err != nil {
		return fmt.Errorf("store summary %q: %w", sum.Key, err)
	}
	if err := bFile.Put(indexEntry(sum.Filename, sum.Key), []byte(sum.Key)); err != nil {
		return fmt.Errorf("index file for %q: %w", sum.Key, err)
	}
	if err := bFunc.Put(indexEntry(sum.Function, sum.Key), []byte(sum.Key)); err != nil {
		return fmt.Errorf("index function for %q: %w", sum.Key, err)
	}
	return nil
}

func deleteSummary(tx *bbolt.Tx, sum *UnitSummary) error {
	if err := tx.Bucket(bucketSummaries).Delete([]byte(sum.Key)); err != nil {
		return err
	}
	if err := tx.Bucket(bucketIdxFile).Delete(indexEntry(sum.Filename, sum.Key)); err != nil {
		return err
	}
	return tx.Bucket(bucketIdxFunc).Delete(indexEntry(sum.Function, sum.Key))
}

// Get loads one summary by key.
func (s *BoltStore) Get(key string) (*UnitSummary, error) {
	var sum *UnitSummary
	err := s.db.View(func(tx *bbolt.Tx) error {
		// A read-only open never creates buckets, so a fresh file has none.
		b := tx.Bucket(bucketSummaries)
		if b == nil {
			return fmt.Errorf("summary not found: %s", key)
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("summary not found: %s", key)
		}
		sum = new(UnitSummary)
		return json.Unmarshal(data, sum)
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// Delete removes a summary and its index entries.
func (s *BoltStore) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSummaries).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("summary not found: %s", key)
		}
		var sum UnitSummary
		if err := json.Unmarshal(data, &sum); err != nil {
			return err
		}
		return deleteSummary(tx, &sum)
	})
}

// ByFile returns every stored summary for a source file, ordered by key.
func (s *BoltStore) ByFile(filename string) ([]*UnitSummary, error) {
	return s.byIndex(bucketIdxFile, filename)
}

// ByFunction returns every stored summary for a function name.
func (s *BoltStore) ByFunction(fn string) ([]*UnitSummary, error) {
	return s.byIndex(bucketIdxFunc, fn)
}

func (s *BoltStore) byIndex(bucket []byte, first string) ([]*UnitSummary, error) {
	var out []*UnitSummary
	err := s.db.View(func(tx *bbolt.Tx) error {
		bSums := tx.Bucket(bucketSummaries)
		bIdx := tx.Bucket(bucket)
		if bSums == nil || bIdx == nil {
			return nil
		}
		prefix := []byte(first + ":")
		c := bIdx.Cursor()
		var keys []string
		for k, v := c.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = c.Next() {
			keys = append(keys, string(v))
		}
		sort.Strings(keys)
		for _, key := range keys {
			data := bSums.Get([]byte(key))
			if data == nil {
				continue
			}
			var sum UnitSummary
			if err := json.Unmarshal(data, &sum); err != nil {
				return fmt.Errorf("unmarshal summary %q: %w", key, err)
			}
			out = append(out, &sum)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of stored summaries.
func (s *BoltStore) Count() (int, error) {
	var count int
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSummaries)
		if b == nil {
			return nil
		}
		count = b.Stats().KeyN
		return nil
	})
	return count, err
}

// ListKeys returns all summary keys in the database.
func (s *BoltStore) ListKeys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSummaries)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// SetMetadata stores an arbitrary metadata string.
func (s *BoltStore) SetMetadata(key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(key), []byte(value))
	})
}

// GetMetadata loads a metadata string; missing keys return "".
func (s *BoltStore) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}
		value = string(b.Get([]byte(key)))
		return nil
	})
	return value, err
}
