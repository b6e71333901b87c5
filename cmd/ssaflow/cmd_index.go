// cmd_index.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	ssaflow "github.com/BlackVectorOps/ssaflow"
)

// summaryStore is the surface the index and stats commands need; both
// backends implement it.
type summaryStore interface {
	PutAll([]*ssaflow.UnitSummary) error
	Count() (int, error)
	SetMetadata(key, value string) error
	Close() error
}

func openStore(dbPath string, readOnly bool) (summaryStore, string, error) {
	if strings.HasSuffix(dbPath, ".bolt") {
		opts := ssaflow.DefaultBoltStoreOptions()
		opts.ReadOnly = readOnly
		s, err := ssaflow.OpenBoltStore(dbPath, opts)
		return s, "boltdb", err
	}
	opts := ssaflow.DefaultPebbleStoreOptions()
	opts.ReadOnly = readOnly
	s, err := ssaflow.OpenPebbleStore(dbPath, opts)
	return s, "pebbledb", err
}

func runIndex(target, dbPath string, concurrency int) error {
	dir, patterns := targetPatterns(target)
	units, err := ssaflow.AnalyzePackagesDir(context.Background(), dir, concurrency, patterns...)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return fmt.Errorf("no functions found in %s", target)
	}

	sums := make([]*ssaflow.UnitSummary, 0, len(units))
	failed := 0
	for _, su := range units {
		sum := ssaflow.Summarize(su)
		if sum.Error != "" {
			failed++
		}
		sums = append(sums, sum)
	}

	store, backend, err := openStore(dbPath, false)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.PutAll(sums); err != nil {
		return fmt.Errorf("failed to store summaries: %w", err)
	}
	if err := store.SetMetadata("last_indexed", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	total, err := store.Count()
	if err != nil {
		return err
	}

	output := struct {
		Database string `json:"database"`
		Backend  string `json:"backend"`
		Indexed  int    `json:"indexed"`
		Failed   int    `json:"failed"`
		Total    int    `json:"total"`
	}{
		Database: dbPath,
		Backend:  backend,
		Indexed:  len(sums),
		Failed:   failed,
		Total:    total,
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
