// cmd_stats.go
package main

import (
	"encoding/json"
	"os"
	"strings"

	ssaflow "github.com/BlackVectorOps/ssaflow"
)

func runStats(dbPath string) error {
	if strings.HasSuffix(dbPath, ".bolt") {
		opts := ssaflow.DefaultBoltStoreOptions()
		opts.ReadOnly = true
		store, err := ssaflow.OpenBoltStore(dbPath, opts)
		if err != nil {
			return err
		}
		defer store.Close()

		count, err := store.Count()
		if err != nil {
			return err
		}
		lastIndexed, _ := store.GetMetadata("last_indexed")
		size := dirSize(dbPath)

		output := struct {
			Database      string `json:"database"`
			Backend       string `json:"backend"`
			SummaryCount  int    `json:"summary_count"`
			LastIndexed   string `json:"last_indexed,omitempty"`
			FileSizeBytes int64  `json:"file_size_bytes"`
			FileSizeHuman string `json:"file_size_human"`
		}{
			Database:      dbPath,
			Backend:       "boltdb",
			SummaryCount:  count,
			LastIndexed:   lastIndexed,
			FileSizeBytes: size,
			FileSizeHuman: humanizeBytes(size),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(output)
	}

	opts := ssaflow.DefaultPebbleStoreOptions()
	opts.ReadOnly = true
	store, err := ssaflow.OpenPebbleStore(dbPath, opts)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats()
	if err != nil {
		return err
	}
	lastIndexed, _ := store.GetMetadata("last_indexed")
	size := dirSize(dbPath)

	output := struct {
		Database       string `json:"database"`
		Backend        string `json:"backend"`
		SummaryCount   int    `json:"summary_count"`
		FileIndexCount int    `json:"file_index_count"`
		FuncIndexCount int    `json:"func_index_count"`
		LastIndexed    string `json:"last_indexed,omitempty"`
		DiskSpaceBytes int64  `json:"disk_space_bytes"`
		DiskSpaceHuman string `json:"disk_space_human"`
	}{
		Database:       dbPath,
		Backend:        "pebbledb",
		SummaryCount:   stats.SummaryCount,
		FileIndexCount: stats.FileIndexCount,
		FuncIndexCount: stats.FuncIndexCount,
		LastIndexed:    lastIndexed,
		DiskSpaceBytes: size,
		DiskSpaceHuman: humanizeBytes(size),
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
