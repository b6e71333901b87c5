package ssaflow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// SetupTestEnv creates an isolated module directory for the packages loader.
// Exported for use in external test packages.
func SetupTestEnv(t *testing.T, dirPrefix string) (string, func()) {
	t.Helper()
	tempDir, err := os.MkdirTemp("", dirPrefix)
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	// Minimal go.mod with a go version for modern language features.
	if err := os.WriteFile(filepath.Join(tempDir, "go.mod"), []byte("module testmod\n\ngo 1.21\n"), 0644); err != nil {
		t.Fatalf("Failed to write go.mod: %v", err)
	}
	cleanup := func() {
		os.RemoveAll(tempDir)
	}
	return tempDir, cleanup
}

// LoadTestSource writes src as main.go inside dir and loads its units.
// Exported for use in external test packages.
func LoadTestSource(t *testing.T, dir, src string) []*SourceUnit {
	t.Helper()
	target := filepath.Join(dir, "main.go")
	if err := os.WriteFile(target, []byte(src), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}
	units, err := LoadPackagesDir(dir, "file="+target)
	if err != nil {
		t.Fatalf("Failed to load packages: %v", err)
	}
	return units
}

// FindUnit searches units by function name, accepting package-qualified
// suffix matches (e.g. "main" matches "testmod.main").
// Exported for use in external test packages.
func FindUnit(units []*SourceUnit, name string) *SourceUnit {
	for _, su := range units {
		if su.Name == name {
			return su
		}
	}
	for _, su := range units {
		if strings.HasSuffix(su.Name, "."+name) {
			return su
		}
	}
	return nil
}
