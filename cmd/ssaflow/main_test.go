// main_test.go

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ssaflow "github.com/BlackVectorOps/ssaflow"
)

// -- CLI TEST HELPERS --

// writeTestModule creates an isolated module with src as main.go and returns
// the file path.
func writeTestModule(t *testing.T, src string) string {
	t.Helper()
	dir, cleanup := ssaflow.SetupTestEnv(t, "ssaflow-cli-test-")
	t.Cleanup(cleanup)
	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}
	return path
}

// captureStdout hijacks os.Stdout for commands that hardcode their output
// stream (runIndex).
func captureStdout(f func() error) (string, error) {
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := f()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String(), err
}

// -- CLI COMMAND TESTS --

func TestRunReport_Basic(t *testing.T) {
	src := `package main

func branchy(a int) int {
	x := a
	if a > 0 {
		x = 1
	}
	return x
}

func main() { _ = branchy(3) }
`
	path := writeTestModule(t, src)

	var buf bytes.Buffer
	if err := runReport(&buf, path, 1, true); err != nil {
		t.Fatalf("runReport failed: %v", err)
	}

	var result ReportOutput
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse report output: %v\nRaw: %s", err, buf.String())
	}
	if result.Target != path {
		t.Errorf("Target = %q, want %q", result.Target, path)
	}
	if result.Failed != 0 {
		t.Errorf("Failed = %d, want 0", result.Failed)
	}

	var branchy *ssaflow.UnitSummary
	for _, fn := range result.Functions {
		if strings.HasSuffix(fn.Function, ".branchy") {
			branchy = fn
		}
	}
	if branchy == nil {
		var names []string
		for _, fn := range result.Functions {
			names = append(names, fn.Function)
		}
		t.Fatalf("Expected function 'branchy', found: %v", names)
	}
	if branchy.Key == "" {
		t.Error("Expected a content key on every summary")
	}
	if branchy.Phis != 1 {
		t.Errorf("branchy Phis = %d, want the merge after the if", branchy.Phis)
	}
	if len(branchy.DefUseEdges) == 0 {
		t.Error("Expected def-use edges with --edges")
	}
}

func TestRunReport_EdgesStripped(t *testing.T) {
	src := `package main

func twice(n int) int { return n + n }

func main() { _ = twice(2) }
`
	path := writeTestModule(t, src)

	var buf bytes.Buffer
	if err := runReport(&buf, path, 1, false); err != nil {
		t.Fatalf("runReport failed: %v", err)
	}
	var result ReportOutput
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse report output: %v", err)
	}
	for _, fn := range result.Functions {
		if len(fn.DefUseEdges) != 0 {
			t.Errorf("Edges must be stripped without --edges, got %v", fn.DefUseEdges)
		}
	}
}

func TestRunAudit_DeadStore(t *testing.T) {
	src := `package main

func wasteful(a int) int {
	x := a
	x = 2
	return x
}

func main() { _ = wasteful(1) }
`
	path := writeTestModule(t, src)

	var buf bytes.Buffer
	count, err := runAudit(&buf, path, 1)
	if err != nil {
		t.Fatalf("runAudit failed: %v", err)
	}
	if count == 0 {
		t.Fatalf("Expected at least one finding. Output: %s", buf.String())
	}

	var result AuditOutput
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse audit output: %v", err)
	}
	if count != len(result.Findings) {
		t.Errorf("Returned count %d disagrees with %d printed findings", count, len(result.Findings))
	}

	found := false
	for _, f := range result.Findings {
		if f.Kind == "dead-store" && strings.Contains(f.Detail, "x") {
			found = true
			if f.Line != 4 {
				t.Errorf("dead-store line = %d, want 4 (the overwritten x := a)", f.Line)
			}
		}
	}
	if !found {
		t.Errorf("Expected a dead-store finding for x, got: %v", result.Findings)
	}
}

func TestRunAudit_CleanCode(t *testing.T) {
	src := `package main

func sum(n int) int {
	s := 0
	for i := 0; i < n; i++ {
		s = s + i
	}
	return s
}

func main() { _ = sum(4) }
`
	path := writeTestModule(t, src)

	var buf bytes.Buffer
	count, err := runAudit(&buf, path, 1)
	if err != nil {
		t.Fatalf("runAudit failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no findings on clean code, got %d: %s", count, buf.String())
	}
}

func TestDeadStores(t *testing.T) {
	dir, cleanup := ssaflow.SetupTestEnv(t, "ssaflow-deadstore-")
	t.Cleanup(cleanup)
	units := ssaflow.LoadTestSource(t, dir, `package main

func f(a int) int {
	x := a
	x = 2
	return x
}

func loop(n int) int {
	s := 0
	for i := 0; i < n; i++ {
		s = s + i
	}
	return s
}

func main() { _ = f(1) + loop(2) }
`)

	f := ssaflow.FindUnit(units, "f")
	if f == nil {
		t.Fatal("Could not find function f")
	}
	if err := f.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	findings := deadStores(f)
	if len(findings) != 1 {
		t.Fatalf("deadStores(f) = %v, want exactly the overwritten x", findings)
	}
	if findings[0].Kind != "dead-store" || !strings.Contains(findings[0].Detail, "x") {
		t.Errorf("Unexpected finding: %+v", findings[0])
	}

	// A write that only feeds a loop merge is consumed, not dead.
	loop := ssaflow.FindUnit(units, "loop")
	if loop == nil {
		t.Fatal("Could not find function loop")
	}
	if err := loop.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if findings := deadStores(loop); len(findings) != 0 {
		t.Errorf("deadStores(loop) = %v, want none: every write feeds a merge or a use", findings)
	}
}

func TestWorkflow_IndexBolt(t *testing.T) {
	// Index into a fresh Bolt database, then read it back through the store.
	src := `package main

func target(n int) int {
	if n < 0 {
		return 0
	}
	return n * 2
}

func main() { _ = target(5) }
`
	path := writeTestModule(t, src)
	dbPath := filepath.Join(t.TempDir(), "flow.bolt")

	output, err := captureStdout(func() error {
		return runIndex(path, dbPath, 1)
	})
	if err != nil {
		t.Fatalf("runIndex failed: %v", err)
	}

	var result struct {
		Database string `json:"database"`
		Backend  string `json:"backend"`
		Indexed  int    `json:"indexed"`
		Failed   int    `json:"failed"`
		Total    int    `json:"total"`
	}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("Failed to parse index output: %v\nRaw: %s", err, output)
	}
	if result.Backend != "boltdb" {
		t.Errorf("Expected backend 'boltdb', got %q", result.Backend)
	}
	if result.Indexed < 2 || result.Failed != 0 {
		t.Errorf("Indexed=%d Failed=%d, want target and main indexed cleanly", result.Indexed, result.Failed)
	}
	if result.Total != result.Indexed {
		t.Errorf("Total = %d, want %d on a fresh database", result.Total, result.Indexed)
	}

	opts := ssaflow.DefaultBoltStoreOptions()
	opts.ReadOnly = true
	store, err := ssaflow.OpenBoltStore(dbPath, opts)
	if err != nil {
		t.Fatalf("OpenBoltStore: %v", err)
	}
	defer store.Close()
	if when, err := store.GetMetadata("last_indexed"); err != nil || when == "" {
		t.Errorf("last_indexed = %q, %v; want a timestamp", when, err)
	}
}

// -- HELPER TESTS --

func TestTargetPatterns(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.go")
	if err := os.WriteFile(file, []byte("package main\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		target      string
		wantDir     string
		wantPattern string
	}{
		{
			name:        "go file loads from its own directory",
			target:      file,
			wantDir:     dir,
			wantPattern: "file=" + file,
		},
		{
			name:        "directory loads the package there",
			target:      dir,
			wantDir:     dir,
			wantPattern: ".",
		},
		{
			name:        "recursive pattern passes through",
			target:      "./...",
			wantDir:     "",
			wantPattern: "./...",
		},
		{
			name:        "import path passes through",
			target:      "example.com/pkg",
			wantDir:     "",
			wantPattern: "example.com/pkg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotDir, patterns := targetPatterns(tt.target)
			if gotDir != tt.wantDir {
				t.Errorf("dir = %q, want %q", gotDir, tt.wantDir)
			}
			if len(patterns) != 1 || patterns[0] != tt.wantPattern {
				t.Errorf("patterns = %v, want [%q]", patterns, tt.wantPattern)
			}
		})
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   int
	}{
		{"audit", "audit", 0},
		{"adit", "audit", 1},
		{"auditt", "audit", 1},
		// reprot -> report: two substitutions (no transposition operation).
		{"reprot", "report", 2},
		{"", "abc", 3},
	}

	for _, tt := range tests {
		got := levenshtein(tt.s1, tt.s2)
		if got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.s1, tt.s2, got, tt.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	if got := suggestCommand("reprot"); got != "report" {
		t.Errorf("Expected suggestion 'report' for 'reprot', got %q", got)
	}
	if got := suggestCommand("adit"); got != "audit" {
		t.Errorf("Expected suggestion 'audit' for 'adit', got %q", got)
	}
	if got := suggestCommand("xyz"); got != "" {
		t.Errorf("Expected no suggestion for 'xyz', got %q", got)
	}
}
