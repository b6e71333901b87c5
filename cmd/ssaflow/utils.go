// utils.go
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// -- Utilities --

func resolveDBPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("SSAFLOW_DB_PATH"); env != "" {
		return env
	}
	candidates := []string{
		"./ssaflow.db",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".ssaflow", "ssaflow.db"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return "./ssaflow.db"
}

// targetPatterns turns a CLI target into a working directory and go/packages
// load patterns: a .go file becomes a file= query rooted in its own
// directory, a directory is loaded as the package living there, and anything
// else (./..., import paths) is queried from the current directory.
func targetPatterns(target string) (string, []string) {
	if strings.HasSuffix(target, ".go") {
		abs, err := filepath.Abs(target)
		if err != nil {
			abs = target
		}
		return filepath.Dir(abs), []string{"file=" + abs}
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return target, []string{"."}
	}
	return "", []string{target}
}

func levenshtein(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	n, m := len(r1), len(r2)
	if n > m {
		r1, r2 = r2, r1
		n, m = m, n
	}
	current := make([]int, n+1)
	for i := 0; i <= n; i++ {
		current[i] = i
	}
	for j := 1; j <= m; j++ {
		previous := current[0]
		current[0] = j
		for i := 1; i <= n; i++ {
			temp := current[i]
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			current[i] = min(min(current[i-1]+1, current[i]+1), previous+cost)
			previous = temp
		}
	}
	return current[n]
}

func suggestCommand(cmd string) string {
	commands := []string{"report", "audit", "index", "stats", "explain"}
	bestMatch := ""
	minDist := 100
	for _, c := range commands {
		dist := levenshtein(cmd, c)
		if dist < minDist {
			minDist = dist
			bestMatch = c
		}
	}
	if minDist <= 2 {
		return bestMatch
	}
	return ""
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func humanizeBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	suffixes := "KMGTPE"
	if exp >= len(suffixes) {
		exp = len(suffixes) - 1
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), suffixes[exp])
}

// dirSize sums the on-disk size of a Pebble directory or a single db file.
func dirSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	if !info.IsDir() {
		return info.Size()
	}
	var total int64
	filepath.Walk(path, func(_ string, fi os.FileInfo, err error) error {
		if err == nil && !fi.IsDir() {
			total += fi.Size()
		}
		return nil
	})
	return total
}
