// Package main provides the ssaflow CLI tool for def-use analysis of Go source files.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `ssaflow - SSA def-use analysis CLI

Builds a pruned SSA view of every function in the target and answers
definition/use questions over it.

Usage:
  ssaflow report <package|file.go|directory>     Print per-function def-use summaries
  ssaflow audit <package|file.go|directory>      Report dead stores and excluded variables
  ssaflow index <target> --db <path>             Store summaries in a database
  ssaflow stats --db <path>                      Show database statistics
  ssaflow explain <target> --func <name>         LLM explanation of a function's data flow

Commands:
  report  Analyze the target and print one JSON summary per function:
          block/variable counts, phi placements, resolved def-use edges.
          --concurrency   Parallel unit limit (default: GOMAXPROCS)
          --edges         Include per-edge detail (default: true)

  audit   Analyze the target and report findings:
          dead stores (a write no later use ever reads), variables the
          analysis had to exclude, and functions that failed construction.
          Exits non-zero when findings exist.
          --concurrency   Parallel unit limit

  index   Analyze the target and upsert its summaries into the database.
          Re-indexing unchanged source is a no-op; changed functions
          replace their stale records.
          --db            Path to database (default: auto-detect)
                          A .bolt path selects BoltDB, otherwise Pebble.

  stats   Display database statistics.
          --db            Path to database

  explain Ask a Gemini model to narrate one function's def-use structure.
          Requires GEMINI_API_KEY; there is no offline fallback.
          --func          Function name (required)
          --model         Model name (default: gemini-2.0-flash)

Examples:
  ssaflow report ./...                       Summarize every function in the module
  ssaflow report main.go                     Summarize a single file
  ssaflow audit ./pkg/                       Find dead stores in a package
  ssaflow index ./... --db flow.db           Build a summary database
  ssaflow stats --db flow.db
  ssaflow explain ./... --func ProcessOrder

Output:
  JSON to stdout, diagnostics to stderr.

Database Formats:
  Pebble (directory):  Recommended for large codebases. Prefix-indexed scans.
  BoltDB (.bolt file): One-file database for small projects and CI caches.

`)
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	reportCmd := flag.NewFlagSet("report", flag.ExitOnError)
	reportConc := reportCmd.Int("concurrency", 0, "Parallel unit limit (default: GOMAXPROCS)")
	reportEdges := reportCmd.Bool("edges", true, "Include per-edge detail")

	auditCmd := flag.NewFlagSet("audit", flag.ExitOnError)
	auditConc := auditCmd.Int("concurrency", 0, "Parallel unit limit (default: GOMAXPROCS)")

	indexCmd := flag.NewFlagSet("index", flag.ExitOnError)
	indexDB := indexCmd.String("db", "", "Path to database (default: auto-detect)")
	indexConc := indexCmd.Int("concurrency", 0, "Parallel unit limit (default: GOMAXPROCS)")

	statsCmd := flag.NewFlagSet("stats", flag.ExitOnError)
	statsDB := statsCmd.String("db", "", "Path to database (default: auto-detect)")

	explainCmd := flag.NewFlagSet("explain", flag.ExitOnError)
	explainFunc := explainCmd.String("func", "", "Function name (required)")
	explainModel := explainCmd.String("model", "gemini-2.0-flash", "Gemini model name")

	switch cmd {
	case "report":
		if err := reportCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if reportCmd.NArg() < 1 {
			fmt.Fprintf(os.Stderr, "error: report requires a package, file or directory argument\n")
			reportCmd.Usage()
			os.Exit(1)
		}
		if err := runReport(os.Stdout, reportCmd.Arg(0), *reportConc, *reportEdges); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "audit":
		if err := auditCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if auditCmd.NArg() < 1 {
			fmt.Fprintf(os.Stderr, "error: audit requires a package, file or directory argument\n")
			auditCmd.Usage()
			os.Exit(1)
		}
		findings, err := runAudit(os.Stdout, auditCmd.Arg(0), *auditConc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if findings > 0 {
			os.Exit(2)
		}
	case "index":
		if err := indexCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if indexCmd.NArg() < 1 {
			fmt.Fprintf(os.Stderr, "error: index requires a target argument\n")
			indexCmd.Usage()
			os.Exit(1)
		}
		if err := runIndex(indexCmd.Arg(0), resolveDBPath(*indexDB), *indexConc); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "stats":
		if err := statsCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if err := runStats(resolveDBPath(*statsDB)); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "explain":
		if err := explainCmd.Parse(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if explainCmd.NArg() < 1 {
			fmt.Fprintf(os.Stderr, "error: explain requires a target argument\n")
			explainCmd.Usage()
			os.Exit(1)
		}
		if *explainFunc == "" {
			fmt.Fprintf(os.Stderr, "error: --func is required for explain command\n")
			os.Exit(1)
		}
		if err := runExplain(os.Stdout, explainCmd.Arg(0), *explainFunc, *explainModel); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		if suggestion := suggestCommand(cmd); suggestion != "" {
			fmt.Fprintf(os.Stderr, "Did you mean '%s'?\n\n", suggestion)
		}
		flag.Usage()
		os.Exit(1)
	}
}
