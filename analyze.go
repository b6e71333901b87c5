package ssaflow

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Parallel driver. Each analyzed unit is independent of every other, so SSA
// construction fans out across units with no coordination; within one unit
// the liveness → phi placement → ranking → resolution pipeline runs
// sequentially and the result is frozen before anyone reads it.

// AnalyzeUnits builds the SSA view of every unit, at most concurrency units
// at a time (GOMAXPROCS when concurrency <= 0). A construction failure is
// recorded on the failing unit's Err field rather than aborting the batch:
// SSA failures are per-unit input-contract violations, not transient
// conditions. Only context cancellation stops the batch early.
func AnalyzeUnits(ctx context.Context, units []*SourceUnit, concurrency int) error {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, su := range units {
		su := su
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_ = su.Build() // recorded on su.Err
			return nil
		})
	}
	return g.Wait()
}

// AnalyzePackages loads the given patterns and analyzes every unit in them.
func AnalyzePackages(ctx context.Context, concurrency int, patterns ...string) ([]*SourceUnit, error) {
	return AnalyzePackagesDir(ctx, "", concurrency, patterns...)
}

// AnalyzePackagesDir is AnalyzePackages with an explicit working directory
// for the underlying build system queries.
func AnalyzePackagesDir(ctx context.Context, dir string, concurrency int, patterns ...string) ([]*SourceUnit, error) {
	units, err := LoadPackagesDir(dir, patterns...)
	if err != nil {
		return nil, err
	}
	if err := AnalyzeUnits(ctx, units, concurrency); err != nil {
		return nil, err
	}
	return units, nil
}
