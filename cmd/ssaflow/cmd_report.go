// cmd_report.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	ssaflow "github.com/BlackVectorOps/ssaflow"
)

// ReportOutput is the JSON document printed by the report command.
type ReportOutput struct {
	Target    string                 `json:"target"`
	Functions []*ssaflow.UnitSummary `json:"functions"`
	Failed    int                    `json:"failed"`
}

func runReport(w io.Writer, target string, concurrency int, edges bool) error {
	dir, patterns := targetPatterns(target)
	units, err := ssaflow.AnalyzePackagesDir(context.Background(), dir, concurrency, patterns...)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return fmt.Errorf("no functions found in %s", target)
	}

	output := ReportOutput{Target: target}
	for _, su := range units {
		sum := ssaflow.Summarize(su)
		if !edges {
			sum.DefUseEdges = nil
		}
		if sum.Error != "" {
			output.Failed++
		}
		output.Functions = append(output.Functions, sum)
	}
	sort.Slice(output.Functions, func(i, j int) bool {
		a, b := output.Functions[i], output.Functions[j]
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		return a.Line < b.Line
	})

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
