package ssaflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"go/ast"
	"sort"
	"strings"
)

// UnitSummary is the persistable digest of one analyzed unit: enough to
// answer "what did the analysis see" without re-running it. Summaries are
// what the stores index and what the CLI prints.
type UnitSummary struct {
	Key      string `json:"key"`
	Function string `json:"function"`
	Filename string `json:"filename"`
	Line     int    `json:"line"`

	Blocks   int `json:"blocks"`
	Vars     int `json:"vars"`
	Params   int `json:"params"`
	Captured int `json:"captured"`

	Updates       int          `json:"updates"`
	Phis          int          `json:"phis"`
	LoopCarried   int          `json:"loop_carried"`
	ResolvedUses  int          `json:"resolved_uses"`
	CapturingUses int          `json:"capturing_uses"`
	DefUseEdges   []DefUseEdge `json:"def_use_edges,omitempty"`
	Incomplete    []string     `json:"incomplete,omitempty"`
	Error         string       `json:"error,omitempty"`
}

// DefUseEdge is one resolved definition-to-use edge with source positions,
// suitable for diffing between runs.
type DefUseEdge struct {
	Var     string `json:"var"`
	Def     string `json:"def"`
	DefLine int    `json:"def_line,omitempty"`
	UseLine int    `json:"use_line,omitempty"`
}

// Summarize digests one source unit. It works on failed units too: the
// summary then carries the error and whatever the front-end saw, so a store
// scan can report which functions resisted analysis.
func Summarize(su *SourceUnit) *UnitSummary {
	s := &UnitSummary{
		Key:      UnitKey(su),
		Function: su.Name,
		Filename: su.Filename,
		Line:     su.Line,
		Blocks:   len(su.Graph.Blocks),
		Vars:     len(su.Graph.Vars),
	}
	for _, v := range su.Graph.Vars {
		if v.Param {
			s.Params++
		}
		if v.Captured {
			s.Captured++
		}
	}
	for _, inc := range su.Incomplete {
		s.Incomplete = append(s.Incomplete, inc.String())
	}
	sort.Strings(s.Incomplete)

	if su.Err != nil {
		s.Error = su.Err.Error()
		return s
	}
	u := su.Unit
	if u == nil {
		return s
	}
	for _, d := range u.Definitions() {
		switch d.Kind {
		case DefUpdate:
			s.Updates++
		case DefPhi:
			s.Phis++
			if u.IsLoopCarried(d) {
				s.LoopCarried++
			}
		}
		for _, pos := range u.Uses(d) {
			edge := DefUseEdge{
				Var: su.Graph.VarName(d.Var),
				Def: d.String(),
			}
			if d.Kind == DefUpdate {
				if n, ok := d.Pos().Event().Syntax.(ast.Node); ok && su.Fset != nil {
					edge.DefLine = su.Fset.Position(n.Pos()).Line
				}
			}
			ev := pos.Event()
			if id, ok := ev.Syntax.(*ast.Ident); ok && su.Fset != nil {
				edge.UseLine = su.Fset.Position(id.Pos()).Line
			}
			if !ev.Capturing {
				s.ResolvedUses++
			}
			s.DefUseEdges = append(s.DefUseEdges, edge)
		}
	}
	// A capturing use appears in every reaching definition's use list, so
	// count distinct sites off the event stream instead.
	for _, b := range u.Graph.Blocks {
		for _, e := range b.Events {
			if e.Kind == EventUse && e.Capturing {
				s.CapturingUses++
			}
		}
	}
	return s
}

// UnitKey derives a stable content key for a unit: a sha256 over the unit's
// name, location and the structural shape of its graph. Two runs over
// unchanged source produce the same key, so stores can upsert by it.
func UnitKey(su *SourceUnit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s:%d\n", su.Name, su.Filename, su.Line)
	writeGraphShape(&b, su.Graph)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// writeGraphShape renders a canonical one-line-per-block digest of the
// graph: successors plus the event stream. Variable identity is by index,
// which is stable because the front-end registers variables in lexical
// order.
func writeGraphShape(b *strings.Builder, g *Graph) {
	for _, v := range g.Vars {
		fmt.Fprintf(b, "v %s p=%t c=%t\n", v.Name, v.Param, v.Captured)
	}
	for _, blk := range g.Blocks {
		fmt.Fprintf(b, "b%d:", blk.Index)
		for _, s := range blk.Succs {
			fmt.Fprintf(b, " ->b%d", s.Index)
		}
		for _, e := range blk.Events {
			tag := "u"
			if e.Kind == EventDef {
				tag = "d"
			}
			if e.Capturing {
				tag = "uc"
			}
			fmt.Fprintf(b, " %s%d", tag, e.Var)
		}
		b.WriteByte('\n')
	}
}
