// Package ssaflow constructs pruned SSA form over a caller-supplied
// control-flow graph and answers reaching-definition, phi-input,
// ultimate-definition and def-use queries about it.
//
// The engine is front-end agnostic: anything that can describe its code as
// basic blocks with an ordered list of definition/use events per block can be
// analyzed. A Go source front-end built on go/packages and x/tools/go/cfg is
// provided in source.go.
package ssaflow

import "fmt"

// EventKind classifies a relevant intra-block position.
type EventKind int

const (
	// EventDef is a write of a variable (assignment, declaration with
	// initializer, increment target, range binding).
	EventDef EventKind = iota
	// EventUse is a read of a variable in value position.
	EventUse
)

func (k EventKind) String() string {
	if k == EventDef {
		return "def"
	}
	return "use"
}

// Event is one relevant control-flow position inside a basic block.
// Positions that neither define nor use a tracked variable never appear in
// the event list; ranks are assigned over this already-filtered sequence.
type Event struct {
	Var  int
	Kind EventKind

	// Capturing marks a use that occurs inside a nested closure. Such uses
	// are resolved flow-insensitively: every update of the variable is
	// visible to them, regardless of block order.
	Capturing bool

	// Syntax is an opaque front-end attachment (e.g. the *ast.Ident for a
	// use, the defining statement for an update). The engine never inspects
	// it.
	Syntax any
}

// VarInfo describes one locally scoped variable of a unit.
// Globally scoped and field scoped names must not be entered here; the
// surrounding system handles them flow-insensitively.
type VarInfo struct {
	Name string

	// Param marks a variable bound at the entry of the unit (parameters and
	// named results). It has an implicit definition at rank 0 of the entry
	// block.
	Param bool

	// Captured marks a variable referenced from a nested closure.
	Captured bool
}

// Block is a basic block of the borrowed CFG.
type Block struct {
	Index int
	Preds []*Block
	Succs []*Block

	// Events holds the block's definition and use events in deterministic
	// intra-block evaluation order.
	Events []Event

	dom domInfo
	df  []*Block
}

func (b *Block) String() string { return fmt.Sprintf("b%d", b.Index) }

// Position identifies one event: (basic block, intra-block event index).
type Position struct {
	Block *Block
	Index int
}

func (p Position) String() string {
	if p.Block == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s.%d", p.Block, p.Index)
}

// Event returns the event at this position.
func (p Position) Event() Event { return p.Block.Events[p.Index] }

// Graph is the immutable CFG snapshot of one analyzed unit (callable).
// Blocks[0] is the entry block. The engine borrows the graph and never
// mutates the predecessor/successor structure or the event lists.
type Graph struct {
	Name   string
	Blocks []*Block
	Vars   []VarInfo
}

// Entry returns the unit's entry block.
func (g *Graph) Entry() *Block { return g.Blocks[0] }

// VarName returns the name of variable v, for diagnostics.
func (g *Graph) VarName(v int) string {
	if v < 0 || v >= len(g.Vars) {
		return fmt.Sprintf("v%d", v)
	}
	return g.Vars[v].Name
}

// GraphBuilder assembles a Graph block by block. It is the programmatic
// Graph Adapter used by tests and by front-ends that already have a CFG.
// Events must be appended in intra-block evaluation order; the builder does
// not reorder them.
type GraphBuilder struct {
	g *Graph
}

func NewGraphBuilder(name string) *GraphBuilder {
	return &GraphBuilder{g: &Graph{Name: name}}
}

// Var registers a locally scoped variable and returns its index.
func (gb *GraphBuilder) Var(name string) int {
	gb.g.Vars = append(gb.g.Vars, VarInfo{Name: name})
	return len(gb.g.Vars) - 1
}

// Param registers an entry-bound variable (parameter or named result).
func (gb *GraphBuilder) Param(name string) int {
	gb.g.Vars = append(gb.g.Vars, VarInfo{Name: name, Param: true})
	return len(gb.g.Vars) - 1
}

// MarkCaptured flags v as referenced from a nested closure.
func (gb *GraphBuilder) MarkCaptured(v int) {
	gb.g.Vars[v].Captured = true
}

// Block appends a new empty basic block. The first block created is the
// entry block.
func (gb *GraphBuilder) Block() *Block {
	b := &Block{Index: len(gb.g.Blocks)}
	gb.g.Blocks = append(gb.g.Blocks, b)
	return b
}

// Edge adds a control-flow edge from one block to another.
func (gb *GraphBuilder) Edge(from, to *Block) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

// Def appends an update event for v to b and returns its position.
func (gb *GraphBuilder) Def(b *Block, v int) Position {
	return gb.event(b, Event{Var: v, Kind: EventDef})
}

// Use appends a value read event for v to b and returns its position.
func (gb *GraphBuilder) Use(b *Block, v int) Position {
	return gb.event(b, Event{Var: v, Kind: EventUse})
}

// CapturingUse appends a closure-side read event for v to b. The variable is
// implicitly marked captured.
func (gb *GraphBuilder) CapturingUse(b *Block, v int) Position {
	gb.g.Vars[v].Captured = true
	return gb.event(b, Event{Var: v, Kind: EventUse, Capturing: true})
}

func (gb *GraphBuilder) event(b *Block, e Event) Position {
	b.Events = append(b.Events, e)
	return Position{Block: b, Index: len(b.Events) - 1}
}

// Graph finalizes and returns the assembled graph.
func (gb *GraphBuilder) Graph() *Graph { return gb.g }

// validate checks the Graph Adapter preconditions that the engine relies on:
// a non-empty block list, consistent edge lists, in-range variable indices
// and reachability of every block from the entry.
func (g *Graph) validate() error {
	if len(g.Blocks) == 0 {
		return &InconsistencyError{Unit: g.Name, Reason: "graph has no blocks"}
	}
	for i, b := range g.Blocks {
		if b.Index != i {
			return &InconsistencyError{Unit: g.Name, Reason: fmt.Sprintf("block %d carries index %d", i, b.Index)}
		}
		for _, e := range b.Events {
			if e.Var < 0 || e.Var >= len(g.Vars) {
				return &InconsistencyError{Unit: g.Name, Reason: fmt.Sprintf("event in %s references unknown variable %d", b, e.Var)}
			}
		}
		for _, s := range b.Succs {
			if !hasBlock(s.Preds, b) {
				return &InconsistencyError{Unit: g.Name, Reason: fmt.Sprintf("edge %s->%s missing from predecessor list", b, s)}
			}
		}
		for _, p := range b.Preds {
			if !hasBlock(p.Succs, b) {
				return &InconsistencyError{Unit: g.Name, Reason: fmt.Sprintf("edge %s->%s missing from successor list", p, b)}
			}
		}
	}
	seen := make([]bool, len(g.Blocks))
	stack := []*Block{g.Entry()}
	seen[0] = true
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range b.Succs {
			if !seen[s.Index] {
				seen[s.Index] = true
				stack = append(stack, s)
			}
		}
	}
	for i, ok := range seen {
		if !ok {
			return &InconsistencyError{Unit: g.Name, Reason: fmt.Sprintf("block b%d is unreachable from the entry", i)}
		}
	}
	return nil
}

func hasBlock(list []*Block, b *Block) bool {
	for _, x := range list {
		if x == b {
			return true
		}
	}
	return false
}
