package ssaflow

import "fmt"

// DefKind discriminates the three kinds of SSA definition.
type DefKind int

const (
	// DefParameter is the implicit definition of a parameter (or named
	// result) at the entry of the unit.
	DefParameter DefKind = iota
	// DefUpdate wraps a concrete write of the variable.
	DefUpdate
	// DefPhi is a synthetic merge definition attached to the head of a
	// block, not to any concrete write.
	DefPhi
)

func (k DefKind) String() string {
	switch k {
	case DefParameter:
		return "param"
	case DefUpdate:
		return "update"
	case DefPhi:
		return "phi"
	}
	return "unknown"
}

// Definition is one SSA definition. Each definition is associated with
// exactly one variable and, except for parameters, one block.
type Definition struct {
	id   int
	unit *Unit

	Kind DefKind
	Var  int
	// Block is the phi's block, the update's block, or the entry block for
	// parameters.
	Block *Block
	// Event is the event index of the wrapped write; -1 for phis and
	// parameters.
	Event int
}

// Pos returns the concrete write position of an update definition. Phis and
// parameters have no concrete position and return a zero Position.
func (d *Definition) Pos() Position {
	if d.Kind != DefUpdate {
		return Position{}
	}
	return Position{Block: d.Block, Index: d.Event}
}

func (d *Definition) String() string {
	name := d.unit.Graph.VarName(d.Var)
	switch d.Kind {
	case DefParameter:
		return fmt.Sprintf("param(%s)", name)
	case DefPhi:
		return fmt.Sprintf("phi(%s)@%s", name, d.Block)
	}
	return fmt.Sprintf("%s@%s.%d", name, d.Block, d.Event)
}

// PhiInput pairs a phi's predecessor edge with the definition reaching that
// predecessor's exit.
type PhiInput struct {
	Pred *Block
	Def  *Definition
}

// Unit is the frozen SSA view of one analyzed callable. All derived
// relations are computed once by BuildUnit; afterwards the unit is read-only
// and safe for concurrent readers.
type Unit struct {
	Graph *Graph

	defs    []*Definition
	params  []*Definition            // per variable; nil unless entry-bound
	phis    [][]*Definition          // [var][block index]
	updates []map[int]*Definition    // [block index] event index -> def
	ranks   [][]*rankTable           // [var][block index]
	live    []*varLiveness           // per variable
	exit    [][]*Definition          // [var][block index] reaching def at exit
	exitSet [][]bool

	phiInputs map[*Definition][]PhiInput
	uses      map[*Definition][]Position
	useDef    map[Position]*Definition
	loopHdr   map[*Block]bool
}

// BuildUnit derives the complete SSA view for one graph. It either returns a
// fully resolved unit or an *InconsistencyError; partial results are never
// produced. The graph is borrowed, not mutated.
func BuildUnit(g *Graph) (*Unit, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	buildDomTree(g)
	buildDomFrontier(g)

	u := &Unit{
		Graph:     g,
		params:    make([]*Definition, len(g.Vars)),
		phis:      make([][]*Definition, len(g.Vars)),
		updates:   make([]map[int]*Definition, len(g.Blocks)),
		ranks:     buildRanks(g),
		live:      make([]*varLiveness, len(g.Vars)),
		phiInputs: make(map[*Definition][]PhiInput),
		uses:      make(map[*Definition][]Position),
		useDef:    make(map[Position]*Definition),
		loopHdr:   make(map[*Block]bool),
	}
	for _, e := range backEdges(g) {
		u.loopHdr[e[1]] = true
	}

	// Definition arena: parameters, then updates in block/event order, then
	// phis. Creation order fixes the ids, keeping query output stable.
	for v, info := range g.Vars {
		if info.Param {
			u.params[v] = u.newDef(DefParameter, v, g.Entry(), -1)
		}
	}
	for _, b := range g.Blocks {
		for i, e := range b.Events {
			if e.Kind != EventDef {
				continue
			}
			if u.updates[b.Index] == nil {
				u.updates[b.Index] = make(map[int]*Definition)
			}
			u.updates[b.Index][i] = u.newDef(DefUpdate, e.Var, b, i)
		}
	}
	for v := range g.Vars {
		u.live[v] = u.computeLiveness(v)
	}
	for v := range g.Vars {
		u.phis[v] = make([]*Definition, len(g.Blocks))
		for idx, need := range u.phiBlocks(v) {
			if need {
				u.phis[v][idx] = u.newDef(DefPhi, v, g.Blocks[idx], -1)
			}
		}
	}

	if err := u.resolveAll(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *Unit) newDef(kind DefKind, v int, b *Block, event int) *Definition {
	d := &Definition{id: len(u.defs), unit: u, Kind: kind, Var: v, Block: b, Event: event}
	u.defs = append(u.defs, d)
	return d
}

// Definitions returns all SSA definitions of the unit in a stable order:
// parameters, then updates in block/event order, then phis.
func (u *Unit) Definitions() []*Definition {
	out := make([]*Definition, len(u.defs))
	copy(out, u.defs)
	return out
}

// ParamDef returns the implicit entry definition of v, or nil if v is not
// entry-bound.
func (u *Unit) ParamDef(v int) *Definition { return u.params[v] }

// PhiAt returns the phi definition for v at the head of b, or nil.
func (u *Unit) PhiAt(v int, b *Block) *Definition { return u.phis[v][b.Index] }

// UpdateAt returns the update definition wrapping the write at pos, or nil
// if pos is not a definition site.
func (u *Unit) UpdateAt(pos Position) *Definition {
	m := u.updates[pos.Block.Index]
	if m == nil {
		return nil
	}
	return m[pos.Index]
}

// IsPhi reports whether a merge definition for v exists at the head of b.
func (u *Unit) IsPhi(v int, b *Block) bool { return u.phis[v][b.Index] != nil }

// LiveAtEntry reports whether v is live at the entry of b.
func (u *Unit) LiveAtEntry(v int, b *Block) bool { return u.liveAtEntry(v, b) }

// LiveAtExit reports whether v is live at the exit of b.
func (u *Unit) LiveAtExit(v int, b *Block) bool { return u.liveAtExit(v, b) }

// Uses returns every use site reached by def, in block/event order. A
// definition with no reaching uses (e.g. a dead phi) yields an empty, valid
// result. For captured variables, every capturing use is reached by every
// parameter/update definition of the variable.
func (u *Unit) Uses(d *Definition) []Position { return u.uses[d] }

// ReachingDef returns the unique SSA definition reaching a non-capturing
// use, or nil if pos is not a tracked use position. Capturing uses have no
// unique reaching definition; use ReachingDefs.
func (u *Unit) ReachingDef(pos Position) *Definition { return u.useDef[pos] }

// ReachingDefs returns all definitions reaching the use at pos: a single
// definition for a flow-sensitive use, or every parameter/update definition
// of the variable for a capturing use.
func (u *Unit) ReachingDefs(pos Position) []*Definition {
	e := pos.Event()
	if e.Kind != EventUse {
		return nil
	}
	if !e.Capturing {
		if d := u.useDef[pos]; d != nil {
			return []*Definition{d}
		}
		return nil
	}
	var out []*Definition
	for _, d := range u.defs {
		if d.Var == e.Var && (d.Kind == DefUpdate || d.Kind == DefParameter) {
			out = append(out, d)
		}
	}
	return out
}

// Reaches reports whether d is a definition reaching the use at pos.
func (u *Unit) Reaches(d *Definition, pos Position) bool {
	e := pos.Event()
	if e.Kind != EventUse || e.Var != d.Var {
		return false
	}
	if e.Capturing {
		return d.Kind == DefUpdate || d.Kind == DefParameter
	}
	return u.useDef[pos] == d
}

// PhiInputs returns, for a phi definition, the definition reaching the exit
// of each predecessor block: exactly one input per predecessor edge. The
// inputs were validated at construction time; a predecessor with no
// resolvable definition fails BuildUnit.
func (u *Unit) PhiInputs(d *Definition) []PhiInput { return u.phiInputs[d] }

// UltimateDefinitions follows phi inputs transitively until non-phi
// definitions are found, visiting each definition at most once. A strongly
// connected component of pure phis with no non-phi origin legitimately
// yields an empty result.
func (u *Unit) UltimateDefinitions(d *Definition) []*Definition {
	if d.Kind != DefPhi {
		return []*Definition{d}
	}
	visited := make(map[*Definition]bool)
	var out []*Definition
	work := []*Definition{d}
	visited[d] = true
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		if cur.Kind != DefPhi {
			out = append(out, cur)
			continue
		}
		for _, in := range u.phiInputs[cur] {
			if !visited[in.Def] {
				visited[in.Def] = true
				work = append(work, in.Def)
			}
		}
	}
	sortDefs(out)
	return out
}

// DefUsePair reports whether some SSA definition whose ultimate non-phi
// origin is update reaches the use at pos. Multiple SSA definitions may
// collapse to the same origin through phi chains, so this relation is
// coarser than Reaches.
func (u *Unit) DefUsePair(update *Definition, pos Position) bool {
	if update.Kind == DefPhi {
		return false
	}
	e := pos.Event()
	if e.Kind != EventUse || e.Var != update.Var {
		return false
	}
	if e.Capturing {
		return update.Kind == DefUpdate || update.Kind == DefParameter
	}
	d := u.useDef[pos]
	if d == nil {
		return false
	}
	if d == update {
		return true
	}
	for _, ud := range u.UltimateDefinitions(d) {
		if ud == update {
			return true
		}
	}
	return false
}

// IsLiveAtEndOfBlock reports whether d is still the reaching definition of
// its variable at the exit of b and the variable remains live there. Callers
// use it to check def-validity across block merges without redoing
// resolution.
func (u *Unit) IsLiveAtEndOfBlock(d *Definition, b *Block) bool {
	return u.exit[d.Var][b.Index] == d && u.liveAtExit(d.Var, b)
}

// IsLoopCarried reports whether a phi sits at a natural loop header and its
// own value flows back into one of its inputs, i.e. the phi is reachable
// from itself through the phi-input relation.
func (u *Unit) IsLoopCarried(d *Definition) bool {
	if d.Kind != DefPhi || !u.loopHdr[d.Block] {
		return false
	}
	visited := make(map[*Definition]bool)
	work := make([]*Definition, 0, 4)
	for _, in := range u.phiInputs[d] {
		work = append(work, in.Def)
	}
	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]
		if cur == d {
			return true
		}
		if cur.Kind != DefPhi || visited[cur] {
			continue
		}
		visited[cur] = true
		for _, in := range u.phiInputs[cur] {
			work = append(work, in.Def)
		}
	}
	return false
}

func sortDefs(defs []*Definition) {
	// Insertion sort by arena id; the slices involved are small.
	for i := 1; i < len(defs); i++ {
		for j := i; j > 0 && defs[j-1].id > defs[j].id; j-- {
			defs[j-1], defs[j] = defs[j], defs[j-1]
		}
	}
}
