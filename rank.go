package ssaflow

// Intra-block position ranking. For each (variable, block) pair we number
// exactly the subsequence of event indices at which the variable is defined
// or used, in original order. Rank 0 is reserved for the block-entry
// definition slot (a phi, or the implicit parameter binding at the entry
// block); concrete events get ranks 1..n.
//
// A precomputed nearest-preceding-definition table answers "last def before
// this use" in O(1) without scanning irrelevant positions.

type rankTable struct {
	// events[r-1] is the event index holding rank r.
	events []int
	kinds  []EventKind

	// prevDef[r-1] is the greatest definition rank strictly below rank r;
	// 0 means the block-entry slot.
	prevDef []int

	// lastDef is the greatest concrete definition rank, 0 if the block
	// contains no write of the variable.
	lastDef int

	// rankOf maps an event index back to its rank.
	rankOf map[int]int
}

// buildRanks constructs the per-variable rank tables for every block.
// ranks[v][b] is nil when v has no event in b.
func buildRanks(g *Graph) [][]*rankTable {
	ranks := make([][]*rankTable, len(g.Vars))
	for v := range ranks {
		ranks[v] = make([]*rankTable, len(g.Blocks))
	}
	for _, b := range g.Blocks {
		for i, e := range b.Events {
			rt := ranks[e.Var][b.Index]
			if rt == nil {
				rt = &rankTable{rankOf: make(map[int]int)}
				ranks[e.Var][b.Index] = rt
			}
			r := len(rt.events) + 1
			rt.events = append(rt.events, i)
			rt.kinds = append(rt.kinds, e.Kind)
			rt.prevDef = append(rt.prevDef, rt.lastDef)
			if e.Kind == EventDef {
				rt.lastDef = r
			}
			rt.rankOf[i] = r
		}
	}
	return ranks
}

// firstIsUse reports whether the variable's first relevant event in the
// block reads it before any write. Used by the liveness analysis.
func (rt *rankTable) firstIsUse() bool {
	return len(rt.kinds) > 0 && rt.kinds[0] == EventUse
}

// defBefore returns the nearest definition rank strictly preceding rank r,
// with 0 standing for the block-entry slot.
func (rt *rankTable) defBefore(r int) int {
	return rt.prevDef[r-1]
}

// eventAt returns the event index holding rank r (r >= 1).
func (rt *rankTable) eventAt(r int) int {
	return rt.events[r-1]
}
