package ssaflow

import "fmt"

// Reaching-definition resolution. Within a block the rank tables answer
// "nearest definition before this use" directly. When no definition precedes
// a use in its own block, resolution walks the dominator tree upward from
// the block's immediate dominator: the definition reaching the end of a
// block B is B's last write if it has one, otherwise whatever reaches B's
// entry (a phi, the parameter binding, or the exit of B's own immediate
// dominator). Because SSA definitions dominate their uses, the tree walk
// replaces path-sensitive reachability over the general graph.
//
// All of this runs once, inside BuildUnit. resolveAll resolves every
// non-capturing use and every phi predecessor edge, then freezes the memo
// tables; query-time methods only read them.

// resolveAll populates the exit memo, the per-use resolution table, the
// per-definition use lists and the phi input lists. Any use or predecessor
// edge that resolves to nothing is an input-contract violation and aborts
// the unit.
func (u *Unit) resolveAll() error {
	g := u.Graph
	u.exit = make([][]*Definition, len(g.Vars))
	u.exitSet = make([][]bool, len(g.Vars))
	for v := range g.Vars {
		u.exit[v] = make([]*Definition, len(g.Blocks))
		u.exitSet[v] = make([]bool, len(g.Blocks))
	}

	// Freeze the exit relation for every (variable, block) pair.
	for v := range g.Vars {
		for _, b := range g.Blocks {
			u.reachingAtExit(v, b)
		}
	}

	// Phi inputs: exactly one reaching definition per predecessor edge.
	for _, d := range u.defs {
		if d.Kind != DefPhi {
			continue
		}
		inputs := make([]PhiInput, 0, len(d.Block.Preds))
		for _, p := range d.Block.Preds {
			in := u.exit[d.Var][p.Index]
			if in == nil {
				return &InconsistencyError{
					Unit: g.Name,
					Reason: fmt.Sprintf("no definition of %s reaches the exit of %s, predecessor of %s",
						g.VarName(d.Var), p, d),
				}
			}
			inputs = append(inputs, PhiInput{Pred: p, Def: in})
		}
		u.phiInputs[d] = inputs
	}

	// Use resolution and def-use lists, in block/event order for stable
	// output. Capturing uses bypass resolution: every parameter/update
	// definition of a captured variable reaches every capturing use.
	for _, b := range g.Blocks {
		for i, e := range b.Events {
			if e.Kind != EventUse {
				continue
			}
			pos := Position{Block: b, Index: i}
			if e.Capturing {
				for _, d := range u.defs {
					if d.Var == e.Var && (d.Kind == DefUpdate || d.Kind == DefParameter) {
						u.uses[d] = append(u.uses[d], pos)
					}
				}
				continue
			}
			d := u.resolveUse(pos)
			if d == nil {
				return &InconsistencyError{
					Unit: g.Name,
					Reason: fmt.Sprintf("use of %s at %s is not dominated by any definition",
						g.VarName(e.Var), pos),
				}
			}
			u.useDef[pos] = d
			u.uses[d] = append(u.uses[d], pos)
		}
	}
	return nil
}

// resolveUse returns the unique definition reaching a non-capturing use, or
// nil when no definition dominates it.
func (u *Unit) resolveUse(pos Position) *Definition {
	e := pos.Event()
	rt := u.ranks[e.Var][pos.Block.Index]
	if r := rt.defBefore(rt.rankOf[pos.Index]); r > 0 {
		return u.updates[pos.Block.Index][rt.eventAt(r)]
	}
	return u.reachingAtEntry(e.Var, pos.Block)
}

// reachingAtEntry returns the definition occupying the block-entry slot for
// v at b: the phi if one was placed, the parameter binding at the entry
// block, or whatever reaches the exit of b's immediate dominator.
func (u *Unit) reachingAtEntry(v int, b *Block) *Definition {
	if phi := u.phis[v][b.Index]; phi != nil {
		return phi
	}
	idom := b.Idom()
	if idom == nil {
		// Entry block: only the implicit parameter binding defines v here.
		return u.params[v]
	}
	return u.reachingAtExit(v, idom)
}

// reachingAtExit returns the definition reaching the end of b: the last
// write inside b if it has one, otherwise the definition reaching b's
// entry. Memoized per (variable, block); nil (no definition on this path)
// is a valid cached result.
func (u *Unit) reachingAtExit(v int, b *Block) *Definition {
	if u.exitSet[v][b.Index] {
		return u.exit[v][b.Index]
	}
	var d *Definition
	if rt := u.ranks[v][b.Index]; rt != nil && rt.lastDef > 0 {
		d = u.updates[b.Index][rt.eventAt(rt.lastDef)]
	} else {
		d = u.reachingAtEntry(v, b)
	}
	u.exit[v][b.Index] = d
	u.exitSet[v][b.Index] = true
	return d
}
