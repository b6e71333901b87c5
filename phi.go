package ssaflow

// Phi placement via the iterated dominance frontier (Cytron et al. 1991),
// pruned by liveness: a merge definition for v is synthesized at the head of
// block b only if v is live at b's entry and a definition of v (a direct
// update, the parameter binding, or another phi) reaches b's frontier
// predecessor set. The worklist below computes the least such fixpoint, so
// phis are never created for dead merges.

// phiBlocks returns the set of blocks requiring a phi for v, as a dense
// boolean slice indexed by block index.
func (u *Unit) phiBlocks(v int) []bool {
	g := u.Graph
	hasPhi := make([]bool, len(g.Blocks))

	// Seed with the blocks containing a concrete definition of v. The
	// parameter binding counts as a definition at the entry block.
	var work []*Block
	onWork := make([]bool, len(g.Blocks))
	push := func(b *Block) {
		if !onWork[b.Index] {
			onWork[b.Index] = true
			work = append(work, b)
		}
	}
	for _, b := range g.Blocks {
		if rt := u.ranks[v][b.Index]; rt != nil && rt.lastDef > 0 {
			push(b)
		}
	}
	if g.Vars[v].Param {
		push(g.Entry())
	}

	// Iterate the dominance frontier; a freshly placed phi is itself a
	// definition and extends the frontier closure.
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, y := range b.df {
			if hasPhi[y.Index] || !u.liveAtEntry(v, y) {
				continue
			}
			hasPhi[y.Index] = true
			push(y)
		}
	}
	return hasPhi
}
