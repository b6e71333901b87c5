package ssaflow

// Classical backward liveness over the CFG, restricted to the unit's
// locally scoped variables. It is computed per variable with a worklist
// fixpoint: the lattice is boolean and the CFG finite, so the iteration
// terminates, and results are cached for the unit's lifetime. Liveness is
// used only to bound phi placement; a variable defined once and never
// re-assigned still participates fully, because closures complicate
// apparently single-definition variables.

type varLiveness struct {
	entry []bool // live at block entry, indexed by block index
	exit  []bool // live at block exit
}

// liveAtEntry reports whether v may be read before being overwritten on some
// path starting at the entry of b.
func (u *Unit) liveAtEntry(v int, b *Block) bool {
	return u.liveness(v).entry[b.Index]
}

// liveAtExit reports whether v may be read before being overwritten on some
// path starting at the exit of b.
func (u *Unit) liveAtExit(v int, b *Block) bool {
	return u.liveness(v).exit[b.Index]
}

func (u *Unit) liveness(v int) *varLiveness {
	if lv := u.live[v]; lv != nil {
		return lv
	}
	lv := u.computeLiveness(v)
	u.live[v] = lv
	return lv
}

func (u *Unit) computeLiveness(v int) *varLiveness {
	g := u.Graph
	lv := &varLiveness{
		entry: make([]bool, len(g.Blocks)),
		exit:  make([]bool, len(g.Blocks)),
	}

	// Local facts: does b read v before writing it, does b write v at all.
	genFirst := make([]bool, len(g.Blocks))
	kills := make([]bool, len(g.Blocks))
	for _, b := range g.Blocks {
		if rt := u.ranks[v][b.Index]; rt != nil {
			genFirst[b.Index] = rt.firstIsUse()
			kills[b.Index] = rt.lastDef > 0
		}
	}

	// Backward worklist: when a block's entry fact changes, its predecessors'
	// exit facts may change too.
	work := make([]*Block, len(g.Blocks))
	copy(work, g.Blocks)
	inWork := make([]bool, len(g.Blocks))
	for i := range inWork {
		inWork[i] = true
	}
	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		inWork[b.Index] = false

		exit := false
		for _, s := range b.Succs {
			if lv.entry[s.Index] {
				exit = true
				break
			}
		}
		lv.exit[b.Index] = exit

		entry := genFirst[b.Index] || (exit && !kills[b.Index])
		if entry != lv.entry[b.Index] {
			lv.entry[b.Index] = entry
			for _, p := range b.Preds {
				if !inWork[p.Index] {
					inWork[p.Index] = true
					work = append(work, p)
				}
			}
		}
	}
	return lv
}
