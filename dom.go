package ssaflow

// Dominator tree construction. We use the iterative algorithm from Cooper,
// Harvey, Kennedy, "A Simple, Fast Dominance Algorithm" (Software Practice
// and Experience 2001): an idom fixpoint over reverse postorder, followed by
// pre/post numbering of the dominator tree so dominance queries are O(1).
//
// The dominance frontier is built with the runner loop from Figure 5 of the
// same paper, as used by the Cytron et al. phi-placement construction.

// domInfo carries a block's dominance information.
type domInfo struct {
	idom      *Block
	children  []*Block
	pre, post int32
}

// Idom returns the immediate dominator of b: its parent in the dominator
// tree. The entry block has no parent and returns nil.
func (b *Block) Idom() *Block {
	if b.dom.idom == b {
		return nil
	}
	return b.dom.idom
}

// Dominees returns the blocks b immediately dominates.
func (b *Block) Dominees() []*Block { return b.dom.children }

// Dominates reports whether b dominates c. Every block dominates itself.
func (b *Block) Dominates(c *Block) bool {
	return b.dom.pre <= c.dom.pre && c.dom.post <= b.dom.post
}

// StrictlyDominates reports whether b dominates c and b != c.
func (b *Block) StrictlyDominates(c *Block) bool {
	return b != c && b.Dominates(c)
}

// Frontier returns the dominance frontier of b.
func (b *Block) Frontier() []*Block { return b.df }

// buildDomTree computes the dominator tree of g.
// Precondition: all blocks are reachable from the entry (Graph.validate).
func buildDomTree(g *Graph) {
	for _, b := range g.Blocks {
		b.dom = domInfo{}
		b.df = nil
	}

	// Postorder DFS from the entry; order is then reversed in place.
	n := len(g.Blocks)
	order := make([]*Block, 0, n)
	postnum := make([]int, n)
	seen := make([]bool, n)
	var dfs func(b *Block)
	dfs = func(b *Block) {
		if seen[b.Index] {
			return
		}
		seen[b.Index] = true
		for _, s := range b.Succs {
			dfs(s)
		}
		postnum[b.Index] = len(order)
		order = append(order, b)
	}
	dfs(g.Entry())

	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}

	idoms := make([]*Block, n)
	idoms[g.Entry().Index] = g.Entry()

	for changed := true; changed; {
		changed = false
		// All nodes in reverse postorder, except the entry.
		for _, b := range order[1:] {
			var newIdom *Block
			for _, p := range b.Preds {
				if idoms[p.Index] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				// Walk the two fingers up to their common ancestor.
				finger1, finger2 := p, newIdom
				for finger1 != finger2 {
					for postnum[finger1.Index] < postnum[finger2.Index] {
						finger1 = idoms[finger1.Index]
					}
					for postnum[finger2.Index] < postnum[finger1.Index] {
						finger2 = idoms[finger2.Index]
					}
				}
				newIdom = finger1
			}
			if idoms[b.Index] != newIdom {
				idoms[b.Index] = newIdom
				changed = true
			}
		}
	}

	for i, idom := range idoms {
		b := g.Blocks[i]
		b.dom.idom = idom
		if idom != nil && idom.Index != i {
			idom.dom.children = append(idom.dom.children, b)
		}
	}

	numberDomTree(g.Entry(), 0, 0)
}

// numberDomTree assigns pre- and post-order numbers of a depth-first
// traversal of the dominator tree, enabling constant-time dominance checks.
func numberDomTree(b *Block, pre, post int32) (int32, int32) {
	b.dom.pre = pre
	pre++
	for _, child := range b.dom.children {
		pre, post = numberDomTree(child, pre, post)
	}
	b.dom.post = post
	post++
	return pre, post
}

// buildDomFrontier fills in the dominance frontier of every block: for each
// join point b, every block on a predecessor's idom chain that does not
// strictly dominate b has b in its frontier.
func buildDomFrontier(g *Graph) {
	for _, b := range g.Blocks {
		if len(b.Preds) < 2 {
			continue
		}
		for _, p := range b.Preds {
			runner := p
			for runner != b.dom.idom {
				// Chains from earlier predecessors converge on the idom walk;
				// once b is already the last frontier entry, the rest of the
				// chain has it too.
				if n := len(runner.df); n > 0 && runner.df[n-1] == b {
					break
				}
				runner.df = append(runner.df, b)
				runner = runner.dom.idom
			}
		}
	}
}

// backEdges enumerates (latch, header) pairs where the edge latch->header
// closes a natural loop, i.e. the header dominates the latch. Used to report
// loop-carried phis.
func backEdges(g *Graph) [][2]*Block {
	var edges [][2]*Block
	for _, b := range g.Blocks {
		for _, s := range b.Succs {
			if s.Dominates(b) {
				edges = append(edges, [2]*Block{b, s})
			}
		}
	}
	return edges
}
