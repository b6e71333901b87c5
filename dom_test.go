package ssaflow

import "testing"

// diamondGraph builds:
//
//	b0 -> b1, b2
//	b1 -> b3
//	b2 -> b3
func diamondGraph() (*Graph, []*Block) {
	gb := NewGraphBuilder("diamond")
	b0 := gb.Block()
	b1 := gb.Block()
	b2 := gb.Block()
	b3 := gb.Block()
	gb.Edge(b0, b1)
	gb.Edge(b0, b2)
	gb.Edge(b1, b3)
	gb.Edge(b2, b3)
	return gb.Graph(), []*Block{b0, b1, b2, b3}
}

// loopGraph builds a natural loop:
//
//	b0 -> b1 (header)
//	b1 -> b2 (body), b3 (exit)
//	b2 -> b1 (latch)
func loopGraph() (*Graph, []*Block) {
	gb := NewGraphBuilder("loop")
	b0 := gb.Block()
	b1 := gb.Block()
	b2 := gb.Block()
	b3 := gb.Block()
	gb.Edge(b0, b1)
	gb.Edge(b1, b2)
	gb.Edge(b1, b3)
	gb.Edge(b2, b1)
	return gb.Graph(), []*Block{b0, b1, b2, b3}
}

func TestDomTreeDiamond(t *testing.T) {
	g, b := diamondGraph()
	buildDomTree(g)

	if b[0].Idom() != nil {
		t.Fatalf("entry idom = %v, want nil", b[0].Idom())
	}
	for _, i := range []int{1, 2, 3} {
		if b[i].Idom() != b[0] {
			t.Errorf("idom(b%d) = %v, want b0", i, b[i].Idom())
		}
	}
	if !b[0].Dominates(b[3]) {
		t.Error("b0 should dominate b3")
	}
	if b[1].Dominates(b[3]) {
		t.Error("b1 must not dominate b3: b3 is reachable through b2")
	}
	if !b[1].Dominates(b[1]) {
		t.Error("dominance is reflexive")
	}
	if b[1].StrictlyDominates(b[1]) {
		t.Error("strict dominance is irreflexive")
	}
}

func TestDomTreeLoop(t *testing.T) {
	g, b := loopGraph()
	buildDomTree(g)

	if b[1].Idom() != b[0] {
		t.Errorf("idom(b1) = %v, want b0", b[1].Idom())
	}
	if b[2].Idom() != b[1] {
		t.Errorf("idom(b2) = %v, want b1", b[2].Idom())
	}
	if b[3].Idom() != b[1] {
		t.Errorf("idom(b3) = %v, want b1", b[3].Idom())
	}

	edges := backEdges(g)
	if len(edges) != 1 {
		t.Fatalf("backEdges = %v, want exactly one", edges)
	}
	if edges[0][0] != b[2] || edges[0][1] != b[1] {
		t.Errorf("back edge = (%v, %v), want (b2, b1)", edges[0][0], edges[0][1])
	}
}

func TestDomFrontierDiamond(t *testing.T) {
	g, b := diamondGraph()
	buildDomTree(g)
	buildDomFrontier(g)

	if got := b[1].Frontier(); len(got) != 1 || got[0] != b[3] {
		t.Errorf("DF(b1) = %v, want [b3]", got)
	}
	if got := b[2].Frontier(); len(got) != 1 || got[0] != b[3] {
		t.Errorf("DF(b2) = %v, want [b3]", got)
	}
	if got := b[0].Frontier(); len(got) != 0 {
		t.Errorf("DF(b0) = %v, want empty", got)
	}
}

func TestDomFrontierLoopHeader(t *testing.T) {
	g, b := loopGraph()
	buildDomTree(g)
	buildDomFrontier(g)

	// The header has two predecessors, so the latch and the header itself
	// carry it in their frontiers.
	if got := b[2].Frontier(); len(got) != 1 || got[0] != b[1] {
		t.Errorf("DF(b2) = %v, want [b1]", got)
	}
	found := false
	for _, f := range b[1].Frontier() {
		if f == b[1] {
			found = true
		}
	}
	if !found {
		t.Errorf("DF(b1) = %v, want to contain b1 itself", b[1].Frontier())
	}
}

// TestDomFrontierNoDuplicates joins three predecessors where one block lies
// on two predecessors' idom chains; the frontier must still list the join
// once.
func TestDomFrontierNoDuplicates(t *testing.T) {
	gb := NewGraphBuilder("three-way-join")
	b0 := gb.Block()
	b1 := gb.Block()
	b2 := gb.Block()
	b3 := gb.Block()
	b4 := gb.Block()
	gb.Edge(b0, b1)
	gb.Edge(b0, b4)
	gb.Edge(b1, b2)
	gb.Edge(b1, b3)
	gb.Edge(b2, b4)
	gb.Edge(b3, b4)
	g := gb.Graph()
	buildDomTree(g)
	buildDomFrontier(g)

	// b1 dominates both b2 and b3, so it sits on both of their chains
	// toward the join.
	if got := b1.Frontier(); len(got) != 1 || got[0] != b4 {
		t.Errorf("DF(b1) = %v, want [b4] exactly once", got)
	}
	if got := b2.Frontier(); len(got) != 1 || got[0] != b4 {
		t.Errorf("DF(b2) = %v, want [b4]", got)
	}
	if got := b3.Frontier(); len(got) != 1 || got[0] != b4 {
		t.Errorf("DF(b3) = %v, want [b4]", got)
	}
}

// TestDominatesAgainstDataflow cross-checks the tree-based Dominates against
// a naive iterative dominator dataflow on an irregular graph.
func TestDominatesAgainstDataflow(t *testing.T) {
	gb := NewGraphBuilder("irregular")
	n := 9
	b := make([]*Block, n)
	for i := range b {
		b[i] = gb.Block()
	}
	edges := [][2]int{
		{0, 1}, {0, 2},
		{1, 3}, {2, 3},
		{3, 4}, {3, 5},
		{4, 6}, {5, 6},
		{6, 3}, // outer loop
		{6, 7},
		{7, 8}, {2, 8},
	}
	for _, e := range edges {
		gb.Edge(b[e[0]], b[e[1]])
	}
	g := gb.Graph()
	buildDomTree(g)

	// Naive all-blocks fixpoint: dom(entry) = {entry};
	// dom(b) = {b} ∪ intersection of dom(p) over preds.
	dom := make([][]bool, n)
	for i := range dom {
		dom[i] = make([]bool, n)
		if i == 0 {
			dom[i][0] = true
		} else {
			for j := range dom[i] {
				dom[i][j] = true
			}
		}
	}
	for changed := true; changed; {
		changed = false
		for i := 1; i < n; i++ {
			next := make([]bool, n)
			for j := range next {
				next[j] = true
			}
			for _, p := range b[i].Preds {
				for j := range next {
					next[j] = next[j] && dom[p.Index][j]
				}
			}
			next[i] = true
			for j := range next {
				if next[j] != dom[i][j] {
					dom[i] = next
					changed = true
					break
				}
			}
		}
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			want := dom[j][i]
			if got := b[i].Dominates(b[j]); got != want {
				t.Errorf("Dominates(b%d, b%d) = %t, dataflow says %t", i, j, got, want)
			}
		}
	}
}
