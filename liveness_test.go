package ssaflow

import "testing"

func TestLivenessStraightLine(t *testing.T) {
	gb := NewGraphBuilder("straight")
	x := gb.Var("x")
	b0 := gb.Block()
	b1 := gb.Block()
	gb.Edge(b0, b1)
	gb.Def(b0, x)
	gb.Use(b1, x)

	u, err := BuildUnit(gb.Graph())
	if err != nil {
		t.Fatalf("BuildUnit: %v", err)
	}
	if u.LiveAtEntry(x, b0) {
		t.Error("x is defined before any use in b0, must not be live at entry")
	}
	if !u.LiveAtExit(x, b0) {
		t.Error("x is used in b1, must be live at exit of b0")
	}
	if !u.LiveAtEntry(x, b1) {
		t.Error("x is used first in b1, must be live at its entry")
	}
	if u.LiveAtExit(x, b1) {
		t.Error("nothing uses x after b1")
	}
}

func TestLivenessAroundLoop(t *testing.T) {
	gb := NewGraphBuilder("loop")
	x := gb.Var("x")
	b0 := gb.Block()
	b1 := gb.Block() // header
	b2 := gb.Block() // body
	b3 := gb.Block() // exit
	gb.Edge(b0, b1)
	gb.Edge(b1, b2)
	gb.Edge(b1, b3)
	gb.Edge(b2, b1)
	gb.Def(b0, x)
	gb.Use(b2, x)
	gb.Def(b2, x)

	u, err := BuildUnit(gb.Graph())
	if err != nil {
		t.Fatalf("BuildUnit: %v", err)
	}
	if !u.LiveAtEntry(x, b1) {
		t.Error("x flows around the loop, must be live at the header entry")
	}
	if !u.LiveAtExit(x, b2) {
		t.Error("x written in the body feeds the next iteration, must be live at the latch exit")
	}
	if u.LiveAtEntry(x, b3) {
		t.Error("no use of x after the loop, must be dead at the exit block")
	}
}

func TestLivenessKilledByRedefinition(t *testing.T) {
	gb := NewGraphBuilder("kill")
	x := gb.Var("x")
	b0 := gb.Block()
	b1 := gb.Block()
	b2 := gb.Block()
	gb.Edge(b0, b1)
	gb.Edge(b1, b2)
	gb.Def(b0, x)
	gb.Def(b1, x) // overwrites without reading
	gb.Use(b2, x)

	u, err := BuildUnit(gb.Graph())
	if err != nil {
		t.Fatalf("BuildUnit: %v", err)
	}
	if u.LiveAtEntry(x, b1) {
		t.Error("b1 redefines x before any use, so the incoming value is dead")
	}
	if !u.LiveAtExit(x, b1) {
		t.Error("the b1 value of x is read in b2")
	}
}
