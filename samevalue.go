package ssaflow

import (
	"go/ast"
	"go/token"
	"go/types"
)

// Same-value equivalence closure: a conservative, sound-for-copy-propagation
// relation between expressions and SSA definitions. An expression has the
// same value as a definition if it is a use reached by it, the right-hand
// side of its defining update, or either of those wrapped in
// parenthesizations or value-preserving conversions, possibly through a
// chain of simple assignments (x = y; z = x). The closure never crosses
// operators that change value: arithmetic, calls, conversions between
// distinct underlying types.
//
// Expression structure is owned by the Go front-end, so the closure lives on
// SourceUnit rather than on the abstract engine facade.

// SameValue reports whether expr is provably the same value as the SSA
// definition d at every evaluation. It requires a built unit.
func (su *SourceUnit) SameValue(d *Definition, expr ast.Expr) bool {
	if su.Unit == nil || d == nil || expr == nil {
		return false
	}
	e := su.unwrap(expr)
	for _, cd := range su.valueChain(d) {
		if id, ok := e.(*ast.Ident); ok {
			if pos, tracked := su.posOf[id]; tracked {
				ev := pos.Event()
				if ev.Kind == EventUse && !ev.Capturing && su.Unit.ReachingDef(pos) == cd {
					return true
				}
			}
		}
		if rhs := su.defRHS(cd); rhs != nil && su.unwrap(rhs) == e {
			return true
		}
	}
	return false
}

// valueChain returns d plus every definition reached by following simple
// single-identifier assignments backward: for x = y, y's unique reaching
// definition joins x's chain. Phis are not followed; a merge does not
// preserve value provenance.
func (su *SourceUnit) valueChain(d *Definition) []*Definition {
	seen := map[*Definition]bool{d: true}
	chain := []*Definition{d}
	for i := 0; i < len(chain); i++ {
		rhs := su.defRHS(chain[i])
		if rhs == nil {
			continue
		}
		id, ok := su.unwrap(rhs).(*ast.Ident)
		if !ok {
			continue
		}
		pos, tracked := su.posOf[id]
		if !tracked || pos.Event().Capturing {
			continue
		}
		if next := su.Unit.ReachingDef(pos); next != nil && !seen[next] {
			seen[next] = true
			chain = append(chain, next)
		}
	}
	return chain
}

// defRHS returns the right-hand side expression of an update definition when
// the defining statement is a plain one-to-one assignment or declaration.
// Compound assignments, increments and range bindings do not propagate a
// value and yield nil.
func (su *SourceUnit) defRHS(d *Definition) ast.Expr {
	if d.Kind != DefUpdate {
		return nil
	}
	obj := su.vars[d.Var]
	switch s := d.Pos().Event().Syntax.(type) {
	case *ast.AssignStmt:
		if s.Tok != token.ASSIGN && s.Tok != token.DEFINE {
			return nil
		}
		if len(s.Lhs) != len(s.Rhs) {
			return nil
		}
		for i, l := range s.Lhs {
			if id, ok := l.(*ast.Ident); ok && su.identObj(id) == obj {
				return s.Rhs[i]
			}
		}
	case *ast.ValueSpec:
		if len(s.Names) != len(s.Values) {
			return nil
		}
		for i, id := range s.Names {
			if su.identObj(id) == obj {
				return s.Values[i]
			}
		}
	}
	return nil
}

func (su *SourceUnit) identObj(id *ast.Ident) *types.Var {
	if obj, ok := su.Info.Defs[id].(*types.Var); ok {
		return obj
	}
	if obj, ok := su.Info.Uses[id].(*types.Var); ok {
		return obj
	}
	return nil
}

// unwrap strips parenthesizations and value-preserving conversions: T(v) is
// transparent only when T and v's type share an identical underlying type.
func (su *SourceUnit) unwrap(e ast.Expr) ast.Expr {
	for {
		switch x := e.(type) {
		case *ast.ParenExpr:
			e = x.X
		case *ast.CallExpr:
			if len(x.Args) != 1 {
				return e
			}
			tv, ok := su.Info.Types[x.Fun]
			if !ok || !tv.IsType() {
				return e
			}
			to := su.Info.TypeOf(x)
			from := su.Info.TypeOf(x.Args[0])
			if to == nil || from == nil || !types.Identical(to.Underlying(), from.Underlying()) {
				return e
			}
			e = x.Args[0]
		default:
			return e
		}
	}
}
