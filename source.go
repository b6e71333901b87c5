package ssaflow

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/ast/astutil"
	"golang.org/x/tools/go/cfg"
	"golang.org/x/tools/go/packages"
)

// Go source front-end. It loads packages, builds a CFG per function body
// with x/tools/go/cfg, and classifies every identifier occurrence as an
// update or a use of a locally scoped variable, producing one Graph per
// function or function literal for the engine to analyze.
//
// Names that SSA cannot soundly cover are excluded up front and surfaced as
// Incomplete markers rather than silently dropped: package-level variables,
// struct fields, address-taken locals, and locals written from inside a
// nested closure.

// LoadMode is the go/packages mode the front-end needs: syntax plus full
// type information.
const LoadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedTypes |
	packages.NeedSyntax |
	packages.NeedTypesInfo

// SourceUnit binds one function body to its CFG snapshot and, after Build,
// to its frozen SSA view.
type SourceUnit struct {
	Name     string
	Filename string
	Line     int

	Fset   *token.FileSet
	Info   *types.Info
	Syntax ast.Node // *ast.FuncDecl or *ast.FuncLit
	Body   *ast.BlockStmt

	Graph *Graph
	Unit  *Unit // nil until Build succeeds
	Err   error // construction failure for this unit, if any

	// Incomplete lists names excluded from SSA by design for this unit.
	Incomplete []Incomplete

	vars  []*types.Var         // index-aligned with Graph.Vars
	posOf map[*ast.Ident]Position // use-event position per identifier
}

// Build derives the unit's SSA view. The result is frozen; Build is not
// meant to be called twice.
func (su *SourceUnit) Build() error {
	u, err := BuildUnit(su.Graph)
	if err != nil {
		su.Err = err
		return err
	}
	su.Unit = u
	return nil
}

// VarIndex returns the engine index of a tracked variable object, or -1.
func (su *SourceUnit) VarIndex(obj *types.Var) int {
	for i, v := range su.vars {
		if v == obj {
			return i
		}
	}
	return -1
}

// UsePosition returns the engine position of a use identifier, if the
// identifier was classified as a tracked use.
func (su *SourceUnit) UsePosition(id *ast.Ident) (Position, bool) {
	p, ok := su.posOf[id]
	return p, ok
}

// LoadPackages loads the packages matching the given patterns and returns a
// source unit for every function body and function literal in them.
// Packages with type errors are rejected as a whole, mirroring the
// construction-failure contract: no partial analysis over broken input.
func LoadPackages(patterns ...string) ([]*SourceUnit, error) {
	return LoadPackagesDir("", patterns...)
}

// LoadPackagesDir is LoadPackages with an explicit working directory for the
// underlying build system queries.
func LoadPackagesDir(dir string, patterns ...string) ([]*SourceUnit, error) {
	conf := &packages.Config{Mode: LoadMode, Dir: dir}
	pkgs, err := packages.Load(conf, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages matched %v", patterns)
	}

	var msgs strings.Builder
	packages.Visit(pkgs, nil, func(pkg *packages.Package) {
		for _, e := range pkg.Errors {
			msgs.WriteString(e.Error() + "\n")
		}
	})
	if msgs.Len() > 0 {
		return nil, fmt.Errorf("packages contain errors:\n%s", msgs.String())
	}

	var units []*SourceUnit
	for _, pkg := range pkgs {
		units = append(units, UnitsFromPackage(pkg)...)
	}
	return units, nil
}

// UnitsFromPackage extracts source units from one loaded package.
func UnitsFromPackage(pkg *packages.Package) []*SourceUnit {
	var units []*SourceUnit
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			switch d := decl.(type) {
			case *ast.FuncDecl:
				if d.Body == nil {
					continue
				}
				name := pkg.Types.Name() + "." + d.Name.Name
				units = append(units, unitsForFunc(pkg, name, d, d.Body)...)
			case *ast.GenDecl:
				// Package-level `var f = func(...) {...}` literals.
				for _, spec := range d.Specs {
					vs, ok := spec.(*ast.ValueSpec)
					if !ok {
						continue
					}
					for i, val := range vs.Values {
						lit, ok := val.(*ast.FuncLit)
						if !ok || i >= len(vs.Names) {
							continue
						}
						name := pkg.Types.Name() + "." + vs.Names[i].Name
						units = append(units, unitsForFunc(pkg, name, lit, lit.Body)...)
					}
				}
			}
		}
	}
	return units
}

// unitsForFunc builds the unit for one function body plus one unit per
// nested function literal, named parent$1, parent$2, ... in source order.
func unitsForFunc(pkg *packages.Package, name string, syntax ast.Node, body *ast.BlockStmt) []*SourceUnit {
	units := []*SourceUnit{newSourceUnit(pkg, name, syntax, body)}
	n := 0
	ast.Inspect(body, func(x ast.Node) bool {
		if lit, ok := x.(*ast.FuncLit); ok {
			n++
			nested := fmt.Sprintf("%s$%d", name, n)
			units = append(units, unitsForFunc(pkg, nested, lit, lit.Body)...)
			return false
		}
		return true
	})
	return units
}

// mayReturn is the go/cfg call predicate: only the panic builtin is treated
// as non-returning.
func mayReturn(call *ast.CallExpr) bool {
	if id, ok := astutil.Unparen(call.Fun).(*ast.Ident); ok {
		return id.Name != "panic"
	}
	return true
}

func newSourceUnit(pkg *packages.Package, name string, syntax ast.Node, body *ast.BlockStmt) *SourceUnit {
	su := &SourceUnit{
		Name:   name,
		Fset:   pkg.Fset,
		Info:   pkg.TypesInfo,
		Syntax: syntax,
		Body:   body,
		posOf:  make(map[*ast.Ident]Position),
	}
	if pos := pkg.Fset.Position(syntax.Pos()); pos.IsValid() {
		su.Filename = pos.Filename
		su.Line = pos.Line
	}

	c := &collector{
		su:       su,
		info:     pkg.TypesInfo,
		pkgScope: pkg.Types.Scope(),
		gb:       NewGraphBuilder(name),
		varOf:    make(map[*types.Var]int),
		seen:     make(map[string]bool),
	}
	c.collectVars(syntax, body)
	c.collectDefTargets(body)
	c.buildGraph(body)
	su.Graph = c.gb.Graph()
	return su
}

// collector walks one function body and translates it into graph events.
type collector struct {
	su       *SourceUnit
	info     *types.Info
	pkgScope *types.Scope
	gb       *GraphBuilder
	varOf    map[*types.Var]int
	cur      *Block

	// defTargets maps bare identifier CFG nodes (range key/value, select
	// receive targets) to the statement defining them.
	defTargets map[*ast.Ident]ast.Node

	seen map[string]bool // dedupes Incomplete markers
}

// collectVars determines the tracked variable set: parameters, receiver and
// named results first, then locals in source order, minus the exclusions
// (address-taken or closure-written variables).
func (c *collector) collectVars(syntax ast.Node, body *ast.BlockStmt) {
	var ftype *ast.FuncType
	var recv *ast.FieldList
	switch f := syntax.(type) {
	case *ast.FuncDecl:
		ftype = f.Type
		recv = f.Recv
	case *ast.FuncLit:
		ftype = f.Type
	}

	type candidate struct {
		obj   *types.Var
		param bool
	}
	var cands []candidate
	inCands := make(map[*types.Var]bool)
	addCand := func(id *ast.Ident, param bool) {
		if id == nil || id.Name == "_" {
			return
		}
		obj, ok := c.info.Defs[id].(*types.Var)
		if !ok || inCands[obj] {
			return
		}
		inCands[obj] = true
		cands = append(cands, candidate{obj, param})
	}

	var fieldLists []*ast.FieldList
	if recv != nil {
		fieldLists = append(fieldLists, recv)
	}
	if ftype != nil {
		fieldLists = append(fieldLists, ftype.Params, ftype.Results)
	}
	for _, fl := range fieldLists {
		if fl == nil {
			continue
		}
		for _, field := range fl.List {
			for _, id := range field.Names {
				addCand(id, true)
			}
		}
	}

	// Locals declared directly in this body, not inside nested literals.
	var locals func(n ast.Node)
	locals = func(n ast.Node) {
		ast.Inspect(n, func(x ast.Node) bool {
			if _, ok := x.(*ast.FuncLit); ok {
				return false
			}
			if id, ok := x.(*ast.Ident); ok {
				addCand(id, false)
			}
			return true
		})
	}
	locals(body)

	// Exclusion scan: address-taken anywhere, or written from inside a
	// nested closure. Reads from closures mark the variable captured.
	escaped := make(map[*types.Var]bool)
	captured := make(map[*types.Var]bool)
	lookup := func(id *ast.Ident) *types.Var {
		if obj, ok := c.info.Uses[id].(*types.Var); ok && inCands[obj] {
			return obj
		}
		return nil
	}
	markWrite := func(e ast.Expr, inClosure bool) {
		if !inClosure {
			return
		}
		if id, ok := astutil.Unparen(e).(*ast.Ident); ok {
			if obj := lookup(id); obj != nil {
				escaped[obj] = true
			}
		}
	}
	var scan func(n ast.Node, inClosure bool)
	scan = func(n ast.Node, inClosure bool) {
		ast.Inspect(n, func(x ast.Node) bool {
			switch x := x.(type) {
			case *ast.FuncLit:
				scan(x.Body, true)
				return false
			case *ast.UnaryExpr:
				if x.Op == token.AND {
					if id, ok := astutil.Unparen(x.X).(*ast.Ident); ok {
						if obj := lookup(id); obj != nil {
							escaped[obj] = true
						}
					}
				}
			case *ast.AssignStmt:
				for _, l := range x.Lhs {
					markWrite(l, inClosure)
				}
			case *ast.IncDecStmt:
				markWrite(x.X, inClosure)
			case *ast.RangeStmt:
				markWrite(x.Key, inClosure)
				markWrite(x.Value, inClosure)
			case *ast.Ident:
				if inClosure {
					if obj := lookup(x); obj != nil {
						captured[obj] = true
					}
				}
			}
			return true
		})
	}
	scan(body, false)

	for _, cand := range cands {
		if escaped[cand.obj] {
			c.note(cand.obj.Name(), IncompleteEscaped, cand.obj.Pos())
			continue
		}
		var v int
		if cand.param {
			v = c.gb.Param(cand.obj.Name())
		} else {
			v = c.gb.Var(cand.obj.Name())
		}
		if captured[cand.obj] {
			c.gb.MarkCaptured(v)
		}
		c.varOf[cand.obj] = v
		c.su.vars = append(c.su.vars, cand.obj)
	}
}

// collectDefTargets records identifiers that go/cfg emits as bare expression
// nodes but which are definitions: range key/value bindings and select
// receive targets.
func (c *collector) collectDefTargets(body *ast.BlockStmt) {
	c.defTargets = make(map[*ast.Ident]ast.Node)
	ast.Inspect(body, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.RangeStmt:
			if id, ok := s.Key.(*ast.Ident); ok {
				c.defTargets[id] = s
			}
			if id, ok := s.Value.(*ast.Ident); ok {
				c.defTargets[id] = s
			}
		case *ast.SelectStmt:
			for _, clause := range s.Body.List {
				cc := clause.(*ast.CommClause)
				if as, ok := cc.Comm.(*ast.AssignStmt); ok && len(as.Lhs) > 0 {
					if id, ok := as.Lhs[0].(*ast.Ident); ok {
						c.defTargets[id] = as
					}
				}
			}
		}
		return true
	})
}

// buildGraph converts the go/cfg block structure into the engine's graph,
// dropping unreachable blocks and translating every node into events.
func (c *collector) buildGraph(body *ast.BlockStmt) {
	g := cfg.New(body, mayReturn)

	blocks := make(map[int32]*Block)
	for _, b := range g.Blocks {
		if b.Live {
			blocks[b.Index] = c.gb.Block()
		}
	}
	for _, b := range g.Blocks {
		if !b.Live {
			continue
		}
		for _, s := range b.Succs {
			c.gb.Edge(blocks[b.Index], blocks[s.Index])
		}
	}
	for _, b := range g.Blocks {
		if !b.Live {
			continue
		}
		c.cur = blocks[b.Index]
		for _, n := range b.Nodes {
			c.emitNode(n)
		}
	}
}

// emitNode translates one CFG node into def/use events in evaluation order:
// right-hand sides are read before left-hand sides are written.
func (c *collector) emitNode(n ast.Node) {
	switch s := n.(type) {
	case *ast.AssignStmt:
		for _, r := range s.Rhs {
			c.walkExpr(r)
		}
		compound := s.Tok != token.ASSIGN && s.Tok != token.DEFINE
		for _, l := range s.Lhs {
			id, ok := l.(*ast.Ident)
			if !ok {
				// Writes through a selector, index or pointer read their
				// base; they are not definitions of a tracked variable.
				c.walkExpr(l)
				continue
			}
			if compound {
				c.useIdent(id)
			}
			c.defIdent(id, s)
		}
	case *ast.IncDecStmt:
		if id, ok := s.X.(*ast.Ident); ok {
			c.useIdent(id)
			c.defIdent(id, s)
		} else {
			c.walkExpr(s.X)
		}
	case *ast.ValueSpec:
		for _, v := range s.Values {
			c.walkExpr(v)
		}
		for _, id := range s.Names {
			// A declaration without initializer still binds the zero value.
			c.defIdent(id, s)
		}
	case *ast.SendStmt:
		c.walkExpr(s.Value)
		c.walkExpr(s.Chan)
	case *ast.ReturnStmt:
		for _, r := range s.Results {
			c.walkExpr(r)
		}
	case *ast.ExprStmt:
		c.walkExpr(s.X)
	case *ast.GoStmt:
		c.walkExpr(s.Call)
	case *ast.DeferStmt:
		c.walkExpr(s.Call)
	case *ast.EmptyStmt, *ast.BadStmt:
		// nothing
	case ast.Expr:
		// Conditions, switch tags, case expressions, or a bare range/select
		// binding target (which is a definition).
		if id, ok := s.(*ast.Ident); ok {
			if stmt, isDef := c.defTargets[id]; isDef {
				c.defIdent(id, stmt)
				return
			}
		}
		c.walkExpr(s)
	}
}

// walkExpr emits use events for every tracked variable read inside e, in
// preorder. Function literals are not descended into; their references to
// this unit's variables become capturing uses at the literal's position.
func (c *collector) walkExpr(e ast.Expr) {
	if e == nil {
		return
	}
	ast.Inspect(e, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncLit:
			c.capturingUses(n)
			return false
		case *ast.Ident:
			c.useIdent(n)
		}
		return true
	})
}

// capturingUses records one flow-insensitive use event per read of a
// tracked variable inside a nested closure.
func (c *collector) capturingUses(lit *ast.FuncLit) {
	ast.Inspect(lit.Body, func(n ast.Node) bool {
		id, ok := n.(*ast.Ident)
		if !ok {
			return true
		}
		obj, ok := c.info.Uses[id].(*types.Var)
		if !ok {
			return true
		}
		if v, tracked := c.varOf[obj]; tracked {
			p := c.gb.CapturingUse(c.cur, v)
			p.Block.Events[p.Index].Syntax = id
			c.su.posOf[id] = p
		}
		return true
	})
}

func (c *collector) useIdent(id *ast.Ident) {
	if id.Name == "_" {
		return
	}
	obj, ok := c.info.Uses[id].(*types.Var)
	if !ok {
		return
	}
	if obj.IsField() {
		c.note(obj.Name(), IncompleteField, id.Pos())
		return
	}
	if v, tracked := c.varOf[obj]; tracked {
		p := c.gb.Use(c.cur, v)
		p.Block.Events[p.Index].Syntax = id
		c.su.posOf[id] = p
		return
	}
	if obj.Parent() == c.pkgScope {
		c.note(obj.Name(), IncompleteGlobal, id.Pos())
	}
	// Remaining cases are enclosing-scope variables of an outer unit or
	// locals excluded by the escape scan; both already accounted for.
}

// defIdent emits an update event for a write target. syn is the defining
// statement, kept for same-value propagation.
func (c *collector) defIdent(id *ast.Ident, syn ast.Node) {
	if id.Name == "_" {
		return
	}
	obj, ok := c.info.Defs[id].(*types.Var)
	if !ok {
		// Re-assignment (or the re-used half of a :=) resolves via Uses.
		obj, ok = c.info.Uses[id].(*types.Var)
	}
	if !ok {
		return
	}
	if v, tracked := c.varOf[obj]; tracked {
		p := c.gb.Def(c.cur, v)
		p.Block.Events[p.Index].Syntax = syn
		return
	}
	if obj.Parent() == c.pkgScope {
		c.note(obj.Name(), IncompleteGlobal, id.Pos())
	}
}

func (c *collector) note(name string, reason IncompleteReason, pos token.Pos) {
	key := fmt.Sprintf("%s/%d", name, reason)
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.su.Incomplete = append(c.su.Incomplete, Incomplete{Name: name, Reason: reason, Pos: pos})
}
