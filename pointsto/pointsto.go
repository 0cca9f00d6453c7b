//  Copyright (c) 2026 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pointsto implements a flow-insensitive, field-sensitive points-to analysis by
// unification over the flow graphs of all analyzed functions.
//
// Every memory location is a cell. A cell may have a pointee cell (the cell any pointer stored
// in it points to), named field cells and a single element cell shared by all array elements.
// Operations that may create an alias unify the cells involved, so aliasing is never
// under-approximated. Cells that are parts of one another (a struct and its fields) belong to
// the same object; objects are what allocations, frees and function boundaries are about.
package pointsto

import (
	"slices"

	"go.uber.org/ptrperm/flowgraph"
	"go.uber.org/ptrperm/ir"
	"go.uber.org/ptrperm/place"
)

// CellID identifies a cell. After unification only representatives are meaningful, which
// every exported query returns.
type CellID int

// NoCell marks a missing pointee or element.
const NoCell CellID = -1

type cell struct {
	parent  CellID
	pointee CellID
	elem    CellID
	fields  map[string]CellID
	attrs   Attrs
}

// Cause records an operation that handed memory to code the analysis cannot see.
type Cause struct {
	Func   string
	Line   int
	Kind   flowgraph.EdgeKind
	Detail string
}

// Analysis accumulates the unification of all flow graphs. It is not safe for concurrent use;
// Freeze produces an immutable Result for the later, parallel stages.
type Analysis struct {
	cells []cell
	// objParent is a second union-find over cells grouping them into objects.
	objParent []CellID
	// locs maps place paths to their location cell.
	locs     map[string]CellID
	pointers map[string]bool
	external CellID
	causes   []Cause
}

// New returns an empty analysis with the external cell standing for all memory reachable by
// unknown code.
func New() *Analysis {
	a := &Analysis{locs: make(map[string]CellID), pointers: make(map[string]bool)}
	a.external = a.newCell(Attrs{External: true})
	a.cells[a.external].pointee = a.external
	return a
}

func (a *Analysis) newCell(attrs Attrs) CellID {
	id := CellID(len(a.cells))
	a.cells = append(a.cells, cell{parent: id, pointee: NoCell, elem: NoCell, attrs: attrs})
	a.objParent = append(a.objParent, id)
	return id
}

func (a *Analysis) find(c CellID) CellID {
	root := c
	for a.cells[root].parent != root {
		root = a.cells[root].parent
	}
	for a.cells[c].parent != root {
		next := a.cells[c].parent
		a.cells[c].parent = root
		c = next
	}
	return root
}

func (a *Analysis) objFind(c CellID) CellID {
	root := c
	for a.objParent[root] != root {
		root = a.objParent[root]
	}
	for a.objParent[c] != root {
		next := a.objParent[c]
		a.objParent[c] = root
		c = next
	}
	return root
}

func (a *Analysis) objUnion(x, y CellID) {
	x, y = a.objFind(x), a.objFind(y)
	switch {
	case x < y:
		a.objParent[y] = x
	case y < x:
		a.objParent[x] = y
	}
}

// unify merges the cells x and y, and recursively their pointees, fields and elements. The
// smaller cell ID becomes the representative.
func (a *Analysis) unify(x, y CellID) {
	work := [][2]CellID{{x, y}}
	for len(work) > 0 {
		pair := work[len(work)-1]
		work = work[:len(work)-1]

		x, y := a.find(pair[0]), a.find(pair[1])
		if x == y {
			continue
		}
		if y < x {
			x, y = y, x
		}
		a.objUnion(x, y)

		cx, cy := &a.cells[x], &a.cells[y]
		cy.parent = x
		cx.attrs = cx.attrs.merge(cy.attrs)

		switch {
		case cx.pointee == NoCell:
			cx.pointee = cy.pointee
		case cy.pointee != NoCell:
			work = append(work, [2]CellID{cx.pointee, cy.pointee})
		}
		switch {
		case cx.elem == NoCell:
			cx.elem = cy.elem
		case cy.elem != NoCell:
			work = append(work, [2]CellID{cx.elem, cy.elem})
		}

		names := make([]string, 0, len(cy.fields))
		for name := range cy.fields {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			f := cy.fields[name]
			if g, ok := cx.fields[name]; ok {
				work = append(work, [2]CellID{g, f})
				continue
			}
			if cx.fields == nil {
				cx.fields = make(map[string]CellID)
			}
			cx.fields[name] = f
		}
		cy.fields = nil
	}
}

// pointee returns the cell pointed to by pointers stored in c, creating it on first use.
func (a *Analysis) pointee(c CellID) CellID {
	c = a.find(c)
	if p := a.cells[c].pointee; p != NoCell {
		return a.find(p)
	}
	p := a.newCell(Attrs{})
	a.cells[c].pointee = p
	return p
}

func (a *Analysis) field(c CellID, name string) CellID {
	c = a.find(c)
	if f, ok := a.cells[c].fields[name]; ok {
		return a.find(f)
	}
	f := a.newCell(Attrs{})
	if a.cells[c].fields == nil {
		a.cells[c].fields = make(map[string]CellID)
	}
	a.cells[c].fields[name] = f
	a.objUnion(c, f)
	return f
}

func (a *Analysis) elem(c CellID) CellID {
	c = a.find(c)
	if e := a.cells[c].elem; e != NoCell {
		return a.find(e)
	}
	e := a.newCell(Attrs{})
	a.cells[c].elem = e
	a.objUnion(c, e)
	return e
}

func (a *Analysis) base(scope, name string) CellID {
	key := scope + "::" + name
	if c, ok := a.locs[key]; ok {
		return a.find(c)
	}
	attrs := Attrs{Static: true}
	if scope != place.StaticScope {
		attrs = Attrs{Locals: []string{scope}}
	}
	c := a.newCell(attrs)
	a.locs[key] = c
	return c
}

// locate returns the location cell of a place of tab.
func (a *Analysis) locate(tab *place.Table, id place.ID) CellID {
	p := tab.Get(id)
	if c, ok := a.locs[p.Path]; ok {
		return a.find(c)
	}
	var c CellID
	switch p.Kind {
	case place.KindLocal:
		return a.base(tab.Func(), p.Name)
	case place.KindStatic:
		return a.base(place.StaticScope, p.Name)
	case place.KindDeref:
		c = a.pointee(a.locate(tab, p.Parent))
	case place.KindField:
		c = a.field(a.locate(tab, p.Parent), p.Name)
	case place.KindIndex:
		parent := a.locate(tab, p.Parent)
		if tab.Get(p.Parent).IsPointer() {
			// Elements reached through a pointer share the cell of the pointee.
			c = a.pointee(parent)
		} else {
			c = a.elem(parent)
		}
	}
	a.locs[p.Path] = c
	return c
}

// locatePath returns the location cell of a place given by its path. The path may only
// dereference through Deref projections; indexes are array indexes.
func (a *Analysis) locatePath(path place.Path) CellID {
	c := a.base(path.Scope, path.Base)
	expr := path.Base
	for _, proj := range path.Proj {
		expr = place.Step(expr, proj)
		key := path.Scope + "::" + expr
		if known, ok := a.locs[key]; ok {
			c = a.find(known)
			continue
		}
		switch proj.Kind {
		case ir.ProjDeref:
			c = a.pointee(c)
		case ir.ProjField:
			c = a.field(c, proj.Field)
		default:
			c = a.elem(c)
		}
		a.locs[key] = c
	}
	return c
}

// AddGraph unifies the cells related by the edges of g.
func (a *Analysis) AddGraph(g *flowgraph.Graph) {
	tab := g.Places
	for _, p := range tab.All() {
		c := a.locate(tab, p.ID)
		if p.IsPointer() {
			a.pointers[p.Path] = true
			a.pointee(c)
		}
	}
	ptr := func(id place.ID) CellID { return a.pointee(a.locate(tab, id)) }

	for _, e := range g.Edges {
		switch e.Kind {
		case flowgraph.Assign, flowgraph.Cast:
			a.unify(ptr(e.Dst), ptr(e.Src))
		case flowgraph.Offset:
			if e.Dst != place.NoID {
				a.unify(ptr(e.Dst), ptr(e.Src))
			}
		case flowgraph.AddrOf:
			a.unify(ptr(e.Dst), a.locate(tab, e.Src))
		case flowgraph.Alloc:
			a.unify(ptr(e.Dst), a.newCell(Attrs{Heap: true}))
		case flowgraph.CallArg:
			a.unify(ptr(e.Src), a.formal(e.Formal))
		case flowgraph.CallReturn:
			a.unify(ptr(e.Dst), a.formal(e.Formal))
		case flowgraph.UnknownCall, flowgraph.Unsupported:
			for _, id := range e.Places {
				if tab.Get(id).IsPointer() {
					a.unify(ptr(id), a.external)
				}
			}
			if len(e.Places) > 0 {
				a.causes = append(a.causes, Cause{Func: g.Func, Line: e.Line, Kind: e.Kind, Detail: e.Detail})
			}
		}
	}
}

// formal returns the pointee cell of the formal place path of a callee.
func (a *Analysis) formal(path place.Path) CellID {
	a.pointers[path.String()] = true
	return a.pointee(a.locatePath(path))
}
