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

// Package place provides canonical identifiers for the memory locations of a function: locals,
// statics, and the fields, elements and dereferences reachable from them. The places of one
// function form a forest, where the projections of a place are its children.
package place

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/ptrperm/ir"
)

// StaticScope is the scope prefix of places rooted at a static.
const StaticScope = "static"

// ID identifies a place within its Table.
type ID int

// NoID is the parent of a base place.
const NoID ID = -1

// Kind is the kind of the last step of a place.
type Kind uint8

// The place kinds.
const (
	KindLocal Kind = iota
	KindStatic
	KindDeref
	KindField
	KindIndex
)

// Place is one node of the place forest.
type Place struct {
	ID     ID
	Parent ID
	Kind   Kind
	// Local is the local index of a KindLocal base.
	Local int
	// Name is the local, static or field name.
	Name string
	// Index is the constant index of a KindIndex step, nil if dynamic.
	Index *int64
	// Type is the resolved type of the location.
	Type *ir.Type
	// Path is the canonical textual identity, e.g. `main::(*p).next`.
	Path string
	// Expr is Path without its scope prefix.
	Expr string
	// Memory is set when the location is reached through a pointer, i.e., it is not storage
	// owned by a local or a static.
	Memory bool
	// IsStatic is set when the base of the place is a static.
	IsStatic bool
}

// IsPointer returns true if the location holds a raw pointer.
func (p *Place) IsPointer() bool { return p.Type.IsPointer() }

func (p *Place) String() string { return p.Path }

// Table is the place forest of a single function.
type Table struct {
	fn       string
	places   []*Place
	byPath   map[string]ID
	children map[ID][]ID
}

// NewTable returns an empty table for function fn.
func NewTable(fn string) *Table {
	return &Table{fn: fn, byPath: make(map[string]ID), children: make(map[ID][]ID)}
}

// Func returns the function the table belongs to.
func (t *Table) Func() string { return t.fn }

// Len returns the number of interned places.
func (t *Table) Len() int { return len(t.places) }

// Get returns the place with the given ID.
func (t *Table) Get(id ID) *Place { return t.places[id] }

// All returns every interned place in ID order, which is also an order where parents precede
// their children.
func (t *Table) All() []*Place { return t.places }

// Lookup finds a place by its canonical path.
func (t *Table) Lookup(path string) (ID, bool) {
	id, ok := t.byPath[path]
	return id, ok
}

// Children returns the interned children of id in interning order.
func (t *Table) Children(id ID) []ID { return t.children[id] }

// Root returns the base place of id.
func (t *Table) Root(id ID) ID {
	for t.places[id].Parent != NoID {
		id = t.places[id].Parent
	}
	return id
}

// Innermost returns the pointer place dereferenced by the last deref (or pointer index) step
// on the chain from id to its root, and false if the chain has no such step.
func (t *Table) Innermost(id ID) (ID, bool) {
	for p := t.places[id]; p.Parent != NoID; p = t.places[p.Parent] {
		if parent := t.places[p.Parent]; p.Kind == KindDeref || (p.Kind == KindIndex && parent.IsPointer()) {
			return parent.ID, true
		}
	}
	return NoID, false
}

// Dereferenced returns every pointer place dereferenced on the chain from id to its root,
// outermost (closest to the root) first.
func (t *Table) Dereferenced(id ID) []ID {
	var out []ID
	for p := t.places[id]; p.Parent != NoID; p = t.places[p.Parent] {
		if parent := t.places[p.Parent]; p.Kind == KindDeref || (p.Kind == KindIndex && parent.IsPointer()) {
			out = append(out, parent.ID)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Intern returns the ID of the place pl of function fn, interning it and all of its ancestors
// on first use.
func (t *Table) Intern(prog *ir.Program, fn *ir.Function, pl *ir.Place) (ID, error) {
	typ, err := prog.BaseType(fn, pl)
	if err != nil {
		return NoID, err
	}
	var id ID
	if pl.Static != "" {
		id = t.base(KindStatic, pl.Static, 0, typ)
	} else {
		id = t.base(KindLocal, fn.LocalName(pl.Local), pl.Local, typ)
	}
	for i, proj := range pl.Proj {
		if typ, err = prog.ProjectType(typ, proj); err != nil {
			return NoID, fmt.Errorf("projection %d of %s: %w", i, t.places[id].Path, err)
		}
		id = t.child(id, proj, typ)
	}
	return id, nil
}

// Child returns the child of parent reached by proj, interning it if needed.
func (t *Table) Child(prog *ir.Program, parent ID, proj ir.Projection) (ID, error) {
	typ, err := prog.ProjectType(t.places[parent].Type, proj)
	if err != nil {
		return NoID, err
	}
	return t.child(parent, proj, typ), nil
}

func (t *Table) base(kind Kind, name string, local int, typ *ir.Type) ID {
	scope := t.fn
	if kind == KindStatic {
		scope = StaticScope
	}
	path := scope + "::" + name
	if id, ok := t.byPath[path]; ok {
		return id
	}
	return t.add(&Place{
		Parent:   NoID,
		Kind:     kind,
		Local:    local,
		Name:     name,
		Type:     typ,
		Path:     path,
		Expr:     name,
		IsStatic: kind == KindStatic,
	})
}

func (t *Table) child(parent ID, proj ir.Projection, typ *ir.Type) ID {
	pp := t.places[parent]
	expr := Step(pp.Expr, proj)
	path := pp.Path[:len(pp.Path)-len(pp.Expr)] + expr
	if id, ok := t.byPath[path]; ok {
		return id
	}
	p := &Place{
		Parent:   parent,
		Name:     proj.Field,
		Index:    proj.Index,
		Type:     typ,
		Path:     path,
		Expr:     expr,
		Memory:   pp.Memory,
		IsStatic: pp.IsStatic,
	}
	switch proj.Kind {
	case ir.ProjDeref:
		p.Kind = KindDeref
		p.Memory = true
	case ir.ProjField:
		p.Kind = KindField
	case ir.ProjIndex:
		p.Kind = KindIndex
		if pp.IsPointer() {
			p.Memory = true
		}
	}
	id := t.add(p)
	t.children[parent] = append(t.children[parent], id)
	return id
}

func (t *Table) add(p *Place) ID {
	p.ID = ID(len(t.places))
	t.places = append(t.places, p)
	t.byPath[p.Path] = p.ID
	return p.ID
}

// Step renders the expression reached from expr by applying proj.
func Step(expr string, proj ir.Projection) string {
	switch proj.Kind {
	case ir.ProjDeref:
		return "(*" + expr + ")"
	case ir.ProjField:
		return expr + "." + proj.Field
	case ir.ProjIndex:
		if proj.Index == nil {
			return expr + "[*]"
		}
		return expr + "[" + strconv.FormatInt(*proj.Index, 10) + "]"
	}
	return expr + "?"
}

// Path is the parsed form of a canonical place identity.
type Path struct {
	// Scope is the function name, or StaticScope.
	Scope string
	// Base is the local or static name.
	Base string
	Proj []ir.Projection
}

// String renders the canonical identity.
func (p Path) String() string {
	expr := p.Base
	for _, proj := range p.Proj {
		expr = Step(expr, proj)
	}
	return p.Scope + "::" + expr
}

// Parse parses a canonical place identity such as `main::(*p).next[*]`.
func Parse(s string) (Path, error) {
	i := strings.LastIndex(s, "::")
	if i <= 0 {
		return Path{}, fmt.Errorf("place %q has no scope", s)
	}
	base, proj, err := parseExpr(s[i+2:])
	if err != nil {
		return Path{}, fmt.Errorf("place %q: %w", s, err)
	}
	return Path{Scope: s[:i], Base: base, Proj: proj}, nil
}

func parseExpr(expr string) (string, []ir.Projection, error) {
	var (
		base string
		proj []ir.Projection
		rest string
	)
	if strings.HasPrefix(expr, "(*") {
		depth, end := 0, -1
		for i, r := range expr {
			switch r {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				end = i
				break
			}
		}
		if end < 0 {
			return "", nil, fmt.Errorf("unbalanced parentheses in %q", expr)
		}
		b, inner, err := parseExpr(expr[2:end])
		if err != nil {
			return "", nil, err
		}
		base, proj, rest = b, append(inner, ir.Projection{Kind: ir.ProjDeref}), expr[end+1:]
	} else {
		end := strings.IndexAny(expr, ".[")
		if end < 0 {
			end = len(expr)
		}
		base, rest = expr[:end], expr[end:]
		if base == "" {
			return "", nil, fmt.Errorf("missing base in %q", expr)
		}
	}

	for rest != "" {
		switch rest[0] {
		case '.':
			end := strings.IndexAny(rest[1:], ".[")
			if end < 0 {
				end = len(rest) - 1
			}
			name := rest[1 : end+1]
			if name == "" {
				return "", nil, fmt.Errorf("empty field name in %q", expr)
			}
			proj = append(proj, ir.Projection{Kind: ir.ProjField, Field: name})
			rest = rest[end+1:]
		case '[':
			end := strings.IndexByte(rest, ']')
			if end < 0 {
				return "", nil, fmt.Errorf("unterminated index in %q", expr)
			}
			p := ir.Projection{Kind: ir.ProjIndex}
			if idx := rest[1:end]; idx != "*" {
				n, err := strconv.ParseInt(idx, 10, 64)
				if err != nil {
					return "", nil, fmt.Errorf("bad index %q: %w", idx, err)
				}
				p.Index = &n
			}
			proj = append(proj, p)
			rest = rest[end+1:]
		default:
			return "", nil, fmt.Errorf("unexpected %q in %q", rest[0], expr)
		}
	}
	return base, proj, nil
}
