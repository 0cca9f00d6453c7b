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

package pointsto

import (
	"slices"
	"strings"

	"golang.org/x/tools/container/intsets"
)

// Attrs describes what storage a cell or object may be.
type Attrs struct {
	// Locals lists, sorted, the functions whose locals may be the storage.
	Locals   []string
	Heap     bool
	Static   bool
	External bool
}

func (a Attrs) merge(o Attrs) Attrs {
	out := Attrs{
		Heap:     a.Heap || o.Heap,
		Static:   a.Static || o.Static,
		External: a.External || o.External,
	}
	if len(a.Locals)+len(o.Locals) > 0 {
		out.Locals = append(slices.Clone(a.Locals), o.Locals...)
		slices.Sort(out.Locals)
		out.Locals = slices.Compact(out.Locals)
	}
	return out
}

// HasLocal returns true if the storage may be a local of fn.
func (a Attrs) HasLocal(fn string) bool {
	_, ok := slices.BinarySearch(a.Locals, fn)
	return ok
}

// HeapOnly returns true if the storage is known to be heap allocations made by analyzed code.
func (a Attrs) HeapOnly() bool {
	return a.Heap && !a.Static && !a.External && len(a.Locals) == 0
}

func (a Attrs) String() string {
	var parts []string
	for _, fn := range a.Locals {
		parts = append(parts, "local("+fn+")")
	}
	if a.Heap {
		parts = append(parts, "heap")
	}
	if a.Static {
		parts = append(parts, "static")
	}
	if a.External {
		parts = append(parts, "external")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// ObjectID identifies an object: a maximal group of cells contained in one another.
type ObjectID int

// Result is the frozen outcome of the unification. It is immutable and safe for concurrent use.
type Result struct {
	loc      map[string]CellID
	pointee  map[string]CellID
	object   map[CellID]ObjectID
	attrs    map[ObjectID]Attrs
	succs    map[ObjectID][]ObjectID
	external ObjectID
	escaped  intsets.Sparse
	causes   []Cause
}

// Freeze snapshots the analysis. The analysis must not be used afterwards.
func (a *Analysis) Freeze() *Result {
	r := &Result{
		loc:     make(map[string]CellID, len(a.locs)),
		pointee: make(map[string]CellID, len(a.pointers)),
		object:  make(map[CellID]ObjectID),
		attrs:   make(map[ObjectID]Attrs),
		succs:   make(map[ObjectID][]ObjectID),
		causes:  a.causes,
	}

	for i := range a.cells {
		c := CellID(i)
		if a.find(c) != c {
			continue
		}
		obj := ObjectID(a.objFind(c))
		r.object[c] = obj
		r.attrs[obj] = r.attrs[obj].merge(a.cells[c].attrs)
	}
	for c, obj := range r.object {
		if p := a.cells[c].pointee; p != NoCell {
			r.succs[obj] = append(r.succs[obj], r.object[a.find(p)])
		}
	}
	for obj, succs := range r.succs {
		slices.Sort(succs)
		r.succs[obj] = slices.Compact(succs)
	}

	for path, c := range a.locs {
		r.loc[path] = a.find(c)
	}
	for path := range a.pointers {
		if p := a.cells[r.loc[path]].pointee; p != NoCell {
			r.pointee[path] = a.find(p)
		}
	}

	r.external = r.object[a.find(a.external)]
	r.escaped.Copy(r.Reachable(r.external))
	return r
}

// Location returns the cell of the place with the given canonical path.
func (r *Result) Location(path string) (CellID, bool) {
	c, ok := r.loc[path]
	return c, ok
}

// Pointee returns the cell the pointer place with the given path points to.
func (r *Result) Pointee(path string) (CellID, bool) {
	c, ok := r.pointee[path]
	return c, ok
}

// Object returns the object of a cell.
func (r *Result) Object(c CellID) ObjectID { return r.object[c] }

// PointeeObject returns the object the pointer place with the given path points into.
func (r *Result) PointeeObject(path string) (ObjectID, bool) {
	c, ok := r.pointee[path]
	if !ok {
		return 0, false
	}
	return r.object[c], true
}

// Attrs returns the storage attributes of an object.
func (r *Result) Attrs(obj ObjectID) Attrs { return r.attrs[obj] }

// External returns the object standing for all memory reachable by unknown code.
func (r *Result) External() ObjectID { return r.external }

// Escaped returns true if unknown code may reach obj.
func (r *Result) Escaped(obj ObjectID) bool { return r.escaped.Has(int(obj)) }

// Causes returns the operations that handed memory to unknown code, in the order they were
// added.
func (r *Result) Causes() []Cause { return r.causes }

// Reachable returns the objects reachable from obj (obj included) by following the pointers
// stored in objects.
func (r *Result) Reachable(obj ObjectID) *intsets.Sparse {
	var seen, work intsets.Sparse
	seen.Insert(int(obj))
	work.Insert(int(obj))
	var x int
	for work.TakeMin(&x) {
		for _, succ := range r.succs[ObjectID(x)] {
			if seen.Insert(int(succ)) {
				work.Insert(int(succ))
			}
		}
	}
	return &seen
}
