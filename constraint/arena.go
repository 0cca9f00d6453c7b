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

package constraint

import (
	"fmt"

	"go.uber.org/ptrperm/flowgraph"
	"go.uber.org/ptrperm/permission"
	"go.uber.org/ptrperm/place"
	"go.uber.org/ptrperm/pointsto"
)

// VarID is the dense index of a permission variable in its Arena.
type VarID int

// NoVar is the absent variable.
const NoVar VarID = -1

// Var is a permission variable. Every pointer-typed place of an analyzed function has one, the
// pointer places of statics have one shared by all functions, and a few constant variables
// encode requirements.
type Var struct {
	ID VarID
	// Path is the canonical place identity, or the capability name of a constant variable.
	Path string
	// Func is the function whose place the variable stands for, empty for statics and constants.
	Func string
	// Place is the place the variable stands for. It is nil for constants and for formal-only
	// variables: parameter or return leaves of a callee that its body never mentions.
	Place *place.Place
	// Const is the fixed value of a constant variable, Bottom otherwise.
	Const permission.Set
	// Live is the liveness interval of the place within Func.
	Live flowgraph.Interval

	// Loc is the cell of the location holding the pointer.
	Loc pointsto.CellID
	// LocObj is the object holding the pointer.
	LocObj pointsto.ObjectID
	// PointeeObj is the object the pointer points into.
	PointeeObj pointsto.ObjectID
}

// IsConst returns true for constant variables.
func (v *Var) IsConst() bool { return v.Const != permission.Bottom }

// IsFormalOnly returns true for variables without a place.
func (v *Var) IsFormalOnly() bool { return v.Place == nil && !v.IsConst() }

// IsStatic returns true if the pointer is stored in, or reached through, a static.
func (v *Var) IsStatic() bool { return v.Place != nil && v.Place.IsStatic }

// IsMemory returns true if the pointer is stored in memory reached through another pointer.
func (v *Var) IsMemory() bool { return v.Place != nil && v.Place.Memory }

func (v *Var) String() string { return fmt.Sprintf("v%d(%s)", v.ID, v.Path) }

// Arena holds every permission variable. Variables are allocated sequentially between the
// parallel stages; afterwards the arena is read-only and safe for concurrent use.
type Arena struct {
	vars   []*Var
	byPath map[string]VarID
	consts [permission.Height]VarID
}

// NewArena returns an arena holding only the constant variables, one per capability.
func NewArena() *Arena {
	a := &Arena{byPath: make(map[string]VarID)}
	for i, bit := range permission.All {
		id := VarID(len(a.vars))
		a.vars = append(a.vars, &Var{ID: id, Path: bit.String(), Const: bit})
		a.consts[i] = id
	}
	return a
}

// Const returns the constant variable of a single capability.
func (a *Arena) Const(bit permission.Set) VarID {
	for i, b := range permission.All {
		if b == bit {
			return a.consts[i]
		}
	}
	panic(fmt.Sprintf("no constant variable for %v", bit))
}

// Len returns the number of variables.
func (a *Arena) Len() int { return len(a.vars) }

// Var returns the variable with the given ID.
func (a *Arena) Var(id VarID) *Var { return a.vars[id] }

// All returns every variable in ID order.
func (a *Arena) All() []*Var { return a.vars }

// Lookup finds the variable of a canonical place identity.
func (a *Arena) Lookup(path string) (VarID, bool) {
	id, ok := a.byPath[path]
	return id, ok
}

// Of returns the variable of a place of g.
func (a *Arena) Of(g *flowgraph.Graph, id place.ID) (VarID, bool) {
	return a.Lookup(g.Places.Get(id).Path)
}

// Add allocates a variable that is not derived from a flow graph, e.g. in hand-built
// constraint graphs. It returns the existing variable if the path is known.
func (a *Arena) Add(v *Var) VarID {
	if id, ok := a.byPath[v.Path]; ok {
		return id
	}
	v.ID = VarID(len(a.vars))
	a.vars = append(a.vars, v)
	a.byPath[v.Path] = v.ID
	return v.ID
}

func (a *Arena) alloc(v *Var, pts *pointsto.Result) VarID {
	v.ID = VarID(len(a.vars))
	if c, ok := pts.Location(v.Path); ok {
		v.Loc, v.LocObj = c, pts.Object(c)
	}
	if obj, ok := pts.PointeeObject(v.Path); ok {
		v.PointeeObj = obj
	}
	a.vars = append(a.vars, v)
	a.byPath[v.Path] = v.ID
	return v.ID
}

// AddGraph allocates a variable for every pointer place of g. Static places get a single
// variable shared by every function.
func (a *Arena) AddGraph(g *flowgraph.Graph, pts *pointsto.Result) {
	for _, p := range g.Pointers() {
		if _, ok := a.byPath[p.Path]; ok {
			continue
		}
		v := &Var{Path: p.Path, Func: g.Func, Place: p, Live: g.Interval(p.ID)}
		if p.IsStatic {
			v.Func = ""
		}
		a.alloc(v, pts)
	}
}

// AddFormals allocates the formal-only variables for the callee places g connects to. It must
// run after AddGraph was called for every graph.
func (a *Arena) AddFormals(g *flowgraph.Graph, pts *pointsto.Result) {
	for _, e := range g.Edges {
		if e.Kind != flowgraph.CallArg && e.Kind != flowgraph.CallReturn {
			continue
		}
		path := e.Formal.String()
		if _, ok := a.byPath[path]; ok {
			continue
		}
		a.alloc(&Var{Path: path, Func: e.Formal.Scope}, pts)
	}
}
