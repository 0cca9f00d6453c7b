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

// Package inference implements the fixpoint solver computing the least permission assignment
// satisfying all constraints, and the uniqueness post-pass deciding the UNIQUE capability from
// the points-to facts.
package inference

import (
	"go.uber.org/ptrperm/config"
	"go.uber.org/ptrperm/constraint"
	"go.uber.org/ptrperm/permission"
	"golang.org/x/tools/container/intsets"
)

// Observer is notified of every growth of a variable during the lattice phase.
type Observer func(v constraint.VarID, old, new permission.Set)

// Engine is the structure responsible for running the inference. It owns the constraint graph
// and the worklist for the duration of Run; nothing else may observe or mutate permission
// variables meanwhile.
type Engine struct {
	arena    *constraint.Arena
	set      *constraint.Set
	observer Observer
	log      *config.LogGroup
}

// NewEngine constructs an inference engine over a fully generated constraint set.
func NewEngine(arena *constraint.Arena, set *constraint.Set) *Engine {
	return &Engine{arena: arena, set: set, log: config.Discard()}
}

// Observe registers an observer for variable growths.
func (e *Engine) Observe(o Observer) *Engine {
	e.observer = o
	return e
}

// Log sets the logger used to trace growths.
func (e *Engine) Log(l *config.LogGroup) *Engine {
	e.log = l
	return e
}

// Run solves the constraints to their least fixpoint. Every variable starts at Bottom, except
// the constant variables and the pinned ones. The worklist always pops the smallest variable
// whose value changed and joins its value into every variable it flows to. Run terminates
// because each variable grows at most permission.Height times.
func (e *Engine) Run() *Result {
	n := e.arena.Len()
	r := &Result{
		arena:     e.arena,
		set:       e.set,
		lattice:   make([]permission.Set, n),
		arrivals:  make([][permission.Height]Arrival, n),
		conflicts: make(map[constraint.VarID]Conflict),
	}

	// out lists, per variable, the constraints along which its value flows.
	out := make([][]int, n)
	for i, c := range e.set.Constraints {
		out[c.Left] = append(out[c.Left], i)
		if c.Kind == constraint.Equal {
			out[c.Right] = append(out[c.Right], i)
		}
	}

	var work intsets.Sparse
	for _, v := range e.arena.All() {
		if v.IsConst() {
			r.grow(v.ID, v.Const, Arrival{Kind: ArrivedConstant, Pin: -1, Constraint: -1, From: v.ID}, nil)
			work.Insert(int(v.ID))
		}
	}
	for i, p := range e.set.Pins {
		if r.grow(p.Var, p.Perms, Arrival{Kind: ArrivedPinned, Pin: i, Constraint: -1, From: p.Var}, e.observer) {
			work.Insert(int(p.Var))
		}
	}

	steps := 0
	var x int
	for work.TakeMin(&x) {
		src := constraint.VarID(x)
		for _, ci := range out[src] {
			c := e.set.Constraints[ci]
			dst := c.Right
			if c.Kind == constraint.Equal && c.Right == src {
				dst = c.Left
			}
			if r.grow(dst, r.lattice[src], Arrival{Kind: ArrivedPropagated, Pin: -1, Constraint: ci, From: src}, e.observer) {
				steps++
				e.log.Tracef("v%d (%s) grew to %v along %v", dst, e.arena.Var(dst).Path, r.lattice[dst], c)
				work.Insert(int(dst))
			}
		}
	}
	e.log.Debugf("fixpoint reached after %d growths over %d variables", steps, n)

	r.final = make([]permission.Set, n)
	copy(r.final, r.lattice)
	return r
}

// grow joins perms into v, recording how every new capability arrived. It returns true if v
// grew.
func (r *Result) grow(v constraint.VarID, perms permission.Set, how Arrival, observer Observer) bool {
	old := r.lattice[v]
	added := perms.Without(old)
	if added == permission.Bottom {
		return false
	}
	r.lattice[v] = old.Join(added)
	for i, bit := range permission.All {
		if added.Has(bit) {
			r.arrivals[v][i] = how
		}
	}
	if observer != nil {
		observer(v, old, r.lattice[v])
	}
	return true
}
