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

package inference

import (
	"go.uber.org/ptrperm/constraint"
	"go.uber.org/ptrperm/permission"
	"go.uber.org/ptrperm/pointsto"
)

// Conflict explains why a variable was denied UNIQUE.
type Conflict struct {
	// Partner is the live alias that may write or free, NoVar if the memory escaped instead.
	Partner constraint.VarID
	// Escaped is set when unknown code may hold an alias.
	Escaped bool
}

// mutating are the capabilities an alias must not have for a pointer to be unique.
const mutating = permission.Write | permission.Free

// Partners returns the placed variables pointing into the same object as v from a different
// location, in ID order.
func (r *Result) Partners(v constraint.VarID) []constraint.VarID {
	var out []constraint.VarID
	for _, w := range partners(r.arena.Var(v), r.byObject()) {
		out = append(out, w.ID)
	}
	return out
}

// byObject groups the placed variables by pointee object, in ID order.
func (r *Result) byObject() map[pointsto.ObjectID][]*constraint.Var {
	m := make(map[pointsto.ObjectID][]*constraint.Var)
	for _, v := range r.arena.All() {
		if v.Place != nil {
			m[v.PointeeObj] = append(m[v.PointeeObj], v)
		}
	}
	return m
}

func partners(v *constraint.Var, byObject map[pointsto.ObjectID][]*constraint.Var) []*constraint.Var {
	var out []*constraint.Var
	for _, w := range byObject[v.PointeeObj] {
		if w.ID != v.ID && w.Loc != v.Loc {
			out = append(out, w)
		}
	}
	return out
}

// mayOverlap returns true if v and w may be live at the same time. Pointers in memory or in
// statics have no known liveness; pointers local to different functions never are.
func mayOverlap(v, w *constraint.Var) bool {
	if v.IsMemory() || w.IsMemory() || v.IsStatic() || w.IsStatic() {
		return true
	}
	if v.Func != w.Func {
		return false
	}
	return v.Live.Overlaps(w.Live)
}

// ApplyUniqueness runs the uniqueness post-pass: UNIQUE is granted to every used pointer unless
// a partner that may be live at the same time may write or free (on either side), or the
// pointee escaped to unknown code. Pointers already holding UNIQUE reached the lattice top and
// are left alone. The relation is symmetric, so a conflicting pair loses UNIQUE on both sides.
func (r *Result) ApplyUniqueness(pts *pointsto.Result) {
	byObject := r.byObject()

	for _, v := range r.arena.All() {
		val := r.lattice[v.ID]
		if v.Place == nil || val == permission.Bottom || val.Has(permission.Unique) {
			continue
		}
		if pts.Escaped(v.PointeeObj) {
			r.conflicts[v.ID] = Conflict{Partner: constraint.NoVar, Escaped: true}
			continue
		}
		conflict := false
		for _, w := range partners(v, byObject) {
			if (val|r.lattice[w.ID])&mutating != 0 && mayOverlap(v, w) {
				r.conflicts[v.ID] = Conflict{Partner: w.ID}
				conflict = true
				break
			}
		}
		if !conflict {
			r.final[v.ID] = val.Join(permission.Unique)
		}
	}
}

// Conflict returns why v was denied UNIQUE by the post-pass.
func (r *Result) Conflict(v constraint.VarID) (Conflict, bool) {
	c, ok := r.conflicts[v]
	return c, ok
}
