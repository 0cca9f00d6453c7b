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
	"fmt"
	"strings"

	"go.uber.org/ptrperm/config"
	"go.uber.org/ptrperm/constraint"
	"go.uber.org/ptrperm/permission"
)

// ArrivalKind says how a capability first arrived at a variable.
type ArrivalKind uint8

// The arrival kinds.
const (
	NotArrived ArrivalKind = iota
	ArrivedConstant
	ArrivedPinned
	ArrivedPropagated
)

// Arrival records the first delivery of one capability to one variable. Since a capability
// arrives only once, following From always leads to a strictly earlier arrival, and the chain
// ends at a constant or a pin.
type Arrival struct {
	Kind ArrivalKind
	// Pin indexes the pins of the constraint set for ArrivedPinned, -1 otherwise.
	Pin int
	// Constraint indexes the constraints for ArrivedPropagated, -1 otherwise.
	Constraint int
	// From is the variable the capability came from.
	From constraint.VarID
}

// Result is the outcome of the inference: the lattice fixpoint, the final values after the
// uniqueness post-pass, and the explanations of both.
type Result struct {
	arena     *constraint.Arena
	set       *constraint.Set
	lattice   []permission.Set
	final     []permission.Set
	arrivals  [][permission.Height]Arrival
	conflicts map[constraint.VarID]Conflict
}

// Arena returns the variables the result is about.
func (r *Result) Arena() *constraint.Arena { return r.arena }

// Fixpoint returns the value of v at the lattice fixpoint, before the uniqueness post-pass.
func (r *Result) Fixpoint(v constraint.VarID) permission.Set { return r.lattice[v] }

// Value returns the final value of v.
func (r *Result) Value(v constraint.VarID) permission.Set { return r.final[v] }

// Arrival returns how the capability bit first arrived at v.
func (r *Result) Arrival(v constraint.VarID, bit permission.Set) Arrival {
	for i, b := range permission.All {
		if b == bit {
			return r.arrivals[v][i]
		}
	}
	return Arrival{Pin: -1, Constraint: -1, From: constraint.NoVar}
}

// Step is one link of an explanation chain.
type Step struct {
	Var     constraint.VarID
	Arrival Arrival
}

// Explain returns the chain of arrivals that delivered bit to v, starting at v and ending at a
// constant or a pin. It is empty if v does not hold bit at the fixpoint.
func (r *Result) Explain(v constraint.VarID, bit permission.Set) []Step {
	var chain []Step
	for len(chain) < config.MaxExplanationDepth {
		a := r.Arrival(v, bit)
		if a.Kind == NotArrived {
			break
		}
		chain = append(chain, Step{Var: v, Arrival: a})
		if a.Kind != ArrivedPropagated {
			break
		}
		v = a.From
	}
	return chain
}

// RootPin returns the pin at the root of the explanation of bit on v, if it arrived from one.
func (r *Result) RootPin(v constraint.VarID, bit permission.Set) (constraint.Pin, bool) {
	chain := r.Explain(v, bit)
	if len(chain) == 0 {
		return constraint.Pin{}, false
	}
	last := chain[len(chain)-1].Arrival
	if last.Kind != ArrivedPinned {
		return constraint.Pin{}, false
	}
	return r.set.Pins[last.Pin], true
}

// TopReached returns the root pin if v was forced to the lattice top by a pin. Only pins
// deliver UNIQUE during the lattice phase, so its arrival identifies them.
func (r *Result) TopReached(v constraint.VarID) (constraint.Pin, bool) {
	if !r.lattice[v].Has(permission.Unique) {
		return constraint.Pin{}, false
	}
	return r.RootPin(v, permission.Unique)
}

// Source returns the origin of the requirement or pin that introduced bit into the explanation
// of v.
func (r *Result) Source(v constraint.VarID, bit permission.Set) (constraint.Origin, bool) {
	chain := r.Explain(v, bit)
	for i := len(chain) - 1; i >= 0; i-- {
		switch a := chain[i].Arrival; a.Kind {
		case ArrivedPinned:
			return r.set.Pins[a.Pin].Origin, true
		case ArrivedPropagated:
			return r.set.Constraints[a.Constraint].Origin, true
		}
	}
	return constraint.Origin{}, false
}

// ExplainString renders the explanation of bit on v, one link per line.
func (r *Result) ExplainString(v constraint.VarID, bit permission.Set) string {
	var b strings.Builder
	for _, s := range r.Explain(v, bit) {
		path := r.arena.Var(s.Var).Path
		switch s.Arrival.Kind {
		case ArrivedConstant:
			fmt.Fprintf(&b, "%s is required", path)
		case ArrivedPinned:
			p := r.set.Pins[s.Arrival.Pin]
			fmt.Fprintf(&b, "%s is pinned to %v (%s) by %s", path, p.Perms, p.Code, p.Origin)
		case ArrivedPropagated:
			c := r.set.Constraints[s.Arrival.Constraint]
			fmt.Fprintf(&b, "%s has %v from %s, via %s", path, bit, r.arena.Var(s.Arrival.From).Path, c.Origin)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
