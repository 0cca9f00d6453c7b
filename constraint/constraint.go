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

// Package constraint turns flow graphs into subset and equality constraints between
// permission variables, plus the pins fixing variables that the analysis cannot reason about.
package constraint

import (
	"fmt"

	"go.uber.org/ptrperm/diagnostic"
	"go.uber.org/ptrperm/permission"
)

// Kind is the relation a constraint imposes.
type Kind uint8

const (
	// Subset is `Left ⊑ Right`: every capability of Left is a capability of Right.
	Subset Kind = iota
	// Equal is `Left = Right`.
	Equal
)

func (k Kind) String() string {
	if k == Equal {
		return "="
	}
	return "⊑"
}

// Origin locates what generated a constraint or pin.
type Origin struct {
	Func string
	Line int
	// Why describes the operation, e.g. "load" or "same location".
	Why string
}

func (o Origin) String() string {
	switch {
	case o.Func == "":
		return o.Why
	case o.Line > 0:
		return fmt.Sprintf("%s:%d: %s", o.Func, o.Line, o.Why)
	default:
		return fmt.Sprintf("%s: %s", o.Func, o.Why)
	}
}

// Constraint relates two permission variables.
type Constraint struct {
	Kind   Kind
	Left   VarID
	Right  VarID
	Origin Origin
}

func (c Constraint) String() string {
	return fmt.Sprintf("v%d %s v%d [%s]", c.Left, c.Kind, c.Right, c.Origin)
}

// Pin fixes a lower bound on a variable: Top for external boundaries and unsupported code, the
// configured set for overrides. Code is the reason carried into fallback diagnostics.
type Pin struct {
	Var    VarID
	Perms  permission.Set
	Code   diagnostic.Code
	Origin Origin
}

func (p Pin) String() string {
	return fmt.Sprintf("v%d ⊒ %v (%s) [%s]", p.Var, p.Perms, p.Code, p.Origin)
}

// Set is a batch of generated constraints and pins.
type Set struct {
	Constraints []Constraint
	Pins        []Pin
}

// Append adds the contents of o to s.
func (s *Set) Append(o *Set) {
	s.Constraints = append(s.Constraints, o.Constraints...)
	s.Pins = append(s.Pins, o.Pins...)
}

func (s *Set) subset(left, right VarID, origin Origin) {
	if left == right {
		return
	}
	s.Constraints = append(s.Constraints, Constraint{Kind: Subset, Left: left, Right: right, Origin: origin})
}

func (s *Set) equal(left, right VarID, origin Origin) {
	if left == right {
		return
	}
	s.Constraints = append(s.Constraints, Constraint{Kind: Equal, Left: left, Right: right, Origin: origin})
}

func (s *Set) pin(v VarID, perms permission.Set, code diagnostic.Code, origin Origin) {
	s.Pins = append(s.Pins, Pin{Var: v, Perms: perms, Code: code, Origin: origin})
}
