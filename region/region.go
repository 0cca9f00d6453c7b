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

// Package region connects the permission inference to a region (lifetime) engine. The engine is
// an external collaborator behind a narrow request/response interface: it receives, for every
// pointer that will become a reference, its liveness, its aliases and the function boundaries it
// crosses, and answers with equivalence classes of regions and the classes it cannot satisfy.
package region

import (
	"context"
	"fmt"

	"go.uber.org/ptrperm/constraint"
	"go.uber.org/ptrperm/flowgraph"
)

// Engine solves region constraints. Solve is synchronous and must not retain the request.
type Engine interface {
	Solve(ctx context.Context, req *Request) (*Response, error)
}

// ObligationKind is the kind of a function-boundary obligation.
type ObligationKind uint8

// The obligation kinds.
const (
	// Returned is set when the pointer is (part of) the return place of Func.
	Returned ObligationKind = iota
	// Param is set when the pointer is (part of) a parameter of Func.
	Param
	// Static is set when the pointer is stored in a static.
	Static
	// HeapStored is set when the pointer is stored in heap memory.
	HeapStored
	// PointsToLocal is set when the pointer may point into a local of Func.
	PointsToLocal
)

var _obligationNames = [...]string{
	Returned:      "returned",
	Param:         "param",
	Static:        "static",
	HeapStored:    "heap-stored",
	PointsToLocal: "points-to-local",
}

func (k ObligationKind) String() string {
	if int(k) < len(_obligationNames) {
		return _obligationNames[k]
	}
	return fmt.Sprintf("obligation(%d)", k)
}

// Obligation is a constraint a function boundary puts on the region of a pointer.
type Obligation struct {
	Kind ObligationKind `json:"kind"`
	// Func is the function of the boundary, empty for Static and HeapStored.
	Func string `json:"func,omitempty"`
}

func (o Obligation) String() string {
	if o.Func == "" {
		return o.Kind.String()
	}
	return o.Kind.String() + "(" + o.Func + ")"
}

func compareObligations(a, b Obligation) int {
	if a.Kind != b.Kind {
		return int(a.Kind) - int(b.Kind)
	}
	switch {
	case a.Func < b.Func:
		return -1
	case a.Func > b.Func:
		return 1
	}
	return 0
}

// Entry asks for the region of one permission variable.
type Entry struct {
	Var  constraint.VarID   `json:"var"`
	Path string             `json:"path"`
	Func string             `json:"func,omitempty"`
	Live flowgraph.Interval `json:"live"`
	// Partners are the requested variables that may point into the same memory.
	Partners    []constraint.VarID `json:"partners,omitempty"`
	Obligations []Obligation       `json:"obligations,omitempty"`
}

// Request is the single request of a run. Entries are sorted by variable.
type Request struct {
	Entries []Entry `json:"entries"`
}

// Class is a region equivalence class.
type Class struct {
	Vars []constraint.VarID `json:"vars"`
	// Unsat is set when no region satisfies the obligations of the class.
	Unsat  bool   `json:"unsat,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Response is the answer of an engine.
type Response struct {
	Classes []Class `json:"classes"`
}
