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

package region

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/ptrperm/constraint"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// LocalEngine is the reference region engine. Pointers that may alias share one region, i.e.,
// the classes are the connected components of the partner graph. A class is unsatisfiable when
// it may point into a local of a function F and its pointers outlive F: they are returned from
// F, stored in one of F's parameters, in a static or in the heap.
type LocalEngine struct{}

var _ Engine = LocalEngine{}

// Solve implements Engine.
func (LocalEngine) Solve(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g := simple.NewUndirectedGraph()
	entries := make(map[constraint.VarID]*Entry, len(req.Entries))
	for i := range req.Entries {
		e := &req.Entries[i]
		if _, ok := entries[e.Var]; ok {
			return nil, fmt.Errorf("duplicate request entry for variable %d", e.Var)
		}
		entries[e.Var] = e
		g.AddNode(simple.Node(e.Var))
	}
	for _, e := range entries {
		for _, p := range e.Partners {
			if p == e.Var {
				continue
			}
			if _, ok := entries[p]; !ok {
				return nil, fmt.Errorf("variable %d lists unknown partner %d", e.Var, p)
			}
			g.SetEdge(simple.Edge{F: simple.Node(e.Var), T: simple.Node(p)})
		}
	}

	resp := &Response{}
	for _, comp := range topo.ConnectedComponents(g) {
		class := Class{Vars: make([]constraint.VarID, 0, len(comp))}
		var obligations []Obligation
		for _, n := range comp {
			v := constraint.VarID(n.ID())
			class.Vars = append(class.Vars, v)
			obligations = append(obligations, entries[v].Obligations...)
		}
		slices.Sort(class.Vars)
		slices.SortFunc(obligations, compareObligations)
		if reason := unsatisfiable(slices.Compact(obligations)); reason != "" {
			class.Unsat, class.Reason = true, reason
		}
		resp.Classes = append(resp.Classes, class)
	}
	slices.SortFunc(resp.Classes, func(a, b Class) int { return int(a.Vars[0] - b.Vars[0]) })
	return resp, nil
}

// unsatisfiable returns why no region can satisfy the sorted obligations of one class, or the
// empty string.
func unsatisfiable(obligations []Obligation) string {
	has := func(kind ObligationKind, fn string) bool {
		_, ok := slices.BinarySearchFunc(obligations, Obligation{Kind: kind, Func: fn}, compareObligations)
		return ok
	}
	for _, o := range obligations {
		if o.Kind != PointsToLocal {
			continue
		}
		switch {
		case has(Returned, o.Func):
			return fmt.Sprintf("a pointer to a local of %s is returned from it", o.Func)
		case has(Param, o.Func):
			return fmt.Sprintf("a pointer to a local of %s is stored in one of its parameters", o.Func)
		case has(Static, ""):
			return fmt.Sprintf("a pointer to a local of %s is stored in a static", o.Func)
		case has(HeapStored, ""):
			return fmt.Sprintf("a pointer to a local of %s is stored in the heap", o.Func)
		}
	}
	return ""
}
