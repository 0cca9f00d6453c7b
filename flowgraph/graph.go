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

// Package flowgraph builds, per function, the flow graph restricted to pointer-relevant
// operations: its nodes are places and its edges are typed by the operation relating them.
// The graph also carries the liveness interval of every place over the function's program
// points.
package flowgraph

import (
	"fmt"

	"go.uber.org/ptrperm/place"
)

// EdgeKind is the operation an edge stands for.
type EdgeKind uint8

// The edge kinds.
const (
	// Assign copies the pointer in Src into Dst.
	Assign EdgeKind = iota
	// Load reads through the pointer Src.
	Load
	// Store writes through the pointer Src.
	Store
	// AddrOf makes Dst point to the location Src.
	AddrOf
	// CallArg passes the pointer Src to the formal parameter place Formal of an analyzed callee.
	CallArg
	// CallReturn stores the formal return place Formal of an analyzed callee into Dst.
	CallReturn
	// Cast converts the pointer Src into Dst, keeping provenance.
	Cast
	// Offset derives Dst (if any) from Src by pointer arithmetic.
	Offset
	// Alloc makes Dst point to a fresh heap allocation.
	Alloc
	// Free deallocates the allocation Src points to.
	Free
	// UnknownCall hands Places to a callee the analysis cannot see.
	UnknownCall
	// Unsupported marks Places as touched by a construct the analysis does not model.
	Unsupported
)

var _edgeKindNames = [...]string{
	Assign:      "assign",
	Load:        "load",
	Store:       "store",
	AddrOf:      "address-of",
	CallArg:     "call-arg",
	CallReturn:  "call-return",
	Cast:        "cast",
	Offset:      "offset",
	Alloc:       "alloc",
	Free:        "free",
	UnknownCall: "unknown-call",
	Unsupported: "unsupported",
}

func (k EdgeKind) String() string {
	if int(k) < len(_edgeKindNames) {
		return _edgeKindNames[k]
	}
	return fmt.Sprintf("EdgeKind(%d)", k)
}

// Edge is one pointer-relevant operation.
type Edge struct {
	Kind EdgeKind
	Dst  place.ID
	Src  place.ID
	// Formal is the place of the callee a CallArg or CallReturn edge connects to.
	Formal place.Path
	// Callee names the callee of call edges, empty for indirect calls.
	Callee string
	// NeedsOffset is set on Offset edges whose displacement is not the constant zero.
	NeedsOffset bool
	// Mut is set on AddrOf edges taking a mutable address.
	Mut bool
	// Places lists the pointer places of UnknownCall and Unsupported edges.
	Places []place.ID
	// Detail explains UnknownCall and Unsupported edges.
	Detail string
	Point  int
	Line   int
}

// Interval is a closed range of program points.
type Interval struct {
	First int
	Last  int
}

// Overlaps returns true if both intervals share more than a single boundary point, i.e., one
// place is still used after the other one started to be used. Two places handing a value over at
// one statement do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.First < o.Last && o.First < i.Last
}

func (i Interval) String() string { return fmt.Sprintf("[%d, %d]", i.First, i.Last) }

func (i *Interval) add(pt int) {
	if pt < i.First {
		i.First = pt
	}
	if pt > i.Last {
		i.Last = pt
	}
}

// Graph is the flow graph of one function.
type Graph struct {
	Func   string
	Places *place.Table
	Edges  []Edge
	// Live maps every mentioned place to its liveness interval.
	Live map[place.ID]Interval
	// Points is the largest program point of the function.
	Points int
	// Callees lists the analyzed functions called, in first-call order.
	Callees []string
}

// Pointers returns the pointer-typed places of the graph in ID order.
func (g *Graph) Pointers() []*place.Place {
	var out []*place.Place
	for _, p := range g.Places.All() {
		if p.IsPointer() {
			out = append(out, p)
		}
	}
	return out
}

// Interval returns the liveness interval of id. Places that were interned but never mentioned
// (e.g. the ancestors of a mentioned place) are live for the whole function.
func (g *Graph) Interval(id place.ID) Interval {
	if iv, ok := g.Live[id]; ok {
		return iv
	}
	return Interval{First: 0, Last: g.Points}
}
