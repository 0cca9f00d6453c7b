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
	"go.uber.org/ptrperm/config"
	"go.uber.org/ptrperm/diagnostic"
	"go.uber.org/ptrperm/flowgraph"
	"go.uber.org/ptrperm/permission"
	"go.uber.org/ptrperm/place"
	"go.uber.org/ptrperm/pointsto"
)

// Generator emits constraints. It only reads the arena and the points-to result, so Function
// may be called concurrently for different graphs.
type Generator struct {
	arena *Arena
	pts   *pointsto.Result
	diag  *diagnostic.Engine
}

// NewGenerator returns a generator over a fully allocated arena.
func NewGenerator(arena *Arena, pts *pointsto.Result, diag *diagnostic.Engine) *Generator {
	return &Generator{arena: arena, pts: pts, diag: diag}
}

// codeOf maps the edges pinning variables to Top to their fallback reason.
func codeOf(kind flowgraph.EdgeKind) diagnostic.Code {
	if kind == flowgraph.Unsupported {
		return diagnostic.UnsupportedConstruct
	}
	return diagnostic.UnresolvedCall
}

// Function generates the constraints of the edges of one function.
func (gen *Generator) Function(g *flowgraph.Graph) *Set {
	s := &Set{}
	v := func(id place.ID) (VarID, bool) {
		if id == place.NoID {
			return NoVar, false
		}
		return gen.arena.Of(g, id)
	}
	require := func(bit permission.Set, id place.ID, origin Origin) {
		if p, ok := v(id); ok {
			s.subset(gen.arena.Const(bit), p, origin)
		}
	}

	for _, e := range g.Edges {
		origin := Origin{Func: g.Func, Line: e.Line, Why: e.Kind.String()}
		switch e.Kind {
		case flowgraph.Load:
			require(permission.Read, e.Src, origin)

		case flowgraph.Store:
			require(permission.Write, e.Src, origin)

		case flowgraph.Free:
			require(permission.Free, e.Src, origin)

		case flowgraph.Assign, flowgraph.Cast:
			// Whatever the copy is used for, the original must allow.
			dst, okDst := v(e.Dst)
			src, okSrc := v(e.Src)
			if okDst && okSrc {
				s.subset(dst, src, origin)
			}

		case flowgraph.Offset:
			if e.NeedsOffset {
				require(permission.Offset, e.Src, origin)
			}
			dst, okDst := v(e.Dst)
			src, okSrc := v(e.Src)
			if okDst && okSrc {
				s.subset(dst, src, origin)
			}

		case flowgraph.CallArg:
			src, okSrc := v(e.Src)
			formal, okFormal := gen.arena.Lookup(e.Formal.String())
			if okSrc && okFormal {
				s.equal(src, formal, origin)
			}

		case flowgraph.CallReturn:
			dst, okDst := v(e.Dst)
			formal, okFormal := gen.arena.Lookup(e.Formal.String())
			if okDst && okFormal {
				s.equal(dst, formal, origin)
			}

		case flowgraph.UnknownCall, flowgraph.Unsupported:
			origin.Why = e.Detail
			for _, id := range e.Places {
				if p, ok := v(id); ok {
					s.pin(p, permission.Top, codeOf(e.Kind), origin)
				}
			}
			if e.Kind == flowgraph.Unsupported {
				gen.diag.AddNote(diagnostic.Note{
					Func:    g.Func,
					Line:    e.Line,
					Code:    diagnostic.UnsupportedConstruct,
					Message: e.Detail,
				})
			}

		case flowgraph.AddrOf, flowgraph.Alloc:
			// Taking an address or allocating requires nothing of the new pointer; what it is
			// used for later does. Aliasing is handled by the points-to analysis.
		}
	}
	return s
}

// Global generates the constraints and pins that are not tied to a single function: equality
// between pointers sharing a location, Top pins on pointers stored in memory reachable by unknown
// code, and the configured overrides.
func (gen *Generator) Global(conf *config.Config) *Set {
	s := &Set{}

	last := make(map[pointsto.CellID]VarID)
	for _, v := range gen.arena.All() {
		if v.IsConst() {
			continue
		}
		if prev, ok := last[v.Loc]; ok {
			s.equal(prev, v.ID, Origin{Func: v.Func, Why: "same location as " + gen.arena.Var(prev).Path})
		}
		last[v.Loc] = v.ID
	}

	escape := Origin{Why: "reachable by unknown code"}
	code := diagnostic.UnresolvedCall
	if causes := gen.pts.Causes(); len(causes) > 0 {
		c := causes[0]
		escape = Origin{Func: c.Func, Line: c.Line, Why: "reachable by unknown code after " + c.Detail}
		code = codeOf(c.Kind)
	}
	for _, v := range gen.arena.All() {
		if !v.IsConst() && gen.pts.Escaped(v.LocObj) {
			s.pin(v.ID, permission.Top, code, escape)
		}
	}

	for _, o := range conf.Overrides {
		id, ok := gen.arena.Lookup(o.Place)
		if !ok {
			scope := ""
			if p, err := place.Parse(o.Place); err == nil {
				scope = p.Scope
			}
			gen.diag.AddNote(diagnostic.Note{
				Func:    scope,
				Code:    diagnostic.ExplicitOverride,
				Message: "override names no analyzed pointer place: " + o.Place,
			})
			continue
		}
		why := "override"
		if o.Reason != "" {
			why += ": " + o.Reason
		}
		s.pin(id, o.Permissions, diagnostic.ExplicitOverride, Origin{Func: gen.arena.Var(id).Func, Why: why})
	}
	return s
}
