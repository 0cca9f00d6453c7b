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

package rewrite

import (
	"fmt"
	"slices"
	"strings"

	"go.uber.org/ptrperm/config"
	"go.uber.org/ptrperm/constraint"
	"go.uber.org/ptrperm/diagnostic"
	"go.uber.org/ptrperm/inference"
	"go.uber.org/ptrperm/ir"
	"go.uber.org/ptrperm/permission"
	"go.uber.org/ptrperm/place"
	"go.uber.org/ptrperm/pointsto"
	"go.uber.org/ptrperm/region"
	"golang.org/x/exp/maps"
)

// maxTypeDepth bounds the walk through nested pointer and aggregate types.
const maxTypeDepth = 16

type failure struct {
	code   diagnostic.Code
	detail string
}

// Planner computes the rewrite classification of every pointer place. It runs once, after the
// solver and the region bridge.
type Planner struct {
	prog *ir.Program
	conf *config.Config
	diag *diagnostic.Engine
	log  *config.LogGroup

	pts     *pointsto.Result
	inf     *inference.Result
	regions *region.Facts

	failed  map[string]failure
	memo    map[constraint.VarID]Entry
	explain map[string]string
}

// NewPlanner returns a planner without facts: until Facts is called only failed functions are
// planned.
func NewPlanner(prog *ir.Program, conf *config.Config, diag *diagnostic.Engine) *Planner {
	return &Planner{
		prog:   prog,
		conf:   conf,
		diag:   diag,
		log:    config.Discard(),
		failed:  make(map[string]failure),
		memo:    make(map[constraint.VarID]Entry),
		explain: make(map[string]string),
	}
}

// Log sets the logger of the planner.
func (p *Planner) Log(l *config.LogGroup) *Planner {
	p.log = l
	return p
}

// Facts sets the results of the earlier stages. regions may be nil if the region engine failed.
func (p *Planner) Facts(pts *pointsto.Result, inf *inference.Result, regions *region.Facts) *Planner {
	p.pts, p.inf, p.regions = pts, inf, regions
	return p
}

// Fail marks a function as abandoned: every pointer place in it stays raw with the given code.
// The first failure of a function wins.
func (p *Planner) Fail(fn string, code diagnostic.Code, detail string) {
	if _, ok := p.failed[fn]; !ok {
		p.failed[fn] = failure{code: code, detail: detail}
	}
}

// Plan classifies every placed permission variable and every pointer leaf of a failed function,
// and records every RawPointer fallback in the diagnostic engine.
func (p *Planner) Plan() *Plan {
	var entries []Entry
	seen := make(map[string]bool)
	if p.inf != nil {
		for _, v := range p.inf.Arena().All() {
			if v.Place == nil {
				continue
			}
			e := p.classify(v, 0)
			entries = append(entries, e)
			seen[e.Place] = true
		}
	}

	failed := maps.Keys(p.failed)
	slices.Sort(failed)
	for _, fn := range failed {
		f := p.failed[fn]
		for _, leaf := range p.leaves(fn) {
			if seen[leaf.Path] {
				continue
			}
			seen[leaf.Path] = true
			entries = append(entries, Entry{
				Place:  leaf.Path,
				Func:   fn,
				Perms:  permission.Top,
				Kind:   RawPointer,
				Reason: f.code,
				Type:   typeName(leaf.Type),
				Detail: f.detail,
			})
		}
	}

	plan := NewPlan(entries)
	for _, e := range plan.Entries() {
		if e.Kind == RawPointer {
			p.diag.AddRecord(diagnostic.Record{
				Place:       e.Place,
				Code:        e.Reason,
				Detail:      e.Detail,
				Explanation: p.explain[e.Place],
			})
		}
	}
	summary := plan.Summary()
	p.log.Infof("planned %d places: %d shared, %d mutable, %d boxed, %d raw",
		plan.Len(), summary[SharedRef], summary[MutRef], summary[OwningBox], summary[RawPointer])
	return plan
}

// classify computes the entry of v. The rendered type of a reference recurses into the entry
// of the place it points to, so classifications are memoized.
func (p *Planner) classify(v *constraint.Var, depth int) Entry {
	if e, ok := p.memo[v.ID]; ok {
		return e
	}
	e := Entry{Place: v.Path, Func: v.Func, Perms: p.inf.Value(v.ID)}
	e.Kind, e.Reason, e.Region, e.Detail = p.decide(v)
	e.Type = render(e.Kind, e.Region, v.Place.Type.Mut, p.pointee(v, depth))
	p.memo[v.ID] = e
	return e
}

// decide applies the classification rules in order, the first match wins.
func (p *Planner) decide(v *constraint.Var) (kind Kind, reason diagnostic.Code, region, detail string) {
	raw := func(code diagnostic.Code, detail string) (Kind, diagnostic.Code, string, string) {
		return RawPointer, code, "", detail
	}

	if f, ok := p.failed[v.Func]; ok && v.Func != "" {
		return raw(f.code, f.detail)
	}
	if _, ok := p.pts.Location(v.Path); !ok {
		return raw(diagnostic.MissingFact, "no points-to fact")
	}
	if o, ok := p.conf.Override(v.Path); ok {
		if o.Reason != "" {
			return raw(diagnostic.ExplicitOverride, o.Reason)
		}
		return raw(diagnostic.ExplicitOverride, "overridden to "+o.Permissions.String())
	}
	if pin, ok := p.inf.TopReached(v.ID); ok {
		p.explain[v.Path] = p.explanation(v, permission.Unique)
		if pin.Var == v.ID {
			return raw(pin.Code, pin.Origin.String())
		}
		return raw(pin.Code, fmt.Sprintf("%s, via %s", pin.Origin, p.inf.Arena().Var(pin.Var).Path))
	}

	val := p.inf.Value(v.ID)
	if val.Has(permission.Offset) {
		origin, _ := p.inf.Source(v.ID, permission.Offset)
		p.explain[v.Path] = p.explanation(v, permission.Offset)
		return raw(diagnostic.OffsetObserved, origin.String())
	}
	if val == permission.Bottom {
		return raw(diagnostic.Unused, "")
	}
	if val.Meet(permission.Read|permission.Write) != permission.Bottom {
		if why, ok := p.regions.Unsat(v.ID); ok {
			return raw(diagnostic.UnsatisfiableRegion, why)
		}
		r, ok := p.regions.Region(v.ID)
		switch {
		case !ok && p.regions.Requested(v.ID):
			return raw(diagnostic.MissingFact, "region engine left it out")
		case !ok:
			return raw(diagnostic.MissingFact, "no region fact")
		}
		region = r
	}
	if !val.Has(permission.Unique) {
		return raw(diagnostic.NonUniqueAlias, p.conflict(v))
	}
	if val.Has(permission.Free) {
		if attrs := p.pts.Attrs(v.PointeeObj); !attrs.HeapOnly() {
			return raw(diagnostic.FreeWithoutOwnership, "pointee is "+attrs.String())
		}
		return OwningBox, "", "", ""
	}
	if val.Has(permission.Write) {
		return MutRef, "", region, ""
	}
	return SharedRef, "", region, ""
}

// explanation renders how bit reached v, one step per line.
func (p *Planner) explanation(v *constraint.Var, bit permission.Set) string {
	return strings.TrimSuffix(p.inf.ExplainString(v.ID, bit), "\n")
}

func (p *Planner) conflict(v *constraint.Var) string {
	c, ok := p.inf.Conflict(v.ID)
	switch {
	case !ok:
		return ""
	case c.Escaped:
		return "reachable by unknown code"
	}
	return "aliased by " + p.inf.Arena().Var(c.Partner).Path
}

// pointee renders the type v points to. If it is a pointer with a variable of its own, the
// rendering follows that variable's classification.
func (p *Planner) pointee(v *constraint.Var, depth int) string {
	elem := v.Place.Type.Elem
	if depth < maxTypeDepth && p.prog.Resolve(elem).IsPointer() {
		scope := v.Place.Path[:len(v.Place.Path)-len(v.Place.Expr)]
		path := scope + place.Step(v.Place.Expr, ir.Projection{Kind: ir.ProjDeref})
		arena := p.inf.Arena()
		if w, ok := arena.Lookup(path); ok && arena.Var(w).Place != nil {
			return p.classify(arena.Var(w), depth+1).Type
		}
	}
	return typeName(elem)
}

// leaves enumerates the pointer places rooted at the locals of a function that could not be
// analyzed. Places are interned in a fresh table since the function never got a flow graph.
func (p *Planner) leaves(name string) []*place.Place {
	fn, ok := p.prog.Function(name)
	if !ok {
		return nil
	}
	t := place.NewTable(name)
	var out []*place.Place
	var walk func(id place.ID, depth int)
	walk = func(id place.ID, depth int) {
		pl := t.Get(id)
		if pl.Type == nil || depth > maxTypeDepth {
			return
		}
		switch pl.Type.Kind {
		case ir.TypePtr:
			out = append(out, pl)
		case ir.TypeStruct, ir.TypeUnion:
			for _, f := range pl.Type.Fields {
				if c, err := t.Child(p.prog, id, ir.Projection{Kind: ir.ProjField, Field: f.Name}); err == nil {
					walk(c, depth+1)
				}
			}
		case ir.TypeArray:
			if c, err := t.Child(p.prog, id, ir.Projection{Kind: ir.ProjIndex}); err == nil {
				walk(c, depth+1)
			}
		}
	}
	for i := range fn.Locals {
		if id, err := t.Intern(p.prog, fn, &ir.Place{Local: i}); err == nil {
			walk(id, 0)
		}
	}
	return out
}
