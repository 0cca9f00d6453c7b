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
	"strconv"

	"go.uber.org/ptrperm/config"
	"go.uber.org/ptrperm/constraint"
	"go.uber.org/ptrperm/inference"
	"go.uber.org/ptrperm/ir"
	"go.uber.org/ptrperm/permission"
	"go.uber.org/ptrperm/place"
	"go.uber.org/ptrperm/pointsto"
)

// Bridge builds the region request from the inference result and turns the response into
// per-variable facts.
type Bridge struct {
	prog *ir.Program
	pts  *pointsto.Result
	inf  *inference.Result
	log  *config.LogGroup
}

// NewBridge returns a bridge over the results of the earlier stages.
func NewBridge(prog *ir.Program, pts *pointsto.Result, inf *inference.Result) *Bridge {
	return &Bridge{prog: prog, pts: pts, inf: inf, log: config.Discard()}
}

// Log sets the logger of the bridge.
func (b *Bridge) Log(l *config.LogGroup) *Bridge {
	b.log = l
	return b
}

// Request returns one entry per placed variable that retains READ or WRITE.
func (b *Bridge) Request() *Request {
	arena := b.inf.Arena()
	req := &Request{}
	byObject := make(map[pointsto.ObjectID][]constraint.VarID)
	for _, v := range arena.All() {
		if v.Place == nil || b.inf.Value(v.ID).Meet(permission.Read|permission.Write) == permission.Bottom {
			continue
		}
		req.Entries = append(req.Entries, Entry{
			Var:         v.ID,
			Path:        v.Path,
			Func:        v.Func,
			Live:        v.Live,
			Obligations: b.obligations(v),
		})
		byObject[v.PointeeObj] = append(byObject[v.PointeeObj], v.ID)
	}
	for i := range req.Entries {
		e := &req.Entries[i]
		for _, w := range byObject[arena.Var(e.Var).PointeeObj] {
			if w != e.Var {
				e.Partners = append(e.Partners, w)
			}
		}
	}
	return req
}

// obligations lists, sorted, the function boundaries the pointer held by v crosses.
func (b *Bridge) obligations(v *constraint.Var) []Obligation {
	var out []Obligation
	switch {
	case v.IsStatic():
		out = append(out, Obligation{Kind: Static})
	case v.IsMemory():
		attrs := b.pts.Attrs(v.LocObj)
		if attrs.Static {
			out = append(out, Obligation{Kind: Static})
		}
		if attrs.Heap {
			out = append(out, Obligation{Kind: HeapStored})
		}
	default:
		if i, ok := b.local(v); ok {
			if i == ir.ReturnLocal {
				out = append(out, Obligation{Kind: Returned, Func: v.Func})
			} else if fn, _ := b.prog.Function(v.Func); fn.IsParam(i) {
				out = append(out, Obligation{Kind: Param, Func: v.Func})
			}
		}
	}
	for _, fn := range b.pts.Attrs(v.PointeeObj).Locals {
		out = append(out, Obligation{Kind: PointsToLocal, Func: fn})
	}
	slices.SortFunc(out, compareObligations)
	return slices.Compact(out)
}

// local returns the index of the local at the base of the place of v.
func (b *Bridge) local(v *constraint.Var) (int, bool) {
	fn, ok := b.prog.Function(v.Func)
	if !ok {
		return 0, false
	}
	path, err := place.Parse(v.Path)
	if err != nil {
		return 0, false
	}
	for i := range fn.Locals {
		if fn.LocalName(i) == path.Base {
			return i, true
		}
	}
	return 0, false
}

// Facts are the region facts of the requested variables.
type Facts struct {
	requested map[constraint.VarID]bool
	region    map[constraint.VarID]string
	unsat     map[constraint.VarID]string
}

// Requested returns true if a region was asked for v.
func (f *Facts) Requested(v constraint.VarID) bool { return f != nil && f.requested[v] }

// Region returns the rendered region of v, if the engine placed it in a satisfiable class.
func (f *Facts) Region(v constraint.VarID) (string, bool) {
	if f == nil {
		return "", false
	}
	r, ok := f.region[v]
	return r, ok
}

// Unsat returns why the class of v is unsatisfiable.
func (f *Facts) Unsat(v constraint.VarID) (string, bool) {
	if f == nil {
		return "", false
	}
	r, ok := f.unsat[v]
	return r, ok
}

// Ingest validates a response against its request and names the satisfiable classes 'r0, 'r1,
// ... in ascending order of their smallest variable. Requested variables the response leaves
// out have no fact.
func (b *Bridge) Ingest(req *Request, resp *Response) (*Facts, error) {
	f := &Facts{
		requested: make(map[constraint.VarID]bool, len(req.Entries)),
		region:    make(map[constraint.VarID]string),
		unsat:     make(map[constraint.VarID]string),
	}
	for _, e := range req.Entries {
		f.requested[e.Var] = true
	}

	classes := slices.Clone(resp.Classes)
	for i, c := range classes {
		if len(c.Vars) == 0 {
			return nil, fmt.Errorf("class %d of the region response is empty", i)
		}
		classes[i].Vars = slices.Sorted(slices.Values(c.Vars))
	}
	slices.SortFunc(classes, func(a, b Class) int { return int(a.Vars[0] - b.Vars[0]) })

	seen := make(map[constraint.VarID]bool)
	next := 0
	for _, c := range classes {
		for _, v := range c.Vars {
			if !f.requested[v] {
				return nil, fmt.Errorf("region response classifies unrequested variable %d", v)
			}
			if seen[v] {
				return nil, fmt.Errorf("region response puts variable %d in two classes", v)
			}
			seen[v] = true
		}
		if c.Unsat {
			for _, v := range c.Vars {
				f.unsat[v] = c.Reason
			}
			continue
		}
		name := config.RegionPrefix + strconv.Itoa(next)
		next++
		for _, v := range c.Vars {
			f.region[v] = name
		}
	}
	b.log.Infof("region engine returned %d classes (%d satisfiable) for %d variables", len(classes), next, len(req.Entries))
	return f, nil
}

// Solve sends the request to the engine and ingests the response.
func (b *Bridge) Solve(ctx context.Context, engine Engine) (*Facts, error) {
	req := b.Request()
	resp, err := engine.Solve(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("region engine: %w", err)
	}
	facts, err := b.Ingest(req, resp)
	if err != nil {
		return nil, fmt.Errorf("region engine: %w", err)
	}
	return facts, nil
}
