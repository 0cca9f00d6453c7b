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

// Package accumulation coordinates the entire workflow: it builds the flow graphs of all functions
// in scope, unifies their points-to facts, generates and solves the permission constraints, asks
// the region engine for lifetimes and finally plans the rewrite of every pointer place.
package accumulation

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"

	"go.uber.org/ptrperm/config"
	"go.uber.org/ptrperm/constraint"
	"go.uber.org/ptrperm/diagnostic"
	"go.uber.org/ptrperm/flowgraph"
	"go.uber.org/ptrperm/inference"
	"go.uber.org/ptrperm/ir"
	"go.uber.org/ptrperm/permission"
	"go.uber.org/ptrperm/pointsto"
	"go.uber.org/ptrperm/region"
	"go.uber.org/ptrperm/rewrite"
	"go.uber.org/ptrperm/util/analysishelper"
	"go.uber.org/ptrperm/util/queue"
	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one run.
type Result struct {
	Plan        *rewrite.Plan
	Diagnostics *diagnostic.Engine
	// Scope lists the defined functions in scope, sorted.
	Scope []string
	// Failed maps the functions in scope that were abandoned to the reason.
	Failed map[string]diagnostic.Code
}

// runner is the state of one run.
type runner struct {
	prog    *ir.Program
	conf    *config.Config
	engine  region.Engine
	log     *config.LogGroup
	diag    *diagnostic.Engine
	planner *rewrite.Planner

	scope   []string
	inScope map[string]bool
	// failed is only written between parallel stages, so the builder may read it concurrently.
	failed  map[string]diagnostic.Code
	details map[string]string
	graphs  map[string]*flowgraph.Graph
}

// facts are the results of the global stages.
type facts struct {
	pts     *pointsto.Result
	inf     *inference.Result
	regions *region.Facts
}

// Run analyzes prog. Problems in the input never abort the run: they only degrade the affected
// places to raw pointers. The returned error is non-nil only for an invalid configuration or a
// canceled context.
//
// The stages are:
//
//   - discover the functions in scope (reachable from the entry points, if any);
//   - build the flow graph of every function in parallel. A function that fails is abandoned,
//     and its callers are rebuilt treating calls to it as unknown calls;
//   - unify the points-to facts of all graphs and allocate the permission variables;
//   - generate the constraints of every function in parallel, then the global constraints;
//   - solve the constraints and run the uniqueness post-pass;
//   - send the region request to the region engine;
//   - classify every pointer place.
func Run(ctx context.Context, prog *ir.Program, conf *config.Config, engine region.Engine, log *config.LogGroup) (*Result, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = config.Discard()
	}
	r := newRunner(prog, conf, engine, log)

	r.discover()
	errs := prog.Validate()
	for _, name := range r.scope {
		if verr, ok := errs[name]; ok {
			r.fail(name, verr.Line, diagnostic.MalformedInput, verr.Msg)
		}
	}

	if err := r.buildAll(ctx); err != nil {
		return nil, err
	}

	res := analysishelper.WrapRun("solver", r.solve)(ctx)
	switch {
	case res.Err != nil && errors.Is(res.Err, context.Canceled):
		return nil, res.Err
	case res.Err != nil:
		// Without global facts nothing is known about any pointer.
		log.Errorf("%v", res.Err)
		detail := res.Err.Error()
		var p *analysishelper.PanicError
		if errors.As(res.Err, &p) {
			detail = p.Short()
		}
		for _, name := range r.scope {
			r.fail(name, 0, diagnostic.InternalError, detail)
		}
	default:
		r.planner.Facts(res.Res.pts, res.Res.inf, res.Res.regions)
	}

	plan := r.plan()
	return &Result{Plan: plan, Diagnostics: r.diag, Scope: r.scope, Failed: r.failed}, nil
}

func newRunner(prog *ir.Program, conf *config.Config, engine region.Engine, log *config.LogGroup) *runner {
	r := &runner{
		prog:    prog,
		conf:    conf,
		engine:  engine,
		log:     log,
		diag:    diagnostic.NewEngine(),
		inScope: make(map[string]bool),
		failed:  make(map[string]diagnostic.Code),
		details: make(map[string]string),
		graphs:  make(map[string]*flowgraph.Graph),
	}
	r.planner = rewrite.NewPlanner(prog, conf, r.diag).Log(log)
	return r
}

// plan runs the planner. If it panics, every function in scope is failed with internal-error and
// planned again without facts, which only enumerates pointer places.
func (r *runner) plan() *rewrite.Plan {
	run := analysishelper.WrapRun("planner", func(p *rewrite.Planner) (*rewrite.Plan, error) {
		return p.Plan(), nil
	})
	res := run(r.planner)
	if res.Err == nil {
		return res.Res
	}

	r.log.Errorf("%v", res.Err)
	_, detail := failure(res.Err)
	r.planner = rewrite.NewPlanner(r.prog, r.conf, r.diag).Log(r.log)
	// Functions that failed before keep their own reason.
	for name, code := range r.failed {
		r.planner.Fail(name, code, r.details[name])
	}
	for _, name := range r.scope {
		r.fail(name, 0, diagnostic.InternalError, detail)
	}
	if res = run(r.planner); res.Err != nil {
		r.log.Errorf("%v", res.Err)
		return rewrite.NewPlan(nil)
	}
	return res.Res
}

// discover computes the defined functions in scope: every defined function, or those reachable
// through direct calls from the configured entry points.
func (r *runner) discover() {
	defined := make(map[string]*ir.Function)
	for _, fn := range r.prog.Functions {
		if fn != nil && !fn.Extern {
			defined[fn.Name] = fn
		}
	}

	if len(r.conf.Entrypoints) == 0 {
		r.scope = maps.Keys(defined)
	} else {
		var q queue.Queue[string]
		seen := make(map[string]bool)
		for _, ep := range r.conf.Entrypoints {
			if _, ok := defined[ep]; !ok {
				r.log.Warnf("entry point %q is not a defined function", ep)
				continue
			}
			if !seen[ep] {
				seen[ep] = true
				q.Push(ep)
			}
		}
		for !q.Empty() {
			name := q.Pop()
			r.scope = append(r.scope, name)
			for _, blk := range defined[name].Blocks {
				for _, st := range blk.Stmts {
					if st.Call == nil || st.Call.Callee == "" {
						continue
					}
					if _, ok := defined[st.Call.Callee]; ok && !seen[st.Call.Callee] {
						seen[st.Call.Callee] = true
						q.Push(st.Call.Callee)
					}
				}
			}
		}
	}
	slices.Sort(r.scope)
	for _, name := range r.scope {
		r.inScope[name] = true
	}
	r.log.Infof("%d of %d defined functions in scope", len(r.scope), len(defined))
}

// analyzed reports whether calls to name are resolved to its body.
func (r *runner) analyzed(name string) bool {
	_, failed := r.failed[name]
	return r.inScope[name] && !failed
}

func (r *runner) fail(name string, line int, code diagnostic.Code, detail string) {
	if _, ok := r.failed[name]; ok {
		return
	}
	r.failed[name] = code
	r.details[name] = detail
	r.planner.Fail(name, code, detail)
	r.diag.AddNote(diagnostic.Note{Func: name, Line: line, Code: code, Message: detail})
	r.log.Debugf("%s abandoned: %s: %s", name, code, detail)
}

func (r *runner) parallelism() int {
	if r.conf.Parallelism > 0 {
		return r.conf.Parallelism
	}
	return runtime.GOMAXPROCS(0)
}

// failure converts the error of a unit of work to a diagnostic code and message.
func failure(err error) (diagnostic.Code, string) {
	var p *analysishelper.PanicError
	if errors.As(err, &p) {
		return diagnostic.InternalError, p.Short()
	}
	return diagnostic.MalformedInput, err.Error()
}

// buildAll builds the flow graphs of every analyzed function. Building a caller depends on which
// callees are analyzed, so when a function fails every built caller of it is built again, until
// no new function fails.
func (r *runner) buildAll(ctx context.Context) error {
	var pending []string
	for _, name := range r.scope {
		if r.analyzed(name) {
			pending = append(pending, name)
		}
	}

	for round := 1; len(pending) > 0; round++ {
		builder := flowgraph.NewBuilder(r.prog, r.conf, r.analyzed)
		build := analysishelper.WrapRun("flow graph", builder.Build)
		results := make([]*analysishelper.Result[*flowgraph.Graph], len(pending))

		group, gctx := errgroup.WithContext(ctx)
		group.SetLimit(r.parallelism())
		for i, name := range pending {
			group.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				fn, _ := r.prog.Function(name)
				results[i] = build(fn)
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}

		newlyFailed := make(map[string]bool)
		for i, name := range pending {
			if err := results[i].Err; err != nil {
				code, detail := failure(err)
				r.fail(name, 0, code, detail)
				newlyFailed[name] = true
				continue
			}
			r.graphs[name] = results[i].Res
		}
		r.log.Debugf("build round %d: %d functions built, %d failed", round, len(pending)-len(newlyFailed), len(newlyFailed))

		pending = pending[:0]
		for _, name := range r.scope {
			g, ok := r.graphs[name]
			if ok && slices.ContainsFunc(g.Callees, func(c string) bool { return newlyFailed[c] }) {
				delete(r.graphs, name)
				pending = append(pending, name)
			}
		}
	}
	r.log.Infof("built %d flow graphs, %d functions abandoned", len(r.graphs), len(r.failed))
	return nil
}

// sortedGraphs returns the built graphs in function order.
func (r *runner) sortedGraphs() []*flowgraph.Graph {
	names := maps.Keys(r.graphs)
	slices.Sort(names)
	out := make([]*flowgraph.Graph, len(names))
	for i, name := range names {
		out[i] = r.graphs[name]
	}
	return out
}

// solve runs the global stages.
func (r *runner) solve(ctx context.Context) (*facts, error) {
	graphs := r.sortedGraphs()

	a := pointsto.New()
	for _, g := range graphs {
		a.AddGraph(g)
	}
	pts := a.Freeze()

	// Variables are allocated sequentially, in function order, so that their IDs are stable.
	arena := constraint.NewArena()
	for _, g := range graphs {
		arena.AddGraph(g, pts)
	}
	for _, g := range graphs {
		arena.AddFormals(g, pts)
	}
	r.log.Infof("allocated %d permission variables", arena.Len())

	gen := constraint.NewGenerator(arena, pts, r.diag)
	generate := analysishelper.WrapRun("constraints", func(g *flowgraph.Graph) (*constraint.Set, error) {
		return gen.Function(g), nil
	})
	results := make([]*analysishelper.Result[*constraint.Set], len(graphs))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(r.parallelism())
	for i, g := range graphs {
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = generate(g)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	set := &constraint.Set{}
	for i, g := range graphs {
		if err := results[i].Err; err != nil {
			code, detail := failure(err)
			r.fail(g.Func, 0, code, detail)
			pinBoundary(set, arena, g)
			continue
		}
		set.Append(results[i].Res)
	}
	set.Append(gen.Global(r.conf))
	r.log.Infof("generated %d constraints and %d pins", len(set.Constraints), len(set.Pins))

	inf := inference.NewEngine(arena, set).Log(r.log).Run()
	inf.ApplyUniqueness(pts)

	regions, err := region.NewBridge(r.prog, pts, inf).Log(r.log).Solve(ctx, r.engine)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		// The planner treats every requested region as a missing fact.
		r.log.Warnf("%v", err)
		regions = nil
	}
	return &facts{pts: pts, inf: inf, regions: regions}, nil
}

// pinBoundary pins Top on everything a function without constraints shares with the rest of
// the program: the formals of its callees and the statics it mentions.
func pinBoundary(set *constraint.Set, arena *constraint.Arena, g *flowgraph.Graph) {
	origin := constraint.Origin{Func: g.Func, Why: "constraints of " + g.Func + " are unknown"}
	for _, e := range g.Edges {
		if e.Kind != flowgraph.CallArg && e.Kind != flowgraph.CallReturn {
			continue
		}
		if v, ok := arena.Lookup(e.Formal.String()); ok {
			set.Pins = append(set.Pins, constraint.Pin{Var: v, Perms: permission.Top, Code: diagnostic.InternalError, Origin: origin})
		}
	}
	for _, p := range g.Pointers() {
		if !p.IsStatic {
			continue
		}
		if v, ok := arena.Lookup(p.Path); ok {
			set.Pins = append(set.Pins, constraint.Pin{Var: v, Perms: permission.Top, Code: diagnostic.InternalError, Origin: origin})
		}
	}
}
