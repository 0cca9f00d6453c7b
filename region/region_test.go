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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/ptrperm/config"
	"go.uber.org/ptrperm/constraint"
	"go.uber.org/ptrperm/diagnostic"
	"go.uber.org/ptrperm/flowgraph"
	"go.uber.org/ptrperm/inference"
	"go.uber.org/ptrperm/ir"
	"go.uber.org/ptrperm/pointsto"
	pt "go.uber.org/ptrperm/ptrpermtest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLocalEngine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []Entry
		want    []Class
	}{
		{
			name: "isolated",
			entries: []Entry{
				{Var: 7, Obligations: []Obligation{{Kind: Param, Func: "f"}}},
				{Var: 5},
			},
			want: []Class{{Vars: []constraint.VarID{5}}, {Vars: []constraint.VarID{7}}},
		},
		{
			name: "partners join",
			entries: []Entry{
				{Var: 5, Partners: []constraint.VarID{9}},
				{Var: 6},
				{Var: 9, Partners: []constraint.VarID{5, 10}},
				{Var: 10, Partners: []constraint.VarID{9, 10}},
			},
			want: []Class{{Vars: []constraint.VarID{5, 9, 10}}, {Vars: []constraint.VarID{6}}},
		},
		{
			name: "returned local",
			entries: []Entry{
				{Var: 5, Partners: []constraint.VarID{6}, Obligations: []Obligation{{Kind: PointsToLocal, Func: "f"}}},
				{Var: 6, Partners: []constraint.VarID{5}, Obligations: []Obligation{{Kind: Returned, Func: "f"}}},
			},
			want: []Class{{Vars: []constraint.VarID{5, 6}, Unsat: true, Reason: "a pointer to a local of f is returned from it"}},
		},
		{
			name: "returned local of a callee",
			entries: []Entry{
				{Var: 5, Obligations: []Obligation{{Kind: PointsToLocal, Func: "f"}, {Kind: Returned, Func: "g"}}},
			},
			want: []Class{{Vars: []constraint.VarID{5}}},
		},
		{
			name: "param",
			entries: []Entry{
				{Var: 5, Obligations: []Obligation{{Kind: Param, Func: "g"}, {Kind: PointsToLocal, Func: "g"}}},
			},
			want: []Class{{Vars: []constraint.VarID{5}, Unsat: true, Reason: "a pointer to a local of g is stored in one of its parameters"}},
		},
		{
			name: "static",
			entries: []Entry{
				{Var: 5, Obligations: []Obligation{{Kind: Static}, {Kind: PointsToLocal, Func: "g"}}},
			},
			want: []Class{{Vars: []constraint.VarID{5}, Unsat: true, Reason: "a pointer to a local of g is stored in a static"}},
		},
		{
			name: "heap",
			entries: []Entry{
				{Var: 5, Obligations: []Obligation{{Kind: PointsToLocal, Func: "g"}}, Partners: []constraint.VarID{8}},
				{Var: 8, Obligations: []Obligation{{Kind: HeapStored}}},
			},
			want: []Class{{Vars: []constraint.VarID{5, 8}, Unsat: true, Reason: "a pointer to a local of g is stored in the heap"}},
		},
		{
			name: "heap without locals",
			entries: []Entry{
				{Var: 5, Obligations: []Obligation{{Kind: HeapStored}, {Kind: Static}, {Kind: Returned, Func: "f"}}},
			},
			want: []Class{{Vars: []constraint.VarID{5}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, err := LocalEngine{}.Solve(context.Background(), &Request{Entries: tt.entries})
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, resp.Classes); diff != "" {
				t.Errorf("classes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLocalEngine_Errors(t *testing.T) {
	t.Parallel()

	_, err := LocalEngine{}.Solve(context.Background(), &Request{Entries: []Entry{{Var: 1}, {Var: 1}}})
	require.ErrorContains(t, err, "duplicate")

	_, err = LocalEngine{}.Solve(context.Background(), &Request{Entries: []Entry{{Var: 1, Partners: []constraint.VarID{2}}}})
	require.ErrorContains(t, err, "unknown partner")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = LocalEngine{}.Solve(ctx, &Request{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestIngest(t *testing.T) {
	t.Parallel()

	b := &Bridge{log: config.Discard()}
	req := &Request{Entries: []Entry{{Var: 3}, {Var: 4}, {Var: 8}, {Var: 9}, {Var: 11}}}

	f, err := b.Ingest(req, &Response{Classes: []Class{
		{Vars: []constraint.VarID{11, 8}},
		{Vars: []constraint.VarID{4}, Unsat: true, Reason: "why"},
		{Vars: []constraint.VarID{9, 3}},
	}})
	require.NoError(t, err)

	for v, want := range map[constraint.VarID]string{3: "'r0", 9: "'r0", 8: "'r1", 11: "'r1"} {
		got, ok := f.Region(v)
		require.True(t, ok)
		require.Equal(t, want, got, "v%d", v)
	}
	_, ok := f.Region(4)
	require.False(t, ok)
	reason, ok := f.Unsat(4)
	require.True(t, ok)
	require.Equal(t, "why", reason)
	require.True(t, f.Requested(4))
	require.False(t, f.Requested(5))

	for _, bad := range []*Response{
		{Classes: []Class{{}}},
		{Classes: []Class{{Vars: []constraint.VarID{3}}, {Vars: []constraint.VarID{3, 4}}}},
		{Classes: []Class{{Vars: []constraint.VarID{5}}}},
	} {
		_, err := b.Ingest(req, bad)
		require.Error(t, err)
	}

	// Missing facts are not an error: the planner falls back for them.
	f, err = b.Ingest(req, &Response{})
	require.NoError(t, err)
	_, ok = f.Region(3)
	require.False(t, ok)

	var none *Facts
	require.False(t, none.Requested(3))
	_, ok = none.Region(3)
	require.False(t, ok)
}

type failingEngine struct{}

func (failingEngine) Solve(context.Context, *Request) (*Response, error) {
	return nil, errors.New("unreachable")
}

// pipeline runs every stage before the region bridge.
func pipeline(t *testing.T, prog *ir.Program) (*pointsto.Result, *inference.Result) {
	t.Helper()

	conf := config.NewDefault()
	b := flowgraph.NewBuilder(prog, conf, func(name string) bool {
		fn, ok := prog.Function(name)
		return ok && !fn.Extern
	})
	a := pointsto.New()
	var graphs []*flowgraph.Graph
	for _, fn := range prog.Functions {
		if fn.Extern {
			continue
		}
		g, err := b.Build(fn)
		require.NoError(t, err)
		a.AddGraph(g)
		graphs = append(graphs, g)
	}
	pts := a.Freeze()

	arena := constraint.NewArena()
	for _, g := range graphs {
		arena.AddGraph(g, pts)
	}
	for _, g := range graphs {
		arena.AddFormals(g, pts)
	}
	gen := constraint.NewGenerator(arena, pts, diagnostic.NewEngine())
	set := &constraint.Set{}
	for _, g := range graphs {
		set.Append(gen.Function(g))
	}
	set.Append(gen.Global(conf))

	inf := inference.NewEngine(arena, set).Run()
	inf.ApplyUniqueness(pts)
	return pts, inf
}

func TestBridge(t *testing.T) {
	t.Parallel()

	pb := pt.NewProgram()
	f := pb.Func("f", pt.MutPtr(pt.I32)).Local(
		pt.V{Name: "x", Type: pt.I32},
		pt.V{Name: "p", Type: pt.MutPtr(pt.I32)},
	)
	f.Assign(f.L("p"), pt.AddrMut(f.L("x"))).
		Assign(pt.Deref(f.L("p")), pt.Const()).
		Assign(f.Ret(), pt.Use(f.L("p")))
	g := pb.Func("g", pt.Void, pt.V{Name: "s", Type: pt.Ptr(pt.I32)}).Local(pt.V{Name: "y", Type: pt.I32})
	g.Assign(g.L("y"), pt.Use(pt.Deref(g.L("s"))))
	h := pb.Func("h", pt.Void).Local(pt.V{Name: "q", Type: pt.MutPtr(pt.I32)})
	h.Call(h.L("q"), "f").
		Assign(pt.Deref(h.L("q")), pt.Const())
	prog := pb.Build()

	pts, inf := pipeline(t, prog)
	b := NewBridge(prog, pts, inf)

	req := b.Request()
	obligations := make(map[string][]string)
	for _, e := range req.Entries {
		var rendered []string
		for _, o := range e.Obligations {
			rendered = append(rendered, o.String())
		}
		obligations[e.Path] = rendered
	}
	want := map[string][]string{
		"f::p":   {"points-to-local(f)"},
		"f::ret": {"returned(f)", "points-to-local(f)"},
		"g::s":   {"param(g)"},
		"h::q":   {"points-to-local(f)"},
	}
	if diff := cmp.Diff(want, obligations); diff != "" {
		t.Fatalf("obligations mismatch (-want +got):\n%s", diff)
	}

	facts, err := b.Solve(context.Background(), LocalEngine{})
	require.NoError(t, err)

	arena := inf.Arena()
	for _, path := range []string{"f::p", "f::ret", "h::q"} {
		v, ok := arena.Lookup(path)
		require.True(t, ok)
		reason, ok := facts.Unsat(v)
		require.True(t, ok, path)
		require.Equal(t, "a pointer to a local of f is returned from it", reason)
	}
	s, _ := arena.Lookup("g::s")
	region, ok := facts.Region(s)
	require.True(t, ok)
	require.Equal(t, "'r0", region)

	_, err = b.Solve(context.Background(), failingEngine{})
	require.ErrorContains(t, err, "region engine")
}
