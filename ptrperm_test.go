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

package ptrperm

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/ptrperm/config"
	"go.uber.org/ptrperm/diagnostic"
	"go.uber.org/ptrperm/flowgraph"
	"go.uber.org/ptrperm/ir"
	"go.uber.org/ptrperm/permission"
	"go.uber.org/ptrperm/place"
	pt "go.uber.org/ptrperm/ptrpermtest"
	"go.uber.org/ptrperm/region"
	"go.uber.org/ptrperm/rewrite"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type failingEngine struct{}

func (failingEngine) Solve(context.Context, *region.Request) (*region.Response, error) {
	return nil, errors.New("engine unavailable")
}

// emptyEngine answers every request without classifying anything.
type emptyEngine struct{}

func (emptyEngine) Solve(context.Context, *region.Request) (*region.Response, error) {
	return &region.Response{}, nil
}

func sharedRead() *ir.Program {
	pb := pt.NewProgram()
	m := pb.Func("main", pt.Void).Local(
		pt.V{Name: "x", Type: pt.I32},
		pt.V{Name: "y", Type: pt.I32},
		pt.V{Name: "p", Type: pt.Ptr(pt.I32)},
	)
	m.Assign(m.L("p"), pt.Addr(m.L("x"))).
		Assign(m.L("y"), pt.Use(pt.Deref(m.L("p"))))
	return pb.Build()
}

func offsetRead() *ir.Program {
	pb := pt.NewProgram()
	m := pb.Func("main", pt.Void).Local(
		pt.V{Name: "arr", Type: pt.Array(pt.I32, 4)},
		pt.V{Name: "p", Type: pt.Ptr(pt.I32)},
		pt.V{Name: "q", Type: pt.Ptr(pt.I32)},
		pt.V{Name: "y", Type: pt.I32},
	)
	m.Assign(m.L("p"), pt.Addr(pt.Idx(m.L("arr"), 0))).
		Assign(m.L("q"), pt.Off(m.L("p"), 1)).
		Assign(m.L("y"), pt.Use(pt.Deref(m.L("q"))))
	return pb.Build()
}

func aliasedWrites() *ir.Program {
	pb := pt.NewProgram()
	m := pb.Func("main", pt.Void).Local(
		pt.V{Name: "x", Type: pt.I32},
		pt.V{Name: "p", Type: pt.MutPtr(pt.I32)},
		pt.V{Name: "q", Type: pt.MutPtr(pt.I32)},
	)
	m.Assign(m.L("p"), pt.AddrMut(m.L("x"))).
		Assign(m.L("q"), pt.AddrMut(m.L("x"))).
		Assign(pt.Deref(m.L("p")), pt.Const()).
		Assign(pt.Deref(m.L("q")), pt.Const()).
		Assign(pt.Deref(m.L("p")), pt.Const())
	return pb.Build()
}

func indirectCall() *ir.Program {
	pb := pt.NewProgram()
	m := pb.Func("main", pt.Void, pt.V{Name: "fp", Type: pt.FnT}).Local(
		pt.V{Name: "x", Type: pt.I32},
		pt.V{Name: "p", Type: pt.Ptr(pt.I32)},
	)
	m.Assign(m.L("p"), pt.Addr(m.L("x"))).
		CallIndirect(nil, m.L("fp"), m.L("p"))
	return pb.Build()
}

// mixed exercises every kind of flow graph edge.
func mixed() *ir.Program {
	pb := pt.NewProgram().
		Type("U", pt.Union("U", pt.F("a", pt.Ptr(pt.I32)), pt.F("n", pt.I32))).
		Type("Pair", pt.Struct("Pair", pt.F("l", pt.MutPtr(pt.I32)), pt.F("r", pt.Ptr(pt.I32)))).
		Static("G", pt.MutPtr(pt.I32))
	m := pb.Func("main", pt.Void).Local(
		pt.V{Name: "x", Type: pt.I32},
		pt.V{Name: "n", Type: pt.I32},
		pt.V{Name: "p", Type: pt.MutPtr(pt.I32)},
		pt.V{Name: "b", Type: pt.MutPtr(pt.I32)},
		pt.V{Name: "c", Type: pt.MutPtr(pt.I32)},
		pt.V{Name: "u", Type: pt.Named("U")},
		pt.V{Name: "pair", Type: pt.Named("Pair")},
		pt.V{Name: "w", Type: pt.MutPtr(pt.I32)},
		pt.V{Name: "o", Type: pt.MutPtr(pt.I32)},
	)
	m.Assign(m.L("p"), pt.AddrMut(m.L("x"))).
		Assign(pt.S("G"), pt.Use(m.L("p"))).
		Call(m.L("b"), "malloc").
		Assign(pt.Deref(m.L("b")), pt.Const()).
		Call(m.L("c"), "realloc", m.L("b")).
		Call(nil, "fill", m.L("c")).
		Call(nil, "free", m.L("c")).
		Assign(m.L("n"), pt.Use(pt.Fld(m.L("u"), "n"))).
		Assign(m.L("w"), pt.As(m.L("n"), ir.CastIntToPtr)).
		Assign(m.L("o"), pt.DynOff(m.L("w"))).
		Assign(pt.Fld(m.L("pair"), "l"), pt.Use(m.L("o"))).
		Asm(m.L("w")).
		Call(nil, "ext", pt.Fld(m.L("pair"), "r"))
	f := pb.Func("fill", pt.Void, pt.V{Name: "d", Type: pt.MutPtr(pt.I32)})
	f.Assign(pt.Idx(f.L("d"), 2), pt.Const())
	pb.Extern("ext", pt.Void, pt.V{Name: "e", Type: pt.Ptr(pt.I32)})
	return pb.Build()
}

func analyze(t *testing.T, prog *ir.Program, conf *config.Config, opts Options) *Result {
	t.Helper()

	res, err := Analyze(context.Background(), prog, conf, opts)
	require.NoError(t, err)
	checkSound(t, prog, conf, res)
	return res
}

func entry(t *testing.T, res *Result, path string) rewrite.Entry {
	t.Helper()

	e, ok := res.Plan.Lookup(path)
	require.True(t, ok, "no plan entry for %s", path)
	return e
}

func record(t *testing.T, res *Result, path string) diagnostic.Record {
	t.Helper()

	for _, r := range res.Diagnostics.Records() {
		if r.Place == path {
			return r
		}
	}
	require.FailNow(t, "no diagnostic record", path)
	return diagnostic.Record{}
}

// checkSound replays the flow graphs of the analyzed functions and checks that no rewrite
// contradicts an operation of the program.
func checkSound(t *testing.T, prog *ir.Program, conf *config.Config, res *Result) {
	t.Helper()

	if conf == nil {
		conf = config.NewDefault()
	}
	analyzed := func(name string) bool {
		_, failed := res.Failed[name]
		return slices.Contains(res.Scope, name) && !failed
	}
	b := flowgraph.NewBuilder(prog, conf, analyzed)
	for _, name := range res.Scope {
		if !analyzed(name) {
			continue
		}
		fn, _ := prog.Function(name)
		g, err := b.Build(fn)
		require.NoError(t, err, name)

		expect := func(id place.ID, what string, allowed ...rewrite.Kind) {
			path := g.Places.Get(id).Path
			e, ok := res.Plan.Lookup(path)
			if ok && !slices.Contains(allowed, e.Kind) {
				t.Errorf("%s: %s is rewritten to %v", what, path, e.Kind)
			}
		}
		for _, e := range g.Edges {
			switch e.Kind {
			case flowgraph.Store:
				expect(e.Src, "written through", rewrite.MutRef, rewrite.OwningBox, rewrite.RawPointer)
			case flowgraph.Offset:
				if e.NeedsOffset {
					expect(e.Src, "offset", rewrite.RawPointer)
				}
			case flowgraph.Free:
				expect(e.Src, "freed", rewrite.OwningBox, rewrite.RawPointer)
			case flowgraph.UnknownCall, flowgraph.Unsupported:
				for _, id := range e.Places {
					expect(id, e.Kind.String(), rewrite.RawPointer)
				}
			}
		}
	}

	for _, e := range res.Plan.Entries() {
		switch e.Kind {
		case rewrite.SharedRef, rewrite.MutRef:
			require.NotEmpty(t, e.Region, e.Place)
			require.True(t, strings.HasPrefix(e.Type, "&"+e.Region), e.String())
		case rewrite.RawPointer:
			require.NotEmpty(t, e.Reason, e.Place)
		}
	}
}

func TestAnalyze_Scenarios(t *testing.T) {
	t.Parallel()

	t.Run("shared reference", func(t *testing.T) {
		t.Parallel()

		res := analyze(t, sharedRead(), nil, Options{})
		e := entry(t, res, "main::p")
		require.Equal(t, rewrite.SharedRef, e.Kind)
		require.Equal(t, permission.Read|permission.Unique, e.Perms)
		require.Equal(t, "&'r0 i32", e.Type)
		require.Empty(t, res.Diagnostics.Records())
	})

	t.Run("offset observed", func(t *testing.T) {
		t.Parallel()

		res := analyze(t, offsetRead(), nil, Options{})
		e := entry(t, res, "main::p")
		require.Equal(t, rewrite.RawPointer, e.Kind)
		require.Equal(t, diagnostic.OffsetObserved, e.Reason)
		require.True(t, e.Perms.Has(permission.Offset))
		require.Equal(t, "*const i32", e.Type)
		require.True(t, strings.HasPrefix(record(t, res, "main::p").Explanation, "main::p has OFFSET from "))
	})

	t.Run("non-unique alias", func(t *testing.T) {
		t.Parallel()

		res := analyze(t, aliasedWrites(), nil, Options{})
		for path, partner := range map[string]string{"main::p": "main::q", "main::q": "main::p"} {
			e := entry(t, res, path)
			require.Equal(t, rewrite.RawPointer, e.Kind, path)
			require.Equal(t, diagnostic.NonUniqueAlias, e.Reason, path)
			require.Equal(t, "aliased by "+partner, e.Detail, path)
			require.Equal(t, "*mut i32", e.Type, path)
			require.Empty(t, record(t, res, path).Explanation, path)
		}
		require.Equal(t, map[diagnostic.Code]int{diagnostic.NonUniqueAlias: 2}, res.Diagnostics.Summary())
	})

	t.Run("unresolved call", func(t *testing.T) {
		t.Parallel()

		res := analyze(t, indirectCall(), nil, Options{})
		e := entry(t, res, "main::p")
		require.Equal(t, rewrite.RawPointer, e.Kind)
		require.Equal(t, diagnostic.UnresolvedCall, e.Reason)
		require.Equal(t, permission.Top, e.Perms)
		require.True(t, strings.HasPrefix(record(t, res, "main::p").Explanation, "main::p is pinned to TOP (unresolved-call) by main:"))
	})
}

func TestAnalyze_Classification(t *testing.T) {
	t.Parallel()

	type want struct {
		kind   rewrite.Kind
		reason diagnostic.Code
		typ    string
	}
	tests := []struct {
		name  string
		prog  func() *ir.Program
		conf  func(*config.Config)
		wants map[string]want
	}{
		{
			name: "mutable reference",
			prog: func() *ir.Program {
				pb := pt.NewProgram()
				m := pb.Func("main", pt.Void).Local(pt.V{Name: "x", Type: pt.I32}, pt.V{Name: "p", Type: pt.MutPtr(pt.I32)})
				m.Assign(m.L("p"), pt.AddrMut(m.L("x"))).
					Assign(pt.Deref(m.L("p")), pt.Const())
				return pb.Build()
			},
			wants: map[string]want{"main::p": {kind: rewrite.MutRef, typ: "&'r0 mut i32"}},
		},
		{
			name: "owning box",
			prog: func() *ir.Program {
				pb := pt.NewProgram()
				m := pb.Func("main", pt.Void).Local(pt.V{Name: "y", Type: pt.I32}, pt.V{Name: "b", Type: pt.MutPtr(pt.I32)})
				m.Call(m.L("b"), "malloc").
					Assign(pt.Deref(m.L("b")), pt.Const()).
					Assign(m.L("y"), pt.Use(pt.Deref(m.L("b")))).
					Call(nil, "free", m.L("b"))
				return pb.Build()
			},
			wants: map[string]want{"main::b": {kind: rewrite.OwningBox, typ: "Box<i32>"}},
		},
		{
			name: "unused",
			prog: func() *ir.Program {
				pb := pt.NewProgram()
				m := pb.Func("main", pt.Void).Local(pt.V{Name: "p", Type: pt.Ptr(pt.I32)})
				m.Assign(m.L("p"), pt.Null())
				return pb.Build()
			},
			wants: map[string]want{"main::p": {kind: rewrite.RawPointer, reason: diagnostic.Unused, typ: "*const i32"}},
		},
		{
			name: "free without ownership",
			prog: func() *ir.Program {
				pb := pt.NewProgram()
				m := pb.Func("main", pt.Void).Local(pt.V{Name: "x", Type: pt.I32}, pt.V{Name: "p", Type: pt.MutPtr(pt.I32)})
				m.Assign(m.L("p"), pt.AddrMut(m.L("x"))).
					Call(nil, "free", m.L("p"))
				return pb.Build()
			},
			wants: map[string]want{"main::p": {kind: rewrite.RawPointer, reason: diagnostic.FreeWithoutOwnership, typ: "*mut i32"}},
		},
		{
			name: "unsatisfiable region",
			prog: func() *ir.Program {
				pb := pt.NewProgram()
				f := pb.Func("f", pt.Ptr(pt.I32)).Local(pt.V{Name: "x", Type: pt.I32})
				f.Assign(f.Ret(), pt.Addr(f.L("x")))
				m := pb.Func("main", pt.Void).Local(pt.V{Name: "y", Type: pt.I32}, pt.V{Name: "q", Type: pt.Ptr(pt.I32)})
				m.Call(m.L("q"), "f").
					Assign(m.L("y"), pt.Use(pt.Deref(m.L("q"))))
				return pb.Build()
			},
			wants: map[string]want{
				"f::ret":  {kind: rewrite.RawPointer, reason: diagnostic.UnsatisfiableRegion, typ: "*const i32"},
				"main::q": {kind: rewrite.RawPointer, reason: diagnostic.UnsatisfiableRegion, typ: "*const i32"},
			},
		},
		{
			name: "override before unresolved call",
			prog: indirectCall,
			conf: func(c *config.Config) {
				c.Overrides = []config.Override{{Place: "main::p", Permissions: permission.Read}}
			},
			wants: map[string]want{"main::p": {kind: rewrite.RawPointer, reason: diagnostic.ExplicitOverride, typ: "*const i32"}},
		},
		{
			name: "unresolved call before offset",
			prog: func() *ir.Program {
				pb := pt.NewProgram()
				m := pb.Func("main", pt.Void, pt.V{Name: "fp", Type: pt.FnT}).Local(
					pt.V{Name: "arr", Type: pt.Array(pt.I32, 4)},
					pt.V{Name: "p", Type: pt.Ptr(pt.I32)},
				)
				m.Assign(m.L("p"), pt.Addr(pt.Idx(m.L("arr"), 0))).
					Assign(m.L("p"), pt.Off(m.L("p"), 1)).
					CallIndirect(nil, m.L("fp"), m.L("p"))
				return pb.Build()
			},
			wants: map[string]want{"main::p": {kind: rewrite.RawPointer, reason: diagnostic.UnresolvedCall, typ: "*const i32"}},
		},
		{
			name: "offset before alias",
			prog: func() *ir.Program {
				pb := pt.NewProgram()
				m := pb.Func("main", pt.Void).Local(
					pt.V{Name: "x", Type: pt.I32},
					pt.V{Name: "p", Type: pt.MutPtr(pt.I32)},
					pt.V{Name: "q", Type: pt.MutPtr(pt.I32)},
					pt.V{Name: "r", Type: pt.MutPtr(pt.I32)},
				)
				m.Assign(m.L("p"), pt.AddrMut(m.L("x"))).
					Assign(m.L("q"), pt.AddrMut(m.L("x"))).
					Assign(pt.Deref(m.L("p")), pt.Const()).
					Assign(pt.Deref(m.L("q")), pt.Const()).
					Assign(pt.Deref(m.L("p")), pt.Const()).
					Assign(m.L("r"), pt.Off(m.L("p"), 1))
				return pb.Build()
			},
			wants: map[string]want{
				"main::p": {kind: rewrite.RawPointer, reason: diagnostic.OffsetObserved, typ: "*mut i32"},
				"main::q": {kind: rewrite.RawPointer, reason: diagnostic.NonUniqueAlias, typ: "*mut i32"},
			},
		},
		{
			name: "unsatisfiable region before alias",
			prog: func() *ir.Program {
				pb := pt.NewProgram()
				f := pb.Func("f", pt.MutPtr(pt.I32)).Local(
					pt.V{Name: "x", Type: pt.I32},
					pt.V{Name: "p", Type: pt.MutPtr(pt.I32)},
					pt.V{Name: "q", Type: pt.MutPtr(pt.I32)},
				)
				f.Assign(f.L("p"), pt.AddrMut(f.L("x"))).
					Assign(f.L("q"), pt.AddrMut(f.L("x"))).
					Assign(pt.Deref(f.L("p")), pt.Const()).
					Assign(pt.Deref(f.L("q")), pt.Const()).
					Assign(pt.Deref(f.L("p")), pt.Const()).
					Assign(f.Ret(), pt.Use(f.L("p")))
				m := pb.Func("main", pt.Void).Local(pt.V{Name: "y", Type: pt.I32}, pt.V{Name: "r", Type: pt.MutPtr(pt.I32)})
				m.Call(m.L("r"), "f").
					Assign(m.L("y"), pt.Use(pt.Deref(m.L("r"))))
				return pb.Build()
			},
			wants: map[string]want{
				"f::q": {kind: rewrite.RawPointer, reason: diagnostic.UnsatisfiableRegion, typ: "*mut i32"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			conf := config.NewDefault()
			if tt.conf != nil {
				tt.conf(conf)
			}
			res := analyze(t, tt.prog(), conf, Options{})
			for path, w := range tt.wants {
				e := entry(t, res, path)
				require.Equal(t, w.kind, e.Kind, path)
				require.Equal(t, w.reason, e.Reason, path)
				require.Equal(t, w.typ, e.Type, path)
			}
		})
	}
}

func TestAnalyze_UnsupportedIsLocal(t *testing.T) {
	t.Parallel()

	build := func(withAsm bool) *ir.Program {
		pb := pt.NewProgram()
		m := pb.Func("main", pt.Void).Local(
			pt.V{Name: "x", Type: pt.I32},
			pt.V{Name: "z", Type: pt.I32},
			pt.V{Name: "y", Type: pt.I32},
			pt.V{Name: "p", Type: pt.Ptr(pt.I32)},
			pt.V{Name: "r", Type: pt.Ptr(pt.I32)},
		)
		m.Assign(m.L("p"), pt.Addr(m.L("x"))).
			Assign(m.L("y"), pt.Use(pt.Deref(m.L("p")))).
			Assign(m.L("r"), pt.Addr(m.L("z"))).
			Assign(m.L("y"), pt.Use(pt.Deref(m.L("r"))))
		if withAsm {
			m.Asm(m.L("r"))
		}
		return pb.Build()
	}

	base := analyze(t, build(false), nil, Options{})
	withAsm := analyze(t, build(true), nil, Options{})

	require.Equal(t, rewrite.SharedRef, entry(t, base, "main::r").Kind)
	r := entry(t, withAsm, "main::r")
	require.Equal(t, rewrite.RawPointer, r.Kind)
	require.Equal(t, diagnostic.UnsupportedConstruct, r.Reason)

	// Only the place the construct touches changes.
	require.Equal(t, base.Plan.Len(), withAsm.Plan.Len())
	for _, e := range base.Plan.Entries() {
		if e.Place == "main::r" {
			continue
		}
		if diff := cmp.Diff(e, entry(t, withAsm, e.Place)); diff != "" {
			t.Errorf("%s changed (-without +with):\n%s", e.Place, diff)
		}
	}
	p := entry(t, withAsm, "main::p")
	require.Equal(t, rewrite.SharedRef, p.Kind)
	require.Equal(t, "&'r0 i32", p.Type)
}

func TestAnalyze_ConservativeFallback(t *testing.T) {
	t.Parallel()

	conf := config.NewDefault()
	conf.Overrides = []config.Override{{Place: "main::p", Permissions: permission.Read, Reason: "foreign"}}
	res := analyze(t, sharedRead(), conf, Options{})
	e := entry(t, res, "main::p")
	require.Equal(t, rewrite.RawPointer, e.Kind)
	require.Equal(t, diagnostic.ExplicitOverride, e.Reason)
	require.Equal(t, "foreign", e.Detail)

	res = analyze(t, sharedRead(), nil, Options{Engine: failingEngine{}})
	e = entry(t, res, "main::p")
	require.Equal(t, rewrite.RawPointer, e.Kind)
	require.Equal(t, diagnostic.MissingFact, e.Reason)
	require.Equal(t, "no region fact", e.Detail)

	res = analyze(t, sharedRead(), nil, Options{Engine: emptyEngine{}})
	e = entry(t, res, "main::p")
	require.Equal(t, diagnostic.MissingFact, e.Reason)
	require.Equal(t, "region engine left it out", e.Detail)
}

func TestAnalyze_Mixed(t *testing.T) {
	t.Parallel()

	res := analyze(t, mixed(), nil, Options{})
	require.Equal(t, []string{"fill", "main"}, res.Scope)
	require.Empty(t, res.Failed)

	for path, code := range map[string]diagnostic.Code{
		"main::w":      diagnostic.UnsupportedConstruct,
		"main::pair.r": diagnostic.UnresolvedCall,
		"fill::d":      diagnostic.OffsetObserved,
	} {
		e := entry(t, res, path)
		require.Equal(t, rewrite.RawPointer, e.Kind, path)
		require.Equal(t, code, e.Reason, path)
	}
	require.NotZero(t, res.Plan.Len())
}

func TestAnalyze_Deterministic(t *testing.T) {
	t.Parallel()

	var binaries [][]byte
	var texts [][]byte
	for i := 0; i < 3; i++ {
		conf := config.NewDefault()
		conf.Parallelism = i + 1
		res := analyze(t, mixed(), conf, Options{})

		b, err := res.Plan.MarshalBinary()
		require.NoError(t, err)
		binaries = append(binaries, b)
		j, err := json.Marshal(res.Plan)
		require.NoError(t, err)
		texts = append(texts, j)
	}
	for i := 1; i < len(binaries); i++ {
		require.Equal(t, binaries[0], binaries[i])
		require.Equal(t, string(texts[0]), string(texts[i]))
	}
}

func TestAnalyze_Malformed(t *testing.T) {
	t.Parallel()

	prog := sharedRead()
	pb := pt.NewProgram()
	b := pb.Func("broken", pt.Void, pt.V{Name: "s", Type: pt.Ptr(pt.U8)})
	b.Assign(&ir.Place{Local: 7}, pt.Const())
	prog.Functions = append(prog.Functions, pb.Build().Functions...)

	res := analyze(t, prog, nil, Options{})
	require.Equal(t, map[string]diagnostic.Code{"broken": diagnostic.MalformedInput}, res.Failed)

	e := entry(t, res, "broken::s")
	require.Equal(t, rewrite.RawPointer, e.Kind)
	require.Equal(t, diagnostic.MalformedInput, e.Reason)
	require.Equal(t, rewrite.SharedRef, entry(t, res, "main::p").Kind)
}

func TestAnalyzeFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	list := filepath.Join("testdata", "list.json")

	res, err := AnalyzeFiles(ctx, list, "", Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"main", "sum"}, res.Scope)

	b := entry(t, res, "main::b")
	require.Equal(t, rewrite.OwningBox, b.Kind)
	require.Equal(t, "Box<Node>", b.Type)
	n := entry(t, res, "sum::n")
	require.Equal(t, rewrite.SharedRef, n.Kind)
	require.Equal(t, "&"+n.Region+" Node", n.Type)
	// The argument and the parameter point to the same local, so they share a region.
	q := entry(t, res, "main::q")
	require.Equal(t, rewrite.SharedRef, q.Kind)
	require.Equal(t, n.Region, q.Region)

	res, err = AnalyzeFiles(ctx, list, filepath.Join("testdata", "override.yaml"), Options{})
	require.NoError(t, err)
	n = entry(t, res, "sum::n")
	require.Equal(t, rewrite.RawPointer, n.Kind)
	require.Equal(t, diagnostic.ExplicitOverride, n.Reason)
	require.Equal(t, "shared with a foreign caller", n.Detail)

	_, err = AnalyzeFiles(ctx, filepath.Join("testdata", "missing.json"), "", Options{})
	require.ErrorContains(t, err, "open program")
	_, err = AnalyzeFiles(ctx, list, filepath.Join("testdata", "missing.yaml"), Options{})
	require.ErrorContains(t, err, "could not read config file")
}
