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
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/ptrperm/config"
	"go.uber.org/ptrperm/diagnostic"
	"go.uber.org/ptrperm/flowgraph"
	"go.uber.org/ptrperm/ir"
	"go.uber.org/ptrperm/permission"
	"go.uber.org/ptrperm/pointsto"
	pt "go.uber.org/ptrperm/ptrpermtest"
)

type fixture struct {
	arena  *Arena
	graphs map[string]*flowgraph.Graph
	gen    *Generator
	diag   *diagnostic.Engine
}

func setup(t *testing.T, prog *ir.Program) *fixture {
	t.Helper()

	b := flowgraph.NewBuilder(prog, config.NewDefault(), func(name string) bool {
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

	f := &fixture{arena: NewArena(), graphs: make(map[string]*flowgraph.Graph), diag: diagnostic.NewEngine()}
	for _, g := range graphs {
		f.arena.AddGraph(g, pts)
		f.graphs[g.Func] = g
	}
	for _, g := range graphs {
		f.arena.AddFormals(g, pts)
	}
	f.gen = NewGenerator(f.arena, pts, f.diag)
	return f
}

func (f *fixture) render(s *Set) (cons []string, pins []string) {
	name := func(id VarID) string { return f.arena.Var(id).Path }
	for _, c := range s.Constraints {
		cons = append(cons, fmt.Sprintf("%s %s %s", name(c.Left), c.Kind, name(c.Right)))
	}
	for _, p := range s.Pins {
		pins = append(pins, fmt.Sprintf("%s %v %s", name(p.Var), p.Perms, p.Code))
	}
	return cons, pins
}

func TestArena(t *testing.T) {
	t.Parallel()

	a := NewArena()
	require.Equal(t, permission.Height, a.Len())
	for _, bit := range permission.All {
		v := a.Var(a.Const(bit))
		require.True(t, v.IsConst())
		require.False(t, v.IsFormalOnly())
		require.Equal(t, bit, v.Const)
		require.Equal(t, bit.String(), v.Path)
	}
	require.Panics(t, func() { a.Const(permission.Read | permission.Write) })
}

func TestFunction(t *testing.T) {
	t.Parallel()

	pb := pt.NewProgram()
	f := pb.Func("f", pt.Void, pt.V{Name: "q", Type: pt.Ptr(pt.I32)}).Local(
		pt.V{Name: "x", Type: pt.I32},
		pt.V{Name: "y", Type: pt.I32},
		pt.V{Name: "p", Type: pt.MutPtr(pt.I32)},
		pt.V{Name: "r", Type: pt.MutPtr(pt.I32)},
	)
	f.Assign(f.L("p"), pt.AddrMut(f.L("x"))).
		Assign(pt.Deref(f.L("p")), pt.Const()).
		Assign(f.L("r"), pt.Use(f.L("p"))).
		Assign(f.L("y"), pt.Use(pt.Deref(f.L("r")))).
		Assign(f.L("r"), pt.Off(f.L("p"), 1)).
		Call(nil, "g", f.L("r")).
		Call(nil, "free", f.L("r"))
	pb.Func("g", pt.Void, pt.V{Name: "s", Type: pt.MutPtr(pt.I32)})

	fx := setup(t, pb.Build())

	// g never mentions its parameter, so it only exists as a formal.
	s, ok := fx.arena.Lookup("g::s")
	require.True(t, ok)
	require.True(t, fx.arena.Var(s).IsFormalOnly())
	require.Equal(t, "g", fx.arena.Var(s).Func)

	cons, pins := fx.render(fx.gen.Function(fx.graphs["f"]))
	want := []string{
		"WRITE ⊑ f::p",
		"f::r ⊑ f::p",
		"READ ⊑ f::r",
		"OFFSET ⊑ f::p",
		"f::r ⊑ f::p",
		"f::r = g::s",
		"FREE ⊑ f::r",
	}
	if diff := cmp.Diff(want, cons); diff != "" {
		t.Errorf("constraints mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, pins)

	cons, pins = fx.render(fx.gen.Global(config.NewDefault()))
	require.Empty(t, cons)
	require.Empty(t, pins)
}

func TestFunction_Pins(t *testing.T) {
	t.Parallel()

	pb := pt.NewProgram()
	f := pb.Func("f", pt.Void, pt.V{Name: "fp", Type: pt.FnT}).Local(
		pt.V{Name: "x", Type: pt.I32},
		pt.V{Name: "p", Type: pt.MutPtr(pt.I32)},
		pt.V{Name: "pp", Type: pt.MutPtr(pt.MutPtr(pt.I32))},
		pt.V{Name: "c", Type: pt.Ptr(pt.U8)},
	)
	f.Assign(f.L("p"), pt.AddrMut(f.L("x"))).
		Assign(f.L("pp"), pt.AddrMut(f.L("p"))).
		Asm(f.L("pp")).
		CallIndirect(nil, f.L("fp"), f.L("c"))

	fx := setup(t, pb.Build())

	cons, pins := fx.render(fx.gen.Function(fx.graphs["f"]))
	require.Empty(t, cons)
	require.Equal(t, []string{
		"f::pp TOP unsupported-construct",
		"f::c TOP unresolved-call",
	}, pins)
	require.Equal(t, []diagnostic.Note{{Func: "f", Line: 3, Code: diagnostic.UnsupportedConstruct, Message: "inline assembly"}}, fx.diag.Notes())

	// p is stored in memory handed to the assembly, so it is pinned as well. The first cause
	// decides the reason.
	_, pins = fx.render(fx.gen.Global(config.NewDefault()))
	require.Contains(t, pins, "f::p TOP unsupported-construct")
	require.NotContains(t, pins, "f::pp TOP unsupported-construct")
}

func TestGlobal_SameLocation(t *testing.T) {
	t.Parallel()

	pb := pt.NewProgram()
	f := pb.Func("f", pt.Void).Local(
		pt.V{Name: "x", Type: pt.I32},
		pt.V{Name: "y", Type: pt.I32},
		pt.V{Name: "p", Type: pt.Ptr(pt.I32)},
		pt.V{Name: "pp", Type: pt.Ptr(pt.Ptr(pt.I32))},
		pt.V{Name: "qq", Type: pt.Ptr(pt.Ptr(pt.I32))},
	)
	f.Assign(f.L("p"), pt.Addr(f.L("x"))).
		Assign(f.L("pp"), pt.Addr(f.L("p"))).
		Assign(f.L("qq"), pt.Use(f.L("pp"))).
		Assign(f.L("y"), pt.Use(pt.Deref(pt.Deref(f.L("pp"))))).
		Assign(f.L("y"), pt.Use(pt.Deref(pt.Deref(f.L("qq")))))

	fx := setup(t, pb.Build())
	cons, pins := fx.render(fx.gen.Global(config.NewDefault()))
	want := []string{
		"f::p = f::(*pp)",
		"f::(*pp) = f::(*qq)",
	}
	if diff := cmp.Diff(want, cons); diff != "" {
		t.Errorf("constraints mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, pins)
}

func TestGlobal_Overrides(t *testing.T) {
	t.Parallel()

	pb := pt.NewProgram().Static("g", pt.MutPtr(pt.I32))
	f := pb.Func("f", pt.Void).Local(pt.V{Name: "y", Type: pt.I32})
	f.Assign(f.L("y"), pt.Use(pt.Deref(pt.S("g"))))

	fx := setup(t, pb.Build())
	conf := config.NewDefault()
	conf.Overrides = []config.Override{
		{Place: "static::g", Permissions: permission.Read, Reason: "shared with C"},
		{Place: "f::nope", Permissions: permission.Top},
	}
	_, pins := fx.render(fx.gen.Global(conf))
	require.Equal(t, []string{"static::g READ explicit-override"}, pins)

	g, ok := fx.arena.Lookup("static::g")
	require.True(t, ok)
	require.Empty(t, fx.arena.Var(g).Func)
	require.True(t, fx.arena.Var(g).IsStatic())

	notes := fx.diag.Notes()
	require.Len(t, notes, 1)
	require.Equal(t, "f", notes[0].Func)
	require.Contains(t, notes[0].Message, "f::nope")
}
