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

package flowgraph

import (
	"fmt"

	"go.uber.org/ptrperm/config"
	"go.uber.org/ptrperm/ir"
	"go.uber.org/ptrperm/place"
)

// maxLeafDepth bounds the expansion of aggregates into their pointer leaves. Types are finite
// trees once pointers stop the expansion, so the bound is only hit by absurdly nested arrays.
const maxLeafDepth = 64

// Builder holds what every function's build shares. It is read-only and safe for concurrent use.
type Builder struct {
	prog *ir.Program
	conf *config.Config
	// analyzed reports whether calls to a function are resolved to its body.
	analyzed func(name string) bool
}

// NewBuilder returns a builder. analyzed decides which callees are resolved to their bodies;
// calls to any other function are calls to an unknown callee.
func NewBuilder(prog *ir.Program, conf *config.Config, analyzed func(name string) bool) *Builder {
	return &Builder{prog: prog, conf: conf, analyzed: analyzed}
}

// fnBuilder is the state of building a single function.
type fnBuilder struct {
	*Builder
	fn    *ir.Function
	g     *Graph
	point int
	line  int
	seen  map[string]bool
}

// Build builds the flow graph of fn. An error means the function is malformed; it never
// affects other functions.
func (b *Builder) Build(fn *ir.Function) (*Graph, error) {
	fb := &fnBuilder{
		Builder: b,
		fn:      fn,
		g: &Graph{
			Func:   fn.Name,
			Places: place.NewTable(fn.Name),
			Live:   make(map[place.ID]Interval),
		},
		seen: make(map[string]bool),
	}

	order := reversePostOrder(fn)
	blockRange := make([]Interval, len(fn.Blocks))
	// Point 0 is the function entry, where parameters become live.
	fb.point = config.EntryPoint
	for _, bi := range order {
		blk := fn.Blocks[bi]
		start := fb.point + 1
		if len(blk.Stmts) == 0 {
			fb.point++
		}
		for i := range blk.Stmts {
			fb.point++
			fb.line = blk.Stmts[i].Line
			if err := fb.stmt(&blk.Stmts[i]); err != nil {
				if fb.line > 0 {
					return nil, fmt.Errorf("line %d: %w", fb.line, err)
				}
				return nil, err
			}
		}
		blockRange[bi] = Interval{First: start, Last: fb.point}
	}
	fb.g.Points = fb.point

	fb.finishLiveness(blockRange)
	return fb.g, nil
}

// finishLiveness extends parameters to the entry and the return place to the exit, then
// widens every interval touching a loop to the whole loop.
func (fb *fnBuilder) finishLiveness(blockRange []Interval) {
	g := fb.g
	for id, iv := range g.Live {
		root := g.Places.Get(g.Places.Root(id))
		if root.Kind != place.KindLocal {
			continue
		}
		if fb.fn.IsParam(root.Local) {
			iv.add(config.EntryPoint)
		}
		if root.Local == ir.ReturnLocal {
			iv.add(g.Points)
		}
		g.Live[id] = iv
	}

	loops := loopRanges(fb.fn, blockRange)
	for changed := true; changed; {
		changed = false
		for id, iv := range g.Live {
			for _, loop := range loops {
				if iv.First <= loop.Last && loop.First <= iv.Last && (iv.First > loop.First || iv.Last < loop.Last) {
					iv.add(loop.First)
					iv.add(loop.Last)
					changed = true
				}
			}
			g.Live[id] = iv
		}
	}
}

func (fb *fnBuilder) mention(id place.ID) {
	iv, ok := fb.g.Live[id]
	if !ok {
		fb.g.Live[id] = Interval{First: fb.point, Last: fb.point}
		return
	}
	iv.add(fb.point)
	fb.g.Live[id] = iv
}

func (fb *fnBuilder) emit(e Edge) {
	e.Point, e.Line = fb.point, fb.line
	fb.g.Edges = append(fb.g.Edges, e)
}

func (fb *fnBuilder) intern(pl *ir.Place) (place.ID, error) {
	return fb.g.Places.Intern(fb.prog, fb.fn, pl)
}

func (fb *fnBuilder) get(id place.ID) *place.Place { return fb.g.Places.Get(id) }

// access interns pl and emits the operations needed to reach it: a load through every
// dereferenced pointer (except the innermost one when skipInnermost is set), offset requirements
// for indexing through pointers, and an unsupported edge for union member access.
func (fb *fnBuilder) access(pl *ir.Place, skipInnermost bool) (id place.ID, innermost place.ID, err error) {
	id, err = fb.intern(pl)
	if err != nil {
		return place.NoID, place.NoID, err
	}
	fb.mention(id)
	tab := fb.g.Places

	innermost, hasInner := tab.Innermost(id)
	if !hasInner {
		innermost = place.NoID
	}
	for _, ptr := range tab.Dereferenced(id) {
		fb.mention(ptr)
		if skipInnermost && ptr == innermost {
			continue
		}
		fb.emit(Edge{Kind: Load, Dst: place.NoID, Src: ptr})
	}

	for p := fb.get(id); p.Parent != place.NoID; p = fb.get(p.Parent) {
		parent := fb.get(p.Parent)
		switch {
		case p.Kind == place.KindIndex && parent.IsPointer():
			fb.emit(Edge{Kind: Offset, Dst: place.NoID, Src: parent.ID, NeedsOffset: p.Index == nil || *p.Index != 0})
		case p.Kind == place.KindField && parent.Type.Kind == ir.TypeUnion:
			leaves, err := fb.leaves(parent.ID)
			if err != nil {
				return place.NoID, place.NoID, err
			}
			fb.emit(Edge{Kind: Unsupported, Dst: place.NoID, Src: place.NoID, Places: leaves, Detail: fmt.Sprintf("union member access %s", p.Expr)})
		}
	}
	return id, innermost, nil
}

func (fb *fnBuilder) read(pl *ir.Place) (place.ID, error) {
	id, _, err := fb.access(pl, false)
	return id, err
}

func (fb *fnBuilder) write(pl *ir.Place) (place.ID, error) {
	id, innermost, err := fb.access(pl, true)
	if err != nil {
		return place.NoID, err
	}
	if innermost != place.NoID {
		fb.emit(Edge{Kind: Store, Dst: place.NoID, Src: innermost})
	}
	return id, nil
}

// leaves returns the pointer-typed places inside the location id (id itself if it is a
// pointer), interning them as needed.
func (fb *fnBuilder) leaves(id place.ID) ([]place.ID, error) {
	var out []place.ID
	var walk func(id place.ID, depth int) error
	walk = func(id place.ID, depth int) error {
		if depth > maxLeafDepth {
			return fmt.Errorf("type of %s nested too deeply", fb.get(id).Path)
		}
		t := fb.get(id).Type
		switch t.Kind {
		case ir.TypePtr:
			out = append(out, id)
		case ir.TypeStruct, ir.TypeUnion:
			for _, f := range t.Fields {
				child, err := fb.g.Places.Child(fb.prog, id, ir.Projection{Kind: ir.ProjField, Field: f.Name})
				if err != nil {
					return err
				}
				if err := walk(child, depth+1); err != nil {
					return err
				}
			}
		case ir.TypeArray:
			child, err := fb.g.Places.Child(fb.prog, id, ir.Projection{Kind: ir.ProjIndex})
			if err != nil {
				return err
			}
			return walk(child, depth+1)
		}
		return nil
	}
	err := walk(id, 0)
	return out, err
}

// relative returns the projections leading from ancestor to id, which must only go through
// fields and array elements.
func (fb *fnBuilder) relative(ancestor, id place.ID) []ir.Projection {
	var proj []ir.Projection
	for p := fb.get(id); p.ID != ancestor; p = fb.get(p.Parent) {
		step := ir.Projection{Kind: ir.ProjField, Field: p.Name}
		if p.Kind == place.KindIndex {
			step = ir.Projection{Kind: ir.ProjIndex, Index: p.Index}
		}
		proj = append([]ir.Projection{step}, proj...)
	}
	return proj
}

// copyLeaves emits an assign per pointer leaf of a copy from src into dst.
func (fb *fnBuilder) copyLeaves(kind EdgeKind, dst, src place.ID) error {
	dp, sp := fb.get(dst), fb.get(src)
	if dp.IsPointer() && sp.IsPointer() {
		fb.emit(Edge{Kind: kind, Dst: dst, Src: src})
		return nil
	}
	if dp.IsPointer() != sp.IsPointer() {
		return fb.unsupportedCopy(dst, src, "copy between pointer and non-pointer")
	}
	if dp.Type.Kind == ir.TypeUnion || sp.Type.Kind == ir.TypeUnion {
		return fb.unsupportedCopy(dst, src, "copy of a union")
	}

	dleaves, err := fb.leaves(dst)
	if err != nil {
		return err
	}
	for _, dl := range dleaves {
		sl := src
		ok := true
		for _, step := range fb.relative(dst, dl) {
			if sl, err = fb.g.Places.Child(fb.prog, sl, step); err != nil {
				ok = false
				break
			}
		}
		if !ok || !fb.get(sl).IsPointer() {
			return fb.unsupportedCopy(dst, src, "copy between differently shaped aggregates")
		}
		fb.mention(dl)
		fb.mention(sl)
		fb.emit(Edge{Kind: kind, Dst: dl, Src: sl})
	}
	return nil
}

func (fb *fnBuilder) unsupportedCopy(dst, src place.ID, detail string) error {
	var all []place.ID
	for _, id := range []place.ID{dst, src} {
		leaves, err := fb.leaves(id)
		if err != nil {
			return err
		}
		all = append(all, leaves...)
	}
	fb.emit(Edge{Kind: Unsupported, Dst: place.NoID, Src: place.NoID, Places: all, Detail: detail})
	return nil
}

func (fb *fnBuilder) stmt(st *ir.Stmt) error {
	switch st.Kind {
	case ir.StmtNop:
		return nil
	case ir.StmtAssign:
		return fb.assign(st.Dest, st.Value)
	case ir.StmtCall:
		return fb.call(st.Call)
	case ir.StmtAsm:
		var all []place.ID
		for _, op := range st.Asm {
			id, _, err := fb.access(op, false)
			if err != nil {
				return err
			}
			all = append(all, fb.g.Places.Dereferenced(id)...)
			leaves, err := fb.leaves(id)
			if err != nil {
				return err
			}
			all = append(all, leaves...)
		}
		fb.emit(Edge{Kind: Unsupported, Dst: place.NoID, Src: place.NoID, Places: all, Detail: "inline assembly"})
		return nil
	}
	return fmt.Errorf("unknown statement kind %q", st.Kind)
}

func (fb *fnBuilder) assign(destPl *ir.Place, rv *ir.Rvalue) error {
	switch rv.Kind {
	case ir.RvUse:
		src, err := fb.read(rv.Place)
		if err != nil {
			return err
		}
		dst, err := fb.write(destPl)
		if err != nil {
			return err
		}
		return fb.copyLeaves(Assign, dst, src)

	case ir.RvAddrOf:
		target, innermost, err := fb.access(rv.Place, true)
		if err != nil {
			return err
		}
		dst, err := fb.write(destPl)
		if err != nil {
			return err
		}
		if !fb.get(dst).IsPointer() {
			return fb.unsupportedCopy(dst, target, "address stored in a non-pointer")
		}
		fb.emit(Edge{Kind: AddrOf, Dst: dst, Src: target, Mut: rv.Mut})
		if innermost != place.NoID {
			// The new pointer is derived from the pointer it was computed through.
			fb.emit(Edge{Kind: Assign, Dst: dst, Src: innermost})
		}
		return nil

	case ir.RvCast:
		src, err := fb.read(rv.Place)
		if err != nil {
			return err
		}
		dst, err := fb.write(destPl)
		if err != nil {
			return err
		}
		sp, dp := fb.get(src), fb.get(dst)
		switch {
		case rv.Cast == ir.CastPtr && sp.IsPointer() && dp.IsPointer():
			fb.emit(Edge{Kind: Cast, Dst: dst, Src: src})
		case rv.Cast == ir.CastPtrToInt && sp.IsPointer():
			fb.emit(Edge{Kind: Unsupported, Dst: place.NoID, Src: place.NoID, Places: []place.ID{src}, Detail: "pointer-to-integer cast"})
		case rv.Cast == ir.CastIntToPtr && dp.IsPointer():
			fb.emit(Edge{Kind: Unsupported, Dst: place.NoID, Src: place.NoID, Places: []place.ID{dst}, Detail: "integer-to-pointer cast"})
		case !sp.IsPointer() && !dp.IsPointer() && rv.Cast != ir.CastTransmute:
			// Scalar conversions are irrelevant.
		default:
			return fb.unsupportedCopy(dst, src, fmt.Sprintf("%s cast", rv.Cast))
		}
		return nil

	case ir.RvOffset:
		src, err := fb.read(rv.Place)
		if err != nil {
			return err
		}
		dst, err := fb.write(destPl)
		if err != nil {
			return err
		}
		e := Edge{Kind: Offset, Dst: place.NoID, Src: src, NeedsOffset: rv.Offset == nil || *rv.Offset != 0}
		if fb.get(dst).IsPointer() {
			e.Dst = dst
		}
		fb.emit(e)
		return nil

	case ir.RvNull, ir.RvConst:
		_, err := fb.write(destPl)
		return err

	case ir.RvBinOp:
		var ptrs []place.ID
		for _, op := range rv.Operands {
			id, err := fb.read(op)
			if err != nil {
				return err
			}
			if fb.get(id).IsPointer() {
				ptrs = append(ptrs, id)
			}
		}
		dst, err := fb.write(destPl)
		if err != nil {
			return err
		}
		if !fb.get(dst).IsPointer() {
			// Pointer comparisons and differences need no capability.
			return nil
		}
		if len(ptrs) != 1 {
			fb.emit(Edge{Kind: Unsupported, Dst: place.NoID, Src: place.NoID, Places: append(ptrs, dst), Detail: "pointer produced by arithmetic on non-pointers"})
			return nil
		}
		fb.emit(Edge{Kind: Offset, Dst: dst, Src: ptrs[0], NeedsOffset: true})
		return nil
	}
	return fmt.Errorf("unknown rvalue kind %q", rv.Kind)
}

func (fb *fnBuilder) call(c *ir.Call) error {
	var args [][]place.ID
	var argIDs []place.ID
	for _, a := range c.Args {
		if a.Place == nil {
			args, argIDs = append(args, nil), append(argIDs, place.NoID)
			continue
		}
		id, err := fb.read(a.Place)
		if err != nil {
			return err
		}
		leaves, err := fb.leaves(id)
		if err != nil {
			return err
		}
		args, argIDs = append(args, leaves), append(argIDs, id)
	}
	if c.Indirect != nil {
		if _, err := fb.read(c.Indirect); err != nil {
			return err
		}
	}
	dst, dstLeaves := place.NoID, []place.ID(nil)
	if c.Dest != nil {
		var err error
		if dst, err = fb.write(c.Dest); err != nil {
			return err
		}
		if dstLeaves, err = fb.leaves(dst); err != nil {
			return err
		}
	}

	callee := c.Callee
	switch {
	case c.Indirect != nil || callee == "":
		fb.unknownCall(callee, "indirect call", args, dstLeaves)

	case fb.conf.IsAllocator(callee) || fb.conf.IsReallocator(callee):
		if fb.conf.IsReallocator(callee) && len(args) > 0 {
			for _, l := range args[0] {
				fb.emit(Edge{Kind: Free, Dst: place.NoID, Src: l, Callee: callee})
			}
		}
		if dst != place.NoID && fb.get(dst).IsPointer() {
			fb.emit(Edge{Kind: Alloc, Dst: dst, Src: place.NoID, Callee: callee})
		}

	case fb.conf.IsDeallocator(callee):
		if len(args) > 0 {
			for _, l := range args[0] {
				fb.emit(Edge{Kind: Free, Dst: place.NoID, Src: l, Callee: callee})
			}
		}

	case fb.analyzed(callee):
		target, _ := fb.prog.Function(callee)
		if !fb.seen[callee] {
			fb.seen[callee] = true
			fb.g.Callees = append(fb.g.Callees, callee)
		}
		for i, leaves := range args {
			for _, l := range leaves {
				fb.emit(Edge{
					Kind:   CallArg,
					Dst:    place.NoID,
					Src:    l,
					Callee: callee,
					Formal: place.Path{Scope: callee, Base: target.LocalName(i + 1), Proj: fb.relative(argIDs[i], l)},
				})
			}
		}
		for _, l := range dstLeaves {
			fb.emit(Edge{
				Kind:   CallReturn,
				Dst:    l,
				Src:    place.NoID,
				Callee: callee,
				Formal: place.Path{Scope: callee, Base: target.LocalName(ir.ReturnLocal), Proj: fb.relative(dst, l)},
			})
		}

	default:
		detail := "unresolved callee " + callee
		if f, ok := fb.prog.Function(callee); ok && f.Extern {
			detail = "external callee " + callee
		} else if ok {
			detail = "callee " + callee + " is not analyzed"
		}
		fb.unknownCall(callee, detail, args, dstLeaves)
	}
	return nil
}

func (fb *fnBuilder) unknownCall(callee, detail string, args [][]place.ID, dst []place.ID) {
	var all []place.ID
	for _, leaves := range args {
		all = append(all, leaves...)
	}
	all = append(all, dst...)
	fb.emit(Edge{Kind: UnknownCall, Dst: place.NoID, Src: place.NoID, Callee: callee, Places: all, Detail: detail})
}
