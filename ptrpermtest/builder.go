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

// Package ptrpermtest implements a small builder for input programs, so that tests can describe
// programs tersely instead of spelling out the JSON encoding.
package ptrpermtest

import (
	"fmt"

	"go.uber.org/ptrperm/ir"
)

// Common scalar types.
var (
	I32  = &ir.Type{Kind: ir.TypeInt, Name: "i32"}
	U8   = &ir.Type{Kind: ir.TypeInt, Name: "u8"}
	Void = &ir.Type{Kind: ir.TypeVoid}
	FnT  = &ir.Type{Kind: ir.TypeFn}
)

// Ptr returns a `*const elem` type.
func Ptr(elem *ir.Type) *ir.Type { return &ir.Type{Kind: ir.TypePtr, Elem: elem} }

// MutPtr returns a `*mut elem` type.
func MutPtr(elem *ir.Type) *ir.Type { return &ir.Type{Kind: ir.TypePtr, Mut: true, Elem: elem} }

// Array returns a `[elem; n]` type.
func Array(elem *ir.Type, n int64) *ir.Type { return &ir.Type{Kind: ir.TypeArray, Elem: elem, Len: n} }

// Named refers to a type declared with ProgramBuilder.Type.
func Named(name string) *ir.Type { return &ir.Type{Kind: ir.TypeNamed, Name: name} }

// F is a struct or union member.
func F(name string, t *ir.Type) ir.Field { return ir.Field{Name: name, Type: t} }

// Struct returns a struct type.
func Struct(name string, fields ...ir.Field) *ir.Type {
	return &ir.Type{Kind: ir.TypeStruct, Name: name, Fields: fields}
}

// Union returns a union type.
func Union(name string, fields ...ir.Field) *ir.Type {
	return &ir.Type{Kind: ir.TypeUnion, Name: name, Fields: fields}
}

// V declares a named local or parameter.
type V struct {
	Name string
	Type *ir.Type
}

// ProgramBuilder builds an ir.Program.
type ProgramBuilder struct {
	prog *ir.Program
	line int
}

// NewProgram returns an empty program builder.
func NewProgram() *ProgramBuilder {
	return &ProgramBuilder{prog: &ir.Program{Types: make(map[string]*ir.Type)}}
}

// Type declares a named type.
func (b *ProgramBuilder) Type(name string, t *ir.Type) *ProgramBuilder {
	b.prog.Types[name] = t
	return b
}

// Static declares a static.
func (b *ProgramBuilder) Static(name string, t *ir.Type) *ProgramBuilder {
	b.prog.Statics = append(b.prog.Statics, ir.Static{Name: name, Type: t})
	return b
}

// Extern declares a function without a body.
func (b *ProgramBuilder) Extern(name string, ret *ir.Type, params ...V) *ProgramBuilder {
	fn := &ir.Function{Name: name, Extern: true, Params: len(params), Locals: []ir.Local{{Name: "ret", Type: ret}}}
	for _, p := range params {
		fn.Locals = append(fn.Locals, ir.Local{Name: p.Name, Type: p.Type})
	}
	b.prog.Functions = append(b.prog.Functions, fn)
	return b
}

// Func starts a defined function with a single, empty entry block.
func (b *ProgramBuilder) Func(name string, ret *ir.Type, params ...V) *FuncBuilder {
	fn := &ir.Function{Name: name, Params: len(params), Locals: []ir.Local{{Name: "ret", Type: ret}}, Blocks: []ir.Block{{}}}
	for _, p := range params {
		fn.Locals = append(fn.Locals, ir.Local{Name: p.Name, Type: p.Type})
	}
	b.prog.Functions = append(b.prog.Functions, fn)
	return &FuncBuilder{prog: b, fn: fn}
}

// Build returns the program.
func (b *ProgramBuilder) Build() *ir.Program { return b.prog }

// FuncBuilder appends locals, blocks and statements to a function.
type FuncBuilder struct {
	prog *ProgramBuilder
	fn   *ir.Function
	cur  int
}

// Fn returns the function being built.
func (f *FuncBuilder) Fn() *ir.Function { return f.fn }

// Local declares locals.
func (f *FuncBuilder) Local(vars ...V) *FuncBuilder {
	for _, v := range vars {
		f.fn.Locals = append(f.fn.Locals, ir.Local{Name: v.Name, Type: v.Type})
	}
	return f
}

// L returns the place of the named local. It panics on an unknown name.
func (f *FuncBuilder) L(name string) *ir.Place {
	for i, l := range f.fn.Locals {
		if l.Name == name {
			return &ir.Place{Local: i}
		}
	}
	panic(fmt.Sprintf("unknown local %q in %s", name, f.fn.Name))
}

// Ret returns the return place.
func (f *FuncBuilder) Ret() *ir.Place { return &ir.Place{Local: ir.ReturnLocal} }

// Block starts a new basic block and makes it current. It returns the block index.
func (f *FuncBuilder) Block() int {
	f.fn.Blocks = append(f.fn.Blocks, ir.Block{})
	f.cur = len(f.fn.Blocks) - 1
	return f.cur
}

// In makes block i current.
func (f *FuncBuilder) In(i int) *FuncBuilder {
	f.cur = i
	return f
}

// Goto sets the successors of the current block.
func (f *FuncBuilder) Goto(succs ...int) *FuncBuilder {
	f.fn.Blocks[f.cur].Succs = succs
	return f
}

func (f *FuncBuilder) add(st ir.Stmt) *FuncBuilder {
	f.prog.line++
	st.Line = f.prog.line
	f.fn.Blocks[f.cur].Stmts = append(f.fn.Blocks[f.cur].Stmts, st)
	return f
}

// Line returns the line number the next statement will get.
func (f *FuncBuilder) Line() int { return f.prog.line + 1 }

// Assign appends `dst = rv`.
func (f *FuncBuilder) Assign(dst *ir.Place, rv *ir.Rvalue) *FuncBuilder {
	return f.add(ir.Stmt{Kind: ir.StmtAssign, Dest: dst, Value: rv})
}

// Call appends a direct call. dst may be nil; a nil argument is a constant.
func (f *FuncBuilder) Call(dst *ir.Place, callee string, args ...*ir.Place) *FuncBuilder {
	return f.add(ir.Stmt{Kind: ir.StmtCall, Call: &ir.Call{Callee: callee, Args: operands(args), Dest: dst}})
}

// CallIndirect appends a call through the function pointer fnPtr.
func (f *FuncBuilder) CallIndirect(dst, fnPtr *ir.Place, args ...*ir.Place) *FuncBuilder {
	return f.add(ir.Stmt{Kind: ir.StmtCall, Call: &ir.Call{Indirect: fnPtr, Args: operands(args), Dest: dst}})
}

// Asm appends an inline assembly statement.
func (f *FuncBuilder) Asm(ops ...*ir.Place) *FuncBuilder {
	return f.add(ir.Stmt{Kind: ir.StmtAsm, Asm: ops})
}

// Nop appends a statement without effect.
func (f *FuncBuilder) Nop() *FuncBuilder { return f.add(ir.Stmt{Kind: ir.StmtNop}) }

func operands(args []*ir.Place) []ir.Operand {
	out := make([]ir.Operand, len(args))
	for i, a := range args {
		out[i] = ir.Operand{Place: a}
	}
	return out
}

func project(pl *ir.Place, proj ir.Projection) *ir.Place {
	out := &ir.Place{Local: pl.Local, Static: pl.Static}
	out.Proj = append(append(out.Proj, pl.Proj...), proj)
	return out
}

// S returns the place of a static.
func S(name string) *ir.Place { return &ir.Place{Static: name} }

// Deref returns `*pl`.
func Deref(pl *ir.Place) *ir.Place { return project(pl, ir.Projection{Kind: ir.ProjDeref}) }

// Fld returns `pl.name`.
func Fld(pl *ir.Place, name string) *ir.Place {
	return project(pl, ir.Projection{Kind: ir.ProjField, Field: name})
}

// Idx returns `pl[i]`.
func Idx(pl *ir.Place, i int64) *ir.Place {
	return project(pl, ir.Projection{Kind: ir.ProjIndex, Index: &i})
}

// DynIdx returns `pl[_]` with an index only known at run time.
func DynIdx(pl *ir.Place) *ir.Place { return project(pl, ir.Projection{Kind: ir.ProjIndex}) }

// Use is the rvalue copying pl.
func Use(pl *ir.Place) *ir.Rvalue { return &ir.Rvalue{Kind: ir.RvUse, Place: pl} }

// Addr is the rvalue `&pl`.
func Addr(pl *ir.Place) *ir.Rvalue { return &ir.Rvalue{Kind: ir.RvAddrOf, Place: pl} }

// AddrMut is the rvalue `&mut pl`.
func AddrMut(pl *ir.Place) *ir.Rvalue { return &ir.Rvalue{Kind: ir.RvAddrOf, Place: pl, Mut: true} }

// As is the rvalue `pl as T` with the given cast kind.
func As(pl *ir.Place, kind ir.CastKind) *ir.Rvalue {
	return &ir.Rvalue{Kind: ir.RvCast, Place: pl, Cast: kind}
}

// Off is the rvalue `pl.offset(n)`.
func Off(pl *ir.Place, n int64) *ir.Rvalue {
	return &ir.Rvalue{Kind: ir.RvOffset, Place: pl, Offset: &n}
}

// DynOff is the rvalue `pl.offset(_)` with a displacement only known at run time.
func DynOff(pl *ir.Place) *ir.Rvalue { return &ir.Rvalue{Kind: ir.RvOffset, Place: pl} }

// Null is the null pointer rvalue.
func Null() *ir.Rvalue { return &ir.Rvalue{Kind: ir.RvNull} }

// Const is a scalar constant rvalue.
func Const() *ir.Rvalue { return &ir.Rvalue{Kind: ir.RvConst} }

// BinOp is a binary operation over the operands.
func BinOp(ops ...*ir.Place) *ir.Rvalue { return &ir.Rvalue{Kind: ir.RvBinOp, Operands: ops} }
