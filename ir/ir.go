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

// Package ir defines the serialized program-dependence representation produced by the
// translating front-end. It is the input contract of the analysis: functions with a complete
// enumeration of their locals, basic blocks of statements, and calls with resolved (or
// explicitly unknown) targets.
package ir

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// TypeKind is the shape of a Type.
type TypeKind string

// The type kinds understood by the analysis.
const (
	TypeVoid   TypeKind = "void"
	TypeInt    TypeKind = "int"
	TypeFloat  TypeKind = "float"
	TypeBool   TypeKind = "bool"
	TypePtr    TypeKind = "ptr"
	TypeStruct TypeKind = "struct"
	TypeUnion  TypeKind = "union"
	TypeArray  TypeKind = "array"
	TypeFn     TypeKind = "fn"
	// TypeNamed refers to an entry of Program.Types by name, which is how recursive types are
	// expressed.
	TypeNamed TypeKind = "named"
)

// Type is a (possibly named) type of a local, static, or field.
type Type struct {
	Kind TypeKind `json:"kind"`
	// Name is the scalar name (e.g. "i32") for scalars, the type name for aggregates, and the
	// referenced name for TypeNamed.
	Name string `json:"name,omitempty"`
	// Mut is set for pointers that allow writing in the source language (`*mut` vs `*const`).
	Mut bool `json:"mut,omitempty"`
	// Elem is the pointee of a pointer or the element of an array.
	Elem   *Type   `json:"elem,omitempty"`
	Len    int64   `json:"len,omitempty"`
	Fields []Field `json:"fields,omitempty"`
}

// Field is a named member of a struct or union.
type Field struct {
	Name string `json:"name"`
	Type *Type  `json:"type"`
}

// IsPointer returns true if t is a raw pointer type.
func (t *Type) IsPointer() bool { return t != nil && t.Kind == TypePtr }

// Field looks up a member by name.
func (t *Type) Field(name string) (*Type, bool) {
	if t == nil {
		return nil, false
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return nil, false
}

// Static is a global variable.
type Static struct {
	Name string `json:"name"`
	Type *Type  `json:"type"`
}

// Local is a local variable, parameter, or the return place of a function.
type Local struct {
	Name string `json:"name"`
	Type *Type  `json:"type"`
}

// Function is one function of the program. Locals[0] is always the return place and
// Locals[1..Params] are the parameters in order.
type Function struct {
	Name string `json:"name"`
	// Extern marks a function that is declared but not defined in the program; calls to it are
	// treated as calls to an unknown callee.
	Extern bool    `json:"extern,omitempty"`
	Params int     `json:"params"`
	Locals []Local `json:"locals"`
	// Blocks is the control-flow graph. Blocks[0] is the entry block; a block without
	// successors returns.
	Blocks []Block `json:"blocks,omitempty"`
}

// ReturnLocal is the index of the return place.
const ReturnLocal = 0

// Block is a basic block.
type Block struct {
	Stmts []Stmt `json:"stmts,omitempty"`
	Succs []int  `json:"succs,omitempty"`
}

// StmtKind is the kind of a statement.
type StmtKind string

// The statement kinds.
const (
	StmtAssign StmtKind = "assign"
	StmtCall   StmtKind = "call"
	StmtAsm    StmtKind = "asm"
	StmtNop    StmtKind = "nop"
)

// Stmt is one statement of a basic block.
type Stmt struct {
	Kind  StmtKind `json:"kind"`
	Dest  *Place   `json:"dest,omitempty"`
	Value *Rvalue  `json:"value,omitempty"`
	Call  *Call    `json:"call,omitempty"`
	// Asm lists the operands of an inline assembly statement.
	Asm  []*Place `json:"asm,omitempty"`
	Line int      `json:"line,omitempty"`
}

// RvalueKind is the kind of the right-hand side of an assignment.
type RvalueKind string

// The rvalue kinds.
const (
	RvUse    RvalueKind = "use"
	RvAddrOf RvalueKind = "addr_of"
	RvCast   RvalueKind = "cast"
	RvOffset RvalueKind = "offset"
	RvNull   RvalueKind = "null"
	RvConst  RvalueKind = "const"
	RvBinOp  RvalueKind = "binop"
)

// CastKind is the kind of a pointer cast.
type CastKind string

// The cast kinds. Only CastPtr keeps provenance and is understood by the analysis.
const (
	CastPtr       CastKind = "ptr"
	CastIntToPtr  CastKind = "int_to_ptr"
	CastPtrToInt  CastKind = "ptr_to_int"
	CastTransmute CastKind = "transmute"
)

// Rvalue is the right-hand side of an assignment.
type Rvalue struct {
	Kind  RvalueKind `json:"kind"`
	Place *Place     `json:"place,omitempty"`
	// Mut is set for mutable address-of.
	Mut  bool     `json:"mut,omitempty"`
	Cast CastKind `json:"cast,omitempty"`
	// Offset is the constant element offset of an RvOffset, nil if it is only known at run time.
	Offset   *int64   `json:"offset,omitempty"`
	Operands []*Place `json:"operands,omitempty"`
}

// Call is a call site. Exactly one of Callee and Indirect is set; a call with neither is a call
// to an unknown target.
type Call struct {
	Callee   string    `json:"callee,omitempty"`
	Indirect *Place    `json:"indirect,omitempty"`
	Args     []Operand `json:"args,omitempty"`
	Dest     *Place    `json:"dest,omitempty"`
}

// Operand is a call argument. A nil Place is a constant.
type Operand struct {
	Place *Place `json:"place,omitempty"`
}

// ProjKind is the kind of a projection.
type ProjKind string

// The projection kinds.
const (
	ProjDeref ProjKind = "deref"
	ProjField ProjKind = "field"
	ProjIndex ProjKind = "index"
)

// Projection is one step of a place path.
type Projection struct {
	Kind  ProjKind `json:"kind"`
	Field string   `json:"field,omitempty"`
	// Index is the constant index, nil for an index only known at run time.
	Index *int64 `json:"index,omitempty"`
}

// Place is a memory location mentioned by a statement: a local (or a static when Static is
// set) followed by projections.
type Place struct {
	Local  int          `json:"local"`
	Static string       `json:"static,omitempty"`
	Proj   []Projection `json:"proj,omitempty"`
}

// Program is the whole translated program.
type Program struct {
	Types     map[string]*Type `json:"types,omitempty"`
	Statics   []Static         `json:"statics,omitempty"`
	Functions []*Function      `json:"functions"`
}

// Function returns the function with the given name.
func (p *Program) Function(name string) (*Function, bool) {
	for _, f := range p.Functions {
		if f != nil && f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Static returns the static with the given name.
func (p *Program) Static(name string) (*Static, bool) {
	for i := range p.Statics {
		if p.Statics[i].Name == name {
			return &p.Statics[i], true
		}
	}
	return nil, false
}

// Resolve follows TypeNamed references until a structural type is reached. It returns nil if
// a name is undefined or the references form a cycle of names.
func (p *Program) Resolve(t *Type) *Type {
	for i := 0; t != nil && t.Kind == TypeNamed; i++ {
		if i > len(p.Types) {
			return nil
		}
		t = p.Types[t.Name]
	}
	return t
}

// Decode reads a program from its JSON encoding.
func Decode(r io.Reader) (*Program, error) {
	var p Program
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	for i, f := range p.Functions {
		if f == nil {
			return nil, fmt.Errorf("decode program: function %d is null", i)
		}
	}
	return &p, nil
}

// Load reads a program from a JSON file.
func Load(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open program: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
