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

package ir

import (
	"errors"
	"fmt"
	"strconv"
)

// ValidationError describes why one function of the input is malformed.
type ValidationError struct {
	Func string
	Line int
	Msg  string
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Func, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Func, e.Msg)
}

// LocalName returns the name used to identify local i of f. Unnamed locals are called `_i`.
func (f *Function) LocalName(i int) string {
	if i >= 0 && i < len(f.Locals) && f.Locals[i].Name != "" {
		return f.Locals[i].Name
	}
	return "_" + strconv.Itoa(i)
}

// IsParam returns true if local i is a parameter of f.
func (f *Function) IsParam(i int) bool { return i >= 1 && i <= f.Params }

// BaseType returns the type of the base of pl: the local of f or the static it names.
func (p *Program) BaseType(f *Function, pl *Place) (*Type, error) {
	if pl == nil {
		return nil, errors.New("missing place")
	}
	if pl.Static != "" {
		s, ok := p.Static(pl.Static)
		if !ok {
			return nil, fmt.Errorf("unknown static %q", pl.Static)
		}
		return p.resolveOrErr(s.Type)
	}
	if pl.Local < 0 || pl.Local >= len(f.Locals) {
		return nil, fmt.Errorf("local %d out of range (function has %d locals)", pl.Local, len(f.Locals))
	}
	return p.resolveOrErr(f.Locals[pl.Local].Type)
}

// PlaceType computes the (resolved) type of pl within f, walking its projections.
func (p *Program) PlaceType(f *Function, pl *Place) (*Type, error) {
	t, err := p.BaseType(f, pl)
	if err != nil {
		return nil, err
	}
	for i, proj := range pl.Proj {
		t, err = p.ProjectType(t, proj)
		if err != nil {
			return nil, fmt.Errorf("projection %d: %w", i, err)
		}
	}
	return t, nil
}

// ProjectType applies one projection to a resolved type.
func (p *Program) ProjectType(t *Type, proj Projection) (*Type, error) {
	switch proj.Kind {
	case ProjDeref:
		if t.Kind != TypePtr {
			return nil, fmt.Errorf("deref of non-pointer type %q", t.Kind)
		}
		return p.resolveOrErr(t.Elem)
	case ProjField:
		if t.Kind != TypeStruct && t.Kind != TypeUnion {
			return nil, fmt.Errorf("field %q of non-aggregate type %q", proj.Field, t.Kind)
		}
		ft, ok := t.Field(proj.Field)
		if !ok {
			return nil, fmt.Errorf("unknown field %q of %q", proj.Field, t.Name)
		}
		return p.resolveOrErr(ft)
	case ProjIndex:
		if t.Kind != TypeArray && t.Kind != TypePtr {
			return nil, fmt.Errorf("index of non-indexable type %q", t.Kind)
		}
		if proj.Index != nil && *proj.Index < 0 {
			return nil, fmt.Errorf("negative index %d", *proj.Index)
		}
		return p.resolveOrErr(t.Elem)
	}
	return nil, fmt.Errorf("unknown projection kind %q", proj.Kind)
}

func (p *Program) resolveOrErr(t *Type) (*Type, error) {
	if t == nil {
		return nil, errors.New("missing type")
	}
	r := p.Resolve(t)
	if r == nil {
		return nil, fmt.Errorf("undefined named type %q", t.Name)
	}
	if (r.Kind == TypePtr || r.Kind == TypeArray) && r.Elem == nil {
		return nil, fmt.Errorf("%s type without element type", r.Kind)
	}
	return r, nil
}

// Validate checks every defined function of the program and returns, per function name, the
// first problem that makes it malformed. Functions absent from the result are well formed. Nil
// entries have no name to report and are skipped.
func (p *Program) Validate() map[string]*ValidationError {
	out := make(map[string]*ValidationError)
	seen := make(map[string]bool, len(p.Functions))
	for _, f := range p.Functions {
		if f == nil {
			continue
		}
		if seen[f.Name] {
			out[f.Name] = &ValidationError{Func: f.Name, Msg: "duplicate function definition"}
			continue
		}
		seen[f.Name] = true
		if f.Extern {
			continue
		}
		if err := p.validateFunction(f); err != nil {
			out[f.Name] = err
		}
	}
	return out
}

func (p *Program) validateFunction(f *Function) *ValidationError {
	fail := func(line int, format string, args ...any) *ValidationError {
		return &ValidationError{Func: f.Name, Line: line, Msg: fmt.Sprintf(format, args...)}
	}

	if f.Params < 0 || len(f.Locals) < f.Params+1 {
		return fail(0, "%d parameters declared but only %d locals (return place included)", f.Params, len(f.Locals))
	}
	names := make(map[string]bool, len(f.Locals))
	for i, l := range f.Locals {
		name := f.LocalName(i)
		if names[name] {
			return fail(0, "duplicate local name %q", name)
		}
		names[name] = true
		if _, err := p.resolveOrErr(l.Type); err != nil {
			return fail(0, "local %q: %v", name, err)
		}
	}
	if len(f.Blocks) == 0 {
		return fail(0, "defined function without blocks")
	}

	checkPlace := func(line int, pl *Place) *ValidationError {
		if _, err := p.PlaceType(f, pl); err != nil {
			return fail(line, "%v", err)
		}
		return nil
	}

	for bi, b := range f.Blocks {
		for _, s := range b.Succs {
			if s < 0 || s >= len(f.Blocks) {
				return fail(0, "block %d has dangling successor %d", bi, s)
			}
		}
		for _, st := range b.Stmts {
			switch st.Kind {
			case StmtNop:
			case StmtAssign:
				if st.Dest == nil || st.Value == nil {
					return fail(st.Line, "assignment without destination or value")
				}
				if err := checkPlace(st.Line, st.Dest); err != nil {
					return err
				}
				if err := p.validateRvalue(f, st.Value, fail, st.Line); err != nil {
					return err
				}
			case StmtCall:
				c := st.Call
				if c == nil {
					return fail(st.Line, "call statement without call")
				}
				if c.Indirect != nil {
					if err := checkPlace(st.Line, c.Indirect); err != nil {
						return err
					}
				}
				for _, a := range c.Args {
					if a.Place == nil {
						continue
					}
					if err := checkPlace(st.Line, a.Place); err != nil {
						return err
					}
				}
				if c.Dest != nil {
					if err := checkPlace(st.Line, c.Dest); err != nil {
						return err
					}
				}
				if callee, ok := p.Function(c.Callee); ok && c.Indirect == nil && !callee.Extern && callee.Params != len(c.Args) {
					return fail(st.Line, "call to %q passes %d arguments, want %d", c.Callee, len(c.Args), callee.Params)
				}
			case StmtAsm:
				for _, pl := range st.Asm {
					if err := checkPlace(st.Line, pl); err != nil {
						return err
					}
				}
			default:
				return fail(st.Line, "unknown statement kind %q", st.Kind)
			}
		}
	}
	return nil
}

func (p *Program) validateRvalue(
	f *Function,
	rv *Rvalue,
	fail func(line int, format string, args ...any) *ValidationError,
	line int,
) *ValidationError {
	switch rv.Kind {
	case RvNull, RvConst:
		return nil
	case RvBinOp:
		for _, op := range rv.Operands {
			if _, err := p.PlaceType(f, op); err != nil {
				return fail(line, "%v", err)
			}
		}
		return nil
	case RvUse, RvAddrOf, RvCast, RvOffset:
	default:
		return fail(line, "unknown rvalue kind %q", rv.Kind)
	}

	t, err := p.PlaceType(f, rv.Place)
	if err != nil {
		return fail(line, "%v", err)
	}
	switch rv.Kind {
	case RvOffset:
		if !t.IsPointer() {
			return fail(line, "offset of non-pointer")
		}
	case RvCast:
		switch rv.Cast {
		case CastPtr, CastIntToPtr, CastPtrToInt, CastTransmute:
		default:
			return fail(line, "unknown cast kind %q", rv.Cast)
		}
	}
	return nil
}
