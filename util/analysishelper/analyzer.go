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

// Package analysishelper provides helpers for running one unit of the analysis (typically one
// function) in isolation, so that a failure in it never stops the analysis of the others.
package analysishelper

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Result is the result of a unit of work where the actual result is accompanied by an optional
// error.
type Result[T any] struct {
	// Res is the actual result of the unit.
	Res T
	// Err is the optional error of the unit.
	Err error
}

// PanicError is the error a recovered panic is converted to.
type PanicError struct {
	// Unit names the unit of work that panicked.
	Unit string
	// Value is the recovered panic value.
	Value any
	// Stack is the goroutine stack at the time of the panic.
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("INTERNAL PANIC from %q: %v\n%s", e.Unit, e.Value, e.Stack)
}

// Short returns the one-line description of the panic, without the stack.
func (e *PanicError) Short() string {
	return fmt.Sprintf("INTERNAL PANIC from %q: %s", e.Unit, strings.SplitN(fmt.Sprint(e.Value), "\n", 2)[0])
}

// WrapRun wraps the run function of a unit of work to:
// (1) put the error in the Result[T].Err field in order to _not_ stop the analysis and let the
// coordinator decide what to do.
// (2) recover from a panic and convert it to a *PanicError with stack traces for easier
// debugging. This is to ensure that the analysis _never_ panics.
// Moreover, it also wraps the error with the name of the unit to make it easier to identify the
// source of the error.
func WrapRun[I, T any](unit string, f func(I) (T, error)) func(I) *Result[T] {
	return func(in I) (result *Result[T]) {
		result = &Result[T]{}
		defer func() {
			if r := recover(); r != nil {
				result.Err = &PanicError{Unit: unit, Value: r, Stack: string(debug.Stack())}
			}
		}()

		r, err := f(in)
		if err != nil {
			err = fmt.Errorf("%s: %w", unit, err)
		}
		result.Res = r
		result.Err = err
		return result
	}
}
