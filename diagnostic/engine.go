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

// Package diagnostic hosts the diagnostic engine, which accumulates the notes raised while
// analyzing functions and one record per pointer that has to stay raw, and returns both in a
// deterministic order.
package diagnostic

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Engine collects notes and fallback records. It is passed explicitly through the stages that
// produce them and is safe for concurrent use, since constraint generation runs in parallel.
type Engine struct {
	mu      sync.Mutex
	notes   []Note
	records []Record
}

// NewEngine creates an empty diagnostic engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Note is an event tied to a location in the input program: an unsupported construct, a
// malformed function, or a recovered internal panic.
type Note struct {
	Func    string `json:"func"`
	Line    int    `json:"line,omitempty"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (n Note) String() string {
	if n.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %s", n.Func, n.Line, n.Code, n.Message)
	}
	return fmt.Sprintf("%s: %s: %s", n.Func, n.Code, n.Message)
}

// Record explains why one pointer place stays a raw pointer.
type Record struct {
	Place  string `json:"place"`
	Code   Code   `json:"code"`
	Detail string `json:"detail,omitempty"`
	// Explanation is the chain of steps that brought the offending permission to the place,
	// one per line. It is set only when a pin or an offset decided the place.
	Explanation string `json:"explanation,omitempty"`
}

func (r Record) String() string {
	if r.Detail == "" {
		return fmt.Sprintf("%s: %s", r.Place, r.Code)
	}
	return fmt.Sprintf("%s: %s (%s)", r.Place, r.Code, r.Detail)
}

// AddNote adds a note.
func (e *Engine) AddNote(n Note) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notes = append(e.notes, n)
}

// AddRecord adds a fallback record.
func (e *Engine) AddRecord(r Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, r)
}

// Notes returns the notes sorted by function, line, code and message, without duplicates.
func (e *Engine) Notes() []Note {
	e.mu.Lock()
	defer e.mu.Unlock()

	slices.SortFunc(e.notes, func(a, b Note) int {
		if n := cmp.Compare(a.Func, b.Func); n != 0 {
			return n
		}
		if n := cmp.Compare(a.Line, b.Line); n != 0 {
			return n
		}
		if n := cmp.Compare(a.Code, b.Code); n != 0 {
			return n
		}
		return cmp.Compare(a.Message, b.Message)
	})
	e.notes = slices.Compact(e.notes)
	return slices.Clone(e.notes)
}

// Records returns the fallback records sorted by place.
func (e *Engine) Records() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	slices.SortStableFunc(e.records, func(a, b Record) int {
		return cmp.Compare(a.Place, b.Place)
	})
	return slices.Clone(e.records)
}

// Summary counts the records per code.
func (e *Engine) Summary() map[Code]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[Code]int)
	for _, r := range e.records {
		out[r.Code]++
	}
	return out
}
