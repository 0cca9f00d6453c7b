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

// Package permission defines the capability vocabulary a pointer-typed place may hold and the
// bounded lattice formed by sets of those capabilities under set inclusion.
package permission

import (
	"fmt"
	"math/bits"
	"strings"
)

// Set is a set of capabilities. The zero value is Bottom.
type Set uint8

// The capabilities. The numeric order is also the rendering order.
const (
	// Read allows loading through the pointer.
	Read Set = 1 << iota
	// Write allows storing through the pointer.
	Write
	// Unique means no other live alias may write or free the pointee.
	Unique
	// Free allows the pointee to be deallocated through the pointer.
	Free
	// Offset allows pointer arithmetic and indexing beyond a single element.
	Offset
)

const (
	// Bottom holds no capability: the pointer is never used.
	Bottom Set = 0
	// Top holds every capability. It is what the original raw pointer is allowed to do.
	Top = Read | Write | Unique | Free | Offset
)

// Height is the height of the lattice, i.e., the longest strictly increasing chain minus one.
const Height = 5

// All lists every single capability in rendering order.
var All = [...]Set{Read, Write, Unique, Free, Offset}

var _names = map[Set]string{
	Read:   "READ",
	Write:  "WRITE",
	Unique: "UNIQUE",
	Free:   "FREE",
	Offset: "OFFSET",
}

// Has returns true if every capability in o is also in s.
func (s Set) Has(o Set) bool { return s&o == o }

// Leq is the partial order of the lattice.
func (s Set) Leq(o Set) bool { return s&^o == 0 }

// Join returns the least upper bound of s and o.
func (s Set) Join(o Set) Set { return s | o }

// Meet returns the greatest lower bound of s and o.
func (s Set) Meet(o Set) Set { return s & o }

// Without returns s with the capabilities in o removed.
func (s Set) Without(o Set) Set { return s &^ o }

// Len returns the number of capabilities in s.
func (s Set) Len() int { return bits.OnesCount8(uint8(s & Top)) }

// Bits returns the single capabilities in s, in rendering order.
func (s Set) Bits() []Set {
	var out []Set
	for _, b := range All {
		if s.Has(b) {
			out = append(out, b)
		}
	}
	return out
}

// String renders s as `READ|WRITE`, or as `TOP` / `BOTTOM` for the lattice bounds.
func (s Set) String() string {
	switch s & Top {
	case Top:
		return "TOP"
	case Bottom:
		return "BOTTOM"
	}
	parts := make([]string, 0, Height)
	for _, b := range s.Bits() {
		parts = append(parts, _names[b])
	}
	return strings.Join(parts, "|")
}

// Parse is the inverse of String. It is case-insensitive and accepts either `|` or `,` as the
// separator.
func Parse(str string) (Set, error) {
	str = strings.TrimSpace(str)
	switch strings.ToUpper(str) {
	case "TOP":
		return Top, nil
	case "BOTTOM", "":
		return Bottom, nil
	}

	var s Set
	for _, field := range strings.FieldsFunc(str, func(r rune) bool { return r == '|' || r == ',' }) {
		name := strings.ToUpper(strings.TrimSpace(field))
		found := false
		for b, n := range _names {
			if n == name {
				s |= b
				found = true
				break
			}
		}
		if !found {
			return Bottom, fmt.Errorf("unknown permission %q in %q", field, str)
		}
	}
	return s, nil
}

// MarshalText implements encoding.TextMarshaler so sets render readably in JSON and YAML.
func (s Set) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Set) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
