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

// Package rewrite classifies every pointer place into the reference form it can be rewritten to,
// and holds the resulting plan together with its stable encodings.
package rewrite

import (
	"bytes"
	"cmp"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/klauspost/compress/s2"
	"go.uber.org/ptrperm/diagnostic"
	"go.uber.org/ptrperm/permission"
	"go.uber.org/ptrperm/util/orderedmap"
)

// Kind is the rewrite classification of a pointer place.
type Kind uint8

// The classifications. RawPointer is the universal fallback and always sound.
const (
	RawPointer Kind = iota
	SharedRef
	MutRef
	OwningBox
)

var _kindNames = [...]string{
	RawPointer: "raw-pointer",
	SharedRef:  "shared-ref",
	MutRef:     "mut-ref",
	OwningBox:  "owning-box",
}

func (k Kind) String() string {
	if int(k) < len(_kindNames) {
		return _kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if int(k) >= len(_kindNames) {
		return nil, fmt.Errorf("unknown rewrite kind %d", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	i := slices.Index(_kindNames[:], string(b))
	if i < 0 {
		return fmt.Errorf("unknown rewrite kind %q", b)
	}
	*k = Kind(i)
	return nil
}

// Entry is the classification of one pointer place.
type Entry struct {
	Place string `json:"place"`
	// Func is the function of the place, empty for statics.
	Func  string         `json:"func,omitempty"`
	Perms permission.Set `json:"perms"`
	Kind  Kind           `json:"kind"`
	// Reason is set for RawPointer only.
	Reason diagnostic.Code `json:"reason,omitempty"`
	// Region is set for SharedRef and MutRef only.
	Region string `json:"region,omitempty"`
	// Type is the rewritten type of the place.
	Type   string `json:"type"`
	Detail string `json:"detail,omitempty"`
}

func (e Entry) String() string {
	if e.Kind == RawPointer {
		return fmt.Sprintf("%s: %s %s (%s)", e.Place, e.Type, e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Place, e.Type, e.Kind)
}

// Plan is the immutable result of the analysis: one entry per pointer place, sorted by place.
type Plan struct {
	entries *orderedmap.OrderedMap[string, Entry]
}

// NewPlan sorts the entries into a plan. A later entry for the same place replaces an earlier one.
func NewPlan(entries []Entry) *Plan {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b Entry) int { return cmp.Compare(a.Place, b.Place) })
	m := orderedmap.New[string, Entry]()
	for _, e := range sorted {
		m.Store(e.Place, e)
	}
	return &Plan{entries: m}
}

// Len returns the number of entries.
func (p *Plan) Len() int { return p.entries.Len() }

// Entries returns the entries sorted by place.
func (p *Plan) Entries() []Entry {
	out := make([]Entry, 0, p.entries.Len())
	p.entries.OrderedRange(func(_ string, e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Lookup returns the entry of a place.
func (p *Plan) Lookup(place string) (Entry, bool) { return p.entries.Load(place) }

// Summary counts the entries per classification.
func (p *Plan) Summary() map[Kind]int {
	out := make(map[Kind]int)
	p.entries.OrderedRange(func(_ string, e Entry) bool {
		out[e.Kind]++
		return true
	})
	return out
}

// MarshalBinary encodes the plan with gob, compressed with s2. Equal plans have equal encodings.
func (p *Plan) MarshalBinary() (b []byte, err error) {
	var buf bytes.Buffer
	writer := s2.NewWriter(&buf)
	defer func() {
		if cerr := writer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if err := gob.NewEncoder(writer).Encode(p.entries); err != nil {
		return nil, err
	}

	// Close the s2 writer before getting the bytes such that we have complete information.
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a plan encoded by MarshalBinary.
func (p *Plan) UnmarshalBinary(input []byte) error {
	p.entries = orderedmap.New[string, Entry]()
	return gob.NewDecoder(s2.NewReader(bytes.NewReader(input))).Decode(&p.entries)
}

type jsonPlan struct {
	Entries []Entry `json:"entries"`
}

// MarshalJSON implements json.Marshaler.
func (p *Plan) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonPlan{Entries: p.Entries()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Plan) UnmarshalJSON(b []byte) error {
	var jp jsonPlan
	if err := json.Unmarshal(b, &jp); err != nil {
		return err
	}
	*p = *NewPlan(jp.Entries)
	return nil
}
