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

// Package orderedmap implements a map that remembers insertion order, so that every range over
// it (and every encoding of it) is deterministic.
package orderedmap

import (
	"bytes"
	"encoding/gob"
	"io"
)

// Pair is one key/value entry of an OrderedMap.
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

// OrderedMap is a map whose iteration order is the insertion order of its keys.
type OrderedMap[K comparable, V any] struct {
	// Pairs holds the entries in insertion order. It must not be mutated directly.
	Pairs []*Pair[K, V]
	inner map[K]*Pair[K, V]
}

// New returns an empty map.
func New[K comparable, V any]() *OrderedMap[K, V] {
	return &OrderedMap[K, V]{inner: make(map[K]*Pair[K, V])}
}

// Load returns the value stored for key, if any.
func (m *OrderedMap[K, V]) Load(key K) (V, bool) {
	p, ok := m.inner[key]
	if !ok {
		var zero V
		return zero, false
	}
	return p.Value, true
}

// Value is Load without the presence flag.
func (m *OrderedMap[K, V]) Value(key K) V {
	v, _ := m.Load(key)
	return v
}

// Store sets the value for key. A new key is appended to the iteration order, an existing key
// keeps its position.
func (m *OrderedMap[K, V]) Store(key K, value V) {
	if p, ok := m.inner[key]; ok {
		p.Value = value
		return
	}
	p := &Pair[K, V]{Key: key, Value: value}
	m.inner[key] = p
	m.Pairs = append(m.Pairs, p)
}

// Len returns the number of keys.
func (m *OrderedMap[K, V]) Len() int { return len(m.Pairs) }

// OrderedRange calls f for every entry in insertion order until f returns false.
func (m *OrderedMap[K, V]) OrderedRange(f func(key K, value V) bool) {
	for _, p := range m.Pairs {
		if !f(p.Key, p.Value) {
			return
		}
	}
}

// GobEncode encodes the entries in insertion order.
func (m *OrderedMap[K, V]) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	for _, p := range m.Pairs {
		if err := enc.Encode(p.Key); err != nil {
			return nil, err
		}
		if err := enc.Encode(p.Value); err != nil {
			return nil, err
		}
	}

	if buf.Len() == 0 {
		return nil, nil
	}
	return buf.Bytes(), nil
}

// GobDecode appends the encoded entries to m in their encoded order.
func (m *OrderedMap[K, V]) GobDecode(b []byte) error {
	if m.inner == nil {
		m.inner = make(map[K]*Pair[K, V])
	}
	dec := gob.NewDecoder(bytes.NewBuffer(b))
	for {
		var k K
		if err := dec.Decode(&k); err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		var v V
		if err := dec.Decode(&v); err != nil {
			return err
		}
		m.Store(k, v)
	}

	return nil
}
