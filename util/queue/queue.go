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

// Package queue implements a FIFO queue used by breadth-first discovery passes.
package queue

import "errors"

// ErrEmpty is the panic value of Pop on an empty queue.
var ErrEmpty = errors.New("queue is empty")

// Queue is a FIFO queue. The zero value is an empty queue.
type Queue[E any] struct {
	elements []E
}

// Push appends e.
func (q *Queue[E]) Push(e E) {
	q.elements = append(q.elements, e)
}

// Empty returns true if there is nothing to pop.
func (q *Queue[E]) Empty() bool {
	return len(q.elements) == 0
}

// Len returns the number of queued elements.
func (q *Queue[E]) Len() int { return len(q.elements) }

// Pop removes and returns the oldest element. It panics with ErrEmpty on an empty queue.
func (q *Queue[E]) Pop() E {
	if q.Empty() {
		panic(ErrEmpty)
	}

	e := q.elements[0]
	var zero E
	q.elements[0] = zero
	q.elements = q.elements[1:]
	return e
}
