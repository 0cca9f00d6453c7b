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
	"slices"

	"github.com/yourbasic/graph"
	"go.uber.org/ptrperm/ir"
)

// reversePostOrder returns the blocks of fn in reverse post-order of a depth-first traversal
// from the entry block, followed by the unreachable blocks in index order. Numbering program
// points in this order guarantees that, ignoring back edges, every block on a path from a to b
// lies between a and b.
func reversePostOrder(fn *ir.Function) []int {
	n := len(fn.Blocks)
	if n == 0 {
		return nil
	}
	visited := make([]bool, n)
	post := make([]int, 0, n)

	type frame struct{ block, next int }
	stack := []frame{{block: 0}}
	visited[0] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := fn.Blocks[top.block].Succs
		if top.next < len(succs) {
			s := succs[top.next]
			top.next++
			if !visited[s] {
				visited[s] = true
				stack = append(stack, frame{block: s})
			}
			continue
		}
		post = append(post, top.block)
		stack = stack[:len(stack)-1]
	}
	slices.Reverse(post)

	for b := 0; b < n; b++ {
		if !visited[b] {
			post = append(post, b)
		}
	}
	return post
}

// loopRanges returns, for every cycle of the control-flow graph (a strongly connected component
// with more than one block, or a block looping to itself), the range of program points spanned by
// its blocks.
func loopRanges(fn *ir.Function, blockRange []Interval) []Interval {
	g := graph.New(len(fn.Blocks))
	for b, blk := range fn.Blocks {
		for _, s := range blk.Succs {
			g.Add(b, s)
		}
	}

	var loops []Interval
	for _, comp := range graph.StrongComponents(g) {
		if len(comp) == 1 && !slices.Contains(fn.Blocks[comp[0]].Succs, comp[0]) {
			continue
		}
		r := blockRange[comp[0]]
		for _, b := range comp[1:] {
			r.add(blockRange[b].First)
			r.add(blockRange[b].Last)
		}
		loops = append(loops, r)
	}
	return loops
}
