// Copyright 2024 Google Inc.
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

package rstar

import "container/heap"

// nnCandidate is a queue element of the branch-and-bound traversal: either a
// node with the MINDIST of its subtree envelope, or an item with its distance
// (exact when the item implements PointDistance, envelope MINDIST otherwise).
type nnCandidate[T any] struct {
	dist float64
	node *node[T] // nil when the candidate is an item
	item T
}

type nnQueue[T any] []nnCandidate[T]

func (q nnQueue[T]) Len() int            { return len(q) }
func (q nnQueue[T]) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q nnQueue[T]) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *nnQueue[T]) Push(x interface{}) { *q = append(*q, x.(nnCandidate[T])) }
func (q *nnQueue[T]) Pop() interface{} {
	old := *q
	n := len(old)
	out := old[n-1]
	old[n-1] = nnCandidate[T]{}
	*q = old[:n-1]
	return out
}

// nearestScan emits items in non-decreasing distance from p until emit
// returns false. It pops the candidate with the smallest lower-bound
// distance: a popped item is definitively the next nearest, because MINDIST
// never overestimates, so nothing still queued can beat it.
func (t *RTreeG[T]) nearestScan(p Point, emit func(item T, dist float64) bool) {
	if t.root == nil || len(p) != t.dims {
		return
	}
	q := nnQueue[T]{{node: t.root}}
	for len(q) > 0 {
		top := heap.Pop(&q).(nnCandidate[T])
		if top.node == nil {
			if !emit(top.item, top.dist) {
				return
			}
			continue
		}
		for i := range top.node.entries {
			e := &top.node.entries[i]
			if top.node.leaf {
				d := e.env.DistanceToPoint(p)
				if pd, ok := any(e.item).(PointDistance); ok {
					d = pd.DistanceToPoint(p)
				}
				heap.Push(&q, nnCandidate[T]{dist: d, item: e.item})
			} else {
				heap.Push(&q, nnCandidate[T]{dist: e.env.DistanceToPoint(p), node: e.child})
			}
		}
	}
}

// NearestNeighbor returns the item closest to p, or false if the tree is
// empty.
func (t *RTreeG[T]) NearestNeighbor(p Point) (_ T, _ bool) {
	var out T
	var found bool
	t.nearestScan(p, func(item T, dist float64) bool {
		out, found = item, true
		return false
	})
	return out, found
}

// NearestNeighbors returns the min(k, Len()) items closest to p, ordered by
// non-decreasing distance.
func (t *RTreeG[T]) NearestNeighbors(p Point, k int) []T {
	if k <= 0 {
		return nil
	}
	out := make([]T, 0, k)
	t.nearestScan(p, func(item T, dist float64) bool {
		out = append(out, item)
		return len(out) < k
	})
	return out
}

// NearestNeighborWithinDistance returns the item closest to p whose distance
// does not exceed maxDist, or false if no item is that close.
func (t *RTreeG[T]) NearestNeighborWithinDistance(p Point, maxDist float64) (_ T, _ bool) {
	var out T
	var found bool
	t.nearestScan(p, func(item T, dist float64) bool {
		if dist <= maxDist {
			out, found = item, true
		}
		return false
	})
	return out, found
}
