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

// Iterator is a lazy, pull-based traversal over the tree's items. It holds
// its own traversal stack, so multiple iterators over the same tree are
// independent and safe to use concurrently as long as the tree is not being
// mutated. Abandoning an iterator early simply stops further traversal.
//
// An iterator is invalidated by any mutation of the tree.
type Iterator[T Spatial] struct {
	accept func(Envelope) bool // nil accepts everything
	stack  []iterFrame[T]
}

type iterFrame[T Spatial] struct {
	n   *node[T]
	idx int
}

// Next returns the next item, or false when the traversal is exhausted.
func (it *Iterator[T]) Next() (_ T, _ bool) {
	for len(it.stack) > 0 {
		frame := &it.stack[len(it.stack)-1]
		if frame.idx >= len(frame.n.entries) {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		e := &frame.n.entries[frame.idx]
		frame.idx++
		if it.accept != nil && !it.accept(e.env) {
			continue
		}
		if frame.n.leaf {
			return e.item, true
		}
		it.stack = append(it.stack, iterFrame[T]{n: e.child})
	}
	var zero T
	return zero, false
}

// Collect drains the iterator into a slice.
func (it *Iterator[T]) Collect() []T {
	var out []T
	for {
		item, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, item)
	}
}

func (t *RTreeG[T]) newIterator(accept func(Envelope) bool) *Iterator[T] {
	it := &Iterator[T]{accept: accept}
	if t.root != nil {
		it.stack = append(it.stack, iterFrame[T]{n: t.root})
	}
	return it
}

// Iter returns an iterator over every item in the tree, in unspecified
// order.
func (t *RTreeG[T]) Iter() *Iterator[T] {
	return t.newIterator(nil)
}

// LocateInEnvelope returns an iterator over all items whose envelope
// intersects the query envelope. Subtrees whose stored envelope does not
// intersect the query are pruned. Each call starts a fresh traversal; the
// result order is traversal-determined and not guaranteed stable across
// mutations.
func (t *RTreeG[T]) LocateInEnvelope(query Envelope) *Iterator[T] {
	q := query.Clone()
	return t.newIterator(func(env Envelope) bool { return env.Intersects(q) })
}

// LocateAllAtPoint returns an iterator over all items whose envelope
// contains the given point.
func (t *RTreeG[T]) LocateAllAtPoint(p Point) *Iterator[T] {
	q := p.Clone()
	return t.newIterator(func(env Envelope) bool { return env.ContainsPoint(q) })
}
