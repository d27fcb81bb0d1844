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

// Remove removes one item equal to the given one from the tree, locating it
// by the item's own envelope. It returns whether a match was found and
// removed; absence of the target is a normal negative result, not an error.
//
// Remove requires the tree to have been constructed with an EqualsFunc and
// panics otherwise.
func (t *RTreeG[T]) Remove(item T) bool {
	if t.eq == nil {
		panic("rstar: Remove requires an EqualsFunc")
	}
	env := item.Envelope()
	if env.Validate(t.dims) != nil {
		return false
	}
	// The target envelope is exact, so any subtree not fully containing it
	// cannot hold the item.
	return t.removeMatching(env, true, func(x T) bool { return t.eq(x, item) })
}

// RemoveAt removes at most one item within the search envelope for which
// match returns true. Unlike Remove, the envelope is a search region rather
// than the exact envelope of the target, so pruning is by intersection. It
// returns whether a match was found and removed.
func (t *RTreeG[T]) RemoveAt(search Envelope, match func(item T) bool) bool {
	if search.Validate(t.dims) != nil {
		return false
	}
	return t.removeMatching(search, false, match)
}

// levelEntry is an entry orphaned by condensation together with the level of
// the node that held it, so reinsertion can restore it at the right height.
type levelEntry[T any] struct {
	e     entry[T]
	level int
}

func (t *RTreeG[T]) removeMatching(target Envelope, containment bool, match func(T) bool) bool {
	if t.root == nil {
		return false
	}
	var orphans []levelEntry[T]
	if !t.removeFrom(t.root, t.height-1, target, containment, match, &orphans) {
		return false
	}
	t.length--

	// Collapse a single-child root: the tree loses one level.
	for !t.root.leaf && len(t.root.entries) == 1 {
		old := t.root
		t.root = old.entries[0].child
		t.height--
		t.freeNode(old)
	}
	if t.root.leaf && len(t.root.entries) == 0 {
		t.freeNode(t.root)
		t.root, t.height = nil, 0
	}

	// Reinsert everything condensation collected through the normal insert
	// path. The final shape does not depend on the order; the overflow
	// machinery absorbs whatever this produces.
	for _, o := range orphans {
		t.insertEntry(o.e, o.level)
	}
	return true
}

// removeFrom descends the subtree rooted at n looking for a matching leaf
// entry, pruning by the target envelope. On the unwind it repairs ancestor
// envelopes and eliminates any node that fell below minimum fill, collecting
// the eliminated node's entries for reinsertion instead of attempting
// in-place repair.
func (t *RTreeG[T]) removeFrom(n *node[T], level int, target Envelope, containment bool, match func(T) bool, orphans *[]levelEntry[T]) bool {
	prune := func(env Envelope) bool {
		if containment {
			return env.ContainsEnvelope(target)
		}
		return env.Intersects(target)
	}
	if n.leaf {
		for i := range n.entries {
			if prune(n.entries[i].env) && match(n.entries[i].item) {
				n.entries.removeAt(i)
				return true
			}
		}
		return false
	}
	for i := range n.entries {
		if !prune(n.entries[i].env) {
			continue
		}
		child := n.entries[i].child
		if !t.removeFrom(child, level-1, target, containment, match, orphans) {
			continue
		}
		if len(child.entries) < t.minEntries {
			// Underflow: drop the whole child and orphan its surviving
			// entries at the child's own level.
			for j := range child.entries {
				*orphans = append(*orphans, levelEntry[T]{child.entries[j], level - 1})
			}
			n.entries.removeAt(i)
			t.freeNode(child)
		} else {
			n.entries[i].env = child.bound()
		}
		return true
	}
	return false
}
