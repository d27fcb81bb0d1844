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

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// BulkLoad builds the tree from a batch of items in one pass using
// sort-tile-recursive packing. The resulting tree answers queries exactly as
// if the items had been inserted one by one, but is denser and flatter, and
// construction is O(n log n) with no incremental overflow handling.
//
// BulkLoad is only valid for initial construction: it fails on a non-empty
// tree. Every item's envelope is validated before any mutation, so a failed
// call leaves the tree untouched.
func (t *RTreeG[T]) BulkLoad(items []T) error {
	if t.length > 0 {
		return errors.New("rstar: bulk load requires an empty tree")
	}
	ents := make(entries[T], len(items))
	for i, item := range items {
		env := item.Envelope()
		if err := env.Validate(t.dims); err != nil {
			return errors.WithMessagef(err, "item %d", i)
		}
		ents[i] = entry[T]{env: env.Clone(), item: item}
	}
	if len(ents) == 0 {
		return nil
	}
	if t.root != nil {
		t.Clear(true)
	}

	// Pack leaves, then treat each packed level as the batch for the level
	// above, until a single root remains.
	level := t.packLevel(ents, true)
	t.height = 1
	for len(level) > 1 {
		next := make(entries[T], 0, len(level))
		for _, n := range level {
			next = append(next, entry[T]{env: n.bound(), child: n})
		}
		level = t.packLevel(next, false)
		t.height++
	}
	t.root = level[0]
	t.length = len(items)
	return nil
}

func (t *RTreeG[T]) packLevel(ents entries[T], leaf bool) []*node[T] {
	var nodes []*node[T]
	t.tilePartition(ents, leaf, &nodes)
	return nodes
}

// tilePartition recursively slices a batch of entries into node-sized
// groups. The batch is sorted by envelope center along the axis of greatest
// extent and cut into approximately equal slabs, each partitioned again
// until a group fits in one node.
func (t *RTreeG[T]) tilePartition(ents entries[T], leaf bool, out *[]*node[T]) {
	if len(ents) <= t.maxEntries {
		n := t.newNode(leaf)
		n.entries = append(n.entries, ents...)
		*out = append(*out, n)
		return
	}

	bound := ents[0].env.Clone()
	for _, e := range ents[1:] {
		bound.Extend(e.env)
	}
	axis := 0
	for d := 1; d < t.dims; d++ {
		if bound.Max[d]-bound.Min[d] > bound.Max[axis]-bound.Min[axis] {
			axis = d
		}
	}
	sort.SliceStable(ents, func(i, j int) bool {
		return ents[i].env.Min[axis]+ents[i].env.Max[axis] < ents[j].env.Min[axis]+ents[j].env.Max[axis]
	})

	groups := (len(ents) + t.maxEntries - 1) / t.maxEntries
	slabs := int(math.Ceil(math.Pow(float64(groups), 1/float64(t.dims))))
	if slabs < 2 {
		slabs = 2
	}
	slabSize := (len(ents) + slabs - 1) / slabs
	for i := 0; i < len(ents); {
		end := i + slabSize
		if end > len(ents) {
			end = len(ents)
		}
		// Absorb a tail too small to ever satisfy minimum fill.
		if rest := len(ents) - end; rest > 0 && rest < t.minEntries {
			end = len(ents)
		}
		t.tilePartition(ents[i:end], leaf, out)
		i = end
	}
}
