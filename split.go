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

import "sort"

// splitNode partitions an overflowing node's entries into two groups using
// the R*-tree heuristic: pick the axis whose sorted distributions have the
// least total margin, then pick the distribution on that axis with the least
// overlap between the two group envelopes, ties broken by least combined
// area. The node keeps the first group; the returned sibling holds the
// second. The caller links the sibling into the parent.
func (t *RTreeG[T]) splitNode(n *node[T]) *node[T] {
	ents := n.entries
	axis := t.chooseSplitAxis(ents)

	// Restrict to the chosen axis: evaluate every valid split point on both
	// of its sort orders. Strict improvement only, so the first candidate
	// encountered wins full ties, keeping results reproducible.
	var (
		bestUpper   bool
		bestK       = -1
		bestOverlap float64
		bestArea    float64
	)
	for _, upper := range []bool{false, true} {
		sortByAxis(ents, axis, upper)
		prefix, suffix := accumulateBounds(ents)
		for k := t.minEntries; k <= len(ents)-t.minEntries; k++ {
			overlap := prefix[k-1].IntersectionArea(suffix[k])
			area := prefix[k-1].Area() + suffix[k].Area()
			if bestK < 0 || overlap < bestOverlap || (overlap == bestOverlap && area < bestArea) {
				bestUpper, bestK = upper, k
				bestOverlap, bestArea = overlap, area
			}
		}
	}

	sortByAxis(ents, axis, bestUpper)
	sibling := t.newNode(n.leaf)
	sibling.entries = append(sibling.entries, ents[bestK:]...)
	n.entries.truncate(bestK)
	return sibling
}

// chooseSplitAxis returns the dimension minimizing the sum of group margins
// over both sort orders (lower and upper bound) and all valid split points.
// Low total margin means the candidate groups are close to square, which is
// the R* proxy for a good axis.
func (t *RTreeG[T]) chooseSplitAxis(ents entries[T]) int {
	bestAxis := 0
	var bestMargin float64
	for axis := 0; axis < t.dims; axis++ {
		var sum float64
		for _, upper := range []bool{false, true} {
			sortByAxis(ents, axis, upper)
			prefix, suffix := accumulateBounds(ents)
			for k := t.minEntries; k <= len(ents)-t.minEntries; k++ {
				sum += prefix[k-1].Margin() + suffix[k].Margin()
			}
		}
		if axis == 0 || sum < bestMargin {
			bestAxis, bestMargin = axis, sum
		}
	}
	return bestAxis
}

// sortByAxis sorts entries by their envelope's lower (or upper) bound along
// the given axis. The sort is stable so that tied coordinates keep a
// deterministic order across the repeated sorts of axis selection.
func sortByAxis[T any](ents entries[T], axis int, upper bool) {
	sort.SliceStable(ents, func(i, j int) bool {
		if upper {
			return ents[i].env.Max[axis] < ents[j].env.Max[axis]
		}
		return ents[i].env.Min[axis] < ents[j].env.Min[axis]
	})
}

// accumulateBounds returns running envelope unions over the entries:
// prefix[i] covers ents[0..i] and suffix[i] covers ents[i..]. Both candidate
// group envelopes of any split point k are then prefix[k-1] and suffix[k].
func accumulateBounds[T any](ents entries[T]) (prefix, suffix []Envelope) {
	prefix = make([]Envelope, len(ents))
	suffix = make([]Envelope, len(ents))
	acc := ents[0].env.Clone()
	for i := range ents {
		acc.Extend(ents[i].env)
		prefix[i] = acc.Clone()
	}
	acc = ents[len(ents)-1].env.Clone()
	for i := len(ents) - 1; i >= 0; i-- {
		acc.Extend(ents[i].env)
		suffix[i] = acc.Clone()
	}
	return prefix, suffix
}
