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

// Package rstar implements an in-memory R*-tree of arbitrary dimensionality.
//
// rstar stores objects that expose an axis-aligned bounding envelope and
// answers containment and proximity queries in sub-linear time. It follows
// the R*-tree variant of the R-tree family: insertion picks subtrees by
// minimal overlap enlargement, overflowing nodes first evict and reinsert
// their outermost entries before splitting, and splits minimize margin and
// then overlap rather than just area. These heuristics produce trees with
// substantially less node overlap than the classic Guttman R-tree, which is
// what query performance hinges on.
//
// The tree is generic over the stored type. Any type implementing the Spatial
// interface can be indexed; an EqualsFunc passed at construction defines
// object identity for removal. Types whose envelope poorly approximates their
// true shape can additionally implement PointDistance for exact
// nearest-neighbor ranking.
//
// Write operations are not safe for concurrent mutation by multiple
// goroutines, but read operations are.
package rstar

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Spatial is the capability contract every indexed object must provide.
type Spatial interface {
	// Envelope returns the object's axis-aligned bounding envelope. It must
	// be deterministic: mutating an indexed object's envelope without
	// removing and reinserting it leaves the tree in an undefined state.
	Envelope() Envelope
}

// PointDistance is an optional capability for non-point objects. When an
// indexed object implements it, nearest-neighbor queries rank the object by
// its exact distance instead of the envelope lower bound.
type PointDistance interface {
	// DistanceToPoint returns the minimum distance from p to the object. It
	// must never be smaller than the MINDIST of the object's envelope.
	DistanceToPoint(p Point) float64
}

// EqualsFunc determines identity of a type T for Remove and Contains.
type EqualsFunc[T any] func(a, b T) bool

// ComparableSpatial constrains types that are both Spatial and directly
// comparable with ==.
type ComparableSpatial interface {
	Spatial
	comparable
}

const (
	DefaultFreeListSize = 32

	// DefaultMaxEntries is the default node capacity M.
	DefaultMaxEntries = 9
	// DefaultMinFillRatio yields the minimum fill m = ceil(M * ratio).
	DefaultMinFillRatio = 0.4
	// DefaultReinsertFraction yields the forced-reinsertion count
	// p = round(M * fraction). Both defaults follow the R*-tree paper.
	DefaultReinsertFraction = 0.3
)

// Options configures a tree at construction time. The zero value of a field
// selects its default. All parameters are fixed for the tree's lifetime.
type Options struct {
	// MaxEntries is the node capacity M. Must be at least 4.
	MaxEntries int
	// MinFillRatio determines the minimum fill m = ceil(M * MinFillRatio).
	// The resulting m must satisfy 2 <= m <= M/2.
	MinFillRatio float64
	// ReinsertFraction determines how many entries an overflowing node
	// evicts for forced reinsertion, p = round(M * ReinsertFraction).
	ReinsertFraction float64
}

// FreeListG represents a free list of tree nodes. By default each tree has
// its own free list, but multiple trees can share the same one. Two trees
// using the same free list are safe for concurrent write access.
type FreeListG[T any] struct {
	mu       sync.Mutex
	freelist []*node[T]
}

// NewFreeListG creates a new free list.
// size is the maximum size of the returned free list.
func NewFreeListG[T any](size int) *FreeListG[T] {
	return &FreeListG[T]{freelist: make([]*node[T], 0, size)}
}

func (f *FreeListG[T]) newNode() (n *node[T]) {
	f.mu.Lock()
	index := len(f.freelist) - 1
	if index < 0 {
		f.mu.Unlock()
		return new(node[T])
	}
	n = f.freelist[index]
	f.freelist[index] = nil
	f.freelist = f.freelist[:index]
	f.mu.Unlock()
	return
}

func (f *FreeListG[T]) freeNode(n *node[T]) (out bool) {
	f.mu.Lock()
	if len(f.freelist) < cap(f.freelist) {
		f.freelist = append(f.freelist, n)
		out = true
	}
	f.mu.Unlock()
	return
}

// entry is one slot in a node. Leaf entries hold an item and its cached
// envelope; branch entries hold an owned child node and the exact union of
// that child's subtree envelopes.
type entry[T any] struct {
	env   Envelope
	item  T
	child *node[T]
}

// entries stores the slots of a node.
type entries[T any] []entry[T]

// removeAt removes a value at a given index, pulling all subsequent values
// back.
func (s *entries[T]) removeAt(index int) entry[T] {
	e := (*s)[index]
	copy((*s)[index:], (*s)[index+1:])
	(*s)[len(*s)-1] = entry[T]{}
	*s = (*s)[:len(*s)-1]
	return e
}

// truncate truncates this instance at index so that it contains only the
// first index entries. index must be less than or equal to length.
func (s *entries[T]) truncate(index int) {
	var toClear entries[T]
	*s, toClear = (*s)[:index], (*s)[index:]
	for i := 0; i < len(toClear); i++ {
		toClear[i] = entry[T]{}
	}
}

// node is an internal node in a tree. A node is either a leaf holding item
// entries or a branch holding child entries; the two cases share one layout
// distinguished by the leaf tag. A node's level is implicit from its depth:
// all leaves sit at level 0 and the root at level height-1.
type node[T any] struct {
	leaf    bool
	entries entries[T]
}

// bound returns the exact union of the node's entry envelopes. The node must
// not be empty.
func (n *node[T]) bound() Envelope {
	b := n.entries[0].env.Clone()
	for _, e := range n.entries[1:] {
		b.Extend(e.env)
	}
	return b
}

// print is used for testing/debugging purposes.
func (n *node[T]) print(w io.Writer, level int) {
	indent := strings.Repeat("  ", level)
	if n.leaf {
		fmt.Fprintf(w, "%sLEAF:", indent)
		for _, e := range n.entries {
			fmt.Fprintf(w, " %v%v", e.env.Min, e.env.Max)
		}
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintf(w, "%sBRANCH: %d children\n", indent, len(n.entries))
	for _, e := range n.entries {
		e.child.print(w, level+1)
	}
}

// RTreeG is a generic implementation of an R*-tree.
//
// RTreeG stores items of type T, allowing insertion, removal, envelope
// queries and nearest-neighbor queries. Node ownership is strictly
// hierarchical: the tree owns the root, every branch owns its children, and
// there are no parent back-pointers.
//
// Write operations are not safe for concurrent mutation by multiple
// goroutines, but Read operations are.
type RTreeG[T Spatial] struct {
	dims       int
	maxEntries int // M
	minEntries int // m
	reinsertP  int // p

	eq       EqualsFunc[T]
	root     *node[T]
	height   int
	length   int
	freelist *FreeListG[T]
}

// NewG creates a new R*-tree over dims dimensions with default parameters.
//
// The passed-in EqualsFunc determines identity of type T for Remove and
// Contains; it may be nil if neither is used.
func NewG[T Spatial](dims int, eq EqualsFunc[T]) (*RTreeG[T], error) {
	return NewGOptions(dims, eq, Options{})
}

// NewComparableG creates a new R*-tree for types comparable with ==.
func NewComparableG[T ComparableSpatial](dims int) (*RTreeG[T], error) {
	return NewG[T](dims, func(a, b T) bool { return a == b })
}

// NewGOptions creates a new R*-tree with explicit parameters.
func NewGOptions[T Spatial](dims int, eq EqualsFunc[T], opts Options) (*RTreeG[T], error) {
	return NewWithFreeListG(dims, eq, opts, NewFreeListG[T](DefaultFreeListSize))
}

// NewWithFreeListG creates a new R*-tree that uses the given node free list.
func NewWithFreeListG[T Spatial](dims int, eq EqualsFunc[T], opts Options, f *FreeListG[T]) (*RTreeG[T], error) {
	if dims < 1 {
		return nil, errors.Errorf("rstar: dimensionality must be at least 1, got %d", dims)
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.MinFillRatio == 0 {
		opts.MinFillRatio = DefaultMinFillRatio
	}
	if opts.ReinsertFraction == 0 {
		opts.ReinsertFraction = DefaultReinsertFraction
	}
	max := opts.MaxEntries
	if max < 4 {
		return nil, errors.Errorf("rstar: max entries must be at least 4, got %d", max)
	}
	min := int(math.Ceil(float64(max) * opts.MinFillRatio))
	if min < 2 || min > max/2 {
		return nil, errors.Errorf("rstar: min fill %d out of range [2, %d] (max entries %d, ratio %v)",
			min, max/2, max, opts.MinFillRatio)
	}
	p := int(float64(max)*opts.ReinsertFraction + 0.5)
	if p < 1 || p > max+1-min {
		return nil, errors.Errorf("rstar: reinsertion count %d out of range [1, %d] (max entries %d, fraction %v)",
			p, max+1-min, max, opts.ReinsertFraction)
	}
	return &RTreeG[T]{
		dims:       dims,
		maxEntries: max,
		minEntries: min,
		reinsertP:  p,
		eq:         eq,
		freelist:   f,
	}, nil
}

func (t *RTreeG[T]) newNode(leaf bool) *node[T] {
	n := t.freelist.newNode()
	n.leaf = leaf
	return n
}

func (t *RTreeG[T]) freeNode(n *node[T]) {
	n.entries.truncate(0) // clear to allow GC
	n.leaf = false
	t.freelist.freeNode(n)
}

// Len returns the number of items currently in the tree.
func (t *RTreeG[T]) Len() int {
	return t.length
}

// Height returns the number of node levels in the tree; 0 when empty, 1 when
// the root is a leaf.
func (t *RTreeG[T]) Height() int {
	return t.height
}

// Dims returns the dimensionality the tree was constructed with.
func (t *RTreeG[T]) Dims() int {
	return t.dims
}

// Extent returns the envelope most closely bounding the whole tree, or false
// if the tree is empty.
func (t *RTreeG[T]) Extent() (Envelope, bool) {
	if t.root == nil || len(t.root.entries) == 0 {
		return Envelope{}, false
	}
	return t.root.bound(), true
}

// Insert adds the given item to the tree. It fails only when the item's
// envelope is rejected at the contract boundary: wrong dimensionality, NaN
// coordinates, or an inverted bound. A rejected insert leaves the tree
// untouched.
func (t *RTreeG[T]) Insert(item T) error {
	env := item.Envelope()
	if err := env.Validate(t.dims); err != nil {
		return err
	}
	t.insertEntry(entry[T]{env: env.Clone(), item: item}, 0)
	t.length++
	return nil
}

// insertEntry installs e into some node at the given level, growing the root
// when a split propagates all the way up. Level 0 receives leaf items; an
// entry wrapping a subtree of level L is installed at level L+1. This is the
// single insertion path: public inserts, forced reinsertions and deletion
// condensation all funnel through it.
func (t *RTreeG[T]) insertEntry(e entry[T], level int) {
	if t.root == nil {
		t.root = t.newNode(true)
		t.height = 1
	}

	// One forced reinsertion is allowed per level per top-level call. Levels
	// are counted from the leaves, so the flags stay valid when the root
	// splits mid-call.
	reinserted := make([]bool, t.height)

	stack := []levelEntry[T]{{e, level}}
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		res := t.insertInto(t.root, t.height-1, next.e, next.level, reinserted)
		switch {
		case res.split != nil:
			// The root overflowed: raise a new root over the old one and
			// its new sibling.
			old := t.root
			root := t.newNode(false)
			root.entries = append(root.entries,
				entry[T]{env: old.bound(), child: old},
				entry[T]{env: res.split.bound(), child: res.split})
			t.root = root
			t.height++
			reinserted = append(reinserted, false)
		case len(res.orphans) > 0:
			for _, o := range res.orphans {
				stack = append(stack, levelEntry[T]{o, res.orphanLevel})
			}
		}
	}
}

// insertResult reports how an insertion into a subtree resolved: cleanly, by
// splitting off a new sibling node, or by evicting entries for forced
// reinsertion at orphanLevel.
type insertResult[T any] struct {
	split       *node[T]
	orphans     entries[T]
	orphanLevel int
}

func (t *RTreeG[T]) insertInto(n *node[T], level int, e entry[T], targetLevel int, reinserted []bool) insertResult[T] {
	if level == targetLevel {
		n.entries = append(n.entries, e)
		return t.resolveOverflow(n, level, reinserted)
	}
	i := t.chooseSubtree(n, e.env, level == targetLevel+1)
	child := n.entries[i].child
	res := t.insertInto(child, level-1, e, targetLevel, reinserted)
	// Post-order envelope repair. Recompute rather than merge: a forced
	// reinsertion below may have shrunk the child.
	n.entries[i].env = child.bound()
	if res.split != nil {
		n.entries = append(n.entries, entry[T]{env: res.split.bound(), child: res.split})
		return t.resolveOverflow(n, level, reinserted)
	}
	return res
}

// chooseSubtree selects the child of n whose envelope should absorb env.
// When the children sit at the insertion level, the child with the least
// overlap enlargement wins; higher up, overlap is skipped for cost reasons
// and least area enlargement decides directly. Ties break by least area
// enlargement, then by smallest existing area.
func (t *RTreeG[T]) chooseSubtree(n *node[T], env Envelope, childrenAtTarget bool) int {
	// Any child already covering env wins outright; among those, the one
	// with the smallest area. This short-circuit is exact: a covering child
	// has zero overlap and zero area enlargement.
	best := -1
	var bestArea float64
	for i := range n.entries {
		if n.entries[i].env.ContainsEnvelope(env) {
			if a := n.entries[i].env.Area(); best < 0 || a < bestArea {
				best, bestArea = i, a
			}
		}
	}
	if best >= 0 {
		return best
	}

	var bestOverlapInc, bestAreaInc float64
	for i := range n.entries {
		existing := n.entries[i].env
		merged := existing.Merged(env)
		var overlapInc float64
		if childrenAtTarget {
			for j := range n.entries {
				if j == i {
					continue
				}
				sibling := n.entries[j].env
				overlapInc += merged.IntersectionArea(sibling) - existing.IntersectionArea(sibling)
			}
		}
		areaInc := merged.Area() - existing.Area()
		area := existing.Area()
		if i == 0 || lessTriple(overlapInc, areaInc, area, bestOverlapInc, bestAreaInc, bestArea) {
			best = i
			bestOverlapInc, bestAreaInc, bestArea = overlapInc, areaInc, area
		}
	}
	return best
}

// lessTriple compares (a1,a2,a3) < (b1,b2,b3) lexicographically.
func lessTriple(a1, a2, a3, b1, b2, b3 float64) bool {
	if a1 != b1 {
		return a1 < b1
	}
	if a2 != b2 {
		return a2 < b2
	}
	return a3 < b3
}

// resolveOverflow handles a node that may have grown past capacity. The first
// overflow at a level within one top-level insertion triggers forced
// reinsertion; subsequent overflows at that level, and any overflow of the
// root, split.
func (t *RTreeG[T]) resolveOverflow(n *node[T], level int, reinserted []bool) insertResult[T] {
	if len(n.entries) <= t.maxEntries {
		return insertResult[T]{}
	}
	if n != t.root && !reinserted[level] {
		reinserted[level] = true
		return insertResult[T]{orphans: t.evictForReinsert(n), orphanLevel: level}
	}
	return insertResult[T]{split: t.splitNode(n)}
}

// evictForReinsert removes the p entries whose envelope centers lie farthest
// from the node's envelope center and returns them for reinsertion from the
// root.
func (t *RTreeG[T]) evictForReinsert(n *node[T]) entries[T] {
	center := n.bound().Center()
	dists := make([]float64, len(n.entries))
	order := make([]int, len(n.entries))
	for i := range n.entries {
		dists[i] = n.entries[i].env.Center().distanceSquared(center)
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return dists[order[i]] < dists[order[j]] })

	cut := len(order) - t.reinsertP
	keep := make(entries[T], 0, cut)
	out := make(entries[T], 0, t.reinsertP)
	for rank, i := range order {
		if rank < cut {
			keep = append(keep, n.entries[i])
		} else {
			out = append(out, n.entries[i])
		}
	}
	n.entries.truncate(0)
	n.entries = append(n.entries, keep...)
	return out
}

// Contains reports whether an item equal to the given one is in the tree.
// Like Remove, it requires the tree to have been constructed with an
// EqualsFunc.
func (t *RTreeG[T]) Contains(item T) bool {
	if t.eq == nil {
		panic("rstar: Contains requires an EqualsFunc")
	}
	found := false
	t.searchIntersect(t.root, item.Envelope(), func(x T) bool {
		if t.eq(x, item) {
			found = true
			return false
		}
		return true
	})
	return found
}

// SearchIntersect calls iter for every item whose envelope intersects query,
// until iter returns false. Traversal order is unspecified.
func (t *RTreeG[T]) SearchIntersect(query Envelope, iter func(item T) bool) {
	t.searchIntersect(t.root, query, iter)
}

func (t *RTreeG[T]) searchIntersect(n *node[T], query Envelope, iter func(item T) bool) bool {
	if n == nil {
		return true
	}
	for i := range n.entries {
		e := &n.entries[i]
		if !e.env.Intersects(query) {
			continue
		}
		if n.leaf {
			if !iter(e.item) {
				return false
			}
		} else if !t.searchIntersect(e.child, query, iter) {
			return false
		}
	}
	return true
}

// Scan calls iter for every item in the tree, in unspecified order, until
// iter returns false.
func (t *RTreeG[T]) Scan(iter func(item T) bool) {
	t.scan(t.root, iter)
}

func (t *RTreeG[T]) scan(n *node[T], iter func(item T) bool) bool {
	if n == nil {
		return true
	}
	for i := range n.entries {
		if n.leaf {
			if !iter(n.entries[i].item) {
				return false
			}
		} else if !t.scan(n.entries[i].child, iter) {
			return false
		}
	}
	return true
}

// Clear removes all items from the tree. If addNodesToFreelist is true, t's
// nodes are added to its freelist as part of this call, until the freelist is
// full. Otherwise, the root node is simply dereferenced and the subtree left
// to Go's normal GC processes.
//
// This is much faster than removing elements one by one, because no per-item
// condensation work is done.
func (t *RTreeG[T]) Clear(addNodesToFreelist bool) {
	if t.root != nil && addNodesToFreelist {
		t.root.reset(t.freelist)
	}
	t.root, t.height, t.length = nil, 0, 0
}

// reset returns a subtree to the freelist. It returns false if the freelist
// is full and further recursion is pointless, since all nodes drain to the
// same list.
func (n *node[T]) reset(f *FreeListG[T]) bool {
	if !n.leaf {
		for i := range n.entries {
			if !n.entries[i].child.reset(f) {
				return false
			}
		}
	}
	n.entries.truncate(0)
	n.leaf = false
	return f.freeNode(n)
}
