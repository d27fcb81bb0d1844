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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoveNotFound(t *testing.T) {
	tr := newPointTree(t, Options{})
	require.False(t, tr.Remove(testPoint{1, 2}), "remove from empty tree")

	require.NoError(t, tr.Insert(testPoint{1, 2}))
	require.False(t, tr.Remove(testPoint{3, 4}))
	require.Equal(t, 1, tr.Len())

	require.True(t, tr.Remove(testPoint{1, 2}))
	require.Equal(t, 0, tr.Len())
	require.False(t, tr.Remove(testPoint{1, 2}), "second removal of the same item")
}

func TestRemoveHalfScenario(t *testing.T) {
	rng := rand.New(rand.NewSource(20))
	tr := newPointTree(t, Options{})
	pts := randomPoints(rng, 1000)
	for _, p := range pts {
		require.NoError(t, tr.Insert(p))
	}
	for _, p := range pts[:500] {
		require.True(t, tr.Remove(p), "remove %v", p)
	}
	require.Equal(t, 500, tr.Len())
	checkInvariants(t, tr)

	for _, p := range pts[500:] {
		found := false
		it := tr.LocateInEnvelope(NewPointEnvelope(Point{p.X, p.Y}))
		for {
			got, ok := it.Next()
			if !ok {
				break
			}
			if got == p {
				found = true
			}
		}
		require.True(t, found, "surviving point %v not locatable at its own coordinate", p)
	}
}

func TestRemoveAt(t *testing.T) {
	tr, err := NewComparableG[testRect](2)
	require.NoError(t, err)
	rects := []testRect{
		{0, 0, 10, 10},
		{5, 5, 15, 15},
		{100, 100, 110, 110},
	}
	for _, r := range rects {
		require.NoError(t, tr.Insert(r))
	}

	// Predicate removal prunes by intersection, so a search region smaller
	// than the target's envelope still finds it.
	search := NewEnvelope(Point{6, 6}, Point{7, 7})
	require.True(t, tr.RemoveAt(search, func(r testRect) bool { return r.MinX == 5 }))
	require.Equal(t, 2, tr.Len())
	require.False(t, tr.Contains(testRect{5, 5, 15, 15}))

	// No match within the region.
	require.False(t, tr.RemoveAt(search, func(r testRect) bool { return r.MinX == 5 }))
	require.Equal(t, 2, tr.Len())

	// At most one removal even when several match.
	require.True(t, tr.RemoveAt(NewEnvelope(Point{-1000, -1000}, Point{1000, 1000}), func(testRect) bool { return true }))
	require.Equal(t, 1, tr.Len())
}

func TestRemoveCondensesUnderflow(t *testing.T) {
	// Small capacity forces deep trees and frequent condensation.
	rng := rand.New(rand.NewSource(21))
	tr := newPointTree(t, Options{MaxEntries: 4})
	pts := randomPoints(rng, 400)
	for _, p := range pts {
		require.NoError(t, tr.Insert(p))
	}
	heightBefore := tr.Height()
	require.Greater(t, heightBefore, 2)

	rng.Shuffle(len(pts), func(i, j int) { pts[i], pts[j] = pts[j], pts[i] })
	for i, p := range pts[:350] {
		require.True(t, tr.Remove(p))
		if (i+1)%25 == 0 {
			checkInvariants(t, tr)
		}
	}
	checkInvariants(t, tr)
	require.Equal(t, 50, tr.Len())
	require.Less(t, tr.Height(), heightBefore, "tree height must shrink as the tree empties")

	for _, p := range pts[350:] {
		require.True(t, tr.Contains(p))
	}
}

func TestRemoveInterleavedWithInsert(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	tr := newPointTree(t, Options{MaxEntries: 6})
	live := make(map[testPoint]bool)
	var liveList []testPoint
	for i := 0; i < 3000; i++ {
		if len(liveList) == 0 || rng.Intn(3) != 0 {
			p := testPoint{rng.Float64() * 1000, rng.Float64() * 1000}
			if live[p] {
				continue
			}
			require.NoError(t, tr.Insert(p))
			live[p] = true
			liveList = append(liveList, p)
		} else {
			j := rng.Intn(len(liveList))
			p := liveList[j]
			liveList[j] = liveList[len(liveList)-1]
			liveList = liveList[:len(liveList)-1]
			delete(live, p)
			require.True(t, tr.Remove(p), "remove %v", p)
		}
		if (i+1)%200 == 0 {
			checkInvariants(t, tr)
			require.Equal(t, len(live), tr.Len())
		}
	}
	checkInvariants(t, tr)
}
