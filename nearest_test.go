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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// testCircle implements PointDistance: its envelope MINDIST underestimates
// the true distance everywhere except on the axis-aligned sides.
type testCircle struct {
	X, Y, R float64
}

func (c testCircle) Envelope() Envelope {
	return NewEnvelope(Point{c.X - c.R, c.Y - c.R}, Point{c.X + c.R, c.Y + c.R})
}

func (c testCircle) DistanceToPoint(p Point) float64 {
	d := math.Hypot(p[0]-c.X, p[1]-c.Y) - c.R
	if d < 0 {
		return 0
	}
	return d
}

func pointDist(p testPoint, q Point) float64 {
	return math.Hypot(p.X-q[0], p.Y-q[1])
}

func TestNearestNeighborScenario(t *testing.T) {
	tr := newPointTree(t, Options{MaxEntries: 4})
	pts := []testPoint{{0, 0}, {1, 1}, {5, 5}, {6, 6}, {100, 100}}
	for _, p := range pts {
		require.NoError(t, tr.Insert(p))
	}

	got, ok := tr.NearestNeighbor(Point{0, 0})
	require.True(t, ok)
	require.Equal(t, testPoint{0, 0}, got)
	require.Zero(t, pointDist(got, Point{0, 0}))

	require.Equal(t,
		[]testPoint{{0, 0}, {1, 1}, {5, 5}},
		tr.NearestNeighbors(Point{0, 0}, 3))
}

func TestNearestNeighborBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	tr := newPointTree(t, Options{})
	pts := randomPoints(rng, 1000)
	for _, p := range pts {
		if err := tr.Insert(p); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	for i := 0; i < 200; i++ {
		q := Point{rng.Float64() * 1200, rng.Float64() * 1200}
		best := math.Inf(1)
		for _, p := range pts {
			if d := pointDist(p, q); d < best {
				best = d
			}
		}
		got, ok := tr.NearestNeighbor(q)
		if !ok {
			t.Fatalf("query %d: no result", i)
		}
		// Ties are legitimate: compare distances, not identities.
		if d := pointDist(got, q); d != best {
			t.Fatalf("query %d: nearest at distance %v, brute force found %v", i, d, best)
		}
	}
}

func TestNearestNeighborsOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	tr := newPointTree(t, Options{})
	pts := randomPoints(rng, 300)
	for _, p := range pts {
		if err := tr.Insert(p); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	for _, k := range []int{1, 2, 10, 299, 300, 500} {
		q := Point{rng.Float64() * 1000, rng.Float64() * 1000}
		got := tr.NearestNeighbors(q, k)
		wantLen := k
		if wantLen > len(pts) {
			wantLen = len(pts)
		}
		if len(got) != wantLen {
			t.Fatalf("k=%d: got %d results, want %d", k, len(got), wantLen)
		}
		seen := make(map[testPoint]bool)
		prev := -1.0
		for _, p := range got {
			if seen[p] {
				t.Fatalf("k=%d: duplicate %v", k, p)
			}
			seen[p] = true
			d := pointDist(p, q)
			if d < prev {
				t.Fatalf("k=%d: distances not non-decreasing: %v after %v", k, d, prev)
			}
			prev = d
		}
	}
	if got := tr.NearestNeighbors(Point{0, 0}, 0); got != nil {
		t.Fatalf("k=0 returned %d results", len(got))
	}
}

func TestNearestNeighborWithinDistance(t *testing.T) {
	tr := newPointTree(t, Options{})
	for _, p := range []testPoint{{0, 0}, {10, 0}, {50, 50}} {
		require.NoError(t, tr.Insert(p))
	}
	got, ok := tr.NearestNeighborWithinDistance(Point{12, 0}, 5)
	require.True(t, ok)
	require.Equal(t, testPoint{10, 0}, got)

	_, ok = tr.NearestNeighborWithinDistance(Point{12, 0}, 1)
	require.False(t, ok)

	_, ok = tr.NearestNeighborWithinDistance(Point{0, 0}, 0)
	require.True(t, ok, "distance 0 must match an exact hit")
}

func TestNearestNeighborExactDistance(t *testing.T) {
	// The diagonal circle's envelope corner underestimates its distance from
	// the origin; the exact distance capability must win over the MINDIST
	// bound when ranking.
	tr, err := NewG[testCircle](2, nil)
	require.NoError(t, err)
	diagonal := testCircle{X: 10, Y: 10, R: 1}  // exact distance ~13.14, MINDIST ~12.73
	onAxis := testCircle{X: 13, Y: 0, R: 0}     // exact distance 13
	require.NoError(t, tr.Insert(diagonal))
	require.NoError(t, tr.Insert(onAxis))

	got := tr.NearestNeighbors(Point{0, 0}, 2)
	require.Equal(t, []testCircle{onAxis, diagonal}, got)
}

func TestNearestNeighborAfterMutation(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	tr := newPointTree(t, Options{MaxEntries: 4})
	pts := randomPoints(rng, 200)
	for _, p := range pts {
		require.NoError(t, tr.Insert(p))
	}
	// Remove half, then nearest-neighbor answers must come from survivors.
	removed := make(map[testPoint]bool)
	for _, p := range pts[:100] {
		require.True(t, tr.Remove(p))
		removed[p] = true
	}
	for i := 0; i < 50; i++ {
		q := Point{rng.Float64() * 1000, rng.Float64() * 1000}
		got, ok := tr.NearestNeighbor(q)
		require.True(t, ok)
		require.False(t, removed[got], "nearest neighbor %v was removed", got)

		best := math.Inf(1)
		for _, p := range pts[100:] {
			if d := pointDist(p, q); d < best {
				best = d
			}
		}
		require.Equal(t, best, pointDist(got, q))
	}
}
