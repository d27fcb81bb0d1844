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

	"github.com/pkg/errors"
)

// Point is an n-dimensional coordinate vector.
type Point []float64

// Clone returns an independent copy of the point.
func (p Point) Clone() Point {
	out := make(Point, len(p))
	copy(out, p)
	return out
}

// distanceSquared returns the squared Euclidean distance between two points of
// equal dimensionality.
func (p Point) distanceSquared(other Point) float64 {
	var sum float64
	for i := range p {
		d := p[i] - other[i]
		sum += d * d
	}
	return sum
}

// Envelope is an axis-aligned minimum bounding box in n dimensions. Min and
// Max are the lower and upper corners; for every dimension Min[i] <= Max[i].
// A point collapses to Min == Max.
//
// All operations are pure: they never mutate their receiver or arguments
// unless the method name says otherwise (Extend).
type Envelope struct {
	Min, Max Point
}

// NewEnvelope creates an envelope from its two corners. The corners may be
// given in any order per dimension; they are normalized to lower/upper.
func NewEnvelope(corner1, corner2 Point) Envelope {
	min := make(Point, len(corner1))
	max := make(Point, len(corner1))
	for i := range corner1 {
		min[i] = math.Min(corner1[i], corner2[i])
		max[i] = math.Max(corner1[i], corner2[i])
	}
	return Envelope{Min: min, Max: max}
}

// NewPointEnvelope creates a degenerate envelope covering exactly one point.
func NewPointEnvelope(p Point) Envelope {
	return Envelope{Min: p.Clone(), Max: p.Clone()}
}

// Dims returns the envelope's dimensionality.
func (e Envelope) Dims() int {
	return len(e.Min)
}

// Clone returns an independent copy of the envelope.
func (e Envelope) Clone() Envelope {
	return Envelope{Min: e.Min.Clone(), Max: e.Max.Clone()}
}

// Area returns the n-dimensional volume of the envelope.
func (e Envelope) Area() float64 {
	area := 1.0
	for i := range e.Min {
		area *= e.Max[i] - e.Min[i]
	}
	return area
}

// Margin returns the sum of the envelope's extents over all dimensions. It is
// the perimeter-like metric used for split axis selection.
func (e Envelope) Margin() float64 {
	var margin float64
	for i := range e.Min {
		margin += e.Max[i] - e.Min[i]
	}
	return margin
}

// Center returns the envelope's center point.
func (e Envelope) Center() Point {
	c := make(Point, len(e.Min))
	for i := range e.Min {
		c[i] = (e.Min[i] + e.Max[i]) / 2
	}
	return c
}

// Merged returns the smallest envelope containing both e and other.
func (e Envelope) Merged(other Envelope) Envelope {
	min := make(Point, len(e.Min))
	max := make(Point, len(e.Min))
	for i := range e.Min {
		min[i] = math.Min(e.Min[i], other.Min[i])
		max[i] = math.Max(e.Max[i], other.Max[i])
	}
	return Envelope{Min: min, Max: max}
}

// Extend grows e in place so that it contains other.
func (e *Envelope) Extend(other Envelope) {
	for i := range e.Min {
		if other.Min[i] < e.Min[i] {
			e.Min[i] = other.Min[i]
		}
		if other.Max[i] > e.Max[i] {
			e.Max[i] = other.Max[i]
		}
	}
}

// Intersects reports whether e and other share any point, boundary contact
// included.
func (e Envelope) Intersects(other Envelope) bool {
	for i := range e.Min {
		if e.Min[i] > other.Max[i] || e.Max[i] < other.Min[i] {
			return false
		}
	}
	return true
}

// IntersectionArea returns the area of the overlap between e and other, or 0
// if they are disjoint.
func (e Envelope) IntersectionArea(other Envelope) float64 {
	area := 1.0
	for i := range e.Min {
		lo := math.Max(e.Min[i], other.Min[i])
		hi := math.Min(e.Max[i], other.Max[i])
		if hi <= lo {
			return 0
		}
		area *= hi - lo
	}
	return area
}

// ContainsPoint reports whether p lies inside e, boundary included.
func (e Envelope) ContainsPoint(p Point) bool {
	for i := range e.Min {
		if p[i] < e.Min[i] || p[i] > e.Max[i] {
			return false
		}
	}
	return true
}

// ContainsEnvelope reports whether other lies entirely inside e.
func (e Envelope) ContainsEnvelope(other Envelope) bool {
	for i := range e.Min {
		if other.Min[i] < e.Min[i] || other.Max[i] > e.Max[i] {
			return false
		}
	}
	return true
}

// DistanceToPoint returns the minimum Euclidean distance from p to any point
// inside e (MINDIST). It is 0 if p is inside e. MINDIST never overestimates
// the distance to anything contained in the envelope, which is what makes the
// nearest-neighbor traversal admissible.
func (e Envelope) DistanceToPoint(p Point) float64 {
	return math.Sqrt(e.distanceSquaredToPoint(p))
}

func (e Envelope) distanceSquaredToPoint(p Point) float64 {
	var sum float64
	for i := range e.Min {
		if p[i] < e.Min[i] {
			d := e.Min[i] - p[i]
			sum += d * d
		} else if p[i] > e.Max[i] {
			d := p[i] - e.Max[i]
			sum += d * d
		}
	}
	return sum
}

// Validate checks that the envelope is well formed: the expected
// dimensionality, no NaN coordinates, and Min <= Max in every dimension. A
// malformed envelope admitted into the tree would corrupt every overlap and
// MINDIST computation, so this is enforced at the object-contract boundary.
func (e Envelope) Validate(dims int) error {
	if len(e.Min) != dims || len(e.Max) != dims {
		return errors.Errorf("rstar: envelope has %d/%d dimensions, tree has %d", len(e.Min), len(e.Max), dims)
	}
	for i := range e.Min {
		if math.IsNaN(e.Min[i]) || math.IsNaN(e.Max[i]) {
			return errors.Errorf("rstar: envelope has NaN coordinate in dimension %d", i)
		}
		if e.Min[i] > e.Max[i] {
			return errors.Errorf("rstar: envelope lower bound exceeds upper bound in dimension %d", i)
		}
	}
	return nil
}
