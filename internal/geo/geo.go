// Package geo derives bounding boxes and centroids from a field's
// polygon boundary, in the spirit of the IDW grid work in the
// farmsenseOS edge processor (which leaned on paulmach/orb for the
// same point/distance primitives). spec.md §1 scopes out any GIS
// engine beyond bounding-box derivation and centroid, so this package
// intentionally stops there.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Vertex is a single lat/lng point of a field boundary polygon.
type Vertex struct {
	Lat float64
	Lng float64
}

// BoundingBox is an axis-aligned rectangle in geographic coordinates.
type BoundingBox struct {
	West, South, East, North float64
}

// Valid reports whether the box satisfies spec.md §3's invariant:
// west < east, south < north.
func (b BoundingBox) Valid() bool {
	return b.West < b.East && b.South < b.North
}

// Centroid is the arithmetic mean of a polygon's vertices. It is a
// simple planar centroid, not an area-weighted one — sufficient for
// the pipeline's bounding-box-scale needs.
type Centroid struct {
	Lat float64
	Lng float64
}

// BoundsAndCentroid derives the bounding box and centroid of a closed
// polygon, validating the invariants spec.md §3 requires: at least 3
// vertices and a simple (non-self-intersecting) ring.
func BoundsAndCentroid(vertices []Vertex) (BoundingBox, Centroid, error) {
	if len(vertices) < 3 {
		return BoundingBox{}, Centroid{}, fmt.Errorf("field boundary needs at least 3 vertices, got %d", len(vertices))
	}
	if err := validateSimplePolygon(vertices); err != nil {
		return BoundingBox{}, Centroid{}, err
	}

	ring := make(orb.Ring, 0, len(vertices))
	for _, v := range vertices {
		ring = append(ring, orb.Point{v.Lng, v.Lat})
	}
	bound := ring.Bound()

	var sumLat, sumLng float64
	for _, v := range vertices {
		sumLat += v.Lat
		sumLng += v.Lng
	}
	n := float64(len(vertices))

	bbox := BoundingBox{
		West:  bound.Min[0],
		South: bound.Min[1],
		East:  bound.Max[0],
		North: bound.Max[1],
	}
	if !bbox.Valid() {
		return BoundingBox{}, Centroid{}, fmt.Errorf("degenerate field boundary: bounding box has zero extent")
	}
	return bbox, Centroid{Lat: sumLat / n, Lng: sumLng / n}, nil
}

// validateSimplePolygon rejects boundaries whose non-adjacent edges
// cross, a cheap O(n^2) check appropriate for the small vertex counts
// a field boundary has (spec.md's non-goal rules out full polygon
// algebra, but self-intersection is an explicit invariant in §3).
func validateSimplePolygon(vertices []Vertex) error {
	n := len(vertices)
	if n < 4 {
		return nil // a triangle can't self-intersect
	}
	segment := func(i int) (orb.Point, orb.Point) {
		a := vertices[i]
		b := vertices[(i+1)%n]
		return orb.Point{a.Lng, a.Lat}, orb.Point{b.Lng, b.Lat}
	}
	for i := 0; i < n; i++ {
		a1, a2 := segment(i)
		for j := i + 1; j < n; j++ {
			if j == i || (j+1)%n == i || i == (j+1)%n {
				continue
			}
			b1, b2 := segment(j)
			if segmentsIntersect(a1, a2, b1, b2) {
				return fmt.Errorf("field boundary is self-intersecting between edges %d and %d", i, j)
			}
		}
	}
	return nil
}

func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p4, p3, p1)
	d2 := cross(p4, p3, p2)
	d3 := cross(p2, p1, p3)
	d4 := cross(p2, p1, p4)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return false
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// AreaHectares returns the planar shoelace-formula area of the
// polygon in hectares, treating degrees as locally flat via a
// latitude-scaled metres-per-degree conversion. This is an
// approximation adequate for field-scale polygons (a few hundred
// metres across), not a geodesic area computation.
func AreaHectares(vertices []Vertex) float64 {
	n := len(vertices)
	if n < 3 {
		return 0
	}
	var meanLat float64
	for _, v := range vertices {
		meanLat += v.Lat
	}
	meanLat /= float64(n)

	const metresPerDegreeLat = 111320.0
	metresPerDegreeLng := metresPerDegreeLat * math.Cos(meanLat*math.Pi/180)

	var sum float64
	for i := 0; i < n; i++ {
		a := vertices[i]
		b := vertices[(i+1)%n]
		ax, ay := a.Lng*metresPerDegreeLng, a.Lat*metresPerDegreeLat
		bx, by := b.Lng*metresPerDegreeLng, b.Lat*metresPerDegreeLat
		sum += ax*by - bx*ay
	}
	areaM2 := math.Abs(sum) / 2
	return areaM2 / 10000
}
