// Package bounds implements the rectangular region of interest used to filter
// observed portals.
package bounds

import (
	"errors"
	"fmt"

	"go.uber.org/zap/zapcore"

	"github.com/portaldiscoverer/discoverer/common/types"
)

// ErrCornerOrder is returned by FromCorners when the corners do not follow
// the (max-lat, min-lng), (min-lat, max-lng) convention.
var ErrCornerOrder = errors.New("bounds: corners must be (max-lat, min-lng) then (min-lat, max-lng)")

// Region is an axis-aligned rectangle in microdegrees. Edges are inclusive.
// The zero value is unbounded.
type Region struct {
	North int32
	West  int32
	South int32
	East  int32
}

// NewRegion returns the rectangle spanned by two opposite corners given in any order.
func NewRegion(a, b types.Coordinate) Region {
	return Region{
		North: max(a.LatE6, b.LatE6),
		South: min(a.LatE6, b.LatE6),
		West:  min(a.LngE6, b.LngE6),
		East:  max(a.LngE6, b.LngE6),
	}
}

// FromCorners builds a region from corners in the canonical order: first is
// the north-west corner (max-lat, min-lng), second the south-east corner
// (min-lat, max-lng).
func FromCorners(first, second types.Coordinate) (Region, error) {
	if first.LatE6 < second.LatE6 || first.LngE6 > second.LngE6 {
		return Region{}, fmt.Errorf("%w: got %s and %s", ErrCornerOrder, first, second)
	}
	return NewRegion(first, second), nil
}

// FromPolygon returns the bounding box of a polygon given as [lng, lat] pairs
// in degrees, the format of the search region published by the index server.
func FromPolygon(ring [][2]float64) (Region, bool) {
	if len(ring) == 0 {
		return Region{}, false
	}
	first := types.CoordinateFromDegrees(ring[0][1], ring[0][0])
	r := NewRegion(first, first)
	for _, p := range ring[1:] {
		c := types.CoordinateFromDegrees(p[1], p[0])
		r.North = max(r.North, c.LatE6)
		r.South = min(r.South, c.LatE6)
		r.West = min(r.West, c.LngE6)
		r.East = max(r.East, c.LngE6)
	}
	return r, true
}

// Default is the US west coast region used when none is configured.
func Default() Region {
	return NewRegion(
		types.CoordinateFromDegrees(46.887566, -125.208619),
		types.CoordinateFromDegrees(40.258825, -115.094343),
	)
}

// IsZero reports whether the region is unbounded.
func (r Region) IsZero() bool {
	return r == Region{}
}

// Contains reports whether c lies inside the region, edges included.
// Latitude and longitude are checked independently.
func (r Region) Contains(c types.Coordinate) bool {
	if r.IsZero() {
		return true
	}
	return c.LatE6 <= r.North && c.LatE6 >= r.South &&
		c.LngE6 >= r.West && c.LngE6 <= r.East
}

// Corners returns the region in canonical corner order.
func (r Region) Corners() (types.Coordinate, types.Coordinate) {
	return types.Coordinate{LatE6: r.North, LngE6: r.West}, types.Coordinate{LatE6: r.South, LngE6: r.East}
}

func (r Region) String() string {
	nw, se := r.Corners()
	return fmt.Sprintf("[%s %s]", nw, se)
}

// MarshalLogObject implements logging encoder for Region.
func (r Region) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddInt32("north", r.North)
	encoder.AddInt32("west", r.West)
	encoder.AddInt32("south", r.South)
	encoder.AddInt32("east", r.East)
	return nil
}
