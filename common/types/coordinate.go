package types

import (
	"fmt"
	"math"

	"go.uber.org/zap/zapcore"
)

// E6 is the fixed-point scale of coordinates: one unit is a microdegree.
const E6 = 1e6

// Coordinate is a geographic position stored in microdegrees.
// Equality is exact: the same source emits identical values on every observation.
type Coordinate struct {
	LatE6 int32
	LngE6 int32
}

// CoordinateFromDegrees rounds lat/lng degrees to the nearest microdegree.
func CoordinateFromDegrees(lat, lng float64) Coordinate {
	return Coordinate{
		LatE6: int32(math.Round(lat * E6)),
		LngE6: int32(math.Round(lng * E6)),
	}
}

// Lat returns the latitude in degrees.
func (c Coordinate) Lat() float64 { return float64(c.LatE6) / E6 }

// Lng returns the longitude in degrees.
func (c Coordinate) Lng() float64 { return float64(c.LngE6) / E6 }

// String renders "lat,lng" with six decimals.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat(), c.Lng())
}

// MarshalLogObject implements logging encoder for Coordinate.
func (c Coordinate) MarshalLogObject(encoder zapcore.ObjectEncoder) error {
	encoder.AddInt32("latE6", c.LatE6)
	encoder.AddInt32("lngE6", c.LngE6)
	return nil
}
