// Package geo provides the geodesic helpers shared by geofence evaluation.
// All distances are great-circle distances on a sphere of EarthRadiusMeters.
package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used for every distance calculation.
const EarthRadiusMeters = 6371000.0

// Coordinate represents a geographic point in decimal degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Validate reports whether the coordinate lies within the WGS84 degree ranges.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", c.Lat)
	}
	if math.IsNaN(c.Lon) || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", c.Lon)
	}
	return nil
}

func (c Coordinate) latLng() s2.LatLng {
	return s2.LatLngFromDegrees(c.Lat, c.Lon)
}

// Distance returns the great-circle distance between a and b in meters.
// It is symmetric and returns 0 for identical points.
func Distance(a, b Coordinate) float64 {
	return a.latLng().Distance(b.latLng()).Radians() * EarthRadiusMeters
}

