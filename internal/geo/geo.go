// Package geo holds distance helpers used by the alert engine and track ingestion.
package geo

import (
	"math"

	"github.com/BearBump/DispatchDesk/internal/models"
	"github.com/golang/geo/s2"
)

const (
	// EarthRadiusM is the sphere radius used for great-circle distances.
	EarthRadiusM = 6371000.0
	// MercatorRadiusM is the WGS84 equatorial radius used by the planar projection.
	MercatorRadiusM = 6378137.0
)

// GreatCircleDistance returns the haversine distance between a and b in meters.
// Coordinates are not range-checked.
func GreatCircleDistance(a, b models.Point) float64 {
	la := s2.LatLngFromDegrees(a.Lat, a.Lng)
	lb := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return la.Distance(lb).Radians() * EarthRadiusM
}

// Project maps a coordinate onto the spherical mercator plane (meters).
func Project(p models.Point) (x, y float64) {
	x = p.Lng * math.Pi / 180 * MercatorRadiusM
	y = math.Log(math.Tan((90+p.Lat)*math.Pi/360)) * MercatorRadiusM
	return x, y
}

// PointToSegmentDistance returns the planar distance in meters from p to the
// segment a-b. Projections past either end clamp to that endpoint.
func PointToSegmentDistance(p, a, b models.Point) float64 {
	px, py := Project(p)
	ax, ay := Project(a)
	bx, by := Project(b)

	vx, vy := bx-ax, by-ay
	wx, wy := px-ax, py-ay

	c1 := vx*wx + vy*wy
	if c1 <= 0 {
		return math.Hypot(px-ax, py-ay)
	}
	c2 := vx*vx + vy*vy
	if c2 <= c1 {
		return math.Hypot(px-bx, py-by)
	}
	t := c1 / c2
	fx, fy := ax+t*vx, ay+t*vy
	return math.Hypot(px-fx, py-fy)
}

// PathLength sums great-circle distances between consecutive points.
func PathLength(pts []models.Point) float64 {
	var total float64
	for i := 1; i < len(pts); i++ {
		total += GreatCircleDistance(pts[i-1], pts[i])
	}
	return total
}
