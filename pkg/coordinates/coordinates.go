// Package coordinates holds the geodesic helpers used to scope provider
// queries and to measure how far an aircraft is from home.
package coordinates

import (
	"fmt"
	"math"
)

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusKm is the Earth's mean radius in kilometers
	EarthRadiusKm = 6371.0

	// KmPerNauticalMile converts nautical miles to kilometers
	KmPerNauticalMile = 1.852

	// DefaultDelta is the default bounding box half-width in degrees (~50 km at the equator)
	DefaultDelta = 0.45
)

// Unit conversions applied while normalizing provider responses.
const (
	// FlightLevelToFeet converts hundreds of feet (flight levels) to feet
	FlightLevelToFeet = 100.0

	// MetersToFeet converts meters to feet
	MetersToFeet = 3.28084

	// KnotsToKmh converts knots to kilometers per hour
	KnotsToKmh = 1.852

	// MetersPerSecondToKmh converts meters per second to kilometers per hour
	MetersPerSecondToKmh = 3.6
)

// GeoPoint is a position on Earth's surface in decimal degrees (WGS84).
type GeoPoint struct {
	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude" msgpack:"lat"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude" msgpack:"lon"`
}

// String renders the point as "lat,lon" with four decimals.
func (p GeoPoint) String() string {
	return fmt.Sprintf("%.4f,%.4f", p.Latitude, p.Longitude)
}

// ToRadians converts the point to radians.
// Returns (latRad, lonRad).
func (p GeoPoint) ToRadians() (float64, float64) {
	return p.Latitude * DegreesToRadians, p.Longitude * DegreesToRadians
}

// BoundingBox is a rectangular lat/lon region used to scope a provider query.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// NewBoundingBox returns center.lat ± latDelta and center.lon ± lonDelta.
// Values are not clamped at the poles or the antimeridian.
func NewBoundingBox(center GeoPoint, latDelta, lonDelta float64) BoundingBox {
	return BoundingBox{
		MinLat: center.Latitude - latDelta,
		MinLon: center.Longitude - lonDelta,
		MaxLat: center.Latitude + latDelta,
		MaxLon: center.Longitude + lonDelta,
	}
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() GeoPoint {
	return GeoPoint{
		Latitude:  (b.MinLat + b.MaxLat) / 2,
		Longitude: (b.MinLon + b.MaxLon) / 2,
	}
}

// Corners returns the four corners, starting south-west and going clockwise.
func (b BoundingBox) Corners() [4]GeoPoint {
	return [4]GeoPoint{
		{Latitude: b.MinLat, Longitude: b.MinLon},
		{Latitude: b.MaxLat, Longitude: b.MinLon},
		{Latitude: b.MaxLat, Longitude: b.MaxLon},
		{Latitude: b.MinLat, Longitude: b.MaxLon},
	}
}

// Contains reports whether p lies inside the box (edges inclusive).
func (b BoundingBox) Contains(p GeoPoint) bool {
	return p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat &&
		p.Longitude >= b.MinLon && p.Longitude <= b.MaxLon
}

// DistanceKm calculates the great-circle distance between two points.
// Uses the Haversine formula with a mean Earth radius of 6371 km.
func DistanceKm(from, to GeoPoint) float64 {
	lat1Rad, lon1Rad := from.ToRadians()
	lat2Rad, lon2Rad := to.ToRadians()

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	// Haversine formula
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// DistanceNauticalMiles is DistanceKm expressed in nautical miles.
func DistanceNauticalMiles(from, to GeoPoint) float64 {
	return DistanceKm(from, to) / KmPerNauticalMile
}

// Bearing calculates the initial bearing (forward azimuth) from one point to another.
// Returns bearing in degrees (0-360), where 0/360 = North, 90 = East, 180 = South, 270 = West.
func Bearing(from, to GeoPoint) float64 {
	lat1, lon1 := from.ToRadians()
	lat2, lon2 := to.ToRadians()

	dLon := lon2 - lon1
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return NormalizeAzimuth(math.Atan2(y, x) * RadiansToDegrees)
}

// NormalizeAzimuth ensures azimuth is in the range [0, 360).
func NormalizeAzimuth(azimuth float64) float64 {
	az := math.Mod(azimuth, 360.0)
	if az < 0 {
		az += 360.0
	}
	return az
}

var compassPoints = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// CompassPoint maps a bearing to one of the eight principal winds.
func CompassPoint(bearing float64) string {
	idx := int(math.Floor(NormalizeAzimuth(bearing)/45.0+0.5)) % len(compassPoints)
	return compassPoints[idx]
}
