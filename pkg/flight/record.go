// Package flight defines the canonical flight record shared by every data
// provider, the provider capability itself, the ordered fallback chain that
// drives providers, and distance ranking of the results.
package flight

import (
	"time"

	"github.com/unklstewy/overhead/pkg/coordinates"
)

// MaxRanked is the number of flights exposed to consumers.
const MaxRanked = 3

// Airport identifies one end of a route. Either field may be empty.
type Airport struct {
	Code string `json:"code,omitempty" msgpack:"code"`
	City string `json:"city,omitempty" msgpack:"city"`
}

// FlightRecord is the provider-independent shape of a single aircraft.
// Altitude is always feet and ground speed always km/h, whatever units the
// provider reported.
type FlightRecord struct {
	// Callsign is the trimmed identifier broadcast by the aircraft (e.g. "UAL123")
	Callsign string `json:"callsign" msgpack:"callsign"`

	// ICAO24 is the 24-bit transponder address in hex, when the provider reports one
	ICAO24 string `json:"icao24,omitempty" msgpack:"icao24"`

	Airline      string  `json:"airline,omitempty" msgpack:"airline"`
	FlightNumber string  `json:"flight_number,omitempty" msgpack:"flight_number"`
	AircraftType string  `json:"aircraft_type,omitempty" msgpack:"aircraft_type"`
	Origin       Airport `json:"origin" msgpack:"origin"`
	Destination  Airport `json:"destination" msgpack:"destination"`

	Position       coordinates.GeoPoint `json:"position" msgpack:"position"`
	AltitudeFt     float64              `json:"altitude_ft" msgpack:"altitude_ft"`
	GroundSpeedKmh float64              `json:"ground_speed_kmh" msgpack:"ground_speed_kmh"`
	HeadingDeg     float64              `json:"heading_deg" msgpack:"heading_deg"`

	// DistanceKm is the great-circle distance from home, computed by the adapter
	DistanceKm float64 `json:"distance_km" msgpack:"distance_km"`

	// Source names the provider that produced the record
	Source string `json:"source" msgpack:"source"`
}

// Credentials carries the secrets a provider may need.
type Credentials struct {
	// APIKey is the primary provider key. Empty means not configured.
	APIKey string
}

// Query is everything an adapter needs for one fetch. It is built fresh for
// every acquisition cycle from the configuration snapshot.
type Query struct {
	Box         coordinates.BoundingBox
	Home        coordinates.GeoPoint
	Credentials Credentials
}

// Result is the outcome of a successful chain run.
type Result struct {
	Provider string
	Records  []FlightRecord
}

// RankedResult is what consumers see: the nearest flights, nearest first.
// The zero value means no acquisition has succeeded yet.
type RankedResult struct {
	Flights   []FlightRecord `json:"flights" msgpack:"flights"`
	Provider  string         `json:"provider,omitempty" msgpack:"provider"`
	FetchedAt time.Time      `json:"fetched_at" msgpack:"fetched_at"`
}

// Empty reports whether there is nothing to show.
func (r RankedResult) Empty() bool {
	return len(r.Flights) == 0
}

// Fetched reports whether the result came from a successful acquisition, as
// opposed to the zero value before the first one.
func (r RankedResult) Fetched() bool {
	return !r.FetchedAt.IsZero()
}
