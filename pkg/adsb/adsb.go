// Package adsb implements flight providers backed by public ADS-B
// aggregators. They need no credentials and report only what a transponder
// broadcasts: identity, position, altitude, speed and track. Route fields of
// the records they produce are always empty; the airline is inferred from the
// callsign prefix.
package adsb

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/unklstewy/overhead/pkg/coordinates"
	"github.com/unklstewy/overhead/pkg/flight"
)

// DefaultTimeout for API requests
const DefaultTimeout = 10 * time.Second

// Config contains configuration shared by the ADS-B clients.
type Config struct {
	// BaseURL is the API base URL (tests point this at an httptest server)
	BaseURL string

	// Timeout bounds each HTTP request; zero means DefaultTimeout
	Timeout time.Duration

	// MinInterval is the minimum time between API calls; zero disables pacing
	MinInterval time.Duration

	Logger *slog.Logger
}

func (c Config) httpClient() *http.Client {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// newRecord fills the fields every ADS-B provider derives the same way.
func newRecord(source, icao24, callsign string, pos coordinates.GeoPoint, home coordinates.GeoPoint) flight.FlightRecord {
	cs := strings.TrimSpace(callsign)
	return flight.FlightRecord{
		Callsign:   cs,
		ICAO24:     strings.ToLower(strings.TrimSpace(icao24)),
		Airline:    AirlineForCallsign(cs),
		Position:   pos,
		DistanceKm: coordinates.DistanceKm(home, pos),
		Source:     source,
	}
}
