// Package flightaware provides the primary flight provider, backed by the
// FlightAware AeroAPI v4 flight search.
//
// AeroAPI returns route information (origin, destination, aircraft type) that
// ADS-B aggregators cannot, so it is tried first whenever an API key is
// configured. Requests are metered by a local quota guard and repeated
// searches for the same box are answered from a short-lived cache.
//
// API Documentation: https://www.flightaware.com/aeroapi/portal/documentation
package flightaware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/unklstewy/overhead/pkg/adsb"
	"github.com/unklstewy/overhead/pkg/coordinates"
	"github.com/unklstewy/overhead/pkg/flight"
)

const (
	// BaseURL is the FlightAware AeroAPI v4 base URL
	BaseURL = "https://aeroapi.flightaware.com/aeroapi"

	// DefaultTimeout for API requests
	DefaultTimeout = 10 * time.Second

	// Name identifies this provider in logs and results
	Name = "flightaware"

	cacheSize = 64
)

// Client is a FlightAware AeroAPI flight provider.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	cache       *expirable.LRU[string, []flight.FlightRecord]
	logger      *slog.Logger
}

// Config contains configuration for the FlightAware client.
type Config struct {
	// BaseURL overrides the AeroAPI endpoint; empty means BaseURL
	BaseURL string

	// RequestsPerHour caps upstream calls; 0 means unlimited
	RequestsPerHour int

	// CacheTTL is how long a search result is reused; 0 disables caching
	CacheTTL time.Duration

	Timeout time.Duration
	Logger  *slog.Logger
}

// NewClient creates a new FlightAware AeroAPI client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger.With(slog.String("provider", Name)),
	}

	if cfg.RequestsPerHour > 0 {
		// Convert requests per hour to a token bucket with a burst of 1
		requestsPerSecond := float64(cfg.RequestsPerHour) / 3600.0
		c.rateLimiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	if cfg.CacheTTL > 0 {
		c.cache = expirable.NewLRU[string, []flight.FlightRecord](cacheSize, nil, cfg.CacheTTL)
	}

	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) RequiresAPIKey() bool { return true }

// Fetch searches for airborne flights inside q.Box.
func (c *Client) Fetch(ctx context.Context, q flight.Query) ([]flight.FlightRecord, error) {
	if q.Credentials.APIKey == "" {
		return nil, flight.ErrCredentialMissing
	}

	key := cacheKey(q)
	if c.cache != nil {
		if records, ok := c.cache.Get(key); ok {
			c.logger.Debug("serving cached search", slog.Int("count", len(records)))
			return slices.Clone(records), nil
		}
	}

	// Fail fast instead of waiting; the chain falls back to a free source
	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		return nil, flight.ErrRateLimited
	}

	b := q.Box
	params := url.Values{}
	params.Set("query", fmt.Sprintf(`-latlong "%.4f %.4f %.4f %.4f"`, b.MinLat, b.MinLon, b.MaxLat, b.MaxLon))
	endpoint := fmt.Sprintf("%s/flights/search?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-apikey", q.Credentials.APIKey)
	req.Header.Set("Accept", "application/json")

	body, err := flight.FetchBody(ctx, c.httpClient, Name, req)
	if err != nil {
		return nil, err
	}

	var response searchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &flight.ParseError{Provider: Name, Err: err}
	}

	records := make([]flight.FlightRecord, 0, len(response.Flights))
	for i, raw := range response.Flights {
		rec, rerr := convertFlight(raw, q.Home)
		if rerr != nil {
			rerr.Index = i
			c.logger.Debug("dropping flight", slog.Any("error", rerr))
			continue
		}
		records = append(records, rec)
	}

	if c.cache != nil {
		c.cache.Add(key, slices.Clone(records))
	}

	return records, nil
}

func cacheKey(q flight.Query) string {
	b := q.Box
	return fmt.Sprintf("%.4f,%.4f,%.4f,%.4f@%.4f,%.4f",
		b.MinLat, b.MinLon, b.MaxLat, b.MaxLon, q.Home.Latitude, q.Home.Longitude)
}

// searchResponse is the body of GET /flights/search. Flights are decoded one
// at a time so a single malformed entry only drops that entry.
type searchResponse struct {
	Flights []json.RawMessage `json:"flights"`
}

type airport struct {
	Code string `json:"code"`
	City string `json:"city"`
}

type searchFlight struct {
	// Ident is the flight identifier (callsign), e.g. "UAL123"
	Ident        string   `json:"ident"`
	Operator     string   `json:"operator"`
	FlightNumber string   `json:"flight_number"`
	AircraftType string   `json:"aircraft_type"`
	Origin       *airport `json:"origin"`
	Destination  *airport `json:"destination"`

	LastPosition *struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
		// Altitude is in hundreds of feet (flight level)
		Altitude    *float64 `json:"altitude"`
		GroundSpeed *float64 `json:"groundspeed"` // knots
		Heading     *float64 `json:"heading"`
	} `json:"last_position"`
}

// convertFlight converts an AeroAPI flight to a canonical record.
func convertFlight(raw json.RawMessage, home coordinates.GeoPoint) (flight.FlightRecord, *flight.RecordError) {
	var f searchFlight
	if err := json.Unmarshal(raw, &f); err != nil {
		return flight.FlightRecord{}, &flight.RecordError{Reason: err.Error()}
	}

	lp := f.LastPosition
	if lp == nil {
		return flight.FlightRecord{}, &flight.RecordError{Reason: "no last_position"}
	}
	if lp.Latitude == nil || lp.Longitude == nil {
		return flight.FlightRecord{}, &flight.RecordError{Reason: "position without coordinates"}
	}

	pos := coordinates.GeoPoint{Latitude: *lp.Latitude, Longitude: *lp.Longitude}
	rec := flight.FlightRecord{
		Callsign:     strings.TrimSpace(f.Ident),
		FlightNumber: f.FlightNumber,
		AircraftType: f.AircraftType,
		Position:     pos,
		DistanceKm:   coordinates.DistanceKm(home, pos),
		Source:       Name,
	}

	// operator is an ICAO designator; show the carrier name when we know it
	rec.Airline = adsb.AirlineForCallsign(f.Operator)
	if rec.Airline == "" {
		rec.Airline = f.Operator
	}

	if f.Origin != nil {
		rec.Origin = flight.Airport{Code: f.Origin.Code, City: f.Origin.City}
	}
	if f.Destination != nil {
		rec.Destination = flight.Airport{Code: f.Destination.Code, City: f.Destination.City}
	}

	if lp.Altitude != nil {
		rec.AltitudeFt = *lp.Altitude * coordinates.FlightLevelToFeet
	}
	if lp.GroundSpeed != nil {
		rec.GroundSpeedKmh = *lp.GroundSpeed * coordinates.KnotsToKmh
	}
	if lp.Heading != nil {
		rec.HeadingDeg = *lp.Heading
	}

	return rec, nil
}
