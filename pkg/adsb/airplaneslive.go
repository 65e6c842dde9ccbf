package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/unklstewy/overhead/pkg/coordinates"
	"github.com/unklstewy/overhead/pkg/flight"
)

const (
	// AirplanesLiveBaseURL is the airplanes.live v2 REST endpoint
	AirplanesLiveBaseURL = "https://api.airplanes.live/v2"

	// AirplanesLiveName identifies this provider in logs and results
	AirplanesLiveName = "airplanes.live"

	// maxRadiusNM is the largest radius the /point endpoint accepts
	maxRadiusNM = 250.0
)

// AirplanesLiveClient implements flight.Provider for the airplanes.live API.
// API Documentation: https://airplanes.live/api-guide/
// Rate Limit: 1 request per second
type AirplanesLiveClient struct {
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	minInterval time.Duration

	// mu guards lastRequest, which tracks the last API call for pacing
	mu          sync.Mutex
	lastRequest time.Time
}

// NewAirplanesLiveClient creates a new airplanes.live API client.
// A zero MinInterval gets the documented one second spacing.
func NewAirplanesLiveClient(cfg Config) *AirplanesLiveClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = AirplanesLiveBaseURL
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = time.Second
	}
	return &AirplanesLiveClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  cfg.httpClient(),
		logger:      cfg.logger().With(slog.String("provider", AirplanesLiveName)),
		minInterval: cfg.MinInterval,
	}
}

func (c *AirplanesLiveClient) Name() string { return AirplanesLiveName }

func (c *AirplanesLiveClient) RequiresAPIKey() bool { return false }

// SearchRadius returns the radius in nautical miles of the circle centred on
// the box that covers all of its corners, capped at the API maximum.
func SearchRadius(box coordinates.BoundingBox) float64 {
	center := box.Center()
	radius := 0.0
	for _, corner := range box.Corners() {
		radius = max(radius, coordinates.DistanceNauticalMiles(center, corner))
	}
	return min(radius, maxRadiusNM)
}

// Fetch returns the aircraft within the circle around q.Box, keeping only
// those that actually fall inside the box.
func (c *AirplanesLiveClient) Fetch(ctx context.Context, q flight.Query) ([]flight.FlightRecord, error) {
	if err := c.pace(ctx); err != nil {
		return nil, &flight.TransportError{Provider: AirplanesLiveName, Err: err}
	}

	center := q.Box.Center()
	endpoint := fmt.Sprintf("%s/point/%.4f/%.4f/%.0f", c.baseURL, center.Latitude, center.Longitude, SearchRadius(q.Box))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	body, err := flight.FetchBody(ctx, c.httpClient, AirplanesLiveName, req)
	if err != nil {
		return nil, err
	}

	var apiResp airplanesLiveResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &flight.ParseError{Provider: AirplanesLiveName, Err: err}
	}

	records := make([]flight.FlightRecord, 0, len(apiResp.Aircraft))
	for i, raw := range apiResp.Aircraft {
		var ac airplanesLiveAircraft
		if err := json.Unmarshal(raw, &ac); err != nil {
			c.logger.Debug("dropping aircraft", slog.Any("error", &flight.RecordError{Index: i, Reason: err.Error()}))
			continue
		}
		// Skip aircraft without a position
		if ac.Lat == nil || ac.Lon == nil {
			continue
		}
		rec := convertAirplanesLiveAircraft(ac, q.Home)
		if !q.Box.Contains(rec.Position) {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// pace enforces the minimum spacing between requests.
func (c *AirplanesLiveClient) pace(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastRequest.IsZero() {
		if wait := c.minInterval - time.Since(c.lastRequest); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	c.lastRequest = time.Now()
	return nil
}

// airplanesLiveResponse represents the JSON response from airplanes.live API.
type airplanesLiveResponse struct {
	Aircraft []json.RawMessage `json:"ac"`
	Total    int               `json:"total"`
	Now      float64           `json:"now"`
}

// airplanesLiveAircraft represents a single aircraft in the airplanes.live API response.
// Field documentation: https://airplanes.live/adsb-field-explanations/
type airplanesLiveAircraft struct {
	// Hex is the ICAO Mode S hex code (e.g., "a12345")
	Hex string `json:"hex"`

	// Flight is the callsign, space padded
	Flight *string `json:"flight"`

	// Type is the ICAO aircraft type designator (e.g., "B738")
	Type string `json:"t"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	// AltBaro and AltGeom are feet; either can be the string "ground"
	AltBaro any `json:"alt_baro"`
	AltGeom any `json:"alt_geom"`

	// Gs is ground speed in knots
	Gs *float64 `json:"gs"`

	// Track is ground track in degrees (0-360)
	Track *float64 `json:"track"`
}

// convertAirplanesLiveAircraft converts an airplanes.live aircraft to a canonical record.
func convertAirplanesLiveAircraft(ac airplanesLiveAircraft, home coordinates.GeoPoint) flight.FlightRecord {
	callsign := ""
	if ac.Flight != nil {
		callsign = *ac.Flight
	}

	pos := coordinates.GeoPoint{Latitude: *ac.Lat, Longitude: *ac.Lon}
	rec := newRecord(AirplanesLiveName, ac.Hex, callsign, pos, home)
	rec.AircraftType = ac.Type

	// Altitude - prefer geometric (GPS) over barometric
	if alt, ok := parseAltitude(ac.AltGeom); ok {
		rec.AltitudeFt = alt
	} else if alt, ok := parseAltitude(ac.AltBaro); ok {
		rec.AltitudeFt = alt
	}

	if ac.Gs != nil {
		rec.GroundSpeedKmh = *ac.Gs * coordinates.KnotsToKmh
	}
	if ac.Track != nil {
		rec.HeadingDeg = *ac.Track
	}

	return rec
}

// parseAltitude extracts altitude in feet from a value that is either a
// number or the string "ground".
func parseAltitude(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case string:
		if v == "ground" {
			return 0, true
		}
	}
	return 0, false
}
