package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/unklstewy/overhead/pkg/coordinates"
	"github.com/unklstewy/overhead/pkg/flight"
)

const (
	// OpenSkyBaseURL is the public OpenSky Network REST endpoint
	OpenSkyBaseURL = "https://opensky-network.org/api"

	// OpenSkyName identifies this provider in logs and results
	OpenSkyName = "opensky"
)

// Indexes into an OpenSky state vector.
// Field documentation: https://openskynetwork.github.io/opensky-api/rest.html
const (
	stateICAO24      = 0
	stateCallsign    = 1
	stateLongitude   = 5
	stateLatitude    = 6
	stateBaroAlt     = 7
	stateVelocity    = 9
	stateTrueTrack   = 10
	stateGeoAlt      = 13
	minStateVecWidth = stateTrueTrack + 1
)

// OpenSkyClient implements flight.Provider for the anonymous OpenSky
// "states/all" endpoint. It is the free fallback when no AeroAPI key is set.
type OpenSkyClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenSkyClient creates a new OpenSky client.
func NewOpenSkyClient(cfg Config) *OpenSkyClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenSkyBaseURL
	}
	return &OpenSkyClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.httpClient(),
		logger:     cfg.logger().With(slog.String("provider", OpenSkyName)),
	}
}

func (c *OpenSkyClient) Name() string { return OpenSkyName }

func (c *OpenSkyClient) RequiresAPIKey() bool { return false }

// openSkyResponse is the body of GET /states/all. Each state is a
// heterogeneous JSON array, decoded lazily so one bad vector cannot
// spoil the batch.
type openSkyResponse struct {
	Time   int64             `json:"time"`
	States []json.RawMessage `json:"states"`
}

// Fetch returns every state vector OpenSky reports inside q.Box.
func (c *OpenSkyClient) Fetch(ctx context.Context, q flight.Query) ([]flight.FlightRecord, error) {
	params := url.Values{}
	params.Set("lamin", formatCoord(q.Box.MinLat))
	params.Set("lomin", formatCoord(q.Box.MinLon))
	params.Set("lamax", formatCoord(q.Box.MaxLat))
	params.Set("lomax", formatCoord(q.Box.MaxLon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/states/all?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := flight.FetchBody(ctx, c.httpClient, OpenSkyName, req)
	if err != nil {
		return nil, err
	}

	var apiResp openSkyResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, &flight.ParseError{Provider: OpenSkyName, Err: err}
	}

	// "states": null means nothing in the box
	records := make([]flight.FlightRecord, 0, len(apiResp.States))
	for i, raw := range apiResp.States {
		rec, rerr := convertState(raw, q.Home)
		if rerr != nil {
			rerr.Index = i
			c.logger.Debug("dropping state vector", slog.Any("error", rerr))
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// convertState converts one OpenSky state vector to a canonical record.
func convertState(raw json.RawMessage, home coordinates.GeoPoint) (flight.FlightRecord, *flight.RecordError) {
	var state []any
	if err := json.Unmarshal(raw, &state); err != nil {
		return flight.FlightRecord{}, &flight.RecordError{Reason: "state is not an array"}
	}
	if len(state) < minStateVecWidth {
		return flight.FlightRecord{}, &flight.RecordError{Reason: fmt.Sprintf("state has %d fields", len(state))}
	}

	lat, latOK := numberAt(state, stateLatitude)
	lon, lonOK := numberAt(state, stateLongitude)
	if !latOK || !lonOK {
		return flight.FlightRecord{}, &flight.RecordError{Reason: "no position"}
	}

	pos := coordinates.GeoPoint{Latitude: lat, Longitude: lon}
	rec := newRecord(OpenSkyName, stringAt(state, stateICAO24), stringAt(state, stateCallsign), pos, home)

	// Prefer geometric altitude, fall back to barometric
	if alt, ok := numberAt(state, stateGeoAlt); ok {
		rec.AltitudeFt = alt * coordinates.MetersToFeet
	} else if alt, ok := numberAt(state, stateBaroAlt); ok {
		rec.AltitudeFt = alt * coordinates.MetersToFeet
	}
	if v, ok := numberAt(state, stateVelocity); ok {
		rec.GroundSpeedKmh = v * coordinates.MetersPerSecondToKmh
	}
	if h, ok := numberAt(state, stateTrueTrack); ok {
		rec.HeadingDeg = h
	}

	return rec, nil
}

func numberAt(state []any, i int) (float64, bool) {
	if i >= len(state) {
		return 0, false
	}
	v, ok := state[i].(float64)
	return v, ok
}

func stringAt(state []any, i int) string {
	if i >= len(state) {
		return ""
	}
	s, _ := state[i].(string)
	return s
}
