package flight_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/overhead/pkg/adsb"
	"github.com/unklstewy/overhead/pkg/coordinates"
	"github.com/unklstewy/overhead/pkg/flight"
	"github.com/unklstewy/overhead/pkg/flightaware"
)

const openSkyStates = `{"time": 1700000000, "states": [
  ["a0b1c2", "BAW283  ", "United Kingdom", 0, 0, -122.30, 37.70, 10000.0, false, 230.0, 270.0, 0.0, null, 10100.0, null, false, 0],
  ["abc123", "SWA12   ", "United States", 0, 0, -122.37, 37.63, 900.0, false, 80.0, 10.0, 0.0, null, 950.0, null, false, 0],
  ["def456", "DLH400  ", "Germany", 0, 0, -122.10, 37.90, 11000.0, false, 240.0, 300.0, 0.0, null, 11050.0, null, false, 0],
  ["fed987", "JBU77   ", "United States", 0, 0, -122.60, 37.50, 5000.0, false, 150.0, 120.0, 0.0, null, 5010.0, null, false, 0]
]}`

func query(key string) flight.Query {
	home := coordinates.GeoPoint{Latitude: 37.62, Longitude: -122.38}
	return flight.Query{
		Box:         coordinates.NewBoundingBox(home, coordinates.DefaultDelta, coordinates.DefaultDelta),
		Home:        home,
		Credentials: flight.Credentials{APIKey: key},
	}
}

func servers(t *testing.T, primaryStatus int) (primary, fallback *httptest.Server, primaryHits *atomic.Int32) {
	primaryHits = &atomic.Int32{}
	primary = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		primaryHits.Add(1)
		w.WriteHeader(primaryStatus)
	}))
	fallback = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(openSkyStates))
	}))
	t.Cleanup(primary.Close)
	t.Cleanup(fallback.Close)
	return primary, fallback, primaryHits
}

func TestFallbackEqualsSecondaryAlone(t *testing.T) {
	primary, fallback, hits := servers(t, http.StatusInternalServerError)

	chain := flight.NewChain(nil,
		flightaware.NewClient(flightaware.Config{BaseURL: primary.URL}),
		adsb.NewOpenSkyClient(adsb.Config{BaseURL: fallback.URL}),
	)
	res, err := chain.Fetch(context.Background(), query("key"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, adsb.OpenSkyName, res.Provider)

	alone, err := adsb.NewOpenSkyClient(adsb.Config{BaseURL: fallback.URL}).Fetch(context.Background(), query("key"))
	require.NoError(t, err)

	assert.Equal(t, alone, res.Records)
	assert.Equal(t, flight.Rank(alone, flight.MaxRanked), flight.Rank(res.Records, flight.MaxRanked))
}

func TestFallbackWithoutKeyNeverCallsPrimary(t *testing.T) {
	primary, fallback, hits := servers(t, http.StatusOK)

	chain := flight.NewChain(nil,
		flightaware.NewClient(flightaware.Config{BaseURL: primary.URL}),
		adsb.NewOpenSkyClient(adsb.Config{BaseURL: fallback.URL}),
	)
	res, err := chain.Fetch(context.Background(), query(""))
	require.NoError(t, err)
	assert.Zero(t, hits.Load())
	assert.Equal(t, adsb.OpenSkyName, res.Provider)

	ranked := flight.Rank(res.Records, flight.MaxRanked)
	require.Len(t, ranked, 3)
	assert.Equal(t, "SWA12", ranked[0].Callsign, "nearest to home first")
	for i := 1; i < len(ranked); i++ {
		assert.LessOrEqual(t, ranked[i-1].DistanceKm, ranked[i].DistanceKm)
	}
}
