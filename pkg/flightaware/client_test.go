package flightaware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/overhead/pkg/coordinates"
	"github.com/unklstewy/overhead/pkg/flight"
)

const searchBody = `{
  "flights": [
    {
      "ident": "UAL123 ",
      "operator": "UAL",
      "flight_number": "123",
      "aircraft_type": "B738",
      "origin": {"code": "KSFO", "city": "San Francisco"},
      "destination": {"code": "KJFK", "city": "New York"},
      "last_position": {"latitude": 37.70, "longitude": -122.30, "altitude": 350, "groundspeed": 450, "heading": 90}
    },
    {
      "ident": "N12345",
      "last_position": null
    },
    {
      "ident": "XYZ9",
      "operator": "XYZ",
      "last_position": {"latitude": null, "longitude": -122.0}
    }
  ]
}`

func testQuery(key string) flight.Query {
	home := coordinates.GeoPoint{Latitude: 37.62, Longitude: -122.38}
	return flight.Query{
		Box:         coordinates.NewBoundingBox(home, coordinates.DefaultDelta, coordinates.DefaultDelta),
		Home:        home,
		Credentials: flight.Credentials{APIKey: key},
	}
}

func TestFetchNormalizesFlights(t *testing.T) {
	var gotKey, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/flights/search", r.URL.Path)
		gotKey = r.Header.Get("x-apikey")
		gotQuery = r.URL.Query().Get("query")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchBody))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL})
	q := testQuery("secret")
	records, err := client.Fetch(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, `-latlong "37.1700 -122.8300 38.0700 -121.9300"`, gotQuery)

	require.Len(t, records, 1, "records without a position are dropped")
	rec := records[0]
	assert.Equal(t, "UAL123", rec.Callsign)
	assert.Equal(t, "United Airlines", rec.Airline)
	assert.Equal(t, "123", rec.FlightNumber)
	assert.Equal(t, "B738", rec.AircraftType)
	assert.Equal(t, flight.Airport{Code: "KSFO", City: "San Francisco"}, rec.Origin)
	assert.Equal(t, flight.Airport{Code: "KJFK", City: "New York"}, rec.Destination)
	assert.InDelta(t, 35000, rec.AltitudeFt, 0.001)
	assert.InDelta(t, 833.4, rec.GroundSpeedKmh, 0.001)
	assert.InDelta(t, 90, rec.HeadingDeg, 0.001)
	assert.Equal(t, Name, rec.Source)
	assert.InDelta(t, coordinates.DistanceKm(q.Home, rec.Position), rec.DistanceKm, 1e-9)
}

func TestFetchSkipsMalformedFlight(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"flights": [
			{"ident": "DAL45", "last_position": {"latitude": 37.65, "longitude": -122.40, "altitude": 120}},
			{"ident": "BAD1", "last_position": {"latitude": 37.60, "longitude": -122.35, "altitude": "FL350"}},
			"not an object",
			{"ident": "SWA7", "last_position": {"latitude": 37.80, "longitude": -122.20}}
		]}`))
	}))
	defer server.Close()

	records, err := NewClient(Config{BaseURL: server.URL}).Fetch(context.Background(), testQuery("secret"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "DAL45", records[0].Callsign)
	assert.InDelta(t, 12000, records[0].AltitudeFt, 0.001)
	assert.Equal(t, "SWA7", records[1].Callsign)
}

func TestFetchWithoutKey(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	_, err := NewClient(Config{BaseURL: server.URL}).Fetch(context.Background(), testQuery(""))
	assert.ErrorIs(t, err, flight.ErrCredentialMissing)
	assert.Zero(t, hits.Load(), "no request may be sent without a key")
}

func TestFetchErrors(t *testing.T) {
	t.Run("Unauthorized", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"title":"invalid API key"}`))
		}))
		defer server.Close()

		_, err := NewClient(Config{BaseURL: server.URL}).Fetch(context.Background(), testQuery("bad"))
		var se *flight.StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	})

	t.Run("Malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>maintenance</html>`))
		}))
		defer server.Close()

		_, err := NewClient(Config{BaseURL: server.URL}).Fetch(context.Background(), testQuery("key"))
		var pe *flight.ParseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, Name, pe.Provider)
	})

	t.Run("Unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		base := server.URL
		server.Close()

		_, err := NewClient(Config{BaseURL: base}).Fetch(context.Background(), testQuery("key"))
		var te *flight.TransportError
		assert.True(t, errors.As(err, &te))
	})
}

func TestFetchQuotaGuard(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"flights":[]}`))
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, RequestsPerHour: 1})

	_, err := client.Fetch(context.Background(), testQuery("key"))
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), testQuery("key"))
	assert.ErrorIs(t, err, flight.ErrRateLimited)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchCache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(searchBody))
	}))
	defer server.Close()

	// The cache answers before the quota guard is consulted
	client := NewClient(Config{BaseURL: server.URL, RequestsPerHour: 1, CacheTTL: time.Minute})

	first, err := client.Fetch(context.Background(), testQuery("key"))
	require.NoError(t, err)
	first[0].Callsign = "MUTATED"

	second, err := client.Fetch(context.Background(), testQuery("key"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "UAL123", second[0].Callsign)

	other := testQuery("key")
	other.Home.Latitude += 1
	_, err = client.Fetch(context.Background(), other)
	assert.ErrorIs(t, err, flight.ErrRateLimited, "a different box misses the cache")
}

func TestClientIdentity(t *testing.T) {
	c := NewClient(Config{})
	assert.Equal(t, "flightaware", c.Name())
	assert.True(t, c.RequiresAPIKey())
	assert.Equal(t, BaseURL, c.baseURL)
	assert.Nil(t, c.rateLimiter)
	assert.Nil(t, c.cache)
}
