package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/overhead/pkg/coordinates"
	"github.com/unklstewy/overhead/pkg/flight"
)

func TestSaveLoad(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "state", "last.snap"))

	want := flight.RankedResult{
		Provider:  "opensky",
		FetchedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Flights: []flight.FlightRecord{{
			Callsign:   "BAW283",
			ICAO24:     "a0b1c2",
			Airline:    "British Airways",
			Origin:     flight.Airport{Code: "EGLL", City: "London"},
			Position:   coordinates.GeoPoint{Latitude: 37.7, Longitude: -122.3},
			AltitudeFt: 33136.5,
			DistanceKm: 9.4,
			Source:     "opensky",
		}},
	}
	require.NoError(t, f.Save(want))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, want.Provider, got.Provider)
	assert.True(t, want.FetchedAt.Equal(got.FetchedAt))
	assert.Equal(t, want.Flights, got.Flights)
}

func TestLoadMissing(t *testing.T) {
	got, err := NewFile(filepath.Join(t.TempDir(), "none.snap")).Load()
	require.NoError(t, err)
	assert.False(t, got.Fetched())
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.snap")
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0644))

	_, err := NewFile(path).Load()
	assert.Error(t, err)
}

func TestSaveReplaces(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "last.snap"))
	require.NoError(t, f.Save(flight.RankedResult{Provider: "a", FetchedAt: time.Now()}))
	require.NoError(t, f.Save(flight.RankedResult{Provider: "b", FetchedAt: time.Now()}))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, "b", got.Provider)

	entries, err := os.ReadDir(filepath.Dir(f.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
