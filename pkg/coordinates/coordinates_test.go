package coordinates

import (
	"math"
	"testing"
)

// TestDistanceKm tests the haversine distance against known city pairs.
func TestDistanceKm(t *testing.T) {
	tests := []struct {
		name      string
		from      GeoPoint
		to        GeoPoint
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "Boston to New York",
			from:      GeoPoint{Latitude: 42.3601, Longitude: -71.0589},
			to:        GeoPoint{Latitude: 40.7128, Longitude: -74.0060},
			wantKm:    306.0,
			tolerance: 2.0,
		},
		{
			name:      "One degree of latitude",
			from:      GeoPoint{Latitude: 0, Longitude: 0},
			to:        GeoPoint{Latitude: 1, Longitude: 0},
			wantKm:    111.19,
			tolerance: 0.1,
		},
		{
			name:      "Across the antimeridian",
			from:      GeoPoint{Latitude: 0, Longitude: 179.5},
			to:        GeoPoint{Latitude: 0, Longitude: -179.5},
			wantKm:    111.19,
			tolerance: 0.1,
		},
		{
			name:      "Same point",
			from:      GeoPoint{Latitude: 51.4700, Longitude: -0.4543},
			to:        GeoPoint{Latitude: 51.4700, Longitude: -0.4543},
			wantKm:    0,
			tolerance: 1e-9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.from, tt.to)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("DistanceKm() = %.3f km, want %.3f ± %.3f", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

// TestDistanceKmSymmetry verifies distance(a,b) == distance(b,a) and distance(a,a) == 0.
func TestDistanceKmSymmetry(t *testing.T) {
	points := []GeoPoint{
		{Latitude: 42.3601, Longitude: -71.0589},
		{Latitude: -33.8688, Longitude: 151.2093},
		{Latitude: 89.9, Longitude: 10},
		{Latitude: -45.0, Longitude: -179.9},
		{Latitude: 0, Longitude: 0},
	}

	for i, a := range points {
		if d := DistanceKm(a, a); d != 0 {
			t.Errorf("DistanceKm(%v, %v) = %v, want 0", a, a, d)
		}
		for _, b := range points[i+1:] {
			ab := DistanceKm(a, b)
			ba := DistanceKm(b, a)
			if math.Abs(ab-ba) > 1e-9 {
				t.Errorf("asymmetric distance between %v and %v: %v vs %v", a, b, ab, ba)
			}
		}
	}
}

// TestNewBoundingBox tests box construction around a center point.
func TestNewBoundingBox(t *testing.T) {
	center := GeoPoint{Latitude: 47.4502, Longitude: -122.3088}
	box := NewBoundingBox(center, DefaultDelta, DefaultDelta)

	if math.Abs(box.MinLat-47.0002) > 1e-9 || math.Abs(box.MaxLat-47.9002) > 1e-9 {
		t.Errorf("Unexpected latitude range: %f..%f", box.MinLat, box.MaxLat)
	}
	if math.Abs(box.MinLon-(-122.7588)) > 1e-9 || math.Abs(box.MaxLon-(-121.8588)) > 1e-9 {
		t.Errorf("Unexpected longitude range: %f..%f", box.MinLon, box.MaxLon)
	}
	if !box.Contains(center) {
		t.Error("Expected box to contain its center")
	}

	c := box.Center()
	if math.Abs(c.Latitude-center.Latitude) > 1e-9 || math.Abs(c.Longitude-center.Longitude) > 1e-9 {
		t.Errorf("Center() = %v, want %v", c, center)
	}

	t.Run("No clamping near the pole", func(t *testing.T) {
		box := NewBoundingBox(GeoPoint{Latitude: 89.8, Longitude: 0}, 0.45, 0.45)
		if box.MaxLat <= 90 {
			t.Errorf("Expected unclamped MaxLat > 90, got %f", box.MaxLat)
		}
	})
}

// TestBearing tests initial bearing calculation.
func TestBearing(t *testing.T) {
	origin := GeoPoint{Latitude: 40.0, Longitude: -74.0}
	tests := []struct {
		name    string
		to      GeoPoint
		want    float64
		compass string
	}{
		{"North", GeoPoint{Latitude: 41.0, Longitude: -74.0}, 0, "N"},
		{"East", GeoPoint{Latitude: 40.0, Longitude: -73.0}, 89.68, "E"},
		{"South", GeoPoint{Latitude: 39.0, Longitude: -74.0}, 180, "S"},
		{"West", GeoPoint{Latitude: 40.0, Longitude: -75.0}, 270.32, "W"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(origin, tt.to)
			if math.Abs(got-tt.want) > 0.5 {
				t.Errorf("Bearing() = %.2f, want %.2f", got, tt.want)
			}
			if cp := CompassPoint(got); cp != tt.compass {
				t.Errorf("CompassPoint(%.2f) = %s, want %s", got, cp, tt.compass)
			}
		})
	}
}

// TestNormalizeAzimuth tests wrapping into [0, 360).
func TestNormalizeAzimuth(t *testing.T) {
	tests := map[float64]float64{
		0:    0,
		360:  0,
		-90:  270,
		725:  5,
		-720: 0,
	}
	for in, want := range tests {
		if got := NormalizeAzimuth(in); math.Abs(got-want) > 1e-9 {
			t.Errorf("NormalizeAzimuth(%v) = %v, want %v", in, got, want)
		}
	}
}
