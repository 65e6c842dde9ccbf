package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/unklstewy/overhead/pkg/coordinates"
	"github.com/unklstewy/overhead/pkg/flight"
)

// RedactedValue replaces secrets in configuration shown to clients.
const RedactedValue = "********"

// Source types understood by the provider chain.
const (
	SourceOpenSky       = "opensky"
	SourceAirplanesLive = "airplanes.live"
)

// Config represents the complete application configuration.
// Configuration can be loaded from a file or database.
type Config struct {
	Location    LocationConfig    `json:"location"`
	FlightAware FlightAwareConfig `json:"flightaware"`
	ADSB        ADSBConfig        `json:"adsb"`
	Network     NetworkConfig     `json:"network"`
	Refresh     RefreshConfig     `json:"refresh"`
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Log         LogConfig         `json:"log"`
	Snapshot    SnapshotConfig    `json:"snapshot"`
}

// LocationConfig is the home position flights are ranked against.
type LocationConfig struct {
	// Name is a friendly identifier shown in the display header
	Name string `json:"name"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude"`

	// LatDelta and LonDelta are the half-widths of the search box in degrees
	LatDelta float64 `json:"lat_delta"`
	LonDelta float64 `json:"lon_delta"`
}

// Home returns the configured home position.
func (l LocationConfig) Home() coordinates.GeoPoint {
	return coordinates.GeoPoint{Latitude: l.Latitude, Longitude: l.Longitude}
}

// Box returns the search box around home.
func (l LocationConfig) Box() coordinates.BoundingBox {
	return coordinates.NewBoundingBox(l.Home(), l.LatDelta, l.LonDelta)
}

// FlightAwareConfig contains FlightAware AeroAPI settings.
type FlightAwareConfig struct {
	// APIKey is the FlightAware API key for AeroAPI v4. Empty means the
	// provider is skipped.
	// Sign up at: https://www.flightaware.com/aeroapi/
	APIKey string `json:"api_key"`

	// Enabled determines if FlightAware is placed in the provider chain
	Enabled bool `json:"enabled"`

	// BaseURL overrides the AeroAPI endpoint
	BaseURL string `json:"base_url,omitempty"`

	// RequestsPerHour limits the API call rate; 0 = unlimited
	// Personal tier: ~0.7 requests/hour keeps within a monthly allowance of 500
	RequestsPerHour int `json:"requests_per_hour"`

	// CacheTTLSeconds is how long a search result is reused; 0 disables the cache
	CacheTTLSeconds int `json:"cache_ttl_seconds"`
}

// CacheTTL returns CacheTTLSeconds as a duration.
func (f FlightAwareConfig) CacheTTL() time.Duration {
	return time.Duration(f.CacheTTLSeconds) * time.Second
}

// ADSBConfig contains the ADS-B fallback sources, tried in order after FlightAware.
type ADSBConfig struct {
	Sources []ADSBSource `json:"sources"`
}

// ADSBSource represents a single ADS-B data source configuration.
type ADSBSource struct {
	// Name is a friendly name for this source
	Name string `json:"name"`

	// Type is the source type: "opensky" or "airplanes.live"
	Type string `json:"type"`

	// Enabled determines if this source should be used
	Enabled bool `json:"enabled"`

	// BaseURL is the API base URL; empty selects the public endpoint
	BaseURL string `json:"base_url"`

	// RateLimitSeconds is the minimum time between API calls in seconds
	// 0 = source default
	RateLimitSeconds float64 `json:"rate_limit_seconds"`

	// TimeoutSeconds bounds a single request; 0 = 10 seconds
	TimeoutSeconds int `json:"timeout_seconds"`
}

// MinInterval returns RateLimitSeconds as a duration.
func (s ADSBSource) MinInterval() time.Duration {
	return time.Duration(s.RateLimitSeconds * float64(time.Second))
}

// Timeout returns TimeoutSeconds as a duration.
func (s ADSBSource) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// NetworkConfig holds the credentials and retry policy for joining the
// local network.
type NetworkConfig struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`

	// MaxRetries is how many failed joins are tolerated before falling back
	// to access point setup
	MaxRetries int `json:"max_retries"`

	// PollAttempts and PollIntervalMs bound how long one join is waited for
	PollAttempts   int `json:"poll_attempts"`
	PollIntervalMs int `json:"poll_interval_ms"`

	// ProbeAddress is dialed over TCP to decide whether the link is up
	ProbeAddress string `json:"probe_address"`

	// HealthIntervalSeconds is how often the link is re-checked once operational
	HealthIntervalSeconds int `json:"health_interval_seconds"`
}

func (n NetworkConfig) PollInterval() time.Duration {
	return time.Duration(n.PollIntervalMs) * time.Millisecond
}

func (n NetworkConfig) HealthInterval() time.Duration {
	return time.Duration(n.HealthIntervalSeconds) * time.Second
}

// RefreshConfig tunes the refresh orchestrator.
type RefreshConfig struct {
	// DebounceMs is the minimum gap between accepted refresh requests
	DebounceMs int `json:"debounce_ms"`

	// MaxResults is how many of the nearest flights are kept
	MaxResults int `json:"max_results"`

	// WeatherIntervalMinutes is the weather refresh cadence
	WeatherIntervalMinutes int `json:"weather_interval_minutes"`
}

func (r RefreshConfig) Debounce() time.Duration {
	return time.Duration(r.DebounceMs) * time.Millisecond
}

func (r RefreshConfig) WeatherInterval() time.Duration {
	return time.Duration(r.WeatherIntervalMinutes) * time.Minute
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host"`

	// JWTSecret signs admin session tokens
	JWTSecret string `json:"jwt_secret"`

	// AdminPasswordHash is a bcrypt hash. When set, settings changes require a token.
	AdminPasswordHash string `json:"admin_password_hash"`

	// AllowedOrigins for CORS; empty allows any origin
	AllowedOrigins []string `json:"allowed_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	// Enabled stores settings in PostgreSQL instead of the config file
	Enabled bool `json:"enabled"`

	// Host is the database server hostname
	Host string `json:"host"`

	// Port is the database server port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// Username for database authentication
	Username string `json:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode"`

	MaxOpenConns int `json:"max_open_conns"`
	MaxIdleConns int `json:"max_idle_conns"`
}

// LogConfig controls the log file.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level"`

	// Dir is where overhead.slog is written; empty logs to stderr only
	Dir string `json:"dir"`
}

// SnapshotConfig controls persistence of the last good result.
type SnapshotConfig struct {
	// Path of the snapshot file; empty disables it
	Path string `json:"path"`
}

// Load reads configuration from a JSON file.
// If the file doesn't exist, returns a default configuration.
// Fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		cfg.applyEnvironmentOverrides()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Decode(data)
}

// Decode parses a JSON document on top of DefaultConfig and applies the
// environment overrides. Stores other than files use it too.
func Decode(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvironmentOverrides()

	return cfg, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file holds credentials
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Location: LocationConfig{
			Name:     "Home",
			LatDelta: coordinates.DefaultDelta,
			LonDelta: coordinates.DefaultDelta,
		},
		FlightAware: FlightAwareConfig{
			Enabled:         true,
			RequestsPerHour: 60,
			CacheTTLSeconds: 30,
		},
		ADSB: ADSBConfig{
			Sources: []ADSBSource{
				{
					Name:    "OpenSky Network",
					Type:    SourceOpenSky,
					Enabled: true,
				},
				{
					Name:             "airplanes.live",
					Type:             SourceAirplanesLive,
					Enabled:          false,
					RateLimitSeconds: 3.0,
				},
			},
		},
		Network: NetworkConfig{
			MaxRetries:            3,
			PollAttempts:          40,
			PollIntervalMs:        500,
			ProbeAddress:          "1.1.1.1:53",
			HealthIntervalSeconds: 30,
		},
		Refresh: RefreshConfig{
			DebounceMs:             200,
			MaxResults:             3,
			WeatherIntervalMinutes: 10,
		},
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "overhead",
			Username:     "overhead",
			SSLMode:      "disable",
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	loc := c.Location
	if loc.Latitude < -90 || loc.Latitude > 90 {
		return fmt.Errorf("location.latitude %v out of range [-90, 90]", loc.Latitude)
	}
	if loc.Longitude < -180 || loc.Longitude > 180 {
		return fmt.Errorf("location.longitude %v out of range [-180, 180]", loc.Longitude)
	}
	if loc.LatDelta <= 0 || loc.LonDelta <= 0 {
		return errors.New("location deltas must be positive")
	}

	if c.FlightAware.RequestsPerHour < 0 {
		return errors.New("flightaware.requests_per_hour must not be negative")
	}
	if c.FlightAware.CacheTTLSeconds < 0 {
		return errors.New("flightaware.cache_ttl_seconds must not be negative")
	}

	for i, src := range c.ADSB.Sources {
		if src.Type != SourceOpenSky && src.Type != SourceAirplanesLive {
			return fmt.Errorf("adsb.sources[%d]: unknown type %q", i, src.Type)
		}
		if src.RateLimitSeconds < 0 || src.TimeoutSeconds < 0 {
			return fmt.Errorf("adsb.sources[%d]: negative interval", i)
		}
	}

	net := c.Network
	if net.MaxRetries < 1 {
		return errors.New("network.max_retries must be at least 1")
	}
	if net.PollAttempts < 1 {
		return errors.New("network.poll_attempts must be at least 1")
	}
	if net.PollIntervalMs < 0 || net.HealthIntervalSeconds < 0 {
		return errors.New("network intervals must not be negative")
	}

	if c.Refresh.DebounceMs < 0 {
		return errors.New("refresh.debounce_ms must not be negative")
	}
	if c.Refresh.MaxResults < 1 || c.Refresh.MaxResults > flight.MaxRanked {
		return fmt.Errorf("refresh.max_results must be between 1 and %d", flight.MaxRanked)
	}
	if c.Refresh.WeatherIntervalMinutes < 0 {
		return errors.New("refresh.weather_interval_minutes must not be negative")
	}

	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}

	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.ADSB.Sources = slices.Clone(c.ADSB.Sources)
	cp.Server.AllowedOrigins = slices.Clone(c.Server.AllowedOrigins)
	return &cp
}

// Redacted returns a copy safe to show to clients, with secrets masked.
func (c *Config) Redacted() *Config {
	cp := c.Clone()
	mask(&cp.FlightAware.APIKey)
	mask(&cp.Network.Password)
	mask(&cp.Server.JWTSecret)
	mask(&cp.Server.AdminPasswordHash)
	mask(&cp.Database.Password)
	return cp
}

// KeepSecrets copies secrets from prev wherever c still carries the
// redaction mask, so a redacted document can be edited and sent back.
func (c *Config) KeepSecrets(prev *Config) {
	keep(&c.FlightAware.APIKey, prev.FlightAware.APIKey)
	keep(&c.Network.Password, prev.Network.Password)
	keep(&c.Server.JWTSecret, prev.Server.JWTSecret)
	keep(&c.Server.AdminPasswordHash, prev.Server.AdminPasswordHash)
	keep(&c.Database.Password, prev.Database.Password)
}

func mask(s *string) {
	if *s != "" {
		*s = RedactedValue
	}
}

func keep(s *string, prev string) {
	if *s == RedactedValue {
		*s = prev
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("OVERHEAD_PORT"); port != "" {
		c.Server.Port = port
	}
	if dbPassword := os.Getenv("OVERHEAD_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if faKey := os.Getenv("OVERHEAD_FLIGHTAWARE_API_KEY"); faKey != "" {
		c.FlightAware.APIKey = faKey
	}
	if netPassword := os.Getenv("OVERHEAD_NETWORK_PASSWORD"); netPassword != "" {
		c.Network.Password = netPassword
	}
	if secret := os.Getenv("OVERHEAD_JWT_SECRET"); secret != "" {
		c.Server.JWTSecret = secret
	}
}
