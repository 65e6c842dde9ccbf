package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/unklstewy/overhead/internal/auth"
	"github.com/unklstewy/overhead/internal/refresh"
	"github.com/unklstewy/overhead/pkg/config"
	"github.com/unklstewy/overhead/pkg/connectivity"
	"github.com/unklstewy/overhead/pkg/flight"
)

type fakeMachine struct {
	mode     atomic.Int32
	restarts atomic.Int32
}

func (m *fakeMachine) Mode() connectivity.Mode { return connectivity.Mode(m.mode.Load()) }
func (m *fakeMachine) Retries() int            { return 1 }
func (m *fakeMachine) Restart()                { m.restarts.Add(1) }

type memStore struct {
	mu    sync.Mutex
	saved *config.Config
	err   error
}

func (s *memStore) Exists(ctx context.Context) (bool, error) { return s.saved != nil, nil }

func (s *memStore) Load(ctx context.Context) (*config.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved, nil
}

func (s *memStore) Save(ctx context.Context, cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = cfg.Clone()
	return nil
}

type chainFunc func(ctx context.Context, q flight.Query) (flight.Result, error)

func (f chainFunc) Fetch(ctx context.Context, q flight.Query) (flight.Result, error) { return f(ctx, q) }

type fixture struct {
	server   *Server
	http     *httptest.Server
	machine  *fakeMachine
	store    *memStore
	settings *config.Holder
	auth     *auth.Service
	chainErr error
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.FlightAware.APIKey = "secret-key"
	cfg.Network.SSID = "home"
	cfg.Network.Password = "wifi-pass"
	if mutate != nil {
		mutate(cfg)
	}

	f := &fixture{
		machine:  &fakeMachine{},
		store:    &memStore{},
		settings: config.NewHolder(cfg),
		auth:     auth.NewService(auth.Config{JWTSecret: "test", BCryptCost: bcrypt.MinCost}),
	}
	f.machine.mode.Store(int32(connectivity.Operational))

	chain := chainFunc(func(ctx context.Context, q flight.Query) (flight.Result, error) {
		if f.chainErr != nil {
			return flight.Result{}, f.chainErr
		}
		return flight.Result{Provider: "opensky", Records: []flight.FlightRecord{
			{Callsign: "FAR", DistanceKm: 20},
			{Callsign: "NEAR", DistanceKm: 3},
		}}, nil
	})

	orch := refresh.New(refresh.Options{
		Chain:    chain,
		Modes:    f.machine,
		Settings: f.settings,
		Debounce: 200 * time.Millisecond,
	})

	f.server = New(Options{
		Settings:     f.settings,
		Store:        f.store,
		Machine:      f.machine,
		Orchestrator: orch,
		Auth:         f.auth,
	})
	f.http = httptest.NewServer(f.server)
	t.Cleanup(func() {
		f.server.Close()
		f.http.Close()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body, token string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestFlightsBeforeFirstFetch(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/v1/flights", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["no_data"])
	assert.Equal(t, NoDataMessage, body["message"])
	assert.Equal(t, []any{}, body["flights"])
	assert.NotContains(t, body, "fetched_at")
}

func TestRefreshThenFlights(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/api/v1/flights/refresh", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "refreshed", body["outcome"])

	_, body = f.do(t, http.MethodGet, "/api/v1/flights", "", "")
	assert.Equal(t, false, body["no_data"])
	assert.Equal(t, "opensky", body["provider"])
	flights := body["flights"].([]any)
	require.Len(t, flights, 2)
	assert.Equal(t, "NEAR", flights[0].(map[string]any)["callsign"])

	_, body = f.do(t, http.MethodGet, "/api/v1/status", "", "")
	assert.Equal(t, "operational", body["mode"])
	assert.Equal(t, "refreshed", body["last_outcome"])
	assert.EqualValues(t, 2, body["flight_count"])
}

func TestRefreshOutcomes(t *testing.T) {
	t.Run("offline", func(t *testing.T) {
		f := newFixture(t, nil)
		f.machine.mode.Store(int32(connectivity.AccessPointSetup))

		resp, body := f.do(t, http.MethodPost, "/api/v1/flights/refresh", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "skipped_offline", body["outcome"])
	})

	t.Run("failed", func(t *testing.T) {
		f := newFixture(t, nil)
		f.chainErr = &flight.ChainError{Attempts: []flight.Attempt{{Provider: "opensky", Err: errors.New("down")}}}

		resp, body := f.do(t, http.MethodPost, "/api/v1/flights/refresh", "", "")
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, "failed", body["outcome"])
		assert.Contains(t, body["error"], "opensky")

		_, body = f.do(t, http.MethodGet, "/api/v1/status", "", "")
		assert.Contains(t, body["last_error"], "down")
	})

	t.Run("debounced", func(t *testing.T) {
		f := newFixture(t, nil)
		f.do(t, http.MethodPost, "/api/v1/flights/refresh", "", "")

		resp, body := f.do(t, http.MethodPost, "/api/v1/flights/refresh", "", "")
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, "skipped_debounced", body["outcome"])
	})
}

func TestGetSettingsRedactsSecrets(t *testing.T) {
	f := newFixture(t, nil)

	_, body := f.do(t, http.MethodGet, "/api/v1/settings", "", "")
	assert.Equal(t, config.RedactedValue, body["flightaware"].(map[string]any)["api_key"])
	assert.Equal(t, config.RedactedValue, body["network"].(map[string]any)["password"])
	assert.Equal(t, "home", body["network"].(map[string]any)["ssid"])
}

func TestPutSettings(t *testing.T) {
	f := newFixture(t, nil)

	doc := `{"location":{"name":"Roof","latitude":40.64,"longitude":-73.78,"lat_delta":0.5,"lon_delta":0.5},
		"flightaware":{"api_key":"********"},
		"network":{"ssid":"attic"}}`
	resp, body := f.do(t, http.MethodPut, "/api/v1/settings", doc, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	cfg := f.settings.Snapshot()
	assert.Equal(t, "Roof", cfg.Location.Name)
	assert.Equal(t, "attic", cfg.Network.SSID)
	assert.Equal(t, "secret-key", cfg.FlightAware.APIKey, "redacted key kept")
	assert.Equal(t, "wifi-pass", cfg.Network.Password, "absent field kept")

	require.NotNil(t, f.store.saved)
	assert.Equal(t, "Roof", f.store.saved.Location.Name)
	assert.EqualValues(t, 1, f.machine.restarts.Load())

	assert.Equal(t, config.RedactedValue, body["flightaware"].(map[string]any)["api_key"])
}

func TestPutSettingsRejectsInvalid(t *testing.T) {
	f := newFixture(t, nil)

	resp, _ := f.do(t, http.MethodPut, "/api/v1/settings", `{"location":{"latitude":123}}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/api/v1/settings", `not json`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.store.err = errors.New("disk full")
	resp, _ = f.do(t, http.MethodPut, "/api/v1/settings", `{}`, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	assert.Zero(t, f.machine.restarts.Load())
	assert.Nil(t, f.store.saved)
}

func TestSettingsRequireAdminOncePasswordSet(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)
	f := newFixture(t, func(c *config.Config) { c.Server.AdminPasswordHash = string(hash) })

	resp, _ := f.do(t, http.MethodPut, "/api/v1/settings", `{}`, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/v1/auth/login", `{"password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/v1/auth/login", `{"password":"letmein"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["token"].(string)

	viewer, err := f.auth.GenerateToken("kiosk", auth.RoleViewer)
	require.NoError(t, err)
	resp, _ = f.do(t, http.MethodPut, "/api/v1/settings", `{}`, viewer)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/api/v1/settings", `{"location":{"name":"Authorized"}}`, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Authorized", f.settings.Snapshot().Location.Name)
	assert.Equal(t, string(hash), f.settings.Snapshot().Server.AdminPasswordHash)
}

func TestPutSettingsRotatesJWTSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)
	f := newFixture(t, func(c *config.Config) {
		c.Server.AdminPasswordHash = string(hash)
		c.Server.JWTSecret = "test"
	})

	_, body := f.do(t, http.MethodPost, "/api/v1/auth/login", `{"password":"letmein"}`, "")
	old := body["token"].(string)

	resp, _ := f.do(t, http.MethodPut, "/api/v1/settings", `{"server":{"jwt_secret":"********"}}`, old)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/api/v1/settings", `{"server":{"jwt_secret":"new-secret"}}`, old)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "new-secret", f.settings.Snapshot().Server.JWTSecret)

	resp, _ = f.do(t, http.MethodPut, "/api/v1/settings", `{}`, old)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "old session ends with the old secret")

	_, body = f.do(t, http.MethodPost, "/api/v1/auth/login", `{"password":"letmein"}`, "")
	claims, err := auth.NewService(auth.Config{JWTSecret: "new-secret"}).ValidateToken(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestPutSettingsCallsHook(t *testing.T) {
	f := newFixture(t, nil)
	var got *config.Config
	f.server.onChange = func(c *config.Config) { got = c }

	resp, _ := f.do(t, http.MethodPut, "/api/v1/settings", `{"flightaware":{"enabled":false}}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, got)
	assert.False(t, got.FlightAware.Enabled)
}

func TestWebSocketFeed(t *testing.T) {
	f := newFixture(t, nil)

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first flightsResponse
	require.NoError(t, conn.ReadJSON(&first))
	assert.True(t, first.NoData)
	assert.Equal(t, NoDataMessage, first.Message)

	require.Eventually(t, func() bool { return f.server.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	resp, _ := f.do(t, http.MethodPost, "/api/v1/flights/refresh", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var next flightsResponse
	require.NoError(t, conn.ReadJSON(&next))
	assert.False(t, next.NoData)
	require.Len(t, next.Flights, 2)
	assert.Equal(t, "NEAR", next.Flights[0].Callsign)
	assert.NotNil(t, next.FetchedAt)

	f.server.Close()
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
