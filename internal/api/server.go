// Package api serves the JSON HTTP API used by the setup page and by remote
// displays, plus a WebSocket feed that pushes every new ranked result.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/unklstewy/overhead/internal/auth"
	"github.com/unklstewy/overhead/internal/refresh"
	"github.com/unklstewy/overhead/pkg/config"
	"github.com/unklstewy/overhead/pkg/connectivity"
	"github.com/unklstewy/overhead/pkg/flight"
)

// NoDataMessage accompanies a flights response before the first successful
// acquisition.
const NoDataMessage = "No data yet"

// Machine is the part of the connectivity machine the API needs.
type Machine interface {
	Mode() connectivity.Mode
	Retries() int
	Restart()
}

// Options wires a Server to the rest of the program. OnSettingsChange, when
// set, runs after a new configuration has been stored and published.
type Options struct {
	Settings         *config.Holder
	Store            config.Store
	Machine          Machine
	Orchestrator     *refresh.Orchestrator
	Auth             *auth.Service
	OnSettingsChange func(*config.Config)
	Logger           *slog.Logger
}

// Server holds the HTTP router and its dependencies
type Server struct {
	router       *chi.Mux
	settings     *config.Holder
	store        config.Store
	machine      Machine
	orchestrator *refresh.Orchestrator
	authSvc      *auth.Service
	onChange     func(*config.Config)
	hub          *Hub
	logger       *slog.Logger
}

// New builds a Server and its routes. Close releases the WebSocket feed.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		router:       chi.NewRouter(),
		settings:     opts.Settings,
		store:        opts.Store,
		machine:      opts.Machine,
		orchestrator: opts.Orchestrator,
		authSvc:      opts.Auth,
		onChange:     opts.OnSettingsChange,
		hub:          NewHub(opts.Orchestrator, logger),
		logger:       logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close disconnects WebSocket clients and stops listening for results.
func (s *Server) Close() {
	s.hub.Close()
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", slog.String("addr", addr))
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down api")
	s.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	origins := s.settings.Snapshot().Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/flights", s.handleFlights)
		r.Post("/flights/refresh", s.handleRefresh)
		r.Get("/settings", s.handleGetSettings)
		r.Post("/auth/login", s.handleLogin)
		r.Get("/ws", s.hub.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(s.adminMiddleware)
			r.Put("/settings", s.handlePutSettings)
		})
	})
}

// adminMiddleware requires an admin token once an admin password has been
// configured. Before that the device is in first-time setup and the
// settings are open.
func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.settings.Snapshot().Server.AdminPasswordHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.authSvc.ValidateToken(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if !auth.CanChangeSettings(claims.Role) {
			respondError(w, http.StatusForbidden, "settings require the admin role")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.orchestrator.Status()

	body := map[string]any{
		"mode":         s.machine.Mode(),
		"retries":      s.machine.Retries(),
		"last_outcome": st.LastOutcome,
		"in_flight":    st.InFlight,
		"provider":     st.Result.Provider,
		"flight_count": len(st.Result.Flights),
	}
	if !st.LastAttempt.IsZero() {
		body["last_attempt"] = st.LastAttempt
	}
	if st.Result.Fetched() {
		body["fetched_at"] = st.Result.FetchedAt
	}
	if !st.LastWeatherRefresh.IsZero() {
		body["last_weather_refresh"] = st.LastWeatherRefresh
	}
	if st.LastError != nil {
		body["last_error"] = st.LastError.Error()
	}

	respondJSON(w, http.StatusOK, body)
}

// flightsResponse is the payload of GET /flights and of every WebSocket
// message.
type flightsResponse struct {
	Flights   []flight.FlightRecord `json:"flights"`
	Provider  string                `json:"provider,omitempty"`
	FetchedAt *time.Time            `json:"fetched_at,omitempty"`
	NoData    bool                  `json:"no_data"`
	Message   string                `json:"message,omitempty"`
}

func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, newFlightsResponse(s.orchestrator.Result()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.orchestrator.Request(r.Context())

	body := map[string]any{"outcome": outcome}
	status := http.StatusOK
	switch outcome {
	case refresh.Refreshed:
		body["result"] = newFlightsResponse(s.orchestrator.Result())
	case refresh.SkippedOffline:
		status = http.StatusServiceUnavailable
	case refresh.SkippedBusy, refresh.SkippedDebounced:
		status = http.StatusAccepted
	case refresh.Failed:
		status = http.StatusBadGateway
		body["error"] = err.Error()
	}

	respondJSON(w, status, body)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.settings.Snapshot().Redacted())
}

// handlePutSettings accepts a full or partial configuration document. Fields
// that are absent keep their current value and redacted secrets are carried
// over. The new configuration is validated, stored and published, and the
// connectivity machine restarts so it joins the (possibly new) network. A new
// jwt_secret takes effect immediately and ends existing admin sessions.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	prev := s.settings.Snapshot()
	next := prev.Clone()

	if err := json.NewDecoder(r.Body).Decode(next); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	next.KeepSecrets(prev)

	if err := next.Validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := s.store.Save(r.Context(), next); err != nil {
		s.logger.Error("failed to store settings", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "failed to store settings")
		return
	}

	s.settings.Set(next)
	if secret := next.Server.JWTSecret; secret != "" && secret != prev.Server.JWTSecret {
		s.authSvc.SetSecret(secret)
	}
	if s.onChange != nil {
		s.onChange(next)
	}
	s.machine.Restart()

	s.logger.Info("settings updated",
		slog.String("location", next.Location.Name),
		slog.String("ssid", next.Network.SSID))

	respondJSON(w, http.StatusOK, next.Redacted())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.authSvc.Login(s.settings.Snapshot().Server.AdminPasswordHash, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	case err != nil:
		s.logger.Error("failed to issue token", slog.Any("error", err))
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   token,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"error": message})
}
