// Package refresh turns refresh requests into flight acquisitions. It owns
// the last good ranked result and guarantees that at most one acquisition
// runs at a time, that bursts of requests are debounced, and that nothing
// is fetched while the device is offline.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/overhead/pkg/config"
	"github.com/unklstewy/overhead/pkg/connectivity"
	"github.com/unklstewy/overhead/pkg/flight"
)

// Outcome describes what a Request did.
type Outcome int

const (
	Refreshed Outcome = iota
	SkippedOffline
	SkippedDebounced
	SkippedBusy
	Failed
)

var outcomeNames = [...]string{
	Refreshed:        "refreshed",
	SkippedOffline:   "skipped_offline",
	SkippedDebounced: "skipped_debounced",
	SkippedBusy:      "skipped_busy",
	Failed:           "failed",
}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Chain fetches flights from an ordered list of providers.
type Chain interface {
	Fetch(ctx context.Context, q flight.Query) (flight.Result, error)
}

// ModeSource reports the current connectivity mode.
type ModeSource interface {
	Mode() connectivity.Mode
}

// WeatherSource refreshes whatever weather data the display shows.
type WeatherSource interface {
	Refresh(ctx context.Context) error
}

// SnapshotStore persists the last good result across restarts.
type SnapshotStore interface {
	Load() (flight.RankedResult, error)
	Save(flight.RankedResult) error
}

// Options configures an Orchestrator. Weather and Snapshot may be nil.
type Options struct {
	Chain    Chain
	Modes    ModeSource
	Settings *config.Holder
	Weather  WeatherSource
	Snapshot SnapshotStore
	Logger   *slog.Logger

	// Debounce is the minimum gap between accepted requests; zero disables it
	Debounce time.Duration

	// WeatherInterval is the weather cadence; zero disables it
	WeatherInterval time.Duration

	// Now is the clock; nil means time.Now
	Now func() time.Time
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Result             flight.RankedResult
	LastOutcome        Outcome
	LastAttempt        time.Time
	LastError          error
	LastWeatherRefresh time.Time
	InFlight           bool
}

// Orchestrator serializes flight acquisition.
type Orchestrator struct {
	modes    ModeSource
	settings *config.Holder
	weather  WeatherSource
	snapshot SnapshotStore
	logger   *slog.Logger
	now      func() time.Time

	debounce        *rate.Limiter
	weatherInterval time.Duration
	inFlight        atomic.Bool
	trigger         chan struct{}

	mu                 sync.Mutex
	chain              Chain
	result             flight.RankedResult
	lastOutcome        Outcome
	lastAttempt        time.Time
	lastErr            error
	lastWeatherRefresh time.Time
	listeners          map[int]func(flight.RankedResult)
	nextListener       int
}

// New returns an Orchestrator, seeded from the snapshot store when one is
// configured.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		chain:           opts.Chain,
		modes:           opts.Modes,
		settings:        opts.Settings,
		weather:         opts.Weather,
		snapshot:        opts.Snapshot,
		logger:          opts.Logger,
		now:             opts.Now,
		debounce:        rate.NewLimiter(rate.Every(opts.Debounce), 1),
		weatherInterval: opts.WeatherInterval,
		trigger:         make(chan struct{}, 1),
		listeners:       make(map[int]func(flight.RankedResult)),
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.now == nil {
		o.now = time.Now
	}

	if o.snapshot != nil {
		if r, err := o.snapshot.Load(); err != nil {
			o.logger.Warn("ignoring unreadable snapshot", slog.Any("error", err))
		} else if r.Fetched() {
			o.result = r
			o.logger.Info("restored last result", slog.Int("count", len(r.Flights)), slog.Time("fetched_at", r.FetchedAt))
		}
	}

	return o
}

// SetChain replaces the provider chain; the next acquisition uses it.
func (o *Orchestrator) SetChain(c Chain) {
	o.mu.Lock()
	o.chain = c
	o.mu.Unlock()
}

// Request runs one acquisition synchronously unless the device is offline,
// the request falls within the debounce window, or another acquisition is
// in progress. On failure the previous result is kept.
func (o *Orchestrator) Request(ctx context.Context) (Outcome, error) {
	if mode := o.modes.Mode(); mode != connectivity.Operational {
		o.logger.Debug("refresh skipped", slog.String("outcome", SkippedOffline.String()), slog.String("mode", mode.String()))
		return SkippedOffline, nil
	}

	if !o.debounce.AllowN(o.now(), 1) {
		return SkippedDebounced, nil
	}

	if !o.inFlight.CompareAndSwap(false, true) {
		return SkippedBusy, nil
	}
	defer o.inFlight.Store(false)

	cfg := o.settings.Snapshot()
	q := flight.Query{
		Box:         cfg.Location.Box(),
		Home:        cfg.Location.Home(),
		Credentials: flight.Credentials{APIKey: cfg.FlightAware.APIKey},
	}

	o.mu.Lock()
	chain := o.chain
	o.mu.Unlock()

	started := o.now()
	res, err := chain.Fetch(ctx, q)
	if err != nil {
		o.mu.Lock()
		o.lastOutcome = Failed
		o.lastAttempt = started
		o.lastErr = err
		o.mu.Unlock()

		o.logger.Warn("refresh failed, keeping previous result",
			slog.String("outcome", Failed.String()),
			slog.Any("error", err))
		return Failed, err
	}

	ranked := flight.RankedResult{
		Flights:   flight.Rank(res.Records, cfg.Refresh.MaxResults),
		Provider:  res.Provider,
		FetchedAt: o.now(),
	}

	o.mu.Lock()
	o.result = ranked
	o.lastOutcome = Refreshed
	o.lastAttempt = started
	o.lastErr = nil
	listeners := make([]func(flight.RankedResult), 0, len(o.listeners))
	for _, fn := range o.listeners {
		listeners = append(listeners, fn)
	}
	o.mu.Unlock()

	o.logger.Info("refreshed flights",
		slog.String("provider", res.Provider),
		slog.Int("count", len(ranked.Flights)),
		slog.Int("candidates", len(res.Records)))

	for _, fn := range listeners {
		fn(ranked)
	}

	if o.snapshot != nil {
		if err := o.snapshot.Save(ranked); err != nil {
			o.logger.Warn("failed to save snapshot", slog.Any("error", err))
		}
	}

	return Refreshed, nil
}

// Trigger asks the Run goroutine to perform a Request. It never blocks; a
// trigger arriving while one is pending is dropped.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run serves triggers and the weather cadence until ctx is cancelled.
// Flights are only ever fetched on request, never on a timer.
func (o *Orchestrator) Run(ctx context.Context) error {
	var weatherC <-chan time.Time
	if o.weatherInterval > 0 {
		ticker := time.NewTicker(o.weatherInterval)
		defer ticker.Stop()
		weatherC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-o.trigger:
			outcome, _ := o.Request(ctx)
			o.logger.Debug("triggered refresh", slog.String("outcome", outcome.String()))

		case <-weatherC:
			o.refreshWeather(ctx)
		}
	}
}

func (o *Orchestrator) refreshWeather(ctx context.Context) {
	if o.modes.Mode() != connectivity.Operational {
		return
	}
	if o.weather != nil {
		if err := o.weather.Refresh(ctx); err != nil {
			o.logger.Warn("weather refresh failed", slog.Any("error", err))
			return
		}
	}
	o.mu.Lock()
	o.lastWeatherRefresh = o.now()
	o.mu.Unlock()
}

// Result returns the last good result. Its zero value means nothing has
// been fetched yet; a fetched result with no flights means the sky is empty.
func (o *Orchestrator) Result() flight.RankedResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Status{
		Result:             o.result,
		LastOutcome:        o.lastOutcome,
		LastAttempt:        o.lastAttempt,
		LastError:          o.lastErr,
		LastWeatherRefresh: o.lastWeatherRefresh,
		InFlight:           o.inFlight.Load(),
	}
}

// Subscribe registers fn to receive every new result. The returned function
// removes the subscription.
func (o *Orchestrator) Subscribe(fn func(flight.RankedResult)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextListener
	o.nextListener++
	o.listeners[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.listeners, id)
		o.mu.Unlock()
	}
}
