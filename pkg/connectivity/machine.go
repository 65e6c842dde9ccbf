package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/unklstewy/overhead/pkg/config"
)

// Link is the network radio (or whatever stands in for it).
type Link interface {
	// Join starts joining the network described by creds. It may return
	// before the link is up; Connected is polled afterwards.
	Join(ctx context.Context, creds config.NetworkConfig) error

	// Connected reports whether the link is currently usable.
	Connected(ctx context.Context) bool

	// StartAccessPoint hosts the setup network.
	StartAccessPoint(ctx context.Context) error
}

// ConfigChecker reports whether setup was ever completed. config.Store
// satisfies it.
type ConfigChecker interface {
	Exists(ctx context.Context) (bool, error)
}

// Options configures a Machine.
type Options struct {
	Link   Link
	Config ConfigChecker

	// Settings supplies the network credentials and retry policy. It is
	// read afresh for every join attempt.
	Settings *config.Holder

	Logger *slog.Logger
}

// Machine is the connectivity state machine. All methods are safe for
// concurrent use.
type Machine struct {
	link     Link
	checker  ConfigChecker
	settings *config.Holder
	logger   *slog.Logger

	mu        sync.Mutex
	mode      Mode
	retries   int
	gen       uint64
	listeners []func(from, to Mode)

	restart chan struct{}
}

// New returns a Machine in Bootstrapping.
func New(opts Options) *Machine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Machine{
		link:     opts.Link,
		checker:  opts.Config,
		settings: opts.Settings,
		logger:   logger,
		mode:     Bootstrapping,
		restart:  make(chan struct{}, 1),
	}
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Retries returns the number of consecutive failed joins.
func (m *Machine) Retries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retries
}

// OnChange registers fn to be called after every mode transition.
func (m *Machine) OnChange(fn func(from, to Mode)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Restart re-enters Bootstrapping with the retry counter cleared. It is
// how new settings saved from setup mode take effect. A join attempt still
// in progress is discarded when it completes.
func (m *Machine) Restart() {
	m.mu.Lock()
	m.gen++
	from := m.mode
	m.mode = Bootstrapping
	m.retries = 0
	listeners := m.listeners
	m.mu.Unlock()

	m.logger.Info("connectivity restart requested", slog.String("from", from.String()))
	if from != Bootstrapping {
		notify(listeners, from, Bootstrapping)
	}

	select {
	case m.restart <- struct{}{}:
	default:
	}
}

// Step performs the work of the current mode and applies at most one
// transition. AccessPointSetup is terminal: Step leaves it unchanged.
func (m *Machine) Step(ctx context.Context) (Mode, error) {
	m.mu.Lock()
	mode, gen := m.mode, m.gen
	m.mu.Unlock()

	switch mode {
	case Bootstrapping:
		exists, err := m.checker.Exists(ctx)
		if err != nil {
			m.logger.Warn("cannot read persisted settings", slog.Any("error", err))
		}
		if err != nil || !exists {
			return m.enterAccessPoint(ctx, gen)
		}
		return m.transition(gen, ConnectingToNetwork, false, 0), nil

	case ConnectingToNetwork:
		return m.attemptJoin(ctx, gen)

	case Operational:
		if m.link.Connected(ctx) {
			return Operational, nil
		}
		if err := ctx.Err(); err != nil {
			return Operational, err
		}
		m.logger.Warn("network link lost")
		return m.transition(gen, ConnectingToNetwork, true, 0), nil
	}

	return mode, nil
}

// attemptJoin runs one join attempt: Join, then poll Connected with a wait
// between polls, up to PollAttempts waits.
func (m *Machine) attemptJoin(ctx context.Context, gen uint64) (Mode, error) {
	net := m.settings.Snapshot().Network

	err := m.link.Join(ctx, net)
	if err == nil {
		if m.waitConnected(ctx, net) {
			return m.transition(gen, Operational, true, 0), nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return m.Mode(), ctxErr
	}

	m.mu.Lock()
	if m.gen != gen {
		mode := m.mode
		m.mu.Unlock()
		return mode, nil
	}
	m.retries++
	retries := m.retries
	m.mu.Unlock()

	attrs := []any{slog.Int("retries", retries), slog.Int("max_retries", net.MaxRetries)}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	m.logger.Warn("network join failed", attrs...)

	if retries >= net.MaxRetries {
		return m.enterAccessPoint(ctx, gen)
	}
	return ConnectingToNetwork, nil
}

func (m *Machine) waitConnected(ctx context.Context, net config.NetworkConfig) bool {
	for attempt := 0; ; attempt++ {
		if m.link.Connected(ctx) {
			return true
		}
		if attempt >= net.PollAttempts {
			return false
		}
		if !sleep(ctx, net.PollInterval()) {
			return false
		}
	}
}

func (m *Machine) enterAccessPoint(ctx context.Context, gen uint64) (Mode, error) {
	mode := m.transition(gen, AccessPointSetup, false, -1)
	if mode != AccessPointSetup {
		return mode, nil
	}
	if err := m.link.StartAccessPoint(ctx); err != nil {
		m.logger.Error("failed to start setup access point", slog.Any("error", err))
		return mode, err
	}
	return mode, nil
}

// transition moves to next unless a Restart happened since gen was read.
// When setRetries is true the counter is set to retries.
func (m *Machine) transition(gen uint64, next Mode, setRetries bool, retries int) Mode {
	m.mu.Lock()
	if m.gen != gen {
		mode := m.mode
		m.mu.Unlock()
		return mode
	}
	from := m.mode
	m.mode = next
	if setRetries {
		m.retries = retries
	}
	listeners := m.listeners
	m.mu.Unlock()

	if from != next {
		m.logger.Info("connectivity mode changed",
			slog.String("from", from.String()),
			slog.String("mode", next.String()))
		notify(listeners, from, next)
	}
	return next
}

func notify(listeners []func(from, to Mode), from, to Mode) {
	for _, fn := range listeners {
		fn(from, to)
	}
}

// Run drives the machine until ctx is cancelled. While Operational the link
// is re-checked every health interval; AccessPointSetup waits for Restart.
func (m *Machine) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch m.Mode() {
		case AccessPointSetup:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.restart:
			}
			continue

		case Operational:
			interval := m.settings.Snapshot().Network.HealthInterval()
			if interval <= 0 {
				interval = 30 * time.Second
			}
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-m.restart:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		if _, err := m.Step(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
