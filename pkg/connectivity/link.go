package connectivity

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/unklstewy/overhead/pkg/config"
)

// DefaultProbeTimeout bounds a single reachability probe.
const DefaultProbeTimeout = 2 * time.Second

// ProbeLink is a Link for hosts whose network is managed by the operating
// system. Joining only records the settings; the link counts as up when a
// TCP connection to the probe address succeeds.
type ProbeLink struct {
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	address string
	ssid    string
}

// NewProbeLink returns a ProbeLink dialing address until Join supplies another.
func NewProbeLink(address string, logger *slog.Logger) *ProbeLink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ProbeLink{
		logger:  logger,
		timeout: DefaultProbeTimeout,
		address: address,
	}
}

func (l *ProbeLink) Join(ctx context.Context, creds config.NetworkConfig) error {
	l.mu.Lock()
	l.ssid = creds.SSID
	if creds.ProbeAddress != "" {
		l.address = creds.ProbeAddress
	}
	address := l.address
	l.mu.Unlock()

	l.logger.Info("joining network", slog.String("ssid", creds.SSID), slog.String("probe", address))
	return nil
}

func (l *ProbeLink) Connected(ctx context.Context) bool {
	l.mu.Lock()
	address := l.address
	l.mu.Unlock()

	d := net.Dialer{Timeout: l.timeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		l.logger.Debug("probe failed", slog.String("probe", address), slog.Any("error", err))
		return false
	}
	conn.Close()
	return true
}

func (l *ProbeLink) StartAccessPoint(ctx context.Context) error {
	l.logger.Warn("setup mode: waiting for settings from the web interface")
	return nil
}
