package flight

import (
	"context"
	"errors"
	"log/slog"
)

// Chain tries providers in preference order until one succeeds.
// Cross-provider fallback is the only retry: each provider gets one attempt
// per Fetch.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain creates a chain over providers, most preferred first.
func NewChain(logger *slog.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Chain{
		providers: providers,
		logger:    logger,
	}
}

// Providers returns the provider names in attempt order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Fetch runs the chain once. A provider that answers successfully ends the
// run, even with zero records. Providers needing an API key are skipped
// without being called when q has none.
func (c *Chain) Fetch(ctx context.Context, q Query) (Result, error) {
	if len(c.providers) == 0 {
		return Result{}, ErrNoProviders
	}

	var attempts []Attempt
	for _, p := range c.providers {
		name := p.Name()

		if p.RequiresAPIKey() && q.Credentials.APIKey == "" {
			c.logger.Debug("skipping provider without credentials", slog.String("provider", name))
			attempts = append(attempts, Attempt{Provider: name, Err: ErrCredentialMissing})
			continue
		}

		records, err := p.Fetch(ctx, q)
		if err == nil {
			c.logger.Debug("provider succeeded",
				slog.String("provider", name),
				slog.Int("count", len(records)))
			return Result{Provider: name, Records: records}, nil
		}

		attempts = append(attempts, Attempt{Provider: name, Err: err})
		c.logger.Warn("provider failed, falling back",
			slog.String("provider", name),
			slog.String("kind", errorKind(err)),
			slog.Any("error", err))

		// No point walking the rest of the list once the caller has gone.
		if ctx.Err() != nil {
			break
		}
	}

	return Result{}, &ChainError{Attempts: attempts}
}

// errorKind names the taxonomy bucket of err for logging.
func errorKind(err error) string {
	var (
		te *TransportError
		se *StatusError
		pe *ParseError
	)
	switch {
	case errors.As(err, &se):
		return "status"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &te):
		return "transport"
	case errors.Is(err, ErrCredentialMissing):
		return "credential"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "other"
	}
}
