package main

import (
	"log/slog"

	"github.com/unklstewy/overhead/pkg/adsb"
	"github.com/unklstewy/overhead/pkg/config"
	"github.com/unklstewy/overhead/pkg/flight"
	"github.com/unklstewy/overhead/pkg/flightaware"
)

// buildChain assembles the provider chain: FlightAware first when enabled,
// then the enabled ADS-B sources in configuration order.
func buildChain(cfg *config.Config, logger *slog.Logger) *flight.Chain {
	var providers []flight.Provider

	if cfg.FlightAware.Enabled {
		providers = append(providers, flightaware.NewClient(flightaware.Config{
			BaseURL:         cfg.FlightAware.BaseURL,
			RequestsPerHour: cfg.FlightAware.RequestsPerHour,
			CacheTTL:        cfg.FlightAware.CacheTTL(),
			Logger:          logger.With(slog.String("provider", flightaware.Name)),
		}))
	}

	for _, src := range cfg.ADSB.Sources {
		if !src.Enabled {
			continue
		}
		acfg := adsb.Config{
			BaseURL:     src.BaseURL,
			Timeout:     src.Timeout(),
			MinInterval: src.MinInterval(),
			Logger:      logger.With(slog.String("provider", src.Name)),
		}
		switch src.Type {
		case config.SourceOpenSky:
			providers = append(providers, adsb.NewOpenSkyClient(acfg))
		case config.SourceAirplanesLive:
			providers = append(providers, adsb.NewAirplanesLiveClient(acfg))
		default:
			logger.Warn("ignoring unknown adsb source", slog.String("name", src.Name), slog.String("type", src.Type))
		}
	}

	chain := flight.NewChain(logger, providers...)
	logger.Info("provider chain", slog.Any("providers", chain.Providers()))
	return chain
}
