package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/unklstewy/overhead/pkg/config"
	"github.com/unklstewy/overhead/pkg/flight"
)

var (
	fetchLat     float64
	fetchLon     float64
	fetchVerbose bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the nearest flights once",
	Long: `Run one acquisition through the provider chain and print the nearest flights.
The connectivity state machine is bypassed.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().Float64Var(&fetchLat, "lat", 0, "Home latitude (default from config)")
	fetchCmd.Flags().Float64Var(&fetchLon, "lon", 0, "Home longitude (default from config)")
	fetchCmd.Flags().BoolVarP(&fetchVerbose, "verbose", "v", false, "Log provider attempts")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("lat") {
		cfg.Location.Latitude = fetchLat
	}
	if cmd.Flags().Changed("lon") {
		cfg.Location.Longitude = fetchLon
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelWarn
	if fetchVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	q := flight.Query{
		Box:         cfg.Location.Box(),
		Home:        cfg.Location.Home(),
		Credentials: flight.Credentials{APIKey: cfg.FlightAware.APIKey},
	}
	res, err := buildChain(cfg, logger).Fetch(cmd.Context(), q)
	if err != nil {
		return err
	}

	ranked := flight.Rank(res.Records, cfg.Refresh.MaxResults)
	fmt.Fprintf(cmd.OutOrStdout(), "%d aircraft from %s around %s\n", len(res.Records), res.Provider, q.Home)
	if len(ranked) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No flights overhead")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), flightTable(ranked))
	return nil
}

func flightTable(flights []flight.FlightRecord) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "CALLSIGN", "AIRLINE", "TYPE", "ROUTE", "DIST KM", "ALT FT", "KM/H").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for i, f := range flights {
		route := ""
		if f.Origin.Code != "" || f.Destination.Code != "" {
			route = f.Origin.Code + "-" + f.Destination.Code
		}
		t.Row(
			strconv.Itoa(i+1),
			f.Callsign,
			f.Airline,
			f.AircraftType,
			route,
			strconv.FormatFloat(f.DistanceKm, 'f', 1, 64),
			strconv.FormatFloat(f.AltitudeFt, 'f', 0, 64),
			strconv.FormatFloat(f.GroundSpeedKmh, 'f', 0, 64),
		)
	}
	return t.Render()
}
