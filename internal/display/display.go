// Package display renders the nearest flights on a terminal. It is a thin
// consumer of the refresh orchestrator: it never fetches on its own, and a
// key press only asks the orchestrator for a refresh.
package display

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/unklstewy/overhead/internal/refresh"
	"github.com/unklstewy/overhead/pkg/config"
	"github.com/unklstewy/overhead/pkg/connectivity"
	"github.com/unklstewy/overhead/pkg/coordinates"
	"github.com/unklstewy/overhead/pkg/flight"
)

// NoDataText is shown until the first successful acquisition.
const NoDataText = "No data yet"

// Orchestrator is what the display needs from the refresh orchestrator.
type Orchestrator interface {
	Status() refresh.Status
	Trigger()
	Subscribe(fn func(flight.RankedResult)) (unsubscribe func())
}

// ModeSource reports connectivity.
type ModeSource interface {
	Mode() connectivity.Mode
	Retries() int
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	nearestStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	flightStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	routeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	modeStyles    = map[connectivity.Mode]lipgloss.Style{
		connectivity.Operational:         lipgloss.NewStyle().Foreground(lipgloss.Color("46")),
		connectivity.ConnectingToNetwork: lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		connectivity.AccessPointSetup:    lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		connectivity.Bootstrapping:       lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
)

type tickMsg time.Time

type resultMsg flight.RankedResult

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model is the bubbletea model of the display.
type Model struct {
	orchestrator Orchestrator
	modes        ModeSource
	settings     *config.Holder

	now     time.Time
	mode    connectivity.Mode
	retries int
	status  refresh.Status
}

// NewModel builds a Model showing the orchestrator's current state.
func NewModel(o Orchestrator, modes ModeSource, settings *config.Holder) Model {
	m := Model{orchestrator: o, modes: modes, settings: settings}
	m.poll(time.Now())
	return m
}

func (m *Model) poll(now time.Time) {
	m.now = now
	m.mode = m.modes.Mode()
	m.retries = m.modes.Retries()
	m.status = m.orchestrator.Status()
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			m.orchestrator.Trigger()
		}

	case tickMsg:
		m.poll(time.Time(msg))
		return m, tick()

	case resultMsg:
		m.status.Result = flight.RankedResult(msg)
	}

	return m, nil
}

func (m Model) View() string {
	var s strings.Builder

	cfg := m.settings.Snapshot()
	title := "OVERHEAD"
	if cfg.Location.Name != "" {
		title += " · " + cfg.Location.Name
	}
	s.WriteString(titleStyle.Render(title))
	s.WriteString("  ")
	s.WriteString(dimStyle.Render(m.now.Format("15:04:05")))
	s.WriteString("\n\n")

	s.WriteString(m.renderMode())
	s.WriteString("\n\n")

	s.WriteString(m.renderFlights(cfg.Location.Home()))
	s.WriteString("\n")

	if err := m.status.LastError; err != nil {
		s.WriteString(errStyle.Render("Last refresh failed: " + err.Error()))
		s.WriteString("\n")
	}

	s.WriteString(dimStyle.Render("R: Refresh  Q: Quit"))
	s.WriteString("\n")
	return s.String()
}

func (m Model) renderMode() string {
	style, ok := modeStyles[m.mode]
	if !ok {
		style = dimStyle
	}

	line := "Network: " + style.Render(m.mode.String())
	switch m.mode {
	case connectivity.ConnectingToNetwork:
		line += dimStyle.Render(fmt.Sprintf(" (attempt %d)", m.retries+1))
	case connectivity.AccessPointSetup:
		line += dimStyle.Render(" (join the setup network to configure)")
	}

	r := m.status.Result
	if r.Fetched() {
		line += dimStyle.Render(fmt.Sprintf("   Updated %s via %s", r.FetchedAt.Local().Format("15:04:05"), r.Provider))
	}
	if m.status.InFlight {
		line += dimStyle.Render("   refreshing…")
	}
	return line
}

func (m Model) renderFlights(home coordinates.GeoPoint) string {
	var list strings.Builder

	flights := m.status.Result.Flights
	list.WriteString(headerStyle.Render("Nearest flights"))
	list.WriteString("\n\n")

	if len(flights) == 0 {
		list.WriteString(dimStyle.Render("  " + NoDataText))
		list.WriteString("\n")
		return list.String()
	}

	for i, f := range flights {
		style := flightStyle
		if i == 0 {
			style = nearestStyle
		}

		callsign := f.Callsign
		if callsign == "" {
			callsign = "--------"
		}
		name := f.Airline
		if f.AircraftType != "" {
			name = strings.TrimSpace(name + " " + f.AircraftType)
		}

		bearing := coordinates.Bearing(home, f.Position)
		list.WriteString(style.Render(fmt.Sprintf("%d. %-8s %-24s %6.1f km %-3s  %6.0f ft  %4.0f km/h",
			i+1, callsign, name, f.DistanceKm, coordinates.CompassPoint(bearing), f.AltitudeFt, f.GroundSpeedKmh)))
		list.WriteString("\n")

		if route := formatRoute(f); route != "" {
			list.WriteString(routeStyle.Render("   " + route))
			list.WriteString("\n")
		}
	}
	return list.String()
}

func formatRoute(f flight.FlightRecord) string {
	origin, dest := airportLabel(f.Origin), airportLabel(f.Destination)
	if origin == "" && dest == "" {
		return ""
	}
	if origin == "" {
		origin = "?"
	}
	if dest == "" {
		dest = "?"
	}
	return origin + " → " + dest
}

func airportLabel(a flight.Airport) string {
	switch {
	case a.Code != "" && a.City != "":
		return a.Code + " (" + a.City + ")"
	case a.Code != "":
		return a.Code
	default:
		return a.City
	}
}

// Run shows the display until the user quits or ctx is cancelled.
func Run(ctx context.Context, o Orchestrator, modes ModeSource, settings *config.Holder) error {
	p := tea.NewProgram(NewModel(o, modes, settings), tea.WithAltScreen(), tea.WithContext(ctx))

	unsubscribe := o.Subscribe(func(r flight.RankedResult) {
		p.Send(resultMsg(r))
	})
	defer unsubscribe()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
