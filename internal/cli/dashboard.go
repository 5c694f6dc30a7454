// Package cli is the operator dashboard: a bubbletea TUI reading the
// same ports the HTTP control/query API (internal/api) reads, for
// operators running walltrackd on a box without exposing the API
// port. It is a read-mostly view with two write actions, pause and
// resume, mirroring spec.md §6's Control surface.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/walltrack/walltrack/internal/domain"
	"github.com/walltrack/walltrack/internal/ports"
	"github.com/walltrack/walltrack/internal/risk"
)

const pollInterval = 2 * time.Second

// keyMap mirrors the teacher TUI's KeyMap grouping, trimmed to the
// dashboard's three bound actions.
type keyMap struct {
	Pause, Resume, Quit key.Binding
}

var keys = keyMap{
	Pause:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
	Resume: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "resume")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// Dashboard is the bubbletea model driving the operator view.
type Dashboard struct {
	state     *risk.StateManager
	orders    ports.OrderStore
	positions ports.PositionStore

	systemState domain.SystemState
	openPos     []*domain.Position
	recentOrd   []*domain.Order
	errMsg      string
	width       int
}

// NewDashboard builds a Dashboard over the same dependencies the
// Control/Query API wraps.
func NewDashboard(state *risk.StateManager, orderStore ports.OrderStore, positionStore ports.PositionStore) *Dashboard {
	return &Dashboard{state: state, orders: orderStore, positions: positionStore}
}

type tickMsg time.Time

type refreshMsg struct {
	state  domain.SystemState
	open   []*domain.Position
	recent []*domain.Order
	err    error
}

func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(d.refreshCmd(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (d *Dashboard) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		state := d.state.GetState()
		open, err := d.positions.ListOpen(ctx)
		if err != nil {
			return refreshMsg{state: state, err: err}
		}
		recent, err := d.orders.GetHistory(ctx, ports.OrderFilters{Limit: 5})
		return refreshMsg{state: state, open: open, recent: recent, err: err}
	}
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		return d, nil

	case tickMsg:
		return d, tea.Batch(d.refreshCmd(), tickCmd())

	case refreshMsg:
		d.systemState = msg.state
		if msg.err != nil {
			d.errMsg = msg.err.Error()
		} else {
			d.errMsg = ""
			d.openPos = msg.open
			d.recentOrd = msg.recent
		}
		return d, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return d, tea.Quit
		case key.Matches(msg, keys.Pause):
			return d, d.pauseCmd()
		case key.Matches(msg, keys.Resume):
			return d, d.resumeCmd()
		}
	}
	return d, nil
}

func (d *Dashboard) pauseCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		err := d.state.Pause(ctx, "cli-operator", "paused from dashboard")
		return refreshMsg{state: d.state.GetState(), open: d.openPos, recent: d.recentOrd, err: err}
	}
}

func (d *Dashboard) resumeCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		err := d.state.Resume(ctx, "cli-operator", true)
		return refreshMsg{state: d.state.GetState(), open: d.openPos, recent: d.recentOrd, err: err}
	}
}

func (d *Dashboard) View() string {
	var b strings.Builder

	running := d.systemState.Status == domain.StatusRunning
	b.WriteString(StyleHeader.Render("WallTrack — operator dashboard") + "\n")
	b.WriteString("status: " + statusStyle(running).Render(string(d.systemState.Status)) + "\n")
	if !running && d.systemState.PauseReason != "" {
		b.WriteString(StyleWarn.Render("reason: "+d.systemState.PauseReason) + "\n")
	}
	b.WriteString("\n" + StyleTable.Render(fmt.Sprintf("open positions (%d)", len(d.openPos))) + "\n")
	for _, p := range d.openPos {
		line := fmt.Sprintf("  %-6s %-44s entry=%s pnl=%s", p.Status, p.TokenAddress, p.EntryPrice.String(), p.UnrealizedPnLSOL.String())
		if p.UnrealizedPnLSOL.IsNegative() {
			b.WriteString(StyleLoss.Render(line) + "\n")
		} else {
			b.WriteString(StyleProfit.Render(line) + "\n")
		}
	}

	b.WriteString("\n" + StyleTable.Render(fmt.Sprintf("recent orders (%d)", len(d.recentOrd))) + "\n")
	for _, o := range d.recentOrd {
		b.WriteString(fmt.Sprintf("  %-10s %-6s %-44s attempt=%d/%d\n", o.Status, o.Side, o.TokenAddress, o.AttemptCount, o.MaxAttempts))
	}

	if d.errMsg != "" {
		b.WriteString("\n" + StyleLoss.Render("error: "+d.errMsg) + "\n")
	}

	b.WriteString("\n" + StyleFooter.Render(strings.Join([]string{
		RenderHotKey(keys.Pause.Help().Key, keys.Pause.Help().Desc),
		RenderHotKey(keys.Resume.Help().Key, keys.Resume.Help().Desc),
		RenderHotKey(keys.Quit.Help().Key, keys.Quit.Help().Desc),
	}, "  ")))
	return b.String()
}
