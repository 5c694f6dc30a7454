package cli

import "github.com/charmbracelet/lipgloss"

// Palette mirrors the teacher TUI's Tokyo Night theme — the one
// operators actually used, kept as the dashboard's only theme since
// the control CLI doesn't need the teacher's theme-cycling.
var (
	ColorBg      = lipgloss.Color("#1a1b26")
	ColorBorder  = lipgloss.Color("#7aa2f7")
	ColorText    = lipgloss.Color("#c0caf5")
	ColorActive  = lipgloss.Color("#7aa2f7")
	ColorAccent  = lipgloss.Color("#bb9af7")
	ColorProfit  = lipgloss.Color("#9ece6a")
	ColorLoss    = lipgloss.Color("#f7768e")
	ColorWarning = lipgloss.Color("#ff9e64")

	StyleHeader = lipgloss.NewStyle().Bold(true).Foreground(ColorActive)
	StyleKey    = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	StyleProfit = lipgloss.NewStyle().Foreground(ColorProfit)
	StyleLoss   = lipgloss.NewStyle().Foreground(ColorLoss)
	StyleWarn   = lipgloss.NewStyle().Foreground(ColorWarning)
	StyleFooter = lipgloss.NewStyle().Foreground(ColorText).Italic(true)
	StyleTable  = lipgloss.NewStyle().Foreground(ColorActive).Bold(true)
	StyleBox    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorBorder).Padding(0, 1)
)

// RenderHotKey matches the teacher's "[k] description" footer convention.
func RenderHotKey(k, d string) string {
	return StyleKey.Render("["+k+"]") + " " + d
}

// statusStyle colors a SystemStatus the way the teacher colors PnL:
// green while trading, red while paused (manually or by a breaker).
func statusStyle(running bool) lipgloss.Style {
	if running {
		return StyleProfit
	}
	return StyleLoss
}
