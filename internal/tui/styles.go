package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	title = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ffff"))
	panel = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444466")).Padding(0, 1)
	label = lipgloss.NewStyle().Foreground(lipgloss.Color("#888899")).Width(16)
	value = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ccff")).Bold(true)
	hint  = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688")).Italic(true)
)

func progressBar(fraction float64, width int) string {
	filled := int(fraction * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return green.Render(strings.Repeat("█", filled)) + dim.Render(strings.Repeat("░", width-filled))
}

// sparkline draws the last width values scaled between their own min and
// max.
func sparkline(values []float64, width int) string {
	if len(values) == 0 {
		return dim.Render(strings.Repeat("─", width))
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	rng := hi - lo
	if rng == 0 {
		rng = 1
	}

	var b strings.Builder
	for _, v := range values {
		idx := int((v - lo) / rng * float64(len(chars)-1))
		idx = max(0, min(idx, len(chars)-1))
		b.WriteRune(chars[idx])
	}
	return cyan.Render(b.String())
}
