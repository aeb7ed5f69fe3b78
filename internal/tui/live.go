// Package tui renders a live progress view of a pack run in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/packsim/internal/cellmodel"
	"github.com/san-kum/packsim/internal/cosim"
	"github.com/san-kum/packsim/internal/output"
)

const (
	frameInterval = 50 * time.Millisecond
	barWidth      = 40
	historyLen    = 60
)

type sampleMsg cosim.Sample

type doneMsg struct{ err error }

type Model struct {
	name   string
	phases []string
	total  int

	last    cosim.Sample
	seen    bool
	history []float64
	peakT   float64

	done     bool
	quitting bool
	err      error
	cancel   context.CancelFunc
	started  time.Time
}

// NewModel builds the view for a run of total samples. cancel is called
// when the user quits before the run has finished.
func NewModel(name string, phases []string, total int, cancel context.CancelFunc) Model {
	return Model{
		name:    name,
		phases:  phases,
		total:   total,
		cancel:  cancel,
		started: time.Now(),
		history: make([]float64, 0, historyLen),
	}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if m.done {
				return m, tea.Quit
			}
			// Keep running until the simulator reports back.
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
		}
	case sampleMsg:
		s := cosim.Sample(msg)
		m.last = s
		m.seen = true
		m.history = append(m.history, s.PackVoltage)
		if len(m.history) > historyLen {
			m.history = m.history[len(m.history)-historyLen:]
		}
		for _, t := range s.Variables[cellmodel.VarTemperature] {
			m.peakT = max(m.peakT, t)
		}
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) Done() bool { return m.done }
func (m Model) Err() error { return m.err }

func (m Model) progress() float64 {
	if !m.seen || m.total == 0 {
		return 0
	}
	if m.done && m.err == nil {
		return 1
	}
	return float64(m.last.Step+1) / float64(m.total)
}

func row(name, v string) string {
	return label.Render(name) + value.Render(v)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(title.Render("packsim") + dim.Render(" · "+m.name) + "\n\n")

	status := yellow.Render("running")
	switch {
	case m.done && m.err != nil:
		status = red.Render("stopped: " + m.err.Error())
	case m.done:
		status = green.Render("complete")
	case m.quitting:
		status = yellow.Render("stopping")
	}
	b.WriteString(progressBar(m.progress(), barWidth) + fmt.Sprintf(" %5.1f%%  ", 100*m.progress()) + status + "\n\n")

	var lines []string
	if m.seen {
		s := m.last
		phase := s.PhaseName
		if s.Phase < len(m.phases) {
			phase = m.phases[s.Phase]
		}
		lines = append(lines,
			row("phase", fmt.Sprintf("%d/%d %s", s.Phase+1, len(m.phases), phase)),
			row("time", fmt.Sprintf("%.0f s", s.Time)),
			row("pack voltage", fmt.Sprintf("%.4f V", s.PackVoltage)),
			row("pack current", fmt.Sprintf("%.3f A", s.PackCurrent)),
		)
		if lo, hi, ok := spread(s.CellVoltages); ok {
			lines = append(lines, row("cell voltage", fmt.Sprintf("%.4f … %.4f V", lo, hi)))
		}
		if lo, hi, ok := spread(s.CellCurrents); ok {
			lines = append(lines, row("cell current", fmt.Sprintf("%.3f … %.3f A", lo, hi)))
		}
		if m.peakT > 0 {
			lines = append(lines, row("peak temp", fmt.Sprintf("%.2f K", m.peakT)))
		}
		lines = append(lines, row("voltage", sparkline(m.history, historyLen)))
	} else {
		lines = append(lines, dim.Render("waiting for first sample"))
	}
	lines = append(lines, row("elapsed", time.Since(m.started).Round(time.Millisecond).String()))
	b.WriteString(panel.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)) + "\n")

	if m.done {
		b.WriteString(hint.Render("q to close") + "\n")
	} else {
		b.WriteString(hint.Render("q to stop the run") + "\n")
	}
	return white.Render(b.String())
}

func spread(vals []float64) (lo, hi float64, ok bool) {
	if len(vals) == 0 {
		return 0, 0, false
	}
	lo, hi = vals[0], vals[0]
	for _, v := range vals[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi, true
}

// feed forwards samples to the view, at most one per frame except on phase
// changes and the final sample.
type feed struct {
	send  func(tea.Msg)
	every time.Duration
	last  time.Time
	phase int
}

func (f *feed) OnSample(s cosim.Sample) {
	now := time.Now()
	final := s.Step+1 >= s.Total
	if !final && s.Phase == f.phase && now.Sub(f.last) < f.every {
		return
	}
	f.last = now
	f.phase = s.Phase
	f.send(sampleMsg(s))
}

// Run drives sim behind the live view. Quitting the view cancels the run;
// the result is whatever sim.Run returned.
func Run(ctx context.Context, sim *cosim.Simulator, name string, opts ...tea.ProgramOption) (*output.Series, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var phases []string
	for _, p := range sim.Stepper().Phases() {
		phases = append(phases, p.String())
	}

	p := tea.NewProgram(NewModel(name, phases, sim.Stepper().Total(), cancel), opts...)
	sim.AddObserver(&feed{send: p.Send, every: frameInterval, phase: -1})

	type result struct {
		series *output.Series
		err    error
	}
	done := make(chan result, 1)
	go func() {
		series, err := sim.Run(ctx)
		done <- result{series, err}
		p.Send(doneMsg{err: err})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		r := <-done
		return r.series, fmt.Errorf("live view: %w", err)
	}
	r := <-done
	return r.series, r.err
}
