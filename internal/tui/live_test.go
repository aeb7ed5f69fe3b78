package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/packsim/internal/cellmodel"
	"github.com/san-kum/packsim/internal/cosim"
)

func sample(step, phase int) cosim.Sample {
	return cosim.Sample{
		Step:         step,
		Total:        10,
		Phase:        phase,
		Time:         float64(step+1) * 60,
		PackVoltage:  6.4,
		PackCurrent:  5,
		CellCurrents: []float64{2.4, 2.6},
		CellVoltages: []float64{3.19, 3.21},
		Variables: map[string][]float64{
			cellmodel.VarTemperature: {298.5, 299.25},
		},
	}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return mm, cmd
}

func TestModelTracksSamples(t *testing.T) {
	m := NewModel("16p2s", []string{"Charge at 50 A for 30 minutes", "Rest for 15 minutes"}, 10, nil)
	if !strings.Contains(m.View(), "waiting") {
		t.Error("expected waiting message before the first sample")
	}

	m, cmd := update(t, m, sampleMsg(sample(4, 1)))
	if cmd != nil {
		t.Error("sample should not produce a command")
	}
	if got := m.progress(); got != 0.5 {
		t.Errorf("progress %g, want 0.5", got)
	}
	if m.peakT != 299.25 {
		t.Errorf("peak temperature %g, want 299.25", m.peakT)
	}

	view := m.View()
	for _, want := range []string{"16p2s", "2/2 Rest for 15 minutes", "6.4000 V", "299.25 K"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModelHistoryBounded(t *testing.T) {
	m := NewModel("x", []string{"Rest for 1 hour"}, 1000, nil)
	for i := 0; i < 3*historyLen; i++ {
		m, _ = update(t, m, sampleMsg(sample(i, 0)))
	}
	if len(m.history) != historyLen {
		t.Errorf("history length %d, want %d", len(m.history), historyLen)
	}
}

func TestModelQuitCancelsRun(t *testing.T) {
	cancelled := false
	m := NewModel("x", []string{"Rest for 1 hour"}, 10, func() { cancelled = true })

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled {
		t.Error("quitting a running view should cancel the run")
	}
	if cmd != nil {
		t.Error("view should wait for the run to stop before quitting")
	}
	if !m.quitting {
		t.Error("expected quitting state")
	}

	m, cmd = update(t, m, doneMsg{err: errors.New("context canceled")})
	if cmd == nil {
		t.Fatal("expected quit command once the run stopped")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if !m.Done() || m.Err() == nil {
		t.Error("expected done with error")
	}
	if !strings.Contains(m.View(), "stopped") {
		t.Error("view should show the run stopped")
	}
}

func TestModelComplete(t *testing.T) {
	m := NewModel("x", []string{"Rest for 1 hour"}, 10, nil)
	m, _ = update(t, m, sampleMsg(sample(9, 0)))
	m, _ = update(t, m, doneMsg{})
	if m.progress() != 1 {
		t.Errorf("progress %g, want 1", m.progress())
	}
	if !strings.Contains(m.View(), "complete") {
		t.Error("view should show completion")
	}
}

func TestFeedThrottles(t *testing.T) {
	var sent []int
	f := &feed{
		send:  func(msg tea.Msg) { sent = append(sent, cosim.Sample(msg.(sampleMsg)).Step) },
		every: time.Hour,
		phase: -1,
	}

	f.OnSample(sample(0, 0))
	f.OnSample(sample(1, 0))
	f.OnSample(sample(2, 1))
	f.OnSample(sample(3, 1))
	f.OnSample(sample(9, 1))

	want := []int{0, 2, 9}
	if len(sent) != len(want) {
		t.Fatalf("sent %v, want %v", sent, want)
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("sent %v, want %v", sent, want)
		}
	}
}
