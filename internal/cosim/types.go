package cosim

import (
	"context"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Control is the input held constant over an integration step, for a cell
// model the applied current and ambient conditions.
type Control []float64

// System is an ODE dx/dt = f(x, u, t).
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
}

type Integrator interface {
	Step(sys System, x State, u Control, t, dt float64) State
}

type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(sys System, x State, u Control, t, dt, tol float64) (State, float64, error)
}

// StepInput is what a cell receives for one sample period. Current is
// positive on discharge.
type StepInput struct {
	Current         float64
	Period          float64
	Time            float64
	HeatTransfer    float64
	HasHeatTransfer bool
}

type StepOutput struct {
	TerminalVoltage float64
	Variables       map[string]float64
	Cutoff          bool
}

// Cell advances one battery cell. Implementations need not be safe for
// concurrent use; the simulator never advances the same cell from two
// goroutines.
type Cell interface {
	Advance(ctx context.Context, in StepInput) (StepOutput, error)
	TerminalVoltage() float64
}

// Reporter is implemented by cells that can list the variables Advance
// reports, so requested outputs can be checked before the run starts.
type Reporter interface {
	Variables() []string
}

// CellInit carries the per-cell values fixed at construction.
type CellInit struct {
	HeatTransfer             float64
	HasHeatTransfer          bool
	ElectrolyteConcentration float64
	HasConcentration         bool
}

type CellFactory func(index int, init CellInit) (Cell, error)

// Sample is what observers and metrics see once the barrier of a sample has
// closed. Slices are owned by the simulator and must not be retained.
type Sample struct {
	Step         int
	Total        int
	Phase        int
	PhaseName    string
	Time         float64
	PackCurrent  float64
	PackVoltage  float64
	CellCurrents []float64
	CellVoltages []float64
	Variables    map[string][]float64
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Observer interface {
	OnSample(s Sample)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(s Sample)

func (f ObserverFunc) OnSample(s Sample) { f(s) }
