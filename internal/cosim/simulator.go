package cosim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/san-kum/packsim/internal/circuit"
	"github.com/san-kum/packsim/internal/experiment"
	"github.com/san-kum/packsim/internal/netlist"
	"github.com/san-kum/packsim/internal/output"
)

type Option func(*Simulator)

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkers bounds how many cells advance concurrently; 0 uses
// GOMAXPROCS.
func WithWorkers(n int) Option { return func(s *Simulator) { s.workers = n } }

// WithOutputs names the cell variables recorded next to current and
// terminal voltage.
func WithOutputs(names ...string) Option {
	return func(s *Simulator) { s.outputs = append(s.outputs, names...) }
}

// WithHeatTransfer sets a heat transfer coefficient per cell, passed to
// every cell at construction and on every step.
func WithHeatTransfer(values []float64) Option {
	return func(s *Simulator) { s.heat = append([]float64(nil), values...) }
}

func WithInitialConcentration(values []float64) Option {
	return func(s *Simulator) { s.conc = append([]float64(nil), values...) }
}

type Simulator struct {
	nl      *netlist.Netlist
	solver  *circuit.Solver
	stepper *experiment.Stepper
	factory CellFactory
	pool    *Pool
	logger  *slog.Logger

	workers   int
	outputs   []string
	heat      []float64
	conc      []float64
	ri        []float64
	metrics   []Metric
	observers []Observer
}

// New checks the pack and run inputs and factorises the circuit for every
// demand mode the experiment uses. Nothing is simulated until Run.
func New(nl *netlist.Netlist, stepper *experiment.Stepper, factory CellFactory, opts ...Option) (*Simulator, error) {
	s := &Simulator{
		nl:      nl,
		stepper: stepper,
		factory: factory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if nl == nil || stepper == nil || factory == nil {
		return nil, fmt.Errorf("%w: netlist, experiment and cell factory are required", ErrConfiguration)
	}
	if err := nl.Validate(); err != nil {
		return nil, err
	}
	if err := s.validateConfig(); err != nil {
		return nil, err
	}

	solver, err := circuit.New(nl)
	if err != nil {
		return nil, err
	}
	for _, p := range stepper.Phases() {
		if p.Mode != experiment.ConstantVoltage {
			continue
		}
		cond, err := solver.Condition(circuit.VoltageMode)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("voltage-mode system factorised", "condition", cond)
		break
	}
	s.solver = solver
	s.pool = NewPool(s.workers)

	s.ri = make([]float64, nl.CellCount())
	for k := range s.ri {
		s.ri[k] = nl.InternalResistance(k)
	}
	return s, nil
}

func (s *Simulator) validateConfig() error {
	n := s.nl.CellCount()
	if s.workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrConfiguration, s.workers)
	}
	if s.heat != nil && len(s.heat) != n {
		return fmt.Errorf("%w: %d heat transfer coefficients for %d cells", ErrConfiguration, len(s.heat), n)
	}
	for k, h := range s.heat {
		if math.IsNaN(h) || math.IsInf(h, 0) || h < 0 {
			return fmt.Errorf("%w: heat transfer coefficient of cell %d is %g", ErrConfiguration, k, h)
		}
	}
	if s.conc != nil && len(s.conc) != n {
		return fmt.Errorf("%w: %d initial concentrations for %d cells", ErrConfiguration, len(s.conc), n)
	}
	for k, c := range s.conc {
		if math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 {
			return fmt.Errorf("%w: initial concentration of cell %d is %g", ErrConfiguration, k, c)
		}
	}
	for _, name := range s.outputs {
		if name == "" {
			return fmt.Errorf("%w: empty output variable name", ErrConfiguration)
		}
	}
	return nil
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) Netlist() *netlist.Netlist      { return s.nl }
func (s *Simulator) Stepper() *experiment.Stepper   { return s.stepper }
func (s *Simulator) Solver() *circuit.Solver        { return s.solver }
func (s *Simulator) Workers() int                   { return s.pool.Workers() }
func (s *Simulator) Metrics() []Metric              { return s.metrics }
func (s *Simulator) Outputs() []string              { return append([]string(nil), s.outputs...) }
func (s *Simulator) InternalResistances() []float64 { return append([]float64(nil), s.ri...) }

// Run executes the whole experiment with freshly built cells, so repeated
// runs of one Simulator produce the same series. On failure or cancellation
// the samples recorded so far are returned with Complete unset.
func (s *Simulator) Run(ctx context.Context) (*output.Series, error) {
	started := time.Now()
	s.stepper.Begin()
	for _, m := range s.metrics {
		m.Reset()
	}

	cells, err := s.buildCells()
	if err != nil {
		return nil, err
	}

	n := len(cells)
	emf := s.initialEMF(cells)
	agg := output.NewAggregator(n, s.outputs)
	names := agg.Series().Names()
	total := s.stepper.Total()
	outs := make([]StepOutput, n)

	s.logger.Info("run started",
		"cells", n,
		"phases", len(s.stepper.Phases()),
		"samples", total,
		"workers", s.pool.Workers())

	step := 0
	for {
		if err := ctx.Err(); err != nil {
			return s.cancel(agg, err, step)
		}

		smp, ok := s.stepper.Next()
		if !ok {
			break
		}
		phase := s.stepper.Phase(smp.Phase)
		if smp.Index == 0 {
			s.logger.Info("phase started",
				"phase", smp.Phase,
				"step", phase.String(),
				"mode", phase.Mode.String(),
				"t", smp.Time-smp.Dt)
		}

		sol, err := s.solver.Solve(demand(phase), emf)
		if err != nil {
			return s.fail(agg, &StepError{Step: step, Time: smp.Time, Phase: smp.Phase, Cell: -1, Wrapped: err})
		}

		err = s.pool.Run(ctx, n, func(ctx context.Context, k int) error {
			in := StepInput{Current: sol.CellCurrents[k], Period: smp.Dt, Time: smp.Time}
			if s.heat != nil {
				in.HeatTransfer = s.heat[k]
				in.HasHeatTransfer = true
			}
			out, err := cells[k].Advance(ctx, in)
			if err != nil {
				return &StepError{Step: step, Time: smp.Time, Phase: smp.Phase, Cell: k,
					Wrapped: fmt.Errorf("%w: %w", ErrCellSolve, err)}
			}
			if math.IsNaN(out.TerminalVoltage) || math.IsInf(out.TerminalVoltage, 0) {
				return &StepError{Step: step, Time: smp.Time, Phase: smp.Phase, Cell: k,
					Wrapped: fmt.Errorf("%w: non-finite terminal voltage", ErrCellSolve)}
			}
			outs[k] = out
			return nil
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.cancel(agg, ctxErr, step)
			}
			return s.fail(agg, err)
		}

		values := make(map[string][]float64, len(names))
		for _, name := range names {
			values[name] = make([]float64, n)
		}
		copy(values[output.CellCurrent], sol.CellCurrents)
		for k, out := range outs {
			values[output.TerminalVoltage][k] = out.TerminalVoltage
			for _, name := range names[2:] {
				v, ok := out.Variables[name]
				if !ok {
					return s.fail(agg, &StepError{Step: step, Time: smp.Time, Phase: smp.Phase, Cell: k,
						Wrapped: fmt.Errorf("%w: variable %q not reported", ErrCellSolve, name)})
				}
				values[name][k] = v
			}
		}

		err = agg.Record(output.Row{
			Time:        smp.Time,
			Phase:       smp.Phase,
			PackVoltage: sol.PackVoltage,
			PackCurrent: sol.PackCurrent,
			Cells:       values,
		})
		if err != nil {
			return s.fail(agg, &StepError{Step: step, Time: smp.Time, Phase: smp.Phase, Cell: -1, Wrapped: err})
		}

		for k, out := range outs {
			emf[k] = out.TerminalVoltage + sol.CellCurrents[k]*s.ri[k]
		}

		sample := Sample{
			Step:         step,
			Total:        total,
			Phase:        smp.Phase,
			PhaseName:    phase.String(),
			Time:         smp.Time,
			PackCurrent:  sol.PackCurrent,
			PackVoltage:  sol.PackVoltage,
			CellCurrents: values[output.CellCurrent],
			CellVoltages: values[output.TerminalVoltage],
			Variables:    values,
		}
		for _, m := range s.metrics {
			m.Observe(sample)
		}
		for _, obs := range s.observers {
			obs.OnSample(sample)
		}

		if s.logger.Enabled(ctx, slog.LevelDebug) {
			s.logger.Debug("sample",
				"step", step,
				"t", smp.Time,
				"pack_v", sol.PackVoltage,
				"pack_i", sol.PackCurrent,
				"kcl_residual", sol.KCLResidual(s.nl))
		}

		if hit, why := cutoff(phase, sol, outs); hit {
			s.stepper.Complete(experiment.ReasonCutoff)
			s.logger.Info("phase cutoff",
				"phase", smp.Phase,
				"t", smp.Time,
				"reason", why)
		}
		step++
	}

	agg.MarkComplete()
	series := agg.Series()
	s.collectMetrics(series)
	s.logger.Info("run complete",
		"samples", series.Len(),
		"duration", series.Time[len(series.Time)-1],
		"elapsed", time.Since(started))
	return series, nil
}

func (s *Simulator) buildCells() ([]Cell, error) {
	n := s.nl.CellCount()
	cells := make([]Cell, n)
	for k := 0; k < n; k++ {
		var init CellInit
		if s.heat != nil {
			init.HeatTransfer = s.heat[k]
			init.HasHeatTransfer = true
		}
		if s.conc != nil {
			init.ElectrolyteConcentration = s.conc[k]
			init.HasConcentration = true
		}
		c, err := s.factory(k, init)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %d: %w", ErrConfiguration, k, err)
		}
		if r, ok := c.(Reporter); ok {
			reported := r.Variables()
			for _, name := range s.outputs {
				if name == output.CellCurrent || name == output.TerminalVoltage {
					continue
				}
				if !contains(reported, name) {
					return nil, fmt.Errorf("%w: cell %d does not report %q", ErrConfiguration, k, name)
				}
			}
		}
		cells[k] = c
	}
	return cells, nil
}

// initialEMF takes each cell's resting terminal voltage, falling back to
// the source value in the netlist.
func (s *Simulator) initialEMF(cells []Cell) []float64 {
	emf := make([]float64, len(cells))
	rows := s.nl.Cells()
	for k, c := range cells {
		v := c.TerminalVoltage()
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			v = s.nl.Elements[rows[k]].Value
		}
		emf[k] = v
	}
	return emf
}

func (s *Simulator) collectMetrics(series *output.Series) {
	if len(s.metrics) == 0 {
		return
	}
	series.Metrics = make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		series.Metrics[m.Name()] = m.Value()
	}
}

func (s *Simulator) cancel(agg *output.Aggregator, err error, step int) (*output.Series, error) {
	agg.MarkIncomplete(err)
	series := agg.Series()
	s.collectMetrics(series)
	s.logger.Warn("run canceled", "step", step, "t", s.stepper.Elapsed(), "samples", series.Len(), "err", err)
	return series, err
}

func (s *Simulator) fail(agg *output.Aggregator, err error) (*output.Series, error) {
	agg.MarkIncomplete(err)
	series := agg.Series()
	s.collectMetrics(series)
	s.logger.Error("run aborted", "t", s.stepper.Elapsed(), "samples", series.Len(), "err", err)
	return series, err
}

func demand(p experiment.Phase) circuit.Demand {
	switch p.Mode {
	case experiment.ConstantCurrent:
		return circuit.Current(p.Magnitude)
	case experiment.ConstantVoltage:
		return circuit.Voltage(p.Magnitude)
	default:
		return circuit.Current(0)
	}
}

// cutoff reports whether the phase must end at this sample. Rest phases
// ignore cell limits.
func cutoff(p experiment.Phase, sol *circuit.Solution, outs []StepOutput) (bool, string) {
	if p.Mode == experiment.Rest {
		return false, ""
	}
	for k, o := range outs {
		if o.Cutoff {
			return true, fmt.Sprintf("cell %d reached its voltage limit", k)
		}
	}
	if p.Cutoff == 0 {
		return false, ""
	}

	switch p.Mode {
	case experiment.ConstantCurrent:
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, o := range outs {
			lo = math.Min(lo, o.TerminalVoltage)
			hi = math.Max(hi, o.TerminalVoltage)
		}
		if p.Magnitude >= 0 && lo <= p.Cutoff {
			return true, fmt.Sprintf("min cell voltage %.4fV <= %gV", lo, p.Cutoff)
		}
		if p.Magnitude < 0 && hi >= p.Cutoff {
			return true, fmt.Sprintf("max cell voltage %.4fV >= %gV", hi, p.Cutoff)
		}
	case experiment.ConstantVoltage:
		if math.Abs(sol.PackCurrent) <= p.Cutoff {
			return true, fmt.Sprintf("pack current %.4fA <= %gA", sol.PackCurrent, p.Cutoff)
		}
	}
	return false, ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
