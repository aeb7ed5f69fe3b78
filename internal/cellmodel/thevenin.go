// Package cellmodel provides equivalent-circuit cell models that satisfy
// the co-simulation cell contract.
package cellmodel

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/packsim/internal/cosim"
	"github.com/san-kum/packsim/internal/integrators"
)

const gasConstant = 8.314462618

const (
	VarTerminalVoltage = "Terminal voltage [V]"
	VarCurrent         = "Cell current [A]"
	VarSoC             = "State of charge"
	VarTemperature     = "Volume-averaged cell temperature [K]"
	VarHeating         = "X-averaged total heating [W.m-3]"
	VarConcentration   = "X-averaged electrolyte concentration [mol.m-3]"
	VarOCV             = "Open-circuit voltage [V]"
)

var (
	ErrParameter = errors.New("cellmodel: invalid parameter")
	ErrDiverged  = errors.New("cellmodel: state diverged")
)

// TheveninParams describe a one-RC equivalent circuit with a lumped
// thermal mass. R0 is quoted at the reference temperature and electrolyte
// concentration.
type TheveninParams struct {
	Capacity     float64 `yaml:"capacity_ah"`
	InitialSoC   float64 `yaml:"initial_soc"`
	R0           float64 `yaml:"r0"`
	R1           float64 `yaml:"r1"`
	C1           float64 `yaml:"c1"`
	Mass         float64 `yaml:"mass_kg"`
	HeatCapacity float64 `yaml:"heat_capacity"`
	Area         float64 `yaml:"area_m2"`
	Volume       float64 `yaml:"volume_m3"`
	HeatTransfer float64 `yaml:"heat_transfer"`

	AmbientTemperature     float64 `yaml:"ambient_k"`
	ReferenceTemperature   float64 `yaml:"reference_k"`
	ActivationEnergy       float64 `yaml:"activation_energy"`
	ReferenceConcentration float64 `yaml:"reference_concentration"`

	VMin float64 `yaml:"v_min"`
	VMax float64 `yaml:"v_max"`

	Integrator string  `yaml:"integrator"`
	MaxStep    float64 `yaml:"max_step"`
}

// DefaultTheveninParams is a 5 Ah LFP-like cylindrical cell.
func DefaultTheveninParams() TheveninParams {
	return TheveninParams{
		Capacity:               5,
		InitialSoC:             0.5,
		R0:                     0.01,
		R1:                     0.01,
		C1:                     2000,
		Mass:                   0.07,
		HeatCapacity:           1100,
		Area:                   0.0042,
		Volume:                 1.65e-5,
		HeatTransfer:           10,
		AmbientTemperature:     298.15,
		ReferenceTemperature:   298.15,
		ActivationEnergy:       20000,
		ReferenceConcentration: 1000,
		VMin:                   2.5,
		VMax:                   3.65,
		Integrator:             "rk4",
		MaxStep:                1,
	}
}

func (p TheveninParams) Validate() error {
	positive := map[string]float64{
		"capacity_ah":   p.Capacity,
		"r0":            p.R0,
		"r1":            p.R1,
		"c1":            p.C1,
		"mass_kg":       p.Mass,
		"heat_capacity": p.HeatCapacity,
		"volume_m3":     p.Volume,
		"ambient_k":     p.AmbientTemperature,
		"reference_k":   p.ReferenceTemperature,
	}
	for name, v := range positive {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be positive, got %g", ErrParameter, name, v)
		}
	}
	if p.InitialSoC < 0 || p.InitialSoC > 1 {
		return fmt.Errorf("%w: initial_soc must be within [0, 1], got %g", ErrParameter, p.InitialSoC)
	}
	if p.Area < 0 || p.HeatTransfer < 0 || p.ActivationEnergy < 0 || p.ReferenceConcentration < 0 {
		return fmt.Errorf("%w: area, heat transfer, activation energy and reference concentration must not be negative", ErrParameter)
	}
	if p.VMin >= p.VMax {
		return fmt.Errorf("%w: v_min %g must be below v_max %g", ErrParameter, p.VMin, p.VMax)
	}
	return nil
}

// OCV is the open-circuit voltage as a function of state of charge.
func OCV(soc float64) float64 {
	s := math.Max(0, math.Min(1, soc))
	return 3.05 + 0.3*s - 0.08*math.Exp(-20*s) + 0.1*math.Exp(-20*(1-s))
}

// theveninSystem has state [soc, v_rc, T] and control [I, h].
type theveninSystem struct {
	p    TheveninParams
	conc float64
}

func (s *theveninSystem) StateDim() int { return 3 }

func (s *theveninSystem) r0(temp float64) float64 {
	r := s.p.R0
	if s.p.ReferenceConcentration > 0 && s.conc > 0 {
		r *= s.p.ReferenceConcentration / s.conc
	}
	return r * math.Exp(s.p.ActivationEnergy/gasConstant*(1/temp-1/s.p.ReferenceTemperature))
}

func (s *theveninSystem) heat(x cosim.State, current float64) float64 {
	return current*current*s.r0(x[2]) + current*x[1]
}

func (s *theveninSystem) Derive(x cosim.State, u cosim.Control, t float64) cosim.State {
	current, h := u[0], u[1]
	p := s.p
	return cosim.State{
		-current / (3600 * p.Capacity),
		(current*p.R1 - x[1]) / (p.R1 * p.C1),
		(s.heat(x, current) - h*p.Area*(x[2]-p.AmbientTemperature)) / (p.Mass * p.HeatCapacity),
	}
}

// Thevenin is one cell. It keeps its own integrator, so a Thevenin must
// only be advanced by one goroutine at a time.
type Thevenin struct {
	index   int
	sys     *theveninSystem
	integ   cosim.Integrator
	x       cosim.State
	h       float64
	t       float64
	current float64
}

func NewThevenin(index int, p TheveninParams, init cosim.CellInit) (*Thevenin, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	name := p.Integrator
	if name == "" {
		name = "rk4"
	}
	integ, err := integrators.New(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParameter, err)
	}

	conc := p.ReferenceConcentration
	if init.HasConcentration {
		if !(init.ElectrolyteConcentration > 0) {
			return nil, fmt.Errorf("%w: cell %d: electrolyte concentration must be positive", ErrParameter, index)
		}
		conc = init.ElectrolyteConcentration
	}
	h := p.HeatTransfer
	if init.HasHeatTransfer {
		h = init.HeatTransfer
	}

	return &Thevenin{
		index: index,
		sys:   &theveninSystem{p: p, conc: conc},
		integ: integ,
		x:     cosim.State{p.InitialSoC, 0, p.AmbientTemperature},
		h:     h,
	}, nil
}

func NewTheveninFactory(p TheveninParams) cosim.CellFactory {
	return func(index int, init cosim.CellInit) (cosim.Cell, error) {
		return NewThevenin(index, p, init)
	}
}

func (c *Thevenin) voltage(current float64) float64 {
	return OCV(c.x[0]) - c.x[1] - current*c.sys.r0(c.x[2])
}

func (c *Thevenin) TerminalVoltage() float64 { return c.voltage(c.current) }

func (c *Thevenin) SoC() float64 { return c.x[0] }

func (c *Thevenin) Temperature() float64 { return c.x[2] }

func (c *Thevenin) Variables() []string {
	return []string{VarTerminalVoltage, VarCurrent, VarSoC, VarTemperature, VarHeating, VarConcentration, VarOCV}
}

func (c *Thevenin) Advance(ctx context.Context, in cosim.StepInput) (cosim.StepOutput, error) {
	if err := ctx.Err(); err != nil {
		return cosim.StepOutput{}, err
	}
	if !(in.Period > 0) {
		return cosim.StepOutput{}, fmt.Errorf("%w: period must be positive, got %g", ErrParameter, in.Period)
	}
	if math.IsNaN(in.Current) || math.IsInf(in.Current, 0) {
		return cosim.StepOutput{}, fmt.Errorf("%w: non-finite current", ErrDiverged)
	}

	h := c.h
	if in.HasHeatTransfer {
		h = in.HeatTransfer
	}
	u := cosim.Control{in.Current, h}
	next := integrators.Advance(c.integ, c.sys, c.x, u, c.t, in.Period, c.sys.p.MaxStep)
	if !next.IsValid() {
		return cosim.StepOutput{}, fmt.Errorf("%w: cell %d at t=%gs", ErrDiverged, c.index, c.t+in.Period)
	}

	c.x = next
	c.t += in.Period
	c.current = in.Current

	v := c.voltage(in.Current)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return cosim.StepOutput{}, fmt.Errorf("%w: cell %d terminal voltage", ErrDiverged, c.index)
	}
	p := c.sys.p
	return cosim.StepOutput{
		TerminalVoltage: v,
		Variables: map[string]float64{
			VarTerminalVoltage: v,
			VarCurrent:         in.Current,
			VarSoC:             c.x[0],
			VarTemperature:     c.x[2],
			VarHeating:         c.sys.heat(c.x, in.Current) / p.Volume,
			VarConcentration:   c.sys.conc,
			VarOCV:             OCV(c.x[0]),
		},
		Cutoff: v < p.VMin || v > p.VMax || c.x[0] < 0 || c.x[0] > 1,
	}, nil
}
