package cellmodel

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/packsim/internal/cosim"
)

// ResistorParams describe an ideal source behind a fixed resistance.
type ResistorParams struct {
	EMF        float64 `yaml:"emf"`
	Resistance float64 `yaml:"resistance"`
}

func DefaultResistorParams() ResistorParams {
	return ResistorParams{EMF: 3.2, Resistance: 0.01}
}

// Resistor never changes its EMF, which makes pack results predictable in
// closed form.
type Resistor struct {
	p       ResistorParams
	current float64
}

func NewResistor(p ResistorParams) (*Resistor, error) {
	if !(p.EMF > 0) || p.Resistance < 0 || math.IsInf(p.EMF, 0) || math.IsInf(p.Resistance, 0) {
		return nil, fmt.Errorf("%w: resistor cell needs a positive EMF and non-negative resistance", ErrParameter)
	}
	return &Resistor{p: p}, nil
}

func NewResistorFactory(p ResistorParams) cosim.CellFactory {
	return func(index int, init cosim.CellInit) (cosim.Cell, error) {
		return NewResistor(p)
	}
}

func (r *Resistor) TerminalVoltage() float64 { return r.p.EMF - r.current*r.p.Resistance }

func (r *Resistor) Variables() []string {
	return []string{VarTerminalVoltage, VarCurrent, VarOCV}
}

func (r *Resistor) Advance(ctx context.Context, in cosim.StepInput) (cosim.StepOutput, error) {
	if err := ctx.Err(); err != nil {
		return cosim.StepOutput{}, err
	}
	r.current = in.Current
	v := r.TerminalVoltage()
	return cosim.StepOutput{
		TerminalVoltage: v,
		Variables: map[string]float64{
			VarTerminalVoltage: v,
			VarCurrent:         in.Current,
			VarOCV:             r.p.EMF,
		},
	}, nil
}
