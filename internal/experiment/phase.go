package experiment

import (
	"errors"
	"fmt"
	"math"
)

// ErrPhase indicates an experiment step that cannot be understood or
// executed.
var ErrPhase = errors.New("experiment: invalid phase")

// DefaultPeriod is the sampling period used when a script gives none.
const DefaultPeriod = 60.0

type Mode int

const (
	Rest Mode = iota
	ConstantCurrent
	ConstantVoltage
)

func (m Mode) String() string {
	switch m {
	case ConstantCurrent:
		return "CC"
	case ConstantVoltage:
		return "CV"
	default:
		return "rest"
	}
}

// Phase is one operating segment of an experiment. Magnitude is the pack
// current in A for constant-current phases (positive discharges) and the
// pack voltage in V for constant-voltage phases. Cutoff, when non-zero, is a
// cell voltage limit for constant-current phases and a pack current limit
// for constant-voltage phases.
type Phase struct {
	Description string
	Mode        Mode
	Magnitude   float64
	Duration    float64
	Period      float64
	Cutoff      float64
}

func (p Phase) Validate() error {
	name := p.Description
	if name == "" {
		name = p.Mode.String()
	}
	if !(p.Duration > 0) || math.IsInf(p.Duration, 0) {
		return fmt.Errorf("%w: %q: duration must be positive", ErrPhase, name)
	}
	if !(p.Period > 0) || math.IsInf(p.Period, 0) {
		return fmt.Errorf("%w: %q: period must be positive", ErrPhase, name)
	}
	if math.IsNaN(p.Magnitude) || math.IsInf(p.Magnitude, 0) {
		return fmt.Errorf("%w: %q: magnitude must be finite", ErrPhase, name)
	}
	if p.Mode == ConstantVoltage && p.Magnitude <= 0 {
		return fmt.Errorf("%w: %q: hold voltage must be positive", ErrPhase, name)
	}
	if p.Cutoff < 0 {
		return fmt.Errorf("%w: %q: cutoff must not be negative", ErrPhase, name)
	}
	return nil
}

// Samples is the number of sample steps the phase runs when no cutoff
// fires.
func (p Phase) Samples() int {
	n := int(math.Ceil(p.Duration/p.Period - 1e-9))
	return max(n, 1)
}

// SampleTimes returns the sample timestamps relative to the phase start:
// every period boundary, ending exactly at the phase duration.
func (p Phase) SampleTimes() []float64 {
	n := p.Samples()
	times := make([]float64, n)
	for i := 0; i < n-1; i++ {
		times[i] = float64(i+1) * p.Period
	}
	times[n-1] = p.Duration
	return times
}

func (p Phase) String() string {
	if p.Description != "" {
		return p.Description
	}
	switch p.Mode {
	case ConstantCurrent:
		return fmt.Sprintf("CC %gA for %gs", p.Magnitude, p.Duration)
	case ConstantVoltage:
		return fmt.Sprintf("CV %gV for %gs", p.Magnitude, p.Duration)
	default:
		return fmt.Sprintf("rest for %gs", p.Duration)
	}
}
