// Package experiment turns an ordered list of operating phases into the
// sequence of sample instants the co-simulation advances through.
package experiment

import (
	"fmt"
)

type State int

const (
	PhasePending State = iota
	PhaseActive
	PhaseComplete
	ExperimentComplete
)

func (s State) String() string {
	switch s {
	case PhasePending:
		return "pending"
	case PhaseActive:
		return "active"
	case PhaseComplete:
		return "complete"
	default:
		return "experiment complete"
	}
}

// Reason records why a phase ended.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonDuration
	ReasonCutoff
)

func (r Reason) String() string {
	switch r {
	case ReasonDuration:
		return "duration"
	case ReasonCutoff:
		return "cutoff"
	default:
		return "none"
	}
}

// Sample is one instant at which the pack is solved. Time is absolute from
// the start of the experiment and Dt is the interval that ends at Time.
type Sample struct {
	Phase int
	Index int
	Time  float64
	Dt    float64
}

// Stepper walks the phases in order. It is not safe for concurrent use.
type Stepper struct {
	phases  []Phase
	reasons []Reason

	state   State
	current int
	index   int
	start   float64
	now     float64
	times   []float64
}

func New(phases []Phase) (*Stepper, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: experiment has no phases", ErrPhase)
	}
	for _, p := range phases {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	s := &Stepper{
		phases:  append([]Phase(nil), phases...),
		reasons: make([]Reason, len(phases)),
	}
	s.Begin()
	return s, nil
}

// Parse builds a stepper from experiment strings sharing one sampling
// period in seconds.
func Parse(steps []string, period float64) (*Stepper, error) {
	phases := make([]Phase, 0, len(steps))
	for _, step := range steps {
		p, err := ParsePhase(step, period)
		if err != nil {
			return nil, err
		}
		phases = append(phases, p)
	}
	return New(phases)
}

// Begin rewinds the stepper to the start of the first phase.
func (s *Stepper) Begin() {
	s.state = PhasePending
	s.current = 0
	s.index = 0
	s.start = 0
	s.now = 0
	s.times = nil
	for i := range s.reasons {
		s.reasons[i] = ReasonNone
	}
}

// Next returns the next sample instant, or false once every phase is done.
func (s *Stepper) Next() (Sample, bool) {
	for {
		switch s.state {
		case PhasePending:
			s.times = s.phases[s.current].SampleTimes()
			s.index = 0
			s.start = s.now
			s.state = PhaseActive

		case PhaseActive:
			if s.index >= len(s.times) {
				s.finish(ReasonDuration)
				continue
			}
			prev := 0.0
			if s.index > 0 {
				prev = s.times[s.index-1]
			}
			rel := s.times[s.index]
			smp := Sample{
				Phase: s.current,
				Index: s.index,
				Time:  s.start + rel,
				Dt:    rel - prev,
			}
			s.index++
			s.now = smp.Time
			return smp, true

		case PhaseComplete:
			if s.current+1 >= len(s.phases) {
				s.state = ExperimentComplete
				continue
			}
			s.current++
			s.state = PhasePending

		case ExperimentComplete:
			return Sample{}, false
		}
	}
}

// Complete ends the active phase at the last sample returned by Next.
// Calling it outside an active phase has no effect.
func (s *Stepper) Complete(reason Reason) {
	if s.state != PhaseActive {
		return
	}
	s.finish(reason)
}

func (s *Stepper) finish(reason Reason) {
	s.reasons[s.current] = reason
	s.state = PhaseComplete
}

func (s *Stepper) State() State { return s.state }

// Current is the index of the phase in progress or last completed.
func (s *Stepper) Current() int { return s.current }

// Elapsed is the absolute time of the last sample returned.
func (s *Stepper) Elapsed() float64 { return s.now }

func (s *Stepper) Phase(i int) Phase { return s.phases[i] }

func (s *Stepper) Phases() []Phase { return append([]Phase(nil), s.phases...) }

func (s *Stepper) Reason(i int) Reason { return s.reasons[i] }

// Total is the number of samples when no cutoff fires.
func (s *Stepper) Total() int {
	n := 0
	for _, p := range s.phases {
		n += p.Samples()
	}
	return n
}

// Duration is the cumulative duration of every phase.
func (s *Stepper) Duration() float64 {
	d := 0.0
	for _, p := range s.phases {
		d += p.Duration
	}
	return d
}
