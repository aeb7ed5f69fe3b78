package experiment

import "fmt"

// Script is the YAML form of an experiment.
type Script struct {
	Period string   `yaml:"period,omitempty" json:"period,omitempty"`
	Steps  []string `yaml:"steps" json:"steps"`
}

// PeriodSeconds returns the sampling period, DefaultPeriod when unset.
func (sc Script) PeriodSeconds() (float64, error) {
	if sc.Period == "" {
		return DefaultPeriod, nil
	}
	return ParseDuration(sc.Period)
}

func (sc Script) Phases() ([]Phase, error) {
	period, err := sc.PeriodSeconds()
	if err != nil {
		return nil, err
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("%w: experiment has no steps", ErrPhase)
	}
	phases := make([]Phase, 0, len(sc.Steps))
	for _, step := range sc.Steps {
		p, err := ParsePhase(step, period)
		if err != nil {
			return nil, err
		}
		phases = append(phases, p)
	}
	return phases, nil
}

func (sc Script) Stepper() (*Stepper, error) {
	phases, err := sc.Phases()
	if err != nil {
		return nil, err
	}
	return New(phases)
}
