package metrics

import (
	"math"

	"github.com/san-kum/packsim/internal/cellmodel"
	"github.com/san-kum/packsim/internal/cosim"
)

// PeakTemperature is the hottest cell temperature seen, in K. It stays at
// zero unless the temperature variable is recorded.
type PeakTemperature struct {
	peak float64
}

func NewPeakTemperature() *PeakTemperature { return &PeakTemperature{} }

func (p *PeakTemperature) Name() string { return "peak_temperature_k" }

func (p *PeakTemperature) Observe(s cosim.Sample) {
	for _, t := range s.Variables[cellmodel.VarTemperature] {
		p.peak = math.Max(p.peak, t)
	}
}

func (p *PeakTemperature) Value() float64 { return p.peak }
func (p *PeakTemperature) Reset()         { p.peak = 0 }
