package metrics

import (
	"math"

	"github.com/san-kum/packsim/internal/cosim"
)

func spread(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return hi - lo
}

// CurrentSpread is the largest difference between the most and least
// loaded cell seen in any sample.
type CurrentSpread struct {
	worst float64
}

func NewCurrentSpread() *CurrentSpread { return &CurrentSpread{} }

func (c *CurrentSpread) Name() string { return "current_spread_a" }

func (c *CurrentSpread) Observe(s cosim.Sample) {
	c.worst = math.Max(c.worst, spread(s.CellCurrents))
}

func (c *CurrentSpread) Value() float64 { return c.worst }
func (c *CurrentSpread) Reset()         { c.worst = 0 }

// VoltageRange is the largest terminal voltage difference between cells.
type VoltageRange struct {
	worst float64
}

func NewVoltageRange() *VoltageRange { return &VoltageRange{} }

func (v *VoltageRange) Name() string { return "voltage_range_v" }

func (v *VoltageRange) Observe(s cosim.Sample) {
	v.worst = math.Max(v.worst, spread(s.CellVoltages))
}

func (v *VoltageRange) Value() float64 { return v.worst }
func (v *VoltageRange) Reset()         { v.worst = 0 }
