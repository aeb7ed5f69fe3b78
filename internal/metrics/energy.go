package metrics

import (
	"math"

	"github.com/san-kum/packsim/internal/cosim"
)

// Throughput is the charge moved through the pack terminals in Ah,
// counting charge and discharge alike.
type Throughput struct {
	ah   float64
	last float64
}

func NewThroughput() *Throughput { return &Throughput{} }

func (t *Throughput) Name() string { return "throughput_ah" }

func (t *Throughput) Observe(s cosim.Sample) {
	dt := s.Time - t.last
	t.last = s.Time
	t.ah += math.Abs(s.PackCurrent) * dt / 3600
}

func (t *Throughput) Value() float64 { return t.ah }

func (t *Throughput) Reset() {
	t.ah = 0
	t.last = 0
}

// Energy is the net energy delivered by the pack in Wh; charging counts
// negative.
type Energy struct {
	wh   float64
	last float64
}

func NewEnergy() *Energy { return &Energy{} }

func (e *Energy) Name() string { return "net_energy_wh" }

func (e *Energy) Observe(s cosim.Sample) {
	dt := s.Time - e.last
	e.last = s.Time
	e.wh += s.PackVoltage * s.PackCurrent * dt / 3600
}

func (e *Energy) Value() float64 { return e.wh }

func (e *Energy) Reset() {
	e.wh = 0
	e.last = 0
}
