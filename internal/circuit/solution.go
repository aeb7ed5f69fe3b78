package circuit

import (
	"math"

	"github.com/san-kum/packsim/internal/netlist"
)

// Solution of the network at one instant. Branch currents are indexed by
// netlist row and flow from Node1 to Node2 through the element. Cell
// currents are indexed by cell and are positive when the cell discharges.
type Solution struct {
	NodeVoltages   []float64
	BranchCurrents []float64
	CellCurrents   []float64
	PackCurrent    float64
	PackVoltage    float64
}

// KCLResidual is the largest net current leaving any non-ground node.
func (s *Solution) KCLResidual(nl *netlist.Netlist) float64 {
	net := make([]float64, len(s.NodeVoltages))
	for row, e := range nl.Elements {
		i := s.BranchCurrents[row]
		net[e.Node1] += i
		net[e.Node2] -= i
	}
	worst := 0.0
	for node := 1; node < len(net); node++ {
		worst = math.Max(worst, math.Abs(net[node]))
	}
	return worst
}

// CellVoltages returns the voltage across each cell's source, positive side
// minus negative side.
func (s *Solution) CellVoltages(nl *netlist.Netlist) []float64 {
	out := make([]float64, nl.CellCount())
	for k, row := range nl.Cells() {
		e := nl.Elements[row]
		out[k] = s.NodeVoltages[e.Node1] - s.NodeVoltages[e.Node2]
	}
	return out
}

// SumCellCurrents adds up every cell current.
func (s *Solution) SumCellCurrents() float64 {
	sum := 0.0
	for _, i := range s.CellCurrents {
		sum += i
	}
	return sum
}
