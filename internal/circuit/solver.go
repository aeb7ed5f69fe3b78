// Package circuit solves the resistive pack network by modified nodal
// analysis.
//
// Unknowns are the voltages of every non-ground node followed by one branch
// current per voltage source. The system matrix only depends on topology
// and resistances, so it is factorised once per demand mode and every
// sample only rebuilds the right hand side.
//
// The matrix is held dense, so memory grows with the square of the node
// count: about 135 MB for a 100p10s pack of roughly 4100 unknowns.
package circuit

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/packsim/internal/netlist"
)

var (
	// ErrCircuitSingular indicates the network equations have no unique
	// solution, typically a floating node or an isolated sub-network.
	ErrCircuitSingular = errors.New("circuit: singular network")

	// ErrDimension indicates a source vector that does not match the
	// number of cells.
	ErrDimension = errors.New("circuit: source vector length mismatch")
)

// MaxCondition is the largest condition number accepted for a factorised
// network matrix.
var MaxCondition = 1e13

type Mode int

const (
	// CurrentMode injects the demand at the pack terminals.
	CurrentMode Mode = iota
	// VoltageMode holds the pack terminals at the demanded voltage.
	VoltageMode
)

func (m Mode) String() string {
	if m == VoltageMode {
		return "voltage"
	}
	return "current"
}

// Demand is the pack-level boundary condition for one solve. Positive
// current discharges the pack.
type Demand struct {
	Mode  Mode
	Value float64
}

func Current(i float64) Demand { return Demand{Mode: CurrentMode, Value: i} }
func Voltage(v float64) Demand { return Demand{Mode: VoltageMode, Value: v} }

type factor struct {
	lu   mat.LU
	size int
	cond float64
}

type Solver struct {
	nl      *netlist.Netlist
	nodes   map[int]int
	n       int
	source  int
	pos     int
	neg     int
	factors [2]*factor
}

// New indexes the netlist and factorises the current-mode system. The
// voltage-mode system is factorised on first use or by Condition.
func New(nl *netlist.Netlist) (*Solver, error) {
	source, ok := nl.CurrentSource()
	if !ok {
		return nil, fmt.Errorf("%w: no pack current source", ErrCircuitSingular)
	}
	if nl.CellCount() == 0 {
		return nil, fmt.Errorf("%w: no cells", ErrCircuitSingular)
	}

	ids := make([]int, 0, nl.MaxNode())
	seen := make(map[int]bool)
	for _, e := range nl.Elements {
		for _, node := range [2]int{e.Node1, e.Node2} {
			if node != 0 && !seen[node] {
				seen[node] = true
				ids = append(ids, node)
			}
		}
	}
	sort.Ints(ids)

	s := &Solver{
		nl:     nl,
		nodes:  make(map[int]int, len(ids)),
		n:      len(ids),
		source: source,
	}
	for i, id := range ids {
		s.nodes[id] = i
	}
	s.pos, s.neg, _ = nl.Terminals()

	if _, err := s.factor(CurrentMode); err != nil {
		return nil, err
	}
	return s, nil
}

// Netlist returns the network being solved.
func (s *Solver) Netlist() *netlist.Netlist { return s.nl }

// Condition returns the condition number of the factorised system for the
// given mode, factorising it if needed.
func (s *Solver) Condition(mode Mode) (float64, error) {
	f, err := s.factor(mode)
	if err != nil {
		return math.Inf(1), err
	}
	return f.cond, nil
}

func (s *Solver) index(node int) int {
	if node == 0 {
		return -1
	}
	return s.nodes[node]
}

func (s *Solver) factor(mode Mode) (*factor, error) {
	if f := s.factors[mode]; f != nil {
		return f, nil
	}

	sources := s.nl.CellCount()
	if mode == VoltageMode {
		sources++
	}
	size := s.n + sources
	a := mat.NewDense(size, size, nil)

	add := func(i, j int, v float64) {
		if i >= 0 && j >= 0 {
			a.Set(i, j, a.At(i, j)+v)
		}
	}
	stampSource := func(k int, e netlist.Element) {
		p, q := s.index(e.Node1), s.index(e.Node2)
		row := s.n + k
		add(p, row, 1)
		add(q, row, -1)
		add(row, p, 1)
		add(row, q, -1)
	}

	for _, e := range s.nl.Elements {
		if !e.Kind().IsResistor() {
			continue
		}
		g := 1 / e.Value
		p, q := s.index(e.Node1), s.index(e.Node2)
		add(p, p, g)
		add(q, q, g)
		add(p, q, -g)
		add(q, p, -g)
	}
	for k, row := range s.nl.Cells() {
		stampSource(k, s.nl.Elements[row])
	}
	if mode == VoltageMode {
		stampSource(sources-1, s.nl.Elements[s.source])
	}

	f := &factor{size: size}
	f.lu.Factorize(a)
	f.cond = f.lu.Cond()
	if math.IsInf(f.cond, 0) || math.IsNaN(f.cond) || f.cond > MaxCondition {
		return nil, fmt.Errorf("%w: %s-mode system condition number %g", ErrCircuitSingular, mode, f.cond)
	}
	s.factors[mode] = f
	return f, nil
}

// Solve computes node voltages and branch currents for one instant. emf[k]
// is the source value of cell k.
func (s *Solver) Solve(d Demand, emf []float64) (*Solution, error) {
	cells := s.nl.Cells()
	if len(emf) != len(cells) {
		return nil, fmt.Errorf("%w: got %d values for %d cells", ErrDimension, len(emf), len(cells))
	}

	f, err := s.factor(d.Mode)
	if err != nil {
		return nil, err
	}

	b := mat.NewVecDense(f.size, nil)
	for k, v := range emf {
		b.SetVec(s.n+k, v)
	}
	switch d.Mode {
	case CurrentMode:
		if p := s.index(s.pos); p >= 0 {
			b.SetVec(p, b.AtVec(p)-d.Value)
		}
		if q := s.index(s.neg); q >= 0 {
			b.SetVec(q, b.AtVec(q)+d.Value)
		}
	case VoltageMode:
		b.SetVec(f.size-1, d.Value)
	}

	x := mat.NewVecDense(f.size, nil)
	if err := f.lu.SolveVecTo(x, false, b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCircuitSingular, err)
	}

	sol := &Solution{
		NodeVoltages:   make([]float64, s.nl.MaxNode()+1),
		BranchCurrents: make([]float64, len(s.nl.Elements)),
		CellCurrents:   make([]float64, len(cells)),
	}
	for id, i := range s.nodes {
		sol.NodeVoltages[id] = x.AtVec(i)
	}
	for row, e := range s.nl.Elements {
		if e.Kind().IsResistor() {
			sol.BranchCurrents[row] = (sol.NodeVoltages[e.Node1] - sol.NodeVoltages[e.Node2]) / e.Value
		}
	}
	for k, row := range cells {
		i := x.AtVec(s.n + k)
		sol.BranchCurrents[row] = i
		sol.CellCurrents[k] = -i
	}

	switch d.Mode {
	case CurrentMode:
		sol.PackCurrent = d.Value
	case VoltageMode:
		sol.PackCurrent = x.AtVec(f.size - 1)
	}
	sol.BranchCurrents[s.source] = sol.PackCurrent
	sol.PackVoltage = sol.NodeVoltages[s.pos] - sol.NodeVoltages[s.neg]

	for _, v := range x.RawVector().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite solution", ErrCircuitSingular)
		}
	}
	return sol, nil
}
