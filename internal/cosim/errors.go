package cosim

import (
	"errors"
	"fmt"

	"github.com/san-kum/packsim/internal/circuit"
	"github.com/san-kum/packsim/internal/netlist"
)

var (
	// ErrTopology indicates a grid or netlist that does not describe a
	// connected pack.
	ErrTopology = netlist.ErrTopology

	// ErrNetlistFormat indicates netlist input that cannot be parsed.
	ErrNetlistFormat = netlist.ErrNetlistFormat

	// ErrConfiguration indicates run inputs that do not fit the pack, such
	// as per-cell vectors of the wrong length.
	ErrConfiguration = errors.New("cosim: invalid configuration")

	// ErrCircuitSingular indicates the circuit equations have no unique
	// solution.
	ErrCircuitSingular = circuit.ErrCircuitSingular

	// ErrCellSolve indicates a cell model failed to advance.
	ErrCellSolve = errors.New("cosim: cell solve failed")
)

// StepError wraps a failure with the sample it happened in. Cell is -1 when
// the failure is not tied to one cell.
type StepError struct {
	Step    int
	Time    float64
	Phase   int
	Cell    int
	Wrapped error
}

func (e *StepError) Error() string {
	if e.Cell >= 0 {
		return fmt.Sprintf("step %d (t=%gs, phase %d, cell %d): %v", e.Step, e.Time, e.Phase, e.Cell, e.Wrapped)
	}
	return fmt.Sprintf("step %d (t=%gs, phase %d): %v", e.Step, e.Time, e.Phase, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
