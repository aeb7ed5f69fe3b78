// Package output collects the per-sample results of a pack run into time
// series.
package output

import (
	"errors"
	"fmt"
	"slices"
)

const (
	PackVoltage     = "Pack terminal voltage [V]"
	PackCurrent     = "Pack current [A]"
	CellCurrent     = "Cell current [A]"
	TerminalVoltage = "Terminal voltage [V]"
)

var (
	ErrMissingVariable = errors.New("output: missing variable")
	ErrShape           = errors.New("output: row shape mismatch")
	ErrTimeOrder       = errors.New("output: sample times must increase")
)

// Series is the result of a run. Cells holds one (sample × cell) matrix per
// variable.
type Series struct {
	Time      []float64              `json:"time"`
	Phase     []int                  `json:"phase"`
	Pack      map[string][]float64   `json:"pack"`
	Cells     map[string][][]float64 `json:"cells"`
	CellNames []string               `json:"cell_variables"`
	CellCount int                    `json:"cell_count"`
	Metrics   map[string]float64     `json:"metrics,omitempty"`
	Complete  bool                   `json:"complete"`
	Err       error                  `json:"-"`
}

func (s *Series) Len() int { return len(s.Time) }

// Variable returns the (sample × cell) matrix of a per-cell variable.
func (s *Series) Variable(name string) ([][]float64, bool) {
	m, ok := s.Cells[name]
	return m, ok
}

// Column returns the time series of one cell for a per-cell variable.
func (s *Series) Column(name string, cell int) ([]float64, error) {
	m, ok := s.Cells[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingVariable, name)
	}
	if cell < 0 || cell >= s.CellCount {
		return nil, fmt.Errorf("%w: cell %d of %d", ErrShape, cell, s.CellCount)
	}
	out := make([]float64, len(m))
	for i, row := range m {
		out[i] = row[cell]
	}
	return out, nil
}

// Names lists the per-cell variables in recording order.
func (s *Series) Names() []string { return slices.Clone(s.CellNames) }

func (s *Series) PackNames() []string { return []string{PackVoltage, PackCurrent} }

// Row is one sample handed to the aggregator.
type Row struct {
	Time        float64
	Phase       int
	PackVoltage float64
	PackCurrent float64
	Cells       map[string][]float64
}

type Aggregator struct {
	cells  int
	series *Series
}

// NewAggregator records cell current and terminal voltage for every cell
// plus the extra variables named.
func NewAggregator(cells int, extra []string) *Aggregator {
	names := []string{CellCurrent, TerminalVoltage}
	for _, n := range extra {
		if !slices.Contains(names, n) {
			names = append(names, n)
		}
	}

	s := &Series{
		Pack: map[string][]float64{
			PackVoltage: nil,
			PackCurrent: nil,
		},
		Cells:     make(map[string][][]float64, len(names)),
		CellNames: names,
		CellCount: cells,
	}
	for _, n := range names {
		s.Cells[n] = nil
	}
	return &Aggregator{cells: cells, series: s}
}

// Record appends one sample. Every tracked variable must be present with
// one value per cell.
func (a *Aggregator) Record(r Row) error {
	s := a.series
	if n := len(s.Time); n > 0 && !(r.Time > s.Time[n-1]) {
		return fmt.Errorf("%w: %g after %g", ErrTimeOrder, r.Time, s.Time[n-1])
	}
	for _, name := range s.CellNames {
		v, ok := r.Cells[name]
		if !ok {
			return fmt.Errorf("%w: %q at t=%g", ErrMissingVariable, name, r.Time)
		}
		if len(v) != a.cells {
			return fmt.Errorf("%w: %q has %d values for %d cells", ErrShape, name, len(v), a.cells)
		}
	}

	s.Time = append(s.Time, r.Time)
	s.Phase = append(s.Phase, r.Phase)
	s.Pack[PackVoltage] = append(s.Pack[PackVoltage], r.PackVoltage)
	s.Pack[PackCurrent] = append(s.Pack[PackCurrent], r.PackCurrent)
	for _, name := range s.CellNames {
		s.Cells[name] = append(s.Cells[name], slices.Clone(r.Cells[name]))
	}
	return nil
}

func (a *Aggregator) MarkComplete() {
	a.series.Complete = true
	a.series.Err = nil
}

func (a *Aggregator) MarkIncomplete(err error) {
	a.series.Complete = false
	a.series.Err = err
}

func (a *Aggregator) Series() *Series { return a.series }
