// Package optim runs design studies over pack parameters.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/packsim/internal/cosim"
)

var ErrGrid = errors.New("optim: invalid grid")

// BuildFunc returns the simulator for one grid point.
type BuildFunc func(params map[string]float64) (*cosim.Simulator, error)

// Trial is one evaluated grid point.
type Trial struct {
	Params  map[string]float64
	Metrics map[string]float64
	Value   float64
	Err     error
}

type Result struct {
	Metric string
	// Best is the trial with the smallest metric value, nil when every
	// trial failed.
	Best   *Trial
	Trials []Trial
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	parallel   int
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("%w: %d parameters for %d ranges", ErrGrid, len(params), len(ranges))
	}
	seen := make(map[string]bool, len(params))
	for i, name := range params {
		if seen[name] {
			return nil, fmt.Errorf("%w: parameter %q given twice", ErrGrid, name)
		}
		seen[name] = true
		if len(ranges[i]) == 0 {
			return nil, fmt.Errorf("%w: no values for %q", ErrGrid, name)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges, parallel: runtime.GOMAXPROCS(0)}, nil
}

// SetParallel bounds how many trials run at once.
func (g *GridSearch) SetParallel(n int) {
	if n > 0 {
		g.parallel = n
	}
}

// Points lists the grid in order, the last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.collect(0, map[string]float64{}, &out)
	return out
}

func (g *GridSearch) collect(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		*out = append(*out, current)
		return
	}
	name := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[name] = val
		g.collect(depth+1, next, out)
	}
}

// Search runs every grid point and picks the one minimising metric. A
// failing trial is recorded and does not stop the others; cancelling ctx
// does, and the trials finished so far are returned with ctx.Err().
func (g *GridSearch) Search(ctx context.Context, build BuildFunc, metric string) (*Result, error) {
	points := g.Points()
	trials := make([]Trial, len(points))

	var eg errgroup.Group
	eg.SetLimit(g.parallel)
	for i, p := range points {
		trials[i].Params = p
		eg.Go(func() error {
			trials[i] = g.trial(ctx, build, p, metric)
			return nil
		})
	}
	eg.Wait()

	res := &Result{Metric: metric, Trials: trials}
	best := math.Inf(1)
	for i := range trials {
		if trials[i].Err == nil && trials[i].Value < best {
			best = trials[i].Value
			res.Best = &trials[i]
		}
	}
	return res, ctx.Err()
}

func (g *GridSearch) trial(ctx context.Context, build BuildFunc, params map[string]float64, metric string) Trial {
	t := Trial{Params: params, Value: math.NaN()}
	if err := ctx.Err(); err != nil {
		t.Err = err
		return t
	}
	sim, err := build(params)
	if err != nil {
		t.Err = err
		return t
	}
	series, err := sim.Run(ctx)
	if err != nil {
		t.Err = err
		return t
	}
	t.Metrics = series.Metrics
	v, ok := series.Metrics[metric]
	if !ok {
		t.Err = fmt.Errorf("metric %q not reported", metric)
		return t
	}
	t.Value = v
	return t
}
