package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/packsim/internal/cosim"
)

// Dormand-Prince 5(4) tableau.
var (
	dpC = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dpA = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	// fifth-order weights minus embedded fourth-order weights
	dpE = [7]float64{
		35.0/384 - 5179.0/57600,
		0,
		500.0/1113 - 7571.0/16695,
		125.0/192 - 393.0/640,
		-2187.0/6784 + 92097.0/339200,
		11.0/84 - 187.0/2100,
		-1.0 / 40,
	}
)

type RK45 struct {
	Tolerance float64
	MinStep   float64

	safety   float64
	minScale float64
	maxScale float64
}

func NewRK45() *RK45 {
	return &RK45{
		Tolerance: 1e-6,
		MinStep:   1e-9,
		safety:    0.9,
		minScale:  0.2,
		maxScale:  10.0,
	}
}

// Step integrates over dt, taking as many accepted sub-steps as the error
// control asks for.
func (r *RK45) Step(sys cosim.System, x cosim.State, u cosim.Control, t, dt float64) cosim.State {
	next, err := r.Integrate(sys, x, u, t, dt)
	if err != nil {
		bad := make(cosim.State, len(x))
		for i := range bad {
			bad[i] = math.NaN()
		}
		return bad
	}
	return next
}

// Integrate advances x from t to t+span under adaptive step control.
func (r *RK45) Integrate(sys cosim.System, x cosim.State, u cosim.Control, t, span float64) (cosim.State, error) {
	end := t + span
	h := span
	cur := x.Clone()
	for t < end {
		h = math.Min(h, end-t)
		next, hNew, err := r.StepAdaptive(sys, cur, u, t, h, r.Tolerance)
		if err != nil {
			return nil, err
		}
		if hNew < h && h > r.MinStep {
			// rejected: retry with the smaller step
			h = math.Max(hNew, r.MinStep)
			continue
		}
		cur = next
		t += h
		h = hNew
	}
	return cur, nil
}

// StepAdaptive takes one Dormand-Prince step and proposes the next step
// size. A proposed step smaller than dt means the error estimate exceeded
// tol.
func (r *RK45) StepAdaptive(sys cosim.System, x cosim.State, u cosim.Control, t, dt, tol float64) (cosim.State, float64, error) {
	n := len(x)
	var k [7]cosim.State
	probe := make(cosim.State, n)

	k[0] = sys.Derive(x, u, t)
	for s := 1; s < 7; s++ {
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < s; j++ {
				sum += dpA[s][j] * k[j][i]
			}
			probe[i] = x[i] + dt*sum
		}
		k[s] = sys.Derive(probe, u, t+dpC[s]*dt)
	}
	// the last stage is evaluated at the fifth-order solution
	next := probe.Clone()
	if !next.IsValid() {
		return nil, dt, fmt.Errorf("rk45: non-finite state at t=%g", t)
	}

	errMax := 0.0
	for i := 0; i < n; i++ {
		est := 0.0
		for s := 0; s < 7; s++ {
			est += dpE[s] * k[s][i]
		}
		scale := math.Abs(x[i]) + math.Abs(dt*k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(dt*est)/scale)
	}

	ratio := errMax / tol
	switch {
	case ratio > 1:
		return next, dt * math.Max(r.minScale, r.safety*math.Pow(ratio, -0.25)), nil
	case ratio > 0:
		return next, dt * math.Min(r.maxScale, math.Max(1, r.safety*math.Pow(ratio, -0.2))), nil
	default:
		return next, dt * r.maxScale, nil
	}
}
