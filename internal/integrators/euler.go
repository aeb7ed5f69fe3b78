package integrators

import "github.com/san-kum/packsim/internal/cosim"

// Euler is the explicit first-order method. It is only stable for steps
// well below the fastest time constant of the system.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(sys cosim.System, x cosim.State, u cosim.Control, t, dt float64) cosim.State {
	dx := sys.Derive(x, u, t)
	next := make(cosim.State, len(x))
	for i := range x {
		next[i] = x[i] + dt*dx[i]
	}
	return next
}
