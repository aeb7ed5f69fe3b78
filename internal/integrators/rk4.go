package integrators

import "github.com/san-kum/packsim/internal/cosim"

// RK4 is the classic fourth-order Runge-Kutta method. Stage buffers are
// reused between steps, so one RK4 must not be shared between cells.
type RK4 struct {
	k     [4]cosim.State
	probe cosim.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) resize(n int) {
	if len(r.probe) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(cosim.State, n)
	}
	r.probe = make(cosim.State, n)
}

// stage evaluates the derivative at x + h*k and stores it in dst.
func (r *RK4) stage(dst cosim.State, sys cosim.System, x, k cosim.State, u cosim.Control, t, h float64) {
	for i := range x {
		r.probe[i] = x[i] + h*k[i]
	}
	copy(dst, sys.Derive(r.probe, u, t))
}

func (r *RK4) Step(sys cosim.System, x cosim.State, u cosim.Control, t, dt float64) cosim.State {
	r.resize(len(x))
	half := 0.5 * dt

	copy(r.k[0], sys.Derive(x, u, t))
	r.stage(r.k[1], sys, x, r.k[0], u, t+half, half)
	r.stage(r.k[2], sys, x, r.k[1], u, t+half, half)
	r.stage(r.k[3], sys, x, r.k[2], u, t+dt, dt)

	next := make(cosim.State, len(x))
	w := dt / 6
	for i := range x {
		next[i] = x[i] + w*(r.k[0][i]+2*r.k[1][i]+2*r.k[2][i]+r.k[3][i])
	}
	return next
}
