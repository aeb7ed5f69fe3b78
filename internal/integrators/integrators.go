// Package integrators provides the fixed and adaptive ODE steppers used by
// the cell models.
package integrators

import (
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/packsim/internal/cosim"
)

var registry = map[string]func() cosim.Integrator{
	"euler": func() cosim.Integrator { return NewEuler() },
	"rk4":   func() cosim.Integrator { return NewRK4() },
	"rk45":  func() cosim.Integrator { return NewRK45() },
}

// New returns a fresh integrator by name.
func New(name string) (cosim.Integrator, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Advance integrates x over dt in equal sub-steps no longer than maxStep.
// Adaptive integrators choose their own steps.
func Advance(integ cosim.Integrator, sys cosim.System, x cosim.State, u cosim.Control, t, dt, maxStep float64) cosim.State {
	if _, ok := integ.(cosim.AdaptiveIntegrator); ok || maxStep <= 0 || dt <= maxStep {
		return integ.Step(sys, x, u, t, dt)
	}
	n := int(math.Ceil(dt / maxStep))
	h := dt / float64(n)
	for i := 0; i < n; i++ {
		x = integ.Step(sys, x, u, t+float64(i)*h, h)
	}
	return x
}
