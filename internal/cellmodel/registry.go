package cellmodel

import (
	"fmt"
	"sort"

	"github.com/san-kum/packsim/internal/cosim"
)

// Params holds the parameters of every registered model; each model reads
// its own section.
type Params struct {
	Thevenin TheveninParams `yaml:"thevenin"`
	Resistor ResistorParams `yaml:"resistor"`
}

func DefaultParams() Params {
	return Params{
		Thevenin: DefaultTheveninParams(),
		Resistor: DefaultResistorParams(),
	}
}

type Registry struct {
	models map[string]func(Params) cosim.CellFactory
}

func NewRegistry() *Registry {
	r := &Registry{
		models: make(map[string]func(Params) cosim.CellFactory),
	}
	r.models["thevenin"] = func(p Params) cosim.CellFactory { return NewTheveninFactory(p.Thevenin) }
	r.models["resistor"] = func(p Params) cosim.CellFactory { return NewResistorFactory(p.Resistor) }
	return r
}

// Register adds or replaces a model.
func (r *Registry) Register(name string, fn func(Params) cosim.CellFactory) {
	r.models[name] = fn
}

func (r *Registry) Factory(name string, p Params) (cosim.CellFactory, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown cell model: %s", name)
	}
	return fn(p), nil
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
