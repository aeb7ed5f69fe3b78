package optim

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/san-kum/packsim/internal/config"
	"github.com/san-kum/packsim/internal/cosim"
)

type setter struct {
	topology bool
	set      func(*config.Config, float64)
}

var params = map[string]setter{
	"rb":                    {true, func(c *config.Config, v float64) { c.Topology.Rb = v }},
	"rc":                    {true, func(c *config.Config, v float64) { c.Topology.Rc = v }},
	"ri":                    {true, func(c *config.Config, v float64) { c.Topology.Ri = v }},
	"v":                     {true, func(c *config.Config, v float64) { c.Topology.V = v }},
	"capacity_ah":           {false, func(c *config.Config, v float64) { c.Cell.Thevenin.Capacity = v }},
	"initial_soc":           {false, func(c *config.Config, v float64) { c.Cell.Thevenin.InitialSoC = v }},
	"r0":                    {false, func(c *config.Config, v float64) { c.Cell.Thevenin.R0 = v }},
	"heat_transfer":         {false, func(c *config.Config, v float64) { c.HeatTransfer = shared(v) }},
	"initial_concentration": {false, func(c *config.Config, v float64) { c.InitialConcentration = shared(v) }},
}

func shared(v float64) config.PerCell { return config.PerCell{Value: &v} }

func ParamNames() []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply sets one named parameter on cfg. Topology parameters are rejected
// when cfg reads its netlist from a file.
func Apply(cfg *config.Config, name string, v float64) error {
	p, ok := params[name]
	if !ok {
		return fmt.Errorf("%w: unknown parameter %q", ErrGrid, name)
	}
	if p.topology && cfg.Netlist != "" {
		return fmt.Errorf("%w: %q has no effect with a netlist file", ErrGrid, name)
	}
	p.set(cfg, v)
	return nil
}

// ConfigBuilder applies each grid point to a fresh configuration from base.
// Trials run concurrently, so base must not return shared configurations.
func ConfigBuilder(base func() (*config.Config, error), logger *slog.Logger) BuildFunc {
	return func(point map[string]float64) (*cosim.Simulator, error) {
		cfg, err := base()
		if err != nil {
			return nil, err
		}
		for name, v := range point {
			if err := Apply(cfg, name, v); err != nil {
				return nil, err
			}
		}
		return cfg.Build(logger)
	}
}
