// Package metrics summarises a pack run while it is being simulated.
package metrics

import (
	"fmt"
	"sort"

	"github.com/san-kum/packsim/internal/cosim"
)

var registry = map[string]func() cosim.Metric{
	"throughput_ah":      func() cosim.Metric { return NewThroughput() },
	"net_energy_wh":      func() cosim.Metric { return NewEnergy() },
	"current_spread_a":   func() cosim.Metric { return NewCurrentSpread() },
	"voltage_range_v":    func() cosim.Metric { return NewVoltageRange() },
	"peak_temperature_k": func() cosim.Metric { return NewPeakTemperature() },
}

func New(name string) (cosim.Metric, error) {
	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric: %s", name)
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
