package config

import (
	"sort"

	"github.com/san-kum/packsim/internal/netlist"
)

// Presets are named pack layouts; each keeps the default experiment and
// cell model.
var Presets = map[string]netlist.Topology{
	"16p2s": {Np: 16, Ns: 2, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 80},
	"4p1s":  {Np: 4, Ns: 1, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 20},
	"1p4s":  {Np: 1, Ns: 4, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 5},
	"8p4s":  {Np: 8, Ns: 4, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 40},
}

var presetSteps = map[string][]string{
	"4p1s": {"Discharge at 20 A for 1 hour or until 2.8 V", "Rest for 30 minutes"},
	"1p4s": {"Discharge at 5 A for 30 minutes", "Rest for 10 minutes", "Charge at 5 A for 30 minutes or until 3.5 V", "Hold at 14 V for 10 minutes or until 0.5 A"},
}

// GetPreset returns a fresh configuration for the named preset, or nil.
func GetPreset(name string) *Config {
	topo, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Name = name
	cfg.Topology = topo
	if steps, ok := presetSteps[name]; ok {
		cfg.Experiment.Steps = append([]string(nil), steps...)
	}
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
