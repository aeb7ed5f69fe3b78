// Package config loads pack run descriptions from YAML and assembles the
// simulator they describe.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/packsim/internal/cellmodel"
	"github.com/san-kum/packsim/internal/cosim"
	"github.com/san-kum/packsim/internal/experiment"
	"github.com/san-kum/packsim/internal/integrators"
	"github.com/san-kum/packsim/internal/metrics"
	"github.com/san-kum/packsim/internal/netlist"
)

const (
	DefaultPeriod    = "10 seconds"
	DefaultCellModel = "thevenin"
	DefaultHeat      = 10.0
)

// PerCell is either one value shared by every cell or one value per cell.
type PerCell struct {
	Value  *float64  `yaml:"value,omitempty"`
	Values []float64 `yaml:"values,omitempty"`
}

// UnmarshalYAML accepts a bare number as well as the mapping form, and
// replaces rather than merges with any default.
func (p *PerCell) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var v float64
		if err := node.Decode(&v); err != nil {
			return err
		}
		*p = PerCell{Value: &v}
		return nil
	}
	type plain PerCell
	var raw plain
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*p = PerCell(raw)
	return nil
}

func (p PerCell) IsSet() bool { return p.Value != nil || len(p.Values) > 0 }

// Expand returns one value per cell, nil when unset.
func (p PerCell) Expand(cells int) ([]float64, error) {
	switch {
	case p.Value != nil && len(p.Values) > 0:
		return nil, fmt.Errorf("%w: give either value or values, not both", cosim.ErrConfiguration)
	case p.Value != nil:
		out := make([]float64, cells)
		for i := range out {
			out[i] = *p.Value
		}
		return out, nil
	case len(p.Values) > 0:
		if len(p.Values) != cells {
			return nil, fmt.Errorf("%w: %d values for %d cells", cosim.ErrConfiguration, len(p.Values), cells)
		}
		return append([]float64(nil), p.Values...), nil
	}
	return nil, nil
}

type Config struct {
	Name                 string             `yaml:"name,omitempty"`
	Topology             netlist.Topology   `yaml:"topology"`
	Netlist              string             `yaml:"netlist,omitempty"`
	NetlistValues        map[string]float64 `yaml:"netlist_values,omitempty"`
	Experiment           experiment.Script  `yaml:"experiment"`
	Outputs              []string           `yaml:"outputs,omitempty"`
	HeatTransfer         PerCell            `yaml:"heat_transfer,omitempty"`
	InitialConcentration PerCell            `yaml:"initial_concentration,omitempty"`
	CellModel            string             `yaml:"cell_model"`
	Integrator           string             `yaml:"integrator,omitempty"`
	Cell                 cellmodel.Params   `yaml:"cell"`
	Metrics              []string           `yaml:"metrics,omitempty"`
	Workers              int                `yaml:"workers"`
}

// DefaultConfig is the 16p2s pack through a charge/rest/discharge/rest
// cycle.
func DefaultConfig() *Config {
	heat := DefaultHeat
	return &Config{
		Name:     "16p2s",
		Topology: netlist.Topology{Np: 16, Ns: 2, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 80},
		Experiment: experiment.Script{
			Period: DefaultPeriod,
			Steps: []string{
				"Charge at 50 A for 30 minutes",
				"Rest for 15 minutes",
				"Discharge at 50 A for 30 minutes",
				"Rest for 30 minutes",
			},
		},
		Outputs:      []string{cellmodel.VarTemperature, cellmodel.VarSoC},
		HeatTransfer: PerCell{Value: &heat},
		CellModel:    DefaultCellModel,
		Integrator:   "rk4",
		Cell:         cellmodel.DefaultParams(),
		Metrics:      metrics.Names(),
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", cosim.ErrConfiguration, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks everything that can be checked without building the
// pack. Per-cell vector lengths are checked once the cell count is known.
func (c *Config) Validate() error {
	wrap := func(err error) error { return fmt.Errorf("%w: %w", cosim.ErrConfiguration, err) }

	if c.Netlist == "" {
		if _, err := netlist.BuildGrid(c.Topology); err != nil {
			return wrap(err)
		}
	}
	if _, err := c.Experiment.Phases(); err != nil {
		return wrap(err)
	}
	if _, err := cellmodel.NewRegistry().Factory(c.CellModel, c.Cell); err != nil {
		return wrap(err)
	}
	if c.Integrator != "" {
		if _, err := integrators.New(c.Integrator); err != nil {
			return wrap(err)
		}
	}
	for _, name := range c.Metrics {
		if _, err := metrics.New(name); err != nil {
			return wrap(err)
		}
	}
	for _, name := range c.Outputs {
		if name == "" {
			return fmt.Errorf("%w: empty output name", cosim.ErrConfiguration)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", cosim.ErrConfiguration, c.Workers)
	}
	for _, p := range []PerCell{c.HeatTransfer, c.InitialConcentration} {
		if p.Value != nil && len(p.Values) > 0 {
			return fmt.Errorf("%w: give either value or values, not both", cosim.ErrConfiguration)
		}
		if p.Value != nil && (math.IsNaN(*p.Value) || math.IsInf(*p.Value, 0)) {
			return fmt.Errorf("%w: per-cell value must be finite", cosim.ErrConfiguration)
		}
	}
	return nil
}

// BuildNetlist reads the netlist file when one is configured and lays out
// the grid topology otherwise.
func (c *Config) BuildNetlist() (*netlist.Netlist, error) {
	if c.Netlist != "" {
		return netlist.ParseFile(c.Netlist, netlist.WithValues(c.NetlistValues))
	}
	return netlist.BuildGrid(c.Topology)
}

func (c *Config) BuildStepper() (*experiment.Stepper, error) {
	return c.Experiment.Stepper()
}

func (c *Config) CellFactory() (cosim.CellFactory, error) {
	params := c.Cell
	if c.Integrator != "" {
		params.Thevenin.Integrator = c.Integrator
	}
	return cellmodel.NewRegistry().Factory(c.CellModel, params)
}

// Build assembles a simulator ready to run.
func (c *Config) Build(logger *slog.Logger) (*cosim.Simulator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	nl, err := c.BuildNetlist()
	if err != nil {
		return nil, err
	}
	stepper, err := c.BuildStepper()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cosim.ErrConfiguration, err)
	}
	factory, err := c.CellFactory()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cosim.ErrConfiguration, err)
	}

	opts := []cosim.Option{
		cosim.WithLogger(logger),
		cosim.WithWorkers(c.Workers),
		cosim.WithOutputs(c.Outputs...),
	}
	heat, err := c.HeatTransfer.Expand(nl.CellCount())
	if err != nil {
		return nil, err
	}
	if heat != nil {
		opts = append(opts, cosim.WithHeatTransfer(heat))
	}
	conc, err := c.InitialConcentration.Expand(nl.CellCount())
	if err != nil {
		return nil, err
	}
	if conc != nil {
		opts = append(opts, cosim.WithInitialConcentration(conc))
	}

	sim, err := cosim.New(nl, stepper, factory, opts...)
	if err != nil {
		return nil, err
	}
	for _, name := range c.Metrics {
		m, err := metrics.New(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", cosim.ErrConfiguration, err)
		}
		sim.AddMetric(m)
	}
	return sim, nil
}
