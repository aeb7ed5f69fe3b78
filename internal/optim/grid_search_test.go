package optim

import (
	"context"
	"errors"
	"testing"

	"github.com/san-kum/packsim/internal/config"
	"github.com/san-kum/packsim/internal/netlist"
)

func smallConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.Name = "2p1s"
	cfg.Topology = netlist.Topology{Np: 2, Ns: 1, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 4}
	cfg.Experiment.Period = "1 minute"
	cfg.Experiment.Steps = []string{"Discharge at 4 A for 10 minutes"}
	cfg.CellModel = "resistor"
	cfg.Outputs = nil
	cfg.Metrics = []string{"net_energy_wh", "current_spread_a"}
	cfg.Workers = 1
	return cfg, nil
}

func TestPoints(t *testing.T) {
	g, err := NewGridSearch([]string{"rc", "rb"}, [][]float64{{1, 2}, {10, 20}})
	if err != nil {
		t.Fatal(err)
	}
	points := g.Points()
	want := [][2]float64{{1, 10}, {1, 20}, {2, 10}, {2, 20}}
	if len(points) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(points))
	}
	for i, w := range want {
		if points[i]["rc"] != w[0] || points[i]["rb"] != w[1] {
			t.Errorf("point %d = %v, want rc=%g rb=%g", i, points[i], w[0], w[1])
		}
	}
}

func TestNewGridSearchErrors(t *testing.T) {
	tests := []struct {
		name   string
		params []string
		ranges [][]float64
	}{
		{"empty", nil, nil},
		{"length mismatch", []string{"rc"}, [][]float64{{1}, {2}}},
		{"no values", []string{"rc"}, [][]float64{{}}},
		{"duplicate", []string{"rc", "rc"}, [][]float64{{1}, {2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewGridSearch(tt.params, tt.ranges); !errors.Is(err, ErrGrid) {
				t.Errorf("expected ErrGrid, got %v", err)
			}
		})
	}
}

func TestSearchPicksLowestMetric(t *testing.T) {
	g, err := NewGridSearch([]string{"rc"}, [][]float64{{0.001, 0.01, 0.05}})
	if err != nil {
		t.Fatal(err)
	}
	g.SetParallel(2)

	res, err := g.Search(context.Background(), ConfigBuilder(smallConfig, nil), "net_energy_wh")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trials) != 3 {
		t.Fatalf("expected 3 trials, got %d", len(res.Trials))
	}
	for i, tr := range res.Trials {
		if tr.Err != nil {
			t.Fatalf("trial %d failed: %v", i, tr.Err)
		}
		if i > 0 && !(tr.Value < res.Trials[i-1].Value) {
			t.Errorf("more connection resistance should deliver less energy: %g then %g", res.Trials[i-1].Value, tr.Value)
		}
	}
	if res.Best == nil || res.Best.Params["rc"] != 0.05 {
		t.Errorf("expected best rc=0.05, got %+v", res.Best)
	}
}

func TestSearchRecordsFailures(t *testing.T) {
	g, err := NewGridSearch([]string{"rc"}, [][]float64{{-1, 0.01}})
	if err != nil {
		t.Fatal(err)
	}
	res, err := g.Search(context.Background(), ConfigBuilder(smallConfig, nil), "current_spread_a")
	if err != nil {
		t.Fatal(err)
	}
	if res.Trials[0].Err == nil {
		t.Error("negative resistance should fail its trial")
	}
	if res.Trials[1].Err != nil {
		t.Errorf("second trial failed: %v", res.Trials[1].Err)
	}
	if res.Best != &res.Trials[1] {
		t.Error("best should be the only successful trial")
	}

	res, err = g.Search(context.Background(), ConfigBuilder(smallConfig, nil), "entropy")
	if err != nil {
		t.Fatal(err)
	}
	if res.Best != nil {
		t.Error("no trial reports the metric, expected no best")
	}
}

func TestSearchCancelled(t *testing.T) {
	g, err := NewGridSearch([]string{"rc"}, [][]float64{{0.01, 0.02}})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := g.Search(ctx, ConfigBuilder(smallConfig, nil), "net_energy_wh")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if res.Best != nil {
		t.Error("cancelled search should have no best trial")
	}
}

func TestApply(t *testing.T) {
	cfg, _ := smallConfig()
	for _, name := range ParamNames() {
		if err := Apply(cfg, name, 0.5); err != nil {
			t.Errorf("Apply(%s): %v", name, err)
		}
	}
	if cfg.Topology.Rc != 0.5 || cfg.Cell.Thevenin.R0 != 0.5 || *cfg.HeatTransfer.Value != 0.5 {
		t.Errorf("parameters not applied: %+v", cfg)
	}

	if err := Apply(cfg, "np", 4); !errors.Is(err, ErrGrid) {
		t.Errorf("expected ErrGrid for unknown parameter, got %v", err)
	}
	cfg.Netlist = "pack.cir"
	if err := Apply(cfg, "rc", 0.1); !errors.Is(err, ErrGrid) {
		t.Errorf("expected ErrGrid for topology parameter with a netlist file, got %v", err)
	}
	if err := Apply(cfg, "r0", 0.1); err != nil {
		t.Errorf("cell parameters should apply with a netlist file: %v", err)
	}
}
