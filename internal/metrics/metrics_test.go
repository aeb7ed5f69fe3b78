package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/packsim/internal/cellmodel"
	"github.com/san-kum/packsim/internal/cosim"
)

func samples() []cosim.Sample {
	return []cosim.Sample{
		{Time: 1800, PackCurrent: -50, PackVoltage: 6.6, CellCurrents: []float64{-3, -3.2}, CellVoltages: []float64{3.30, 3.31},
			Variables: map[string][]float64{cellmodel.VarTemperature: {299, 300}}},
		{Time: 3600, PackCurrent: 50, PackVoltage: 6.2, CellCurrents: []float64{3.5, 2.9}, CellVoltages: []float64{3.10, 3.08},
			Variables: map[string][]float64{cellmodel.VarTemperature: {301, 298.5}}},
	}
}

func TestMetrics(t *testing.T) {
	tests := []struct {
		metric cosim.Metric
		want   float64
	}{
		{NewThroughput(), 50},
		{NewEnergy(), (6.6*-50 + 6.2*50) * 0.5},
		{NewCurrentSpread(), 0.6},
		{NewVoltageRange(), 0.02},
		{NewPeakTemperature(), 301},
	}

	for _, tt := range tests {
		t.Run(tt.metric.Name(), func(t *testing.T) {
			for _, s := range samples() {
				tt.metric.Observe(s)
			}
			if got := tt.metric.Value(); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Value() = %g, want %g", got, tt.want)
			}
			tt.metric.Reset()
			if got := tt.metric.Value(); got != 0 {
				t.Errorf("after Reset Value() = %g, want 0", got)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	for _, name := range Names() {
		m, err := New(name)
		if err != nil {
			t.Fatal(err)
		}
		if m.Name() != name {
			t.Errorf("metric registered as %q reports name %q", name, m.Name())
		}
	}
	if _, err := New("stability"); err == nil {
		t.Error("expected error for unknown metric")
	}
}
