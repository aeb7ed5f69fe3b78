package netlist

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testTopology(np, ns int) Topology {
	return Topology{Np: np, Ns: ns, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 80}
}

func TestBuildGridCellCount(t *testing.T) {
	for np := 1; np <= 6; np++ {
		for ns := 1; ns <= 4; ns++ {
			nl, err := BuildGrid(testTopology(np, ns))
			if err != nil {
				t.Fatalf("Np=%d Ns=%d: %v", np, ns, err)
			}
			if got := nl.Count(KindVoltageSource); got != np*ns {
				t.Errorf("Np=%d Ns=%d: expected %d voltage sources, got %d", np, ns, np*ns, got)
			}
			if nl.CellCount() != np*ns {
				t.Errorf("Np=%d Ns=%d: CellCount() = %d", np, ns, nl.CellCount())
			}
			if err := nl.Validate(); err != nil {
				t.Errorf("Np=%d Ns=%d: grid failed validation: %v", np, ns, err)
			}
		}
	}
}

func TestBuildGridInvalid(t *testing.T) {
	tests := []struct {
		name string
		topo Topology
	}{
		{"zero np", testTopology(0, 2)},
		{"zero ns", testTopology(2, 0)},
		{"negative np", testTopology(-1, 1)},
		{"zero rb", Topology{Np: 2, Ns: 1, Rb: 0, Rc: 1e-2, Ri: 5e-2, V: 3.2}},
		{"negative ri", Topology{Np: 2, Ns: 1, Rb: 1e-4, Rc: 1e-2, Ri: -1, V: 3.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildGrid(tt.topo)
			if !errors.Is(err, ErrTopology) {
				t.Errorf("expected ErrTopology, got %v", err)
			}
		})
	}
}

func TestBuildGridSingleColumnIgnoresRb(t *testing.T) {
	nl, err := BuildGrid(Topology{Np: 1, Ns: 3, Rb: 0, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 1})
	if err != nil {
		t.Fatalf("single column with Rb=0: %v", err)
	}
	if got := nl.Count(KindBusbar); got != 0 {
		t.Errorf("expected no busbar rows, got %d", got)
	}
	if err := nl.Validate(); err != nil {
		t.Errorf("single column failed validation: %v", err)
	}
}

func TestInternalResistanceOnNegativeSide(t *testing.T) {
	// Two cells in series with Ri below each cell and no interconnect, so
	// V0's positive node also touches Ri1.
	nl := New([]Element{
		{Desc: "Ri0", Node1: 0, Node2: 1, Value: 0.01},
		{Desc: "V0", Node1: 2, Node2: 1, Value: 3.2},
		{Desc: "Ri1", Node1: 2, Node2: 3, Value: 0.02},
		{Desc: "V1", Node1: 4, Node2: 3, Value: 3.2},
		{Desc: "I0", Node1: 4, Node2: 0, Value: 1},
	})
	for k, want := range []float64{0.01, 0.02} {
		if got := nl.InternalResistance(k); got != want {
			t.Errorf("cell %d: InternalResistance() = %g, want %g", k, got, want)
		}
	}
}

func TestBuildGridLayout(t *testing.T) {
	nl, err := BuildGrid(testTopology(2, 1))
	if err != nil {
		t.Fatal(err)
	}

	pos, neg, ok := nl.Terminals()
	if !ok || pos != 6 || neg != 0 {
		t.Errorf("expected terminals (6, 0), got (%d, %d, %v)", pos, neg, ok)
	}
	if nl.Count(KindBusbar) != 2 {
		t.Errorf("expected 2 busbars, got %d", nl.Count(KindBusbar))
	}
	for k := 0; k < nl.CellCount(); k++ {
		if r := nl.InternalResistance(k); r != 5e-2 {
			t.Errorf("cell %d: internal resistance %g", k, r)
		}
	}

	v0 := nl.Elements[nl.Cells()[0]]
	if v0.Node1 != 4 || v0.Node2 != 2 {
		t.Errorf("V0 should run from node 4 to node 2, got %v", v0)
	}
}

func TestSeriesLayers(t *testing.T) {
	layers := SeriesLayers(testTopology(3, 2))
	if len(layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(layers))
	}
	want := [][]int{{0, 2, 4}, {1, 3, 5}}
	for s := range want {
		for i := range want[s] {
			if layers[s][i] != want[s][i] {
				t.Errorf("layer %d: got %v, want %v", s, layers[s], want[s])
			}
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, topo := range []Topology{testTopology(1, 1), testTopology(16, 2), testTopology(3, 5)} {
		nl, err := BuildGrid(topo)
		if err != nil {
			t.Fatal(err)
		}

		var csvBuf, textBuf bytes.Buffer
		if err := WriteCSV(&csvBuf, nl); err != nil {
			t.Fatal(err)
		}
		if err := WriteText(&textBuf, nl); err != nil {
			t.Fatal(err)
		}

		fromCSV, err := Parse(&csvBuf)
		if err != nil {
			t.Fatalf("parse csv: %v", err)
		}
		fromText, err := Parse(&textBuf)
		if err != nil {
			t.Fatalf("parse text: %v", err)
		}
		if !Equal(nl, fromCSV) {
			t.Errorf("csv round trip differs for %+v", topo)
		}
		if !Equal(nl, fromText) {
			t.Errorf("text round trip differs for %+v", topo)
		}
	}
}

func TestEqualIgnoresOrder(t *testing.T) {
	nl, _ := BuildGrid(testTopology(2, 2))
	reversed := make([]Element, len(nl.Elements))
	for i, e := range nl.Elements {
		reversed[len(reversed)-1-i] = e
	}
	if !Equal(nl, New(reversed)) {
		t.Error("reordered netlist should be equal")
	}

	changed := nl.Clone()
	changed.Elements[0].Value *= 2
	if Equal(nl, changed) {
		t.Error("netlists with different values should differ")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing column", "desc,node1,node2\nV0,1,0\n"},
		{"non integer node", "desc,node1,node2,value\nV0,1.5,0,3.2\nRi0,1,0,0.05\nI0,1,0,1\n"},
		{"bad value", "desc,node1,node2,value\nV0,1,0,abc\n"},
		{"unknown element", "desc,node1,node2,value\nX0,1,0,1\n"},
		{"short text line", "V0 1\n"},
		{"disconnected", strings.Join([]string{
			"desc,node1,node2,value",
			"V0,1,0,3.2",
			"Ri0,1,2,0.05",
			"I0,2,0,1",
			"Ri1,3,4,0.05",
			"Ri2,4,3,0.05",
		}, "\n")},
		{"dangling node", strings.Join([]string{
			"desc,node1,node2,value",
			"V0,1,0,3.2",
			"Ri0,1,2,0.05",
			"I0,2,0,1",
			"Rc0,2,3,0.01",
		}, "\n")},
		{"no current source", "desc,node1,node2,value\nV0,1,0,3.2\nRi0,1,0,0.05\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			if !errors.Is(err, ErrNetlistFormat) {
				t.Errorf("expected ErrNetlistFormat, got %v", err)
			}
		})
	}
}

func TestParseValidationKeepsTopologyCause(t *testing.T) {
	input := "desc,node1,node2,value\nV0,1,0,3.2\nRi0,1,2,0.05\nI0,2,0,1\nRc0,2,3,0.01\n"
	_, err := Parse(strings.NewReader(input))
	if !errors.Is(err, ErrTopology) {
		t.Errorf("expected wrapped ErrTopology, got %v", err)
	}
}

func TestParseColumnOrderAndAlias(t *testing.T) {
	input := strings.Join([]string{
		"value,node2,description,node1,comment",
		"3.2,0,V0,1,cell",
		"0.05,2,Ri0,1,",
		"10,0,I0,2,demand",
	}, "\n")
	nl, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if nl.CellCount() != 1 {
		t.Errorf("expected 1 cell, got %d", nl.CellCount())
	}
	if nl.Elements[2].Value != 10 {
		t.Errorf("expected current 10, got %g", nl.Elements[2].Value)
	}
}

func TestParseCSVSkipsAllCommentStyles(t *testing.T) {
	input := strings.Join([]string{
		"* exported pack",
		"; two rows",
		"desc,node1,node2,value",
		"# cell",
		"V0,1,0,3.2",
		"Ri0,1,2,0.05",
		"I0,2,0,1",
	}, "\n")
	for name, parse := range map[string]func() (*Netlist, error){
		"ParseCSV": func() (*Netlist, error) { return ParseCSV(strings.NewReader(input)) },
		"Parse":    func() (*Netlist, error) { return Parse(strings.NewReader(input)) },
	} {
		nl, err := parse()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(nl.Elements) != 3 {
			t.Errorf("%s: expected 3 elements, got %d", name, len(nl.Elements))
		}
	}
}

func TestParseTextWithOverrides(t *testing.T) {
	input := `* two cells in parallel
V0 2 1 Vnom
V1 5 4 Vnom
Rc0 0 1
Rc1 3 4
Ri0 2 6 x
Ri1 5 7 x
Rbn0 0 3 1e-4
Rbp1 6 7 1e-4
I0 6 0
`
	nl, err := ParseText(strings.NewReader(input), WithValues(map[string]float64{
		"V": 3.6, "Ri": 0.02, "Rc": 0.01, "I": 5,
	}))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range nl.Elements {
		var want float64
		switch e.Kind() {
		case KindVoltageSource:
			want = 3.6
		case KindInternal:
			want = 0.02
		case KindInterconnect:
			want = 0.01
		case KindCurrentSource:
			want = 5
		case KindBusbar:
			want = 1e-4
		}
		if e.Value != want {
			t.Errorf("%s: value %g, want %g", e.Desc, e.Value, want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		desc string
		kind Kind
		ok   bool
	}{
		{"V12", KindVoltageSource, true},
		{"I0", KindCurrentSource, true},
		{"Rbn3", KindBusbar, true},
		{"Rbp4", KindBusbar, true},
		{"Rc0", KindInterconnect, true},
		{"Ri7", KindInternal, true},
		{"Rl", KindLead, true},
		{"R1", KindResistor, true},
		{"C1", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		kind, ok := KindOf(tt.desc)
		if ok != tt.ok || (ok && kind != tt.kind) {
			t.Errorf("KindOf(%q) = %v, %v; want %v, %v", tt.desc, kind, ok, tt.kind, tt.ok)
		}
	}
}

func TestBrokenSingleStringIsRejected(t *testing.T) {
	nl, err := BuildGrid(testTopology(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	broken := make([]Element, 0, len(nl.Elements))
	for _, e := range nl.Elements {
		if e.Desc == "Rc1" {
			continue
		}
		broken = append(broken, e)
	}
	if err := New(broken).Validate(); !errors.Is(err, ErrTopology) {
		t.Errorf("expected ErrTopology for broken string, got %v", err)
	}
}
