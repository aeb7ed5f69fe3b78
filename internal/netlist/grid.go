package netlist

import (
	"fmt"
	"math"
)

// Topology parameters of a regular Np x Ns pack.
type Topology struct {
	Np int     `yaml:"np"`
	Ns int     `yaml:"ns"`
	Rb float64 `yaml:"rb"`
	Rc float64 `yaml:"rc"`
	Ri float64 `yaml:"ri"`
	V  float64 `yaml:"v"`
	I  float64 `yaml:"i"`
}

func (t Topology) Cells() int { return t.Np * t.Ns }

func (t Topology) validate() error {
	if t.Np < 1 || t.Ns < 1 {
		return fmt.Errorf("%w: Np and Ns must be at least 1, got Np=%d Ns=%d", ErrTopology, t.Np, t.Ns)
	}
	for _, r := range []struct {
		name  string
		value float64
	}{{"Rb", t.Rb}, {"Rc", t.Rc}, {"Ri", t.Ri}} {
		// a single column has no busbar
		if r.name == "Rb" && t.Np == 1 {
			continue
		}
		if !(r.value > 0) || math.IsInf(r.value, 0) {
			return fmt.Errorf("%w: %s must be positive and finite, got %g", ErrTopology, r.name, r.value)
		}
	}
	return nil
}

// BuildGrid lays the pack out on a grid of Np columns and 3*Ns+1 rows.
// Node numbers are row*Np+col. Row 0 is the negative busbar and node 0 the
// negative terminal; the last row is the positive busbar. Each column
// stacks Ns repetitions of interconnect, cell, internal resistance from the
// bottom up. Both pack terminals sit in column 0.
//
// For Np=2, Ns=1:
//
//	6 --Rbp-- 7      positive bus, I0 from node 6 to ground
//	|Ri       |Ri
//	4         5
//	|V        |V
//	2         3
//	|Rc       |Rc
//	0 --Rbn-- 1      negative bus
func BuildGrid(t Topology) (*Netlist, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	rows := 3*t.Ns + 1
	node := func(row, col int) int { return row*t.Np + col }

	elements := make([]Element, 0, 2*(t.Np-1)+3*t.Cells()+1)

	nb := 0
	for col := 0; col < t.Np-1; col++ {
		elements = append(elements, Element{
			Desc:  fmt.Sprintf("Rbn%d", nb),
			Node1: node(0, col),
			Node2: node(0, col+1),
			Value: t.Rb,
		})
		nb++
	}

	nc, nv, ni := 0, 0, 0
	for col := 0; col < t.Np; col++ {
		for s := 0; s < t.Ns; s++ {
			base := 3 * s
			elements = append(elements,
				Element{
					Desc:  fmt.Sprintf("Rc%d", nc),
					Node1: node(base, col),
					Node2: node(base+1, col),
					Value: t.Rc,
				},
				Element{
					Desc:  fmt.Sprintf("V%d", nv),
					Node1: node(base+2, col),
					Node2: node(base+1, col),
					Value: t.V,
				},
				Element{
					Desc:  fmt.Sprintf("Ri%d", ni),
					Node1: node(base+2, col),
					Node2: node(base+3, col),
					Value: t.Ri,
				},
			)
			nc++
			nv++
			ni++
		}
	}

	for col := 0; col < t.Np-1; col++ {
		elements = append(elements, Element{
			Desc:  fmt.Sprintf("Rbp%d", nb),
			Node1: node(rows-1, col),
			Node2: node(rows-1, col+1),
			Value: t.Rb,
		})
		nb++
	}

	elements = append(elements, Element{
		Desc:  "I0",
		Node1: node(rows-1, 0),
		Node2: 0,
		Value: t.I,
	})

	nl := New(elements)
	if err := nl.Validate(); err != nil {
		return nil, err
	}
	return nl, nil
}

// SeriesLayers groups the cells of a grid netlist by series position: layer
// s holds the Np cells at position s of every string. Every layer carries
// the full pack current.
func SeriesLayers(t Topology) [][]int {
	layers := make([][]int, t.Ns)
	for s := 0; s < t.Ns; s++ {
		layers[s] = make([]int, t.Np)
		for col := 0; col < t.Np; col++ {
			layers[s][col] = col*t.Ns + s
		}
	}
	return layers
}
