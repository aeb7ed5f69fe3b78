package netlist

import (
	"fmt"
	"math"
)

// Validate checks the structural invariants the circuit solver relies on:
// exactly one current source, at least one cell, positive resistances, no
// self loops, every non-ground node shared by at least two branches, and a
// single connected component that includes ground.
func (nl *Netlist) Validate() error {
	if len(nl.Elements) == 0 {
		return fmt.Errorf("%w: empty netlist", ErrTopology)
	}

	sources := 0
	degree := make(map[int]int)
	for i, e := range nl.Elements {
		if _, ok := KindOf(e.Desc); !ok {
			return fmt.Errorf("%w: row %d: unknown element %q", ErrTopology, i, e.Desc)
		}
		if e.Node1 < 0 || e.Node2 < 0 {
			return fmt.Errorf("%w: row %d (%s): negative node", ErrTopology, i, e.Desc)
		}
		if e.Node1 == e.Node2 {
			return fmt.Errorf("%w: row %d (%s): both ends on node %d", ErrTopology, i, e.Desc, e.Node1)
		}
		if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
			return fmt.Errorf("%w: row %d (%s): non-finite value", ErrTopology, i, e.Desc)
		}
		kind := e.Kind()
		if kind.IsResistor() && e.Value <= 0 {
			return fmt.Errorf("%w: row %d (%s): resistance must be positive, got %g", ErrTopology, i, e.Desc, e.Value)
		}
		if kind == KindCurrentSource {
			sources++
		}
		degree[e.Node1]++
		degree[e.Node2]++
	}

	if len(nl.cells) == 0 {
		return fmt.Errorf("%w: no cell voltage sources", ErrTopology)
	}
	if sources != 1 {
		return fmt.Errorf("%w: expected exactly one current source, found %d", ErrTopology, sources)
	}
	if degree[0] == 0 {
		return fmt.Errorf("%w: no element connects to ground", ErrTopology)
	}
	for n, d := range degree {
		if n != 0 && d < 2 {
			return fmt.Errorf("%w: node %d is dangling (%d branch)", ErrTopology, n, d)
		}
	}

	uf := newUnionFind(nl.maxNode + 1)
	for _, e := range nl.Elements {
		uf.union(e.Node1, e.Node2)
	}
	root := uf.find(0)
	for n := range degree {
		if uf.find(n) != root {
			return fmt.Errorf("%w: node %d is not connected to ground", ErrTopology, n)
		}
	}
	return nil
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[ra] = rb
	}
}
