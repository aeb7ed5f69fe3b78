// Package netlist describes a battery pack as a flat table of circuit
// elements.
//
// Every row is a two-terminal element: a resistor, a voltage source
// standing in for one cell, or the current source carrying the pack demand.
// Rows are identified by a description tag whose prefix selects the element
// kind, following the liionpack naming scheme:
//
//	V*    cell voltage source, Node1 is the positive side
//	I*    pack current source, drawing current out of Node1 into Node2
//	Rb*   busbar resistor (Rbn negative bus, Rbp positive bus)
//	Rc*   cell interconnect resistor
//	Ri*   cell internal resistance
//	Rl*   terminal lead resistor
//	R*    any other resistor
//
// Node 0 is the reference node.
package netlist

import (
	"fmt"
	"strings"
)

type Kind int

const (
	KindResistor Kind = iota
	KindBusbar
	KindInterconnect
	KindInternal
	KindLead
	KindVoltageSource
	KindCurrentSource
)

func (k Kind) String() string {
	switch k {
	case KindBusbar:
		return "busbar"
	case KindInterconnect:
		return "interconnect"
	case KindInternal:
		return "internal"
	case KindLead:
		return "lead"
	case KindVoltageSource:
		return "voltage source"
	case KindCurrentSource:
		return "current source"
	default:
		return "resistor"
	}
}

// IsResistor reports whether elements of this kind are stamped as
// conductances.
func (k Kind) IsResistor() bool {
	return k != KindVoltageSource && k != KindCurrentSource
}

// overrideKey is the value-override key accepted by WithValues.
func (k Kind) overrideKey() string {
	switch k {
	case KindBusbar:
		return "Rb"
	case KindInterconnect:
		return "Rc"
	case KindInternal:
		return "Ri"
	case KindLead:
		return "Rl"
	case KindVoltageSource:
		return "V"
	case KindCurrentSource:
		return "I"
	default:
		return ""
	}
}

// KindOf classifies a description tag. The second return is false when the
// tag does not name a supported element.
func KindOf(desc string) (Kind, bool) {
	if desc == "" {
		return 0, false
	}
	switch desc[0] {
	case 'V', 'v':
		return KindVoltageSource, true
	case 'I', 'i':
		return KindCurrentSource, true
	case 'R', 'r':
		if len(desc) < 2 {
			return KindResistor, true
		}
		switch desc[1] {
		case 'b', 'B':
			return KindBusbar, true
		case 'c', 'C':
			return KindInterconnect, true
		case 'i', 'I':
			return KindInternal, true
		case 'l', 'L':
			return KindLead, true
		}
		return KindResistor, true
	}
	return 0, false
}

// Element is one row of the netlist.
type Element struct {
	Desc  string
	Node1 int
	Node2 int
	Value float64
}

func (e Element) Kind() Kind {
	k, _ := KindOf(e.Desc)
	return k
}

func (e Element) String() string {
	return fmt.Sprintf("%s %d %d %g", e.Desc, e.Node1, e.Node2, e.Value)
}

// Netlist is an indexed table of elements. Cell k is the k-th voltage
// source row in table order.
type Netlist struct {
	Elements []Element

	cells    []int
	source   int
	internal []float64
	maxNode  int
}

// New indexes elements. It does not validate them; see Validate.
func New(elements []Element) *Netlist {
	nl := &Netlist{
		Elements: elements,
		source:   -1,
	}
	nl.index()
	return nl
}

func (nl *Netlist) index() {
	nl.cells = nl.cells[:0]
	nl.source = -1
	nl.maxNode = 0
	sources := 0
	for i, e := range nl.Elements {
		switch e.Kind() {
		case KindVoltageSource:
			nl.cells = append(nl.cells, i)
		case KindCurrentSource:
			if sources == 0 {
				nl.source = i
			}
			sources++
		}
		nl.maxNode = max(nl.maxNode, e.Node1, e.Node2)
	}

	nl.internal = make([]float64, len(nl.cells))
	degree := make(map[int]int)
	for _, e := range nl.Elements {
		degree[e.Node1]++
		degree[e.Node2]++
	}
	used := make(map[int]bool)
	for k, row := range nl.cells {
		if i, ok := nl.internalFor(row, degree, used); ok {
			used[i] = true
			nl.internal[k] = nl.Elements[i].Value
		}
	}
}

// internalFor picks the internal resistance in series with the cell at row:
// the Ri row with the same index tag (Ri3 for V3), else an unused one on a
// node only the two of them touch, else the first one touching the cell.
func (nl *Netlist) internalFor(row int, degree map[int]int, used map[int]bool) (int, bool) {
	v := nl.Elements[row]
	var candidates []int
	for i, e := range nl.Elements {
		if e.Kind() == KindInternal && (touches(e, v.Node1) || touches(e, v.Node2)) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}

	if tag := v.Desc[1:]; tag != "" {
		for _, i := range candidates {
			if nl.Elements[i].Desc[2:] == tag {
				return i, true
			}
		}
	}
	for _, node := range [2]int{v.Node1, v.Node2} {
		if degree[node] != 2 {
			continue
		}
		for _, i := range candidates {
			if !used[i] && touches(nl.Elements[i], node) {
				return i, true
			}
		}
	}
	return candidates[0], true
}

func touches(e Element, node int) bool {
	return node != 0 && (e.Node1 == node || e.Node2 == node)
}

// Cells returns the row index of every cell voltage source, ordered by
// cell index. The slice must not be modified.
func (nl *Netlist) Cells() []int { return nl.cells }

func (nl *Netlist) CellCount() int { return len(nl.cells) }

// CurrentSource returns the row of the pack current source.
func (nl *Netlist) CurrentSource() (int, bool) {
	return nl.source, nl.source >= 0
}

// Terminals returns the positive and negative pack terminal nodes, taken
// from the current source row.
func (nl *Netlist) Terminals() (pos, neg int, ok bool) {
	if nl.source < 0 {
		return 0, 0, false
	}
	e := nl.Elements[nl.source]
	return e.Node1, e.Node2, true
}

// MaxNode is the largest node number referenced by any element.
func (nl *Netlist) MaxNode() int { return nl.maxNode }

// InternalResistance is the value of the Ri element adjacent to cell k,
// or 0 if the cell has none.
func (nl *Netlist) InternalResistance(k int) float64 {
	if k < 0 || k >= len(nl.internal) {
		return 0
	}
	return nl.internal[k]
}

// Count returns the number of elements of the given kind.
func (nl *Netlist) Count(kind Kind) int {
	n := 0
	for _, e := range nl.Elements {
		if e.Kind() == kind {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (nl *Netlist) Clone() *Netlist {
	elements := make([]Element, len(nl.Elements))
	copy(elements, nl.Elements)
	return New(elements)
}

func (nl *Netlist) String() string {
	var sb strings.Builder
	for _, e := range nl.Elements {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
