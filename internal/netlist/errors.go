package netlist

import "errors"

var (
	// ErrTopology indicates an invalid pack shape or a netlist whose graph
	// cannot carry current between every node and ground.
	ErrTopology = errors.New("netlist: invalid topology")

	// ErrNetlistFormat indicates malformed external netlist input.
	ErrNetlistFormat = errors.New("netlist: malformed netlist")
)
