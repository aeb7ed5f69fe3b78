// Package cosim couples the pack circuit with independent per-cell models.
//
// Each sample of the experiment runs the same sequence:
//
//   - the active phase sets the pack demand (current or voltage)
//   - the circuit is solved with every cell's present EMF
//   - every [Cell] advances one period under its solved current, in parallel
//   - the barrier closes, the sample is recorded and cutoffs are checked
//
// # Example
//
//	nl, _ := netlist.BuildGrid(netlist.Topology{Np: 16, Ns: 2, Rb: 1e-4, Rc: 1e-2, Ri: 5e-2, V: 3.2, I: 80})
//	steps, _ := experiment.Parse([]string{"Discharge at 50 A for 30 minutes"}, 10)
//	sim, _ := cosim.New(nl, steps, cellmodel.NewTheveninFactory(cellmodel.DefaultTheveninParams()))
//	series, err := sim.Run(ctx)
//
// # Thread Safety
//
// A Simulator runs one experiment at a time. Cells are only ever advanced
// by one goroutine at a time.
package cosim
