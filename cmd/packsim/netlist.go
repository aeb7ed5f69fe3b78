package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/san-kum/packsim/internal/cellmodel"
	"github.com/san-kum/packsim/internal/config"
	"github.com/san-kum/packsim/internal/integrators"
	"github.com/san-kum/packsim/internal/metrics"
	"github.com/san-kum/packsim/internal/netlist"
)

func writeNetlist(cmd *cobra.Command, args []string) error {
	nl, err := netlist.BuildGrid(netlist.Topology{
		Np: gridNp,
		Ns: gridNs,
		Rb: gridRb,
		Rc: gridRc,
		Ri: gridRi,
		V:  gridV,
		I:  gridI,
	})
	if err != nil {
		return err
	}

	if outPath == "" {
		return netlist.WriteText(os.Stdout, nl)
	}
	if err := netlist.WriteFile(outPath, nl); err != nil {
		return err
	}
	fmt.Printf("wrote %d elements (%d cells) to %s\n", len(nl.Elements), nl.CellCount(), outPath)
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	fmt.Println("presets:")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Printf("  %-6s %d cells, %d steps\n", name, cfg.Topology.Cells(), len(cfg.Experiment.Steps))
	}
	return nil
}

func listModels(cmd *cobra.Command, args []string) error {
	sections := []struct {
		title string
		names []string
	}{
		{"cell models", cellmodel.NewRegistry().ListModels()},
		{"integrators", integrators.Names()},
		{"metrics", metrics.Names()},
	}
	for i, s := range sections {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("%s:\n", s.title)
		for _, name := range s.names {
			fmt.Printf("  %s\n", name)
		}
	}
	return nil
}
