package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	dataDir  string
	logLevel string
	logJSON  bool

	configFile string
	preset     string
	live       bool
	workers    int
	noSave     bool

	variable string
	cell     int
	format   string
	outPath  string

	gridNp int
	gridNs int
	gridRb float64
	gridRc float64
	gridRi float64
	gridV  float64
	gridI  float64
)

// main registers the packsim commands and exits with status 1 when the
// chosen command fails.
func main() {
	rootCmd := &cobra.Command{
		Use:           "packsim",
		Short:         "battery pack co-simulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".packsim", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a pack experiment and store the result",
		Args:  cobra.NoArgs,
		RunE:  runPack,
	}
	runCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	runCmd.Flags().BoolVar(&live, "live", false, "show live progress")
	runCmd.Flags().IntVar(&workers, "workers", 0, "cells advanced concurrently (0 = all CPUs)")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the result")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show run details",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&variable, "var", "", "per-cell variable to plot")
	plotCmd.Flags().IntVar(&cell, "cell", -1, "cell index (default: up to 8 cells)")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run data as JSON or a chart",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVar(&format, "format", "json", "json, png or svg")
	exportCmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (json defaults to stdout)")
	exportCmd.Flags().StringVar(&variable, "var", "", "chart a per-cell variable instead of the pack")

	deleteCmd := &cobra.Command{
		Use:   "delete [run_id]",
		Short: "delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteRun,
	}

	netlistCmd := &cobra.Command{
		Use:   "netlist",
		Short: "write the netlist of a parallel/series grid",
		Args:  cobra.NoArgs,
		RunE:  writeNetlist,
	}
	netlistCmd.Flags().IntVar(&gridNp, "np", 16, "cells in parallel")
	netlistCmd.Flags().IntVar(&gridNs, "ns", 2, "cells in series")
	netlistCmd.Flags().Float64Var(&gridRb, "rb", 1e-4, "busbar resistance")
	netlistCmd.Flags().Float64Var(&gridRc, "rc", 1e-2, "connection resistance")
	netlistCmd.Flags().Float64Var(&gridRi, "ri", 5e-2, "cell internal resistance")
	netlistCmd.Flags().Float64Var(&gridV, "v", 3.2, "initial cell voltage")
	netlistCmd.Flags().Float64Var(&gridI, "i", 80, "initial pack current")
	netlistCmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (.csv or text, default stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list cell models, integrators and metrics",
		Args:  cobra.NoArgs,
		RunE:  listModels,
	}

	rootCmd.AddCommand(runCmd, listCmd, showCmd, plotCmd, exportCmd, deleteCmd, netlistCmd, presetsCmd, modelsCmd, newSweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupLogging() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		return fmt.Errorf("invalid log level %q", logLevel)
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
