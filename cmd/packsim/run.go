package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/packsim/internal/config"
	"github.com/san-kum/packsim/internal/output"
	"github.com/san-kum/packsim/internal/storage"
	"github.com/san-kum/packsim/internal/tui"
)

func loadConfig() (*config.Config, error) {
	switch {
	case configFile != "" && preset != "":
		return nil, fmt.Errorf("use either --config or --preset")
	case configFile != "":
		return config.Load(configFile)
	case preset != "":
		cfg := config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (see packsim presets)", preset)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func runPack(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = workers
	}

	logger := slog.Default()
	if live {
		// Log lines would tear the live view.
		logger = slog.New(slog.DiscardHandler)
	}
	sim, err := cfg.Build(logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("%dp%ds", cfg.Topology.Np, cfg.Topology.Ns)
	}

	if !live {
		fmt.Printf("running %s: %d cells, %d samples...\n", name, sim.Netlist().CellCount(), sim.Stepper().Total())
	}
	start := time.Now()

	var series *output.Series
	var runErr error
	if live {
		series, runErr = tui.Run(ctx, sim, name)
	} else {
		series, runErr = sim.Run(ctx)
	}
	elapsed := time.Since(start)

	if series == nil || series.Len() == 0 {
		return runErr
	}

	fmt.Printf("completed in %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("samples: %d (complete: %v)\n", series.Len(), series.Complete)
	printMetrics(series.Metrics)

	if !noSave {
		yaml, err := cfg.Marshal()
		if err != nil {
			return err
		}
		st, err := storage.Open(dataDir)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.Save(storage.Run{
			Name:   name,
			Np:     cfg.Topology.Np,
			Ns:     cfg.Topology.Ns,
			Config: string(yaml),
		}, series)
		if err != nil {
			return err
		}
		fmt.Printf("run id: %s\n", run.ID)
	}
	return runErr
}

func printMetrics(metrics map[string]float64) {
	if len(metrics) == 0 {
		return
	}
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nmetrics:")
	for _, name := range names {
		fmt.Printf("  %s: %.6f\n", name, metrics[name])
	}
}
