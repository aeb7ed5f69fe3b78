package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/packsim/internal/config"
	"github.com/san-kum/packsim/internal/optim"
)

var (
	sweepParams   []string
	sweepMetric   string
	sweepParallel int
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "run the experiment over a parameter grid",
		Long: "Runs one simulation per grid point and reports the point with the\n" +
			"smallest metric. Parameters: " + strings.Join(optim.ParamNames(), ", "),
		Args: cobra.NoArgs,
		RunE: runSweep,
	}
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().StringArrayVar(&sweepParams, "param", nil, "name=v1,v2,... (repeatable)")
	cmd.Flags().StringVar(&sweepMetric, "metric", "current_spread_a", "metric to minimise")
	cmd.Flags().IntVar(&sweepParallel, "parallel", 0, "trials run at once (0 = all CPUs)")
	return cmd
}

func parseParam(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok || name == "" || list == "" {
		return "", nil, fmt.Errorf("invalid --param %q, want name=v1,v2", s)
	}
	var vals []float64
	for _, field := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return "", nil, fmt.Errorf("invalid value in --param %q: %w", s, err)
		}
		vals = append(vals, v)
	}
	return strings.TrimSpace(name), vals, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	if len(sweepParams) == 0 {
		return fmt.Errorf("give at least one --param")
	}
	names := make([]string, 0, len(sweepParams))
	ranges := make([][]float64, 0, len(sweepParams))
	for _, s := range sweepParams {
		name, vals, err := parseParam(s)
		if err != nil {
			return err
		}
		names = append(names, name)
		ranges = append(ranges, vals)
	}

	g, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}
	g.SetParallel(sweepParallel)

	base := func() (*config.Config, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		// Trials already run side by side.
		cfg.Workers = 1
		return cfg, nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("sweeping %d points, minimising %s...\n", len(g.Points()), sweepMetric)
	res, searchErr := g.Search(ctx, optim.ConfigBuilder(base, slog.Default()), sweepMetric)
	if res == nil {
		return searchErr
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\t"+strings.ToUpper(sweepMetric))
	for _, tr := range res.Trials {
		cols := make([]string, 0, len(names)+1)
		for _, name := range names {
			cols = append(cols, strconv.FormatFloat(tr.Params[name], 'g', -1, 64))
		}
		if tr.Err != nil {
			cols = append(cols, "error: "+tr.Err.Error())
		} else {
			cols = append(cols, fmt.Sprintf("%.6f", tr.Value))
		}
		fmt.Fprintln(w, strings.Join(cols, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if res.Best == nil {
		if searchErr != nil {
			return searchErr
		}
		return fmt.Errorf("every trial failed")
	}
	fmt.Printf("\nbest: %s = %.6f at", sweepMetric, res.Best.Value)
	for _, name := range names {
		fmt.Printf(" %s=%g", name, res.Best.Params[name])
	}
	fmt.Println()
	return searchErr
}
