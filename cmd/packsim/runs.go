package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/packsim/internal/export"
	"github.com/san-kum/packsim/internal/output"
	"github.com/san-kum/packsim/internal/storage"
)

// maxPlotCells bounds how many cells share one terminal chart.
const maxPlotCells = 8

func openStore() (*storage.Store, error) {
	return storage.Open(dataDir)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tLAYOUT\tCELLS\tSAMPLES\tSTATUS")
	for _, run := range runs {
		status := "complete"
		if !run.Complete {
			status = "partial"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%dp%ds\t%d\t%d\t%s\n",
			run.ID,
			run.Name,
			run.CreatedAt.Format("2006-01-02 15:04:05"),
			run.Np,
			run.Ns,
			run.Cells,
			run.Samples,
			status,
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.Load(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", run.ID)
	fmt.Printf("name: %s\n", run.Name)
	fmt.Printf("created: %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("layout: %dp%ds (%d cells)\n", run.Np, run.Ns, run.Cells)
	fmt.Printf("samples: %d\n", run.Samples)
	fmt.Printf("complete: %v\n", run.Complete)
	if run.Error != "" {
		fmt.Printf("error: %s\n", run.Error)
	}
	fmt.Println("\nvariables:")
	for _, name := range run.Variables {
		fmt.Printf("  %s\n", name)
	}
	printMetrics(run.Metrics)
	if run.Config != "" {
		fmt.Printf("\nconfig:\n%s", run.Config)
	}
	return nil
}

func loadSeries(id string) (*output.Series, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.LoadSeries(id)
}

func plotRun(cmd *cobra.Command, args []string) error {
	series, err := loadSeries(args[0])
	if err != nil {
		return err
	}
	if series.Len() == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", args[0])
	fmt.Printf("samples: %d, %.0f s\n\n", series.Len(), series.Time[series.Len()-1])

	if variable == "" {
		for _, name := range series.PackNames() {
			graph := asciigraph.Plot(series.Pack[name],
				asciigraph.Height(10),
				asciigraph.Width(80),
				asciigraph.Caption(name),
			)
			fmt.Println(graph)
			fmt.Println()
		}
		return nil
	}

	cells := []int{cell}
	if cell < 0 {
		cells = cells[:0]
		for k := 0; k < series.CellCount && k < maxPlotCells; k++ {
			cells = append(cells, k)
		}
	}
	data := make([][]float64, 0, len(cells))
	for _, k := range cells {
		col, err := series.Column(variable, k)
		if err != nil {
			return err
		}
		data = append(data, col)
	}

	caption := variable
	if len(cells) == 1 {
		caption = fmt.Sprintf("%s, cell %d", variable, cells[0])
	} else if len(cells) < series.CellCount {
		caption = fmt.Sprintf("%s, cells 0-%d of %d", variable, len(cells)-1, series.CellCount)
	}
	graph := asciigraph.PlotMany(data,
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
	fmt.Println(graph)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	series, err := loadSeries(args[0])
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "json":
		if outPath == "" {
			return export.WriteJSON(os.Stdout, series)
		}
		if err := export.WriteJSONFile(outPath, series); err != nil {
			return err
		}
	case "png", "svg":
		if outPath == "" {
			outPath = args[0] + "." + strings.ToLower(format)
		}
		if variable != "" {
			err = export.CellsPNG(outPath, series, variable)
		} else {
			err = export.PackPNG(outPath, series)
		}
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format: %s (json, png, svg)", format)
	}
	fmt.Printf("exported to %s\n", outPath)
	return nil
}

func deleteRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}
