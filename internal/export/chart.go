package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/san-kum/packsim/internal/output"
)

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 4 * vg.Inch

	// Cells beyond this many share the plot without legend entries.
	maxLegend = 8
)

func timeAxis(p *plot.Plot, s *output.Series) {
	p.X.Label.Text = "Time [s]"
	if n := s.Len(); n > 0 {
		p.X.Min, p.X.Max = 0, s.Time[n-1]
	}
}

func xys(t, v []float64) plotter.XYs {
	pts := make(plotter.XYs, len(t))
	for i := range t {
		pts[i].X = t[i]
		pts[i].Y = v[i]
	}
	return pts
}

func packPlot(s *output.Series, name string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = name
	p.Y.Label.Text = name
	timeAxis(p, s)

	line, err := plotter.NewLine(xys(s.Time, s.Pack[name]))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	line.LineStyle.Width = vg.Points(1.5)
	line.LineStyle.Color = plotutil.Color(0)
	p.Add(line, plotter.NewGrid())
	return p, nil
}

// CellsPlot draws one line per cell for a per-cell variable.
func CellsPlot(s *output.Series, name string) (*plot.Plot, error) {
	if _, ok := s.Variable(name); !ok {
		return nil, fmt.Errorf("%w: %q", output.ErrMissingVariable, name)
	}
	p := plot.New()
	p.Title.Text = name
	p.Y.Label.Text = name
	p.Legend.Top = true
	timeAxis(p, s)
	p.Add(plotter.NewGrid())

	for k := 0; k < s.CellCount; k++ {
		col, err := s.Column(name, k)
		if err != nil {
			return nil, err
		}
		line, err := plotter.NewLine(xys(s.Time, col))
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", k, err)
		}
		line.LineStyle.Color = plotutil.Color(k)
		p.Add(line)
		if s.CellCount <= maxLegend {
			p.Legend.Add(fmt.Sprintf("cell %d", k), line)
		}
	}
	return p, nil
}

// WritePack renders pack voltage above pack current. format is any format
// gonum/plot can write, such as "png" or "svg".
func WritePack(w io.Writer, s *output.Series, format string) error {
	if s.Len() == 0 {
		return fmt.Errorf("export: series has no samples")
	}
	voltage, err := packPlot(s, output.PackVoltage)
	if err != nil {
		return err
	}
	current, err := packPlot(s, output.PackCurrent)
	if err != nil {
		return err
	}

	c, err := draw.NewFormattedCanvas(chartWidth, 2*chartHeight, format)
	if err != nil {
		return err
	}
	plots := [][]*plot.Plot{{voltage}, {current}}
	tiles := draw.Tiles{
		Rows: 2,
		Cols: 1,
		PadX: vg.Millimeter,
		PadY: 4 * vg.Millimeter,
	}
	canvases := plot.Align(plots, tiles, draw.New(c))
	for j := range plots {
		plots[j][0].Draw(canvases[j][0])
	}
	_, err = c.WriteTo(w)
	return err
}

func WriteCells(w io.Writer, s *output.Series, name, format string) error {
	if s.Len() == 0 {
		return fmt.Errorf("export: series has no samples")
	}
	p, err := CellsPlot(s, name)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(chartWidth, chartHeight, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

func writeFile(path string, fn func(io.Writer, string) error) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		format = "png"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := fn(f, format); err != nil {
		return err
	}
	return f.Close()
}

// PackPNG writes the pack chart; the format follows the file extension.
func PackPNG(path string, s *output.Series) error {
	return writeFile(path, func(w io.Writer, format string) error {
		return WritePack(w, s, format)
	})
}

func CellsPNG(path string, s *output.Series, name string) error {
	return writeFile(path, func(w io.Writer, format string) error {
		return WriteCells(w, s, name, format)
	})
}
