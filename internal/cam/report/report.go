// Package report renders a run's analysis series as static PNG plots for
// archival output and as standalone HTML charts for the API.
package report

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/opticam-labs/edgesim/internal/cam/analysis"
)

var (
	remainingColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 255}
	removedColor   = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 255}
	rateColor      = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 255}
	ceilingColor   = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 255}
)

// SavePlots writes volume.png and rates.png under dir, creating it if
// needed. The rate series are evaluated against the history's time axis.
func SavePlots(dir string, h analysis.History, r analysis.Rates) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create plot dir: %w", err)
	}
	if err := saveVolumePlot(filepath.Join(dir, "volume.png"), h); err != nil {
		return err
	}
	return saveRatePlot(filepath.Join(dir, "rates.png"), h.Times, r)
}

func xyPairs(xs, ys []float64) plotter.XYs {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	pts := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		pts[i] = plotter.XY{X: xs[i], Y: ys[i]}
	}
	return pts
}

func addLine(p *plot.Plot, label string, pts plotter.XYs, c color.Color) error {
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func saveVolumePlot(file string, h analysis.History) error {
	p := plot.New()
	p.Title.Text = "Material Volume"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Volume (mm³)"

	if err := addLine(p, "remaining", xyPairs(h.Times, h.Remaining), remainingColor); err != nil {
		return err
	}
	if err := addLine(p, "removed", xyPairs(h.Times, h.Removed), removedColor); err != nil {
		return err
	}
	p.Legend.Top = true

	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save volume plot: %w", err)
	}
	return nil
}

func saveRatePlot(file string, times []float64, r analysis.Rates) error {
	p := plot.New()
	p.Title.Text = "Removal Rate"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Rate (mm³/s)"

	if err := addLine(p, "actual", xyPairs(times, r.PerSecond(times)), rateColor); err != nil {
		return err
	}
	if err := addLine(p, "ceiling", xyPairs(times, r.MaxAllowed), ceilingColor); err != nil {
		return err
	}
	p.Legend.Top = true

	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save rate plot: %w", err)
	}
	return nil
}

func timeLabels(times []float64) []string {
	labels := make([]string, len(times))
	for i, t := range times {
		labels[i] = strconv.FormatFloat(t, 'f', 2, 64)
	}
	return labels
}

func lineData(ys []float64) []opts.LineData {
	data := make([]opts.LineData, len(ys))
	for i, y := range ys {
		data[i] = opts.LineData{Value: y}
	}
	return data
}

// VolumeChartHTML renders the volume history as a standalone HTML line
// chart.
func VolumeChartHTML(w io.Writer, h analysis.History) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Material Volume", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Material Volume", Subtitle: fmt.Sprintf("initial=%.1f mm³", h.InitialVolume)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Volume (mm³)"}),
	)
	line.SetXAxis(timeLabels(h.Times)).
		AddSeries("remaining", lineData(h.Remaining)).
		AddSeries("removed", lineData(h.Removed))
	return line.Render(w)
}

// RateChartHTML renders the per-frame removal rate against its ceiling as a
// standalone HTML line chart.
func RateChartHTML(w io.Writer, r analysis.Rates, times []float64) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Removal Rate", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Removal Rate", Subtitle: "per-frame rate vs configured ceiling"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Rate (mm³/s)"}),
	)
	line.SetXAxis(timeLabels(times)).
		AddSeries("actual", lineData(r.PerSecond(times))).
		AddSeries("ceiling", lineData(r.MaxAllowed))
	return line.Render(w)
}
