package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/restframe/internal/monitoring"
)

// HTMLFile is the dashboard file name inside a report directory.
const HTMLFile = "report.html"

func barChart(h Histogram) *charts.Bar {
	bins := h.H.Binning.Bins
	x := make([]string, len(bins))
	y := make([]opts.BarData, len(bins))
	for i, b := range bins {
		x[i] = fmt.Sprintf("%.4g", b.XMid())
		y[i] = opts.BarData{Value: b.SumW()}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: h.Title(), Subtitle: h.Summary()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: h.Label(), NameLocation: "middle", NameGap: 30}),
	)
	bar.SetXAxis(x).AddSeries(h.Column, y)
	return bar
}

// WriteHTML renders every histogram as a bar chart on a single page.
func WriteHTML(w io.Writer, title string, hists []Histogram) error {
	page := components.NewPage()
	page.PageTitle = title
	for _, h := range hists {
		page.AddCharts(barChart(h))
	}
	return page.Render(w)
}

// Write renders the PNG plots and the HTML dashboard of c into dir.
func Write(dir, title string, c *Collector) error {
	hists := c.Histograms()
	if len(hists) == 0 {
		monitoring.Logf("No histogrammed values, skipping report")
		return nil
	}

	paths, err := WritePNGs(dir, hists)
	if err != nil {
		return err
	}
	monitoring.Debugf("Wrote %d plots to %s", len(paths), dir)

	file := filepath.Join(dir, HTMLFile)
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("create %s: %w", file, err)
	}
	if err := WriteHTML(f, title, hists); err != nil {
		f.Close()
		return fmt.Errorf("render %s: %w", file, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	monitoring.Logf("Report written to %s", file)
	return nil
}
