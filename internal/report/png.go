package report

import (
	"fmt"
	"os"
	"path/filepath"

	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
)

// WritePNGs saves one histogram plot per entry of hists into dir and
// returns the written paths.
func WritePNGs(dir string, hists []Histogram) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}

	paths := make([]string, 0, len(hists))
	for _, h := range hists {
		p := plot.New()
		p.Title.Text = h.Title()
		p.X.Label.Text = h.Label()
		p.Y.Label.Text = "Entries"

		hp := hplot.NewH1D(h.H)
		hp.Infos.Style = hplot.HInfoSummary
		p.Add(hp)

		file := filepath.Join(dir, h.Name()+".png")
		if err := p.Save(6*vg.Inch, 4*vg.Inch, file); err != nil {
			return paths, fmt.Errorf("save %s: %w", file, err)
		}
		paths = append(paths, file)
	}
	return paths, nil
}
