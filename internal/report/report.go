// Package report turns the observables written by a processing run into
// diagnostic histograms: one PNG per tree and column, plus a single HTML
// dashboard.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"go-hep.org/x/hep/hbook"

	"github.com/banshee-data/restframe/internal/units"
)

// DefaultBins is the histogram resolution used when none is configured.
const DefaultBins = 60

// DefaultWarmup is the number of values buffered per series before its
// range is frozen and later values are filled directly.
const DefaultWarmup = 10000

// Collector histograms the values of every (tree, column) pair. The first
// warmup values of a series are buffered to choose its range; after that
// the buffer is released and values stream into the histogram, landing in
// the under/overflow when they fall outside the frozen range. It
// implements pipeline.Observer and is safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	bins   int
	warmup int
	series map[seriesKey]*series
	order  []seriesKey
}

type seriesKey struct {
	tree, column string
}

type series struct {
	buf []float64
	h   *hbook.H1D
}

// NewCollector returns a Collector producing histograms with bins bins.
func NewCollector(bins int) *Collector {
	if bins <= 0 {
		bins = DefaultBins
	}
	return &Collector{bins: bins, warmup: DefaultWarmup, series: map[seriesKey]*series{}}
}

// WithWarmup sets the per-series warm-up size; n <= 0 keeps the default.
func (c *Collector) WithWarmup(n int) *Collector {
	if n > 0 {
		c.warmup = n
	}
	return c
}

// Fill records one value. Non-finite values are ignored.
func (c *Collector) Fill(tree, column string, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := seriesKey{tree, column}
	s, ok := c.series[k]
	if !ok {
		s = &series{}
		c.series[k] = s
		c.order = append(c.order, k)
	}
	if s.h != nil {
		s.h.Fill(v, 1)
		return
	}
	s.buf = append(s.buf, v)
	if len(s.buf) >= c.warmup {
		s.h = c.freeze(s.buf)
		s.buf = nil
	}
}

// freeze builds a histogram over the span of vals and fills them.
func (c *Collector) freeze(vals []float64) *hbook.H1D {
	lo, hi := span(vals)
	h := hbook.NewH1D(c.bins, lo, hi)
	for _, v := range vals {
		h.Fill(v, 1)
	}
	return h
}

// Len is the number of series collected so far.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// buffered is the number of values still held in warm-up buffers.
func (c *Collector) buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.series {
		n += len(s.buf)
	}
	return n
}

// Histogram is one filled distribution.
type Histogram struct {
	Tree   string
	Column string
	H      *hbook.H1D
}

// Name is a file-system safe identifier, e.g. TupleB0_DecayTree__mm2.
func (h Histogram) Name() string {
	return sanitize(h.Tree) + "__" + sanitize(h.Column)
}

// Title is the human readable label.
func (h Histogram) Title() string {
	return h.Tree + " : " + h.Column
}

// Label is the axis label of the column, with its unit when known.
func (h Histogram) Label() string {
	if u := units.Of(h.Column); u != "" {
		return h.Column + " [" + u + "]"
	}
	return h.Column
}

// Summary is the entries / mean / std-dev line shown under each chart.
func (h Histogram) Summary() string {
	return fmt.Sprintf("entries=%d mean=%.4g std=%.4g", h.H.Entries(), h.H.XMean(), h.H.XStdDev())
}

// Histograms returns one histogram per series, ordered by tree then column.
// Series still warming up get a range spanning their buffered values.
func (c *Collector) Histograms() []Histogram {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := append([]seriesKey(nil), c.order...)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].tree != keys[j].tree {
			return keys[i].tree < keys[j].tree
		}
		return keys[i].column < keys[j].column
	})

	out := make([]Histogram, 0, len(keys))
	for _, k := range keys {
		s := c.series[k]
		h := s.h
		if h == nil {
			h = c.freeze(s.buf)
		}
		out = append(out, Histogram{Tree: k.tree, Column: k.column, H: h})
	}
	return out
}

// span returns a padded [lo, hi) range containing every value.
func span(vals []float64) (lo, hi float64) {
	lo, hi = vals[0], vals[0]
	for _, v := range vals[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	width := hi - lo
	if width == 0 {
		width = math.Max(math.Abs(lo), 1)
	}
	pad := 0.01 * width
	return lo - pad, hi + pad
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
