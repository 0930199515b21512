package pipeline

import (
	"context"
	"fmt"

	"github.com/banshee-data/restframe/internal/ntuple"
)

// Policy decides what happens to an entry with a degenerate quantity.
type Policy int

const (
	// Skip leaves the entry out of the output tree.
	Skip Policy = iota
	// Flag writes the entry with Sentinel in every failed column and kin_ok = 0.
	Flag
)

// DefaultSentinel marks failed columns under the Flag policy.
const DefaultSentinel = -9999.0

// OKColumn is 1 when every computed column of the entry is valid.
const OKColumn = "kin_ok"

func (p Policy) String() string {
	switch p {
	case Skip:
		return "skip"
	case Flag:
		return "flag"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps a configuration name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "skip":
		return Skip, nil
	case "flag":
		return Flag, nil
	default:
		return 0, fmt.Errorf("unknown degenerate policy %q (want skip or flag)", name)
	}
}

// EventIssue describes one skipped or flagged entry.
type EventIssue struct {
	Tree        string
	Entry       int64
	RunNumber   int64
	EventNumber int64
	Reason      string
	Flagged     bool
}

// TreeSummary is the outcome of processing one tree.
type TreeSummary struct {
	Tree          string
	Mode          string
	ReferenceMass float64
	Entries       int64
	Written       int64
	Skipped       int64
	Flagged       int64
	PoolSize      int
	Columns       []string
}

// Recorder persists per-tree outcomes. Implementations must not retain the
// issue or summary beyond the call.
type Recorder interface {
	RecordEvent(ctx context.Context, issue EventIssue) error
	RecordTree(ctx context.Context, summary TreeSummary) error
}

// Observer receives every valid value written to a histogrammed column.
type Observer interface {
	Fill(tree, column string, v float64)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordEvent(context.Context, EventIssue) error { return nil }
func (NopRecorder) RecordTree(context.Context, TreeSummary) error { return nil }

type nopObserver struct{}

func (nopObserver) Fill(string, string, float64) {}

// failure is one group of columns that could not be computed for an entry.
type failure struct {
	columns []string
	err     error
}

// outcome collects the failures of one entry.
type outcome struct {
	failures []failure
}

func (o *outcome) fail(err error, columns ...string) {
	o.failures = append(o.failures, failure{columns: columns, err: err})
}

func (o *outcome) ok() bool { return len(o.failures) == 0 }

func (o *outcome) reason() string {
	if o.ok() {
		return ""
	}
	f := o.failures[0]
	msg := fmt.Sprintf("%v (%s)", f.err, f.columns[0])
	if n := len(o.failures); n > 1 {
		msg += fmt.Sprintf(" and %d more", n-1)
	}
	return msg
}

// failedSet returns the names of every failed column.
func (o *outcome) failedSet() map[string]bool {
	set := map[string]bool{}
	for _, f := range o.failures {
		for _, c := range f.columns {
			set[c] = true
		}
	}
	return set
}

// resolver applies a Policy to entry outcomes and keeps the counts.
type resolver struct {
	tree     string
	policy   Policy
	sentinel float64
	recorder Recorder
	observer Observer
	observed map[string]bool

	written, skipped, flagged int64
}

// resolve decides whether to write out, rewriting failed columns when
// flagging. It reports whether the row should be written.
func (r *resolver) resolve(ctx context.Context, entry int64, in, out ntuple.Row, o *outcome) (bool, error) {
	if o.ok() {
		out.SetInt(OKColumn, 1)
		r.observe(out, nil)
		r.written++
		return true, nil
	}

	issue := EventIssue{Tree: r.tree, Entry: entry, Reason: o.reason(), Flagged: r.policy == Flag}
	issue.RunNumber, _ = in.Int("runNumber")
	issue.EventNumber, _ = in.Int("eventNumber")
	if err := r.recorder.RecordEvent(ctx, issue); err != nil {
		return false, fmt.Errorf("record entry %d of %s: %w", entry, r.tree, err)
	}

	if r.policy == Skip {
		r.skipped++
		return false, nil
	}

	failed := o.failedSet()
	for c := range failed {
		out.SetFloat(c, r.sentinel)
	}
	out.SetInt(OKColumn, 0)
	r.observe(out, failed)
	r.flagged++
	r.written++
	return true, nil
}

func (r *resolver) observe(out ntuple.Row, failed map[string]bool) {
	for c := range r.observed {
		if failed[c] {
			continue
		}
		if v, ok := out.Floats[c]; ok {
			r.observer.Fill(r.tree, c, v)
		}
	}
}
