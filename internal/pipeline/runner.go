package pipeline

import (
	"context"
	"fmt"

	"github.com/banshee-data/restframe/internal/monitoring"
	"github.com/banshee-data/restframe/internal/ntuple"
	"github.com/banshee-data/restframe/internal/smear"
)

// TreeProcessor is a job that can be applied to one tree at a time.
type TreeProcessor interface {
	Name() string
	ObservableColumns() []string
	ProcessTree(ctx context.Context, src ntuple.Source, tree string, sink ntuple.Sink) (TreeSummary, error)
}

// Run applies job to every tree in order. The first tree that fails stops
// the run; summaries of the trees completed so far are returned with the
// error.
func Run(ctx context.Context, job TreeProcessor, src ntuple.Source, sink ntuple.Sink, trees []string, rec Recorder) ([]TreeSummary, error) {
	if rec == nil {
		rec = NopRecorder{}
	}
	var summaries []TreeSummary
	for _, tree := range trees {
		monitoring.Logf("--------")
		monitoring.Logf("Working on tree: %s", tree)

		s, err := job.ProcessTree(ctx, src, tree, sink)
		if err != nil {
			return summaries, fmt.Errorf("%s job: %w", job.Name(), err)
		}
		monitoring.Logf("Tree %s: %d entries, %d written, %d skipped, %d flagged",
			tree, s.Entries, s.Written, s.Skipped, s.Flagged)
		monitoring.Debugf("Tree %s columns: %v", tree, s.Columns)

		if err := rec.RecordTree(ctx, s); err != nil {
			return summaries, fmt.Errorf("record tree %s: %w", tree, err)
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// LoadAnglePool reads the auxiliary angle column and builds the sampling
// pool. A nil filter keeps signed, unfiltered values.
func LoadAnglePool(src ntuple.Source, tree, branch string, filter *smear.Range) (*smear.Pool, error) {
	samples, err := ntuple.ReadFloatColumn(src, tree, branch)
	if err != nil {
		return nil, fmt.Errorf("load angle pool: %w", err)
	}
	pool, err := smear.LoadPool(samples, filter)
	if err != nil {
		return nil, fmt.Errorf("load angle pool from %s/%s: %w", tree, branch, err)
	}
	mean, std := pool.Summary()
	monitoring.Logf("Loaded %d of %d angle samples from %s/%s (mean %.4g, std dev %.4g)",
		pool.Len(), len(samples), tree, branch, mean, std)
	return pool, nil
}
