package pipeline

import (
	"context"
	"fmt"

	"github.com/banshee-data/restframe/internal/kinematics"
	"github.com/banshee-data/restframe/internal/monitoring"
	"github.com/banshee-data/restframe/internal/ntuple"
	"github.com/banshee-data/restframe/internal/weights"
)

// WeightsOptions configures a WeightsJob.
type WeightsOptions struct {
	Generator weights.Generator
	Policy    Policy
	Sentinel  float64
	Recorder  Recorder
	Observer  Observer
}

// DefaultWeightsOptions returns the options of a standard run.
func DefaultWeightsOptions() WeightsOptions {
	return WeightsOptions{
		Generator: weights.Scale(),
		Policy:    Skip,
		Sentinel:  DefaultSentinel,
	}
}

// WeightsJob derives up/down variation weights from the difference between
// the reconstructed and true B polar angles, before any smearing.
type WeightsJob struct {
	opts WeightsOptions
}

// NewWeightsJob fills unset collaborators with no-ops.
func NewWeightsJob(opts WeightsOptions) *WeightsJob {
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &WeightsJob{opts: opts}
}

func (j *WeightsJob) Name() string { return "weights" }

// ObservableColumns are the histogrammed outputs of the job.
func (j *WeightsJob) ObservableColumns() []string {
	return []string{"dtheta", j.opts.Generator.PlusColumn(), j.opts.Generator.MinusColumn()}
}

// ProcessTree runs the job over one input tree.
func (j *WeightsJob) ProcessTree(ctx context.Context, src ntuple.Source, tree string, sink ntuple.Sink) (TreeSummary, error) {
	summary := TreeSummary{Tree: tree}

	t, err := src.Table(tree)
	if err != nil {
		return summary, err
	}
	mode, err := DetectMode(t)
	if err != nil {
		return summary, err
	}
	summary.Mode = mode.Name
	summary.ReferenceMass = mode.ReferenceMass
	summary.Entries = t.Entries()
	monitoring.Logf("Decay mode: %s", mode)

	end, pv, truth := mode.EndVertexBranches(), mode.OwnPVBranches(), mode.TrueMomentumBranches()
	passthrough := presentPassthrough(t)
	branches := append([]string{}, passthrough...)
	branches = append(branches, end...)
	branches = append(branches, pv...)
	branches = append(branches, truth...)
	if err := requireBranches(t, branches); err != nil {
		return summary, err
	}

	g := j.opts.Generator
	var cols []ntuple.Column
	for _, b := range passthrough {
		cols = append(cols, ntuple.Column{Name: b, Kind: ntuple.Int})
	}
	for _, c := range []string{"thetaB_reco", "thetaB_true", "dtheta", g.PlusColumn(), g.MinusColumn()} {
		cols = append(cols, ntuple.Column{Name: c})
	}
	cols = append(cols, ntuple.Column{Name: OKColumn, Kind: ntuple.Int})

	w, err := sink.CreateTree(tree, cols)
	if err != nil {
		return summary, err
	}
	for _, c := range cols {
		summary.Columns = append(summary.Columns, c.Name)
	}

	res := &resolver{
		tree:     tree,
		policy:   j.opts.Policy,
		sentinel: j.opts.Sentinel,
		recorder: j.opts.Recorder,
		observer: j.opts.Observer,
		observed: setOf(j.ObservableColumns()),
	}

	err = t.Scan(branches, func(entry int64, in ntuple.Row) error {
		if entry%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		out := ntuple.NewRow()
		copyPassthrough(passthrough, in, out)

		flight := kinematics.EstimateDirection(readPoint(in, end), readPoint(in, pv), 0)
		reco := flight.Theta()
		tru := kinematics.Theta(readPoint(in, truth))
		dtheta := reco - tru
		out.SetFloat("thetaB_reco", reco)
		out.SetFloat("thetaB_true", tru)
		out.SetFloat("dtheta", dtheta)

		var o outcome
		plus, minus, err := g.Weights(dtheta)
		if err != nil {
			o.fail(err, g.PlusColumn(), g.MinusColumn())
		} else {
			out.SetFloat(g.PlusColumn(), plus)
			out.SetFloat(g.MinusColumn(), minus)
		}
		if !finite(dtheta) {
			o.fail(kinematics.ErrNonFinite, "thetaB_reco", "thetaB_true", "dtheta")
		}

		write, err := res.resolve(ctx, entry, in, out, &o)
		if err != nil || !write {
			return err
		}
		return w.Write(out)
	})
	if err != nil {
		_ = w.Close()
		return summary, fmt.Errorf("process %s: %w", tree, err)
	}
	if err := w.Close(); err != nil {
		return summary, fmt.Errorf("close output tree %s: %w", tree, err)
	}

	summary.Written, summary.Skipped, summary.Flagged = res.written, res.skipped, res.flagged
	return summary, nil
}
