package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/restframe/internal/kinematics"
	"github.com/banshee-data/restframe/internal/monitoring"
	"github.com/banshee-data/restframe/internal/ntuple"
	"github.com/banshee-data/restframe/internal/smear"
	"github.com/banshee-data/restframe/internal/weights"
)

// cancelCheckInterval is how many entries pass between context checks.
const cancelCheckInterval = 1024

// SmearOptions configures a SmearJob.
type SmearOptions struct {
	Pool     *smear.Pool
	Seeds    smear.Seeds
	FitLin   float64
	FitQuad  float64
	Variants []string
	Debug    weights.Generator
	Solver   kinematics.Solver
	Policy   Policy
	Sentinel float64
	Recorder Recorder
	Observer Observer
}

// DefaultSmearOptions returns the options of a standard run over pool.
func DefaultSmearOptions(pool *smear.Pool) SmearOptions {
	return SmearOptions{
		Pool:     pool,
		Seeds:    smear.DefaultSeeds(),
		FitLin:   0.105,
		FitQuad:  6.29,
		Variants: []string{"pi", "k"},
		Debug:    weights.Debug(),
		Solver:   kinematics.DefaultSolver(),
		Policy:   Skip,
		Sentinel: DefaultSentinel,
	}
}

// SmearJob recomputes the rest-frame observables with and without a
// sampled flight-direction smear.
type SmearJob struct {
	opts SmearOptions
}

// NewSmearJob validates opts.
func NewSmearJob(opts SmearOptions) (*SmearJob, error) {
	if opts.Pool == nil || opts.Pool.Len() == 0 {
		return nil, smear.ErrEmptyPool
	}
	if len(opts.Variants) == 0 {
		return nil, errors.New("at least one smear variant is required")
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &SmearJob{opts: opts}, nil
}

// Name identifies the job in logs and the run ledger.
func (j *SmearJob) Name() string { return "smear" }

// ObservableColumns are the histogrammed outputs of the job.
func (j *SmearJob) ObservableColumns() []string {
	cols := []string{"mm2", "q2", "el"}
	for _, v := range j.opts.Variants {
		cols = append(cols, "mm2_smr_"+v, "q2_smr_"+v, "el_smr_"+v)
	}
	return cols
}

func (j *SmearJob) debugColumns(variant string) (plus, minus string) {
	return j.opts.Debug.PlusColumn() + "_" + variant, j.opts.Debug.MinusColumn() + "_" + variant
}

func (j *SmearJob) columns(passthrough []string, fitVars bool) []ntuple.Column {
	var cols []ntuple.Column
	for _, b := range passthrough {
		cols = append(cols, ntuple.Column{Name: b, Kind: ntuple.Int})
	}
	if fitVars {
		for _, fv := range FitVars {
			cols = append(cols, ntuple.Column{Name: fv.Output})
		}
	}
	for _, c := range []string{"mm2", "q2", "el", "b_m"} {
		cols = append(cols, ntuple.Column{Name: c})
	}
	for _, v := range j.opts.Variants {
		p, m := j.debugColumns(v)
		for _, c := range []string{"dtheta_" + v, "smr_" + v, "mm2_smr_" + v, "q2_smr_" + v, "el_smr_" + v, p, m} {
			cols = append(cols, ntuple.Column{Name: c})
		}
	}
	return append(cols, ntuple.Column{Name: OKColumn, Kind: ntuple.Int})
}

// ProcessTree runs the job over one input tree and writes the same tree
// path to sink. Nothing is written when the tree fails its startup checks.
func (j *SmearJob) ProcessTree(ctx context.Context, src ntuple.Source, tree string, sink ntuple.Sink) (TreeSummary, error) {
	summary := TreeSummary{Tree: tree, PoolSize: j.opts.Pool.Len()}

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

	reader := newCandidateReader(t, mode)
	if reader.fromDaughters {
		monitoring.Logf("No %s four-momentum in %s, using %s + %s", mode.BPrefix, tree, mode.DPrefix, LeptonPrefix)
	}
	if err := requireBranches(t, reader.branches()); err != nil {
		return summary, err
	}

	passthrough := presentPassthrough(t)
	fitVars := hasFitVars(t)
	if !fitVars {
		monitoring.Logf("Fit variables missing from %s, skipping input transforms", tree)
	}

	branches := append([]string{}, passthrough...)
	if fitVars {
		branches = append(branches, fitVarInputs()...)
	}
	branches = append(branches, reader.branches()...)

	// Fresh generators per tree so every tree is reproducible on its own.
	sampler, err := smear.NewContext(j.opts.Pool, j.opts.Seeds)
	if err != nil {
		return summary, err
	}

	cols := j.columns(passthrough, fitVars)
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

		var o outcome
		if fitVars {
			applyFitVars(in, out, &o)
		}
		c := reader.read(in)
		j.nominal(c, mode, out, &o)
		for _, v := range j.opts.Variants {
			d, err := sampler.Draw()
			if err != nil {
				return err
			}
			j.smeared(c, mode, v, d, sampler.Synthesizer, out, &o)
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

// nominal fills the unsmeared observables.
func (j *SmearJob) nominal(c candidate, mode DecayMode, out ntuple.Row, o *outcome) {
	bm := c.recoB.M()
	out.SetFloat("b_m", bm)
	if !finite(bm) {
		o.fail(kinematics.ErrNonFinite, "b_m")
	}

	dir := kinematics.EstimateDirection(c.endVertex, c.ownPV, 0)
	j.observables(c, dir, mode, "", out, o)
}

// smeared fills the columns of one smear variant. The draws always happen
// so the random streams advance once per entry.
func (j *SmearJob) smeared(c candidate, mode DecayMode, variant string, dtheta float64, s *smear.Synthesizer, out ntuple.Row, o *outcome) {
	smr := s.Synthesize(dtheta, j.opts.FitLin, j.opts.FitQuad)
	out.SetFloat("dtheta_"+variant, dtheta)
	out.SetFloat("smr_"+variant, smr)

	dir := kinematics.EstimateDirection(c.endVertex, c.ownPV, smr)
	j.observables(c, dir, mode, "_smr_"+variant, out, o)

	pc, mc := j.debugColumns(variant)
	plus, minus, err := j.opts.Debug.Weights(smr)
	if err != nil {
		o.fail(err, pc, mc)
		return
	}
	out.SetFloat(pc, plus)
	out.SetFloat(mc, minus)
}

func (j *SmearJob) observables(c candidate, dir kinematics.Direction, mode DecayMode, suffix string, out ntuple.Row, o *outcome) {
	cols := []string{"mm2" + suffix, "q2" + suffix, "el" + suffix}

	est, err := j.opts.Solver.Solve(c.recoB, dir, mode.ReferenceMass)
	if err != nil {
		o.fail(err, cols...)
		return
	}
	obs := kinematics.ComputeObservables(est, c.recoB, c.companion, c.lepton)
	if !obs.IsFinite() {
		o.fail(kinematics.ErrNonFinite, cols...)
		return
	}
	out.SetFloat(cols[0], obs.MissingMass2)
	out.SetFloat(cols[1], obs.Q2)
	out.SetFloat(cols[2], obs.El)
}

func requireBranches(t ntuple.Table, names []string) error {
	for _, b := range names {
		if !t.HasBranch(b) {
			return fmt.Errorf("tree %s: %w: %s", t.Name(), ntuple.ErrBranchNotFound, b)
		}
	}
	return nil
}

func setOf(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
