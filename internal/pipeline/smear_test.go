package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/restframe/internal/kinematics"
	"github.com/banshee-data/restframe/internal/monitoring"
	"github.com/banshee-data/restframe/internal/ntuple"
	"github.com/banshee-data/restframe/internal/smear"
	"github.com/banshee-data/restframe/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func newTestSmearJob(t *testing.T, mutate func(*SmearOptions)) *SmearJob {
	t.Helper()
	opts := DefaultSmearOptions(testPool())
	if mutate != nil {
		mutate(&opts)
	}
	job, err := NewSmearJob(opts)
	require.NoError(t, err)
	return job
}

func runSmear(t *testing.T, job *SmearJob, table *ntuple.MemTable) (*ntuple.MemTree, TreeSummary) {
	t.Helper()
	sink := ntuple.NewMemSink()
	s, err := job.ProcessTree(context.Background(), ntuple.NewMemSource(table), table.Name(), sink)
	require.NoError(t, err)
	tree := sink.Trees[table.Name()]
	require.NotNil(t, tree)
	assert.True(t, tree.Closed)
	return tree, s
}

func TestNewSmearJobValidation(t *testing.T) {
	_, err := NewSmearJob(SmearOptions{})
	assert.ErrorIs(t, err, smear.ErrEmptyPool)

	opts := DefaultSmearOptions(testPool())
	opts.Variants = nil
	_, err = NewSmearJob(opts)
	assert.Error(t, err)
}

func TestSmearJobNominal(t *testing.T) {
	job := newTestSmearJob(t, nil)
	table := buildTable("TupleBminus/DecayTree", defaultTableOptions(), goodEvent(1), goodEvent(2), goodEvent(3))
	tree, s := runSmear(t, job, table)

	assert.Equal(t, "B-", s.Mode)
	assert.Equal(t, kinematics.BMinusMass, s.ReferenceMass)
	assert.Equal(t, int64(3), s.Entries)
	assert.Equal(t, int64(3), s.Written)
	assert.Zero(t, s.Skipped)
	assert.Equal(t, testPool().Len(), s.PoolSize)

	wantCols := []string{
		"runNumber", "eventNumber",
		"q2_input", "mm2_input", "el_input",
		"mm2", "q2", "el", "b_m",
		"dtheta_pi", "smr_pi", "mm2_smr_pi", "q2_smr_pi", "el_smr_pi", "wvtx_debug_p_pi", "wvtx_debug_m_pi",
		"dtheta_k", "smr_k", "mm2_smr_k", "q2_smr_k", "el_smr_k", "wvtx_debug_p_k", "wvtx_debug_m_k",
		"kin_ok",
	}
	if diff := cmp.Diff(wantCols, tree.ColumnNames()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, wantCols, s.Columns)

	// Expected nominal observables straight from the engine.
	e := goodEvent(0)
	d := fourVector(e.d, d0Mass)
	mu := fourVector(e.mu, muMass)
	recoB := d.Add(mu)
	dir := kinematics.EstimateDirection(kinematics.Point3{X: e.endVertex[0], Y: e.endVertex[1], Z: e.endVertex[2]}, kinematics.Point3{}, 0)
	est, err := kinematics.DefaultSolver().Solve(recoB, dir, kinematics.BMinusMass)
	require.NoError(t, err)
	want := kinematics.ComputeObservables(est, recoB, d, mu)

	for i, r := range tree.Rows {
		ev, _ := r.Int("eventNumber")
		assert.Equal(t, int64(i+1), ev)
		ok, _ := r.Int(OKColumn)
		assert.Equal(t, int64(1), ok)

		q2in, _ := r.Float("q2_input")
		mm2in, _ := r.Float("mm2_input")
		elin, _ := r.Float("el_input")
		testutil.AssertNear(t, "q2_input", q2in, 5, 1e-12)
		testutil.AssertNear(t, "mm2_input", mm2in, 2, 1e-12)
		testutil.AssertNear(t, "el_input", elin, 1.5, 1e-12)

		mm2, _ := r.Float("mm2")
		q2, _ := r.Float("q2")
		el, _ := r.Float("el")
		bm, _ := r.Float("b_m")
		testutil.AssertNear(t, "mm2", mm2, want.MissingMass2, 1e-9)
		testutil.AssertNear(t, "q2", q2, want.Q2, 1e-9)
		testutil.AssertNear(t, "el", el, want.El, 1e-9)
		testutil.AssertNear(t, "b_m", bm, recoB.M(), 1e-9)
	}
	testutil.AssertAllFinite(t, "mm2_smr_pi", tree.Column("mm2_smr_pi"))
	testutil.AssertAllFinite(t, "el_smr_k", tree.Column("el_smr_k"))
}

func TestSmearJobDrawsFollowSeededStreams(t *testing.T) {
	pool := testPool()
	job := newTestSmearJob(t, func(o *SmearOptions) { o.Pool = pool })
	events := []event{goodEvent(1), goodEvent(2), goodEvent(3), goodEvent(4), goodEvent(5)}
	tree, _ := runSmear(t, job, buildTable("T", defaultTableOptions(), events...))

	ref, err := smear.NewContext(pool, smear.DefaultSeeds())
	require.NoError(t, err)
	for i, r := range tree.Rows {
		for _, v := range []string{"pi", "k"} {
			d, err := ref.Draw()
			require.NoError(t, err)
			smr := ref.Synthesizer.Synthesize(d, 0.105, 6.29)

			gotD, _ := r.Float("dtheta_" + v)
			gotS, _ := r.Float("smr_" + v)
			assert.Equal(t, d, gotD, "row %d dtheta_%s", i, v)
			assert.Equal(t, smr, gotS, "row %d smr_%s", i, v)

			wp, _ := r.Float("wvtx_debug_p_" + v)
			wm, _ := r.Float("wvtx_debug_m_" + v)
			term := 0.01 * math.Log(math.Abs(smr))
			testutil.AssertNear(t, "wvtx_debug_p", wp, 1-term, 1e-12)
			testutil.AssertNear(t, "wvtx_debug_m", wm, 1+term, 1e-12)
		}
	}
}

func TestSmearJobReproducible(t *testing.T) {
	events := []event{goodEvent(1), goodEvent(2), goodEvent(3), goodEvent(4)}

	run := func() []ntuple.Row {
		job := newTestSmearJob(t, nil)
		tree, _ := runSmear(t, job, buildTable("T", defaultTableOptions(), events...))
		return tree.Rows
	}
	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Errorf("identical runs differ (-first +second):\n%s", diff)
	}
}

func TestSmearJobReseedsPerTree(t *testing.T) {
	job := newTestSmearJob(t, nil)
	events := []event{goodEvent(1), goodEvent(2), goodEvent(3)}
	src := ntuple.NewMemSource(
		buildTable("TupleB0/DecayTree", defaultTableOptions(), events...),
		buildTable("TupleBminus/DecayTree", defaultTableOptions(), events...),
	)
	sink := ntuple.NewMemSink()
	rec := &memRecorder{}
	summaries, err := Run(context.Background(), job, src, sink, []string{"TupleB0/DecayTree", "TupleBminus/DecayTree"}, rec)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Len(t, rec.trees, 2)

	first := sink.Trees["TupleB0/DecayTree"].Column("dtheta_pi")
	second := sink.Trees["TupleBminus/DecayTree"].Column("dtheta_pi")
	assert.Equal(t, first, second)
}

func TestSmearJobSkipKeepsRowOrderStreams(t *testing.T) {
	rec := &memRecorder{}
	job := newTestSmearJob(t, func(o *SmearOptions) { o.Recorder = rec })

	clean, _ := runSmear(t, newTestSmearJob(t, nil),
		buildTable("T", defaultTableOptions(), goodEvent(1), goodEvent(2), goodEvent(3)))
	tree, s := runSmear(t, job,
		buildTable("T", defaultTableOptions(), goodEvent(1), collapsedEvent(2), goodEvent(3)))

	assert.Equal(t, int64(3), s.Entries)
	assert.Equal(t, int64(2), s.Written)
	assert.Equal(t, int64(1), s.Skipped)
	assert.Zero(t, s.Flagged)
	require.Len(t, tree.Rows, 2)

	// The skipped entry still consumed its draws.
	assert.Equal(t, clean.Column("dtheta_pi")[2], tree.Column("dtheta_pi")[1])
	assert.Equal(t, clean.Column("smr_k")[2], tree.Column("smr_k")[1])

	require.Len(t, rec.issues, 1)
	issue := rec.issues[0]
	assert.Equal(t, "T", issue.Tree)
	assert.Equal(t, int64(1), issue.Entry)
	assert.Equal(t, int64(2), issue.EventNumber)
	assert.Equal(t, int64(1000), issue.RunNumber)
	assert.False(t, issue.Flagged)
	assert.Contains(t, issue.Reason, kinematics.ErrDegenerateDirection.Error())
}

func TestSmearJobFlagPolicy(t *testing.T) {
	rec := &memRecorder{}
	obs := newMemObserver()
	job := newTestSmearJob(t, func(o *SmearOptions) {
		o.Policy = Flag
		o.Sentinel = -1234
		o.Recorder = rec
		o.Observer = obs
	})
	tree, s := runSmear(t, job,
		buildTable("T", defaultTableOptions(), goodEvent(1), collapsedEvent(2)))

	assert.Equal(t, int64(2), s.Written)
	assert.Equal(t, int64(1), s.Flagged)
	require.Len(t, tree.Rows, 2)

	bad := tree.Rows[1]
	ok, _ := bad.Int(OKColumn)
	assert.Equal(t, int64(0), ok)
	for _, c := range []string{"mm2", "q2", "el", "mm2_smr_pi", "q2_smr_pi", "el_smr_pi", "mm2_smr_k", "el_smr_k"} {
		v, _ := bad.Float(c)
		assert.Equal(t, -1234.0, v, c)
	}
	// Quantities that did not fail keep their values.
	dtheta, _ := bad.Float("dtheta_pi")
	assert.NotEqual(t, -1234.0, dtheta)
	wp, _ := bad.Float("wvtx_debug_p_pi")
	assert.False(t, math.IsNaN(wp))

	require.Len(t, rec.issues, 1)
	assert.True(t, rec.issues[0].Flagged)

	// Sentinels never reach the histograms.
	assert.Len(t, obs.values["T:mm2"], 1)
	assert.Len(t, obs.values["T:el_smr_k"], 1)
	for _, v := range obs.values["T:q2"] {
		assert.NotEqual(t, -1234.0, v)
	}
}

func TestSmearJobNonFiniteFitVars(t *testing.T) {
	nan := goodEvent(2)
	nan.fitEl = math.NaN()
	inf := goodEvent(3)
	inf.fitEl = math.Inf(1)
	table := func() *ntuple.MemTable {
		return buildTable("T", defaultTableOptions(), goodEvent(1), nan, inf)
	}

	t.Run("skip drops the entries", func(t *testing.T) {
		rec := &memRecorder{}
		tree, s := runSmear(t, newTestSmearJob(t, func(o *SmearOptions) { o.Recorder = rec }), table())
		assert.Equal(t, int64(1), s.Written)
		assert.Equal(t, int64(2), s.Skipped)
		require.Len(t, tree.Rows, 1)
		require.Len(t, rec.issues, 2)
		assert.Contains(t, rec.issues[0].Reason, "FitVar_El")
		assert.Contains(t, rec.issues[0].Reason, "el_input")
	})

	t.Run("flag writes the sentinel", func(t *testing.T) {
		job := newTestSmearJob(t, func(o *SmearOptions) {
			o.Policy = Flag
			o.Sentinel = -777
		})
		tree, s := runSmear(t, job, table())
		assert.Equal(t, int64(3), s.Written)
		assert.Equal(t, int64(2), s.Flagged)
		require.Len(t, tree.Rows, 3)

		assert.Equal(t, []float64{1.5, -777, -777}, tree.Column("el_input"))
		for i, r := range tree.Rows {
			ok, _ := r.Int(OKColumn)
			assert.Equal(t, i == 0, ok == 1, "kin_ok of row %d", i)
			q2in, _ := r.Float("q2_input")
			testutil.AssertNear(t, "q2_input", q2in, 5, 1e-12)
			mm2, _ := r.Float("mm2")
			assert.NotEqual(t, -777.0, mm2)
		}
	})
}

func TestSmearJobFromDaughters(t *testing.T) {
	withB := defaultTableOptions()
	noB := defaultTableOptions()
	noB.withB = false

	events := []event{goodEvent(1), goodEvent(2)}
	full, _ := runSmear(t, newTestSmearJob(t, nil), buildTable("T", withB, events...))
	rebuilt, _ := runSmear(t, newTestSmearJob(t, nil), buildTable("T", noB, events...))

	for _, c := range []string{"mm2", "q2", "el", "b_m", "mm2_smr_pi"} {
		want, got := full.Column(c), rebuilt.Column(c)
		for i := range want {
			testutil.AssertNear(t, c, got[i], want[i], 1e-9)
		}
	}
}

func TestSmearJobWithoutFitVars(t *testing.T) {
	opt := defaultTableOptions()
	opt.withFitVars = false
	tree, _ := runSmear(t, newTestSmearJob(t, nil), buildTable("T", opt, goodEvent(1)))
	assert.NotContains(t, tree.ColumnNames(), "q2_input")
	assert.Contains(t, tree.ColumnNames(), "mm2")
}

func TestSmearJobB0Mode(t *testing.T) {
	opt := defaultTableOptions()
	opt.mode = ModeB0
	_, s := runSmear(t, newTestSmearJob(t, nil), buildTable("TupleB0/DecayTree", opt, goodEvent(1)))
	assert.Equal(t, "B0", s.Mode)
	assert.Equal(t, kinematics.B0Mass, s.ReferenceMass)
}

func TestSmearJobStartupErrors(t *testing.T) {
	t.Run("unknown decay mode writes nothing", func(t *testing.T) {
		table := ntuple.NewMemTable("T", []string{"runNumber", "k_PX"})
		sink := ntuple.NewMemSink()
		_, err := newTestSmearJob(t, nil).ProcessTree(context.Background(), ntuple.NewMemSource(table), "T", sink)
		assert.ErrorIs(t, err, ErrUnknownDecayMode)
		assert.Contains(t, err.Error(), "tree T")
		assert.Empty(t, sink.Trees)
	})

	t.Run("missing vertex branch writes nothing", func(t *testing.T) {
		table := ntuple.NewMemTable("T", append(FourMomentumBranches("d0"), FourMomentumBranches("mu")...))
		sink := ntuple.NewMemSink()
		_, err := newTestSmearJob(t, nil).ProcessTree(context.Background(), ntuple.NewMemSource(table), "T", sink)
		assert.ErrorIs(t, err, ntuple.ErrBranchNotFound)
		assert.Empty(t, sink.Trees)
	})

	t.Run("missing tree", func(t *testing.T) {
		_, err := newTestSmearJob(t, nil).ProcessTree(context.Background(), ntuple.NewMemSource(), "Nope", ntuple.NewMemSink())
		assert.ErrorIs(t, err, ntuple.ErrTreeNotFound)
	})
}

func TestSmearJobCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	table := buildTable("T", defaultTableOptions(), goodEvent(1))
	_, err := newTestSmearJob(t, nil).ProcessTree(ctx, ntuple.NewMemSource(table), "T", ntuple.NewMemSink())
	assert.ErrorIs(t, err, context.Canceled)
}
