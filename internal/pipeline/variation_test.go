package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/restframe/internal/kinematics"
	"github.com/banshee-data/restframe/internal/ntuple"
	"github.com/banshee-data/restframe/internal/testutil"
	"github.com/banshee-data/restframe/internal/weights"
)

// alignedEvent has a truth momentum exactly along the flight vector.
func alignedEvent(i int64) event {
	e := goodEvent(i)
	e.trueP = e.endVertex
	return e
}

func TestWeightsJob(t *testing.T) {
	obs := newMemObserver()
	opts := DefaultWeightsOptions()
	opts.Observer = obs
	job := NewWeightsJob(opts)

	table := buildTable("TupleBminus/DecayTree", defaultTableOptions(), goodEvent(7))
	sink := ntuple.NewMemSink()
	s, err := job.ProcessTree(context.Background(), ntuple.NewMemSource(table), table.Name(), sink)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Written)

	tree := sink.Trees[table.Name()]
	require.NotNil(t, tree)
	assert.Equal(t, []string{"runNumber", "eventNumber", "thetaB_reco", "thetaB_true", "dtheta", "wvtx_scale_p", "wvtx_scale_m", "kin_ok"}, tree.ColumnNames())

	e := goodEvent(7)
	reco := kinematics.Theta(kinematics.Point3{X: e.endVertex[0], Y: e.endVertex[1], Z: e.endVertex[2]})
	tru := kinematics.Theta(kinematics.Point3{X: e.trueP[0], Y: e.trueP[1], Z: e.trueP[2]})
	term := weights.ScaleCoeff * math.Log(math.Abs(reco-tru))

	r := tree.Rows[0]
	got := func(c string) float64 { v, _ := r.Float(c); return v }
	testutil.AssertNear(t, "thetaB_reco", got("thetaB_reco"), reco, 1e-15)
	testutil.AssertNear(t, "thetaB_true", got("thetaB_true"), tru, 1e-15)
	testutil.AssertNear(t, "dtheta", got("dtheta"), reco-tru, 1e-15)
	testutil.AssertNear(t, "wvtx_scale_p", got("wvtx_scale_p"), 1+term, 1e-12)
	testutil.AssertNear(t, "wvtx_scale_m", got("wvtx_scale_m"), 1-term, 1e-12)

	assert.Len(t, obs.values["TupleBminus/DecayTree:wvtx_scale_p"], 1)
	assert.Len(t, obs.values["TupleBminus/DecayTree:dtheta"], 1)
}

func TestWeightsJobZeroDelta(t *testing.T) {
	t.Run("skip", func(t *testing.T) {
		rec := &memRecorder{}
		opts := DefaultWeightsOptions()
		opts.Recorder = rec
		sink := ntuple.NewMemSink()
		table := buildTable("T", defaultTableOptions(), goodEvent(1), alignedEvent(2), goodEvent(3))

		s, err := NewWeightsJob(opts).ProcessTree(context.Background(), ntuple.NewMemSource(table), "T", sink)
		require.NoError(t, err)
		assert.Equal(t, int64(2), s.Written)
		assert.Equal(t, int64(1), s.Skipped)
		require.Len(t, rec.issues, 1)
		assert.Equal(t, int64(2), rec.issues[0].EventNumber)
		assert.Contains(t, rec.issues[0].Reason, weights.ErrZeroDelta.Error())
		testutil.AssertAllFinite(t, "wvtx_scale_p", sink.Trees["T"].Column("wvtx_scale_p"))
	})

	t.Run("flag", func(t *testing.T) {
		opts := DefaultWeightsOptions()
		opts.Policy = Flag
		sink := ntuple.NewMemSink()
		table := buildTable("T", defaultTableOptions(), alignedEvent(1))

		s, err := NewWeightsJob(opts).ProcessTree(context.Background(), ntuple.NewMemSource(table), "T", sink)
		require.NoError(t, err)
		assert.Equal(t, int64(1), s.Flagged)

		r := sink.Trees["T"].Rows[0]
		p, _ := r.Float("wvtx_scale_p")
		m, _ := r.Float("wvtx_scale_m")
		d, _ := r.Float("dtheta")
		ok, _ := r.Int(OKColumn)
		assert.Equal(t, DefaultSentinel, p)
		assert.Equal(t, DefaultSentinel, m)
		assert.Equal(t, 0.0, d)
		assert.Equal(t, int64(0), ok)
	})
}

func TestWeightsJobConvention(t *testing.T) {
	opts := DefaultWeightsOptions()
	opts.Generator.Convention = weights.MinusFirst
	sink := ntuple.NewMemSink()
	table := buildTable("T", defaultTableOptions(), goodEvent(1))
	_, err := NewWeightsJob(opts).ProcessTree(context.Background(), ntuple.NewMemSource(table), "T", sink)
	require.NoError(t, err)

	r := sink.Trees["T"].Rows[0]
	p, _ := r.Float("wvtx_scale_p")
	m, _ := r.Float("wvtx_scale_m")
	d, _ := r.Float("dtheta")
	term := weights.ScaleCoeff * math.Log(math.Abs(d))
	testutil.AssertNear(t, "wvtx_scale_p", p, 1-term, 1e-12)
	testutil.AssertNear(t, "wvtx_scale_m", m, 1+term, 1e-12)
}

func TestWeightsJobRequiresTruth(t *testing.T) {
	opt := defaultTableOptions()
	opt.withTruth = false
	sink := ntuple.NewMemSink()
	table := buildTable("T", opt, goodEvent(1))
	_, err := NewWeightsJob(DefaultWeightsOptions()).ProcessTree(context.Background(), ntuple.NewMemSource(table), "T", sink)
	assert.ErrorIs(t, err, ntuple.ErrBranchNotFound)
	assert.Contains(t, err.Error(), "b_TRUEP_X")
	assert.Empty(t, sink.Trees)
}
