package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/restframe/internal/kinematics"
	"github.com/banshee-data/restframe/internal/ntuple"
	"github.com/banshee-data/restframe/internal/smear"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name     string
		branches []string
		want     DecayMode
		wantErr  bool
	}{
		{"D* selects B0", []string{"dst_PX", "b0_PX"}, ModeB0, false},
		{"D0 selects B-", []string{"d0_PX", "b_PX"}, ModeBMinus, false},
		{"D* wins when both exist", []string{"d0_PX", "dst_PX"}, ModeB0, false},
		{"neither", []string{"k_PX", "pi_PX"}, DecayMode{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectMode(ntuple.NewMemTable("TupleX/DecayTree", tt.branches))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownDecayMode)
				assert.Contains(t, err.Error(), "TupleX/DecayTree")
				assert.Contains(t, err.Error(), "dst_PX")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModeBranches(t *testing.T) {
	assert.Equal(t, 5279.65, ModeB0.ReferenceMass)
	assert.Equal(t, kinematics.BMinusMass, ModeBMinus.ReferenceMass)
	assert.Equal(t, []string{"b0_ENDVERTEX_X", "b0_ENDVERTEX_Y", "b0_ENDVERTEX_Z"}, ModeB0.EndVertexBranches())
	assert.Equal(t, []string{"b_OWNPV_X", "b_OWNPV_Y", "b_OWNPV_Z"}, ModeBMinus.OwnPVBranches())
	assert.Equal(t, []string{"b_TRUEP_X", "b_TRUEP_Y", "b_TRUEP_Z"}, ModeBMinus.TrueMomentumBranches())
	assert.Equal(t, []string{"mu_PX", "mu_PY", "mu_PZ", "mu_PE"}, FourMomentumBranches(LeptonPrefix))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, Skip, p)
	p, err = ParsePolicy("flag")
	require.NoError(t, err)
	assert.Equal(t, Flag, p)
	assert.Equal(t, "flag", p.String())
	_, err = ParsePolicy("drop")
	assert.Error(t, err)
}

func TestRunStopsAtFirstFailingTree(t *testing.T) {
	job := newTestSmearJob(t, nil)
	src := ntuple.NewMemSource(
		buildTable("Good", defaultTableOptions(), goodEvent(1)),
		ntuple.NewMemTable("Bad", []string{"runNumber"}),
		buildTable("Later", defaultTableOptions(), goodEvent(1)),
	)
	sink := ntuple.NewMemSink()
	rec := &memRecorder{}

	summaries, err := Run(context.Background(), job, src, sink, []string{"Good", "Bad", "Later"}, rec)
	require.ErrorIs(t, err, ErrUnknownDecayMode)
	assert.Contains(t, err.Error(), "smear job")
	require.Len(t, summaries, 1)
	assert.Equal(t, "Good", summaries[0].Tree)
	assert.Len(t, rec.trees, 1)
	assert.NotContains(t, sink.Trees, "Bad")
	assert.NotContains(t, sink.Trees, "Later")
}

func TestRunRecorderFailure(t *testing.T) {
	rec := &memRecorder{err: errors.New("ledger unavailable")}
	job := newTestSmearJob(t, func(o *SmearOptions) { o.Recorder = rec })
	src := ntuple.NewMemSource(buildTable("T", defaultTableOptions(), collapsedEvent(1)))

	_, err := Run(context.Background(), job, src, ntuple.NewMemSink(), []string{"T"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger unavailable")
}

func TestLoadAnglePool(t *testing.T) {
	src := ntuple.NewMemSource(ntuple.NewMemTable("Smear", []string{"Delta"},
		deltaRow(0.1), deltaRow(-0.2), deltaRow(0.4),
	))

	pool, err := LoadAnglePool(src, "Smear", "Delta", &smear.DefaultFilter)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, pool.Values())

	pool, err = LoadAnglePool(src, "Smear", "Delta", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, pool.Len())

	_, err = LoadAnglePool(src, "Smear", "Other", nil)
	assert.ErrorIs(t, err, ntuple.ErrBranchNotFound)

	_, err = LoadAnglePool(src, "Smear", "Delta", &smear.Range{Min: 1, Max: 2})
	assert.ErrorIs(t, err, smear.ErrEmptyPool)
}

func deltaRow(v float64) ntuple.Row {
	r := ntuple.NewRow()
	r.SetFloat("Delta", v)
	return r
}
