package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/banshee-data/restframe/internal/kinematics"
	"github.com/banshee-data/restframe/internal/ntuple"
	"github.com/banshee-data/restframe/internal/smear"
)

// event describes one synthetic candidate in MeV and mm.
type event struct {
	run, evt  int64
	d, mu     [3]float64 // momenta
	endVertex [3]float64
	ownPV     [3]float64
	trueP     [3]float64
	fitEl     float64 // FitVar_El in MeV
}

const (
	d0Mass = 1864.84
	muMass = 105.658
)

func goodEvent(i int64) event {
	return event{
		run:       1000,
		evt:       i,
		d:         [3]float64{500, 120, 20000},
		mu:        [3]float64{-300, 400, 15000},
		endVertex: [3]float64{0.2, 0.52, 35.0},
		ownPV:     [3]float64{0, 0, 0},
		trueP:     [3]float64{210, 540, 36000},
		fitEl:     1500,
	}
}

// collapsedEvent has its decay vertex on top of the production vertex.
func collapsedEvent(i int64) event {
	e := goodEvent(i)
	e.endVertex = e.ownPV
	return e
}

func fourVector(p [3]float64, m float64) kinematics.FourVector {
	return kinematics.NewFourVector(p[0], p[1], p[2], math.Sqrt(p[0]*p[0]+p[1]*p[1]+p[2]*p[2]+m*m))
}

func setFourVector(r ntuple.Row, prefix string, v kinematics.FourVector) {
	b := FourMomentumBranches(prefix)
	r.SetFloat(b[0], v.Px())
	r.SetFloat(b[1], v.Py())
	r.SetFloat(b[2], v.Pz())
	r.SetFloat(b[3], v.E())
}

func setPoint(r ntuple.Row, branches []string, p [3]float64) {
	for i := range branches {
		r.SetFloat(branches[i], p[i])
	}
}

type tableOptions struct {
	mode        DecayMode
	withB       bool
	withFitVars bool
	withTruth   bool
}

func defaultTableOptions() tableOptions {
	return tableOptions{mode: ModeBMinus, withB: true, withFitVars: true, withTruth: true}
}

// buildTable lays the events out the way the input ntuples do.
func buildTable(name string, opt tableOptions, events ...event) *ntuple.MemTable {
	m := opt.mode
	branches := []string{"runNumber", "eventNumber"}
	branches = append(branches, FourMomentumBranches(m.DPrefix)...)
	branches = append(branches, FourMomentumBranches(LeptonPrefix)...)
	branches = append(branches, m.EndVertexBranches()...)
	branches = append(branches, m.OwnPVBranches()...)
	if opt.withB {
		branches = append(branches, FourMomentumBranches(m.BPrefix)...)
	}
	if opt.withTruth {
		branches = append(branches, m.TrueMomentumBranches()...)
	}
	if opt.withFitVars {
		branches = append(branches, fitVarInputs()...)
	}

	rows := make([]ntuple.Row, 0, len(events))
	for _, e := range events {
		r := ntuple.NewRow()
		r.SetInt("runNumber", e.run)
		r.SetInt("eventNumber", e.evt)
		d := fourVector(e.d, d0Mass)
		mu := fourVector(e.mu, muMass)
		setFourVector(r, m.DPrefix, d)
		setFourVector(r, LeptonPrefix, mu)
		if opt.withB {
			setFourVector(r, m.BPrefix, d.Add(mu))
		}
		setPoint(r, m.EndVertexBranches(), e.endVertex)
		setPoint(r, m.OwnPVBranches(), e.ownPV)
		if opt.withTruth {
			setPoint(r, m.TrueMomentumBranches(), e.trueP)
		}
		if opt.withFitVars {
			r.SetFloat("FitVar_q2", 5e6)
			r.SetFloat("FitVar_Mmiss2", 2e6)
			r.SetFloat("FitVar_El", e.fitEl)
		}
		rows = append(rows, r)
	}
	return ntuple.NewMemTable(name, branches, rows...)
}

func testPool() *smear.Pool {
	p, err := smear.LoadPool([]float64{0.01, -0.02, 0.03, 0.004, -0.05, 0.012, 0.2, -0.3}, &smear.DefaultFilter)
	if err != nil {
		panic(err)
	}
	return p
}

type memRecorder struct {
	mu     sync.Mutex
	issues []EventIssue
	trees  []TreeSummary
	err    error
}

func (r *memRecorder) RecordEvent(_ context.Context, issue EventIssue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.issues = append(r.issues, issue)
	return nil
}

func (r *memRecorder) RecordTree(_ context.Context, s TreeSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trees = append(r.trees, s)
	return nil
}

type memObserver struct {
	values map[string][]float64
}

func newMemObserver() *memObserver {
	return &memObserver{values: map[string][]float64{}}
}

func (o *memObserver) Fill(tree, column string, v float64) {
	key := fmt.Sprintf("%s:%s", tree, column)
	o.values[key] = append(o.values[key], v)
}
