// Package ntuple is the tabular event-data layer: it exposes input trees as
// Tables of scalar branches and accepts output columns through a Sink.
//
// Two backends are provided: ROOT files via go-hep's groot, and an in-memory
// implementation used by tests and tools.
package ntuple

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrTreeNotFound is returned when a named tree is absent from a source.
	ErrTreeNotFound = errors.New("tree not found")
	// ErrBranchNotFound is returned when a requested branch is absent.
	ErrBranchNotFound = errors.New("branch not found")
)

// Kind is the storage type of an output column.
type Kind int

const (
	Float Kind = iota // float64
	Int               // int64
)

// Column describes one output branch.
type Column struct {
	Name string
	Kind Kind
}

// Row holds the values of one entry. Floating-point leaves are kept in
// Floats, integer and boolean leaves in Ints.
type Row struct {
	Floats map[string]float64
	Ints   map[string]int64
}

// NewRow returns an empty Row.
func NewRow() Row {
	return Row{Floats: map[string]float64{}, Ints: map[string]int64{}}
}

// Float returns a branch value widened to float64.
func (r Row) Float(name string) (float64, bool) {
	if v, ok := r.Floats[name]; ok {
		return v, true
	}
	if v, ok := r.Ints[name]; ok {
		return float64(v), true
	}
	return 0, false
}

// Int returns an integer branch value. Floating-point values are truncated.
func (r Row) Int(name string) (int64, bool) {
	if v, ok := r.Ints[name]; ok {
		return v, true
	}
	if v, ok := r.Floats[name]; ok && !math.IsNaN(v) {
		return int64(v), true
	}
	return 0, false
}

// SetFloat stores a float value.
func (r Row) SetFloat(name string, v float64) { r.Floats[name] = v }

// SetInt stores an integer value.
func (r Row) SetInt(name string, v int64) { r.Ints[name] = v }

// Has reports whether the row carries name.
func (r Row) Has(name string) bool {
	_, f := r.Floats[name]
	_, i := r.Ints[name]
	return f || i
}

// Table is a read-only tree of events.
type Table interface {
	Name() string
	HasBranch(name string) bool
	Entries() int64
	// Scan calls fn for every entry in order with the requested branches.
	// Scanning stops at the first error returned by fn.
	Scan(branches []string, fn func(entry int64, row Row) error) error
}

// Source opens tables by path, e.g. "TupleB0/DecayTree".
type Source interface {
	Table(name string) (Table, error)
}

// TreeWriter appends rows to one output tree.
type TreeWriter interface {
	Write(row Row) error
	Close() error
}

// Sink creates output trees.
type Sink interface {
	CreateTree(path string, columns []Column) (TreeWriter, error)
}

// ReadFloatColumn reads every entry of one branch, widened to float64.
func ReadFloatColumn(src Source, tree, branch string) ([]float64, error) {
	t, err := src.Table(tree)
	if err != nil {
		return nil, err
	}
	if !t.HasBranch(branch) {
		return nil, fmt.Errorf("%w: %s in tree %s", ErrBranchNotFound, branch, tree)
	}

	out := make([]float64, 0, t.Entries())
	err = t.Scan([]string{branch}, func(_ int64, row Row) error {
		v, _ := row.Float(branch)
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", tree, branch, err)
	}
	return out, nil
}

// SplitTreePath splits "dir/sub/name" into ("dir/sub", "name").
func SplitTreePath(path string) (dir, name string) {
	path = strings.Trim(path, "/")
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}
