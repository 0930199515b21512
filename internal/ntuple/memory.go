package ntuple

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemTable is an in-memory Table.
type MemTable struct {
	name     string
	branches map[string]struct{}
	rows     []Row
}

// NewMemTable returns a table with the given schema and rows.
func NewMemTable(name string, branches []string, rows ...Row) *MemTable {
	t := &MemTable{name: name, branches: make(map[string]struct{}, len(branches)), rows: rows}
	for _, b := range branches {
		t.branches[b] = struct{}{}
	}
	return t
}

func (t *MemTable) Name() string { return t.name }

func (t *MemTable) HasBranch(name string) bool {
	_, ok := t.branches[name]
	return ok
}

func (t *MemTable) Entries() int64 { return int64(len(t.rows)) }

// Branches returns the schema in sorted order.
func (t *MemTable) Branches() []string {
	out := make([]string, 0, len(t.branches))
	for b := range t.branches {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

func (t *MemTable) Scan(branches []string, fn func(entry int64, row Row) error) error {
	for _, b := range branches {
		if !t.HasBranch(b) {
			return fmt.Errorf("%w: %s in tree %s", ErrBranchNotFound, b, t.name)
		}
	}
	for i, src := range t.rows {
		row := NewRow()
		for _, b := range branches {
			if v, ok := src.Ints[b]; ok {
				row.SetInt(b, v)
				continue
			}
			v, ok := src.Floats[b]
			if !ok {
				return fmt.Errorf("entry %d of %s has no value for %s", i, t.name, b)
			}
			row.SetFloat(b, v)
		}
		if err := fn(int64(i), row); err != nil {
			return err
		}
	}
	return nil
}

// MemSource is an in-memory Source.
type MemSource struct {
	tables map[string]*MemTable
}

// NewMemSource returns a source serving the given tables by name.
func NewMemSource(tables ...*MemTable) *MemSource {
	s := &MemSource{tables: make(map[string]*MemTable, len(tables))}
	for _, t := range tables {
		s.tables[t.Name()] = t
	}
	return s
}

func (s *MemSource) Table(name string) (Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, name)
	}
	return t, nil
}

// MemTree is an output tree captured by MemSink.
type MemTree struct {
	Columns []Column
	Rows    []Row
	Closed  bool
}

// Column returns every value of a float column in row order.
func (t *MemTree) Column(name string) []float64 {
	out := make([]float64, 0, len(t.Rows))
	for _, r := range t.Rows {
		v, ok := r.Float(name)
		if !ok {
			v = math.NaN()
		}
		out = append(out, v)
	}
	return out
}

// ColumnNames returns the declared column names in order.
func (t *MemTree) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// MemSink is an in-memory Sink.
type MemSink struct {
	mu    sync.Mutex
	Trees map[string]*MemTree
}

// NewMemSink returns an empty sink.
func NewMemSink() *MemSink {
	return &MemSink{Trees: map[string]*MemTree{}}
}

func (s *MemSink) CreateTree(path string, columns []Column) (TreeWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.Trees[path]; exists {
		return nil, fmt.Errorf("tree %s already created", path)
	}
	t := &MemTree{Columns: append([]Column(nil), columns...)}
	s.Trees[path] = t
	return &memTreeWriter{tree: t}, nil
}

type memTreeWriter struct {
	tree *MemTree
}

func (w *memTreeWriter) Write(row Row) error {
	if w.tree.Closed {
		return fmt.Errorf("write to closed tree")
	}
	out := NewRow()
	for _, c := range w.tree.Columns {
		switch c.Kind {
		case Int:
			v, _ := row.Int(c.Name)
			out.SetInt(c.Name, v)
		default:
			v, ok := row.Float(c.Name)
			if !ok {
				v = math.NaN()
			}
			out.SetFloat(c.Name, v)
		}
	}
	w.tree.Rows = append(w.tree.Rows, out)
	return nil
}

func (w *memTreeWriter) Close() error {
	w.tree.Closed = true
	return nil
}
