package ntuple

import (
	"fmt"
	"math"
	"strings"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/groot/rtree"
)

// RootFile is a ROOT file opened for reading.
type RootFile struct {
	path string
	f    *riofs.File
}

// OpenRoot opens a ROOT file.
func OpenRoot(path string) (*RootFile, error) {
	f, err := groot.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &RootFile{path: path, f: f}, nil
}

// Close releases the file.
func (r *RootFile) Close() error {
	return r.f.Close()
}

// Table returns the tree stored under name (slash-separated directories allowed).
func (r *RootFile) Table(name string) (Table, error) {
	obj, err := riofs.Dir(r.f).Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %s: %v", ErrTreeNotFound, name, r.path, err)
	}
	tree, ok := obj.(rtree.Tree)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s is a %s", ErrTreeNotFound, name, r.path, obj.Class())
	}
	return &rootTable{name: name, tree: tree}, nil
}

type rootTable struct {
	name string
	tree rtree.Tree
}

func (t *rootTable) Name() string { return t.name }

func (t *rootTable) HasBranch(name string) bool {
	return t.tree.Branch(name) != nil
}

func (t *rootTable) Entries() int64 { return t.tree.Entries() }

func (t *rootTable) Scan(branches []string, fn func(entry int64, row Row) error) error {
	all := rtree.NewReadVars(t.tree)
	byName := make(map[string]rtree.ReadVar, len(all))
	for _, rv := range all {
		byName[rv.Name] = rv
	}

	rvars := make([]rtree.ReadVar, 0, len(branches))
	for _, b := range branches {
		rv, ok := byName[b]
		if !ok {
			return fmt.Errorf("%w: %s in tree %s", ErrBranchNotFound, b, t.name)
		}
		rvars = append(rvars, rv)
	}

	r, err := rtree.NewReader(t.tree, rvars)
	if err != nil {
		return fmt.Errorf("create reader for %s: %w", t.name, err)
	}
	defer r.Close()

	return r.Read(func(ctx rtree.RCtx) error {
		row := NewRow()
		for _, rv := range rvars {
			if err := setScalar(row, rv.Name, rv.Value); err != nil {
				return fmt.Errorf("entry %d of %s: %w", ctx.Entry, t.name, err)
			}
		}
		return fn(ctx.Entry, row)
	})
}

// setScalar widens a scalar leaf value into row.
func setScalar(row Row, name string, ptr interface{}) error {
	switch v := ptr.(type) {
	case *float64:
		row.SetFloat(name, *v)
	case *float32:
		row.SetFloat(name, float64(*v))
	case *int64:
		row.SetInt(name, *v)
	case *uint64:
		row.SetInt(name, int64(*v))
	case *int32:
		row.SetInt(name, int64(*v))
	case *uint32:
		row.SetInt(name, int64(*v))
	case *int16:
		row.SetInt(name, int64(*v))
	case *uint16:
		row.SetInt(name, int64(*v))
	case *int8:
		row.SetInt(name, int64(*v))
	case *uint8:
		row.SetInt(name, int64(*v))
	case *bool:
		var i int64
		if *v {
			i = 1
		}
		row.SetInt(name, i)
	default:
		return fmt.Errorf("branch %s: unsupported leaf type %T", name, ptr)
	}
	return nil
}

// RootSink writes output trees into a new ROOT file.
type RootSink struct {
	path string
	f    *riofs.File
}

// CreateRoot creates (or truncates) a ROOT file for writing.
func CreateRoot(path string) (*RootSink, error) {
	f, err := groot.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &RootSink{path: path, f: f}, nil
}

// Close flushes and closes the file. All tree writers must be closed first.
func (s *RootSink) Close() error {
	return s.f.Close()
}

func (s *RootSink) CreateTree(path string, columns []Column) (TreeWriter, error) {
	dirPath, name := SplitTreePath(path)
	dir, err := s.mkdirAll(dirPath)
	if err != nil {
		return nil, err
	}

	w := &rootTreeWriter{columns: columns, values: make([]interface{}, len(columns))}
	wvars := make([]rtree.WriteVar, len(columns))
	for i, c := range columns {
		switch c.Kind {
		case Int:
			w.values[i] = new(int64)
		default:
			w.values[i] = new(float64)
		}
		wvars[i] = rtree.WriteVar{Name: c.Name, Value: w.values[i]}
	}

	tw, err := rtree.NewWriter(dir, name, wvars, rtree.WithTitle(name))
	if err != nil {
		return nil, fmt.Errorf("create tree %s in %s: %w", path, s.path, err)
	}
	w.w = tw
	return w, nil
}

func (s *RootSink) mkdirAll(path string) (riofs.Directory, error) {
	var dir riofs.Directory = s.f
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		if obj, err := dir.Get(part); err == nil {
			sub, ok := obj.(riofs.Directory)
			if !ok {
				return nil, fmt.Errorf("%s in %s exists and is not a directory", part, s.path)
			}
			dir = sub
			continue
		}
		sub, err := dir.Mkdir(part)
		if err != nil {
			return nil, fmt.Errorf("create directory %s in %s: %w", part, s.path, err)
		}
		dir = sub
	}
	return dir, nil
}

type rootTreeWriter struct {
	w       rtree.Writer
	columns []Column
	values  []interface{}
}

func (w *rootTreeWriter) Write(row Row) error {
	for i, c := range w.columns {
		switch p := w.values[i].(type) {
		case *int64:
			v, _ := row.Int(c.Name)
			*p = v
		case *float64:
			v, ok := row.Float(c.Name)
			if !ok {
				v = math.NaN()
			}
			*p = v
		}
	}
	_, err := w.w.Write()
	return err
}

func (w *rootTreeWriter) Close() error {
	return w.w.Close()
}
