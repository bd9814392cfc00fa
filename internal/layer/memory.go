package layer

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// Memory is an in-process Workspace.
type Memory struct {
	mu     sync.Mutex
	layers map[string]*MemoryLayer
}

// NewMemory creates an empty in-memory workspace.
func NewMemory() *Memory {
	return &Memory{layers: make(map[string]*MemoryLayer)}
}

// Open implements Workspace.
func (m *Memory) Open(_ context.Context, name string) (Layer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[name]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "layer %s", name)
	}
	return l, nil
}

// Create implements Workspace.
func (m *Memory) Create(_ context.Context, name string, fields []Field) (Layer, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	l := &MemoryLayer{name: name, fields: append([]Field(nil), fields...)}
	m.mu.Lock()
	m.layers[name] = l
	m.mu.Unlock()
	return l, nil
}

// List implements Workspace.
func (m *Memory) List(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.layers))
	for n := range m.layers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Close implements Workspace.
func (m *Memory) Close() error { return nil }

// MemoryLayer is a Layer held in memory.
type MemoryLayer struct {
	mu      sync.RWMutex
	name    string
	fields  []Field
	rows    []Row
	nextFID int64
}

// Name implements Layer.
func (l *MemoryLayer) Name() string { return l.name }

// Fields implements Layer.
func (l *MemoryLayer) Fields(context.Context) ([]Field, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Field(nil), l.fields...), nil
}

// AddField implements Layer.
func (l *MemoryLayer) AddField(_ context.Context, f Field) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := validateFields(append(append([]Field(nil), l.fields...), f)); err != nil {
		return err
	}
	l.fields = append(l.fields, f)
	return nil
}

// DropField implements Layer.
func (l *MemoryLayer) DropField(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, f := range l.fields {
		if strings.EqualFold(f.Name, name) {
			l.fields = append(l.fields[:i], l.fields[i+1:]...)
			for _, r := range l.rows {
				delete(r.Values, f.Name)
			}
			return nil
		}
	}
	return eris.Errorf("layer: %s has no field %s", l.name, name)
}

// Count implements Layer.
func (l *MemoryLayer) Count(context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rows), nil
}

func (l *MemoryLayer) resolve(names []string) ([]Field, error) {
	if names == nil {
		return append([]Field(nil), l.fields...), nil
	}
	out := make([]Field, len(names))
	for i, n := range names {
		f, ok := FindField(l.fields, n)
		if !ok {
			return nil, eris.Errorf("layer: %s has no field %s", l.name, n)
		}
		out[i] = Field{Name: n, Type: f.Type}
	}
	return out, nil
}

// Read implements Layer.
func (l *MemoryLayer) Read(ctx context.Context, fields []string, fn func(Row) error) error {
	l.mu.RLock()
	sel, err := l.resolve(fields)
	if err != nil {
		l.mu.RUnlock()
		return err
	}
	rows := make([]Row, len(l.rows))
	for i, r := range l.rows {
		vals := make(map[string]any, len(sel))
		for _, f := range sel {
			stored, _ := FindField(l.fields, f.Name)
			vals[f.Name] = r.Values[stored.Name]
		}
		rows[i] = Row{FID: r.FID, Geom: r.Geom, Values: vals}
	}
	l.mu.RUnlock()

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Update implements Layer.
func (l *MemoryLayer) Update(_ context.Context, fields []string, rows []Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	sel, err := l.resolve(fields)
	if err != nil {
		return err
	}
	index := make(map[int64]int, len(l.rows))
	for i, r := range l.rows {
		index[r.FID] = i
	}
	for _, r := range rows {
		i, ok := index[r.FID]
		if !ok {
			return eris.Errorf("layer: %s has no feature %d", l.name, r.FID)
		}
		for _, f := range sel {
			stored, _ := FindField(l.fields, f.Name)
			v, err := Coerce(f.Type, r.Values[f.Name])
			if err != nil {
				return eris.Wrapf(err, "layer: %s feature %d field %s", l.name, r.FID, f.Name)
			}
			l.rows[i].Values[stored.Name] = v
		}
	}
	return nil
}

// Insert implements Layer.
func (l *MemoryLayer) Insert(_ context.Context, rows []Row) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range rows {
		fid := r.FID
		if fid == 0 {
			l.nextFID++
			fid = l.nextFID
		} else if fid > l.nextFID {
			l.nextFID = fid
		}
		vals := make(map[string]any, len(l.fields))
		for _, f := range l.fields {
			v, err := Coerce(f.Type, lookup(r.Values, f.Name))
			if err != nil {
				return eris.Wrapf(err, "layer: %s insert field %s", l.name, f.Name)
			}
			vals[f.Name] = v
		}
		l.rows = append(l.rows, Row{FID: fid, Geom: r.Geom, Values: vals})
	}
	sort.SliceStable(l.rows, func(i, j int) bool { return l.rows[i].FID < l.rows[j].FID })
	return nil
}
