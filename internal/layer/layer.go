// Package layer models feature layers: attribute tables with a stable FID,
// an EWKB geometry and named, typed fields. Backends are an in-memory
// workspace, a SQLite workspace file and a Postgres schema.
package layer

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// FieldType is the storage type of a layer field.
type FieldType string

// Field types.
const (
	Text   FieldType = "TEXT"
	Short  FieldType = "SHORT"
	Long   FieldType = "LONG"
	Double FieldType = "DOUBLE"
)

// Valid reports whether t is a known field type.
func (t FieldType) Valid() bool {
	switch t {
	case Text, Short, Long, Double:
		return true
	}
	return false
}

// Field describes a named attribute column.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Row is one feature. Values holds string, int64 or float64 per field, or
// nil for null. Geom is EWKB and may be nil for attribute-only reads.
type Row struct {
	FID    int64
	Geom   []byte
	Values map[string]any
}

// ErrNotFound is returned when a layer does not exist.
var ErrNotFound = eris.New("layer: not found")

// Layer is a feature layer.
type Layer interface {
	Name() string
	Fields(ctx context.Context) ([]Field, error)
	AddField(ctx context.Context, f Field) error
	DropField(ctx context.Context, name string) error
	Count(ctx context.Context) (int, error)
	// Read calls fn for every row in FID order with the requested fields
	// (all fields when nil).
	Read(ctx context.Context, fields []string, fn func(Row) error) error
	// Update writes the given fields of each row, matched by FID.
	Update(ctx context.Context, fields []string, rows []Row) error
	// Insert appends rows. A zero FID is assigned by the backend.
	Insert(ctx context.Context, rows []Row) error
}

// Workspace is a collection of layers.
type Workspace interface {
	Open(ctx context.Context, name string) (Layer, error)
	// Create makes a new, empty layer, replacing any layer of the same name.
	Create(ctx context.Context, name string, fields []Field) (Layer, error)
	List(ctx context.Context) ([]string, error)
	Close() error
}

// FindField returns the field whose name matches case-insensitively.
func FindField(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// HasField reports whether the layer has a field named name
// (case-insensitive).
func HasField(ctx context.Context, l Layer, name string) (bool, error) {
	fields, err := l.Fields(ctx)
	if err != nil {
		return false, err
	}
	_, ok := FindField(fields, name)
	return ok, nil
}

// EnsureFields adds every wanted field the layer lacks and returns the
// names it created.
func EnsureFields(ctx context.Context, l Layer, want []Field) ([]string, error) {
	fields, err := l.Fields(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: list fields of %s", l.Name())
	}
	var created []string
	for _, f := range want {
		if _, ok := FindField(fields, f.Name); ok {
			continue
		}
		if err := l.AddField(ctx, f); err != nil {
			return created, eris.Wrapf(err, "layer: add field %s to %s", f.Name, l.Name())
		}
		fields = append(fields, f)
		created = append(created, f.Name)
	}
	return created, nil
}

// ReadAll collects every row of a layer.
func ReadAll(ctx context.Context, l Layer, fields []string) ([]Row, error) {
	var rows []Row
	err := l.Read(ctx, fields, func(r Row) error {
		rows = append(rows, r)
		return nil
	})
	return rows, err
}

// Coerce converts v to the Go representation of t. Integral types are
// stored as int64, doubles as float64, text as string.
func Coerce(t FieldType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case Text:
		return String(v), nil
	case Short, Long:
		n, ok := Int(v)
		if !ok {
			return nil, eris.Errorf("layer: %v is not an integer", v)
		}
		return n, nil
	case Double:
		f, ok := Float(v)
		if !ok {
			return nil, eris.Errorf("layer: %v is not a number", v)
		}
		return f, nil
	default:
		return nil, eris.Errorf("layer: unknown field type %q", t)
	}
}

// String renders a value as text.
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}

// StringPtr returns a pointer to the text of v, or nil when v is null or
// blank.
func StringPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(String(v))
	if s == "" {
		return nil
	}
	return &s
}

// Float converts numeric and numeric-text values.
func Float(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int16:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// FloatPtr returns v as a finite float, or nil.
func FloatPtr(v any) *float64 {
	f, ok := Float(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Int converts integral values. Floats are accepted when they carry no
// fraction.
func Int(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int64(x), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			f, ok := Float(x)
			if !ok || f != math.Trunc(f) {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	default:
		return 0, false
	}
}

func validateFields(fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return eris.New("layer: empty field name")
		}
		if !f.Type.Valid() {
			return eris.Errorf("layer: field %s has unknown type %q", f.Name, f.Type)
		}
		k := strings.ToLower(f.Name)
		if seen[k] || k == "fid" || k == "geom" {
			return eris.Errorf("layer: duplicate or reserved field %s", f.Name)
		}
		seen[k] = true
	}
	return nil
}
