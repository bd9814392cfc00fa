// Package ingest loads shapefiles and point tables (CSV, XLSX) into
// workspace layers.
package ingest

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/e1-cli/internal/layer"
	"github.com/sells-group/e1-cli/internal/spatial"
)

const insertBatch = 5000

// Options configures an import.
type Options struct {
	Layer    string // target layer; defaults to the file's base name
	SRID     int    // SRID tagged on geometries; defaults to spatial.DefaultSRID
	Encoding string // attribute code page; overrides a .cpg sidecar
	XField   string // point tables: x column (default "x")
	YField   string // point tables: y column (default "y")
	Sheet    string // XLSX: sheet name; first sheet when empty
}

func (o Options) withDefaults(path string) Options {
	if o.Layer == "" {
		base := filepath.Base(path)
		o.Layer = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if o.SRID == 0 {
		o.SRID = spatial.DefaultSRID
	}
	if o.XField == "" {
		o.XField = "x"
	}
	if o.YField == "" {
		o.YField = "y"
	}
	return o
}

// Result summarises an import.
type Result struct {
	Layer    string        `json:"layer"`
	Fields   []layer.Field `json:"fields"`
	Features int           `json:"features"`
	Skipped  int           `json:"skipped"`
}

// File imports path, choosing the reader by extension.
func File(ctx context.Context, ws layer.Workspace, path string, opts Options) (Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return Shapefile(ctx, ws, path, opts)
	case ".csv", ".txt":
		return CSV(ctx, ws, path, opts)
	case ".xlsx":
		return XLSX(ctx, ws, path, opts)
	default:
		return Result{}, eris.Errorf("ingest: unsupported file type %s", path)
	}
}

// batcher buffers rows and inserts them in chunks.
type batcher struct {
	ctx  context.Context
	dst  layer.Layer
	rows []layer.Row
	n    int
}

func (b *batcher) add(r layer.Row) error {
	b.rows = append(b.rows, r)
	if len(b.rows) >= insertBatch {
		return b.flush()
	}
	return nil
}

func (b *batcher) flush() error {
	if len(b.rows) == 0 {
		return nil
	}
	if err := b.dst.Insert(b.ctx, b.rows); err != nil {
		return eris.Wrapf(err, "ingest: insert into %s", b.dst.Name())
	}
	b.n += len(b.rows)
	b.rows = b.rows[:0]
	return nil
}

// uniqueFields drops duplicate and reserved names, keeping the first of
// each case-insensitive name. keep[i] reports whether column i survived.
func uniqueFields(in []layer.Field) ([]layer.Field, []bool) {
	seen := make(map[string]bool, len(in))
	out := make([]layer.Field, 0, len(in))
	keep := make([]bool, len(in))
	for i, f := range in {
		k := strings.ToLower(strings.TrimSpace(f.Name))
		if k == "" || k == "fid" || k == "geom" || seen[k] {
			continue
		}
		seen[k] = true
		keep[i] = true
		out = append(out, f)
	}
	return out, keep
}
