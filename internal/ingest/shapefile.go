package ingest

import (
	"context"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/layer"
	"github.com/sells-group/e1-cli/internal/spatial"
)

// Shapefile imports a shapefile (and its DBF attributes) into a new layer,
// replacing any layer of the same name.
func Shapefile(ctx context.Context, ws layer.Workspace, path string, opts Options) (Result, error) {
	opts = opts.withDefaults(path)

	reader, err := shp.Open(path)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	decode, codePage, err := attributeDecoder(path, opts.Encoding)
	if err != nil {
		return Result{}, err
	}

	dbf := reader.Fields()
	candidates := make([]layer.Field, len(dbf))
	for i, f := range dbf {
		candidates[i] = layer.Field{
			Name: strings.TrimRight(f.String(), "\x00"),
			Type: dbfFieldType(f),
		}
	}
	fields, keep := uniqueFields(candidates)

	dst, err := ws.Create(ctx, opts.Layer, fields)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: create layer %s", opts.Layer)
	}

	log := zap.L().With(
		zap.String("component", "ingest"),
		zap.String("path", path),
		zap.String("layer", opts.Layer),
	)
	log.Info("importing shapefile",
		zap.Int("fields", len(fields)),
		zap.String("code_page", codePage),
		zap.Int("srid", opts.SRID),
	)

	b := &batcher{ctx: ctx, dst: dst}
	var skipped int
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return Result{}, eris.Wrap(err, "ingest: shapefile")
		}
		idx, shape := reader.Shape()

		wkb, err := spatial.EncodeShape(shape, opts.SRID)
		if err != nil || wkb == nil {
			skipped++
			log.Debug("skipping feature without usable geometry", zap.Int("index", idx), zap.Error(err))
			continue
		}

		vals := make(map[string]any, len(fields))
		for i := range dbf {
			if !keep[i] {
				continue
			}
			raw := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			vals[candidates[i].Name] = attributeValue(candidates[i].Type, decode(raw))
		}
		if err := b.add(layer.Row{FID: int64(idx) + 1, Geom: wkb, Values: vals}); err != nil {
			return Result{}, err
		}
	}
	if err := reader.Err(); err != nil {
		return Result{}, eris.Wrapf(err, "ingest: read shapefile %s", path)
	}
	if err := b.flush(); err != nil {
		return Result{}, err
	}

	log.Info("shapefile imported", zap.Int("features", b.n), zap.Int("skipped", skipped))
	return Result{Layer: opts.Layer, Fields: fields, Features: b.n, Skipped: skipped}, nil
}

// dbfFieldType maps a DBF column to a layer field type.
func dbfFieldType(f shp.Field) layer.FieldType {
	switch f.Fieldtype {
	case 'N':
		if f.Precision > 0 {
			return layer.Double
		}
		return layer.Long
	case 'F':
		return layer.Double
	default:
		return layer.Text
	}
}

// attributeValue parses a DBF text value; blanks and unparsable numbers
// are null.
func attributeValue(t layer.FieldType, s string) any {
	if s == "" {
		return nil
	}
	switch t {
	case layer.Long, layer.Short:
		if n, ok := layer.Int(s); ok {
			return n
		}
		return nil
	case layer.Double:
		if f := layer.FloatPtr(s); f != nil {
			return *f
		}
		return nil
	default:
		return s
	}
}
