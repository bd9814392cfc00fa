package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/layer"
	"github.com/sells-group/e1-cli/internal/spatial"
)

// point is the coordinate pair of a point-table row.
type point struct {
	X float64
	Y float64
}

// csvPoint decodes the coordinate columns; blanks stay nil.
type csvPoint struct {
	X *float64 `csv:"x"`
	Y *float64 `csv:"y"`
}

// badRow marks a row whose coordinates cannot be used. It is skipped.
type badRow struct {
	row int
	err error
}

func (e *badRow) Error() string { return fmt.Sprintf("row %d: %v", e.row, e.err) }

func (e *badRow) Unwrap() error { return e.err }

// CSV imports a delimited point table. The x and y columns become the
// point geometry; every other column is a TEXT field.
func CSV(ctx context.Context, ws layer.Workspace, path string, opts Options) (Result, error) {
	opts = opts.withDefaults(path)

	f, err := os.Open(path)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: read header of %s", path)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	header, err = mapCoordinateColumns(header, opts)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: %s", path)
	}

	dec, err := csvutil.NewDecoder(r, header...)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: csv decoder for %s", path)
	}
	attrs := attributeColumns(header)

	line := 1
	next := func() (point, []string, error) {
		line++
		var cp csvPoint
		if err := dec.Decode(&cp); err != nil {
			var te *csvutil.UnmarshalTypeError
			if errors.As(err, &te) {
				return point{}, nil, &badRow{row: line, err: err}
			}
			return point{}, nil, err
		}
		if cp.X == nil || cp.Y == nil {
			return point{}, nil, &badRow{row: line, err: errors.New("blank coordinate")}
		}
		p := point{X: *cp.X, Y: *cp.Y}
		rec := dec.Record()
		vals := make([]string, len(attrs))
		for i, col := range attrs {
			if col < len(rec) {
				vals[i] = rec[col]
			}
		}
		return p, vals, nil
	}
	return loadPoints(ctx, ws, path, opts, pick(header, attrs), next)
}

// XLSX imports the first (or named) sheet of a workbook as a point table.
// The first row is the header.
func XLSX(ctx context.Context, ws layer.Workspace, path string, opts Options) (Result, error) {
	opts = opts.withDefaults(path)

	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: open workbook %s", path)
	}
	sheet, err := selectSheet(wb, opts.Sheet)
	if err != nil {
		return Result{}, err
	}
	if len(sheet.Rows) == 0 {
		return Result{}, eris.Errorf("ingest: sheet %s of %s is empty", sheet.Name, path)
	}

	header, err := mapCoordinateColumns(rowStrings(sheet.Rows[0]), opts)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: %s", path)
	}
	xi, yi := indexOf(header, "x"), indexOf(header, "y")
	attrs := attributeColumns(header)

	row := 1
	next := func() (point, []string, error) {
		for ; row < len(sheet.Rows); row++ {
			cells := rowStrings(sheet.Rows[row])
			if blank(cells) {
				continue
			}
			row++
			var p point
			var err error
			if p.X, err = parseCoord(cells, xi); err != nil {
				return p, nil, &badRow{row: row, err: err}
			}
			if p.Y, err = parseCoord(cells, yi); err != nil {
				return p, nil, &badRow{row: row, err: err}
			}
			vals := make([]string, len(attrs))
			for i, col := range attrs {
				if col < len(cells) {
					vals[i] = cells[col]
				}
			}
			return p, vals, nil
		}
		return point{}, nil, io.EOF
	}
	return loadPoints(ctx, ws, path, opts, pick(header, attrs), next)
}

func loadPoints(ctx context.Context, ws layer.Workspace, path string, opts Options, names []string,
	next func() (point, []string, error)) (Result, error) {
	candidates := make([]layer.Field, len(names))
	for i, n := range names {
		candidates[i] = layer.Field{Name: strings.TrimSpace(n), Type: layer.Text}
	}
	fields, keep := uniqueFields(candidates)

	dst, err := ws.Create(ctx, opts.Layer, fields)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: create layer %s", opts.Layer)
	}

	b := &batcher{ctx: ctx, dst: dst}
	var skipped int
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, eris.Wrap(err, "ingest: point table")
		}
		p, vals, err := next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var br *badRow
			if !errors.As(err, &br) {
				return Result{}, eris.Wrapf(err, "ingest: read %s", path)
			}
			skipped++
			zap.L().Debug("ingest: skipping row with bad coordinates", zap.String("path", path), zap.Error(err))
			continue
		}

		wkb, err := spatial.EncodePoint(p.X, p.Y, opts.SRID)
		if err != nil {
			return Result{}, err
		}
		row := layer.Row{Geom: wkb, Values: make(map[string]any, len(fields))}
		for i, v := range vals {
			if keep[i] {
				row.Values[candidates[i].Name] = textValue(v)
			}
		}
		if err := b.add(row); err != nil {
			return Result{}, err
		}
	}
	if err := b.flush(); err != nil {
		return Result{}, err
	}

	zap.L().Info("ingest: point table imported",
		zap.String("component", "ingest"),
		zap.String("path", path),
		zap.String("layer", opts.Layer),
		zap.Int("features", b.n),
		zap.Int("skipped", skipped),
	)
	return Result{Layer: opts.Layer, Fields: fields, Features: b.n, Skipped: skipped}, nil
}

// mapCoordinateColumns renames the configured coordinate columns to x and y
// (case-insensitive) and fails when either is missing.
func mapCoordinateColumns(header []string, opts Options) ([]string, error) {
	out := make([]string, len(header))
	var hasX, hasY bool
	for i, h := range header {
		h = strings.TrimSpace(h)
		switch {
		case !hasX && strings.EqualFold(h, opts.XField):
			out[i], hasX = "x", true
		case !hasY && strings.EqualFold(h, opts.YField):
			out[i], hasY = "y", true
		default:
			out[i] = h
		}
	}
	if !hasX || !hasY {
		return nil, eris.Errorf("missing coordinate columns %q/%q", opts.XField, opts.YField)
	}
	return out, nil
}

func selectSheet(wb *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := wb.Sheet[name]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(wb.Sheets) == 0 {
		return nil, eris.New("ingest: workbook has no sheets")
	}
	return wb.Sheets[0], nil
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func parseCoord(cells []string, i int) (float64, error) {
	if i < 0 || i >= len(cells) {
		return 0, eris.New("missing coordinate")
	}
	return strconv.ParseFloat(strings.ReplaceAll(cells[i], ",", "."), 64)
}

func textValue(v string) any {
	if v = strings.TrimSpace(v); v == "" {
		return nil
	}
	return v
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

// attributeColumns lists every column except the coordinates.
func attributeColumns(header []string) []int {
	var out []int
	for i, h := range header {
		if h != "x" && h != "y" {
			out = append(out, i)
		}
	}
	return out
}

func pick(header []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = header[j]
	}
	return out
}
