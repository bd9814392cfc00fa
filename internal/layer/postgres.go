package layer

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/db"
)

const insertBatchSize = 50000

// Postgres is a Workspace whose layers are PostGIS tables in one schema.
type Postgres struct {
	pool   db.Pool
	schema string
}

// NewPostgres returns a workspace over schema. See EnsureSchema.
func NewPostgres(pool db.Pool, schema string) *Postgres {
	if schema == "" {
		schema = "e1"
	}
	return &Postgres{pool: pool, schema: schema}
}

// EnsureSchema creates the workspace schema and the PostGIS extension when
// missing.
func (w *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := w.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return eris.Wrap(err, "postgres: ensure postgis")
	}
	if _, err := w.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{w.schema}.Sanitize()); err != nil {
		return eris.Wrapf(err, "postgres: ensure schema %s", w.schema)
	}
	return nil
}

// Close implements Workspace. The pool is owned by the caller.
func (w *Postgres) Close() error { return nil }

// Open implements Workspace.
func (w *Postgres) Open(ctx context.Context, name string) (Layer, error) {
	var exists bool
	err := w.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = $1 AND table_name = $2)`,
		w.schema, name).Scan(&exists)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: look up layer %s.%s", w.schema, name)
	}
	if !exists {
		return nil, eris.Wrapf(ErrNotFound, "layer %s.%s", w.schema, name)
	}
	return &pgLayer{pool: w.pool, schema: w.schema, name: name}, nil
}

// Create implements Workspace.
func (w *Postgres) Create(ctx context.Context, name string, fields []Field) (Layer, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	table := pgx.Identifier{w.schema, name}.Sanitize()
	cols := []string{"fid bigserial PRIMARY KEY", "geom geometry"}
	for _, f := range fields {
		cols = append(cols, fmt.Sprintf("%s %s", pgx.Identifier{f.Name}.Sanitize(), pgType(f.Type)))
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin create layer")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return nil, eris.Wrapf(err, "postgres: drop layer %s", name)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(cols, ", "))); err != nil {
		return nil, eris.Wrapf(err, "postgres: create layer %s", name)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrapf(err, "postgres: commit layer %s", name)
	}
	return &pgLayer{pool: w.pool, schema: w.schema, name: name}, nil
}

// List implements Workspace.
func (w *Postgres) List(ctx context.Context) ([]string, error) {
	rows, err := w.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_type = 'BASE TABLE' ORDER BY table_name`,
		w.schema)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list layers")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan layer name")
		}
		names = append(names, n)
	}
	return names, eris.Wrap(rows.Err(), "postgres: list layers")
}

type pgLayer struct {
	pool   db.Pool
	schema string
	name   string
}

func (l *pgLayer) Name() string { return l.name }

func (l *pgLayer) table() string { return pgx.Identifier{l.schema, l.name}.Sanitize() }

func (l *pgLayer) Fields(ctx context.Context) ([]Field, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, l.schema, l.name)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: columns of %s", l.name)
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan column of %s", l.name)
		}
		if name == "fid" || name == "geom" {
			continue
		}
		fields = append(fields, Field{Name: name, Type: fieldTypeOf(typ)})
	}
	return fields, eris.Wrapf(rows.Err(), "postgres: columns of %s", l.name)
}

func (l *pgLayer) AddField(ctx context.Context, f Field) error {
	if err := validateFields([]Field{f}); err != nil {
		return err
	}
	_, err := l.pool.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		l.table(), pgx.Identifier{f.Name}.Sanitize(), pgType(f.Type)))
	return eris.Wrapf(err, "postgres: add field %s to %s", f.Name, l.name)
}

func (l *pgLayer) DropField(ctx context.Context, name string) error {
	_, err := l.pool.Exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s",
		l.table(), pgx.Identifier{name}.Sanitize()))
	return eris.Wrapf(err, "postgres: drop field %s from %s", name, l.name)
}

func (l *pgLayer) Count(ctx context.Context) (int, error) {
	var n int
	err := l.pool.QueryRow(ctx, "SELECT count(*) FROM "+l.table()).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count %s", l.name)
}

func (l *pgLayer) selection(ctx context.Context, names []string) ([]Field, error) {
	all, err := l.Fields(ctx)
	if err != nil {
		return nil, err
	}
	if names == nil {
		return all, nil
	}
	out := make([]Field, len(names))
	for i, n := range names {
		f, ok := FindField(all, n)
		if !ok {
			return nil, eris.Errorf("postgres: %s has no field %s", l.name, n)
		}
		// Postgres identifiers are stored as created; use the stored name.
		out[i] = Field{Name: f.Name, Type: f.Type}
	}
	return out, nil
}

func (l *pgLayer) Read(ctx context.Context, fields []string, fn func(Row) error) error {
	sel, err := l.selection(ctx, fields)
	if err != nil {
		return err
	}
	cols := []string{"fid", "ST_AsEWKB(geom)"}
	for _, f := range sel {
		cols = append(cols, pgx.Identifier{f.Name}.Sanitize())
	}

	rows, err := l.pool.Query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY fid", strings.Join(cols, ", "), l.table()))
	if err != nil {
		return eris.Wrapf(err, "postgres: read %s", l.name)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return eris.Wrapf(err, "postgres: scan %s", l.name)
		}
		fid, _ := Int(vals[0])
		geom, _ := vals[1].([]byte)
		r := Row{FID: fid, Geom: geom, Values: make(map[string]any, len(sel))}
		for i, f := range sel {
			key := f.Name
			if fields != nil {
				key = fields[i]
			}
			v, err := Coerce(f.Type, vals[i+2])
			if err != nil {
				return eris.Wrapf(err, "postgres: %s feature %d field %s", l.name, fid, f.Name)
			}
			r.Values[key] = v
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "postgres: read %s", l.name)
	}
	rows.Close()

	for _, r := range out {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (l *pgLayer) Update(ctx context.Context, fields []string, rows []Row) error {
	if len(rows) == 0 || len(fields) == 0 {
		return nil
	}
	sel, err := l.selection(ctx, fields)
	if err != nil {
		return err
	}
	sets := make([]string, len(sel))
	for i, f := range sel {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{f.Name}.Sanitize(), i+1)
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE fid = $%d", l.table(), strings.Join(sets, ", "), len(sel)+1)

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "postgres: begin update %s", l.name)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range rows {
		args := make([]any, 0, len(sel)+1)
		for i, f := range sel {
			v, err := Coerce(f.Type, r.Values[fields[i]])
			if err != nil {
				return eris.Wrapf(err, "postgres: %s feature %d field %s", l.name, r.FID, f.Name)
			}
			args = append(args, v)
		}
		args = append(args, r.FID)
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return eris.Wrapf(err, "postgres: update %s feature %d", l.name, r.FID)
		}
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit update %s", l.name)
}

func (l *pgLayer) Insert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	fields, err := l.Fields(ctx)
	if err != nil {
		return err
	}
	columns := []string{"geom"}
	for _, f := range fields {
		columns = append(columns, f.Name)
	}
	withFID := rows[0].FID != 0
	if withFID {
		columns = append([]string{"fid"}, columns...)
	}

	data := make([][]any, 0, len(rows))
	for i, r := range rows {
		var rec []any
		if withFID {
			rec = append(rec, r.FID)
		}
		rec = append(rec, r.Geom)
		for _, f := range fields {
			v, err := Coerce(f.Type, lookup(r.Values, f.Name))
			if err != nil {
				return eris.Wrapf(err, "postgres: %s row %d field %s", l.name, i, f.Name)
			}
			rec = append(rec, pgValue(f.Type, v))
		}
		data = append(data, rec)
	}

	table := l.schema + "." + l.name
	var total int64
	for start := 0; start < len(data); start += insertBatchSize {
		end := min(start+insertBatchSize, len(data))
		n, err := db.CopyRows(ctx, l.pool, table, columns, data[start:end])
		if err != nil {
			return eris.Wrapf(err, "postgres: insert %s rows %d-%d", l.name, start, end)
		}
		total += n
	}
	zap.L().Debug("postgres: layer rows inserted",
		zap.String("component", "layer"),
		zap.String("layer", table),
		zap.Int64("rows", total),
	)
	return nil
}

func pgType(t FieldType) string {
	switch t {
	case Short:
		return "smallint"
	case Long:
		return "integer"
	case Double:
		return "double precision"
	default:
		return "text"
	}
}

func fieldTypeOf(dataType string) FieldType {
	switch dataType {
	case "smallint":
		return Short
	case "integer", "bigint":
		return Long
	case "double precision", "real", "numeric":
		return Double
	default:
		return Text
	}
}

// pgValue narrows integers to the column width so COPY encodes them.
func pgValue(t FieldType, v any) any {
	n, ok := v.(int64)
	if !ok {
		return v
	}
	switch t {
	case Short:
		return int16(n)
	case Long:
		return int32(n)
	}
	return v
}
