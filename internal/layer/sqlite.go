package layer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLite is a Workspace stored in a single SQLite file. Each layer is a
// table with an INTEGER PRIMARY KEY fid, a geom BLOB and one column per
// field; the declared column type is the field type.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a workspace file.
func OpenSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// A single connection keeps schema changes visible to every statement.
	db.SetMaxOpenConns(1)
	return &SQLite{db: db}, nil
}

// DB returns the underlying handle.
func (w *SQLite) DB() *sql.DB { return w.db }

// Close implements Workspace.
func (w *SQLite) Close() error { return w.db.Close() }

// Open implements Workspace.
func (w *SQLite) Open(ctx context.Context, name string) (Layer, error) {
	var n int
	err := w.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: look up layer %s", name)
	}
	if n == 0 {
		return nil, eris.Wrapf(ErrNotFound, "layer %s", name)
	}
	return &sqliteLayer{db: w.db, name: name}, nil
}

// Create implements Workspace.
func (w *SQLite) Create(ctx context.Context, name string, fields []Field) (Layer, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	cols := []string{"fid INTEGER PRIMARY KEY", "geom BLOB"}
	for _, f := range fields {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(f.Name), f.Type))
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin create layer")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return nil, eris.Wrapf(err, "sqlite: drop layer %s", name)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return nil, eris.Wrapf(err, "sqlite: create layer %s", name)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: commit layer %s", name)
	}
	return &sqliteLayer{db: w.db, name: name}, nil
}

// List implements Workspace.
func (w *SQLite) List(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name NOT LIKE 'e1_%' ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list layers")
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan layer name")
		}
		names = append(names, n)
	}
	return names, eris.Wrap(rows.Err(), "sqlite: list layers")
}

type sqliteLayer struct {
	db   *sql.DB
	name string
}

func (l *sqliteLayer) Name() string { return l.name }

func (l *sqliteLayer) Fields(ctx context.Context) ([]Field, error) {
	rows, err := l.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(l.name)))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: table info %s", l.name)
	}
	defer rows.Close() //nolint:errcheck

	var fields []Field
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan table info %s", l.name)
		}
		if strings.EqualFold(name, "fid") || strings.EqualFold(name, "geom") {
			continue
		}
		fields = append(fields, Field{Name: name, Type: sqliteFieldType(typ)})
	}
	return fields, eris.Wrapf(rows.Err(), "sqlite: table info %s", l.name)
}

func (l *sqliteLayer) AddField(ctx context.Context, f Field) error {
	if err := validateFields([]Field{f}); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(l.name), quoteIdent(f.Name), f.Type))
	return eris.Wrapf(err, "sqlite: add field %s to %s", f.Name, l.name)
}

func (l *sqliteLayer) DropField(ctx context.Context, name string) error {
	_, err := l.db.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quoteIdent(l.name), quoteIdent(name)))
	return eris.Wrapf(err, "sqlite: drop field %s from %s", name, l.name)
}

func (l *sqliteLayer) Count(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, "SELECT count(*) FROM "+quoteIdent(l.name)).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count %s", l.name)
}

func (l *sqliteLayer) selection(ctx context.Context, names []string) ([]Field, error) {
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
			return nil, eris.Errorf("sqlite: %s has no field %s", l.name, n)
		}
		out[i] = Field{Name: n, Type: f.Type}
	}
	return out, nil
}

func (l *sqliteLayer) Read(ctx context.Context, fields []string, fn func(Row) error) error {
	sel, err := l.selection(ctx, fields)
	if err != nil {
		return err
	}
	cols := []string{"fid", "geom"}
	for _, f := range sel {
		cols = append(cols, quoteIdent(f.Name))
	}
	q := fmt.Sprintf("SELECT %s FROM %s ORDER BY fid", strings.Join(cols, ", "), quoteIdent(l.name))

	rows, err := l.db.QueryContext(ctx, q)
	if err != nil {
		return eris.Wrapf(err, "sqlite: read %s", l.name)
	}
	defer rows.Close() //nolint:errcheck

	// Rows are buffered so fn may write to the same workspace.
	var out []Row
	for rows.Next() {
		var (
			fid  int64
			geom []byte
		)
		vals := make([]any, len(sel))
		dest := []any{&fid, &geom}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return eris.Wrapf(err, "sqlite: scan %s", l.name)
		}
		r := Row{FID: fid, Geom: geom, Values: make(map[string]any, len(sel))}
		for i, f := range sel {
			v, err := Coerce(f.Type, vals[i])
			if err != nil {
				return eris.Wrapf(err, "sqlite: %s feature %d field %s", l.name, fid, f.Name)
			}
			r.Values[f.Name] = v
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "sqlite: read %s", l.name)
	}
	rows.Close() //nolint:errcheck

	for _, r := range out {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func (l *sqliteLayer) Update(ctx context.Context, fields []string, rows []Row) error {
	if len(rows) == 0 || len(fields) == 0 {
		return nil
	}
	sel, err := l.selection(ctx, fields)
	if err != nil {
		return err
	}
	sets := make([]string, len(sel))
	for i, f := range sel {
		sets[i] = quoteIdent(f.Name) + " = ?"
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE fid = ?", quoteIdent(l.name), strings.Join(sets, ", "))

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin update %s", l.name)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare update %s", l.name)
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range rows {
		args := make([]any, 0, len(sel)+1)
		for _, f := range sel {
			v, err := Coerce(f.Type, r.Values[f.Name])
			if err != nil {
				return eris.Wrapf(err, "sqlite: %s feature %d field %s", l.name, r.FID, f.Name)
			}
			args = append(args, v)
		}
		args = append(args, r.FID)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "sqlite: update %s feature %d", l.name, r.FID)
		}
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit update %s", l.name)
}

func (l *sqliteLayer) Insert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	fields, err := l.Fields(ctx)
	if err != nil {
		return err
	}
	cols := []string{"fid", "geom"}
	marks := []string{"?", "?"}
	for _, f := range fields {
		cols = append(cols, quoteIdent(f.Name))
		marks = append(marks, "?")
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(l.name), strings.Join(cols, ", "), strings.Join(marks, ", "))

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin insert %s", l.name)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert %s", l.name)
	}
	defer stmt.Close() //nolint:errcheck

	for i, r := range rows {
		var fid any
		if r.FID != 0 {
			fid = r.FID
		}
		args := []any{fid, r.Geom}
		for _, f := range fields {
			v, err := Coerce(f.Type, lookup(r.Values, f.Name))
			if err != nil {
				return eris.Wrapf(err, "sqlite: %s row %d field %s", l.name, i, f.Name)
			}
			args = append(args, v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s row %d", l.name, i)
		}
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit insert %s", l.name)
}

// lookup finds a value by case-insensitive key.
func lookup(vals map[string]any, name string) any {
	if v, ok := vals[name]; ok {
		return v
	}
	for k, v := range vals {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

func sqliteFieldType(decl string) FieldType {
	switch t := FieldType(strings.ToUpper(strings.TrimSpace(decl))); t {
	case Text, Short, Long, Double:
		return t
	}
	upper := strings.ToUpper(decl)
	switch {
	case strings.Contains(upper, "INT"):
		return Long
	case strings.Contains(upper, "REAL"), strings.Contains(upper, "FLOA"), strings.Contains(upper, "DOUB"):
		return Double
	default:
		return Text
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
