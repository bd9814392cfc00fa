package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/e1-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Its tables live
// next to the workspace layers and are prefixed e1_.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
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
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS e1_runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL DEFAULT 'running',
	report     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS e1_zone_stats (
	run_id     TEXT NOT NULL REFERENCES e1_runs(id),
	level      TEXT NOT NULL,
	zone_key   TEXT NOT NULL,
	mean       REAL,
	min        REAL,
	max        REAL,
	high_count INTEGER NOT NULL DEFAULT 0,
	total      INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, level, zone_key)
);

CREATE INDEX IF NOT EXISTS idx_e1_runs_created_at ON e1_runs(created_at);
`

// Migrate implements Store.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun implements Store.
func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO e1_runs (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.Run{ID: id, Status: model.RunStatusRunning, CreatedAt: now, UpdatedAt: now}, nil
}

// FinishRun implements Store.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, report any, runErr error) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE e1_runs SET status = ?, report = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), string(reportJSON), errorText(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

// GetRun implements Store.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	return scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, status, report, error, created_at, updated_at FROM e1_runs WHERE id = ?`, runID))
}

// LatestRun implements Store.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.Run, error) {
	return scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, status, report, error, created_at, updated_at FROM e1_runs ORDER BY created_at DESC, rowid DESC LIMIT 1`))
}

// SaveZoneStats implements Store. Rows for the same run, level and zone are
// replaced.
func (s *SQLiteStore) SaveZoneStats(ctx context.Context, runID string, stats []model.ZoneStats) error {
	if len(stats) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin zone stats")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO e1_zone_stats (run_id, level, zone_key, mean, min, max, high_count, total)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, level, zone_key) DO UPDATE SET
			mean = excluded.mean, min = excluded.min, max = excluded.max,
			high_count = excluded.high_count, total = excluded.total`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare zone stats")
	}
	defer stmt.Close() //nolint:errcheck

	for _, z := range stats {
		if _, err := stmt.ExecContext(ctx, runID, z.Level, zoneKey(z.ZoneID),
			z.Mean, z.Min, z.Max, z.HighCount, z.Total); err != nil {
			return eris.Wrapf(err, "sqlite: insert zone stats %s/%s", z.Level, zoneKey(z.ZoneID))
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit zone stats")
}

// ListZoneStats implements Store. The unassigned group sorts last.
func (s *SQLiteStore) ListZoneStats(ctx context.Context, runID, level string) ([]model.ZoneStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT level, zone_key, mean, min, max, high_count, total
		FROM e1_zone_stats
		WHERE run_id = ? AND level = ?
		ORDER BY zone_key = '', zone_key`, runID, level)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list zone stats")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ZoneStats
	for rows.Next() {
		var (
			z            model.ZoneStats
			key          string
			mean, mn, mx sql.NullFloat64
		)
		if err := rows.Scan(&z.Level, &key, &mean, &mn, &mx, &z.HighCount, &z.Total); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan zone stats")
		}
		z.ZoneID = zoneID(key)
		z.Mean, z.Min, z.Max = nullFloat(mean), nullFloat(mn), nullFloat(mx)
		out = append(out, z)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list zone stats iterate")
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r      model.Run
		report sql.NullString
		runErr sql.NullString
	)
	err := row.Scan(&r.ID, &r.Status, &report, &runErr, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if report.Valid && report.String != "null" {
		r.Report = json.RawMessage(report.String)
	}
	r.Error = runErr.String
	return &r, nil
}
