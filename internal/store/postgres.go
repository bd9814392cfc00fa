package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/db"
	"github.com/sells-group/e1-cli/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLock is the advisory lock key held while migrating.
const migrationLock = 8675311

// PostgresStore implements Store on the e1_store schema. The pool is owned
// by the caller.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close implements Store.
func (s *PostgresStore) Close() error { return nil }

// Migrate applies pending migrations in filename order under an advisory
// lock.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLock); err != nil {
		return eris.Wrap(err, "postgres: acquire migration lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLock); err != nil {
			log.Warn("failed to release migration lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS e1_store;
		CREATE TABLE IF NOT EXISTS e1_store.schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO e1_store.schema_migrations (filename) VALUES ($1)", name); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
		log.Info("migration applied", zap.String("file", name))
	}
	return nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM e1_store.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "postgres: iterate migrations")
}

// CreateRun implements Store.
func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	r := &model.Run{ID: uuid.New().String(), Status: model.RunStatusRunning}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO e1_store.runs (id, status) VALUES ($1, $2) RETURNING created_at, updated_at`,
		r.ID, string(r.Status),
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return r, nil
}

// FinishRun implements Store.
func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, report any, runErr error) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE e1_store.runs SET status = $1, report = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), reportJSON, errorText(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

const runColumns = `id::text, status, report, error, created_at, updated_at`

// GetRun implements Store.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	return scanPgRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM e1_store.runs WHERE id = $1`, runID))
}

// LatestRun implements Store.
func (s *PostgresStore) LatestRun(ctx context.Context) (*model.Run, error) {
	return scanPgRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM e1_store.runs ORDER BY created_at DESC LIMIT 1`))
}

func scanPgRun(row scannable) (*model.Run, error) {
	var (
		r      model.Run
		status string
		report []byte
		runErr *string
	)
	err := row.Scan(&r.ID, &status, &report, &runErr, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	r.Status = model.RunStatus(status)
	if len(report) > 0 && string(report) != "null" {
		r.Report = json.RawMessage(report)
	}
	if runErr != nil {
		r.Error = *runErr
	}
	return &r, nil
}

var zoneStatsColumns = []string{"run_id", "level", "zone_key", "mean", "min", "max", "high_count", "total"}

// SaveZoneStats implements Store via a bulk upsert keyed on run, level
// and zone.
func (s *PostgresStore) SaveZoneStats(ctx context.Context, runID string, stats []model.ZoneStats) error {
	rows := make([][]any, len(stats))
	for i, z := range stats {
		rows[i] = []any{runID, z.Level, zoneKey(z.ZoneID), z.Mean, z.Min, z.Max, int32(z.HighCount), int32(z.Total)}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "e1_store.zone_stats",
		Columns:      zoneStatsColumns,
		ConflictKeys: []string{"run_id", "level", "zone_key"},
	}, rows)
	if err != nil {
		return eris.Wrapf(err, "postgres: save zone stats for run %s", runID)
	}
	zap.L().Debug("zone stats saved",
		zap.String("component", "store"),
		zap.String("run_id", runID),
		zap.Int64("rows", n),
	)
	return nil
}

// ListZoneStats implements Store. The unassigned group sorts last.
func (s *PostgresStore) ListZoneStats(ctx context.Context, runID, level string) ([]model.ZoneStats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT level, zone_key, mean, min, max, high_count, total
		FROM e1_store.zone_stats
		WHERE run_id = $1 AND level = $2
		ORDER BY zone_key = '', zone_key`, runID, level)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list zone stats")
	}
	defer rows.Close()

	var out []model.ZoneStats
	for rows.Next() {
		var (
			z           model.ZoneStats
			key         string
			high, total int32
		)
		if err := rows.Scan(&z.Level, &key, &z.Mean, &z.Min, &z.Max, &high, &total); err != nil {
			return nil, eris.Wrap(err, "postgres: scan zone stats")
		}
		z.ZoneID = zoneID(key)
		z.HighCount, z.Total = int(high), int(total)
		out = append(out, z)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate zone stats")
}
