package main

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/e1-cli/internal/config"
	"github.com/sells-group/e1-cli/internal/db"
	"github.com/sells-group/e1-cli/internal/engine"
	"github.com/sells-group/e1-cli/internal/layer"
	"github.com/sells-group/e1-cli/internal/pipeline"
	"github.com/sells-group/e1-cli/internal/proximity"
	"github.com/sells-group/e1-cli/internal/scorer"
	"github.com/sells-group/e1-cli/internal/store"
	"github.com/sells-group/e1-cli/internal/taxonomy"
)

// backends holds the workspace, the optional run store and the shared pool.
type backends struct {
	ws   layer.Workspace
	st   store.Store
	pool *pgxpool.Pool
	pgWS *layer.Postgres
}

func (b *backends) Close() {
	if b.st != nil {
		b.st.Close() //nolint:errcheck
	}
	if b.ws != nil {
		b.ws.Close() //nolint:errcheck
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

func (b *backends) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if b.pool != nil {
		return b.pool, nil
	}
	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "connect postgres")
	}
	b.pool = pool
	return pool, nil
}

// openBackends opens the workspace and, when withStore is set, the run
// store with its schema migrated.
func openBackends(ctx context.Context, withStore bool) (*backends, error) {
	b := &backends{}

	switch cfg.Workspace.Driver {
	case "postgres":
		pool, err := b.connect(ctx)
		if err != nil {
			return nil, err
		}
		b.pgWS = layer.NewPostgres(pool, cfg.Workspace.Schema)
		b.ws = b.pgWS
	default:
		ws, err := layer.OpenSQLite(cfg.Workspace.Path)
		if err != nil {
			return nil, eris.Wrap(err, "open workspace")
		}
		b.ws = ws
	}

	if !withStore {
		return b, nil
	}
	st, err := openStore(ctx, b)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.st = st
	return b, nil
}

func openStore(ctx context.Context, b *backends) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := store.NewSQLite(cfg.Workspace.Path)
		if err != nil {
			return nil, eris.Wrap(err, "open store")
		}
		st = s
	case "postgres":
		pool, err := b.connect(ctx)
		if err != nil {
			return nil, err
		}
		st = store.NewPostgres(pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// pipelineOptions maps configuration onto pipeline options.
func pipelineOptions(c *config.Config) (pipeline.Options, error) {
	opts := pipeline.Options{
		Layers: pipeline.LayerNames{
			Facilities: c.Layers.Facilities,
			Records:    c.Layers.Records,
			HydroZones: c.Layers.HydroZones,
			AdminZones: c.Layers.AdminZones,
		},
		Fields: pipeline.FieldNames{
			FacilityID:  c.Fields.FacilityID,
			Category:    c.Fields.Category,
			Subcategory: c.Fields.Subcategory,
			AdminZone:   c.Fields.AdminZone,
			HydroZone:   c.Fields.HydroZone,
			ZoneID:      c.Fields.ZoneID,
			AdminZoneID: c.Fields.AdminZoneID,
		},
		Proximity: proximity.Config{
			SearchRadius: c.E1.SearchRadius,
			BufferRadius: c.E1.BufferRadius,
		},
		Weights: scorer.Weights{
			High:        c.E1.Weights.High,
			Medium:      c.E1.Weights.Medium,
			CountHigh:   c.E1.Weights.CountHigh,
			CountMedium: c.E1.Weights.CountMedium,
		},
		Kernel: engine.KernelParams{
			CellSize: c.Kernel.CellSize,
			Radius:   c.Kernel.Radius,
			AreaUnit: engine.AreaUnit(strings.ToUpper(c.Kernel.AreaUnit)),
		},
		Concurrency: c.Pipeline.Concurrency,
	}
	if err := scorer.ValidateWeights(opts.Weights); err != nil {
		return opts, err
	}

	if c.E1.TaxonomyFile != "" {
		tax, err := taxonomy.LoadFile(c.E1.TaxonomyFile)
		if err != nil {
			return opts, err
		}
		opts.Taxonomy = tax
	}
	return opts, nil
}

// newPipeline validates the configuration and wires a pipeline. The caller
// closes the returned backends.
func newPipeline(ctx context.Context, withStore bool, gridOut string) (*pipeline.Pipeline, *backends, error) {
	if err := cfg.Validate("run"); err != nil {
		return nil, nil, err
	}
	opts, err := pipelineOptions(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts.GridOut = gridOut

	b, err := openBackends(ctx, withStore)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.New(b.ws, engine.NewPlanar(), b.st, opts), b, nil
}

// recordLayers returns the --layer flag value or every configured record layer.
func recordLayers(flag string) []string {
	if flag != "" {
		return []string{flag}
	}
	return cfg.Layers.Records
}
