// Package pipeline runs the E1 stages over workspace layers: facility
// classification, proximity metrics and scoring, kernel density, zonal
// summaries and kernel field repair.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/density"
	"github.com/sells-group/e1-cli/internal/engine"
	"github.com/sells-group/e1-cli/internal/layer"
	"github.com/sells-group/e1-cli/internal/model"
	"github.com/sells-group/e1-cli/internal/proximity"
	"github.com/sells-group/e1-cli/internal/reconcile"
	"github.com/sells-group/e1-cli/internal/scorer"
	"github.com/sells-group/e1-cli/internal/store"
	"github.com/sells-group/e1-cli/internal/taxonomy"
)

// LayerNames names the workspace layers.
type LayerNames struct {
	Facilities string
	Records    []string
	HydroZones string // polygon layer; blank keeps the hydro zone field as is
	AdminZones string // polygon layer; blank reads the admin zone field
}

// FieldNames names the source attribute fields.
type FieldNames struct {
	FacilityID  string
	Category    string
	Subcategory string
	AdminZone   string
	HydroZone   string
	ZoneID      string // id field on the hydro polygon layer
	AdminZoneID string // id field on the admin polygon layer
}

// Options configures a Pipeline.
type Options struct {
	Layers      LayerNames
	Fields      FieldNames
	Taxonomy    *taxonomy.Taxonomy
	Proximity   proximity.Config
	Weights     scorer.Weights
	Kernel      engine.KernelParams
	Concurrency int
	GridOut     string // ASCII grid path for the kernel surface; blank skips it
}

// Pipeline orchestrates the E1 stages.
type Pipeline struct {
	ws    layer.Workspace
	eng   engine.Engine
	store store.Store
	opts  Options

	classifier *taxonomy.Classifier
	extractor  *proximity.Extractor
	scorer     *scorer.Scorer
	smoother   *density.Smoother
	reconciler *reconcile.Reconciler
}

// New creates a Pipeline. st may be nil, in which case runs and zonal
// summaries are not persisted.
func New(ws layer.Workspace, eng engine.Engine, st store.Store, opts Options) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	opts.Proximity.Concurrency = opts.Concurrency
	return &Pipeline{
		ws:         ws,
		eng:        eng,
		store:      st,
		opts:       opts,
		classifier: taxonomy.NewClassifier(opts.Taxonomy),
		extractor:  proximity.New(eng, opts.Proximity),
		scorer:     scorer.New(opts.Weights, opts.Concurrency),
		smoother:   density.New(eng, opts.Kernel),
		reconciler: reconcile.New(),
	}
}

// StageStatus is the outcome of a stage.
type StageStatus string

const (
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
)

// StageResult records one executed stage.
type StageResult struct {
	Name     string      `json:"name"`
	Layer    string      `json:"layer,omitempty"`
	Status   StageStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}

// LayerReport summarises the stages run on one record layer.
type LayerReport struct {
	Layer     string                       `json:"layer"`
	Records   int                          `json:"records"`
	NoGeom    int                          `json:"without_geometry"`
	Reconcile *reconcile.Report            `json:"reconcile,omitempty"`
	Proximity *proximity.Summary           `json:"proximity,omitempty"`
	Score     *scorer.Result               `json:"score,omitempty"`
	Density   *density.Summary             `json:"density,omitempty"`
	Zones     map[string][]model.ZoneStats `json:"zones,omitempty"`
}

// Report is the outcome of a full run.
type Report struct {
	RunID      string           `json:"run_id,omitempty"`
	Facilities taxonomy.Summary `json:"facilities"`
	Layers     []*LayerReport   `json:"layers"`
	Stages     []StageResult    `json:"stages"`
}

// track runs fn as a named stage and records its outcome.
func (r *Report) track(stage, layerName string, fn func() error) error {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("stage", stage))
	if layerName != "" {
		log = log.With(zap.String("layer", layerName))
	}

	start := time.Now()
	err := fn()
	res := StageResult{Name: stage, Layer: layerName, Duration: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = StageFailed
		res.Error = err.Error()
		log.Error("pipeline: stage failed", zap.Int64("duration_ms", res.Duration), zap.Error(err))
	} else {
		res.Status = StageComplete
		log.Info("pipeline: stage complete", zap.Int64("duration_ms", res.Duration))
	}
	r.Stages = append(r.Stages, res)
	return err
}

// Run executes every stage: classify the facilities, then for each record
// layer repair the kernel field, compute metrics, density and zonal
// summaries. The first failing stage aborts the run.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	rep := &Report{}

	if p.store != nil {
		run, err := p.store.CreateRun(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		rep.RunID = run.ID
	}

	runErr := p.run(ctx, rep)

	if p.store != nil {
		status := model.RunStatusComplete
		if runErr != nil {
			status = model.RunStatusFailed
		}
		// The run record is closed even when ctx was cancelled.
		if err := p.store.FinishRun(context.WithoutCancel(ctx), rep.RunID, status, rep, runErr); err != nil {
			zap.L().Warn("pipeline: failed to finish run", zap.String("run_id", rep.RunID), zap.Error(err))
		}
	}
	if runErr != nil {
		return rep, runErr
	}
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, rep *Report) error {
	var facilities *facilitySet
	err := rep.track("classify", p.opts.Layers.Facilities, func() error {
		var err error
		facilities, rep.Facilities, err = p.classify(ctx)
		return err
	})
	if err != nil {
		return err
	}

	for _, name := range p.opts.Layers.Records {
		if err := p.runLayer(ctx, rep, facilities, name); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runLayer(ctx context.Context, rep *Report, facilities *facilitySet, name string) error {
	lr := &LayerReport{Layer: name}
	rep.Layers = append(rep.Layers, lr)

	l, err := p.openRecords(ctx, name)
	if err != nil {
		return err
	}

	if err := rep.track("fix-kernel", name, func() error {
		res, err := p.reconciler.Reconcile(ctx, l)
		lr.Reconcile = &res
		return err
	}); err != nil {
		return err
	}

	var set *recordSet
	if err := rep.track("metrics", name, func() error {
		var err error
		if set, err = p.loadRecords(ctx, l); err != nil {
			return err
		}
		lr.Records, lr.NoGeom = len(set.records), set.unlocated
		return p.metrics(ctx, facilities, set, lr)
	}); err != nil {
		return err
	}

	if err := rep.track("density", name, func() error {
		return p.density(ctx, facilities, set, lr)
	}); err != nil {
		return err
	}

	return rep.track("zones", name, func() error {
		return p.zones(ctx, rep.RunID, set, lr)
	})
}
