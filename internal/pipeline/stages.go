package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/density"
	"github.com/sells-group/e1-cli/internal/layer"
	"github.com/sells-group/e1-cli/internal/model"
	"github.com/sells-group/e1-cli/internal/reconcile"
	"github.com/sells-group/e1-cli/internal/taxonomy"
	"github.com/sells-group/e1-cli/internal/zonal"
)

// ensure creates missing output fields, naming the stage on failure.
func ensure(ctx context.Context, stage string, l layer.Layer, fields []layer.Field) error {
	created, err := layer.EnsureFields(ctx, l, fields)
	if err != nil {
		return eris.Wrapf(err, "pipeline: %s: prepare fields on %s", stage, l.Name())
	}
	if len(created) > 0 {
		zap.L().Info("pipeline: fields created",
			zap.String("component", "pipeline"),
			zap.String("stage", stage),
			zap.String("layer", l.Name()),
			zap.Strings("fields", created),
		)
	}
	return nil
}

func write(ctx context.Context, stage string, l layer.Layer, fields []string, rows []layer.Row) error {
	if err := l.Update(ctx, fields, rows); err != nil {
		return eris.Wrapf(err, "pipeline: %s: write fields %v on %s", stage, fields, l.Name())
	}
	return nil
}

// Classify assigns riesgo_E1 and peso_E1 to every facility.
func (p *Pipeline) Classify(ctx context.Context) (taxonomy.Summary, error) {
	_, sum, err := p.classify(ctx)
	return sum, err
}

func (p *Pipeline) classify(ctx context.Context) (*facilitySet, taxonomy.Summary, error) {
	set, err := p.loadFacilities(ctx)
	if err != nil {
		return nil, taxonomy.Summary{}, err
	}
	sum := p.classifier.Classify(set.all)
	p.classifier.Classify(set.located)

	if err := ensure(ctx, "classify", set.layer, facilityFields); err != nil {
		return nil, sum, err
	}
	rows := make([]layer.Row, len(set.all))
	for i, f := range set.all {
		rows[i] = layer.Row{FID: f.FID, Values: map[string]any{
			FieldRiskClass:  string(f.Tier),
			FieldRiskWeight: f.Weight,
		}}
	}
	if err := write(ctx, "classify", set.layer, names(facilityFields), rows); err != nil {
		return nil, sum, err
	}

	zap.L().Info("pipeline: facilities classified",
		zap.String("component", "pipeline"),
		zap.Int("high", sum.High),
		zap.Int("medium", sum.Medium),
		zap.Int("low", sum.Low),
		zap.Int("default_class", sum.Misses),
		zap.Int("without_geometry", len(set.all)-len(set.located)),
	)
	return set, sum, nil
}

// facilitiesForScoring loads and classifies facilities in memory without
// writing them back.
func (p *Pipeline) facilitiesForScoring(ctx context.Context) (*facilitySet, error) {
	set, err := p.loadFacilities(ctx)
	if err != nil {
		return nil, err
	}
	p.classifier.Classify(set.located)
	return set, nil
}

// Metrics computes the proximity features and E1 score of one record layer.
func (p *Pipeline) Metrics(ctx context.Context, name string) (*LayerReport, error) {
	facilities, err := p.facilitiesForScoring(ctx)
	if err != nil {
		return nil, err
	}
	set, lr, err := p.recordsFor(ctx, name)
	if err != nil {
		return nil, err
	}
	return lr, p.metrics(ctx, facilities, set, lr)
}

// Records returns the scored records of a layer as currently stored, in
// feature order. Features without usable geometry have NoGeometry set.
func (p *Pipeline) Records(ctx context.Context, name string) ([]model.ServiceRecord, error) {
	set, _, err := p.recordsFor(ctx, name)
	if err != nil {
		return nil, err
	}
	return set.records, nil
}

func (p *Pipeline) recordsFor(ctx context.Context, name string) (*recordSet, *LayerReport, error) {
	l, err := p.openRecords(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	set, err := p.loadRecords(ctx, l)
	if err != nil {
		return nil, nil, err
	}
	return set, &LayerReport{Layer: name, Records: len(set.records), NoGeom: set.unlocated}, nil
}

func (p *Pipeline) metrics(ctx context.Context, facilities *facilitySet, set *recordSet, lr *LayerReport) error {
	if err := ensure(ctx, "metrics", set.layer, metricFields); err != nil {
		return err
	}

	idx, sub := set.located()
	prox, err := p.extractor.Extract(ctx, facilities.located, sub)
	if err != nil {
		return eris.Wrapf(err, "pipeline: metrics: proximity on %s", set.layer.Name())
	}
	set.merge(idx, sub)
	for i := range set.records {
		if set.records[i].NoGeometry {
			clearProximity(&set.records[i])
		}
	}
	lr.Proximity = &prox

	res, err := p.scorer.Score(ctx, set.records)
	if err != nil {
		return eris.Wrapf(err, "pipeline: metrics: score %s", set.layer.Name())
	}
	lr.Score = &res

	rows := make([]layer.Row, len(set.records))
	for i := range set.records {
		r := &set.records[i]
		rows[i] = layer.Row{FID: r.FID, Values: map[string]any{
			FieldDistHigh:      ptrValue(r.DistHigh),
			FieldDistMedium:    ptrValue(r.DistMedium),
			FieldCountHigh:     r.CountHigh,
			FieldCountMedium:   r.CountMedium,
			FieldNearestHigh:   ptrValue(r.NearestHighID),
			FieldExposedHigh:   flag(r.ExposedHigh),
			FieldRaw:           ptrValue(r.Raw),
			FieldNorm:          ptrValue(r.Norm),
			FieldCategoryLabel: r.CategoryLabel,
			FieldCategory:      r.Category,
		}}
	}
	if err := write(ctx, "metrics", set.layer, names(metricFields), rows); err != nil {
		return err
	}

	zap.L().Info("pipeline: E1 computed",
		zap.String("component", "pipeline"),
		zap.String("layer", set.layer.Name()),
		zap.Float64("max_raw", res.MaxRaw),
		zap.Bool("degenerate", res.Degenerate),
		zap.Int("records", len(set.records)),
	)
	return nil
}

// clearProximity resets the features of a record that cannot be placed, so
// it scores a raw E1 of zero.
func clearProximity(r *model.ServiceRecord) {
	r.DistHigh, r.DistMedium = nil, nil
	r.CountHigh, r.CountMedium = 0, 0
	r.NearestHighID = nil
	r.ExposedHigh = false
}

// Density samples the facility kernel surface at every record and derives
// E1_high. The layer must already carry E1_clas.
func (p *Pipeline) Density(ctx context.Context, name string) (*LayerReport, error) {
	facilities, err := p.facilitiesForScoring(ctx)
	if err != nil {
		return nil, err
	}
	set, lr, err := p.recordsFor(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := requireFields(ctx, set.layer, "density", FieldCategory); err != nil {
		return nil, err
	}
	return lr, p.density(ctx, facilities, set, lr)
}

func (p *Pipeline) density(ctx context.Context, facilities *facilitySet, set *recordSet, lr *LayerReport) error {
	if err := ensure(ctx, "density", set.layer, densityFields); err != nil {
		return err
	}

	idx, sub := set.located()
	surface, sum, err := p.smoother.Smooth(ctx, facilities.located, sub)
	if err != nil {
		return eris.Wrapf(err, "pipeline: density: smooth %s", set.layer.Name())
	}
	set.merge(idx, sub)
	for i := range set.records {
		if r := &set.records[i]; r.NoGeometry {
			r.Kernel, r.High = nil, false
		}
	}
	lr.Density = &sum

	if p.opts.GridOut != "" {
		if err := density.WriteGrid(p.opts.GridOut, surface); err != nil {
			return eris.Wrap(err, "pipeline: density: write grid")
		}
	}

	rows := make([]layer.Row, len(set.records))
	for i := range set.records {
		r := &set.records[i]
		rows[i] = layer.Row{FID: r.FID, Values: map[string]any{
			FieldKernel: ptrValue(r.Kernel),
			FieldHigh:   flag(r.High),
		}}
	}
	return write(ctx, "density", set.layer, names(densityFields), rows)
}

// Zones assigns zone ids from the configured polygon layers, aggregates
// E1_norm and E1_high per admin and hydro zone, and persists the summaries
// under runID when a store is configured. The layer must already carry
// E1_norm and E1_high.
func (p *Pipeline) Zones(ctx context.Context, runID, name string) (*LayerReport, error) {
	set, lr, err := p.recordsFor(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := requireFields(ctx, set.layer, "zones", FieldNorm, FieldHigh); err != nil {
		return nil, err
	}
	return lr, p.zones(ctx, runID, set, lr)
}

func (p *Pipeline) zones(ctx context.Context, runID string, set *recordSet, lr *LayerReport) error {
	f := p.opts.Fields

	if p.opts.Layers.HydroZones != "" {
		if err := p.overlay(ctx, set, p.opts.Layers.HydroZones, f.ZoneID, f.HydroZone,
			func(r *model.ServiceRecord, id *string) { r.HydroZone = id }); err != nil {
			return err
		}
	}
	if p.opts.Layers.AdminZones != "" {
		if err := p.overlay(ctx, set, p.opts.Layers.AdminZones, f.AdminZoneID, f.AdminZone,
			func(r *model.ServiceRecord, id *string) { r.AdminZone = id }); err != nil {
			return err
		}
	}

	name := set.layer.Name()
	lr.Zones = map[string][]model.ZoneStats{
		model.LevelAdmin: zonal.Aggregate(LevelKey(name, model.LevelAdmin), set.records, zonal.ByAdminZone),
		model.LevelHydro: zonal.Aggregate(LevelKey(name, model.LevelHydro), set.records, zonal.ByHydroZone),
	}

	if p.store == nil || runID == "" {
		return nil
	}
	for _, level := range []string{model.LevelAdmin, model.LevelHydro} {
		if err := p.store.SaveZoneStats(ctx, runID, lr.Zones[level]); err != nil {
			return eris.Wrapf(err, "pipeline: zones: save %s summary of %s", level, name)
		}
	}
	return nil
}

// overlay assigns each record the id of the containing zone and writes it
// to field. Records without geometry get a null zone.
func (p *Pipeline) overlay(ctx context.Context, set *recordSet, zoneLayer, idField, field string, assign func(*model.ServiceRecord, *string)) error {
	zones, err := p.loadZones(ctx, zoneLayer, idField)
	if eris.Is(err, layer.ErrNotFound) {
		zap.L().Warn("pipeline: zone layer missing, keeping existing zone field",
			zap.String("component", "pipeline"),
			zap.String("zones", zoneLayer),
			zap.String("field", field),
		)
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "pipeline: zones")
	}
	idx, sub := set.located()
	found, err := zonal.Assign(ctx, p.eng, sub, zones)
	if err != nil {
		return eris.Wrapf(err, "pipeline: zones: overlay %s", zoneLayer)
	}
	ids := make([]*string, len(set.records))
	for j, i := range idx {
		ids[i] = found[j]
	}

	if err := ensure(ctx, "zones", set.layer, []layer.Field{{Name: field, Type: layer.Text}}); err != nil {
		return err
	}
	rows := make([]layer.Row, len(set.records))
	for i := range set.records {
		assign(&set.records[i], ids[i])
		rows[i] = layer.Row{FID: set.records[i].FID, Values: map[string]any{field: ptrValue(ids[i])}}
	}
	return write(ctx, "zones", set.layer, []string{field}, rows)
}

// FixKernel merges a duplicate kernel_val_1 field into kernel_val on one
// record layer.
func (p *Pipeline) FixKernel(ctx context.Context, name string) (reconcile.Report, error) {
	l, err := p.openRecords(ctx, name)
	if err != nil {
		return reconcile.Report{}, err
	}
	return p.reconciler.Reconcile(ctx, l)
}

// ptrValue unwraps a nullable value for a layer write.
func ptrValue[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
