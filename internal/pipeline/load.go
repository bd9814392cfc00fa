package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/engine"
	"github.com/sells-group/e1-cli/internal/layer"
	"github.com/sells-group/e1-cli/internal/model"
	"github.com/sells-group/e1-cli/internal/spatial"
)

// present returns the names that exist on the layer, in the given order.
// Blank names are ignored.
func present(ctx context.Context, l layer.Layer, want ...string) ([]string, error) {
	fields, err := l.Fields(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: list fields of %s", l.Name())
	}
	var out []string
	for _, n := range want {
		if n == "" {
			continue
		}
		if _, ok := layer.FindField(fields, n); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func requireFields(ctx context.Context, l layer.Layer, stage string, want ...string) error {
	got, err := present(ctx, l, want...)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(got))
	for _, n := range got {
		have[n] = true
	}
	for _, n := range want {
		if n != "" && !have[n] {
			return eris.Errorf("pipeline: %s: layer %s has no field %s", stage, l.Name(), n)
		}
	}
	return nil
}

// facilitySet holds every facility row and the subset with usable geometry.
type facilitySet struct {
	layer   layer.Layer
	all     []model.Facility
	located []model.Facility
}

func (p *Pipeline) loadFacilities(ctx context.Context) (*facilitySet, error) {
	l, err := p.ws.Open(ctx, p.opts.Layers.Facilities)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: open facilities")
	}
	f := p.opts.Fields
	if err := requireFields(ctx, l, "facilities", f.Category, f.Subcategory); err != nil {
		return nil, err
	}
	fields, err := present(ctx, l, f.FacilityID, f.Category, f.Subcategory)
	if err != nil {
		return nil, err
	}

	set := &facilitySet{layer: l}
	err = l.Read(ctx, fields, func(r layer.Row) error {
		fac := model.Facility{
			FID:         r.FID,
			ID:          layer.String(r.Values[f.FacilityID]),
			Category:    layer.String(r.Values[f.Category]),
			Subcategory: layer.String(r.Values[f.Subcategory]),
		}
		x, y, gerr := spatial.DecodePoint(r.Geom)
		if gerr == nil {
			fac.X, fac.Y = x, y
		} else {
			zap.L().Debug("pipeline: facility without usable geometry",
				zap.String("component", "pipeline"),
				zap.Int64("fid", r.FID),
				zap.Error(gerr),
			)
		}
		set.all = append(set.all, fac)
		if gerr == nil {
			set.located = append(set.located, fac)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read facilities %s", l.Name())
	}
	return set, nil
}

// recordSet holds every record of one layer. Rows without usable geometry
// are kept with NoGeometry set and counted in unlocated.
type recordSet struct {
	layer     layer.Layer
	records   []model.ServiceRecord
	unlocated int
}

// located copies out the records that have a point, together with their
// positions in s.records.
func (s *recordSet) located() ([]int, []model.ServiceRecord) {
	idx := make([]int, 0, len(s.records)-s.unlocated)
	sub := make([]model.ServiceRecord, 0, len(s.records)-s.unlocated)
	for i := range s.records {
		if !s.records[i].NoGeometry {
			idx = append(idx, i)
			sub = append(sub, s.records[i])
		}
	}
	return idx, sub
}

// merge writes records returned by located back into place.
func (s *recordSet) merge(idx []int, sub []model.ServiceRecord) {
	for j, i := range idx {
		s.records[i] = sub[j]
	}
}

func (p *Pipeline) openRecords(ctx context.Context, name string) (layer.Layer, error) {
	l, err := p.ws.Open(ctx, name)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open records %s", name)
	}
	return l, nil
}

// loadRecords reads geometry plus whichever zone, metric and score fields exist.
func (p *Pipeline) loadRecords(ctx context.Context, l layer.Layer) (*recordSet, error) {
	f := p.opts.Fields
	want := append([]string{f.AdminZone, f.HydroZone}, names(metricFields)...)
	want = append(want, names(densityFields)...)
	fields, err := present(ctx, l, want...)
	if err != nil {
		return nil, err
	}
	has := make(map[string]bool, len(fields))
	for _, n := range fields {
		has[n] = true
	}

	set := &recordSet{layer: l}
	err = l.Read(ctx, fields, func(r layer.Row) error {
		rec := model.ServiceRecord{FID: r.FID}
		if x, y, gerr := spatial.DecodePoint(r.Geom); gerr == nil {
			rec.X, rec.Y = x, y
		} else {
			rec.NoGeometry = true
			set.unlocated++
		}
		if has[f.AdminZone] {
			rec.AdminZone = layer.StringPtr(r.Values[f.AdminZone])
		}
		if has[f.HydroZone] {
			rec.HydroZone = layer.StringPtr(r.Values[f.HydroZone])
		}
		rec.DistHigh = layer.FloatPtr(r.Values[FieldDistHigh])
		rec.DistMedium = layer.FloatPtr(r.Values[FieldDistMedium])
		if n, ok := layer.Int(r.Values[FieldCountHigh]); ok {
			rec.CountHigh = int(n)
		}
		if n, ok := layer.Int(r.Values[FieldCountMedium]); ok {
			rec.CountMedium = int(n)
		}
		rec.NearestHighID = layer.StringPtr(r.Values[FieldNearestHigh])
		if e, ok := layer.Int(r.Values[FieldExposedHigh]); ok {
			rec.ExposedHigh = e != 0
		}
		rec.Raw = layer.FloatPtr(r.Values[FieldRaw])
		rec.Norm = layer.FloatPtr(r.Values[FieldNorm])
		rec.CategoryLabel = layer.String(r.Values[FieldCategoryLabel])
		if c, ok := layer.Int(r.Values[FieldCategory]); ok {
			rec.Category = int(c)
		}
		rec.Kernel = layer.FloatPtr(r.Values[FieldKernel])
		if h, ok := layer.Int(r.Values[FieldHigh]); ok {
			rec.High = h != 0
		}
		set.records = append(set.records, rec)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read records %s", l.Name())
	}
	if set.unlocated > 0 {
		zap.L().Warn("pipeline: records without usable geometry scored as unexposed",
			zap.String("component", "pipeline"),
			zap.String("layer", l.Name()),
			zap.Int("without_geometry", set.unlocated),
		)
	}
	return set, nil
}

// loadZones reads a polygon layer into engine zones keyed by idField.
// Features with a blank id or no polygon geometry are skipped.
func (p *Pipeline) loadZones(ctx context.Context, name, idField string) ([]engine.Zone, error) {
	l, err := p.ws.Open(ctx, name)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open zones %s", name)
	}
	if err := requireFields(ctx, l, "zones", idField); err != nil {
		return nil, err
	}

	var zones []engine.Zone
	skipped := 0
	err = l.Read(ctx, []string{idField}, func(r layer.Row) error {
		id := layer.StringPtr(r.Values[idField])
		g, gerr := spatial.DecodeZone(r.Geom)
		if id == nil || gerr != nil {
			skipped++
			return nil
		}
		zones = append(zones, engine.Zone{ID: *id, Geometry: g})
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read zones %s", name)
	}
	zap.L().Info("pipeline: zones loaded",
		zap.String("component", "pipeline"),
		zap.String("layer", name),
		zap.Int("zones", len(zones)),
		zap.Int("skipped", skipped),
	)
	return zones, nil
}
