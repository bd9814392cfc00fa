// Package zonal summarises normalised E1 scores by administrative and
// hydrographic zone.
package zonal

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/engine"
	"github.com/sells-group/e1-cli/internal/model"
)

// KeyFunc returns the zone a record belongs to, or nil when unassigned.
type KeyFunc func(r *model.ServiceRecord) *string

// ByAdminZone keys records by their administrative zone attribute.
func ByAdminZone(r *model.ServiceRecord) *string { return r.AdminZone }

// ByHydroZone keys records by their hydrographic zone.
func ByHydroZone(r *model.ServiceRecord) *string { return r.HydroZone }

type acc struct {
	id    *string
	sum   float64
	n     int
	min   float64
	max   float64
	high  int
	total int
}

// Aggregate groups records by key and computes mean, min and max of E1_norm
// (null values ignored), the number of E1_high records and the group size.
// Records without a zone form a single group with a nil ZoneID. Groups are
// ordered by zone id with the unassigned group last.
func Aggregate(level string, records []model.ServiceRecord, key KeyFunc) []model.ZoneStats {
	groups := make(map[string]*acc)
	var unassigned *acc

	for i := range records {
		r := &records[i]
		id := key(r)

		var a *acc
		if id == nil {
			if unassigned == nil {
				unassigned = &acc{}
			}
			a = unassigned
		} else {
			a = groups[*id]
			if a == nil {
				a = &acc{id: model.StringPtr(*id)}
				groups[*id] = a
			}
		}

		a.total++
		if r.High {
			a.high++
		}
		if r.Norm != nil {
			v := *r.Norm
			if a.n == 0 || v < a.min {
				a.min = v
			}
			if a.n == 0 || v > a.max {
				a.max = v
			}
			a.sum += v
			a.n++
		}
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]model.ZoneStats, 0, len(groups)+1)
	for _, id := range ids {
		out = append(out, groups[id].stats(level))
	}
	if unassigned != nil {
		out = append(out, unassigned.stats(level))
	}
	return out
}

func (a *acc) stats(level string) model.ZoneStats {
	s := model.ZoneStats{
		Level:     level,
		ZoneID:    a.id,
		HighCount: a.high,
		Total:     a.total,
	}
	if a.n > 0 {
		s.Mean = model.Float64Ptr(a.sum / float64(a.n))
		s.Min = model.Float64Ptr(a.min)
		s.Max = model.Float64Ptr(a.max)
	}
	return s
}

// Assign overlays records on zone polygons and returns the id of the zone
// containing each record (nil outside every zone).
func Assign(ctx context.Context, eng engine.Engine, records []model.ServiceRecord, zones []engine.Zone) ([]*string, error) {
	points := make([]engine.Point, len(records))
	for i, r := range records {
		points[i] = engine.Point{X: r.X, Y: r.Y}
	}
	ids, err := eng.ZoneOverlay(ctx, points, zones)
	if err != nil {
		return nil, eris.Wrap(err, "zonal: zone overlay")
	}
	if len(ids) != len(records) {
		return nil, eris.Errorf("zonal: overlay returned %d zones for %d records", len(ids), len(records))
	}

	var missed int
	for _, id := range ids {
		if id == nil {
			missed++
		}
	}
	zap.L().Info("zonal: records assigned to zones",
		zap.String("component", "zonal"),
		zap.Int("records", len(records)),
		zap.Int("zones", len(zones)),
		zap.Int("unassigned", missed),
	)
	return ids, nil
}
