// Package density smooths facility weights into a kernel density surface
// and samples it at service records.
package density

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/engine"
	"github.com/sells-group/e1-cli/internal/model"
	"github.com/sells-group/e1-cli/internal/scorer"
)

// DefaultParams returns the kernel settings used for E1: 100 m cells,
// 5 km search radius, density per square kilometer.
func DefaultParams() engine.KernelParams {
	return engine.KernelParams{
		CellSize: 100,
		Radius:   5000,
		AreaUnit: engine.SquareKilometers,
	}
}

// Summary describes the surface and how many records it covered.
type Summary struct {
	Cols    int     `json:"cols"`
	Rows    int     `json:"rows"`
	Sampled int     `json:"sampled"`
	Outside int     `json:"outside"`
	High    int     `json:"high"`
	MaxCell float64 `json:"max_cell"`
}

// Smoother computes kernel_val and E1_high for service records.
type Smoother struct {
	eng    engine.Engine
	params engine.KernelParams
}

// New creates a Smoother. Zero-valued params fall back to DefaultParams.
func New(eng engine.Engine, params engine.KernelParams) *Smoother {
	def := DefaultParams()
	if params.CellSize <= 0 {
		params.CellSize = def.CellSize
	}
	if params.Radius <= 0 {
		params.Radius = def.Radius
	}
	if params.AreaUnit == "" {
		params.AreaUnit = def.AreaUnit
	}
	return &Smoother{eng: eng, params: params}
}

// Params returns the effective kernel parameters.
func (s *Smoother) Params() engine.KernelParams { return s.params }

// Smooth builds the surface from facility weights, samples it at every
// record and derives E1_high from the category. The surface is returned so
// callers can persist it.
func (s *Smoother) Smooth(ctx context.Context, facilities []model.Facility, records []model.ServiceRecord) (*engine.Surface, Summary, error) {
	pts := make([]engine.WeightedPoint, 0, len(facilities))
	for _, f := range facilities {
		pts = append(pts, engine.WeightedPoint{
			Point:  engine.Point{X: f.X, Y: f.Y},
			Weight: float64(f.Weight),
		})
	}

	surface, err := s.eng.KernelDensity(ctx, pts, s.params)
	if err != nil {
		return nil, Summary{}, eris.Wrap(err, "density: kernel density")
	}

	points := make([]engine.Point, len(records))
	for i, r := range records {
		points[i] = engine.Point{X: r.X, Y: r.Y}
	}
	vals := s.eng.SampleSurface(surface, points)
	if len(vals) != len(records) {
		return nil, Summary{}, eris.Errorf("density: sampled %d values for %d records", len(vals), len(records))
	}

	sum := Summary{Cols: surface.Cols, Rows: surface.Rows}
	for _, v := range surface.Values {
		if v > sum.MaxCell {
			sum.MaxCell = v
		}
	}
	for i := range records {
		r := &records[i]
		r.Kernel = vals[i]
		if r.Kernel != nil {
			sum.Sampled++
		} else {
			sum.Outside++
		}
		r.High = scorer.IsHigh(r.Category)
		if r.High {
			sum.High++
		}
	}

	zap.L().Info("density: surface sampled",
		zap.String("component", "density"),
		zap.Int("cols", sum.Cols),
		zap.Int("rows", sum.Rows),
		zap.Int("sampled", sum.Sampled),
		zap.Int("outside", sum.Outside),
		zap.Int("high", sum.High),
	)
	return surface, sum, nil
}

// WriteGrid saves a surface to path as an ESRI ASCII grid.
func WriteGrid(path string, surface *engine.Surface) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "density: create grid %s", path)
	}
	if err := surface.WriteASCII(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "density: close grid %s", path)
}
