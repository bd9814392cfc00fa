// Package proximity derives per-record distance and count features against
// risk-classified facilities.
package proximity

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/batch"
	"github.com/sells-group/e1-cli/internal/engine"
	"github.com/sells-group/e1-cli/internal/model"
)

// Default radii in layer distance units.
const (
	DefaultSearchRadius = 5000.0
	DefaultBufferRadius = 1000.0
)

// Config configures an Extractor.
type Config struct {
	SearchRadius float64 // cap for nearest searches
	BufferRadius float64 // buffer for counts and the exposure flag
	Concurrency  int     // parallel record chunks; <= 1 runs inline
}

// Summary reports how many records picked up each feature.
type Summary struct {
	Records    int `json:"records"`
	WithHigh   int `json:"with_high"`
	WithMedium int `json:"with_medium"`
	Exposed    int `json:"exposed"`
}

// Extractor computes dist_alto, dist_medio, UF_alto_id, cnt_alto_1km,
// cnt_medio_1km and expuesto_alto for service records.
type Extractor struct {
	eng engine.Engine
	cfg Config
}

// New creates an Extractor. Zero radii take the defaults.
func New(eng engine.Engine, cfg Config) *Extractor {
	if cfg.SearchRadius <= 0 {
		cfg.SearchRadius = DefaultSearchRadius
	}
	if cfg.BufferRadius <= 0 {
		cfg.BufferRadius = DefaultBufferRadius
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Extractor{eng: eng, cfg: cfg}
}

// Extract fills the proximity features of every record in place. Facilities
// are read-only; each record is written by exactly one worker.
func (x *Extractor) Extract(ctx context.Context, facilities []model.Facility, records []model.ServiceRecord) (Summary, error) {
	high := candidatesByTier(facilities, model.TierHigh)
	medium := candidatesByTier(facilities, model.TierMedium)

	log := zap.L().With(zap.String("component", "proximity"))
	log.Info("extracting proximity features",
		zap.Int("records", len(records)),
		zap.Int("high_facilities", len(high)),
		zap.Int("medium_facilities", len(medium)),
		zap.Float64("search_radius", x.cfg.SearchRadius),
		zap.Float64("buffer_radius", x.cfg.BufferRadius),
	)

	err := batch.Run(ctx, len(records), x.cfg.Concurrency, func(ctx context.Context, s batch.Span) error {
		return x.extractChunk(ctx, records[s.Start:s.End], high, medium)
	})
	if err != nil {
		return Summary{}, err
	}

	s := Summary{Records: len(records)}
	for i := range records {
		if records[i].DistHigh != nil {
			s.WithHigh++
		}
		if records[i].DistMedium != nil {
			s.WithMedium++
		}
		if records[i].ExposedHigh {
			s.Exposed++
		}
	}
	log.Info("proximity features extracted",
		zap.Int("with_high", s.WithHigh),
		zap.Int("with_medium", s.WithMedium),
		zap.Int("exposed", s.Exposed),
	)
	return s, nil
}

func (x *Extractor) extractChunk(ctx context.Context, records []model.ServiceRecord, high, medium []engine.Candidate) error {
	points := make([]engine.Point, len(records))
	for i, r := range records {
		points[i] = engine.Point{X: r.X, Y: r.Y}
	}

	nearHigh, err := x.eng.Nearest(ctx, points, high, x.cfg.SearchRadius)
	if err != nil {
		return eris.Wrap(err, "proximity: nearest high-risk facility")
	}
	nearMedium, err := x.eng.Nearest(ctx, points, medium, x.cfg.SearchRadius)
	if err != nil {
		return eris.Wrap(err, "proximity: nearest medium-risk facility")
	}

	buffers := x.eng.Buffer(points, x.cfg.BufferRadius)
	cntHigh, err := x.eng.CountWithin(ctx, buffers, high)
	if err != nil {
		return eris.Wrap(err, "proximity: count high-risk facilities")
	}
	cntMedium, err := x.eng.CountWithin(ctx, buffers, medium)
	if err != nil {
		return eris.Wrap(err, "proximity: count medium-risk facilities")
	}

	if len(nearHigh) != len(points) || len(nearMedium) != len(points) {
		return eris.Errorf("proximity: engine returned %d/%d nearest results for %d records",
			len(nearHigh), len(nearMedium), len(points))
	}

	for i := range records {
		r := &records[i]
		r.DistHigh = validDistance(nearHigh[i])
		r.NearestHighID = nil
		if r.DistHigh != nil {
			id := nearHigh[i].CandidateID
			r.NearestHighID = &id
		}
		r.DistMedium = validDistance(nearMedium[i])
		r.CountHigh = countAt(cntHigh, i)
		r.CountMedium = countAt(cntMedium, i)
		r.ExposedHigh = Exposed(r.CountHigh, r.DistHigh, x.cfg.BufferRadius)
	}
	return nil
}

// Exposed reports whether a record is exposed to high-risk facilities: at
// least one inside the buffer, or the nearest one within the buffer radius.
func Exposed(countHigh int, distHigh *float64, bufferRadius float64) bool {
	if countHigh > 0 {
		return true
	}
	return distHigh != nil && *distHigh <= bufferRadius
}

// validDistance drops missing, negative and non-finite distances.
func validDistance(r engine.NearestResult) *float64 {
	if !r.Valid || r.Distance < 0 || math.IsNaN(r.Distance) || math.IsInf(r.Distance, 0) {
		return nil
	}
	d := r.Distance
	return &d
}

func countAt(counts []int, i int) int {
	if i >= len(counts) || counts[i] < 0 {
		return 0
	}
	return counts[i]
}

func candidatesByTier(facilities []model.Facility, tier model.Tier) []engine.Candidate {
	var out []engine.Candidate
	for _, f := range facilities {
		if f.Tier == tier {
			out = append(out, engine.Candidate{ID: f.ID, Point: engine.Point{X: f.X, Y: f.Y}})
		}
	}
	return out
}
