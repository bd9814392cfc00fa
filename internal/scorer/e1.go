package scorer

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/batch"
	"github.com/sells-group/e1-cli/internal/model"
)

// Category labels and ordinals, lowest first.
const (
	LabelVeryLow = "Muy baja"
	LabelLow     = "Baja"
	LabelMedium  = "Media"
	LabelHigh    = "Alta"

	CategoryVeryLow = 1
	CategoryLow     = 2
	CategoryMedium  = 3
	CategoryHigh    = 4
)

// Band lower bounds (inclusive) on the normalised score.
const (
	lowBound    = 0.25
	mediumBound = 0.50
	highBound   = 0.75
)

// metersPerKM converts layer distance units to kilometers.
const metersPerKM = 1000.0

// Result summarises a scoring pass.
type Result struct {
	MaxRaw     float64     `json:"max_raw"`
	Degenerate bool        `json:"degenerate"` // max_raw == 0; normalisation skipped
	Normalized int         `json:"normalized"`
	Categories map[int]int `json:"categories"`
}

// Scorer computes raw, normalised and categorised E1 values.
type Scorer struct {
	w           Weights
	concurrency int
}

// New creates a Scorer.
func New(w Weights, concurrency int) *Scorer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scorer{w: w, concurrency: concurrency}
}

// Raw returns the unnormalised E1 score of a record.
func (s *Scorer) Raw(r *model.ServiceRecord) float64 {
	var compHigh, compMedium float64
	if r.DistHigh != nil && *r.DistHigh >= 0 {
		compHigh = s.w.High / (1 + *r.DistHigh/metersPerKM)
	}
	if r.DistMedium != nil && *r.DistMedium >= 0 {
		compMedium = s.w.Medium / (1 + *r.DistMedium/metersPerKM)
	}
	compCount := s.w.CountHigh*float64(max(r.CountHigh, 0)) + s.w.CountMedium*float64(max(r.CountMedium, 0))
	return compHigh + compMedium + compCount
}

// ComputeRaw sets Raw on every record. Records are independent and are
// processed in parallel spans; the call returns only once all are done.
func (s *Scorer) ComputeRaw(ctx context.Context, records []model.ServiceRecord) error {
	return batch.Run(ctx, len(records), s.concurrency, func(ctx context.Context, sp batch.Span) error {
		for i := sp.Start; i < sp.End; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			v := s.Raw(&records[i])
			records[i].Raw = &v
		}
		return nil
	})
}

// MaxRaw returns the largest raw score in the set (0 when none is positive).
func MaxRaw(records []model.ServiceRecord) float64 {
	var m float64
	for i := range records {
		if records[i].Raw != nil && *records[i].Raw > m {
			m = *records[i].Raw
		}
	}
	return m
}

// Normalize divides every raw score by the dataset maximum and assigns the
// category. It must run after every Raw is final. When the maximum is not
// positive normalisation is skipped: every Norm is cleared and every record
// falls in the lowest category.
func (s *Scorer) Normalize(records []model.ServiceRecord) Result {
	res := Result{MaxRaw: MaxRaw(records), Categories: make(map[int]int)}
	res.Degenerate = res.MaxRaw <= 0

	for i := range records {
		r := &records[i]
		r.Norm = nil
		if !res.Degenerate && r.Raw != nil {
			n := *r.Raw / res.MaxRaw
			r.Norm = &n
			res.Normalized++
		}
		r.CategoryLabel, r.Category = Categorize(r.Norm)
		res.Categories[r.Category]++
	}

	if res.Degenerate {
		zap.L().Warn("scorer: max E1_raw is 0, normalisation skipped",
			zap.Int("records", len(records)),
		)
	} else {
		zap.L().Info("scorer: E1 normalised",
			zap.Float64("max_raw", res.MaxRaw),
			zap.Int("normalized", res.Normalized),
		)
	}
	return res
}

// Score runs both phases: raw scores for all records, then normalisation.
func (s *Scorer) Score(ctx context.Context, records []model.ServiceRecord) (Result, error) {
	if err := s.ComputeRaw(ctx, records); err != nil {
		return Result{}, err
	}
	return s.Normalize(records), nil
}

// Categorize maps a normalised score to its label and ordinal. A nil score
// is "Muy baja"/1.
func Categorize(norm *float64) (string, int) {
	switch {
	case norm == nil || *norm < lowBound:
		return LabelVeryLow, CategoryVeryLow
	case *norm < mediumBound:
		return LabelLow, CategoryLow
	case *norm < highBound:
		return LabelMedium, CategoryMedium
	default:
		return LabelHigh, CategoryHigh
	}
}

// IsHigh reports whether a category is the "Alta" band (E1_high).
func IsHigh(category int) bool {
	return category == CategoryHigh
}
