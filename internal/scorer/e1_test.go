package scorer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/e1-cli/internal/model"
)

func ptrFloat64(v float64) *float64 { return &v }

func TestRaw_WorkedExample(t *testing.T) {
	s := New(DefaultWeights(), 1)
	r := model.ServiceRecord{
		DistHigh:   ptrFloat64(600),
		DistMedium: ptrFloat64(2500),
		CountHigh:  1,
	}
	// 3/1.6 + 2/3.5 + 0.5
	assert.InDelta(t, 2.946, s.Raw(&r), 0.001)
}

func TestRaw_Components(t *testing.T) {
	s := New(DefaultWeights(), 1)
	tests := []struct {
		name string
		rec  model.ServiceRecord
		want float64
	}{
		{"nothing nearby", model.ServiceRecord{}, 0},
		{"on top of alto", model.ServiceRecord{DistHigh: ptrFloat64(0)}, 3},
		{"medio at 1km", model.ServiceRecord{DistMedium: ptrFloat64(1000)}, 1},
		{"counts only", model.ServiceRecord{CountHigh: 2, CountMedium: 4}, 2},
		{"negative distance ignored", model.ServiceRecord{DistHigh: ptrFloat64(-1)}, 0},
		{"negative count ignored", model.ServiceRecord{CountHigh: -5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, s.Raw(&tt.rec), 1e-9)
		})
	}
}

func TestRaw_Monotonic(t *testing.T) {
	s := New(DefaultWeights(), 1)
	near := model.ServiceRecord{DistHigh: ptrFloat64(200)}
	far := model.ServiceRecord{DistHigh: ptrFloat64(2000)}
	assert.Greater(t, s.Raw(&near), s.Raw(&far))

	few := model.ServiceRecord{CountHigh: 1}
	many := model.ServiceRecord{CountHigh: 3}
	assert.Greater(t, s.Raw(&many), s.Raw(&few))
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name      string
		norm      *float64
		wantLabel string
		wantCat   int
	}{
		{"nil", nil, LabelVeryLow, 1},
		{"zero", ptrFloat64(0), LabelVeryLow, 1},
		{"just below low", ptrFloat64(0.2499), LabelVeryLow, 1},
		{"low bound", ptrFloat64(0.25), LabelLow, 2},
		{"medium bound", ptrFloat64(0.5), LabelMedium, 3},
		{"just below high", ptrFloat64(0.7499), LabelMedium, 3},
		{"high bound", ptrFloat64(0.75), LabelHigh, 4},
		{"max", ptrFloat64(1), LabelHigh, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, cat := Categorize(tt.norm)
			assert.Equal(t, tt.wantLabel, label)
			assert.Equal(t, tt.wantCat, cat)
		})
	}
}

func TestScore_Normalises(t *testing.T) {
	records := []model.ServiceRecord{
		{DistHigh: ptrFloat64(600), DistMedium: ptrFloat64(2500), CountHigh: 1},
		{DistMedium: ptrFloat64(1000)},
		{},
	}
	res, err := New(DefaultWeights(), 2).Score(context.Background(), records)
	require.NoError(t, err)

	assert.False(t, res.Degenerate)
	assert.InDelta(t, 2.946, res.MaxRaw, 0.001)
	assert.Equal(t, 3, res.Normalized)

	require.NotNil(t, records[0].Norm)
	assert.InDelta(t, 1.0, *records[0].Norm, 1e-12)
	assert.Equal(t, LabelHigh, records[0].CategoryLabel)
	assert.Equal(t, 4, records[0].Category)

	require.NotNil(t, records[1].Norm)
	assert.InDelta(t, 1/2.946, *records[1].Norm, 0.001)
	assert.Equal(t, 2, records[1].Category)

	require.NotNil(t, records[2].Norm)
	assert.Equal(t, 0.0, *records[2].Norm)
	assert.Equal(t, 1, records[2].Category)

	assert.Equal(t, map[int]int{1: 1, 2: 1, 4: 1}, res.Categories)

	for _, r := range records {
		assert.GreaterOrEqual(t, *r.Norm, 0.0)
		assert.LessOrEqual(t, *r.Norm, 1.0)
	}
}

func TestScore_Degenerate(t *testing.T) {
	stale := 0.9
	records := []model.ServiceRecord{{Norm: &stale}, {}}
	res, err := New(DefaultWeights(), 4).Score(context.Background(), records)
	require.NoError(t, err)

	assert.True(t, res.Degenerate)
	assert.Equal(t, 0.0, res.MaxRaw)
	assert.Equal(t, 0, res.Normalized)
	for _, r := range records {
		require.NotNil(t, r.Raw)
		assert.Equal(t, 0.0, *r.Raw)
		assert.Nil(t, r.Norm)
		assert.Equal(t, LabelVeryLow, r.CategoryLabel)
		assert.Equal(t, 1, r.Category)
	}
}

func TestScore_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(DefaultWeights(), 1).Score(ctx, make([]model.ServiceRecord, 3))
	assert.Error(t, err)
}

func TestValidateWeights(t *testing.T) {
	require.NoError(t, ValidateWeights(DefaultWeights()))

	err := ValidateWeights(Weights{High: -1, Medium: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "high must be >= 0")

	err = ValidateWeights(Weights{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one weight")
}

func TestIsHigh(t *testing.T) {
	assert.True(t, IsHigh(4))
	assert.False(t, IsHigh(3))
	assert.False(t, IsHigh(0))
}
