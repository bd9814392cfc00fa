package engine

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestNearest(t *testing.T) {
	e := NewPlanar()
	candidates := []Candidate{
		{ID: "far", Point: Point{X: 4000, Y: 0}},
		{ID: "near", Point: Point{X: 600, Y: 0}},
		{ID: "other", Point: Point{X: 0, Y: 9000}},
	}
	points := []Point{{0, 0}, {20000, 20000}, {0, 8000}}

	res, err := e.Nearest(context.Background(), points, candidates, 5000)
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.True(t, res[0].Valid)
	assert.InDelta(t, 600, res[0].Distance, 1e-9)
	assert.Equal(t, "near", res[0].CandidateID)

	assert.False(t, res[1].Valid)
	assert.Equal(t, -1.0, res[1].Distance)
	assert.Empty(t, res[1].CandidateID)

	assert.True(t, res[2].Valid)
	assert.Equal(t, "other", res[2].CandidateID)
	assert.InDelta(t, 1000, res[2].Distance, 1e-9)
}

func TestNearest_RadiusInclusive(t *testing.T) {
	res, err := NewPlanar().Nearest(context.Background(),
		[]Point{{0, 0}}, []Candidate{{ID: "edge", Point: Point{X: 0, Y: 5000}}}, 5000)
	require.NoError(t, err)
	assert.True(t, res[0].Valid)
	assert.Equal(t, 5000.0, res[0].Distance)
}

func TestNearest_TieBreaksByPosition(t *testing.T) {
	candidates := []Candidate{
		{ID: "first", Point: Point{X: -100, Y: 0}},
		{ID: "second", Point: Point{X: 100, Y: 0}},
	}
	res, err := NewPlanar().Nearest(context.Background(), []Point{{0, 0}}, candidates, 5000)
	require.NoError(t, err)
	assert.Equal(t, "first", res[0].CandidateID)
}

func TestNearest_Unbounded(t *testing.T) {
	res, err := NewPlanar().Nearest(context.Background(),
		[]Point{{0, 0}}, []Candidate{{ID: "x", Point: Point{X: 1e6, Y: 0}}}, 0)
	require.NoError(t, err)
	assert.True(t, res[0].Valid)
	assert.Equal(t, 1e6, res[0].Distance)
}

func TestNearest_NoCandidates(t *testing.T) {
	res, err := NewPlanar().Nearest(context.Background(), []Point{{0, 0}, {1, 1}}, nil, 5000)
	require.NoError(t, err)
	for _, r := range res {
		assert.False(t, r.Valid)
	}
}

func TestNearest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPlanar().Nearest(ctx, []Point{{0, 0}}, []Candidate{{ID: "a"}}, 10)
	require.Error(t, err)
}

func TestBufferAndCountWithin(t *testing.T) {
	e := NewPlanar()
	candidates := []Candidate{
		{ID: "a", Point: Point{X: 500, Y: 0}},
		{ID: "b", Point: Point{X: 1000, Y: 0}}, // on the edge
		{ID: "c", Point: Point{X: 1000.5, Y: 0}},
		{ID: "d", Point: Point{X: -300, Y: 300}},
	}
	buffers := e.Buffer([]Point{{0, 0}, {50000, 0}}, 1000)
	require.Len(t, buffers, 2)
	assert.Equal(t, 1000.0, buffers[0].Radius)

	counts, err := e.CountWithin(context.Background(), buffers, candidates)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 0}, counts)
}

func TestCountWithin_Empty(t *testing.T) {
	counts, err := NewPlanar().CountWithin(context.Background(), []Circle{{Radius: 10}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, counts)
}

func TestKernelDensity_SinglePoint(t *testing.T) {
	e := NewPlanar()
	params := KernelParams{CellSize: 100, Radius: 5000, AreaUnit: SquareKilometers}

	s, err := e.KernelDensity(context.Background(), []WeightedPoint{{Point: Point{X: 1000, Y: 1000}, Weight: 3}}, params)
	require.NoError(t, err)
	require.Equal(t, 1, s.Cols)
	require.Equal(t, 1, s.Rows)

	// Cell center is 50 units away from the point.
	d := math.Hypot(50, 50)
	tt := 1 - (d/5000)*(d/5000)
	want := 1e6 * 3 / (math.Pi * 5000 * 5000) * 3 * tt * tt

	v, ok := s.At(1000, 1000)
	require.True(t, ok)
	assert.InDelta(t, want, v, 1e-9)

	_, ok = s.At(1200, 1000)
	assert.False(t, ok, "outside the surface extent")
}

func TestKernelDensity_WeightsAndDecay(t *testing.T) {
	e := NewPlanar()
	params := KernelParams{CellSize: 100, Radius: 2000, AreaUnit: SquareMeters}
	points := []WeightedPoint{
		{Point: Point{X: 0, Y: 0}, Weight: 3},
		{Point: Point{X: 10000, Y: 0}, Weight: 1},
	}

	s, err := e.KernelDensity(context.Background(), points, params)
	require.NoError(t, err)

	high, ok := s.At(0, 0)
	require.True(t, ok)
	low, ok := s.At(10000, 0)
	require.True(t, ok)
	mid, ok := s.At(5000, 0)
	require.True(t, ok)

	assert.Greater(t, high, low)
	assert.Equal(t, 0.0, mid, "beyond the radius of both points")
	assert.InDelta(t, 3*low, high, 1e-12)
}

func TestKernelDensity_Empty(t *testing.T) {
	s, err := NewPlanar().KernelDensity(context.Background(), nil,
		KernelParams{CellSize: 100, Radius: 5000, AreaUnit: SquareKilometers})
	require.NoError(t, err)
	_, ok := s.At(0, 0)
	assert.False(t, ok)
}

func TestKernelParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  KernelParams
		wantErr string
	}{
		{"ok", KernelParams{100, 5000, SquareKilometers}, ""},
		{"zero cell", KernelParams{0, 5000, SquareKilometers}, "cell size"},
		{"negative radius", KernelParams{100, -1, SquareKilometers}, "radius"},
		{"unknown unit", KernelParams{100, 5000, "ACRES"}, "unknown area unit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSampleSurface(t *testing.T) {
	s := &Surface{OriginX: 0, OriginY: 200, CellSize: 100, Cols: 2, Rows: 2, Values: []float64{1, 2, 3, 4}}
	got := NewPlanar().SampleSurface(s, []Point{{50, 150}, {150, 150}, {50, 50}, {150, 50}, {250, 50}})

	require.Len(t, got, 5)
	assert.Equal(t, 1.0, *got[0])
	assert.Equal(t, 2.0, *got[1])
	assert.Equal(t, 3.0, *got[2])
	assert.Equal(t, 4.0, *got[3])
	assert.Nil(t, got[4])

	assert.Equal(t, []*float64{nil}, NewPlanar().SampleSurface(nil, []Point{{0, 0}}))
}

func TestSurface_WriteASCII(t *testing.T) {
	s := &Surface{OriginX: 0, OriginY: 200, CellSize: 100, Cols: 2, Rows: 2, Values: []float64{1, 2, 3, 4.5}}
	var buf bytes.Buffer
	require.NoError(t, s.WriteASCII(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "ncols 2", lines[0])
	assert.Equal(t, "yllcorner 0", lines[3])
	assert.Equal(t, "1 2", lines[6])
	assert.Equal(t, "3 4.5", lines[7])
}

func square(minX, minY, maxX, maxY float64) []float64 {
	return []float64{minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY}
}

func TestZoneOverlay(t *testing.T) {
	withHole := geom.NewPolygonFlat(geom.XY,
		append(square(0, 0, 100, 100), square(40, 40, 60, 60)...),
		[]int{10, 20})
	multi := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, multi.Push(geom.NewPolygonFlat(geom.XY, square(200, 0, 300, 100), []int{10})))
	require.NoError(t, multi.Push(geom.NewPolygonFlat(geom.XY, square(400, 0, 500, 100), []int{10})))
	overlapping := geom.NewPolygonFlat(geom.XY, square(0, 0, 1000, 1000), []int{10})

	zones := []Zone{
		{ID: "hole", Geometry: withHole},
		{ID: "multi", Geometry: multi},
		{ID: "all", Geometry: overlapping},
	}
	points := []Point{{10, 10}, {50, 50}, {450, 50}, {250, 50}, {2000, 2000}}

	got, err := NewPlanar().ZoneOverlay(context.Background(), points, zones)
	require.NoError(t, err)
	require.Len(t, got, 5)

	assert.Equal(t, "hole", *got[0])
	assert.Equal(t, "all", *got[1], "inside the hole falls through to the next zone")
	assert.Equal(t, "multi", *got[2])
	assert.Equal(t, "multi", *got[3])
	assert.Nil(t, got[4])
}

func TestZoneOverlay_BadGeometry(t *testing.T) {
	_, err := NewPlanar().ZoneOverlay(context.Background(), []Point{{0, 0}},
		[]Zone{{ID: "pt", Geometry: geom.NewPointFlat(geom.XY, []float64{0, 0})}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported geometry")

	_, err = NewPlanar().ZoneOverlay(context.Background(), []Point{{0, 0}}, []Zone{{ID: "nil"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no geometry")
}

func TestZoneOverlay_Boundaries(t *testing.T) {
	withHole := geom.NewPolygonFlat(geom.XY,
		append(square(0, 0, 100, 100), square(40, 40, 60, 60)...),
		[]int{10, 20})
	zones := []Zone{{ID: "z", Geometry: withHole}}
	points := []Point{{0, 50}, {100, 100}, {40, 50}, {50, 50}, {-0.001, 50}}

	got, err := NewPlanar().ZoneOverlay(context.Background(), points, zones)
	require.NoError(t, err)
	require.NotNil(t, got[0], "on the shell edge")
	assert.Equal(t, "z", *got[0])
	require.NotNil(t, got[1], "on a shell vertex")
	require.NotNil(t, got[2], "on the hole edge")
	assert.Nil(t, got[3], "inside the hole")
	assert.Nil(t, got[4])
}

func TestNearest_UnboundedNaN(t *testing.T) {
	res, err := NewPlanar().Nearest(context.Background(),
		[]Point{{math.NaN(), 0}, {0, 0}},
		[]Candidate{{ID: "a", Point: Point{10, 0}}}, 0)
	require.NoError(t, err)
	assert.False(t, res[0].Valid)
	assert.Equal(t, -1.0, res[0].Distance)
	assert.True(t, res[1].Valid)
	assert.Equal(t, 10.0, res[1].Distance)
}

func TestKernelDensity_ExtentTooLarge(t *testing.T) {
	points := []WeightedPoint{
		{Point: Point{X: 0, Y: 0}, Weight: 1},
		{Point: Point{X: 400000, Y: 7900000}, Weight: 3},
	}
	_, err := NewPlanar().KernelDensity(context.Background(), points,
		KernelParams{CellSize: 100, Radius: 5000, AreaUnit: SquareKilometers})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kernel extent [0 0, 400000 7.9e+06]")
}
