package engine

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
)

// Planar implements Engine with euclidean geometry on projected coordinates.
// It holds no state; indexes are built per call from the candidate set.
type Planar struct{}

// NewPlanar returns a planar engine.
func NewPlanar() *Planar { return &Planar{} }

var _ Engine = (*Planar)(nil)

// Nearest implements Engine. Ties are broken by the lower candidate position.
func (e *Planar) Nearest(ctx context.Context, points []Point, candidates []Candidate, maxRadius float64) ([]NearestResult, error) {
	results := make([]NearestResult, len(points))
	for i := range results {
		results[i] = NearestResult{Distance: -1}
	}
	if len(candidates) == 0 {
		return results, nil
	}

	cpts := candidatePoints(candidates)

	if maxRadius <= 0 || math.IsInf(maxRadius, 1) {
		for i, p := range points {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "engine: nearest")
			}
			best, bestD := -1, math.Inf(1)
			for j, c := range cpts {
				if d := distance(p, c); d < bestD {
					best, bestD = j, d
				}
			}
			if best < 0 {
				continue
			}
			results[i] = NearestResult{Distance: bestD, CandidateID: candidates[best].ID, Valid: true}
		}
		return results, nil
	}

	idx := newGridIndex(cpts, maxRadius)
	for i, p := range points {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "engine: nearest")
		}
		best, bestD := -1, math.Inf(1)
		idx.within(p, maxRadius, func(j int, d float64) {
			if d < bestD || (d == bestD && j < best) {
				best, bestD = j, d
			}
		})
		if best >= 0 {
			results[i] = NearestResult{Distance: bestD, CandidateID: candidates[best].ID, Valid: true}
		}
	}
	return results, nil
}

// Buffer implements Engine.
func (e *Planar) Buffer(points []Point, radius float64) []Circle {
	out := make([]Circle, len(points))
	for i, p := range points {
		out[i] = Circle{Center: p, Radius: radius}
	}
	return out
}

// CountWithin implements Engine. A candidate on the buffer edge intersects it.
func (e *Planar) CountWithin(ctx context.Context, buffers []Circle, candidates []Candidate) ([]int, error) {
	counts := make([]int, len(buffers))
	if len(candidates) == 0 || len(buffers) == 0 {
		return counts, nil
	}

	var size float64
	for _, b := range buffers {
		size = math.Max(size, b.Radius)
	}
	if size <= 0 {
		size = 1
	}

	idx := newGridIndex(candidatePoints(candidates), size)
	for i, b := range buffers {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "engine: count within")
		}
		if b.Radius < 0 {
			continue
		}
		idx.within(b.Center, b.Radius, func(int, float64) { counts[i]++ })
	}
	return counts, nil
}

// SampleSurface implements Engine.
func (e *Planar) SampleSurface(surface *Surface, points []Point) []*float64 {
	out := make([]*float64, len(points))
	if surface == nil {
		return out
	}
	for i, p := range points {
		if v, ok := surface.At(p.X, p.Y); ok {
			out[i] = &v
		}
	}
	return out
}

// ZoneOverlay implements Engine. Zones are tested in order; the first
// containing zone wins.
func (e *Planar) ZoneOverlay(ctx context.Context, points []Point, zones []Zone) ([]*string, error) {
	out := make([]*string, len(points))
	prepared := make([]preparedZone, 0, len(zones))
	for _, z := range zones {
		pz, err := prepareZone(z)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, pz)
	}

	for i, p := range points {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "engine: zone overlay")
		}
		for j := range prepared {
			if prepared[j].contains(p) {
				id := prepared[j].id
				out[i] = &id
				break
			}
		}
	}
	return out, nil
}

func candidatePoints(candidates []Candidate) []Point {
	pts := make([]Point, len(candidates))
	for i, c := range candidates {
		pts[i] = c.Point
	}
	return pts
}
