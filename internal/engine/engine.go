// Package engine defines the geometric and raster operations the E1 pipeline
// consumes, and a planar in-memory implementation of them.
package engine

import (
	"context"

	"github.com/twpayne/go-geom"
)

// Point is a planar coordinate in the layer's projected units (meters for UTM).
type Point struct {
	X float64
	Y float64
}

// Candidate is a target point for nearest and count queries.
type Candidate struct {
	ID string
	Point
}

// WeightedPoint is an input to kernel density; Weight is the population field.
type WeightedPoint struct {
	Point
	Weight float64
}

// NearestResult is the outcome of a nearest search for one point.
// When Valid is false no candidate was found within the search radius and
// Distance is -1, matching the Near tool convention.
type NearestResult struct {
	Distance    float64
	CandidateID string
	Valid       bool
}

// Circle is a round buffer around a point.
type Circle struct {
	Center Point
	Radius float64
}

// Zone is an aggregation polygon (comuna, SHAC). Geometry is a
// *geom.Polygon or *geom.MultiPolygon.
type Zone struct {
	ID       string
	Geometry geom.T
}

// Engine is the geometric/raster collaborator of the pipeline.
type Engine interface {
	// Nearest returns, per point, the closest candidate within maxRadius.
	// A maxRadius <= 0 searches without limit.
	Nearest(ctx context.Context, points []Point, candidates []Candidate, maxRadius float64) ([]NearestResult, error)

	// Buffer builds a buffer of the given radius around every point.
	Buffer(points []Point, radius float64) []Circle

	// CountWithin counts, per buffer, the candidates intersecting it.
	CountWithin(ctx context.Context, buffers []Circle, candidates []Candidate) ([]int, error)

	// KernelDensity builds a weighted density surface over points.
	KernelDensity(ctx context.Context, points []WeightedPoint, params KernelParams) (*Surface, error)

	// SampleSurface reads the surface at every point; nil outside the surface.
	SampleSurface(surface *Surface, points []Point) []*float64

	// ZoneOverlay returns, per point, the ID of the first zone containing it, or nil.
	ZoneOverlay(ctx context.Context, points []Point, zones []Zone) ([]*string, error)
}
