package engine

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

type cellKey struct{ col, row int64 }

// gridIndex buckets points into square cells for radius queries.
// It is read-only after construction and safe for concurrent use.
type gridIndex struct {
	size    float64
	buckets map[cellKey][]int
	points  []Point
}

func newGridIndex(points []Point, size float64) *gridIndex {
	g := &gridIndex{
		size:    size,
		buckets: make(map[cellKey][]int),
		points:  points,
	}
	for i, p := range points {
		k := g.key(p.X, p.Y)
		g.buckets[k] = append(g.buckets[k], i)
	}
	return g
}

func (g *gridIndex) key(x, y float64) cellKey {
	return cellKey{
		col: int64(math.Floor(x / g.size)),
		row: int64(math.Floor(y / g.size)),
	}
}

// within calls fn with the index and distance of every point at distance <= r
// from p. Points are visited in ascending index order within each cell only,
// so callers that need determinism must break ties by index themselves.
func (g *gridIndex) within(p Point, r float64, fn func(i int, d float64)) {
	lo := g.key(p.X-r, p.Y-r)
	hi := g.key(p.X+r, p.Y+r)
	for col := lo.col; col <= hi.col; col++ {
		for row := lo.row; row <= hi.row; row++ {
			for _, i := range g.buckets[cellKey{col, row}] {
				d := distance(p, g.points[i])
				if d <= r {
					fn(i, d)
				}
			}
		}
	}
}

func distance(a, b Point) float64 {
	return xy.Distance(geom.Coord{a.X, a.Y}, geom.Coord{b.X, b.Y})
}
