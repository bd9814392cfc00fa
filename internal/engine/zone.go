package engine

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

type ring struct {
	flat   []float64
	layout geom.Layout
}

// polygonRings holds the shell first, then holes.
type polygonRings []ring

type preparedZone struct {
	id       string
	polygons []polygonRings
	minX     float64
	minY     float64
	maxX     float64
	maxY     float64
}

func prepareZone(z Zone) (preparedZone, error) {
	pz := preparedZone{id: z.ID}

	switch g := z.Geometry.(type) {
	case *geom.Polygon:
		pz.polygons = append(pz.polygons, ringsOf(g))
	case *geom.MultiPolygon:
		for i := 0; i < g.NumPolygons(); i++ {
			pz.polygons = append(pz.polygons, ringsOf(g.Polygon(i)))
		}
	case nil:
		return pz, eris.Errorf("engine: zone %q has no geometry", z.ID)
	default:
		return pz, eris.Errorf("engine: zone %q has unsupported geometry %T", z.ID, z.Geometry)
	}

	b := z.Geometry.Bounds()
	pz.minX, pz.minY = b.Min(0), b.Min(1)
	pz.maxX, pz.maxY = b.Max(0), b.Max(1)
	return pz, nil
}

func ringsOf(p *geom.Polygon) polygonRings {
	rings := make(polygonRings, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		lr := p.LinearRing(i)
		rings = append(rings, ring{flat: lr.FlatCoords(), layout: lr.Layout()})
	}
	return rings
}

func (z *preparedZone) contains(p Point) bool {
	if p.X < z.minX || p.X > z.maxX || p.Y < z.minY || p.Y > z.maxY {
		return false
	}
	for _, poly := range z.polygons {
		if len(poly) == 0 || poly[0].locate(p) == location.Exterior {
			continue
		}
		inHole := false
		for _, hole := range poly[1:] {
			if hole.locate(p) == location.Interior {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}

// locate places p relative to the ring. Rings too short to close are
// treated as empty.
func (r ring) locate(p Point) location.Type {
	if len(r.flat) < 4*r.layout.Stride() {
		return location.Exterior
	}
	return xy.LocatePointInRing(r.layout, geom.Coord{p.X, p.Y}, r.flat)
}
