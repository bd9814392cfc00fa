// Package spatial converts between shapefile shapes, go-geom geometries and
// the EWKB stored in layer geom columns.
package spatial

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// DefaultSRID is WGS 84 / UTM zone 18S, the projected CRS of the source
// layers. Distances are in meters.
const DefaultSRID = 32718

// EncodeShape converts a go-shp shape to EWKB tagged with srid.
// Returns nil, nil for nil, empty or unsupported shapes.
func EncodeShape(shape shp.Shape, srid int) ([]byte, error) {
	if shape == nil {
		return nil, nil
	}

	var g geom.T
	switch s := shape.(type) {
	case *shp.Point:
		g = geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)
	case *shp.PointZ:
		g = geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)
	case *shp.PointM:
		g = geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)
	case *shp.PolyLine:
		g = polyLineToMultiLineString(s.NumParts, s.Parts, s.Points, srid)
	case *shp.Polygon:
		g = polygonToMultiPolygon(s.NumParts, s.Parts, s.Points, srid)
	case *shp.PolygonZ:
		g = polygonToMultiPolygon(s.NumParts, s.Parts, s.Points, srid)
	default:
		return nil, nil
	}
	if g == nil {
		return nil, nil
	}
	return marshal(g)
}

// EncodePoint returns the EWKB of a 2D point.
func EncodePoint(x, y float64, srid int) ([]byte, error) {
	return marshal(geom.NewPointFlat(geom.XY, []float64{x, y}).SetSRID(srid))
}

func marshal(g geom.T) ([]byte, error) {
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: encode EWKB")
	}
	return data, nil
}

// Decode parses EWKB.
func Decode(b []byte) (geom.T, error) {
	if len(b) == 0 {
		return nil, eris.New("spatial: empty geometry")
	}
	g, err := ewkb.Unmarshal(b)
	if err != nil {
		return nil, eris.Wrap(err, "spatial: decode EWKB")
	}
	return g, nil
}

// DecodePoint returns the coordinates of a point geometry. A multipoint
// yields its first point.
func DecodePoint(b []byte) (float64, float64, error) {
	g, err := Decode(b)
	if err != nil {
		return 0, 0, err
	}
	switch t := g.(type) {
	case *geom.Point:
		if t.Empty() {
			return 0, 0, eris.New("spatial: empty point")
		}
		return t.X(), t.Y(), nil
	case *geom.MultiPoint:
		if t.NumPoints() == 0 {
			return 0, 0, eris.New("spatial: empty multipoint")
		}
		p := t.Point(0)
		return p.X(), p.Y(), nil
	default:
		return 0, 0, eris.Errorf("spatial: expected a point, got %T", g)
	}
}

// DecodeZone returns a polygonal geometry for zone overlays.
func DecodeZone(b []byte) (geom.T, error) {
	g, err := Decode(b)
	if err != nil {
		return nil, err
	}
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return g, nil
	default:
		return nil, eris.Errorf("spatial: expected a polygon, got %T", g)
	}
}

func partBounds(numParts int32, parts []int32, n int, i int32) (int32, int32) {
	start := parts[i]
	end := int32(n)
	if i+1 < numParts {
		end = parts[i+1]
	}
	return start, end
}

func polyLineToMultiLineString(numParts int32, parts []int32, points []shp.Point, srid int) geom.T {
	if numParts == 0 || len(points) == 0 {
		return nil
	}
	mls := geom.NewMultiLineString(geom.XY).SetSRID(srid)
	for i := int32(0); i < numParts; i++ {
		start, end := partBounds(numParts, parts, len(points), i)
		ls := geom.NewLineStringFlat(geom.XY, flatCoords(points[start:end]))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("spatial: skipping malformed linestring part", zap.Int32("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygonToMultiPolygon groups shapefile rings into polygons. Clockwise
// rings are shells; counter-clockwise rings are holes of the preceding
// shell.
func polygonToMultiPolygon(numParts int32, parts []int32, points []shp.Point, srid int) geom.T {
	if numParts == 0 || len(points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	var cur *geom.Polygon
	flush := func() {
		if cur == nil {
			return
		}
		if err := mp.Push(cur); err != nil {
			zap.L().Debug("spatial: skipping malformed polygon", zap.Error(err))
		}
		cur = nil
	}

	for i := int32(0); i < numParts; i++ {
		start, end := partBounds(numParts, parts, len(points), i)
		if end-start < 4 {
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flatCoords(points[start:end]))
		if signedArea(points[start:end]) > 0 && cur != nil {
			if err := cur.Push(ring); err != nil {
				zap.L().Debug("spatial: skipping malformed hole", zap.Int32("part", i), zap.Error(err))
			}
			continue
		}
		flush()
		cur = geom.NewPolygon(geom.XY)
		if err := cur.Push(ring); err != nil {
			zap.L().Debug("spatial: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			cur = nil
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(pts []shp.Point) float64 {
	var a float64
	for i := 0; i+1 < len(pts); i++ {
		a += pts[i].X*pts[i+1].Y - pts[i+1].X*pts[i].Y
	}
	return a / 2
}

func flatCoords(pts []shp.Point) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
