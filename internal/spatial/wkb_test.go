package spatial

import (
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestEncodePoint_RoundTrip(t *testing.T) {
	b, err := EncodePoint(361234.5, 7950000.25, DefaultSRID)
	require.NoError(t, err)

	g, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, DefaultSRID, g.SRID())

	x, y, err := DecodePoint(b)
	require.NoError(t, err)
	assert.Equal(t, 361234.5, x)
	assert.Equal(t, 7950000.25, y)
}

func TestEncodeShape_Point(t *testing.T) {
	b, err := EncodeShape(&shp.Point{X: 10, Y: 20}, 4326)
	require.NoError(t, err)
	x, y, err := DecodePoint(b)
	require.NoError(t, err)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 20.0, y)
}

func TestEncodeShape_PolygonWithHole(t *testing.T) {
	// Shell clockwise, hole counter-clockwise, then a second shell.
	poly := &shp.Polygon{
		NumParts: 3,
		Parts:    []int32{0, 5, 10},
		Points: []shp.Point{
			{X: 0, Y: 0}, {X: 0, Y: 100}, {X: 100, Y: 100}, {X: 100, Y: 0}, {X: 0, Y: 0},
			{X: 40, Y: 40}, {X: 60, Y: 40}, {X: 60, Y: 60}, {X: 40, Y: 60}, {X: 40, Y: 40},
			{X: 200, Y: 0}, {X: 200, Y: 50}, {X: 250, Y: 50}, {X: 250, Y: 0}, {X: 200, Y: 0},
		},
	}
	b, err := EncodeShape(poly, DefaultSRID)
	require.NoError(t, err)

	g, err := DecodeZone(b)
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	require.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings(), "hole attached to the first shell")
	assert.Equal(t, 1, mp.Polygon(1).NumLinearRings())
}

func TestEncodeShape_PolyLine(t *testing.T) {
	pl := &shp.PolyLine{
		NumParts: 2,
		Parts:    []int32{0, 2},
		Points:   []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 5, Y: 5}, {X: 6, Y: 7}},
	}
	b, err := EncodeShape(pl, DefaultSRID)
	require.NoError(t, err)
	g, err := Decode(b)
	require.NoError(t, err)
	mls, ok := g.(*geom.MultiLineString)
	require.True(t, ok)
	assert.Equal(t, 2, mls.NumLineStrings())
}

func TestEncodeShape_NilAndEmpty(t *testing.T) {
	b, err := EncodeShape(nil, DefaultSRID)
	assert.NoError(t, err)
	assert.Nil(t, b)

	b, err = EncodeShape(&shp.Polygon{}, DefaultSRID)
	assert.NoError(t, err)
	assert.Nil(t, b)

	b, err = EncodeShape(&shp.Null{}, DefaultSRID)
	assert.NoError(t, err)
	assert.Nil(t, b)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err)

	_, err = Decode([]byte{0x01, 0x02})
	assert.Error(t, err)

	pt, err := EncodePoint(1, 2, DefaultSRID)
	require.NoError(t, err)
	_, err = DecodeZone(pt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a polygon")

	poly, err := EncodeShape(&shp.Polygon{
		NumParts: 1,
		Parts:    []int32{0},
		Points:   []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 0, Y: 0}},
	}, DefaultSRID)
	require.NoError(t, err)
	_, _, err = DecodePoint(poly)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a point")
}

func TestSignedArea(t *testing.T) {
	ccw := []shp.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0}}
	assert.InDelta(t, 1.0, signedArea(ccw), 1e-12)
	cw := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}
	assert.InDelta(t, -1.0, signedArea(cw), 1e-12)
}
