package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
)

// AreaUnit scales density values to a unit of area.
type AreaUnit string

// Supported area units. Coordinates are assumed to be in meters.
const (
	SquareMapUnits   AreaUnit = "SQUARE_MAP_UNITS"
	SquareMeters     AreaUnit = "SQUARE_METERS"
	Hectares         AreaUnit = "HECTARES"
	SquareKilometers AreaUnit = "SQUARE_KILOMETERS"
)

// Scale returns the factor converting a per-square-meter density to the unit.
func (u AreaUnit) Scale() (float64, error) {
	switch u {
	case SquareMapUnits, SquareMeters:
		return 1, nil
	case Hectares:
		return 1e4, nil
	case SquareKilometers:
		return 1e6, nil
	default:
		return 0, eris.Errorf("engine: unknown area unit %q", u)
	}
}

// MaxCells bounds the size of a surface built by KernelDensity.
const MaxCells = 50_000_000

// KernelParams configures KernelDensity.
type KernelParams struct {
	CellSize float64
	Radius   float64
	AreaUnit AreaUnit
}

// Validate checks that the parameters can build a surface.
func (p KernelParams) Validate() error {
	if p.CellSize <= 0 {
		return eris.Errorf("engine: kernel cell size must be > 0, got %v", p.CellSize)
	}
	if p.Radius <= 0 {
		return eris.Errorf("engine: kernel radius must be > 0, got %v", p.Radius)
	}
	_, err := p.AreaUnit.Scale()
	return err
}

// Surface is a north-up raster. Cell (0,0) is the top-left cell whose
// upper-left corner is (OriginX, OriginY).
type Surface struct {
	OriginX  float64
	OriginY  float64
	CellSize float64
	Cols     int
	Rows     int
	Values   []float64
}

// At returns the value of the cell containing (x, y).
func (s *Surface) At(x, y float64) (float64, bool) {
	if s.Cols == 0 || s.Rows == 0 {
		return 0, false
	}
	col := int(math.Floor((x - s.OriginX) / s.CellSize))
	row := int(math.Floor((s.OriginY - y) / s.CellSize))
	if col < 0 || col >= s.Cols || row < 0 || row >= s.Rows {
		return 0, false
	}
	return s.Values[row*s.Cols+col], true
}

// cellCenter returns the map coordinate of a cell center.
func (s *Surface) cellCenter(col, row int) (float64, float64) {
	return s.OriginX + (float64(col)+0.5)*s.CellSize,
		s.OriginY - (float64(row)+0.5)*s.CellSize
}

// KernelDensity implements Engine with the quartic kernel used by the
// Spatial Analyst Kernel Density tool:
//
//	density = 1/r² · Σ 3/π · w_i · (1 − (d_i/r)²)²   for d_i < r
//
// The output extent is the bounding box of the input points.
func (e *Planar) KernelDensity(ctx context.Context, points []WeightedPoint, params KernelParams) (*Surface, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	scale, _ := params.AreaUnit.Scale()

	s := &Surface{CellSize: params.CellSize}
	if len(points) == 0 {
		return s, nil
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	cols := math.Floor((maxX-minX)/params.CellSize) + 1
	rows := math.Floor((maxY-minY)/params.CellSize) + 1
	if n := cols * rows; math.IsNaN(n) || n > MaxCells {
		return nil, eris.Errorf("engine: kernel extent [%v %v, %v %v] at cell size %v needs %.0f cells, limit is %d",
			minX, minY, maxX, maxY, params.CellSize, n, MaxCells)
	}

	s.OriginX, s.OriginY = minX, maxY
	s.Cols, s.Rows = int(cols), int(rows)
	s.Values = make([]float64, s.Cols*s.Rows)

	r := params.Radius
	norm := scale * 3 / (math.Pi * r * r)

	for _, p := range points {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "engine: kernel density")
		}
		if p.Weight == 0 {
			continue
		}
		c0 := clamp(int(math.Floor((p.X-r-s.OriginX)/s.CellSize)), 0, s.Cols-1)
		c1 := clamp(int(math.Floor((p.X+r-s.OriginX)/s.CellSize)), 0, s.Cols-1)
		r0 := clamp(int(math.Floor((s.OriginY-(p.Y+r))/s.CellSize)), 0, s.Rows-1)
		r1 := clamp(int(math.Floor((s.OriginY-(p.Y-r))/s.CellSize)), 0, s.Rows-1)

		for row := r0; row <= r1; row++ {
			for col := c0; col <= c1; col++ {
				cx, cy := s.cellCenter(col, row)
				d := math.Hypot(cx-p.X, cy-p.Y)
				if d >= r {
					continue
				}
				t := 1 - (d/r)*(d/r)
				s.Values[row*s.Cols+col] += norm * p.Weight * t * t
			}
		}
	}
	return s, nil
}

// WriteASCII writes the surface as an ESRI ASCII grid.
func (s *Surface) WriteASCII(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\n", s.Cols)
	fmt.Fprintf(bw, "nrows %d\n", s.Rows)
	fmt.Fprintf(bw, "xllcorner %s\n", strconv.FormatFloat(s.OriginX, 'f', -1, 64))
	fmt.Fprintf(bw, "yllcorner %s\n", strconv.FormatFloat(s.OriginY-float64(s.Rows)*s.CellSize, 'f', -1, 64))
	fmt.Fprintf(bw, "cellsize %s\n", strconv.FormatFloat(s.CellSize, 'f', -1, 64))
	fmt.Fprintf(bw, "NODATA_value -9999\n")
	for row := 0; row < s.Rows; row++ {
		for col := 0; col < s.Cols; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.FormatFloat(s.Values[row*s.Cols+col], 'g', 8, 64))
		}
		bw.WriteByte('\n')
	}
	return eris.Wrap(bw.Flush(), "engine: write ascii grid")
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
