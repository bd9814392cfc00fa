// Package export writes zonal summaries and scored records to CSV and XLSX.
package export

import (
	"encoding/csv"
	"io"
	"sort"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/e1-cli/internal/model"
)

type zoneRow struct {
	Level     string   `csv:"level"`
	ZoneID    *string  `csv:"zone_id"`
	Mean      *float64 `csv:"mean_E1_norm"`
	Min       *float64 `csv:"min_E1_norm"`
	Max       *float64 `csv:"max_E1_norm"`
	HighCount int      `csv:"n_E1_high"`
	Total     int      `csv:"n_total"`
}

type recordRow struct {
	FID           int64    `csv:"fid"`
	X             *float64 `csv:"x"`
	Y             *float64 `csv:"y"`
	AdminZone     *string  `csv:"COMUNA"`
	HydroZone     *string  `csv:"COD_SHAC"`
	DistHigh      *float64 `csv:"dist_UF_alto"`
	DistMedium    *float64 `csv:"dist_UF_medio"`
	CountHigh     int      `csv:"cnt_UF_alto_1km"`
	CountMedium   int      `csv:"cnt_UF_medio_1km"`
	NearestHighID *string  `csv:"UF_alto_id"`
	ExposedHigh   int      `csv:"expuesto_alto"`
	Raw           *float64 `csv:"E1_raw"`
	Norm          *float64 `csv:"E1_norm"`
	CategoryLabel string   `csv:"E1_cat"`
	Category      int      `csv:"E1_clas"`
	Kernel        *float64 `csv:"kernel_val"`
	High          int      `csv:"E1_high"`
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// coord leaves the coordinate blank for records without geometry.
func coord(r *model.ServiceRecord, v float64) *float64 {
	if r.NoGeometry {
		return nil
	}
	return &v
}

// ZoneStatsCSV writes one row per zone. The unassigned group has an empty
// zone_id.
func ZoneStatsCSV(w io.Writer, stats []model.ZoneStats) error {
	rows := make([]zoneRow, len(stats))
	for i, z := range stats {
		rows[i] = zoneRow(z)
	}
	return encode(w, zoneRow{}, rows)
}

// RecordsCSV writes the scored attributes of every record.
func RecordsCSV(w io.Writer, records []model.ServiceRecord) error {
	rows := make([]recordRow, len(records))
	for i := range records {
		r := &records[i]
		rows[i] = recordRow{
			FID:           r.FID,
			X:             coord(r, r.X),
			Y:             coord(r, r.Y),
			AdminZone:     r.AdminZone,
			HydroZone:     r.HydroZone,
			DistHigh:      r.DistHigh,
			DistMedium:    r.DistMedium,
			CountHigh:     r.CountHigh,
			CountMedium:   r.CountMedium,
			NearestHighID: r.NearestHighID,
			ExposedHigh:   flag(r.ExposedHigh),
			Raw:           r.Raw,
			Norm:          r.Norm,
			CategoryLabel: r.CategoryLabel,
			Category:      r.Category,
			Kernel:        r.Kernel,
			High:          flag(r.High),
		}
	}
	return encode(w, recordRow{}, rows)
}

// encode writes the header even when rows is empty.
func encode(w io.Writer, header, rows any) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(header); err != nil {
		return eris.Wrap(err, "export: csv header")
	}
	if err := enc.Encode(rows); err != nil {
		return eris.Wrap(err, "export: csv rows")
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: csv flush")
}

var zoneHeader = []string{"zone_id", "mean_E1_norm", "min_E1_norm", "max_E1_norm", "n_E1_high", "n_total"}

// ZoneStatsXLSX writes one sheet per level, sheets in level order.
func ZoneStatsXLSX(path string, byLevel map[string][]model.ZoneStats) error {
	if len(byLevel) == 0 {
		return eris.New("export: no zone statistics to write")
	}
	levels := make([]string, 0, len(byLevel))
	for l := range byLevel {
		levels = append(levels, l)
	}
	sort.Strings(levels)

	f := xlsx.NewFile()
	for _, level := range levels {
		sheet, err := f.AddSheet(level)
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %s", level)
		}
		head := sheet.AddRow()
		for _, h := range zoneHeader {
			head.AddCell().SetString(h)
		}
		for _, z := range byLevel[level] {
			row := sheet.AddRow()
			setString(row.AddCell(), z.ZoneID)
			setFloat(row.AddCell(), z.Mean)
			setFloat(row.AddCell(), z.Min)
			setFloat(row.AddCell(), z.Max)
			row.AddCell().SetInt(z.HighCount)
			row.AddCell().SetInt(z.Total)
		}
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func setString(c *xlsx.Cell, v *string) {
	if v != nil {
		c.SetString(*v)
	}
}

func setFloat(c *xlsx.Cell, v *float64) {
	if v != nil {
		c.SetFloat(*v)
	}
}
