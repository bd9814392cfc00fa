package export

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/e1-cli/internal/model"
)

func sampleStats() []model.ZoneStats {
	return []model.ZoneStats{
		{Level: model.LevelAdmin, ZoneID: model.StringPtr("Arica"), Mean: model.Float64Ptr(0.5), Min: model.Float64Ptr(0.25), Max: model.Float64Ptr(0.75), HighCount: 1, Total: 2},
		{Level: model.LevelAdmin, Total: 1},
	}
}

func TestZoneStatsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ZoneStatsCSV(&buf, sampleStats()))
	assert.Equal(t,
		"level,zone_id,mean_E1_norm,min_E1_norm,max_E1_norm,n_E1_high,n_total\n"+
			"comuna,Arica,0.5,0.25,0.75,1,2\n"+
			"comuna,,,,,0,1\n",
		buf.String())
}

func TestZoneStatsCSV_EmptyWritesHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ZoneStatsCSV(&buf, nil))
	assert.Equal(t, "level,zone_id,mean_E1_norm,min_E1_norm,max_E1_norm,n_E1_high,n_total\n", buf.String())
}

func TestRecordsCSV(t *testing.T) {
	records := []model.ServiceRecord{{
		FID:           1,
		X:             600,
		Y:             0,
		AdminZone:     model.StringPtr("Arica"),
		DistHigh:      model.Float64Ptr(600),
		CountHigh:     1,
		NearestHighID: model.StringPtr("A"),
		ExposedHigh:   true,
		Raw:           model.Float64Ptr(2.5),
		Norm:          model.Float64Ptr(1),
		CategoryLabel: "Alta",
		Category:      4,
		High:          true,
	}}

	var buf bytes.Buffer
	require.NoError(t, RecordsCSV(&buf, records))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Equal(t,
		"fid,x,y,COMUNA,COD_SHAC,dist_UF_alto,dist_UF_medio,cnt_UF_alto_1km,cnt_UF_medio_1km,"+
			"UF_alto_id,expuesto_alto,E1_raw,E1_norm,E1_cat,E1_clas,kernel_val,E1_high",
		string(lines[0]))
	assert.Equal(t, "1,600,0,Arica,,600,,1,0,A,1,2.5,1,Alta,4,,1", string(lines[1]))
}

func TestRecordsCSV_NoGeometryLeavesCoordinatesBlank(t *testing.T) {
	records := []model.ServiceRecord{{
		FID:           3,
		NoGeometry:    true,
		AdminZone:     model.StringPtr("Arica"),
		Raw:           model.Float64Ptr(0),
		Norm:          model.Float64Ptr(0),
		CategoryLabel: "Muy baja",
		Category:      1,
	}}

	var buf bytes.Buffer
	require.NoError(t, RecordsCSV(&buf, records))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Equal(t, "3,,,Arica,,,,0,0,,0,0,0,Muy baja,1,,0", string(lines[1]))
}

func TestZoneStatsXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zonas.xlsx")
	err := ZoneStatsXLSX(path, map[string][]model.ZoneStats{
		model.LevelHydro: {{Level: model.LevelHydro, ZoneID: model.StringPtr("SHAC-1"), Total: 3}},
		model.LevelAdmin: sampleStats(),
	})
	require.NoError(t, err)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)
	assert.Equal(t, model.LevelAdmin, f.Sheets[0].Name)
	assert.Equal(t, model.LevelHydro, f.Sheets[1].Name)

	admin := f.Sheets[0]
	require.Len(t, admin.Rows, 3)
	assert.Equal(t, "zone_id", admin.Rows[0].Cells[0].String())
	assert.Equal(t, "Arica", admin.Rows[1].Cells[0].String())
	mean, err := admin.Rows[1].Cells[1].Float()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, mean, 1e-9)
	total, err := admin.Rows[1].Cells[5].Int()
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "", admin.Rows[2].Cells[0].Value, "unassigned zone has an empty id")
}

func TestZoneStatsXLSX_Empty(t *testing.T) {
	err := ZoneStatsXLSX(filepath.Join(t.TempDir(), "x.xlsx"), nil)
	assert.Error(t, err)
}
