package pipeline

import (
	"fmt"

	"github.com/sells-group/e1-cli/internal/layer"
	"github.com/sells-group/e1-cli/internal/reconcile"
)

// Fields written onto the facility layer.
const (
	FieldRiskClass  = "riesgo_E1"
	FieldRiskWeight = "peso_E1"
)

// Fields written onto record layers.
const (
	FieldDistHigh      = "dist_UF_alto"
	FieldDistMedium    = "dist_UF_medio"
	FieldCountHigh     = "cnt_UF_alto_1km"
	FieldCountMedium   = "cnt_UF_medio_1km"
	FieldNearestHigh   = "UF_alto_id"
	FieldExposedHigh   = "expuesto_alto"
	FieldRaw           = "E1_raw"
	FieldNorm          = "E1_norm"
	FieldCategoryLabel = "E1_cat"
	FieldCategory      = "E1_clas"
	FieldKernel        = reconcile.CanonicalField
	FieldHigh          = "E1_high"
)

var facilityFields = []layer.Field{
	{Name: FieldRiskClass, Type: layer.Text},
	{Name: FieldRiskWeight, Type: layer.Short},
}

var metricFields = []layer.Field{
	{Name: FieldDistHigh, Type: layer.Double},
	{Name: FieldDistMedium, Type: layer.Double},
	{Name: FieldCountHigh, Type: layer.Long},
	{Name: FieldCountMedium, Type: layer.Long},
	{Name: FieldNearestHigh, Type: layer.Text},
	{Name: FieldExposedHigh, Type: layer.Short},
	{Name: FieldRaw, Type: layer.Double},
	{Name: FieldNorm, Type: layer.Double},
	{Name: FieldCategoryLabel, Type: layer.Text},
	{Name: FieldCategory, Type: layer.Short},
}

var densityFields = []layer.Field{
	{Name: FieldKernel, Type: layer.Double},
	{Name: FieldHigh, Type: layer.Short},
}

func names(fields []layer.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

// LevelKey names the zonal summary of one record layer at one level, e.g.
// "ssr_comuna".
func LevelKey(layerName, level string) string {
	return fmt.Sprintf("%s_%s", layerName, level)
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
