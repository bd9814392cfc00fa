//go:build !integration

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/config"
	"github.com/sells-group/e1-cli/internal/engine"
	"github.com/sells-group/e1-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Workspace: config.WorkspaceConfig{Driver: "sqlite", Path: filepath.Join(dir, "e1.db"), Schema: "e1"},
		Store:     config.StoreConfig{Driver: "sqlite"},
		Layers:    config.LayersConfig{Facilities: "uf", Records: []string{"ssr"}, HydroZones: "shac"},
		Fields: config.FieldsConfig{
			FacilityID:  "UnidadFiscalizableId",
			Category:    "CategoriaEconomicaNombre",
			Subcategory: "SubCategoriaEconomicaNombre",
			AdminZone:   "COMUNA",
			HydroZone:   "COD_SHAC",
			ZoneID:      "COD_SHAC",
			AdminZoneID: "COMUNA",
		},
		E1: config.E1Config{
			SearchRadius: 5000,
			BufferRadius: 1000,
			Weights:      config.WeightsConfig{High: 3, Medium: 2, CountHigh: 0.5, CountMedium: 0.25},
		},
		Kernel:   config.KernelConfig{CellSize: 100, Radius: 5000, AreaUnit: "square_kilometers"},
		Pipeline: config.PipelineConfig{Concurrency: 2},
		Ingest:   config.IngestConfig{SRID: 32718, XField: "x", YField: "y"},
		Log:      config.LogConfig{Level: "info", Format: "json"},
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"import", "classify", "metrics", "density", "zones", "fix-kernel", "run", "export", "migrate", "status"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_Flags(t *testing.T) {
	for _, c := range []struct {
		cmd  string
		flag string
	}{
		{"import", "layer"},
		{"import", "encoding"},
		{"import", "sheet"},
		{"metrics", "layer"},
		{"density", "grid-out"},
		{"zones", "layer"},
		{"run", "grid-out"},
		{"run", "no-store"},
		{"export", "run"},
		{"export", "xlsx"},
		{"export", "records-csv"},
	} {
		sub, _, err := rootCmd.Find([]string{c.cmd})
		require.NoError(t, err, c.cmd)
		assert.NotNil(t, sub.Flags().Lookup(c.flag), "%s --%s", c.cmd, c.flag)
	}
}

func TestPipelineOptions_MapsConfig(t *testing.T) {
	c := testConfig(t.TempDir())
	c.Layers.AdminZones = "comunas"

	opts, err := pipelineOptions(c)
	require.NoError(t, err)
	assert.Equal(t, "uf", opts.Layers.Facilities)
	assert.Equal(t, []string{"ssr"}, opts.Layers.Records)
	assert.Equal(t, "comunas", opts.Layers.AdminZones)
	assert.Equal(t, "COD_SHAC", opts.Fields.ZoneID)
	assert.Equal(t, 5000.0, opts.Proximity.SearchRadius)
	assert.Equal(t, 1000.0, opts.Proximity.BufferRadius)
	assert.Equal(t, 0.25, opts.Weights.CountMedium)
	assert.Equal(t, engine.AreaUnit("SQUARE_KILOMETERS"), opts.Kernel.AreaUnit)
	assert.Equal(t, 2, opts.Concurrency)
	assert.Nil(t, opts.Taxonomy, "built-in taxonomy when no file is configured")
}

func TestPipelineOptions_TaxonomyFile(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(dir)
	c.E1.TaxonomyFile = filepath.Join(dir, "missing.yaml")

	_, err := pipelineOptions(c)
	assert.Error(t, err)
}

func TestPipelineOptions_NegativeWeight(t *testing.T) {
	c := testConfig(t.TempDir())
	c.E1.Weights.Medium = -1

	_, err := pipelineOptions(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "medium")
}

func TestNewPipeline_InvalidConfig(t *testing.T) {
	cfg = testConfig(t.TempDir())
	cfg.Layers.Records = nil

	_, _, err := newPipeline(context.Background(), false, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layers.records")
}

func TestOpenBackends_UnsupportedStore(t *testing.T) {
	cfg = testConfig(t.TempDir())
	cfg.Store.Driver = "mysql"

	_, err := openBackends(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestRecordLayers(t *testing.T) {
	cfg = testConfig(t.TempDir())
	cfg.Layers.Records = []string{"ssr", "apr"}

	assert.Equal(t, []string{"ssr", "apr"}, recordLayers(""))
	assert.Equal(t, []string{"apr"}, recordLayers("apr"))
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, model.RunStatusComplete, runStatus(nil))
	assert.Equal(t, model.RunStatusFailed, runStatus(os.ErrClosed))
}
