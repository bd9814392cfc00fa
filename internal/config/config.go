package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace" mapstructure:"workspace"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Layers    LayersConfig    `yaml:"layers" mapstructure:"layers"`
	Fields    FieldsConfig    `yaml:"fields" mapstructure:"fields"`
	E1        E1Config        `yaml:"e1" mapstructure:"e1"`
	Kernel    KernelConfig    `yaml:"kernel" mapstructure:"kernel"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// WorkspaceConfig selects where layers live. The sqlite driver keeps them
// in a single file; postgres keeps them as tables in Schema.
type WorkspaceConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
	Schema string `yaml:"schema" mapstructure:"schema"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LayersConfig names the workspace layers. An empty AdminZones means the
// admin zone is read from a field on the records instead of a polygon layer.
type LayersConfig struct {
	Facilities string   `yaml:"facilities" mapstructure:"facilities"`
	Records    []string `yaml:"records" mapstructure:"records"`
	HydroZones string   `yaml:"hydro_zones" mapstructure:"hydro_zones"`
	AdminZones string   `yaml:"admin_zones" mapstructure:"admin_zones"`
}

// FieldsConfig names the source attribute fields.
type FieldsConfig struct {
	FacilityID  string `yaml:"facility_id" mapstructure:"facility_id"`
	Category    string `yaml:"category" mapstructure:"category"`
	Subcategory string `yaml:"subcategory" mapstructure:"subcategory"`
	AdminZone   string `yaml:"admin_zone" mapstructure:"admin_zone"`
	HydroZone   string `yaml:"hydro_zone" mapstructure:"hydro_zone"`
	ZoneID      string `yaml:"zone_id" mapstructure:"zone_id"`
	AdminZoneID string `yaml:"admin_zone_id" mapstructure:"admin_zone_id"`
}

// E1Config holds the indicator parameters.
type E1Config struct {
	SearchRadius float64       `yaml:"search_radius" mapstructure:"search_radius"`
	BufferRadius float64       `yaml:"buffer_radius" mapstructure:"buffer_radius"`
	TaxonomyFile string        `yaml:"taxonomy_file" mapstructure:"taxonomy_file"`
	Weights      WeightsConfig `yaml:"weights" mapstructure:"weights"`
}

// WeightsConfig holds the composite score weights.
type WeightsConfig struct {
	High        float64 `yaml:"high" mapstructure:"high"`
	Medium      float64 `yaml:"medium" mapstructure:"medium"`
	CountHigh   float64 `yaml:"count_high" mapstructure:"count_high"`
	CountMedium float64 `yaml:"count_medium" mapstructure:"count_medium"`
}

// KernelConfig configures the density surface.
type KernelConfig struct {
	CellSize float64 `yaml:"cell_size" mapstructure:"cell_size"`
	Radius   float64 `yaml:"radius" mapstructure:"radius"`
	AreaUnit string  `yaml:"area_unit" mapstructure:"area_unit"`
}

// PipelineConfig configures stage execution.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// IngestConfig configures layer imports.
type IngestConfig struct {
	SRID     int    `yaml:"srid" mapstructure:"srid"`
	Encoding string `yaml:"encoding" mapstructure:"encoding"`
	XField   string `yaml:"x_field" mapstructure:"x_field"`
	YField   string `yaml:"y_field" mapstructure:"y_field"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("E1")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("workspace.driver", "sqlite")
	v.SetDefault("workspace.path", "e1.db")
	v.SetDefault("workspace.schema", "e1")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("layers.facilities", "uf")
	v.SetDefault("layers.records", []string{"ssr"})
	v.SetDefault("layers.hydro_zones", "shac")
	v.SetDefault("layers.admin_zones", "")
	v.SetDefault("fields.facility_id", "UnidadFiscalizableId")
	v.SetDefault("fields.category", "CategoriaEconomicaNombre")
	v.SetDefault("fields.subcategory", "SubCategoriaEconomicaNombre")
	v.SetDefault("fields.admin_zone", "COMUNA")
	v.SetDefault("fields.hydro_zone", "COD_SHAC")
	v.SetDefault("fields.zone_id", "COD_SHAC")
	v.SetDefault("fields.admin_zone_id", "COMUNA")
	v.SetDefault("e1.search_radius", 5000.0)
	v.SetDefault("e1.buffer_radius", 1000.0)
	v.SetDefault("e1.weights.high", 3.0)
	v.SetDefault("e1.weights.medium", 2.0)
	v.SetDefault("e1.weights.count_high", 0.5)
	v.SetDefault("e1.weights.count_medium", 0.25)
	v.SetDefault("kernel.cell_size", 100.0)
	v.SetDefault("kernel.radius", 5000.0)
	v.SetDefault("kernel.area_unit", "SQUARE_KILOMETERS")
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("ingest.srid", 32718)
	v.SetDefault("ingest.x_field", "x")
	v.SetDefault("ingest.y_field", "y")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

var areaUnits = map[string]bool{
	"SQUARE_MAP_UNITS":  true,
	"SQUARE_METERS":     true,
	"HECTARES":          true,
	"SQUARE_KILOMETERS": true,
}

// Validate checks the configuration for the given mode and reports every
// problem at once. Modes: "run" (scoring stages), "import" and "store".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
		errs = append(errs, c.validateWorkspace()...)
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateScoring()...)
	case "import":
		errs = append(errs, c.validateWorkspace()...)
		if c.Ingest.SRID <= 0 {
			errs = append(errs, "ingest.srid must be > 0")
		}
	case "store":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateWorkspace() []string {
	var errs []string
	switch c.Workspace.Driver {
	case "sqlite":
		if c.Workspace.Path == "" {
			errs = append(errs, "workspace.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres workspace")
		}
	default:
		errs = append(errs, fmt.Sprintf("workspace.driver must be sqlite or postgres, got %q", c.Workspace.Driver))
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite":
		if c.Workspace.Path == "" {
			return []string{"workspace.path is required for the sqlite store"}
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for the postgres store"}
		}
	default:
		return []string{fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)}
	}
	return nil
}

func (c *Config) validateScoring() []string {
	var errs []string
	if c.Layers.Facilities == "" {
		errs = append(errs, "layers.facilities is required")
	}
	if len(c.Layers.Records) == 0 {
		errs = append(errs, "layers.records needs at least one layer")
	}
	if c.Fields.Category == "" || c.Fields.Subcategory == "" {
		errs = append(errs, "fields.category and fields.subcategory are required")
	}

	if c.E1.SearchRadius <= 0 {
		errs = append(errs, "e1.search_radius must be > 0")
	}
	if c.E1.BufferRadius <= 0 {
		errs = append(errs, "e1.buffer_radius must be > 0")
	}
	if c.E1.SearchRadius > 0 && c.E1.BufferRadius > c.E1.SearchRadius {
		errs = append(errs, "e1.buffer_radius must not exceed e1.search_radius")
	}
	w := c.E1.Weights
	if w.High < 0 || w.Medium < 0 || w.CountHigh < 0 || w.CountMedium < 0 {
		errs = append(errs, "e1.weights values must be >= 0")
	}

	if c.Kernel.CellSize <= 0 {
		errs = append(errs, "kernel.cell_size must be > 0")
	}
	if c.Kernel.Radius <= 0 {
		errs = append(errs, "kernel.radius must be > 0")
	}
	if !areaUnits[strings.ToUpper(c.Kernel.AreaUnit)] {
		errs = append(errs, fmt.Sprintf("kernel.area_unit %q is not supported", c.Kernel.AreaUnit))
	}

	if c.Pipeline.Concurrency < 1 || c.Pipeline.Concurrency > 64 {
		errs = append(errs, "pipeline.concurrency must be between 1 and 64")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
