// Package model holds the entities scored by the E1 exposure pipeline.
package model

// Tier is the severity classification assigned to a facility.
type Tier string

// Severity tiers. Labels match the values persisted in riesgo_E1.
const (
	TierHigh   Tier = "alto"
	TierMedium Tier = "medio"
	TierLow    Tier = "bajo"
)

// Weight returns the fixed numeric weight of the tier (alto=3, medio=2, bajo=1).
// Unknown tiers weigh 0.
func (t Tier) Weight() int {
	switch t {
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	return t.Weight() > 0
}

// Facility is a fixed installation (UF) that may act as a contamination source.
type Facility struct {
	FID         int64
	ID          string
	Category    string
	Subcategory string
	X           float64
	Y           float64
	Tier        Tier
	Weight      int
}

// ServiceRecord is a point (SSR) scored for exposure to nearby facilities.
// Pointer fields are nullable attributes.
type ServiceRecord struct {
	FID int64
	X   float64
	Y   float64
	// NoGeometry marks a feature without a usable point. X and Y are zero
	// and the record is scored with no nearby facilities.
	NoGeometry bool

	AdminZone *string
	HydroZone *string

	DistHigh      *float64
	DistMedium    *float64
	CountHigh     int
	CountMedium   int
	NearestHighID *string
	ExposedHigh   bool

	Raw           *float64
	Norm          *float64
	CategoryLabel string
	Category      int

	Kernel *float64
	High   bool
}

// ZoneStats is one row of a zonal summary table.
type ZoneStats struct {
	Level     string   `json:"level"`
	ZoneID    *string  `json:"zone_id"` // nil groups records outside every zone
	Mean      *float64 `json:"mean"`
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	HighCount int      `json:"high_count"`
	Total     int      `json:"total"`
}

// Zone levels used as summary keys.
const (
	LevelAdmin = "comuna"
	LevelHydro = "shac"
)

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }
