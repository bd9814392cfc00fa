package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/e1-cli/internal/model"
)

func TestDefaultLookup(t *testing.T) {
	tax := Default()

	tests := []struct {
		name        string
		category    string
		subcategory string
		want        Class
		matched     bool
	}{
		{"subcategory high", "", "Relleno sanitario", Class{model.TierHigh, 3}, true},
		{"subcategory medium", "", "Puerto", Class{model.TierMedium, 2}, true},
		{"subcategory low", "", "Panadería", Class{model.TierLow, 1}, true},
		{"category fallback", "Energía", "Subestación", Class{model.TierMedium, 2}, true},
		{"category high", "Saneamiento ambiental", "", Class{model.TierHigh, 3}, true},
		{"subcategory wins over category", "Educación", "Vertedero", Class{model.TierHigh, 3}, true},
		{"subcategory wins even when lower", "Saneamiento ambiental", "Otros", Class{model.TierLow, 1}, true},
		{"trimmed labels", "  Energía ", "\tRelleno sanitario  ", Class{model.TierHigh, 3}, true},
		{"case sensitive miss", "energía", "relleno sanitario", Class{model.TierLow, 1}, false},
		{"accent variants both listed", "", "Estacion de servicio", Class{model.TierHigh, 3}, true},
		{"unknown", "Minería", "Faena minera", Class{model.TierLow, 1}, false},
		{"empty", "", "", Class{model.TierLow, 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, matched := tax.Lookup(tt.category, tt.subcategory)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestClassWeightFollowsTier(t *testing.T) {
	for _, tier := range []model.Tier{model.TierHigh, model.TierMedium, model.TierLow} {
		c := ClassOf(tier)
		assert.Equal(t, tier.Weight(), c.Weight)
	}
}

func TestNew_CopiesTables(t *testing.T) {
	subs := map[string]model.Tier{"Vertedero": model.TierHigh}
	tax, err := New(subs, nil, model.TierLow)
	require.NoError(t, err)

	subs["Vertedero"] = model.TierLow
	subs["Puerto"] = model.TierMedium

	c, ok := tax.Lookup("", "Vertedero")
	assert.True(t, ok)
	assert.Equal(t, model.TierHigh, c.Tier)

	_, ok = tax.Lookup("", "Puerto")
	assert.False(t, ok)
}

func TestNew_InvalidTier(t *testing.T) {
	_, err := New(map[string]model.Tier{"x": "critico"}, nil, model.TierLow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tier")

	_, err = New(nil, nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid default tier")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	content := `
taxonomy:
  default: medio
  subcategories:
    "Piscicultura": alto
  categories:
    "Transporte": bajo
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	tax, err := LoadFile(path)
	require.NoError(t, err)

	c, ok := tax.Lookup("Transporte", "Piscicultura")
	assert.True(t, ok)
	assert.Equal(t, Class{model.TierHigh, 3}, c)

	c, ok = tax.Lookup("Transporte", "")
	assert.True(t, ok)
	assert.Equal(t, Class{model.TierLow, 1}, c)

	c, ok = tax.Lookup("Otra", "")
	assert.False(t, ok)
	assert.Equal(t, Class{model.TierMedium, 2}, c)

	subs, cats := tax.Len()
	assert.Equal(t, 1, subs)
	assert.Equal(t, 1, cats)
}

func TestLoadFile_DefaultTierOmitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("taxonomy:\n  categories:\n    A: alto\n"), 0o600))

	tax, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Class{model.TierLow, 1}, tax.Fallback())
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "taxonomy: read")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("taxonomy: ["), 0o600))
	_, err = LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "taxonomy: parse")
}

func TestClassifier_Classify(t *testing.T) {
	facilities := []model.Facility{
		{ID: "A", Subcategory: "Relleno sanitario"},
		{ID: "B", Category: "Energía", Subcategory: "Subestación eléctrica"},
		{ID: "C", Category: " Comercio y servicios "},
		{ID: "D", Category: "Desconocida"},
		{ID: "E"},
	}

	s := NewClassifier(nil).Classify(facilities)

	assert.Equal(t, Summary{High: 1, Medium: 1, Low: 3, Misses: 2}, s)
	assert.Equal(t, 5, s.Total())

	assert.Equal(t, model.TierHigh, facilities[0].Tier)
	assert.Equal(t, 3, facilities[0].Weight)
	assert.Equal(t, model.TierMedium, facilities[1].Tier)
	assert.Equal(t, 2, facilities[1].Weight)
	assert.Equal(t, "Comercio y servicios", facilities[2].Category)
	assert.Equal(t, model.TierLow, facilities[2].Tier)
	assert.Equal(t, model.TierLow, facilities[3].Tier)
	assert.Equal(t, 1, facilities[4].Weight)
}

func TestClassifier_Idempotent(t *testing.T) {
	facilities := []model.Facility{{ID: "A", Subcategory: "Astillero"}}
	c := NewClassifier(Default())

	first := c.Classify(facilities)
	snapshot := facilities[0]
	second := c.Classify(facilities)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, facilities[0])
}
