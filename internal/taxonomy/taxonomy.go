// Package taxonomy maps facility category and subcategory labels to a
// severity tier and weight, and classifies facilities with that mapping.
package taxonomy

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/e1-cli/internal/model"
)

// Class is the (tier, weight) pair assigned to a facility.
type Class struct {
	Tier   model.Tier
	Weight int
}

// ClassOf returns the class for a tier. The weight always follows the tier.
func ClassOf(t model.Tier) Class {
	return Class{Tier: t, Weight: t.Weight()}
}

// Taxonomy is an immutable lookup from labels to classes.
// Subcategory matches take priority over category matches; anything else
// falls back to the default class.
type Taxonomy struct {
	subcategories map[string]Class
	categories    map[string]Class
	fallback      Class
}

// New builds a Taxonomy from tier tables. The maps are copied, so later
// changes by the caller do not leak into the taxonomy.
func New(subcategories, categories map[string]model.Tier, fallback model.Tier) (*Taxonomy, error) {
	if !fallback.Valid() {
		return nil, eris.Errorf("taxonomy: invalid default tier %q", fallback)
	}
	t := &Taxonomy{
		subcategories: make(map[string]Class, len(subcategories)),
		categories:    make(map[string]Class, len(categories)),
		fallback:      ClassOf(fallback),
	}
	for label, tier := range subcategories {
		if !tier.Valid() {
			return nil, eris.Errorf("taxonomy: invalid tier %q for subcategory %q", tier, label)
		}
		t.subcategories[label] = ClassOf(tier)
	}
	for label, tier := range categories {
		if !tier.Valid() {
			return nil, eris.Errorf("taxonomy: invalid tier %q for category %q", tier, label)
		}
		t.categories[label] = ClassOf(tier)
	}
	return t, nil
}

// Lookup returns the class for a facility's labels. Both labels are trimmed;
// matching is otherwise exact and case-sensitive. The bool reports whether
// either table matched (false means the default class was used).
func (t *Taxonomy) Lookup(category, subcategory string) (Class, bool) {
	sub := strings.TrimSpace(subcategory)
	if c, ok := t.subcategories[sub]; ok {
		return c, true
	}
	cat := strings.TrimSpace(category)
	if c, ok := t.categories[cat]; ok {
		return c, true
	}
	return t.fallback, false
}

// Fallback returns the class used when no table matches.
func (t *Taxonomy) Fallback() Class {
	return t.fallback
}

// Len returns the number of subcategory and category entries.
func (t *Taxonomy) Len() (subcategories, categories int) {
	return len(t.subcategories), len(t.categories)
}

// fileConfig is the YAML layout of an alternate taxonomy file.
type fileConfig struct {
	Taxonomy struct {
		Default       model.Tier            `yaml:"default"`
		Subcategories map[string]model.Tier `yaml:"subcategories"`
		Categories    map[string]model.Tier `yaml:"categories"`
	} `yaml:"taxonomy"`
}

// LoadFile reads a taxonomy from a YAML file with a top-level "taxonomy" key.
// An omitted default tier means bajo.
func LoadFile(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: read %s", path)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "taxonomy: parse %s", path)
	}

	fallback := fc.Taxonomy.Default
	if fallback == "" {
		fallback = model.TierLow
	}
	return New(fc.Taxonomy.Subcategories, fc.Taxonomy.Categories, fallback)
}
