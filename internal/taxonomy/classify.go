package taxonomy

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/model"
)

// Summary counts the outcome of a classification pass.
type Summary struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
	// Misses counts facilities that matched neither table and took the default class.
	Misses int `json:"misses"`
}

// Total returns the number of classified facilities.
func (s Summary) Total() int {
	return s.High + s.Medium + s.Low
}

// Classifier assigns tier and weight to facilities using an injected taxonomy.
type Classifier struct {
	tax *Taxonomy
}

// NewClassifier creates a Classifier. A nil taxonomy uses Default().
func NewClassifier(tax *Taxonomy) *Classifier {
	if tax == nil {
		tax = Default()
	}
	return &Classifier{tax: tax}
}

// Classify writes tier and weight onto every facility in place. Labels are
// stored trimmed. Lookup misses are resolved to the default class and counted.
func (c *Classifier) Classify(facilities []model.Facility) Summary {
	var s Summary
	for i := range facilities {
		f := &facilities[i]
		f.Category = strings.TrimSpace(f.Category)
		f.Subcategory = strings.TrimSpace(f.Subcategory)

		class, matched := c.tax.Lookup(f.Category, f.Subcategory)
		if !matched {
			s.Misses++
			zap.L().Debug("taxonomy: no match, using default class",
				zap.String("facility_id", f.ID),
				zap.String("category", f.Category),
				zap.String("subcategory", f.Subcategory),
			)
		}
		f.Tier = class.Tier
		f.Weight = class.Weight

		switch class.Tier {
		case model.TierHigh:
			s.High++
		case model.TierMedium:
			s.Medium++
		default:
			s.Low++
		}
	}
	return s
}
