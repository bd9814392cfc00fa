// Package scorer implements the E1 composite exposure score: a raw
// distance-decay and count score per record, a dataset-wide normalisation
// and the ordinal exposure category.
package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Weights holds the coefficients of the raw score.
type Weights struct {
	High        float64 `yaml:"high" mapstructure:"high"`                 // numerator of the alto distance-decay term
	Medium      float64 `yaml:"medium" mapstructure:"medium"`             // numerator of the medio distance-decay term
	CountHigh   float64 `yaml:"count_high" mapstructure:"count_high"`     // per alto facility inside the buffer
	CountMedium float64 `yaml:"count_medium" mapstructure:"count_medium"` // per medio facility inside the buffer
}

// DefaultWeights returns the E1 coefficients. The decay numerators equal
// the tier weights (alto=3, medio=2); counts favour alto over medio.
func DefaultWeights() Weights {
	return Weights{
		High:        3,
		Medium:      2,
		CountHigh:   0.5,
		CountMedium: 0.25,
	}
}

// ValidateWeights checks that all coefficients are non-negative and that at
// least one is positive.
func ValidateWeights(w Weights) error {
	var errs []string

	weights := []struct {
		name string
		v    float64
	}{
		{"high", w.High},
		{"medium", w.Medium},
		{"count_high", w.CountHigh},
		{"count_medium", w.CountMedium},
	}
	var sum float64
	for _, x := range weights {
		if x.v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", x.name))
		}
		sum += x.v
	}
	if sum <= 0 {
		errs = append(errs, "at least one weight must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: weight validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
