package validation

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// MaxNside is the largest nside whose nest indices fit an int64.
const MaxNside = 1 << 29

// ConfigValidator provides a fluent interface for validating configuration values.
// It collects all validation errors rather than failing on the first one.
type ConfigValidator struct {
	errors []error
	name   string // config section name for error messages
}

// NewConfigValidator creates a new config validator with the given config name.
func NewConfigValidator(configName string) *ConfigValidator {
	return &ConfigValidator{
		name:   configName,
		errors: make([]error, 0),
	}
}

func (cv *ConfigValidator) addf(field, format string, args ...any) {
	cv.errors = append(cv.errors, fmt.Errorf("%s.%s: "+format, append([]any{cv.name, field}, args...)...))
}

// Required validates that a string field is not empty.
func (cv *ConfigValidator) Required(field, value string) *ConfigValidator {
	if value == "" {
		cv.addf(field, "required field is empty")
	}
	return cv
}

// MinInt validates that an int field is at least the minimum value.
func (cv *ConfigValidator) MinInt(field string, value, min int) *ConfigValidator {
	if value < min {
		cv.addf(field, "value %d is below minimum %d", value, min)
	}
	return cv
}

// RangeInt validates that an int field is within the specified range.
func (cv *ConfigValidator) RangeInt(field string, value, min, max int) *ConfigValidator {
	if value < min || value > max {
		cv.addf(field, "value %d is outside range [%d, %d]", value, min, max)
	}
	return cv
}

// Positive validates that an int field is positive (> 0).
func (cv *ConfigValidator) Positive(field string, value int) *ConfigValidator {
	if value <= 0 {
		cv.addf(field, "value %d must be positive", value)
	}
	return cv
}

// PositiveFloat validates that a float field is positive (> 0).
func (cv *ConfigValidator) PositiveFloat(field string, value float64) *ConfigValidator {
	if !(value > 0) {
		cv.addf(field, "value %g must be positive", value)
	}
	return cv
}

// NonNegativeFloat validates that a float field is non-negative (>= 0).
func (cv *ConfigValidator) NonNegativeFloat(field string, value float64) *ConfigValidator {
	if !(value >= 0) {
		cv.addf(field, "value %g must be non-negative", value)
	}
	return cv
}

// RangeFloat validates lo <= value <= hi. NaN always fails.
func (cv *ConfigValidator) RangeFloat(field string, value, lo, hi float64) *ConfigValidator {
	if math.IsNaN(value) || value < lo || value > hi {
		cv.addf(field, "value %g is outside range [%g, %g]", value, lo, hi)
	}
	return cv
}

// Nside validates a HEALPix resolution: a power of two in [1, MaxNside].
func (cv *ConfigValidator) Nside(field string, value int64) *ConfigValidator {
	if !IsNside(value) {
		cv.addf(field, "nside %d must be a power of two in [1, %d]", value, MaxNside)
	}
	return cv
}

// NsideAtMost validates that a coarse resolution does not exceed a fine one.
func (cv *ConfigValidator) NsideAtMost(field string, coarse, fine int64) *ConfigValidator {
	if coarse > fine {
		cv.addf(field, "nside %d exceeds %d", coarse, fine)
	}
	return cv
}

// Ascending validates bin edges: at least two values, strictly increasing, all finite.
func (cv *ConfigValidator) Ascending(field string, edges []float64) *ConfigValidator {
	if len(edges) < 2 {
		cv.addf(field, "need at least 2 edges, got %d", len(edges))
		return cv
	}
	for i, e := range edges {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			cv.addf(field, "edge %d is not finite", i)
			return cv
		}
		if i > 0 && e <= edges[i-1] {
			cv.addf(field, "edges must be strictly increasing (%g after %g)", e, edges[i-1])
			return cv
		}
	}
	return cv
}

// SameLength validates that two parallel lists have the expected relation n == m+offset.
func (cv *ConfigValidator) SameLength(field string, n, m, offset int) *ConfigValidator {
	if n != m+offset {
		cv.addf(field, "length %d does not match %d", n, m+offset)
	}
	return cv
}

// OneOf validates that a string field is one of the allowed values.
func (cv *ConfigValidator) OneOf(field, value string, allowed []string) *ConfigValidator {
	for _, a := range allowed {
		if value == a {
			return cv
		}
	}
	cv.addf(field, "value %q must be one of %v", value, allowed)
	return cv
}

// Custom applies a custom validation function.
func (cv *ConfigValidator) Custom(field string, fn func() error) *ConfigValidator {
	if err := fn(); err != nil {
		cv.errors = append(cv.errors, fmt.Errorf("%s.%s: %w", cv.name, field, err))
	}
	return cv
}

// When conditionally applies validations if the condition is true.
func (cv *ConfigValidator) When(condition bool, validations func(*ConfigValidator)) *ConfigValidator {
	if condition {
		validations(cv)
	}
	return cv
}

// HasErrors returns true if any validation errors occurred.
func (cv *ConfigValidator) HasErrors() bool {
	return len(cv.errors) > 0
}

// Errors returns all validation errors.
func (cv *ConfigValidator) Errors() []error {
	return cv.errors
}

// Validate returns a combined error if any validations failed.
func (cv *ConfigValidator) Validate() error {
	if len(cv.errors) == 0 {
		return nil
	}
	if len(cv.errors) == 1 {
		return cv.errors[0]
	}
	return fmt.Errorf("%s validation failed with %d errors: %w", cv.name, len(cv.errors), errors.Join(cv.errors...))
}

// IsNside reports whether n is a valid HEALPix nside.
func IsNside(n int64) bool {
	return n >= 1 && n <= MaxNside && bits.OnesCount64(uint64(n)) == 1
}

// DefaultOr returns the value if it's non-zero, otherwise returns the default.
func DefaultOr[T comparable](value, defaultValue T) T {
	var zero T
	if value == zero {
		return defaultValue
	}
	return value
}
