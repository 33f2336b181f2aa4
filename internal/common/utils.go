package common

import (
	"math"
	"strings"
)

// NormalizeName returns the comparison form of a place name or identifier.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// FiniteOr returns f, or def when f is not finite.
func FiniteOr(f, def float64) float64 {
	if IsFinite(f) {
		return f
	}
	return def
}

// FinitePtr returns a pointer to f, or nil when f is not finite.
func FinitePtr(f float64) *float64 {
	if !IsFinite(f) {
		return nil
	}
	return &f
}

// At returns a pointer to s[i] when i is in range and the value is finite.
func At(s []float64, i int) *float64 {
	if i < 0 || i >= len(s) {
		return nil
	}
	return FinitePtr(s[i])
}
