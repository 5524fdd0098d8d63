// Package features turns a building-description payload into the fixed,
// ordered numeric vector the retrofit models were trained on.
//
// Layout (Width = 8):
//
//	[0] floorAreaM2
//	[1] energy_kwh
//	[2] eui_kwh_m2y
//	[3] builtYear
//	[4] isFactory
//	[5] isHospital
//	[6] isSchool
//	[7] isOffice
//
// Numeric fields default to 0 when missing or not coercible. The type flags are
// independent substring tests on the lower-cased, trimmed type string, so a
// type may set several flags or none at all.
package features

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/ja7ad/retrofit/pkg/util"
)

// Payload keys.
const (
	KeyType      = "type"
	KeyFloorArea = "floorAreaM2"
	KeyEnergy    = "energy_kwh"
	KeyEUI       = "eui_kwh_m2y"
	KeyBuiltYear = "builtYear"
	KeyVariant   = "variant"
)

// DefaultType is used when the payload carries no type at all.
const DefaultType = "office"

// Width is the length of every feature vector.
const Width = 8

// Vector is one model input row.
type Vector [Width]float64

// Payload is a loosely typed building description, usually decoded from JSON.
type Payload map[string]any

var typeKeywords = [...]string{"factory", "hospital", "school", "office"}

// Vectorize maps p into its feature vector.
func Vectorize(p Payload) (Vector, error) {
	var v Vector
	v[0] = Float(p, KeyFloorArea)
	v[1] = Float(p, KeyEnergy)
	v[2] = Float(p, KeyEUI)
	v[3] = Float(p, KeyBuiltYear)

	typ, err := Type(p)
	if err != nil {
		return Vector{}, err
	}
	for i, kw := range typeKeywords {
		if strings.Contains(typ, kw) {
			v[4+i] = 1
		}
	}
	return v, nil
}

// Float reads key from p as a float64. Missing, non-numeric and non-finite
// values yield 0.
func Float(p Payload, key string) float64 {
	raw, ok := p[key]
	if !ok || raw == nil {
		return 0
	}
	if s, ok := raw.(string); ok {
		raw = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil || !util.Finite(f) {
		return 0
	}
	return f
}

// Type returns the normalized building type of p. An absent or empty type
// becomes DefaultType; a whitespace-only type normalizes to "".
func Type(p Payload) (string, error) {
	raw, ok := p[KeyType]
	if !ok || raw == nil {
		return DefaultType, nil
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %T", ErrBadType, raw)
	}
	if s == "" {
		return DefaultType, nil
	}
	return strings.ToLower(strings.TrimSpace(s)), nil
}

// String returns the string form of key, or "" when it is missing or not
// representable as a string.
func String(p Payload, key string) string {
	s, err := cast.ToStringE(p[key])
	if err != nil {
		return ""
	}
	return s
}
