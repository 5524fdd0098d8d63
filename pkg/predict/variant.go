package predict

import (
	"fmt"
	"strings"
)

// Variant selects which model(s) serve a request.
type Variant int

const (
	// VariantEnsemble blends A and B. It is the default and is spelled "C".
	VariantEnsemble Variant = iota
	VariantA
	VariantB
)

func (v Variant) String() string {
	switch v {
	case VariantA:
		return "A"
	case VariantB:
		return "B"
	case VariantEnsemble:
		return "C"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// ParseVariant accepts "A", "B" or "C" in any case; an empty string is C.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "C":
		return VariantEnsemble, nil
	case "A":
		return VariantA, nil
	case "B":
		return VariantB, nil
	default:
		return VariantEnsemble, fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
}

func (v Variant) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *Variant) UnmarshalText(b []byte) error {
	parsed, err := ParseVariant(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Source names what actually produced a saving estimate.
type Source string

const (
	SourceA        Source = "A"
	SourceB        Source = "B"
	SourceEnsemble Source = "ensemble"
	SourceSingle   Source = "single"
	SourceNone     Source = "none"
)
