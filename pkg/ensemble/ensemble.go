// Package ensemble derives the A/B blending weights from a training manifest.
//
// Weight sources, highest priority first:
//
//  1. manifest.ensemble.suggested_by_inverse_mae.{wA,wB}
//  2. manifest.ensemble.{wA,wB}
//  3. 0.5 / 0.5
//
// A tier applies only when both of its values are numbers. The chosen pair is
// always normalized to sum to 1; a pair whose sum is not positive, or that
// carries a negative weight, falls back to 0.5 / 0.5 whatever tier produced it.
package ensemble

import (
	"encoding/json"
	"fmt"
	"math"
)

// Tolerance bounds |A+B-1| for any Weights returned by Resolve.
const Tolerance = 1e-9

// Weights is a normalized A/B blending pair.
type Weights struct {
	A float64 `json:"wA" yaml:"wA"`
	B float64 `json:"wB" yaml:"wB"`
}

// Even is the fallback pair.
var Even = Weights{A: 0.5, B: 0.5}

// Sum returns A+B.
func (w Weights) Sum() float64 { return w.A + w.B }

// Blend returns A·a + B·b.
func (w Weights) Blend(a, b float64) float64 { return w.A*a + w.B*b }

func (w Weights) String() string { return fmt.Sprintf("(%.4f, %.4f)", w.A, w.B) }

// Resolve computes normalized weights from manifest. It keeps no state, so a
// swapped manifest is picked up on the next call.
func Resolve(manifest map[string]any) Weights {
	w, _ := pick(manifest)
	return normalize(w)
}

// Source reports which tier Resolve would use: "suggested_by_inverse_mae",
// "ensemble" or "default".
func Source(manifest map[string]any) string {
	_, src := pick(manifest)
	return src
}

func pick(manifest map[string]any) (Weights, string) {
	ens, ok := manifest["ensemble"].(map[string]any)
	if !ok {
		return Even, "default"
	}
	if sugg, ok := ens["suggested_by_inverse_mae"].(map[string]any); ok {
		if w, ok := pair(sugg); ok {
			return w, "suggested_by_inverse_mae"
		}
	}
	if w, ok := pair(ens); ok {
		return w, "ensemble"
	}
	return Even, "default"
}

func pair(m map[string]any) (Weights, bool) {
	a, okA := number(m["wA"])
	b, okB := number(m["wB"])
	if !okA || !okB {
		return Weights{}, false
	}
	return Weights{A: a, B: b}, true
}

func normalize(w Weights) Weights {
	total := w.Sum()
	if !(total > 0) || math.IsInf(total, 0) || w.A < 0 || w.B < 0 {
		return Even
	}
	return Weights{A: w.A / total, B: w.B / total}
}

// number accepts JSON numbers and Go numeric kinds; bools and strings are not numbers.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
