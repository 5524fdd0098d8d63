// Package regressor defines the opaque predictive capability used by the
// retrofit manager and the adapter that decodes it from disk.
//
// A Regressor maps each input row to one scalar. The manager never looks
// inside it; everything it knows about a model is the Predict call.
//
// # Model documents
//
// Serialized models are JSON documents, optionally gzip-compressed:
//
//	{ "kind": "linear", "features": 8, "params": { "intercept": 2.1, "coef": [ ... ] } }
//
// Built-in kinds are "constant", "linear" and "trees". Other kinds can be added
// with Register. Documents are checked against an embedded JSON Schema before
// the per-kind params are decoded. The file extension does not matter, so
// deployments that still ship model_A.pkl names keep working as long as the
// content is a model document.
//
// Decoded models are immutable and safe for concurrent use.
package regressor

import "fmt"

// Regressor is a trained model: one output per input row.
type Regressor interface {
	Predict(rows [][]float64) ([]float64, error)
}

// Func adapts a per-row function to a Regressor.
type Func func(row []float64) (float64, error)

// Predict calls f for each row.
func (f Func) Predict(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		y, err := f(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = y
	}
	return out, nil
}

// Widther is implemented by models that read a known number of leading
// features from each row.
type Widther interface {
	Width() int
}

// Constant always predicts Value.
type Constant struct {
	Value float64 `mapstructure:"value"`
}

func (c Constant) Predict(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i := range out {
		out[i] = c.Value
	}
	return out, nil
}

func (Constant) Width() int { return 0 }
