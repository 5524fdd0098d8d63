package regressor

import "fmt"

// Linear predicts Intercept + Σ Coef[i]·row[i].
type Linear struct {
	Intercept float64   `mapstructure:"intercept"`
	Coef      []float64 `mapstructure:"coef"`
}

func (l Linear) Predict(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(l.Coef) {
			return nil, fmt.Errorf("%w: row %d has %d features, model has %d coefficients",
				ErrFeatureWidth, i, len(row), len(l.Coef))
		}
		y := l.Intercept
		for j, x := range row {
			y += l.Coef[j] * x
		}
		out[i] = y
	}
	return out, nil
}

func (l Linear) Width() int { return len(l.Coef) }

func decodeLinear(params map[string]any) (Regressor, error) {
	var l Linear
	if err := decodeParams(params, &l); err != nil {
		return nil, err
	}
	if len(l.Coef) == 0 {
		return nil, fmt.Errorf("%w: linear model needs at least one coefficient", ErrBadParams)
	}
	return l, nil
}

func decodeConstant(params map[string]any) (Regressor, error) {
	var c Constant
	if err := decodeParams(params, &c); err != nil {
		return nil, err
	}
	return c, nil
}
