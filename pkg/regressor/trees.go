package regressor

import "fmt"

// Node is one split or leaf of a regression tree. Nodes are stored in an
// array with the root at index 0; a node whose Left is <= 0 is a leaf.
type Node struct {
	Feature   int     `mapstructure:"feature"`
	Threshold float64 `mapstructure:"threshold"`
	Left      int     `mapstructure:"left"`
	Right     int     `mapstructure:"right"`
	Value     float64 `mapstructure:"value"`
}

// Tree is a binary regression tree.
type Tree struct {
	Nodes []Node `mapstructure:"nodes"`
}

func (t Tree) eval(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left <= 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Aggregations for Trees.
const (
	AggregateSum  = "sum"
	AggregateMean = "mean"
)

// Trees is a tree ensemble: Base + Scale·agg(tree outputs). Boosted models
// use "sum" with Scale as the learning rate; forests use "mean".
type Trees struct {
	Base      float64 `mapstructure:"base"`
	Scale     float64 `mapstructure:"scale"`
	Aggregate string  `mapstructure:"aggregate"`
	Trees     []Tree  `mapstructure:"trees"`

	width int
}

func (t Trees) Predict(rows [][]float64) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) < t.width {
			return nil, fmt.Errorf("%w: row %d has %d features, trees read %d",
				ErrFeatureWidth, i, len(row), t.width)
		}
		var acc float64
		for _, tr := range t.Trees {
			acc += tr.eval(row)
		}
		if t.Aggregate == AggregateMean {
			acc /= float64(len(t.Trees))
		}
		out[i] = t.Base + t.Scale*acc
	}
	return out, nil
}

func (t Trees) Width() int { return t.width }

func decodeTrees(params map[string]any) (Regressor, error) {
	t := Trees{Scale: 1, Aggregate: AggregateSum}
	if err := decodeParams(params, &t); err != nil {
		return nil, err
	}
	if t.Aggregate != AggregateSum && t.Aggregate != AggregateMean {
		return nil, fmt.Errorf("%w: aggregate must be %q or %q, got %q",
			ErrBadParams, AggregateSum, AggregateMean, t.Aggregate)
	}
	if len(t.Trees) == 0 {
		return nil, fmt.Errorf("%w: trees model needs at least one tree", ErrBadParams)
	}
	for ti, tr := range t.Trees {
		if len(tr.Nodes) == 0 {
			return nil, fmt.Errorf("%w: tree %d has no nodes", ErrBadParams, ti)
		}
		for ni, n := range tr.Nodes {
			if n.Left <= 0 {
				continue
			}
			// children must point forward so evaluation always terminates
			if n.Left <= ni || n.Right <= ni || n.Left >= len(tr.Nodes) || n.Right >= len(tr.Nodes) {
				return nil, fmt.Errorf("%w: tree %d node %d has out-of-order children (%d, %d)",
					ErrBadParams, ti, ni, n.Left, n.Right)
			}
			if n.Feature < 0 {
				return nil, fmt.Errorf("%w: tree %d node %d has negative feature %d",
					ErrBadParams, ti, ni, n.Feature)
			}
			if n.Feature+1 > t.width {
				t.width = n.Feature + 1
			}
		}
	}
	return t, nil
}
