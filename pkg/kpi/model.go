package kpi

// Policy holds the financial assumptions behind a recommendation.
// Units:
//   - CostPerKwh: currency per kWh saved
//   - CapexPerSqm: retrofit investment per m² of floor area
//   - RecommendMinPct: saving percentage needed for RECOMMEND [0..100]
//   - RecommendMaxPayback/ConditionalMaxPayback/NeverPayback: years
type Policy struct {
	CostPerKwh            float64 `mapstructure:"cost_per_kwh" json:"costPerKwh" yaml:"costPerKwh"`
	CapexPerSqm           float64 `mapstructure:"capex_per_sqm" json:"capexPerSqm" yaml:"capexPerSqm"`
	RecommendMinPct       float64 `mapstructure:"recommend_min_pct" json:"recommendMinPct" yaml:"recommendMinPct"`
	RecommendMaxPayback   float64 `mapstructure:"recommend_max_payback" json:"recommendMaxPayback" yaml:"recommendMaxPayback"`
	ConditionalMaxPayback float64 `mapstructure:"conditional_max_payback" json:"conditionalMaxPayback" yaml:"conditionalMaxPayback"`
	NeverPayback          float64 `mapstructure:"never_payback" json:"neverPayback" yaml:"neverPayback"`
}

// DefaultPolicy returns the policy the KPI figures were calibrated with.
func DefaultPolicy() Policy {
	return Policy{
		CostPerKwh:            130.0,     // per kWh
		CapexPerSqm:           200_000.0, // per m²
		RecommendMinPct:       15.0,      // %
		RecommendMaxPayback:   5.0,       // years
		ConditionalMaxPayback: 8.0,       // years
		NeverPayback:          99.0,      // sentinel: effectively never
	}
}

// Label is the recommendation attached to a result.
type Label string

const (
	Recommend    Label = "RECOMMEND"
	Conditional  Label = "CONDITIONAL"
	NotRecommend Label = "NOT_RECOMMEND"
)

// Result is the reportable outcome of one prediction.
type Result struct {
	SavingKwhYr  float64 `json:"savingKwhYr" yaml:"savingKwhYr"`
	SavingCostYr float64 `json:"savingCostYr" yaml:"savingCostYr"`
	SavingPct    float64 `json:"savingPct" yaml:"savingPct"`
	PaybackYears float64 `json:"paybackYears" yaml:"paybackYears"`
	Label        Label   `json:"label" yaml:"label"`
}
