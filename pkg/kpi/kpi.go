package kpi

import (
	"fmt"

	"github.com/ja7ad/retrofit/pkg/util"
)

// Finalizer turns a raw saving percentage into a Result.
type Finalizer struct {
	policy Policy
}

// New creates a finalizer with the given policy.
// Fields > 0 in p override defaults; zero or negative fields keep the default.
func New(p *Policy) *Finalizer {
	base := DefaultPolicy()

	// No user policy: use defaults as-is.
	if p == nil {
		return &Finalizer{policy: base}
	}

	merged := base

	if p.CostPerKwh > 0 {
		merged.CostPerKwh = p.CostPerKwh
	}
	if p.CapexPerSqm > 0 {
		merged.CapexPerSqm = p.CapexPerSqm
	}
	if p.RecommendMinPct > 0 && p.RecommendMinPct <= 100 {
		merged.RecommendMinPct = p.RecommendMinPct
	}
	if p.RecommendMaxPayback > 0 {
		merged.RecommendMaxPayback = p.RecommendMaxPayback
	}
	if p.ConditionalMaxPayback > 0 {
		merged.ConditionalMaxPayback = p.ConditionalMaxPayback
	}
	if p.NeverPayback > 0 {
		merged.NeverPayback = p.NeverPayback
	}

	return &Finalizer{policy: merged}
}

// Policy returns the effective policy.
func (f *Finalizer) Policy() Policy { return f.policy }

// Finalize computes savings, payback and label for a building consuming
// energyKwh per year over floorAreaM2, given a saving of pct percent.
//
//	savingKwh  = energyKwh * pct / 100
//	savingCost = savingKwh * CostPerKwh
//	payback    = floorAreaM2 * CapexPerSqm / savingCost   (NeverPayback if savingCost <= 0)
//
// The label is decided on unrounded values; the returned figures are rounded.
func (f *Finalizer) Finalize(energyKwh, floorAreaM2, pct float64) Result {
	p := f.policy

	savingKwh := energyKwh * (pct / 100.0)
	savingCost := savingKwh * p.CostPerKwh
	capex := floorAreaM2 * p.CapexPerSqm

	payback := p.NeverPayback
	if savingCost > 0 {
		payback = capex / savingCost
	}

	return Result{
		SavingKwhYr:  util.Round(savingKwh, 4),
		SavingCostYr: util.Round(savingCost, 2),
		SavingPct:    util.Round(pct, 4),
		PaybackYears: util.Round(payback, 3),
		Label:        p.Label(pct, payback),
	}
}

// Label classifies a (pct, payback) pair under p.
func (p Policy) Label(pct, payback float64) Label {
	switch {
	case pct >= p.RecommendMinPct && payback <= p.RecommendMaxPayback:
		return Recommend
	case payback <= p.ConditionalMaxPayback:
		return Conditional
	default:
		return NotRecommend
	}
}

// Validate checks for invalid policy values.
func (p Policy) Validate() error {
	if p.CostPerKwh < 0 {
		return fmt.Errorf("costPerKwh must be >= 0, got %.2f", p.CostPerKwh)
	}
	if p.CapexPerSqm < 0 {
		return fmt.Errorf("capexPerSqm must be >= 0, got %.2f", p.CapexPerSqm)
	}
	if p.RecommendMinPct < 0 || p.RecommendMinPct > 100 {
		return fmt.Errorf("recommendMinPct must be between 0 and 100, got %.2f", p.RecommendMinPct)
	}
	if p.RecommendMaxPayback < 0 || p.ConditionalMaxPayback < 0 || p.NeverPayback < 0 {
		return fmt.Errorf("payback thresholds must be >= 0")
	}
	if p.ConditionalMaxPayback != 0 && p.RecommendMaxPayback > p.ConditionalMaxPayback {
		return fmt.Errorf("recommendMaxPayback (%.2f) should be <= conditionalMaxPayback (%.2f)",
			p.RecommendMaxPayback, p.ConditionalMaxPayback)
	}
	return nil
}
