// Package predict serves retrofit saving predictions from the artifacts in a
// Store.
//
// A request names a Variant. The Manager walks an ordered list of steps for
// that variant and answers with the first step whose models are loaded:
//
//	A: A, blend(A,B), A, B, single, none
//	B: B, blend(A,B), A, B, single, none
//	C:    blend(A,B), A, B, single, none
//
// blend weighs A and B with the manifest's ensemble weights. none answers
// 0% and marks the result degraded, so a Manager with no models still returns
// a well-defined result.
//
// A model call that fails is logged, counted and contributes 0 instead of
// failing the request. Every model output is clamped to [0, 100].
package predict

import (
	"fmt"
	"log/slog"

	"github.com/ja7ad/retrofit/pkg/artifact"
	"github.com/ja7ad/retrofit/pkg/ensemble"
	"github.com/ja7ad/retrofit/pkg/features"
	"github.com/ja7ad/retrofit/pkg/kpi"
	"github.com/ja7ad/retrofit/pkg/metrics"
	"github.com/ja7ad/retrofit/pkg/util"
)

// Artifacts is the read side of an artifact.Store.
type Artifacts interface {
	Model(slot artifact.Slot) (artifact.Handle, bool)
	Manifest() map[string]any
	Status() artifact.Status
}

// Config controls New. A nil Config uses the default KPI policy, slog.Default
// and no metrics.
type Config struct {
	Policy  *kpi.Policy
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Estimate is a raw saving percentage and the source that produced it.
type Estimate struct {
	Pct    float64 `json:"pct" yaml:"pct"`
	Source Source  `json:"source" yaml:"source"`
}

// Result is a finalized prediction.
type Result struct {
	kpi.Result `yaml:",inline"`

	Variant  Variant `json:"variant" yaml:"variant"`
	Source   Source  `json:"source" yaml:"source"`
	Degraded bool    `json:"degraded" yaml:"degraded"`
}

// step answers a request if the models it needs are loaded.
type step func(p features.Payload) (Estimate, bool)

// Manager dispatches predictions. It holds no mutable state and is safe for
// concurrent use as long as the loaded models are.
type Manager struct {
	store   Artifacts
	kpi     *kpi.Finalizer
	log     *slog.Logger
	metrics *metrics.Recorder
	chains  map[Variant][]step
}

// New creates a Manager over store.
func New(store Artifacts, cfg *Config) *Manager {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	m := &Manager{
		store:   store,
		kpi:     kpi.New(c.Policy),
		log:     c.Logger,
		metrics: c.Metrics,
	}

	fallback := []step{
		m.blend,
		m.only(artifact.SlotA, SourceA),
		m.only(artifact.SlotB, SourceB),
		m.only(artifact.SlotSingle, SourceSingle),
		m.none,
	}
	m.chains = map[Variant][]step{
		VariantA:        append([]step{m.only(artifact.SlotA, SourceA)}, fallback...),
		VariantB:        append([]step{m.only(artifact.SlotB, SourceB)}, fallback...),
		VariantEnsemble: fallback,
	}
	return m
}

// Predict is PredictVariant with the ensemble variant.
func (m *Manager) Predict(p features.Payload) Result {
	return m.PredictVariant(p, VariantEnsemble)
}

// PredictPayload serves the variant named in the payload's variant field.
func (m *Manager) PredictPayload(p features.Payload) Result {
	return m.PredictVariant(p, m.VariantOf(p))
}

// PredictVariant estimates the saving for p with variant v and derives the KPIs.
func (m *Manager) PredictVariant(p features.Payload, v Variant) Result {
	est := m.PredictPct(p, v)
	r := m.kpi.Finalize(
		features.Float(p, features.KeyEnergy),
		features.Float(p, features.KeyFloorArea),
		est.Pct,
	)
	return Result{
		Result:   r,
		Variant:  v,
		Source:   est.Source,
		Degraded: est.Source == SourceNone,
	}
}

// PredictPct returns the raw saving percentage for p, in [0, 100].
func (m *Manager) PredictPct(p features.Payload, v Variant) Estimate {
	chain, ok := m.chains[v]
	if !ok {
		chain = m.chains[VariantEnsemble]
	}
	est := Estimate{Source: SourceNone}
	for _, try := range chain {
		if e, ok := try(p); ok {
			est = e
			break
		}
	}
	est.Pct = util.Clamp(est.Pct, 0, 100)
	m.metrics.Prediction(v.String(), string(est.Source))
	return est
}

// VariantOf reads the payload's variant field. Unknown values are served as
// the ensemble and logged.
func (m *Manager) VariantOf(p features.Payload) Variant {
	raw := features.String(p, features.KeyVariant)
	v, err := ParseVariant(raw)
	if err != nil {
		m.log.Warn("unknown variant, serving ensemble", "variant", raw)
	}
	return v
}

// Status reports the loaded artifacts and effective ensemble weights.
func (m *Manager) Status() artifact.Status {
	return m.store.Status()
}

// Policy returns the KPI policy in effect.
func (m *Manager) Policy() kpi.Policy {
	return m.kpi.Policy()
}

func (m *Manager) only(slot artifact.Slot, src Source) step {
	return func(p features.Payload) (Estimate, bool) {
		h, ok := m.store.Model(slot)
		if !ok {
			return Estimate{}, false
		}
		return Estimate{Pct: m.invoke(slot, h, p), Source: src}, true
	}
}

func (m *Manager) blend(p features.Payload) (Estimate, bool) {
	a, okA := m.store.Model(artifact.SlotA)
	b, okB := m.store.Model(artifact.SlotB)
	if !okA || !okB {
		return Estimate{}, false
	}
	ya := m.invoke(artifact.SlotA, a, p)
	yb := m.invoke(artifact.SlotB, b, p)
	w := ensemble.Resolve(m.store.Manifest())
	return Estimate{Pct: w.Blend(ya, yb), Source: SourceEnsemble}, true
}

func (m *Manager) none(features.Payload) (Estimate, bool) {
	m.log.Debug("no model available, returning zero saving")
	return Estimate{Pct: 0, Source: SourceNone}, true
}

func (m *Manager) invoke(slot artifact.Slot, h artifact.Handle, p features.Payload) float64 {
	y, err := call(h, p)
	if err != nil {
		m.log.Warn("predict failed", "slot", slot.String(), "path", h.Path, "err", err)
		m.metrics.Inference(slot.String(), metrics.OutcomeFailed)
		return 0
	}
	m.metrics.Inference(slot.String(), metrics.OutcomeOK)
	return util.Clamp(y, 0, 100)
}

// call vectorizes p and runs a one-row batch through the model.
func call(h artifact.Handle, p features.Payload) (y float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			y, err = 0, fmt.Errorf("%w: panic: %v", ErrInferenceFailed, r)
		}
	}()

	vec, err := features.Vectorize(p)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInferenceFailed, err)
	}
	out, err := h.Model.Predict([][]float64{vec[:]})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInferenceFailed, err)
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("%w: model returned no output", ErrInferenceFailed)
	}
	return out[0], nil
}
