package predict

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/retrofit/pkg/artifact"
	"github.com/ja7ad/retrofit/pkg/ensemble"
	"github.com/ja7ad/retrofit/pkg/features"
	"github.com/ja7ad/retrofit/pkg/kpi"
	"github.com/ja7ad/retrofit/pkg/metrics"
	"github.com/ja7ad/retrofit/pkg/regressor"
)

// fakeStore is an in-memory Artifacts.
type fakeStore struct {
	models   map[artifact.Slot]artifact.Handle
	manifest map[string]any
}

func (s *fakeStore) Model(slot artifact.Slot) (artifact.Handle, bool) {
	h, ok := s.models[slot]
	return h, ok
}

func (s *fakeStore) Manifest() map[string]any { return s.manifest }

func (s *fakeStore) Status() artifact.Status {
	_, a := s.models[artifact.SlotA]
	_, b := s.models[artifact.SlotB]
	return artifact.Status{HasA: a, HasB: b, EffectiveWeights: ensemble.Resolve(s.manifest)}
}

// counting wraps a constant model and counts calls.
type counting struct {
	value float64
	err   error
	calls atomic.Int64
}

func (c *counting) Predict(rows [][]float64) ([]float64, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	out := make([]float64, len(rows))
	for i := range out {
		out[i] = c.value
	}
	return out, nil
}

func handle(m regressor.Regressor) artifact.Handle {
	return artifact.Handle{Path: "mem", Model: m}
}

func quietManager(store Artifacts, rec *metrics.Recorder) (*Manager, *bytes.Buffer) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	return New(store, &Config{Logger: log, Metrics: rec}), &buf
}

var office = features.Payload{features.KeyEnergy: 1000, features.KeyFloorArea: 100}

func TestPredict_NoModelsIsDegradedZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	m, _ := quietManager(&fakeStore{}, rec)

	r := m.PredictVariant(office, VariantEnsemble)
	assert.Equal(t, 0.0, r.SavingPct)
	assert.Equal(t, 0.0, r.SavingCostYr)
	assert.Equal(t, 99.0, r.PaybackYears)
	assert.Equal(t, kpi.NotRecommend, r.Label)
	assert.Equal(t, SourceNone, r.Source)
	assert.True(t, r.Degraded)

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Predictions().WithLabelValues("C", "none")))
}

func TestPredict_EnsembleUsesManifestWeights(t *testing.T) {
	a, b := &counting{value: 20}, &counting{value: 10}
	store := &fakeStore{
		models:   map[artifact.Slot]artifact.Handle{artifact.SlotA: handle(a), artifact.SlotB: handle(b)},
		manifest: map[string]any{"ensemble": map[string]any{"wA": 3.0, "wB": 1.0}},
	}
	m, _ := quietManager(store, nil)

	est := m.PredictPct(office, VariantEnsemble)
	assert.InDelta(t, 17.5, est.Pct, 1e-12)
	assert.Equal(t, SourceEnsemble, est.Source)

	w := m.Status().EffectiveWeights
	assert.InDelta(t, 0.75, w.A, 1e-12)
	assert.InDelta(t, 0.25, w.B, 1e-12)

	r := m.Predict(office)
	assert.InDelta(t, 17.5, r.SavingPct, 1e-12)
	assert.Equal(t, VariantEnsemble, r.Variant)
	assert.False(t, r.Degraded)
}

func TestPredict_ZeroWeightsBlendEvenly(t *testing.T) {
	store := &fakeStore{
		models: map[artifact.Slot]artifact.Handle{
			artifact.SlotA: handle(regressor.Constant{Value: 20}),
			artifact.SlotB: handle(regressor.Constant{Value: 10}),
		},
		manifest: map[string]any{"ensemble": map[string]any{"wA": 0.0, "wB": 0.0}},
	}
	m, _ := quietManager(store, nil)

	assert.Equal(t, ensemble.Even, m.Status().EffectiveWeights)
	assert.InDelta(t, 15.0, m.PredictPct(office, VariantEnsemble).Pct, 1e-12)
}

func TestPredict_DirectVariants(t *testing.T) {
	a, b := &counting{value: 20}, &counting{value: 10}
	store := &fakeStore{models: map[artifact.Slot]artifact.Handle{
		artifact.SlotA: handle(a), artifact.SlotB: handle(b),
	}}
	m, _ := quietManager(store, nil)

	est := m.PredictPct(office, VariantA)
	assert.Equal(t, Estimate{Pct: 20, Source: SourceA}, est)
	assert.Equal(t, int64(1), a.calls.Load())
	assert.Equal(t, int64(0), b.calls.Load(), "direct A must not touch B")

	est = m.PredictPct(office, VariantB)
	assert.Equal(t, Estimate{Pct: 10, Source: SourceB}, est)
	assert.Equal(t, int64(1), a.calls.Load())
}

func TestPredict_MissingRequestedModelFallsThrough(t *testing.T) {
	b := &counting{value: 12.5}
	store := &fakeStore{
		models:   map[artifact.Slot]artifact.Handle{artifact.SlotB: handle(b)},
		manifest: map[string]any{"ensemble": map[string]any{"wA": 3.0, "wB": 1.0}},
	}
	m, _ := quietManager(store, nil)

	// B's raw prediction, not weighted by wB
	est := m.PredictPct(office, VariantA)
	assert.Equal(t, Estimate{Pct: 12.5, Source: SourceB}, est)
	assert.Equal(t, int64(1), b.calls.Load())
}

func TestPredict_FallbackOrder(t *testing.T) {
	a := handle(regressor.Constant{Value: 1})
	b := handle(regressor.Constant{Value: 2})
	s := handle(regressor.Constant{Value: 3})

	cases := []struct {
		name   string
		models map[artifact.Slot]artifact.Handle
		v      Variant
		want   Estimate
	}{
		{"C with A only", map[artifact.Slot]artifact.Handle{artifact.SlotA: a, artifact.SlotSingle: s}, VariantEnsemble, Estimate{1, SourceA}},
		{"C with B only", map[artifact.Slot]artifact.Handle{artifact.SlotB: b, artifact.SlotSingle: s}, VariantEnsemble, Estimate{2, SourceB}},
		{"C with single only", map[artifact.Slot]artifact.Handle{artifact.SlotSingle: s}, VariantEnsemble, Estimate{3, SourceSingle}},
		{"A with single only", map[artifact.Slot]artifact.Handle{artifact.SlotSingle: s}, VariantA, Estimate{3, SourceSingle}},
		{"B with A only", map[artifact.Slot]artifact.Handle{artifact.SlotA: a}, VariantB, Estimate{1, SourceA}},
		{"B with nothing", nil, VariantB, Estimate{0, SourceNone}},
		{"C with both", map[artifact.Slot]artifact.Handle{artifact.SlotA: a, artifact.SlotB: b, artifact.SlotSingle: s}, VariantEnsemble, Estimate{1.5, SourceEnsemble}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := quietManager(&fakeStore{models: tc.models}, nil)
			got := m.PredictPct(office, tc.v)
			assert.Equal(t, tc.want.Source, got.Source)
			assert.InDelta(t, tc.want.Pct, got.Pct, 1e-12)
		})
	}
}

func TestPredict_InferenceFailureContributesZero(t *testing.T) {
	a := &counting{err: errors.New("model exploded")}
	b := &counting{value: 10}
	store := &fakeStore{
		models:   map[artifact.Slot]artifact.Handle{artifact.SlotA: handle(a), artifact.SlotB: handle(b)},
		manifest: map[string]any{"ensemble": map[string]any{"wA": 3.0, "wB": 1.0}},
	}
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	m, logs := quietManager(store, rec)

	est := m.PredictPct(office, VariantEnsemble)
	assert.InDelta(t, 2.5, est.Pct, 1e-12)
	assert.Equal(t, SourceEnsemble, est.Source)
	assert.Contains(t, logs.String(), "predict failed")
	assert.Contains(t, logs.String(), "model exploded")

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Inferences().WithLabelValues("A", metrics.OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.Inferences().WithLabelValues("B", metrics.OutcomeOK)))

	// direct A still answers with A's (failed) zero rather than falling through
	est = m.PredictPct(office, VariantA)
	assert.Equal(t, Estimate{Pct: 0, Source: SourceA}, est)
}

func TestPredict_OutputsAreClamped(t *testing.T) {
	cases := []struct {
		name string
		out  float64
		want float64
	}{
		{"above", 250, 100},
		{"below", -5, 0},
		{"nan", math.NaN(), 0},
		{"inside", 42.25, 42.25},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{models: map[artifact.Slot]artifact.Handle{
				artifact.SlotSingle: handle(regressor.Constant{Value: tc.out}),
			}}
			m, _ := quietManager(store, nil)
			assert.Equal(t, tc.want, m.PredictPct(office, VariantEnsemble).Pct)
		})
	}
}

func TestPredict_BadPayloadAndPanicsAreContained(t *testing.T) {
	panicky := regressor.Func(func(row []float64) (float64, error) { panic("index out of range") })
	store := &fakeStore{models: map[artifact.Slot]artifact.Handle{
		artifact.SlotA: handle(panicky),
		artifact.SlotB: handle(regressor.Constant{Value: 30}),
	}}
	m, logs := quietManager(store, nil)

	est := m.PredictPct(office, VariantEnsemble)
	assert.InDelta(t, 15.0, est.Pct, 1e-12)
	assert.Contains(t, logs.String(), "panic")

	bad := features.Payload{features.KeyType: []string{"office"}, features.KeyEnergy: 1000}
	est = m.PredictPct(bad, VariantB)
	assert.Equal(t, Estimate{Pct: 0, Source: SourceB}, est)
}

func TestPredict_PayloadVariant(t *testing.T) {
	store := &fakeStore{models: map[artifact.Slot]artifact.Handle{
		artifact.SlotA: handle(regressor.Constant{Value: 20}),
		artifact.SlotB: handle(regressor.Constant{Value: 10}),
	}}
	m, logs := quietManager(store, nil)

	p := features.Payload{features.KeyEnergy: 5000, features.KeyFloorArea: 200, features.KeyVariant: "b"}
	r := m.PredictPayload(p)
	assert.Equal(t, VariantB, r.Variant)
	assert.InDelta(t, 10.0, r.SavingPct, 1e-12)

	p[features.KeyVariant] = "Z"
	r = m.PredictPayload(p)
	assert.Equal(t, VariantEnsemble, r.Variant)
	assert.InDelta(t, 15.0, r.SavingPct, 1e-12)
	assert.Contains(t, logs.String(), "unknown variant")

	delete(p, features.KeyVariant)
	assert.Equal(t, VariantEnsemble, m.VariantOf(p))
}

func TestPredict_FinalizesWithPolicy(t *testing.T) {
	store := &fakeStore{models: map[artifact.Slot]artifact.Handle{
		artifact.SlotSingle: handle(regressor.Constant{Value: 20}),
	}}
	m := New(store, &Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	p := features.Payload{features.KeyEnergy: "5000", features.KeyFloorArea: 200.0, features.KeyType: "School"}
	r := m.Predict(p)
	assert.InDelta(t, 1000.0, r.SavingKwhYr, 1e-9)
	assert.InDelta(t, 130000.0, r.SavingCostYr, 1e-9)
	assert.InDelta(t, 307.692, r.PaybackYears, 1e-9)
	assert.Equal(t, kpi.NotRecommend, r.Label)
	assert.Equal(t, SourceSingle, r.Source)

	cheap := New(store, &Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Policy: &kpi.Policy{CapexPerSqm: 1000}})
	assert.Equal(t, kpi.Recommend, cheap.Predict(p).Label)
	assert.Equal(t, 1000.0, cheap.Policy().CapexPerSqm)
}

func TestResult_JSON(t *testing.T) {
	m, _ := quietManager(&fakeStore{}, nil)
	b, err := json.Marshal(m.PredictVariant(office, VariantA))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "A", got["variant"])
	assert.Equal(t, "none", got["source"])
	assert.Equal(t, true, got["degraded"])
	assert.Equal(t, "NOT_RECOMMEND", got["label"])
	assert.Equal(t, 99.0, got["paybackYears"])
}

func TestPredict_ConcurrentCallers(t *testing.T) {
	a, b := &counting{value: 20}, &counting{value: 10}
	store := &fakeStore{
		models:   map[artifact.Slot]artifact.Handle{artifact.SlotA: handle(a), artifact.SlotB: handle(b)},
		manifest: map[string]any{"ensemble": map[string]any{"wA": 1.0, "wB": 1.0}},
	}
	m, _ := quietManager(store, metrics.New(prometheus.NewRegistry()))

	const workers, each = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				est := m.PredictPct(office, VariantEnsemble)
				if est.Pct != 15 {
					t.Errorf("pct = %v, want 15", est.Pct)
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(workers*each), a.calls.Load())
	assert.Equal(t, int64(workers*each), b.calls.Load())
}
