// Package metrics counts the outcomes the manager otherwise only logs:
// artifact loads, model invocations and served predictions.
//
// All Recorder methods are safe on a nil *Recorder, which records nothing.
package metrics

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "retrofit"

// Inference outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// Recorder owns the retrofit counters.
type Recorder struct {
	artifactLoads *prometheus.CounterVec
	inferences    *prometheus.CounterVec
	predictions   *prometheus.CounterVec
}

// New creates the counters and registers them with reg. A nil reg leaves them
// unregistered. Registering twice on the same registry reuses the existing
// collectors.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		artifactLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_loads_total",
			Help:      "Artifact load attempts by artifact and resulting state (loaded, missing, failed).",
		}, []string{"artifact", "state"}),
		inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_total",
			Help:      "Model invocations by model slot and outcome (ok, failed).",
		}, []string{"model", "outcome"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Served predictions by requested variant and the source that answered.",
		}, []string{"variant", "source"}),
	}
	if reg != nil {
		r.artifactLoads = register(reg, r.artifactLoads)
		r.inferences = register(reg, r.inferences)
		r.predictions = register(reg, r.predictions)
	}
	return r
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
			return existing
		}
	}
	slog.Warn("metrics: register collector", "err", err)
	return c
}

// ArtifactLoad counts one load attempt.
func (r *Recorder) ArtifactLoad(artifact, state string) {
	if r == nil {
		return
	}
	r.artifactLoads.WithLabelValues(artifact, state).Inc()
}

// Inference counts one model invocation.
func (r *Recorder) Inference(model, outcome string) {
	if r == nil {
		return
	}
	r.inferences.WithLabelValues(model, outcome).Inc()
}

// Prediction counts one served prediction.
func (r *Recorder) Prediction(variant, source string) {
	if r == nil {
		return
	}
	r.predictions.WithLabelValues(variant, source).Inc()
}

// ArtifactLoads exposes the artifact load counter.
func (r *Recorder) ArtifactLoads() *prometheus.CounterVec { return r.artifactLoads }

// Inferences exposes the inference counter.
func (r *Recorder) Inferences() *prometheus.CounterVec { return r.inferences }

// Predictions exposes the prediction counter.
func (r *Recorder) Predictions() *prometheus.CounterVec { return r.predictions }
