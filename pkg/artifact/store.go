// Package artifact locates and loads the prediction artifacts (models A and B,
// the single fallback model and the training manifest) once, at startup.
//
// Loading never fails as a whole. Each artifact is loaded on its own: a missing
// file leaves that slot empty, a file that cannot be decoded is logged, counted
// and left empty, and neither affects the other artifacts. A Store with nothing
// loaded is valid and still serves (degraded) predictions.
//
// A Store is immutable after Open and safe for concurrent readers.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ja7ad/retrofit/pkg/ensemble"
	"github.com/ja7ad/retrofit/pkg/metrics"
	"github.com/ja7ad/retrofit/pkg/regressor"
)

// Slot names one of the model positions in a Store.
type Slot int

const (
	SlotA Slot = iota
	SlotB
	SlotSingle
	numSlots
)

func (s Slot) String() string {
	switch s {
	case SlotA:
		return "A"
	case SlotB:
		return "B"
	case SlotSingle:
		return "single"
	default:
		return fmt.Sprintf("Slot(%d)", int(s))
	}
}

// Names are the artifact file names looked up by the resolver.
type Names struct {
	ModelA   string `mapstructure:"model_a" json:"modelA" yaml:"modelA"`
	ModelB   string `mapstructure:"model_b" json:"modelB" yaml:"modelB"`
	Single   string `mapstructure:"single" json:"single" yaml:"single"`
	Manifest string `mapstructure:"manifest" json:"manifest" yaml:"manifest"`
}

// DefaultNames returns the file names produced by the training job.
func DefaultNames() Names {
	return Names{
		ModelA:   "model_A.pkl",
		ModelB:   "model_B.pkl",
		Single:   "model.pkl",
		Manifest: "manifest.json",
	}
}

func (n Names) withDefaults() Names {
	d := DefaultNames()
	if n.ModelA == "" {
		n.ModelA = d.ModelA
	}
	if n.ModelB == "" {
		n.ModelB = d.ModelB
	}
	if n.Single == "" {
		n.Single = d.Single
	}
	if n.Manifest == "" {
		n.Manifest = d.Manifest
	}
	return n
}

func (n Names) forSlot(s Slot) string {
	switch s {
	case SlotA:
		return n.ModelA
	case SlotB:
		return n.ModelB
	default:
		return n.Single
	}
}

// State is the outcome of loading one artifact.
type State string

const (
	StateLoaded  State = "loaded"
	StateMissing State = "missing"
	StateFailed  State = "failed"
)

// Record describes how one artifact was loaded.
type Record struct {
	Name  string `json:"name" yaml:"name"`
	Path  string `json:"path,omitempty" yaml:"path,omitempty"`
	State State  `json:"state" yaml:"state"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	Err error `json:"-" yaml:"-"`
}

// Handle is a loaded model and the file it came from.
type Handle struct {
	Path  string
	Model regressor.Regressor
}

// Loader decodes the model file at path.
type Loader func(path string) (regressor.Regressor, error)

// Config controls Open. The zero value loads the default names from the
// default directories with regressor.LoadFile.
type Config struct {
	Resolver *Resolver
	Names    Names
	Loader   Loader
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

// Store owns the loaded artifacts.
type Store struct {
	models       [numSlots]*Handle
	manifest     map[string]any
	manifestPath string
	records      []Record
}

// Open resolves and loads the manifest, model A, model B and the single
// fallback model, in that order.
func Open(cfg *Config) *Store {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Resolver == nil {
		c.Resolver = NewResolver(DefaultPrimaryDir, DefaultDeprecatedDir, c.Logger)
	}
	c.Names = c.Names.withDefaults()
	if c.Loader == nil {
		c.Loader = regressor.LoadFile
	}

	s := &Store{}
	s.loadManifest(&c)
	for slot := SlotA; slot < numSlots; slot++ {
		s.loadModel(&c, slot)
	}
	s.summarize(c.Logger)
	return s
}

func (s *Store) loadManifest(c *Config) {
	name := c.Names.Manifest
	path, ok := c.Resolver.Resolve(name)
	if !ok {
		s.record(c, Record{Name: name, State: StateMissing})
		return
	}
	s.manifestPath = path

	doc, err := readManifest(path)
	if err != nil {
		c.Logger.Warn("failed to load manifest", "path", path, "err", err)
		s.record(c, Record{Name: name, Path: path, State: StateFailed, Err: err})
		return
	}
	s.manifest = doc
	s.record(c, Record{Name: name, Path: path, State: StateLoaded})
}

func readManifest(path string) (map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}
	defer f.Close()

	var doc any
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top level is %T, want object", ErrManifestInvalid, doc)
	}
	return obj, nil
}

func (s *Store) loadModel(c *Config, slot Slot) {
	name := c.Names.forSlot(slot)
	path, ok := c.Resolver.Resolve(name)
	if !ok {
		s.record(c, Record{Name: name, State: StateMissing})
		return
	}

	m, err := safeLoad(c.Loader, path)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrLoadFailed, err)
		c.Logger.Warn("failed to load model", "slot", slot.String(), "path", path, "err", err)
		s.record(c, Record{Name: name, Path: path, State: StateFailed, Err: err})
		return
	}
	s.models[slot] = &Handle{Path: path, Model: m}
	s.record(c, Record{Name: name, Path: path, State: StateLoaded})
}

// safeLoad keeps a panicking loader from taking the other artifacts down with it.
func safeLoad(load Loader, path string) (m regressor.Regressor, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("loader panic: %v", r)
		}
	}()
	m, err = load(path)
	if err == nil && m == nil {
		err = errors.New("loader returned no model")
	}
	return m, err
}

func (s *Store) record(c *Config, r Record) {
	if r.Err != nil {
		r.Error = r.Err.Error()
	}
	s.records = append(s.records, r)
	c.Metrics.ArtifactLoad(r.Name, string(r.State))
}

func (s *Store) summarize(log *slog.Logger) {
	a, b, single := s.models[SlotA], s.models[SlotB], s.models[SlotSingle]
	switch {
	case a != nil || b != nil:
		log.Info("model loaded",
			"A", presence(a != nil), "B", presence(b != nil), "manifest", orDash(s.manifestPath))
	case single != nil:
		log.Info("model loaded", "single", single.Path)
	default:
		log.Warn("no model files found, predictions fall back to zero saving")
	}
}

func presence(ok bool) string {
	if ok {
		return "ok"
	}
	return "-"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Model returns the handle loaded into slot.
func (s *Store) Model(slot Slot) (Handle, bool) {
	if slot < 0 || slot >= numSlots || s.models[slot] == nil {
		return Handle{}, false
	}
	return *s.models[slot], true
}

// Manifest returns the parsed manifest, or nil. Callers must not modify it.
func (s *Store) Manifest() map[string]any { return s.manifest }

// Records returns the load outcome of every artifact, in load order.
func (s *Store) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Status reports what is loaded and the ensemble weights currently in effect.
type Status struct {
	HasA             bool             `json:"has_A" yaml:"has_A"`
	HasB             bool             `json:"has_B" yaml:"has_B"`
	SinglePath       *string          `json:"single_path" yaml:"single_path"`
	ManifestPath     *string          `json:"manifest_path" yaml:"manifest_path"`
	EffectiveWeights ensemble.Weights `json:"effective_weights" yaml:"effective_weights"`
	WeightSource     string           `json:"weight_source" yaml:"weight_source"`
	Artifacts        []Record         `json:"artifacts" yaml:"artifacts"`
}

// Status derives the current status. Weights are recomputed on every call.
func (s *Store) Status() Status {
	st := Status{
		HasA:             s.models[SlotA] != nil,
		HasB:             s.models[SlotB] != nil,
		EffectiveWeights: ensemble.Resolve(s.manifest),
		WeightSource:     ensemble.Source(s.manifest),
		Artifacts:        s.Records(),
	}
	if h := s.models[SlotSingle]; h != nil {
		p := h.Path
		st.SinglePath = &p
	}
	if s.manifestPath != "" {
		p := s.manifestPath
		st.ManifestPath = &p
	}
	return st
}
