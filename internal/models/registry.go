package models

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Record is a trained model snapshot kept by the registry. Weights are
// stored intercept-first so a record is enough to rebuild predictions.
type Record struct {
	ID           string             `yaml:"id" json:"id"`
	Name         string             `yaml:"name" json:"name"`
	Version      string             `yaml:"version" json:"version"`
	Kind         string             `yaml:"kind" json:"kind"` // "ridge" or "logistic"
	Symbol       string             `yaml:"symbol" json:"symbol"`
	TrainedAt    time.Time          `yaml:"trained_at" json:"trained_at"`
	FeatureNames []string           `yaml:"feature_names" json:"feature_names"`
	Weights      []float64          `yaml:"weights" json:"weights"`
	Metrics      map[string]float64 `yaml:"metrics" json:"metrics"`
}

// Registry tracks model versions per name. Versions follow semver and
// each registration gets a fresh run ID.
type Registry struct {
	mu      sync.RWMutex
	records map[string][]*Record // name -> records sorted by version
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string][]*Record)}
}

// Register validates and stores a record, assigning its ID and
// timestamp. Registering an existing name+version is an error.
func (r *Registry) Register(rec *Record) error {
	if rec.Name == "" {
		return fmt.Errorf("record name is required")
	}
	if rec.Kind != "ridge" && rec.Kind != "logistic" {
		return fmt.Errorf("unknown model kind: %q", rec.Kind)
	}
	if len(rec.Weights) == 0 {
		return fmt.Errorf("record has no weights")
	}
	v, err := semver.NewVersion(rec.Version)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", rec.Version, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.records[rec.Name] {
		if existing.Version == v.String() {
			return fmt.Errorf("version %s of %s already registered", rec.Version, rec.Name)
		}
	}

	rec.ID = uuid.New().String()
	rec.Version = v.String()
	if rec.TrainedAt.IsZero() {
		rec.TrainedAt = time.Now().UTC()
	}

	r.records[rec.Name] = append(r.records[rec.Name], rec)
	sort.Slice(r.records[rec.Name], func(i, j int) bool {
		vi := semver.MustParse(r.records[rec.Name][i].Version)
		vj := semver.MustParse(r.records[rec.Name][j].Version)
		return vi.LessThan(vj)
	})

	log.Info().
		Str("name", rec.Name).
		Str("version", rec.Version).
		Str("id", rec.ID).
		Str("kind", rec.Kind).
		Msg("Model registered")

	return nil
}

// Latest returns the highest registered version for a name.
func (r *Registry) Latest(name string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := r.records[name]
	if len(recs) == 0 {
		return nil, fmt.Errorf("no model registered under %q", name)
	}
	return recs[len(recs)-1], nil
}

// Get returns a specific version of a model.
func (r *Registry) Get(name, version string) (*Record, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", version, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, rec := range r.records[name] {
		if rec.Version == v.String() {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("model %s version %s not found", name, version)
}

// Names lists registered model names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Versions lists a model's versions in ascending order.
func (r *Registry) Versions(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.records[name]))
	for _, rec := range r.records[name] {
		out = append(out, rec.Version)
	}
	return out
}

// PredictWith rebuilds predictions for a single feature vector from a
// stored record.
func (r *Record) PredictWith(features []float64) (float64, error) {
	if len(features)+1 != len(r.Weights) {
		return 0, fmt.Errorf("feature mismatch: record has %d weights, got %d features",
			len(r.Weights), len(features))
	}
	z := r.Weights[0]
	for j, f := range features {
		z += r.Weights[j+1] * f
	}
	if r.Kind == "logistic" {
		return sigmoid(z), nil
	}
	return z, nil
}

type registryFile struct {
	Exported time.Time `yaml:"exported"`
	Records  []*Record `yaml:"records"`
}

// ExportYAML writes every record to a YAML file.
func (r *Registry) ExportYAML(path string) error {
	r.mu.RLock()
	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	sort.Strings(names)

	file := registryFile{Exported: time.Now().UTC()}
	for _, name := range names {
		file.Records = append(file.Records, r.records[name]...)
	}
	r.mu.RUnlock()

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}

	log.Info().Str("path", path).Int("records", len(file.Records)).Msg("Registry exported")
	return nil
}

// ImportYAML loads records from a YAML export into the registry.
// Existing name+version pairs are skipped.
func (r *Registry) ImportYAML(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("unmarshal registry: %w", err)
	}

	imported := 0
	for _, rec := range file.Records {
		if _, err := r.Get(rec.Name, rec.Version); err == nil {
			continue
		}
		if err := r.Register(rec); err != nil {
			return imported, fmt.Errorf("import %s %s: %w", rec.Name, rec.Version, err)
		}
		imported++
	}
	return imported, nil
}
