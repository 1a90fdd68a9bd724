// Package model is the learned storage-strategy classifier: a nearest
// centroid model over scaled feature vectors with softmax confidence.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/papercomputeco/strata/pkg/features"
	"github.com/papercomputeco/strata/pkg/strategy"
)

// Version is the on-disk format version.
const Version = 1

// DefaultTemperature softens the softmax over negative centroid distances.
const DefaultTemperature = 0.1

var (
	// ErrNoSamples is returned by Train when fewer than two strategies have
	// samples.
	ErrNoSamples = errors.New("not enough labelled samples")

	// ErrEmptyModel is returned by Predict on a model without centroids.
	ErrEmptyModel = errors.New("model has no centroids")
)

// Sample is a labelled training example.
type Sample struct {
	Features features.FeatureVector `json:"features"`
	Strategy strategy.Strategy      `json:"strategy"`
}

// CentroidModel implements strategy.Model.
type CentroidModel struct {
	Version     int                             `json:"version"`
	Centroids   map[strategy.Strategy][]float64 `json:"centroids"`
	Temperature float64                         `json:"temperature"`
	SampleCount int                             `json:"sample_count"`
	TrainedAt   time.Time                       `json:"trained_at"`
}

var _ strategy.Model = (*CentroidModel)(nil)

// Vectorize maps a feature vector onto the model's input space. Size is
// log-scaled so 1 KB and 100 MB land roughly in [0.4, 1].
func Vectorize(fv features.FeatureVector) []float64 {
	size := math.Log10(float64(max(fv.SizeBytes, 0))+1) / 8
	return []float64{
		math.Min(size, 1.5),
		fv.SemanticComplexity,
		fv.TopicCoherence,
		fv.InformationDensity,
		fv.QueryPotential,
	}
}

// Train fits a centroid per strategy.
func Train(samples []Sample) (*CentroidModel, error) {
	sums := map[strategy.Strategy][]float64{}
	counts := map[strategy.Strategy]int{}

	for _, s := range samples {
		if !s.Strategy.Valid() {
			return nil, fmt.Errorf("sample labelled with unknown strategy %q", s.Strategy)
		}
		v := Vectorize(s.Features)
		acc, ok := sums[s.Strategy]
		if !ok {
			acc = make([]float64, len(v))
			sums[s.Strategy] = acc
		}
		for i, x := range v {
			acc[i] += x
		}
		counts[s.Strategy]++
	}

	if len(sums) < 2 {
		return nil, fmt.Errorf("%w: %d strategies labelled", ErrNoSamples, len(sums))
	}

	m := &CentroidModel{
		Version:     Version,
		Centroids:   make(map[strategy.Strategy][]float64, len(sums)),
		Temperature: DefaultTemperature,
		SampleCount: len(samples),
		TrainedAt:   time.Now().UTC(),
	}
	for s, acc := range sums {
		n := float64(counts[s])
		c := make([]float64, len(acc))
		for i, x := range acc {
			c[i] = x / n
		}
		m.Centroids[s] = c
	}
	return m, nil
}

// Samples returns the training set size.
func (m *CentroidModel) Samples() int {
	return m.SampleCount
}

// Predict returns the nearest centroid's strategy and its softmax
// probability.
func (m *CentroidModel) Predict(fv features.FeatureVector) (strategy.Strategy, float64, error) {
	if len(m.Centroids) == 0 {
		return "", 0, ErrEmptyModel
	}

	v := Vectorize(fv)
	temp := m.Temperature
	if temp <= 0 {
		temp = DefaultTemperature
	}

	// Iterate in a fixed order so ties resolve deterministically.
	keys := make([]strategy.Strategy, 0, len(m.Centroids))
	for s := range m.Centroids {
		keys = append(keys, s)
	}
	slices.Sort(keys)

	logits := make([]float64, len(keys))
	best := 0
	for i, s := range keys {
		c := m.Centroids[s]
		if len(c) != len(v) {
			return "", 0, fmt.Errorf("centroid %s has %d dimensions, want %d", s, len(c), len(v))
		}
		logits[i] = -distance(v, c) / temp
		if logits[i] > logits[best] {
			best = i
		}
	}

	var total float64
	for _, l := range logits {
		total += math.Exp(l - logits[best])
	}
	return keys[best], 1 / total, nil
}

// Accuracy is the share of samples the model labels correctly.
func (m *CentroidModel) Accuracy(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	hits := 0
	for _, s := range samples {
		got, _, err := m.Predict(s.Features)
		if err == nil && got == s.Strategy {
			hits++
		}
	}
	return float64(hits) / float64(len(samples))
}

// Save writes the model as JSON. The file is replaced atomically so a
// watcher never reads a partial model.
func (m *CentroidModel) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating model dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*.json")
	if err != nil {
		return fmt.Errorf("creating temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing model: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing model: %w", err)
	}
	return nil
}

// Load reads a model written by Save.
func Load(path string) (*CentroidModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}

	m := &CentroidModel{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decoding model %s: %w", path, err)
	}
	if m.Version != Version {
		return nil, fmt.Errorf("model %s has version %d, want %d", path, m.Version, Version)
	}
	for s := range m.Centroids {
		if !s.Valid() {
			return nil, fmt.Errorf("model %s has unknown strategy %q", path, s)
		}
	}
	return m, nil
}

func distance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
