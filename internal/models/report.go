// Package models holds the records a skeletonization run produces.
package models

import (
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Stage    string        `yaml:"stage"`
	Duration time.Duration `yaml:"duration"`
}

// Summary describes a sample of values.
type Summary struct {
	Count   int     `yaml:"count"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	Mean    float64 `yaml:"mean"`
	StdDev  float64 `yaml:"stdDev"`
	Entropy float64 `yaml:"entropy"`
}

// Summarize computes a Summary, dropping NaNs. The entropy is that of a
// 256-bin histogram over [Min, Max], in bits.
func Summarize(values []float64) Summary {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return Summary{}
	}
	s := Summary{Count: len(clean), Min: floats.Min(clean), Max: floats.Max(clean)}
	s.Mean, s.StdDev = stat.MeanStdDev(clean, nil)
	if len(clean) == 1 {
		s.StdDev = 0
	}
	s.Entropy = entropy(clean, s.Min, s.Max)
	return s
}

func entropy(values []float64, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	const bins = 256
	hist := make([]float64, bins)
	for _, v := range values {
		b := int((v - lo) / (hi - lo) * (bins - 1))
		hist[b]++
	}
	floats.Scale(1/float64(len(values)), hist)
	return stat.Entropy(hist) / math.Ln2
}

// ThinningCounts mirrors the erosion statistics of one thinning run.
type ThinningCounts struct {
	Seeded  int `yaml:"seeded"`
	Pushed  int `yaml:"pushed"`
	Popped  int `yaml:"popped"`
	Stale   int `yaml:"stale"`
	Deleted int `yaml:"deleted"`
	Kept    int `yaml:"kept"`
}

// Report is the YAML record written next to a run's outputs.
type Report struct {
	RunID    string    `yaml:"runId"`
	Started  time.Time `yaml:"started"`
	Input    string    `yaml:"input"`
	Size     [3]int    `yaml:"size"`
	Mode     string    `yaml:"mode"`
	Test     string    `yaml:"simpleTest"`
	Strategy string    `yaml:"fluxStrategy"`

	Stages []StageTiming `yaml:"stages"`

	ObjectVoxels    int `yaml:"objectVoxels"`
	CandidateVoxels int `yaml:"candidateVoxels"`
	SkeletonVoxels  int `yaml:"skeletonVoxels"`
	PrunedVoxels    int `yaml:"prunedVoxels"`
	BoundaryVoxels  int `yaml:"boundaryVoxels,omitempty"`

	Thinning  ThinningCounts `yaml:"thinning"`
	Flux      Summary        `yaml:"flux"`
	Thickness Summary        `yaml:"thickness"`

	Labels  map[string]int    `yaml:"labels,omitempty"`
	Outputs map[string]string `yaml:"outputs,omitempty"`
}

// NewReport starts a report with a fresh run id.
func NewReport(input string) *Report {
	return &Report{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		Input:   input,
		Outputs: make(map[string]string),
	}
}

// Stage records the time elapsed since start under name.
func (r *Report) Stage(name string, start time.Time) time.Duration {
	d := time.Since(start)
	r.Stages = append(r.Stages, StageTiming{Stage: name, Duration: d})
	return d
}

// Total sums all stage durations.
func (r *Report) Total() time.Duration {
	var t time.Duration
	for _, s := range r.Stages {
		t += s.Duration
	}
	return t
}

// Save writes the report as YAML.
func (r *Report) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadReport reads a report written by Save.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := &Report{}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}
