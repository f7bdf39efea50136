package services

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/openclaw/marketplace/internal/models"
)

//go:embed benchmarks.yaml
var benchmarksYAML []byte

// BenchmarkTemplate is a hand-authored task with a known expected answer.
type BenchmarkTemplate struct {
	Type            string           `yaml:"type"`
	Messages        []models.Message `yaml:"messages"`
	Context         map[string]any   `yaml:"context"`
	ExpectedOutput  map[string]any   `yaml:"expected_output"`
	TimeoutSeconds  int              `yaml:"timeout_seconds"`
	MinOutputLength int              `yaml:"min_output_length"`
	PriceCents      int64            `yaml:"price_cents"`
}

// ParseBenchmarks decodes a YAML list of templates.
func ParseBenchmarks(data []byte) ([]BenchmarkTemplate, error) {
	var list []BenchmarkTemplate
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse benchmarks: %w", err)
	}
	for i, b := range list {
		if b.Type == "" || len(b.Messages) == 0 || len(b.ExpectedOutput) == 0 {
			return nil, fmt.Errorf("benchmark %d: type, messages and expected_output are required", i)
		}
		if b.TimeoutSeconds <= 0 {
			return nil, fmt.Errorf("benchmark %d: timeout_seconds must be positive", i)
		}
	}
	return list, nil
}

// DefaultBenchmarks returns the embedded catalogue.
func DefaultBenchmarks() []BenchmarkTemplate {
	list, err := ParseBenchmarks(benchmarksYAML)
	if err != nil {
		panic(err)
	}
	return list
}

func (b BenchmarkTemplate) expectedJSON() (json.RawMessage, error) {
	return json.Marshal(b.ExpectedOutput)
}
