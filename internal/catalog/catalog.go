// Package catalog defines the static quality-metric catalog: the set of
// compliance metrics the service tracks, each with its green/yellow thresholds,
// measurement direction, and ISO 13485/14971 clause mappings. The catalog is
// read-only input to the evaluator and dashboard — metric definitions are never
// mutated at runtime. A built-in default catalog ships with the binary and can
// be replaced wholesale by a YAML catalog file referenced from configuration.
package catalog

import (
	"fmt"

	"github.com/spf13/viper"
)

// Direction describes whether larger or smaller measurements indicate better
// compliance for a metric.
type Direction string

const (
	// HigherIsBetter means values at or above the green threshold are compliant.
	HigherIsBetter Direction = "higher-better"
	// LowerIsBetter means values at or below the green threshold are compliant.
	LowerIsBetter Direction = "lower-better"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == HigherIsBetter || d == LowerIsBetter
}

// Threshold holds the numeric status boundaries for a metric. Anything that
// fails the yellow boundary is red, so no explicit red bound is stored.
type Threshold struct {
	Green     float64   `mapstructure:"green" json:"green"`
	Yellow    float64   `mapstructure:"yellow" json:"yellow"`
	Direction Direction `mapstructure:"direction" json:"direction"`
}

// ISOMapping ties a metric to a specific standard and clause for regulatory
// traceability.
type ISOMapping struct {
	Standard string `mapstructure:"standard" json:"standard"`
	Clause   string `mapstructure:"clause" json:"clause"`
	Title    string `mapstructure:"title" json:"title,omitempty"`
}

// Reference renders the mapping as a single citation string, e.g.
// "ISO 13485:2016 §8.5.2".
func (m ISOMapping) Reference() string {
	if m.Clause == "" {
		return m.Standard
	}
	return fmt.Sprintf("%s §%s", m.Standard, m.Clause)
}

// InputSpec describes one raw input field collected when a measurement for the
// metric is recorded (e.g. "capas_closed_on_time"). Inputs are informational:
// the service stores them alongside the computed value but does not recompute
// the value from them.
type InputSpec struct {
	Key   string `mapstructure:"key" json:"key"`
	Label string `mapstructure:"label" json:"label"`
	Unit  string `mapstructure:"unit" json:"unit,omitempty"`
}

// Metric is a single tracked compliance metric. Instances are immutable once
// the catalog is built.
type Metric struct {
	ID          string       `mapstructure:"id" json:"id"`
	Name        string       `mapstructure:"name" json:"name"`
	Category    string       `mapstructure:"category" json:"category"`
	Unit        string       `mapstructure:"unit" json:"unit"`
	Threshold   Threshold    `mapstructure:"threshold" json:"threshold"`
	ISOMappings []ISOMapping `mapstructure:"iso_mappings" json:"iso_mappings"`
	Inputs      []InputSpec  `mapstructure:"inputs" json:"inputs,omitempty"`
}

// PrimaryISO returns the metric's first ISO mapping, which is used as the
// isoReference on generated alerts and audit entries. Returns the zero mapping
// when the metric has none.
func (m Metric) PrimaryISO() ISOMapping {
	if len(m.ISOMappings) == 0 {
		return ISOMapping{}
	}
	return m.ISOMappings[0]
}

// Catalog is an ordered, immutable collection of metric definitions.
type Catalog struct {
	metrics []Metric
	byID    map[string]Metric
}

// New builds a catalog from the given definitions, preserving order.
// Duplicate or empty metric IDs and invalid directions are rejected.
func New(metrics []Metric) (*Catalog, error) {
	c := &Catalog{
		metrics: make([]Metric, 0, len(metrics)),
		byID:    make(map[string]Metric, len(metrics)),
	}
	for _, m := range metrics {
		if m.ID == "" {
			return nil, fmt.Errorf("catalog: metric %q has no id", m.Name)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate metric id %q", m.ID)
		}
		if !m.Threshold.Direction.Valid() {
			return nil, fmt.Errorf("catalog: metric %q has invalid direction %q", m.ID, m.Threshold.Direction)
		}
		c.metrics = append(c.metrics, m)
		c.byID[m.ID] = m
	}
	return c, nil
}

// Get looks up a metric by ID. A missing ID is a normal miss, never an error.
func (c *Catalog) Get(id string) (Metric, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// All returns the metric definitions in catalog order. The returned slice is a
// copy; callers may not mutate catalog state through it.
func (c *Catalog) All() []Metric {
	out := make([]Metric, len(c.metrics))
	copy(out, c.metrics)
	return out
}

// Len returns the number of metrics in the catalog.
func (c *Catalog) Len() int {
	return len(c.metrics)
}

// catalogFile is the shape of a YAML catalog override file.
type catalogFile struct {
	Metrics []Metric `mapstructure:"metrics"`
}

// LoadFile reads a YAML catalog file and builds a Catalog from it, replacing
// the built-in defaults entirely.
func LoadFile(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	var f catalogFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}
	if len(f.Metrics) == 0 {
		return nil, fmt.Errorf("catalog: %s defines no metrics", path)
	}
	return New(f.Metrics)
}
