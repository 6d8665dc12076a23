// Package criteria holds the caller-supplied screening configuration:
// named-metric ranges, text matches, streaks, exclusions and an optional
// allow-listed formula. All conditions are combined with AND.
package criteria

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/numeric"
)

// Text match modes
const (
	MatchContains = "contains"
	MatchEquals   = "equals"
)

// Moving-average trend filters
const (
	TrendUp   = "uptrend"
	TrendDown = "downtrend"
)

// Criteria is the screening configuration. It is treated as immutable once validated.
type Criteria struct {
	Ranges         map[string]Range       `json:"ranges,omitempty" yaml:"ranges,omitempty"`
	Text           []TextMatch            `json:"text,omitempty" yaml:"text,omitempty"`
	Streaks        []Streak               `json:"streaks,omitempty" yaml:"streaks,omitempty"`
	ExcludeSectors []string               `json:"exclude_sectors,omitempty" yaml:"exclude_sectors,omitempty"`
	SizeBuckets    []contracts.SizeBucket `json:"size_buckets,omitempty" yaml:"size_buckets,omitempty"`
	ExcludeLoss    bool                   `json:"exclude_loss,omitempty" yaml:"exclude_loss,omitempty"`
	MATrend        string                 `json:"ma_trend,omitempty" yaml:"ma_trend,omitempty"`
	Formula        string                 `json:"formula,omitempty" yaml:"formula,omitempty"`
}

// Range bounds a named metric. Both bounds are inclusive; an Absent bound is unset.
type Range struct {
	Min numeric.Value `json:"min"`
	Max numeric.Value `json:"max"`
}

// TextMatch matches a descriptive entity attribute case-insensitively
type TextMatch struct {
	Field string `json:"field" yaml:"field"` // name, market, sector, code
	Value string `json:"value" yaml:"value"`
	Mode  string `json:"mode,omitempty" yaml:"mode,omitempty"` // contains (default), equals
}

// Streak requires at least MinYears consecutive year-over-year improvements of a statement series
type Streak struct {
	Field    string `json:"field" yaml:"field"`
	MinYears int    `json:"min_years" yaml:"min_years"`
}

// Between is a convenience constructor used by presets and tests
func Between(lo, hi numeric.Value) Range {
	return Range{Min: lo, Max: hi}
}

// AtLeast returns a range with only a lower bound
func AtLeast(lo numeric.Value) Range {
	return Range{Min: lo}
}

// AtMost returns a range with only an upper bound
func AtMost(hi numeric.Value) Range {
	return Range{Max: hi}
}

// IsEmpty reports whether no condition at all is configured
func (c *Criteria) IsEmpty() bool {
	if c == nil {
		return true
	}
	return len(c.Ranges) == 0 &&
		len(c.Text) == 0 &&
		len(c.Streaks) == 0 &&
		len(c.ExcludeSectors) == 0 &&
		len(c.SizeBuckets) == 0 &&
		!c.ExcludeLoss &&
		c.MATrend == "" &&
		strings.TrimSpace(c.Formula) == ""
}

// Clone returns a copy that shares no maps or slices with c
func (c Criteria) Clone() Criteria {
	out := c
	if c.Ranges != nil {
		out.Ranges = make(map[string]Range, len(c.Ranges))
		for k, v := range c.Ranges {
			out.Ranges[k] = v
		}
	}
	out.Text = append([]TextMatch(nil), c.Text...)
	out.Streaks = append([]Streak(nil), c.Streaks...)
	out.ExcludeSectors = append([]string(nil), c.ExcludeSectors...)
	out.SizeBuckets = append([]contracts.SizeBucket(nil), c.SizeBuckets...)
	return out
}

// UnmarshalJSON rejects bounds that are present but not numeric
func (r *Range) UnmarshalJSON(data []byte) error {
	var raw struct {
		Min json.RawMessage `json:"min"`
		Max json.RawMessage `json:"max"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	lo, err := boundFromJSON("min", raw.Min)
	if err != nil {
		return err
	}
	hi, err := boundFromJSON("max", raw.Max)
	if err != nil {
		return err
	}

	r.Min, r.Max = lo, hi
	return nil
}

func boundFromJSON(name string, raw json.RawMessage) (numeric.Value, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return numeric.Absent(), nil
	}
	var v numeric.Value
	if err := v.UnmarshalJSON(raw); err != nil {
		return numeric.Absent(), err
	}
	if !v.Present() {
		return numeric.Absent(), fmt.Errorf("%w: %s bound %s is not a number", contracts.ErrInvalidCriteria, name, string(raw))
	}
	return v, nil
}

// UnmarshalYAML accepts numeric scalars (or numeric strings) for min and max
func (r *Range) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: line %d: range must be a mapping of min/max", contracts.ErrInvalidCriteria, node.Line)
	}

	var minNode, maxNode *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "min":
			minNode = val
		case "max":
			maxNode = val
		default:
			return fmt.Errorf("%w: line %d: unknown range field %q", contracts.ErrInvalidCriteria, key.Line, key.Value)
		}
	}

	lo, err := boundFromYAML("min", minNode)
	if err != nil {
		return err
	}
	hi, err := boundFromYAML("max", maxNode)
	if err != nil {
		return err
	}

	r.Min, r.Max = lo, hi
	return nil
}

func boundFromYAML(name string, node *yaml.Node) (numeric.Value, error) {
	if node == nil || node.Tag == "!!null" {
		return numeric.Absent(), nil
	}
	if node.Kind != yaml.ScalarNode {
		return numeric.Absent(), fmt.Errorf("%w: line %d: %s bound must be a scalar", contracts.ErrInvalidCriteria, node.Line, name)
	}
	v := numeric.Normalize(node.Value)
	if !v.Present() {
		return numeric.Absent(), fmt.Errorf("%w: line %d: %s bound %q is not a number", contracts.ErrInvalidCriteria, node.Line, name, node.Value)
	}
	return v, nil
}
