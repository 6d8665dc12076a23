package criteria

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/internal/formula"
	"github.com/wonny/aegis-screener/internal/growth"
	"github.com/wonny/aegis-screener/internal/metricview"
)

// MaxStreakYears bounds a streak requirement to what the statement history can hold
const MaxStreakYears = 20

// ValidationError is one configuration problem
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one criteria document.
// It unwraps to contracts.ErrInvalidCriteria.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return "invalid criteria: " + strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error {
	return contracts.ErrInvalidCriteria
}

// AllowMetric reports whether name is a registered metric. It is the
// identifier allow-list handed to the formula parser.
func AllowMetric(name string) bool {
	_, ok := metricview.Lookup(name)
	return ok
}

// Validate checks the whole criteria document before any entity is evaluated.
// It returns nil or ValidationErrors.
func Validate(c *Criteria) error {
	if c.IsEmpty() {
		return ValidationErrors{{"criteria", "at least one condition is required"}}
	}

	var errs ValidationErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{field, fmt.Sprintf(format, args...)})
	}

	// === Ranges === (sorted for stable messages)
	names := make([]string, 0, len(c.Ranges))
	for name := range c.Ranges {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r := c.Ranges[name]
		field := "ranges." + name
		if _, ok := metricview.Lookup(name); !ok {
			add(field, "unknown metric")
			continue
		}
		if !r.Min.Present() && !r.Max.Present() {
			add(field, "min or max is required")
			continue
		}
		if cmp, ok := r.Min.Cmp(r.Max); ok && cmp > 0 {
			add(field, "min (%s) must be <= max (%s)", r.Min, r.Max)
		}
	}

	// === Text ===
	for i, t := range c.Text {
		field := fmt.Sprintf("text[%d]", i)
		switch strings.ToLower(t.Field) {
		case "name", "market", "sector", "code":
		default:
			add(field+".field", "must be one of name, market, sector, code")
		}
		if strings.TrimSpace(t.Value) == "" {
			add(field+".value", "required")
		}
		switch strings.ToLower(t.Mode) {
		case "", MatchContains, MatchEquals:
		default:
			add(field+".mode", "must be contains or equals")
		}
	}

	// === Streaks ===
	for i, s := range c.Streaks {
		field := fmt.Sprintf("streaks[%d]", i)
		if _, ok := growth.ParseField(s.Field); !ok {
			add(field+".field", "unknown statement series %q", s.Field)
		}
		if s.MinYears < 1 || s.MinYears > MaxStreakYears {
			add(field+".min_years", "must be in [1, %d], got %d", MaxStreakYears, s.MinYears)
		}
	}

	for i, sector := range c.ExcludeSectors {
		if strings.TrimSpace(sector) == "" {
			add(fmt.Sprintf("exclude_sectors[%d]", i), "must not be empty")
		}
	}

	for i, b := range c.SizeBuckets {
		if _, ok := contracts.ParseSizeBucket(string(b)); !ok {
			add(fmt.Sprintf("size_buckets[%d]", i), "unknown size bucket %q", b)
		}
	}

	switch c.MATrend {
	case "", TrendUp, TrendDown:
	default:
		add("ma_trend", "must be uptrend or downtrend")
	}

	// === Formula ===
	if strings.TrimSpace(c.Formula) != "" {
		if _, err := formula.Parse(c.Formula, AllowMetric); err != nil {
			var pe *formula.ParseError
			if errors.As(err, &pe) {
				add("formula", "position %d: %s", pe.Position, pe.Message)
			} else {
				add("formula", "%v", err)
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
