// Package numeric holds the Optional fixed-precision value every metric is carried in,
// and the normalizer that turns raw feed input into it.
package numeric

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// maxMagnitude bounds every present value: |v| <= 10^15
var maxMagnitude = decimal.New(1, 15)

// Value is an optional fixed-precision decimal. The zero Value is Absent.
// Arithmetic and comparisons propagate Absent instead of coercing it to zero.
type Value struct {
	d  decimal.Decimal
	ok bool
}

// Absent returns the missing value
func Absent() Value {
	return Value{}
}

// Of wraps a decimal, enforcing the magnitude bound
func Of(d decimal.Decimal) Value {
	if d.Abs().GreaterThan(maxMagnitude) {
		return Value{}
	}
	return Value{d: d, ok: true}
}

// Int returns a present value for an integer
func Int(i int64) Value {
	return Of(decimal.NewFromInt(i))
}

// MustParse parses a literal decimal and panics on failure. Intended for constants.
func MustParse(s string) Value {
	v := Normalize(s)
	if !v.ok {
		panic(fmt.Sprintf("numeric: invalid literal %q", s))
	}
	return v
}

// Present reports whether the value exists
func (v Value) Present() bool {
	return v.ok
}

// Decimal returns the underlying decimal and whether it is present
func (v Value) Decimal() (decimal.Decimal, bool) {
	return v.d, v.ok
}

// Float64 converts to float64 for presentation or math that has no decimal form
func (v Value) Float64() (float64, bool) {
	if !v.ok {
		return 0, false
	}
	return v.d.InexactFloat64(), true
}

// Round rounds a present value to places decimal places
func (v Value) Round(places int32) Value {
	if !v.ok {
		return v
	}
	return Value{d: v.d.Round(places), ok: true}
}

func (v Value) String() string {
	if !v.ok {
		return "-"
	}
	return v.d.String()
}

// Add returns v + o, Absent if either is Absent
func (v Value) Add(o Value) Value {
	if !v.ok || !o.ok {
		return Value{}
	}
	return Of(v.d.Add(o.d))
}

// Sub returns v - o, Absent if either is Absent
func (v Value) Sub(o Value) Value {
	if !v.ok || !o.ok {
		return Value{}
	}
	return Of(v.d.Sub(o.d))
}

// Mul returns v * o, Absent if either is Absent
func (v Value) Mul(o Value) Value {
	if !v.ok || !o.ok {
		return Value{}
	}
	return Of(v.d.Mul(o.d))
}

// Div returns v / o, Absent if either is Absent or o is zero
func (v Value) Div(o Value) Value {
	if !v.ok || !o.ok || o.d.IsZero() {
		return Value{}
	}
	return Of(v.d.DivRound(o.d, 12))
}

// Neg returns -v
func (v Value) Neg() Value {
	if !v.ok {
		return v
	}
	return Value{d: v.d.Neg(), ok: true}
}

// Cmp compares two present values. ok is false when either is Absent.
func (v Value) Cmp(o Value) (cmp int, ok bool) {
	if !v.ok || !o.ok {
		return 0, false
	}
	return v.d.Cmp(o.d), true
}

// GreaterThan is false whenever either side is Absent; the same holds for the other comparisons.
func (v Value) GreaterThan(o Value) bool {
	c, ok := v.Cmp(o)
	return ok && c > 0
}

func (v Value) GreaterThanOrEqual(o Value) bool {
	c, ok := v.Cmp(o)
	return ok && c >= 0
}

func (v Value) LessThan(o Value) bool {
	c, ok := v.Cmp(o)
	return ok && c < 0
}

func (v Value) LessThanOrEqual(o Value) bool {
	c, ok := v.Cmp(o)
	return ok && c <= 0
}

func (v Value) Equal(o Value) bool {
	c, ok := v.Cmp(o)
	return ok && c == 0
}

// IsPositive reports a present value > 0
func (v Value) IsPositive() bool {
	return v.ok && v.d.IsPositive()
}

// MarshalJSON renders Absent as null and present values as JSON numbers
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return []byte(v.d.String()), nil
}

// UnmarshalJSON accepts numbers, numeric strings, and null, all through Normalize
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		*v = Value{}
		return nil
	}
	*v = Normalize(raw)
	return nil
}

// Scan implements sql.Scanner so repositories can scan NUMERIC columns directly
func (v *Value) Scan(src interface{}) error {
	*v = Normalize(src)
	return nil
}

// Value implements driver.Valuer; Absent is written as NULL
func (v Value) Value() (driver.Value, error) {
	if !v.ok {
		return nil, nil
	}
	return v.d.String(), nil
}
