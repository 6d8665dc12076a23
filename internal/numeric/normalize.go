package numeric

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// maxExponent bounds scientific-notation exponents before decimal parsing; the
// magnitude bound itself is enforced by Of
const maxExponent = 1000

// absentTokens are literal strings feeds use for "no value"
var absentTokens = map[string]struct{}{
	"":     {},
	"nan":  {},
	"null": {},
	"none": {},
	"-":    {},
	"--":   {},
	"n/a":  {},
	"na":   {},
}

// Normalize converts raw input into a bounded fixed-precision Value or Absent.
// It never panics: NaN, infinities, sentinels, magnitudes above 10^15 and anything
// unparseable become Absent. Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw interface{}) (out Value) {
	defer func() {
		if recover() != nil {
			out = Value{}
		}
	}()

	switch x := raw.(type) {
	case nil:
		return Value{}
	case Value:
		if !x.ok {
			return Value{}
		}
		return Of(x.d)
	case *Value:
		if x == nil {
			return Value{}
		}
		return Normalize(*x)
	case decimal.Decimal:
		return Of(x)
	case *decimal.Decimal:
		if x == nil {
			return Value{}
		}
		return Of(*x)
	case decimal.NullDecimal:
		if !x.Valid {
			return Value{}
		}
		return Of(x.Decimal)
	case float64:
		return fromFloat(x)
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}
		}
		return Of(decimal.NewFromFloat32(x))
	case int:
		return Of(decimal.NewFromInt(int64(x)))
	case int8:
		return Of(decimal.NewFromInt(int64(x)))
	case int16:
		return Of(decimal.NewFromInt(int64(x)))
	case int32:
		return Of(decimal.NewFromInt(int64(x)))
	case int64:
		return Of(decimal.NewFromInt(x))
	case uint:
		return Of(decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(x)), 0))
	case uint8:
		return Of(decimal.NewFromInt(int64(x)))
	case uint16:
		return Of(decimal.NewFromInt(int64(x)))
	case uint32:
		return Of(decimal.NewFromInt(int64(x)))
	case uint64:
		return Of(decimal.NewFromBigInt(new(big.Int).SetUint64(x), 0))
	case *float64:
		if x == nil {
			return Value{}
		}
		return fromFloat(*x)
	case *int64:
		if x == nil {
			return Value{}
		}
		return Of(decimal.NewFromInt(*x))
	case json.Number:
		return fromString(string(x))
	case string:
		return fromString(x)
	case *string:
		if x == nil {
			return Value{}
		}
		return fromString(*x)
	case []byte:
		return fromString(string(x))
	default:
		return Value{}
	}
}

func fromFloat(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > 1e15 {
		return Value{}
	}
	// NewFromFloat uses the shortest decimal text that round-trips, so 0.1 stays 0.1
	return Of(decimal.NewFromFloat(f))
}

func fromString(s string) Value {
	s = strings.TrimSpace(s)
	if _, ok := absentTokens[strings.ToLower(s)]; ok {
		return Value{}
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}
	}

	// reject exponents large enough to make decimal allocate huge coefficients
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		exp, err := strconv.Atoi(s[i+1:])
		if err != nil || exp > maxExponent || exp < -maxExponent {
			return Value{}
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return Value{}
	}
	return Of(d)
}
