package numeric

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Absent(t *testing.T) {
	var nilDecimal *decimal.Decimal
	var nilString *string

	tests := []struct {
		name string
		raw  interface{}
	}{
		{"nil", nil},
		{"empty string", ""},
		{"blank string", "   "},
		{"nan token", "nan"},
		{"NaN token", "NaN"},
		{"NULL token", "NULL"},
		{"None token", "None"},
		{"dash", "-"},
		{"float NaN", math.NaN()},
		{"float +Inf", math.Inf(1)},
		{"float -Inf", math.Inf(-1)},
		{"float32 NaN", float32(math.NaN())},
		{"too large float", 1e16},
		{"too large negative float", -2e15},
		{"too large string", "1000000000000001"},
		{"too large int", int64(1_000_000_000_000_001)},
		{"exponent string", "1e16"},
		{"huge exponent", "1e999999"},
		{"huge negative exponent", "1e-999999"},
		{"empty exponent", "1e"},
		{"garbage", "12abc"},
		{"inf string", "inf"},
		{"bool", true},
		{"struct", struct{}{}},
		{"nil decimal pointer", nilDecimal},
		{"nil string pointer", nilString},
		{"invalid null decimal", decimal.NullDecimal{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Value
			assert.NotPanics(t, func() { got = Normalize(tt.raw) })
			assert.False(t, got.Present(), "expected Absent for %v", tt.raw)
		})
	}
}

func TestNormalize_Present(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want string
	}{
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"uint64", uint64(12), "12"},
		{"float keeps literal", 0.1, "0.1"},
		{"float32", float32(2.5), "2.5"},
		{"string", "12.34", "12.34"},
		{"string with spaces", "  8.5 ", "8.5"},
		{"thousands separators", "1,234,567", "1234567"},
		{"percent suffix", "3.2%", "3.2"},
		{"negative string", "-0.75", "-0.75"},
		{"exponent", "1.5e3", "1500"},
		{"small exponent", "1e-100", "1e-100"},
		{"signed exponent", "2.5E+3", "2500"},
		{"negative exponent", "-2.5e-3", "-0.0025"},
		{"boundary", "1000000000000000", "1000000000000000"},
		{"negative boundary", -1e15, "-1000000000000000"},
		{"bytes", []byte("99"), "99"},
		{"json number", json.Number("3.14"), "3.14"},
		{"decimal", decimal.RequireFromString("1.005"), "1.005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			require.True(t, got.Present())
			d, _ := got.Decimal()
			assert.True(t, d.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", d, tt.want)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []interface{}{
		nil, "", "nan", 1e16, math.NaN(), 0.1, 7, "12.50", "-3", "1,000", decimal.NewFromInt(5),
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		assert.Equal(t, once.Present(), twice.Present(), "input %v", in)
		if once.Present() {
			assert.True(t, once.Equal(twice), "input %v", in)
		}
	}
}

func TestValue_Arithmetic(t *testing.T) {
	a := MustParse("10")
	b := MustParse("4")
	absent := Absent()

	assert.Equal(t, "14", a.Add(b).String())
	assert.Equal(t, "6", a.Sub(b).String())
	assert.Equal(t, "40", a.Mul(b).String())
	assert.Equal(t, "2.5", a.Div(b).String())
	assert.Equal(t, "-10", a.Neg().String())

	assert.False(t, a.Add(absent).Present())
	assert.False(t, absent.Sub(a).Present())
	assert.False(t, a.Mul(absent).Present())
	assert.False(t, a.Div(absent).Present())
	assert.False(t, a.Div(Int(0)).Present(), "division by zero is Absent")
	assert.False(t, MustParse("1000000000000000").Mul(Int(10)).Present(), "overflow past bound is Absent")
}

func TestValue_Comparisons(t *testing.T) {
	five := Int(5)
	six := Int(6)
	absent := Absent()

	assert.True(t, six.GreaterThan(five))
	assert.True(t, five.GreaterThanOrEqual(five))
	assert.True(t, five.LessThan(six))
	assert.True(t, five.LessThanOrEqual(five))
	assert.True(t, five.Equal(Int(5)))

	assert.False(t, absent.GreaterThan(five))
	assert.False(t, five.LessThan(absent))
	assert.False(t, absent.Equal(absent))

	_, ok := absent.Cmp(five)
	assert.False(t, ok)

	assert.True(t, five.IsPositive())
	assert.False(t, Int(0).IsPositive())
	assert.False(t, absent.IsPositive())
}

func TestValue_JSON(t *testing.T) {
	type row struct {
		PER Value `json:"per"`
		PBR Value `json:"pbr"`
	}

	data, err := json.Marshal(row{PER: MustParse("7.25")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"per":7.25,"pbr":null}`, string(data))

	var back row
	require.NoError(t, json.Unmarshal([]byte(`{"per":"7.25","pbr":"NaN"}`), &back))
	assert.Equal(t, "7.25", back.PER.String())
	assert.False(t, back.PBR.Present())
}

func TestValue_SQL(t *testing.T) {
	var v Value
	require.NoError(t, v.Scan("15.5"))
	assert.Equal(t, "15.5", v.String())

	require.NoError(t, v.Scan(nil))
	assert.False(t, v.Present())

	dv, err := Absent().Value()
	require.NoError(t, err)
	assert.Nil(t, dv)

	dv, err = MustParse("2.75").Value()
	require.NoError(t, err)
	assert.Equal(t, "2.75", dv)
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("nan") })
}
