package criteria

import (
	"fmt"
	"strings"

	"github.com/wonny/aegis-screener/internal/contracts"
)

// Sortable fields
const (
	SortTotalScore    = "total_score"
	SortValuation     = "valuation"
	SortProfitability = "profitability"
	SortGrowth        = "growth"
	SortSafety        = "safety"
	SortPER           = "per"
	SortPBR           = "pbr"
	SortROE           = "roe"
	SortROA           = "roa"
	SortDividendYield = "dividend_yield"
	SortPrice         = "price"
	SortMarketCap     = "market_cap"
	SortCode          = "code"
	SortName          = "name"
)

// DefaultSort orders by total score, best first
const DefaultSort = "-" + SortTotalScore

var sortFields = map[string]struct{}{
	SortTotalScore: {}, SortValuation: {}, SortProfitability: {}, SortGrowth: {}, SortSafety: {},
	SortPER: {}, SortPBR: {}, SortROE: {}, SortROA: {}, SortDividendYield: {},
	SortPrice: {}, SortMarketCap: {}, SortCode: {}, SortName: {},
}

// SortKey is a parsed sort expression such as "-total_score" or "per"
type SortKey struct {
	Field      string
	Descending bool
}

func (k SortKey) String() string {
	if k.Descending {
		return "-" + k.Field
	}
	return k.Field
}

// ParseSortKey parses a field name with an optional leading "-" for descending order.
// An empty string yields DefaultSort. Unknown fields are a configuration error.
func ParseSortKey(s string) (SortKey, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = DefaultSort
	}

	key := SortKey{Field: s}
	if strings.HasPrefix(s, "-") {
		key = SortKey{Field: s[1:], Descending: true}
	}

	if _, ok := sortFields[key.Field]; !ok {
		return SortKey{}, fmt.Errorf("%w: unknown sort key %q", contracts.ErrInvalidCriteria, s)
	}
	return key, nil
}

// SortFields lists the accepted sort field names
func SortFields() []string {
	return []string{
		SortTotalScore, SortValuation, SortProfitability, SortGrowth, SortSafety,
		SortPER, SortPBR, SortROE, SortROA, SortDividendYield,
		SortPrice, SortMarketCap, SortCode, SortName,
	}
}
