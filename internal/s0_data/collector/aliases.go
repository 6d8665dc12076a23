package collector

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Canonical field names. Market and fundamental fields come from the quote page,
// statement fields from the annual statement table.
const (
	FieldPrice           = "price"
	FieldPER             = "per"
	FieldPBR             = "pbr"
	FieldPSR             = "psr"
	FieldDividendYield   = "dividend_yield"
	FieldPayoutRatio     = "payout_ratio"
	FieldMarketCap       = "market_cap"
	FieldVolume          = "volume"
	FieldROE             = "roe"
	FieldROA             = "roa"
	FieldROIC            = "roic"
	FieldGrossMargin     = "gross_margin"
	FieldOperatingMargin = "operating_margin"
	FieldNetMargin       = "net_margin"
	FieldDebtEquity      = "debt_equity_ratio"
	FieldCurrentRatio    = "current_ratio"
	FieldEquityRatio     = "equity_ratio"
	FieldAssetTurnover   = "asset_turnover"

	FieldRevenue            = "revenue"
	FieldOperatingIncome    = "operating_income"
	FieldNetIncome          = "net_income"
	FieldTotalAssets        = "total_assets"
	FieldShareholdersEquity = "shareholders_equity"
	FieldEPS                = "eps"
	FieldBPS                = "bps"
	FieldDividendPerShare   = "dividend_per_share"
)

// AliasTable maps vendor labels onto canonical field names.
// Lookups ignore case, punctuation and unit suffixes.
// ⭐ SSOT: vendor label resolution
type AliasTable struct {
	byLabel map[string]string
}

// NewAliasTable creates an empty table
func NewAliasTable() *AliasTable {
	return &AliasTable{byLabel: make(map[string]string)}
}

// DefaultAliases returns the table for the provider's English and Japanese labels
func DefaultAliases() *AliasTable {
	a := NewAliasTable()

	a.Add(FieldPrice, "Price", "Close", "Last Price", "株価", "終値")
	a.Add(FieldPER, "PER", "P/E", "P/E Ratio", "PE Ratio", "Trailing P/E", "株価収益率")
	a.Add(FieldPBR, "PBR", "P/B", "P/B Ratio", "Price to Book", "株価純資産倍率")
	a.Add(FieldPSR, "PSR", "P/S", "Price to Sales", "株価売上高倍率")
	a.Add(FieldDividendYield, "Dividend Yield", "Yield", "Div Yield", "配当利回り")
	a.Add(FieldPayoutRatio, "Payout Ratio", "Dividend Payout Ratio", "配当性向")
	a.Add(FieldMarketCap, "Market Cap", "Market Capitalization", "時価総額")
	a.Add(FieldVolume, "Volume", "Trading Volume", "出来高")

	a.Add(FieldROE, "ROE", "Return on Equity", "自己資本利益率")
	a.Add(FieldROA, "ROA", "Return on Assets", "総資産利益率")
	a.Add(FieldROIC, "ROIC", "Return on Invested Capital")
	a.Add(FieldGrossMargin, "Gross Margin", "Gross Profit Margin", "売上総利益率")
	a.Add(FieldOperatingMargin, "Operating Margin", "営業利益率")
	a.Add(FieldNetMargin, "Net Margin", "Profit Margin", "純利益率")
	a.Add(FieldDebtEquity, "Debt/Equity", "Debt to Equity", "D/E Ratio", "負債資本倍率")
	a.Add(FieldCurrentRatio, "Current Ratio", "流動比率")
	a.Add(FieldEquityRatio, "Equity Ratio", "Capital Adequacy Ratio", "自己資本比率")
	a.Add(FieldAssetTurnover, "Asset Turnover", "総資産回転率")

	a.Add(FieldRevenue, "Revenue", "Total Revenue", "Net Sales", "Sales", "Operating Revenue", "売上高", "営業収益")
	a.Add(FieldOperatingIncome, "Operating Income", "Operating Profit", "EBIT", "営業利益")
	a.Add(FieldNetIncome, "Net Income", "Net Income Attributable to Parent",
		"Net Income Attributable to Owners of Parent", "Profit", "Profit Attributable to Owners of Parent", "当期純利益", "純利益")
	a.Add(FieldTotalAssets, "Total Assets", "総資産")
	a.Add(FieldShareholdersEquity, "Shareholders Equity", "Total Stockholder Equity", "Total Equity", "Net Assets", "自己資本", "純資産")
	a.Add(FieldEPS, "EPS", "Earnings Per Share", "Diluted EPS", "1株益")
	a.Add(FieldBPS, "BPS", "Book Value Per Share", "1株純資産")
	a.Add(FieldDividendPerShare, "Dividend Per Share", "DPS", "Dividends", "1株配当")

	return a
}

// Add registers labels for a canonical field. A later registration of the same label wins.
func (a *AliasTable) Add(canonical string, labels ...string) {
	a.byLabel[labelKey(canonical)] = canonical
	for _, l := range labels {
		a.byLabel[labelKey(l)] = canonical
	}
}

// LoadAliases reads extra labels from a YAML file and layers them over DefaultAliases
func LoadAliases(path string) (*AliasTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alias file: %w", err)
	}
	return ParseAliases(data)
}

// ParseAliases decodes a YAML mapping of canonical field to labels, e.g.
//
//	revenue: ["Net Revenues", "売上収益"]
//
// Every key must be a known canonical field.
func ParseAliases(data []byte) (*AliasTable, error) {
	var extra map[string][]string
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("failed to parse aliases: %w", err)
	}

	a := DefaultAliases()
	known := make(map[string]bool)
	for _, f := range a.byLabel {
		known[f] = true
	}

	fields := make([]string, 0, len(extra))
	for f := range extra {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, f := range fields {
		if !known[f] {
			return nil, fmt.Errorf("unknown canonical field %q", f)
		}
		a.Add(f, extra[f]...)
	}
	return a, nil
}

// Resolve returns the canonical field for a vendor label
func (a *AliasTable) Resolve(label string) (string, bool) {
	f, ok := a.byLabel[labelKey(label)]
	return f, ok
}

// labelKey lowercases and strips everything but letters, digits and the slash,
// after dropping a trailing unit in parentheses: "P/E Ratio (x)" -> "p/eratio"
func labelKey(label string) string {
	if i := strings.LastIndexAny(label, "(（"); i > 0 {
		label = label[:i]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case r == '/':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r > 0x7f && r != '　' && r != '（' && r != '）':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Drift counts vendor labels that resolved to no canonical field
type Drift struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewDrift creates an empty drift counter
func NewDrift() *Drift {
	return &Drift{counts: make(map[string]int)}
}

// Record counts one unknown label and reports whether it is new
func (d *Drift) Record(label string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[label]++
	return d.counts[label] == 1
}

// Labels returns the unknown labels seen, sorted
func (d *Drift) Labels() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.counts))
	for l := range d.counts {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Count returns how often label was seen
func (d *Drift) Count(label string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[label]
}

// Total returns the number of unknown label occurrences
func (d *Drift) Total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.counts {
		n += c
	}
	return n
}
