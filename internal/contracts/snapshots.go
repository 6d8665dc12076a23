package contracts

import (
	"time"

	"github.com/wonny/aegis-screener/internal/numeric"
)

// MarketSnapshot holds market indicators for one entity on one date
type MarketSnapshot struct {
	EntityID      string        `json:"entity_id"`
	AsOf          time.Time     `json:"as_of"`
	Price         numeric.Value `json:"price"`
	PER           numeric.Value `json:"per"`
	PBR           numeric.Value `json:"pbr"`
	PSR           numeric.Value `json:"psr"`
	DividendYield numeric.Value `json:"dividend_yield"` // percent
	PayoutRatio   numeric.Value `json:"payout_ratio"`   // percent
	MarketCap     numeric.Value `json:"market_cap"`
	Volume        numeric.Value `json:"volume"`
}

// FundamentalSnapshot holds fundamental ratios. It is dated independently of
// MarketSnapshot and usually lags it. All ratios are percentages except the
// plain multiples (debt/equity, current ratio, asset turnover).
type FundamentalSnapshot struct {
	EntityID        string        `json:"entity_id"`
	AsOf            time.Time     `json:"as_of"`
	ROE             numeric.Value `json:"roe"`
	ROA             numeric.Value `json:"roa"`
	ROIC            numeric.Value `json:"roic"`
	GrossMargin     numeric.Value `json:"gross_margin"`
	OperatingMargin numeric.Value `json:"operating_margin"`
	NetMargin       numeric.Value `json:"net_margin"`
	DebtEquityRatio numeric.Value `json:"debt_equity_ratio"`
	CurrentRatio    numeric.Value `json:"current_ratio"`
	EquityRatio     numeric.Value `json:"equity_ratio"`
	AssetTurnover   numeric.Value `json:"asset_turnover"`
	RevenueGrowth1Y numeric.Value `json:"revenue_growth_1y"`
	RevenueGrowth3Y numeric.Value `json:"revenue_growth_3y"`
	ProfitGrowth1Y  numeric.Value `json:"profit_growth_1y"`
	ProfitGrowth3Y  numeric.Value `json:"profit_growth_3y"`
}

// TechnicalSnapshot holds indicators derived from the daily price history at ingestion
type TechnicalSnapshot struct {
	EntityID    string        `json:"entity_id"`
	AsOf        time.Time     `json:"as_of"`
	MA5         numeric.Value `json:"ma5"`
	MA25        numeric.Value `json:"ma25"`
	MA75        numeric.Value `json:"ma75"`
	RSI14       numeric.Value `json:"rsi14"`
	Volatility  numeric.Value `json:"volatility"` // annualised, percent
	Momentum20  numeric.Value `json:"momentum20"` // percent change over 20 sessions
	AvgVolume20 numeric.Value `json:"avg_volume20"`
}

// FinancialStatement is one fiscal period of statement data. Quarter 0 means annual.
// Missing fields stay Absent; they are never zero-filled.
type FinancialStatement struct {
	EntityID           string        `json:"entity_id"`
	FiscalYear         int           `json:"fiscal_year"`
	Quarter            int           `json:"quarter"`
	Revenue            numeric.Value `json:"revenue"`
	OperatingIncome    numeric.Value `json:"operating_income"`
	NetIncome          numeric.Value `json:"net_income"`
	TotalAssets        numeric.Value `json:"total_assets"`
	ShareholdersEquity numeric.Value `json:"shareholders_equity"`
	EPS                numeric.Value `json:"eps"`
	BPS                numeric.Value `json:"bps"`
	DividendPerShare   numeric.Value `json:"dividend_per_share"`
}

// EntitySnapshot is the read-only per-entity view the engine evaluates.
// Market, Fundamental and Technical are nil when no record exists at or before as-of.
// Statements are annual, newest fiscal year first.
type EntitySnapshot struct {
	Entity      Entity               `json:"entity"`
	AsOf        time.Time            `json:"as_of"`
	Market      *MarketSnapshot      `json:"market,omitempty"`
	Fundamental *FundamentalSnapshot `json:"fundamental,omitempty"`
	Technical   *TechnicalSnapshot   `json:"technical,omitempty"`
	Statements  []FinancialStatement `json:"statements"`
}

// LatestStatement returns the newest statement or nil
func (s *EntitySnapshot) LatestStatement() *FinancialStatement {
	if len(s.Statements) == 0 {
		return nil
	}
	return &s.Statements[0]
}
