package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CrossArbitrageResult is the evaluation of one asset's quotes across
// exchanges: buy at Lowest, sell at Highest.
type CrossArbitrageResult struct {
	Highest          Quote           `json:"highest"`
	Lowest           Quote           `json:"lowest"`
	PotentialProfit  decimal.Decimal `json:"potential_profit"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
	BuyFee           decimal.Decimal `json:"buy_fee"`
	SellFee          decimal.Decimal `json:"sell_fee"`
	ProfitAfterFees  decimal.Decimal `json:"profit_after_fees"`
	// Usable is the number of quotes that passed validation.
	Usable int `json:"usable"`
	// Degenerate is set when fewer than two usable quotes were supplied.
	Degenerate bool `json:"degenerate"`
}

// CrossOpportunity is a CrossArbitrageResult stamped by a scan.
type CrossOpportunity struct {
	ID         string               `json:"id"`
	AssetID    string               `json:"asset_id"`
	Symbol     string               `json:"symbol"`
	Name       string               `json:"name"`
	Investment decimal.Decimal      `json:"investment"`
	Result     CrossArbitrageResult `json:"result"`
	Generation uint64               `json:"generation"`
	DetectedAt time.Time            `json:"detected_at"`
}

// Side is the direction of a trade against a pair's base asset.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// CycleStep is one conversion of a triangular cycle.
type CycleStep struct {
	From      Asset           `json:"from"`
	To        Asset           `json:"to"`
	Side      Side            `json:"side"`
	Rate      decimal.Decimal `json:"rate"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	Pair      TradingPair     `json:"pair"`
}

// TriangularCycle is a closed anchor -> A -> B -> anchor conversion loop on
// a single exchange.
type TriangularCycle struct {
	ID               string          `json:"id,omitempty"`
	Exchange         string          `json:"exchange,omitempty"`
	Anchor           Asset           `json:"anchor"`
	Path             [4]Asset        `json:"path"`
	Steps            [3]CycleStep    `json:"steps"`
	Investment       decimal.Decimal `json:"investment"`
	FinalAmount      decimal.Decimal `json:"final_amount"`
	Profit           decimal.Decimal `json:"profit"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
	Generation       uint64          `json:"generation,omitempty"`
	DetectedAt       time.Time       `json:"detected_at,omitzero"`
}

// Closed reports whether the steps chain from the anchor back to itself.
func (c TriangularCycle) Closed() bool {
	if c.Steps[0].From != c.Anchor || c.Steps[2].To != c.Anchor {
		return false
	}
	for i := 1; i < len(c.Steps); i++ {
		if c.Steps[i].From != c.Steps[i-1].To {
			return false
		}
	}
	return true
}
