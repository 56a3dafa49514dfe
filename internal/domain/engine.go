package domain

import "github.com/shopspring/decimal"

// EngineConfig is the per-call configuration of the detection engine.
type EngineConfig struct {
	InvestmentAmount  decimal.Decimal
	TradingFeePercent decimal.Decimal
	AnchorAssets      []Asset
	QuoteAssets       []Asset
	// LegPricing is "directional" or "uniform_bid".
	LegPricing string
}

// DefaultAnchorAssets are the stablecoins triangular cycles start and end at.
func DefaultAnchorAssets() []Asset {
	return []Asset{"USDT", "USDC", "BUSD", "DAI"}
}

// DefaultEngineConfig returns investment 100, fee 0.1% and the default
// anchors.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		InvestmentAmount:  decimal.NewFromInt(100),
		TradingFeePercent: decimal.RequireFromString("0.1"),
		AnchorAssets:      DefaultAnchorAssets(),
		LegPricing:        "directional",
	}
}
