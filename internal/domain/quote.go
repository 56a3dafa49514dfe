package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange is an entry of the exchange fee table.
type Exchange struct {
	Name       string          `json:"name"`
	FeePercent decimal.Decimal `json:"fee_percent"`
}

// Quote is one exchange's price for one asset at one poll cycle.
type Quote struct {
	Exchange          string          `json:"exchange"`
	Price             decimal.Decimal `json:"price"`
	TradingFeePercent decimal.Decimal `json:"trading_fee_percent"`
	Volume24h         decimal.Decimal `json:"volume_24h"`
	ObservedAt        time.Time       `json:"observed_at"`
}

// AssetQuotes groups the quotes collected for a single asset.
type AssetQuotes struct {
	AssetID string  `json:"asset_id"`
	Symbol  string  `json:"symbol"`
	Name    string  `json:"name"`
	Quotes  []Quote `json:"quotes"`
}

// Coin is a market row from a market-data aggregator.
type Coin struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Name           string          `json:"name"`
	Image          string          `json:"image"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	PriceChange24h decimal.Decimal `json:"price_change_percentage_24h"`
	TotalVolume    decimal.Decimal `json:"total_volume"`
	MarketCap      decimal.Decimal `json:"market_cap"`
}

// MatchesSearch reports whether the coin's name or symbol contains term,
// ignoring case. An empty term matches everything.
func MatchesSearch(name, symbol, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), term) ||
		strings.Contains(strings.ToLower(symbol), term)
}

// RawInstrument is a top-of-book entry as delivered by an exchange.
type RawInstrument struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
}

// TradingPair is a RawInstrument decomposed into base and quote assets.
// Base never equals Quote. Bid <= Ask is not guaranteed.
type TradingPair struct {
	Symbol string          `json:"symbol"`
	Base   Asset           `json:"base"`
	Quote  Asset           `json:"quote"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
}
