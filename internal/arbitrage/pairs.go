package arbitrage

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// DefaultQuoteAssets is the priority-ordered list of quote assets used to
// split concatenated exchange symbols.
func DefaultQuoteAssets() []domain.Asset {
	return []domain.Asset{"USDT", "USDC", "BUSD", "DAI", "BTC", "ETH", "BNB"}
}

const symbolSeparators = "-/_:"

// QuoteAssetRegistry decomposes exchange symbols into base and quote assets.
type QuoteAssetRegistry struct {
	assets []domain.Asset
}

// NewQuoteAssetRegistry builds a registry from assets in priority order.
// Duplicates keep their first position.
func NewQuoteAssetRegistry(assets ...string) (*QuoteAssetRegistry, error) {
	list := domain.Assets(assets...)
	if len(list) == 0 {
		return nil, fmt.Errorf("arbitrage: quote asset registry: %w: no assets", domain.ErrInvalidInput)
	}
	return &QuoteAssetRegistry{assets: list}, nil
}

// DefaultRegistry returns a registry over DefaultQuoteAssets.
func DefaultRegistry() *QuoteAssetRegistry {
	return &QuoteAssetRegistry{assets: DefaultQuoteAssets()}
}

// Assets returns the registry contents in priority order.
func (r *QuoteAssetRegistry) Assets() []domain.Asset {
	out := make([]domain.Asset, len(r.assets))
	copy(out, r.assets)
	return out
}

// Decompose splits symbol into base and quote. Symbols with an explicit
// separator ("BTC-USDT") split there; concatenated symbols ("ETHBTC") take
// the longest registered suffix, earlier entries winning equal lengths.
func (r *QuoteAssetRegistry) Decompose(symbol string) (base, quote domain.Asset, ok bool) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", "", false
	}

	if i := strings.IndexAny(s, symbolSeparators); i >= 0 {
		base = domain.NewAsset(s[:i])
		quote = domain.NewAsset(s[i+1:])
		if base == "" || quote == "" || base == quote || strings.ContainsAny(string(quote), symbolSeparators) {
			return "", "", false
		}
		return base, quote, true
	}

	for _, q := range r.assets {
		if len(q) <= len(quote) || len(q) >= len(s) {
			continue
		}
		if strings.HasSuffix(s, string(q)) {
			quote = q
		}
	}
	if quote == "" {
		return "", "", false
	}
	base = domain.Asset(s[:len(s)-len(quote)])
	if base == quote {
		return "", "", false
	}
	return base, quote, true
}

type pairKey struct {
	base, quote domain.Asset
}

// PairGraph is the set of tradable pairs of one exchange, indexed by quote
// asset, by base asset and by (base, quote).
type PairGraph struct {
	pairs     []domain.TradingPair
	byQuote   map[domain.Asset][]domain.TradingPair
	byBase    map[domain.Asset][]domain.TradingPair
	byPair    map[pairKey][]domain.TradingPair
	discarded int
}

// BuildGraph decomposes raw instruments against reg. Unparseable symbols,
// non-positive prices and repeated symbols are discarded. Input order is
// preserved in every index.
func BuildGraph(raw []domain.RawInstrument, reg *QuoteAssetRegistry) *PairGraph {
	g := &PairGraph{
		pairs:   make([]domain.TradingPair, 0, len(raw)),
		byQuote: make(map[domain.Asset][]domain.TradingPair),
		byBase:  make(map[domain.Asset][]domain.TradingPair),
		byPair:  make(map[pairKey][]domain.TradingPair),
	}
	seen := make(map[string]bool, len(raw))

	for _, in := range raw {
		symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
		base, quote, ok := reg.Decompose(symbol)
		if !ok || seen[symbol] || !in.Bid.IsPositive() || !in.Ask.IsPositive() {
			g.discarded++
			continue
		}
		seen[symbol] = true

		p := domain.TradingPair{Symbol: symbol, Base: base, Quote: quote, Bid: in.Bid, Ask: in.Ask}
		g.pairs = append(g.pairs, p)
		g.byQuote[quote] = append(g.byQuote[quote], p)
		g.byBase[base] = append(g.byBase[base], p)
		k := pairKey{base, quote}
		g.byPair[k] = append(g.byPair[k], p)
	}
	return g
}

// QuotedIn returns the pairs priced in asset, i.e. whose quote is asset.
func (g *PairGraph) QuotedIn(asset domain.Asset) []domain.TradingPair {
	return g.byQuote[asset]
}

// BasedOn returns the pairs whose base is asset.
func (g *PairGraph) BasedOn(asset domain.Asset) []domain.TradingPair {
	return g.byBase[asset]
}

// Between returns the pairs trading base against quote.
func (g *PairGraph) Between(base, quote domain.Asset) []domain.TradingPair {
	return g.byPair[pairKey{base, quote}]
}

// Pairs returns every accepted pair in input order.
func (g *PairGraph) Pairs() []domain.TradingPair {
	return g.pairs
}

// Len is the number of accepted pairs.
func (g *PairGraph) Len() int { return len(g.pairs) }

// Discarded is the number of rejected instruments.
func (g *PairGraph) Discarded() int { return g.discarded }
