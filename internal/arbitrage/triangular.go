package arbitrage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// LegPricing selects which side of the book each cycle leg is priced at.
type LegPricing string

const (
	// PricingDirectional buys a pair's base at the ask and sells it at the
	// bid, on every leg.
	PricingDirectional LegPricing = "directional"
	// PricingUniformBid prices the first leg at the ask and the last two at
	// the bid regardless of direction.
	PricingUniformBid LegPricing = "uniform_bid"
)

// ParseLegPricing maps a config string to a LegPricing. The empty string
// selects PricingDirectional.
func ParseLegPricing(s string) (LegPricing, error) {
	switch LegPricing(s) {
	case "", PricingDirectional:
		return PricingDirectional, nil
	case PricingUniformBid:
		return PricingUniformBid, nil
	}
	return "", fmt.Errorf("%w: unknown leg pricing %q", domain.ErrInvalidInput, s)
}

// TriangularParams configures a cycle search.
type TriangularParams struct {
	Investment decimal.Decimal
	FeePercent decimal.Decimal
	Anchors    []domain.Asset
	Pricing    LegPricing
}

// ParamsFromConfig derives search parameters from an engine configuration.
func ParamsFromConfig(cfg domain.EngineConfig) (TriangularParams, error) {
	pricing, err := ParseLegPricing(cfg.LegPricing)
	if err != nil {
		return TriangularParams{}, err
	}
	p := TriangularParams{
		Investment: cfg.InvestmentAmount,
		FeePercent: cfg.TradingFeePercent,
		Anchors:    cfg.AnchorAssets,
		Pricing:    pricing,
	}
	return p, p.Validate()
}

// Validate checks the parameters.
func (p TriangularParams) Validate() error {
	if err := validateInvestment(p.Investment); err != nil {
		return err
	}
	if p.FeePercent.IsNegative() || p.FeePercent.GreaterThanOrEqual(hundred) {
		return fmt.Errorf("%w: fee %s%% outside [0,100)", domain.ErrInvalidInput, p.FeePercent)
	}
	if len(p.Anchors) == 0 {
		return fmt.Errorf("%w: no anchor assets", domain.ErrInvalidInput)
	}
	if _, err := ParseLegPricing(string(p.Pricing)); err != nil {
		return err
	}
	return nil
}

func (p TriangularParams) feeFactor() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(p.FeePercent.Div(hundred))
}

// Enumerate searches g for anchor -> A -> B -> anchor cycles and returns the
// profitable ones in search order. The closing leg is a direct lookup, so
// the cost is bounded by anchors x first legs x second legs.
func Enumerate(g *PairGraph, p TriangularParams) ([]domain.TriangularCycle, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("arbitrage: enumerate: %w", err)
	}

	var out []domain.TriangularCycle
	for _, anchor := range domain.Assets(assetStrings(p.Anchors)...) {
		for _, first := range g.QuotedIn(anchor) {
			for _, second := range g.QuotedIn(first.Base) {
				if second.Base == anchor {
					continue
				}
				for _, third := range g.Between(second.Base, anchor) {
					c := evaluateChain(anchor, first, second, third, p)
					if c.ProfitPercentage.IsPositive() {
						out = append(out, c)
					}
				}
			}
		}
	}
	return out, nil
}

// CountCandidates returns how many closed chains Enumerate would evaluate.
func CountCandidates(g *PairGraph, anchors []domain.Asset) int {
	n := 0
	for _, anchor := range domain.Assets(assetStrings(anchors)...) {
		for _, first := range g.QuotedIn(anchor) {
			for _, second := range g.QuotedIn(first.Base) {
				if second.Base != anchor {
					n += len(g.Between(second.Base, anchor))
				}
			}
		}
	}
	return n
}

// EvaluateCycle computes one chain without the profitability filter. The
// legs must chain anchor -> first.Base -> second.Base -> anchor.
func EvaluateCycle(anchor domain.Asset, first, second, third domain.TradingPair, p TriangularParams) (domain.TriangularCycle, error) {
	if err := p.Validate(); err != nil {
		return domain.TriangularCycle{}, fmt.Errorf("arbitrage: evaluate cycle: %w", err)
	}
	if first.Quote != anchor || second.Quote != first.Base || third.Base != second.Base || third.Quote != anchor {
		return domain.TriangularCycle{}, fmt.Errorf("arbitrage: evaluate cycle: %w: %s, %s, %s do not close at %s",
			domain.ErrInvalidInput, first.Symbol, second.Symbol, third.Symbol, anchor)
	}
	for _, leg := range []domain.TradingPair{first, second, third} {
		if !leg.Bid.IsPositive() || !leg.Ask.IsPositive() {
			return domain.TriangularCycle{}, fmt.Errorf("arbitrage: evaluate cycle: %w: %s has a non-positive price",
				domain.ErrInvalidInput, leg.Symbol)
		}
	}
	return evaluateChain(anchor, first, second, third, p), nil
}

func evaluateChain(anchor domain.Asset, first, second, third domain.TradingPair, p TriangularParams) domain.TriangularCycle {
	f := p.feeFactor()
	a, b := first.Base, second.Base

	s1 := convert(p.Investment, anchor, first, f)
	var s2 domain.CycleStep
	if p.Pricing == PricingUniformBid {
		s2 = step(a, b, domain.SideSell, second.Bid, s1.AmountOut, s1.AmountOut.Mul(second.Bid).Mul(f), second)
	} else {
		s2 = convert(s1.AmountOut, a, second, f)
	}
	s3 := convert(s2.AmountOut, b, third, f)

	final := s3.AmountOut
	profit := final.Sub(p.Investment)
	return domain.TriangularCycle{
		Anchor:           anchor,
		Path:             [4]domain.Asset{anchor, a, b, anchor},
		Steps:            [3]domain.CycleStep{s1, s2, s3},
		Investment:       p.Investment,
		FinalAmount:      final,
		Profit:           profit,
		ProfitPercentage: profit.Div(p.Investment).Mul(hundred),
	}
}

// convert trades amount of from through pair. Holding the quote buys the
// base at the ask; holding the base sells it at the bid.
func convert(amount decimal.Decimal, from domain.Asset, pair domain.TradingPair, fee decimal.Decimal) domain.CycleStep {
	if from == pair.Quote {
		return step(from, pair.Base, domain.SideBuy, pair.Ask, amount, amount.Div(pair.Ask).Mul(fee), pair)
	}
	return step(from, pair.Quote, domain.SideSell, pair.Bid, amount, amount.Mul(pair.Bid).Mul(fee), pair)
}

func step(from, to domain.Asset, side domain.Side, rate, in, out decimal.Decimal, pair domain.TradingPair) domain.CycleStep {
	return domain.CycleStep{From: from, To: to, Side: side, Rate: rate, AmountIn: in, AmountOut: out, Pair: pair}
}

func assetStrings(as []domain.Asset) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = string(a)
	}
	return out
}
