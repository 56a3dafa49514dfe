package arbitrage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

var (
	hundred    = decimal.NewFromInt(100)
	minimumBet = decimal.NewFromInt(1)
)

// ValidateQuote returns a descriptive error when q cannot take part in an
// evaluation.
func ValidateQuote(q domain.Quote) error {
	switch {
	case q.Exchange == "":
		return fmt.Errorf("%w: quote without exchange", domain.ErrInvalidInput)
	case !q.Price.IsPositive():
		return fmt.Errorf("%w: %s price %s is not positive", domain.ErrInvalidInput, q.Exchange, q.Price)
	case q.TradingFeePercent.IsNegative() || q.TradingFeePercent.GreaterThanOrEqual(hundred):
		return fmt.Errorf("%w: %s fee %s%% outside [0,100)", domain.ErrInvalidInput, q.Exchange, q.TradingFeePercent)
	case q.Volume24h.IsNegative():
		return fmt.Errorf("%w: %s volume %s is negative", domain.ErrInvalidInput, q.Exchange, q.Volume24h)
	}
	return nil
}

func validateInvestment(investment decimal.Decimal) error {
	if investment.LessThan(minimumBet) {
		return fmt.Errorf("%w: investment %s is below %s", domain.ErrInvalidInput, investment, minimumBet)
	}
	return nil
}

// EvaluateCross finds the cheapest and the most expensive quote and computes
// the fee-adjusted profit of buying investment worth at the former and
// selling at the latter. Unusable quotes are skipped. Ties keep the quote
// seen first.
func EvaluateCross(quotes []domain.Quote, investment decimal.Decimal) (domain.CrossArbitrageResult, error) {
	if err := validateInvestment(investment); err != nil {
		return domain.CrossArbitrageResult{}, fmt.Errorf("arbitrage: evaluate cross: %w", err)
	}

	var (
		res   domain.CrossArbitrageResult
		found bool
	)
	for _, q := range quotes {
		if ValidateQuote(q) != nil {
			continue
		}
		res.Usable++
		if !found {
			res.Highest, res.Lowest = q, q
			found = true
			continue
		}
		if q.Price.GreaterThan(res.Highest.Price) {
			res.Highest = q
		}
		if q.Price.LessThan(res.Lowest.Price) {
			res.Lowest = q
		}
	}

	if !found {
		return domain.CrossArbitrageResult{}, fmt.Errorf("arbitrage: evaluate cross: %w: no usable quotes among %d",
			domain.ErrInvalidInput, len(quotes))
	}
	if res.Usable < 2 {
		res.Degenerate = true
		return res, nil
	}

	hi, lo := res.Highest, res.Lowest
	spread := hi.Price.Sub(lo.Price)

	res.PotentialProfit = investment.Mul(spread).Div(lo.Price)
	res.ProfitPercentage = spread.Div(lo.Price).Mul(hundred)
	res.BuyFee = investment.Mul(lo.TradingFeePercent).Div(hundred)
	res.SellFee = investment.Add(res.PotentialProfit).Mul(hi.TradingFeePercent).Div(hundred)
	res.ProfitAfterFees = res.PotentialProfit.Sub(res.BuyFee).Sub(res.SellFee)
	return res, nil
}
