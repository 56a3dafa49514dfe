package arbitrage

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Rank returns a copy of items sorted by metric, highest first. Equal
// metrics keep their input order.
func Rank[T any](items []T, metric func(T) decimal.Decimal) []T {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b T) int {
		return metric(b).Cmp(metric(a))
	})
	return out
}

// RankCross orders cross-exchange opportunities by profit after fees.
func RankCross(opps []domain.CrossOpportunity) []domain.CrossOpportunity {
	return Rank(opps, func(o domain.CrossOpportunity) decimal.Decimal { return o.Result.ProfitAfterFees })
}

// RankCycles orders triangular cycles by profit percentage.
func RankCycles(cycles []domain.TriangularCycle) []domain.TriangularCycle {
	return Rank(cycles, func(c domain.TriangularCycle) decimal.Decimal { return c.ProfitPercentage })
}
