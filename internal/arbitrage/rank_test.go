package arbitrage

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

func TestRankIsStableDescending(t *testing.T) {
	type item struct {
		id     string
		metric decimal.Decimal
	}
	items := []item{
		{"a", dec("1")},
		{"b", dec("3")},
		{"c", dec("1")},
		{"d", dec("-2")},
		{"e", dec("3")},
		{"f", dec("1.0")},
	}
	got := Rank(items, func(i item) decimal.Decimal { return i.metric })

	want := []string{"b", "e", "a", "c", "f", "d"}
	for i, id := range want {
		if got[i].id != id {
			t.Fatalf("position %d = %s, want %s (full %v)", i, got[i].id, id, got)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].metric.LessThan(got[i].metric) {
			t.Errorf("order broken at %d", i)
		}
	}
	if items[0].id != "a" || items[1].id != "b" {
		t.Error("Rank mutated its input")
	}
}

func TestRankCrossAndCycles(t *testing.T) {
	cross := []domain.CrossOpportunity{
		{AssetID: "low", Result: domain.CrossArbitrageResult{ProfitAfterFees: dec("-1")}},
		{AssetID: "high", Result: domain.CrossArbitrageResult{ProfitAfterFees: dec("5")}},
	}
	if got := RankCross(cross); got[0].AssetID != "high" {
		t.Errorf("RankCross first = %s, want high", got[0].AssetID)
	}

	cycles := []domain.TriangularCycle{
		{Anchor: "DAI", ProfitPercentage: dec("0.2")},
		{Anchor: "USDT", ProfitPercentage: dec("0.9")},
		{Anchor: "USDC", ProfitPercentage: dec("0.2")},
	}
	got := RankCycles(cycles)
	if got[0].Anchor != "USDT" || got[1].Anchor != "DAI" || got[2].Anchor != "USDC" {
		t.Errorf("RankCycles order = %s %s %s", got[0].Anchor, got[1].Anchor, got[2].Anchor)
	}
}

func TestRankEmpty(t *testing.T) {
	if got := RankCycles(nil); len(got) != 0 {
		t.Errorf("got %d items, want 0", len(got))
	}
}
