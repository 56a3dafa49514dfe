package arbitrage

import (
	"testing"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

func TestDecompose(t *testing.T) {
	reg := DefaultRegistry()
	tests := []struct {
		symbol    string
		base      domain.Asset
		quote     domain.Asset
		wantMatch bool
	}{
		{"BTCUSDT", "BTC", "USDT", true},
		{"ethbtc", "ETH", "BTC", true},
		{"BNBETH", "BNB", "ETH", true},
		{"SOLBUSD", "SOL", "BUSD", true},
		{"XRPBNB", "XRP", "BNB", true},
		{"BTC-USDT", "BTC", "USDT", true},
		{"SOLO/XRP", "SOLO", "XRP", true},
		{" dot_usdc ", "DOT", "USDC", true},
		{"XYZ", "", "", false},
		{"USDT", "", "", false},
		{"USDTUSDT", "", "", false},
		{"-USDT", "", "", false},
		{"BTC-", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			base, quote, ok := reg.Decompose(tt.symbol)
			if ok != tt.wantMatch || base != tt.base || quote != tt.quote {
				t.Errorf("Decompose(%q) = %q, %q, %v; want %q, %q, %v",
					tt.symbol, base, quote, ok, tt.base, tt.quote, tt.wantMatch)
			}
		})
	}
}

func TestDecomposeLongestSuffixWins(t *testing.T) {
	reg, err := NewQuoteAssetRegistry("USD", "BUSD", "SD")
	if err != nil {
		t.Fatalf("NewQuoteAssetRegistry: %v", err)
	}
	base, quote, ok := reg.Decompose("ETHBUSD")
	if !ok || base != "ETH" || quote != "BUSD" {
		t.Errorf("got %q %q %v, want ETH BUSD true", base, quote, ok)
	}
}

func TestNewQuoteAssetRegistryRejectsEmpty(t *testing.T) {
	if _, err := NewQuoteAssetRegistry(" ", ""); err == nil {
		t.Fatal("expected error for empty registry")
	}
}

func TestBuildGraph(t *testing.T) {
	raw := []domain.RawInstrument{
		{Symbol: "BTCUSDT", Bid: dec("30000"), Ask: dec("30010")},
		{Symbol: "ETHBTC", Bid: dec("0.07"), Ask: dec("0.0701")},
		{Symbol: "ETHUSDT", Bid: dec("2110"), Ask: dec("2112")},
		{Symbol: "XYZ", Bid: dec("1"), Ask: dec("1.1")},
		{Symbol: "BTCUSDT", Bid: dec("1"), Ask: dec("2")},
		{Symbol: "DOGEUSDT", Bid: dec("0"), Ask: dec("0.1")},
	}
	g := BuildGraph(raw, DefaultRegistry())

	if g.Len() != 3 {
		t.Fatalf("Len = %d, want 3", g.Len())
	}
	if g.Discarded() != 3 {
		t.Errorf("Discarded = %d, want 3", g.Discarded())
	}

	usdt := g.QuotedIn("USDT")
	if len(usdt) != 2 || usdt[0].Symbol != "BTCUSDT" || usdt[1].Symbol != "ETHUSDT" {
		t.Errorf("QuotedIn(USDT) = %+v", usdt)
	}
	if !usdt[0].Bid.Equal(dec("30000")) {
		t.Errorf("duplicate symbol replaced the first entry: bid %s", usdt[0].Bid)
	}
	if eth := g.BasedOn("ETH"); len(eth) != 2 {
		t.Errorf("BasedOn(ETH) has %d pairs, want 2", len(eth))
	}
	if between := g.Between("ETH", "BTC"); len(between) != 1 || between[0].Symbol != "ETHBTC" {
		t.Errorf("Between(ETH, BTC) = %+v", between)
	}
	for _, p := range g.Pairs() {
		if p.Base == "XYZ" || p.Quote == "XYZ" {
			t.Errorf("unparseable symbol leaked into graph: %+v", p)
		}
	}
}
