package arbitrage

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

type stubCrossSource struct {
	assets []domain.AssetQuotes
	err    error
}

func (s stubCrossSource) FetchAssetQuotes(context.Context) ([]domain.AssetQuotes, error) {
	return s.assets, s.err
}

type stubBookSource struct {
	raw []domain.RawInstrument
	err error
}

func (s stubBookSource) Exchange() string { return "binance" }

func (s stubBookSource) FetchBook(context.Context) ([]domain.RawInstrument, error) {
	return s.raw, s.err
}

func TestCrossScannerRanksAndDiscards(t *testing.T) {
	src := stubCrossSource{assets: []domain.AssetQuotes{
		{AssetID: "flat", Quotes: []domain.Quote{quote("A", "10", "0.1"), quote("B", "10", "0.1")}},
		{AssetID: "empty"},
		{AssetID: "wide", Quotes: []domain.Quote{quote("A", "10", "0.1"), quote("B", "11", "0.1")}},
	}}
	s := NewCrossScanner(CrossScannerConfig{Source: src, Investment: dec("100"), Concurrency: 2})

	report, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Kind != domain.ScanCrossExchange || report.Evaluated != 3 || report.Discarded != 1 {
		t.Errorf("kind=%s evaluated=%d discarded=%d", report.Kind, report.Evaluated, report.Discarded)
	}
	if len(report.Cross) != 2 || report.Cross[0].AssetID != "wide" {
		t.Fatalf("unexpected ranking %+v", report.Cross)
	}
	for _, o := range report.Cross {
		if o.ID == "" || o.DetectedAt.IsZero() {
			t.Errorf("opportunity %s not stamped", o.AssetID)
		}
	}
}

func TestCrossScannerFetchError(t *testing.T) {
	s := NewCrossScanner(CrossScannerConfig{Source: stubCrossSource{err: domain.ErrUpstream}, Investment: dec("100")})
	if _, err := s.Scan(context.Background()); !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestTriangularScanner(t *testing.T) {
	s := NewTriangularScanner(TriangularScannerConfig{
		Source: stubBookSource{raw: profitableBook()},
		Params: params(PricingDirectional, "0.1"),
	})
	report, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Exchange != "binance" || len(report.Cycles) != 1 {
		t.Fatalf("exchange=%s cycles=%d", report.Exchange, len(report.Cycles))
	}
	if report.Evaluated != 2 || report.Discarded != 1 {
		t.Errorf("evaluated=%d discarded=%d, want 2 1", report.Evaluated, report.Discarded)
	}
	c := report.Cycles[0]
	if c.ID == "" || c.Exchange != "binance" {
		t.Errorf("cycle not stamped: %+v", c)
	}
}
