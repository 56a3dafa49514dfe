// Package arbitrage is the detection engine: cross-exchange evaluation,
// pair-graph construction, triangular cycle enumeration and ranking, plus
// the scanners and the detector that drive them on a schedule.
package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Scanner fetches one snapshot and turns it into a ranked report.
type Scanner interface {
	Name() string
	Kind() domain.ScanKind
	Scan(ctx context.Context) (domain.ScanReport, error)
}

// CrossSource supplies per-exchange quotes for a set of assets.
type CrossSource interface {
	FetchAssetQuotes(ctx context.Context) ([]domain.AssetQuotes, error)
}

// BookSource supplies a top-of-book snapshot of one exchange.
type BookSource interface {
	Exchange() string
	FetchBook(ctx context.Context) ([]domain.RawInstrument, error)
}

// CrossScannerConfig configures a CrossScanner.
type CrossScannerConfig struct {
	Name        string
	Source      CrossSource
	Investment  decimal.Decimal
	Concurrency int
}

// CrossScanner evaluates every asset of a CrossSource snapshot.
type CrossScanner struct {
	name        string
	source      CrossSource
	investment  decimal.Decimal
	concurrency int
	now         func() time.Time
}

// NewCrossScanner creates a CrossScanner.
func NewCrossScanner(cfg CrossScannerConfig) *CrossScanner {
	name := cfg.Name
	if name == "" {
		name = string(domain.ScanCrossExchange)
	}
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = 8
	}
	return &CrossScanner{
		name:        name,
		source:      cfg.Source,
		investment:  cfg.Investment,
		concurrency: conc,
		now:         time.Now,
	}
}

func (s *CrossScanner) Name() string          { return s.name }
func (s *CrossScanner) Kind() domain.ScanKind { return domain.ScanCrossExchange }

// Scan fetches quotes and evaluates each asset concurrently. Assets without
// usable quotes are counted as discarded.
func (s *CrossScanner) Scan(ctx context.Context) (domain.ScanReport, error) {
	report := domain.ScanReport{Kind: domain.ScanCrossExchange, StartedAt: s.now().UTC()}

	assets, err := s.source.FetchAssetQuotes(ctx)
	if err != nil {
		return report, fmt.Errorf("cross scanner: fetch: %w", err)
	}

	results := make([]*domain.CrossOpportunity, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, aq := range assets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := EvaluateCross(aq.Quotes, s.investment)
			if err != nil {
				if errors.Is(err, domain.ErrInvalidInput) {
					return nil
				}
				return err
			}
			results[i] = &domain.CrossOpportunity{
				AssetID:    aq.AssetID,
				Symbol:     aq.Symbol,
				Name:       aq.Name,
				Investment: s.investment,
				Result:     res,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, fmt.Errorf("cross scanner: evaluate: %w", err)
	}

	detected := s.now().UTC()
	opps := make([]domain.CrossOpportunity, 0, len(results))
	for _, r := range results {
		if r == nil {
			report.Discarded++
			continue
		}
		r.ID = uuid.NewString()
		r.DetectedAt = detected
		opps = append(opps, *r)
	}

	report.Evaluated = len(assets)
	report.Cross = RankCross(opps)
	report.CompletedAt = s.now().UTC()
	return report, nil
}

// TriangularScannerConfig configures a TriangularScanner.
type TriangularScannerConfig struct {
	Name     string
	Source   BookSource
	Registry *QuoteAssetRegistry
	Params   TriangularParams
}

// TriangularScanner searches one exchange's book for profitable cycles.
type TriangularScanner struct {
	name     string
	source   BookSource
	registry *QuoteAssetRegistry
	params   TriangularParams
	now      func() time.Time
}

// NewTriangularScanner creates a TriangularScanner.
func NewTriangularScanner(cfg TriangularScannerConfig) *TriangularScanner {
	name := cfg.Name
	if name == "" {
		name = string(domain.ScanTriangular)
	}
	reg := cfg.Registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &TriangularScanner{
		name:     name,
		source:   cfg.Source,
		registry: reg,
		params:   cfg.Params,
		now:      time.Now,
	}
}

func (s *TriangularScanner) Name() string          { return s.name }
func (s *TriangularScanner) Kind() domain.ScanKind { return domain.ScanTriangular }

// Scan fetches the book, builds the pair graph and enumerates cycles.
func (s *TriangularScanner) Scan(ctx context.Context) (domain.ScanReport, error) {
	report := domain.ScanReport{
		Kind:      domain.ScanTriangular,
		Exchange:  s.source.Exchange(),
		StartedAt: s.now().UTC(),
	}

	raw, err := s.source.FetchBook(ctx)
	if err != nil {
		return report, fmt.Errorf("triangular scanner: fetch %s: %w", report.Exchange, err)
	}

	g := BuildGraph(raw, s.registry)
	cycles, err := Enumerate(g, s.params)
	if err != nil {
		return report, fmt.Errorf("triangular scanner: %w", err)
	}

	detected := s.now().UTC()
	for i := range cycles {
		cycles[i].ID = uuid.NewString()
		cycles[i].Exchange = report.Exchange
		cycles[i].DetectedAt = detected
	}

	report.Evaluated = CountCandidates(g, s.params.Anchors)
	report.Discarded = g.Discarded()
	report.Cycles = RankCycles(cycles)
	report.CompletedAt = s.now().UTC()
	return report, nil
}

var (
	_ Scanner = (*CrossScanner)(nil)
	_ Scanner = (*TriangularScanner)(nil)
)
