package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbscanner/internal/arbitrage"
	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/platform/coingecko"
)

// CoinLister lists coins by market capitalisation.
type CoinLister interface {
	Markets(ctx context.Context, q coingecko.MarketsQuery) ([]domain.Coin, error)
}

// BookFetcher returns a top-of-book snapshot of one exchange.
type BookFetcher interface {
	Exchange() string
	FetchBook(ctx context.Context) ([]domain.RawInstrument, error)
}

// SimulatedSourceConfig configures a SimulatedSource.
type SimulatedSourceConfig struct {
	Coins     CoinLister
	Generator QuoteGenerator
	Policy    FetchPolicy
	Query     coingecko.MarketsQuery
	Search    string
}

// SimulatedSource lists the top coins and synthesizes per-exchange quotes
// around each coin's market price.
type SimulatedSource struct {
	coins  CoinLister
	gen    QuoteGenerator
	policy FetchPolicy
	query  coingecko.MarketsQuery
	search string
}

// NewSimulatedSource creates a SimulatedSource.
func NewSimulatedSource(cfg SimulatedSourceConfig) *SimulatedSource {
	return &SimulatedSource{
		coins:  cfg.Coins,
		gen:    cfg.Generator,
		policy: cfg.Policy,
		query:  cfg.Query,
		search: cfg.Search,
	}
}

// FetchAssetQuotes implements arbitrage.CrossSource. Coins without a
// positive market price are returned without quotes.
func (s *SimulatedSource) FetchAssetQuotes(ctx context.Context) ([]domain.AssetQuotes, error) {
	var coins []domain.Coin
	err := s.policy.Do(ctx, "coingecko markets", func(ctx context.Context) error {
		var err error
		coins, err = s.coins.Markets(ctx, s.query)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.AssetQuotes, 0, len(coins))
	for _, c := range coins {
		if !domain.MatchesSearch(c.Name, c.Symbol, s.search) {
			continue
		}
		aq := domain.AssetQuotes{AssetID: c.ID, Symbol: strings.ToUpper(c.Symbol), Name: c.Name}
		if c.CurrentPrice.IsPositive() {
			aq.Quotes = s.gen.Generate(c.CurrentPrice)
		}
		out = append(out, aq)
	}
	return out, nil
}

// LiveSourceConfig configures a LiveSource.
type LiveSourceConfig struct {
	Books    []BookFetcher
	Registry *arbitrage.QuoteAssetRegistry
	// Fees maps exchange name to trading fee percent.
	Fees map[string]decimal.Decimal
	// QuoteAsset is the common asset prices are compared in, e.g. USDT.
	QuoteAsset domain.Asset
	// Coins, when set, restricts and names the assets. Otherwise every base
	// listed on at least two exchanges is returned.
	Coins  CoinLister
	Query  coingecko.MarketsQuery
	Search string
	Policy FetchPolicy
	Logger *slog.Logger
}

// LiveSource compares mid prices of <asset><quote> books across exchanges.
type LiveSource struct {
	cfg LiveSourceConfig
	now func() time.Time
}

// NewLiveSource creates a LiveSource.
func NewLiveSource(cfg LiveSourceConfig) *LiveSource {
	if cfg.Registry == nil {
		cfg.Registry = arbitrage.DefaultRegistry()
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With(slog.String("component", "live_cross_source"))
	return &LiveSource{cfg: cfg, now: time.Now}
}

// FetchAssetQuotes implements arbitrage.CrossSource. An exchange that
// cannot be reached is left out; the call fails only when all of them are.
func (s *LiveSource) FetchAssetQuotes(ctx context.Context) ([]domain.AssetQuotes, error) {
	books := make([][]domain.RawInstrument, len(s.cfg.Books))
	var (
		mu     sync.Mutex
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range s.cfg.Books {
		g.Go(func() error {
			var raw []domain.RawInstrument
			err := s.cfg.Policy.Do(gctx, b.Exchange()+" book", func(ctx context.Context) error {
				var err error
				raw, err = b.FetchBook(ctx)
				return err
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.cfg.Logger.Warn("exchange left out of cross scan",
					slog.String("exchange", b.Exchange()),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			books[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(s.cfg.Books) > 0 && failed == len(s.cfg.Books) {
		return nil, fmt.Errorf("feed: live cross source: %w: every exchange failed", domain.ErrUpstream)
	}

	observed := s.now().UTC()
	byAsset := make(map[domain.Asset][]domain.Quote)
	for i, raw := range books {
		exchange := s.cfg.Books[i].Exchange()
		seen := make(map[domain.Asset]bool)
		for _, in := range raw {
			base, quote, ok := s.cfg.Registry.Decompose(in.Symbol)
			if !ok || quote != s.cfg.QuoteAsset || seen[base] {
				continue
			}
			if !in.Bid.IsPositive() || !in.Ask.IsPositive() {
				continue
			}
			seen[base] = true
			byAsset[base] = append(byAsset[base], domain.Quote{
				Exchange:          exchange,
				Price:             in.Bid.Add(in.Ask).Div(decimal.NewFromInt(2)),
				TradingFeePercent: s.cfg.Fees[exchange],
				ObservedAt:        observed,
			})
		}
	}

	if s.cfg.Coins == nil {
		return s.listedAssets(byAsset), nil
	}

	var coins []domain.Coin
	err := s.cfg.Policy.Do(ctx, "coingecko markets", func(ctx context.Context) error {
		var err error
		coins, err = s.cfg.Coins.Markets(ctx, s.cfg.Query)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.AssetQuotes, 0, len(coins))
	for _, c := range coins {
		if !domain.MatchesSearch(c.Name, c.Symbol, s.cfg.Search) {
			continue
		}
		sym := domain.NewAsset(c.Symbol)
		out = append(out, domain.AssetQuotes{AssetID: c.ID, Symbol: string(sym), Name: c.Name, Quotes: byAsset[sym]})
	}
	return out, nil
}

func (s *LiveSource) listedAssets(byAsset map[domain.Asset][]domain.Quote) []domain.AssetQuotes {
	bases := make([]string, 0, len(byAsset))
	for a, qs := range byAsset {
		if len(qs) >= 2 && domain.MatchesSearch("", string(a), s.cfg.Search) {
			bases = append(bases, string(a))
		}
	}
	sort.Strings(bases)

	out := make([]domain.AssetQuotes, 0, len(bases))
	for _, b := range bases {
		out = append(out, domain.AssetQuotes{
			AssetID: strings.ToLower(b),
			Symbol:  b,
			Name:    b,
			Quotes:  byAsset[domain.Asset(b)],
		})
	}
	return out
}
