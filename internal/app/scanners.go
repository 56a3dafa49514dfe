package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/arbitrage"
	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/feed"
	"github.com/alanyoungcy/arbscanner/internal/pipeline"
	"github.com/alanyoungcy/arbscanner/internal/platform/binance"
	"github.com/alanyoungcy/arbscanner/internal/platform/coingecko"
	"github.com/alanyoungcy/arbscanner/internal/platform/huobi"
	"github.com/alanyoungcy/arbscanner/internal/platform/kucoin"
)

// streamFunc adapts a function to feed.Streamer.
type streamFunc func(ctx context.Context, onBook func(domain.RawInstrument)) error

func (f streamFunc) Stream(ctx context.Context, onBook func(domain.RawInstrument)) error {
	return f(ctx, onBook)
}

// binanceDialer builds book streams against the configured endpoint.
func binanceDialer(streamURL string) feed.StreamerFactory {
	return func(symbols []string) feed.Streamer {
		c := binance.NewStreamClient(streamURL, symbols)
		return streamFunc(func(ctx context.Context, onBook func(domain.RawInstrument)) error {
			return c.Stream(ctx, onBook)
		})
	}
}

// quoteRegistry returns the symbol registry for the configured quote
// assets, or the default one.
func (a *App) quoteRegistry() (*arbitrage.QuoteAssetRegistry, error) {
	if len(a.cfg.Engine.QuoteAssets) == 0 {
		return arbitrage.DefaultRegistry(), nil
	}
	return arbitrage.NewQuoteAssetRegistry(a.cfg.Engine.QuoteAssets...)
}

// fetchPolicy is the retry policy shared by the exchange REST calls.
func (a *App) fetchPolicy() feed.FetchPolicy {
	return feed.FetchPolicy{
		MaxRetries: a.cfg.Fetch.MaxRetries,
		Backoff:    a.cfg.Fetch.Backoff.Duration,
		Logger:     a.logger,
	}
}

// coinGeckoPolicy adds the shared CoinGecko rate limit to fetchPolicy.
func (a *App) coinGeckoPolicy(deps *Dependencies) feed.FetchPolicy {
	p := a.fetchPolicy()
	p.Limiter = deps.RateLimiter
	p.LimitKey = "coingecko"
	p.Limit = a.cfg.CoinGecko.RateLimit
	p.Window = a.cfg.CoinGecko.RateWindow.Duration
	return p
}

// bookFetcher returns the REST book client of exchange.
func (a *App) bookFetcher(exchange string) (feed.BookFetcher, error) {
	timeout := a.cfg.Fetch.Timeout.Duration
	switch strings.ToLower(strings.TrimSpace(exchange)) {
	case "binance":
		return binance.NewClient(a.cfg.Binance.BaseURL, timeout), nil
	case "kucoin":
		return kucoin.NewClient(a.cfg.KuCoin.BaseURL, timeout), nil
	case "huobi":
		return huobi.NewClient(a.cfg.Huobi.BaseURL, timeout), nil
	default:
		return nil, fmt.Errorf("app: exchange %q: %w", exchange, domain.ErrInvalidInput)
	}
}

// crossSource builds the simulated or live quote source.
func (a *App) crossSource(deps *Dependencies, registry *arbitrage.QuoteAssetRegistry) (arbitrage.CrossSource, error) {
	coins := coingecko.NewClient(a.cfg.CoinGecko.BaseURL, a.cfg.CoinGecko.APIKey, a.cfg.Fetch.Timeout.Duration)
	query := coingecko.MarketsQuery{
		VsCurrency: a.cfg.CoinGecko.VsCurrency,
		PerPage:    a.cfg.Cross.TopN,
		Page:       1,
	}

	switch a.cfg.Cross.Source {
	case "simulated":
		return feed.NewSimulatedSource(feed.SimulatedSourceConfig{
			Coins: coins,
			Generator: feed.NewSimulator(feed.SimulatorConfig{
				Exchanges:     a.cfg.FeeTable(),
				JitterPercent: a.cfg.Cross.JitterPercent,
				Seed:          a.cfg.Cross.Seed,
			}),
			Policy: a.coinGeckoPolicy(deps),
			Query:  query,
			Search: a.cfg.Cross.Search,
		}), nil
	case "live":
		books := make([]feed.BookFetcher, 0, len(a.cfg.Cross.LiveExchanges))
		fees := make(map[string]decimal.Decimal, len(a.cfg.Cross.LiveExchanges))
		for _, name := range a.cfg.Cross.LiveExchanges {
			f, err := a.bookFetcher(name)
			if err != nil {
				return nil, err
			}
			books = append(books, f)
			fees[f.Exchange()] = a.cfg.FeeFor(name)
		}
		return feed.NewLiveSource(feed.LiveSourceConfig{
			Books:      books,
			Registry:   registry,
			Fees:       fees,
			QuoteAsset: domain.NewAsset(a.cfg.Cross.QuoteAsset),
			Coins:      coins,
			Query:      query,
			Search:     a.cfg.Cross.Search,
			Policy:     a.fetchPolicy(),
			Logger:     a.logger,
		}), nil
	default:
		return nil, fmt.Errorf("app: cross source %q: %w", a.cfg.Cross.Source, domain.ErrInvalidInput)
	}
}

// crossDetector builds the cross-exchange detector.
func (a *App) crossDetector(deps *Dependencies, registry *arbitrage.QuoteAssetRegistry) (*arbitrage.Detector, error) {
	source, err := a.crossSource(deps, registry)
	if err != nil {
		return nil, err
	}
	amount := a.cfg.EngineDefaults().InvestmentAmount
	scanner := arbitrage.NewCrossScanner(arbitrage.CrossScannerConfig{
		Name:        string(domain.ScanCrossExchange),
		Source:      source,
		Investment:  amount,
		Concurrency: a.cfg.Cross.Concurrency,
	})
	return arbitrage.NewDetector(arbitrage.DetectorConfig{
		Scanner:  scanner,
		Recorder: deps.Scans,
		Locks:    deps.Locks,
		Interval: a.cfg.Cross.Interval.Duration,
		Logger:   a.logger,
	}), nil
}

// triangularDetectors builds one detector per configured exchange, plus the
// book stream tasks feeding them in stream mode.
func (a *App) triangularDetectors(deps *Dependencies, registry *arbitrage.QuoteAssetRegistry) ([]*arbitrage.Detector, []pipeline.Task, error) {
	params, err := arbitrage.ParamsFromConfig(a.cfg.EngineDefaults())
	if err != nil {
		return nil, nil, fmt.Errorf("app: triangular params: %w", err)
	}

	var (
		dets  []*arbitrage.Detector
		tasks []pipeline.Task
	)
	for _, name := range a.cfg.Triangular.Exchanges {
		fetcher, err := a.bookFetcher(name)
		if err != nil {
			return nil, nil, err
		}

		var source arbitrage.BookSource
		if a.cfg.Triangular.Source == "stream" {
			stream := feed.NewBookStream(feed.BookStreamConfig{
				Fetcher:    fetcher,
				Policy:     a.fetchPolicy(),
				Registry:   registry,
				Dial:       binanceDialer(a.cfg.Binance.StreamURL),
				MaxStreams: a.cfg.Triangular.MaxStreams,
				Resync:     a.cfg.Triangular.Resync.Duration,
				Logger:     a.logger,
			})
			tasks = append(tasks, pipeline.Task{Name: "book_stream:" + fetcher.Exchange(), Runner: stream})
			source = stream
		} else {
			source = feed.NewPolledBook(fetcher, a.fetchPolicy())
		}

		scanner := arbitrage.NewTriangularScanner(arbitrage.TriangularScannerConfig{
			Name:     string(domain.ScanTriangular) + ":" + fetcher.Exchange(),
			Source:   source,
			Registry: registry,
			Params:   params,
		})
		dets = append(dets, arbitrage.NewDetector(arbitrage.DetectorConfig{
			Scanner:  scanner,
			Recorder: deps.Scans,
			Locks:    deps.Locks,
			Interval: a.cfg.Triangular.Interval.Duration,
			Logger:   a.logger,
		}))
		a.logger.Info("triangular detector configured",
			slog.String("exchange", fetcher.Exchange()),
			slog.String("source", a.cfg.Triangular.Source),
		)
	}
	return dets, tasks, nil
}
