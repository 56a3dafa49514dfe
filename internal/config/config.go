// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/arbitrage"
	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCAN_* environment variables.
type Config struct {
	Engine     EngineConfig     `toml:"engine"`
	Cross      CrossConfig      `toml:"cross"`
	Triangular TriangularConfig `toml:"triangular"`
	Exchanges  []ExchangeFee    `toml:"exchanges"`
	CoinGecko  CoinGeckoConfig  `toml:"coingecko"`
	Binance    BinanceConfig    `toml:"binance"`
	KuCoin     VenueConfig      `toml:"kucoin"`
	Huobi      VenueConfig      `toml:"huobi"`
	Fetch      FetchConfig      `toml:"fetch"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// EngineConfig holds the detection engine parameters.
type EngineConfig struct {
	InvestmentAmount  float64  `toml:"investment_amount"`
	TradingFeePercent float64  `toml:"trading_fee_percent"`
	AnchorAssets      []string `toml:"anchor_assets"`
	// QuoteAssets overrides the symbol decomposition registry. Order
	// matters: the longest matching suffix wins, then the earliest entry.
	QuoteAssets []string `toml:"quote_assets"`
	// LegPricing is "directional" or "uniform_bid".
	LegPricing string `toml:"leg_pricing"`
}

// CrossConfig holds the cross-exchange scanner parameters.
type CrossConfig struct {
	Interval duration `toml:"interval"`
	// Source is "simulated" (CoinGecko prices with synthetic per-exchange
	// jitter) or "live" (mid prices of real books).
	Source        string   `toml:"source"`
	TopN          int      `toml:"top_n"`
	Search        string   `toml:"search"`
	JitterPercent float64  `toml:"jitter_percent"`
	Seed          uint64   `toml:"seed"`
	Concurrency   int      `toml:"concurrency"`
	QuoteAsset    string   `toml:"quote_asset"`
	LiveExchanges []string `toml:"live_exchanges"`
}

// TriangularConfig holds the triangular scanner parameters.
type TriangularConfig struct {
	Interval  duration `toml:"interval"`
	Exchanges []string `toml:"exchanges"`
	// Source is "poll" (REST snapshot per scan) or "stream" (Binance
	// websocket with periodic REST resync).
	Source     string   `toml:"source"`
	MaxStreams int      `toml:"max_streams"`
	Resync     duration `toml:"resync"`
}

// ExchangeFee is one row of the exchange fee table.
type ExchangeFee struct {
	Name       string  `toml:"name"`
	FeePercent float64 `toml:"fee_percent"`
}

// CoinGeckoConfig holds the market-data API settings.
type CoinGeckoConfig struct {
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	VsCurrency string `toml:"vs_currency"`
	// RateLimit calls per RateWindow, shared across replicas through Redis.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// VenueConfig holds an exchange REST endpoint.
type VenueConfig struct {
	BaseURL string `toml:"base_url"`
}

// BinanceConfig holds the Binance REST and websocket endpoints.
type BinanceConfig struct {
	BaseURL   string `toml:"base_url"`
	StreamURL string `toml:"stream_url"`
}

// FetchConfig holds the upstream retry policy.
type FetchConfig struct {
	Timeout    duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
	Backoff    duration `toml:"backoff"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	SnapshotTTL  duration `toml:"snapshot_ttl"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds the cold-storage archiver schedule.
type ArchiveConfig struct {
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials and filters.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	MinProfitPercent  float64  `toml:"min_profit_percent"`
	MaxItems          int      `toml:"max_items"`
	// DedupTTL silences repeat alerts for an unchanged opportunity.
	DedupTTL duration `toml:"dedup_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			InvestmentAmount:  100,
			TradingFeePercent: 0.1,
			AnchorAssets:      []string{"USDT", "USDC", "BUSD", "DAI"},
			LegPricing:        "directional",
		},
		Cross: CrossConfig{
			Interval:      duration{30 * time.Second},
			Source:        "simulated",
			TopN:          20,
			JitterPercent: 1.5,
			Concurrency:   8,
			QuoteAsset:    "USDT",
			LiveExchanges: []string{"binance", "kucoin", "huobi"},
		},
		Triangular: TriangularConfig{
			Interval:   duration{10 * time.Second},
			Exchanges:  []string{"binance"},
			Source:     "poll",
			MaxStreams: 200,
			Resync:     duration{5 * time.Minute},
		},
		Exchanges: []ExchangeFee{
			{"Binance", 0.1},
			{"Coinbase", 0.6},
			{"Kraken", 0.26},
			{"KuCoin", 0.1},
			{"Huobi", 0.2},
			{"Bitfinex", 0.2},
			{"FTX", 0.07},
			{"Gemini", 0.35},
			{"Gate.io", 0.2},
			{"Bybit", 0.1},
		},
		CoinGecko: CoinGeckoConfig{
			VsCurrency: "usd",
			RateLimit:  25,
			RateWindow: duration{time.Minute},
		},
		Fetch: FetchConfig{
			Timeout:    duration{10 * time.Second},
			MaxRetries: 3,
			Backoff:    duration{time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			SnapshotTTL:  duration{10 * time.Minute},
			StreamMaxLen: 10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbscanner-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events:           []string{"cross_exchange", "triangular"},
			MinProfitPercent: 0.5,
			MaxItems:         5,
			DedupTTL:         duration{5 * time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Modes enumerates the accepted values for Config.Mode.
var Modes = []string{"cross", "triangular", "full", "monitor"}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// streamVenues are the exchanges with a websocket book stream.
var streamVenues = map[string]bool{"binance": true}

// concatVenues list symbols without a separator ("ETHBTC"), so only
// registered quote assets can be split off them.
var concatVenues = map[string]bool{"binance": true, "huobi": true}

// bookVenues are the exchanges with a REST book snapshot.
var bookVenues = map[string]bool{"binance": true, "kucoin": true, "huobi": true}

// RunsCross reports whether the mode runs the cross-exchange detector.
func (c *Config) RunsCross() bool { return c.Mode == "cross" || c.Mode == "full" }

// RunsTriangular reports whether the mode runs triangular detectors.
func (c *Config) RunsTriangular() bool { return c.Mode == "triangular" || c.Mode == "full" }

// EngineDefaults converts the engine section to a domain.EngineConfig.
func (c *Config) EngineDefaults() domain.EngineConfig {
	return domain.EngineConfig{
		InvestmentAmount:  decimal.NewFromFloat(c.Engine.InvestmentAmount),
		TradingFeePercent: decimal.NewFromFloat(c.Engine.TradingFeePercent),
		AnchorAssets:      domain.Assets(c.Engine.AnchorAssets...),
		QuoteAssets:       domain.Assets(c.Engine.QuoteAssets...),
		LegPricing:        c.Engine.LegPricing,
	}
}

// FeeTable converts the exchanges section to domain values.
func (c *Config) FeeTable() []domain.Exchange {
	out := make([]domain.Exchange, len(c.Exchanges))
	for i, e := range c.Exchanges {
		out[i] = domain.Exchange{Name: e.Name, FeePercent: decimal.NewFromFloat(e.FeePercent)}
	}
	return out
}

// FeeFor returns the fee table entry matching exchange, ignoring case, or
// the engine's trading fee when the table has none.
func (c *Config) FeeFor(exchange string) decimal.Decimal {
	for _, e := range c.Exchanges {
		if strings.EqualFold(e.Name, exchange) {
			return decimal.NewFromFloat(e.FeePercent)
		}
	}
	return decimal.NewFromFloat(c.Engine.TradingFeePercent)
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !slices.Contains(Modes, strings.ToLower(c.Mode)) {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: %s)", c.Mode, strings.Join(Modes, ", ")))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.InvestmentAmount < 1 {
		errs = append(errs, fmt.Sprintf("engine: investment_amount must be >= 1, got %v", c.Engine.InvestmentAmount))
	}
	if c.Engine.TradingFeePercent < 0 || c.Engine.TradingFeePercent >= 100 {
		errs = append(errs, fmt.Sprintf("engine: trading_fee_percent must be in [0,100), got %v", c.Engine.TradingFeePercent))
	}
	if len(domain.Assets(c.Engine.AnchorAssets...)) == 0 {
		errs = append(errs, "engine: anchor_assets must not be empty")
	}
	if p := c.Engine.LegPricing; p != "" && p != "directional" && p != "uniform_bid" {
		errs = append(errs, fmt.Sprintf("engine: leg_pricing must be directional or uniform_bid, got %q", p))
	}

	// Cross
	if c.RunsCross() {
		if c.Cross.Interval.Duration <= 0 {
			errs = append(errs, "cross: interval must be > 0")
		}
		switch c.Cross.Source {
		case "simulated":
			if c.Cross.JitterPercent < 0 || c.Cross.JitterPercent >= 100 {
				errs = append(errs, "cross: jitter_percent must be in [0,100)")
			}
			if len(c.Exchanges) == 0 {
				errs = append(errs, "exchanges: the fee table must not be empty for the simulated source")
			}
		case "live":
			if len(c.Cross.LiveExchanges) < 2 {
				errs = append(errs, "cross: live_exchanges needs at least two exchanges")
			}
			for _, ex := range c.Cross.LiveExchanges {
				if !bookVenues[strings.ToLower(ex)] {
					errs = append(errs, fmt.Sprintf("cross: unsupported live exchange %q", ex))
				}
			}
		default:
			errs = append(errs, fmt.Sprintf("cross: source must be simulated or live, got %q", c.Cross.Source))
		}
		if c.Cross.TopN < 1 || c.Cross.TopN > 250 {
			errs = append(errs, fmt.Sprintf("cross: top_n must be 1-250, got %d", c.Cross.TopN))
		}
	}

	// Triangular
	if c.RunsTriangular() {
		if c.Triangular.Interval.Duration <= 0 {
			errs = append(errs, "triangular: interval must be > 0")
		}
		if len(c.Triangular.Exchanges) == 0 {
			errs = append(errs, "triangular: exchanges must not be empty")
		}
		for _, ex := range c.Triangular.Exchanges {
			ex = strings.ToLower(ex)
			if !bookVenues[ex] {
				errs = append(errs, fmt.Sprintf("triangular: unsupported exchange %q", ex))
			} else if c.Triangular.Source == "stream" && !streamVenues[ex] {
				errs = append(errs, fmt.Sprintf("triangular: exchange %q has no book stream", ex))
			}
		}
		errs = append(errs, c.unroutableAnchors()...)
		if c.Triangular.Source != "poll" && c.Triangular.Source != "stream" {
			errs = append(errs, fmt.Sprintf("triangular: source must be poll or stream, got %q", c.Triangular.Source))
		}
	}

	for _, e := range c.Exchanges {
		if e.Name == "" {
			errs = append(errs, "exchanges: name must not be empty")
		}
		if e.FeePercent < 0 || e.FeePercent >= 100 {
			errs = append(errs, fmt.Sprintf("exchanges: %s fee_percent must be in [0,100)", e.Name))
		}
	}

	// Fetch
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, "fetch: max_retries must be >= 0")
	}
	if c.Fetch.Timeout.Duration <= 0 {
		errs = append(errs, "fetch: timeout must be > 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be within [0, pool_max_conns]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 and archive
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archiving requires postgres.enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if len(strings.Fields(c.Archive.Cron)) != 5 {
			errs = append(errs, fmt.Sprintf("archive: cron must have 5 fields, got %q", c.Archive.Cron))
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	} else if c.Mode == "monitor" {
		errs = append(errs, "server: monitor mode needs server.enabled")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, ev := range c.Notify.Events {
		if _, ok := domain.ParseScanKind(ev); !ok {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", ev))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// unroutableAnchors reports anchors that no concatenated-symbol venue can
// quote in, as they would never start a cycle there.
func (c *Config) unroutableAnchors() []string {
	var venues []string
	for _, ex := range c.Triangular.Exchanges {
		if ex = strings.ToLower(strings.TrimSpace(ex)); concatVenues[ex] {
			venues = append(venues, ex)
		}
	}
	if len(venues) == 0 {
		return nil
	}

	quotes := arbitrage.DefaultQuoteAssets()
	if q := domain.Assets(c.Engine.QuoteAssets...); len(q) > 0 {
		quotes = q
	}
	var errs []string
	for _, a := range domain.Assets(c.Engine.AnchorAssets...) {
		if !slices.Contains(quotes, a) {
			errs = append(errs, fmt.Sprintf("engine: anchor %s is not a quote asset, so %s symbols never split on it (add it to quote_assets)", a, strings.Join(venues, ", ")))
		}
	}
	return errs
}
