package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/arbitrage"
	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// PolledBook fetches a fresh REST snapshot on every call.
type PolledBook struct {
	fetcher BookFetcher
	policy  FetchPolicy
}

// NewPolledBook wraps fetcher with policy.
func NewPolledBook(fetcher BookFetcher, policy FetchPolicy) *PolledBook {
	return &PolledBook{fetcher: fetcher, policy: policy}
}

func (b *PolledBook) Exchange() string { return b.fetcher.Exchange() }

// FetchBook implements arbitrage.BookSource.
func (b *PolledBook) FetchBook(ctx context.Context) ([]domain.RawInstrument, error) {
	var raw []domain.RawInstrument
	err := b.policy.Do(ctx, b.fetcher.Exchange()+" book", func(ctx context.Context) error {
		var err error
		raw, err = b.fetcher.FetchBook(ctx)
		return err
	})
	return raw, err
}

// Streamer pushes book updates until ctx is cancelled or the connection
// drops.
type Streamer interface {
	Stream(ctx context.Context, onBook func(domain.RawInstrument)) error
}

// StreamerFactory builds a Streamer for the given symbols.
type StreamerFactory func(symbols []string) Streamer

// BookStreamConfig configures a BookStream.
type BookStreamConfig struct {
	Fetcher  BookFetcher
	Policy   FetchPolicy
	Registry *arbitrage.QuoteAssetRegistry
	Dial     StreamerFactory
	// MaxStreams caps the symbols subscribed on the websocket. The others
	// are refreshed by the periodic REST resync.
	MaxStreams int
	Resync     time.Duration
	Reconnect  time.Duration
	Logger     *slog.Logger
}

// BookStream keeps a live snapshot: a REST bootstrap, websocket updates and
// a periodic REST resync.
type BookStream struct {
	cfg    BookStreamConfig
	logger *slog.Logger

	mu       sync.RWMutex
	order    []string
	latest   map[string]domain.RawInstrument
	syncedAt time.Time
}

// NewBookStream creates a BookStream.
func NewBookStream(cfg BookStreamConfig) *BookStream {
	if cfg.Registry == nil {
		cfg.Registry = arbitrage.DefaultRegistry()
	}
	if cfg.MaxStreams <= 0 {
		cfg.MaxStreams = 200
	}
	if cfg.Resync <= 0 {
		cfg.Resync = 5 * time.Minute
	}
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BookStream{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "book_stream"), slog.String("exchange", cfg.Fetcher.Exchange())),
		latest: make(map[string]domain.RawInstrument),
	}
}

func (s *BookStream) Exchange() string { return s.cfg.Fetcher.Exchange() }

// FetchBook implements arbitrage.BookSource from the live snapshot,
// resyncing over REST when it is empty or older than the resync interval.
func (s *BookStream) FetchBook(ctx context.Context) ([]domain.RawInstrument, error) {
	s.mu.RLock()
	stale := len(s.order) == 0 || time.Since(s.syncedAt) > s.cfg.Resync
	s.mu.RUnlock()
	if stale {
		if err := s.resync(ctx); err != nil {
			return nil, err
		}
	}
	return s.Snapshot(), nil
}

// Snapshot returns the current book in bootstrap order.
func (s *BookStream) Snapshot() []domain.RawInstrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RawInstrument, 0, len(s.order))
	for _, sym := range s.order {
		out = append(out, s.latest[sym])
	}
	return out
}

func (s *BookStream) resync(ctx context.Context) error {
	var raw []domain.RawInstrument
	err := s.cfg.Policy.Do(ctx, s.Exchange()+" book resync", func(ctx context.Context) error {
		var err error
		raw, err = s.cfg.Fetcher.FetchBook(ctx)
		return err
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	order := make([]string, 0, len(raw))
	latest := make(map[string]domain.RawInstrument, len(raw))
	for _, in := range raw {
		if _, dup := latest[in.Symbol]; dup {
			continue
		}
		order = append(order, in.Symbol)
		latest[in.Symbol] = in
	}
	s.order, s.latest, s.syncedAt = order, latest, time.Now()
	return nil
}

func (s *BookStream) apply(in domain.RawInstrument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, known := s.latest[in.Symbol]; !known {
		return
	}
	s.latest[in.Symbol] = in
}

// streamSymbols picks the first MaxStreams symbols that decompose.
func (s *BookStream) streamSymbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, s.cfg.MaxStreams)
	for _, sym := range s.order {
		if len(out) == s.cfg.MaxStreams {
			break
		}
		if _, _, ok := s.cfg.Registry.Decompose(sym); ok {
			out = append(out, sym)
		}
	}
	return out
}

// Run bootstraps the snapshot and keeps the websocket connected until ctx
// is cancelled. A failed bootstrap or a dropped connection is retried after
// the reconnect delay, and every dial picks the symbol set again so pairs
// listed since the last resync are streamed too.
func (s *BookStream) Run(ctx context.Context) error {
	for {
		err := s.resync(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("book bootstrap failed, retrying", slog.String("error", err.Error()))
		if err := s.wait(ctx); err != nil {
			return err
		}
	}
	s.logger.Info("book stream started", slog.Int("symbols", len(s.Snapshot())))

	for {
		symbols := s.streamSymbols()
		s.logger.Debug("book stream dialing", slog.Int("streamed", len(symbols)))
		err := s.cfg.Dial(symbols).Stream(ctx, s.apply)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("book stream disconnected, reconnecting", slog.String("error", errString(err)))
		if err := s.wait(ctx); err != nil {
			return err
		}
	}
}

func (s *BookStream) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.Reconnect):
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return "closed"
	}
	return err.Error()
}

var (
	_ arbitrage.BookSource = (*PolledBook)(nil)
	_ arbitrage.BookSource = (*BookStream)(nil)
)
