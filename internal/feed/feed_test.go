package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/platform/coingecko"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testExchanges() []domain.Exchange {
	return []domain.Exchange{
		{Name: "Binance", FeePercent: dec("0.1")},
		{Name: "Kraken", FeePercent: dec("0.26")},
		{Name: "Gemini", FeePercent: dec("0.35")},
	}
}

func TestSimulatorDeterministicWithSeed(t *testing.T) {
	fixed := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	a := NewSimulator(SimulatorConfig{Exchanges: testExchanges(), JitterPercent: 1.5, Seed: 42, Now: fixed})
	b := NewSimulator(SimulatorConfig{Exchanges: testExchanges(), JitterPercent: 1.5, Seed: 42, Now: fixed})

	qa := a.Generate(dec("100"))
	qb := b.Generate(dec("100"))
	if len(qa) != 3 || len(qb) != 3 {
		t.Fatalf("len = %d %d, want 3", len(qa), len(qb))
	}
	for i := range qa {
		if !qa[i].Price.Equal(qb[i].Price) || !qa[i].Volume24h.Equal(qb[i].Volume24h) {
			t.Errorf("quote %d differs: %v vs %v", i, qa[i], qb[i])
		}
	}
}

func TestSimulatorBounds(t *testing.T) {
	s := NewSimulator(SimulatorConfig{Exchanges: testExchanges(), JitterPercent: 1.5, MaxVolume: 1000, Seed: 7})
	lo, hi := dec("98.5"), dec("101.5")
	for range 200 {
		for i, q := range s.Generate(dec("100")) {
			if q.Price.LessThan(lo) || q.Price.GreaterThan(hi) {
				t.Fatalf("price %s outside jitter band", q.Price)
			}
			if q.Volume24h.IsNegative() || q.Volume24h.GreaterThan(dec("1000")) {
				t.Fatalf("volume %s out of range", q.Volume24h)
			}
			if q.Exchange != testExchanges()[i].Name || !q.TradingFeePercent.Equal(testExchanges()[i].FeePercent) {
				t.Fatalf("quote %d not in table order: %+v", i, q)
			}
		}
	}
}

type fakeLimiter struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (f *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (f *fakeLimiter) Wait(context.Context, string, int, time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waits++
	return f.err
}

func TestFetchPolicy(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   error
	}{
		{name: "first try", failures: 0, wantCalls: 1},
		{name: "recovers", failures: 2, err: boom, wantCalls: 3},
		{name: "exhausted", failures: 10, err: boom, wantCalls: 4, wantErr: domain.ErrUpstream},
		{name: "not found is final", failures: 10, err: domain.ErrNotFound, wantCalls: 1, wantErr: domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lim := &fakeLimiter{}
			p := FetchPolicy{MaxRetries: 3, Backoff: time.Millisecond, Limiter: lim, LimitKey: "k", Limit: 10, Window: time.Second}
			calls := 0
			err := p.Do(context.Background(), "op", func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if lim.waits != calls {
				t.Errorf("limiter waits = %d, want %d", lim.waits, calls)
			}
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFetchPolicyLimiterError(t *testing.T) {
	p := FetchPolicy{Limiter: &fakeLimiter{err: domain.ErrRateLimited}, Limit: 1, Window: time.Second}
	err := p.Do(context.Background(), "op", func(context.Context) error {
		t.Fatal("fn called despite limiter error")
		return nil
	})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

type stubCoins struct {
	coins []domain.Coin
	err   error
	calls int
}

func (s *stubCoins) Markets(context.Context, coingecko.MarketsQuery) ([]domain.Coin, error) {
	s.calls++
	return s.coins, s.err
}

type stubBook struct {
	name string
	raw  []domain.RawInstrument
	err  error
	// failFirst calls answer domain.ErrUpstream before raw is served.
	failFirst int

	mu    sync.Mutex
	calls int
}

func (s *stubBook) Exchange() string { return s.name }

func (s *stubBook) FetchBook(context.Context) ([]domain.RawInstrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failFirst {
		return nil, domain.ErrUpstream
	}
	return s.raw, s.err
}

func (s *stubBook) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubBook) setRaw(raw []domain.RawInstrument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = raw
}

func inst(sym, bid, ask string) domain.RawInstrument {
	return domain.RawInstrument{Symbol: sym, Bid: dec(bid), Ask: dec(ask)}
}

func TestSimulatedSource(t *testing.T) {
	coins := &stubCoins{coins: []domain.Coin{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin", CurrentPrice: dec("30000")},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum", CurrentPrice: dec("2000")},
		{ID: "dead", Symbol: "ded", Name: "Dead Coin"},
	}}
	src := NewSimulatedSource(SimulatedSourceConfig{
		Coins:     coins,
		Generator: NewSimulator(SimulatorConfig{Exchanges: testExchanges(), JitterPercent: 1.5, Seed: 1}),
	})

	got, err := src.FetchAssetQuotes(context.Background())
	if err != nil {
		t.Fatalf("FetchAssetQuotes: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Symbol != "BTC" || len(got[0].Quotes) != 3 {
		t.Errorf("bitcoin = %+v", got[0])
	}
	if len(got[2].Quotes) != 0 {
		t.Errorf("coin without price got quotes: %+v", got[2].Quotes)
	}

	src.search = "ether"
	got, err = src.FetchAssetQuotes(context.Background())
	if err != nil {
		t.Fatalf("FetchAssetQuotes: %v", err)
	}
	if len(got) != 1 || got[0].AssetID != "ethereum" {
		t.Fatalf("search result = %+v", got)
	}
}

func TestLiveSourceMidPrices(t *testing.T) {
	books := []BookFetcher{
		&stubBook{name: "binance", raw: []domain.RawInstrument{
			inst("BTCUSDT", "30000", "30002"), inst("ETHUSDT", "2000", "2002"), inst("ETHBTC", "0.07", "0.07"),
		}},
		&stubBook{name: "kucoin", raw: []domain.RawInstrument{
			inst("BTC-USDT", "30100", "30102"), inst("SOL-USDT", "20", "21"),
		}},
		&stubBook{name: "huobi", err: domain.ErrUpstream},
	}
	src := NewLiveSource(LiveSourceConfig{
		Books: books,
		Fees:  map[string]decimal.Decimal{"binance": dec("0.1"), "kucoin": dec("0.1")},
	})

	got, err := src.FetchAssetQuotes(context.Background())
	if err != nil {
		t.Fatalf("FetchAssetQuotes: %v", err)
	}
	if len(got) != 1 || got[0].Symbol != "BTC" {
		t.Fatalf("assets = %+v, want only BTC", got)
	}
	q := got[0].Quotes
	if len(q) != 2 || !q[0].Price.Equal(dec("30001")) || !q[1].Price.Equal(dec("30101")) {
		t.Fatalf("quotes = %+v", q)
	}
	if !q[0].TradingFeePercent.Equal(dec("0.1")) {
		t.Errorf("fee = %s", q[0].TradingFeePercent)
	}
}

func TestLiveSourceAllExchangesFail(t *testing.T) {
	src := NewLiveSource(LiveSourceConfig{Books: []BookFetcher{&stubBook{name: "binance", err: domain.ErrUpstream}}})
	if _, err := src.FetchAssetQuotes(context.Background()); !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
}

func TestLiveSourceWithCoinList(t *testing.T) {
	books := []BookFetcher{
		&stubBook{name: "binance", raw: []domain.RawInstrument{inst("BTCUSDT", "30000", "30000")}},
		&stubBook{name: "kucoin", raw: []domain.RawInstrument{inst("BTC-USDT", "30010", "30010")}},
	}
	coins := &stubCoins{coins: []domain.Coin{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"},
		{ID: "tether", Symbol: "usdt", Name: "Tether"},
	}}
	src := NewLiveSource(LiveSourceConfig{Books: books, Coins: coins})

	got, err := src.FetchAssetQuotes(context.Background())
	if err != nil {
		t.Fatalf("FetchAssetQuotes: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Bitcoin" || len(got[0].Quotes) != 2 || len(got[1].Quotes) != 0 {
		t.Fatalf("assets = %+v", got)
	}
}

type fakeStreamer struct {
	updates []domain.RawInstrument
	done    chan struct{}
}

func (f *fakeStreamer) Stream(ctx context.Context, onBook func(domain.RawInstrument)) error {
	for _, u := range f.updates {
		onBook(u)
	}
	close(f.done)
	<-ctx.Done()
	return ctx.Err()
}

func TestBookStream(t *testing.T) {
	fetcher := &stubBook{name: "binance", raw: []domain.RawInstrument{
		inst("BTCUSDT", "30000", "30001"), inst("ETHBTC", "0.07", "0.0701"), inst("BTCUSDT", "1", "1"),
	}}
	fs := &fakeStreamer{
		updates: []domain.RawInstrument{inst("BTCUSDT", "30500", "30501"), inst("NEWUSDT", "1", "1")},
		done:    make(chan struct{}),
	}
	var dialed []string
	s := NewBookStream(BookStreamConfig{
		Fetcher:    fetcher,
		MaxStreams: 1,
		Resync:     time.Hour,
		Dial: func(symbols []string) Streamer {
			dialed = symbols
			return fs
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	select {
	case <-fs.done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never dialed")
	}

	book, err := s.FetchBook(context.Background())
	if err != nil {
		t.Fatalf("FetchBook: %v", err)
	}
	if len(book) != 2 || book[0].Symbol != "BTCUSDT" || book[1].Symbol != "ETHBTC" {
		t.Fatalf("book = %+v", book)
	}
	if !book[0].Bid.Equal(dec("30500")) {
		t.Errorf("BTCUSDT bid = %s, want streamed update", book[0].Bid)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("REST calls = %d, want 1", fetcher.callCount())
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if len(dialed) != 1 || dialed[0] != "BTCUSDT" {
		t.Errorf("dialed = %v", dialed)
	}
}

func TestBookStreamResyncsWhenEmpty(t *testing.T) {
	fetcher := &stubBook{name: "binance", raw: []domain.RawInstrument{inst("BTCUSDT", "1", "2")}}
	s := NewBookStream(BookStreamConfig{Fetcher: fetcher})
	book, err := s.FetchBook(context.Background())
	if err != nil {
		t.Fatalf("FetchBook: %v", err)
	}
	if len(book) != 1 || fetcher.callCount() != 1 {
		t.Fatalf("book=%v calls=%d", book, fetcher.callCount())
	}
}

func TestBookStreamRetriesBootstrap(t *testing.T) {
	fetcher := &stubBook{name: "binance", failFirst: 2, raw: []domain.RawInstrument{inst("BTCUSDT", "1", "2")}}
	fs := &fakeStreamer{done: make(chan struct{})}
	s := NewBookStream(BookStreamConfig{
		Fetcher:   fetcher,
		Resync:    time.Hour,
		Reconnect: 5 * time.Millisecond,
		Dial:      func([]string) Streamer { return fs },
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	select {
	case <-fs.done:
	case err := <-errc:
		t.Fatalf("Run returned %v before the bootstrap succeeded", err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream never dialed")
	}
	if got := fetcher.callCount(); got != 3 {
		t.Errorf("REST calls = %d, want 3", got)
	}
	if book := s.Snapshot(); len(book) != 1 {
		t.Errorf("snapshot = %+v", book)
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestBookStreamOutageKeepsRunning(t *testing.T) {
	fetcher := &stubBook{name: "binance", err: domain.ErrUpstream}
	s := NewBookStream(BookStreamConfig{
		Fetcher:   fetcher,
		Reconnect: 5 * time.Millisecond,
		Dial: func([]string) Streamer {
			t.Error("dialed without a snapshot")
			return &fakeStreamer{done: make(chan struct{})}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v, want context.DeadlineExceeded", err)
	}
	if fetcher.callCount() < 2 {
		t.Errorf("REST calls = %d, want retries", fetcher.callCount())
	}
}

// dropStreamer returns at once, simulating a dropped connection.
type dropStreamer struct{}

func (dropStreamer) Stream(context.Context, func(domain.RawInstrument)) error {
	return domain.ErrWSDisconnect
}

func TestBookStreamReconnectPicksNewSymbols(t *testing.T) {
	fetcher := &stubBook{name: "binance", raw: []domain.RawInstrument{inst("BTCUSDT", "1", "2")}}
	var (
		mu     sync.Mutex
		dialed [][]string
	)
	second := &fakeStreamer{done: make(chan struct{})}
	s := NewBookStream(BookStreamConfig{
		Fetcher:   fetcher,
		Resync:    time.Hour,
		Reconnect: 5 * time.Millisecond,
	})
	s.cfg.Dial = func(symbols []string) Streamer {
		mu.Lock()
		defer mu.Unlock()
		dialed = append(dialed, symbols)
		if len(dialed) == 1 {
			// A pair listed while the first connection was up.
			fetcher.setRaw([]domain.RawInstrument{inst("BTCUSDT", "1", "2"), inst("ETHUSDT", "1", "2")})
			if err := s.resync(context.Background()); err != nil {
				t.Errorf("resync: %v", err)
			}
			return dropStreamer{}
		}
		return second
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	select {
	case <-second.done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never reconnected")
	}
	cancel()
	<-errc

	mu.Lock()
	defer mu.Unlock()
	if len(dialed) != 2 || len(dialed[0]) != 1 || len(dialed[1]) != 2 || dialed[1][1] != "ETHUSDT" {
		t.Fatalf("dialed = %v", dialed)
	}
}
