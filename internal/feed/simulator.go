package feed

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/platform"
)

// QuoteGenerator produces one quote per exchange around a base price.
type QuoteGenerator interface {
	Generate(base decimal.Decimal) []domain.Quote
}

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	Exchanges []domain.Exchange
	// JitterPercent is the half-width of the uniform price deviation.
	JitterPercent float64
	MaxVolume     float64
	// Seed makes the sequence reproducible. Zero seeds from the clock.
	Seed uint64
	Now  func() time.Time
}

// Simulator generates synthetic multi-exchange quotes with uniform price
// jitter. It is safe for concurrent use.
type Simulator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	exchanges []domain.Exchange
	jitter    float64
	maxVolume float64
	now       func() time.Time
}

// NewSimulator creates a Simulator.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	maxVol := cfg.MaxVolume
	if maxVol <= 0 {
		maxVol = 1_000_000
	}
	return &Simulator{
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		exchanges: cfg.Exchanges,
		jitter:    cfg.JitterPercent / 100,
		maxVolume: maxVol,
		now:       now,
	}
}

// Generate returns one quote per configured exchange, in table order.
func (s *Simulator) Generate(base decimal.Decimal) []domain.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	observed := s.now().UTC()
	out := make([]domain.Quote, 0, len(s.exchanges))
	for _, ex := range s.exchanges {
		deviation := (s.rng.Float64()*2 - 1) * s.jitter
		factor, ok := platform.DecimalFromFloat(1 + deviation)
		if !ok {
			continue
		}
		volume, ok := platform.DecimalFromFloat(s.rng.Float64() * s.maxVolume)
		if !ok {
			continue
		}
		out = append(out, domain.Quote{
			Exchange:          ex.Name,
			Price:             base.Mul(factor).Round(8),
			TradingFeePercent: ex.FeePercent,
			Volume24h:         volume.Round(2),
			ObservedAt:        observed,
		})
	}
	return out
}

var _ QuoteGenerator = (*Simulator)(nil)
