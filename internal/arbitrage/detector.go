package arbitrage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Recorder consumes accepted scan reports.
type Recorder interface {
	Record(ctx context.Context, report domain.ScanReport) error
}

// DetectorConfig configures a Detector.
type DetectorConfig struct {
	Scanner  Scanner
	Recorder Recorder
	// Locks, when set, elects a single leader per scanner across replicas.
	Locks         domain.LockManager
	Interval      time.Duration
	RecordTimeout time.Duration
	Logger        *slog.Logger
}

// Detector runs a scanner on a fixed cadence. Every run takes a new
// generation; starting a run cancels the one in flight, and a run that
// finishes after a newer one started is discarded.
type Detector struct {
	scanner       Scanner
	recorder      Recorder
	locks         domain.LockManager
	interval      time.Duration
	recordTimeout time.Duration
	logger        *slog.Logger

	trigger chan struct{}
	gen     atomic.Uint64
	wg      sync.WaitGroup

	mu         sync.Mutex
	cancelRun  context.CancelFunc
	leaseUntil time.Time
	status     domain.ScanStatus

	// recordMu serializes acceptance so lastAccepted only grows.
	recordMu     sync.Mutex
	lastAccepted uint64
}

// NewDetector creates a Detector.
func NewDetector(cfg DetectorConfig) *Detector {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	rt := cfg.RecordTimeout
	if rt <= 0 {
		rt = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		scanner:       cfg.Scanner,
		recorder:      cfg.Recorder,
		locks:         cfg.Locks,
		interval:      interval,
		recordTimeout: rt,
		logger:        logger.With(slog.String("component", "detector"), slog.String("scanner", cfg.Scanner.Name())),
		trigger:       make(chan struct{}, 1),
		status: domain.ScanStatus{
			Name:     cfg.Scanner.Name(),
			Kind:     cfg.Scanner.Kind(),
			Interval: interval,
		},
	}
}

// Name returns the scanner name.
func (d *Detector) Name() string { return d.scanner.Name() }

// Kind returns the scanner kind.
func (d *Detector) Kind() domain.ScanKind { return d.scanner.Kind() }

// Trigger requests an immediate run. It returns false if a request is
// already pending.
func (d *Detector) Trigger() bool {
	select {
	case d.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status returns a copy of the runtime state.
func (d *Detector) Status() domain.ScanStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.status
	st.Generation = d.gen.Load()
	return st
}

// Run scans immediately and then on every tick or trigger. It blocks until
// ctx is cancelled and waits for in-flight runs before returning.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("detector started", slog.Duration("interval", d.interval))
	defer d.logger.Info("detector stopped")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.launch(ctx)
	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			if d.cancelRun != nil {
				d.cancelRun()
			}
			d.mu.Unlock()
			d.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			d.launch(ctx)
		case <-d.trigger:
			d.launch(ctx)
		}
	}
}

func (d *Detector) launch(ctx context.Context) {
	if !d.lead(ctx) {
		d.logger.Debug("another replica holds the scan lease")
		return
	}

	gen := d.gen.Add(1)
	runCtx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	if d.cancelRun != nil {
		d.cancelRun()
	}
	d.cancelRun = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		d.runOnce(runCtx, gen)
	}()
}

// lead reports whether this instance may scan. The lease is taken for just
// under one interval and left to expire.
func (d *Detector) lead(ctx context.Context) bool {
	if d.locks == nil {
		return true
	}
	d.mu.Lock()
	held := time.Now().Before(d.leaseUntil)
	d.mu.Unlock()
	if held {
		return true
	}

	ttl := d.interval * 9 / 10
	if _, err := d.locks.Acquire(ctx, "scan:"+d.scanner.Name(), ttl); err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return false
		}
		d.logger.Warn("scan lease unavailable, scanning anyway", slog.String("error", err.Error()))
		return true
	}
	d.mu.Lock()
	d.leaseUntil = time.Now().Add(ttl)
	d.mu.Unlock()
	return true
}

func (d *Detector) runOnce(ctx context.Context, gen uint64) {
	start := time.Now()
	report, err := d.scanner.Scan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			if gen != d.gen.Load() {
				d.superseded(gen)
			}
			return
		}
		d.logger.Warn("scan failed", slog.Uint64("generation", gen), slog.String("error", err.Error()))
		d.mu.Lock()
		d.status.LastRunAt = start
		d.status.LastError = err.Error()
		d.mu.Unlock()
		return
	}

	report.Generation = gen
	for i := range report.Cross {
		report.Cross[i].Generation = gen
	}
	for i := range report.Cycles {
		report.Cycles[i].Generation = gen
	}

	d.recordMu.Lock()
	defer d.recordMu.Unlock()
	if gen <= d.lastAccepted || gen != d.gen.Load() {
		d.superseded(gen)
		return
	}
	d.lastAccepted = gen

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.recordTimeout)
	defer cancel()
	if err := d.recorder.Record(rctx, report); err != nil {
		d.logger.Warn("record scan failed", slog.Uint64("generation", gen), slog.String("error", err.Error()))
	}

	d.mu.Lock()
	d.status.LastAccepted = gen
	d.status.LastRunAt = start
	d.status.LastError = ""
	d.status.LastReportSize = report.Len()
	d.mu.Unlock()

	d.logger.Debug("scan accepted",
		slog.Uint64("generation", gen),
		slog.Int("opportunities", report.Len()),
		slog.Int("evaluated", report.Evaluated),
		slog.Int("discarded", report.Discarded),
		slog.Duration("took", time.Since(start)),
	)
}

func (d *Detector) superseded(gen uint64) {
	d.mu.Lock()
	d.status.Superseded++
	d.mu.Unlock()
	d.logger.Debug("scan result discarded", slog.Uint64("generation", gen), slog.String("reason", domain.ErrSuperseded.Error()))
}
