package arbitrage

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// blockingScanner blocks its first call until release is closed, ignoring
// cancellation, and answers every later call immediately.
type blockingScanner struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (s *blockingScanner) Name() string          { return "blocking" }
func (s *blockingScanner) Kind() domain.ScanKind { return domain.ScanTriangular }

func (s *blockingScanner) Scan(ctx context.Context) (domain.ScanReport, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if n == 1 {
		close(s.started)
		<-s.release
	}
	return domain.ScanReport{Kind: domain.ScanTriangular, Cycles: []domain.TriangularCycle{{Anchor: "USDT"}}}, nil
}

type collectingRecorder struct {
	mu       sync.Mutex
	gens     []uint64
	recorded chan uint64
}

func (r *collectingRecorder) Record(_ context.Context, report domain.ScanReport) error {
	r.mu.Lock()
	r.gens = append(r.gens, report.Generation)
	r.mu.Unlock()
	r.recorded <- report.Generation
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDetectorDiscardsSupersededRun(t *testing.T) {
	sc := &blockingScanner{started: make(chan struct{}), release: make(chan struct{})}
	rec := &collectingRecorder{recorded: make(chan uint64, 4)}
	d := NewDetector(DetectorConfig{Scanner: sc, Recorder: rec, Interval: time.Hour, Logger: discardLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	<-sc.started
	if !d.Trigger() {
		t.Fatal("trigger rejected")
	}

	select {
	case gen := <-rec.recorded:
		if gen != 2 {
			t.Fatalf("recorded generation %d, want 2", gen)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second run was not recorded")
	}

	close(sc.release)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("detector did not stop")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.gens) != 1 || rec.gens[0] != 2 {
		t.Errorf("recorded generations %v, want [2]", rec.gens)
	}
	st := d.Status()
	if st.Superseded != 1 || st.LastAccepted != 2 || st.Generation != 2 {
		t.Errorf("status = %+v", st)
	}
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestDetectorSkipsWithoutLease(t *testing.T) {
	sc := &blockingScanner{started: make(chan struct{}), release: make(chan struct{})}
	close(sc.release)
	rec := &collectingRecorder{recorded: make(chan uint64, 4)}
	d := NewDetector(DetectorConfig{Scanner: sc, Recorder: rec, Locks: heldLocks{}, Interval: time.Hour, Logger: discardLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = d.Run(ctx)

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.calls != 0 {
		t.Errorf("scanner ran %d times without the lease", sc.calls)
	}
	if d.Status().Generation != 0 {
		t.Errorf("generation advanced without the lease")
	}
}
