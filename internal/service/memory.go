package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// MemorySnapshots is an in-process domain.SnapshotCache for deployments
// without Redis.
type MemorySnapshots struct {
	mu      sync.RWMutex
	reports map[domain.ScanKind]domain.ScanReport
}

// NewMemorySnapshots creates an empty MemorySnapshots.
func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{reports: make(map[domain.ScanKind]domain.ScanReport)}
}

// SetReport replaces the latest report of its kind.
func (m *MemorySnapshots) SetReport(_ context.Context, report domain.ScanReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[report.Kind] = report
	return nil
}

// GetReport returns the latest report of kind or domain.ErrNotFound.
func (m *MemorySnapshots) GetReport(_ context.Context, kind domain.ScanKind) (domain.ScanReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[kind]
	if !ok {
		return domain.ScanReport{}, fmt.Errorf("memory: report %s: %w", kind, domain.ErrNotFound)
	}
	return r, nil
}

var _ domain.SnapshotCache = (*MemorySnapshots)(nil)

// localStreamCap bounds the in-process report stream.
const localStreamCap = 1000

// LocalBus is an in-process domain.SignalBus for deployments without Redis.
// Glob patterns are not supported; a trailing "*" matches by prefix.
type LocalBus struct {
	mu     sync.RWMutex
	subs   map[string][]chan []byte
	stream []domain.StreamMessage
	seq    uint64
}

// NewLocalBus creates a LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string][]chan []byte)}
}

// Publish delivers payload to every matching subscriber. Full subscriber
// buffers drop the message.
func (b *LocalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for pattern, chans := range b.subs {
		if !channelMatches(pattern, channel) {
			continue
		}
		for _, ch := range chans {
			select {
			case ch <- payload:
			default:
			}
		}
	}
	return nil
}

// Subscribe registers a subscriber until ctx is done.
func (b *LocalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	context.AfterFunc(ctx, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[channel]
		for i, c := range chans {
			if c == ch {
				b.subs[channel] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	})
	return ch, nil
}

// StreamAppend appends payload, keeping the newest entries.
func (b *LocalBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.stream = append(b.stream, domain.StreamMessage{ID: fmt.Sprintf("%d-0", b.seq), Payload: payload})
	if len(b.stream) > localStreamCap {
		b.stream = b.stream[len(b.stream)-localStreamCap:]
	}
	return nil
}

// StreamRead returns up to count entries with an id greater than lastID.
// A count of 0 or less returns every match.
func (b *LocalBus) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	seqPart, _, _ := strings.Cut(lastID, "-")
	after, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("local bus: %w: stream id %q", domain.ErrInvalidInput, lastID)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.StreamMessage
	for _, m := range b.stream {
		if count > 0 && len(out) == count {
			break
		}
		if streamSeq(m.ID) > after {
			out = append(out, m)
		}
	}
	return out, nil
}

func streamSeq(id string) uint64 {
	seqPart, _, _ := strings.Cut(id, "-")
	n, _ := strconv.ParseUint(seqPart, 10, 64)
	return n
}

func channelMatches(pattern, channel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix)
	}
	return pattern == channel
}

var _ domain.SignalBus = (*LocalBus)(nil)
