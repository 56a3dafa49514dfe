package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemWriter() *memWriter {
	return &memWriter{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if m.err != nil {
		return m.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	m.types[path] = contentType
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "multipart")
}

type memHistory struct {
	cross  []domain.CrossOpportunity
	cycles []domain.TriangularCycle
}

func (h memHistory) ListCrossBefore(_ context.Context, before time.Time) ([]domain.CrossOpportunity, error) {
	var out []domain.CrossOpportunity
	for _, o := range h.cross {
		if o.DetectedAt.Before(before) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (h memHistory) ListCyclesBefore(_ context.Context, before time.Time) ([]domain.TriangularCycle, error) {
	var out []domain.TriangularCycle
	for _, c := range h.cycles {
		if c.DetectedAt.Before(before) {
			out = append(out, c)
		}
	}
	return out, nil
}

type memAudit struct{ events []string }

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveCross(t *testing.T) {
	cutoff := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	hist := memHistory{cross: []domain.CrossOpportunity{
		{ID: "a", AssetID: "bitcoin", Investment: decimal.NewFromInt(100), DetectedAt: cutoff.Add(-48 * time.Hour)},
		{ID: "b", AssetID: "ethereum", Investment: decimal.NewFromInt(100), DetectedAt: cutoff.Add(-time.Hour)},
		{ID: "c", AssetID: "solana", DetectedAt: cutoff.Add(time.Hour)},
	}}
	w := newMemWriter()
	audit := &memAudit{}
	a := NewArchiver(w, hist, hist, audit)

	n, err := a.ArchiveCross(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveCross: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived %d, want 2", n)
	}
	data, ok := w.objects["archive/cross_exchange/2025-02.jsonl"]
	if !ok {
		t.Fatalf("missing object, have %v", w.objects)
	}
	if w.types["archive/cross_exchange/2025-02.jsonl"] != jsonlContentType {
		t.Errorf("content type = %q", w.types["archive/cross_exchange/2025-02.jsonl"])
	}

	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var o domain.CrossOpportunity
		if err := json.Unmarshal(sc.Bytes(), &o); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		ids = append(ids, o.ID)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ids = %v", ids)
	}
	if len(audit.events) != 1 || audit.events[0] != "archive.cross_exchange" {
		t.Errorf("audit = %v", audit.events)
	}
}

func TestArchiveCyclesEmpty(t *testing.T) {
	w := newMemWriter()
	n, err := NewArchiver(w, memHistory{}, memHistory{}, nil).ArchiveCycles(context.Background(), time.Now())
	if err != nil || n != 0 || len(w.objects) != 0 {
		t.Fatalf("n=%d err=%v objects=%d", n, err, len(w.objects))
	}
}

func TestArchiveUploadError(t *testing.T) {
	w := newMemWriter()
	w.err = errors.New("denied")
	hist := memHistory{cycles: []domain.TriangularCycle{{ID: "x", DetectedAt: time.Unix(0, 0)}}}
	if _, err := NewArchiver(w, hist, hist, nil).ArchiveCycles(context.Background(), time.Now()); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		ssl  bool
		want string
	}{
		{"https://s3.example.com", false, "https://s3.example.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"e2.example.com", true, "https://e2.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.ssl); got != tt.want {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.ssl, got, tt.want)
		}
	}
}
