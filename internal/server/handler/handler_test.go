package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeScans struct {
	reports map[domain.ScanKind]domain.ScanReport
	cross   []domain.CrossOpportunity
	listErr error
	opts    domain.ListOpts
}

func (f *fakeScans) Latest(_ context.Context, kind domain.ScanKind) (domain.ScanReport, error) {
	r, ok := f.reports[kind]
	if !ok {
		return domain.ScanReport{}, fmt.Errorf("latest %s: %w", kind, domain.ErrNotFound)
	}
	return r, nil
}

func (f *fakeScans) CrossHistory(_ context.Context, opts domain.ListOpts) ([]domain.CrossOpportunity, error) {
	f.opts = opts
	return f.cross, f.listErr
}

func (f *fakeScans) CycleHistory(_ context.Context, opts domain.ListOpts) ([]domain.TriangularCycle, error) {
	f.opts = opts
	return nil, f.listErr
}

func (f *fakeScans) Summaries(context.Context, string, int) ([]domain.ReportSummary, error) {
	return []domain.ReportSummary{{Kind: domain.ScanTriangular, Generation: 3}}, nil
}

type fakeTriggers struct{ kinds []domain.ScanKind }

func (f *fakeTriggers) Trigger(kind domain.ScanKind) (bool, error) {
	if kind == domain.ScanTriangular {
		return false, fmt.Errorf("trigger %s: %w", kind, domain.ErrNotFound)
	}
	f.kinds = append(f.kinds, kind)
	return true, nil
}

func crossOpp(symbol, name, profit string) domain.CrossOpportunity {
	return domain.CrossOpportunity{
		AssetID: strings.ToLower(symbol),
		Symbol:  symbol,
		Name:    name,
		Result:  domain.CrossArbitrageResult{ProfitAfterFees: dec(profit)},
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestLatestCrossFilters(t *testing.T) {
	scans := &fakeScans{reports: map[domain.ScanKind]domain.ScanReport{
		domain.ScanCrossExchange: {
			Kind:       domain.ScanCrossExchange,
			Generation: 7,
			Cross: []domain.CrossOpportunity{
				crossOpp("BTC", "Bitcoin", "12"),
				crossOpp("ETH", "Ethereum", "4"),
				crossOpp("BCH", "Bitcoin Cash", "-1"),
			},
		},
	}}
	h := NewOpportunityHandler(scans, nil, nil, discardLogger())

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"BTC", "ETH", "BCH"}},
		{"?limit=1", []string{"BTC"}},
		{"?search=bitcoin", []string{"BTC", "BCH"}},
		{"?search=bitcoin&profitable=true", []string{"BTC"}},
		{"?search=doge", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.LatestCross(rec, httptest.NewRequest(http.MethodGet, "/api/cross/latest"+tt.query, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			resp := decode[crossLatestResponse](t, rec)
			if resp.Generation != 7 || resp.Total != 3 {
				t.Errorf("meta = %+v", resp.reportMeta)
			}
			got := make([]string, 0, len(resp.Opportunities))
			for _, o := range resp.Opportunities {
				got = append(got, o.Symbol)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("symbols = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLatestCrossBadProfitable(t *testing.T) {
	scans := &fakeScans{reports: map[domain.ScanKind]domain.ScanReport{domain.ScanCrossExchange: {}}}
	h := NewOpportunityHandler(scans, nil, nil, discardLogger())
	rec := httptest.NewRecorder()
	h.LatestCross(rec, httptest.NewRequest(http.MethodGet, "/api/cross/latest?profitable=maybe", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestLatestNotFound(t *testing.T) {
	h := NewOpportunityHandler(&fakeScans{}, nil, nil, discardLogger())
	rec := httptest.NewRecorder()
	h.LatestTriangular(rec, httptest.NewRequest(http.MethodGet, "/api/triangular/latest", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestLatestTriangularAnchor(t *testing.T) {
	scans := &fakeScans{reports: map[domain.ScanKind]domain.ScanReport{
		domain.ScanTriangular: {Cycles: []domain.TriangularCycle{
			{Anchor: "USDT"}, {Anchor: "USDC"}, {Anchor: "USDT"},
		}},
	}}
	h := NewOpportunityHandler(scans, nil, nil, discardLogger())
	rec := httptest.NewRecorder()
	h.LatestTriangular(rec, httptest.NewRequest(http.MethodGet, "/api/triangular/latest?anchor=usdc", nil))
	resp := decode[cyclesLatestResponse](t, rec)
	if len(resp.Cycles) != 1 || resp.Cycles[0].Anchor != "USDC" {
		t.Fatalf("cycles = %+v", resp.Cycles)
	}
}

func TestCrossHistoryParsesOpts(t *testing.T) {
	scans := &fakeScans{}
	h := NewOpportunityHandler(scans, nil, nil, discardLogger())

	rec := httptest.NewRecorder()
	h.CrossHistory(rec, httptest.NewRequest(http.MethodGet, "/api/cross/history?limit=5&offset=10&since=2025-01-02T00:00:00Z", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if scans.opts.Limit != 5 || scans.opts.Offset != 10 || scans.opts.Since == nil {
		t.Fatalf("opts = %+v", scans.opts)
	}
	if !scans.opts.Since.Equal(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since = %v", scans.opts.Since)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"opportunities":[]}` {
		t.Errorf("body = %s", body)
	}

	rec = httptest.NewRecorder()
	h.CrossHistory(rec, httptest.NewRequest(http.MethodGet, "/api/cross/history?since=yesterday", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want 400", rec.Code)
	}
}

func TestHistoryErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no store", fmt.Errorf("history: %w", domain.ErrNotFound), http.StatusNotFound},
		{"upstream", fmt.Errorf("query: %w", domain.ErrUpstream), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOpportunityHandler(&fakeScans{listErr: tt.err}, nil, nil, discardLogger())
			rec := httptest.NewRecorder()
			h.TriangularHistory(rec, httptest.NewRequest(http.MethodGet, "/api/triangular/history", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestTrigger(t *testing.T) {
	triggers := &fakeTriggers{}
	tests := []struct {
		name     string
		kind     string
		triggers Triggerer
		want     int
	}{
		{"cross alias", "cross", triggers, http.StatusAccepted},
		{"unknown kind", "spot", triggers, http.StatusBadRequest},
		{"kind not running", "triangular", triggers, http.StatusNotFound},
		{"monitor mode", "cross", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewOpportunityHandler(&fakeScans{}, tt.triggers, nil, discardLogger())
			req := httptest.NewRequest(http.MethodPost, "/api/scan/"+tt.kind+"/trigger", nil)
			req.SetPathValue("kind", tt.kind)
			rec := httptest.NewRecorder()
			h.Trigger(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
	if len(triggers.kinds) != 1 || triggers.kinds[0] != domain.ScanCrossExchange {
		t.Errorf("triggered = %v", triggers.kinds)
	}
}

func TestReportsAndExchanges(t *testing.T) {
	h := NewOpportunityHandler(&fakeScans{}, nil, []domain.Exchange{{Name: "binance", FeePercent: dec("0.1")}}, discardLogger())

	rec := httptest.NewRecorder()
	h.Reports(rec, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
	reports := decode[map[string][]domain.ReportSummary](t, rec)
	if len(reports["reports"]) != 1 || reports["reports"][0].Generation != 3 {
		t.Errorf("reports = %+v", reports)
	}

	rec = httptest.NewRecorder()
	h.Exchanges(rec, httptest.NewRequest(http.MethodGet, "/api/exchanges", nil))
	exchanges := decode[map[string][]domain.Exchange](t, rec)
	if len(exchanges["exchanges"]) != 1 || exchanges["exchanges"][0].Name != "binance" {
		t.Errorf("exchanges = %+v", exchanges)
	}
}

func TestEvaluateCross(t *testing.T) {
	h := NewEvaluateHandler(domain.DefaultEngineConfig(), nil, discardLogger())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"two exchanges", `{"quotes":[{"exchange":"a","price":"100","trading_fee_percent":"0.1"},{"exchange":"b","price":"110","trading_fee_percent":"0.1"}]}`, http.StatusOK},
		{"investment below minimum", `{"quotes":[{"exchange":"a","price":"100"}],"investment":"0.5"}`, http.StatusBadRequest},
		{"no usable quotes", `{"quotes":[{"exchange":"a","price":"-1"}]}`, http.StatusBadRequest},
		{"unknown field", `{"quotes":[],"extra":1}`, http.StatusBadRequest},
		{"not json", `quotes`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Cross(rec, httptest.NewRequest(http.MethodPost, "/api/evaluate/cross", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tt.want, rec.Body.String())
			}
			if rec.Code != http.StatusOK {
				return
			}
			res := decode[domain.CrossArbitrageResult](t, rec)
			if res.Lowest.Exchange != "a" || res.Highest.Exchange != "b" || res.Usable != 2 {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestEvaluateTriangular(t *testing.T) {
	h := NewEvaluateHandler(domain.DefaultEngineConfig(), nil, discardLogger())
	book := `[
		{"symbol":"BTCUSDT","bid":"30000","ask":"30000"},
		{"symbol":"ETHBTC","bid":"0.07","ask":"0.07"},
		{"symbol":"ETHUSDT","bid":"2200","ask":"2200"},
		{"symbol":"XYZ","bid":"1","ask":"1"}
	]`

	rec := httptest.NewRecorder()
	h.Triangular(rec, httptest.NewRequest(http.MethodPost, "/api/evaluate/triangular",
		strings.NewReader(`{"instruments":`+book+`,"investment":"1000"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[evaluateTriangularResponse](t, rec)
	if resp.Discarded != 1 {
		t.Errorf("discarded = %d, want 1", resp.Discarded)
	}
	if resp.Evaluated == 0 {
		t.Error("evaluated = 0")
	}
	for _, c := range resp.Cycles {
		if !c.Profit.IsPositive() || !c.Closed() {
			t.Errorf("cycle %+v", c)
		}
	}

	for name, body := range map[string]string{
		"bad pricing": `{"instruments":[],"pricing":"mid"}`,
		"bad fee":     `{"instruments":[],"fee_percent":"100"}`,
	} {
		rec := httptest.NewRecorder()
		h.Triangular(rec, httptest.NewRequest(http.MethodPost, "/api/evaluate/triangular", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
		}
	}
}

type fakeBlobs struct {
	files map[string]string
}

func (f fakeBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f fakeBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, body := range f.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(body))})
		}
	}
	return out, nil
}

func TestArchiveHandler(t *testing.T) {
	blobs := fakeBlobs{files: map[string]string{
		"archive/triangular/2025-03.jsonl": "{\"anchor\":\"USDT\"}\n",
	}}
	h := NewArchiveHandler(blobs, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/archive/triangular", nil)
	req.SetPathValue("kind", "triangular")
	rec := httptest.NewRecorder()
	h.List(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "2025-03.jsonl") {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}

	tests := []struct {
		kind, month string
		want        int
	}{
		{"triangular", "2025-03", http.StatusOK},
		{"triangular", "2025-04", http.StatusNotFound},
		{"triangular", "March", http.StatusBadRequest},
		{"spot", "2025-03", http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/archive/"+tt.kind+"/"+tt.month, nil)
		req.SetPathValue("kind", tt.kind)
		req.SetPathValue("month", tt.month)
		rec := httptest.NewRecorder()
		h.Get(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s/%s: status = %d, want %d", tt.kind, tt.month, rec.Code, tt.want)
		}
		if tt.want == http.StatusOK && rec.Body.String() != "{\"anchor\":\"USDT\"}\n" {
			t.Errorf("body = %q", rec.Body.String())
		}
	}
}

type stubStatuses []domain.ScanStatus

func (s stubStatuses) Statuses() []domain.ScanStatus { return s }

func TestHealthAndStatus(t *testing.T) {
	h := NewHealthHandler(map[string]HealthCheck{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	}, discardLogger())
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want 503", rec.Code)
	}
	health := decode[map[string]any](t, rec)
	if health["status"] != "degraded" {
		t.Errorf("health = %v", health)
	}

	s := NewStatusHandler("full", "test", time.Now().Add(-time.Minute), stubStatuses{{Name: "binance-triangular"}})
	rec = httptest.NewRecorder()
	s.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	status := decode[struct {
		Mode     string              `json:"mode"`
		Uptime   int64               `json:"uptime_seconds"`
		Scanners []domain.ScanStatus `json:"scanners"`
	}](t, rec)
	if status.Mode != "full" || status.Uptime < 59 || len(status.Scanners) != 1 {
		t.Errorf("status = %+v", status)
	}
}
