package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/server/handler"
	"github.com/alanyoungcy/arbscanner/internal/service"
)

func testServer(apiKey string) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scans := service.NewScanService(service.ScanServiceConfig{Logger: logger})
	_ = scans.Record(context.Background(), domain.ScanReport{
		Kind:        domain.ScanTriangular,
		Generation:  1,
		CompletedAt: time.Now(),
		Cycles:      []domain.TriangularCycle{{Anchor: "USDT"}},
	})
	return NewServer(Config{Port: 0, APIKey: apiKey}, Handlers{
		Health:        handler.NewHealthHandler(nil, logger),
		Status:        handler.NewStatusHandler("monitor", "test", time.Now(), nil),
		Opportunities: handler.NewOpportunityHandler(scans, nil, nil, logger),
		Evaluate:      handler.NewEvaluateHandler(domain.DefaultEngineConfig(), nil, logger),
	}, nil, logger)
}

func TestRoutes(t *testing.T) {
	h := testServer("").Handler()
	tests := []struct {
		method, path string
		body         string
		want         int
	}{
		{http.MethodGet, "/api/health", "", http.StatusOK},
		{http.MethodGet, "/api/status", "", http.StatusOK},
		{http.MethodGet, "/api/triangular/latest", "", http.StatusOK},
		{http.MethodGet, "/api/cross/latest", "", http.StatusNotFound},
		{http.MethodGet, "/api/cross/history", "", http.StatusNotFound},
		{http.MethodGet, "/api/reports", "", http.StatusOK},
		{http.MethodPost, "/api/scan/cross/trigger", "", http.StatusNotFound},
		{http.MethodPost, "/api/evaluate/cross", `{"quotes":[{"exchange":"a","price":"1"}]}`, http.StatusOK},
		{http.MethodGet, "/api/evaluate/cross", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/archive/triangular", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body %s", rec.Code, tt.want, rec.Body.String())
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing request id")
			}
		})
	}
}

func TestAuthExemptsHealth(t *testing.T) {
	h := testServer("k").Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without key = %d", rec.Code)
	}
}
