package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// ScanReader is the read side of the scan service.
type ScanReader interface {
	Latest(ctx context.Context, kind domain.ScanKind) (domain.ScanReport, error)
	CrossHistory(ctx context.Context, opts domain.ListOpts) ([]domain.CrossOpportunity, error)
	CycleHistory(ctx context.Context, opts domain.ListOpts) ([]domain.TriangularCycle, error)
	Summaries(ctx context.Context, after string, count int) ([]domain.ReportSummary, error)
}

// Triggerer requests an immediate rescan of a kind. It returns
// domain.ErrNotFound when no scanner of that kind runs here.
type Triggerer interface {
	Trigger(kind domain.ScanKind) (bool, error)
}

// OpportunityHandler serves the latest and historical scan results.
type OpportunityHandler struct {
	scans     ScanReader
	triggers  Triggerer
	exchanges []domain.Exchange
	logger    *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler. triggers may be nil.
func NewOpportunityHandler(scans ScanReader, triggers Triggerer, exchanges []domain.Exchange, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{
		scans:     scans,
		triggers:  triggers,
		exchanges: exchanges,
		logger:    logHandler(logger, "opportunities"),
	}
}

type reportMeta struct {
	Generation  uint64    `json:"generation"`
	Exchange    string    `json:"exchange,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
	Evaluated   int       `json:"evaluated"`
	Discarded   int       `json:"discarded"`
	Total       int       `json:"total"`
}

func metaOf(r domain.ScanReport) reportMeta {
	return reportMeta{
		Generation:  r.Generation,
		Exchange:    r.Exchange,
		CompletedAt: r.CompletedAt,
		Evaluated:   r.Evaluated,
		Discarded:   r.Discarded,
		Total:       r.Len(),
	}
}

type crossLatestResponse struct {
	reportMeta
	Opportunities []domain.CrossOpportunity `json:"opportunities"`
}

type cyclesLatestResponse struct {
	reportMeta
	Cycles []domain.TriangularCycle `json:"cycles"`
}

// LatestCross returns the ranked opportunities of the latest cross scan.
// GET /api/cross/latest?search=btc&limit=20&profitable=true
func (h *OpportunityHandler) LatestCross(w http.ResponseWriter, r *http.Request) {
	report, err := h.scans.Latest(r.Context(), domain.ScanCrossExchange)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load latest cross scan")
		return
	}

	q := r.URL.Query()
	profitable := false
	if v := q.Get("profitable"); v != "" {
		if profitable, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid profitable %q", v))
			return
		}
	}
	search := q.Get("search")
	limit := parseLimit(r, 20, 500)

	out := make([]domain.CrossOpportunity, 0, min(limit, len(report.Cross)))
	for _, o := range report.Cross {
		if len(out) == limit {
			break
		}
		if profitable && !o.Result.ProfitAfterFees.IsPositive() {
			continue
		}
		if !domain.MatchesSearch(o.Name, o.Symbol, search) {
			continue
		}
		out = append(out, o)
	}
	writeJSON(w, http.StatusOK, crossLatestResponse{reportMeta: metaOf(report), Opportunities: out})
}

// LatestTriangular returns the ranked cycles of the latest triangular scan.
// GET /api/triangular/latest?limit=20&anchor=USDT
func (h *OpportunityHandler) LatestTriangular(w http.ResponseWriter, r *http.Request) {
	report, err := h.scans.Latest(r.Context(), domain.ScanTriangular)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load latest triangular scan")
		return
	}
	anchor := domain.NewAsset(r.URL.Query().Get("anchor"))
	limit := parseLimit(r, 20, 500)

	out := make([]domain.TriangularCycle, 0, min(limit, len(report.Cycles)))
	for _, c := range report.Cycles {
		if len(out) == limit {
			break
		}
		if anchor != "" && c.Anchor != anchor {
			continue
		}
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, cyclesLatestResponse{reportMeta: metaOf(report), Cycles: out})
}

// CrossHistory lists stored cross-exchange opportunities.
// GET /api/cross/history?limit=50&offset=0&since=2025-01-01T00:00:00Z
func (h *OpportunityHandler) CrossHistory(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "invalid query")
		return
	}
	opps, err := h.scans.CrossHistory(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list cross history")
		return
	}
	if opps == nil {
		opps = []domain.CrossOpportunity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}

// TriangularHistory lists stored triangular cycles.
// GET /api/triangular/history?limit=50
func (h *OpportunityHandler) TriangularHistory(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "invalid query")
		return
	}
	cycles, err := h.scans.CycleHistory(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list triangular history")
		return
	}
	if cycles == nil {
		cycles = []domain.TriangularCycle{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": cycles})
}

// Reports pages through report summaries. Pass the last returned id as
// ?after= to continue.
// GET /api/reports?after=1712345678901-0&limit=50
func (h *OpportunityHandler) Reports(w http.ResponseWriter, r *http.Request) {
	sums, err := h.scans.Summaries(r.Context(), r.URL.Query().Get("after"), parseLimit(r, 50, 1000))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to read report stream")
		return
	}
	if sums == nil {
		sums = []domain.ReportSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": sums})
}

// Trigger requests an immediate rescan, superseding the run in flight.
// POST /api/scan/{kind}/trigger
func (h *OpportunityHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseScanKind(r.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown scan kind %q", r.PathValue("kind")))
		return
	}
	if h.triggers == nil {
		writeError(w, http.StatusNotFound, "no scanners running")
		return
	}
	queued, err := h.triggers.Trigger(kind)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to trigger scan")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"kind": kind, "queued": queued})
}

// Exchanges returns the exchange fee table.
// GET /api/exchanges
func (h *OpportunityHandler) Exchanges(w http.ResponseWriter, r *http.Request) {
	exchanges := h.exchanges
	if exchanges == nil {
		exchanges = []domain.Exchange{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exchanges": exchanges})
}
