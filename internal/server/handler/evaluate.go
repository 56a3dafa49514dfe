package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/arbitrage"
	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// EvaluateHandler runs the detection engine on caller-supplied data.
type EvaluateHandler struct {
	engine   domain.EngineConfig
	registry *arbitrage.QuoteAssetRegistry
	logger   *slog.Logger
}

// NewEvaluateHandler creates an EvaluateHandler whose defaults come from
// engine.
func NewEvaluateHandler(engine domain.EngineConfig, registry *arbitrage.QuoteAssetRegistry, logger *slog.Logger) *EvaluateHandler {
	if registry == nil {
		registry = arbitrage.DefaultRegistry()
	}
	return &EvaluateHandler{engine: engine, registry: registry, logger: logHandler(logger, "evaluate")}
}

type evaluateCrossRequest struct {
	Quotes     []domain.Quote   `json:"quotes"`
	Investment *decimal.Decimal `json:"investment,omitempty"`
}

// Cross evaluates one asset's quotes.
// POST /api/evaluate/cross
func (h *EvaluateHandler) Cross(w http.ResponseWriter, r *http.Request) {
	var req evaluateCrossRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}
	investment := h.engine.InvestmentAmount
	if req.Investment != nil {
		investment = *req.Investment
	}
	result, err := arbitrage.EvaluateCross(req.Quotes, investment)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "evaluation failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type evaluateTriangularRequest struct {
	Instruments []domain.RawInstrument `json:"instruments"`
	Investment  *decimal.Decimal       `json:"investment,omitempty"`
	FeePercent  *decimal.Decimal       `json:"fee_percent,omitempty"`
	Anchors     []string               `json:"anchors,omitempty"`
	Pricing     string                 `json:"pricing,omitempty"`
}

type evaluateTriangularResponse struct {
	Cycles    []domain.TriangularCycle `json:"cycles"`
	Evaluated int                      `json:"evaluated"`
	Discarded int                      `json:"discarded"`
}

// Triangular searches one book for profitable cycles.
// POST /api/evaluate/triangular
func (h *EvaluateHandler) Triangular(w http.ResponseWriter, r *http.Request) {
	var req evaluateTriangularRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, err, "invalid request")
		return
	}

	cfg := h.engine
	if req.Investment != nil {
		cfg.InvestmentAmount = *req.Investment
	}
	if req.FeePercent != nil {
		cfg.TradingFeePercent = *req.FeePercent
	}
	if len(req.Anchors) > 0 {
		cfg.AnchorAssets = domain.Assets(req.Anchors...)
	}
	if req.Pricing != "" {
		cfg.LegPricing = req.Pricing
	}
	params, err := arbitrage.ParamsFromConfig(cfg)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "invalid parameters")
		return
	}

	g := arbitrage.BuildGraph(req.Instruments, h.registry)
	cycles, err := arbitrage.Enumerate(g, params)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "evaluation failed")
		return
	}
	cycles = arbitrage.RankCycles(cycles)
	if cycles == nil {
		cycles = []domain.TriangularCycle{}
	}
	writeJSON(w, http.StatusOK, evaluateTriangularResponse{
		Cycles:    cycles,
		Evaluated: arbitrage.CountCandidates(g, params.Anchors),
		Discarded: g.Discarded(),
	})
}
