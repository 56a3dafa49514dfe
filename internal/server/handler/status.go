package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// StatusSource lists the runtime state of every scanner.
type StatusSource interface {
	Statuses() []domain.ScanStatus
}

// StatusHandler serves the process status.
type StatusHandler struct {
	Mode      string
	Version   string
	StartedAt time.Time
	scanners  StatusSource
}

// NewStatusHandler creates a StatusHandler. scanners may be nil in monitor
// mode.
func NewStatusHandler(mode, version string, startedAt time.Time, scanners StatusSource) *StatusHandler {
	return &StatusHandler{Mode: mode, Version: version, StartedAt: startedAt, scanners: scanners}
}

// GetStatus responds with the mode, uptime and per-scanner state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	scanners := []domain.ScanStatus{}
	if h.scanners != nil {
		scanners = append(scanners, h.scanners.Statuses()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"version":        h.Version,
		"started_at":     h.StartedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
		"scanners":       scanners,
	})
}
