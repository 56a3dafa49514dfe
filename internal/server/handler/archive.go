package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/blob/s3"
	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// ArchiveHandler lists and serves the monthly JSONL archives.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logHandler(logger, "archive")}
}

// List returns the archive files of a kind.
// GET /api/archive/{kind}
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseScanKind(r.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown scan kind %q", r.PathValue("kind")))
		return
	}
	files, err := h.blobs.List(r.Context(), s3blob.ArchivePrefix(kind))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list archive")
		return
	}
	if files == nil {
		files = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "files": files})
}

// Get streams one month's archive as JSONL.
// GET /api/archive/{kind}/{month}
func (h *ArchiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind, ok := domain.ParseScanKind(r.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown scan kind %q", r.PathValue("kind")))
		return
	}
	month, err := time.Parse("2006-01", r.PathValue("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid month %q, want YYYY-MM", r.PathValue("month")))
		return
	}

	body, err := h.blobs.Get(r.Context(), s3blob.ArchivePath(kind, month))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to read archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted", slog.String("error", err.Error()))
	}
}
