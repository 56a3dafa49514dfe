package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// multipartThreshold switches uploads to the multipart path.
const multipartThreshold = 64 * 1024 * 1024

// CrossArchiveStore lists cross-exchange history for archival.
type CrossArchiveStore interface {
	ListCrossBefore(ctx context.Context, before time.Time) ([]domain.CrossOpportunity, error)
}

// CycleArchiveStore lists triangular history for archival.
type CycleArchiveStore interface {
	ListCyclesBefore(ctx context.Context, before time.Time) ([]domain.TriangularCycle, error)
}

// ArchiveImpl implements domain.Archiver: it serializes history older than
// a cutoff to JSONL under archive/<kind>/YYYY-MM.jsonl and records the run
// in the audit log. Archived rows stay in the primary store.
type ArchiveImpl struct {
	writer domain.BlobWriter
	cross  CrossArchiveStore
	cycles CycleArchiveStore
	audit  domain.AuditStore
}

// NewArchiver creates an ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, cross CrossArchiveStore, cycles CycleArchiveStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, cross: cross, cycles: cycles, audit: audit}
}

// ArchiveCross archives cross-exchange opportunities detected before the
// cutoff and returns how many were written.
func (a *ArchiveImpl) ArchiveCross(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.cross.ListCrossBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive cross query: %w", err)
	}
	return archive(ctx, a, domain.ScanCrossExchange, before, opps)
}

// ArchiveCycles archives triangular cycles detected before the cutoff and
// returns how many were written.
func (a *ArchiveImpl) ArchiveCycles(ctx context.Context, before time.Time) (int64, error) {
	cycles, err := a.cycles.ListCyclesBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive cycles query: %w", err)
	}
	return archive(ctx, a, domain.ScanTriangular, before, cycles)
}

func archive[T any](ctx context.Context, a *ArchiveImpl, kind domain.ScanKind, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := ArchivePath(kind, before)
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	if a.audit == nil {
		return count, nil
	}
	if err := a.audit.Log(ctx, "archive."+string(kind), map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}
	return count, nil
}

// ArchivePrefix is the key prefix of every archive file of kind.
func ArchivePrefix(kind domain.ScanKind) string {
	return "archive/" + string(kind) + "/"
}

// ArchivePath builds the key of the archive file for the cutoff's month,
// e.g. archive/triangular/2025-01.jsonl.
func ArchivePath(kind domain.ScanKind, before time.Time) string {
	return ArchivePrefix(kind) + before.UTC().Format("2006-01") + ".jsonl"
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
