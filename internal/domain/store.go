package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OpportunityStore persists detected opportunities.
type OpportunityStore interface {
	InsertCross(ctx context.Context, opps []CrossOpportunity) error
	InsertCycles(ctx context.Context, cycles []TriangularCycle) error
	ListCross(ctx context.Context, opts ListOpts) ([]CrossOpportunity, error)
	ListCycles(ctx context.Context, opts ListOpts) ([]TriangularCycle, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists audit events.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
