package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache. The latest report of each
// scan kind is stored as JSON at "scan:latest:{kind}".
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache. A zero ttl keeps reports until
// they are overwritten.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: c.driver(), ttl: ttl}
}

func snapshotKey(kind domain.ScanKind) string {
	return "scan:latest:" + string(kind)
}

// SetReport overwrites the latest report of the report's kind.
func (sc *SnapshotCache) SetReport(ctx context.Context, report domain.ScanReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis: marshal report %s: %w", report.Kind, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(report.Kind), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set report %s: %w", report.Kind, err)
	}
	return nil
}

// GetReport returns the latest report of kind or domain.ErrNotFound.
func (sc *SnapshotCache) GetReport(ctx context.Context, kind domain.ScanKind) (domain.ScanReport, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ScanReport{}, fmt.Errorf("redis: get report %s: %w", kind, domain.ErrNotFound)
		}
		return domain.ScanReport{}, fmt.Errorf("redis: get report %s: %w", kind, err)
	}

	var report domain.ScanReport
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.ScanReport{}, fmt.Errorf("redis: decode report %s: %w", kind, err)
	}
	return report, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
