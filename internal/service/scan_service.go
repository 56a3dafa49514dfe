// Package service records accepted scan reports and serves them back to the
// API.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// ReportNotifier alerts on a recorded report.
type ReportNotifier interface {
	NotifyReport(ctx context.Context, report domain.ScanReport) error
}

// ScanServiceConfig wires a ScanService. Only Cache is required; the other
// sinks are skipped when nil.
type ScanServiceConfig struct {
	Cache    domain.SnapshotCache
	Store    domain.OpportunityStore
	Bus      domain.SignalBus
	Audit    domain.AuditStore
	Notifier ReportNotifier
	Logger   *slog.Logger
}

// ScanService fans accepted reports out to the snapshot cache, the history
// store, the signal bus, the audit log and the notifier.
type ScanService struct {
	cache    domain.SnapshotCache
	store    domain.OpportunityStore
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier ReportNotifier
	logger   *slog.Logger
}

// NewScanService creates a ScanService.
func NewScanService(cfg ScanServiceConfig) *ScanService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemorySnapshots()
	}
	return &ScanService{
		cache:    cache,
		store:    cfg.Store,
		bus:      cfg.Bus,
		audit:    cfg.Audit,
		notifier: cfg.Notifier,
		logger:   logger.With(slog.String("component", "scan_service")),
	}
}

// Record implements arbitrage.Recorder. Every sink is attempted; the
// failures are joined. Only cross opportunities profitable after fees are
// kept in history; every emitted cycle already is.
func (s *ScanService) Record(ctx context.Context, report domain.ScanReport) error {
	var errs []error

	if err := s.cache.SetReport(ctx, report); err != nil {
		errs = append(errs, fmt.Errorf("service: cache report: %w", err))
	}

	if s.bus != nil {
		if err := s.publish(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}

	if s.store != nil {
		if err := s.persist(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}

	if s.audit != nil {
		sum := report.Summary()
		if err := s.audit.Log(ctx, "scan_completed", map[string]any{
			"kind":          string(sum.Kind),
			"generation":    sum.Generation,
			"exchange":      sum.Exchange,
			"opportunities": sum.Opportunities,
			"evaluated":     sum.Evaluated,
			"discarded":     sum.Discarded,
			"best_percent":  sum.BestPercent.String(),
		}); err != nil {
			errs = append(errs, fmt.Errorf("service: audit scan: %w", err))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyReport(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("service: notify: %w", err))
		}
	}

	s.logger.InfoContext(ctx, "scan recorded",
		slog.String("kind", string(report.Kind)),
		slog.Uint64("generation", report.Generation),
		slog.Int("opportunities", report.Len()),
		slog.Int("sink_errors", len(errs)),
	)
	return errors.Join(errs...)
}

func (s *ScanService) publish(ctx context.Context, report domain.ScanReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("service: marshal report: %w", err)
	}
	if err := s.bus.Publish(ctx, report.Kind.Channel(), payload); err != nil {
		return fmt.Errorf("service: publish report: %w", err)
	}
	summary, err := json.Marshal(report.Summary())
	if err != nil {
		return fmt.Errorf("service: marshal summary: %w", err)
	}
	if err := s.bus.StreamAppend(ctx, domain.ReportStream, summary); err != nil {
		return fmt.Errorf("service: append summary: %w", err)
	}
	return nil
}

func (s *ScanService) persist(ctx context.Context, report domain.ScanReport) error {
	switch report.Kind {
	case domain.ScanCrossExchange:
		profitable := ProfitableCross(report.Cross)
		if err := s.store.InsertCross(ctx, profitable); err != nil {
			return fmt.Errorf("service: store cross: %w", err)
		}
	case domain.ScanTriangular:
		if err := s.store.InsertCycles(ctx, report.Cycles); err != nil {
			return fmt.Errorf("service: store cycles: %w", err)
		}
	}
	return nil
}

// Latest returns the most recent accepted report of kind.
func (s *ScanService) Latest(ctx context.Context, kind domain.ScanKind) (domain.ScanReport, error) {
	report, err := s.cache.GetReport(ctx, kind)
	if err != nil {
		return domain.ScanReport{}, fmt.Errorf("service: latest %s: %w", kind, err)
	}
	return report, nil
}

// CrossHistory lists stored cross-exchange opportunities, newest first.
func (s *ScanService) CrossHistory(ctx context.Context, opts domain.ListOpts) ([]domain.CrossOpportunity, error) {
	if s.store == nil {
		return nil, fmt.Errorf("service: cross history: %w: no history store", domain.ErrNotFound)
	}
	opps, err := s.store.ListCross(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service: cross history: %w", err)
	}
	return opps, nil
}

// CycleHistory lists stored triangular cycles, newest first.
func (s *ScanService) CycleHistory(ctx context.Context, opts domain.ListOpts) ([]domain.TriangularCycle, error) {
	if s.store == nil {
		return nil, fmt.Errorf("service: cycle history: %w: no history store", domain.ErrNotFound)
	}
	cycles, err := s.store.ListCycles(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service: cycle history: %w", err)
	}
	return cycles, nil
}

// Summaries reads up to count report summaries added to the stream after
// the entry id after. An empty after reads from the oldest retained entry.
func (s *ScanService) Summaries(ctx context.Context, after string, count int) ([]domain.ReportSummary, error) {
	if s.bus == nil {
		return nil, nil
	}
	if after == "" {
		after = "0"
	}
	msgs, err := s.bus.StreamRead(ctx, domain.ReportStream, after, count)
	if err != nil {
		return nil, fmt.Errorf("service: recent summaries: %w", err)
	}
	out := make([]domain.ReportSummary, 0, len(msgs))
	for _, m := range msgs {
		var sum domain.ReportSummary
		if err := json.Unmarshal(m.Payload, &sum); err != nil {
			s.logger.WarnContext(ctx, "skipping malformed summary", slog.String("id", m.ID), slog.String("error", err.Error()))
			continue
		}
		sum.ID = m.ID
		out = append(out, sum)
	}
	return out, nil
}

// ProfitableCross keeps the opportunities with a positive profit after
// fees.
func ProfitableCross(opps []domain.CrossOpportunity) []domain.CrossOpportunity {
	out := make([]domain.CrossOpportunity, 0, len(opps))
	for _, o := range opps {
		if o.Result.ProfitAfterFees.IsPositive() {
			out = append(out, o)
		}
	}
	return out
}
