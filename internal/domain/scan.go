package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScanKind names a detection mode.
type ScanKind string

const (
	ScanCrossExchange ScanKind = "cross_exchange"
	ScanTriangular    ScanKind = "triangular"
)

// ParseScanKind accepts the canonical names plus the short "cross" alias.
func ParseScanKind(s string) (ScanKind, bool) {
	switch s {
	case "cross", string(ScanCrossExchange):
		return ScanCrossExchange, true
	case string(ScanTriangular):
		return ScanTriangular, true
	}
	return "", false
}

// Channel is the pub/sub channel reports of this kind are published on.
func (k ScanKind) Channel() string {
	return "arb:" + string(k)
}

// ReportStream is the durable stream every accepted report summary is
// appended to.
const ReportStream = "arb:reports"

// ScanReport is the ranked output of one scanner run.
type ScanReport struct {
	Kind        ScanKind           `json:"kind"`
	Generation  uint64             `json:"generation"`
	Exchange    string             `json:"exchange,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	Cross       []CrossOpportunity `json:"cross,omitempty"`
	Cycles      []TriangularCycle  `json:"cycles,omitempty"`
	// Evaluated counts assets (cross) or candidate chains (triangular).
	Evaluated int `json:"evaluated"`
	// Discarded counts unusable inputs: quotes, symbols or instruments.
	Discarded int `json:"discarded"`
}

// Len returns the number of opportunities in the report.
func (r ScanReport) Len() int {
	return len(r.Cross) + len(r.Cycles)
}

// ScanStatus is the runtime state of one scanner.
type ScanStatus struct {
	Name           string        `json:"name"`
	Kind           ScanKind      `json:"kind"`
	Interval       time.Duration `json:"interval"`
	Generation     uint64        `json:"generation"`
	LastAccepted   uint64        `json:"last_accepted"`
	LastRunAt      time.Time     `json:"last_run_at,omitzero"`
	LastError      string        `json:"last_error,omitempty"`
	Superseded     uint64        `json:"superseded"`
	LastReportSize int           `json:"last_report_size"`
}

// ReportSummary is the compact form of a report kept on ReportStream.
type ReportSummary struct {
	// ID is the stream entry id, usable as the next read cursor.
	ID            string          `json:"id,omitempty"`
	Kind          ScanKind        `json:"kind"`
	Generation    uint64          `json:"generation"`
	Exchange      string          `json:"exchange,omitempty"`
	Opportunities int             `json:"opportunities"`
	Evaluated     int             `json:"evaluated"`
	Discarded     int             `json:"discarded"`
	BestPercent   decimal.Decimal `json:"best_percent"`
	CompletedAt   time.Time       `json:"completed_at"`
}

// Summary condenses the report. BestPercent is the top-ranked
// opportunity's profit percentage.
func (r ScanReport) Summary() ReportSummary {
	s := ReportSummary{
		Kind:          r.Kind,
		Generation:    r.Generation,
		Exchange:      r.Exchange,
		Opportunities: r.Len(),
		Evaluated:     r.Evaluated,
		Discarded:     r.Discarded,
		CompletedAt:   r.CompletedAt,
	}
	switch {
	case len(r.Cross) > 0:
		s.BestPercent = r.Cross[0].Result.ProfitPercentage
	case len(r.Cycles) > 0:
		s.BestPercent = r.Cycles[0].ProfitPercentage
	}
	return s
}
