// Package notify alerts operators about profitable scan results over
// Telegram and Discord.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// Sender delivers one notification to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Config filters what the Notifier forwards.
type Config struct {
	// Events lists the scan kinds to alert on. Empty allows all.
	Events []string
	// MinProfitPercent is the threshold an opportunity must exceed.
	MinProfitPercent decimal.Decimal
	// MaxItems caps the opportunities listed per message.
	MaxItems int
	// DedupTTL silences an opportunity already alerted within the window.
	// Zero alerts on every report.
	DedupTTL time.Duration
}

// Notifier dispatches scan alerts to every Sender.
type Notifier struct {
	senders   []Sender
	events    map[string]bool
	minProfit decimal.Decimal
	maxItems  int
	dedup     *Dedup
	logger    *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, cfg Config, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		if e = strings.TrimSpace(e); e != "" {
			if kind, ok := domain.ParseScanKind(e); ok {
				e = string(kind)
			}
			allowed[e] = true
		}
	}
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	var dedup *Dedup
	if cfg.DedupTTL > 0 {
		dedup = NewDedup(cfg.DedupTTL)
	}
	return &Notifier{
		senders:   senders,
		dedup:     dedup,
		events:    allowed,
		minProfit: cfg.MinProfitPercent,
		maxItems:  maxItems,
		logger:    logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

// NotifyReport alerts on the report's opportunities above the profit
// threshold. Reports with none are skipped.
func (n *Notifier) NotifyReport(ctx context.Context, report domain.ScanReport) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[string(report.Kind)] {
		return nil
	}

	var lines []string
	switch report.Kind {
	case domain.ScanCrossExchange:
		for _, o := range report.Cross {
			if o.Result.ProfitPercentage.GreaterThan(n.minProfit) && o.Result.ProfitAfterFees.IsPositive() && n.fresh(crossKey(o)) {
				lines = append(lines, FormatCross(o))
			}
		}
	case domain.ScanTriangular:
		for _, c := range report.Cycles {
			if c.ProfitPercentage.GreaterThan(n.minProfit) && n.fresh(cycleKey(c)) {
				lines = append(lines, FormatCycle(c))
			}
		}
	}
	if len(lines) == 0 {
		return nil
	}

	total := len(lines)
	if total > n.maxItems {
		lines = append(lines[:n.maxItems], fmt.Sprintf("... and %d more", total-n.maxItems))
	}
	title := fmt.Sprintf("%d %s opportunities (generation %d)", total, strings.ReplaceAll(string(report.Kind), "_", "-"), report.Generation)
	return n.dispatch(ctx, title, strings.Join(lines, "\n"))
}

func (n *Notifier) fresh(key string) bool {
	return n.dedup == nil || !n.dedup.IsDuplicate(key)
}

// crossKey identifies a cross opportunity by asset and route.
func crossKey(o domain.CrossOpportunity) string {
	return "cross:" + o.Symbol + ":" + o.Result.Lowest.Exchange + ">" + o.Result.Highest.Exchange
}

// cycleKey identifies a cycle by venue and path.
func cycleKey(c domain.TriangularCycle) string {
	path := make([]string, len(c.Path))
	for i, a := range c.Path {
		path[i] = string(a)
	}
	return "cycle:" + c.Exchange + ":" + strings.Join(path, ">")
}

// Notify sends a free-form message to every sender.
func (n *Notifier) Notify(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent", slog.String("sender", s.Name()), slog.String("title", title))
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// FormatCross renders one cross-exchange opportunity on a single line.
func FormatCross(o domain.CrossOpportunity) string {
	r := o.Result
	return fmt.Sprintf("%s: buy %s @ %s, sell %s @ %s, %s%% (%s after fees)",
		o.Symbol,
		r.Lowest.Exchange, r.Lowest.Price.StringFixed(4),
		r.Highest.Exchange, r.Highest.Price.StringFixed(4),
		r.ProfitPercentage.StringFixed(4),
		r.ProfitAfterFees.StringFixed(4),
	)
}

// FormatCycle renders one triangular cycle on a single line.
func FormatCycle(c domain.TriangularCycle) string {
	path := make([]string, len(c.Path))
	for i, a := range c.Path {
		path[i] = string(a)
	}
	where := ""
	if c.Exchange != "" {
		where = " on " + c.Exchange
	}
	return fmt.Sprintf("%s%s: %s%% (%s -> %s)",
		strings.Join(path, " > "), where,
		c.ProfitPercentage.StringFixed(4),
		c.Investment.StringFixed(2), c.FinalAmount.StringFixed(4),
	)
}
