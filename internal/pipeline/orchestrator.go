// Package pipeline runs the long-lived background loops: scan detectors,
// live book streams and the cold-storage archiver.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner is a loop that blocks until ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Task names a Runner for logging.
type Task struct {
	Name   string
	Runner Runner
}

// Orchestrator runs every task plus the archive cron concurrently. Any task
// failing with something other than cancellation stops the others.
type Orchestrator struct {
	tasks       []Task
	archiver    *Archiver
	archiveCron string
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator. archiver may be nil.
func NewOrchestrator(tasks []Task, archiver *Archiver, archiveCron string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		tasks:       tasks,
		archiver:    archiver,
		archiveCron: archiveCron,
		logger:      logger.With(slog.String("component", "orchestrator")),
	}
}

// Run blocks until ctx is cancelled or a task fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Int("tasks", len(o.tasks)),
		slog.String("archive_cron", o.archiveCron),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range o.tasks {
		g.Go(func() error {
			o.logger.Debug("task starting", slog.String("task", t.Name))
			err := t.Runner.Run(gctx)
			if gctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			if err == nil {
				return nil
			}
			return fmt.Errorf("%s: %w", t.Name, err)
		})
	}
	if o.archiver != nil && o.archiveCron != "" {
		g.Go(func() error {
			err := o.archiver.RunCron(gctx, o.archiveCron)
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
