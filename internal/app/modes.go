package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/arbscanner/internal/arbitrage"
	"github.com/alanyoungcy/arbscanner/internal/pipeline"
	"github.com/alanyoungcy/arbscanner/internal/server"
	"github.com/alanyoungcy/arbscanner/internal/server/handler"
	"github.com/alanyoungcy/arbscanner/internal/server/ws"
	"github.com/alanyoungcy/arbscanner/internal/service"
)

// CrossMode runs the cross-exchange detector and, when enabled, the API.
func (a *App) CrossMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting cross mode")
	return a.runScanners(ctx, deps, true, false)
}

// TriangularMode runs one triangular detector per configured exchange and,
// when enabled, the API.
func (a *App) TriangularMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting triangular mode")
	return a.runScanners(ctx, deps, false, true)
}

// FullMode runs every detector and, when enabled, the API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runScanners(ctx, deps, true, true)
}

// MonitorMode serves the API over results recorded by scanning replicas.
// No detector runs, so manual triggers answer 404.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	registry, err := a.quoteRegistry()
	if err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}
	return a.runPipeline(ctx, deps, a.apiTasks(deps, registry, nil))
}

func (a *App) runScanners(ctx context.Context, deps *Dependencies, cross, triangular bool) error {
	registry, err := a.quoteRegistry()
	if err != nil {
		return fmt.Errorf("app: quote assets: %w", err)
	}

	detectors := arbitrage.NewRegistry()
	var tasks []pipeline.Task

	if cross {
		d, err := a.crossDetector(deps, registry)
		if err != nil {
			return err
		}
		if err := detectors.Register(d); err != nil {
			return err
		}
	}
	if triangular {
		dets, streams, err := a.triangularDetectors(deps, registry)
		if err != nil {
			return err
		}
		for _, d := range dets {
			if err := detectors.Register(d); err != nil {
				return err
			}
		}
		tasks = append(tasks, streams...)
	}

	for _, d := range detectors.Detectors() {
		tasks = append(tasks, pipeline.Task{Name: "detector:" + d.Name(), Runner: d})
	}
	a.logger.InfoContext(ctx, "detectors configured", slog.Any("scanners", detectors.List()))

	if a.cfg.Server.Enabled {
		tasks = append(tasks, a.apiTasks(deps, registry, detectors)...)
	}
	return a.runPipeline(ctx, deps, tasks)
}

// runPipeline hands the tasks to the orchestrator, adding the archive cron
// when cold storage is wired.
func (a *App) runPipeline(ctx context.Context, deps *Dependencies, tasks []pipeline.Task) error {
	var archiver *pipeline.Archiver
	if deps.Archiver != nil {
		archiver = pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	}
	return pipeline.NewOrchestrator(tasks, archiver, a.cfg.Archive.Cron, a.logger).Run(ctx)
}

// apiTasks builds the HTTP server and the WebSocket hub. detectors is nil
// when nothing scans in this process.
func (a *App) apiTasks(deps *Dependencies, registry *arbitrage.QuoteAssetRegistry, detectors *arbitrage.Registry) []pipeline.Task {
	var (
		triggers handler.Triggerer
		statuses handler.StatusSource
	)
	if detectors != nil {
		triggers, statuses = detectors, detectors
	}

	hub := ws.NewHub(deps.Bus, ws.Config{
		Mode:      a.cfg.Mode,
		Version:   a.version,
		StartedAt: a.startedAt,
	}, a.cfg.Server.CORSOrigins, a.logger)

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(deps.Health, a.logger),
		Status:        handler.NewStatusHandler(a.cfg.Mode, a.version, a.startedAt, statuses),
		Opportunities: handler.NewOpportunityHandler(deps.Scans, triggers, a.cfg.FeeTable(), a.logger),
		Evaluate:      handler.NewEvaluateHandler(a.cfg.EngineDefaults(), registry, a.logger),
		Hub:           hub,
	}
	if deps.BlobReader != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	return []pipeline.Task{
		{Name: "ws_hub", Runner: hub},
		{Name: "http_server", Runner: srv},
	}
}

var (
	_ arbitrage.Recorder   = (*service.ScanService)(nil)
	_ handler.ScanReader   = (*service.ScanService)(nil)
	_ handler.Triggerer    = (*arbitrage.Registry)(nil)
	_ handler.StatusSource = (*arbitrage.Registry)(nil)
)
