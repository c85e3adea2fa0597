package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/chrissnell/segfit/internal/analysis"
	"github.com/chrissnell/segfit/internal/controllers/restserver"
	"github.com/chrissnell/segfit/internal/fit"
	"github.com/chrissnell/segfit/internal/log"
	"github.com/chrissnell/segfit/internal/samples"
	"github.com/chrissnell/segfit/internal/storage"
	"github.com/chrissnell/segfit/internal/workspace"
	"github.com/chrissnell/segfit/pkg/config"
	"github.com/chrissnell/segfit/pkg/segment"
)

// App represents the main application
type App struct {
	cfg    *config.ConfigData
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// FitOptions converts the fit section of the configuration
func FitOptions(f config.FitData) fit.Options {
	return fit.Options{
		ConstraintWeight:  f.ConstraintWeight,
		BoundaryEpsilon:   f.BoundaryEpsilon,
		ConstantTolerance: f.ConstantTolerance,
	}
}

// LoadWorkspace reads the configured sample table, creates one channel per
// column and applies the optional segments file. When auto-recalculation is
// on every channel is fitted before returning.
func LoadWorkspace(cfg *config.ConfigData, logger *zap.SugaredLogger) (*workspace.Workspace, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Data.File == "" {
		return nil, fmt.Errorf("%w: data.file is required", config.ErrInvalidConfig)
	}

	f, err := os.Open(cfg.Data.File)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample table: %w", err)
	}
	defer f.Close()

	table, err := samples.ReadCSV(f, cfg.Data.TimeColumn)
	if err != nil {
		return nil, fmt.Errorf("failed to read sample table %s: %w", cfg.Data.File, err)
	}

	calc := analysis.NewCalculator(FitOptions(cfg.Fit), cfg.Fit.Fallback(), logger.Named("analysis"))
	ws := workspace.New(table, calc, cfg.Fit.BoundaryEpsilon,
		workspace.WithDefaultDegree(cfg.Fit.Degree()),
		workspace.WithLogger(logger.Named("editor")),
	)
	if err := ws.Discover(); err != nil {
		return nil, err
	}
	logger.Infof("loaded %d channels from %s", len(ws.Names()), cfg.Data.File)

	if cfg.Data.Segments != "" {
		if err := restoreSegments(ws, cfg.Data.Segments); err != nil {
			return nil, err
		}
		logger.Infof("applied segments from %s", cfg.Data.Segments)
	}

	if cfg.Fit.Recalculate() {
		reports, err := ws.RecomputeAll()
		if err != nil {
			return nil, err
		}
		for _, r := range reports {
			if len(r.Failed) > 0 {
				logger.Warnf("[%s] %d of %d segments could not be fitted", r.Channel, len(r.Failed), len(r.Failed)+len(r.Fitted))
			}
		}
	}

	return ws, nil
}

func restoreSegments(ws *workspace.Workspace, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segments file: %w", err)
	}
	defer f.Close()

	states, err := segment.DecodeChannels(f)
	if err != nil {
		return fmt.Errorf("failed to read segments file %s: %w", path, err)
	}
	if err := ws.Restore(states); err != nil {
		return fmt.Errorf("segments file %s does not match the sample table: %w", path, err)
	}
	return nil
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ws, err := LoadWorkspace(a.cfg, a.logger)
	if err != nil {
		return err
	}

	var store storage.ProjectStore
	if a.cfg.Storage.SQLite != nil {
		s, err := storage.Open(a.cfg.Storage.SQLite.Path, a.logger.Named("storage"))
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
		a.logger.Infof("project storage at %s", a.cfg.Storage.SQLite.Path)
	}

	ctrl, err := restserver.NewController(ctx, &wg, a.cfg, ws, store, a.logger.Named("rest"))
	if err != nil {
		return err
	}
	if err := ctrl.StartController(); err != nil {
		return err
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
