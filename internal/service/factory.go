// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/internal/automation"
	"github.com/nelakvee/recordsync/internal/config"
	"github.com/nelakvee/recordsync/internal/extract"
	"github.com/nelakvee/recordsync/internal/observability"
	"github.com/nelakvee/recordsync/internal/orchestrator"
	"github.com/nelakvee/recordsync/internal/retry"
	"github.com/nelakvee/recordsync/internal/search"
	"github.com/nelakvee/recordsync/internal/session"
	"github.com/nelakvee/recordsync/internal/store"
	"github.com/nelakvee/recordsync/internal/transfer"
)

// ComponentFactory defines the interface for creating the set of components needed for a run.
// This abstraction is the key to making the run command's logic testable.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, checkpoint session.Checkpoint, logger *zap.Logger) (*Components, error)
}

// SurfaceOpener starts the automation surface.
type SurfaceOpener func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (automation.Surface, error)

// StoreOpener connects the optional result store.
type StoreOpener func(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*store.Store, *pgxpool.Pool, error)

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	openSurface SurfaceOpener
	openStore   StoreOpener
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{
		openSurface: InitializeBrowser,
		openStore:   InitializeStore,
	}
}

// NewComponentFactoryWith builds a factory over custom openers.
func NewComponentFactoryWith(openSurface SurfaceOpener, openStore StoreOpener) ComponentFactory {
	return &concreteFactory{openSurface: openSurface, openStore: openStore}
}

// Create handles the full dependency injection and initialization of run components.
// Sessions are not started; the caller drives authentication.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, checkpoint session.Checkpoint, logger *zap.Logger) (*Components, error) {
	if checkpoint == nil {
		return nil, fmt.Errorf("an operator checkpoint is required")
	}
	components := &Components{}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Result store (optional)
	if cfg.Database().Enabled {
		s, pool, err := f.openStore(ctx, cfg.Database(), logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize result store: %w", err)
			return nil, initializationErr
		}
		components.Store = s
		components.DBPool = pool
	}

	// 2. Browser
	surface, err := f.openSurface(ctx, cfg.Browser(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to start browser: %w", err)
		return nil, initializationErr
	}
	components.Surface = surface
	logger.Debug("Automation surface ready.")

	// 3. Sessions
	sessions := session.NewManager(surface, checkpoint, cfg, logger)
	components.Sessions = sessions

	// 4. Pipeline stages
	policy := newRetryPolicy(cfg.Retry(), logger)
	c := orchestrator.Components{
		Sessions:    sessions,
		Searcher:    search.NewEngine(surface, sessions, policy, cfg, logger),
		Extractor:   extract.NewProtocol(surface, sessions, cfg, logger),
		Transferer:  transfer.NewProtocol(surface, sessions, policy, cfg, logger),
		Diagnostics: observability.NewDiagnostics(cfg.Diagnostics().ScreenshotDir, surface, logger),
	}
	if components.Store != nil {
		c.Results = components.Store
	}

	// 5. Orchestrator
	orch, err := orchestrator.New(cfg, logger, c)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create orchestrator: %w", err)
		return nil, initializationErr
	}
	components.Orchestrator = orch

	logger.Info("All run components initialized successfully.",
		zap.Bool("result_store", components.Store != nil),
		zap.Bool("commit_enabled", cfg.Transfer().CommitEnabled))
	return components, nil
}

// newRetryPolicy starts from the default policy and applies the configured
// attempt count and delay where they are set.
func newRetryPolicy(rc config.RetryConfig, logger *zap.Logger) *retry.Policy {
	policy := retry.NewDefaultPolicy(logger.Named("retry"))
	if rc.MaxAttempts > 0 {
		policy.MaxAttempts = rc.MaxAttempts
	}
	if rc.Delay > 0 {
		policy.Delay = rc.Delay
	}
	return policy
}
