// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/internal/automation"
	"github.com/nelakvee/recordsync/internal/observability"
	"github.com/nelakvee/recordsync/internal/orchestrator"
	"github.com/nelakvee/recordsync/internal/session"
	"github.com/nelakvee/recordsync/internal/store"
)

const shutdownTimeout = 30 * time.Second

// Components holds all the initialized services required for a sync run.
// This struct centralizes the lifecycle management of run dependencies.
type Components struct {
	Surface      automation.Surface
	Sessions     *session.Manager
	Orchestrator *orchestrator.Orchestrator
	Store        *store.Store
	DBPool       *pgxpool.Pool
}

// Shutdown closes the browser and the database pool. It is safe to call on
// partially initialized components.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// The browser outlives the run context; give it its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	switch {
	case c.Sessions != nil:
		if err := c.Sessions.Close(ctx); err != nil {
			logger.Warn("Error during session shutdown.", zap.Error(err))
		}
	case c.Surface != nil:
		if err := c.Surface.Close(); err != nil {
			logger.Warn("Error during browser shutdown.", zap.Error(err))
		}
	}

	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down.")
}
