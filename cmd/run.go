// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/api/schemas"
	"github.com/nelakvee/recordsync/internal/config"
	"github.com/nelakvee/recordsync/internal/loader"
	"github.com/nelakvee/recordsync/internal/observability"
	"github.com/nelakvee/recordsync/internal/reporting"
	"github.com/nelakvee/recordsync/internal/session"
)

// ErrNoWorkItems is returned when the input file holds no usable rows.
var ErrNoWorkItems = errors.New("input contains no work items")

// runSync performs one complete batch: load input, authenticate both
// systems, process every item and report.
func runSync(ctx context.Context, cfg *config.Config, a *app, out io.Writer) error {
	logger := observability.GetLogger()

	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}

	items, err := loader.Load(cfg.Input())
	if err != nil {
		return fmt.Errorf("failed to load work items: %w", err)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: %s", ErrNoWorkItems, cfg.Input().Path)
	}
	logger.Info("Loaded work items", zap.Int("count", len(items)), zap.String("path", cfg.Input().Path))

	checkpoint := session.ConsoleCheckpoint{In: a.in, Out: out}
	components, err := a.factory.Create(ctx, cfg, checkpoint, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize run components: %w", err)
	}
	defer components.Shutdown()

	if err := components.Sessions.Start(ctx); err != nil {
		return fmt.Errorf("failed to establish sessions: %w", err)
	}

	summary, runErr := components.Orchestrator.Run(ctx, items)
	if summary != nil {
		if err := writeReports(cfg, summary, out); err != nil {
			logger.Error("Failed to write run report", zap.Error(err))
			if runErr == nil {
				runErr = err
			}
		}
	}
	return runErr
}

// writeReports prints the operator table and, when configured, the JSON report.
func writeReports(cfg config.Interface, summary *schemas.RunSummary, out io.Writer) error {
	text, err := reporting.NewWriter("text", out)
	if err != nil {
		return err
	}
	errs := []error{text.Write(summary), text.Close()}

	if path := cfg.Diagnostics().ReportPath; path != "" {
		r, err := reporting.New("json", path)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		errs = append(errs, r.Write(summary), r.Close())
	}
	return errors.Join(errs...)
}
