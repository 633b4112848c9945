// File: internal/observability/diagnostics.go
package observability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/nelakvee/recordsync/api/schemas"
	"github.com/nelakvee/recordsync/internal/automation"
)

// ScreenshotTimeLayout is the timestamp layout used in artifact names.
const ScreenshotTimeLayout = "20060102_150405"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Diagnostics records failure evidence: one structured log event and, when a
// screenshotter is available, one image of the focused context.
type Diagnostics struct {
	dir    string
	shots  automation.Screenshotter
	logger *zap.Logger
	now    func() time.Time
}

// NewDiagnostics creates a sink writing screenshots into dir. shots may be nil.
func NewDiagnostics(dir string, shots automation.Screenshotter, logger *zap.Logger) *Diagnostics {
	return &Diagnostics{
		dir:    dir,
		shots:  shots,
		logger: logger.Named("diagnostics"),
		now:    time.Now,
	}
}

// ScreenshotName builds error_{key}_{stage}_{timestamp}.png with key made
// safe for the filesystem.
func ScreenshotName(key string, stage schemas.Stage, at time.Time) string {
	safe := unsafeFileChars.ReplaceAllString(key, "_")
	if safe == "" {
		safe = "unknown"
	}
	return fmt.Sprintf("error_%s_%s_%s.png", safe, stage, at.Format(ScreenshotTimeLayout))
}

// Capture logs the failure and saves a screenshot. It returns the screenshot
// path, or "" if none was written. Capture never fails the caller; problems
// writing the artifact are logged.
func (d *Diagnostics) Capture(ctx context.Context, key string, stage schemas.Stage, cause error) string {
	d.logger.Error("Work item failed",
		zap.String("key", key),
		zap.String("stage", string(stage)),
		zap.Error(cause))

	if d.shots == nil || d.dir == "" {
		return ""
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.logger.Warn("Could not create screenshot directory", zap.String("dir", d.dir), zap.Error(err))
		return ""
	}
	path := filepath.Join(d.dir, ScreenshotName(key, stage, d.now()))
	if err := d.shots.Screenshot(ctx, path); err != nil {
		d.logger.Warn("Could not capture failure screenshot", zap.String("path", path), zap.Error(err))
		return ""
	}
	d.logger.Info("Saved failure screenshot", zap.String("path", path))
	return path
}
