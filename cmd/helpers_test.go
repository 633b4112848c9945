package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nelakvee/recordsync/internal/observability"
	"github.com/nelakvee/recordsync/internal/service"
)

// isolateLogging points the rotated log file into a temp dir and resets the
// global logger around the test.
func isolateLogging(t *testing.T) {
	t.Helper()
	t.Setenv("RECORDSYNC_LOGGER_LOG_FILE", filepath.Join(t.TempDir(), "recordsync.log"))
	t.Setenv("RECORDSYNC_LOGGER_LEVEL", "error")
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
}

// executeCommand runs the root command with args and returns its output.
func executeCommand(t *testing.T, factory service.ComponentFactory, args ...string) (string, error) {
	t.Helper()
	isolateLogging(t)

	root := newRootCommand(&app{factory: factory, in: strings.NewReader("\n")})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
