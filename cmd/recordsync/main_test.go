// File: cmd/recordsync/main_test.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nelakvee/recordsync/cmd"
)

// --- Setup Helpers ---

// resetMocks restores the original function implementations.
func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
	execute = cmd.Execute
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 130, exitCode(fmt.Errorf("run aborted: %w", context.Canceled)))
	assert.Equal(t, 1, exitCode(errors.New("login failed")))
}

func TestHandlePanic(t *testing.T) {
	defer resetMocks()

	t.Run("writes panic log", func(t *testing.T) {
		var (
			written  string
			path     string
			exitWith = -1
		)
		osWriteFile = func(name string, data []byte, perm fs.FileMode) error {
			path = name
			written = string(data)
			return nil
		}
		osExit = func(code int) { exitWith = code }

		func() {
			defer handlePanic()
			panic("selector table corrupted")
		}()

		assert.Equal(t, panicLogFile, path)
		assert.Contains(t, written, "panic: selector table corrupted")
		assert.Contains(t, written, "goroutine", "the stack trace is included")
		assert.Equal(t, 2, exitWith)
	})

	t.Run("falls back to stderr", func(t *testing.T) {
		exitWith := -1
		osWriteFile = func(string, []byte, fs.FileMode) error { return errors.New("read-only filesystem") }
		osExit = func(code int) { exitWith = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()
		assert.Equal(t, 2, exitWith)
	})

	t.Run("no panic is a no-op", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		assert.False(t, called)
	})
}

func TestMain_ExitsWithCommandStatus(t *testing.T) {
	defer resetMocks()

	var got []int
	osExit = func(code int) { got = append(got, code) }
	execute = func(ctx context.Context) error {
		require.NotNil(t, ctx)
		return errors.New("bad config")
	}

	main()
	assert.Equal(t, []int{1}, got)
}
