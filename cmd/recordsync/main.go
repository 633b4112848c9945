// File: cmd/recordsync/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/nelakvee/recordsync/cmd"
	"github.com/nelakvee/recordsync/internal/observability"
)

const panicLogFile = "panic.log"

// Define function variables for dependency injection/mocking in tests.
var (
	osWriteFile = os.WriteFile
	// Allows mocking os.Exit in tests.
	osExit      = os.Exit
	execute     = cmd.Execute
)

// main is the entry point of the application.
func main() {
	// Global panic handler; runs last.
	defer handlePanic()

	// Set up a context that listens for interrupt signals (SIGINT, SIGTERM) for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(exitCode(execute(ctx)))
}

// exitCode maps the command result onto the process status. An interrupted
// run exits 130, like a shell does for SIGINT.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

// handlePanic records an unrecovered panic to panic.log and exits non-zero.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}

	// Ensure logs are flushed before proceeding.
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(2)
		return // Return facilitates testing when osExit is mocked.
	}

	fmt.Fprintf(os.Stderr, "\nrecordsync crashed. Details logged to %s\n", panicLogFile)
	osExit(2)
}
