package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
)

// Checkpoint suspends authentication until a human has completed an
// out-of-band step such as multi-factor approval.
type Checkpoint interface {
	Await(ctx context.Context, prompt string) error
}

// ConsoleCheckpoint prints the prompt and waits for a line on In.
type ConsoleCheckpoint struct {
	In  io.Reader
	Out io.Writer
}

// Await blocks until a line is read or ctx ends. When ctx ends first the
// reader goroutine stays blocked on In until a line arrives or In is closed;
// with stdin that is the end of the process. A run awaits at most one
// checkpoint, so at most one such reader is left behind.
func (c ConsoleCheckpoint) Await(ctx context.Context, prompt string) error {
	if _, err := fmt.Fprintf(c.Out, "\n%s\nPress ENTER to continue... ", prompt); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(c.In).ReadString('\n')
		if err == io.EOF {
			err = fmt.Errorf("operator input closed before confirmation: %w", err)
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("waiting for operator: %w", ctx.Err())
	case err := <-done:
		return err
	}
}
