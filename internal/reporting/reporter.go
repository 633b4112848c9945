// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/nelakvee/recordsync/api/schemas"
)

// Reporter defines the interface for writing run summaries to an output.
type Reporter interface {
	// Write renders a run summary.
	Write(summary *schemas.RunSummary) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
// An empty path or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	return newReporter(format, outputPath, os.Stdout)
}

// NewWriter creates a reporter over w. Closing the reporter does not close w.
func NewWriter(format string, w io.Writer) (Reporter, error) {
	return newReporter(format, "stdout", w)
}

func newReporter(format, outputPath string, stdout io.Writer) (Reporter, error) {
	switch format {
	case "json", "text":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == "json" {
		return &jsonReporter{w: writer}, nil
	}
	return &textReporter{w: writer}, nil
}

// jsonReporter writes the summary as an indented JSON document.
type jsonReporter struct {
	w io.WriteCloser
}

func (r *jsonReporter) Write(summary *schemas.RunSummary) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}
	return nil
}

func (r *jsonReporter) Close() error { return r.w.Close() }

// textReporter writes an operator-facing table.
type textReporter struct {
	w io.WriteCloser
}

func (r *textReporter) Write(s *schemas.RunSummary) error {
	tw := tabwriter.NewWriter(r.w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Run %s\t%d of %d processed\tcommitted %d\telapsed %s\n",
		s.RunID, s.Processed, s.Total, s.Committed, s.FinishedAt.Sub(s.StartedAt).Round(time.Second))
	for _, status := range schemas.Statuses {
		fmt.Fprintf(tw, "  %s\t%d\n", status, s.Counts[status])
	}
	if s.Aborted {
		fmt.Fprintf(tw, "ABORTED\t%s\n", s.AbortReason)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "#\tKEY\tSTATUS\tOUTCOME\tDETAIL")
	for _, res := range s.Results {
		detail := res.Diagnostic
		if res.Screenshot != "" {
			detail = fmt.Sprintf("%s [%s]", detail, res.Screenshot)
		}
		outcome := string(res.Outcome)
		if outcome == "" {
			outcome = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", res.Index+1, res.Key, res.Status, outcome, detail)
	}
	return tw.Flush()
}

func (r *textReporter) Close() error { return r.w.Close() }
