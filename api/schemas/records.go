package schemas

import "time"

// -- Work Items --

// WorkItem is one row of the batch input: the key searched in the source
// system and the label the matching source row is expected to carry.
type WorkItem struct {
	Key           string `json:"key"`
	ExpectedLabel string `json:"expected_label"`
	// Row is the 1-based row number in the input file, for operator reference.
	Row int `json:"row,omitempty"`
}

// ExtractedRecord is the fixed-shape payload carried from the source detail
// view into the target form. All three fields are mandatory.
type ExtractedRecord struct {
	Vendor  string `json:"vendor"`
	Account string `json:"account"`
	Meter   string `json:"meter"`
}

// Complete reports whether every field carries a value.
func (r ExtractedRecord) Complete() bool {
	return r.Vendor != "" && r.Account != "" && r.Meter != ""
}

// -- Results --

// Status is the terminal outcome recorded for a WorkItem.
type Status string

const (
	StatusNoMatch          Status = "NO_MATCH"
	StatusExtractionFailed Status = "EXTRACTION_FAILED"
	StatusTransferFailed   Status = "TRANSFER_FAILED"
	StatusSuccess          Status = "SUCCESS"
)

// Statuses lists every terminal status in report order.
var Statuses = []Status{StatusSuccess, StatusNoMatch, StatusExtractionFailed, StatusTransferFailed}

// TransferOutcome describes what happened at the commit gate of a transfer.
type TransferOutcome string

const (
	OutcomeNone          TransferOutcome = ""
	OutcomeCommitted     TransferOutcome = "COMMITTED"
	OutcomeCommitSkipped TransferOutcome = "COMMIT_SKIPPED"
)

// BatchResult is the immutable record of one processed WorkItem.
type BatchResult struct {
	RunID      string          `json:"run_id"`
	Index      int             `json:"index"`
	Key        string          `json:"key"`
	Status     Status          `json:"status"`
	Outcome    TransferOutcome `json:"outcome,omitempty"`
	Stage      Stage           `json:"stage,omitempty"`
	Diagnostic string          `json:"diagnostic,omitempty"`
	Screenshot string          `json:"screenshot,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	Duration   time.Duration   `json:"duration"`
}

// RunSummary aggregates the results of a batch run.
type RunSummary struct {
	RunID       string         `json:"run_id"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Total       int            `json:"total"`
	Processed   int            `json:"processed"`
	Counts      map[Status]int `json:"counts"`
	Committed   int            `json:"committed"`
	Aborted     bool           `json:"aborted"`
	AbortReason string         `json:"abort_reason,omitempty"`
	Results     []BatchResult  `json:"results"`
}

// NewRunSummary returns an empty summary for a run over total items.
func NewRunSummary(runID string, total int, startedAt time.Time) *RunSummary {
	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}
	return &RunSummary{
		RunID:     runID,
		StartedAt: startedAt,
		Total:     total,
		Counts:    counts,
		Results:   make([]BatchResult, 0, total),
	}
}

// Add records a result and updates the counters.
func (s *RunSummary) Add(r BatchResult) {
	s.Results = append(s.Results, r)
	s.Counts[r.Status]++
	s.Processed++
	if r.Outcome == OutcomeCommitted {
		s.Committed++
	}
}
