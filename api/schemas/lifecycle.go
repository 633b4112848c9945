package schemas

import "fmt"

// Stage names a step of the per-item pipeline. It is used in logs and in
// diagnostic artifact names.
type Stage string

const (
	StageSearch   Stage = "search"
	StageExtract  Stage = "extract"
	StageTransfer Stage = "transfer"
)

// ItemState is a node of the per-WorkItem lifecycle.
type ItemState string

const (
	StatePending          ItemState = "PENDING"
	StateSearching        ItemState = "SEARCHING"
	StateNoMatch          ItemState = "NO_MATCH"
	StateMatched          ItemState = "MATCHED"
	StateExtracting       ItemState = "EXTRACTING"
	StateExtracted        ItemState = "EXTRACTED"
	StateExtractionFailed ItemState = "EXTRACTION_FAILED"
	StateTransferring     ItemState = "TRANSFERRING"
	StateTransferFailed   ItemState = "TRANSFER_FAILED"
	StateSuccess          ItemState = "SUCCESS"
)

var itemTransitions = map[ItemState][]ItemState{
	StatePending:      {StateSearching},
	StateSearching:    {StateNoMatch, StateMatched},
	StateMatched:      {StateExtracting},
	StateExtracting:   {StateExtracted, StateExtractionFailed},
	StateExtracted:    {StateTransferring},
	StateTransferring: {StateSuccess, StateTransferFailed},
}

// Terminal reports whether no further transition is allowed from s.
func (s ItemState) Terminal() bool {
	_, ok := itemTransitions[s]
	return !ok
}

// Status maps a terminal state onto the result status it records.
func (s ItemState) Status() (Status, bool) {
	switch s {
	case StateNoMatch:
		return StatusNoMatch, true
	case StateExtractionFailed:
		return StatusExtractionFailed, true
	case StateTransferFailed:
		return StatusTransferFailed, true
	case StateSuccess:
		return StatusSuccess, true
	}
	return "", false
}

// Lifecycle tracks a single WorkItem through the pipeline and rejects
// transitions the pipeline does not define.
type Lifecycle struct {
	state ItemState
}

// NewLifecycle starts a lifecycle in the Pending state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StatePending}
}

// State returns the current state.
func (l *Lifecycle) State() ItemState { return l.state }

// Advance moves to next, or returns an error if the transition is illegal.
func (l *Lifecycle) Advance(next ItemState) error {
	for _, allowed := range itemTransitions[l.state] {
		if allowed == next {
			l.state = next
			return nil
		}
	}
	return fmt.Errorf("illegal item transition %s -> %s", l.state, next)
}
