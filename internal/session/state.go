package session

import "fmt"

// State is the authentication lifecycle of the two application sessions.
type State int

const (
	Uninitialized State = iota
	SourceAuthenticating
	SourceReady
	TargetAuthenticating
	Ready
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case SourceAuthenticating:
		return "source_authenticating"
	case SourceReady:
		return "source_ready"
	case TargetAuthenticating:
		return "target_authenticating"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
