// Package chain implements the session-chaining state machine: it drives one
// bounded engine session at a time against the plan ledger, hands over to a
// fresh session when context usage crosses the threshold, and aborts the chain
// when the fatal classifier flags the environment as broken.
package chain

import (
	"chainrunner/internal/usage"
)

// OutcomeKind is a session's terminal outcome.
type OutcomeKind int

const (
	// OutcomeCompleted means the reconciled ledger shows no remaining tasks.
	OutcomeCompleted OutcomeKind = iota
	// OutcomeHandedOver means the session ended early and produced a
	// handover document for the next session.
	OutcomeHandedOver
	// OutcomeFatal means an unrecoverable environment failure was detected.
	// No handover is produced: the next session would hit the same wall.
	OutcomeFatal
)

// Outcome is the terminal state of one session.
type Outcome struct {
	Kind          OutcomeKind
	Reason        string
	Handover      string   // rendered handover document, set when Kind == OutcomeHandedOver
	SkippedManual []string // manual tasks still pending, set when Kind == OutcomeCompleted
}

// Session is one bounded engine run. It is created immediately before it runs
// and never resumed; continuation is always a new Session seeded from the
// previous one's handover document.
type Session struct {
	Number       int
	Tasks        []string
	Completed    []string
	CurrentIndex int
	Stats        usage.Stats
}

// NewSession creates session n over the given task assignment.
func NewSession(number int, tasks []string) *Session {
	return &Session{Number: number, Tasks: tasks}
}

// CurrentTask returns the task at the current index, or "" past the end.
func (s *Session) CurrentTask() string {
	if s.CurrentIndex < len(s.Tasks) {
		return s.Tasks[s.CurrentIndex]
	}
	return ""
}

// RemainingTasks returns the tasks from the current index onward.
func (s *Session) RemainingTasks() []string {
	if s.CurrentIndex >= len(s.Tasks) {
		return nil
	}
	return s.Tasks[s.CurrentIndex:]
}

// State is the chain's terminal state.
type State string

const (
	StateSucceeded       State = "SUCCESS"
	StateFailedFatal     State = "FAILED_FATAL"
	StateFailedExhausted State = "FAILED_EXHAUSTED"
)

// Result summarizes a chain run.
type Result struct {
	State         State
	SessionsRun   int
	Reason        string
	SkippedManual []string
}

// Succeeded reports whether the chain finished all automatable tasks.
func (r Result) Succeeded() bool {
	return r.State == StateSucceeded
}
