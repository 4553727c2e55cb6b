// Package handover builds the continuation document passed from one session
// to the next. The document is write-once: the orchestrator persists it and
// the next session consumes it verbatim as directive content; it is never
// parsed back into structured fields.
package handover

import (
	"fmt"
	"os"
	"strings"
	"time"

	"chainrunner/internal/usage"
)

// Summary captures a session's terminal state for the handover document.
type Summary struct {
	SessionNumber int
	Reason        string
	Stats         usage.Stats
	ContextWindow int
	Threshold     float64 // operative handover threshold, rendered into the instructions
	Completed     []string
	Remaining     []string
	CurrentTask   string
	WorkDir       string
	GeneratedAt   time.Time
}

// Build renders a handover document from a session summary. Pure
// transformation; persistence is the caller's responsibility.
func Build(s Summary) string {
	var b strings.Builder

	generated := s.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	fmt.Fprintf(&b, "# Agent Handover Document\n\n")
	fmt.Fprintf(&b, "## From Session #%d\n", s.SessionNumber)
	fmt.Fprintf(&b, "Generated: %s\n\n", generated.Format(time.RFC3339))

	fmt.Fprintf(&b, "## Reason for Handover\n%s\n\n", s.Reason)

	fmt.Fprintf(&b, "## Usage Statistics\n")
	fmt.Fprintf(&b, "- Input Tokens: %d\n", s.Stats.InputTokens)
	fmt.Fprintf(&b, "- Output Tokens: %d\n", s.Stats.OutputTokens)
	fmt.Fprintf(&b, "- Context Usage: %.1f%%\n", s.Stats.Ratio(s.ContextWindow)*100)
	fmt.Fprintf(&b, "- Total Cost: $%.4f\n\n", s.Stats.TotalCostUSD)

	fmt.Fprintf(&b, "## Completed Tasks\n%s\n\n", checklist(s.Completed, "- [x] ", "(none)"))
	fmt.Fprintf(&b, "## Remaining Tasks\n%s\n\n", checklist(s.Remaining, "- [ ] ", "(none)"))

	current := s.CurrentTask
	if current == "" {
		current = "(none)"
	}
	fmt.Fprintf(&b, "## Current Task (In Progress)\n%s\n\n", current)

	fmt.Fprintf(&b, "## Work Directory\n%s\n\n", s.WorkDir)

	fmt.Fprintf(&b, "## Instructions for Next Agent\n")
	fmt.Fprintf(&b, "1. Read this handover document\n")
	fmt.Fprintf(&b, "2. Continue from the current task\n")
	fmt.Fprintf(&b, "3. Complete remaining tasks in order\n")
	fmt.Fprintf(&b, "4. Create handover if context exceeds %.0f%%\n", s.Threshold*100)

	return b.String()
}

// Write persists a handover document, replacing any previous one.
func Write(path, document string) error {
	if err := os.WriteFile(path, []byte(document), 0644); err != nil {
		return fmt.Errorf("failed to write handover: %w", err)
	}
	return nil
}

func checklist(items []string, prefix, empty string) string {
	if len(items) == 0 {
		return empty
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = prefix + item
	}
	return strings.Join(lines, "\n")
}
