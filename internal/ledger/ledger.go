// Package ledger reads the plan document that serves as the chain's ground
// truth. The plan is a human-editable markdown checklist; the engine updates it
// during a session and a human may edit it at any time, so every read here
// re-derives state from the literal current content. This package never writes.
package ledger

import (
	"fmt"
	"os"
	"strings"
)

const (
	pendingMarker = "- [ ]"
	doneMarker    = "- [x]"
	doneMarkerUC  = "- [X]"
)

// Snapshot is an immutable partition of the plan's checklist items at one
// point in time. Order follows plan line order; duplicate texts are distinct
// entries.
type Snapshot struct {
	Completed     []string
	Remaining     []string
	SkippedManual []string
}

// Total returns the number of items across all partitions.
func (s Snapshot) Total() int {
	return len(s.Completed) + len(s.Remaining) + len(s.SkippedManual)
}

// Ledger partitions plan documents into task sets. The keyword list drives
// manual-task classification; it is fixed at construction so a Ledger value is
// safe to share across sessions.
type Ledger struct {
	manualKeywords []string
}

// New creates a Ledger with the given manual-task keyword list.
func New(manualKeywords []string) *Ledger {
	lowered := make([]string, len(manualKeywords))
	for i, kw := range manualKeywords {
		lowered[i] = strings.ToLower(kw)
	}
	return &Ledger{manualKeywords: lowered}
}

// Parse extracts pending tasks from a plan document. Completed items are
// skipped entirely. When skipManual is set, pending items matching a manual
// keyword are returned separately in manualTasks.
func (l *Ledger) Parse(document string, skipManual bool) (tasks, manualTasks []string) {
	for _, line := range strings.Split(document, "\n") {
		line = strings.TrimSpace(line)

		if !strings.HasPrefix(line, pendingMarker) {
			continue
		}
		task := strings.TrimSpace(line[len(pendingMarker):])
		if task == "" {
			continue
		}
		if skipManual && l.IsManual(task) {
			manualTasks = append(manualTasks, task)
		} else {
			tasks = append(tasks, task)
		}
	}
	return tasks, manualTasks
}

// Reconcile partitions a plan document into completed, remaining, and
// skipped-manual task sets. It is a pure function of the document content:
// calling it twice on the same document yields identical snapshots, and no
// state is cached between calls.
func (l *Ledger) Reconcile(document string, skipManual bool) Snapshot {
	var snap Snapshot

	for _, line := range strings.Split(document, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, doneMarker), strings.HasPrefix(line, doneMarkerUC):
			task := strings.TrimSpace(line[len(doneMarker):])
			if task != "" {
				snap.Completed = append(snap.Completed, task)
			}
		case strings.HasPrefix(line, pendingMarker):
			task := strings.TrimSpace(line[len(pendingMarker):])
			if task == "" {
				continue
			}
			if skipManual && l.IsManual(task) {
				snap.SkippedManual = append(snap.SkippedManual, task)
			} else {
				snap.Remaining = append(snap.Remaining, task)
			}
		}
	}
	return snap
}

// IsManual reports whether a task needs human involvement, by case-insensitive
// substring match against the keyword list.
func (l *Ledger) IsManual(task string) bool {
	lowered := strings.ToLower(task)
	for _, kw := range l.manualKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// File binds a Ledger to a plan file on disk.
type File struct {
	ledger *Ledger
	path   string
}

// NewFile creates a file-backed ledger reader.
func NewFile(path string, manualKeywords []string) *File {
	return &File{ledger: New(manualKeywords), path: path}
}

// Path returns the plan file path.
func (f *File) Path() string { return f.path }

// Parse reads the plan file and extracts pending tasks.
func (f *File) Parse(skipManual bool) (tasks, manualTasks []string, err error) {
	document, err := f.read()
	if err != nil {
		return nil, nil, err
	}
	tasks, manualTasks = f.ledger.Parse(document, skipManual)
	return tasks, manualTasks, nil
}

// Reconcile re-reads the plan file and partitions its current content.
func (f *File) Reconcile(skipManual bool) (Snapshot, error) {
	document, err := f.read()
	if err != nil {
		return Snapshot{}, err
	}
	return f.ledger.Reconcile(document, skipManual), nil
}

func (f *File) read() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("failed to read plan file: %w", err)
	}
	return string(data), nil
}
