// Package chainlog writes the append-only, human-readable chain log.
// One file per chain invocation target (agent_log.txt by default), timestamped
// and leveled, with the separators and usage bars operators read to follow a
// long run. The log records everything; it decides nothing.
package chainlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chainrunner/internal/usage"
)

const usageBarWidth = 30

// Log is an append-only chain log file.
type Log struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens (or creates) the log file for appending.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open chain log: %w", err)
	}
	return &Log{file: file}, nil
}

// Close closes the log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Log writes one timestamped, leveled record.
func (l *Log) Log(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLocked(level, fmt.Sprintf(format, args...))
}

// Info writes an INFO record.
func (l *Log) Info(format string, args ...interface{}) { l.Log("INFO", format, args...) }

// Warn writes a WARNING record.
func (l *Log) Warn(format string, args ...interface{}) { l.Log("WARNING", format, args...) }

// Error writes an ERROR record.
func (l *Log) Error(format string, args ...interface{}) { l.Log("ERROR", format, args...) }

// Fatal writes a FATAL record.
func (l *Log) Fatal(format string, args ...interface{}) { l.Log("FATAL", format, args...) }

// Separator writes a bare separator line.
func (l *Log) Separator(char string, length int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.file, "\n%s\n\n", strings.Repeat(char, length))
}

// TaskList writes a numbered task listing under a title banner.
func (l *Log) TaskList(title string, tasks []string) {
	l.Separator("=", 70)
	l.Log("INFO", "%s %s %s", strings.Repeat("=", 20), title, strings.Repeat("=", 20))
	l.Log("INFO", "Total: %d tasks", len(tasks))
	for i, task := range tasks {
		l.Log("INFO", "  %2d. [ ] %s", i+1, task)
	}
	l.Separator("-", 50)
}

// Usage writes a usage snapshot with a progress bar.
func (l *Log) Usage(stats usage.Stats, capacity int) {
	ratio := stats.Ratio(capacity)
	filled := int(usageBarWidth * ratio)
	if filled > usageBarWidth {
		filled = usageBarWidth
	}
	if filled < 0 {
		filled = 0
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", usageBarWidth-filled)

	l.Log("USAGE", "  Usage: [%s] %5.1f%% | In: %d | Out: %d | Cost: $%.4f",
		bar, ratio*100, stats.InputTokens, stats.OutputTokens, stats.TotalCostUSD)
}

// SessionStart records the beginning of a session.
func (l *Log) SessionStart(number int, workDir string, tasks []string, threshold float64) {
	l.Separator("=", 70)
	l.Log("SESSION", "SESSION #%d STARTED", number)
	l.Log("SESSION", "  Work Dir: %s", workDir)
	l.Log("SESSION", "  Tasks: %d remaining", len(tasks))
	l.Log("SESSION", "  Threshold: %.0f%%", threshold*100)
	for i, task := range tasks {
		marker := ""
		if i == 0 {
			marker = " >>> CURRENT <<<"
		}
		l.Log("SESSION", "  %2d. [ ] %s%s", i+1, task, marker)
	}
}

// SessionEnd records the end of a session with its final usage.
func (l *Log) SessionEnd(number int, reason string, stats usage.Stats, capacity int) {
	l.Separator("-", 50)
	l.Log("SESSION", "SESSION #%d ENDED", number)
	l.Log("SESSION", "  Reason: %s", reason)
	l.Usage(stats, capacity)
}

// Handover records a session-to-session handover.
func (l *Log) Handover(from, to int, reason string) {
	l.Separator("*", 50)
	l.Log("HANDOVER", "HANDOVER: Session #%d -> Session #%d", from, to)
	l.Log("HANDOVER", "  Reason: %s", reason)
	l.Separator("*", 50)
}

// ChainStart records the beginning of a chain with its starting task list.
func (l *Log) ChainStart(tasks []string) {
	l.Separator("=", 70)
	l.Log("CHAIN", "AGENT CHAIN STARTED")
	l.Log("CHAIN", "  Started: %s", time.Now().Format(time.RFC3339))
	l.TaskList("TASK LIST", tasks)
}

// ChainEnd records the chain's terminal state and total session count.
func (l *Log) ChainEnd(state string, totalSessions int) {
	l.Separator("=", 70)
	l.Log("CHAIN", "AGENT CHAIN %s", state)
	l.Log("CHAIN", "  Total Sessions: %d", totalSessions)
	l.Log("CHAIN", "  Ended: %s", time.Now().Format(time.RFC3339))
	l.Separator("=", 70)
}

func (l *Log) writeLocked(level, msg string) {
	timestamp := time.Now().Format(time.RFC3339Nano)
	fmt.Fprintf(l.file, "[%s] [%s] %s\n", timestamp, level, msg)
}
