package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// TrackerData is the root structure persisted to disk.
type TrackerData struct {
	Version   string           `json:"version"`
	Aggregate Stats            `json:"aggregate"`
	BySession map[string]Stats `json:"by_session"`
}

// Tracker persists chain-wide usage aggregates across sessions. The chain
// orchestrator records each session's final stats at the session boundary;
// the file is informational and never read back into chain decisions.
type Tracker struct {
	mu       sync.Mutex
	data     TrackerData
	filePath string
}

// NewTracker creates a usage tracker persisting under the given state dir.
func NewTracker(stateDir string) (*Tracker, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(stateDir, "usage.json"),
		data: TrackerData{
			Version:   "1.0",
			BySession: make(map[string]Stats),
		},
	}

	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracker) load() error {
	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read usage file: %w", err)
	}

	if err := json.Unmarshal(data, &t.data); err != nil {
		return fmt.Errorf("failed to parse usage file: %w", err)
	}
	if t.data.BySession == nil {
		t.data.BySession = make(map[string]Stats)
	}
	return nil
}

// Record adds a session's final stats to the aggregate and persists.
func (t *Tracker) Record(sessionKey string, stats Stats) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Aggregate.InputTokens += stats.InputTokens
	t.data.Aggregate.OutputTokens += stats.OutputTokens
	t.data.Aggregate.CacheReadTokens += stats.CacheReadTokens
	t.data.Aggregate.CacheCreationTokens += stats.CacheCreationTokens
	t.data.Aggregate.TotalCostUSD += stats.TotalCostUSD
	t.data.BySession[sessionKey] = stats

	return t.saveLocked()
}

// Aggregate returns a copy of the chain-wide aggregate.
func (t *Tracker) Aggregate() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data.Aggregate
}

func (t *Tracker) saveLocked() error {
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, data, 0644)
}
