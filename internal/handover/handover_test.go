package handover

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainrunner/internal/usage"
)

func TestBuild_RendersAllSections(t *testing.T) {
	doc := Build(Summary{
		SessionNumber: 3,
		Reason:        "Context usage exceeded 80% (85.0%)",
		Stats:         usage.Stats{InputTokens: 170_000, OutputTokens: 4000, TotalCostUSD: 1.25},
		ContextWindow: 200_000,
		Threshold:     0.80,
		Completed:     []string{"Set up project", "Write parser"},
		Remaining:     []string{"Write tests", "Update docs"},
		CurrentTask:   "Write tests",
		WorkDir:       "/work/project",
		GeneratedAt:   time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	})

	assert.Contains(t, doc, "## From Session #3")
	assert.Contains(t, doc, "Generated: 2026-08-28T12:00:00Z")
	assert.Contains(t, doc, "Context usage exceeded 80% (85.0%)")
	assert.Contains(t, doc, "- Input Tokens: 170000")
	assert.Contains(t, doc, "- Context Usage: 85.0%")
	assert.Contains(t, doc, "- Total Cost: $1.2500")
	assert.Contains(t, doc, "- [x] Set up project")
	assert.Contains(t, doc, "- [ ] Write tests")
	assert.Contains(t, doc, "## Current Task (In Progress)\nWrite tests")
	assert.Contains(t, doc, "## Work Directory\n/work/project")
}

func TestBuild_InstructionsUseOperativeThreshold(t *testing.T) {
	// A single source of truth: the escalation instruction renders whatever
	// threshold the chain actually runs with.
	doc := Build(Summary{Threshold: 0.80})
	assert.Contains(t, doc, "Create handover if context exceeds 80%")

	doc = Build(Summary{Threshold: 0.65})
	assert.Contains(t, doc, "Create handover if context exceeds 65%")
}

func TestBuild_EmptyListsRenderPlaceholders(t *testing.T) {
	doc := Build(Summary{SessionNumber: 1, Reason: "r", Threshold: 0.8})

	assert.Contains(t, doc, "## Completed Tasks\n(none)")
	assert.Contains(t, doc, "## Remaining Tasks\n(none)")
	assert.Contains(t, doc, "## Current Task (In Progress)\n(none)")
}

func TestWrite_ReplacesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "HANDOVER.md")

	require.NoError(t, Write(path, "first"))
	require.NoError(t, Write(path, "second"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}
