package chain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chainrunner/internal/chainlog"
	"chainrunner/internal/config"
	"chainrunner/internal/engine"
	"chainrunner/internal/fatal"
	"chainrunner/internal/ledger"
)

func newRunnerFixture(t *testing.T, planContent string, sessions []scriptedSession, classifier fatal.Classifier) (*Runner, *scriptedEngine, string) {
	t.Helper()

	dir := t.TempDir()
	planPath := filepath.Join(dir, "plan.md")
	require.NoError(t, os.WriteFile(planPath, []byte(planContent), 0644))

	cfg := config.DefaultConfig()

	log, err := chainlog.Open(filepath.Join(dir, "agent_log.txt"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	if classifier == nil {
		classifier = matchNothing{}
	}

	eng := &scriptedEngine{sessions: sessions}
	runner := NewRunner(cfg, eng, classifier, ledger.NewFile(planPath, cfg.ManualKeywords), log, zap.NewNop(), dir)
	return runner, eng, planPath
}

func TestRunner_ThresholdTriggersOnCrossingUpdate(t *testing.T) {
	runner, _, _ := newRunnerFixture(t, twoTaskPlan, []scriptedSession{
		{events: []engine.Event{
			// 100k: below. 60k more: exactly 160k/200k = 0.80, which is >=
			// threshold and must trigger on this update, not a later one.
			resultEvent(100_000),
			resultEvent(60_000),
			engine.TextEvent{Text: "unreachable"},
		}},
	}, nil)

	s := NewSession(1, []string{"implement parser", "write tests"})
	outcome := runner.Run(context.Background(), s, "")

	assert.Equal(t, OutcomeHandedOver, outcome.Kind)
	assert.Contains(t, outcome.Reason, "Context usage exceeded 80% (80.0%)")
	assert.Equal(t, 160_000, s.Stats.InputTokens)
}

func TestRunner_EngineErrorHandsOverWithErrorReason(t *testing.T) {
	runner, _, _ := newRunnerFixture(t, twoTaskPlan, []scriptedSession{
		{events: []engine.Event{
			engine.TextEvent{Text: "partway through"},
			engine.ErrorEvent{Err: errors.New("stream disconnected")},
		}},
	}, nil)

	outcome := runner.Run(context.Background(), NewSession(1, []string{"implement parser", "write tests"}), "")

	assert.Equal(t, OutcomeHandedOver, outcome.Kind)
	assert.Contains(t, outcome.Reason, "Engine error: stream disconnected")
	assert.Contains(t, outcome.Handover, "## Reason for Handover\nEngine error: stream disconnected")
}

func TestRunner_ReconciledLedgerSupersedesAssignment(t *testing.T) {
	// The session was assigned a and b, but the engine completed b and a new
	// task c appeared in the plan. The handover must reflect the ledger.
	plan := "- [ ] a\n- [ ] b\n"
	reconciled := "- [ ] a\n- [x] b\n- [ ] c\n"

	var planPath string
	runner, _, path := newRunnerFixture(t, plan, []scriptedSession{
		{
			mutate: func() { require.NoError(t, os.WriteFile(planPath, []byte(reconciled), 0644)) },
			events: []engine.Event{resultEvent(10_000)},
		},
	}, nil)
	planPath = path

	s := NewSession(1, []string{"a", "b"})
	outcome := runner.Run(context.Background(), s, "")

	assert.Equal(t, OutcomeHandedOver, outcome.Kind)
	assert.Contains(t, outcome.Reason, "Session ended with 2 tasks remaining")
	assert.Contains(t, outcome.Handover, "- [x] b")
	assert.Contains(t, outcome.Handover, "- [ ] a\n- [ ] c")
	assert.Equal(t, []string{"b"}, s.Completed)
	assert.Equal(t, "a", s.CurrentTask())
}

func TestRunner_FatalMatchAbandonsStream(t *testing.T) {
	cfg := config.DefaultConfig()
	classifier, err := fatal.NewRegexClassifier(cfg.FatalPatterns)
	require.NoError(t, err)

	runner, eng, _ := newRunnerFixture(t, twoTaskPlan, []scriptedSession{
		{events: []engine.Event{
			engine.TextEvent{Text: "Error: cannot remove app.dll"},
			resultEvent(10_000),
		}},
	}, classifier)

	s := NewSession(1, []string{"implement parser"})
	outcome := runner.Run(context.Background(), s, "")

	assert.Equal(t, OutcomeFatal, outcome.Kind)
	assert.Empty(t, outcome.Handover)
	// Usage never updated: the result event was behind the fatal text.
	assert.Zero(t, s.Stats.InputTokens)
	assert.Equal(t, 1, eng.calls)
}

func TestRunner_DirectiveIncludesTaskListOrHandover(t *testing.T) {
	runner, eng, _ := newRunnerFixture(t, twoTaskPlan, []scriptedSession{
		{events: []engine.Event{resultEvent(170_000)}},
		{events: []engine.Event{resultEvent(170_000)}},
	}, nil)

	outcome := runner.Run(context.Background(), NewSession(1, []string{"implement parser", "write tests"}), "")
	require.Equal(t, OutcomeHandedOver, outcome.Kind)

	runner.Run(context.Background(), NewSession(2, []string{"implement parser", "write tests"}), outcome.Handover)

	require.Len(t, eng.directives, 2)
	assert.Contains(t, eng.directives[0], "1. [ ] implement parser")
	assert.Contains(t, eng.directives[0], "2. [ ] write tests")
	assert.Contains(t, eng.directives[0], "Start with the first task.")
	assert.Contains(t, eng.directives[1], "You are Session #2")
	assert.Contains(t, eng.directives[1], "## Handover Document")
	assert.Contains(t, eng.directives[1], "start from the remaining tasks")
}

func TestRunner_ToolAndSystemEventsAreInformational(t *testing.T) {
	var planPath string
	runner, _, path := newRunnerFixture(t, "- [ ] a\n", []scriptedSession{
		{
			mutate: func() { require.NoError(t, os.WriteFile(planPath, []byte("- [x] a\n"), 0644)) },
			events: []engine.Event{
				engine.SystemEvent{Subtype: "init"},
				engine.ToolEvent{Name: "Edit"},
				engine.ToolEvent{Name: "Bash"},
				resultEvent(5_000),
			},
		},
	}, nil)
	planPath = path

	outcome := runner.Run(context.Background(), NewSession(1, []string{"a"}), "")
	assert.Equal(t, OutcomeCompleted, outcome.Kind)
}
