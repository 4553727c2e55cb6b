package chain

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chainrunner/internal/chainlog"
	"chainrunner/internal/config"
	"chainrunner/internal/engine"
	"chainrunner/internal/fatal"
	"chainrunner/internal/ledger"
	"chainrunner/internal/usage"
)

// scriptedSession is one canned engine run: an optional plan mutation applied
// before the stream starts (simulating the engine checking tasks off) and the
// events the stream emits.
type scriptedSession struct {
	mutate func()
	events []engine.Event
}

// scriptedEngine replays one scriptedSession per Run call and records the
// directives it was given.
type scriptedEngine struct {
	sessions   []scriptedSession
	calls      int
	directives []string
}

func (e *scriptedEngine) Run(ctx context.Context, req engine.Request) (<-chan engine.Event, error) {
	if e.calls >= len(e.sessions) {
		panic("scriptedEngine: unexpected extra Run call")
	}
	s := e.sessions[e.calls]
	e.calls++
	e.directives = append(e.directives, req.Directive)

	if s.mutate != nil {
		s.mutate()
	}

	ch := make(chan engine.Event)
	go func() {
		defer close(ch)
		for _, ev := range s.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// matchNothing never classifies anything as fatal.
type matchNothing struct{}

func (matchNothing) Classify(string) (string, bool) { return "", false }

// chainFixture bundles the moving parts of a chain test.
type chainFixture struct {
	cfg          *config.Config
	planPath     string
	handoverPath string
	eng          *scriptedEngine
	orch         *Orchestrator
}

func newFixture(t *testing.T, planContent string, sessions []scriptedSession, tweak func(*config.Config)) *chainFixture {
	t.Helper()

	dir := t.TempDir()
	planPath := filepath.Join(dir, "plan.md")
	require.NoError(t, os.WriteFile(planPath, []byte(planContent), 0644))

	cfg := config.DefaultConfig()
	if tweak != nil {
		tweak(cfg)
	}

	log, err := chainlog.Open(filepath.Join(dir, "agent_log.txt"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	classifier, err := fatal.NewRegexClassifier(cfg.FatalPatterns)
	require.NoError(t, err)

	eng := &scriptedEngine{sessions: sessions}
	handoverPath := filepath.Join(dir, "HANDOVER.md")

	orch, err := NewOrchestrator(Options{
		Config:       cfg,
		Engine:       eng,
		Classifier:   classifier,
		Plan:         ledger.NewFile(planPath, cfg.ManualKeywords),
		Log:          log,
		Logger:       zap.NewNop(),
		HandoverPath: handoverPath,
		WorkDir:      dir,
	})
	require.NoError(t, err)

	return &chainFixture{
		cfg:          cfg,
		planPath:     planPath,
		handoverPath: handoverPath,
		eng:          eng,
		orch:         orch,
	}
}

func (f *chainFixture) setPlan(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.planPath, []byte(content), 0644))
}

func (f *chainFixture) handoverExists() bool {
	_, err := os.Stat(f.handoverPath)
	return err == nil
}

func resultEvent(inputTokens int) engine.ResultEvent {
	return engine.ResultEvent{
		Subtype: "success",
		Usage:   usage.Delta{InputTokens: inputTokens, OutputTokens: 100},
	}
}
