package chain

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chainrunner/internal/chainlog"
	"chainrunner/internal/config"
	"chainrunner/internal/engine"
	"chainrunner/internal/fatal"
	"chainrunner/internal/handover"
	"chainrunner/internal/ledger"
)

const textLogLimit = 150

// Runner drives a single session through the engine event stream and decides
// its outcome. Every component fault is converted into an outcome here;
// nothing propagates past the session boundary.
type Runner struct {
	cfg        *config.Config
	eng        engine.Engine
	classifier fatal.Classifier
	plan       *ledger.File
	log        *chainlog.Log
	logger     *zap.Logger
	workDir    string
}

// NewRunner creates a session runner.
func NewRunner(cfg *config.Config, eng engine.Engine, classifier fatal.Classifier, plan *ledger.File, log *chainlog.Log, logger *zap.Logger, workDir string) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		eng:        eng,
		classifier: classifier,
		plan:       plan,
		log:        log,
		logger:     logger,
		workDir:    workDir,
	}
}

// Run executes one session. handoverDoc is the previous session's handover
// document, empty on the first session.
func (r *Runner) Run(ctx context.Context, s *Session, handoverDoc string) Outcome {
	directive := buildDirective(s, handoverDoc, r.plan.Path(), r.workDir)

	r.log.SessionStart(s.Number, r.workDir, s.Tasks, r.cfg.Threshold)
	r.logger.Info("session started",
		zap.Int("session", s.Number),
		zap.Int("tasks", len(s.Tasks)))

	// The stream is abandoned by cancelling its context; the engine owns
	// releasing its resources after that.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := r.eng.Run(streamCtx, engine.Request{
		Directive:      directive,
		MaxTurns:       r.cfg.MaxTurns,
		PermissionMode: r.cfg.PermissionMode,
		WorkDir:        r.workDir,
	})
	if err != nil {
		// An engine that failed to start is assumed transient, like a
		// mid-stream engine error: hand over so a fresh session retries.
		return r.handOver(s, fmt.Sprintf("Engine error: %v", err))
	}

	for ev := range events {
		switch ev := ev.(type) {
		case engine.TextEvent:
			r.log.Info("[Agent] %s", truncate(ev.Text, textLogLimit))
			if pattern, ok := r.classifier.Classify(ev.Text); ok {
				reason := fmt.Sprintf("Fatal error detected: %q - environment may be locked", pattern)
				r.log.Fatal("%s", reason)
				r.log.SessionEnd(s.Number, reason, s.Stats, r.cfg.ContextWindow)
				r.logger.Error("fatal pattern matched",
					zap.Int("session", s.Number),
					zap.String("pattern", pattern))
				return Outcome{Kind: OutcomeFatal, Reason: reason}
			}

		case engine.ToolEvent:
			r.log.Log("DEBUG", "[Tool] %s", ev.Name)

		case engine.SystemEvent:
			r.log.Log("DEBUG", "[System] subtype=%s", ev.Subtype)

		case engine.ResultEvent:
			delta := ev.Usage
			delta.CostUSD = ev.CostUSD
			s.Stats.Update(delta)
			r.log.Log("RESULT", "Engine result: subtype=%s, duration=%dms", ev.Subtype, ev.DurationMs)
			r.log.Usage(s.Stats, r.cfg.ContextWindow)

			// Threshold is checked synchronously after every usage update,
			// never deferred to session end.
			if ratio := s.Stats.Ratio(r.cfg.ContextWindow); ratio >= r.cfg.Threshold {
				reason := fmt.Sprintf("Context usage exceeded %.0f%% (%.1f%%)",
					r.cfg.Threshold*100, ratio*100)
				r.log.Warn("%s", reason)
				return r.handOver(s, reason)
			}

			if ev.Result != "" {
				r.log.Log("RESULT", "  Result: %s", truncate(ev.Result, 300))
			}

		case engine.ErrorEvent:
			return r.handOver(s, fmt.Sprintf("Engine error: %v", ev.Err))
		}
	}

	return r.reconcile(s)
}

// reconcile re-reads the plan after the stream ended normally. The ledger, not
// the session's own assignment, decides whether the session completed.
func (r *Runner) reconcile(s *Session) Outcome {
	snap, err := r.plan.Reconcile(r.cfg.SkipManual)
	if err != nil {
		// An unreadable plan is treated like an engine error: a fresh
		// session may find it readable again.
		return r.handOver(s, fmt.Sprintf("Plan reconciliation failed: %v", err))
	}

	r.log.Log("CHECK", "Plan check: %d completed, %d remaining, %d skipped (manual)",
		len(snap.Completed), len(snap.Remaining), len(snap.SkippedManual))

	if len(snap.Remaining) == 0 {
		for _, task := range snap.SkippedManual {
			r.log.Info("  - [MANUAL] %s", task)
		}
		reason := "All automated tasks completed (verified from plan)"
		r.log.SessionEnd(s.Number, reason, s.Stats, r.cfg.ContextWindow)
		r.logger.Info("session completed", zap.Int("session", s.Number))
		return Outcome{
			Kind:          OutcomeCompleted,
			Reason:        reason,
			SkippedManual: snap.SkippedManual,
		}
	}

	// The session may have finished tasks out of order, or tasks outside its
	// original assignment. The reconciled ledger supersedes the assignment.
	s.Completed = snap.Completed
	s.Tasks = append(append([]string{}, snap.Completed...), snap.Remaining...)
	s.CurrentIndex = len(snap.Completed)

	reason := fmt.Sprintf("Session ended with %d tasks remaining", len(snap.Remaining))
	r.log.Warn("%s", reason)
	return r.handOver(s, reason)
}

// handOver ends the session with a rendered handover document.
func (r *Runner) handOver(s *Session, reason string) Outcome {
	r.log.SessionEnd(s.Number, reason, s.Stats, r.cfg.ContextWindow)
	r.logger.Info("session handed over",
		zap.Int("session", s.Number),
		zap.String("reason", reason))

	doc := handover.Build(handover.Summary{
		SessionNumber: s.Number,
		Reason:        reason,
		Stats:         s.Stats,
		ContextWindow: r.cfg.ContextWindow,
		Threshold:     r.cfg.Threshold,
		Completed:     s.Completed,
		Remaining:     s.RemainingTasks(),
		CurrentTask:   s.CurrentTask(),
		WorkDir:       r.workDir,
	})
	return Outcome{Kind: OutcomeHandedOver, Reason: reason, Handover: doc}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
