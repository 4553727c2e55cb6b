package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chainrunner/internal/chainlog"
	"chainrunner/internal/config"
	"chainrunner/internal/engine"
	"chainrunner/internal/fatal"
	"chainrunner/internal/handover"
	"chainrunner/internal/history"
	"chainrunner/internal/ledger"
	"chainrunner/internal/usage"
)

// Orchestrator runs the whole chain: it repeatedly creates a session over the
// freshly reconciled ledger until the plan is done, a fatal error aborts the
// chain, or the session budget runs out.
type Orchestrator struct {
	cfg          *config.Config
	plan         *ledger.File
	runner       *Runner
	log          *chainlog.Log
	logger       *zap.Logger
	tracker      *usage.Tracker // optional
	history      *history.Store // optional
	handoverPath string
	runID        string
}

// Options wires the orchestrator's collaborators. Engine, Plan, Log and
// HandoverPath are required; Tracker and History are optional.
type Options struct {
	Config       *config.Config
	Engine       engine.Engine
	Classifier   fatal.Classifier
	Plan         *ledger.File
	Log          *chainlog.Log
	Logger       *zap.Logger
	Tracker      *usage.Tracker
	History      *history.Store
	HandoverPath string
	WorkDir      string
}

// NewOrchestrator creates a chain orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Engine == nil || opts.Plan == nil || opts.Log == nil {
		return nil, fmt.Errorf("engine, plan, and log are required")
	}
	if opts.Classifier == nil {
		classifier, err := fatal.NewRegexClassifier(opts.Config.FatalPatterns)
		if err != nil {
			return nil, err
		}
		opts.Classifier = classifier
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Orchestrator{
		cfg:          opts.Config,
		plan:         opts.Plan,
		runner:       NewRunner(opts.Config, opts.Engine, opts.Classifier, opts.Plan, opts.Log, opts.Logger, opts.WorkDir),
		log:          opts.Log,
		logger:       opts.Logger,
		tracker:      opts.Tracker,
		history:      opts.History,
		handoverPath: opts.HandoverPath,
		runID:        uuid.NewString(),
	}, nil
}

// RunID returns the unique identifier of this chain invocation.
func (o *Orchestrator) RunID() string { return o.runID }

// Run executes the chain to its terminal state. The returned error is
// reserved for faults outside the chain's own failure taxonomy (an unreadable
// plan at chain start, handover persistence failure).
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	// Chain-start snapshot, for the log only. Session task sets always come
	// from a fresh reconcile inside the loop.
	tasks, manualTasks, err := o.plan.Parse(o.cfg.SkipManual)
	if err != nil {
		return Result{}, err
	}

	if len(tasks) == 0 {
		if len(manualTasks) > 0 {
			o.log.Info("No automated tasks found. %d manual tasks skipped:", len(manualTasks))
			for _, task := range manualTasks {
				o.log.Info("  - [MANUAL] %s", task)
			}
		} else {
			o.log.Warn("No tasks found in plan")
		}
		return Result{State: StateSucceeded, SessionsRun: 0, Reason: "no automatable tasks", SkippedManual: manualTasks}, nil
	}

	o.log.ChainStart(tasks)
	o.logger.Info("chain started",
		zap.String("run_id", o.runID),
		zap.Int("tasks", len(tasks)),
		zap.Int("max_sessions", o.cfg.MaxSessions))

	if len(manualTasks) > 0 {
		o.log.Info("Skipped %d manual tasks:", len(manualTasks))
		for _, task := range manualTasks {
			o.log.Info("  - [MANUAL] %s", task)
		}
	}

	if o.history != nil {
		if err := o.history.BeginRun(o.runID, time.Now(), o.cfg.MaxSessions); err != nil {
			o.logger.Warn("history: begin run failed", zap.Error(err))
		}
	}

	handoverDoc := ""
	for number := 1; number <= o.cfg.MaxSessions; number++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		// Ground truth: the plan file as it is right now.
		snap, err := o.plan.Reconcile(o.cfg.SkipManual)
		if err != nil {
			return Result{}, err
		}

		if len(snap.Remaining) == 0 {
			o.log.Info("All automated tasks already completed in plan")
			return o.finish(Result{
				State:         StateSucceeded,
				SessionsRun:   number - 1,
				Reason:        "all tasks completed",
				SkippedManual: snap.SkippedManual,
			}), nil
		}

		session := NewSession(number, snap.Remaining)
		outcome := o.runner.Run(ctx, session, handoverDoc)
		o.recordSession(session, outcome)

		switch outcome.Kind {
		case OutcomeCompleted:
			return o.finish(Result{
				State:         StateSucceeded,
				SessionsRun:   number,
				Reason:        outcome.Reason,
				SkippedManual: outcome.SkippedManual,
			}), nil

		case OutcomeHandedOver:
			if err := handover.Write(o.handoverPath, outcome.Handover); err != nil {
				return Result{}, err
			}
			o.log.Handover(number, number+1, outcome.Reason)
			o.log.Info("Handover saved to: %s", o.handoverPath)
			handoverDoc = outcome.Handover

		case OutcomeFatal:
			o.log.Fatal("Session stopped without handover (fatal error)")
			return o.finish(Result{
				State:       StateFailedFatal,
				SessionsRun: number,
				Reason:      outcome.Reason,
			}), nil
		}
	}

	o.log.Warn("Max sessions (%d) reached", o.cfg.MaxSessions)
	return o.finish(Result{
		State:       StateFailedExhausted,
		SessionsRun: o.cfg.MaxSessions,
		Reason:      fmt.Sprintf("max sessions (%d) reached with tasks remaining", o.cfg.MaxSessions),
	}), nil
}

// finish writes the terminal chain records.
func (o *Orchestrator) finish(res Result) Result {
	state := "SUCCESS"
	if !res.Succeeded() {
		state = "FAILED"
	}
	o.log.ChainEnd(state, res.SessionsRun)
	o.logger.Info("chain ended",
		zap.String("run_id", o.runID),
		zap.String("state", string(res.State)),
		zap.Int("sessions", res.SessionsRun),
		zap.String("reason", res.Reason))

	if o.history != nil {
		if err := o.history.FinishRun(o.runID, string(res.State), res.SessionsRun); err != nil {
			o.logger.Warn("history: finish run failed", zap.Error(err))
		}
	}
	return res
}

func (o *Orchestrator) recordSession(s *Session, outcome Outcome) {
	if o.tracker != nil {
		key := fmt.Sprintf("%s/%d", o.runID, s.Number)
		if err := o.tracker.Record(key, s.Stats); err != nil {
			o.logger.Warn("usage tracker: record failed", zap.Error(err))
		}
	}
	if o.history != nil {
		if err := o.history.RecordSession(o.runID, s.Number, outcomeName(outcome.Kind), outcome.Reason, s.Stats); err != nil {
			o.logger.Warn("history: record session failed", zap.Error(err))
		}
	}
}

func outcomeName(kind OutcomeKind) string {
	switch kind {
	case OutcomeCompleted:
		return "completed"
	case OutcomeHandedOver:
		return "handed_over"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
