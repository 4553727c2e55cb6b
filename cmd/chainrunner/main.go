package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chainrunner/internal/chain"
	"chainrunner/internal/chainlog"
	"chainrunner/internal/config"
	"chainrunner/internal/engine"
	"chainrunner/internal/history"
	"chainrunner/internal/ledger"
	"chainrunner/internal/usage"
	"chainrunner/internal/watch"
)

var (
	// Global flags
	verbose     bool
	workspace   string
	configPath  string
	planFile    string
	maxSessions int

	// Run flags
	includeManual bool
	clearLog      bool
	engineBinary  string

	// Logger
	logger *zap.Logger
)

// errChainFailed marks a chain that ran to a failed terminal state; the
// summary has already been printed when it is returned.
var errChainFailed = errors.New("chain failed")

var rootCmd = &cobra.Command{
	Use:   "chainrunner",
	Short: "Run an autonomous agent chain over a markdown task plan",
	Long: `chainrunner drives a chain of bounded agent sessions over a markdown
checkbox plan. Each session works until its context budget is spent, hands a
continuation document to the next session, and the chain ends when the plan
has no unchecked tasks left, a fatal environment error is detected, or the
session budget runs out.

Progress is tracked through the plan file itself: a task counts as done only
when its checkbox is checked.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChain(cmd)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/chainrunner.yaml)")
	rootCmd.PersistentFlags().StringVar(&planFile, "plan", "", "Plan file (default from config)")

	rootCmd.Flags().IntVar(&maxSessions, "max-sessions", 0, "Maximum number of sessions in the chain")
	rootCmd.Flags().BoolVar(&includeManual, "include-manual", false, "Do not skip tasks that match manual keywords")
	rootCmd.Flags().BoolVar(&clearLog, "clear-log", false, "Truncate the chain log before starting")
	rootCmd.Flags().StringVar(&engineBinary, "engine", "", "Engine CLI binary (default from config)")

	rootCmd.AddCommand(statusCmd)
}

// loadSetup resolves workspace, config and plan path, applying flag overrides.
func loadSetup(cmd *cobra.Command) (string, *config.Config, string, error) {
	ws := workspace
	if ws == "" {
		var err error
		ws, err = os.Getwd()
		if err != nil {
			return "", nil, "", fmt.Errorf("failed to resolve workspace: %w", err)
		}
	}
	ws, err := filepath.Abs(ws)
	if err != nil {
		return "", nil, "", err
	}

	cfgPath := configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(ws, "chainrunner.yaml")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "", nil, "", err
	}

	if cmd.Flags().Changed("max-sessions") {
		cfg.MaxSessions = maxSessions
	}
	if includeManual {
		cfg.SkipManual = false
	}
	if engineBinary != "" {
		cfg.EngineBinary = engineBinary
	}
	if planFile != "" {
		cfg.PlanFile = planFile
	}
	if err := cfg.Validate(); err != nil {
		return "", nil, "", err
	}

	planPath := cfg.PlanFile
	if !filepath.IsAbs(planPath) {
		planPath = filepath.Join(ws, planPath)
	}
	return ws, cfg, planPath, nil
}

func runChain(cmd *cobra.Command) error {
	ws, cfg, planPath, err := loadSetup(cmd)
	if err != nil {
		return err
	}

	stateDir := filepath.Join(ws, cfg.StateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	logPath := filepath.Join(ws, cfg.LogFile)
	if clearLog {
		if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to clear log: %w", err)
		}
		fmt.Println(mutedStyle.Render("cleared " + logPath))
	}
	log, err := chainlog.Open(logPath)
	if err != nil {
		return err
	}
	defer log.Close()

	plan := ledger.NewFile(planPath, cfg.ManualKeywords)

	// Tracker and history are best-effort: the chain runs without them.
	tracker, err := usage.NewTracker(stateDir)
	if err != nil {
		logger.Warn("usage tracker unavailable", zap.Error(err))
		tracker = nil
	}
	store, err := history.Open(stateDir)
	if err != nil {
		logger.Warn("history store unavailable", zap.Error(err))
		store = nil
	} else {
		defer store.Close()
	}

	orch, err := chain.NewOrchestrator(chain.Options{
		Config:       cfg,
		Engine:       engine.NewCLIEngine(cfg.EngineBinary),
		Plan:         plan,
		Log:          log,
		Logger:       logger,
		Tracker:      tracker,
		History:      store,
		HandoverPath: filepath.Join(ws, cfg.HandoverFile),
		WorkDir:      ws,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := watch.NewPlanWatcher(planPath, func(string) {
		snap, err := plan.Reconcile(cfg.SkipManual)
		if err != nil {
			return
		}
		logger.Info("plan file changed",
			zap.Int("completed", len(snap.Completed)),
			zap.Int("remaining", len(snap.Remaining)))
	}, logger)
	if err != nil {
		logger.Warn("plan watcher unavailable", zap.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("plan watcher failed to start", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	fmt.Println(headingStyle.Render("chainrunner") + mutedStyle.Render("  plan="+planPath))

	result, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	printResult(result, cfg)
	if !result.Succeeded() {
		// Let the deferred log/store/watcher shutdowns run; main translates
		// this into the non-zero exit.
		return errChainFailed
	}
	return nil
}

func printResult(res chain.Result, cfg *config.Config) {
	fmt.Println()
	switch res.State {
	case chain.StateSucceeded:
		fmt.Println(successStyle.Render("✓ chain succeeded") +
			mutedStyle.Render(fmt.Sprintf("  (%d sessions)", res.SessionsRun)))
	case chain.StateFailedFatal:
		fmt.Println(errorStyle.Render("✗ chain aborted: fatal error"))
		fmt.Println("  " + res.Reason)
		fmt.Println(mutedStyle.Render("  Resolve the environment problem (locked file, permissions) and rerun."))
	case chain.StateFailedExhausted:
		fmt.Println(errorStyle.Render(fmt.Sprintf("✗ chain exhausted: %d sessions used", res.SessionsRun)))
		fmt.Println(mutedStyle.Render("  Check " + cfg.HandoverFile + " and rerun to continue, or raise --max-sessions."))
	}

	if !res.Succeeded() {
		fmt.Println(mutedStyle.Render("  Full session log: " + cfg.LogFile))
	}

	if len(res.SkippedManual) > 0 {
		fmt.Println()
		fmt.Println(warningStyle.Render(fmt.Sprintf("%d manual tasks were skipped:", len(res.SkippedManual))))
		for _, task := range res.SkippedManual {
			fmt.Println("  " + manualMark + " " + task)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errChainFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
