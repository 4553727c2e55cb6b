// Package config holds all chainrunner configuration.
// Every tunable the chain depends on (context capacity, handover threshold,
// keyword and pattern lists) lives here as an explicit value so tests can
// construct arbitrary configurations without touching process-global state.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all chainrunner configuration.
type Config struct {
	// Resource accounting
	ContextWindow int     `yaml:"context_window"` // engine context capacity in tokens
	Threshold     float64 `yaml:"threshold"`      // fraction of capacity that triggers handover

	// Chain bounds
	MaxSessions int `yaml:"max_sessions"`

	// Engine settings
	MaxTurns       int    `yaml:"max_turns"`
	PermissionMode string `yaml:"permission_mode"`
	EngineBinary   string `yaml:"engine_binary"`

	// Task classification
	SkipManual     bool     `yaml:"skip_manual"`
	ManualKeywords []string `yaml:"manual_keywords"`
	FatalPatterns  []string `yaml:"fatal_patterns"`

	// File layout
	PlanFile     string `yaml:"plan_file"`
	HandoverFile string `yaml:"handover_file"`
	LogFile      string `yaml:"log_file"`
	StateDir     string `yaml:"state_dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ContextWindow: 200_000,
		Threshold:     0.80,
		MaxSessions:   10,

		MaxTurns:       100,
		PermissionMode: "bypassPermissions",
		EngineBinary:   "claude",

		SkipManual: true,
		ManualKeywords: []string{
			"手動",
			"ブラウザ",
			"フロントエンド",
			"手動テスト",
			"外部サービス",
			"保留",
			"将来タスク",
			"manual",
			"browser",
			"frontend",
		},
		FatalPatterns: []string{
			`error: cannot remove`,
			`error.*being used by another process`,
			`error.*permission denied`,
			`permissionerror:`,
			`error.*access is denied`,
			`failed.*locked`,
			`エラー.*ロック`,
			`失敗.*ロック`,
			`error.*locked`,
			`cannot write.*locked`,
			`cannot delete.*locked`,
		},

		PlanFile:     "plan.md",
		HandoverFile: "HANDOVER.md",
		LogFile:      "agent_log.txt",
		StateDir:     ".chainrunner",
	}
}

// Load loads configuration from a YAML file, layered over the defaults.
// A missing file is not an error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Validate checks invariants the chain relies on.
func (c *Config) Validate() error {
	if c.ContextWindow <= 0 {
		return fmt.Errorf("context_window must be positive, got %d", c.ContextWindow)
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %g", c.Threshold)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1, got %d", c.MaxSessions)
	}
	return nil
}
