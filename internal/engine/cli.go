package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"chainrunner/internal/usage"
)

// CLIEngine runs an agent CLI subprocess in stream-JSON mode and decodes its
// stdout into typed events.
type CLIEngine struct {
	binary string
}

// NewCLIEngine creates an engine backed by the given agent binary.
func NewCLIEngine(binary string) *CLIEngine {
	return &CLIEngine{binary: binary}
}

// Run implements Engine. The returned channel is closed when the subprocess
// stream ends; a process failure surfaces as a trailing ErrorEvent.
func (e *CLIEngine) Run(ctx context.Context, req Request) (<-chan Event, error) {
	args := []string{
		"-p", req.Directive,
		"--output-format", "stream-json",
		"--verbose",
	}
	if req.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(req.MaxTurns))
	}
	if req.PermissionMode != "" {
		args = append(args, "--permission-mode", req.PermissionMode)
	}

	cmd := exec.CommandContext(ctx, e.binary, args...)
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	events := make(chan Event)
	// The group's derived context is cancelled as soon as Wait returns, so it
	// is only used inside the scanner's sends; the abandoned-stream check
	// below must see the caller's context.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scanner := bufio.NewScanner(stdout)
		// Result payloads can be large; the default 64K line limit is not enough.
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			for _, ev := range decodeLine([]byte(line)) {
				select {
				case events <- ev:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
		return scanner.Err()
	})

	go func() {
		defer close(events)
		streamErr := g.Wait()
		waitErr := cmd.Wait()
		if streamErr == nil {
			streamErr = waitErr
		}
		if streamErr != nil && ctx.Err() == nil {
			select {
			case events <- ErrorEvent{Err: streamErr}:
			case <-ctx.Done():
			}
		}
	}()

	return events, nil
}

// wireMessage mirrors the agent CLI's stream-JSON line shape. Unknown fields
// are ignored.
type wireMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	Message struct {
		Content []wireBlock `json:"content"`
	} `json:"message"`
	DurationMs   int64       `json:"duration_ms"`
	Result       string      `json:"result"`
	TotalCostUSD float64     `json:"total_cost_usd"`
	Usage        usage.Delta `json:"usage"`
}

type wireBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Name string `json:"name"`
}

// decodeLine converts one stream-JSON line into zero or more events. An
// assistant message yields one event per content block; malformed lines are
// dropped rather than failing the stream.
func decodeLine(line []byte) []Event {
	var msg wireMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil
	}

	switch msg.Type {
	case "assistant":
		var out []Event
		for _, block := range msg.Message.Content {
			switch block.Type {
			case "text":
				out = append(out, TextEvent{Text: block.Text})
			case "tool_use":
				out = append(out, ToolEvent{Name: block.Name})
			}
		}
		return out
	case "system":
		return []Event{SystemEvent{Subtype: msg.Subtype}}
	case "result":
		return []Event{ResultEvent{
			Subtype:    msg.Subtype,
			DurationMs: msg.DurationMs,
			Result:     msg.Result,
			Usage:      msg.Usage,
			CostUSD:    msg.TotalCostUSD,
		}}
	default:
		return nil
	}
}
