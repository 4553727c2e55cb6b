// Package engine defines the boundary to the autonomous agent engine.
// The engine is an opaque collaborator: it accepts a text directive plus a
// small configuration and produces one finite, ordered stream of typed events
// per call. The chain never interprets tool payloads beyond their identifier.
package engine

import (
	"context"

	"chainrunner/internal/usage"
)

// Request configures one engine run.
type Request struct {
	Directive      string
	MaxTurns       int
	PermissionMode string
	WorkDir        string
}

// Engine produces an event stream for a directive. Each call yields a fresh
// stream; the channel is closed when the stream ends. A consumer may abandon
// the stream early by cancelling ctx — the engine owns releasing its own
// resources in that case.
type Engine interface {
	Run(ctx context.Context, req Request) (<-chan Event, error)
}

// Event is one typed element of an engine stream.
type Event interface {
	isEvent()
}

// TextEvent carries a unit of assistant text output.
type TextEvent struct {
	Text string
}

// ToolEvent reports a tool invocation. Informational only.
type ToolEvent struct {
	Name string
}

// SystemEvent reports engine lifecycle notices such as init.
type SystemEvent struct {
	Subtype string
}

// ResultEvent is the terminal event of a successful stream. It carries the
// usage counters the resource monitor accumulates.
type ResultEvent struct {
	Subtype    string
	DurationMs int64
	Result     string
	Usage      usage.Delta
	CostUSD    float64
}

// ErrorEvent reports an engine-level failure mid-stream. The chain treats it
// as potentially transient, unlike a fatal-pattern match.
type ErrorEvent struct {
	Err error
}

func (TextEvent) isEvent()   {}
func (ToolEvent) isEvent()   {}
func (SystemEvent) isEvent() {}
func (ResultEvent) isEvent() {}
func (ErrorEvent) isEvent()  {}
