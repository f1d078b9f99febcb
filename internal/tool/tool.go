package tool

import (
	"context"
	"time"
)

// Executor runs a tool call with validated arguments
type Executor interface {
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, args map[string]interface{}) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return f(ctx, args)
}

// Tool bundles a callable capability with its argument schema
type Tool struct {
	Name        string
	Description string
	Schema      Schema
	Executor    Executor
}

// Result is the outcome of a single tool call
type Result struct {
	CallID  string        `json:"call_id"`
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Output  string        `json:"output,omitempty"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
}
