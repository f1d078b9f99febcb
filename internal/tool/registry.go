package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	providertypes "github.com/parley-ai/parley/internal/ai/provider/types"
)

// DefaultTimeout bounds a single tool execution
const DefaultTimeout = 30 * time.Second

// Registry holds the callable tools and runs them with argument
// validation, a per-call timeout, and panic containment.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	timeout time.Duration
	logger  *zap.Logger
}

// NewRegistry creates a Registry. A zero timeout falls back to
// DefaultTimeout.
func NewRegistry(timeout time.Duration, logger *zap.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a tool. Re-registering a name replaces the previous tool.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if t.Executor == nil {
		return fmt.Errorf("tool %s has no executor", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	return nil
}

// Has reports whether a tool is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns registered tool names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions renders the named tools as provider tool declarations.
// Unknown names are skipped.
func (r *Registry) Definitions(names []string) []providertypes.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]providertypes.ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		defs = append(defs, providertypes.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema.Parameters(),
		})
	}
	return defs
}

// Execute runs one tool call. Failures never surface as errors; they
// come back as failed Results so the dispatch loop can feed them to
// the model.
func (r *Registry) Execute(ctx context.Context, callID, name string, arguments json.RawMessage) Result {
	start := time.Now()

	r.mu.RLock()
	t, ok := r.tools[name]
	timeout := r.timeout
	r.mu.RUnlock()

	if !ok {
		return Result{
			CallID:  callID,
			Name:    name,
			Error:   fmt.Sprintf("unknown tool %q", name),
			Latency: time.Since(start),
		}
	}

	args := map[string]interface{}{}
	if len(arguments) > 0 {
		if err := json.Unmarshal(arguments, &args); err != nil {
			return Result{
				CallID:  callID,
				Name:    name,
				Error:   fmt.Sprintf("invalid arguments: %v", err),
				Latency: time.Since(start),
			}
		}
	}

	if err := t.Schema.Validate(args); err != nil {
		return Result{
			CallID:  callID,
			Name:    name,
			Error:   fmt.Sprintf("invalid arguments: %v", err),
			Latency: time.Since(start),
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := r.run(execCtx, t, args)
	latency := time.Since(start)

	if err != nil {
		r.logger.Warn("tool execution failed",
			zap.String("tool", name),
			zap.String("call_id", callID),
			zap.Duration("latency", latency),
			zap.Error(err))
		return Result{CallID: callID, Name: name, Error: err.Error(), Latency: latency}
	}

	r.logger.Debug("tool executed",
		zap.String("tool", name),
		zap.String("call_id", callID),
		zap.Duration("latency", latency))
	return Result{CallID: callID, Name: name, OK: true, Output: output, Latency: latency}
}

// run executes in a goroutine so a stuck executor cannot outlive the
// timeout, and a panicking one becomes a failed result.
func (r *Registry) run(ctx context.Context, t Tool, args map[string]interface{}) (output string, err error) {
	type outcome struct {
		output string
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", t.Name, rec)}
			}
		}()
		out, execErr := t.Executor.Execute(ctx, args)
		done <- outcome{output: out, err: execErr}
	}()

	select {
	case res := <-done:
		return res.output, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("tool %s timed out: %w", t.Name, ctx.Err())
	}
}
