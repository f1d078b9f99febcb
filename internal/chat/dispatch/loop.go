package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	providertypes "github.com/parley-ai/parley/internal/ai/provider/types"
	"github.com/parley-ai/parley/internal/chat/stream"
	"github.com/parley-ai/parley/internal/chat/types"
	"github.com/parley-ai/parley/internal/pkg/workerpool"
	"github.com/parley-ai/parley/internal/tool"
)

// Config bounds the generate/execute loop
type Config struct {
	MaxIterations   int           `mapstructure:"max_iterations"`
	ProviderRetries int           `mapstructure:"provider_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
}

// DefaultConfig returns the default loop bounds
func DefaultConfig() Config {
	return Config{
		MaxIterations:   8,
		ProviderRetries: 2,
		RetryBackoff:    500 * time.Millisecond,
	}
}

func (c *Config) normalize() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 8
	}
	if c.ProviderRetries < 0 {
		c.ProviderRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
}

// Request is one turn's worth of work for the loop
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []types.Message // budgeted history, user message last
	EnabledTools []string        // concrete tool names after mode gating
	Temperature  *float64
	MaxTokens    *int
}

// Result is what the loop appended and how the turn ended
type Result struct {
	Messages []types.Message // new assistant and tool messages, execution order
	Status   string          // completed, truncated, or aborted
}

// Loop runs the generate/execute cycle for a single turn: stream a
// model response, run any requested tools, feed the results back, and
// repeat until the model stops or a bound trips.
type Loop struct {
	provider providertypes.Provider
	tools    *tool.Registry
	pool     *workerpool.Pool
	cfg      Config
	logger   *zap.Logger
}

// New creates a Loop bound to one provider
func New(provider providertypes.Provider, tools *tool.Registry, pool *workerpool.Pool, cfg Config, logger *zap.Logger) *Loop {
	cfg.normalize()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		provider: provider,
		tools:    tools,
		pool:     pool,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes the loop, forwarding stream and tool events through
// emit. It always returns at least one assistant message.
func (l *Loop) Run(ctx context.Context, req Request, emit func(types.TurnEvent)) Result {
	var appended []types.Message
	enabled := make(map[string]bool, len(req.EnabledTools))
	for _, name := range req.EnabledTools {
		enabled[name] = true
	}

	prevSignature := ""
	for iteration := 0; iteration < l.cfg.MaxIterations; iteration++ {
		events, err := l.openStream(ctx, req, appended)
		if err != nil {
			l.logger.Error("provider stream failed", zap.String("model", req.Model), zap.Error(err))
			return l.abort(appended, fmt.Sprintf("the %s model could not be reached (%v)", req.Model, err), emit)
		}

		agg := stream.New(req.Model)
		outcome := agg.Consume(ctx, events, emit)

		if outcome.Err != nil || outcome.Truncated {
			appended = append(appended, outcome.Message)
			appended = append(appended, closeOpenCalls(outcome.Message.ToolCalls, "the stream was interrupted", emit)...)
			if outcome.Err != nil && isCancellation(outcome.Err) {
				return Result{Messages: appended, Status: types.TurnStatusAborted}
			}
			if outcome.Err != nil {
				l.logger.Warn("stream truncated", zap.String("model", req.Model), zap.Error(outcome.Err))
			}
			return Result{Messages: appended, Status: types.TurnStatusTruncated}
		}

		if len(outcome.Message.ToolCalls) == 0 {
			appended = append(appended, outcome.Message)
			return Result{Messages: appended, Status: types.TurnStatusCompleted}
		}

		signature := callSignature(outcome.Message.ToolCalls)
		if signature == prevSignature {
			appended = append(appended, outcome.Message)
			appended = append(appended, closeOpenCalls(outcome.Message.ToolCalls, "the turn was stopped", emit)...)
			l.logger.Warn("tool call cycle detected", zap.String("model", req.Model), zap.String("signature", signature))
			return l.abort(appended, "the model kept requesting the same tool calls, so the turn was stopped", emit)
		}
		prevSignature = signature

		appended = append(appended, outcome.Message)

		results := l.executeCalls(ctx, outcome.Message.ToolCalls, enabled)
		for _, res := range results {
			res := res
			emit(types.TurnEvent{Type: types.TurnEventToolResult, ToolResult: &res})
			appended = append(appended, toolMessage(res))
		}

		if err := ctx.Err(); err != nil {
			return l.abort(appended, "the turn was cancelled", emit)
		}
	}

	l.logger.Warn("iteration bound reached", zap.String("model", req.Model), zap.Int("max_iterations", l.cfg.MaxIterations))
	return l.abort(appended, fmt.Sprintf("the tool loop hit its limit of %d rounds without finishing", l.cfg.MaxIterations), emit)
}

// openStream calls the provider, retrying transient failures with
// exponential backoff. Terminal rejections are never retried.
func (l *Loop) openStream(ctx context.Context, req Request, appended []types.Message) (<-chan providertypes.StreamEvent, error) {
	chatReq := l.buildChatRequest(req, appended)

	backoff := l.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= l.cfg.ProviderRetries; attempt++ {
		if attempt > 0 {
			l.logger.Info("retrying provider",
				zap.String("model", req.Model),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		events, err := l.provider.ChatStream(ctx, chatReq)
		if err == nil {
			return events, nil
		}
		lastErr = err

		var perr *providertypes.ProviderError
		if errors.As(err, &perr) && perr.IsRetryable() {
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (l *Loop) buildChatRequest(req Request, appended []types.Message) *providertypes.ChatRequest {
	messages := make([]providertypes.Message, 0, len(req.Messages)+len(appended))
	for _, msg := range req.Messages {
		messages = append(messages, toProviderMessage(msg))
	}
	for _, msg := range appended {
		messages = append(messages, toProviderMessage(msg))
	}

	return &providertypes.ChatRequest{
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Messages:     messages,
		Tools:        l.tools.Definitions(req.EnabledTools),
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	}
}

// executeCalls runs sibling calls concurrently and returns results in
// call order. Calls outside the enabled set come back as failed
// results so the model can recover.
func (l *Loop) executeCalls(ctx context.Context, calls []types.ToolCall, enabled map[string]bool) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		i, call := i, call

		if !enabled[call.Name] || !l.tools.Has(call.Name) {
			results[i] = types.ToolResult{
				CallID: call.ID,
				Name:   call.Name,
				Error:  fmt.Sprintf("tool %q is not permitted", call.Name),
			}
			continue
		}

		wg.Add(1)
		run := func() {
			defer wg.Done()
			res := l.tools.Execute(ctx, call.ID, call.Name, call.Arguments)
			results[i] = types.ToolResult{
				CallID:  res.CallID,
				Name:    res.Name,
				OK:      res.OK,
				Output:  res.Output,
				Error:   res.Error,
				Latency: res.Latency,
			}
		}
		if l.pool != nil {
			if err := l.pool.Submit(run); err != nil {
				wg.Done()
				results[i] = types.ToolResult{
					CallID: call.ID,
					Name:   call.Name,
					Error:  fmt.Sprintf("worker pool rejected the call: %v", err),
				}
			}
		} else {
			go run()
		}
	}

	wg.Wait()
	return results
}

func (l *Loop) abort(appended []types.Message, reason string, emit func(types.TurnEvent)) Result {
	msg := types.Message{
		ID:        uuid.NewString(),
		Role:      types.RoleAssistant,
		Content:   fmt.Sprintf("I stopped this turn early: %s.", reason),
		CreatedAt: time.Now(),
	}
	emit(types.TurnEvent{Type: types.TurnEventContentDelta, Content: msg.Content})
	return Result{Messages: append(appended, msg), Status: types.TurnStatusAborted}
}

// closeOpenCalls answers tool calls the turn will never execute.
// Persisted history must pair every assistant tool call with a tool
// message; providers reject replayed histories with unanswered calls.
func closeOpenCalls(calls []types.ToolCall, reason string, emit func(types.TurnEvent)) []types.Message {
	out := make([]types.Message, 0, len(calls))
	for _, call := range calls {
		res := types.ToolResult{
			CallID: call.ID,
			Name:   call.Name,
			Error:  "not executed: " + reason,
		}
		emit(types.TurnEvent{Type: types.TurnEventToolResult, ToolResult: &res})
		out = append(out, toolMessage(res))
	}
	return out
}

// callSignature canonicalizes a set of tool calls so two consecutive
// identical requests can be detected regardless of argument key order.
func callSignature(calls []types.ToolCall) string {
	parts := make([]string, 0, len(calls))
	for _, call := range calls {
		parts = append(parts, call.Name+":"+canonicalJSON(call.Arguments))
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func canonicalJSON(raw json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func toProviderMessage(msg types.Message) providertypes.Message {
	pm := providertypes.Message{
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		Name:       msg.Name,
	}
	for _, tc := range msg.ToolCalls {
		pm.ToolCalls = append(pm.ToolCalls, providertypes.ToolCall{
			ID:        tc.ID,
			Index:     tc.Index,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}
	return pm
}

// toolMessage renders a tool result as the history entry fed back to
// the model
func toolMessage(res types.ToolResult) types.Message {
	content := res.Output
	if !res.OK {
		content = "Error: " + res.Error
	}
	return types.Message{
		ID:         uuid.NewString(),
		Role:       types.RoleTool,
		Content:    content,
		ToolCallID: res.CallID,
		Name:       res.Name,
		CreatedAt:  time.Now(),
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
