package biz

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/internal/ai/provider/registry"
	providertypes "github.com/parley-ai/parley/internal/ai/provider/types"
	"github.com/parley-ai/parley/internal/chat/data"
	"github.com/parley-ai/parley/internal/chat/dispatch"
	"github.com/parley-ai/parley/internal/chat/types"
	"github.com/parley-ai/parley/internal/mode"
	"github.com/parley-ai/parley/internal/tool"
	"github.com/parley-ai/parley/internal/tool/builtin"
)

type scriptedProvider struct {
	mu     sync.Mutex
	calls  int
	script []func(req *providertypes.ChatRequest) ([]providertypes.StreamEvent, error)
}

func (s *scriptedProvider) Name() string          { return "scripted" }
func (s *scriptedProvider) ValidateConfig() error { return nil }

func (s *scriptedProvider) ChatStream(ctx context.Context, req *providertypes.ChatRequest) (<-chan providertypes.StreamEvent, error) {
	s.mu.Lock()
	idx := s.calls
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	s.calls++
	step := s.script[idx]
	s.mu.Unlock()

	events, err := step(req)
	if err != nil {
		return nil, err
	}
	ch := make(chan providertypes.StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func answer(text string) func(*providertypes.ChatRequest) ([]providertypes.StreamEvent, error) {
	return func(*providertypes.ChatRequest) ([]providertypes.StreamEvent, error) {
		return []providertypes.StreamEvent{
			{Type: providertypes.EventContentDelta, Content: text},
			{Type: providertypes.EventDone, FinishReason: providertypes.FinishReasonStop},
		}, nil
	}
}

func wordCounter(model, text string) int {
	return len(strings.Fields(text))
}

type managerFixture struct {
	manager  *Manager
	provider *scriptedProvider
	store    *data.MemoryStore
	tools    *tool.Registry
}

func newFixture(t *testing.T, script ...func(*providertypes.ChatRequest) ([]providertypes.StreamEvent, error)) *managerFixture {
	t.Helper()
	if len(script) == 0 {
		script = append(script, answer("ok"))
	}

	provider := &scriptedProvider{script: script}
	providers := registry.New()
	providers.Register(provider)
	providers.BindModel("gpt-test", "scripted")

	tools := tool.NewRegistry(5*time.Second, nil)
	store := data.NewMemoryStore()

	cfg := Config{
		DefaultModel:       "gpt-test",
		HistoryTokenBudget: 10000,
		Loop:               dispatch.Config{MaxIterations: 8, ProviderRetries: 0, RetryBackoff: time.Millisecond},
	}
	manager := NewManager(providers, tools, mode.NewRegistry(nil), store, nil, wordCounter, cfg, nil)

	return &managerFixture{manager: manager, provider: provider, store: store, tools: tools}
}

func drain(t *testing.T, events <-chan types.TurnEvent) (final types.TurnEvent, all []types.TurnEvent) {
	t.Helper()
	for ev := range events {
		all = append(all, ev)
		if ev.Type == types.TurnEventFinal {
			final = ev
		}
	}
	require.NotEmpty(t, final.Type, "stream ended without a final event")
	return final, all
}

func TestStartTurnAppendsMessagesInOrder(t *testing.T) {
	f := newFixture(t, answer("first"), answer("second"), answer("third"))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		events, err := f.manager.StartTurn(ctx, "conv", fmt.Sprintf("question %d", i), types.TurnOptions{})
		require.NoError(t, err)
		final, _ := drain(t, events)
		assert.Equal(t, types.TurnStatusCompleted, final.Status)
	}

	history, err := f.manager.GetHistory(ctx, "conv")
	require.NoError(t, err)
	require.Len(t, history, 6)

	var users, assistants int
	for i, msg := range history {
		switch msg.Role {
		case types.RoleUser:
			users++
			assert.Equal(t, fmt.Sprintf("question %d", users), msg.Content, "user message %d out of order", i)
		case types.RoleAssistant:
			assistants++
		}
	}
	assert.Equal(t, 3, users)
	assert.Equal(t, 3, assistants)
}

func TestStartTurnBusyConflict(t *testing.T) {
	release := make(chan struct{})
	slow := func(*providertypes.ChatRequest) ([]providertypes.StreamEvent, error) {
		<-release
		return []providertypes.StreamEvent{
			{Type: providertypes.EventContentDelta, Content: "late"},
			{Type: providertypes.EventDone, FinishReason: providertypes.FinishReasonStop},
		}, nil
	}
	f := newFixture(t, slow)
	ctx := context.Background()

	events, err := f.manager.StartTurn(ctx, "conv", "first", types.TurnOptions{})
	require.NoError(t, err)

	_, err = f.manager.StartTurn(ctx, "conv", "second", types.TurnOptions{})
	assert.ErrorIs(t, err, types.ErrConversationBusy)

	// a different conversation is unaffected
	other, err := f.manager.StartTurn(ctx, "other", "hello", types.TurnOptions{})
	require.NoError(t, err)

	close(release)
	drain(t, events)
	drain(t, other)

	history, err := f.manager.GetHistory(ctx, "conv")
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Content)
}

func TestStartTurnValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.StartTurn(ctx, "conv", "   ", types.TurnOptions{})
	assert.ErrorIs(t, err, types.ErrEmptyMessage)

	_, err = f.manager.StartTurn(ctx, "conv", "hi", types.TurnOptions{Model: "unknown-model"})
	assert.ErrorIs(t, err, types.ErrUnknownModel)

	_, err = f.manager.StartTurn(ctx, "conv", "hi", types.TurnOptions{Mode: "pirate"})
	assert.ErrorIs(t, err, types.ErrUnknownMode)
}

func TestZeroToolTurnContentMatchesStream(t *testing.T) {
	f := newFixture(t, answer("streamed answer"))
	ctx := context.Background()

	events, err := f.manager.StartTurn(ctx, "conv", "hello", types.TurnOptions{})
	require.NoError(t, err)
	final, all := drain(t, events)

	streamed := ""
	for _, ev := range all {
		if ev.Type == types.TurnEventContentDelta {
			streamed += ev.Content
		}
	}
	require.NotNil(t, final.Message)
	assert.Equal(t, streamed, final.Message.Content)
	assert.Equal(t, types.TurnStatusCompleted, final.Status)

	history, err := f.manager.GetHistory(ctx, "conv")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "streamed answer", history[1].Content)
}

func TestWeatherToolScenario(t *testing.T) {
	geocoder := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[{"name":"Oslo","latitude":59.91,"longitude":10.75}]}`)
	}))
	defer geocoder.Close()
	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"current_weather":{"temperature":4.5,"windspeed":20.1,"weathercode":61}}`)
	}))
	defer forecast.Close()

	requestWeather := func(*providertypes.ChatRequest) ([]providertypes.StreamEvent, error) {
		return []providertypes.StreamEvent{
			{Type: providertypes.EventToolCallDelta, ToolCall: &providertypes.ToolCallDelta{
				Index: 0, ID: "call_w", Name: "weather", ArgumentsFragment: `{"location":"Oslo"}`,
			}},
			{Type: providertypes.EventDone, FinishReason: providertypes.FinishReasonToolCalls},
		}, nil
	}
	finalAnswer := func(req *providertypes.ChatRequest) ([]providertypes.StreamEvent, error) {
		// the tool result must be in the request history by now
		found := false
		for _, msg := range req.Messages {
			if msg.Role == providertypes.RoleTool && strings.Contains(msg.Content, "light rain") {
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("tool result missing from request")
		}
		return []providertypes.StreamEvent{
			{Type: providertypes.EventContentDelta, Content: "It is raining lightly in Oslo at 4.5°C."},
			{Type: providertypes.EventDone, FinishReason: providertypes.FinishReasonStop},
		}, nil
	}

	f := newFixture(t, requestWeather, finalAnswer)
	require.NoError(t, f.tools.Register(builtin.Weather(http.DefaultClient, builtin.WeatherConfig{
		GeocodeURL:  geocoder.URL,
		ForecastURL: forecast.URL,
	})))

	events, err := f.manager.StartTurn(context.Background(), "conv", "weather in Oslo?", types.TurnOptions{})
	require.NoError(t, err)
	final, all := drain(t, events)

	assert.Equal(t, types.TurnStatusCompleted, final.Status)
	assert.Contains(t, final.Message.Content, "Oslo")

	var sawToolResult bool
	for _, ev := range all {
		if ev.Type == types.TurnEventToolResult {
			sawToolResult = true
			assert.True(t, ev.ToolResult.OK)
			assert.Contains(t, ev.ToolResult.Output, "light rain")
		}
	}
	assert.True(t, sawToolResult)

	history, err := f.manager.GetHistory(context.Background(), "conv")
	require.NoError(t, err)
	// user, assistant(tool call), tool, assistant
	require.Len(t, history, 4)
	assert.Equal(t, types.RoleTool, history[2].Role)
	assert.Equal(t, "call_w", history[2].ToolCallID)
}

func TestAbortedTurnLeavesReplayableHistory(t *testing.T) {
	repeat := func(*providertypes.ChatRequest) ([]providertypes.StreamEvent, error) {
		return []providertypes.StreamEvent{
			{Type: providertypes.EventToolCallDelta, ToolCall: &providertypes.ToolCallDelta{
				Index: 0, ID: "c", Name: "echo", ArgumentsFragment: `{}`,
			}},
			{Type: providertypes.EventDone, FinishReason: providertypes.FinishReasonToolCalls},
		}, nil
	}
	var second *providertypes.ChatRequest
	capture := func(req *providertypes.ChatRequest) ([]providertypes.StreamEvent, error) {
		second = req
		return answer("fresh start")(req)
	}
	f := newFixture(t, repeat, repeat, capture)
	require.NoError(t, f.tools.Register(tool.Tool{
		Name:   "echo",
		Schema: tool.ObjectSchema(nil),
		Executor: tool.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "echo", nil
		}),
	}))
	ctx := context.Background()

	// first turn trips the cycle guard and aborts
	events, err := f.manager.StartTurn(ctx, "conv", "loop please", types.TurnOptions{})
	require.NoError(t, err)
	final, _ := drain(t, events)
	assert.Equal(t, types.TurnStatusAborted, final.Status)

	// the next turn must still complete against the persisted history
	events, err = f.manager.StartTurn(ctx, "conv", "try again", types.TurnOptions{})
	require.NoError(t, err)
	final, _ = drain(t, events)
	assert.Equal(t, types.TurnStatusCompleted, final.Status)

	// every assistant tool call in the replayed history is answered
	require.NotNil(t, second)
	answered := make(map[string]bool)
	for _, msg := range second.Messages {
		if msg.Role == providertypes.RoleTool {
			answered[msg.ToolCallID] = true
		}
	}
	for _, msg := range second.Messages {
		for _, call := range msg.ToolCalls {
			assert.True(t, answered[call.ID], "tool call %s unanswered in replayed history", call.ID)
		}
	}
}

func TestTruncatedTurnFinalIsAssistant(t *testing.T) {
	interrupted := func(*providertypes.ChatRequest) ([]providertypes.StreamEvent, error) {
		return []providertypes.StreamEvent{
			{Type: providertypes.EventContentDelta, Content: "checking"},
			{Type: providertypes.EventToolCallDelta, ToolCall: &providertypes.ToolCallDelta{
				Index: 0, ID: "c1", Name: "echo", ArgumentsFragment: `{}`,
			}},
			{Type: providertypes.EventError, Err: &providertypes.ProviderError{
				Type: providertypes.ErrorTypeTransport, Provider: "scripted", Message: "reset",
			}},
		}, nil
	}
	f := newFixture(t, interrupted)
	require.NoError(t, f.tools.Register(tool.Tool{
		Name:   "echo",
		Schema: tool.ObjectSchema(nil),
		Executor: tool.ExecutorFunc(func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "echo", nil
		}),
	}))

	events, err := f.manager.StartTurn(context.Background(), "conv", "hi", types.TurnOptions{})
	require.NoError(t, err)
	final, _ := drain(t, events)

	assert.Equal(t, types.TurnStatusTruncated, final.Status)
	require.NotNil(t, final.Message)
	assert.Equal(t, types.RoleAssistant, final.Message.Role)
	assert.Equal(t, "checking", final.Message.Content)

	// the unexecuted call is still answered in the stored history
	history, err := f.manager.GetHistory(context.Background(), "conv")
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, types.RoleTool, last.Role)
	assert.Equal(t, "c1", last.ToolCallID)
}

func TestGetHistoryImplicitCreate(t *testing.T) {
	f := newFixture(t)

	history, err := f.manager.GetHistory(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Empty(t, history)

	ids, err := f.manager.ListConversations(context.Background())
	require.NoError(t, err)
	assert.Contains(t, ids, "fresh")
}

func TestClearHistoryKeepsMetadata(t *testing.T) {
	f := newFixture(t, answer("hi"))
	ctx := context.Background()

	events, err := f.manager.StartTurn(ctx, "conv", "hello", types.TurnOptions{Mode: "technical"})
	require.NoError(t, err)
	drain(t, events)

	require.NoError(t, f.manager.ClearHistory(ctx, "conv"))
	require.NoError(t, f.manager.ClearHistory(ctx, "conv")) // idempotent

	history, err := f.manager.GetHistory(ctx, "conv")
	require.NoError(t, err)
	assert.Empty(t, history)

	conv, err := f.manager.GetConversation(ctx, "conv")
	require.NoError(t, err)
	assert.Equal(t, "technical", conv.Mode)
	assert.Equal(t, "gpt-test", conv.Model)
}

func TestMetadataMutationAppliesNextTurn(t *testing.T) {
	var prompts []string
	var mu sync.Mutex
	record := func(req *providertypes.ChatRequest) ([]providertypes.StreamEvent, error) {
		mu.Lock()
		prompts = append(prompts, req.SystemPrompt)
		mu.Unlock()
		return []providertypes.StreamEvent{
			{Type: providertypes.EventContentDelta, Content: "ok"},
			{Type: providertypes.EventDone, FinishReason: providertypes.FinishReasonStop},
		}, nil
	}
	f := newFixture(t, record)
	ctx := context.Background()

	events, err := f.manager.StartTurn(ctx, "conv", "one", types.TurnOptions{})
	require.NoError(t, err)
	drain(t, events)

	require.NoError(t, f.manager.SetSystemPrompt(ctx, "conv", "You are terse."))

	events, err = f.manager.StartTurn(ctx, "conv", "two", types.TurnOptions{})
	require.NoError(t, err)
	drain(t, events)

	require.Len(t, prompts, 2)
	assert.NotEqual(t, "You are terse.", prompts[0])
	assert.Equal(t, "You are terse.", prompts[1])
}

func TestSetModeValidation(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.manager.SetMode(context.Background(), "conv", "pirate"), types.ErrUnknownMode)
	assert.NoError(t, f.manager.SetMode(context.Background(), "conv", "legal"))

	assert.ErrorIs(t, f.manager.SetModel(context.Background(), "conv", "nope"), types.ErrUnknownModel)
	assert.NoError(t, f.manager.SetModel(context.Background(), "conv", "gpt-test"))
}

func TestHistoryBudgetDropsOldest(t *testing.T) {
	recorded := make(chan int, 1)
	record := func(req *providertypes.ChatRequest) ([]providertypes.StreamEvent, error) {
		recorded <- len(req.Messages)
		return []providertypes.StreamEvent{
			{Type: providertypes.EventContentDelta, Content: "ok"},
			{Type: providertypes.EventDone, FinishReason: providertypes.FinishReasonStop},
		}, nil
	}
	f := newFixture(t, answer("a"), answer("b"), answer("c"), record)
	ctx := context.Background()

	// tighten the budget so only the tail of the history fits:
	// each message costs ~5 tokens under the word counter
	f.manager.cfg.HistoryTokenBudget = 12

	for _, msg := range []string{"one", "two", "three"} {
		events, err := f.manager.StartTurn(ctx, "conv", msg, types.TurnOptions{})
		require.NoError(t, err)
		drain(t, events)
	}

	events, err := f.manager.StartTurn(ctx, "conv", "four", types.TurnOptions{})
	require.NoError(t, err)
	drain(t, events)

	sent := <-recorded
	// full history is 6 messages + the new user message; the budget
	// only admits a suffix of it
	assert.Less(t, sent, 7)
	assert.GreaterOrEqual(t, sent, 1)

	history, err := f.manager.GetHistory(ctx, "conv")
	require.NoError(t, err)
	assert.Len(t, history, 8, "budgeting must not mutate stored history")
}

func TestTurnPersistsToStore(t *testing.T) {
	f := newFixture(t, answer("persisted"))
	ctx := context.Background()

	events, err := f.manager.StartTurn(ctx, "conv", "hello", types.TurnOptions{})
	require.NoError(t, err)
	final, _ := drain(t, events)
	assert.Empty(t, final.Warning)

	stored, ok, err := f.store.Load(ctx, "conv")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, stored.Messages, 2)
}
