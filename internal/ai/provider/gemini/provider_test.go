package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/internal/ai/provider/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(&types.Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gemini-2.0-flash",
	})
	require.NoError(t, err)
	return p
}

func collect(t *testing.T, events <-chan types.StreamEvent) []types.StreamEvent {
	t.Helper()

	var got []types.StreamEvent
	for ev := range events {
		got = append(got, ev)
	}
	return got
}

func TestChatStreamContentChunks(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		assert.Contains(t, r.URL.Path, "gemini-2.0-flash:streamGenerateContent")
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"candidates":[{"content":{"parts":[{"text":"Hello"}]}}]}` + "\n\n"))
		w.Write([]byte(`data: {"candidates":[{"content":{"parts":[{"text":" there"}]},"finishReason":"STOP"}]}` + "\n\n"))
	})

	events, err := p.ChatStream(context.Background(), &types.ChatRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3)
	assert.Equal(t, types.EventContentDelta, got[0].Type)
	assert.Equal(t, "Hello", got[0].Content)
	assert.Equal(t, " there", got[1].Content)
	assert.Equal(t, types.EventDone, got[2].Type)
	assert.Equal(t, types.FinishReasonStop, got[2].FinishReason)
}

func TestChatStreamFunctionCalls(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"candidates":[{"content":{"parts":[` +
			`{"functionCall":{"name":"get_weather","args":{"location":"Paris"}}},` +
			`{"functionCall":{"name":"get_weather","args":{"location":"Oslo"}}}` +
			`]},"finishReason":"STOP"}]}` + "\n\n"))
	})

	events, err := p.ChatStream(context.Background(), &types.ChatRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "weather"}},
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3)

	first := got[0]
	require.Equal(t, types.EventToolCallDelta, first.Type)
	require.NotNil(t, first.ToolCall)
	assert.Equal(t, 0, first.ToolCall.Index)
	assert.Equal(t, "call_0", first.ToolCall.ID)
	assert.Equal(t, "get_weather", first.ToolCall.Name)
	assert.JSONEq(t, `{"location":"Paris"}`, first.ToolCall.ArgumentsFragment)

	second := got[1]
	require.NotNil(t, second.ToolCall)
	assert.Equal(t, "call_1", second.ToolCall.ID)
	assert.JSONEq(t, `{"location":"Oslo"}`, second.ToolCall.ArgumentsFragment)

	assert.Equal(t, types.EventDone, got[2].Type)
	assert.Equal(t, types.FinishReasonToolCalls, got[2].FinishReason)
}

func TestChatStreamMaxTokens(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"candidates":[{"content":{"parts":[{"text":"partial"}]},"finishReason":"MAX_TOKENS"}]}` + "\n\n"))
	})

	events, err := p.ChatStream(context.Background(), &types.ChatRequest{
		Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, types.FinishReasonLength, got[1].FinishReason)
}

func TestChatStreamStatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope"}}`))
			})

			_, err := p.ChatStream(context.Background(), &types.ChatRequest{
				Messages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
			})
			require.Error(t, err)

			var provErr *types.ProviderError
			require.ErrorAs(t, err, &provErr)
			assert.Equal(t, tt.status, provErr.StatusCode)
			assert.Equal(t, "nope", provErr.Message)
			assert.Equal(t, tt.retryable, provErr.IsRetryable())
		})
	}
}

func TestBuildRequestRoleMapping(t *testing.T) {
	p := &Provider{config: &types.Config{APIKey: "k"}}

	greq := p.buildRequest(&types.ChatRequest{
		SystemPrompt: "Be brief.",
		Messages: []types.Message{
			{Role: types.RoleUser, Content: "weather in Paris?"},
			{
				Role: types.RoleAssistant,
				ToolCalls: []types.ToolCall{{
					ID:        "call_0",
					Name:      "get_weather",
					Arguments: json.RawMessage(`{"location":"Paris"}`),
				}},
			},
			{Role: types.RoleTool, Name: "get_weather", Content: "18C, clear"},
		},
		Tools: []types.ToolDefinition{{
			Name:        "get_weather",
			Description: "Current weather",
			Parameters:  map[string]interface{}{"type": "object"},
		}},
	})

	require.NotNil(t, greq.SystemInstruction)
	assert.Equal(t, "Be brief.", greq.SystemInstruction.Parts[0].Text)

	require.Len(t, greq.Contents, 3)
	assert.Equal(t, "user", greq.Contents[0].Role)

	assert.Equal(t, "model", greq.Contents[1].Role)
	require.Len(t, greq.Contents[1].Parts, 1)
	require.NotNil(t, greq.Contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "get_weather", greq.Contents[1].Parts[0].FunctionCall.Name)
	assert.Equal(t, "Paris", greq.Contents[1].Parts[0].FunctionCall.Args["location"])

	assert.Equal(t, "user", greq.Contents[2].Role)
	require.NotNil(t, greq.Contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "get_weather", greq.Contents[2].Parts[0].FunctionResponse.Name)
	assert.Equal(t, "18C, clear", greq.Contents[2].Parts[0].FunctionResponse.Response["content"])

	require.Len(t, greq.Tools, 1)
	require.Len(t, greq.Tools[0].FunctionDeclarations, 1)
	assert.Equal(t, "get_weather", greq.Tools[0].FunctionDeclarations[0].Name)
}
