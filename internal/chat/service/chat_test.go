package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/internal/ai/provider/registry"
	providertypes "github.com/parley-ai/parley/internal/ai/provider/types"
	"github.com/parley-ai/parley/internal/chat/biz"
	"github.com/parley-ai/parley/internal/chat/data"
	"github.com/parley-ai/parley/internal/chat/dispatch"
	"github.com/parley-ai/parley/internal/mode"
	"github.com/parley-ai/parley/internal/tool"

	"go.uber.org/zap"
)

type cannedProvider struct {
	text string
}

func (p *cannedProvider) Name() string          { return "canned" }
func (p *cannedProvider) ValidateConfig() error { return nil }

func (p *cannedProvider) ChatStream(ctx context.Context, req *providertypes.ChatRequest) (<-chan providertypes.StreamEvent, error) {
	ch := make(chan providertypes.StreamEvent, 2)
	ch <- providertypes.StreamEvent{Type: providertypes.EventContentDelta, Content: p.text}
	ch <- providertypes.StreamEvent{Type: providertypes.EventDone, FinishReason: providertypes.FinishReasonStop}
	close(ch)
	return ch, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	providers := registry.New()
	providers.Register(&cannedProvider{text: "canned reply"})
	providers.BindModel("gpt-test", "canned")

	modes := mode.NewRegistry(nil)
	manager := biz.NewManager(
		providers,
		tool.NewRegistry(time.Second, nil),
		modes,
		data.NewMemoryStore(),
		nil,
		func(model, text string) int { return len(strings.Fields(text)) },
		biz.Config{DefaultModel: "gpt-test", Loop: dispatch.DefaultConfig()},
		zap.NewNop(),
	)

	svc := NewChatService(manager, modes, providers, zap.NewNop())
	router := gin.New()
	svc.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTurnStreamsSSE(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/conversations/c1/turn", `{"message":"hello"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: content_delta")
	assert.Contains(t, body, "event: final")

	// the final event carries the complete assistant message
	var finalData string
	for _, block := range strings.Split(body, "\n\n") {
		if strings.HasPrefix(block, "event: final") {
			for _, line := range strings.Split(block, "\n") {
				finalData = strings.TrimPrefix(line, "data: ")
			}
		}
	}
	require.NotEmpty(t, finalData)

	var final struct {
		Status  string `json:"status"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	require.NoError(t, json.Unmarshal([]byte(finalData), &final))
	assert.Equal(t, "completed", final.Status)
	assert.Equal(t, "canned reply", final.Message.Content)
}

func TestTurnValidation(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "missing message", body: `{}`, status: http.StatusBadRequest},
		{name: "unknown model", body: `{"message":"hi","model":"nope"}`, status: http.StatusBadRequest},
		{name: "unknown mode", body: `{"message":"hi","mode":"pirate"}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, "POST", "/api/v1/conversations/c1/turn", tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHistoryEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/v1/conversations/c1/turn", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/api/v1/conversations/c1/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listResp struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Len(t, listResp.Messages, 2)
	assert.Equal(t, "user", listResp.Messages[0].Role)
	assert.Equal(t, "assistant", listResp.Messages[1].Role)

	w = doJSON(t, router, "GET", "/api/v1/conversations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "c1")

	w = doJSON(t, router, "DELETE", "/api/v1/conversations/c1", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/api/v1/conversations/c1/messages", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Empty(t, listResp.Messages)
}

func TestPromptEndpoints(t *testing.T) {
	router := newTestRouter(t)

	// default prompt comes from the mode
	w := doJSON(t, router, "GET", "/api/v1/conversations/c1/prompt", "")
	require.Equal(t, http.StatusOK, w.Code)
	var getResp struct {
		SystemPrompt string `json:"system_prompt"`
		Custom       bool   `json:"custom"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &getResp))
	assert.False(t, getResp.Custom)
	assert.NotEmpty(t, getResp.SystemPrompt)

	w = doJSON(t, router, "PUT", "/api/v1/conversations/c1/prompt", `{"system_prompt":"Be terse."}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/api/v1/conversations/c1/prompt", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &getResp))
	assert.True(t, getResp.Custom)
	assert.Equal(t, "Be terse.", getResp.SystemPrompt)
}

func TestModeEndpoints(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/v1/modes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "technical")

	w = doJSON(t, router, "PUT", "/api/v1/conversations/c1/mode", `{"mode":"legal"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "PUT", "/api/v1/conversations/c1/mode", `{"mode":"pirate"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModelsEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, "GET", "/api/v1/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gpt-test")
	assert.Contains(t, w.Body.String(), "canned")
}
