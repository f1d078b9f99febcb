package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/parley-ai/parley/internal/ai/provider/types"
)

// Provider streams generateContent responses from the Gemini API
type Provider struct {
	config *types.Config
	client *http.Client
}

// New creates a Gemini Provider
func New(config *types.Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	return &Provider{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "gemini"
}

// ValidateConfig checks the provider configuration
func (p *Provider) ValidateConfig() error {
	return p.config.Validate()
}

type geminiRequest struct {
	Contents          []geminiContent   `json:"contents"`
	SystemInstruction *geminiContent    `json:"system_instruction,omitempty"`
	Tools             []geminiToolGroup `json:"tools,omitempty"`
	GenerationConfig  *geminiGenConfig  `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string          `json:"text,omitempty"`
	FunctionCall     *geminiFuncCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFuncResp `json:"functionResponse,omitempty"`
}

type geminiFuncCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type geminiFuncResp struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

type geminiToolGroup struct {
	FunctionDeclarations []geminiFuncDecl `json:"function_declarations"`
}

type geminiFuncDecl struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type geminiGenConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

// ChatStream opens a streamGenerateContent request and normalizes SSE
// chunks into StreamEvents. The returned channel is closed after the
// done or error event.
func (p *Provider) ChatStream(ctx context.Context, req *types.ChatRequest) (<-chan types.StreamEvent, error) {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, types.NewTransportError(p.Name(), "marshal request failed", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.config.BaseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, types.NewTransportError(p.Name(), "create request failed", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.config.APIKey)
	for key, value := range p.config.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewTransportError(p.Name(), "request failed", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		message := gjson.GetBytes(respBody, "error.message").String()
		if message == "" {
			message = string(respBody)
		}
		return nil, types.NewStatusError(p.Name(), resp.StatusCode, message)
	}

	events := make(chan types.StreamEvent, 16)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		finishReason := types.FinishReasonStop
		toolCallIndex := 0

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			parts := gjson.Get(data, "candidates.0.content.parts")
			for _, part := range parts.Array() {
				if text := part.Get("text").String(); text != "" {
					events <- types.StreamEvent{
						Type:    types.EventContentDelta,
						Content: text,
					}
				}
				if fc := part.Get("functionCall"); fc.Exists() {
					// Gemini emits whole function calls, not argument
					// fragments, and assigns no call IDs.
					events <- types.StreamEvent{
						Type: types.EventToolCallDelta,
						ToolCall: &types.ToolCallDelta{
							Index:             toolCallIndex,
							ID:                fmt.Sprintf("call_%d", toolCallIndex),
							Name:              fc.Get("name").String(),
							ArgumentsFragment: fc.Get("args").Raw,
						},
					}
					toolCallIndex++
					finishReason = types.FinishReasonToolCalls
				}
			}

			switch gjson.Get(data, "candidates.0.finishReason").String() {
			case "MAX_TOKENS":
				finishReason = types.FinishReasonLength
			case "STOP":
				if toolCallIndex == 0 {
					finishReason = types.FinishReasonStop
				}
			}
		}

		if err := scanner.Err(); err != nil {
			events <- types.StreamEvent{
				Type: types.EventError,
				Err:  types.NewTransportError(p.Name(), "read stream failed", err),
			}
			return
		}

		events <- types.StreamEvent{Type: types.EventDone, FinishReason: finishReason}
	}()

	return events, nil
}

func (p *Provider) buildRequest(req *types.ChatRequest) geminiRequest {
	greq := geminiRequest{}

	if req.SystemPrompt != "" {
		greq.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: req.SystemPrompt}},
		}
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case types.RoleAssistant:
			content := geminiContent{Role: "model"}
			if msg.Content != "" {
				content.Parts = append(content.Parts, geminiPart{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]interface{}
				if err := json.Unmarshal(tc.Arguments, &args); err != nil {
					args = map[string]interface{}{}
				}
				content.Parts = append(content.Parts, geminiPart{
					FunctionCall: &geminiFuncCall{Name: tc.Name, Args: args},
				})
			}
			greq.Contents = append(greq.Contents, content)
		case types.RoleTool:
			greq.Contents = append(greq.Contents, geminiContent{
				Role: "user",
				Parts: []geminiPart{{
					FunctionResponse: &geminiFuncResp{
						Name:     msg.Name,
						Response: map[string]interface{}{"content": msg.Content},
					},
				}},
			})
		default:
			greq.Contents = append(greq.Contents, geminiContent{
				Role:  "user",
				Parts: []geminiPart{{Text: msg.Content}},
			})
		}
	}

	if len(req.Tools) > 0 {
		group := geminiToolGroup{}
		for _, t := range req.Tools {
			group.FunctionDeclarations = append(group.FunctionDeclarations, geminiFuncDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		greq.Tools = []geminiToolGroup{group}
	}

	if req.Temperature != nil || req.MaxTokens != nil {
		greq.GenerationConfig = &geminiGenConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	return greq
}
