package openai

import (
	"context"
	"errors"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/parley-ai/parley/internal/ai/provider/types"
)

// Provider streams chat completions from OpenAI-compatible endpoints
type Provider struct {
	config *types.Config
	client *openai.Client
}

// New creates an OpenAI Provider
func New(config *types.Config) (*Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &Provider{
		config: config,
		client: openai.NewClientWithConfig(cfg),
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "openai"
}

// ValidateConfig checks the provider configuration
func (p *Provider) ValidateConfig() error {
	return p.config.Validate()
}

// ChatStream opens a streaming chat completion and normalizes the
// wire deltas into StreamEvents. The returned channel is closed after
// the done or error event.
func (p *Provider) ChatStream(ctx context.Context, req *types.ChatRequest) (<-chan types.StreamEvent, error) {
	oreq := p.buildRequest(req)

	stream, err := p.client.CreateChatCompletionStream(ctx, oreq)
	if err != nil {
		return nil, p.wrapError("open stream failed", err)
	}

	events := make(chan types.StreamEvent, 16)

	go func() {
		defer close(events)
		defer stream.Close()

		finishReason := types.FinishReasonStop
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				events <- types.StreamEvent{Type: types.EventDone, FinishReason: finishReason}
				return
			}
			if err != nil {
				events <- types.StreamEvent{
					Type: types.EventError,
					Err:  p.wrapError("read stream failed", err),
				}
				return
			}

			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			if choice.Delta.Content != "" {
				events <- types.StreamEvent{
					Type:    types.EventContentDelta,
					Content: choice.Delta.Content,
				}
			}

			for _, tc := range choice.Delta.ToolCalls {
				delta := &types.ToolCallDelta{
					ID:                tc.ID,
					Name:              tc.Function.Name,
					ArgumentsFragment: tc.Function.Arguments,
				}
				if tc.Index != nil {
					delta.Index = *tc.Index
				}
				events <- types.StreamEvent{
					Type:     types.EventToolCallDelta,
					ToolCall: delta,
				}
			}

			switch choice.FinishReason {
			case openai.FinishReasonToolCalls:
				finishReason = types.FinishReasonToolCalls
			case openai.FinishReasonLength:
				finishReason = types.FinishReasonLength
			case openai.FinishReasonStop:
				finishReason = types.FinishReasonStop
			}
		}
	}()

	return events, nil
}

func (p *Provider) buildRequest(req *types.ChatRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, msg := range req.Messages {
		om := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		}
		for _, tc := range msg.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		messages = append(messages, om)
	}

	oreq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}

	for _, t := range req.Tools {
		oreq.Tools = append(oreq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	if req.Temperature != nil {
		oreq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		oreq.MaxTokens = *req.MaxTokens
	}

	return oreq
}

func (p *Provider) wrapError(message string, err error) *types.ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr := types.NewStatusError(p.Name(), apiErr.HTTPStatusCode, apiErr.Message)
		perr.Err = err
		return perr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		perr := types.NewStatusError(p.Name(), reqErr.HTTPStatusCode, reqErr.Error())
		perr.Err = err
		return perr
	}

	return types.NewTransportError(p.Name(), message, err)
}
