package stream

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	providertypes "github.com/parley-ai/parley/internal/ai/provider/types"
	"github.com/parley-ai/parley/internal/chat/types"
)

// Outcome is the finalized result of one provider stream
type Outcome struct {
	Message      types.Message
	FinishReason string
	Truncated    bool
	Err          error
}

type callAccum struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// Aggregator folds provider stream events into a complete assistant
// message while re-emitting them as turn events in arrival order.
type Aggregator struct {
	model   string
	content strings.Builder
	calls   map[int]*callAccum
}

// New creates an Aggregator. The model name is stamped onto the
// finalized message.
func New(model string) *Aggregator {
	return &Aggregator{
		model: model,
		calls: make(map[int]*callAccum),
	}
}

// Consume drains the provider stream, forwarding each delta through
// emit, and finalizes on done, error, or context cancellation. A
// mid-stream failure still yields a well-formed message holding
// whatever content arrived, marked truncated.
func (a *Aggregator) Consume(ctx context.Context, events <-chan providertypes.StreamEvent, emit func(types.TurnEvent)) Outcome {
	for {
		select {
		case <-ctx.Done():
			return a.finalize("", true, ctx.Err())
		case ev, ok := <-events:
			if !ok {
				// provider closed without a done event
				return a.finalize("", true, nil)
			}

			switch ev.Type {
			case providertypes.EventContentDelta:
				a.content.WriteString(ev.Content)
				emit(types.TurnEvent{Type: types.TurnEventContentDelta, Content: ev.Content})

			case providertypes.EventToolCallDelta:
				a.feedToolCall(ev.ToolCall)
				emit(types.TurnEvent{
					Type: types.TurnEventToolCallDelta,
					ToolCall: &types.ToolCall{
						Index:     ev.ToolCall.Index,
						ID:        ev.ToolCall.ID,
						Name:      ev.ToolCall.Name,
						Arguments: json.RawMessage(ev.ToolCall.ArgumentsFragment),
					},
				})

			case providertypes.EventDone:
				return a.finalize(ev.FinishReason, false, nil)

			case providertypes.EventError:
				return a.finalize("", true, ev.Err)
			}
		}
	}
}

func (a *Aggregator) feedToolCall(delta *providertypes.ToolCallDelta) {
	if delta == nil {
		return
	}
	acc, ok := a.calls[delta.Index]
	if !ok {
		acc = &callAccum{index: delta.Index}
		a.calls[delta.Index] = acc
	}
	if delta.ID != "" {
		acc.id = delta.ID
	}
	if delta.Name != "" {
		acc.name = delta.Name
	}
	acc.args.WriteString(delta.ArgumentsFragment)
}

func (a *Aggregator) finalize(finishReason string, truncated bool, err error) Outcome {
	indexes := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	toolCalls := make([]types.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		acc := a.calls[idx]
		id := acc.id
		if id == "" {
			id = uuid.NewString()
		}
		args := acc.args.String()
		if args == "" {
			args = "{}"
		}
		toolCalls = append(toolCalls, types.ToolCall{
			ID:        id,
			Index:     acc.index,
			Name:      acc.name,
			Arguments: json.RawMessage(args),
		})
	}

	if truncated && finishReason == "" {
		finishReason = providertypes.FinishReasonStop
	}

	msg := types.Message{
		ID:        uuid.NewString(),
		Role:      types.RoleAssistant,
		Content:   a.content.String(),
		Truncated: truncated,
		Model:     a.model,
		CreatedAt: time.Now(),
	}
	if len(toolCalls) > 0 {
		msg.ToolCalls = toolCalls
	}

	return Outcome{
		Message:      msg,
		FinishReason: finishReason,
		Truncated:    truncated,
		Err:          err,
	}
}
