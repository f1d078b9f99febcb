package types

// EventType enumerates the closed set of normalized stream events
type EventType string

const (
	EventContentDelta  EventType = "content_delta"
	EventToolCallDelta EventType = "tool_call_delta"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// Finish reasons reported on the done event
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
	FinishReasonLength    = "length"
)

// StreamEvent is one normalized incremental event from a provider stream
type StreamEvent struct {
	Type EventType `json:"type"`

	// Content fragment (type == content_delta)
	Content string `json:"content,omitempty"`

	// Partial tool call (type == tool_call_delta)
	ToolCall *ToolCallDelta `json:"tool_call,omitempty"`

	// Finish reason (type == done)
	FinishReason string `json:"finish_reason,omitempty"`

	// Error (type == error); the stream ends after this event
	Err error `json:"-"`
}

// ToolCallDelta is a fragment of an in-progress tool call. The first
// fragment for an index carries ID and Name; subsequent fragments append
// to the argument payload.
type ToolCallDelta struct {
	Index             int    `json:"index"`
	ID                string `json:"id,omitempty"`
	Name              string `json:"name,omitempty"`
	ArgumentsFragment string `json:"arguments_fragment,omitempty"`
}
