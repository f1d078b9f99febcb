package types

import (
	"encoding/json"
	"errors"
	"time"
)

// Role is the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Conversation is the durable chat record. Messages are append-only
// during a turn; clearing empties them but keeps the metadata.
type Conversation struct {
	ID           string    `json:"id" gorm:"primaryKey;size:128"`
	Messages     []Message `json:"messages" gorm:"serializer:json;type:jsonb"`
	SystemPrompt string    `json:"system_prompt" gorm:"type:text"`
	Model        string    `json:"model" gorm:"size:128"`
	Mode         string    `json:"mode" gorm:"size:64"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is one history entry. ToolCalls only appear on assistant
// messages; ToolCallID only on tool messages.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"` // tool name on tool messages
	Truncated  bool       `json:"truncated,omitempty"`
	Model      string     `json:"model,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ToolCall is a model-requested tool invocation
type ToolCall struct {
	ID        string          `json:"id"`
	Index     int             `json:"index"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of one executed tool call
type ToolResult struct {
	CallID  string        `json:"call_id"`
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Output  string        `json:"output,omitempty"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
}

// TurnEvent types streamed to the caller during a turn
const (
	TurnEventContentDelta  = "content_delta"
	TurnEventToolCallDelta = "tool_call_delta"
	TurnEventToolResult    = "tool_result"
	TurnEventFinal         = "final"
	TurnEventError         = "error"
)

// Turn statuses carried on the final event
const (
	TurnStatusCompleted = "completed"
	TurnStatusTruncated = "truncated"
	TurnStatusAborted   = "aborted"
)

// TurnEvent is one element of the event stream a turn produces. The
// final event carries the complete assistant message and the turn
// status; the error event ends the stream.
type TurnEvent struct {
	Type       string      `json:"type"`
	Content    string      `json:"content,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
	Message    *Message    `json:"message,omitempty"`
	Status     string      `json:"status,omitempty"`
	Warning    string      `json:"warning,omitempty"`
	Err        error       `json:"-"`
}

// TurnOptions are per-turn overrides applied before the config snapshot
type TurnOptions struct {
	Model        string
	SystemPrompt string
	Mode         string
}

// Sentinel errors surfaced by the conversation manager
var (
	ErrConversationBusy = errors.New("conversation busy")
	ErrUnknownModel     = errors.New("unknown model")
	ErrUnknownMode      = errors.New("unknown mode")
	ErrEmptyMessage     = errors.New("message is empty")
)
