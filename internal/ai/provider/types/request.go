package types

import "encoding/json"

// Message roles shared by all adapters
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatRequest is the normalized chat request submitted to an adapter
type ChatRequest struct {
	Model        string           `json:"model"`
	SystemPrompt string           `json:"system,omitempty"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Temperature  *float64         `json:"temperature,omitempty"`
	MaxTokens    *int             `json:"max_tokens,omitempty"`
}

// Message is one entry of the conversation sent to the backend
type Message struct {
	Role    string `json:"role"` // system | user | assistant | tool
	Content string `json:"content,omitempty"`

	// ToolCalls is set on assistant messages that requested tools
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool-role message to the call it answers
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on tool-role messages
	Name string `json:"name,omitempty"`
}

// ToolCall is a fully assembled tool invocation request
type ToolCall struct {
	ID        string          `json:"id"`
	Index     int             `json:"index"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition describes one callable tool to the backend
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON schema
}
