package types

import "context"

// Provider adapts one model backend to the engine's normalized
// request/stream vocabulary. Everything past this boundary speaks
// StreamEvent; no backend-specific shapes leak through.
type Provider interface {
	// Name returns the provider name
	Name() string

	// ChatStream submits a conversation and streams normalized events.
	// The returned channel is closed after the done or error event.
	ChatStream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)

	// ValidateConfig verifies the adapter configuration
	ValidateConfig() error
}
