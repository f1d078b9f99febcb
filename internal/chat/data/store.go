package data

import (
	"context"

	"github.com/parley-ai/parley/internal/chat/types"
)

// ConversationStore persists conversation records. Implementations
// treat the record as opaque; history shaping happens above this layer.
type ConversationStore interface {
	// Load returns the conversation and whether it exists
	Load(ctx context.Context, id string) (*types.Conversation, bool, error)
	Save(ctx context.Context, conv *types.Conversation) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}
