package data

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/internal/chat/types"
)

func sampleConversation(id string) *types.Conversation {
	return &types.Conversation{
		ID:   id,
		Mode: "default",
		Messages: []types.Message{
			{ID: "m1", Role: types.RoleUser, Content: "hello"},
			{ID: "m2", Role: types.RoleAssistant, Content: "hi there"},
		},
		CreatedAt: time.Now().Truncate(time.Second),
		UpdatedAt: time.Now().Truncate(time.Second),
	}
}

func storeRoundTrip(t *testing.T, store ConversationStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	conv := sampleConversation("conv-1")
	require.NoError(t, store.Save(ctx, conv))

	loaded, ok, err := store.Load(ctx, "conv-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, conv.ID, loaded.ID)
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "hi there", loaded.Messages[1].Content)

	require.NoError(t, store.Save(ctx, sampleConversation("conv-2")))
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"conv-1", "conv-2"}, ids)

	require.NoError(t, store.Delete(ctx, "conv-1"))
	_, ok, err = store.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// delete is idempotent
	require.NoError(t, store.Delete(ctx, "conv-1"))
}

func TestMemoryStore(t *testing.T) {
	storeRoundTrip(t, NewMemoryStore())
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	conv := sampleConversation("conv-1")
	require.NoError(t, store.Save(ctx, conv))

	// mutating the caller's copy must not leak into the store
	conv.Messages[0].Content = "mutated"

	loaded, _, err := store.Load(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", loaded.Messages[0].Content)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	storeRoundTrip(t, NewRedisStore(client, 0))
}

func TestRedisStoreTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, time.Minute)

	require.NoError(t, store.Save(context.Background(), sampleConversation("conv-ttl")))

	mr.FastForward(2 * time.Minute)

	_, ok, err := store.Load(context.Background(), "conv-ttl")
	require.NoError(t, err)
	assert.False(t, ok)
}
