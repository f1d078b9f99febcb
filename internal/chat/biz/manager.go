package biz

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/parley-ai/parley/internal/ai/provider/registry"
	"github.com/parley-ai/parley/internal/chat/data"
	"github.com/parley-ai/parley/internal/chat/dispatch"
	"github.com/parley-ai/parley/internal/chat/types"
	"github.com/parley-ai/parley/internal/mode"
	"github.com/parley-ai/parley/internal/pkg/workerpool"
	"github.com/parley-ai/parley/internal/tool"
)

// Config tunes the manager
type Config struct {
	DefaultModel       string        `mapstructure:"default_model"`
	HistoryTokenBudget int           `mapstructure:"history_token_budget"`
	SaveTimeout        time.Duration `mapstructure:"save_timeout"`
	Loop               dispatch.Config
}

func (c *Config) normalize() {
	if c.HistoryTokenBudget <= 0 {
		c.HistoryTokenBudget = 8192
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = 5 * time.Second
	}
}

// TokenCounter measures text so history can be budgeted per model
type TokenCounter func(model, text string) int

// TiktokenCounter counts with the model's tiktoken encoding, falling
// back to cl100k_base for models tiktoken does not know.
func TiktokenCounter(model, text string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			// crude fallback when no encoding is available at all
			return len(strings.Fields(text))
		}
	}
	return len(enc.Encode(text, nil, nil))
}

// Manager owns conversation state and runs turns. In-memory state is
// authoritative; the store is written through on every change.
type Manager struct {
	providers *registry.Registry
	tools     *tool.Registry
	modes     *mode.Registry
	store     data.ConversationStore
	pool      *workerpool.Pool
	counter   TokenCounter
	cfg       Config
	logger    *zap.Logger

	mu    sync.Mutex
	busy  map[string]bool
	cache map[string]*types.Conversation
}

// NewManager wires a Manager
func NewManager(providers *registry.Registry, tools *tool.Registry, modes *mode.Registry, store data.ConversationStore, pool *workerpool.Pool, counter TokenCounter, cfg Config, logger *zap.Logger) *Manager {
	cfg.normalize()
	if counter == nil {
		counter = TiktokenCounter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		providers: providers,
		tools:     tools,
		modes:     modes,
		store:     store,
		pool:      pool,
		counter:   counter,
		cfg:       cfg,
		logger:    logger,
		busy:      make(map[string]bool),
		cache:     make(map[string]*types.Conversation),
	}
}

// snapshot is the per-turn configuration frozen at StartTurn
type snapshot struct {
	model        string
	systemPrompt string
	modeName     string
	enabledTools []string
}

// StartTurn appends the user message and runs the dispatch loop,
// streaming TurnEvents until the final event. One turn per
// conversation at a time; config changes made after the snapshot apply
// to the next turn.
func (m *Manager) StartTurn(ctx context.Context, conversationID, userMessage string, opts types.TurnOptions) (<-chan types.TurnEvent, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, types.ErrEmptyMessage
	}

	m.mu.Lock()
	if m.busy[conversationID] {
		m.mu.Unlock()
		return nil, types.ErrConversationBusy
	}

	conv, err := m.loadLocked(ctx, conversationID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	snap, err := m.snapshotLocked(conv, opts)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}

	m.busy[conversationID] = true
	history := make([]types.Message, len(conv.Messages))
	copy(history, conv.Messages)
	m.mu.Unlock()

	events := make(chan types.TurnEvent, 64)
	go m.runTurn(ctx, conv, history, userMessage, snap, events)
	return events, nil
}

func (m *Manager) snapshotLocked(conv *types.Conversation, opts types.TurnOptions) (snapshot, error) {
	snap := snapshot{
		model:        firstNonEmpty(opts.Model, conv.Model, m.cfg.DefaultModel),
		modeName:     firstNonEmpty(opts.Mode, conv.Mode, mode.DefaultMode),
		systemPrompt: firstNonEmpty(opts.SystemPrompt, conv.SystemPrompt),
	}

	if !m.providers.Knows(snap.model) {
		return snapshot{}, types.ErrUnknownModel
	}
	if !m.modes.Knows(snap.modeName) {
		return snapshot{}, types.ErrUnknownMode
	}
	if snap.systemPrompt == "" {
		snap.systemPrompt = m.modes.Prompt(snap.modeName)
	}

	for _, name := range m.tools.List() {
		if m.modes.Enabled(snap.modeName, name) {
			snap.enabledTools = append(snap.enabledTools, name)
		}
	}
	return snap, nil
}

func (m *Manager) runTurn(ctx context.Context, conv *types.Conversation, baseHistory []types.Message, userMessage string, snap snapshot, events chan<- types.TurnEvent) {
	defer close(events)
	defer func() {
		m.mu.Lock()
		delete(m.busy, conv.ID)
		m.mu.Unlock()
	}()

	emit := func(ev types.TurnEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	userMsg := types.Message{
		ID:        uuid.NewString(),
		Role:      types.RoleUser,
		Content:   userMessage,
		CreatedAt: time.Now(),
	}

	history := m.budgetHistory(snap.model, baseHistory)
	history = append(history, userMsg)

	provider, err := m.providers.Resolve(snap.model)
	if err != nil {
		emit(types.TurnEvent{Type: types.TurnEventError, Err: err})
		return
	}

	loop := dispatch.New(provider, m.tools, m.pool, m.cfg.Loop, m.logger)
	result := loop.Run(ctx, dispatch.Request{
		Model:        snap.model,
		SystemPrompt: snap.systemPrompt,
		Messages:     history,
		EnabledTools: snap.enabledTools,
	}, emit)

	m.mu.Lock()
	conv.Messages = append(conv.Messages, userMsg)
	conv.Messages = append(conv.Messages, result.Messages...)
	conv.Model = snap.model
	conv.Mode = snap.modeName
	conv.UpdatedAt = time.Now()
	m.cache[conv.ID] = conv
	m.mu.Unlock()

	warning := ""
	if err := m.save(conv); err != nil {
		m.logger.Warn("conversation save failed, in-memory state kept",
			zap.String("conversation_id", conv.ID), zap.Error(err))
		warning = "history persistence failed; the conversation lives in memory only"
	}

	// the loop may close a truncated turn with synthetic tool messages;
	// the final event always carries the last assistant message
	final := result.Messages[len(result.Messages)-1]
	for i := len(result.Messages) - 1; i >= 0; i-- {
		if result.Messages[i].Role == types.RoleAssistant {
			final = result.Messages[i]
			break
		}
	}
	emit(types.TurnEvent{
		Type:    types.TurnEventFinal,
		Message: &final,
		Status:  result.Status,
		Warning: warning,
	})

	m.logger.Info("turn finished",
		zap.String("conversation_id", conv.ID),
		zap.String("model", snap.model),
		zap.String("mode", snap.modeName),
		zap.String("status", result.Status),
		zap.Int("new_messages", len(result.Messages)+1))
}

// save persists with its own deadline so a slow store cannot hold the
// turn open
func (m *Manager) save(conv *types.Conversation) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SaveTimeout)
	defer cancel()

	m.mu.Lock()
	snapshot := *conv
	snapshot.Messages = make([]types.Message, len(conv.Messages))
	copy(snapshot.Messages, conv.Messages)
	m.mu.Unlock()

	return m.store.Save(ctx, &snapshot)
}

// budgetHistory trims the oldest messages until the history fits the
// token budget. The newest messages always survive, and a trimmed
// history never starts with an orphaned tool result.
func (m *Manager) budgetHistory(model string, messages []types.Message) []types.Message {
	budget := m.cfg.HistoryTokenBudget

	total := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := m.counter(model, messages[i].Content) + 4
		if total+cost > budget && start < len(messages) {
			break
		}
		total += cost
		start = i
	}

	for start < len(messages) && messages[start].Role == types.RoleTool {
		start++
	}

	if start == 0 {
		return append([]types.Message(nil), messages...)
	}
	m.logger.Debug("history trimmed",
		zap.String("model", model),
		zap.Int("dropped", start),
		zap.Int("kept", len(messages)-start))
	return append([]types.Message(nil), messages[start:]...)
}

// loadLocked fetches a conversation, creating it on first sight.
// Callers hold m.mu.
func (m *Manager) loadLocked(ctx context.Context, id string) (*types.Conversation, error) {
	if conv, ok := m.cache[id]; ok {
		return conv, nil
	}

	conv, ok, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		now := time.Now()
		conv = &types.Conversation{
			ID:        id,
			Mode:      mode.DefaultMode,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	m.cache[id] = conv
	return conv, nil
}

// GetHistory returns the messages of a conversation, creating it
// implicitly for unseen IDs.
func (m *Manager) GetHistory(ctx context.Context, id string) ([]types.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]types.Message, len(conv.Messages))
	copy(out, conv.Messages)
	return out, nil
}

// GetConversation returns a copy of the conversation record
func (m *Manager) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, err := m.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	out := *conv
	out.Messages = make([]types.Message, len(conv.Messages))
	copy(out.Messages, conv.Messages)
	return &out, nil
}

// ClearHistory empties the message history but keeps the conversation
// metadata. Clearing an unseen or already-empty conversation is a
// no-op.
func (m *Manager) ClearHistory(ctx context.Context, id string) error {
	m.mu.Lock()
	conv, err := m.loadLocked(ctx, id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	conv.Messages = nil
	conv.UpdatedAt = time.Now()
	m.mu.Unlock()

	if err := m.save(conv); err != nil {
		m.logger.Warn("clear persistence failed", zap.String("conversation_id", id), zap.Error(err))
	}
	return nil
}

// SetSystemPrompt overrides the system prompt; takes effect next turn
func (m *Manager) SetSystemPrompt(ctx context.Context, id, prompt string) error {
	return m.mutate(ctx, id, func(conv *types.Conversation) error {
		conv.SystemPrompt = prompt
		return nil
	})
}

// SetMode switches the conversation mode; takes effect next turn
func (m *Manager) SetMode(ctx context.Context, id, modeName string) error {
	if !m.modes.Knows(modeName) {
		return types.ErrUnknownMode
	}
	return m.mutate(ctx, id, func(conv *types.Conversation) error {
		conv.Mode = strings.ToLower(modeName)
		return nil
	})
}

// SetModel switches the conversation model; takes effect next turn
func (m *Manager) SetModel(ctx context.Context, id, model string) error {
	if !m.providers.Knows(model) {
		return types.ErrUnknownModel
	}
	return m.mutate(ctx, id, func(conv *types.Conversation) error {
		conv.Model = model
		return nil
	})
}

func (m *Manager) mutate(ctx context.Context, id string, fn func(*types.Conversation) error) error {
	m.mu.Lock()
	conv, err := m.loadLocked(ctx, id)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if err := fn(conv); err != nil {
		m.mu.Unlock()
		return err
	}
	conv.UpdatedAt = time.Now()
	m.mu.Unlock()

	if err := m.save(conv); err != nil {
		m.logger.Warn("metadata persistence failed", zap.String("conversation_id", id), zap.Error(err))
	}
	return nil
}

// ListConversations returns the known conversation IDs, merging the
// store with anything only seen in memory.
func (m *Manager) ListConversations(ctx context.Context) ([]string, error) {
	ids, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}

	m.mu.Lock()
	for id := range m.cache {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	return ids, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
