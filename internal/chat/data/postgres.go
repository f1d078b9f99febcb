package data

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/parley-ai/parley/internal/chat/types"
)

// PostgresStore persists conversations in a single table with the
// message history in a JSONB column.
type PostgresStore struct {
	db *gorm.DB
}

// NewPostgresStore creates a PostgresStore and migrates its table
func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&types.Conversation{}); err != nil {
		return nil, fmt.Errorf("migrate conversations: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Load(ctx context.Context, id string) (*types.Conversation, bool, error) {
	var conv types.Conversation
	err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load conversation %s: %w", id, err)
	}
	return &conv, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, conv *types.Conversation) error {
	if err := s.db.WithContext(ctx).Save(conv).Error; err != nil {
		return fmt.Errorf("save conversation %s: %w", conv.ID, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&types.Conversation{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&types.Conversation{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return ids, nil
}
