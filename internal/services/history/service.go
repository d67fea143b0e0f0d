// Package history persists chats, their messages, user documents and
// medical histories through gorm.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/Egham-7/medchat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrChatNotFound     = errors.New("chat not found")
	ErrChatExists       = errors.New("chat already exists")
	ErrDocumentNotFound = errors.New("document not found")
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetChat returns the chat with id when userID owns it
func (s *Service) GetChat(ctx context.Context, userID, chatID string) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", chatID, userID).
		First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to fetch chat: %w", err)
	}
	return &chat, nil
}

// ChatExists reports whether any user already has a chat with id
func (s *Service) ChatExists(ctx context.Context, chatID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Chat{}).Where("id = ?", chatID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to look up chat: %w", err)
	}
	return count > 0, nil
}

// SaveChat inserts chat. An existing row with the same id is left untouched
// and ErrChatExists is returned.
func (s *Service) SaveChat(ctx context.Context, chat *models.Chat) error {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(chat)
	if result.Error != nil {
		return fmt.Errorf("failed to save chat: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrChatExists
	}
	return nil
}

func (s *Service) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	var chats []models.Chat
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}

// DeleteChat removes a chat owned by userID together with its messages
func (s *Service) DeleteChat(ctx context.Context, userID, chatID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var chat models.Chat
		err := tx.Where("id = ? AND user_id = ?", chatID, userID).First(&chat).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChatNotFound
			}
			return fmt.Errorf("failed to fetch chat: %w", err)
		}

		if err := tx.Where("chat_id = ?", chatID).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete chat messages: %w", err)
		}
		if err := tx.Delete(&chat).Error; err != nil {
			return fmt.Errorf("failed to delete chat: %w", err)
		}
		return nil
	})
}

func (s *Service) SaveMessages(ctx context.Context, messages ...models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&messages).Error; err != nil {
		return fmt.Errorf("failed to save messages: %w", err)
	}
	return nil
}

// GetMessages returns the messages of a chat owned by userID, oldest first
func (s *Service) GetMessages(ctx context.Context, userID, chatID string) ([]models.Message, error) {
	if _, err := s.GetChat(ctx, userID, chatID); err != nil {
		return nil, err
	}

	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}
