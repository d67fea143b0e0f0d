package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/Egham-7/medchat/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *Service) CreateDocument(ctx context.Context, userID, title, content string) (*models.Document, error) {
	doc := &models.Document{
		ID:      uuid.NewString(),
		UserID:  userID,
		Title:   title,
		Content: content,
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return doc, nil
}

func (s *Service) GetDocument(ctx context.Context, userID, id string) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	return &doc, nil
}

// UpdateDocument replaces the content of a document owned by userID
func (s *Service) UpdateDocument(ctx context.Context, userID, id, content string) (*models.Document, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("content", content)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrDocumentNotFound
	}
	return s.GetDocument(ctx, userID, id)
}
