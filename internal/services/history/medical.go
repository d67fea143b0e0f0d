package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/Egham-7/medchat/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetMedicalHistory returns the raw JSON history of userID, or "" when none is on file
func (s *Service) GetMedicalHistory(ctx context.Context, userID string) (string, error) {
	var record models.MedicalHistory
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to fetch medical history: %w", err)
	}
	return record.Data, nil
}

func (s *Service) SaveMedicalHistory(ctx context.Context, userID, data string) error {
	record := &models.MedicalHistory{UserID: userID, Data: data}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to save medical history: %w", err)
	}
	return nil
}
