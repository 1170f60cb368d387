package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepline/attempt-service/internal/models"
	"github.com/prepline/attempt-service/internal/repositories"
)

type ResultPostgreSQL struct {
	db *gorm.DB
}

func NewResultPostgreSQL(db *gorm.DB) repositories.ResultRepository {
	return &ResultPostgreSQL{db: db}
}

func (r *ResultPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID string) (*models.AttemptResult, error) {
	db := r.getDB(tx)
	var result models.AttemptResult
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *ResultPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, result *models.AttemptResult) error {
	db := r.getDB(tx)
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attempt_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"score", "max_score", "correct_count", "wrong_count",
				"unattempted_count", "accuracy", "total_time_ms",
				"subject_breakup", "updated_at",
			}),
		}).
		Create(result).Error
	if err != nil {
		return fmt.Errorf("failed to upsert result: %w", err)
	}
	return nil
}

func (r *ResultPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}
