package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepline/attempt-service/internal/models"
	"github.com/prepline/attempt-service/internal/repositories"
)

type AnswerPostgreSQL struct {
	db *gorm.DB
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{db: db}
}

func (r *AnswerPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID string) (*models.AttemptAnswer, error) {
	db := r.getDB(tx)
	var answer models.AttemptAnswer
	if err := db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

func (r *AnswerPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, answer *models.AttemptAnswer) error {
	db := r.getDB(tx)
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"response", "visited", "is_marked", "time_spent_ms", "updated_at",
			}),
		}).
		Create(answer).Error
	if err != nil {
		return fmt.Errorf("failed to upsert answer: %w", err)
	}
	return nil
}

func (r *AnswerPostgreSQL) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID string) ([]*models.AttemptAnswer, error) {
	db := r.getDB(tx)
	var answers []*models.AttemptAnswer
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	return answers, nil
}

func (r *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}
