package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/prepline/attempt-service/internal/cache"
	"github.com/prepline/attempt-service/internal/models"
	"github.com/prepline/attempt-service/internal/repositories"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).First(&attempt, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id string) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).
		Preload("Answers").
		First(&attempt, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, tx *gorm.DB, testID, studentID string) (*models.Attempt, error) {
	db := a.getDB(tx)
	var attempt models.Attempt
	if err := db.WithContext(ctx).
		Where("test_id = ? AND student_id = ? AND status = ?", testID, studentID, models.AttemptInProgress).
		First(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// MarkSubmitted relies on the status guard in the WHERE clause; under
// concurrent submits exactly one update reports RowsAffected == 1.
func (a *AttemptPostgreSQL) MarkSubmitted(ctx context.Context, tx *gorm.DB, id string, submittedAt time.Time) (bool, error) {
	db := a.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND status = ?", id, models.AttemptInProgress).
		Updates(map[string]interface{}{
			"status":       models.AttemptSubmitted,
			"submitted_at": submittedAt,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark attempt submitted: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		a.invalidateAfterSubmit(ctx, db, id)
	}
	return result.RowsAffected > 0, nil
}

func (a *AttemptPostgreSQL) TouchLastSeen(ctx context.Context, tx *gorm.DB, id string, at time.Time) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ?", id).
		Update("last_seen_at", at).Error
}

func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.Attempt
	var total int64

	// apply filter first
	query := db.WithContext(ctx).Model(&models.Attempt{})
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Test").Preload("Result").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	filters.StudentID = &studentID
	return a.List(ctx, tx, filters)
}

func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// invalidateAfterSubmit drops the attempt's cached reads and the
// leaderboards the new submission feeds into.
func (a *AttemptPostgreSQL) invalidateAfterSubmit(ctx context.Context, db *gorm.DB, attemptID string) {
	cache.InvalidateAttemptCache(ctx, a.cacheManager, attemptID)

	var testID string
	if err := db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ?", attemptID).
		Pluck("test_id", &testID).Error; err != nil || testID == "" {
		return
	}
	cache.InvalidateLeaderboardCache(ctx, a.cacheManager, testID)
}
