package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/prepline/attempt-service/internal/cache"
	"github.com/prepline/attempt-service/internal/models"
	"github.com/prepline/attempt-service/internal/repositories"
)

type TestPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewTestPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.TestRepository {
	return &TestPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (t *TestPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error) {
	db := t.getDB(tx)
	var test models.Test
	if err := db.WithContext(ctx).First(&test, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &test, nil
}

func (t *TestPostgreSQL) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error) {
	db := t.getDB(tx)

	// Full paper with keys; cached briefly since published papers rarely
	// change mid-window.
	cacheKey := fmt.Sprintf("paper:%s", id)
	var test models.Test

	err := t.cacheManager.Test.CacheOrExecute(ctx, cacheKey, &test, cache.TestCacheConfig.TTL, func() (interface{}, error) {
		var dbTest models.Test
		if err := db.WithContext(ctx).
			Preload("Sections", func(db *gorm.DB) *gorm.DB {
				return db.Order("sections.sort_order ASC")
			}).
			Preload("TestQuestions", func(db *gorm.DB) *gorm.DB {
				return db.Order("test_questions.sort_order ASC")
			}).
			Preload("TestQuestions.Question").
			First(&dbTest, "id = ?", id).Error; err != nil {
			return nil, err
		}
		return &dbTest, nil
	})
	if err != nil {
		return nil, err
	}
	return &test, nil
}

func (t *TestPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return t.db
}
