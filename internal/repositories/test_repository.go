package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/prepline/attempt-service/internal/models"
)

// TestRepository is the read-only port into the catalog. The attempt service
// grades against tests but never authors them; writes happen upstream.
type TestRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error)

	// GetByIDWithQuestions preloads sections and test questions (with their
	// questions) ordered by sort_order.
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error)
}
