package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/prepline/attempt-service/internal/models"
)

// AttemptRepository handles attempt rows. State transitions are conditional
// updates so concurrent submits race safely at the database.
type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Attempt, error)

	// GetByIDWithAnswers preloads the attempt's answers.
	GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id string) (*models.Attempt, error)

	// GetActiveAttempt returns the student's IN_PROGRESS attempt for a test,
	// or a not-found error.
	GetActiveAttempt(ctx context.Context, tx *gorm.DB, testID, studentID string) (*models.Attempt, error)

	// MarkSubmitted flips IN_PROGRESS to SUBMITTED. It reports whether this
	// call performed the transition; false means another writer got there
	// first (or the attempt was already submitted).
	MarkSubmitted(ctx context.Context, tx *gorm.DB, id string, submittedAt time.Time) (bool, error)

	// TouchLastSeen stamps activity without touching any other column.
	TouchLastSeen(ctx context.Context, tx *gorm.DB, id string, at time.Time) error

	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.Attempt, int64, error)
	GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters AttemptFilters) ([]*models.Attempt, int64, error)
}

// AnswerRepository handles per-question working state.
type AnswerRepository interface {
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID string) (*models.AttemptAnswer, error)

	// Upsert inserts or replaces the (attempt, question) row in one
	// statement; the caller merges fields before handing the row over.
	Upsert(ctx context.Context, tx *gorm.DB, answer *models.AttemptAnswer) error

	ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID string) ([]*models.AttemptAnswer, error)
}

// ResultRepository handles the scoring projection.
type ResultRepository interface {
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID string) (*models.AttemptResult, error)

	// Upsert writes the result keyed by attempt_id; replays overwrite with
	// identical values, so the operation is idempotent.
	Upsert(ctx context.Context, tx *gorm.DB, result *models.AttemptResult) error
}
