package repositories

import (
	"context"

	"github.com/prepline/attempt-service/internal/models"
)

// UserRepository is the read-only identity port. User data lives with the
// identity provider; this service only resolves ids to profiles for the
// auth middleware and for member and leaderboard name display.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
}
