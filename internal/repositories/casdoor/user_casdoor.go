package casdoor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/redis/go-redis/v9"

	"github.com/prepline/attempt-service/internal/models"
	"github.com/prepline/attempt-service/internal/repositories"
)

// CasdoorConfig holds the connection settings for the identity provider.
type CasdoorConfig struct {
	Endpoint         string
	ClientID         string
	ClientSecret     string
	Certificate      string
	OrganizationName string
	ApplicationName  string
}

// UserCasdoor resolves user ids against Casdoor with a redis read-through
// cache. It backs the auth middleware and name resolution for member and
// leaderboard listings, so lookups are hot and profiles change rarely.
type UserCasdoor struct {
	client *casdoorsdk.Client
	redis  *redis.Client

	cachePrefix string
	cacheTTL    time.Duration
}

func NewUserCasdoor(config CasdoorConfig, redisClient *redis.Client) repositories.UserRepository {
	client := casdoorsdk.NewClient(
		config.Endpoint,
		config.ClientID,
		config.ClientSecret,
		config.Certificate,
		config.OrganizationName,
		config.ApplicationName,
	)

	return &UserCasdoor{
		client:      client,
		redis:       redisClient,
		cachePrefix: "user:",
		cacheTTL:    15 * time.Minute,
	}
}

// GetByID resolves one user, serving from cache when possible.
func (u *UserCasdoor) GetByID(ctx context.Context, id string) (*models.User, error) {
	cacheKey := fmt.Sprintf("id:%s", id)
	if cached, err := u.getUserFromCache(ctx, cacheKey); err == nil && cached != nil {
		return cached, nil
	}

	casdoorUser, err := u.client.GetUserByUserId(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user from Casdoor: %w", err)
	}
	if casdoorUser == nil {
		return nil, fmt.Errorf("user not found with ID %s", id)
	}

	user := u.toModel(casdoorUser)
	u.setUserCache(ctx, cacheKey, user)

	return user, nil
}

// GetByIDs resolves a batch of ids. Individual misses are skipped rather
// than failing the batch; callers treat names as cosmetic.
func (u *UserCasdoor) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	users := make([]*models.User, 0, len(ids))

	for _, id := range ids {
		user, err := u.GetByID(ctx, id)
		if err != nil {
			continue
		}
		users = append(users, user)
	}

	return users, nil
}

// ===== CACHE =====

func (u *UserCasdoor) cacheKeyFor(key string) string {
	return u.cachePrefix + key
}

func (u *UserCasdoor) getUserFromCache(ctx context.Context, key string) (*models.User, error) {
	if u.redis == nil {
		return nil, nil
	}

	data, err := u.redis.Get(ctx, u.cacheKeyFor(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	var user models.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached user: %w", err)
	}

	return &user, nil
}

func (u *UserCasdoor) setUserCache(ctx context.Context, key string, user *models.User) {
	if u.redis == nil || user == nil {
		return
	}

	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	u.redis.Set(ctx, u.cacheKeyFor(key), data, u.cacheTTL)
}

// ===== CONVERSION =====

func (u *UserCasdoor) toModel(casdoorUser *casdoorsdk.User) *models.User {
	if casdoorUser == nil {
		return nil
	}

	var createdAt, updatedAt time.Time
	if casdoorUser.CreatedTime != "" {
		createdAt, _ = time.Parse(time.RFC3339, casdoorUser.CreatedTime)
	}
	if casdoorUser.UpdatedTime != "" {
		updatedAt, _ = time.Parse(time.RFC3339, casdoorUser.UpdatedTime)
	}

	return &models.User{
		ID:            casdoorUser.Id,
		FullName:      casdoorUser.DisplayName,
		Email:         casdoorUser.Email,
		Role:          u.primaryRole(casdoorUser),
		AvatarURL:     &casdoorUser.Avatar,
		EmailVerified: casdoorUser.EmailVerified,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}
}

// primaryRole collapses the Casdoor role list to one role. Admin wins
// outright; otherwise the first mapped role is primary.
func (u *UserCasdoor) primaryRole(casdoorUser *casdoorsdk.User) models.UserRole {
	var roles []models.UserRole
	seen := make(map[models.UserRole]bool)
	for _, casdoorRole := range casdoorUser.Roles {
		mapped := mapCasdoorRole(casdoorRole.Name)
		if !seen[mapped] {
			roles = append(roles, mapped)
			seen[mapped] = true
		}
	}

	if slices.Contains(roles, models.RoleAdmin) || casdoorUser.IsAdmin {
		return models.RoleAdmin
	}
	if len(roles) == 0 {
		return models.RoleStudent
	}
	return roles[0]
}

func mapCasdoorRole(name string) models.UserRole {
	switch strings.ToLower(name) {
	case "student":
		return models.RoleStudent
	case "teacher", "instructor":
		return models.RoleTeacher
	case "admin", "administrator":
		return models.RoleAdmin
	default:
		return models.RoleStudent
	}
}
