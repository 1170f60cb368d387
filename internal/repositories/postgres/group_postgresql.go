package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prepline/attempt-service/internal/cache"
	"github.com/prepline/attempt-service/internal/models"
	"github.com/prepline/attempt-service/internal/repositories"
)

type GroupPostgreSQL struct {
	db           *gorm.DB
	cacheManager *cache.CacheManager
}

func NewGroupPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.GroupRepository {
	return &GroupPostgreSQL{
		db:           db,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (g *GroupPostgreSQL) Create(ctx context.Context, tx *gorm.DB, group *models.Group) error {
	db := g.getDB(tx)
	return db.WithContext(ctx).Create(group).Error
}

func (g *GroupPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Group, error) {
	db := g.getDB(tx)
	var group models.Group
	if err := db.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (g *GroupPostgreSQL) ListByUser(ctx context.Context, tx *gorm.DB, userID string, filters repositories.GroupFilters) ([]*models.Group, int64, error) {
	db := g.getDB(tx)
	var groups []*models.Group
	var total int64

	query := db.WithContext(ctx).
		Model(&models.Group{}).
		Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.user_id = ?", userID)

	if filters.Name != nil {
		query = query.Where("groups.name ILIKE ?", "%"+*filters.Name+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("groups.created_at DESC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	if err := query.Find(&groups).Error; err != nil {
		return nil, 0, err
	}

	return groups, total, nil
}

// ===== MEMBERSHIP =====

func (g *GroupPostgreSQL) IsMember(ctx context.Context, tx *gorm.DB, groupID, userID string) (bool, error) {
	db := g.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}

func (g *GroupPostgreSQL) GetMemberRole(ctx context.Context, tx *gorm.DB, groupID, userID string) (models.GroupRole, error) {
	db := g.getDB(tx)
	var member models.GroupMember
	if err := db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&member).Error; err != nil {
		return "", err
	}
	return member.Role, nil
}

func (g *GroupPostgreSQL) AddMember(ctx context.Context, tx *gorm.DB, member *models.GroupMember) error {
	db := g.getDB(tx)
	// Re-joins keep the original row (and role) untouched.
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(member).Error
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

func (g *GroupPostgreSQL) ListMembers(ctx context.Context, tx *gorm.DB, groupID string) ([]*models.GroupMember, error) {
	db := g.getDB(tx)
	var members []*models.GroupMember
	if err := db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("joined_at ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return members, nil
}

// ===== INVITES =====

func (g *GroupPostgreSQL) CreateInvite(ctx context.Context, tx *gorm.DB, invite *models.GroupInvite) error {
	db := g.getDB(tx)
	return db.WithContext(ctx).Create(invite).Error
}

func (g *GroupPostgreSQL) GetInviteByCode(ctx context.Context, tx *gorm.DB, code string) (*models.GroupInvite, error) {
	db := g.getDB(tx)
	var invite models.GroupInvite
	if err := db.WithContext(ctx).First(&invite, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &invite, nil
}

// IncrementInviteUses takes a use atomically; the WHERE guard stops racing
// joins from pushing a capped invite past max_uses.
func (g *GroupPostgreSQL) IncrementInviteUses(ctx context.Context, tx *gorm.DB, inviteID string) (bool, error) {
	db := g.getDB(tx)
	res := db.WithContext(ctx).
		Model(&models.GroupInvite{}).
		Where("id = ? AND (max_uses IS NULL OR uses_count < max_uses)", inviteID).
		UpdateColumn("uses_count", gorm.Expr("uses_count + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ===== TEST ASSIGNMENTS =====

func (g *GroupPostgreSQL) UpsertAssignment(ctx context.Context, tx *gorm.DB, assignment *models.GroupTestAssignment) error {
	db := g.getDB(tx)
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_id"}, {Name: "test_id"}},
			DoNothing: true,
		}).
		Create(assignment).Error
	if err != nil {
		return fmt.Errorf("failed to upsert assignment: %w", err)
	}
	return nil
}

// IsTestAssigned caches positive checks only; assignments are add-only, so
// a cached hit can never go stale.
func (g *GroupPostgreSQL) IsTestAssigned(ctx context.Context, tx *gorm.DB, groupID, testID string) (bool, error) {
	cacheKey := fmt.Sprintf("assignment:%s:%s", groupID, testID)
	if hit, err := g.cacheManager.Exists.GetString(ctx, cacheKey); err == nil && hit == "1" {
		return true, nil
	}

	db := g.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.GroupTestAssignment{}).
		Where("group_id = ? AND test_id = ?", groupID, testID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check assignment: %w", err)
	}

	if count > 0 {
		_ = g.cacheManager.Exists.SetString(ctx, cacheKey, "1", cache.ExistsCacheConfig.TTL)
	}
	return count > 0, nil
}

func (g *GroupPostgreSQL) IsTestAssignedToUserGroups(ctx context.Context, tx *gorm.DB, testID, userID string) (bool, error) {
	db := g.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.GroupTestAssignment{}).
		Joins("JOIN group_members ON group_members.group_id = group_test_assignments.group_id").
		Where("group_test_assignments.test_id = ? AND group_members.user_id = ?", testID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check assignment through groups: %w", err)
	}
	return count > 0, nil
}

func (g *GroupPostgreSQL) ListAssignments(ctx context.Context, tx *gorm.DB, groupID string) ([]*models.GroupTestAssignment, error) {
	db := g.getDB(tx)
	var assignments []*models.GroupTestAssignment
	if err := db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Preload("Test").
		Order("created_at DESC").
		Find(&assignments).Error; err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return assignments, nil
}

// ===== LEADERBOARD =====

// Leaderboard keeps ordering in SQL so pagination and the cap stay cheap;
// the INNER JOIN on attempt_results drops submitted attempts that have no
// result row yet.
func (g *GroupPostgreSQL) Leaderboard(ctx context.Context, tx *gorm.DB, groupID, testID string, limit int) ([]*repositories.LeaderboardRow, error) {
	db := g.getDB(tx)
	var rows []*repositories.LeaderboardRow

	err := db.WithContext(ctx).
		Table("attempts").
		Select(`attempts.id AS attempt_id,
			attempts.student_id,
			attempt_results.score,
			attempt_results.max_score,
			attempt_results.accuracy,
			attempts.submitted_at`).
		Joins("JOIN attempt_results ON attempt_results.attempt_id = attempts.id").
		Joins("JOIN group_members ON group_members.user_id = attempts.student_id AND group_members.group_id = ?", groupID).
		Where("attempts.test_id = ? AND attempts.status = ?", testID, models.AttemptSubmitted).
		Order("attempt_results.score DESC, attempts.submitted_at ASC, attempts.id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}

	return rows, nil
}

func (g *GroupPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return g.db
}
