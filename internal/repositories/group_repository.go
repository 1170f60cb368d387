package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/prepline/attempt-service/internal/models"
)

// GroupRepository handles study groups, membership, invites, assignments and
// the leaderboard join.
type GroupRepository interface {
	Create(ctx context.Context, tx *gorm.DB, group *models.Group) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Group, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID string, filters GroupFilters) ([]*models.Group, int64, error)

	// Membership
	IsMember(ctx context.Context, tx *gorm.DB, groupID, userID string) (bool, error)
	GetMemberRole(ctx context.Context, tx *gorm.DB, groupID, userID string) (models.GroupRole, error)

	// AddMember is an idempotent upsert on (group, user); re-joining keeps
	// the existing role.
	AddMember(ctx context.Context, tx *gorm.DB, member *models.GroupMember) error
	ListMembers(ctx context.Context, tx *gorm.DB, groupID string) ([]*models.GroupMember, error)

	// Invites
	CreateInvite(ctx context.Context, tx *gorm.DB, invite *models.GroupInvite) error
	GetInviteByCode(ctx context.Context, tx *gorm.DB, code string) (*models.GroupInvite, error)

	// IncrementInviteUses bumps uses_count only while it is below max_uses
	// and reports whether a use was taken, so concurrent redemptions cannot
	// push a capped invite past its limit.
	IncrementInviteUses(ctx context.Context, tx *gorm.DB, inviteID string) (bool, error)

	// Test assignments
	UpsertAssignment(ctx context.Context, tx *gorm.DB, assignment *models.GroupTestAssignment) error
	IsTestAssigned(ctx context.Context, tx *gorm.DB, groupID, testID string) (bool, error)

	// IsTestAssignedToUserGroups reports whether any group the user belongs
	// to carries the assignment (GROUP_ONLY visibility check).
	IsTestAssignedToUserGroups(ctx context.Context, tx *gorm.DB, testID, userID string) (bool, error)
	ListAssignments(ctx context.Context, tx *gorm.DB, groupID string) ([]*models.GroupTestAssignment, error)

	// Leaderboard joins current members' SUBMITTED attempts to their results
	// for one test, ordered score desc, submitted_at asc, then attempt id as
	// the final tiebreak, capped at limit. Attempts without a result row are
	// excluded by the join.
	Leaderboard(ctx context.Context, tx *gorm.DB, groupID, testID string, limit int) ([]*LeaderboardRow, error)
}
