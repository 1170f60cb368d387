package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/prepline/attempt-service/internal/events"
	"github.com/prepline/attempt-service/internal/models"
	"github.com/prepline/attempt-service/internal/repositories"
	"github.com/prepline/attempt-service/internal/validator"
)

type groupService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
}

func NewGroupService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) GroupService {
	return &groupService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
	}
}

func (s *groupService) Create(ctx context.Context, req *CreateGroupRequest, ownerID string) (*GroupResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	group := &models.Group{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     ownerID,
	}

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		if err := txRepo.Group().Create(ctx, nil, group); err != nil {
			return err
		}
		// The owner is always a member; leaderboards and membership checks
		// should not special-case ownership.
		member := &models.GroupMember{
			GroupID: group.ID,
			UserID:  ownerID,
			Role:    models.GroupRoleOwner,
		}
		return txRepo.Group().AddMember(ctx, nil, member)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	s.logger.Info("Group created", "group_id", group.ID, "owner_id", ownerID)

	return &GroupResponse{
		ID:          group.ID,
		Name:        group.Name,
		Description: group.Description,
		OwnerID:     group.OwnerID,
		MemberCount: 1,
		MyRole:      string(models.GroupRoleOwner),
		CreatedAt:   group.CreatedAt,
	}, nil
}

func (s *groupService) Get(ctx context.Context, groupID, userID string) (*GroupResponse, error) {
	group, err := s.repo.Group().GetByID(ctx, nil, groupID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	role, err := s.repo.Group().GetMemberRole(ctx, nil, groupID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrNotGroupMember
		}
		return nil, fmt.Errorf("failed to get member role: %w", err)
	}

	members, err := s.repo.Group().ListMembers(ctx, nil, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	return &GroupResponse{
		ID:          group.ID,
		Name:        group.Name,
		Description: group.Description,
		OwnerID:     group.OwnerID,
		MemberCount: len(members),
		MyRole:      string(role),
		CreatedAt:   group.CreatedAt,
	}, nil
}

func (s *groupService) ListMine(ctx context.Context, userID string, limit, offset int) (*GroupListResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	groups, total, err := s.repo.Group().ListByUser(ctx, nil, userID, repositories.GroupFilters{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	resp := &GroupListResponse{
		Groups: make([]GroupResponse, 0, len(groups)),
		Total:  total,
	}
	for _, group := range groups {
		resp.Groups = append(resp.Groups, GroupResponse{
			ID:          group.ID,
			Name:        group.Name,
			Description: group.Description,
			OwnerID:     group.OwnerID,
			CreatedAt:   group.CreatedAt,
		})
	}

	return resp, nil
}

func (s *groupService) ListMembers(ctx context.Context, groupID, userID string) ([]GroupMemberResponse, error) {
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}

	members, err := s.repo.Group().ListMembers(ctx, nil, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}

	names := s.resolveNames(ctx, memberIDs(members))

	resp := make([]GroupMemberResponse, 0, len(members))
	for _, member := range members {
		resp = append(resp, GroupMemberResponse{
			UserID:   member.UserID,
			Name:     names[member.UserID],
			Role:     member.Role,
			JoinedAt: member.JoinedAt,
		})
	}

	return resp, nil
}

func (s *groupService) CreateInvite(ctx context.Context, groupID string, req *CreateInviteRequest, userID string) (*InviteResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	if err := s.requireManager(ctx, groupID, userID, "create_invite"); err != nil {
		return nil, err
	}

	code, err := generateInviteCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite code: %w", err)
	}

	invite := &models.GroupInvite{
		GroupID:   groupID,
		Code:      code,
		MaxUses:   req.MaxUses,
		CreatedBy: userID,
	}
	if req.ExpiresInHours != nil {
		expires := time.Now().Add(time.Duration(*req.ExpiresInHours) * time.Hour)
		invite.ExpiresAt = &expires
	}

	if err := s.repo.Group().CreateInvite(ctx, nil, invite); err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	s.logger.Info("Invite created", "group_id", groupID, "created_by", userID)

	return &InviteResponse{
		Code:      invite.Code,
		GroupID:   invite.GroupID,
		ExpiresAt: invite.ExpiresAt,
		MaxUses:   invite.MaxUses,
		UsesCount: invite.UsesCount,
	}, nil
}

func (s *groupService) JoinByCode(ctx context.Context, req *JoinGroupRequest, userID string) (*GroupResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var group *models.Group

	err := s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		invite, err := txRepo.Group().GetInviteByCode(ctx, nil, req.Code)
		if err != nil {
			if repositories.IsNotFoundError(err) {
				return ErrInviteInvalid
			}
			return err
		}

		if !invite.IsUsable(time.Now()) {
			return ErrInviteInvalid
		}

		group, err = txRepo.Group().GetByID(ctx, nil, invite.GroupID)
		if err != nil {
			return err
		}

		already, err := txRepo.Group().IsMember(ctx, nil, invite.GroupID, userID)
		if err != nil {
			return err
		}
		if already {
			// Joining twice is a no-op and does not burn an invite use.
			return nil
		}

		member := &models.GroupMember{
			GroupID: invite.GroupID,
			UserID:  userID,
			Role:    models.GroupRoleMember,
		}
		if err := txRepo.Group().AddMember(ctx, nil, member); err != nil {
			return err
		}

		// The guarded increment loses when a concurrent join takes the last
		// use; rolling back here keeps the membership write out too.
		used, err := txRepo.Group().IncrementInviteUses(ctx, nil, invite.ID)
		if err != nil {
			return err
		}
		if !used {
			return ErrInviteInvalid
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInviteInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to join group: %w", err)
	}

	s.publishEvent(ctx, events.EventGroupMemberAdded, events.GroupMemberAddedEvent{
		GroupID: group.ID,
		UserID:  userID,
		Role:    string(models.GroupRoleMember),
		AddedAt: time.Now(),
	})

	s.logger.Info("User joined group", "group_id", group.ID, "user_id", userID)

	return s.Get(ctx, group.ID, userID)
}

func (s *groupService) AssignTest(ctx context.Context, groupID string, req *AssignTestRequest, userID string) (*AssignmentResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	if err := s.requireManager(ctx, groupID, userID, "assign_test"); err != nil {
		return nil, err
	}

	test, err := s.repo.Test().GetByID(ctx, nil, req.TestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}
	if test.Status != models.TestPublished {
		return nil, ErrTestNotAvailable
	}

	assignment := &models.GroupTestAssignment{
		GroupID:    groupID,
		TestID:     req.TestID,
		AssignedBy: userID,
	}

	if err := s.repo.Group().UpsertAssignment(ctx, nil, assignment); err != nil {
		return nil, fmt.Errorf("failed to assign test: %w", err)
	}

	s.publishEvent(ctx, events.EventTestAssigned, events.TestAssignedEvent{
		GroupID:    groupID,
		TestID:     req.TestID,
		AssignedBy: userID,
		AssignedAt: time.Now(),
	})

	s.logger.Info("Test assigned to group",
		"group_id", groupID,
		"test_id", req.TestID,
		"assigned_by", userID)

	return &AssignmentResponse{
		GroupID:    groupID,
		TestID:     req.TestID,
		TestTitle:  test.Title,
		AssignedBy: userID,
		AssignedAt: time.Now(),
	}, nil
}

func (s *groupService) ListAssignments(ctx context.Context, groupID, userID string) ([]AssignmentResponse, error) {
	if err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}

	assignments, err := s.repo.Group().ListAssignments(ctx, nil, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	resp := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		resp = append(resp, AssignmentResponse{
			GroupID:    assignment.GroupID,
			TestID:     assignment.TestID,
			TestTitle:  assignment.Test.Title,
			AssignedBy: assignment.AssignedBy,
			AssignedAt: assignment.CreatedAt,
		})
	}

	return resp, nil
}

// ===== ACCESS HELPERS =====

func (s *groupService) requireMember(ctx context.Context, groupID, userID string) error {
	isMember, err := s.repo.Group().IsMember(ctx, nil, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to check membership: %w", err)
	}
	if !isMember {
		if _, gerr := s.repo.Group().GetByID(ctx, nil, groupID); gerr != nil && repositories.IsNotFoundError(gerr) {
			return ErrGroupNotFound
		}
		return ErrNotGroupMember
	}
	return nil
}

// requireManager allows owners and mods.
func (s *groupService) requireManager(ctx context.Context, groupID, userID, action string) error {
	role, err := s.repo.Group().GetMemberRole(ctx, nil, groupID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			if _, gerr := s.repo.Group().GetByID(ctx, nil, groupID); gerr != nil && repositories.IsNotFoundError(gerr) {
				return ErrGroupNotFound
			}
			return ErrNotGroupMember
		}
		return fmt.Errorf("failed to get member role: %w", err)
	}

	if role != models.GroupRoleOwner && role != models.GroupRoleMod {
		return NewPermissionError(userID, groupID, "group", action, "requires owner or mod role")
	}

	return nil
}

func (s *groupService) resolveNames(ctx context.Context, userIDs []string) map[string]string {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names
	}

	users, err := s.repo.User().GetByIDs(ctx, userIDs)
	if err != nil {
		// Names are cosmetic; the listing still works without them.
		s.logger.Warn("Failed to resolve user names", "error", err)
		return names
	}

	for _, user := range users {
		names[user.ID] = user.FullName
	}
	return names
}

func memberIDs(members []*models.GroupMember) []string {
	ids := make([]string, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.UserID)
	}
	return ids
}

func (s *groupService) publishEvent(ctx context.Context, eventType string, data interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, data); err != nil {
		s.logger.Error("Failed to publish event", "event_type", eventType, "error", err)
	}
}

// generateInviteCode mints a 10 character uppercase alphanumeric code.
func generateInviteCode() (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const length = 10

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}
