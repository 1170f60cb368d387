package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/prepline/attempt-service/internal/cache"
	"github.com/prepline/attempt-service/internal/models"
	"github.com/prepline/attempt-service/internal/repositories"
)

// LeaderboardLimit caps how many rows a leaderboard returns.
const LeaderboardLimit = 200

type leaderboardService struct {
	repo         repositories.Repository
	db           *gorm.DB
	logger       *slog.Logger
	cacheManager *cache.CacheManager
}

func NewLeaderboardService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, redisClient *redis.Client) LeaderboardService {
	return &leaderboardService{
		repo:         repo,
		db:           db,
		logger:       logger,
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (s *leaderboardService) GetLeaderboard(ctx context.Context, groupID, testID, userID string) (*LeaderboardResponse, error) {
	if err := s.checkAccess(ctx, groupID, testID, userID); err != nil {
		return nil, err
	}

	entries, err := s.loadEntries(ctx, groupID, testID)
	if err != nil {
		return nil, err
	}

	resp := &LeaderboardResponse{
		GroupID: groupID,
		TestID:  testID,
		Entries: entries,
	}

	for i := range entries {
		if entries[i].StudentID == userID {
			rank := entries[i].Rank
			resp.MyRank = &rank
			break
		}
	}

	return resp, nil
}

func (s *leaderboardService) ExportLeaderboard(ctx context.Context, groupID, testID, userID string) ([]byte, string, error) {
	// Export pulls full rows, so gate it to group managers.
	role, err := s.repo.Group().GetMemberRole(ctx, nil, groupID, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, "", ErrNotGroupMember
		}
		return nil, "", fmt.Errorf("failed to get member role: %w", err)
	}
	if role != models.GroupRoleOwner && role != models.GroupRoleMod {
		return nil, "", NewPermissionError(userID, groupID, "leaderboard", "export", "requires owner or mod role")
	}

	if err := s.checkTestAssigned(ctx, groupID, testID); err != nil {
		return nil, "", err
	}

	entries, err := s.loadEntries(ctx, groupID, testID)
	if err != nil {
		return nil, "", err
	}

	data, err := buildLeaderboardWorkbook(entries)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build workbook: %w", err)
	}

	filename := fmt.Sprintf("leaderboard_%s_%s.xlsx", groupID, time.Now().Format("20060102_150405"))

	s.logger.Info("Leaderboard exported",
		"group_id", groupID,
		"test_id", testID,
		"rows", len(entries),
		"exported_by", userID)

	return data, filename, nil
}

// loadEntries reads ranked rows through the cache and resolves student
// names.
func (s *leaderboardService) loadEntries(ctx context.Context, groupID, testID string) ([]LeaderboardEntry, error) {
	cacheKey := fmt.Sprintf("group:%s:test:%s", groupID, testID)

	var rows []*repositories.LeaderboardRow
	err := s.cacheManager.Leaderboard.CacheOrExecute(ctx, cacheKey, &rows, cache.LeaderboardCacheConfig.TTL, func() (interface{}, error) {
		return s.repo.Group().Leaderboard(ctx, nil, groupID, testID, LeaderboardLimit)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	names := s.resolveNames(ctx, rows)

	entries := make([]LeaderboardEntry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, LeaderboardEntry{
			Rank:        i + 1,
			StudentID:   row.StudentID,
			StudentName: names[row.StudentID],
			AttemptID:   row.AttemptID,
			Score:       row.Score,
			MaxScore:    row.MaxScore,
			Accuracy:    row.Accuracy,
			SubmittedAt: row.SubmittedAt,
		})
	}

	return entries, nil
}

func (s *leaderboardService) checkAccess(ctx context.Context, groupID, testID, userID string) error {
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

	return s.checkTestAssigned(ctx, groupID, testID)
}

func (s *leaderboardService) checkTestAssigned(ctx context.Context, groupID, testID string) error {
	assigned, err := s.repo.Group().IsTestAssigned(ctx, nil, groupID, testID)
	if err != nil {
		return fmt.Errorf("failed to check assignment: %w", err)
	}
	if !assigned {
		return ErrTestNotAssigned
	}
	return nil
}

func (s *leaderboardService) resolveNames(ctx context.Context, rows []*repositories.LeaderboardRow) map[string]string {
	names := make(map[string]string, len(rows))
	if len(rows) == 0 {
		return names
	}

	ids := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if !seen[row.StudentID] {
			seen[row.StudentID] = true
			ids = append(ids, row.StudentID)
		}
	}

	users, err := s.repo.User().GetByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("Failed to resolve student names", "error", err)
		return names
	}

	for _, user := range users {
		names[user.ID] = user.FullName
	}
	return names
}
