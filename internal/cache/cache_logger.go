package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateAttemptCache invalidates all caches touched by an attempt write
func InvalidateAttemptCache(ctx context.Context, cm *CacheManager, attemptID string) {
	SafeDelete(ctx, cm.Attempt,
		fmt.Sprintf("id:%s", attemptID),
		fmt.Sprintf("analysis:%s", attemptID))
}

// InvalidateLeaderboardCache invalidates leaderboards for a test after a
// submission lands
func InvalidateLeaderboardCache(ctx context.Context, cm *CacheManager, testID string) {
	SafeInvalidatePattern(ctx, cm.Leaderboard, fmt.Sprintf("*:test:%s*", testID))
}
