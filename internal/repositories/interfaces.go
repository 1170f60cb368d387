package repositories

import (
	"time"

	"github.com/prepline/attempt-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type AttemptFilters struct {
	Status    *models.AttemptStatus `json:"status"`
	TestID    *string               `json:"test_id"`
	StudentID *string               `json:"student_id"`
	DateFrom  *time.Time            `json:"date_from"`
	DateTo    *time.Time            `json:"date_to"`
	Limit     int                   `json:"limit"`
	Offset    int                   `json:"offset"`
	SortBy    string                `json:"sort_by"`    // "created_at", "started_at", "submitted_at"
	SortOrder string                `json:"sort_order"` // "asc", "desc"
}

type GroupFilters struct {
	OwnerID *string `json:"owner_id"`
	Name    *string `json:"name"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// ===== SHARED RESULT STRUCTS =====

// LeaderboardRow is one submitted attempt joined to its result. Rows come
// back ordered score desc, submitted_at asc; attempts without a result row
// are excluded at the query level.
type LeaderboardRow struct {
	AttemptID   string    `json:"attempt_id"`
	StudentID   string    `json:"student_id"`
	Score       float64   `json:"score"`
	MaxScore    float64   `json:"max_score"`
	Accuracy    float64   `json:"accuracy"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// AttemptCounts summarizes attempts for one test.
type AttemptCounts struct {
	Total      int64                        `json:"total"`
	ByStatus   map[models.AttemptStatus]int `json:"by_status"`
	AvgScore   float64                      `json:"avg_score"`
	BestScore  float64                      `json:"best_score"`
	Submitted  int64                        `json:"submitted"`
	InProgress int64                        `json:"in_progress"`
}
