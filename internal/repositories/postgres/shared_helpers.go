package postgres

import (
	"context"

	"gorm.io/gorm"

	"github.com/prepline/attempt-service/internal/models"
	"github.com/prepline/attempt-service/internal/repositories"
)

// SharedHelpers contains common database operations
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// CountAttempts counts attempts for a test
func (h *SharedHelpers) CountAttempts(ctx context.Context, testID string) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("test_id = ?", testID).
		Count(&count).Error
	return count, err
}

// CountAttemptsByStudent counts attempts by student for a test
func (h *SharedHelpers) CountAttemptsByStudent(ctx context.Context, testID, studentID string) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("test_id = ? AND student_id = ?", testID, studentID).
		Count(&count).Error
	return count, err
}

// CountAttemptsByStatus counts attempts by status for a test
func (h *SharedHelpers) CountAttemptsByStatus(ctx context.Context, testID string, status models.AttemptStatus) (int64, error) {
	var count int64
	err := h.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("test_id = ? AND status = ?", testID, status).
		Count(&count).Error
	return count, err
}

// ApplyAttemptFilters applies common filters to attempt queries
func (h *SharedHelpers) ApplyAttemptFilters(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.TestID != nil {
		query = query.Where("test_id = ?", *filters.TestID)
	}
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}
	if filters.DateFrom != nil {
		query = query.Where("started_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("started_at <= ?", *filters.DateTo)
	}
	return query
}

// ApplyPaginationAndSort applies pagination and sorting with SQL injection protection
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	// Whitelist allowed sort columns
	allowedSortColumns := map[string]bool{
		"created_at":   true,
		"started_at":   true,
		"submitted_at": true,
		"updated_at":   true,
		"id":           true,
		"status":       true,
	}

	// Validate and set sort column
	if sortBy == "" || !allowedSortColumns[sortBy] {
		sortBy = "started_at"
	}

	// Validate and set sort order
	if sortOrder != "asc" && sortOrder != "ASC" {
		sortOrder = "DESC"
	} else {
		sortOrder = "ASC"
	}

	query = query.Order(sortBy + " " + sortOrder)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	return query
}

// GetAttemptCounts aggregates per-status attempt counts for a test
func (h *SharedHelpers) GetAttemptCounts(ctx context.Context, testID string) (*repositories.AttemptCounts, error) {
	counts := &repositories.AttemptCounts{}

	total, err := h.CountAttempts(ctx, testID)
	if err != nil {
		return nil, err
	}
	counts.Total = total

	inProgress, err := h.CountAttemptsByStatus(ctx, testID, models.AttemptInProgress)
	if err != nil {
		return nil, err
	}
	counts.InProgress = inProgress

	submitted, err := h.CountAttemptsByStatus(ctx, testID, models.AttemptSubmitted)
	if err != nil {
		return nil, err
	}
	counts.Submitted = submitted

	return counts, nil
}
