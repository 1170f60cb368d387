package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prepline/attempt-service/internal/grading"
	"github.com/prepline/attempt-service/internal/models"
	"github.com/prepline/attempt-service/internal/repositories"
)

// ===== RESPONSE BUILDING =====

func (s *attemptService) toAttemptResponse(attempt *models.Attempt, test *models.Test, resumed bool) *AttemptResponse {
	resp := &AttemptResponse{
		ID:          attempt.ID,
		TestID:      attempt.TestID,
		StudentID:   attempt.StudentID,
		Status:      attempt.Status,
		StartedAt:   attempt.StartedAt,
		EndsAt:      attempt.EndsAt,
		SubmittedAt: attempt.SubmittedAt,
		RemainingMs: remainingMs(attempt, time.Now()),
		Resumed:     resumed,
	}
	if test != nil {
		resp.TestTitle = test.Title
	}
	return resp
}

// attachPaper fills in sections and keyless question views in paper order.
func (s *attemptService) attachPaper(resp *AttemptResponse, test *models.Test) {
	resp.Sections = make([]SectionView, 0, len(test.Sections))
	for _, section := range test.Sections {
		resp.Sections = append(resp.Sections, SectionView{
			ID:   section.ID,
			Name: section.Name,
		})
	}

	resp.Questions = make([]QuestionView, 0, len(test.TestQuestions))
	for i, slot := range test.TestQuestions {
		resp.Questions = append(resp.Questions, QuestionView{
			ID:        slot.QuestionID,
			Index:     i,
			SectionID: slot.SectionID,
			Type:      slot.Question.Type,
			Text:      slot.Question.Text,
			Options:   []byte(slot.Question.Options),
			ImageURL:  slot.Question.PromptImageURL,
			Marks:     slot.Marks(),
			Negative:  slot.NegativeMarks(),
			Subject:   slot.Question.Subject,
		})
	}
}

func remainingMs(attempt *models.Attempt, now time.Time) int64 {
	if attempt.Status != models.AttemptInProgress {
		return 0
	}
	remaining := attempt.EndsAt.Sub(now).Milliseconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ===== GRADING GLUE =====

func answersByQuestion(answers []*models.AttemptAnswer) map[string]*models.AttemptAnswer {
	byQuestion := make(map[string]*models.AttemptAnswer, len(answers))
	for _, answer := range answers {
		byQuestion[answer.QuestionID] = answer
	}
	return byQuestion
}

func scoreAttempt(test *models.Test, answers []*models.AttemptAnswer) grading.Summary {
	return grading.Score(test.TestQuestions, answersByQuestion(answers))
}

func buildResult(attemptID string, summary grading.Summary) (*models.AttemptResult, error) {
	breakup, err := json.Marshal(summary.Subjects)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subject breakup: %w", err)
	}

	return &models.AttemptResult{
		AttemptID:        attemptID,
		Score:            summary.Score,
		MaxScore:         summary.MaxScore,
		CorrectCount:     summary.CorrectCount,
		WrongCount:       summary.WrongCount,
		UnattemptedCount: summary.UnattemptedCount,
		Accuracy:         summary.Accuracy,
		TotalTimeMs:      summary.TotalTimeMs,
		SubjectBreakup:   breakup,
	}, nil
}

// findSlot returns the slot and its paper position, or (nil, -1).
func findSlot(slots []models.TestQuestion, questionID string) (*models.TestQuestion, int) {
	for i := range slots {
		if slots[i].QuestionID == questionID {
			return &slots[i], i
		}
	}
	return nil, -1
}

// ensureResult returns the stored result, recomputing and persisting it if
// the row is missing.
func (s *attemptService) ensureResult(ctx context.Context, attempt *models.Attempt) (*models.AttemptResult, error) {
	result, err := s.repo.Result().GetByAttempt(ctx, nil, attempt.ID)
	if err == nil {
		return result, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	test, err := s.repo.Test().GetByIDWithQuestions(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	answers, err := s.repo.Answer().ListByAttempt(ctx, nil, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}

	summary := scoreAttempt(test, answers)
	result, err = buildResult(attempt.ID, summary)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Result().Upsert(ctx, nil, result); err != nil {
		return nil, fmt.Errorf("failed to persist healed result: %w", err)
	}

	s.logger.Info("Recomputed missing result", "attempt_id", attempt.ID)
	return result, nil
}
