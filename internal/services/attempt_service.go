package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/prepline/attempt-service/internal/events"
	"github.com/prepline/attempt-service/internal/models"
	"github.com/prepline/attempt-service/internal/repositories"
	"github.com/prepline/attempt-service/internal/validator"
)

type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher) AttemptService {
	return &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error) {
	s.logger.Info("Starting attempt",
		"test_id", req.TestID,
		"student_id", studentID)

	// Validate request
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	// Get the full paper up front; start needs it for the response anyway
	test, err := s.repo.Test().GetByIDWithQuestions(ctx, nil, req.TestID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	if err := s.checkTestAccess(ctx, test, studentID); err != nil {
		return nil, err
	}

	// Starting is idempotent: an open attempt is resumed, not duplicated.
	// An expired open attempt is also returned; the client sees zero
	// remaining time and flushes a submit.
	existing, err := s.repo.Attempt().GetActiveAttempt(ctx, nil, req.TestID, studentID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}
	if existing != nil && err == nil {
		s.logger.Info("Resuming existing attempt", "attempt_id", existing.ID)
		resp := s.toAttemptResponse(existing, test, true)
		s.attachPaper(resp, test)
		return resp, nil
	}

	now := time.Now()
	attempt := &models.Attempt{
		TestID:     req.TestID,
		StudentID:  studentID,
		Status:     models.AttemptInProgress,
		StartedAt:  now,
		EndsAt:     now.Add(time.Duration(test.DurationSec) * time.Second),
		LastSeenAt: now,
	}

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		// Re-check inside the transaction; two racing starts otherwise both
		// pass the check above.
		open, err := txRepo.Attempt().GetActiveAttempt(ctx, nil, req.TestID, studentID)
		if err == nil && open != nil {
			attempt = open
			return nil
		}
		if err != nil && !repositories.IsNotFoundError(err) {
			return err
		}
		return txRepo.Attempt().Create(ctx, nil, attempt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start attempt: %w", err)
	}

	s.publishEvent(ctx, events.EventAttemptStarted, events.AttemptStartedEvent{
		AttemptID: attempt.ID,
		TestID:    attempt.TestID,
		StudentID: attempt.StudentID,
		StartedAt: attempt.StartedAt,
		EndsAt:    attempt.EndsAt,
	})

	s.logger.Info("Attempt started",
		"attempt_id", attempt.ID,
		"test_id", req.TestID,
		"student_id", studentID)

	resp := s.toAttemptResponse(attempt, test, false)
	s.attachPaper(resp, test)
	return resp, nil
}

func (s *attemptService) UpsertAnswer(ctx context.Context, attemptID string, req *UpsertAnswerRequest, studentID string) (*AnswerState, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID, "answer")
	if err != nil {
		return nil, err
	}

	if attempt.Status != models.AttemptInProgress {
		return nil, ErrAttemptAlreadySubmitted
	}

	// Answers are the only writes the expiry guard rejects; submit stays
	// open so clients can flush after the window closes.
	if attempt.IsExpired(time.Now()) {
		return nil, ErrAttemptTimeExpired
	}

	test, err := s.repo.Test().GetByIDWithQuestions(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	slot, slotIndex := findSlot(test.TestQuestions, req.QuestionID)
	if slot == nil {
		return nil, ErrQuestionNotInTest
	}

	// The request is a partial update: merge it over the stored row inside
	// the transaction so a flag-only patch cannot wipe a saved response.
	answer := &models.AttemptAnswer{
		AttemptID:  attemptID,
		QuestionID: req.QuestionID,
		Visited:    true,
	}

	now := time.Now()
	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		existing, err := txRepo.Answer().GetByAttemptAndQuestion(ctx, nil, attemptID, req.QuestionID)
		if err != nil && !repositories.IsNotFoundError(err) {
			return err
		}
		if existing != nil && err == nil {
			answer.Response = existing.Response
			answer.Visited = existing.Visited
			answer.IsMarked = existing.IsMarked
			answer.TimeSpentMs = existing.TimeSpentMs
		}

		if req.Response != nil {
			answer.Response = []byte(req.Response)
		}
		if req.Visited != nil {
			answer.Visited = *req.Visited
		}
		if req.IsMarked != nil {
			answer.IsMarked = *req.IsMarked
		}
		if req.TimeSpentMs != nil {
			answer.TimeSpentMs = *req.TimeSpentMs
		}

		if err := txRepo.Answer().Upsert(ctx, nil, answer); err != nil {
			return err
		}
		return txRepo.Attempt().TouchLastSeen(ctx, nil, attemptID, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}

	return &AnswerState{
		QuestionID:  req.QuestionID,
		Index:       slotIndex,
		Answered:    len(answer.Response) > 0,
		Visited:     answer.Visited,
		IsMarked:    answer.IsMarked,
		TimeSpentMs: answer.TimeSpentMs,
		Response:    []byte(answer.Response),
	}, nil
}

func (s *attemptService) Submit(ctx context.Context, attemptID, studentID string) (*SubmitResponse, error) {
	s.logger.Info("Submitting attempt",
		"attempt_id", attemptID,
		"student_id", studentID)

	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID, "submit")
	if err != nil {
		return nil, err
	}

	// Repeated submits return the stored outcome instead of failing.
	if attempt.Status == models.AttemptSubmitted {
		result, err := s.ensureResult(ctx, attempt)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{
			AttemptID:        attempt.ID,
			Status:           attempt.Status,
			SubmittedAt:      attempt.SubmittedAt,
			Score:            result.Score,
			MaxScore:         result.MaxScore,
			AlreadySubmitted: true,
		}, nil
	}

	test, err := s.repo.Test().GetByIDWithQuestions(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	submittedAt := time.Now()
	var result *models.AttemptResult
	raced := false

	err = s.repo.WithTransaction(ctx, func(txRepo repositories.Repository) error {
		ok, err := txRepo.Attempt().MarkSubmitted(ctx, nil, attemptID, submittedAt)
		if err != nil {
			return err
		}
		if !ok {
			// A concurrent submit won; the stored result is authoritative.
			raced = true
			return nil
		}

		answers, err := txRepo.Answer().ListByAttempt(ctx, nil, attemptID)
		if err != nil {
			return err
		}

		summary := scoreAttempt(test, answers)
		result, err = buildResult(attemptID, summary)
		if err != nil {
			return err
		}
		return txRepo.Result().Upsert(ctx, nil, result)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit attempt: %w", err)
	}

	if raced {
		fresh, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload attempt: %w", err)
		}
		stored, err := s.ensureResult(ctx, fresh)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{
			AttemptID:        fresh.ID,
			Status:           fresh.Status,
			SubmittedAt:      fresh.SubmittedAt,
			Score:            stored.Score,
			MaxScore:         stored.MaxScore,
			AlreadySubmitted: true,
		}, nil
	}

	s.publishEvent(ctx, events.EventAttemptSubmitted, events.AttemptSubmittedEvent{
		AttemptID:   attemptID,
		TestID:      attempt.TestID,
		StudentID:   studentID,
		Score:       result.Score,
		MaxScore:    result.MaxScore,
		Accuracy:    result.Accuracy,
		SubmittedAt: submittedAt,
	})

	s.logger.Info("Attempt submitted",
		"attempt_id", attemptID,
		"score", result.Score,
		"max_score", result.MaxScore)

	return &SubmitResponse{
		AttemptID:   attemptID,
		Status:      models.AttemptSubmitted,
		SubmittedAt: &submittedAt,
		Score:       result.Score,
		MaxScore:    result.MaxScore,
	}, nil
}

func (s *attemptService) GetOverview(ctx context.Context, attemptID, studentID string) (*OverviewResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID, "view")
	if err != nil {
		return nil, err
	}

	test, err := s.repo.Test().GetByIDWithQuestions(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	answers, err := s.repo.Answer().ListByAttempt(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	byQuestion := answersByQuestion(answers)

	overview := &OverviewResponse{
		AttemptID:   attempt.ID,
		Status:      attempt.Status,
		RemainingMs: remainingMs(attempt, time.Now()),
		TotalCount:  len(test.TestQuestions),
		Answers:     make([]AnswerState, 0, len(test.TestQuestions)),
	}

	for i, slot := range test.TestQuestions {
		state := AnswerState{
			QuestionID: slot.QuestionID,
			Index:      i,
		}
		if answer, ok := byQuestion[slot.QuestionID]; ok {
			state.Answered = len(answer.Response) > 0
			state.Visited = answer.Visited
			state.IsMarked = answer.IsMarked
			state.TimeSpentMs = answer.TimeSpentMs
			state.Response = []byte(answer.Response)
		}
		if state.Answered {
			overview.AnsweredCount++
		}
		if state.Visited {
			overview.VisitedCount++
		}
		if state.IsMarked {
			overview.MarkedCount++
		}
		overview.Answers = append(overview.Answers, state)
	}

	return overview, nil
}

func (s *attemptService) GetAnalysis(ctx context.Context, attemptID, studentID string) (*AnalysisResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID, "analyze")
	if err != nil {
		return nil, err
	}

	// Analysis exposes answer keys, so it only opens after submit.
	if attempt.Status != models.AttemptSubmitted {
		return nil, ErrAttemptNotActive
	}

	test, err := s.repo.Test().GetByIDWithQuestions(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	answers, err := s.repo.Answer().ListByAttempt(ctx, nil, attemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	byQuestion := answersByQuestion(answers)

	summary := scoreAttempt(test, answers)

	// Reads self-heal a missing result row so analysis stays available
	// even if the submit transaction's result write was lost.
	if _, err := s.ensureResult(ctx, attempt); err != nil {
		s.logger.Warn("Failed to heal missing result", "attempt_id", attemptID, "error", err)
	}

	resp := &AnalysisResponse{
		AttemptID:        attempt.ID,
		TestID:           test.ID,
		TestTitle:        test.Title,
		StudentID:        attempt.StudentID,
		SubmittedAt:      attempt.SubmittedAt,
		Score:            summary.Score,
		MaxScore:         summary.MaxScore,
		CorrectCount:     summary.CorrectCount,
		WrongCount:       summary.WrongCount,
		UnattemptedCount: summary.UnattemptedCount,
		Accuracy:         summary.Accuracy,
		TotalTimeMs:      summary.TotalTimeMs,
		SubjectBreakup:   summary.Subjects,
		Questions:        make([]QuestionAnalysis, 0, len(summary.Questions)),
	}

	for i, outcome := range summary.Questions {
		slot := test.TestQuestions[i]
		qa := QuestionAnalysis{
			QuestionID:   outcome.QuestionID,
			Index:        outcome.Index,
			Type:         slot.Question.Type,
			Text:         slot.Question.Text,
			Options:      []byte(slot.Question.Options),
			Subject:      outcome.Subject,
			Attempted:    outcome.Attempted,
			Correct:      outcome.Correct,
			Marks:        outcome.Marks,
			MarksAwarded: outcome.MarksAwarded,
			TimeSpentMs:  outcome.TimeSpentMs,
			AnswerKey:    []byte(slot.Question.AnswerKey),
			SolutionText: slot.Question.SolutionText,
		}
		if answer, ok := byQuestion[outcome.QuestionID]; ok {
			qa.Response = []byte(answer.Response)
		}
		resp.Questions = append(resp.Questions, qa)
	}

	return resp, nil
}

func (s *attemptService) GetByID(ctx context.Context, attemptID, studentID string) (*AttemptResponse, error) {
	attempt, err := s.getOwnedAttempt(ctx, attemptID, studentID, "view")
	if err != nil {
		return nil, err
	}

	test, err := s.repo.Test().GetByID(ctx, nil, attempt.TestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	return s.toAttemptResponse(attempt, test, false), nil
}

func (s *attemptService) GetByStudent(ctx context.Context, studentID string, limit, offset int) (*AttemptListResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	filters := repositories.AttemptFilters{
		Limit:     limit,
		Offset:    offset,
		SortBy:    "started_at",
		SortOrder: "desc",
	}
	attempts, total, err := s.repo.Attempt().GetByStudent(ctx, nil, studentID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	resp := &AttemptListResponse{
		Attempts: make([]AttemptResponse, 0, len(attempts)),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}
	for _, attempt := range attempts {
		resp.Attempts = append(resp.Attempts, *s.toAttemptResponse(attempt, &attempt.Test, false))
	}

	return resp, nil
}

// getOwnedAttempt loads an attempt and enforces student ownership.
func (s *attemptService) getOwnedAttempt(ctx context.Context, attemptID, studentID, action string) (*models.Attempt, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, nil, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if attempt.StudentID != studentID {
		return nil, NewPermissionError(studentID, attemptID, "attempt", action, "not owned by student")
	}

	return attempt, nil
}

// checkTestAccess enforces status and visibility rules before a start.
func (s *attemptService) checkTestAccess(ctx context.Context, test *models.Test, studentID string) error {
	if test.Status != models.TestPublished {
		return ErrTestNotAvailable
	}

	switch test.Visibility {
	case models.VisibilityPublic:
		return nil
	case models.VisibilityPrivate:
		// Private papers are not startable through the attempt surface;
		// preview flows live upstream with the catalog.
		return ErrTestNotAvailable
	case models.VisibilityGroupOnly:
		assigned, err := s.repo.Group().IsTestAssignedToUserGroups(ctx, nil, test.ID, studentID)
		if err != nil {
			return fmt.Errorf("failed to check group assignment: %w", err)
		}
		if !assigned {
			return ErrTestNotAssigned
		}
		return nil
	default:
		return ErrTestNotAvailable
	}
}

func (s *attemptService) publishEvent(ctx context.Context, eventType string, data interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, data); err != nil {
		// Events are best effort; the state change already committed.
		s.logger.Error("Failed to publish event", "event_type", eventType, "error", err)
	}
}
