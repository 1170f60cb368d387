package services

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/prepline/attempt-service/internal/models"
	"github.com/prepline/attempt-service/internal/repositories"
)

// mockRepository is an in-memory Repository for service tests.
type mockRepository struct {
	mu sync.Mutex

	tests       map[string]*models.Test
	attempts    map[string]*models.Attempt
	answers     map[string]map[string]*models.AttemptAnswer
	results     map[string]*models.AttemptResult
	groups      map[string]*models.Group
	members     map[string][]*models.GroupMember
	invites     map[string]*models.GroupInvite
	assignments map[string][]*models.GroupTestAssignment
	users       map[string]*models.User
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		tests:       make(map[string]*models.Test),
		attempts:    make(map[string]*models.Attempt),
		answers:     make(map[string]map[string]*models.AttemptAnswer),
		results:     make(map[string]*models.AttemptResult),
		groups:      make(map[string]*models.Group),
		members:     make(map[string][]*models.GroupMember),
		invites:     make(map[string]*models.GroupInvite),
		assignments: make(map[string][]*models.GroupTestAssignment),
		users:       make(map[string]*models.User),
	}
}

func (m *mockRepository) Test() repositories.TestRepository       { return &mockTestRepo{m} }
func (m *mockRepository) Attempt() repositories.AttemptRepository { return &mockAttemptRepo{m} }
func (m *mockRepository) Answer() repositories.AnswerRepository   { return &mockAnswerRepo{m} }
func (m *mockRepository) Result() repositories.ResultRepository   { return &mockResultRepo{m} }
func (m *mockRepository) Group() repositories.GroupRepository     { return &mockGroupRepo{m} }
func (m *mockRepository) User() repositories.UserRepository       { return &mockUserRepo{m} }

func (m *mockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}

func (m *mockRepository) Ping(ctx context.Context) error { return nil }
func (m *mockRepository) Close() error                   { return nil }

// ===== TEST =====

type mockTestRepo struct{ m *mockRepository }

func (r *mockTestRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	test, ok := r.m.tests[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return test, nil
}

func (r *mockTestRepo) GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id string) (*models.Test, error) {
	return r.GetByID(ctx, tx, id)
}

// ===== ATTEMPT =====

type mockAttemptRepo struct{ m *mockRepository }

func (r *mockAttemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *models.Attempt) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	cp := *attempt
	r.m.attempts[attempt.ID] = &cp
	return nil
}

func (r *mockAttemptRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Attempt, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	attempt, ok := r.m.attempts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *attempt
	return &cp, nil
}

func (r *mockAttemptRepo) GetByIDWithAnswers(ctx context.Context, tx *gorm.DB, id string) (*models.Attempt, error) {
	attempt, err := r.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, answer := range r.m.answers[id] {
		attempt.Answers = append(attempt.Answers, *answer)
	}
	return attempt, nil
}

func (r *mockAttemptRepo) GetActiveAttempt(ctx context.Context, tx *gorm.DB, testID, studentID string) (*models.Attempt, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, attempt := range r.m.attempts {
		if attempt.TestID == testID && attempt.StudentID == studentID && attempt.Status == models.AttemptInProgress {
			cp := *attempt
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *mockAttemptRepo) MarkSubmitted(ctx context.Context, tx *gorm.DB, id string, submittedAt time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	attempt, ok := r.m.attempts[id]
	if !ok || attempt.Status != models.AttemptInProgress {
		return false, nil
	}
	attempt.Status = models.AttemptSubmitted
	at := submittedAt
	attempt.SubmittedAt = &at
	return true, nil
}

func (r *mockAttemptRepo) TouchLastSeen(ctx context.Context, tx *gorm.DB, id string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if attempt, ok := r.m.attempts[id]; ok {
		attempt.LastSeenAt = at
	}
	return nil
}

func (r *mockAttemptRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Attempt
	for _, attempt := range r.m.attempts {
		if filters.StudentID != nil && attempt.StudentID != *filters.StudentID {
			continue
		}
		if filters.TestID != nil && attempt.TestID != *filters.TestID {
			continue
		}
		if filters.Status != nil && attempt.Status != *filters.Status {
			continue
		}
		cp := *attempt
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	total := int64(len(out))
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, total, nil
}

func (r *mockAttemptRepo) GetByStudent(ctx context.Context, tx *gorm.DB, studentID string, filters repositories.AttemptFilters) ([]*models.Attempt, int64, error) {
	filters.StudentID = &studentID
	return r.List(ctx, tx, filters)
}

// ===== ANSWER =====

type mockAnswerRepo struct{ m *mockRepository }

func (r *mockAnswerRepo) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID string) (*models.AttemptAnswer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if answer, ok := r.m.answers[attemptID][questionID]; ok {
		cp := *answer
		return &cp, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *mockAnswerRepo) Upsert(ctx context.Context, tx *gorm.DB, answer *models.AttemptAnswer) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if answer.ID == "" {
		answer.ID = uuid.NewString()
	}
	if r.m.answers[answer.AttemptID] == nil {
		r.m.answers[answer.AttemptID] = make(map[string]*models.AttemptAnswer)
	}
	cp := *answer
	r.m.answers[answer.AttemptID][answer.QuestionID] = &cp
	return nil
}

func (r *mockAnswerRepo) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID string) ([]*models.AttemptAnswer, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.AttemptAnswer
	for _, answer := range r.m.answers[attemptID] {
		cp := *answer
		out = append(out, &cp)
	}
	return out, nil
}

// ===== RESULT =====

type mockResultRepo struct{ m *mockRepository }

func (r *mockResultRepo) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID string) (*models.AttemptResult, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	result, ok := r.m.results[attemptID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *result
	return &cp, nil
}

func (r *mockResultRepo) Upsert(ctx context.Context, tx *gorm.DB, result *models.AttemptResult) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	cp := *result
	r.m.results[result.AttemptID] = &cp
	return nil
}

// ===== GROUP =====

type mockGroupRepo struct{ m *mockRepository }

func (r *mockGroupRepo) Create(ctx context.Context, tx *gorm.DB, group *models.Group) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	group.CreatedAt = time.Now()
	cp := *group
	r.m.groups[group.ID] = &cp
	return nil
}

func (r *mockGroupRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Group, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	group, ok := r.m.groups[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *group
	return &cp, nil
}

func (r *mockGroupRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID string, filters repositories.GroupFilters) ([]*models.Group, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.Group
	for groupID, members := range r.m.members {
		for _, member := range members {
			if member.UserID == userID {
				if group, ok := r.m.groups[groupID]; ok {
					cp := *group
					out = append(out, &cp)
				}
				break
			}
		}
	}
	return out, int64(len(out)), nil
}

func (r *mockGroupRepo) IsMember(ctx context.Context, tx *gorm.DB, groupID, userID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, member := range r.m.members[groupID] {
		if member.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockGroupRepo) GetMemberRole(ctx context.Context, tx *gorm.DB, groupID, userID string) (models.GroupRole, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, member := range r.m.members[groupID] {
		if member.UserID == userID {
			return member.Role, nil
		}
	}
	return "", repositories.ErrNotFound
}

func (r *mockGroupRepo) AddMember(ctx context.Context, tx *gorm.DB, member *models.GroupMember) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.members[member.GroupID] {
		if existing.UserID == member.UserID {
			return nil
		}
	}
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now()
	}
	cp := *member
	r.m.members[member.GroupID] = append(r.m.members[member.GroupID], &cp)
	return nil
}

func (r *mockGroupRepo) ListMembers(ctx context.Context, tx *gorm.DB, groupID string) ([]*models.GroupMember, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*models.GroupMember, 0, len(r.m.members[groupID]))
	for _, member := range r.m.members[groupID] {
		cp := *member
		out = append(out, &cp)
	}
	return out, nil
}

func (r *mockGroupRepo) CreateInvite(ctx context.Context, tx *gorm.DB, invite *models.GroupInvite) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if invite.ID == "" {
		invite.ID = uuid.NewString()
	}
	cp := *invite
	r.m.invites[invite.Code] = &cp
	return nil
}

func (r *mockGroupRepo) GetInviteByCode(ctx context.Context, tx *gorm.DB, code string) (*models.GroupInvite, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	invite, ok := r.m.invites[code]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *invite
	return &cp, nil
}

func (r *mockGroupRepo) IncrementInviteUses(ctx context.Context, tx *gorm.DB, inviteID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, invite := range r.m.invites {
		if invite.ID == inviteID {
			if invite.MaxUses != nil && invite.UsesCount >= *invite.MaxUses {
				return false, nil
			}
			invite.UsesCount++
			return true, nil
		}
	}
	return false, repositories.ErrNotFound
}

func (r *mockGroupRepo) UpsertAssignment(ctx context.Context, tx *gorm.DB, assignment *models.GroupTestAssignment) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.assignments[assignment.GroupID] {
		if existing.TestID == assignment.TestID {
			return nil
		}
	}
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	assignment.CreatedAt = time.Now()
	cp := *assignment
	r.m.assignments[assignment.GroupID] = append(r.m.assignments[assignment.GroupID], &cp)
	return nil
}

func (r *mockGroupRepo) IsTestAssigned(ctx context.Context, tx *gorm.DB, groupID, testID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, assignment := range r.m.assignments[groupID] {
		if assignment.TestID == testID {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockGroupRepo) IsTestAssignedToUserGroups(ctx context.Context, tx *gorm.DB, testID, userID string) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for groupID, members := range r.m.members {
		isMember := false
		for _, member := range members {
			if member.UserID == userID {
				isMember = true
				break
			}
		}
		if !isMember {
			continue
		}
		for _, assignment := range r.m.assignments[groupID] {
			if assignment.TestID == testID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *mockGroupRepo) ListAssignments(ctx context.Context, tx *gorm.DB, groupID string) ([]*models.GroupTestAssignment, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	out := make([]*models.GroupTestAssignment, 0, len(r.m.assignments[groupID]))
	for _, assignment := range r.m.assignments[groupID] {
		cp := *assignment
		if test, ok := r.m.tests[assignment.TestID]; ok {
			cp.Test = *test
		}
		out = append(out, &cp)
	}
	return out, nil
}

func (r *mockGroupRepo) Leaderboard(ctx context.Context, tx *gorm.DB, groupID, testID string, limit int) ([]*repositories.LeaderboardRow, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	memberSet := make(map[string]bool)
	for _, member := range r.m.members[groupID] {
		memberSet[member.UserID] = true
	}

	var rows []*repositories.LeaderboardRow
	for _, attempt := range r.m.attempts {
		if attempt.TestID != testID || attempt.Status != models.AttemptSubmitted {
			continue
		}
		if !memberSet[attempt.StudentID] {
			continue
		}
		result, ok := r.m.results[attempt.ID]
		if !ok {
			continue
		}
		rows = append(rows, &repositories.LeaderboardRow{
			AttemptID:   attempt.ID,
			StudentID:   attempt.StudentID,
			Score:       result.Score,
			MaxScore:    result.MaxScore,
			Accuracy:    result.Accuracy,
			SubmittedAt: *attempt.SubmittedAt,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		if !rows[i].SubmittedAt.Equal(rows[j].SubmittedAt) {
			return rows[i].SubmittedAt.Before(rows[j].SubmittedAt)
		}
		return rows[i].AttemptID < rows[j].AttemptID
	})

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// ===== USER =====

type mockUserRepo struct{ m *mockRepository }

func (r *mockUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	user, ok := r.m.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return user, nil
}

func (r *mockUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []*models.User
	for _, id := range ids {
		if user, ok := r.m.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

// ===== SEED HELPERS =====

func ptr[T any](v T) *T { return &v }

// seedMCQTest registers a published test with MCQ questions. keys[i] is the
// correct option for question i; subjects may be nil.
func seedMCQTest(repo *mockRepository, testID string, visibility models.TestVisibility, keys []int, subjects []*string) *models.Test {
	test := &models.Test{
		ID:          testID,
		Title:       "Seed Test " + testID,
		DurationSec: 3600,
		Status:      models.TestPublished,
		Visibility:  visibility,
		CreatorID:   "teacher-1",
	}

	for i, key := range keys {
		var subject *string
		if subjects != nil {
			subject = subjects[i]
		}
		question := models.Question{
			ID:        uuid.NewString(),
			Type:      models.MCQ,
			Text:      "Question " + strconv.Itoa(i+1),
			Options:   datatypes.JSON([]byte(`["A","B","C","D"]`)),
			AnswerKey: datatypes.JSON([]byte(`{"correctOption":` + strconv.Itoa(key) + `}`)),
			Marks:     4,
			// Standard minus-one negative marking
			NegativeMarks: -1,
			Subject:       subject,
		}
		test.TestQuestions = append(test.TestQuestions, models.TestQuestion{
			ID:         uuid.NewString(),
			TestID:     testID,
			QuestionID: question.ID,
			SortOrder:  i,
			Question:   question,
		})
	}

	repo.tests[testID] = test
	return test
}
