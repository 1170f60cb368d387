package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prepline/attempt-service/internal/models"
)

// ===== ATTEMPT DTOs =====

type StartAttemptRequest struct {
	TestID string `json:"test_id" validate:"required,uuid"`
}

// UpsertAnswerRequest is a partial update: every field but question_id is
// optional, and omitted fields leave the stored answer untouched.
type UpsertAnswerRequest struct {
	QuestionID  string          `json:"question_id" validate:"required,uuid"`
	Response    json.RawMessage `json:"response"`
	Visited     *bool           `json:"visited"`
	IsMarked    *bool           `json:"is_marked"`
	TimeSpentMs *int            `json:"time_spent_ms" validate:"omitempty,time_spent"`
}

// QuestionView is a question as shown during a live attempt. It never
// carries the answer key or solution.
type QuestionView struct {
	ID        string              `json:"id"`
	Index     int                 `json:"index"`
	SectionID *string             `json:"section_id,omitempty"`
	Type      models.QuestionType `json:"type"`
	Text      string              `json:"text"`
	Options   json.RawMessage     `json:"options,omitempty"`
	ImageURL  *string             `json:"image_url,omitempty"`
	Marks     float64             `json:"marks"`
	Negative  float64             `json:"negative_marks"`
	Subject   *string             `json:"subject,omitempty"`
}

type SectionView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AttemptResponse is returned by start and by attempt reads. Questions is
// populated only when the full paper is requested.
type AttemptResponse struct {
	ID          string               `json:"id"`
	TestID      string               `json:"test_id"`
	TestTitle   string               `json:"test_title,omitempty"`
	StudentID   string               `json:"student_id"`
	Status      models.AttemptStatus `json:"status"`
	StartedAt   time.Time            `json:"started_at"`
	EndsAt      time.Time            `json:"ends_at"`
	SubmittedAt *time.Time           `json:"submitted_at,omitempty"`
	RemainingMs int64                `json:"remaining_ms"`
	Resumed     bool                 `json:"resumed"`

	Sections  []SectionView  `json:"sections,omitempty"`
	Questions []QuestionView `json:"questions,omitempty"`
}

// AnswerState is one palette cell in the overview.
type AnswerState struct {
	QuestionID  string          `json:"question_id"`
	Index       int             `json:"index"`
	Answered    bool            `json:"answered"`
	Visited     bool            `json:"visited"`
	IsMarked    bool            `json:"is_marked"`
	TimeSpentMs int             `json:"time_spent_ms"`
	Response    json.RawMessage `json:"response,omitempty"`
}

// OverviewResponse is the live palette for a running attempt.
type OverviewResponse struct {
	AttemptID     string               `json:"attempt_id"`
	Status        models.AttemptStatus `json:"status"`
	RemainingMs   int64                `json:"remaining_ms"`
	TotalCount    int                  `json:"total_count"`
	AnsweredCount int                  `json:"answered_count"`
	VisitedCount  int                  `json:"visited_count"`
	MarkedCount   int                  `json:"marked_count"`
	Answers       []AnswerState        `json:"answers"`
}

// QuestionAnalysis extends the graded outcome with review material. The
// answer key is exposed here because analysis is only reachable after
// submit.
type QuestionAnalysis struct {
	QuestionID   string              `json:"question_id"`
	Index        int                 `json:"index"`
	Type         models.QuestionType `json:"type"`
	Text         string              `json:"text"`
	Options      json.RawMessage     `json:"options,omitempty"`
	Subject      string              `json:"subject"`
	Attempted    bool                `json:"attempted"`
	Correct      bool                `json:"correct"`
	Marks        float64             `json:"marks"`
	MarksAwarded float64             `json:"marks_awarded"`
	TimeSpentMs  int                 `json:"time_spent_ms"`
	Response     json.RawMessage     `json:"response,omitempty"`
	AnswerKey    json.RawMessage     `json:"answer_key"`
	SolutionText *string             `json:"solution_text,omitempty"`
}

// AnalysisResponse is the post-submit report for one attempt.
type AnalysisResponse struct {
	AttemptID        string               `json:"attempt_id"`
	TestID           string               `json:"test_id"`
	TestTitle        string               `json:"test_title"`
	StudentID        string               `json:"student_id"`
	SubmittedAt      *time.Time           `json:"submitted_at"`
	Score            float64              `json:"score"`
	MaxScore         float64              `json:"max_score"`
	CorrectCount     int                  `json:"correct_count"`
	WrongCount       int                  `json:"wrong_count"`
	UnattemptedCount int                  `json:"unattempted_count"`
	Accuracy         float64              `json:"accuracy"`
	TotalTimeMs      int                  `json:"total_time_ms"`
	SubjectBreakup   []models.SubjectStat `json:"subject_breakup"`
	Questions        []QuestionAnalysis   `json:"questions"`
}

// SubmitResponse confirms a submit and carries the headline numbers.
type SubmitResponse struct {
	AttemptID        string               `json:"attempt_id"`
	Status           models.AttemptStatus `json:"status"`
	SubmittedAt      *time.Time           `json:"submitted_at"`
	Score            float64              `json:"score"`
	MaxScore         float64              `json:"max_score"`
	AlreadySubmitted bool                 `json:"already_submitted"`
}

type AttemptListResponse struct {
	Attempts []AttemptResponse `json:"attempts"`
	Total    int64             `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// ===== GROUP DTOs =====

type CreateGroupRequest struct {
	Name        string  `json:"name" validate:"required,group_name"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

type CreateInviteRequest struct {
	ExpiresInHours *int `json:"expires_in_hours" validate:"omitempty,min=1,max=720"`
	MaxUses        *int `json:"max_uses" validate:"omitempty,min=1,max=10000"`
}

type JoinGroupRequest struct {
	Code string `json:"code" validate:"required,invite_code"`
}

type AssignTestRequest struct {
	TestID string `json:"test_id" validate:"required,uuid"`
}

type GroupResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	MemberCount int       `json:"member_count"`
	MyRole      string    `json:"my_role,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type GroupListResponse struct {
	Groups []GroupResponse `json:"groups"`
	Total  int64           `json:"total"`
}

type GroupMemberResponse struct {
	UserID   string           `json:"user_id"`
	Name     string           `json:"name,omitempty"`
	Role     models.GroupRole `json:"role"`
	JoinedAt time.Time        `json:"joined_at"`
}

type InviteResponse struct {
	Code      string     `json:"code"`
	GroupID   string     `json:"group_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	MaxUses   *int       `json:"max_uses,omitempty"`
	UsesCount int        `json:"uses_count"`
}

type AssignmentResponse struct {
	GroupID    string    `json:"group_id"`
	TestID     string    `json:"test_id"`
	TestTitle  string    `json:"test_title,omitempty"`
	AssignedBy string    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}

// ===== LEADERBOARD DTOs =====

// LeaderboardEntry is one ranked row. Ranks are strict 1..n; ties on score
// are broken by earlier submission.
type LeaderboardEntry struct {
	Rank        int       `json:"rank"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name,omitempty"`
	AttemptID   string    `json:"attempt_id"`
	Score       float64   `json:"score"`
	MaxScore    float64   `json:"max_score"`
	Accuracy    float64   `json:"accuracy"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type LeaderboardResponse struct {
	GroupID string             `json:"group_id"`
	TestID  string             `json:"test_id"`
	Entries []LeaderboardEntry `json:"entries"`
	MyRank  *int               `json:"my_rank,omitempty"`
}

// ===== SERVICE INTERFACES =====

type AttemptService interface {
	Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error)
	UpsertAnswer(ctx context.Context, attemptID string, req *UpsertAnswerRequest, studentID string) (*AnswerState, error)
	Submit(ctx context.Context, attemptID, studentID string) (*SubmitResponse, error)
	GetOverview(ctx context.Context, attemptID, studentID string) (*OverviewResponse, error)
	GetAnalysis(ctx context.Context, attemptID, studentID string) (*AnalysisResponse, error)
	GetByID(ctx context.Context, attemptID, studentID string) (*AttemptResponse, error)
	GetByStudent(ctx context.Context, studentID string, limit, offset int) (*AttemptListResponse, error)
}

type GroupService interface {
	Create(ctx context.Context, req *CreateGroupRequest, ownerID string) (*GroupResponse, error)
	Get(ctx context.Context, groupID, userID string) (*GroupResponse, error)
	ListMine(ctx context.Context, userID string, limit, offset int) (*GroupListResponse, error)
	ListMembers(ctx context.Context, groupID, userID string) ([]GroupMemberResponse, error)
	CreateInvite(ctx context.Context, groupID string, req *CreateInviteRequest, userID string) (*InviteResponse, error)
	JoinByCode(ctx context.Context, req *JoinGroupRequest, userID string) (*GroupResponse, error)
	AssignTest(ctx context.Context, groupID string, req *AssignTestRequest, userID string) (*AssignmentResponse, error)
	ListAssignments(ctx context.Context, groupID, userID string) ([]AssignmentResponse, error)
}

type LeaderboardService interface {
	GetLeaderboard(ctx context.Context, groupID, testID, userID string) (*LeaderboardResponse, error)
	ExportLeaderboard(ctx context.Context, groupID, testID, userID string) ([]byte, string, error)
}

// ServiceManager provides access to all services
type ServiceManager interface {
	Initialize(ctx context.Context) error
	Attempt() AttemptService
	Group() GroupService
	Leaderboard() LeaderboardService
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
