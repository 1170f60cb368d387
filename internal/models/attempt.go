package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "IN_PROGRESS"
	AttemptSubmitted  AttemptStatus = "SUBMITTED"
)

// Attempt is one student's run through a test. At most one IN_PROGRESS
// attempt exists per (test, student); expiry is enforced at write time,
// it is not a stored state.
type Attempt struct {
	ID        string        `json:"id" gorm:"primaryKey;size:36"`
	TestID    string        `json:"test_id" gorm:"not null;index;size:36"`
	StudentID string        `json:"student_id" gorm:"not null;index;size:255"`
	Status    AttemptStatus `json:"status" gorm:"default:IN_PROGRESS;index"`

	// Timing
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	EndsAt      time.Time  `json:"ends_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Test    Test            `json:"test" gorm:"foreignKey:TestID"`
	Student User            `json:"student" gorm:"foreignKey:StudentID"`
	Answers []AttemptAnswer `json:"answers" gorm:"foreignKey:AttemptID"`
	Result  *AttemptResult  `json:"result" gorm:"foreignKey:AttemptID"`
}

// IsExpired reports whether the attempt window has passed.
func (a *Attempt) IsExpired(now time.Time) bool {
	return now.After(a.EndsAt)
}

// AttemptAnswer is the per-question working state: the raw response plus
// palette flags. One row per (attempt, question), merged on every write.
type AttemptAnswer struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	AttemptID  string `json:"attempt_id" gorm:"not null;index;uniqueIndex:idx_attempt_question;size:36"`
	QuestionID string `json:"question_id" gorm:"not null;index;uniqueIndex:idx_attempt_question;size:36"`

	// Response is stored untyped; grading interprets it per question type
	// and degrades malformed payloads to unattempted.
	Response datatypes.JSON `json:"response" gorm:"type:jsonb"`

	Visited     bool `json:"visited" gorm:"not null;default:true"`
	IsMarked    bool `json:"is_marked" gorm:"not null;default:false"`
	TimeSpentMs int  `json:"time_spent_ms" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Attempt  Attempt  `json:"-" gorm:"foreignKey:AttemptID"`
	Question Question `json:"-" gorm:"foreignKey:QuestionID"`
}

// AttemptResult is the durable scoring projection, upserted idempotently
// on submit and self-healed by analysis reads.
type AttemptResult struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"`
	AttemptID string `json:"attempt_id" gorm:"not null;uniqueIndex;size:36"`

	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`

	CorrectCount     int `json:"correct_count"`
	WrongCount       int `json:"wrong_count"`
	UnattemptedCount int `json:"unattempted_count"`

	Accuracy    float64 `json:"accuracy"`
	TotalTimeMs int     `json:"total_time_ms"`

	// SubjectBreakup holds []SubjectStat in first-seen question order.
	SubjectBreakup datatypes.JSON `json:"subject_breakup" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Attempt Attempt `json:"-" gorm:"foreignKey:AttemptID"`
}

// SubjectStat is one row of the subject breakup.
type SubjectStat struct {
	Subject     string  `json:"subject"`
	Correct     int     `json:"correct"`
	Wrong       int     `json:"wrong"`
	Unattempted int     `json:"unattempted"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"maxScore"`
	TimeMs      int     `json:"timeMs"`
}

func (a *Attempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (aa *AttemptAnswer) BeforeCreate(tx *gorm.DB) error {
	if aa.ID == "" {
		aa.ID = uuid.NewString()
	}
	return nil
}

func (ar *AttemptResult) BeforeCreate(tx *gorm.DB) error {
	if ar.ID == "" {
		ar.ID = uuid.NewString()
	}
	return nil
}

func (Attempt) TableName() string {
	return "attempts"
}

func (AttemptAnswer) TableName() string {
	return "attempt_answers"
}

func (AttemptResult) TableName() string {
	return "attempt_results"
}
