package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type QuestionType string

const (
	MCQ       QuestionType = "MCQ"
	MSQ       QuestionType = "MSQ"
	Numerical QuestionType = "NUMERICAL"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

type Question struct {
	ID   string       `json:"id" gorm:"primaryKey;size:36"`
	Type QuestionType `json:"type" gorm:"not null;index"`
	Text string       `json:"text" gorm:"type:text;not null" validate:"required"`

	// Options holds the choice texts for MCQ/MSQ as a JSON array of
	// strings; empty for NUMERICAL.
	Options datatypes.JSON `json:"options" gorm:"type:jsonb"`

	// AnswerKey stored as JSONB; shape depends on Type (see schemas below).
	// Handlers must not embed Question in live-attempt responses; the key
	// is only exposed through post-submit analysis DTOs.
	AnswerKey datatypes.JSON `json:"answer_key" gorm:"type:jsonb;not null"`

	// Marks are the question's defaults; TestQuestion overrides win.
	Marks         float64 `json:"marks" gorm:"not null;default:4" validate:"min=0"`
	NegativeMarks float64 `json:"negative_marks" gorm:"not null;default:0" validate:"max=0"`

	// Categorization
	Subject    *string         `json:"subject" gorm:"size:120;index"`
	Chapter    *string         `json:"chapter" gorm:"size:120"`
	Difficulty DifficultyLevel `json:"difficulty" gorm:"default:medium;index"`

	// Display/review material
	PromptImageURL   *string `json:"prompt_image_url" gorm:"size:500"`
	SolutionText     *string `json:"solution_text" gorm:"type:text"`
	SolutionImageURL *string `json:"solution_image_url" gorm:"size:500"`

	CreatedBy string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Creator User `json:"-" gorm:"foreignKey:CreatedBy"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

func (Question) TableName() string {
	return "questions"
}

// ===== ANSWER KEY / RESPONSE SCHEMAS =====

// MCQKey expects a response of shape {"option": int}.
type MCQKey struct {
	CorrectOption int `json:"correctOption"`
}

// MSQKey expects a response of shape {"options": []int}; set equality,
// no partial credit.
type MSQKey struct {
	CorrectOptions []int `json:"correctOptions"`
}

// NumericalKey expects {"value": number|string}. A range key (either bound
// present) takes precedence over value/tolerance; a missing bound is
// unbounded on that side. Tolerance defaults to 0.
type NumericalKey struct {
	Value     *float64 `json:"value"`
	Tolerance *float64 `json:"tolerance"`
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
}

type MCQResponse struct {
	Option *int `json:"option"`
}

type MSQResponse struct {
	Options []int `json:"options"`
}

type NumericalResponse struct {
	Value any `json:"value"`
}
