package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TestStatus string

const (
	TestDraft     TestStatus = "DRAFT"
	TestPublished TestStatus = "PUBLISHED"
	TestArchived  TestStatus = "ARCHIVED"
)

type TestVisibility string

const (
	VisibilityPublic    TestVisibility = "PUBLIC"
	VisibilityPrivate   TestVisibility = "PRIVATE"
	VisibilityGroupOnly TestVisibility = "GROUP_ONLY"
)

// Test is the read side of the catalog: attempts run against published tests
// but this service never authors them.
type Test struct {
	ID          string         `json:"id" gorm:"primaryKey;size:36"`
	Title       string         `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string        `json:"description" gorm:"type:text"`
	DurationSec int            `json:"duration_sec" gorm:"not null" validate:"required,min=60"`
	Status      TestStatus     `json:"status" gorm:"default:DRAFT;index"`
	Visibility  TestVisibility `json:"visibility" gorm:"default:PRIVATE;index"`

	CreatorID string         `json:"creator_id" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Sections      []Section      `json:"sections" gorm:"foreignKey:TestID"`
	TestQuestions []TestQuestion `json:"test_questions" gorm:"foreignKey:TestID"`
	Creator       User           `json:"creator" gorm:"foreignKey:CreatorID"`

	// Computed fields (not stored)
	QuestionCount int     `json:"question_count" gorm:"-"`
	MaxScore      float64 `json:"max_score" gorm:"-"`
}

// Section groups questions for display in the palette; it carries no
// grading semantics.
type Section struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	TestID    string    `json:"test_id" gorm:"not null;index;size:36"`
	Name      string    `json:"name" gorm:"not null;size:120"`
	SortOrder int       `json:"sort_order" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`

	Test Test `json:"-" gorm:"foreignKey:TestID"`
}

// TestQuestion attaches a question to a test with an ordering slot and
// optional per-test mark overrides.
type TestQuestion struct {
	ID         string  `json:"id" gorm:"primaryKey;size:36"`
	TestID     string  `json:"test_id" gorm:"not null;index;uniqueIndex:idx_test_question;size:36"`
	QuestionID string  `json:"question_id" gorm:"not null;index;uniqueIndex:idx_test_question;size:36"`
	SectionID  *string `json:"section_id" gorm:"index;size:36"`
	SortOrder  int     `json:"sort_order" gorm:"not null;uniqueIndex:idx_test_sort_order,composite:test_id"`

	// Overrides take precedence over the question's own marks when present.
	MarksOverride         *float64 `json:"marks_override"`
	NegativeMarksOverride *float64 `json:"negative_marks_override"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Test     Test     `json:"-" gorm:"foreignKey:TestID"`
	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
	Section  *Section `json:"section" gorm:"foreignKey:SectionID"`
}

// Marks resolves the effective positive marks for this slot.
func (tq *TestQuestion) Marks() float64 {
	if tq.MarksOverride != nil {
		return *tq.MarksOverride
	}
	return tq.Question.Marks
}

// NegativeMarks resolves the effective negative marks (zero or negative).
func (tq *TestQuestion) NegativeMarks() float64 {
	if tq.NegativeMarksOverride != nil {
		return *tq.NegativeMarksOverride
	}
	return tq.Question.NegativeMarks
}

func (t *Test) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

func (s *Section) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func (tq *TestQuestion) BeforeCreate(tx *gorm.DB) error {
	if tq.ID == "" {
		tq.ID = uuid.NewString()
	}
	return nil
}

func (Test) TableName() string {
	return "tests"
}

func (Section) TableName() string {
	return "sections"
}

func (TestQuestion) TableName() string {
	return "test_questions"
}
