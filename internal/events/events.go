package events

import (
	"context"
	"time"
)

// Event is the envelope every published message travels in.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Event types emitted by the attempt service.
const (
	EventAttemptStarted   = "attempt.started"
	EventAttemptSubmitted = "attempt.submitted"
	EventGroupMemberAdded = "group.member_added"
	EventTestAssigned     = "group.test_assigned"
)

const (
	eventSource  = "attempt-service"
	eventVersion = "1.0"
)

// EventPublisher publishes domain events to the message broker.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
	Close() error
}

// AttemptStartedEvent is emitted when a student opens a new attempt.
type AttemptStartedEvent struct {
	AttemptID string    `json:"attempt_id"`
	TestID    string    `json:"test_id"`
	StudentID string    `json:"student_id"`
	StartedAt time.Time `json:"started_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// AttemptSubmittedEvent is emitted once per attempt, after the result is
// persisted. Downstream consumers (notifications, analytics) key on it.
type AttemptSubmittedEvent struct {
	AttemptID   string    `json:"attempt_id"`
	TestID      string    `json:"test_id"`
	StudentID   string    `json:"student_id"`
	Score       float64   `json:"score"`
	MaxScore    float64   `json:"max_score"`
	Accuracy    float64   `json:"accuracy"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// GroupMemberAddedEvent is emitted when a user joins a group.
type GroupMemberAddedEvent struct {
	GroupID string    `json:"group_id"`
	UserID  string    `json:"user_id"`
	Role    string    `json:"role"`
	AddedAt time.Time `json:"added_at"`
}

// TestAssignedEvent is emitted when a test is assigned to a group.
type TestAssignedEvent struct {
	GroupID    string    `json:"group_id"`
	TestID     string    `json:"test_id"`
	AssignedBy string    `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}
