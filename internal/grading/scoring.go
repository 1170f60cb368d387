package grading

import (
	"encoding/json"

	"github.com/prepline/attempt-service/internal/models"
)

// UnknownSubject buckets questions without a subject tag.
const UnknownSubject = "Unknown"

// QuestionOutcome is the graded view of one test slot.
type QuestionOutcome struct {
	QuestionID    string  `json:"question_id"`
	Index         int     `json:"index"`
	Marks         float64 `json:"marks"`
	NegativeMarks float64 `json:"negative_marks"`
	MarksAwarded  float64 `json:"marks_awarded"`
	Attempted     bool    `json:"attempted"`
	Correct       bool    `json:"correct"`
	Subject       string  `json:"subject"`
	TimeSpentMs   int     `json:"time_spent_ms"`
}

// Summary aggregates a whole attempt. MaxScore always sums effective marks
// over every slot, regardless of what was attempted; Accuracy is 0 when
// nothing was attempted.
type Summary struct {
	Score            float64
	MaxScore         float64
	CorrectCount     int
	WrongCount       int
	UnattemptedCount int
	Accuracy         float64
	TotalTimeMs      int
	Questions        []QuestionOutcome
	Subjects         []models.SubjectStat
}

// Score grades an ordered slice of test slots (questions preloaded) against
// the student's answers. Absent answers count as unattempted. The subject
// breakdown preserves first-seen question order.
func Score(items []models.TestQuestion, answers map[string]*models.AttemptAnswer) Summary {
	summary := Summary{
		Questions: make([]QuestionOutcome, 0, len(items)),
	}

	subjectIndex := make(map[string]int)
	subjects := make([]models.SubjectStat, 0)

	for i, item := range items {
		marks := item.Marks()
		negative := item.NegativeMarks()
		summary.MaxScore += marks

		var response json.RawMessage
		timeSpentMs := 0
		if answer, ok := answers[item.QuestionID]; ok && answer != nil {
			response = json.RawMessage(answer.Response)
			timeSpentMs = answer.TimeSpentMs
		}
		summary.TotalTimeMs += timeSpentMs

		outcome := Evaluate(item.Question.Type, json.RawMessage(item.Question.AnswerKey), response)

		awarded := 0.0
		switch {
		case outcome.Correct:
			awarded = marks
			summary.CorrectCount++
		case outcome.Attempted:
			awarded = negative
			summary.WrongCount++
		default:
			summary.UnattemptedCount++
		}
		summary.Score += awarded

		subject := UnknownSubject
		if item.Question.Subject != nil && *item.Question.Subject != "" {
			subject = *item.Question.Subject
		}

		idx, ok := subjectIndex[subject]
		if !ok {
			idx = len(subjects)
			subjectIndex[subject] = idx
			subjects = append(subjects, models.SubjectStat{Subject: subject})
		}
		stat := &subjects[idx]
		stat.MaxScore += marks
		stat.Score += awarded
		stat.TimeMs += timeSpentMs
		switch {
		case outcome.Correct:
			stat.Correct++
		case outcome.Attempted:
			stat.Wrong++
		default:
			stat.Unattempted++
		}

		summary.Questions = append(summary.Questions, QuestionOutcome{
			QuestionID:    item.QuestionID,
			Index:         i,
			Marks:         marks,
			NegativeMarks: negative,
			MarksAwarded:  awarded,
			Attempted:     outcome.Attempted,
			Correct:       outcome.Correct,
			Subject:       subject,
			TimeSpentMs:   timeSpentMs,
		})
	}

	attempted := summary.CorrectCount + summary.WrongCount
	if attempted > 0 {
		summary.Accuracy = float64(summary.CorrectCount) / float64(attempted)
	}

	summary.Subjects = subjects
	return summary
}
