// Package grading implements the pure scoring rules for attempts: per-type
// correctness checks over stored JSON payloads and the aggregation of a full
// attempt into totals and a subject breakdown.
//
// Grading is deliberately total: malformed or unexpected payloads degrade to
// "unattempted", they never surface as errors. Stored data predates any code
// change and a single bad row must not block an entire result.
package grading

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/prepline/attempt-service/internal/models"
)

// Outcome is the graded state of a single question.
type Outcome struct {
	Attempted bool
	Correct   bool
}

// Evaluate grades one response against one answer key. A nil or malformed
// response yields Attempted=false; Correct implies Attempted.
func Evaluate(qType models.QuestionType, key json.RawMessage, response json.RawMessage) Outcome {
	switch qType {
	case models.MCQ:
		return evaluateMCQ(key, response)
	case models.MSQ:
		return evaluateMSQ(key, response)
	case models.Numerical:
		return evaluateNumerical(key, response)
	default:
		return Outcome{}
	}
}

// IsAttempted reports whether a response counts as an attempt for the given
// question type, using the same parsing rules as Evaluate.
func IsAttempted(qType models.QuestionType, response json.RawMessage) bool {
	return Evaluate(qType, nil, response).Attempted
}

func evaluateMCQ(key json.RawMessage, response json.RawMessage) Outcome {
	var resp models.MCQResponse
	if !unmarshalResponse(response, &resp) || resp.Option == nil {
		return Outcome{}
	}

	var k models.MCQKey
	if err := json.Unmarshal(key, &k); err != nil {
		return Outcome{Attempted: true}
	}

	return Outcome{Attempted: true, Correct: *resp.Option == k.CorrectOption}
}

func evaluateMSQ(key json.RawMessage, response json.RawMessage) Outcome {
	var resp models.MSQResponse
	if !unmarshalResponse(response, &resp) || len(resp.Options) == 0 {
		return Outcome{}
	}

	var k models.MSQKey
	if err := json.Unmarshal(key, &k); err != nil {
		return Outcome{Attempted: true}
	}

	// Set equality after dedup; a superset or subset of the key scores
	// nothing (no partial credit).
	selected := normalizeOptions(resp.Options)
	correct := normalizeOptions(k.CorrectOptions)

	if len(selected) != len(correct) {
		return Outcome{Attempted: true}
	}
	for i := range selected {
		if selected[i] != correct[i] {
			return Outcome{Attempted: true}
		}
	}
	return Outcome{Attempted: true, Correct: true}
}

func evaluateNumerical(key json.RawMessage, response json.RawMessage) Outcome {
	var resp models.NumericalResponse
	if !unmarshalResponse(response, &resp) {
		return Outcome{}
	}

	value := toNumber(resp.Value)
	if value == nil {
		return Outcome{}
	}

	var k models.NumericalKey
	if err := json.Unmarshal(key, &k); err != nil {
		return Outcome{Attempted: true}
	}

	// A range key wins over value/tolerance; a missing bound is unbounded.
	if k.Min != nil || k.Max != nil {
		min := math.Inf(-1)
		max := math.Inf(1)
		if k.Min != nil {
			min = *k.Min
		}
		if k.Max != nil {
			max = *k.Max
		}
		return Outcome{Attempted: true, Correct: *value >= min && *value <= max}
	}

	if k.Value == nil {
		return Outcome{Attempted: true}
	}
	tolerance := 0.0
	if k.Tolerance != nil {
		tolerance = *k.Tolerance
	}
	return Outcome{Attempted: true, Correct: math.Abs(*value-*k.Value) <= tolerance}
}

// toNumber accepts a JSON number or a numeric string; anything else
// (including empty strings, NaN and infinities) is nil.
func toNumber(v any) *float64 {
	switch value := v.(type) {
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil
		}
		return &value
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

func normalizeOptions(options []int) []int {
	seen := make(map[int]struct{}, len(options))
	result := make([]int, 0, len(options))
	for _, option := range options {
		if _, ok := seen[option]; ok {
			continue
		}
		seen[option] = struct{}{}
		result = append(result, option)
	}
	sort.Ints(result)
	return result
}

// unmarshalResponse reports whether the payload is present and parses into
// the expected shape. JSON null and type mismatches both fail.
func unmarshalResponse(response json.RawMessage, dest interface{}) bool {
	if len(response) == 0 {
		return false
	}
	trimmed := strings.TrimSpace(string(response))
	if trimmed == "" || trimmed == "null" {
		return false
	}
	return json.Unmarshal(response, dest) == nil
}
