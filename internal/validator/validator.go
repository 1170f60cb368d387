package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Per-question time spent is client-reported; cap it at an hour per write
// to keep obviously broken clocks out of analytics.
const maxTimeSpentMs = 60 * 60 * 1000

// Validator wraps go-playground validation with domain rules
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with all custom rules registered
func New() *Validator {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	v := &Validator{validate: validate}
	v.registerDomainRules()

	return v
}

// Validate validates any struct and returns field-level errors
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("invalid validation target: %w", err)
	}

	return toFieldErrors(err)
}

func (v *Validator) registerDomainRules() {
	// time_spent caps client-reported per-question timings
	_ = v.validate.RegisterValidation("time_spent", func(fl validator.FieldLevel) bool {
		ms := fl.Field().Int()
		return ms >= 0 && ms <= maxTimeSpentMs
	})

	// invite_code accepts the 8-12 char uppercase alphanumeric codes we mint
	_ = v.validate.RegisterValidation("invite_code", func(fl validator.FieldLevel) bool {
		code := fl.Field().String()
		if len(code) < 8 || len(code) > 12 {
			return false
		}
		for _, r := range code {
			if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return false
			}
		}
		return true
	})

	// group_name keeps names printable and reasonably short
	_ = v.validate.RegisterValidation("group_name", func(fl validator.FieldLevel) bool {
		name := strings.TrimSpace(fl.Field().String())
		return len(name) >= 3 && len(name) <= 120
	})
}

// FieldError describes a single invalid field
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// FieldErrors is the error type returned for struct validation failures
type FieldErrors []FieldError

func (fe FieldErrors) Error() string {
	msgs := make([]string, len(fe))
	for i, e := range fe {
		msgs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func toFieldErrors(err error) FieldErrors {
	var out FieldErrors

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return FieldErrors{{Field: "request", Message: err.Error()}}
	}

	for _, fe := range validationErrors {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: messageForTag(fe),
		})
	}

	return out
}

func messageForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid UUID"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "time_spent":
		return "must be between 0 and 1 hour in milliseconds"
	case "invite_code":
		return "must be an 8-12 character uppercase alphanumeric code"
	case "group_name":
		return "must be between 3 and 120 characters"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
